package background

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// HandlerRef is a stable, serializable reference to a handler, resolvable
// inside a freshly bootstrapped background context. Refs are keyed by event
// kind, never by a raw in-process handle: the far side re-resolves the
// callable through its registration table.
type HandlerRef string

// HandlerFunc is the callable shape on the background side of the boundary.
// The payload is the serialized CallEvent snapshot.
type HandlerFunc func(ctx context.Context, payload []byte) error

// Resolver maps a HandlerRef to a callable inside the background context.
type Resolver func(ref HandlerRef) (HandlerFunc, bool)

// State is the bootstrapper's lifecycle.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateReady
	StateDispatching
	StateTornDown
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateDispatching:
		return "dispatching"
	case StateTornDown:
		return "torn_down"
	default:
		return "invalid"
	}
}

// message is what crosses the execution boundary: the handler reference,
// the correlation id and the serialized event.
type message struct {
	ref     HandlerRef
	corrID  string
	payload []byte
	result  chan error
}

// isolate models one background execution context. It is goroutine-confined:
// the host hands it messages over the event channel and learns readiness
// over a dedicated control channel, so an event can never arrive before the
// context is able to process it.
type isolate struct {
	events chan message
	ready  chan struct{}
	done   chan struct{}
}

func startIsolate(resolver Resolver, log *slog.Logger) *isolate {
	iso := &isolate{
		events: make(chan message),
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
	}

	go func() {
		defer close(iso.done)

		// The handler table travels with the context; signal readiness
		// only once it is installed.
		close(iso.ready)

		msg, ok := <-iso.events
		if !ok {
			return
		}
		msg.result <- iso.run(resolver, log, msg)
	}()

	return iso
}

// run invokes the resolved handler with panic containment. A background
// handler crash must never crash the host process.
func (iso *isolate) run(resolver Resolver, log *slog.Logger, msg message) (err error) {
	defer func() {
		if p := recover(); p != nil {
			log.Error("background handler panicked", "ref", string(msg.ref), "panic", p)
			err = fmt.Errorf("background handler %q panicked: %v", msg.ref, p)
		}
	}()

	h, ok := resolver(msg.ref)
	if !ok {
		return fmt.Errorf("no handler resolvable for ref %q", msg.ref)
	}
	return h(context.Background(), msg.payload)
}

// Bootstrapper starts isolated background execution contexts on demand and
// delivers exactly one event into each, exactly once per correlation id.
//
// Policy: contexts are ephemeral per invocation (torn down after the
// callable returns or fails); only the dedup set survives across contexts.
type Bootstrapper struct {
	resolver Resolver
	timeout  time.Duration
	window   int
	log      *slog.Logger

	// deliverMu serializes deliveries. Concurrent trigger attempts
	// coalesce here onto the single in-flight start instead of spawning
	// two contexts.
	deliverMu sync.Mutex

	mu        sync.Mutex
	state     State
	processed map[string]struct{}
	order     []string
}

func New(resolver Resolver, timeout time.Duration, dedupWindow int, log *slog.Logger) *Bootstrapper {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if dedupWindow <= 0 {
		dedupWindow = 256
	}
	if log == nil {
		log = slog.Default()
	}
	return &Bootstrapper{
		resolver:  resolver,
		timeout:   timeout,
		window:    dedupWindow,
		log:       log,
		processed: map[string]struct{}{},
	}
}

// State returns the current bootstrap state.
func (b *Bootstrapper) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Deliver bootstraps a background context (if none is in flight) and hands
// it the serialized event. Duplicate correlation ids are dropped, not
// replayed. Handler failures are contained and logged; Deliver only errors
// when the boundary itself fails (timeout, canceled context).
func (b *Bootstrapper) Deliver(ctx context.Context, ref HandlerRef, correlationID string, payload []byte) error {
	b.deliverMu.Lock()
	defer b.deliverMu.Unlock()

	if b.alreadyProcessed(correlationID) {
		b.log.Info("duplicate background delivery dropped",
			"correlation_id", correlationID, "ref", string(ref))
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	b.setState(StateStarting)
	iso := startIsolate(b.resolver, b.log)

	select {
	case <-iso.ready:
	case <-ctx.Done():
		close(iso.events)
		b.setState(StateTornDown)
		return fmt.Errorf("background context did not become ready: %w", ctx.Err())
	}
	b.setState(StateReady)

	msg := message{ref: ref, corrID: correlationID, payload: payload, result: make(chan error, 1)}

	b.setState(StateDispatching)
	select {
	case iso.events <- msg:
	case <-ctx.Done():
		close(iso.events)
		b.setState(StateTornDown)
		return fmt.Errorf("background dispatch aborted: %w", ctx.Err())
	}

	select {
	case err := <-msg.result:
		// The attempt counts for dedup whether or not the handler
		// succeeded; the state machine's idempotence covers retries of
		// partially-applied transitions.
		b.markProcessed(correlationID)
		b.setState(StateTornDown)
		if err != nil {
			b.log.Error("background handler failed",
				"correlation_id", correlationID, "ref", string(ref), "err", err)
		}
		return nil
	case <-ctx.Done():
		// Host is giving up; in-flight work is abandoned.
		b.setState(StateTornDown)
		return fmt.Errorf("background handler timed out: %w", ctx.Err())
	}
}

func (b *Bootstrapper) setState(s State) {
	b.mu.Lock()
	b.state = s
	b.mu.Unlock()
}

func (b *Bootstrapper) alreadyProcessed(correlationID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.processed[correlationID]
	return ok
}

// markProcessed remembers the correlation id, evicting oldest-first once
// the window is full.
func (b *Bootstrapper) markProcessed(correlationID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.processed[correlationID]; ok {
		return
	}
	b.processed[correlationID] = struct{}{}
	b.order = append(b.order, correlationID)
	for len(b.order) > b.window {
		oldest := b.order[0]
		b.order = b.order[1:]
		delete(b.processed, oldest)
	}
}
