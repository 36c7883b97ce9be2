package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"callkit-core/internal/background"
	"callkit-core/internal/event"
)

// HandlerKind names the application-facing callback slots.
type HandlerKind string

const (
	KindIncoming        HandlerKind = "incoming"
	KindAccepted        HandlerKind = "accepted"
	KindRejected        HandlerKind = "rejected"
	KindNotificationTap HandlerKind = "notificationTap"
)

// backgroundCapableKinds are the terminable kinds that may be replayed into
// a background execution context. Notification taps only make sense with a
// live UI.
var backgroundCapableKinds = map[HandlerKind]bool{
	KindIncoming: true,
	KindAccepted: true,
	KindRejected: true,
}

// Handler is an application callback for one event kind.
type Handler func(ctx context.Context, ev event.CallEvent) error

// Registration binds an event kind to a live callable and, optionally, to a
// background-capable reference (the kind itself serves as the serializable
// reference; the background side re-resolves it through this same table).
type Registration struct {
	Kind              HandlerKind
	Live              Handler
	BackgroundCapable bool
}

// RegistrationConflict is raised when a kind is registered twice without
// explicit teardown. Silent overwrite would mask real bugs, so this is loud.
type RegistrationConflict struct {
	Kind HandlerKind
}

func (e *RegistrationConflict) Error() string {
	return fmt.Sprintf("dispatch: handler for %q already registered (unregister first)", e.Kind)
}

// Dispatcher routes validated events to a live foreground handler, or to the
// background bootstrapper when the app has no live foreground context.
type Dispatcher struct {
	mu         sync.RWMutex
	regs       map[HandlerKind]Registration
	foreground bool

	boot *background.Bootstrapper
	log  *slog.Logger
}

func New(log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		regs: map[HandlerKind]Registration{},
		log:  log,
	}
}

// AttachBootstrapper wires the background delivery path. Set once at init.
func (d *Dispatcher) AttachBootstrapper(b *background.Bootstrapper) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.boot = b
}

// Register installs the handler for kind. Exactly one registration per kind
// may be active; re-registration without Unregister is a programmer error.
func (d *Dispatcher) Register(kind HandlerKind, h Handler, backgroundCapable bool) error {
	if h == nil {
		return fmt.Errorf("dispatch: nil handler for %q", kind)
	}
	if backgroundCapable && !backgroundCapableKinds[kind] {
		return fmt.Errorf("dispatch: kind %q cannot be background-capable", kind)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.regs[kind]; exists {
		return &RegistrationConflict{Kind: kind}
	}
	d.regs[kind] = Registration{Kind: kind, Live: h, BackgroundCapable: backgroundCapable}
	return nil
}

// Unregister tears down the registration for kind. Required before a kind
// can be registered again.
func (d *Dispatcher) Unregister(kind HandlerKind) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.regs, kind)
}

// SetForeground flips whether a live foreground context exists. The mobile
// shell calls this on lifecycle changes (attach/detach of the UI).
func (d *Dispatcher) SetForeground(live bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.foreground = live
}

// Resolve satisfies background.Resolver: the serialized reference is the
// handler kind, re-resolved through the registration table on the far side
// of the boundary. The payload is the encoded CallEvent snapshot.
func (d *Dispatcher) Resolve(ref background.HandlerRef) (background.HandlerFunc, bool) {
	d.mu.RLock()
	reg, ok := d.regs[HandlerKind(ref)]
	d.mu.RUnlock()
	if !ok || reg.Live == nil {
		return nil, false
	}
	return func(ctx context.Context, payload []byte) error {
		ev, err := event.DecodeEvent(payload)
		if err != nil {
			return err
		}
		return reg.Live(ctx, *ev)
	}, true
}

// Dispatch routes ev to the handler registered for kind. It returns once
// the delivery is enqueued; handler completion is asynchronous. One failing
// handler never blocks unrelated dispatches.
func (d *Dispatcher) Dispatch(ctx context.Context, kind HandlerKind, ev *event.CallEvent) {
	d.mu.RLock()
	reg, ok := d.regs[kind]
	foreground := d.foreground
	boot := d.boot
	d.mu.RUnlock()

	if !ok {
		// Expected for apps that only care about a subset of kinds.
		d.log.Warn("event dropped: no handler registered",
			"kind", string(kind), "session_id", ev.SessionID)
		return
	}

	if foreground && reg.Live != nil {
		go d.invokeLive(reg, *ev)
		return
	}

	if reg.BackgroundCapable && boot != nil {
		// Deterministic correlation id: a push retry of the same event
		// for the same session coalesces to one background invocation.
		corrID := string(kind) + ":" + ev.SessionID
		payload, err := ev.Encode()
		if err != nil {
			d.log.Error("event encode failed", "kind", string(kind), "err", err)
			return
		}
		go func() {
			if err := boot.Deliver(context.WithoutCancel(ctx), background.HandlerRef(kind), corrID, payload); err != nil {
				d.log.Error("background delivery failed",
					"kind", string(kind), "session_id", ev.SessionID, "err", err)
			}
		}()
		return
	}

	d.log.Warn("event dropped: no deliverable handler",
		"kind", string(kind), "session_id", ev.SessionID, "foreground", foreground)
}

// invokeLive runs a foreground handler with per-invocation failure
// isolation: errors and panics are caught and logged.
func (d *Dispatcher) invokeLive(reg Registration, ev event.CallEvent) {
	defer func() {
		if p := recover(); p != nil {
			d.log.Error("handler panicked", "kind", string(reg.Kind), "panic", p)
		}
	}()
	if err := reg.Live(context.Background(), ev); err != nil {
		d.log.Error("handler failed",
			"kind", string(reg.Kind), "session_id", ev.SessionID, "err", err)
	}
}
