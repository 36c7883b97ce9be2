package background

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestDeliver_InvokesResolvedHandler(t *testing.T) {
	var got atomic.Value
	resolver := func(ref HandlerRef) (HandlerFunc, bool) {
		if ref != "incoming" {
			return nil, false
		}
		return func(ctx context.Context, payload []byte) error {
			got.Store(string(payload))
			return nil
		}, true
	}

	b := New(resolver, time.Second, 8, nil)
	if err := b.Deliver(context.Background(), "incoming", "corr-1", []byte(`{"session_id":"a"}`)); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got.Load() != `{"session_id":"a"}` {
		t.Fatalf("handler did not receive payload: %v", got.Load())
	}
	if b.State() != StateTornDown {
		t.Fatalf("context must be torn down after dispatch, got %s", b.State())
	}
}

func TestDeliver_ExactlyOncePerCorrelationID(t *testing.T) {
	var calls atomic.Int32
	resolver := func(HandlerRef) (HandlerFunc, bool) {
		return func(context.Context, []byte) error {
			calls.Add(1)
			return nil
		}, true
	}

	b := New(resolver, time.Second, 8, nil)
	for i := 0; i < 3; i++ {
		if err := b.Deliver(context.Background(), "accepted", "corr-7", nil); err != nil {
			t.Fatalf("unexpected err: %v", err)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("expected exactly one invocation, got %d", n)
	}
}

func TestDeliver_HandlerErrorIsContained(t *testing.T) {
	resolver := func(HandlerRef) (HandlerFunc, bool) {
		return func(context.Context, []byte) error {
			return errors.New("handler exploded")
		}, true
	}
	b := New(resolver, time.Second, 8, nil)
	if err := b.Deliver(context.Background(), "rejected", "corr-2", nil); err != nil {
		t.Fatalf("handler failure must not propagate: %v", err)
	}

	// The failed attempt still counts for dedup.
	var calls atomic.Int32
	b.resolver = func(HandlerRef) (HandlerFunc, bool) {
		return func(context.Context, []byte) error {
			calls.Add(1)
			return nil
		}, true
	}
	if err := b.Deliver(context.Background(), "rejected", "corr-2", nil); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if calls.Load() != 0 {
		t.Fatalf("retry of processed correlation id must be dropped")
	}
}

func TestDeliver_HandlerPanicIsContained(t *testing.T) {
	resolver := func(HandlerRef) (HandlerFunc, bool) {
		return func(context.Context, []byte) error {
			panic("boom")
		}, true
	}
	b := New(resolver, time.Second, 8, nil)
	if err := b.Deliver(context.Background(), "incoming", "corr-3", nil); err != nil {
		t.Fatalf("handler panic must not propagate: %v", err)
	}
}

func TestDeliver_UnresolvableRefIsDroppedNotFatal(t *testing.T) {
	resolver := func(HandlerRef) (HandlerFunc, bool) { return nil, false }
	b := New(resolver, time.Second, 8, nil)
	if err := b.Deliver(context.Background(), "incoming", "corr-4", nil); err != nil {
		t.Fatalf("unresolvable ref must be contained: %v", err)
	}
}

func TestDeliver_DedupWindowEvictsOldest(t *testing.T) {
	var calls atomic.Int32
	resolver := func(HandlerRef) (HandlerFunc, bool) {
		return func(context.Context, []byte) error {
			calls.Add(1)
			return nil
		}, true
	}

	b := New(resolver, time.Second, 2, nil)
	for _, id := range []string{"c-1", "c-2", "c-3"} {
		if err := b.Deliver(context.Background(), "incoming", id, nil); err != nil {
			t.Fatalf("unexpected err: %v", err)
		}
	}
	// c-1 has been evicted from the window, so a retry replays it.
	if err := b.Deliver(context.Background(), "incoming", "c-1", nil); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if n := calls.Load(); n != 4 {
		t.Fatalf("expected 4 invocations after eviction, got %d", n)
	}
}

func TestDeliver_ConcurrentTriggersCoalesce(t *testing.T) {
	var calls atomic.Int32
	resolver := func(HandlerRef) (HandlerFunc, bool) {
		return func(context.Context, []byte) error {
			calls.Add(1)
			return nil
		}, true
	}

	b := New(resolver, time.Second, 16, nil)
	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			_ = b.Deliver(context.Background(), "incoming", "same-corr", nil)
		}()
	}
	for i := 0; i < 5; i++ {
		<-done
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("concurrent triggers must coalesce to one invocation, got %d", n)
	}
}
