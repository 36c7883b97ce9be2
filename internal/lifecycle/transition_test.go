package lifecycle

import (
	"testing"

	"callkit-core/internal/event"
)

func TestNext_TransitionTable(t *testing.T) {
	cases := []struct {
		name    string
		cur     State
		class   Class
		want    State
		outcome Outcome
	}{
		{"incoming creates pending", StateUnknown, ClassIncoming, StatePending, OutcomeApplied},
		{"duplicate incoming", StatePending, ClassIncoming, StatePending, OutcomeIdempotent},
		{"incoming after answer", StateAccepted, ClassIncoming, StateAccepted, OutcomeIdempotent},
		{"answer pending", StatePending, ClassAnswer, StateAccepted, OutcomeApplied},
		{"duplicate answer", StateAccepted, ClassAnswer, StateAccepted, OutcomeIdempotent},
		{"answer unknown is stale", StateUnknown, ClassAnswer, StateUnknown, OutcomeStale},
		{"end pending", StatePending, ClassEnd, StateRejected, OutcomeApplied},
		{"end accepted", StateAccepted, ClassEnd, StateRejected, OutcomeApplied},
		{"end unknown is stale", StateUnknown, ClassEnd, StateUnknown, OutcomeStale},
		{"start creates active", StateUnknown, ClassStart, StateAccepted, OutcomeApplied},
		{"start over pending", StatePending, ClassStart, StateAccepted, OutcomeApplied},
		{"duplicate start", StateAccepted, ClassStart, StateAccepted, OutcomeIdempotent},
	}
	for _, tc := range cases {
		got, outcome := Next(tc.cur, tc.class)
		if got != tc.want || outcome != tc.outcome {
			t.Fatalf("%s: got (%s, %s), want (%s, %s)", tc.name, got, outcome, tc.want, tc.outcome)
		}
	}
}

func TestNext_RejectedIsTerminal(t *testing.T) {
	for _, class := range []Class{ClassIncoming, ClassStart, ClassAnswer, ClassEnd} {
		got, outcome := Next(StateRejected, class)
		if got != StateRejected || outcome != OutcomeStale {
			t.Fatalf("class %d: expected terminal no-op, got (%s, %s)", class, got, outcome)
		}
	}
	if !StateRejected.IsTerminal() {
		t.Fatalf("rejected must be terminal")
	}
	if StatePending.IsTerminal() || StateAccepted.IsTerminal() {
		t.Fatalf("pending/accepted must not be terminal")
	}
}

func TestNext_Idempotence(t *testing.T) {
	// Applying the same event twice never changes the outcome beyond the
	// first application.
	seq := []struct {
		cur   State
		class Class
	}{
		{StateUnknown, ClassIncoming},
		{StatePending, ClassAnswer},
		{StateAccepted, ClassEnd},
	}
	for _, step := range seq {
		first, _ := Next(step.cur, step.class)
		second, outcome := Next(first, step.class)
		if second != first {
			t.Fatalf("replaying event on %s changed state %s -> %s", step.cur, first, second)
		}
		if outcome == OutcomeApplied {
			t.Fatalf("replay must not report applied")
		}
	}
}

func TestClassOf(t *testing.T) {
	lifecycleKinds := map[event.EnvelopeKind]Class{
		event.KindIncomingCall: ClassIncoming,
		event.KindStartCall:    ClassStart,
		event.KindAnswerCall:   ClassAnswer,
		event.KindEndCall:      ClassEnd,
	}
	for kind, want := range lifecycleKinds {
		got, ok := ClassOf(kind)
		if !ok || got != want {
			t.Fatalf("%s: expected class %d, got (%d, %v)", kind, want, got, ok)
		}
	}
	for _, kind := range []event.EnvelopeKind{event.KindVoipToken, event.KindSetMuted, event.KindSetUnMuted, event.KindNotificationTap} {
		if _, ok := ClassOf(kind); ok {
			t.Fatalf("%s must not be a lifecycle event", kind)
		}
	}
}

func TestParseState_RoundTrip(t *testing.T) {
	for _, s := range []State{StateUnknown, StatePending, StateAccepted, StateRejected} {
		got, ok := ParseState(s.String())
		if !ok || got != s {
			t.Fatalf("%s: round trip failed", s)
		}
	}
	if _, ok := ParseState("bogus"); ok {
		t.Fatalf("expected parse failure")
	}
}
