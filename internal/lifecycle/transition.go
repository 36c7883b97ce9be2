package lifecycle

import "callkit-core/internal/event"

// Class is the lifecycle meaning of an inbound event kind. Mute toggles and
// notification taps are orthogonal to the lifecycle and have no Class.
type Class int

const (
	// ClassIncoming announces a new inbound call.
	ClassIncoming Class = iota
	// ClassStart announces a locally initiated outgoing call, which is
	// active from the start (there is no ringing phase on the caller side).
	ClassStart
	// ClassAnswer is the user or native layer accepting a pending call.
	ClassAnswer
	// ClassEnd is any termination: hangup, decline, remote end.
	ClassEnd
)

// Outcome describes what applying an event did.
type Outcome int

const (
	// OutcomeApplied means the state changed.
	OutcomeApplied Outcome = iota
	// OutcomeIdempotent means the event was a duplicate of one already
	// applied; the state is unchanged and handlers must observe the same
	// result as the first delivery.
	OutcomeIdempotent
	// OutcomeStale means the event referenced a terminal or unknown
	// session; logged and otherwise ignored.
	OutcomeStale
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeIdempotent:
		return "idempotent"
	case OutcomeStale:
		return "stale"
	default:
		return "invalid"
	}
}

// ClassOf maps a wire event kind to its lifecycle class. The second result
// is false for kinds that do not drive the lifecycle (token, mute, tap).
func ClassOf(kind event.EnvelopeKind) (Class, bool) {
	switch kind {
	case event.KindIncomingCall:
		return ClassIncoming, true
	case event.KindStartCall:
		return ClassStart, true
	case event.KindAnswerCall:
		return ClassAnswer, true
	case event.KindEndCall:
		return ClassEnd, true
	default:
		return 0, false
	}
}

// Next is the pure transition function. It never errors: duplicates come
// back OutcomeIdempotent, events for dead or unknown sessions come back
// OutcomeStale with the state unchanged. At-least-once delivery from the
// native layer makes replay the normal case, not the exception.
func Next(cur State, class Class) (State, Outcome) {
	if cur == StateRejected {
		// Terminal. Everything after is a stale duplicate.
		return StateRejected, OutcomeStale
	}

	switch class {
	case ClassIncoming:
		switch cur {
		case StateUnknown:
			return StatePending, OutcomeApplied
		case StatePending, StateAccepted:
			// Duplicate push/native callback for a call we already track.
			return cur, OutcomeIdempotent
		}

	case ClassStart:
		switch cur {
		case StateUnknown, StatePending:
			return StateAccepted, OutcomeApplied
		case StateAccepted:
			return StateAccepted, OutcomeIdempotent
		}

	case ClassAnswer:
		switch cur {
		case StateUnknown:
			return StateUnknown, OutcomeStale
		case StatePending:
			return StateAccepted, OutcomeApplied
		case StateAccepted:
			// Duplicate native answer callback.
			return StateAccepted, OutcomeIdempotent
		}

	case ClassEnd:
		switch cur {
		case StateUnknown:
			return StateUnknown, OutcomeStale
		case StatePending, StateAccepted:
			return StateRejected, OutcomeApplied
		}
	}

	return cur, OutcomeStale
}
