package lifecycle

import "fmt"

// State is the lifecycle state of one call session.
type State int

const (
	// StateUnknown is the implicit default: no record exists for the session.
	StateUnknown State = iota
	// StatePending is an incoming call that has not been answered yet.
	StatePending
	// StateAccepted is an answered, active call.
	StateAccepted
	// StateRejected is the single terminal state: ended, declined or
	// superseded. No transition exists out of it.
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StatePending:
		return "pending"
	case StateAccepted:
		return "accepted"
	case StateRejected:
		return "rejected"
	default:
		return fmt.Sprintf("invalid(%d)", int(s))
	}
}

// IsTerminal reports whether no further lifecycle transitions are possible.
func (s State) IsTerminal() bool { return s == StateRejected }

// ParseState restores a State from its persisted string form.
func ParseState(v string) (State, bool) {
	switch v {
	case "unknown":
		return StateUnknown, true
	case "pending":
		return StatePending, true
	case "accepted":
		return StateAccepted, true
	case "rejected":
		return StateRejected, true
	default:
		return StateUnknown, false
	}
}
