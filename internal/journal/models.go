package journal

import "time"

// Entry records one applied lifecycle transition. The journal is advisory:
// it exists for recall and diagnostics, never for registry correctness.
//
// Append-only; there are no update or delete operations.
type Entry struct {
	ID        string    `json:"id" db:"id"`
	SessionID string    `json:"session_id" db:"session_id"`
	Event     string    `json:"event" db:"event"`
	FromState string    `json:"from_state" db:"from_state"`
	ToState   string    `json:"to_state" db:"to_state"`

	// Reason qualifies terminal transitions: "ended", "declined",
	// "superseded".
	Reason string `json:"reason,omitempty" db:"reason"`

	OccurredAt time.Time `json:"occurred_at" db:"occurred_at"`
}
