package journal

import (
	"context"
	"database/sql"
)

// NOTE: This repository assumes the following table exists:
//
// CREATE TABLE call_journal (
//   id          TEXT PRIMARY KEY,
//   session_id  TEXT NOT NULL,
//   event       TEXT NOT NULL,
//   from_state  TEXT NOT NULL,
//   to_state    TEXT NOT NULL,
//   reason      TEXT NOT NULL DEFAULT '',
//   occurred_at TIMESTAMPTZ NOT NULL
// );
// CREATE INDEX call_journal_session_idx ON call_journal (session_id, occurred_at);

// PostgresRepo persists journal entries via database/sql (pgx stdlib driver).
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Entry) error {
	const q = `
INSERT INTO call_journal (id, session_id, event, from_state, to_state, reason, occurred_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		e.SessionID,
		e.Event,
		e.FromState,
		e.ToState,
		e.Reason,
		e.OccurredAt,
	)
	return err
}

func (r *PostgresRepo) ListBySession(ctx context.Context, sessionID string) ([]Entry, error) {
	const q = `
SELECT id, session_id, event, from_state, to_state, reason, occurred_at
FROM call_journal
WHERE session_id = $1
ORDER BY occurred_at ASC
`
	rows, err := r.db.QueryContext(ctx, q, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.ID,
			&e.SessionID,
			&e.Event,
			&e.FromState,
			&e.ToState,
			&e.Reason,
			&e.OccurredAt,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
