package journal

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for the call journal.
type Repository interface {
	Append(ctx context.Context, e Entry) error
	ListBySession(ctx context.Context, sessionID string) ([]Entry, error)
}

// Service records applied lifecycle transitions.
//
// Callers treat journal writes as best-effort: a failed append is logged by
// the caller and never blocks the transition that produced it.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEntry = errors.New("journal: invalid entry")

func (s *Service) Append(ctx context.Context, e Entry) error {
	if s.repo == nil {
		return errors.New("journal: repository not configured")
	}
	if e.SessionID == "" {
		return ErrInvalidEntry
	}
	if e.Event == "" {
		return ErrInvalidEntry
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

func (s *Service) History(ctx context.Context, sessionID string) ([]Entry, error) {
	if s.repo == nil {
		return nil, errors.New("journal: repository not configured")
	}
	return s.repo.ListBySession(ctx, sessionID)
}
