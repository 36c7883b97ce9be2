package registry

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store used in tests and on platforms where
// no durable backend is configured. Mirrors the Redis layout.
type MemoryStore struct {
	mu         sync.Mutex
	snapshots  map[string]map[string]string
	lastCallID string
	voipToken  string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshots: map[string]map[string]string{}}
}

func (s *MemoryStore) LoadSnapshot(ctx context.Context, sessionID string) (map[string]string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snapshots[sessionID]
	if !ok {
		return nil, false, nil
	}
	out := make(map[string]string, len(snap))
	for k, v := range snap {
		out[k] = v
	}
	return out, true, nil
}

func (s *MemoryStore) SaveSnapshot(ctx context.Context, sessionID string, snap map[string]string) error {
	cp := make(map[string]string, len(snap))
	for k, v := range snap {
		cp[k] = v
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[sessionID] = cp
	return nil
}

func (s *MemoryStore) DeleteSnapshot(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, sessionID)
	return nil
}

func (s *MemoryStore) SetLastCallID(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCallID = sessionID
	return nil
}

func (s *MemoryStore) LastCallID(ctx context.Context) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCallID, s.lastCallID != "", nil
}

func (s *MemoryStore) SetVoipToken(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.voipToken = token
	return nil
}

func (s *MemoryStore) VoipToken(ctx context.Context) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.voipToken, s.voipToken != "", nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = map[string]map[string]string{}
	s.lastCallID = ""
	s.voipToken = ""
	return nil
}
