package registry

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"callkit-core/internal/event"
	"callkit-core/internal/lifecycle"
)

// Snapshot meta keys stored alongside the event fields. Event field names
// live in internal/event and do not collide with these.
const (
	metaState = "state"
	metaMuted = "muted"
)

// Record is the registry's view of one call session. External components
// only ever receive copies; the registry owns the canonical instance.
type Record struct {
	SessionID   string
	State       lifecycle.State
	Muted       bool
	Data        map[string]string
	LastUpdated time.Time
}

func (r Record) clone() Record {
	out := r
	out.Data = make(map[string]string, len(r.Data))
	for k, v := range r.Data {
		out.Data[k] = v
	}
	return out
}

// snapshot renders the record for durable storage.
func (r Record) snapshot() map[string]string {
	snap := make(map[string]string, len(r.Data)+2)
	for k, v := range r.Data {
		snap[k] = v
	}
	snap[metaState] = r.State.String()
	snap[metaMuted] = strconv.FormatBool(r.Muted)
	return snap
}

func recordFromSnapshot(sessionID string, snap map[string]string) Record {
	rec := Record{SessionID: sessionID, Data: map[string]string{}}
	for k, v := range snap {
		switch k {
		case metaState:
			if st, ok := lifecycle.ParseState(v); ok {
				rec.State = st
			}
		case metaMuted:
			rec.Muted = v == "true"
		default:
			rec.Data[k] = v
		}
	}
	return rec
}

// Store is the durable snapshot backend. It is advisory/recovery-only: the
// in-memory registry stays authoritative while the process runs, and every
// Store failure is logged and swallowed.
type Store interface {
	LoadSnapshot(ctx context.Context, sessionID string) (map[string]string, bool, error)
	SaveSnapshot(ctx context.Context, sessionID string, snap map[string]string) error
	DeleteSnapshot(ctx context.Context, sessionID string) error

	SetLastCallID(ctx context.Context, sessionID string) error
	LastCallID(ctx context.Context) (string, bool, error)

	SetVoipToken(ctx context.Context, token string) error
	VoipToken(ctx context.Context) (string, bool, error)

	Clear(ctx context.Context) error
}

// Registry is the single source of truth for call state. It is safe for
// concurrent use from native callback goroutines, the main context and the
// background context; the RWMutex here is the system's only lock.
//
// Locking discipline: the write lock covers exactly one in-memory mutation.
// Store I/O always runs with the lock released, so a slow or dead backend
// can never starve readers.
type Registry struct {
	mu      sync.RWMutex
	records map[string]*Record
	current string

	store Store
	log   *slog.Logger
	clock func() time.Time
}

func New(store Store, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		records: map[string]*Record{},
		store:   store,
		log:     log,
		clock:   time.Now,
	}
}

// Get returns a copy of the record for sessionID. A session that is only
// persisted (process restarted since it was written) is rehydrated lazily
// and re-inserted; the first writer wins if two callers race the rehydrate.
func (r *Registry) Get(ctx context.Context, sessionID string) (Record, bool) {
	r.mu.RLock()
	rec, ok := r.records[sessionID]
	if ok {
		out := rec.clone()
		r.mu.RUnlock()
		return out, true
	}
	r.mu.RUnlock()

	if r.store == nil {
		return Record{}, false
	}

	// Storage read happens unlocked; this can block on I/O.
	snap, found, err := r.store.LoadSnapshot(ctx, sessionID)
	if err != nil {
		r.log.Warn("snapshot load failed", "session_id", sessionID, "err", err)
		return Record{}, false
	}
	if !found {
		return Record{}, false
	}

	hydrated := recordFromSnapshot(sessionID, snap)
	hydrated.LastUpdated = r.clock().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.records[sessionID]; ok {
		// Someone wrote while we were reading storage; theirs is newer.
		return existing.clone(), true
	}
	r.records[sessionID] = &hydrated
	return hydrated.clone(), true
}

// Upsert creates or merges the record for ev's session. Merging overwrites
// only the fields ev actually carried; absent optional fields never null
// out previously known values (monotonic enrichment).
func (r *Registry) Upsert(ctx context.Context, sessionID string, ev *event.CallEvent) Record {
	rec, _ := r.Mutate(ctx, sessionID, true, func(rec *Record) {
		for k, v := range ev.Snapshot() {
			rec.Data[k] = v
		}
	})
	return rec
}

// Mutate runs fn on the record under the write lock, creating the record
// first when create is set. The full read-modify-write is one critical
// section, which is what makes compare-and-swap style logic in callers
// safe. The updated snapshot is persisted after the lock is released.
func (r *Registry) Mutate(ctx context.Context, sessionID string, create bool, fn func(rec *Record)) (Record, bool) {
	// Warm the in-memory map from storage first so that fn observes a
	// rehydrated record rather than a false absence.
	r.Get(ctx, sessionID)

	r.mu.Lock()
	rec, ok := r.records[sessionID]
	if !ok {
		if !create {
			r.mu.Unlock()
			return Record{}, false
		}
		rec = &Record{SessionID: sessionID, Data: map[string]string{}}
		r.records[sessionID] = rec
	}
	fn(rec)
	rec.LastUpdated = r.clock().UTC()
	out := rec.clone()
	r.mu.Unlock()

	r.persist(ctx, out)
	return out, true
}

// SetCurrent marks sessionID as the call receiving ambient "current call"
// queries. The previous record stays queryable. The last-call-id key in
// durable storage tracks this pointer.
func (r *Registry) SetCurrent(ctx context.Context, sessionID string) {
	r.mu.Lock()
	r.current = sessionID
	r.mu.Unlock()

	if r.store == nil || sessionID == "" {
		return
	}
	if err := r.store.SetLastCallID(ctx, sessionID); err != nil {
		r.log.Warn("last call id write failed", "session_id", sessionID, "err", err)
	}
}

// Current returns the current session id, if any.
func (r *Registry) Current() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current, r.current != ""
}

// LastCallID returns the current pointer, falling back to the persisted
// last-call-id after a process restart.
func (r *Registry) LastCallID(ctx context.Context) (string, bool) {
	if id, ok := r.Current(); ok {
		return id, true
	}
	if r.store == nil {
		return "", false
	}
	id, found, err := r.store.LastCallID(ctx)
	if err != nil {
		r.log.Warn("last call id read failed", "err", err)
		return "", false
	}
	return id, found
}

// Remove deletes the record and clears the current pointer if it pointed at
// sessionID.
func (r *Registry) Remove(ctx context.Context, sessionID string) {
	r.mu.Lock()
	delete(r.records, sessionID)
	if r.current == sessionID {
		r.current = ""
	}
	r.mu.Unlock()

	if r.store == nil {
		return
	}
	if err := r.store.DeleteSnapshot(ctx, sessionID); err != nil {
		r.log.Warn("snapshot delete failed", "session_id", sessionID, "err", err)
	}
}

// ClearAll wipes the registry and durable storage. Full teardown only.
func (r *Registry) ClearAll(ctx context.Context) {
	r.mu.Lock()
	r.records = map[string]*Record{}
	r.current = ""
	r.mu.Unlock()

	if r.store == nil {
		return
	}
	if err := r.store.Clear(ctx); err != nil {
		r.log.Warn("storage clear failed", "err", err)
	}
}

// SaveVoipToken stores the device push token (advisory, best-effort).
func (r *Registry) SaveVoipToken(ctx context.Context, token string) {
	if r.store == nil || token == "" {
		return
	}
	if err := r.store.SetVoipToken(ctx, token); err != nil {
		r.log.Warn("voip token write failed", "err", err)
	}
}

// VoipToken returns the stored device push token, if any.
func (r *Registry) VoipToken(ctx context.Context) (string, bool) {
	if r.store == nil {
		return "", false
	}
	token, found, err := r.store.VoipToken(ctx)
	if err != nil {
		r.log.Warn("voip token read failed", "err", err)
		return "", false
	}
	return token, found
}

// Stats reports registry occupancy for operability endpoints.
type Stats struct {
	Records        int    `json:"records"`
	CurrentSession string `json:"current_session,omitempty"`
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{Records: len(r.records), CurrentSession: r.current}
}

// persist writes the record snapshot outside any lock. Durability is
// best-effort: in-memory correctness never depends on storage succeeding.
func (r *Registry) persist(ctx context.Context, rec Record) {
	if r.store == nil {
		return
	}
	if err := r.store.SaveSnapshot(ctx, rec.SessionID, rec.snapshot()); err != nil {
		r.log.Warn("snapshot save failed", "session_id", rec.SessionID, "err", err)
	}
}
