package calls

import (
	"context"
	"log/slog"

	"callkit-core/internal/dispatch"
	"callkit-core/internal/event"
	"callkit-core/internal/journal"
	"callkit-core/internal/lifecycle"
	"callkit-core/internal/provider"
	"callkit-core/internal/registry"
)

// Terminal-transition reasons recorded in the journal and reported to the
// native layer.
const (
	ReasonEnded      = "ended"
	ReasonSuperseded = "superseded"
)

// Service is the ingestion pipeline: raw payload -> validator -> lifecycle
// transition against the registry -> provider commands and handler dispatch.
//
// It owns no state of its own; the registry is the synchronization point,
// so Service methods are safe to call from any goroutine.
type Service struct {
	validator *event.Validator
	reg       *registry.Registry
	disp      *dispatch.Dispatcher
	ui        provider.TelephonyUI
	journal   *journal.Service
	log       *slog.Logger
}

func NewService(
	validator *event.Validator,
	reg *registry.Registry,
	disp *dispatch.Dispatcher,
	ui provider.TelephonyUI,
	jrnl *journal.Service,
	log *slog.Logger,
) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		validator: validator,
		reg:       reg,
		disp:      disp,
		ui:        ui,
		journal:   jrnl,
		log:       log,
	}
}

// Ingest consumes one raw inbound payload (push delivery or native
// callback). The returned error is non-nil only for malformed input — a bad
// envelope or a rejected required field — which the transport layer surfaces
// to the sender. Stale and unknown events are absorbed here.
func (s *Service) Ingest(ctx context.Context, raw []byte) error {
	env, err := event.DecodeEnvelope(raw)
	if err != nil {
		return err
	}
	if !env.Kind.Known() {
		s.log.Warn("unknown event kind ignored", "kind", string(env.Kind))
		return nil
	}

	switch env.Kind {
	case event.KindVoipToken:
		s.ingestVoipToken(ctx, env.Args)
		return nil

	case event.KindSetMuted, event.KindSetUnMuted:
		ev, rej := s.validator.Validate(env.Args, event.SessionSpecs())
		if rej != nil {
			return rej
		}
		s.applyMute(ctx, ev.SessionID, env.Kind == event.KindSetMuted)
		return nil

	case event.KindNotificationTap:
		ev, rej := s.validator.Validate(env.Args, event.SessionSpecs())
		if rej != nil {
			return rej
		}
		// Enrich the record if the call is known; a tap alone never
		// creates call state.
		s.reg.Mutate(ctx, ev.SessionID, false, func(rec *registry.Record) {
			for k, v := range ev.Snapshot() {
				rec.Data[k] = v
			}
		})
		s.disp.Dispatch(ctx, dispatch.KindNotificationTap, ev)
		return nil

	default:
		specs := event.SessionSpecs()
		if env.Kind == event.KindIncomingCall || env.Kind == event.KindStartCall {
			specs = event.CallSpecs()
		}
		ev, rej := s.validator.Validate(env.Args, specs)
		if rej != nil {
			return rej
		}
		s.Apply(ctx, env.Kind, ev)
		return nil
	}
}

// Apply runs one lifecycle event through the state machine and performs the
// resulting side effects. The read-modify-write against the registry is a
// single critical section; everything after (storage, provider, handlers)
// happens outside the lock.
func (s *Service) Apply(ctx context.Context, kind event.EnvelopeKind, ev *event.CallEvent) (registry.Record, lifecycle.Outcome) {
	class, ok := lifecycle.ClassOf(kind)
	if !ok {
		s.log.Warn("non-lifecycle kind ignored", "kind", string(kind))
		return registry.Record{}, lifecycle.OutcomeStale
	}

	var from lifecycle.State
	outcome := lifecycle.OutcomeStale
	creates := class == lifecycle.ClassIncoming || class == lifecycle.ClassStart

	rec, found := s.reg.Mutate(ctx, ev.SessionID, creates, func(rec *registry.Record) {
		from = rec.State
		next, oc := lifecycle.Next(rec.State, class)
		outcome = oc
		if oc == lifecycle.OutcomeStale {
			return
		}
		rec.State = next
		for k, v := range ev.Snapshot() {
			rec.Data[k] = v
		}
	})
	if !found {
		// Answer/end for a session the registry has never seen.
		s.log.Warn("stale event: unknown session",
			"kind", string(kind), "session_id", ev.SessionID)
		return registry.Record{}, lifecycle.OutcomeStale
	}

	switch outcome {
	case lifecycle.OutcomeApplied:
		// Only a genuinely new call displaces the current one. A replayed
		// or stale incoming never gets here, so it cannot knock out a live
		// call it lost to earlier.
		if creates {
			s.supersedeCurrent(ctx, ev.SessionID)
		}
		s.appendJournal(ctx, ev.SessionID, kind, from, rec.State)
		s.effects(ctx, class, ev)
	case lifecycle.OutcomeIdempotent:
		// Duplicate delivery; side effects already ran on the first
		// application and must not run again.
		s.log.Debug("duplicate event absorbed",
			"kind", string(kind), "session_id", ev.SessionID, "state", rec.State.String())
	case lifecycle.OutcomeStale:
		s.log.Warn("stale event ignored",
			"kind", string(kind), "session_id", ev.SessionID, "state", rec.State.String())
	}

	return rec, outcome
}

// effects performs the post-transition work for one freshly applied event.
func (s *Service) effects(ctx context.Context, class lifecycle.Class, ev *event.CallEvent) {
	switch class {
	case lifecycle.ClassIncoming:
		s.reg.SetCurrent(ctx, ev.SessionID)
		s.disp.Dispatch(ctx, dispatch.KindIncoming, ev)

	case lifecycle.ClassStart:
		// Outgoing call: active immediately, no application callback slot.
		s.reg.SetCurrent(ctx, ev.SessionID)

	case lifecycle.ClassAnswer:
		if err := s.ui.ReportAccepted(ctx, ev.SessionID); err != nil {
			s.log.Warn("provider accept report failed", "session_id", ev.SessionID, "err", err)
		}
		s.disp.Dispatch(ctx, dispatch.KindAccepted, ev)

	case lifecycle.ClassEnd:
		if err := s.ui.ReportEnded(ctx, ev.SessionID, ReasonEnded); err != nil {
			s.log.Warn("provider end report failed", "session_id", ev.SessionID, "err", err)
		}
		s.disp.Dispatch(ctx, dispatch.KindRejected, ev)
	}
}

// supersedeCurrent auto-rejects the previous current session when a new
// call becomes current while it is still live. At most one call is ambient
// at a time; leaving the old one orphaned in PENDING would wedge its UI.
func (s *Service) supersedeCurrent(ctx context.Context, newSessionID string) {
	cur, ok := s.reg.Current()
	if !ok || cur == newSessionID {
		return
	}

	var from lifecycle.State
	superseded := false
	rec, found := s.reg.Mutate(ctx, cur, false, func(rec *registry.Record) {
		from = rec.State
		if rec.State.IsTerminal() {
			return
		}
		rec.State = lifecycle.StateRejected
		superseded = true
	})
	if !found || !superseded {
		return
	}

	s.log.Info("current call superseded", "session_id", cur, "new_session_id", newSessionID)
	s.appendJournalReason(ctx, cur, "superseded", from, rec.State, ReasonSuperseded)
	if err := s.ui.ReportEnded(ctx, cur, ReasonSuperseded); err != nil {
		s.log.Warn("provider end report failed", "session_id", cur, "err", err)
	}
	if supEv, err := event.EventFromSnapshot(rec.Data); err == nil {
		s.disp.Dispatch(ctx, dispatch.KindRejected, supEv)
	}
}

// applyMute toggles the side flag without touching lifecycle state.
func (s *Service) applyMute(ctx context.Context, sessionID string, muted bool) {
	rec, found := s.reg.Mutate(ctx, sessionID, false, func(rec *registry.Record) {
		rec.Muted = muted
	})
	if !found {
		s.log.Warn("mute toggle for unknown session", "session_id", sessionID)
		return
	}
	if rec.State.IsTerminal() {
		s.log.Debug("mute toggle on ended call", "session_id", sessionID)
	}
	if err := s.ui.ReportMuted(ctx, sessionID, muted); err != nil {
		s.log.Warn("provider mute report failed", "session_id", sessionID, "err", err)
	}
}

func (s *Service) ingestVoipToken(ctx context.Context, args map[string]event.RawValue) {
	token, ok := args["token"].AsString()
	if !ok || token == "" {
		s.log.Warn("voip token event without token")
		return
	}
	s.reg.SaveVoipToken(ctx, token)
}

func (s *Service) appendJournal(ctx context.Context, sessionID string, kind event.EnvelopeKind, from, to lifecycle.State) {
	s.appendJournalReason(ctx, sessionID, string(kind), from, to, "")
}

func (s *Service) appendJournalReason(ctx context.Context, sessionID, eventName string, from, to lifecycle.State, reason string) {
	if s.journal == nil {
		return
	}
	err := s.journal.Append(ctx, journal.Entry{
		SessionID: sessionID,
		Event:     eventName,
		FromState: from.String(),
		ToState:   to.String(),
		Reason:    reason,
	})
	if err != nil {
		s.log.Warn("journal append failed", "session_id", sessionID, "err", err)
	}
}

// --- Query surface for the telephony UI provider and the HTTP API ---

// CallState returns the lifecycle state for sessionID (StateUnknown if the
// registry has never seen it).
func (s *Service) CallState(ctx context.Context, sessionID string) lifecycle.State {
	rec, ok := s.reg.Get(ctx, sessionID)
	if !ok {
		return lifecycle.StateUnknown
	}
	return rec.State
}

// Call returns a copy of the full record.
func (s *Service) Call(ctx context.Context, sessionID string) (registry.Record, bool) {
	return s.reg.Get(ctx, sessionID)
}

// CurrentCall returns the record of the ambient current call, if any.
func (s *Service) CurrentCall(ctx context.Context) (registry.Record, bool) {
	id, ok := s.reg.Current()
	if !ok {
		return registry.Record{}, false
	}
	return s.reg.Get(ctx, id)
}

// LastCallID returns the current pointer, surviving process restarts via
// durable storage.
func (s *Service) LastCallID(ctx context.Context) (string, bool) {
	return s.reg.LastCallID(ctx)
}

// ClearCall removes the record for sessionID.
func (s *Service) ClearCall(ctx context.Context, sessionID string) {
	s.reg.Remove(ctx, sessionID)
}

// ClearAll wipes the registry and durable storage.
func (s *Service) ClearAll(ctx context.Context) {
	s.reg.ClearAll(ctx)
}

// Stats reports registry occupancy.
func (s *Service) Stats() registry.Stats {
	return s.reg.Stats()
}

// History returns the journal for one session.
func (s *Service) History(ctx context.Context, sessionID string) ([]journal.Entry, error) {
	if s.journal == nil {
		return nil, nil
	}
	return s.journal.History(ctx, sessionID)
}
