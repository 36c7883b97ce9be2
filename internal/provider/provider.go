package provider

import (
	"context"
	"log/slog"
)

// TelephonyUI is the provider-agnostic interface for the native call and
// notification subsystem (CallKit, ConnectionService, or a test double).
//
// Rules:
// - No platform SDK calls outside provider adapters.
// - Commands are one-way; the core never assumes the provider call is
//   synchronous-safe and tolerates provider-side no-ops on unsupported
//   platforms.
type TelephonyUI interface {
	Name() string

	// ReportAccepted tells the native layer the call is now active, so the
	// system call UI switches from ringing to in-call.
	ReportAccepted(ctx context.Context, sessionID string) error

	// ReportEnded tells the native layer the call is over. reason is an
	// advisory label ("ended", "declined", "superseded", ...).
	ReportEnded(ctx context.Context, sessionID string, reason string) error

	// ReportMuted mirrors a mute toggle into the native call UI.
	ReportMuted(ctx context.Context, sessionID string, muted bool) error
}

// Noop is the provider used on unsupported platforms and in tests. Every
// command succeeds and is logged at debug.
type Noop struct {
	log *slog.Logger
}

func NewNoop(log *slog.Logger) *Noop {
	if log == nil {
		log = slog.Default()
	}
	return &Noop{log: log}
}

func (p *Noop) Name() string { return "noop" }

func (p *Noop) ReportAccepted(ctx context.Context, sessionID string) error {
	p.log.Debug("provider noop: accepted", "session_id", sessionID)
	return nil
}

func (p *Noop) ReportEnded(ctx context.Context, sessionID string, reason string) error {
	p.log.Debug("provider noop: ended", "session_id", sessionID, "reason", reason)
	return nil
}

func (p *Noop) ReportMuted(ctx context.Context, sessionID string, muted bool) error {
	p.log.Debug("provider noop: muted", "session_id", sessionID, "muted", muted)
	return nil
}
