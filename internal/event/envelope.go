package event

import (
	"encoding/json"
	"errors"
	"fmt"
)

// EnvelopeKind is the wire-level event discriminator sent by the telephony
// UI provider or a push delivery.
type EnvelopeKind string

const (
	KindVoipToken       EnvelopeKind = "voipToken"
	KindAnswerCall      EnvelopeKind = "answerCall"
	KindEndCall         EnvelopeKind = "endCall"
	KindStartCall       EnvelopeKind = "startCall"
	KindSetMuted        EnvelopeKind = "setMuted"
	KindSetUnMuted      EnvelopeKind = "setUnMuted"
	KindIncomingCall    EnvelopeKind = "incomingCall"
	KindNotificationTap EnvelopeKind = "notificationTap"
)

// Known reports whether this kind is one the core routes. Unknown kinds are
// logged and ignored upstream; they are not an error.
func (k EnvelopeKind) Known() bool {
	switch k {
	case KindVoipToken, KindAnswerCall, KindEndCall, KindStartCall,
		KindSetMuted, KindSetUnMuted, KindIncomingCall, KindNotificationTap:
		return true
	default:
		return false
	}
}

// Envelope is the decoded but not yet validated inbound message.
type Envelope struct {
	Kind EnvelopeKind
	Args map[string]RawValue
}

var (
	ErrBadEnvelope = errors.New("event: malformed envelope")
)

// DecodeEnvelope parses the raw inbound bytes into an Envelope.
// A missing `event` field or an `args` that is absent or not map-shaped
// rejects the whole envelope before field validation is attempted.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var outer any
	if err := json.Unmarshal(raw, &outer); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrBadEnvelope, err)
	}

	top, ok := FromAny(outer).AsMap()
	if !ok {
		return Envelope{}, fmt.Errorf("%w: body is not an object", ErrBadEnvelope)
	}

	kindStr, ok := top["event"].AsString()
	if !ok || kindStr == "" {
		return Envelope{}, fmt.Errorf("%w: missing event kind", ErrBadEnvelope)
	}

	argsRaw, present := top["args"]
	if !present {
		return Envelope{}, fmt.Errorf("%w: missing args", ErrBadEnvelope)
	}
	args, ok := argsRaw.AsMap()
	if !ok {
		return Envelope{}, fmt.Errorf("%w: args is not an object", ErrBadEnvelope)
	}

	return Envelope{Kind: EnvelopeKind(kindStr), Args: args}, nil
}
