package event

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Wire-level field names shared by validation, snapshots and persistence.
const (
	FieldSessionID         = "session_id"
	FieldCallType          = "call_type"
	FieldCallerID          = "caller_id"
	FieldCallerName        = "caller_name"
	FieldOpponents         = "call_opponents"
	FieldPhotoURL          = "photo_url"
	FieldUserInfo          = "user_info"
	FieldBodyText          = "custom_body_text"
	FieldBackgroundColor   = "background_color"
	FieldNotificationRoute = "notification_route"
)

// CallEvent is a validated, immutable inbound call event. Construction is
// all-or-nothing for required fields: instances only come out of a Validator
// (or DecodeEvent on a snapshot a Validator produced earlier).
type CallEvent struct {
	SessionID  string
	CallType   int
	CallerID   int64
	CallerName string

	// OpponentIDs is deduplicated and sorted ascending.
	OpponentIDs []int64

	PhotoURL          string
	UserInfo          map[string]string
	CustomBodyText    string
	BackgroundColor   string
	NotificationRoute string

	present map[string]struct{}
}

// Has reports whether the named field was actually carried by the source
// payload. Registry merging must not null out known fields with absent ones.
func (e *CallEvent) Has(field string) bool {
	_, ok := e.present[field]
	return ok
}

func (e *CallEvent) markPresent(field string) {
	if e.present == nil {
		e.present = map[string]struct{}{}
	}
	e.present[field] = struct{}{}
}

// Snapshot renders the present fields as a flat string map, the form used
// for registry merging, durable persistence and UI recall.
func (e *CallEvent) Snapshot() map[string]string {
	out := map[string]string{}
	if e.Has(FieldSessionID) {
		out[FieldSessionID] = e.SessionID
	}
	if e.Has(FieldCallType) {
		out[FieldCallType] = strconv.Itoa(e.CallType)
	}
	if e.Has(FieldCallerID) {
		out[FieldCallerID] = strconv.FormatInt(e.CallerID, 10)
	}
	if e.Has(FieldCallerName) {
		out[FieldCallerName] = e.CallerName
	}
	if e.Has(FieldOpponents) {
		out[FieldOpponents] = joinIDs(e.OpponentIDs)
	}
	if e.Has(FieldPhotoURL) {
		out[FieldPhotoURL] = e.PhotoURL
	}
	if e.Has(FieldUserInfo) {
		if b, err := json.Marshal(e.UserInfo); err == nil {
			out[FieldUserInfo] = string(b)
		}
	}
	if e.Has(FieldBodyText) {
		out[FieldBodyText] = e.CustomBodyText
	}
	if e.Has(FieldBackgroundColor) {
		out[FieldBackgroundColor] = e.BackgroundColor
	}
	if e.Has(FieldNotificationRoute) {
		out[FieldNotificationRoute] = e.NotificationRoute
	}
	return out
}

// Encode serializes the event for hand-off across the background execution
// boundary. The format is the snapshot map, so both sides share one codec.
func (e *CallEvent) Encode() ([]byte, error) {
	return json.Marshal(e.Snapshot())
}

// DecodeEvent rebuilds a CallEvent from a snapshot produced by Encode or
// loaded from durable storage. Snapshots were validated at ingest, so parse
// failures here indicate corrupt storage and are reported as errors.
func DecodeEvent(b []byte) (*CallEvent, error) {
	var snap map[string]string
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, fmt.Errorf("event: decode snapshot: %w", err)
	}
	return EventFromSnapshot(snap)
}

// EventFromSnapshot rebuilds a CallEvent from a flat field map.
func EventFromSnapshot(snap map[string]string) (*CallEvent, error) {
	e := &CallEvent{}
	for field, v := range snap {
		switch field {
		case FieldSessionID:
			e.SessionID = v
		case FieldCallType:
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("event: snapshot field %s: %w", field, err)
			}
			e.CallType = n
		case FieldCallerID:
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("event: snapshot field %s: %w", field, err)
			}
			e.CallerID = n
		case FieldCallerName:
			e.CallerName = v
		case FieldOpponents:
			ids, ok := parseOpponents(v)
			if !ok {
				return nil, fmt.Errorf("event: snapshot field %s: bad id list %q", field, v)
			}
			e.OpponentIDs = ids
		case FieldPhotoURL:
			e.PhotoURL = v
		case FieldUserInfo:
			var m map[string]string
			if err := json.Unmarshal([]byte(v), &m); err != nil {
				return nil, fmt.Errorf("event: snapshot field %s: %w", field, err)
			}
			e.UserInfo = m
		case FieldBodyText:
			e.CustomBodyText = v
		case FieldBackgroundColor:
			e.BackgroundColor = v
		case FieldNotificationRoute:
			e.NotificationRoute = v
		default:
			// Snapshots may carry fields written by newer builds; skip.
			continue
		}
		e.markPresent(field)
	}
	if e.SessionID == "" {
		return nil, fmt.Errorf("event: snapshot missing %s", FieldSessionID)
	}
	return e, nil
}

func joinIDs(ids []int64) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	return strings.Join(parts, ",")
}
