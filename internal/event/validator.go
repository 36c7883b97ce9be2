package event

import (
	"encoding/json"
	"log/slog"
	"sort"
	"strconv"
	"strings"
)

// FieldType selects the validation routine for one payload field.
type FieldType int

const (
	TypeString FieldType = iota
	TypeInt
	TypeOpponents
	TypeUserInfo
)

// FieldSpec declares how one payload field is validated.
//
// Required fields fail closed: any violation rejects the whole event.
// Optional fields fail open: a violation degrades to "field absent" so that
// bad metadata can never block call delivery.
type FieldSpec struct {
	Name     string
	Type     FieldType
	Required bool

	// String length bounds (bytes). Zero means unbounded on that side.
	MinLen int
	MaxLen int

	// Integer range bounds, inclusive. Only checked for TypeInt.
	Min int64
	Max int64
}

// CallSpecs is the full field set required to surface an incoming or
// outgoing call: everything the native call screen needs to render.
func CallSpecs() []FieldSpec {
	return []FieldSpec{
		{Name: FieldSessionID, Type: TypeString, Required: true, MinLen: 1, MaxLen: 500},
		{Name: FieldCallType, Type: TypeInt, Required: true, Min: 0, Max: 10},
		{Name: FieldCallerID, Type: TypeInt, Required: true, Min: 0, Max: int64(^uint64(0) >> 1)},
		{Name: FieldCallerName, Type: TypeString, Required: true, MinLen: 1, MaxLen: 200},
		{Name: FieldOpponents, Type: TypeOpponents, Required: true},
		{Name: FieldPhotoURL, Type: TypeString, MaxLen: 2000},
		{Name: FieldUserInfo, Type: TypeUserInfo},
		{Name: FieldBodyText, Type: TypeString, MaxLen: 1000},
		{Name: FieldBackgroundColor, Type: TypeString, MaxLen: 20},
		{Name: FieldNotificationRoute, Type: TypeString, MaxLen: 200},
	}
}

// SessionSpecs is the reduced field set for events that reference an already
// known call (answer, end, mute, tap): only the session id is mandatory, any
// other recognized field is merged opportunistically.
func SessionSpecs() []FieldSpec {
	specs := CallSpecs()
	for i := range specs {
		if specs[i].Name != FieldSessionID {
			specs[i].Required = false
		}
	}
	return specs
}

// Validator turns untrusted arg maps into CallEvents or precise rejections.
// It is stateless apart from its logger; identical input yields identical
// output, so instances are safe for concurrent use.
type Validator struct {
	log *slog.Logger
}

func NewValidator(log *slog.Logger) *Validator {
	if log == nil {
		log = slog.Default()
	}
	return &Validator{log: log}
}

// Validate checks args against specs and constructs a CallEvent.
// Exactly one of the results is non-nil.
func (v *Validator) Validate(args map[string]RawValue, specs []FieldSpec) (*CallEvent, *RejectionError) {
	e := &CallEvent{}
	for _, spec := range specs {
		raw, present := args[spec.Name]
		if !present || raw.IsNull() {
			if spec.Required {
				return nil, reject(RejectMissing, spec.Name, Null())
			}
			continue
		}

		if rej := v.applyField(e, spec, raw); rej != nil {
			if spec.Required {
				return nil, rej
			}
			// Fail-open: optional metadata degrades to absent.
			v.log.Debug("optional field dropped",
				"field", spec.Name, "reason", string(rej.Kind), "value", rej.Value)
		}
	}
	return e, nil
}

func (v *Validator) applyField(e *CallEvent, spec FieldSpec, raw RawValue) *RejectionError {
	switch spec.Type {
	case TypeString:
		s, ok := raw.AsString()
		if !ok {
			return reject(RejectWrongType, spec.Name, raw)
		}
		if len(s) < spec.MinLen || (spec.MaxLen > 0 && len(s) > spec.MaxLen) {
			return reject(RejectOutOfRange, spec.Name, raw)
		}
		e.setString(spec.Name, s)
		return nil

	case TypeInt:
		n, ok := raw.AsInt()
		if !ok {
			return reject(RejectWrongType, spec.Name, raw)
		}
		if n < spec.Min || n > spec.Max {
			return reject(RejectOutOfRange, spec.Name, raw)
		}
		e.setInt(spec.Name, n)
		return nil

	case TypeOpponents:
		s, ok := raw.AsString()
		if !ok {
			return reject(RejectWrongType, spec.Name, raw)
		}
		// Partial success is not allowed: operating on an incomplete
		// opponent list is worse than rejecting the event.
		ids, ok := parseOpponents(s)
		if !ok {
			return reject(RejectBadFormat, spec.Name, raw)
		}
		e.OpponentIDs = ids
		e.markPresent(FieldOpponents)
		return nil

	case TypeUserInfo:
		// Best-effort always: a broken user_info never rejects the event,
		// even when the field spec marks it required. Malformed input
		// degrades to absent.
		if m, ok := v.parseUserInfo(raw); ok {
			e.UserInfo = m
			e.markPresent(FieldUserInfo)
		}
		return nil

	default:
		return reject(RejectWrongType, spec.Name, raw)
	}
}

func (e *CallEvent) setString(field, s string) {
	switch field {
	case FieldSessionID:
		e.SessionID = s
	case FieldCallerName:
		e.CallerName = s
	case FieldPhotoURL:
		e.PhotoURL = s
	case FieldBodyText:
		e.CustomBodyText = s
	case FieldBackgroundColor:
		e.BackgroundColor = s
	case FieldNotificationRoute:
		e.NotificationRoute = s
	default:
		return
	}
	e.markPresent(field)
}

func (e *CallEvent) setInt(field string, n int64) {
	switch field {
	case FieldCallType:
		e.CallType = int(n)
	case FieldCallerID:
		e.CallerID = n
	default:
		return
	}
	e.markPresent(field)
}

// parseOpponents parses a comma-separated id list: whitespace trimmed,
// empty segments dropped, duplicates collapsed, result sorted ascending.
// An empty source string is an empty set, not an error. Any non-empty
// segment that fails to parse fails the whole field.
func parseOpponents(s string) ([]int64, bool) {
	if s == "" {
		return []int64{}, true
	}
	seen := map[int64]struct{}{}
	out := []int64{}
	for _, seg := range strings.Split(s, ",") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		n, err := strconv.ParseInt(seg, 10, 64)
		if err != nil {
			return nil, false
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, true
}

// parseUserInfo accepts either an embedded JSON object string or an already
// map-shaped value, and flattens it to string->string. Anything else is
// reported absent, logged, never thrown.
func (v *Validator) parseUserInfo(raw RawValue) (map[string]string, bool) {
	if m, ok := raw.AsMap(); ok {
		out := make(map[string]string, len(m))
		for k, mv := range m {
			if s, ok := mv.AsString(); ok {
				out[k] = s
			}
		}
		return out, true
	}

	s, ok := raw.AsString()
	if !ok {
		v.log.Debug("user_info dropped", "reason", "not string or map", "value", raw.Describe())
		return nil, false
	}
	var decoded any
	if err := json.Unmarshal([]byte(s), &decoded); err != nil {
		v.log.Debug("user_info dropped", "reason", "malformed json", "err", err)
		return nil, false
	}
	obj, ok := FromAny(decoded).AsMap()
	if !ok {
		v.log.Debug("user_info dropped", "reason", "json is not an object")
		return nil, false
	}
	out := make(map[string]string, len(obj))
	for k, mv := range obj {
		if str, ok := mv.AsString(); ok {
			out[k] = str
		}
	}
	return out, true
}
