package event

import "fmt"

// RejectionKind classifies why a required field failed validation.
type RejectionKind string

const (
	RejectMissing    RejectionKind = "missing"
	RejectWrongType  RejectionKind = "wrong_type"
	RejectOutOfRange RejectionKind = "out_of_range"
	RejectBadFormat  RejectionKind = "bad_format"
)

// RejectionError reports one malformed required field. The whole event is
// rejected; no partially-valid CallEvent is ever constructed.
type RejectionError struct {
	Kind  RejectionKind
	Field string

	// Value is a bounded rendering of the offending value, kept for
	// diagnostics only. Never fed back into parsing.
	Value string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("event rejected: field %q %s (got %s)", e.Field, e.Kind, e.Value)
}

func reject(kind RejectionKind, field string, v RawValue) *RejectionError {
	return &RejectionError{Kind: kind, Field: field, Value: v.Describe()}
}
