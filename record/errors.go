package record

import (
	"errors"
	"fmt"
)

// Kind is a stable category for programmatic handling of decode failures.
//
// Callers should branch on Kind via errors.As rather than matching error
// strings; messages are for humans and may evolve.
type Kind string

const (
	// KindWrongKind reports a present blob whose discriminator names a
	// different record kind than the caller expected. This is a data
	// integrity concern, not absence, and must never be downgraded to a
	// not-found outcome.
	KindWrongKind Kind = "WrongKind"

	// KindTruncated reports a blob shorter than the layout requires at
	// some field boundary.
	KindTruncated Kind = "Truncated"

	// KindInvalidEnumTag reports an enum, bool or option tag outside the
	// known set. Unknown tags are never mapped to a default variant.
	KindInvalidEnumTag Kind = "InvalidEnumTag"
)

// Error is the structured decode error type.
type Error struct {
	Kind    Kind
	Field   string
	Message string
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Field == "" {
		return fmt.Sprintf("record: %s", e.Message)
	}
	return fmt.Sprintf("record: %s: %s", e.Field, e.Message)
}

func newError(kind Kind, field, format string, args ...any) error {
	return &Error{Kind: kind, Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsKind reports whether err is (or wraps) a *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
