package match

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a rejected client action.
type ErrorKind uint8

const (
	KindUnknown ErrorKind = iota
	KindValidation
	KindNotFound
	KindConflict
)

// String returns the wire code for the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "VALIDATION"
	case KindNotFound:
		return "NOT_FOUND"
	case KindConflict:
		return "CONFLICT"
	default:
		return "INTERNAL_ERROR"
	}
}

// Error is a rejected action. A rejected action never mutates match state.
type Error struct {
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return e.Msg
}

// Is matches sentinel errors by kind, so errors.Is(err, ErrConflict) works
// for any conflict regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Msg == "" && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrValidation = &Error{Kind: KindValidation}
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrConflict   = &Error{Kind: KindConflict}
)

func validationf(format string, args ...any) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

func notFoundf(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

func conflictf(format string, args ...any) error {
	return &Error{Kind: KindConflict, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err, or KindUnknown for foreign errors.
func KindOf(err error) ErrorKind {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	return KindUnknown
}

// Constructors for callers outside the package (wire decoding, matchmaking).

func NewValidationError(format string, args ...any) error {
	return validationf(format, args...)
}

func NewNotFoundError(format string, args ...any) error {
	return notFoundf(format, args...)
}

func NewConflictError(format string, args ...any) error {
	return conflictf(format, args...)
}
