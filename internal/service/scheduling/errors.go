package scheduling

import (
	"errors"
	"fmt"
)

// Kind is the closed set of scheduling rejections. Every Kind is a client
// error; infrastructure failures are returned as plain wrapped errors.
type Kind int

const (
	KindNotFound Kind = iota + 1
	KindUnauthorized
	KindTooLate
	KindInvalidTime
	KindOutsideHours
	KindSlotUnavailable
	KindInvalidState
	KindIdempotencyConflict
)

// Code is the stable machine-readable identifier surfaced to clients.
func (k Kind) Code() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	case KindTooLate:
		return "too_late"
	case KindInvalidTime:
		return "invalid_time"
	case KindOutsideHours:
		return "outside_hours"
	case KindSlotUnavailable:
		return "slot_unavailable"
	case KindInvalidState:
		return "invalid_state"
	case KindIdempotencyConflict:
		return "idempotency_conflict"
	default:
		return "unknown"
	}
}

func (k Kind) String() string { return k.Code() }

type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind.Code(), e.Message)
}

// Is matches any *Error of the same Kind, so callers can write
// errors.Is(err, &scheduling.Error{Kind: scheduling.KindTooLate}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func reject(kind Kind, msg string) error {
	return &Error{Kind: kind, Message: msg}
}

// KindOf extracts the rejection kind, if err is one.
func KindOf(err error) (Kind, bool) {
	var sErr *Error
	if errors.As(err, &sErr) {
		return sErr.Kind, true
	}
	return 0, false
}

// ValidationError reports malformed input that never reached the rules.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}
