package appointment

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeNotFound            Code = "not_found"
	CodeValidation          Code = "validation_error"
	CodeScheduleViolation   Code = "schedule_violation"
	CodeLeadTimeViolation   Code = "lead_time_violation"
	CodeConflict            Code = "conflict"
	CodeProviderUnavailable Code = "provider_unavailable"
	CodeUnauthorized        Code = "unauthorized"
	CodeInternal            Code = "internal_error"
)

// Error is the only error type returned by Service. Message is safe to show
// to patients; Err keeps the underlying cause for logs.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code, so callers can test against the
// sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrNotFound            = &Error{Code: CodeNotFound, Message: "not found"}
	ErrValidation          = &Error{Code: CodeValidation, Message: "invalid request"}
	ErrScheduleViolation   = &Error{Code: CodeScheduleViolation, Message: "outside clinic hours"}
	ErrLeadTimeViolation   = &Error{Code: CodeLeadTimeViolation, Message: "too soon"}
	ErrConflict            = &Error{Code: CodeConflict, Message: "slot is not available"}
	ErrProviderUnavailable = &Error{Code: CodeProviderUnavailable, Message: "calendar provider unavailable"}
	ErrUnauthorized        = &Error{Code: CodeUnauthorized, Message: "appointment does not belong to this patient"}
)

func newError(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf extracts the code of an engine error. Anything else is internal.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
