package record

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error kind. Messages are informational;
// callers branch on the code.
type Code string

const (
	CodeInvalidData         Code = "INVALID_DATA"
	CodeActorNotFound       Code = "ACTOR_NOT_FOUND"
	CodeActorNotAgent       Code = "ACTOR_NOT_AGENT"
	CodeActorAlreadyRevoked Code = "ACTOR_ALREADY_REVOKED"
	CodeNoActiveActor       Code = "NO_ACTIVE_ACTOR"
	CodeTaskNotFound        Code = "TASK_NOT_FOUND"
	CodeCycleNotFound       Code = "CYCLE_NOT_FOUND"
	CodeFeedbackNotFound    Code = "FEEDBACK_NOT_FOUND"
	CodeRecordNotFound      Code = "RECORD_NOT_FOUND"
	CodeIllegalTransition   Code = "ILLEGAL_TRANSITION"
	CodeUnauthorized        Code = "UNAUTHORIZED"
	CodePreconditionFailed  Code = "PRECONDITION_FAILED"
	CodeDuplicateAssignment Code = "DUPLICATE_ASSIGNMENT"
	CodeAlreadyResolved     Code = "ALREADY_RESOLVED"
	CodeLinkInconsistent    Code = "LINK_INCONSISTENT"
	CodeChecksumMismatch    Code = "CHECKSUM_MISMATCH"
	CodeSignatureInvalid    Code = "SIGNATURE_INVALID"
	CodeKeyNotFound         Code = "KEY_NOT_FOUND"
	CodePrivateKeyNotFound  Code = "PRIVATE_KEY_NOT_FOUND"
	CodeMissingTransitionTo Code = "MISSING_TRANSITION_TO"
	CodeNotImplemented      Code = "NOT_IMPLEMENTED"
	CodeIOError             Code = "IO_ERROR"
)

// Error carries a stable code alongside a human-readable message and an
// optional wrapped cause.
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

// Is makes errors.Is match on equal codes, so sentinel-style comparisons
// work: errors.Is(err, record.E(record.CodeTaskNotFound, "")).
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// E builds a coded error.
func E(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds a coded error around a cause.
func Wrap(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf extracts the stable code from err, or "" when err carries none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	return CodeOf(err) == code
}
