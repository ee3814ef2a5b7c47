// Package domainerrors carries the error taxonomy shared by services. Stores return
// sentinel errors; services translate them into coded domain errors that callers can
// branch on without string matching.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies an error for callers deciding whether to retry, surface, or alert.
type Code string

const (
	CodeBadRequest   Code = "bad_request"
	CodeInvalidInput Code = "invalid_input"
	CodeNotFound     Code = "not_found"
	CodeConflict     Code = "conflict"
	CodeInternal     Code = "internal_error"
	CodeTimeout      Code = "timeout"

	// CodeUnexpectedAction is a caller error: the action is not accepted by the current state.
	// Never retried automatically.
	CodeUnexpectedAction Code = "unexpected_action_for_state"
	// CodeConcurrentStateChange is transient: another transition committed first. Safe to
	// retry the whole operation.
	CodeConcurrentStateChange Code = "concurrent_state_change"
	// CodeDataIntegrity marks persisted data that violates a structural invariant.
	CodeDataIntegrity Code = "data_integrity"
	// CodeAssertion marks a violated precondition inside the core (a bug, not user input).
	CodeAssertion Code = "assertion_error"
	// CodeVendor is a hard vendor failure that aborted an async phase.
	CodeVendor Code = "vendor_error"
)

// Error is a coded domain error. Message is safe to surface; the wrapped error is not.
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

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// HasCode reports whether any error in the chain carries code.
func HasCode(err error, code Code) bool {
	var de *Error
	for err != nil {
		if errors.As(err, &de) {
			if de.Code == code {
				return true
			}
			err = de.Err
			continue
		}
		return false
	}
	return false
}

// CodeOf returns the outermost code in the chain, or CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// IsRetryable reports whether the error is transient and the whole operation may be resubmitted.
func IsRetryable(err error) bool {
	return HasCode(err, CodeConcurrentStateChange) || HasCode(err, CodeTimeout)
}
