package vendors

import (
	"errors"
	"fmt"
)

// ErrorCategory defines the normalized vendor failure taxonomy
type ErrorCategory string

const (
	// ErrorTimeout indicates the vendor took too long to respond
	ErrorTimeout ErrorCategory = "timeout"

	// ErrorBadData indicates the vendor returned invalid/malformed data
	ErrorBadData ErrorCategory = "bad_data"

	// ErrorAuthentication indicates credential or permission issues
	ErrorAuthentication ErrorCategory = "authentication"

	// ErrorOutage indicates the vendor is unavailable
	ErrorOutage ErrorCategory = "vendor_outage"

	// ErrorRateLimited indicates too many requests, raised locally or by the vendor
	ErrorRateLimited ErrorCategory = "rate_limited"

	// ErrorCircuitOpen indicates the local breaker refused the call
	ErrorCircuitOpen ErrorCategory = "circuit_open"

	// ErrorInternal indicates an unexpected internal error
	ErrorInternal ErrorCategory = "internal"
)

// Error wraps vendor failures with normalized categorization.
type Error struct {
	Category   ErrorCategory
	Vendor     Name
	Message    string
	Underlying error
	Retryable  bool
	// Reached is true when the request hit the vendor, so a result record is owed.
	Reached bool
}

func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("vendor %s [%s]: %s: %v", e.Vendor, e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("vendor %s [%s]: %s", e.Vendor, e.Category, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Underlying
}

// NewError creates a normalized vendor error.
func NewError(category ErrorCategory, vendor Name, message string, underlying error) *Error {
	retryable := category == ErrorTimeout ||
		category == ErrorOutage ||
		category == ErrorRateLimited ||
		category == ErrorCircuitOpen

	return &Error{
		Category:   category,
		Vendor:     vendor,
		Message:    message,
		Underlying: underlying,
		Retryable:  retryable,
		Reached:    category == ErrorBadData || category == ErrorAuthentication,
	}
}

// IsRetryable checks if an error is worth retrying
func IsRetryable(err error) bool {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Retryable
	}
	return false
}

// CategoryOf extracts the error category from an error
func CategoryOf(err error) ErrorCategory {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Category
	}
	return ErrorInternal
}

// ReachedVendor reports whether err came back from the vendor itself.
func ReachedVendor(err error) bool {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Reached
	}
	return false
}

var ErrNoVendorsAvailable = errors.New("no vendors available for this capability")
