package domain

import "errors"

// Common domain errors
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidInput  = errors.New("invalid input")

	// Download record errors
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrTerminalState          = errors.New("record is in a terminal state")
	ErrNotActive              = errors.New("download is not active")
	ErrStaleProgress          = errors.New("progress update would decrease received bytes")

	// Navigation errors
	ErrLoadTimeout       = errors.New("page load timed out")
	ErrRetriesExhausted  = errors.New("automatic retries exhausted")
	ErrCertificateReject = errors.New("certificate rejected")

	// Cookie persistence errors
	ErrCorruptCookieFile = errors.New("cookie file is corrupt")
	ErrMalformedCookie   = errors.New("malformed cookie record")

	// Proxy errors
	ErrProxyUnreachable = errors.New("anonymization proxy is unreachable")

	// Tab errors
	ErrLastTab = errors.New("cannot close the last tab")
)

// SkippableError represents an error that can be logged and skipped.
// Processing can continue with the next item when this error occurs.
type SkippableError struct {
	Err     error
	Context string
}

// Error returns the error message
func (e *SkippableError) Error() string {
	if e.Context != "" {
		if e.Err != nil {
			return e.Context + ": " + e.Err.Error()
		}
		return e.Context
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "skippable error"
}

// Unwrap returns the underlying error
func (e *SkippableError) Unwrap() error {
	return e.Err
}

// NewSkippableError creates a new skippable error
func NewSkippableError(err error, context string) *SkippableError {
	return &SkippableError{Err: err, Context: context}
}

// IsSkippable returns true if the error can be skipped
func IsSkippable(err error) bool {
	var se *SkippableError
	return errors.As(err, &se)
}
