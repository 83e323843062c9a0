package domain

import (
	"time"

	"github.com/google/uuid"
)

// Page load status constants
const (
	LoadStatusLoading   = "loading"
	LoadStatusBackoff   = "backoff"
	LoadStatusSucceeded = "succeeded"
	LoadStatusFailed    = "failed"
)

// maxBackoffShift caps exponential growth at 8x the base delay
const maxBackoffShift = 3

// PageLoadAttempt tracks one user-initiated navigation and its automatic retries
type PageLoadAttempt struct {
	ID  string
	URL string

	Status string

	// Retry handling
	Retries    int
	MaxRetries int
	LastError  string

	Deadline                   time.Time
	CertificateOverrideApplied bool

	StartedAt time.Time
	UpdatedAt time.Time
}

// NewPageLoadAttempt starts a navigation with a fresh retry budget
func NewPageLoadAttempt(url string, maxRetries int, now time.Time) *PageLoadAttempt {
	return &PageLoadAttempt{
		ID:         uuid.NewString(),
		URL:        url,
		Status:     LoadStatusLoading,
		MaxRetries: maxRetries,
		StartedAt:  now,
		UpdatedAt:  now,
	}
}

// CanRetry returns true if another automatic retry is allowed
func (a *PageLoadAttempt) CanRetry() bool {
	return a.Retries < a.MaxRetries
}

// IsTerminal reports whether the navigation is finished one way or another
func (a *PageLoadAttempt) IsTerminal() bool {
	return a.Status == LoadStatusSucceeded || a.Status == LoadStatusFailed
}

// Arm records the timeout deadline of the load that just started
func (a *PageLoadAttempt) Arm(timeout time.Duration, now time.Time) {
	a.Status = LoadStatusLoading
	a.Deadline = now.Add(timeout)
	a.UpdatedAt = now
}

// MarkFailed records a failed load. It returns true when a retry is
// scheduled and false when the budget is exhausted and the failure is final.
func (a *PageLoadAttempt) MarkFailed(reason string, now time.Time) bool {
	a.LastError = reason
	a.Deadline = time.Time{}
	a.UpdatedAt = now

	if a.CanRetry() {
		a.Retries++
		a.Status = LoadStatusBackoff
		return true
	}
	a.Status = LoadStatusFailed
	return false
}

// MarkSucceeded records a successful load
func (a *PageLoadAttempt) MarkSucceeded(now time.Time) {
	a.Status = LoadStatusSucceeded
	a.Deadline = time.Time{}
	a.LastError = ""
	a.UpdatedAt = now
}

// RetryBackoff returns base doubled per retry already made, capped at 8x
func (a *PageLoadAttempt) RetryBackoff(base time.Duration) time.Duration {
	shift := a.Retries - 1
	if shift < 0 {
		shift = 0
	}
	if shift > maxBackoffShift {
		shift = maxBackoffShift
	}
	return base << shift
}
