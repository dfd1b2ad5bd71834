package marketplace

import (
	"errors"
	"fmt"
	"time"
)

// ---------------------------------------------------------------------------
// Error Taxonomy
// ---------------------------------------------------------------------------

var (
	// ErrRateLimitTimeout indicates a caller waited past its deadline for a
	// rate-limit token. Not fatal to a run: the caller may retry.
	ErrRateLimitTimeout = errors.New("marketplace: rate limit acquire timed out")

	// ErrRetryExhausted indicates a transient failure persisted past the
	// maximum retry attempts. Fatal to the current page.
	ErrRetryExhausted = errors.New("marketplace: retries exhausted")

	// ErrFatalAPI indicates a non-retryable API failure: HTTP 4xx other than
	// 429, or a payload carrying the explicit error flag.
	ErrFatalAPI = errors.New("marketplace: fatal api error")

	// ErrTimeoutExceeded indicates the wall-clock budget for a run was
	// exceeded. Partial progress is preserved.
	ErrTimeoutExceeded = errors.New("marketplace: sync timeout exceeded")

	// ErrConflictResolution indicates an item that cannot be keyed by
	// (sku, account). The item is counted as failed; the run continues.
	ErrConflictResolution = errors.New("marketplace: item cannot be keyed")

	// ErrSyncAlreadyRunning indicates a run is already marked running for
	// the same (account scope, resource) pair.
	ErrSyncAlreadyRunning = errors.New("marketplace: sync already running for scope and resource")

	// ErrRunNotFound indicates no ledger row exists for the given run ID.
	ErrRunNotFound = errors.New("marketplace: sync run not found")

	// ErrItemNotFound indicates no stored row exists for the requested key.
	ErrItemNotFound = errors.New("marketplace: item not found")
)

// ---------------------------------------------------------------------------
// APIError
// ---------------------------------------------------------------------------

// APIError is the decoded application-level failure returned by the remote
// marketplace. The remote API signals failures either through the HTTP status
// or through an explicit error flag in an HTTP 200 body, so this type is
// constructed from the decoded payload, never inferred from the status alone.
type APIError struct {
	// StatusCode is the HTTP status of the response, 0 for transport errors.
	StatusCode int
	// Messages carries the error strings from the response body.
	Messages []string
	// RetryAfter is the server-provided backoff hint, 0 when absent.
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if len(e.Messages) > 0 {
		return fmt.Sprintf("marketplace: api error (status %d): %s", e.StatusCode, e.Messages[0])
	}
	return fmt.Sprintf("marketplace: api error (status %d)", e.StatusCode)
}

// Retryable reports whether the failure is transient: HTTP 429, any 5xx, or
// a transport-level failure (status 0). Everything else is fatal.
func (e *APIError) Retryable() bool {
	if e.StatusCode == 0 {
		return true
	}
	if e.StatusCode == 429 {
		return true
	}
	return e.StatusCode >= 500
}

// IsRetryable reports whether err (or anything it wraps) is a transient
// failure worth retrying.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	// Non-API errors at this level are transport failures.
	return !errors.Is(err, ErrFatalAPI)
}

// RetryAfterHint extracts the server-provided backoff hint from err, or 0.
func RetryAfterHint(err error) time.Duration {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.RetryAfter
	}
	return 0
}
