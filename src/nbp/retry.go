package nbp

import (
	"net/http"
	"time"
)

// RetryPolicy decides whether a failed request attempt should be retried.
// It receives the 1-based attempt number, the transport error (nil if a
// response was received) and the HTTP status (0 if none), and returns the
// delay before the next attempt and whether to retry at all.
type RetryPolicy func(attempt int, err error, status int) (time.Duration, bool)

// DefaultRetryPolicy retries transient failures up to maxAttempts total,
// with the delay doubling from baseDelay on every retry.
func DefaultRetryPolicy(maxAttempts int, baseDelay time.Duration) RetryPolicy {
	return func(attempt int, err error, status int) (time.Duration, bool) {
		if attempt >= maxAttempts {
			return 0, false
		}
		if err == nil && !IsTransientStatus(status) {
			return 0, false
		}
		delay := baseDelay
		for i := 1; i < attempt; i++ {
			delay *= 2
		}
		return delay, true
	}
}

// IsTransientStatus reports whether an HTTP status is worth retrying.
// 404 is deliberately not transient: for the NBP API it means "no rate
// published for this date" and is handled by the fallback search instead.
func IsTransientStatus(status int) bool {
	return status == http.StatusRequestTimeout ||
		status == http.StatusTooManyRequests ||
		status >= http.StatusInternalServerError
}
