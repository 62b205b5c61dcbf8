package ingestion_engine

import "time"

// RetryPolicy makes the job retry behavior explicit instead of scattering
// conditionals through the worker: a job whose incremented retry count stays
// within MaxAttempts is re-pushed after Backoff(count); beyond that it is
// left failed permanently and only surfaces through operational stats.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
}

// DefaultRetryPolicy allows 3 retries with exponential backoff (1s, 2s, 4s).
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff: func(attempt int) time.Duration {
			if attempt < 1 {
				attempt = 1
			}
			return time.Second << (attempt - 1)
		},
	}
}

// Exhausted reports whether a job with the given (already incremented) retry
// count is past the ceiling.
func (p RetryPolicy) Exhausted(retryCount int) bool {
	return retryCount > p.MaxAttempts
}
