package llm

import (
	"math"
	"math/rand"
	"time"
)

// RetryPolicy holds backoff parameters for provider retries. The turn loop
// owns the retry loop itself; this type only answers "how long to wait".
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryPolicy returns standard retry settings: two retries with
// exponential backoff capped at a minute.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 2,
		BaseDelay:  2 * time.Second,
		MaxDelay:   60 * time.Second,
	}
}

// Delay calculates the wait before the given 0-based retry attempt using
// exponential backoff with jitter. A RateLimited retry_after hint, when
// larger, takes precedence over the computed backoff.
func (p RetryPolicy) Delay(attempt int, hint time.Duration) time.Duration {
	delay := time.Duration(float64(p.BaseDelay) * math.Pow(2, float64(attempt)))
	delay += time.Duration(rand.Intn(1000)) * time.Millisecond
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	if hint > delay {
		delay = hint
	}
	return delay
}
