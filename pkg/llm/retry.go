package llm

import (
	"context"
	"math"
	"time"

	"github.com/forgekit/forge-agent/pkg/agenterrors"
)

// maxRetries bounds the retry loop at 3 retries (4 attempts total), per
// spec §4.2.
const maxRetries = 3

// RetryNotifier lets the retry loop surface a rate-limit countdown to the
// UI before sleeping, and clear it before the next attempt (spec §4.2).
type RetryNotifier interface {
	RateLimitCountdown(remaining time.Duration)
	ClearRateLimitCountdown()
}

// NopRetryNotifier discards countdown notifications.
type NopRetryNotifier struct{}

func (NopRetryNotifier) RateLimitCountdown(time.Duration) {}
func (NopRetryNotifier) ClearRateLimitCountdown()          {}

// WithRetry runs attempt, retrying on retryable agenterrors.Error values per
// spec §4.2's delay computation, grounded in the teacher's rate limiter
// (pkg/llm/rate_limiter.go) but reclassifying errors by agenterrors.Kind
// rather than substring-matching the error text.
func WithRetry(ctx context.Context, notifier RetryNotifier, attempt func(ctx context.Context) (*LLMResponse, error)) (*LLMResponse, error) {
	if notifier == nil {
		notifier = NopRetryNotifier{}
	}

	var lastErr error
	for n := 0; n <= maxRetries; n++ {
		resp, err := attempt(ctx)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		agentErr, ok := agenterrors.As(err)
		if !ok || !agentErr.Retryable() || n == maxRetries {
			return nil, err
		}

		delay := retryDelay(agentErr, n+1)
		notifier.RateLimitCountdown(delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		notifier.ClearRateLimitCountdown()
	}
	return nil, lastErr
}

// retryDelay implements spec §4.2's retry-delay precedence: an explicit
// retry_after, else the soonest positive reset time (clamped to >= 1s with
// a 1s buffer), else exponential backoff.
func retryDelay(e *agenterrors.Error, attempt int) time.Duration {
	if e.RateLimit != nil && e.RateLimit.RetryAfter != nil {
		return *e.RateLimit.RetryAfter
	}
	if d, ok := soonestReset(e.RateLimit); ok {
		if d < time.Second {
			d = time.Second
		}
		return d + time.Second
	}
	return time.Duration(math.Pow(2, float64(attempt-1))) * time.Second
}

func soonestReset(info *agenterrors.RateLimitInfo) (time.Duration, bool) {
	if info == nil {
		return 0, false
	}
	now := time.Now()
	var best time.Duration
	found := false
	for _, reset := range []*time.Time{info.RequestsReset, info.TokensReset} {
		if reset == nil {
			continue
		}
		d := reset.Sub(now)
		if d <= 0 {
			continue
		}
		if !found || d < best {
			best, found = d, true
		}
	}
	return best, found
}
