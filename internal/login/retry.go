package login

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// RetryPolicy spaces login attempts by a fixed interval.
// MaxAttempts 0 retries until the context ends.
type RetryPolicy struct {
	MaxAttempts int
	Interval    time.Duration
}

// DefaultRetryPolicy never gives up and waits five minutes between attempts
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 0, Interval: 5 * time.Minute}
}

// Do runs fn until it succeeds, the attempts are used up or ctx is done.
// The last error of fn is returned when attempts run out.
func (p RetryPolicy) Do(ctx context.Context, log *zap.Logger, fn func(context.Context) error) error {
	interval := p.Interval
	if interval <= 0 {
		interval = time.Millisecond
	}
	b := retry.NewConstant(interval)
	if p.MaxAttempts > 0 {
		b = retry.WithMaxRetries(uint64(p.MaxAttempts-1), b)
	}

	attempt := 0
	return retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		if err := fn(ctx); err != nil {
			log.Warn("⚠️ Attempt failed",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", p.MaxAttempts),
				zap.Duration("retry_in", interval),
				zap.Error(err))
			return retry.RetryableError(err)
		}
		return nil
	})
}
