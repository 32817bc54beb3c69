package ai

import (
	"context"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/hyroxreport/internal/config"
	"github.com/kiranshivaraju/hyroxreport/pkg/models"
)

// RetryPolicy describes exponential backoff: attempt n (0-based) waits
// BaseDelay * Multiplier^(n-1) before running, up to MaxAttempts attempts.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
}

// DefaultRetryPolicy is 3 attempts starting at 1s, doubling.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, Multiplier: 2}

// PolicyFromConfig converts the env config into a RetryPolicy.
func PolicyFromConfig(cfg config.RetryConfig) RetryPolicy {
	return RetryPolicy{MaxAttempts: cfg.MaxAttempts, BaseDelay: cfg.BaseDelay, Multiplier: cfg.Multiplier}
}

// Delay returns the wait before the given retry (1 = first retry).
func (p RetryPolicy) Delay(retry int) time.Duration {
	d := float64(p.BaseDelay)
	for i := 1; i < retry; i++ {
		d *= p.Multiplier
	}
	return time.Duration(d)
}

// Retry calls fn until it succeeds, returns a non-retryable error, the
// attempts are exhausted, or ctx is done. The last error is returned.
func Retry[T any](ctx context.Context, p RetryPolicy, fn func(context.Context) (T, error)) (T, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var (
		out T
		err error
	)
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(p.Delay(attempt))
			select {
			case <-ctx.Done():
				t.Stop()
				return out, err
			case <-t.C:
			}
		}
		out, err = fn(ctx)
		if err == nil || !Retryable(err) || attempt == attempts-1 {
			return out, err
		}
		slog.Warn("oracle call failed, retrying",
			"attempt", attempt+1,
			"max_attempts", attempts,
			"error", err,
		)
	}
	return out, err
}

// RetryingOracle applies a RetryPolicy to every call of the wrapped oracle.
type RetryingOracle struct {
	next   models.Oracle
	policy RetryPolicy
}

// Compile-time interface check.
var _ models.Oracle = (*RetryingOracle)(nil)

// WithRetry wraps o so transport failures are retried under p.
func WithRetry(o models.Oracle, p RetryPolicy) *RetryingOracle {
	return &RetryingOracle{next: o, policy: p}
}

func (r *RetryingOracle) Name() string { return r.next.Name() }

func (r *RetryingOracle) Chat(ctx context.Context, req models.ChatRequest) (models.ChatResponse, error) {
	return Retry(ctx, r.policy, func(ctx context.Context) (models.ChatResponse, error) {
		return r.next.Chat(ctx, req)
	})
}
