package middleware

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/corvid-labs/agentchain/types"
)

// Policy configures the exponential-backoff retry wrapper for tool calls.
type Policy struct {
	// MaxRetries is the number of attempts after the first. 0 disables retry.
	MaxRetries int
	// InitialDelay is the backoff before the first retry.
	InitialDelay time.Duration
	// MaxDelay caps the computed backoff.
	MaxDelay time.Duration
	// Multiplier grows the delay per attempt.
	Multiplier float64
	// Jitter randomizes each delay by up to ±25%.
	Jitter bool
	// RetryableErrors restricts retries to errors matching this set via
	// errors.Is. Empty means every error is retryable. Errors carrying an
	// explicit retryable flag are honored either way.
	RetryableErrors []error
	// OnRetry is called before each retry sleep.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultPolicy suits most external tool RPCs.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxRetries:   3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Retryer runs tool calls under a backoff policy.
type Retryer struct {
	policy *Policy
	logger *zap.Logger
}

// NewRetryer validates the policy and returns a retryer.
func NewRetryer(policy *Policy, logger *zap.Logger) *Retryer {
	if policy == nil {
		policy = DefaultPolicy()
	}
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	if policy.InitialDelay <= 0 {
		policy.InitialDelay = time.Second
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = 30 * time.Second
	}
	if policy.Multiplier < 1.0 {
		policy.Multiplier = 2.0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retryer{policy: policy, logger: logger.With(zap.String("component", "retryer"))}
}

// Do runs fn, retrying per the policy. Non-retryable errors propagate
// immediately; exhausting the budget returns RETRY_EXHAUSTED wrapping the
// last error.
func (r *Retryer) Do(ctx context.Context, fn func() error) error {
	_, err := DoWithResult(ctx, r, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoWithResult is Do for calls that produce a value.
func DoWithResult[T any](ctx context.Context, r *Retryer, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= r.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.delayFor(attempt)
			r.logger.Debug("retrying tool call",
				zap.Int("attempt", attempt),
				zap.Int("max_retries", r.policy.MaxRetries),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
			if r.policy.OnRetry != nil {
				r.policy.OnRetry(attempt, lastErr, delay)
			}
			select {
			case <-ctx.Done():
				return zero, fmt.Errorf("retry cancelled: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !r.retryable(err) {
			return zero, err
		}
	}

	return zero, types.NewError(types.ErrRetryExhausted,
		fmt.Sprintf("gave up after %d retries", r.policy.MaxRetries)).WithCause(lastErr)
}

// delayFor computes min(initial * multiplier^(attempt-1), max) with optional
// jitter.
func (r *Retryer) delayFor(attempt int) time.Duration {
	d := float64(r.policy.InitialDelay) * math.Pow(r.policy.Multiplier, float64(attempt-1))
	if d > float64(r.policy.MaxDelay) {
		d = float64(r.policy.MaxDelay)
	}
	if r.policy.Jitter {
		d *= 0.75 + rand.Float64()*0.5
	}
	return time.Duration(d)
}

// retryable applies the policy's error filter.
func (r *Retryer) retryable(err error) bool {
	if types.IsRetryable(err) {
		return true
	}
	if len(r.policy.RetryableErrors) == 0 {
		return true
	}
	for _, target := range r.policy.RetryableErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
