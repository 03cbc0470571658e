package middleware

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/corvid-labs/agentchain/types"
)

var errFlaky = errors.New("connection reset")

func fastPolicy() *Policy {
	return &Policy{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	r := NewRetryer(fastPolicy(), zap.NewNop())
	attempts := 0

	result, err := DoWithResult(context.Background(), r, func() (string, error) {
		attempts++
		if attempts < 3 {
			return "", errFlaky
		}
		return "sunny", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "sunny", result)
	assert.Equal(t, 3, attempts)
}

func TestRetry_NonRetryableFailsFast(t *testing.T) {
	p := fastPolicy()
	p.RetryableErrors = []error{errFlaky}
	r := NewRetryer(p, zap.NewNop())

	fatal := errors.New("invalid credentials")
	attempts := 0
	err := r.Do(context.Background(), func() error {
		attempts++
		return fatal
	})
	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, attempts)
}

func TestRetry_ExhaustionWrapsLastError(t *testing.T) {
	r := NewRetryer(fastPolicy(), zap.NewNop())
	attempts := 0

	err := r.Do(context.Background(), func() error {
		attempts++
		return errFlaky
	})
	assert.Equal(t, 4, attempts) // first call + 3 retries
	assert.True(t, types.IsCode(err, types.ErrRetryExhausted))
	assert.ErrorIs(t, err, errFlaky)
}

func TestRetry_ContextCancellation(t *testing.T) {
	p := fastPolicy()
	p.InitialDelay = time.Minute
	r := NewRetryer(p, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := r.Do(ctx, func() error { return errFlaky })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetry_DelayGrowsAndCaps(t *testing.T) {
	r := NewRetryer(&Policy{
		MaxRetries:   5,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     40 * time.Millisecond,
		Multiplier:   2.0,
	}, zap.NewNop())

	assert.Equal(t, 10*time.Millisecond, r.delayFor(1))
	assert.Equal(t, 20*time.Millisecond, r.delayFor(2))
	assert.Equal(t, 40*time.Millisecond, r.delayFor(3))
	// Capped from here on.
	assert.Equal(t, 40*time.Millisecond, r.delayFor(4))
}

func TestRetry_OnRetryCallback(t *testing.T) {
	p := fastPolicy()
	var seen []int
	p.OnRetry = func(attempt int, err error, delay time.Duration) {
		seen = append(seen, attempt)
	}
	r := NewRetryer(p, zap.NewNop())

	_ = r.Do(context.Background(), func() error { return errFlaky })
	assert.Equal(t, []int{1, 2, 3}, seen)
}
