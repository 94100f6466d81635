package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithRetrySucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), "place_order", RetryPolicy{Attempts: 3}, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetryExhaustsAttempts(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := WithRetry(context.Background(), "get_ticker", RetryPolicy{Attempts: 3}, func(ctx context.Context) error {
		calls++
		return boom
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.True(t, errors.Is(err, boom), "wrapped error must preserve the cause")
}

func TestWithRetryHonorsContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := WithRetry(ctx, "probe", RetryPolicy{Attempts: 5, Delay: time.Second}, func(ctx context.Context) error {
		calls++
		return errors.New("never succeeds")
	})

	require.Error(t, err)
	assert.Equal(t, 0, calls)
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := NewBreaker(3, time.Minute, 10*time.Minute)

	b.Failure()
	b.Failure()
	assert.False(t, b.Paused())
	assert.Equal(t, 2, b.ConsecutiveFailures())

	b.Failure()
	assert.True(t, b.Paused())
	assert.Equal(t, 3, b.ConsecutiveFailures(), "streak stays visible while paused")
}

func TestBreakerBackoffDoubles(t *testing.T) {
	b := NewBreaker(1, time.Minute, 10*time.Minute)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return base }

	b.Failure()
	first := b.pausedUntil.Sub(base)

	b.Resume()
	b.Failure()
	second := b.pausedUntil.Sub(base)

	assert.Equal(t, time.Minute, first)
	assert.Equal(t, 2*time.Minute, second)
}

func TestBreakerBackoffCapped(t *testing.T) {
	b := NewBreaker(1, time.Minute, 4*time.Minute)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return base }

	for i := 0; i < 6; i++ {
		b.Failure()
		b.Resume()
	}
	b.Failure()

	assert.Equal(t, 4*time.Minute, b.pausedUntil.Sub(base))
}

func TestBreakerSuccessClosesFully(t *testing.T) {
	b := NewBreaker(2, time.Minute, 10*time.Minute)
	b.Failure()
	b.Failure()
	require.True(t, b.Paused())

	b.Success()
	assert.False(t, b.Paused())
	assert.Equal(t, 0, b.ConsecutiveFailures())
}
