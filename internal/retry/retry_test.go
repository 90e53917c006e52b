package retry

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudbin/b2sdk-go/internal/b2api"
)

func noopSleep(_ context.Context, _ time.Duration) error { return nil }

func TestDo_SucceedsFirstTry(t *testing.T) {
	t.Parallel()

	d := New(DataPolicy).withSleep(noopSleep)

	calls := 0
	got, err := Do(context.Background(), d, IsRetryableHTTP, func(_ context.Context) (int, error) {
		calls++
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesRetryableThenSucceeds(t *testing.T) {
	t.Parallel()

	d := New(Policy{MaxAttempts: 3, Base: time.Millisecond, Factor: 1.5, Max: time.Second, Jitter: 0}).withSleep(noopSleep)

	calls := 0
	got, err := Do(context.Background(), d, IsRetryableHTTP, func(_ context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, &b2api.Error{Kind: b2api.KindServiceError, Status: 500, RetryableHTTP: true}
		}

		return 7, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 7, got)
	assert.Equal(t, 3, calls)
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	t.Parallel()

	d := New(DataPolicy).withSleep(noopSleep)

	calls := 0
	_, err := Do(context.Background(), d, IsRetryableHTTP, func(_ context.Context) (int, error) {
		calls++
		return 0, &b2api.Error{Kind: b2api.KindBadRequest, Status: 400, RetryableHTTP: false}
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustionReturnsMaxAttemptsExceeded(t *testing.T) {
	t.Parallel()

	d := New(Policy{MaxAttempts: 3, Base: time.Millisecond, Factor: 1.5, Max: time.Second, Jitter: 0}).withSleep(noopSleep)

	_, err := Do(context.Background(), d, IsRetryableHTTP, func(_ context.Context) (int, error) {
		return 0, &b2api.Error{Kind: b2api.KindServiceError, Status: 500, RetryableHTTP: true}
	})

	require.Error(t, err)

	var exceeded *ErrMaxAttemptsExceeded
	require.ErrorAs(t, err, &exceeded)
	assert.Equal(t, 3, exceeded.Attempts)
	assert.Len(t, exceeded.Causes, 3)
}

func TestDo_ContextCancelDuringSleepPropagates(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())

	d := New(Policy{MaxAttempts: 3, Base: time.Millisecond, Factor: 1.5, Max: time.Second, Jitter: 0}).
		withSleep(func(_ context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		})

	_, err := Do(ctx, d, IsRetryableHTTP, func(_ context.Context) (int, error) {
		return 0, &b2api.Error{Kind: b2api.KindServiceError, Status: 500, RetryableHTTP: true}
	})

	require.ErrorIs(t, err, context.Canceled)
}

func TestDo_RetryAfterOverridesSchedule(t *testing.T) {
	t.Parallel()

	var gotWait time.Duration

	d := New(Policy{MaxAttempts: 2, Base: time.Hour, Factor: 1.5, Max: time.Hour, Jitter: 0}).
		withSleep(func(_ context.Context, d time.Duration) error {
			gotWait = d
			return nil
		})

	after := 3 * time.Second
	calls := 0
	_, _ = Do(context.Background(), d, IsRetryableHTTP, func(_ context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, &b2api.Error{Kind: b2api.KindTooManyRequests, Status: http.StatusTooManyRequests, RetryableHTTP: true, RetryAfter: &after}
		}

		return 1, nil
	})

	assert.Equal(t, 3*time.Second, gotWait)
}
