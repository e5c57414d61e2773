package norms

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/ahrav/go-owls/internal/ports"
)

func TestRateLimitMiddleware_AllowsBurst(t *testing.T) {
	mock := NewMockCoreLookup()
	wrapped := RateLimitMiddleware(rate.Limit(1), 3)(mock)
	ctx := context.Background()

	start := time.Now()
	for range 3 {
		_, err := wrapped.Lookup(ctx, CompositeQuery(203))
		require.NoError(t, err)
	}

	assert.Less(t, time.Since(start), 500*time.Millisecond, "burst should not wait")
	assert.Equal(t, 3, mock.GetCallCount())
}

func TestRateLimitMiddleware_PacesBeyondBurst(t *testing.T) {
	mock := NewMockCoreLookup()
	wrapped := RateLimitMiddleware(rate.Limit(20), 1)(mock)
	ctx := context.Background()

	for range 2 {
		_, err := wrapped.Lookup(ctx, CompositeQuery(203))
		require.NoError(t, err)
	}

	gap := mock.GetTimeBetweenCalls(0, 1)
	require.NotNil(t, gap)
	assert.GreaterOrEqual(t, *gap, 40*time.Millisecond)
}

func TestRateLimitMiddleware_WaitBeyondDeadlineIsRateLimited(t *testing.T) {
	mock := NewMockCoreLookup()
	wrapped := RateLimitMiddleware(rate.Limit(0.1), 1)(mock)

	_, err := wrapped.Lookup(context.Background(), CompositeQuery(203))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = wrapped.Lookup(ctx, CompositeQuery(203))
	require.ErrorIs(t, err, ports.ErrRateLimited)
	assert.True(t, ports.IsTransient(err))
	assert.Equal(t, 1, mock.GetCallCount())
}

func TestRateLimitMiddleware_CanceledContext(t *testing.T) {
	mock := NewMockCoreLookup()
	wrapped := RateLimitMiddleware(rate.Limit(1), 1)(mock)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := wrapped.Lookup(ctx, CompositeQuery(203))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, mock.GetCallCount())
}
