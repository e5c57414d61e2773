package norms

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-owls/internal/domain"
	"github.com/ahrav/go-owls/internal/ports"
)

func TestRetryMiddleware_SucceedsAfterTransientFailures(t *testing.T) {
	mock := NewMockCoreLookup()
	mock.FailUntilAttempt = 2
	wrapped := RetryMiddleware(3, time.Millisecond, 10*time.Millisecond)(mock)

	score, err := wrapped.Lookup(context.Background(), CompositeQuery(203))

	require.NoError(t, err)
	assert.Equal(t, 105, score.StandardScore)
	assert.Equal(t, 3, mock.GetCallCount(), "two failures then one success")
}

func TestRetryMiddleware_GivesUpAfterMaxRetries(t *testing.T) {
	mock := NewMockCoreLookup()
	mock.Error = errUnavailable
	wrapped := RetryMiddleware(2, time.Millisecond, 5*time.Millisecond)(mock)

	_, err := wrapped.Lookup(context.Background(), CompositeQuery(203))

	require.ErrorIs(t, err, ports.ErrServiceUnavailable)
	assert.Contains(t, err.Error(), "failed after 3 attempts")
	assert.True(t, ports.IsTransient(err), "exhausted retries stay transient")
	assert.Equal(t, 3, mock.GetCallCount())
}

func TestRetryMiddleware_DoesNotRetry(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"out of range", domain.NewSubtestRangeError(domain.ListeningComprehension, 90, 20, "")},
		{"permanent lookup error", ports.NewLookupError("mock", "SubtestScore", errors.New("bad request"))},
		{"invalid upstream response", ports.NewLookupError("mock", "SubtestScore", ports.ErrInvalidUpstreamResponse)},
		{"circuit open", ports.NewLookupError("mock", "SubtestScore", ErrCircuitOpen)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := NewMockCoreLookup()
			mock.Error = tt.err
			wrapped := RetryMiddleware(3, time.Millisecond, 5*time.Millisecond)(mock)

			_, err := wrapped.Lookup(context.Background(), SubtestQuery(90, domain.ListeningComprehension, 20))

			assert.Equal(t, tt.err, err, "error must be returned unchanged")
			assert.Equal(t, 1, mock.GetCallCount())
		})
	}
}

func TestRetryMiddleware_HonorsRetryAfter(t *testing.T) {
	hint := 40 * time.Millisecond
	lerr := ports.NewLookupError("mock", "CompositeScore", ports.ErrRateLimited)
	lerr.RetryAfter = &hint

	mock := NewMockCoreLookup()
	mock.Error = lerr
	mock.FailUntilAttempt = 1
	wrapped := RetryMiddleware(1, time.Millisecond, time.Second)(mock)

	_, err := wrapped.Lookup(context.Background(), CompositeQuery(203))
	require.NoError(t, err)
	require.Equal(t, 2, mock.GetCallCount())

	gap := mock.GetTimeBetweenCalls(0, 1)
	require.NotNil(t, gap)
	assert.GreaterOrEqual(t, *gap, hint)
}

func TestRetryMiddleware_CapsRetryAfterAtMaxDelay(t *testing.T) {
	hint := time.Hour
	lerr := ports.NewLookupError("mock", "CompositeScore", ports.ErrServiceUnavailable)
	lerr.RetryAfter = &hint

	mock := NewMockCoreLookup()
	mock.Error = lerr
	mock.FailUntilAttempt = 1
	wrapped := RetryMiddleware(1, time.Millisecond, 20*time.Millisecond)(mock)

	start := time.Now()
	_, err := wrapped.Lookup(context.Background(), CompositeQuery(203))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRetryMiddleware_StopsWhenContextEnds(t *testing.T) {
	mock := NewMockCoreLookup()
	mock.Error = errUnavailable
	wrapped := RetryMiddleware(5, 200*time.Millisecond, time.Second)(mock)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := wrapped.Lookup(ctx, CompositeQuery(203))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "abandoned during backoff")
	assert.Equal(t, 1, mock.GetCallCount())
	assert.Less(t, time.Since(start), 200*time.Millisecond)
}

func TestRetryMiddleware_CalculateDelay(t *testing.T) {
	r := &retryLookup{baseDelay: 100 * time.Millisecond, maxDelay: time.Second}

	for attempt := range 3 {
		nominal := r.baseDelay << attempt
		d := r.calculateDelay(attempt)
		assert.GreaterOrEqual(t, d, nominal*3/4, "attempt %d", attempt)
		assert.LessOrEqual(t, d, nominal*5/4, "attempt %d", attempt)
	}
	assert.Equal(t, time.Second, r.calculateDelay(10), "delay is capped")
	assert.Equal(t, time.Second, r.calculateDelay(1000), "large attempts do not overflow")
}
