package norms

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/ahrav/go-owls/internal/domain"
	"github.com/ahrav/go-owls/internal/ports"
)

// retryLookup retries provider faults with jittered exponential backoff.
// Out-of-range answers, open circuits and non-transient errors return
// immediately.
type retryLookup struct {
	next       CoreLookup
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// RetryMiddleware creates middleware that retries transient lookup failures
// up to maxRetries times. A Retry-After hint from the provider raises the
// delay, capped at maxDelay.
func RetryMiddleware(maxRetries int, baseDelay, maxDelay time.Duration) Middleware {
	return func(next CoreLookup) CoreLookup {
		return &retryLookup{
			next:       next,
			maxRetries: maxRetries,
			baseDelay:  baseDelay,
			maxDelay:   maxDelay,
		}
	}
}

// Lookup implements CoreLookup.
func (r *retryLookup) Lookup(ctx context.Context, q Query) (domain.NormScore, error) {
	var lastErr error

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		score, err := r.next.Lookup(ctx, q)
		if err == nil {
			return score, nil
		}
		lastErr = err

		if !isProviderFault(err) || errors.Is(err, ErrCircuitOpen) || ctx.Err() != nil {
			return domain.NormScore{}, err
		}
		if attempt == r.maxRetries {
			break
		}

		delay := r.calculateDelay(attempt)
		if hint, ok := ports.RetryAfterHint(err); ok && hint > delay {
			delay = min(hint, r.maxDelay)
		}

		select {
		case <-ctx.Done():
			return domain.NormScore{}, fmt.Errorf("lookup %s abandoned during backoff: %w", q, lastErr)
		case <-time.After(delay):
		}
	}

	return domain.NormScore{}, fmt.Errorf("lookup %s failed after %d attempts: %w", q, r.maxRetries+1, lastErr)
}

func (r *retryLookup) calculateDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 30 {
		attempt = 30
	}
	// #nosec G115 - attempt is bounded between 0 and 30
	multiplier := 1 << uint(attempt)
	delay := time.Duration(float64(r.baseDelay) * float64(multiplier))

	// Add jitter (±25%)
	// #nosec G404 - Using weak RNG is acceptable for jitter calculation
	jitter := time.Duration(rand.Float64() * float64(delay) * 0.5)
	delay = delay + jitter - (delay / 4)

	if delay > r.maxDelay {
		delay = r.maxDelay
	}
	return delay
}

// Source implements CoreLookup.
func (r *retryLookup) Source() string { return r.next.Source() }
