package norms

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ahrav/go-owls/internal/domain"
	"github.com/ahrav/go-owls/internal/ports"
)

// ErrCircuitOpen indicates that the circuit breaker rejected a lookup. It
// wraps ports.ErrServiceUnavailable, so callers treat it as transient.
var ErrCircuitOpen = fmt.Errorf("circuit breaker is open: %w", ports.ErrServiceUnavailable)

// CircuitBreakerState represents the current state of a circuit breaker.
type CircuitBreakerState int

// Circuit breaker states.
const (
	// StateClosed allows all lookups through. This is the healthy state.
	StateClosed CircuitBreakerState = iota

	// StateOpen rejects lookups immediately after too many consecutive
	// provider faults.
	StateOpen

	// StateHalfOpen lets a single probe through once the cooldown has
	// elapsed.
	StateHalfOpen
)

// String implements fmt.Stringer.
func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreaker implements the circuit breaker pattern. Only errors for
// which the failure predicate returns true count toward opening the
// circuit; everything else, including out-of-range answers, counts as a
// healthy response.
type CircuitBreaker struct {
	mu               sync.Mutex
	state            CircuitBreakerState
	failureCount     int
	maxFailures      int
	cooldownDuration time.Duration
	openedAt         time.Time
	probing          bool
	now              func() time.Time
	isFailure        func(error) bool
}

// NewCircuitBreaker creates a circuit breaker that opens after maxFailures
// consecutive provider faults and stays open for cooldown.
func NewCircuitBreaker(maxFailures int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		state:            StateClosed,
		maxFailures:      maxFailures,
		cooldownDuration: cooldown,
		now:              time.Now,
		isFailure:        isProviderFault,
	}
}

// Call executes fn through the circuit breaker. When the circuit is open it
// returns ErrCircuitOpen without calling fn. The lock is not held while fn
// runs; in the half-open state only one probe runs at a time.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if err := cb.before(); err != nil {
		return err
	}
	err := fn()
	cb.after(err)
	return err
}

func (cb *CircuitBreaker) before() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.cooldownDuration {
			return ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.probing = true
		return nil
	case StateHalfOpen:
		if cb.probing {
			return ErrCircuitOpen
		}
		cb.probing = true
		return nil
	default:
		return nil
	}
}

func (cb *CircuitBreaker) after(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	failed := err != nil && cb.isFailure(err)
	switch cb.state {
	case StateHalfOpen:
		cb.probing = false
		if failed {
			cb.failureCount++
			cb.trip()
			return
		}
		cb.failureCount = 0
		cb.state = StateClosed
	case StateClosed:
		if failed {
			cb.failureCount++
			if cb.failureCount >= cb.maxFailures {
				cb.trip()
			}
			return
		}
		cb.failureCount = 0
	}
}

func (cb *CircuitBreaker) trip() {
	cb.state = StateOpen
	cb.openedAt = cb.now()
}

// GetState returns the current circuit breaker state.
func (cb *CircuitBreaker) GetState() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// remainingCooldown returns how long an open circuit stays open.
func (cb *CircuitBreaker) remainingCooldown() time.Duration {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != StateOpen {
		return 0
	}
	if d := cb.cooldownDuration - cb.now().Sub(cb.openedAt); d > 0 {
		return d
	}
	return 0
}

type circuitBreakerLookup struct {
	next    CoreLookup
	cb      *CircuitBreaker
	metrics ports.MetricsCollector
}

// CircuitBreakerMiddleware creates middleware that stops calling the
// provider after maxFailures consecutive provider faults and fails fast for
// the cooldown.
func CircuitBreakerMiddleware(maxFailures int, cooldown time.Duration) Middleware {
	return CircuitBreakerMiddlewareWithMetrics(maxFailures, cooldown, nil)
}

// CircuitBreakerMiddlewareWithMetrics is CircuitBreakerMiddleware that also
// reports the circuit state and trips to collector.
func CircuitBreakerMiddlewareWithMetrics(maxFailures int, cooldown time.Duration, collector ports.MetricsCollector) Middleware {
	cb := NewCircuitBreaker(maxFailures, cooldown)
	return func(next CoreLookup) CoreLookup {
		return &circuitBreakerLookup{next: next, cb: cb, metrics: collector}
	}
}

// Lookup implements CoreLookup.
func (c *circuitBreakerLookup) Lookup(ctx context.Context, q Query) (domain.NormScore, error) {
	var score domain.NormScore
	err := c.cb.Call(func() error {
		var err error
		score, err = c.next.Lookup(ctx, q)
		return err
	})

	if errors.Is(err, ErrCircuitOpen) {
		lerr := ports.NewLookupError(c.next.Source(), q.Operation(), err)
		if d := c.cb.remainingCooldown(); d > 0 {
			lerr.RetryAfter = &d
		}
		err = lerr
	}

	if c.metrics != nil {
		labels := map[string]string{"source": c.next.Source()}
		if errors.Is(err, ErrCircuitOpen) {
			c.metrics.RecordCounter("norm_circuit_rejections_total", 1, labels)
		}
		c.metrics.RecordGauge("norm_circuit_state", float64(c.cb.GetState()), labels)
	}
	return score, err
}

// Source implements CoreLookup.
func (c *circuitBreakerLookup) Source() string { return c.next.Source() }
