package norms

import (
	"context"
	"sync"
	"time"

	"github.com/ahrav/go-owls/internal/domain"
	"github.com/ahrav/go-owls/internal/ports"
)

// MockCoreLookup is a configurable CoreLookup for middleware tests.
type MockCoreLookup struct {
	mu sync.Mutex

	// Response configuration
	Score         domain.NormScore
	Error         error
	SourceName    string
	ResponseDelay time.Duration

	// FailUntilAttempt fails the first N calls with Error, or with a
	// transient LookupError when Error is nil, then succeeds.
	FailUntilAttempt int

	// Tracking
	CallCount      int
	Queries        []Query
	Contexts       []context.Context
	CallTimestamps []time.Time
}

// NewMockCoreLookup returns a mock answering every query with the worked
// example listening comprehension score.
func NewMockCoreLookup() *MockCoreLookup {
	return &MockCoreLookup{
		Score:      domain.NormScore{StandardScore: 105, PercentileRank: "63rd"},
		SourceName: "mock",
	}
}

// Lookup implements CoreLookup.
func (m *MockCoreLookup) Lookup(ctx context.Context, q Query) (domain.NormScore, error) {
	m.mu.Lock()
	m.CallCount++
	call := m.CallCount
	m.Queries = append(m.Queries, q)
	m.Contexts = append(m.Contexts, ctx)
	m.CallTimestamps = append(m.CallTimestamps, time.Now())
	delay, failUntil, injected, score, source := m.ResponseDelay, m.FailUntilAttempt, m.Error, m.Score, m.SourceName
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return domain.NormScore{}, ctx.Err()
		}
	}

	if failUntil > 0 && call <= failUntil {
		if injected != nil {
			return domain.NormScore{}, injected
		}
		return domain.NormScore{}, ports.NewLookupError(source, q.Operation(), ports.ErrServiceUnavailable)
	}
	if injected != nil && failUntil == 0 {
		return domain.NormScore{}, injected
	}
	return score, nil
}

// Source implements CoreLookup.
func (m *MockCoreLookup) Source() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.SourceName
}

// SetError replaces the injected error.
func (m *MockCoreLookup) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Error = err
}

// GetCallCount returns the number of Lookup calls.
func (m *MockCoreLookup) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCount
}

// GetTimeBetweenCalls returns the duration between two calls, or nil if
// either index is out of range.
func (m *MockCoreLookup) GetTimeBetweenCalls(call1, call2 int) *time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if call1 < 0 || call2 < 0 || call1 >= len(m.CallTimestamps) || call2 >= len(m.CallTimestamps) {
		return nil
	}
	d := m.CallTimestamps[call2].Sub(m.CallTimestamps[call1])
	return &d
}
