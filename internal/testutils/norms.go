// Package testutils provides fixtures shared by tests across the module: a
// configurable fake normative lookup, the worked scoring example and a
// contract suite every EvaluationStore implementation must pass.
package testutils

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ahrav/go-owls/internal/domain"
	"github.com/ahrav/go-owls/internal/ports"
)

// ExampleAgeInMonths is the age of the worked example student (6y 3m).
const ExampleAgeInMonths = 75

// ExampleStudent returns the worked example student.
func ExampleStudent() domain.Student {
	return domain.Student{FirstName: "jamie", LastName: "rivera", AgeYears: 6, AgeMonths: 3, School: "Lincoln Elementary"}
}

// SubtestKey indexes FakeNormLookup's subtest table.
type SubtestKey struct {
	AgeInMonths int
	Subtest     domain.Subtest
	Raw         int
}

// FakeNormLookup implements ports.NormativeLookup from in-memory maps with
// configurable failures and call tracking. Missing entries fail with
// NormRangeError, matching the behavior of the real tables.
type FakeNormLookup struct {
	mu sync.Mutex

	Subtest   map[SubtestKey]domain.NormScore
	Composite map[int]domain.NormScore

	// Error, when set, is returned by every call.
	Error error
	// FailUntilCall fails the first N calls with Error (or
	// ErrServiceUnavailable when Error is nil), then behaves normally.
	FailUntilCall int
	// Delay is applied before answering, honoring ctx cancellation.
	Delay time.Duration

	SubtestCalls   int
	CompositeCalls int
}

var _ ports.NormativeLookup = (*FakeNormLookup)(nil)

// NewExampleNormLookup returns a fake holding the worked example entries:
// LC 20 → 105 "63rd", OE 18 → 98 "45th" at 75 months and composite 203 →
// 101 "53rd".
func NewExampleNormLookup() *FakeNormLookup {
	return &FakeNormLookup{
		Subtest: map[SubtestKey]domain.NormScore{
			{ExampleAgeInMonths, domain.ListeningComprehension, 20}: {StandardScore: 105, PercentileRank: "63rd"},
			{ExampleAgeInMonths, domain.OralExpression, 18}:         {StandardScore: 98, PercentileRank: "45th"},
		},
		Composite: map[int]domain.NormScore{
			203: {StandardScore: 101, PercentileRank: "53rd"},
		},
	}
}

// Set adds a subtest entry.
func (f *FakeNormLookup) Set(age int, subtest domain.Subtest, raw int, score domain.NormScore) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Subtest == nil {
		f.Subtest = make(map[SubtestKey]domain.NormScore)
	}
	f.Subtest[SubtestKey{age, subtest, raw}] = score
}

// SetComposite adds a composite entry.
func (f *FakeNormLookup) SetComposite(sum int, score domain.NormScore) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Composite == nil {
		f.Composite = make(map[int]domain.NormScore)
	}
	f.Composite[sum] = score
}

// Calls returns the total number of lookups served.
func (f *FakeNormLookup) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.SubtestCalls + f.CompositeCalls
}

// SubtestScore implements ports.NormativeLookup.
func (f *FakeNormLookup) SubtestScore(ctx context.Context, age int, subtest domain.Subtest, raw int) (domain.NormScore, error) {
	f.mu.Lock()
	f.SubtestCalls++
	calls := f.SubtestCalls + f.CompositeCalls
	score, ok := f.Subtest[SubtestKey{age, subtest, raw}]
	f.mu.Unlock()

	if err := f.behave(ctx, calls); err != nil {
		return domain.NormScore{}, err
	}
	if !ok {
		return domain.NormScore{}, domain.NewSubtestRangeError(subtest, age, raw, "no fixture entry")
	}
	return score, nil
}

// CompositeScore implements ports.NormativeLookup.
func (f *FakeNormLookup) CompositeScore(ctx context.Context, sum int) (domain.NormScore, error) {
	f.mu.Lock()
	f.CompositeCalls++
	calls := f.SubtestCalls + f.CompositeCalls
	score, ok := f.Composite[sum]
	f.mu.Unlock()

	if err := f.behave(ctx, calls); err != nil {
		return domain.NormScore{}, err
	}
	if !ok {
		return domain.NormScore{}, domain.NewCompositeRangeError(sum)
	}
	return score, nil
}

func (f *FakeNormLookup) behave(ctx context.Context, calls int) error {
	f.mu.Lock()
	delay, failUntil, injected := f.Delay, f.FailUntilCall, f.Error
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if failUntil > 0 && calls <= failUntil {
		if injected == nil {
			injected = ports.ErrServiceUnavailable
		}
		return ports.NewLookupError("fake", "lookup", injected)
	}
	if failUntil == 0 && injected != nil {
		return injected
	}
	return nil
}

// SequentialIDs returns a generator yielding prefix-1, prefix-2, ...
func SequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

// FixedClock returns a clock that starts at start and advances by step on
// every call.
func FixedClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	next := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := next
		next = next.Add(step)
		return t
	}
}
