package ports

import (
	"context"

	"github.com/ahrav/go-owls/internal/domain"
)

// NormativeLookup maps raw scores to age-normed scores. Inputs are passed
// unclamped; anything outside the published table domain must fail with an
// error wrapping domain.ErrNormTableOutOfRange rather than being clamped or
// extrapolated. Connectivity failures are reported as *LookupError.
type NormativeLookup interface {
	// SubtestScore returns the standard score and percentile rank for a raw
	// score on subtest at the given age.
	SubtestScore(ctx context.Context, ageInMonths int, subtest domain.Subtest, rawScore int) (domain.NormScore, error)

	// CompositeScore returns the composite standard score and percentile
	// rank for a sum of subtest standard scores.
	CompositeScore(ctx context.Context, sumStandardScores int) (domain.NormScore, error)
}
