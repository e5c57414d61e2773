package application

import (
	"context"

	"github.com/ahrav/go-owls/internal/domain"
	"github.com/ahrav/go-owls/internal/ports"
)

// CompositeCalculator derives the composite score from the two subtest
// standard scores. The result depends only on their sum.
type CompositeCalculator struct {
	lookup ports.NormativeLookup
}

// NewCompositeCalculator creates a calculator that consults lookup's
// composite table.
func NewCompositeCalculator(lookup ports.NormativeLookup) *CompositeCalculator {
	return &CompositeCalculator{lookup: lookup}
}

// Combine sums the oral expression and listening comprehension standard
// scores and looks the sum up in the composite table. Lookup errors,
// including out-of-range sums, are returned unchanged.
func (c *CompositeCalculator) Combine(ctx context.Context, oe, lc domain.SubtestScore) (domain.CompositeScore, error) {
	sum := oe.StandardScore + lc.StandardScore
	norm, err := c.lookup.CompositeScore(ctx, sum)
	if err != nil {
		return domain.CompositeScore{}, err
	}
	return domain.CompositeScore{
		SumStandardScores: sum,
		StandardScore:     norm.StandardScore,
		PercentileRank:    norm.PercentileRank,
	}, nil
}
