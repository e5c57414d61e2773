package domain

import (
	"fmt"
	"maps"
	"regexp"
	"time"
)

// MaxPercentileRankLen is the longest percentile rank label accepted.
const MaxPercentileRankLen = 10

var percentileRankPattern = regexp.MustCompile(`^[<>]?[0-9]+(\.[0-9]+)?(st|nd|rd|th)?$`)

// ValidPercentileRank reports whether v is a percentile rank label as printed
// in the norm tables: an optional "<" or ">" bound, a number and an optional
// ordinal suffix, e.g. "63rd", "<0.1", ">99.9".
func ValidPercentileRank(v string) bool {
	return len(v) <= MaxPercentileRankLen && percentileRankPattern.MatchString(v)
}

// NormScore is one normative table entry: an age-normed standard score and
// the percentile rank printed next to it (e.g. "63rd", "<0.1", ">99.9").
type NormScore struct {
	StandardScore  int    `json:"standardScore"`
	PercentileRank string `json:"percentileRank"`
}

// SubtestScore is the scored block of one subtest.
type SubtestScore struct {
	RawScore       int    `json:"rawScore"`
	ItemCount      int    `json:"itemCount"`
	StandardScore  int    `json:"standardScore"`
	PercentileRank string `json:"percentileRank"`
}

// CompositeScore is the scored block of the composite.
// SumStandardScores is exactly OE.StandardScore + LC.StandardScore.
type CompositeScore struct {
	SumStandardScores int    `json:"sumStandardScores"`
	StandardScore     int    `json:"standardScore"`
	PercentileRank    string `json:"percentileRank"`
}

// ScoreResult is the frozen outcome of scoring an evaluation. It is created
// once, on the first successful calculation, and never modified.
type ScoreResult struct {
	EvaluationID string                   `json:"evaluationId"`
	PerSubtest   map[Subtest]SubtestScore `json:"perSubtest"`
	Composite    CompositeScore           `json:"composite"`
	ComputedAt   time.Time                `json:"computedAt"`
}

// Clone returns a copy of r that shares no map with it.
func (r ScoreResult) Clone() ScoreResult {
	r.PerSubtest = maps.Clone(r.PerSubtest)
	return r
}

// NewSubtestScore joins a raw score with its normative entry.
func NewSubtestScore(raw RawScore, norm NormScore) SubtestScore {
	return SubtestScore{
		RawScore:       raw.Raw,
		ItemCount:      raw.ItemCount,
		StandardScore:  norm.StandardScore,
		PercentileRank: norm.PercentileRank,
	}
}

// Validate checks the structural invariants of a score result.
func (r ScoreResult) Validate() error {
	verr := NewValidationError("score result")
	if r.EvaluationID == "" {
		verr.AddError("evaluationId is required")
	}
	sum := 0
	for _, s := range Subtests {
		block, ok := r.PerSubtest[s]
		if !ok {
			verr.AddErrorf("missing subtest block %s", s)
			continue
		}
		if block.RawScore < 0 || block.RawScore > block.ItemCount {
			verr.AddErrorf("subtest %s raw score %d outside [0, %d]", s, block.RawScore, block.ItemCount)
		}
		sum += block.StandardScore
	}
	if len(r.PerSubtest) != len(Subtests) {
		verr.AddErrorf("expected %d subtest blocks, got %d", len(Subtests), len(r.PerSubtest))
	}
	if r.Composite.SumStandardScores != sum {
		verr.AddError(fmt.Sprintf("composite sum %d does not equal subtest sum %d", r.Composite.SumStandardScores, sum))
	}
	if r.ComputedAt.IsZero() {
		verr.AddError("computedAt is required")
	}
	return verr.ErrOrNil()
}
