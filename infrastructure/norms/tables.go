package norms

import (
	"context"
	"fmt"
	"sort"

	"github.com/ahrav/go-owls/internal/domain"
)

// TablesDocument is the YAML layout of a norm table file:
//
//	version: "2011"
//	subtests:
//	  lc:
//	    - min_age_months: 72
//	      max_age_months: 77
//	      scores:
//	        - raw: 20
//	          standard_score: 105
//	          percentile_rank: 63rd
//	  oe:
//	    - ...
//	composite:
//	  - sum: 203
//	    standard_score: 101
//	    percentile_rank: 53rd
//
// Age bands are inclusive on both ends. Subtest keys are the table keys
// "lc" and "oe".
type TablesDocument struct {
	// Version identifies the norm edition, reported in lookups and logs.
	Version string `yaml:"version" validate:"required"`

	// Subtests holds the age bands of every subtest, keyed by table key.
	Subtests map[string][]AgeBand `yaml:"subtests" validate:"required,min=1,dive,required,min=1,dive"`

	// Composite maps sums of subtest standard scores to composite scores.
	Composite []CompositeEntry `yaml:"composite" validate:"required,min=1,dive"`
}

// AgeBand is the raw-score table of one subtest for an inclusive range of
// ages.
type AgeBand struct {
	MinAgeMonths int          `yaml:"min_age_months" validate:"min=0"`
	MaxAgeMonths int          `yaml:"max_age_months" validate:"gtefield=MinAgeMonths"`
	Scores       []ScoreEntry `yaml:"scores" validate:"required,min=1,dive"`
}

// ScoreEntry maps one raw score to its normed score.
type ScoreEntry struct {
	Raw            int    `yaml:"raw" validate:"min=0"`
	StandardScore  int    `yaml:"standard_score" validate:"min=1"`
	PercentileRank string `yaml:"percentile_rank" validate:"required,percentilerank"`
}

// CompositeEntry maps one sum of standard scores to a composite score.
type CompositeEntry struct {
	Sum            int    `yaml:"sum" validate:"min=0"`
	StandardScore  int    `yaml:"standard_score" validate:"min=1"`
	PercentileRank string `yaml:"percentile_rank" validate:"required,percentilerank"`
}

// Tables is a compiled, read-only norm table set. It implements CoreLookup
// and is safe for concurrent use. Tables returned by TableLoader are shared
// and must not be modified.
type Tables struct {
	version   string
	bands     map[domain.Subtest][]band
	composite map[int]domain.NormScore
}

type band struct {
	minAge, maxAge int
	scores         map[int]domain.NormScore
}

var _ CoreLookup = (*Tables)(nil)

// compileTables checks the semantic rules struct tags cannot express and
// indexes doc for lookup: every subtest present and known, no overlapping
// age bands, unique raw scores within a band and unique composite sums.
func compileTables(doc *TablesDocument) (*Tables, error) {
	verr := domain.NewValidationError("norm tables")
	t := &Tables{
		version:   doc.Version,
		bands:     make(map[domain.Subtest][]band, len(doc.Subtests)),
		composite: make(map[int]domain.NormScore, len(doc.Composite)),
	}

	for key, bands := range doc.Subtests {
		subtest, err := domain.ParseSubtest(key)
		if err != nil {
			verr.AddErrorf("unknown subtest table %q", key)
			continue
		}
		if _, dup := t.bands[subtest]; dup {
			verr.AddErrorf("subtest %s is defined more than once", subtest)
			continue
		}
		compiled := make([]band, 0, len(bands))
		for _, b := range bands {
			scores := make(map[int]domain.NormScore, len(b.Scores))
			for _, e := range b.Scores {
				if _, dup := scores[e.Raw]; dup {
					verr.AddErrorf("subtest %s band %d-%d has raw score %d more than once",
						subtest.TableKey(), b.MinAgeMonths, b.MaxAgeMonths, e.Raw)
				}
				scores[e.Raw] = domain.NormScore{StandardScore: e.StandardScore, PercentileRank: e.PercentileRank}
			}
			compiled = append(compiled, band{minAge: b.MinAgeMonths, maxAge: b.MaxAgeMonths, scores: scores})
		}
		sort.Slice(compiled, func(i, j int) bool { return compiled[i].minAge < compiled[j].minAge })
		for i := 1; i < len(compiled); i++ {
			if compiled[i].minAge <= compiled[i-1].maxAge {
				verr.AddErrorf("subtest %s bands %d-%d and %d-%d overlap", subtest.TableKey(),
					compiled[i-1].minAge, compiled[i-1].maxAge, compiled[i].minAge, compiled[i].maxAge)
			}
		}
		t.bands[subtest] = compiled
	}
	for _, s := range domain.Subtests {
		if _, ok := t.bands[s]; !ok {
			verr.AddErrorf("subtest %s has no table", s.TableKey())
		}
	}

	for _, e := range doc.Composite {
		if _, dup := t.composite[e.Sum]; dup {
			verr.AddErrorf("composite sum %d appears more than once", e.Sum)
		}
		t.composite[e.Sum] = domain.NormScore{StandardScore: e.StandardScore, PercentileRank: e.PercentileRank}
	}

	if err := verr.ErrOrNil(); err != nil {
		return nil, err
	}
	return t, nil
}

// Version returns the norm edition of the tables.
func (t *Tables) Version() string { return t.version }

// Source implements CoreLookup.
func (t *Tables) Source() string { return "file" }

// AgeRange returns the youngest and oldest age in months covered for
// subtest.
func (t *Tables) AgeRange(subtest domain.Subtest) (minAge, maxAge int, ok bool) {
	bands := t.bands[subtest]
	if len(bands) == 0 {
		return 0, 0, false
	}
	return bands[0].minAge, bands[len(bands)-1].maxAge, true
}

// Lookup implements CoreLookup.
func (t *Tables) Lookup(ctx context.Context, q Query) (domain.NormScore, error) {
	if err := ctx.Err(); err != nil {
		return domain.NormScore{}, err
	}
	switch q.Kind {
	case KindSubtest:
		return t.SubtestScore(q.AgeInMonths, q.Subtest, q.RawScore)
	case KindComposite:
		return t.CompositeScore(q.SumStandardScores)
	default:
		return domain.NormScore{}, fmt.Errorf("unknown query kind %q", q.Kind)
	}
}

// SubtestScore returns the entry for raw in the band containing
// ageInMonths. It never clamps: an age outside every band or a raw score
// absent from the band fails with a *domain.NormRangeError.
func (t *Tables) SubtestScore(ageInMonths int, subtest domain.Subtest, raw int) (domain.NormScore, error) {
	bands, ok := t.bands[subtest]
	if !ok {
		return domain.NormScore{}, domain.NewSubtestRangeError(subtest, ageInMonths, raw, "no table for subtest")
	}
	i := sort.Search(len(bands), func(i int) bool { return bands[i].maxAge >= ageInMonths })
	if i == len(bands) || bands[i].minAge > ageInMonths {
		return domain.NormScore{}, domain.NewSubtestRangeError(subtest, ageInMonths, raw,
			fmt.Sprintf("age is outside the table bands (%d-%d months)", bands[0].minAge, bands[len(bands)-1].maxAge))
	}
	score, ok := bands[i].scores[raw]
	if !ok {
		return domain.NormScore{}, domain.NewSubtestRangeError(subtest, ageInMonths, raw,
			fmt.Sprintf("raw score is not listed for ages %d-%d months", bands[i].minAge, bands[i].maxAge))
	}
	return score, nil
}

// CompositeScore returns the composite entry for sum.
func (t *Tables) CompositeScore(sum int) (domain.NormScore, error) {
	score, ok := t.composite[sum]
	if !ok {
		return domain.NormScore{}, domain.NewCompositeRangeError(sum)
	}
	return score, nil
}
