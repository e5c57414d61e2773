package application

import (
	"fmt"

	"github.com/ahrav/go-owls/internal/domain"
)

// CompletenessRule decides whether an evaluation has enough responses to be
// scored.
type CompletenessRule string

// Supported completeness rules.
const (
	// CompletenessNone scores any InProgress evaluation.
	CompletenessNone CompletenessRule = "none"

	// CompletenessAnyResponse requires at least one answered item in every
	// subtest.
	CompletenessAnyResponse CompletenessRule = "any_response"

	// CompletenessAllAnswered requires every item of every subtest to be
	// answered.
	CompletenessAllAnswered CompletenessRule = "all_answered"
)

// ParseCompletenessRule converts a configuration value into a rule.
func ParseCompletenessRule(v string) (CompletenessRule, error) {
	switch r := CompletenessRule(v); r {
	case CompletenessNone, CompletenessAnyResponse, CompletenessAllAnswered:
		return r, nil
	default:
		return "", fmt.Errorf("unknown completeness rule %q", v)
	}
}

// String implements fmt.Stringer.
func (r CompletenessRule) String() string { return string(r) }

// Check returns a description of the first unmet requirement, or "" when
// raws satisfies the rule.
func (r CompletenessRule) Check(raws map[domain.Subtest]domain.RawScore) string {
	for _, s := range domain.Subtests {
		raw := raws[s]
		switch r {
		case CompletenessAnyResponse:
			if raw.Answered == 0 {
				return fmt.Sprintf("%s has no responses", s.Label())
			}
		case CompletenessAllAnswered:
			if !raw.Complete() {
				return fmt.Sprintf("%s has %d of %d items answered", s.Label(), raw.Answered, raw.ItemCount)
			}
		}
	}
	return ""
}
