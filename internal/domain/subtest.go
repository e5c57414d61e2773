// Package domain contains pure, dependency-free domain models and types
// for administering and scoring an oral and written language assessment.
package domain

import (
	"fmt"
	"strings"
)

// Subtest identifies one of the two component tests of the assessment.
// Both subtests share the same lifecycle and scoring pipeline; they differ
// only in the item bank they draw from and the normative table column they
// index, which the methods below expose.
type Subtest string

// Supported subtests.
const (
	// ListeningComprehension measures receptive language.
	ListeningComprehension Subtest = "listening_comprehension"

	// OralExpression measures expressive language.
	OralExpression Subtest = "oral_expression"
)

// Subtests lists every subtest in presentation order.
var Subtests = []Subtest{ListeningComprehension, OralExpression}

// Valid reports whether s is a known subtest.
func (s Subtest) Valid() bool {
	return s == ListeningComprehension || s == OralExpression
}

// TableKey returns the short key of the subtest's column in the normative
// tables and item bank files ("lc" or "oe").
func (s Subtest) TableKey() string {
	switch s {
	case ListeningComprehension:
		return "lc"
	case OralExpression:
		return "oe"
	default:
		return ""
	}
}

// Label returns the display name of the subtest.
func (s Subtest) Label() string {
	switch s {
	case ListeningComprehension:
		return "Listening Comprehension"
	case OralExpression:
		return "Oral Expression"
	default:
		return string(s)
	}
}

// String implements fmt.Stringer.
func (s Subtest) String() string { return string(s) }

// ParseSubtest converts an identifier into a Subtest. It accepts the
// canonical names, the table keys and the short names "oral" and
// "listening".
func ParseSubtest(v string) (Subtest, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case string(ListeningComprehension), "lc", "listening":
		return ListeningComprehension, nil
	case string(OralExpression), "oe", "oral":
		return OralExpression, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSubtest, v)
	}
}

// Response is the recorded outcome of one item.
type Response string

// Valid response values.
const (
	ResponseUnanswered Response = "unanswered"
	ResponseCorrect    Response = "correct"
	ResponseIncorrect  Response = "incorrect"
)

// Valid reports whether r is one of the three response values.
func (r Response) Valid() bool {
	switch r {
	case ResponseUnanswered, ResponseCorrect, ResponseIncorrect:
		return true
	default:
		return false
	}
}

// Answered reports whether the item has been scored either way.
func (r Response) Answered() bool {
	return r == ResponseCorrect || r == ResponseIncorrect
}

// String implements fmt.Stringer.
func (r Response) String() string { return string(r) }

// ParseResponse converts a worksheet or API value into a Response.
// Besides the canonical values it accepts the worksheet marks "+" and "-".
func ParseResponse(v string) (Response, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case string(ResponseCorrect), "+":
		return ResponseCorrect, nil
	case string(ResponseIncorrect), "-":
		return ResponseIncorrect, nil
	case string(ResponseUnanswered):
		return ResponseUnanswered, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidResponse, v)
	}
}
