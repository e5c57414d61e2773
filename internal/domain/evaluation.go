package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Age limits accepted for a student.
const (
	MaxAgeYears  = 22
	MaxAgeMonths = 11
)

// Field length limits, in characters. They match the column widths of the
// SQL stores so every backend accepts the same records.
const (
	MaxNameLength        = 200
	MaxSchoolLength      = 200
	MaxSubjectLength     = 200
	MaxItemCodeLength    = 32
	MaxDescriptionLength = 500
)

// TooLong reports whether s exceeds max characters.
func TooLong(s string, max int) bool { return utf8.RuneCountInString(s) > max }

// Status is the lifecycle state of an evaluation.
type Status string

// Lifecycle states. Draft → InProgress → Completed; Completed is terminal.
const (
	// StatusDraft means the evaluation record exists but its tasks are not
	// yet populated.
	StatusDraft Status = "draft"

	// StatusInProgress means tasks are populated and responses are editable.
	StatusInProgress Status = "in_progress"

	// StatusCompleted means scores have been calculated. Nothing about the
	// evaluation may change afterwards.
	StatusCompleted Status = "completed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusInProgress, StatusCompleted:
		return true
	default:
		return false
	}
}

// String implements fmt.Stringer.
func (s Status) String() string { return string(s) }

// Student identifies the person being assessed.
type Student struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	AgeYears  int    `json:"ageYears"`
	AgeMonths int    `json:"ageMonths"`
	School    string `json:"school"`
}

// AgeInMonths returns the chronological age used as the normative lookup
// key.
func (s Student) AgeInMonths() int { return s.AgeYears*12 + s.AgeMonths }

// FullName returns "First Last".
func (s Student) FullName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

// AgeLabel formats the age the way worksheets print it, e.g. "6y 3m".
func (s Student) AgeLabel() string {
	return fmt.Sprintf("%dy %dm", s.AgeYears, s.AgeMonths)
}

// Validate checks the student record. Names and school must be non-empty
// after trimming and within their length limits; ages must be within
// [0, MaxAgeYears] and [0, MaxAgeMonths].
func (s Student) Validate() error {
	verr := NewValidationError("student")
	if strings.TrimSpace(s.FirstName) == "" {
		verr.AddError("firstName is required")
	}
	if strings.TrimSpace(s.LastName) == "" {
		verr.AddError("lastName is required")
	}
	if strings.TrimSpace(s.School) == "" {
		verr.AddError("school is required")
	}
	if TooLong(s.FirstName, MaxNameLength) {
		verr.AddErrorf("firstName must be at most %d characters", MaxNameLength)
	}
	if TooLong(s.LastName, MaxNameLength) {
		verr.AddErrorf("lastName must be at most %d characters", MaxNameLength)
	}
	if TooLong(s.School, MaxSchoolLength) {
		verr.AddErrorf("school must be at most %d characters", MaxSchoolLength)
	}
	if s.AgeYears < 0 || s.AgeYears > MaxAgeYears {
		verr.AddErrorf("ageYears must be between 0 and %d, got %d", MaxAgeYears, s.AgeYears)
	}
	if s.AgeMonths < 0 || s.AgeMonths > MaxAgeMonths {
		verr.AddErrorf("ageMonths must be between 0 and %d, got %d", MaxAgeMonths, s.AgeMonths)
	}
	return verr.ErrOrNil()
}

// Normalized returns a copy with surrounding whitespace removed from the
// text fields.
func (s Student) Normalized() Student {
	s.FirstName = strings.TrimSpace(s.FirstName)
	s.LastName = strings.TrimSpace(s.LastName)
	s.School = strings.TrimSpace(s.School)
	return s
}

// Evaluation is one administration of the assessment to one student.
type Evaluation struct {
	// ID uniquely identifies the evaluation.
	ID string `json:"id"`

	// Student is the person being assessed.
	Student Student `json:"student"`

	// Status is the current lifecycle state.
	Status Status `json:"status"`

	// CreatedBy is the subject of the session that created the evaluation.
	CreatedBy string `json:"createdBy,omitempty"`

	// CreatedAt records when the evaluation was created.
	CreatedAt time.Time `json:"createdAt"`

	// CompletedAt is set once, when scores are calculated.
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// AgeInMonths returns the student's age in months.
func (e Evaluation) AgeInMonths() int { return e.Student.AgeInMonths() }

// Completed reports whether the evaluation reached its terminal state.
func (e Evaluation) Completed() bool { return e.Status == StatusCompleted }
