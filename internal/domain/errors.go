package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Common domain errors that can occur during evaluation operations.
var (
	// ErrValidation indicates that caller-supplied input is malformed.
	// Every *ValidationError matches it through errors.Is.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates that an evaluation, task or score result does
	// not exist.
	ErrNotFound = errors.New("not found")

	// ErrPreconditionFailed indicates that an operation is not legal in the
	// evaluation's current lifecycle state.
	ErrPreconditionFailed = errors.New("precondition failed")

	// ErrNothingToUndo indicates that the undo history of an evaluation is
	// empty.
	ErrNothingToUndo = errors.New("nothing to undo")

	// ErrNormTableOutOfRange indicates that an age, raw score or sum of
	// standard scores lies outside the published normative tables.
	ErrNormTableOutOfRange = errors.New("norm table out of range")

	// ErrInvalidResponse indicates a response value other than unanswered,
	// correct or incorrect.
	ErrInvalidResponse = errors.New("invalid response value")

	// ErrInvalidSubtest indicates an unknown subtest identifier.
	ErrInvalidSubtest = errors.New("invalid subtest")
)

// EvaluationError represents a failure tied to a specific evaluation and,
// where relevant, a specific task. It names the violated precondition so
// callers can correct and resubmit.
type EvaluationError struct {
	// EvaluationID identifies the evaluation the operation targeted.
	EvaluationID string

	// TaskID identifies the task involved, if any.
	TaskID string

	// Operation describes what operation was being performed.
	Operation string

	// Reason is a human-readable description of the violated precondition.
	Reason string

	// Err is the underlying error that caused the operation to fail.
	Err error
}

// Error implements the error interface for EvaluationError.
func (e *EvaluationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "evaluation error: operation=%s, evaluation=%s", e.Operation, e.EvaluationID)
	if e.TaskID != "" {
		fmt.Fprintf(&b, ", task=%s", e.TaskID)
	}
	if e.Reason != "" {
		fmt.Fprintf(&b, ", reason=%s", e.Reason)
	}
	fmt.Fprintf(&b, ", err=%v", e.Err)
	return b.String()
}

// Unwrap returns the underlying error, supporting Go 1.13+ error unwrapping.
func (e *EvaluationError) Unwrap() error { return e.Err }

// NewEvaluationError creates a new EvaluationError with the given details.
func NewEvaluationError(evaluationID, operation string, err error) *EvaluationError {
	return &EvaluationError{
		EvaluationID: evaluationID,
		Operation:    operation,
		Err:          err,
	}
}

// WithTask records the task involved in the failure.
func (e *EvaluationError) WithTask(taskID string) *EvaluationError {
	e.TaskID = taskID
	return e
}

// WithReason records the violated precondition.
func (e *EvaluationError) WithReason(format string, args ...any) *EvaluationError {
	e.Reason = fmt.Sprintf(format, args...)
	return e
}

// NormRangeError reports a normative lookup whose inputs fall outside the
// published table domain. It always unwraps to ErrNormTableOutOfRange.
type NormRangeError struct {
	// Table names the table that was consulted ("subtest" or "composite").
	Table string

	// Subtest is set for subtest table lookups.
	Subtest Subtest

	// AgeInMonths is set for subtest table lookups.
	AgeInMonths int

	// RawScore is set for subtest table lookups.
	RawScore int

	// SumStandardScores is set for composite table lookups.
	SumStandardScores int

	// Detail says which input was outside the table.
	Detail string
}

// Error implements the error interface for NormRangeError.
func (e *NormRangeError) Error() string {
	if e.Table == NormTableComposite {
		return fmt.Sprintf("%v: composite table has no entry for sum=%d", ErrNormTableOutOfRange, e.SumStandardScores)
	}
	msg := fmt.Sprintf("%v: subtest=%s, age_months=%d, raw_score=%d",
		ErrNormTableOutOfRange, e.Subtest, e.AgeInMonths, e.RawScore)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Unwrap returns ErrNormTableOutOfRange.
func (e *NormRangeError) Unwrap() error { return ErrNormTableOutOfRange }

// Norm table identifiers used in NormRangeError.
const (
	NormTableSubtest   = "subtest"
	NormTableComposite = "composite"
)

// NewSubtestRangeError reports a subtest lookup outside the table domain.
func NewSubtestRangeError(subtest Subtest, ageInMonths, rawScore int, detail string) *NormRangeError {
	return &NormRangeError{
		Table:       NormTableSubtest,
		Subtest:     subtest,
		AgeInMonths: ageInMonths,
		RawScore:    rawScore,
		Detail:      detail,
	}
}

// NewCompositeRangeError reports a composite lookup outside the table domain.
func NewCompositeRangeError(sum int) *NormRangeError {
	return &NormRangeError{Table: NormTableComposite, SumStandardScores: sum}
}

// ValidationError represents an error that occurred during validation.
// It can contain multiple validation failures.
type ValidationError struct {
	// Entity is the name of the entity that failed validation.
	Entity string

	// Errors contains the list of validation error messages.
	Errors []string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error for %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("validation errors for %s: %v", e.Entity, e.Errors)
}

// Is reports whether target is ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// AddError adds a new error message to the validation error.
func (e *ValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// AddErrorf adds a formatted error message to the validation error.
func (e *ValidationError) AddErrorf(format string, args ...any) {
	e.AddError(fmt.Sprintf(format, args...))
}

// HasErrors returns true if there are any validation errors.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// ErrOrNil returns e when it holds errors and nil otherwise, so callers can
// accumulate failures and return the result directly.
func (e *ValidationError) ErrOrNil() error {
	if e.HasErrors() {
		return e
	}
	return nil
}

// NewValidationError creates a new ValidationError for the given entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{
		Entity: entity,
		Errors: make([]string, 0),
	}
}
