package ports

import (
	"context"
	"time"

	"github.com/ahrav/go-owls/internal/domain"
)

// EvaluationFilter narrows ListEvaluations.
type EvaluationFilter struct {
	// Status restricts the result to one lifecycle state. Empty means all.
	Status domain.Status

	// CreatedBy restricts the result to evaluations created by one subject.
	// Empty means all.
	CreatedBy string

	// Limit caps the number of results. Zero means no limit.
	Limit int
}

// Matches reports whether ev passes the filter, ignoring Limit.
func (f EvaluationFilter) Matches(ev domain.Evaluation) bool {
	if f.Status != "" && ev.Status != f.Status {
		return false
	}
	if f.CreatedBy != "" && ev.CreatedBy != f.CreatedBy {
		return false
	}
	return true
}

// EvaluationStore is the durable record of evaluations, tasks and score
// results. Implementations return domain.ErrNotFound for unknown records and
// domain.ErrPreconditionFailed when a conditional write finds the evaluation
// in the wrong lifecycle state; every other failure is a *StoreError.
//
// Status guards are enforced inside the store as compare-and-set writes so
// that a write can never land on an evaluation that completed concurrently.
type EvaluationStore interface {
	// CreateEvaluation inserts a new evaluation. Its status must be Draft.
	CreateEvaluation(ctx context.Context, ev domain.Evaluation) error

	// PopulateTasks inserts the task set of a Draft evaluation and moves it
	// to InProgress in one atomic step.
	PopulateTasks(ctx context.Context, evaluationID string, tasks []domain.Task) error

	// DeleteDraft removes an evaluation that never left Draft, together with
	// any tasks written for it.
	DeleteDraft(ctx context.Context, evaluationID string) error

	// GetEvaluation returns one evaluation.
	GetEvaluation(ctx context.Context, evaluationID string) (domain.Evaluation, error)

	// ListEvaluations returns evaluations matching filter, newest first.
	ListEvaluations(ctx context.Context, filter EvaluationFilter) ([]domain.Evaluation, error)

	// ListTasks returns the tasks of an evaluation ordered by subtest and
	// position.
	ListTasks(ctx context.Context, evaluationID string) ([]domain.Task, error)

	// GetTask returns one task. A task that exists but belongs to another
	// evaluation is reported as not found.
	GetTask(ctx context.Context, evaluationID, taskID string) (domain.Task, error)

	// UpdateTaskResponse writes a response and timestamp, provided the
	// owning evaluation is InProgress.
	UpdateTaskResponse(ctx context.Context, evaluationID, taskID string, response domain.Response, at time.Time) error

	// CompleteEvaluation persists result and moves the evaluation from
	// InProgress to Completed with CompletedAt = result.ComputedAt, all or
	// nothing.
	CompleteEvaluation(ctx context.Context, result domain.ScoreResult) error

	// GetScoreResult returns the stored score result of a completed
	// evaluation.
	GetScoreResult(ctx context.Context, evaluationID string) (domain.ScoreResult, error)

	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error

	// Close releases the store's resources.
	Close() error
}
