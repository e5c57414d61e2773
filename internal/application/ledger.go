package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ahrav/go-owls/internal/domain"
	"github.com/ahrav/go-owls/internal/ports"
)

// UndoEntry is one step of an evaluation's undo history.
type UndoEntry struct {
	TaskID           string          `json:"taskId"`
	PreviousResponse domain.Response `json:"previousResponse"`
}

// ResponseLedger records item responses and keeps a per-evaluation undo
// history. The history lives for the lifetime of the process and is cleared
// when the evaluation completes.
//
// Undo writes the previous response straight to the store and never pushes
// an entry of its own, so repeated undo calls drain the history and stop.
type ResponseLedger struct {
	lifecycle *LifecycleManager
	store     ports.EvaluationStore
	locks     *evaluationLocks
	now       func() time.Time
	logger    *slog.Logger
	metrics   ports.MetricsCollector

	mu      sync.Mutex
	history map[string][]UndoEntry
}

func newResponseLedger(lifecycle *LifecycleManager, store ports.EvaluationStore, locks *evaluationLocks, o options) *ResponseLedger {
	l := &ResponseLedger{
		lifecycle: lifecycle,
		store:     store,
		locks:     locks,
		now:       o.now,
		logger:    o.logger.With("component", "ledger"),
		metrics:   o.metrics,
		history:   make(map[string][]UndoEntry),
	}
	lifecycle.OnCompleted(l.clear)
	return l
}

// RecordResponse sets the response of one task.
//
// It fails with a ValidationError for an unknown response value, NotFound
// when the task does not belong to the evaluation and PreconditionFailed
// unless the evaluation is InProgress. Recording the value the task already
// holds changes nothing and adds no history, so retries are safe.
func (l *ResponseLedger) RecordResponse(ctx context.Context, evaluationID, taskID string, response domain.Response) (domain.Task, error) {
	if !response.Valid() {
		verr := domain.NewValidationError("response")
		verr.AddErrorf("response must be one of %s, %s or %s, got %q",
			domain.ResponseUnanswered, domain.ResponseCorrect, domain.ResponseIncorrect, response)
		return domain.Task{}, verr
	}

	release, err := l.locks.acquire(ctx, evaluationID)
	if err != nil {
		return domain.Task{}, err
	}
	defer release()

	if _, err := l.lifecycle.requireEditable(ctx, evaluationID, OpRecordResponse); err != nil {
		return domain.Task{}, withTask(err, taskID)
	}

	task, err := l.store.GetTask(ctx, evaluationID, taskID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Task{}, domain.NewEvaluationError(evaluationID, OpRecordResponse, domain.ErrNotFound).
				WithTask(taskID).
				WithReason("task does not belong to evaluation")
		}
		return domain.Task{}, err
	}

	if task.Response == response {
		return task, nil
	}

	at := l.now()
	if err := l.store.UpdateTaskResponse(ctx, evaluationID, taskID, response, at); err != nil {
		return domain.Task{}, l.writeError(err, evaluationID, taskID, OpRecordResponse)
	}

	l.push(evaluationID, UndoEntry{TaskID: taskID, PreviousResponse: task.Response})

	l.metrics.RecordCounter("responses_recorded_total", 1, map[string]string{
		"subtest":  task.Subtest.TableKey(),
		"response": string(response),
	})
	l.logger.DebugContext(ctx, "response recorded",
		"evaluation_id", evaluationID,
		"task_id", taskID,
		"previous", task.Response,
		"response", response)

	task.Response = response
	task.LastModifiedAt = at
	return task, nil
}

// UndoLast restores the most recently replaced response of the evaluation
// and returns the entry that was applied. It fails with NothingToUndo when
// the history is empty and PreconditionFailed unless the evaluation is
// InProgress.
func (l *ResponseLedger) UndoLast(ctx context.Context, evaluationID string) (UndoEntry, error) {
	release, err := l.locks.acquire(ctx, evaluationID)
	if err != nil {
		return UndoEntry{}, err
	}
	defer release()

	if _, err := l.lifecycle.requireEditable(ctx, evaluationID, OpUndoLast); err != nil {
		return UndoEntry{}, err
	}

	entry, ok := l.peek(evaluationID)
	if !ok {
		return UndoEntry{}, domain.NewEvaluationError(evaluationID, OpUndoLast, domain.ErrNothingToUndo).
			WithReason("undo history is empty")
	}

	if err := l.store.UpdateTaskResponse(ctx, evaluationID, entry.TaskID, entry.PreviousResponse, l.now()); err != nil {
		return UndoEntry{}, l.writeError(err, evaluationID, entry.TaskID, OpUndoLast)
	}
	l.pop(evaluationID)

	l.metrics.RecordCounter("undo_total", 1, nil)
	l.logger.DebugContext(ctx, "response restored",
		"evaluation_id", evaluationID,
		"task_id", entry.TaskID,
		"restored", entry.PreviousResponse)
	return entry, nil
}

// Depth returns the number of undo entries held for an evaluation.
func (l *ResponseLedger) Depth(evaluationID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.history[evaluationID])
}

func (l *ResponseLedger) push(evaluationID string, e UndoEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.history[evaluationID] = append(l.history[evaluationID], e)
}

func (l *ResponseLedger) peek(evaluationID string) (UndoEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	h := l.history[evaluationID]
	if len(h) == 0 {
		return UndoEntry{}, false
	}
	return h[len(h)-1], true
}

func (l *ResponseLedger) pop(evaluationID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	h := l.history[evaluationID]
	if len(h) == 0 {
		return
	}
	if len(h) == 1 {
		delete(l.history, evaluationID)
		return
	}
	l.history[evaluationID] = h[:len(h)-1]
}

func (l *ResponseLedger) clear(evaluationID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.history, evaluationID)
}

// writeError translates store failures of a guarded write.
func (l *ResponseLedger) writeError(err error, evaluationID, taskID, op string) error {
	switch {
	case errors.Is(err, domain.ErrPreconditionFailed):
		return domain.NewEvaluationError(evaluationID, op, domain.ErrPreconditionFailed).
			WithTask(taskID).
			WithReason("evaluation is no longer %s", domain.StatusInProgress)
	case errors.Is(err, domain.ErrNotFound):
		return domain.NewEvaluationError(evaluationID, op, domain.ErrNotFound).
			WithTask(taskID).
			WithReason("task does not belong to evaluation")
	default:
		return err
	}
}

// withTask annotates an EvaluationError with the task involved.
func withTask(err error, taskID string) error {
	var evErr *domain.EvaluationError
	if errors.As(err, &evErr) && evErr.TaskID == "" {
		evErr.WithTask(taskID)
	}
	return err
}
