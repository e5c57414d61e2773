package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ahrav/go-owls/internal/domain"
	"github.com/ahrav/go-owls/internal/ports"
)

// Operation names reported in EvaluationError.
const (
	OpCreate         = "create"
	OpGet            = "get"
	OpRecordResponse = "recordResponse"
	OpUndoLast       = "undoLast"
	OpCalculate      = "calculate"
	OpGetScore       = "getScore"
	OpProgress       = "progress"
)

// LifecycleManager owns the lifecycle state of evaluations: Draft, then
// InProgress once tasks are populated, then Completed once scored. It is the
// single authoritative reader of status; other components ask it rather
// than caching status themselves.
type LifecycleManager struct {
	store   ports.EvaluationStore
	bank    domain.ItemBank
	now     func() time.Time
	newID   func() string
	logger  *slog.Logger
	metrics ports.MetricsCollector

	hooksMu     sync.RWMutex
	onCompleted []func(evaluationID string)
}

// NewLifecycleManager creates a lifecycle manager backed by store.
// It returns an error if the configured item bank is invalid.
func NewLifecycleManager(store ports.EvaluationStore, opts ...Option) (*LifecycleManager, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	o := buildOptions(opts)
	if err := o.bank.Validate(); err != nil {
		return nil, fmt.Errorf("invalid item bank: %w", err)
	}
	return &LifecycleManager{
		store:   store,
		bank:    o.bank,
		now:     o.now,
		newID:   o.newID,
		logger:  o.logger.With("component", "lifecycle"),
		metrics: o.metrics,
	}, nil
}

// OnCompleted registers fn to run after an evaluation transitions to
// Completed.
func (m *LifecycleManager) OnCompleted(fn func(evaluationID string)) {
	m.hooksMu.Lock()
	defer m.hooksMu.Unlock()
	m.onCompleted = append(m.onCompleted, fn)
}

// Create validates student, records a Draft evaluation, populates its tasks
// from the item bank and returns it in the InProgress state. The session in
// ctx, if any, is recorded as the creator.
func (m *LifecycleManager) Create(ctx context.Context, student domain.Student) (domain.Evaluation, error) {
	student = student.Normalized()
	if err := student.Validate(); err != nil {
		return domain.Evaluation{}, err
	}

	now := m.now()
	ev := domain.Evaluation{
		ID:        m.newID(),
		Student:   student,
		Status:    domain.StatusDraft,
		CreatedAt: now,
	}
	if s, ok := ports.SessionFromContext(ctx); ok {
		ev.CreatedBy = s.Subject
	}

	if err := m.store.CreateEvaluation(ctx, ev); err != nil {
		return domain.Evaluation{}, fmt.Errorf("create evaluation %s: %w", ev.ID, err)
	}

	tasks := m.bank.NewTasks(ev.ID, now, m.newID)
	if err := m.store.PopulateTasks(ctx, ev.ID, tasks); err != nil {
		if delErr := m.store.DeleteDraft(context.WithoutCancel(ctx), ev.ID); delErr != nil {
			m.logger.ErrorContext(ctx, "draft evaluation left behind after failed populate",
				"evaluation_id", ev.ID, "error", delErr)
		}
		return domain.Evaluation{}, fmt.Errorf("populate tasks of evaluation %s: %w", ev.ID, err)
	}
	ev.Status = domain.StatusInProgress

	m.metrics.RecordCounter("evaluations_created_total", 1, nil)
	m.logger.InfoContext(ctx, "evaluation created",
		"evaluation_id", ev.ID,
		"age_months", ev.AgeInMonths(),
		"tasks", len(tasks),
		"created_by", ev.CreatedBy)
	return ev, nil
}

// Get returns the evaluation, wrapping a missing record in an
// EvaluationError.
func (m *LifecycleManager) Get(ctx context.Context, evaluationID string) (domain.Evaluation, error) {
	return m.load(ctx, evaluationID, OpGet)
}

func (m *LifecycleManager) load(ctx context.Context, evaluationID, op string) (domain.Evaluation, error) {
	ev, err := m.store.GetEvaluation(ctx, evaluationID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Evaluation{}, domain.NewEvaluationError(evaluationID, op, domain.ErrNotFound).
				WithReason("evaluation does not exist")
		}
		return domain.Evaluation{}, err
	}
	return ev, nil
}

// Status returns the current lifecycle state of an evaluation.
func (m *LifecycleManager) Status(ctx context.Context, evaluationID string) (domain.Status, error) {
	ev, err := m.Get(ctx, evaluationID)
	if err != nil {
		return "", err
	}
	return ev.Status, nil
}

// List returns evaluations matching filter, newest first.
func (m *LifecycleManager) List(ctx context.Context, filter ports.EvaluationFilter) ([]domain.Evaluation, error) {
	return m.store.ListEvaluations(ctx, filter)
}

// requireEditable returns the evaluation if op may mutate it, i.e. it is
// InProgress. Completed and Draft evaluations fail with
// ErrPreconditionFailed.
func (m *LifecycleManager) requireEditable(ctx context.Context, evaluationID, op string) (domain.Evaluation, error) {
	ev, err := m.load(ctx, evaluationID, op)
	if err != nil {
		return domain.Evaluation{}, err
	}
	switch ev.Status {
	case domain.StatusInProgress:
		return ev, nil
	case domain.StatusCompleted:
		return ev, domain.NewEvaluationError(evaluationID, op, domain.ErrPreconditionFailed).
			WithReason("evaluation is completed and can no longer change")
	default:
		return ev, domain.NewEvaluationError(evaluationID, op, domain.ErrPreconditionFailed).
			WithReason("evaluation is %s, expected %s", ev.Status, domain.StatusInProgress)
	}
}

// transitionToCompleted persists result and marks the evaluation Completed.
// Only the scoring orchestrator calls it, after a successful calculation.
func (m *LifecycleManager) transitionToCompleted(ctx context.Context, result domain.ScoreResult) error {
	if err := m.store.CompleteEvaluation(ctx, result); err != nil {
		if errors.Is(err, domain.ErrPreconditionFailed) {
			return domain.NewEvaluationError(result.EvaluationID, OpCalculate, domain.ErrPreconditionFailed).
				WithReason("evaluation left %s before the result was stored", domain.StatusInProgress)
		}
		return err
	}

	m.hooksMu.RLock()
	hooks := append([]func(string){}, m.onCompleted...)
	m.hooksMu.RUnlock()
	for _, fn := range hooks {
		fn(result.EvaluationID)
	}

	m.metrics.RecordCounter("evaluations_completed_total", 1, nil)
	m.logger.InfoContext(ctx, "evaluation completed",
		"evaluation_id", result.EvaluationID,
		"composite", result.Composite.StandardScore)
	return nil
}
