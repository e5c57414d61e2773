// Package memstore provides an in-process EvaluationStore. It is the default
// backend for development and the reference implementation the other stores
// are tested against.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ahrav/go-owls/internal/domain"
	"github.com/ahrav/go-owls/internal/ports"
)

// Store keeps evaluations, tasks and score results in maps guarded by one
// RWMutex. All values are copied in and out.
type Store struct {
	mu          sync.RWMutex
	evaluations map[string]domain.Evaluation
	tasks       map[string]map[string]domain.Task
	results     map[string]domain.ScoreResult
	closed      bool
}

var _ ports.EvaluationStore = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		evaluations: make(map[string]domain.Evaluation),
		tasks:       make(map[string]map[string]domain.Task),
		results:     make(map[string]domain.ScoreResult),
	}
}

// CreateEvaluation implements ports.EvaluationStore.
func (s *Store) CreateEvaluation(ctx context.Context, ev domain.Evaluation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(ctx, "CreateEvaluation", ev.ID); err != nil {
		return err
	}
	if ev.Status != domain.StatusDraft {
		return domain.ErrPreconditionFailed
	}
	if _, exists := s.evaluations[ev.ID]; exists {
		return ports.NewStoreError(backend, "CreateEvaluation", ev.ID, ports.ErrConflict)
	}
	s.evaluations[ev.ID] = ev
	s.tasks[ev.ID] = make(map[string]domain.Task)
	return nil
}

// PopulateTasks implements ports.EvaluationStore.
func (s *Store) PopulateTasks(ctx context.Context, evaluationID string, tasks []domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(ctx, "PopulateTasks", evaluationID); err != nil {
		return err
	}
	ev, ok := s.evaluations[evaluationID]
	if !ok {
		return domain.ErrNotFound
	}
	if ev.Status != domain.StatusDraft {
		return domain.ErrPreconditionFailed
	}
	set := make(map[string]domain.Task, len(tasks))
	for _, t := range tasks {
		t.EvaluationID = evaluationID
		set[t.ID] = t
	}
	s.tasks[evaluationID] = set
	ev.Status = domain.StatusInProgress
	s.evaluations[evaluationID] = ev
	return nil
}

// DeleteDraft implements ports.EvaluationStore.
func (s *Store) DeleteDraft(ctx context.Context, evaluationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(ctx, "DeleteDraft", evaluationID); err != nil {
		return err
	}
	ev, ok := s.evaluations[evaluationID]
	if !ok {
		return domain.ErrNotFound
	}
	if ev.Status != domain.StatusDraft {
		return domain.ErrPreconditionFailed
	}
	delete(s.evaluations, evaluationID)
	delete(s.tasks, evaluationID)
	return nil
}

// GetEvaluation implements ports.EvaluationStore.
func (s *Store) GetEvaluation(ctx context.Context, evaluationID string) (domain.Evaluation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.usable(ctx, "GetEvaluation", evaluationID); err != nil {
		return domain.Evaluation{}, err
	}
	ev, ok := s.evaluations[evaluationID]
	if !ok {
		return domain.Evaluation{}, domain.ErrNotFound
	}
	return copyEvaluation(ev), nil
}

// ListEvaluations implements ports.EvaluationStore.
func (s *Store) ListEvaluations(ctx context.Context, filter ports.EvaluationFilter) ([]domain.Evaluation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.usable(ctx, "ListEvaluations", ""); err != nil {
		return nil, err
	}
	out := make([]domain.Evaluation, 0, len(s.evaluations))
	for _, ev := range s.evaluations {
		if filter.Matches(ev) {
			out = append(out, copyEvaluation(ev))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// ListTasks implements ports.EvaluationStore.
func (s *Store) ListTasks(ctx context.Context, evaluationID string) ([]domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.usable(ctx, "ListTasks", evaluationID); err != nil {
		return nil, err
	}
	set, ok := s.tasks[evaluationID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := make([]domain.Task, 0, len(set))
	for _, t := range set {
		out = append(out, t)
	}
	domain.SortTasks(out)
	return out, nil
}

// GetTask implements ports.EvaluationStore.
func (s *Store) GetTask(ctx context.Context, evaluationID, taskID string) (domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.usable(ctx, "GetTask", taskID); err != nil {
		return domain.Task{}, err
	}
	t, ok := s.tasks[evaluationID][taskID]
	if !ok {
		return domain.Task{}, domain.ErrNotFound
	}
	return t, nil
}

// UpdateTaskResponse implements ports.EvaluationStore.
func (s *Store) UpdateTaskResponse(ctx context.Context, evaluationID, taskID string, response domain.Response, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(ctx, "UpdateTaskResponse", taskID); err != nil {
		return err
	}
	ev, ok := s.evaluations[evaluationID]
	if !ok {
		return domain.ErrNotFound
	}
	if ev.Status != domain.StatusInProgress {
		return domain.ErrPreconditionFailed
	}
	t, ok := s.tasks[evaluationID][taskID]
	if !ok {
		return domain.ErrNotFound
	}
	t.Response = response
	t.LastModifiedAt = at
	s.tasks[evaluationID][taskID] = t
	return nil
}

// CompleteEvaluation implements ports.EvaluationStore.
func (s *Store) CompleteEvaluation(ctx context.Context, result domain.ScoreResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(ctx, "CompleteEvaluation", result.EvaluationID); err != nil {
		return err
	}
	ev, ok := s.evaluations[result.EvaluationID]
	if !ok {
		return domain.ErrNotFound
	}
	if ev.Status != domain.StatusInProgress {
		return domain.ErrPreconditionFailed
	}
	completedAt := result.ComputedAt
	ev.Status = domain.StatusCompleted
	ev.CompletedAt = &completedAt
	s.evaluations[ev.ID] = ev
	s.results[ev.ID] = result.Clone()
	return nil
}

// GetScoreResult implements ports.EvaluationStore.
func (s *Store) GetScoreResult(ctx context.Context, evaluationID string) (domain.ScoreResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.usable(ctx, "GetScoreResult", evaluationID); err != nil {
		return domain.ScoreResult{}, err
	}
	r, ok := s.results[evaluationID]
	if !ok {
		return domain.ScoreResult{}, domain.ErrNotFound
	}
	return r.Clone(), nil
}

// Ping implements ports.EvaluationStore.
func (s *Store) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usable(ctx, "Ping", "")
}

// Close implements ports.EvaluationStore. Later calls fail with
// ErrServiceUnavailable.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

const backend = "memory"

func (s *Store) usable(ctx context.Context, op, key string) error {
	if err := ctx.Err(); err != nil {
		return ports.NewStoreError(backend, op, key, err)
	}
	if s.closed {
		return ports.NewStoreError(backend, op, key, ports.ErrServiceUnavailable)
	}
	return nil
}

func copyEvaluation(ev domain.Evaluation) domain.Evaluation {
	if ev.CompletedAt != nil {
		t := *ev.CompletedAt
		ev.CompletedAt = &t
	}
	return ev
}
