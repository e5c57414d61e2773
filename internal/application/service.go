package application

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/text/cases"

	"github.com/ahrav/go-owls/internal/domain"
	"github.com/ahrav/go-owls/internal/ports"
)

// DashboardDateLayout formats the date column of the evaluation list.
const DashboardDateLayout = "2006-01-02"

// Service wires the lifecycle manager, response ledger, aggregator and
// scoring orchestrator over one store and one normative lookup, sharing a
// single set of per-evaluation locks between the ledger and the
// orchestrator.
type Service struct {
	Lifecycle    *LifecycleManager
	Ledger       *ResponseLedger
	Aggregator   *RawScoreAggregator
	Orchestrator *ScoringOrchestrator

	store ports.EvaluationStore
}

// NewService assembles the evaluation core.
func NewService(store ports.EvaluationStore, lookup ports.NormativeLookup, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if lookup == nil {
		return nil, errors.New("normative lookup is required")
	}
	o := buildOptions(opts)
	if _, err := ParseCompletenessRule(o.completeness.String()); err != nil {
		return nil, err
	}

	lifecycle, err := NewLifecycleManager(store, opts...)
	if err != nil {
		return nil, err
	}
	locks := newEvaluationLocks()

	return &Service{
		Lifecycle:    lifecycle,
		Ledger:       newResponseLedger(lifecycle, store, locks, o),
		Aggregator:   NewRawScoreAggregator(store),
		Orchestrator: newScoringOrchestrator(lifecycle, store, lookup, locks, o),
		store:        store,
	}, nil
}

// CreateEvaluation starts a new evaluation for student.
func (s *Service) CreateEvaluation(ctx context.Context, student domain.Student) (domain.Evaluation, error) {
	return s.Lifecycle.Create(ctx, student)
}

// EvaluationDetail is an evaluation together with its tasks split by
// subtest.
type EvaluationDetail struct {
	Evaluation     domain.Evaluation `json:"evaluation"`
	OralTasks      []domain.Task     `json:"oralTasks"`
	ListeningTasks []domain.Task     `json:"listeningTasks"`
}

// Evaluation returns an evaluation and its tasks.
func (s *Service) Evaluation(ctx context.Context, evaluationID string) (EvaluationDetail, error) {
	ev, err := s.Lifecycle.Get(ctx, evaluationID)
	if err != nil {
		return EvaluationDetail{}, err
	}
	tasks, err := s.store.ListTasks(ctx, evaluationID)
	if err != nil {
		return EvaluationDetail{}, err
	}
	return EvaluationDetail{
		Evaluation:     ev,
		OralTasks:      domain.TasksFor(tasks, domain.OralExpression),
		ListeningTasks: domain.TasksFor(tasks, domain.ListeningComprehension),
	}, nil
}

// RecordResponse delegates to the response ledger.
func (s *Service) RecordResponse(ctx context.Context, evaluationID, taskID string, response domain.Response) (domain.Task, error) {
	return s.Ledger.RecordResponse(ctx, evaluationID, taskID, response)
}

// UndoLast delegates to the response ledger.
func (s *Service) UndoLast(ctx context.Context, evaluationID string) (UndoEntry, error) {
	return s.Ledger.UndoLast(ctx, evaluationID)
}

// Calculate delegates to the scoring orchestrator.
func (s *Service) Calculate(ctx context.Context, evaluationID string) (domain.ScoreResult, error) {
	return s.Orchestrator.Calculate(ctx, evaluationID)
}

// Score returns the stored result of a completed evaluation.
func (s *Service) Score(ctx context.Context, evaluationID string) (domain.ScoreResult, error) {
	return s.Orchestrator.StoredResult(ctx, evaluationID)
}

// Progress returns the live raw scores of an evaluation.
func (s *Service) Progress(ctx context.Context, evaluationID string) (map[domain.Subtest]domain.RawScore, error) {
	return s.Aggregator.Progress(ctx, evaluationID)
}

// EvaluationSummary is one row of the evaluation list.
type EvaluationSummary struct {
	ID          string        `json:"id"`
	StudentName string        `json:"studentName"`
	School      string        `json:"school"`
	Date        string        `json:"date"`
	Status      domain.Status `json:"status"`
}

// Dashboard lists evaluations newest first without task detail. Student
// names are shown exactly as entered.
func (s *Service) Dashboard(ctx context.Context, filter ports.EvaluationFilter) ([]EvaluationSummary, error) {
	return s.SearchDashboard(ctx, filter, "")
}

// SearchDashboard is Dashboard restricted to students whose full name
// contains name, compared under Unicode case folding. An empty name matches
// every row.
func (s *Service) SearchDashboard(ctx context.Context, filter ports.EvaluationFilter, name string) ([]EvaluationSummary, error) {
	name = strings.TrimSpace(name)
	limit := filter.Limit
	if name != "" {
		filter.Limit = 0
	}
	evs, err := s.Lifecycle.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	var (
		fold   = cases.Fold()
		needle = fold.String(name)
	)
	out := make([]EvaluationSummary, 0, len(evs))
	for _, ev := range evs {
		full := ev.Student.FullName()
		if name != "" && !strings.Contains(fold.String(full), needle) {
			continue
		}
		out = append(out, EvaluationSummary{
			ID:          ev.ID,
			StudentName: full,
			School:      ev.Student.School,
			Date:        ev.CreatedAt.Format(DashboardDateLayout),
			Status:      ev.Status,
		})
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Health reports whether the store is reachable.
func (s *Service) Health(ctx context.Context) error {
	return s.store.Ping(ctx)
}
