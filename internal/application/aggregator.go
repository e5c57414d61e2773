package application

import (
	"context"
	"errors"

	"github.com/ahrav/go-owls/internal/domain"
	"github.com/ahrav/go-owls/internal/ports"
)

// RawScoreAggregator reads an evaluation's current tasks and counts its
// responses. It never writes and is valid in every lifecycle state, which
// makes it suitable both for live progress and for scoring.
type RawScoreAggregator struct {
	store ports.EvaluationStore
}

// NewRawScoreAggregator creates an aggregator over store.
func NewRawScoreAggregator(store ports.EvaluationStore) *RawScoreAggregator {
	return &RawScoreAggregator{store: store}
}

// ComputeRaw returns the raw score of one subtest of an evaluation.
func (a *RawScoreAggregator) ComputeRaw(ctx context.Context, evaluationID string, subtest domain.Subtest) (domain.RawScore, error) {
	if !subtest.Valid() {
		verr := domain.NewValidationError("subtest")
		verr.AddErrorf("unknown subtest %q", subtest)
		return domain.RawScore{}, verr
	}
	tasks, err := a.tasks(ctx, evaluationID)
	if err != nil {
		return domain.RawScore{}, err
	}
	return domain.ComputeRaw(tasks, subtest), nil
}

// Progress returns the raw score of every subtest of an evaluation.
func (a *RawScoreAggregator) Progress(ctx context.Context, evaluationID string) (map[domain.Subtest]domain.RawScore, error) {
	tasks, err := a.tasks(ctx, evaluationID)
	if err != nil {
		return nil, err
	}
	return domain.ComputeAllRaw(tasks), nil
}

func (a *RawScoreAggregator) tasks(ctx context.Context, evaluationID string) ([]domain.Task, error) {
	tasks, err := a.store.ListTasks(ctx, evaluationID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NewEvaluationError(evaluationID, OpProgress, domain.ErrNotFound).
				WithReason("evaluation does not exist")
		}
		return nil, err
	}
	return tasks, nil
}
