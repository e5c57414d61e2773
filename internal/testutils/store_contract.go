package testutils

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-owls/internal/domain"
	"github.com/ahrav/go-owls/internal/ports"
)

// contractEpoch is truncated to whole seconds so every backend round-trips
// it exactly.
var contractEpoch = time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)

// NewDraftEvaluation returns a Draft evaluation of the example student.
func NewDraftEvaluation(id string, createdAt time.Time) domain.Evaluation {
	return domain.Evaluation{
		ID:        id,
		Student:   ExampleStudent(),
		Status:    domain.StatusDraft,
		CreatedBy: "clinician",
		CreatedAt: createdAt,
	}
}

// SeedEvaluation creates and populates an evaluation with the default item
// bank and returns its tasks.
func SeedEvaluation(t *testing.T, store ports.EvaluationStore, id string, createdAt time.Time) []domain.Task {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.CreateEvaluation(ctx, NewDraftEvaluation(id, createdAt)))
	tasks := domain.DefaultItemBank().NewTasks(id, createdAt, SequentialIDs(id+"-task"))
	require.NoError(t, store.PopulateTasks(ctx, id, tasks))
	return tasks
}

// ExampleScoreResult returns the worked example result for evaluationID.
func ExampleScoreResult(evaluationID string, computedAt time.Time) domain.ScoreResult {
	return domain.ScoreResult{
		EvaluationID: evaluationID,
		PerSubtest: map[domain.Subtest]domain.SubtestScore{
			domain.OralExpression:         {RawScore: 18, ItemCount: 25, StandardScore: 98, PercentileRank: "45th"},
			domain.ListeningComprehension: {RawScore: 20, ItemCount: 25, StandardScore: 105, PercentileRank: "63rd"},
		},
		Composite:  domain.CompositeScore{SumStandardScores: 203, StandardScore: 101, PercentileRank: "53rd"},
		ComputedAt: computedAt,
	}
}

// RunStoreContract exercises the behavior every ports.EvaluationStore must
// share. newStore must return an empty store; it is called once per subtest.
func RunStoreContract(t *testing.T, newStore func(t *testing.T) ports.EvaluationStore) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		store := newStore(t)
		want := NewDraftEvaluation("ev-1", contractEpoch)
		require.NoError(t, store.CreateEvaluation(ctx, want))

		got, err := store.GetEvaluation(ctx, "ev-1")
		require.NoError(t, err)
		assert.Equal(t, want.ID, got.ID)
		assert.Equal(t, want.Student, got.Student)
		assert.Equal(t, domain.StatusDraft, got.Status)
		assert.Equal(t, "clinician", got.CreatedBy)
		assert.WithinDuration(t, want.CreatedAt, got.CreatedAt, 0)
		assert.Nil(t, got.CompletedAt)

		assert.Error(t, store.CreateEvaluation(ctx, want), "duplicate id must be rejected")
	})

	t.Run("unknown records", func(t *testing.T) {
		store := newStore(t)
		_, err := store.GetEvaluation(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = store.ListTasks(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = store.GetTask(ctx, "missing", "t")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = store.GetScoreResult(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.ErrorIs(t, store.PopulateTasks(ctx, "missing", nil), domain.ErrNotFound)
	})

	t.Run("populate moves draft to in progress once", func(t *testing.T) {
		store := newStore(t)
		tasks := SeedEvaluation(t, store, "ev-1", contractEpoch)

		ev, err := store.GetEvaluation(ctx, "ev-1")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusInProgress, ev.Status)

		got, err := store.ListTasks(ctx, "ev-1")
		require.NoError(t, err)
		require.Len(t, got, len(tasks))
		assert.Equal(t, domain.ListeningComprehension, got[0].Subtest)
		assert.Equal(t, 0, got[0].Position)
		assert.Equal(t, domain.OralExpression, got[len(got)-1].Subtest)
		assert.Equal(t, 24, got[len(got)-1].Position)
		for _, task := range got {
			assert.Equal(t, domain.ResponseUnanswered, task.Response)
		}

		err = store.PopulateTasks(ctx, "ev-1", tasks)
		assert.ErrorIs(t, err, domain.ErrPreconditionFailed)
	})

	t.Run("delete draft", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.CreateEvaluation(ctx, NewDraftEvaluation("draft", contractEpoch)))
		SeedEvaluation(t, store, "active", contractEpoch)

		require.NoError(t, store.DeleteDraft(ctx, "draft"))
		_, err := store.GetEvaluation(ctx, "draft")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.ErrorIs(t, store.DeleteDraft(ctx, "draft"), domain.ErrNotFound)

		assert.ErrorIs(t, store.DeleteDraft(ctx, "active"), domain.ErrPreconditionFailed)
		tasks, err := store.ListTasks(ctx, "active")
		require.NoError(t, err)
		assert.NotEmpty(t, tasks)

		list, err := store.ListEvaluations(ctx, ports.EvaluationFilter{})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "active", list[0].ID)
	})

	t.Run("task ownership", func(t *testing.T) {
		store := newStore(t)
		first := SeedEvaluation(t, store, "ev-1", contractEpoch)
		SeedEvaluation(t, store, "ev-2", contractEpoch.Add(time.Minute))

		task, err := store.GetTask(ctx, "ev-1", first[0].ID)
		require.NoError(t, err)
		assert.Equal(t, first[0].Item, task.Item)

		_, err = store.GetTask(ctx, "ev-2", first[0].ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		err = store.UpdateTaskResponse(ctx, "ev-2", first[0].ID, domain.ResponseCorrect, contractEpoch)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("update response", func(t *testing.T) {
		store := newStore(t)
		tasks := SeedEvaluation(t, store, "ev-1", contractEpoch)
		at := contractEpoch.Add(time.Hour)

		require.NoError(t, store.UpdateTaskResponse(ctx, "ev-1", tasks[3].ID, domain.ResponseCorrect, at))
		task, err := store.GetTask(ctx, "ev-1", tasks[3].ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ResponseCorrect, task.Response)
		assert.WithinDuration(t, at, task.LastModifiedAt, 0)

		err = store.UpdateTaskResponse(ctx, "ev-1", "missing", domain.ResponseCorrect, at)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("draft rejects responses", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.CreateEvaluation(ctx, NewDraftEvaluation("ev-1", contractEpoch)))
		err := store.UpdateTaskResponse(ctx, "ev-1", "t", domain.ResponseCorrect, contractEpoch)
		assert.Error(t, err)
	})

	t.Run("complete freezes evaluation", func(t *testing.T) {
		store := newStore(t)
		tasks := SeedEvaluation(t, store, "ev-1", contractEpoch)
		computedAt := contractEpoch.Add(2 * time.Hour)
		result := ExampleScoreResult("ev-1", computedAt)

		require.NoError(t, store.CompleteEvaluation(ctx, result))

		ev, err := store.GetEvaluation(ctx, "ev-1")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCompleted, ev.Status)
		require.NotNil(t, ev.CompletedAt)
		assert.WithinDuration(t, computedAt, *ev.CompletedAt, 0)

		stored, err := store.GetScoreResult(ctx, "ev-1")
		require.NoError(t, err)
		assert.Equal(t, result.PerSubtest, stored.PerSubtest)
		assert.Equal(t, result.Composite, stored.Composite)
		assert.WithinDuration(t, computedAt, stored.ComputedAt, 0)

		err = store.UpdateTaskResponse(ctx, "ev-1", tasks[0].ID, domain.ResponseCorrect, computedAt)
		assert.ErrorIs(t, err, domain.ErrPreconditionFailed)
		task, err := store.GetTask(ctx, "ev-1", tasks[0].ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ResponseUnanswered, task.Response)

		second := ExampleScoreResult("ev-1", computedAt.Add(time.Hour))
		second.Composite.StandardScore = 150
		assert.ErrorIs(t, store.CompleteEvaluation(ctx, second), domain.ErrPreconditionFailed)
		again, err := store.GetScoreResult(ctx, "ev-1")
		require.NoError(t, err)
		assert.Equal(t, 101, again.Composite.StandardScore)
	})

	t.Run("complete requires in progress", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.CreateEvaluation(ctx, NewDraftEvaluation("ev-1", contractEpoch)))
		err := store.CompleteEvaluation(ctx, ExampleScoreResult("ev-1", contractEpoch))
		assert.ErrorIs(t, err, domain.ErrPreconditionFailed)
		_, err = store.GetScoreResult(ctx, "ev-1")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("list newest first with filter", func(t *testing.T) {
		store := newStore(t)
		SeedEvaluation(t, store, "ev-old", contractEpoch)
		SeedEvaluation(t, store, "ev-mid", contractEpoch.Add(time.Hour))
		SeedEvaluation(t, store, "ev-new", contractEpoch.Add(2*time.Hour))
		require.NoError(t, store.CompleteEvaluation(ctx, ExampleScoreResult("ev-mid", contractEpoch.Add(3*time.Hour))))

		all, err := store.ListEvaluations(ctx, ports.EvaluationFilter{})
		require.NoError(t, err)
		assert.Equal(t, []string{"ev-new", "ev-mid", "ev-old"}, evaluationIDs(all))

		completed, err := store.ListEvaluations(ctx, ports.EvaluationFilter{Status: domain.StatusCompleted})
		require.NoError(t, err)
		assert.Equal(t, []string{"ev-mid"}, evaluationIDs(completed))

		limited, err := store.ListEvaluations(ctx, ports.EvaluationFilter{Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, []string{"ev-new", "ev-mid"}, evaluationIDs(limited))

		none, err := store.ListEvaluations(ctx, ports.EvaluationFilter{CreatedBy: "someone-else"})
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("ping", func(t *testing.T) {
		store := newStore(t)
		assert.NoError(t, store.Ping(ctx))
	})
}

func evaluationIDs(evs []domain.Evaluation) []string {
	ids := make([]string, len(evs))
	for i, ev := range evs {
		ids[i] = ev.ID
	}
	return ids
}
