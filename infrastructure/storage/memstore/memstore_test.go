package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-owls/internal/domain"
	"github.com/ahrav/go-owls/internal/ports"
	"github.com/ahrav/go-owls/internal/testutils"
)

func TestStoreContract(t *testing.T) {
	testutils.RunStoreContract(t, func(t *testing.T) ports.EvaluationStore {
		return New()
	})
}

func TestStore_Close(t *testing.T) {
	s := New()
	require.NoError(t, s.Close())

	err := s.Ping(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrServiceUnavailable)

	var storeErr *ports.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "memory", storeErr.Backend)
	assert.True(t, ports.IsTransient(err))
}

func TestStore_CanceledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.GetEvaluation(ctx, "ev-1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStore_ReturnsCopies(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	testutils.SeedEvaluation(t, s, "ev-1", now)
	require.NoError(t, s.CompleteEvaluation(ctx, testutils.ExampleScoreResult("ev-1", now)))

	result, err := s.GetScoreResult(ctx, "ev-1")
	require.NoError(t, err)
	result.PerSubtest[domain.OralExpression] = domain.SubtestScore{}

	again, err := s.GetScoreResult(ctx, "ev-1")
	require.NoError(t, err)
	assert.Equal(t, 98, again.PerSubtest[domain.OralExpression].StandardScore)

	ev, err := s.GetEvaluation(ctx, "ev-1")
	require.NoError(t, err)
	*ev.CompletedAt = now.Add(time.Hour)

	ev, err = s.GetEvaluation(ctx, "ev-1")
	require.NoError(t, err)
	assert.True(t, ev.CompletedAt.Equal(now))
}

func TestStore_RejectsNonDraftCreate(t *testing.T) {
	s := New()
	ev := testutils.NewDraftEvaluation("ev-1", time.Now())
	ev.Status = domain.StatusCompleted
	assert.ErrorIs(t, s.CreateEvaluation(context.Background(), ev), domain.ErrPreconditionFailed)
}
