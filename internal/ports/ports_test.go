package ports

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-owls/internal/domain"
)

func TestSessionContext(t *testing.T) {
	_, ok := SessionFromContext(context.Background())
	assert.False(t, ok)

	want := Session{Subject: "clinician", ExpiresAt: time.Unix(1700000000, 0)}
	ctx := WithSession(context.Background(), want)
	got, ok := SessionFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestEvaluationFilterMatches(t *testing.T) {
	ev := domain.Evaluation{ID: "ev-1", Status: domain.StatusInProgress, CreatedBy: "sam"}

	tests := []struct {
		name   string
		filter EvaluationFilter
		want   bool
	}{
		{name: "empty filter", filter: EvaluationFilter{}, want: true},
		{name: "status match", filter: EvaluationFilter{Status: domain.StatusInProgress}, want: true},
		{name: "status mismatch", filter: EvaluationFilter{Status: domain.StatusCompleted}, want: false},
		{name: "creator match", filter: EvaluationFilter{CreatedBy: "sam"}, want: true},
		{name: "creator mismatch", filter: EvaluationFilter{CreatedBy: "kim"}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(ev))
		})
	}
}

func TestNopMetrics(t *testing.T) {
	var collector MetricsCollector = NopMetrics{}
	assert.NotPanics(t, func() {
		collector.RecordLatency("calculate", time.Millisecond, nil)
		collector.RecordCounter("responses_total", 1, map[string]string{"subtest": "oe"})
		collector.RecordGauge("breaker_state", 0, nil)
		collector.RecordHistogram("lookup_seconds", 0.01, nil)
	})
}
