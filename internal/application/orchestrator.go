package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ahrav/go-owls/internal/domain"
	"github.com/ahrav/go-owls/internal/ports"
)

const tracerName = "github.com/ahrav/go-owls/internal/application"

// ScoringOrchestrator turns an evaluation's responses into a frozen
// ScoreResult. Calculate is idempotent: once an evaluation is Completed it
// returns the stored result unchanged. A calculation either persists a
// complete result and completes the evaluation, or changes nothing.
type ScoringOrchestrator struct {
	lifecycle *LifecycleManager
	store     ports.EvaluationStore
	lookup    ports.NormativeLookup
	composite *CompositeCalculator
	locks     *evaluationLocks
	rule      CompletenessRule
	now       func() time.Time
	logger    *slog.Logger
	metrics   ports.MetricsCollector
	tracer    trace.Tracer

	// sf collapses concurrent Calculate calls for one evaluation into a
	// single computation.
	sf singleflight.Group
}

func newScoringOrchestrator(
	lifecycle *LifecycleManager,
	store ports.EvaluationStore,
	lookup ports.NormativeLookup,
	locks *evaluationLocks,
	o options,
) *ScoringOrchestrator {
	return &ScoringOrchestrator{
		lifecycle: lifecycle,
		store:     store,
		lookup:    lookup,
		composite: NewCompositeCalculator(lookup),
		locks:     locks,
		rule:      o.completeness,
		now:       o.now,
		logger:    o.logger.With("component", "orchestrator"),
		metrics:   o.metrics,
		tracer:    otel.Tracer(tracerName),
	}
}

// Calculate scores an evaluation.
//
// A Completed evaluation returns its stored result. Anything other than
// InProgress fails with PreconditionFailed, as does an evaluation that does
// not meet the completeness rule. Out-of-range normative lookups fail with
// an error wrapping ErrNormTableOutOfRange; lookup unavailability is
// returned as a transient error. In every failure case nothing is persisted
// and the evaluation stays InProgress.
func (o *ScoringOrchestrator) Calculate(ctx context.Context, evaluationID string) (domain.ScoreResult, error) {
	ctx, span := o.tracer.Start(ctx, "ScoringOrchestrator.Calculate",
		trace.WithAttributes(attribute.String("evaluation.id", evaluationID)))
	defer span.End()

	start := time.Now()
	v, err, shared := o.sf.Do(evaluationID, func() (any, error) {
		return o.calculate(ctx, evaluationID)
	})
	span.SetAttributes(attribute.Bool("calculate.shared", shared))

	labels := map[string]string{"outcome": calculationOutcome(err)}
	o.metrics.RecordLatency("calculate", time.Since(start), labels)
	o.metrics.RecordCounter("calculations_total", 1, labels)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.logger.WarnContext(ctx, "calculation failed",
			"evaluation_id", evaluationID,
			"outcome", labels["outcome"],
			"error", err)
		return domain.ScoreResult{}, err
	}
	// Callers that joined one flight must not share the result's map.
	return v.(domain.ScoreResult).Clone(), nil
}

func (o *ScoringOrchestrator) calculate(ctx context.Context, evaluationID string) (domain.ScoreResult, error) {
	release, err := o.locks.acquire(ctx, evaluationID)
	if err != nil {
		return domain.ScoreResult{}, err
	}
	defer release()

	ev, err := o.lifecycle.load(ctx, evaluationID, OpCalculate)
	if err != nil {
		return domain.ScoreResult{}, err
	}

	switch ev.Status {
	case domain.StatusCompleted:
		return o.storedResult(ctx, evaluationID)
	case domain.StatusInProgress:
	default:
		return domain.ScoreResult{}, domain.NewEvaluationError(evaluationID, OpCalculate, domain.ErrPreconditionFailed).
			WithReason("evaluation is %s, expected %s", ev.Status, domain.StatusInProgress)
	}

	tasks, err := o.store.ListTasks(ctx, evaluationID)
	if err != nil {
		return domain.ScoreResult{}, fmt.Errorf("list tasks of evaluation %s: %w", evaluationID, err)
	}
	raws := domain.ComputeAllRaw(tasks)

	if reason := o.rule.Check(raws); reason != "" {
		return domain.ScoreResult{}, domain.NewEvaluationError(evaluationID, OpCalculate, domain.ErrPreconditionFailed).
			WithReason("completeness rule %s not met: %s", o.rule, reason)
	}

	scores, err := o.scoreSubtests(ctx, ev.AgeInMonths(), raws)
	if err != nil {
		return domain.ScoreResult{}, o.lookupError(evaluationID, err)
	}

	composite, err := o.composite.Combine(ctx, scores[domain.OralExpression], scores[domain.ListeningComprehension])
	if err != nil {
		return domain.ScoreResult{}, o.lookupError(evaluationID, err)
	}

	result := domain.ScoreResult{
		EvaluationID: evaluationID,
		PerSubtest:   scores,
		Composite:    composite,
		ComputedAt:   o.now(),
	}
	if err := result.Validate(); err != nil {
		return domain.ScoreResult{}, fmt.Errorf("inconsistent score result for evaluation %s: %w", evaluationID, err)
	}

	if err := o.lifecycle.transitionToCompleted(ctx, result); err != nil {
		// Another writer completed the evaluation first; its result wins.
		if errors.Is(err, domain.ErrPreconditionFailed) {
			if stored, serr := o.store.GetScoreResult(ctx, evaluationID); serr == nil {
				return stored, nil
			}
		}
		return domain.ScoreResult{}, err
	}
	return result, nil
}

// scoreSubtests looks up every subtest concurrently. The first failure
// cancels the remaining lookups.
func (o *ScoringOrchestrator) scoreSubtests(
	ctx context.Context,
	ageInMonths int,
	raws map[domain.Subtest]domain.RawScore,
) (map[domain.Subtest]domain.SubtestScore, error) {
	var mu sync.Mutex
	scores := make(map[domain.Subtest]domain.SubtestScore, len(domain.Subtests))

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range domain.Subtests {
		raw := raws[s]
		g.Go(func() error {
			norm, err := o.lookup.SubtestScore(gctx, ageInMonths, s, raw.Raw)
			if err != nil {
				return err
			}
			mu.Lock()
			scores[s] = domain.NewSubtestScore(raw, norm)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scores, nil
}

// lookupError attaches the evaluation to a normative lookup failure while
// keeping the original error reachable through errors.Is and errors.As.
func (o *ScoringOrchestrator) lookupError(evaluationID string, err error) error {
	if errors.Is(err, domain.ErrNormTableOutOfRange) {
		return domain.NewEvaluationError(evaluationID, OpCalculate, err).
			WithReason("normative tables do not cover these inputs; correct the age or deploy updated tables")
	}
	return fmt.Errorf("normative lookup for evaluation %s: %w", evaluationID, err)
}

// StoredResult returns the frozen result of a completed evaluation without
// calculating. It fails with PreconditionFailed if the evaluation has not
// been scored.
func (o *ScoringOrchestrator) StoredResult(ctx context.Context, evaluationID string) (domain.ScoreResult, error) {
	ev, err := o.lifecycle.load(ctx, evaluationID, OpGetScore)
	if err != nil {
		return domain.ScoreResult{}, err
	}
	if !ev.Completed() {
		return domain.ScoreResult{}, domain.NewEvaluationError(evaluationID, OpGetScore, domain.ErrPreconditionFailed).
			WithReason("evaluation is %s and has not been scored", ev.Status)
	}
	return o.storedResult(ctx, evaluationID)
}

func (o *ScoringOrchestrator) storedResult(ctx context.Context, evaluationID string) (domain.ScoreResult, error) {
	result, err := o.store.GetScoreResult(ctx, evaluationID)
	if err != nil {
		return domain.ScoreResult{}, fmt.Errorf("load score result of evaluation %s: %w", evaluationID, err)
	}
	return result, nil
}

func calculationOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrNormTableOutOfRange):
		return "out_of_range"
	case errors.Is(err, domain.ErrPreconditionFailed):
		return "precondition_failed"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case ports.IsTransient(err):
		return "transient"
	default:
		return "error"
	}
}
