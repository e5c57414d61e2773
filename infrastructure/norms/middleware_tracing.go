package norms

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-owls/internal/domain"
)

const tracerName = "github.com/ahrav/go-owls/infrastructure/norms"

// tracedLookup wraps every lookup in a span.
type tracedLookup struct {
	next   CoreLookup
	tracer trace.Tracer
}

// TracingMiddleware creates middleware that records a "norms.lookup" span
// per lookup using the global tracer provider.
func TracingMiddleware() Middleware {
	return TracingMiddlewareWithProvider(otel.GetTracerProvider())
}

// TracingMiddlewareWithProvider is TracingMiddleware with an explicit
// tracer provider.
func TracingMiddlewareWithProvider(tp trace.TracerProvider) Middleware {
	tracer := tp.Tracer(tracerName)
	return func(next CoreLookup) CoreLookup {
		return &tracedLookup{next: next, tracer: tracer}
	}
}

// Lookup implements CoreLookup.
func (t *tracedLookup) Lookup(ctx context.Context, q Query) (domain.NormScore, error) {
	attrs := []attribute.KeyValue{
		attribute.String("norms.source", t.next.Source()),
		attribute.String("norms.table", string(q.Kind)),
	}
	if q.Kind == KindComposite {
		attrs = append(attrs, attribute.Int("norms.sum", q.SumStandardScores))
	} else {
		attrs = append(attrs,
			attribute.String("norms.subtest", q.Subtest.TableKey()),
			attribute.Int("norms.age_months", q.AgeInMonths),
			attribute.Int("norms.raw_score", q.RawScore))
	}

	ctx, span := t.tracer.Start(ctx, "norms.lookup", trace.WithAttributes(attrs...))
	defer span.End()

	score, err := t.next.Lookup(ctx, q)
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.String("norms.status", lookupStatus(err)))
		if !isOutOfRange(err) {
			span.SetStatus(codes.Error, err.Error())
		}
		return score, err
	}
	span.SetAttributes(
		attribute.Int("norms.standard_score", score.StandardScore),
		attribute.String("norms.percentile_rank", score.PercentileRank))
	return score, nil
}

// Source implements CoreLookup.
func (t *tracedLookup) Source() string { return t.next.Source() }
