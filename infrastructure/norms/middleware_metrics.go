package norms

import (
	"context"
	"errors"
	"time"

	"github.com/ahrav/go-owls/internal/domain"
	"github.com/ahrav/go-owls/internal/ports"
)

// metricsLookup records latency and outcome of every lookup.
type metricsLookup struct {
	next      CoreLookup
	collector ports.MetricsCollector
}

// MetricsMiddleware creates middleware that reports
// norm_lookup_latency_seconds and norm_lookups_total labeled by source,
// table and status.
func MetricsMiddleware(collector ports.MetricsCollector) Middleware {
	return func(next CoreLookup) CoreLookup {
		return &metricsLookup{next: next, collector: collector}
	}
}

// Lookup implements CoreLookup.
func (m *metricsLookup) Lookup(ctx context.Context, q Query) (domain.NormScore, error) {
	start := time.Now()
	score, err := m.next.Lookup(ctx, q)

	if m.collector != nil {
		labels := map[string]string{
			"source": m.next.Source(),
			"table":  string(q.Kind),
			"status": lookupStatus(err),
		}
		m.collector.RecordHistogram("norm_lookup_latency_seconds", time.Since(start).Seconds(), labels)
		m.collector.RecordCounter("norm_lookups_total", 1, labels)
	}
	return score, err
}

// Source implements CoreLookup.
func (m *metricsLookup) Source() string { return m.next.Source() }

func lookupStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case isOutOfRange(err):
		return "out_of_range"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, ports.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ports.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
