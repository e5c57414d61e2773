package application

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/go-owls/internal/domain"
	"github.com/ahrav/go-owls/internal/ports"
)

// Option customizes the components built by NewService and the individual
// component constructors.
type Option func(*options)

type options struct {
	logger       *slog.Logger
	metrics      ports.MetricsCollector
	now          func() time.Time
	newID        func() string
	bank         domain.ItemBank
	completeness CompletenessRule
}

func defaultOptions() options {
	return options{
		logger:       slog.Default(),
		metrics:      ports.NopMetrics{},
		now:          func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
		newID:        func() string { return uuid.NewString() },
		bank:         domain.DefaultItemBank(),
		completeness: CompletenessAnyResponse,
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m ports.MetricsCollector) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithClock replaces the wall clock, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithIDGenerator replaces the UUID generator used for evaluation and task
// identifiers.
func WithIDGenerator(newID func() string) Option {
	return func(o *options) {
		if newID != nil {
			o.newID = newID
		}
	}
}

// WithItemBank replaces the built-in item bank.
func WithItemBank(bank domain.ItemBank) Option {
	return func(o *options) { o.bank = bank }
}

// WithCompleteness sets the rule checked before calculation.
func WithCompleteness(rule CompletenessRule) Option {
	return func(o *options) { o.completeness = rule }
}
