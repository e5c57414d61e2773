// Package norms answers normative lookups for the scoring pipeline: it maps
// (age in months, subtest, raw score) to a standard score and percentile
// rank, and a sum of standard scores to a composite.
//
// Table data comes from a provider implementing CoreLookup. Two providers
// ship with the package: Tables, compiled from a YAML document, and
// HTTPLookup, a client of a remote norm service. Cross-cutting concerns are
// added by middleware wrapping the provider:
//
//	client := norms.NewClient(tables,
//	    norms.TracingMiddleware(),
//	    norms.MetricsMiddleware(collector),
//	    norms.RateLimitMiddleware(50, 10),
//	    norms.RetryMiddleware(2, 100*time.Millisecond, time.Second),
//	    norms.CircuitBreakerMiddleware(5, 30*time.Second),
//	    norms.TimeoutMiddleware(2*time.Second),
//	)
//
// Providers never clamp or extrapolate. Inputs outside the published table
// domain fail with an error wrapping domain.ErrNormTableOutOfRange, which no
// middleware retries or counts as a provider failure.
package norms

import (
	"context"
	"errors"
	"fmt"

	"github.com/ahrav/go-owls/internal/domain"
	"github.com/ahrav/go-owls/internal/ports"
)

// QueryKind distinguishes the two tables a provider serves.
type QueryKind string

// Query kinds.
const (
	KindSubtest   QueryKind = "subtest"
	KindComposite QueryKind = "composite"
)

// Query is one normative lookup.
type Query struct {
	Kind QueryKind

	// AgeInMonths, Subtest and RawScore are set for KindSubtest.
	AgeInMonths int
	Subtest     domain.Subtest
	RawScore    int

	// SumStandardScores is set for KindComposite.
	SumStandardScores int
}

// SubtestQuery builds a subtest table query.
func SubtestQuery(ageInMonths int, subtest domain.Subtest, raw int) Query {
	return Query{Kind: KindSubtest, AgeInMonths: ageInMonths, Subtest: subtest, RawScore: raw}
}

// CompositeQuery builds a composite table query.
func CompositeQuery(sum int) Query {
	return Query{Kind: KindComposite, SumStandardScores: sum}
}

// String formats the query for logs and error messages.
func (q Query) String() string {
	if q.Kind == KindComposite {
		return fmt.Sprintf("composite(sum=%d)", q.SumStandardScores)
	}
	return fmt.Sprintf("%s(age_months=%d, raw=%d)", q.Subtest.TableKey(), q.AgeInMonths, q.RawScore)
}

// Operation names the ports.NormativeLookup method a query belongs to.
func (q Query) Operation() string {
	if q.Kind == KindComposite {
		return "CompositeScore"
	}
	return "SubtestScore"
}

// CoreLookup is the minimal interface a table provider implements. The
// middleware chain wraps any conforming implementation.
type CoreLookup interface {
	// Lookup answers one query. Inputs outside the table domain fail with
	// an error wrapping domain.ErrNormTableOutOfRange; provider faults
	// fail with a *ports.LookupError.
	Lookup(ctx context.Context, q Query) (domain.NormScore, error)

	// Source names the provider in metrics, traces and errors.
	Source() string
}

// Middleware wraps a CoreLookup to add cross-cutting behavior.
type Middleware func(CoreLookup) CoreLookup

// Client adapts a CoreLookup and its middleware chain to
// ports.NormativeLookup.
type Client struct {
	core CoreLookup
}

var _ ports.NormativeLookup = (*Client)(nil)

// NewClient wraps core with middleware. The first middleware is the
// outermost.
func NewClient(core CoreLookup, middleware ...Middleware) *Client {
	// Apply middleware in reverse order so the first middleware is the outermost.
	for i := len(middleware) - 1; i >= 0; i-- {
		core = middleware[i](core)
	}
	return &Client{core: core}
}

// SubtestScore implements ports.NormativeLookup.
func (c *Client) SubtestScore(ctx context.Context, ageInMonths int, subtest domain.Subtest, raw int) (domain.NormScore, error) {
	if !subtest.Valid() {
		return domain.NormScore{}, fmt.Errorf("%w: %q", domain.ErrInvalidSubtest, subtest)
	}
	return c.core.Lookup(ctx, SubtestQuery(ageInMonths, subtest, raw))
}

// CompositeScore implements ports.NormativeLookup.
func (c *Client) CompositeScore(ctx context.Context, sum int) (domain.NormScore, error) {
	return c.core.Lookup(ctx, CompositeQuery(sum))
}

// Source returns the name of the underlying provider.
func (c *Client) Source() string { return c.core.Source() }

// isOutOfRange reports whether err means the inputs are outside the tables.
func isOutOfRange(err error) bool { return errors.Is(err, domain.ErrNormTableOutOfRange) }

// isProviderFault reports whether err should count against the provider's
// health. Out-of-range answers are correct answers about bad inputs.
func isProviderFault(err error) bool {
	return err != nil && !isOutOfRange(err) && ports.IsTransient(err)
}
