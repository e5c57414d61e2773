package norms

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ahrav/go-owls/internal/domain"
	"github.com/ahrav/go-owls/internal/ports"
)

// timeoutLookup bounds each lookup attempt.
type timeoutLookup struct {
	next    CoreLookup
	timeout time.Duration
}

// TimeoutMiddleware creates middleware that bounds each lookup to timeout.
// Expiry of its own deadline is reported as ports.ErrTimeout; expiry of the
// caller's deadline is passed through unchanged.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next CoreLookup) CoreLookup {
		return &timeoutLookup{next: next, timeout: timeout}
	}
}

// Lookup implements CoreLookup.
func (t *timeoutLookup) Lookup(ctx context.Context, q Query) (domain.NormScore, error) {
	tctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	score, err := t.next.Lookup(tctx, q)
	if err != nil && ctx.Err() == nil && errors.Is(tctx.Err(), context.DeadlineExceeded) {
		return domain.NormScore{}, ports.NewLookupError(t.next.Source(), q.Operation(),
			fmt.Errorf("%w after %v", ports.ErrTimeout, t.timeout))
	}
	return score, err
}

// Source implements CoreLookup.
func (t *timeoutLookup) Source() string { return t.next.Source() }
