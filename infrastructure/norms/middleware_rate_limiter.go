package norms

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/ahrav/go-owls/internal/domain"
	"github.com/ahrav/go-owls/internal/ports"
)

// rateLimitedLookup paces lookups with a token bucket shared by every
// caller of the client.
type rateLimitedLookup struct {
	next    CoreLookup
	limiter *rate.Limiter
}

// RateLimitMiddleware creates middleware that allows limit lookups per
// second with bursts of up to burst.
func RateLimitMiddleware(limit rate.Limit, burst int) Middleware {
	limiter := rate.NewLimiter(limit, burst)
	return func(next CoreLookup) CoreLookup {
		return &rateLimitedLookup{next: next, limiter: limiter}
	}
}

// Lookup waits for a token before forwarding the lookup. A wait that
// cannot finish before the caller's deadline fails with
// ports.ErrRateLimited.
func (r *rateLimitedLookup) Lookup(ctx context.Context, q Query) (domain.NormScore, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return domain.NormScore{}, ctx.Err()
		}
		return domain.NormScore{}, ports.NewLookupError(r.next.Source(), q.Operation(),
			fmt.Errorf("%w: %v", ports.ErrRateLimited, err))
	}
	return r.next.Lookup(ctx, q)
}

// Source implements CoreLookup.
func (r *rateLimitedLookup) Source() string { return r.next.Source() }
