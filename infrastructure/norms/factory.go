package norms

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/ahrav/go-owls/internal/application"
	"github.com/ahrav/go-owls/internal/ports"
)

// NewLookupFromConfig builds the provider selected by cfg and wraps it in
// the standard middleware chain: tracing, metrics, rate limiting, retry,
// circuit breaker and a per-attempt timeout. Stages disabled in cfg are
// left out.
func NewLookupFromConfig(ctx context.Context, cfg application.NormsConfig, collector ports.MetricsCollector, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var core CoreLookup
	switch cfg.Source {
	case "file":
		loader, err := NewTableLoader()
		if err != nil {
			return nil, err
		}
		tables, err := loader.LoadFromFile(ctx, cfg.TablesFile)
		if err != nil {
			return nil, fmt.Errorf("load norm tables %s: %w", cfg.TablesFile, err)
		}
		logger.Info("norm tables loaded", "path", cfg.TablesFile, "version", tables.Version())
		core = tables
	case "http":
		h, err := NewHTTPLookup(cfg.URL, &http.Client{})
		if err != nil {
			return nil, err
		}
		logger.Info("using remote norm service", "url", cfg.URL)
		core = h
	default:
		return nil, fmt.Errorf("unknown norms source %q", cfg.Source)
	}

	return NewClient(core, ChainFromConfig(cfg, collector)...), nil
}

// ChainFromConfig returns the middleware chain described by cfg, outermost
// first.
func ChainFromConfig(cfg application.NormsConfig, collector ports.MetricsCollector) []Middleware {
	chain := []Middleware{TracingMiddleware()}
	if collector != nil {
		chain = append(chain, MetricsMiddleware(collector))
	}
	if cfg.RateLimitPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		chain = append(chain, RateLimitMiddleware(rate.Limit(cfg.RateLimitPerSecond), burst))
	}
	if cfg.Retry.MaxAttempts > 0 {
		chain = append(chain, RetryMiddleware(cfg.Retry.MaxAttempts,
			time.Duration(cfg.Retry.InitialWaitMs)*time.Millisecond,
			time.Duration(cfg.Retry.MaxWaitMs)*time.Millisecond))
	}
	if cfg.CircuitBreaker.MaxFailures > 0 {
		chain = append(chain, CircuitBreakerMiddlewareWithMetrics(cfg.CircuitBreaker.MaxFailures,
			time.Duration(cfg.CircuitBreaker.CooldownSeconds)*time.Second, collector))
	}
	if cfg.TimeoutMs > 0 {
		chain = append(chain, TimeoutMiddleware(time.Duration(cfg.TimeoutMs)*time.Millisecond))
	}
	return chain
}
