// Package httpapi exposes the evaluation service over HTTP using gin.
package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/ahrav/go-owls/internal/application"
	"github.com/ahrav/go-owls/internal/ports"
)

// Options configures NewRouter.
type Options struct {
	// Service is the evaluation core. Required.
	Service *application.Service

	// Authenticator verifies bearer tokens. Required.
	Authenticator ports.Authenticator

	// Logger receives request and error logs. Defaults to slog.Default().
	Logger *slog.Logger

	// ServiceName names the otelgin request spans. Empty disables request
	// tracing.
	ServiceName string

	// MetricsPath and MetricsHandler expose metrics when both are set.
	MetricsPath    string
	MetricsHandler http.Handler

	// TrustedProxies lists proxies whose forwarding headers are honored.
	TrustedProxies []string
}

// NewRouter builds the gin engine serving the evaluation API.
//
//	GET  /health
//	POST /evaluation
//	GET  /evaluation/:id
//	POST /evaluation/:id/response
//	POST /evaluation/:id/undo
//	POST /evaluation/:id/calculate
//	GET  /evaluation/:id/progress
//	GET  /evaluation/:id/score
//	GET  /evaluations
func NewRouter(opts Options) (*gin.Engine, error) {
	if opts.Service == nil {
		return nil, errors.New("service is required")
	}
	if opts.Authenticator == nil {
		return nil, errors.New("authenticator is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	router := gin.New()
	if err := router.SetTrustedProxies(opts.TrustedProxies); err != nil {
		return nil, err
	}
	router.Use(gin.Recovery())
	if opts.ServiceName != "" {
		router.Use(otelgin.Middleware(opts.ServiceName))
	}
	router.Use(requestLogger(logger))

	h := &handlers{svc: opts.Service, logger: logger}

	router.GET("/health", h.health)
	if opts.MetricsPath != "" && opts.MetricsHandler != nil {
		router.GET(opts.MetricsPath, gin.WrapH(opts.MetricsHandler))
	}

	api := router.Group("/", authMiddleware(opts.Authenticator, logger))
	{
		api.POST("/evaluation", h.createEvaluation)
		api.GET("/evaluations", h.listEvaluations)

		ev := api.Group("/evaluation/:id")
		{
			ev.GET("", h.getEvaluation)
			ev.POST("/response", h.recordResponse)
			ev.POST("/undo", h.undo)
			ev.POST("/calculate", h.calculate)
			ev.GET("/progress", h.progress)
			ev.GET("/score", h.score)
		}
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorBody{Error: codeNotFound, Message: "no such route"})
	})

	return router, nil
}
