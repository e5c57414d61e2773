package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ahrav/go-owls/infrastructure/auth"
	"github.com/ahrav/go-owls/infrastructure/norms"
	"github.com/ahrav/go-owls/infrastructure/storage/badgerstore"
	"github.com/ahrav/go-owls/infrastructure/storage/memstore"
	"github.com/ahrav/go-owls/infrastructure/storage/sqlstore"
	"github.com/ahrav/go-owls/internal/application"
	"github.com/ahrav/go-owls/internal/httpapi"
	"github.com/ahrav/go-owls/internal/observability"
	"github.com/ahrav/go-owls/internal/ports"
)

type serveFlags struct {
	configPath string
	envFile    string
}

func newServeCmd() *cobra.Command {
	var f serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the evaluation HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, f)
		},
	}
	cmd.Flags().StringVarP(&f.configPath, "config", "c", "", "path to the YAML configuration file")
	cmd.Flags().StringVar(&f.envFile, "env-file", ".env", "dotenv file loaded before configuration; missing files are ignored")
	return cmd
}

// loadEnvFile loads path into the environment without overriding variables
// that are already set.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func runServe(ctx context.Context, f serveFlags) error {
	if err := loadEnvFile(f.envFile); err != nil {
		return err
	}
	cfg, err := application.LoadConfig(f.configPath)
	if err != nil {
		return err
	}

	logger, err := observability.NewLogger(cfg.Logging, nil)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Telemetry, nil)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	var (
		collector ports.MetricsCollector = ports.NopMetrics{}
		metrics   *observability.PrometheusMetrics
	)
	if cfg.Telemetry.MetricsEnabled {
		metrics = observability.NewPrometheusMetrics()
		collector = metrics
	}

	store, err := openStore(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("closing store", "error", err)
		}
	}()

	lookup, err := norms.NewLookupFromConfig(ctx, cfg.Norms, collector, logger)
	if err != nil {
		return err
	}

	svc, err := newService(cfg, store, lookup, collector, logger)
	if err != nil {
		return err
	}

	authn, err := newAuthenticator(cfg.Auth)
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	routerOpts := httpapi.Options{
		Service:        svc,
		Authenticator:  authn,
		Logger:         logger,
		ServiceName:    cfg.Telemetry.ServiceName,
		TrustedProxies: cfg.Server.TrustedProxies,
	}
	if metrics != nil {
		routerOpts.MetricsPath = cfg.Telemetry.MetricsPath
		routerOpts.MetricsHandler = metrics.Handler()
	}
	router, err := httpapi.NewRouter(routerOpts)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadTimeout:       time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Server.Addr, "storage", cfg.Storage.Driver,
			"norms", lookup.Source(), "auth", cfg.Auth.Mode)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Server.ShutdownTimeoutSeconds)*time.Second)
	defer cancel()

	var errs []error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("tracing shutdown: %w", err))
	}
	return errors.Join(errs...)
}

// openStore opens the evaluation store selected by cfg.Driver.
func openStore(ctx context.Context, cfg application.StorageConfig, logger *slog.Logger) (ports.EvaluationStore, error) {
	switch cfg.Driver {
	case "memory":
		return memstore.New(), nil
	case "badger":
		bcfg := badgerstore.InMemoryConfig()
		if cfg.Path != "" {
			bcfg = badgerstore.DefaultConfig(cfg.Path)
		}
		bcfg.Logger = logger
		return badgerstore.Open(bcfg)
	case "postgres", "mysql":
		if cfg.DSN == "" {
			return nil, ports.NewConfigError("storage.dsn", fmt.Errorf("required for driver %s", cfg.Driver))
		}
		return sqlstore.Open(ctx, cfg.Driver, cfg.DSN, sqlstore.Options{
			MaxOpenConns:    cfg.MaxOpenConns,
			ConnMaxLifetime: 30 * time.Minute,
		})
	default:
		return nil, ports.NewConfigError("storage.driver", fmt.Errorf("unknown driver %q", cfg.Driver))
	}
}

func newService(
	cfg *application.Config,
	store ports.EvaluationStore,
	lookup ports.NormativeLookup,
	collector ports.MetricsCollector,
	logger *slog.Logger,
) (*application.Service, error) {
	rule, err := application.ParseCompletenessRule(cfg.Scoring.Completeness)
	if err != nil {
		return nil, err
	}
	opts := []application.Option{
		application.WithLogger(logger),
		application.WithMetrics(collector),
		application.WithCompleteness(rule),
	}
	if cfg.Scoring.ItemBankFile != "" {
		bank, err := application.LoadItemBank(cfg.Scoring.ItemBankFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, application.WithItemBank(bank))
	}
	return application.NewService(store, lookup, opts...)
}

func newAuthenticator(cfg application.AuthConfig) (ports.Authenticator, error) {
	switch cfg.Mode {
	case "jwt":
		return auth.NewJWTAuthenticator(cfg.JWTSecret, cfg.Issuer)
	case "none", "":
		return auth.NopAuthenticator{}, nil
	default:
		return nil, ports.NewConfigError("auth.mode", fmt.Errorf("unknown mode %q", cfg.Mode))
	}
}
