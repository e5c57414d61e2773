package application

// Config is the complete runtime configuration of the evaluation service
// and serves as the primary configuration entry point for the binary.
// Use DefaultConfig as the base and overlay a YAML file with LoadConfig.
type Config struct {
	// Server configures the HTTP listener.
	Server ServerConfig `yaml:"server" validate:"required"`
	// Auth selects how bearer tokens are verified.
	Auth AuthConfig `yaml:"auth"`
	// Storage selects and configures the task store backend.
	Storage StorageConfig `yaml:"storage" validate:"required"`
	// Norms selects the normative table source and the resilience policy
	// applied to lookups.
	Norms NormsConfig `yaml:"norms" validate:"required"`
	// Scoring configures the item bank and the completeness rule enforced
	// before calculation.
	Scoring ScoringConfig `yaml:"scoring"`
	// Telemetry configures tracing and metrics exposure.
	Telemetry TelemetryConfig `yaml:"telemetry"`
	// Logging configures the structured logger.
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig controls the HTTP listener and its timeouts.
type ServerConfig struct {
	// Addr is the listen address in host:port form; the host may be empty.
	Addr string `yaml:"addr" validate:"required,listenaddr"`
	// ReadTimeoutSeconds bounds reading an entire request.
	ReadTimeoutSeconds int `yaml:"read_timeout_seconds" validate:"min=1,max=300"`
	// WriteTimeoutSeconds bounds writing a response.
	WriteTimeoutSeconds int `yaml:"write_timeout_seconds" validate:"min=1,max=300"`
	// ShutdownTimeoutSeconds is the grace period for in-flight requests on
	// shutdown.
	ShutdownTimeoutSeconds int `yaml:"shutdown_timeout_seconds" validate:"min=0,max=300"`
	// TrustedProxies lists proxy CIDRs whose forwarding headers are honored.
	TrustedProxies []string `yaml:"trusted_proxies" validate:"dive,cidr|ip"`
}

// AuthConfig selects how bearer tokens are verified.
type AuthConfig struct {
	// Mode is "none" (every request runs as an anonymous session) or "jwt"
	// (HMAC-signed bearer tokens).
	Mode string `yaml:"mode" validate:"required,oneof=none jwt"`
	// JWTSecret is the HMAC key. Prefer the OWLS_JWT_SECRET environment
	// variable over placing it in the file.
	JWTSecret string `yaml:"jwt_secret"`
	// Issuer, when set, must match the token's iss claim.
	Issuer string `yaml:"issuer"`
}

// StorageConfig selects the task store backend.
type StorageConfig struct {
	// Driver is one of memory, badger, postgres or mysql.
	Driver string `yaml:"driver" validate:"required,oneof=memory badger postgres mysql"`
	// Path is the badger data directory. Empty runs badger in memory.
	Path string `yaml:"path"`
	// DSN is the database connection string for postgres and mysql.
	DSN string `yaml:"dsn"`
	// MaxOpenConns caps the SQL connection pool.
	MaxOpenConns int `yaml:"max_open_conns" validate:"min=0,max=1000"`
}

// NormsConfig selects the normative table source and its lookup policy.
type NormsConfig struct {
	// Source is "file" (tables loaded from TablesFile) or "http" (a remote
	// norm service at URL).
	Source string `yaml:"source" validate:"required,oneof=file http"`
	// TablesFile is the YAML norm table document used by the file source.
	TablesFile string `yaml:"tables_file"`
	// URL is the base URL of the remote norm service.
	URL string `yaml:"url" validate:"omitempty,url"`
	// TimeoutMs bounds a single lookup.
	TimeoutMs int `yaml:"timeout_ms" validate:"min=1,max=60000"`
	// RateLimitPerSecond caps sustained lookups; zero disables limiting.
	RateLimitPerSecond float64 `yaml:"rate_limit_per_second" validate:"min=0"`
	// Burst is the token bucket size used with RateLimitPerSecond.
	Burst int `yaml:"burst" validate:"min=0,max=1000"`
	// Retry configures retries of transient lookup failures.
	Retry RetryConfig `yaml:"retry"`
	// CircuitBreaker configures fast failure after repeated transient
	// failures.
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// RetryConfig specifies the recovery strategy for transient lookup
// failures. Out-of-range results are never retried.
type RetryConfig struct {
	// MaxAttempts is the number of retries after the first attempt; zero
	// disables retries.
	MaxAttempts int `yaml:"max_attempts" validate:"min=0,max=10"`
	// InitialWaitMs is the base delay before the first retry.
	InitialWaitMs int `yaml:"initial_wait_ms" validate:"min=0,max=60000"`
	// MaxWaitMs caps the backoff delay.
	MaxWaitMs int `yaml:"max_wait_ms" validate:"min=0,max=300000,gtefield=InitialWaitMs"`
}

// CircuitBreakerConfig configures the lookup circuit breaker.
type CircuitBreakerConfig struct {
	// MaxFailures is the number of consecutive transient failures that
	// opens the circuit. Zero disables the breaker.
	MaxFailures int `yaml:"max_failures" validate:"min=0,max=100"`
	// CooldownSeconds is how long the circuit stays open.
	CooldownSeconds int `yaml:"cooldown_seconds" validate:"min=0,max=3600"`
}

// ScoringConfig configures the item bank and the calculation preconditions.
type ScoringConfig struct {
	// Completeness is the rule checked before calculating: none,
	// any_response (each subtest has at least one answered item) or
	// all_answered (every item answered).
	Completeness string `yaml:"completeness" validate:"required,oneof=none any_response all_answered"`
	// ItemBankFile replaces the built-in item bank when set.
	ItemBankFile string `yaml:"item_bank_file"`
}

// TelemetryConfig configures tracing and metrics exposure.
type TelemetryConfig struct {
	// ServiceName identifies this service in traces.
	ServiceName string `yaml:"service_name" validate:"required"`
	// TraceExporter is "none" or "stdout".
	TraceExporter string `yaml:"trace_exporter" validate:"required,oneof=none stdout"`
	// MetricsEnabled exposes Prometheus metrics at MetricsPath.
	MetricsEnabled bool `yaml:"metrics_enabled"`
	// MetricsPath is the scrape path.
	MetricsPath string `yaml:"metrics_path" validate:"required,startswith=/"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level" validate:"required,oneof=debug info warn error"`
	// Format is json or text.
	Format string `yaml:"format" validate:"required,oneof=json text"`
}

// DefaultConfig returns a configuration that runs entirely in process:
// in-memory store, anonymous sessions and norm tables from ./norms.yaml.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Addr:                   ":8080",
			ReadTimeoutSeconds:     15,
			WriteTimeoutSeconds:    15,
			ShutdownTimeoutSeconds: 10,
		},
		Auth:    AuthConfig{Mode: "none"},
		Storage: StorageConfig{Driver: "memory", MaxOpenConns: 10},
		Norms: NormsConfig{
			Source:     "file",
			TablesFile: "norms.yaml",
			TimeoutMs:  2000,
			Burst:      1,
			Retry: RetryConfig{
				MaxAttempts:   2,
				InitialWaitMs: 100,
				MaxWaitMs:     1000,
			},
			CircuitBreaker: CircuitBreakerConfig{MaxFailures: 5, CooldownSeconds: 30},
		},
		Scoring: ScoringConfig{Completeness: CompletenessAnyResponse.String()},
		Telemetry: TelemetryConfig{
			ServiceName:    "owls",
			TraceExporter:  "none",
			MetricsEnabled: true,
			MetricsPath:    "/metrics",
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}
