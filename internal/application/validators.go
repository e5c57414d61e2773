package application

import (
	"fmt"
	"net"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/ahrav/go-owls/internal/domain"
)

// minJWTSecretLen is the shortest HMAC key accepted in jwt mode.
const minJWTSecretLen = 32

// RegisterConfigValidators registers custom validation functions with
// the validator instance for use in configuration and reference data
// validation.
// RegisterConfigValidators adds the listenaddr and percentilerank tags and
// struct-level rules for AuthConfig, StorageConfig and NormsConfig.
// RegisterConfigValidators returns an error if any validator registration
// fails.
func RegisterConfigValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("listenaddr", validateListenAddr); err != nil {
		return fmt.Errorf("failed to register listenaddr validator: %w", err)
	}

	if err := v.RegisterValidation("percentilerank", validatePercentileRank); err != nil {
		return fmt.Errorf("failed to register percentilerank validator: %w", err)
	}

	v.RegisterStructValidation(validateAuthConfig, AuthConfig{})
	v.RegisterStructValidation(validateStorageConfig, StorageConfig{})
	v.RegisterStructValidation(validateNormsConfig, NormsConfig{})

	return nil
}

// NewConfigValidator returns a validator with RegisterConfigValidators
// applied.
func NewConfigValidator() (*validator.Validate, error) {
	v := validator.New()
	if err := RegisterConfigValidators(v); err != nil {
		return nil, err
	}
	return v, nil
}

// validateListenAddr accepts host:port where the host may be empty and the
// port is a number in [0, 65535].
func validateListenAddr(fl validator.FieldLevel) bool {
	_, port, err := net.SplitHostPort(fl.Field().String())
	if err != nil {
		return false
	}
	n, err := strconv.Atoi(port)
	return err == nil && n >= 0 && n <= 65535
}

// validatePercentileRank checks a percentile rank label such as "63rd" or
// "<0.1".
func validatePercentileRank(fl validator.FieldLevel) bool {
	return domain.ValidPercentileRank(fl.Field().String())
}

// validateAuthConfig requires a sufficiently long secret in jwt mode.
func validateAuthConfig(sl validator.StructLevel) {
	cfg := sl.Current().Interface().(AuthConfig)
	if cfg.Mode == "jwt" && len(cfg.JWTSecret) < minJWTSecretLen {
		sl.ReportError(cfg.JWTSecret, "jwt_secret", "JWTSecret", "min", strconv.Itoa(minJWTSecretLen))
	}
}

// validateStorageConfig requires a DSN for the SQL drivers.
func validateStorageConfig(sl validator.StructLevel) {
	cfg := sl.Current().Interface().(StorageConfig)
	switch cfg.Driver {
	case "postgres", "mysql":
		if cfg.DSN == "" {
			sl.ReportError(cfg.DSN, "dsn", "DSN", "required_for_driver", cfg.Driver)
		}
	}
}

// validateNormsConfig requires the location matching the chosen source.
func validateNormsConfig(sl validator.StructLevel) {
	cfg := sl.Current().Interface().(NormsConfig)
	switch cfg.Source {
	case "file":
		if cfg.TablesFile == "" {
			sl.ReportError(cfg.TablesFile, "tables_file", "TablesFile", "required_for_source", cfg.Source)
		}
	case "http":
		if cfg.URL == "" {
			sl.ReportError(cfg.URL, "url", "URL", "required_for_source", cfg.Source)
		}
	}
	if cfg.CircuitBreaker.MaxFailures > 0 && cfg.CircuitBreaker.CooldownSeconds == 0 {
		sl.ReportError(cfg.CircuitBreaker.CooldownSeconds, "cooldown_seconds", "CooldownSeconds", "required_with_breaker", "")
	}
}
