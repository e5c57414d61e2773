package application

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-owls/internal/domain"
	"github.com/ahrav/go-owls/internal/ports"
)

// Environment variables that override configuration values. Secrets are
// expected to arrive this way rather than through the YAML file.
const (
	EnvServerAddr  = "OWLS_SERVER_ADDR"
	EnvJWTSecret   = "OWLS_JWT_SECRET"
	EnvAuthMode    = "OWLS_AUTH_MODE"
	EnvStorageDSN  = "OWLS_STORAGE_DSN"
	EnvStorageType = "OWLS_STORAGE_DRIVER"
	EnvNormsURL    = "OWLS_NORMS_URL"
	EnvNormsFile   = "OWLS_NORMS_FILE"
	EnvLogLevel    = "OWLS_LOG_LEVEL"
	EnvMetrics     = "OWLS_METRICS_ENABLED"
)

// LoadConfig builds the runtime configuration: DefaultConfig, overlaid by
// the YAML file at path (when path is non-empty), overlaid by OWLS_*
// environment variables, then validated.
// LoadConfig uses strict decoding so that misspelled keys fail loudly.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, ports.NewConfigError(path, ports.ErrConfigNotFound)
			}
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := decodeConfig(bytes.NewReader(data), &cfg); err != nil {
			return nil, ports.NewConfigError(path, err)
		}
	}

	if err := applyEnvOverrides(&cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	if err := ValidateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// decodeConfig decodes YAML onto cfg, keeping values the document omits.
func decodeConfig(r io.Reader, cfg *Config) error {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true) // Strict mode - fail on unknown fields.
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("YAML decode failed: %w", err)
	}
	return nil
}

// applyEnvOverrides copies OWLS_* variables onto cfg.
func applyEnvOverrides(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str(EnvServerAddr, &cfg.Server.Addr)
	str(EnvJWTSecret, &cfg.Auth.JWTSecret)
	str(EnvAuthMode, &cfg.Auth.Mode)
	str(EnvStorageDSN, &cfg.Storage.DSN)
	str(EnvStorageType, &cfg.Storage.Driver)
	str(EnvNormsURL, &cfg.Norms.URL)
	str(EnvNormsFile, &cfg.Norms.TablesFile)
	str(EnvLogLevel, &cfg.Logging.Level)

	if v, ok := lookup(EnvMetrics); ok && v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return ports.NewConfigError(EnvMetrics, fmt.Errorf("invalid boolean %q: %w", v, err))
		}
		cfg.Telemetry.MetricsEnabled = enabled
	}
	return nil
}

// ValidateConfig runs struct tag and struct-level validation on cfg.
func ValidateConfig(cfg *Config) error {
	v, err := NewConfigValidator()
	if err != nil {
		return fmt.Errorf("failed to register validators: %w", err)
	}
	if err := v.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			out := domain.NewValidationError("config")
			for _, fe := range verrs {
				out.AddErrorf("%s failed %q (%s)", fe.Namespace(), fe.Tag(), fe.Param())
			}
			return out
		}
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// itemBankDocument is the YAML layout of an item bank file, keyed by the
// subtest table key.
type itemBankDocument struct {
	LC []domain.BankItem `yaml:"lc" validate:"required,min=1,dive"`
	OE []domain.BankItem `yaml:"oe" validate:"required,min=1,dive"`
}

// LoadItemBank reads an item bank from a YAML file of the form
//
//	lc:
//	  - item: A1
//	    category: Lexical/Semantic
//	    description: vocabulary (nouns)
//	oe:
//	  - ...
//
// An empty path returns the built-in bank.
func LoadItemBank(path string) (domain.ItemBank, error) {
	if path == "" {
		return domain.DefaultItemBank(), nil
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return domain.ItemBank{}, fmt.Errorf("failed to read item bank: %w", err)
	}
	return ParseItemBank(bytes.NewReader(data))
}

// ParseItemBank decodes and validates an item bank document.
func ParseItemBank(r io.Reader) (domain.ItemBank, error) {
	var doc itemBankDocument
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil {
		return domain.ItemBank{}, fmt.Errorf("YAML decode failed: %w", err)
	}
	if err := validator.New().Struct(doc); err != nil {
		return domain.ItemBank{}, fmt.Errorf("item bank validation failed: %w", err)
	}
	bank := domain.ItemBank{Items: map[domain.Subtest][]domain.BankItem{
		domain.ListeningComprehension: doc.LC,
		domain.OralExpression:         doc.OE,
	}}
	if err := bank.Validate(); err != nil {
		return domain.ItemBank{}, err
	}
	return bank, nil
}
