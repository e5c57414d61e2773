package norms

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-owls/internal/application"
)

// TableLoader parses, validates and compiles norm table documents. Compiled
// tables are cached by the SHA-256 of the normalized document, so loading
// an unchanged file again returns the same *Tables.
type TableLoader struct {
	validator *validator.Validate

	// cache stores compiled tables indexed by document hash. Cached tables
	// are shared and must not be mutated.
	cache   map[string]*Tables
	cacheMu sync.RWMutex

	// sf prevents duplicate compilation when several goroutines load the
	// same document at once.
	sf singleflight.Group
}

// NewTableLoader creates a loader with the percentilerank validator
// registered.
func NewTableLoader() (*TableLoader, error) {
	v, err := application.NewConfigValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to register validators: %w", err)
	}
	return &TableLoader{
		validator: v,
		cache:     make(map[string]*Tables),
	}, nil
}

// LoadFromFile loads and compiles the norm tables at path.
func (l *TableLoader) LoadFromFile(ctx context.Context, path string) (*Tables, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read norm tables: %w", err)
	}
	return l.load(ctx, data)
}

// LoadFromReader loads and compiles norm tables from r.
func (l *TableLoader) LoadFromReader(ctx context.Context, r io.Reader) (*Tables, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read norm tables: %w", err)
	}
	return l.load(ctx, data)
}

func (l *TableLoader) load(ctx context.Context, data []byte) (*Tables, error) {
	doc, err := parseTables(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse norm tables: %w", err)
	}

	// Hash the normalized document so formatting changes do not defeat the
	// cache.
	hash, err := documentHash(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate hash: %w", err)
	}

	v, err, _ := l.sf.Do(hash, func() (any, error) {
		if t, ok := l.cached(hash); ok {
			return t, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := l.validator.Struct(doc); err != nil {
			return nil, fmt.Errorf("norm table validation failed: %w", err)
		}
		t, err := compileTables(doc)
		if err != nil {
			return nil, err
		}
		l.cacheMu.Lock()
		l.cache[hash] = t
		l.cacheMu.Unlock()
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Tables), nil
}

func (l *TableLoader) cached(hash string) (*Tables, bool) {
	l.cacheMu.RLock()
	defer l.cacheMu.RUnlock()
	t, ok := l.cache[hash]
	return t, ok
}

// parseTables decodes a document strictly so misspelled keys fail.
func parseTables(data []byte) (*TablesDocument, error) {
	var doc TablesDocument
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Strict mode - fail on unknown fields.
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("YAML decode failed: %w", err)
	}
	return &doc, nil
}

func documentHash(doc *TablesDocument) (string, error) {
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(doc); err != nil {
		return "", fmt.Errorf("failed to encode norm tables for hashing: %w", err)
	}
	hash := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(hash[:]), nil
}
