// Package badgerstore provides an EvaluationStore backed by BadgerDB, an
// embedded key-value store. It suits single-node deployments that need
// evaluations to survive restarts without running a database server.
//
// Records are stored as JSON under three key families:
//
//	eval/{evaluationID}            evaluation
//	task/{evaluationID}/{taskID}   task
//	result/{evaluationID}          score result
//
// Every status-guarded write reads the evaluation and writes inside one
// read-write transaction. Badger's optimistic concurrency control aborts
// the commit if another transaction changed the evaluation first, which
// makes each guard a compare-and-set.
package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/ahrav/go-owls/internal/domain"
	"github.com/ahrav/go-owls/internal/ports"
)

const backend = "badger"

// maxTxnAttempts bounds how often a write is replayed after losing an
// optimistic concurrency race.
const maxTxnAttempts = 3

// Config holds configuration for a Badger-backed store.
type Config struct {
	// Path is the directory for database files. Ignored when InMemory is
	// true.
	Path string

	// InMemory keeps all data in memory. Data is lost on Close.
	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool

	// GCInterval is how often value log garbage collection runs. Zero
	// disables it.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum garbage ratio that triggers a rewrite.
	GCDiscardRatio float64

	// Logger receives Badger's internal log output. Nil silences it.
	Logger *slog.Logger
}

// DefaultConfig returns production defaults for a database at path.
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns a configuration for tests and ephemeral runs.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// Store implements ports.EvaluationStore on BadgerDB.
type Store struct {
	db     *badger.DB
	gc     *gcRunner
	closed atomic.Bool
}

var _ ports.EvaluationStore = (*Store)(nil)

// Open opens or creates the database described by cfg.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	s := &Store{db: db}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.gc = newGCRunner(db, cfg.GCInterval, cfg.GCDiscardRatio, cfg.Logger)
		s.gc.start()
	}
	return s, nil
}

func evaluationKey(id string) []byte { return []byte("eval/" + id) }
func taskPrefix(evaluationID string) []byte {
	return []byte("task/" + evaluationID + "/")
}
func taskKey(evaluationID, taskID string) []byte {
	return []byte("task/" + evaluationID + "/" + taskID)
}
func resultKey(evaluationID string) []byte { return []byte("result/" + evaluationID) }

// CreateEvaluation implements ports.EvaluationStore.
func (s *Store) CreateEvaluation(ctx context.Context, ev domain.Evaluation) error {
	if ev.Status != domain.StatusDraft {
		return domain.ErrPreconditionFailed
	}
	return s.update(ctx, "CreateEvaluation", ev.ID, func(txn *badger.Txn) error {
		if _, err := txn.Get(evaluationKey(ev.ID)); err == nil {
			return ports.NewStoreError(backend, "CreateEvaluation", ev.ID, ports.ErrConflict)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return putJSON(txn, evaluationKey(ev.ID), ev)
	})
}

// PopulateTasks implements ports.EvaluationStore.
func (s *Store) PopulateTasks(ctx context.Context, evaluationID string, tasks []domain.Task) error {
	return s.update(ctx, "PopulateTasks", evaluationID, func(txn *badger.Txn) error {
		ev, err := getEvaluation(txn, evaluationID)
		if err != nil {
			return err
		}
		if ev.Status != domain.StatusDraft {
			return domain.ErrPreconditionFailed
		}
		for _, t := range tasks {
			t.EvaluationID = evaluationID
			if err := putJSON(txn, taskKey(evaluationID, t.ID), t); err != nil {
				return err
			}
		}
		ev.Status = domain.StatusInProgress
		return putJSON(txn, evaluationKey(evaluationID), ev)
	})
}

// DeleteDraft implements ports.EvaluationStore.
func (s *Store) DeleteDraft(ctx context.Context, evaluationID string) error {
	return s.update(ctx, "DeleteDraft", evaluationID, func(txn *badger.Txn) error {
		ev, err := getEvaluation(txn, evaluationID)
		if err != nil {
			return err
		}
		if ev.Status != domain.StatusDraft {
			return domain.ErrPreconditionFailed
		}
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = taskPrefix(evaluationID)
		it := txn.NewIterator(opts)
		var keys [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return txn.Delete(evaluationKey(evaluationID))
	})
}

// GetEvaluation implements ports.EvaluationStore.
func (s *Store) GetEvaluation(ctx context.Context, evaluationID string) (domain.Evaluation, error) {
	var ev domain.Evaluation
	err := s.view(ctx, "GetEvaluation", evaluationID, func(txn *badger.Txn) error {
		var err error
		ev, err = getEvaluation(txn, evaluationID)
		return err
	})
	return ev, err
}

// ListEvaluations implements ports.EvaluationStore.
func (s *Store) ListEvaluations(ctx context.Context, filter ports.EvaluationFilter) ([]domain.Evaluation, error) {
	var out []domain.Evaluation
	err := s.view(ctx, "ListEvaluations", "", func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, PrefetchSize: 100, Prefix: []byte("eval/")})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var ev domain.Evaluation
			if err := it.Item().Value(func(v []byte) error { return json.Unmarshal(v, &ev) }); err != nil {
				return err
			}
			if filter.Matches(ev) {
				out = append(out, ev)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	if out == nil {
		out = []domain.Evaluation{}
	}
	return out, nil
}

// ListTasks implements ports.EvaluationStore.
func (s *Store) ListTasks(ctx context.Context, evaluationID string) ([]domain.Task, error) {
	var out []domain.Task
	err := s.view(ctx, "ListTasks", evaluationID, func(txn *badger.Txn) error {
		if _, err := getEvaluation(txn, evaluationID); err != nil {
			return err
		}
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, PrefetchSize: 64, Prefix: taskPrefix(evaluationID)})
		defer it.Close()
		out = make([]domain.Task, 0, 64)
		for it.Rewind(); it.Valid(); it.Next() {
			var t domain.Task
			if err := it.Item().Value(func(v []byte) error { return json.Unmarshal(v, &t) }); err != nil {
				return err
			}
			out = append(out, t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	domain.SortTasks(out)
	return out, nil
}

// GetTask implements ports.EvaluationStore.
func (s *Store) GetTask(ctx context.Context, evaluationID, taskID string) (domain.Task, error) {
	var t domain.Task
	err := s.view(ctx, "GetTask", taskID, func(txn *badger.Txn) error {
		return getJSON(txn, taskKey(evaluationID, taskID), &t)
	})
	return t, err
}

// UpdateTaskResponse implements ports.EvaluationStore.
func (s *Store) UpdateTaskResponse(ctx context.Context, evaluationID, taskID string, response domain.Response, at time.Time) error {
	return s.update(ctx, "UpdateTaskResponse", taskID, func(txn *badger.Txn) error {
		ev, err := getEvaluation(txn, evaluationID)
		if err != nil {
			return err
		}
		if ev.Status != domain.StatusInProgress {
			return domain.ErrPreconditionFailed
		}
		var t domain.Task
		if err := getJSON(txn, taskKey(evaluationID, taskID), &t); err != nil {
			return err
		}
		t.Response = response
		t.LastModifiedAt = at
		if err := putJSON(txn, taskKey(evaluationID, taskID), t); err != nil {
			return err
		}
		// Rewriting the evaluation puts it in this transaction's write set,
		// so a concurrent completion conflicts with this write.
		return putJSON(txn, evaluationKey(evaluationID), ev)
	})
}

// CompleteEvaluation implements ports.EvaluationStore.
func (s *Store) CompleteEvaluation(ctx context.Context, result domain.ScoreResult) error {
	return s.update(ctx, "CompleteEvaluation", result.EvaluationID, func(txn *badger.Txn) error {
		ev, err := getEvaluation(txn, result.EvaluationID)
		if err != nil {
			return err
		}
		if ev.Status != domain.StatusInProgress {
			return domain.ErrPreconditionFailed
		}
		completedAt := result.ComputedAt
		ev.Status = domain.StatusCompleted
		ev.CompletedAt = &completedAt
		if err := putJSON(txn, resultKey(ev.ID), result); err != nil {
			return err
		}
		return putJSON(txn, evaluationKey(ev.ID), ev)
	})
}

// GetScoreResult implements ports.EvaluationStore.
func (s *Store) GetScoreResult(ctx context.Context, evaluationID string) (domain.ScoreResult, error) {
	var r domain.ScoreResult
	err := s.view(ctx, "GetScoreResult", evaluationID, func(txn *badger.Txn) error {
		return getJSON(txn, resultKey(evaluationID), &r)
	})
	return r, err
}

// Ping implements ports.EvaluationStore.
func (s *Store) Ping(ctx context.Context) error {
	return s.view(ctx, "Ping", "", func(*badger.Txn) error { return nil })
}

// Close stops garbage collection and closes the database. Later calls fail
// with ErrServiceUnavailable.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.gc != nil {
		s.gc.stop()
	}
	return s.db.Close()
}

// update runs fn in a read-write transaction, replaying it when the commit
// loses an optimistic concurrency race.
func (s *Store) update(ctx context.Context, op, key string, fn func(*badger.Txn) error) error {
	var err error
	for range maxTxnAttempts {
		if uerr := s.usable(ctx, op, key); uerr != nil {
			return uerr
		}
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
	}
	return s.mapError(op, key, err)
}

func (s *Store) view(ctx context.Context, op, key string, fn func(*badger.Txn) error) error {
	if err := s.usable(ctx, op, key); err != nil {
		return err
	}
	return s.mapError(op, key, s.db.View(fn))
}

func (s *Store) usable(ctx context.Context, op, key string) error {
	if err := ctx.Err(); err != nil {
		return ports.NewStoreError(backend, op, key, err)
	}
	if s.closed.Load() {
		return ports.NewStoreError(backend, op, key, ports.ErrServiceUnavailable)
	}
	return nil
}

// mapError passes domain errors and StoreErrors through and wraps
// everything else as a StoreError.
func (s *Store) mapError(op, key string, err error) error {
	var storeErr *ports.StoreError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrPreconditionFailed), errors.As(err, &storeErr):
		return err
	case errors.Is(err, badger.ErrConflict):
		return ports.NewStoreError(backend, op, key, fmt.Errorf("%w: %v", ports.ErrConflict, err))
	case errors.Is(err, badger.ErrDBClosed):
		return ports.NewStoreError(backend, op, key, fmt.Errorf("%w: %v", ports.ErrServiceUnavailable, err))
	default:
		return ports.NewStoreError(backend, op, key, err)
	}
}

func getEvaluation(txn *badger.Txn, id string) (domain.Evaluation, error) {
	var ev domain.Evaluation
	err := getJSON(txn, evaluationKey(id), &ev)
	return ev, err
}

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(b []byte) error { return json.Unmarshal(b, v) })
}

func putJSON(txn *badger.Txn, key []byte, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return txn.Set(key, b)
}
