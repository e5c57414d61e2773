// Package sqlstore provides an EvaluationStore on PostgreSQL (through the
// pgx database/sql driver) or MySQL.
//
// Status-guarded writes run in a transaction that first locks the owning
// evaluation row with SELECT ... FOR UPDATE, so a response write and a
// completion of the same evaluation are serialized by the database.
package sqlstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver

	"github.com/ahrav/go-owls/internal/domain"
	"github.com/ahrav/go-owls/internal/ports"
)

// maxTxnAttempts bounds how often a transaction is replayed after the
// database aborts it to break a lock conflict.
const maxTxnAttempts = 3

// Store implements ports.EvaluationStore on a SQL database.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

var _ ports.EvaluationStore = (*Store)(nil)

// Options tunes the connection pool.
type Options struct {
	// MaxOpenConns caps open connections. Zero keeps the driver default.
	MaxOpenConns int
	// ConnMaxLifetime recycles connections older than this. Zero keeps
	// them indefinitely.
	ConnMaxLifetime time.Duration
}

// Open connects to the database, verifies it is reachable and creates the
// schema if needed.
func Open(ctx context.Context, driverName, dsn string, opts Options) (*Store, error) {
	dialect, err := ParseDialect(driverName)
	if err != nil {
		return nil, err
	}
	dsn, err = dialect.normalizeDSN(dsn)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
		db.SetMaxIdleConns(opts.MaxOpenConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	s := New(db, dialect)
	if err := s.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open database handle. The caller is responsible for the
// schema; see Migrate.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema(s.dialect) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return s.storeError("Migrate", "", err)
		}
	}
	return nil
}

// CreateEvaluation implements ports.EvaluationStore.
func (s *Store) CreateEvaluation(ctx context.Context, ev domain.Evaluation) error {
	if ev.Status != domain.StatusDraft {
		return domain.ErrPreconditionFailed
	}
	const q = `INSERT INTO evaluations
	           (id, first_name, last_name, age_years, age_months, school, status, created_by, created_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, s.dialect.rebind(q),
		ev.ID, ev.Student.FirstName, ev.Student.LastName, ev.Student.AgeYears, ev.Student.AgeMonths,
		ev.Student.School, string(ev.Status), ev.CreatedBy, ev.CreatedAt.UTC())
	if isUniqueViolation(err) {
		return ports.NewStoreError(s.backend(), "CreateEvaluation", ev.ID, ports.ErrConflict)
	}
	return s.storeError("CreateEvaluation", ev.ID, err)
}

// PopulateTasks implements ports.EvaluationStore.
func (s *Store) PopulateTasks(ctx context.Context, evaluationID string, tasks []domain.Task) error {
	return s.withEvaluationLocked(ctx, "PopulateTasks", evaluationID, domain.StatusDraft, func(tx *sql.Tx) error {
		const ins = `INSERT INTO tasks
		             (id, evaluation_id, subtest, position, item, category, description, response)
		             VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
		stmt, err := tx.PrepareContext(ctx, s.dialect.rebind(ins))
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, t := range tasks {
			if _, err := stmt.ExecContext(ctx, t.ID, evaluationID, string(t.Subtest), t.Position,
				t.Item, t.Category, t.Description, string(t.Response)); err != nil {
				return err
			}
		}
		const upd = `UPDATE evaluations SET status = ? WHERE id = ?`
		_, err = tx.ExecContext(ctx, s.dialect.rebind(upd), string(domain.StatusInProgress), evaluationID)
		return err
	})
}

// DeleteDraft implements ports.EvaluationStore.
func (s *Store) DeleteDraft(ctx context.Context, evaluationID string) error {
	return s.withEvaluationLocked(ctx, "DeleteDraft", evaluationID, domain.StatusDraft, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.dialect.rebind(`DELETE FROM tasks WHERE evaluation_id = ?`), evaluationID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, s.dialect.rebind(`DELETE FROM evaluations WHERE id = ?`), evaluationID)
		return err
	})
}

const evaluationColumns = `id, first_name, last_name, age_years, age_months, school, status, created_by, created_at, completed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvaluation(row rowScanner) (domain.Evaluation, error) {
	var (
		ev          domain.Evaluation
		status      string
		completedAt sql.NullTime
	)
	if err := row.Scan(&ev.ID, &ev.Student.FirstName, &ev.Student.LastName, &ev.Student.AgeYears,
		&ev.Student.AgeMonths, &ev.Student.School, &status, &ev.CreatedBy, &ev.CreatedAt, &completedAt); err != nil {
		return domain.Evaluation{}, err
	}
	ev.Status = domain.Status(status)
	ev.CreatedAt = ev.CreatedAt.UTC()
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		ev.CompletedAt = &t
	}
	return ev, nil
}

// GetEvaluation implements ports.EvaluationStore.
func (s *Store) GetEvaluation(ctx context.Context, evaluationID string) (domain.Evaluation, error) {
	q := `SELECT ` + evaluationColumns + ` FROM evaluations WHERE id = ?`
	ev, err := scanEvaluation(s.db.QueryRowContext(ctx, s.dialect.rebind(q), evaluationID))
	if err != nil {
		return domain.Evaluation{}, s.storeError("GetEvaluation", evaluationID, err)
	}
	return ev, nil
}

// ListEvaluations implements ports.EvaluationStore.
func (s *Store) ListEvaluations(ctx context.Context, filter ports.EvaluationFilter) ([]domain.Evaluation, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.CreatedBy != "" {
		where = append(where, "created_by = ?")
		args = append(args, filter.CreatedBy)
	}

	q := `SELECT ` + evaluationColumns + ` FROM evaluations`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(q), args...)
	if err != nil {
		return nil, s.storeError("ListEvaluations", "", err)
	}
	defer rows.Close()

	out := []domain.Evaluation{}
	for rows.Next() {
		ev, err := scanEvaluation(rows)
		if err != nil {
			return nil, s.storeError("ListEvaluations", "", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, s.storeError("ListEvaluations", "", err)
	}
	return out, nil
}

const taskColumns = `id, evaluation_id, subtest, position, item, category, description, response, last_modified_at`

func scanTask(row rowScanner) (domain.Task, error) {
	var (
		t          domain.Task
		subtest    string
		response   string
		modifiedAt sql.NullTime
	)
	if err := row.Scan(&t.ID, &t.EvaluationID, &subtest, &t.Position, &t.Item, &t.Category,
		&t.Description, &response, &modifiedAt); err != nil {
		return domain.Task{}, err
	}
	t.Subtest = domain.Subtest(subtest)
	t.Response = domain.Response(response)
	if modifiedAt.Valid {
		t.LastModifiedAt = modifiedAt.Time.UTC()
	}
	return t, nil
}

// ListTasks implements ports.EvaluationStore.
func (s *Store) ListTasks(ctx context.Context, evaluationID string) ([]domain.Task, error) {
	if _, err := s.GetEvaluation(ctx, evaluationID); err != nil {
		return nil, err
	}

	q := `SELECT ` + taskColumns + ` FROM tasks WHERE evaluation_id = ?`
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(q), evaluationID)
	if err != nil {
		return nil, s.storeError("ListTasks", evaluationID, err)
	}
	defer rows.Close()

	out := make([]domain.Task, 0, 64)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, s.storeError("ListTasks", evaluationID, err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, s.storeError("ListTasks", evaluationID, err)
	}
	domain.SortTasks(out)
	return out, nil
}

// GetTask implements ports.EvaluationStore.
func (s *Store) GetTask(ctx context.Context, evaluationID, taskID string) (domain.Task, error) {
	q := `SELECT ` + taskColumns + ` FROM tasks WHERE evaluation_id = ? AND id = ?`
	t, err := scanTask(s.db.QueryRowContext(ctx, s.dialect.rebind(q), evaluationID, taskID))
	if err != nil {
		return domain.Task{}, s.storeError("GetTask", taskID, err)
	}
	return t, nil
}

// UpdateTaskResponse implements ports.EvaluationStore.
func (s *Store) UpdateTaskResponse(ctx context.Context, evaluationID, taskID string, response domain.Response, at time.Time) error {
	return s.withEvaluationLocked(ctx, "UpdateTaskResponse", evaluationID, domain.StatusInProgress, func(tx *sql.Tx) error {
		const q = `UPDATE tasks SET response = ?, last_modified_at = ? WHERE evaluation_id = ? AND id = ?`
		res, err := tx.ExecContext(ctx, s.dialect.rebind(q), string(response), at.UTC(), evaluationID, taskID)
		if err != nil {
			return err
		}
		// MySQL reports matched-but-unchanged rows as unaffected, so a
		// zero count is confirmed with a read.
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			var one int
			check := `SELECT 1 FROM tasks WHERE evaluation_id = ? AND id = ?`
			if err := tx.QueryRowContext(ctx, s.dialect.rebind(check), evaluationID, taskID).Scan(&one); err != nil {
				return err
			}
		}
		return nil
	})
}

// CompleteEvaluation implements ports.EvaluationStore.
func (s *Store) CompleteEvaluation(ctx context.Context, result domain.ScoreResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode score result: %w", err)
	}
	computedAt := result.ComputedAt.UTC()

	return s.withEvaluationLocked(ctx, "CompleteEvaluation", result.EvaluationID, domain.StatusInProgress, func(tx *sql.Tx) error {
		const ins = `INSERT INTO score_results (evaluation_id, result, computed_at) VALUES (?, ?, ?)`
		if _, err := tx.ExecContext(ctx, s.dialect.rebind(ins), result.EvaluationID, string(payload), computedAt); err != nil {
			return err
		}
		const upd = `UPDATE evaluations SET status = ?, completed_at = ? WHERE id = ?`
		_, err := tx.ExecContext(ctx, s.dialect.rebind(upd), string(domain.StatusCompleted), computedAt, result.EvaluationID)
		return err
	})
}

// GetScoreResult implements ports.EvaluationStore.
func (s *Store) GetScoreResult(ctx context.Context, evaluationID string) (domain.ScoreResult, error) {
	const q = `SELECT result FROM score_results WHERE evaluation_id = ?`
	var payload string
	if err := s.db.QueryRowContext(ctx, s.dialect.rebind(q), evaluationID).Scan(&payload); err != nil {
		return domain.ScoreResult{}, s.storeError("GetScoreResult", evaluationID, err)
	}
	var r domain.ScoreResult
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return domain.ScoreResult{}, s.storeError("GetScoreResult", evaluationID, fmt.Errorf("decode score result: %w", err))
	}
	r.ComputedAt = r.ComputedAt.UTC()
	return r, nil
}

// Ping implements ports.EvaluationStore.
func (s *Store) Ping(ctx context.Context) error {
	return s.storeError("Ping", "", s.db.PingContext(ctx))
}

// Close implements ports.EvaluationStore.
func (s *Store) Close() error { return s.db.Close() }

// withEvaluationLocked runs fn in a transaction holding a row lock on the
// evaluation, provided the evaluation is in status want. The transaction is
// replayed when the database aborts it to break a deadlock.
func (s *Store) withEvaluationLocked(ctx context.Context, op, evaluationID string, want domain.Status, fn func(*sql.Tx) error) error {
	var err error
	for range maxTxnAttempts {
		err = s.lockedTxn(ctx, evaluationID, want, fn)
		if !isSerializationFailure(err) {
			break
		}
	}
	if errors.Is(err, domain.ErrPreconditionFailed) {
		return err
	}
	if isSerializationFailure(err) {
		return ports.NewStoreError(s.backend(), op, evaluationID, fmt.Errorf("%w: %v", ports.ErrConflict, err))
	}
	return s.storeError(op, evaluationID, err)
}

func (s *Store) lockedTxn(ctx context.Context, evaluationID string, want domain.Status, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var status string
	lock := `SELECT status FROM evaluations WHERE id = ? FOR UPDATE`
	if err := tx.QueryRowContext(ctx, s.dialect.rebind(lock), evaluationID).Scan(&status); err != nil {
		return err
	}
	if domain.Status(status) != want {
		return domain.ErrPreconditionFailed
	}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) backend() string { return string(s.dialect) }

// storeError maps driver errors onto the store's error contract.
func (s *Store) storeError(op, key string, err error) error {
	var storeErr *ports.StoreError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows), errors.Is(err, domain.ErrNotFound):
		return domain.ErrNotFound
	case errors.Is(err, domain.ErrPreconditionFailed), errors.As(err, &storeErr):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ports.NewStoreError(s.backend(), op, key, err)
	case errors.Is(err, driver.ErrBadConn), errors.Is(err, sql.ErrConnDone), isConnectionError(err):
		return ports.NewStoreError(s.backend(), op, key, fmt.Errorf("%w: %v", ports.ErrServiceUnavailable, err))
	default:
		return ports.NewStoreError(s.backend(), op, key, err)
	}
}
