package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shaiso/Harvester/internal/domain"
)

// sqliteSchema — схема tasks для SQLite. Время хранится в unix-миллисекундах.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS tasks (
	id            TEXT PRIMARY KEY,
	type          TEXT NOT NULL,
	url           TEXT NOT NULL,
	payload       TEXT,
	status        TEXT NOT NULL DEFAULT 'pending',
	worker_id     TEXT,
	processing_by TEXT,
	created_at    INTEGER NOT NULL,
	started_at    INTEGER,
	completed_at  INTEGER,
	duration_ms   INTEGER,
	result        TEXT,
	error         TEXT
);
CREATE INDEX IF NOT EXISTS idx_tasks_status_created ON tasks (status, created_at);
CREATE INDEX IF NOT EXISTS idx_tasks_status_completed ON tasks (status, completed_at);
`

// busyRetries — повторы операции при SQLITE_BUSY/SQLITE_LOCKED сверх busy_timeout.
const busyRetries = 5

// SQLiteTaskRepo — TaskStore на SQLite для одного воркера.
type SQLiteTaskRepo struct {
	db  *sql.DB
	now func() time.Time
}

var _ TaskStore = (*SQLiteTaskRepo)(nil)

// NewSQLiteTaskRepo создаёт новый SQLiteTaskRepo.
func NewSQLiteTaskRepo(db *sql.DB) *SQLiteTaskRepo {
	return &SQLiteTaskRepo{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock подменяет часы store. Используется в тестах.
func (r *SQLiteTaskRepo) WithClock(now func() time.Time) *SQLiteTaskRepo {
	r.now = now
	return r
}

// Migrate создаёт таблицу и индексы, если их нет.
func (r *SQLiteTaskRepo) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("migrate tasks: %w", err)
	}
	return nil
}

// Enqueue вставляет tasks; каждая вставка независима.
func (r *SQLiteTaskRepo) Enqueue(ctx context.Context, tasks ...*domain.Task) []EnqueueResult {
	results := make([]EnqueueResult, len(tasks))
	for i, task := range tasks {
		results[i] = EnqueueResult{Err: r.insert(ctx, task)}
		if task != nil {
			results[i].ID = task.ID
		}
	}
	return results
}

func (r *SQLiteTaskRepo) insert(ctx context.Context, task *domain.Task) error {
	if err := prepareForEnqueue(task, r.now()); err != nil {
		return err
	}

	payloadJSON, err := marshalMap(task.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	err = retryOnBusy(ctx, func() error {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO tasks (id, type, url, payload, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, task.ID, string(task.Type), task.URL, nullBytes(payloadJSON), string(task.Status), toMillis(task.CreatedAt))
		return err
	})
	if isConstraintViolation(err) {
		return fmt.Errorf("%w: task %s", ErrAlreadyExists, task.ID)
	}
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// Claim захватывает tasks одним условным UPDATE.
func (r *SQLiteTaskRepo) Claim(ctx context.Context, claimant domain.Claimant, limit int) ([]domain.Task, error) {
	if limit <= 0 {
		return nil, nil
	}

	query := `
		UPDATE tasks
		SET status = 'processing', worker_id = ?, processing_by = ?, started_at = ?
		WHERE status = 'pending' AND id IN (
			SELECT id FROM tasks
			WHERE status = 'pending'
			ORDER BY created_at ASC, rowid ASC
			LIMIT ?
		)
		RETURNING rowid, ` + taskColumns

	type claimed struct {
		rowid int64
		task  domain.Task
	}
	var batch []claimed

	err := retryOnBusy(ctx, func() error {
		batch = batch[:0]

		rows, err := r.db.QueryContext(ctx, query, claimant.WorkerID, claimant.ProcessingBy, toMillis(r.now()), limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var c claimed
			if err := scanSQLiteTask(rows.Scan, &c.task, &c.rowid); err != nil {
				return err
			}
			batch = append(batch, c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("claim tasks: %w", err)
	}

	// RETURNING не гарантирует порядок.
	sort.SliceStable(batch, func(i, j int) bool {
		if !batch[i].task.CreatedAt.Equal(batch[j].task.CreatedAt) {
			return batch[i].task.CreatedAt.Before(batch[j].task.CreatedAt)
		}
		return batch[i].rowid < batch[j].rowid
	})

	tasks := make([]domain.Task, len(batch))
	for i := range batch {
		tasks[i] = batch[i].task
	}
	return tasks, nil
}

// Complete переводит task в completed.
func (r *SQLiteTaskRepo) Complete(ctx context.Context, id string, outcome domain.Outcome) (bool, error) {
	resultJSON, err := marshalMap(outcome.Result)
	if err != nil {
		return false, fmt.Errorf("marshal result: %w", err)
	}

	n, err := r.exec(ctx, `
		UPDATE tasks
		SET status = 'completed', result = ?, error = NULL, duration_ms = ?, completed_at = ?
		WHERE id = ? AND status = 'processing' AND (? = '' OR worker_id = ?)
	`, nullBytes(resultJSON), outcome.DurationMs, toMillis(r.now()), id, outcome.ClaimedBy, outcome.ClaimedBy)
	if err != nil {
		return false, fmt.Errorf("complete task: %w", err)
	}
	return n == 1, nil
}

// Fail переводит task в failed.
func (r *SQLiteTaskRepo) Fail(ctx context.Context, id string, outcome domain.Outcome) (bool, error) {
	resultJSON, err := marshalMap(outcome.Result)
	if err != nil {
		return false, fmt.Errorf("marshal result: %w", err)
	}

	n, err := r.exec(ctx, `
		UPDATE tasks
		SET status = 'failed', result = ?, error = ?, duration_ms = ?, completed_at = ?
		WHERE id = ? AND status = 'processing' AND (? = '' OR worker_id = ?)
	`, nullBytes(resultJSON), outcome.Error, outcome.DurationMs, toMillis(r.now()), id, outcome.ClaimedBy, outcome.ClaimedBy)
	if err != nil {
		return false, fmt.Errorf("fail task: %w", err)
	}
	return n == 1, nil
}

// ResetStuck возвращает зависшие tasks в pending.
func (r *SQLiteTaskRepo) ResetStuck(ctx context.Context, threshold time.Duration) (int64, error) {
	n, err := r.exec(ctx, `
		UPDATE tasks
		SET status = 'pending', worker_id = NULL, processing_by = NULL, started_at = NULL
		WHERE status = 'processing' AND started_at < ?
	`, toMillis(r.now().Add(-threshold)))
	if err != nil {
		return 0, fmt.Errorf("reset stuck tasks: %w", err)
	}
	return n, nil
}

// Cleanup удаляет старые терминальные tasks.
func (r *SQLiteTaskRepo) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	n, err := r.exec(ctx, `
		DELETE FROM tasks
		WHERE status IN ('completed', 'failed') AND completed_at < ?
	`, toMillis(r.now().Add(-olderThan)))
	if err != nil {
		return 0, fmt.Errorf("cleanup tasks: %w", err)
	}
	return n, nil
}

// Statistics считает tasks по статусам.
func (r *SQLiteTaskRepo) Statistics(ctx context.Context) (domain.TaskStats, error) {
	var stats domain.TaskStats

	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return stats, fmt.Errorf("task statistics: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return stats, fmt.Errorf("scan statistics: %w", err)
		}
		stats.Set(domain.TaskStatus(status), count)
	}
	return stats, rows.Err()
}

// GetByID возвращает task по ID.
func (r *SQLiteTaskRepo) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)

	var task domain.Task
	err := scanSQLiteTask(row.Scan, &task, nil)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// List возвращает tasks, новые первыми.
func (r *SQLiteTaskRepo) List(ctx context.Context, filter ListFilter) ([]domain.Task, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if filter.Status != "" {
		rows, err = r.db.QueryContext(ctx, `
			SELECT `+taskColumns+` FROM tasks
			WHERE status = ?
			ORDER BY created_at DESC, rowid DESC
			LIMIT ?
		`, string(filter.Status), filter.limit())
	} else {
		rows, err = r.db.QueryContext(ctx, `
			SELECT `+taskColumns+` FROM tasks
			ORDER BY created_at DESC, rowid DESC
			LIMIT ?
		`, filter.limit())
	}
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		var task domain.Task
		if err := scanSQLiteTask(rows.Scan, &task, nil); err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// Close закрывает БД.
func (r *SQLiteTaskRepo) Close() error {
	return r.db.Close()
}

// --- Helpers ---

func (r *SQLiteTaskRepo) exec(ctx context.Context, query string, args ...any) (int64, error) {
	var affected int64
	err := retryOnBusy(ctx, func() error {
		res, err := r.db.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	return affected, err
}

// scanSQLiteTask сканирует строку в порядке taskColumns; rowid, если не nil, идёт первым.
func scanSQLiteTask(scan func(dest ...any) error, task *domain.Task, rowid *int64) error {
	var (
		taskType, status                   string
		payload, result                    sql.NullString
		workerID, processingBy, taskError  sql.NullString
		createdAt                          int64
		startedAt, completedAt, durationMs sql.NullInt64
	)

	dest := []any{
		&task.ID, &taskType, &task.URL, &payload, &status, &workerID, &processingBy,
		&createdAt, &startedAt, &completedAt, &durationMs, &result, &taskError,
	}
	if rowid != nil {
		dest = append([]any{rowid}, dest...)
	}
	if err := scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return err
		}
		return fmt.Errorf("scan task: %w", err)
	}

	task.Type = domain.TaskType(taskType)
	task.Status = domain.TaskStatus(status)
	task.WorkerID = workerID.String
	task.ProcessingBy = processingBy.String
	task.Error = taskError.String
	task.CreatedAt = fromMillis(createdAt)
	task.StartedAt = optMillis(startedAt)
	task.CompletedAt = optMillis(completedAt)
	if durationMs.Valid {
		d := durationMs.Int64
		task.DurationMs = &d
	}

	var err error
	if task.Payload, err = unmarshalMap([]byte(payload.String)); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	if task.Result, err = unmarshalMap([]byte(result.String)); err != nil {
		return fmt.Errorf("unmarshal result: %w", err)
	}
	return nil
}

// retryOnBusy повторяет f при SQLITE_BUSY/SQLITE_LOCKED с экспоненциальной паузой.
func retryOnBusy(ctx context.Context, f func() error) error {
	const (
		baseDelay = 50 * time.Millisecond
		maxDelay  = 500 * time.Millisecond
	)

	var err error
	for attempt := 0; attempt <= busyRetries; attempt++ {
		if err = f(); err == nil || !isBusy(err) || attempt == busyRetries {
			return err
		}

		delay := min(baseDelay<<attempt, maxDelay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}

func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
}

func isConstraintViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func optMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

func nullBytes(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}
