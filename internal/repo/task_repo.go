package repo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Harvester/internal/domain"
)

// pgSchema — схема таблицы tasks для Postgres.
const pgSchema = `
CREATE TABLE IF NOT EXISTS tasks (
	id            TEXT PRIMARY KEY,
	type          TEXT NOT NULL,
	url           TEXT NOT NULL,
	payload       JSONB,
	status        TEXT NOT NULL DEFAULT 'pending',
	worker_id     TEXT,
	processing_by TEXT,
	created_at    TIMESTAMPTZ NOT NULL,
	started_at    TIMESTAMPTZ,
	completed_at  TIMESTAMPTZ,
	duration_ms   BIGINT,
	result        JSONB,
	error         TEXT
);
CREATE INDEX IF NOT EXISTS idx_tasks_status_created ON tasks (status, created_at);
CREATE INDEX IF NOT EXISTS idx_tasks_status_completed ON tasks (status, completed_at);
`

// PgTaskRepo — TaskStore на Postgres.
type PgTaskRepo struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

var _ TaskStore = (*PgTaskRepo)(nil)

// NewPgTaskRepo создаёт новый PgTaskRepo.
func NewPgTaskRepo(pool *pgxpool.Pool) *PgTaskRepo {
	return &PgTaskRepo{pool: pool, now: func() time.Time { return time.Now().UTC() }}
}

// Migrate создаёт таблицу и индексы, если их нет.
func (r *PgTaskRepo) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, pgSchema); err != nil {
		return fmt.Errorf("migrate tasks: %w", err)
	}
	return nil
}

// Enqueue вставляет tasks; каждая вставка независима.
func (r *PgTaskRepo) Enqueue(ctx context.Context, tasks ...*domain.Task) []EnqueueResult {
	results := make([]EnqueueResult, len(tasks))
	for i, task := range tasks {
		results[i] = EnqueueResult{Err: r.insert(ctx, task)}
		if task != nil {
			results[i].ID = task.ID
		}
	}
	return results
}

func (r *PgTaskRepo) insert(ctx context.Context, task *domain.Task) error {
	if err := prepareForEnqueue(task, r.now()); err != nil {
		return err
	}

	payloadJSON, err := marshalMap(task.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	query := `
		INSERT INTO tasks (id, type, url, payload, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = r.pool.Exec(ctx, query,
		task.ID,
		task.Type,
		task.URL,
		payloadJSON,
		task.Status,
		task.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: task %s", ErrAlreadyExists, task.ID)
	}
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// Claim захватывает tasks одним UPDATE; SKIP LOCKED не даёт двум
// конкурентным claim выбрать одну строку.
func (r *PgTaskRepo) Claim(ctx context.Context, claimant domain.Claimant, limit int) ([]domain.Task, error) {
	if limit <= 0 {
		return nil, nil
	}

	query := `
		UPDATE tasks
		SET status = 'processing', worker_id = $1, processing_by = $2, started_at = $3
		WHERE id IN (
			SELECT id FROM tasks
			WHERE status = 'pending'
			ORDER BY created_at ASC, id ASC
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + taskColumns
	rows, err := r.pool.Query(ctx, query, claimant.WorkerID, claimant.ProcessingBy, r.now(), limit)
	if err != nil {
		return nil, fmt.Errorf("claim tasks: %w", err)
	}

	tasks, err := r.collect(rows)
	if err != nil {
		return nil, err
	}

	// RETURNING не гарантирует порядок.
	sort.SliceStable(tasks, func(i, j int) bool {
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
		}
		return tasks[i].ID < tasks[j].ID
	})
	return tasks, nil
}

// Complete переводит task в completed.
func (r *PgTaskRepo) Complete(ctx context.Context, id string, outcome domain.Outcome) (bool, error) {
	resultJSON, err := marshalMap(outcome.Result)
	if err != nil {
		return false, fmt.Errorf("marshal result: %w", err)
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE tasks
		SET status = 'completed', result = $2, error = NULL, duration_ms = $3, completed_at = $4
		WHERE id = $1 AND status = 'processing' AND ($5::text = '' OR worker_id = $5)
	`, id, resultJSON, outcome.DurationMs, r.now(), outcome.ClaimedBy)
	if err != nil {
		return false, fmt.Errorf("complete task: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Fail переводит task в failed.
func (r *PgTaskRepo) Fail(ctx context.Context, id string, outcome domain.Outcome) (bool, error) {
	resultJSON, err := marshalMap(outcome.Result)
	if err != nil {
		return false, fmt.Errorf("marshal result: %w", err)
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE tasks
		SET status = 'failed', result = $2, error = $3, duration_ms = $4, completed_at = $5
		WHERE id = $1 AND status = 'processing' AND ($6::text = '' OR worker_id = $6)
	`, id, resultJSON, outcome.Error, outcome.DurationMs, r.now(), outcome.ClaimedBy)
	if err != nil {
		return false, fmt.Errorf("fail task: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ResetStuck возвращает зависшие tasks в pending.
func (r *PgTaskRepo) ResetStuck(ctx context.Context, threshold time.Duration) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE tasks
		SET status = 'pending', worker_id = NULL, processing_by = NULL, started_at = NULL
		WHERE status = 'processing' AND started_at < $1
	`, r.now().Add(-threshold))
	if err != nil {
		return 0, fmt.Errorf("reset stuck tasks: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Cleanup удаляет старые терминальные tasks.
func (r *PgTaskRepo) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM tasks
		WHERE status IN ('completed', 'failed') AND completed_at < $1
	`, r.now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("cleanup tasks: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Statistics считает tasks по статусам.
func (r *PgTaskRepo) Statistics(ctx context.Context) (domain.TaskStats, error) {
	var stats domain.TaskStats

	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return stats, fmt.Errorf("task statistics: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status domain.TaskStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return stats, fmt.Errorf("scan statistics: %w", err)
		}
		stats.Set(status, count)
	}
	return stats, rows.Err()
}

// GetByID возвращает task по ID.
func (r *PgTaskRepo) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`
	return r.scanTask(r.pool.QueryRow(ctx, query, id))
}

// List возвращает tasks, новые первыми.
func (r *PgTaskRepo) List(ctx context.Context, filter ListFilter) ([]domain.Task, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if filter.Status != "" {
		rows, err = r.pool.Query(ctx, `
			SELECT `+taskColumns+` FROM tasks
			WHERE status = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		`, filter.Status, filter.limit())
	} else {
		rows, err = r.pool.Query(ctx, `
			SELECT `+taskColumns+` FROM tasks
			ORDER BY created_at DESC, id DESC
			LIMIT $1
		`, filter.limit())
	}
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return r.collect(rows)
}

// Close закрывает пул.
func (r *PgTaskRepo) Close() error {
	r.pool.Close()
	return nil
}

// --- Helpers ---

func (r *PgTaskRepo) collect(rows pgx.Rows) ([]domain.Task, error) {
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		task, err := r.scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

func (r *PgTaskRepo) scanTask(row pgx.Row) (*domain.Task, error) {
	var task domain.Task
	var payloadJSON, resultJSON []byte
	var workerID, processingBy, taskError *string

	err := row.Scan(
		&task.ID,
		&task.Type,
		&task.URL,
		&payloadJSON,
		&task.Status,
		&workerID,
		&processingBy,
		&task.CreatedAt,
		&task.StartedAt,
		&task.CompletedAt,
		&task.DurationMs,
		&resultJSON,
		&taskError,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}

	if task.Payload, err = unmarshalMap(payloadJSON); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	if task.Result, err = unmarshalMap(resultJSON); err != nil {
		return nil, fmt.Errorf("unmarshal result: %w", err)
	}
	task.WorkerID = deref(workerID)
	task.ProcessingBy = deref(processingBy)
	task.Error = deref(taskError)

	return &task, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
