package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Harvester/internal/domain"
)

// TaskStore — персистентная очередь tasks и её state machine.
//
// Store — единственный владелец переходов статусов:
//
//	pending → processing        (Claim)
//	processing → completed      (Complete)
//	processing → failed         (Fail)
//	processing → pending        (ResetStuck)
//
// Терминальные статусы не покидаются. Complete/Fail для task не в processing
// ничего не меняют и возвращают applied=false.
type TaskStore interface {
	// Enqueue вставляет tasks в статусе pending. Результат — по одному на task, в порядке входа.
	Enqueue(ctx context.Context, tasks ...*domain.Task) []EnqueueResult

	// Claim атомарно переводит до limit самых старых pending tasks в processing.
	Claim(ctx context.Context, claimant domain.Claimant, limit int) ([]domain.Task, error)

	// Complete переводит processing → completed.
	Complete(ctx context.Context, id string, outcome domain.Outcome) (bool, error)

	// Fail переводит processing → failed.
	Fail(ctx context.Context, id string, outcome domain.Outcome) (bool, error)

	// ResetStuck возвращает в pending tasks, находящиеся в processing дольше threshold.
	ResetStuck(ctx context.Context, threshold time.Duration) (int64, error)

	// Cleanup удаляет completed/failed tasks, завершённые раньше now - olderThan.
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)

	// Statistics возвращает количество tasks по статусам.
	Statistics(ctx context.Context) (domain.TaskStats, error)

	// GetByID возвращает task или ErrNotFound.
	GetByID(ctx context.Context, id string) (*domain.Task, error)

	// List возвращает tasks, новые первыми.
	List(ctx context.Context, filter ListFilter) ([]domain.Task, error)

	Close() error
}

// EnqueueResult — исход вставки одной task.
type EnqueueResult struct {
	ID  string
	Err error
}

// ListFilter — фильтр для List.
type ListFilter struct {
	Status domain.TaskStatus
	Limit  int
}

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

func (f ListFilter) limit() int {
	switch {
	case f.Limit <= 0:
		return defaultListLimit
	case f.Limit > maxListLimit:
		return maxListLimit
	default:
		return f.Limit
	}
}

// taskColumns — порядок колонок для всех SELECT/RETURNING.
const taskColumns = `id, type, url, payload, status, worker_id, processing_by,
	created_at, started_at, completed_at, duration_ms, result, error`

// prepareForEnqueue назначает ID, статус pending и created_at.
// Поля claim и терминального перехода сбрасываются.
func prepareForEnqueue(task *domain.Task, now time.Time) error {
	if task == nil {
		return fmt.Errorf("%w: nil task", ErrInvalidState)
	}
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	task.Status = domain.TaskStatusPending
	task.CreatedAt = now
	task.WorkerID = ""
	task.ProcessingBy = ""
	task.StartedAt = nil
	task.CompletedAt = nil
	task.DurationMs = nil
	task.Result = nil
	task.Error = ""
	return nil
}

// marshalMap возвращает nil для пустой map, чтобы в БД хранился NULL.
func marshalMap(m map[string]any) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func unmarshalMap(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}
