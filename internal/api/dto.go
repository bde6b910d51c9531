package api

import (
	"time"

	"github.com/shaiso/Harvester/internal/domain"
)

// Protocol DTOs

// PingResponse — ответ /ping.
type PingResponse struct {
	Status      string `json:"status"`
	WorkerID    string `json:"worker_id"`
	ActiveTasks int    `json:"active_tasks"`
}

// RequestWorkRequest — запрос работы удалённым воркером.
type RequestWorkRequest struct {
	MaxTasks     int    `json:"max_tasks" validate:"min=1,max=100"`
	WorkerID     string `json:"worker_id" validate:"required,max=128"`
	ProcessingBy string `json:"processing_by" validate:"max=128"`
}

// RequestWorkResponse — захваченные для запросившего tasks.
type RequestWorkResponse struct {
	Tasks []TaskResponse `json:"tasks"`
}

// TaskResultRequest — результат выполнения task от воркера.
type TaskResultRequest struct {
	TaskID       string         `json:"task_id" validate:"required"`
	Type         string         `json:"type"`
	Success      bool           `json:"success"`
	Result       map[string]any `json:"result,omitempty"`
	Error        string         `json:"error,omitempty"`
	ErrorType    string         `json:"error_type,omitempty"`
	DurationMs   int64          `json:"duration_ms" validate:"min=0"`
	WorkerID     string         `json:"worker_id" validate:"required,max=128"`
	ProcessingBy string         `json:"processing_by"`
}

// Outcome возвращает данные терминального перехода.
func (r TaskResultRequest) Outcome() domain.Outcome {
	if r.Success {
		return domain.Outcome{Result: r.Result, DurationMs: r.DurationMs, ClaimedBy: r.WorkerID}
	}
	msg := r.Error
	if msg == "" {
		msg = "task failed"
	}
	return domain.Outcome{Result: r.Result, Error: msg, DurationMs: r.DurationMs, ClaimedBy: r.WorkerID}
}

// TaskResultResponse — ответ /task-result.
// Applied=false: task не в processing (повторная доставка или stuck-reset).
type TaskResultResponse struct {
	Success bool `json:"success"`
	Applied bool `json:"applied"`
}

// Task DTOs

// TaskInput — task для постановки в очередь.
type TaskInput struct {
	ID      string         `json:"id,omitempty" validate:"omitempty,max=128"`
	Type    string         `json:"type" validate:"required,oneof=website_html lighthouse_html"`
	URL     string         `json:"url" validate:"required,http_url"`
	Payload map[string]any `json:"payload,omitempty"`
}

// EnqueueRequest — пакет tasks.
type EnqueueRequest struct {
	Tasks []TaskInput `json:"tasks" validate:"required,min=1,max=100,dive"`
}

// EnqueueItem — результат постановки одной task.
type EnqueueItem struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// TaskResponse — ответ с task.
type TaskResponse struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	URL          string         `json:"url"`
	Payload      map[string]any `json:"payload,omitempty"`
	Status       string         `json:"status"`
	WorkerID     string         `json:"worker_id,omitempty"`
	ProcessingBy string         `json:"processing_by,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	DurationMs   *int64         `json:"duration_ms,omitempty"`
	Result       map[string]any `json:"result,omitempty"`
	Error        string         `json:"error,omitempty"`
}

// TaskFromDomain конвертирует domain.Task в TaskResponse.
func TaskFromDomain(t domain.Task) TaskResponse {
	return TaskResponse{
		ID:           t.ID,
		Type:         string(t.Type),
		URL:          t.URL,
		Payload:      t.Payload,
		Status:       string(t.Status),
		WorkerID:     t.WorkerID,
		ProcessingBy: t.ProcessingBy,
		CreatedAt:    t.CreatedAt,
		StartedAt:    t.StartedAt,
		CompletedAt:  t.CompletedAt,
		DurationMs:   t.DurationMs,
		Result:       t.Result,
		Error:        t.Error,
	}
}

func tasksFromDomain(tasks []domain.Task) []TaskResponse {
	result := make([]TaskResponse, len(tasks))
	for i, t := range tasks {
		result[i] = TaskFromDomain(t)
	}
	return result
}
