package domain

import (
	"time"
)

// TaskType — тип browser-task, выбирает стратегию выполнения.
type TaskType string

const (
	// TaskTypeWebsiteHTML — загрузка страницы и извлечение HTML, title и meta.
	TaskTypeWebsiteHTML TaskType = "website_html"

	// TaskTypeLighthouseHTML — отчёт о производительности (mobile + desktop).
	TaskTypeLighthouseHTML TaskType = "lighthouse_html"
)

// Task — единица браузерной работы.
//
// Task попадает в очередь через enqueue (handshake, API, MQ),
// захватывается Processor'ом через claim и переводится
// в терминальный статус после выполнения и доставки результата.
type Task struct {
	// ID — уникальный идентификатор, ключ идемпотентности при доставке.
	ID string `json:"id"`

	// Type — тип task, определяет стратегию выполнения.
	Type TaskType `json:"type"`

	// URL — целевой адрес (абсолютный http/https).
	URL string `json:"url"`

	// Payload — опции, специфичные для стратегии.
	Payload map[string]any `json:"payload,omitempty"`

	// Status — текущий статус.
	Status TaskStatus `json:"status"`

	// WorkerID — идентификатор воркера, захватившего task.
	WorkerID string `json:"worker_id,omitempty"`

	// ProcessingBy — метка процесса/хоста, захватившего task.
	ProcessingBy string `json:"processing_by,omitempty"`

	// CreatedAt — время постановки в очередь (назначается store).
	CreatedAt time.Time `json:"created_at"`

	// StartedAt — время claim.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt — время перехода в терминальный статус.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// DurationMs — длительность выполнения, заполняется при терминальном переходе.
	DurationMs *int64 `json:"duration_ms,omitempty"`

	// Result — результат выполнения (только для completed).
	Result map[string]any `json:"result,omitempty"`

	// Error — текст ошибки (только для failed).
	Error string `json:"error,omitempty"`
}

// IsFinished возвращает true, если task завершён.
func (t *Task) IsFinished() bool {
	return t.Status.IsTerminal()
}

// Claimant — идентичность воркера, захватывающего tasks.
type Claimant struct {
	WorkerID     string `json:"worker_id"`
	ProcessingBy string `json:"processing_by"`
}

// Outcome — данные для терминального перехода task.
type Outcome struct {
	Result     map[string]any
	Error      string
	DurationMs int64

	// ClaimedBy — если задан, переход применяется только к task,
	// которую сейчас держит этот worker_id.
	ClaimedBy string
}

// TaskStats — количество tasks по статусам.
type TaskStats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
	Total      int64 `json:"total"`
}

// Set записывает счётчик для статуса и пересчитывает Total.
func (s *TaskStats) Set(status TaskStatus, count int64) {
	switch status {
	case TaskStatusPending:
		s.Pending = count
	case TaskStatusProcessing:
		s.Processing = count
	case TaskStatusCompleted:
		s.Completed = count
	case TaskStatusFailed:
		s.Failed = count
	}
	s.Total = s.Pending + s.Processing + s.Completed + s.Failed
}
