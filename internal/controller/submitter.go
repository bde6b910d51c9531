package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Harvester/internal/domain"
	"github.com/shaiso/Harvester/internal/signing"
	"github.com/shaiso/Harvester/internal/telemetry"
)

// Значения по умолчанию для Submitter.
const (
	DefaultSubmitPath       = "/task-result"
	DefaultSubmitMaxRetries = 3
	DefaultSubmitBaseDelay  = 1 * time.Second
)

// SubmitterConfig — конфигурация Submitter.
type SubmitterConfig struct {
	Client   *Client
	Claimant domain.Claimant

	// MaxRetries — общее число попыток доставки.
	MaxRetries int
	// BaseDelay — пауза после первой неудачи; дальше удваивается.
	BaseDelay time.Duration
	Path      string

	Metrics *telemetry.Metrics
	Logger  *slog.Logger

	// Sleep подменяется в тестах.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Ack — итог доставки одного результата.
type Ack struct {
	TaskID   string `json:"task_id"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
	Attempts int    `json:"attempts"`
}

// submission — тело POST /task-result.
type submission struct {
	*domain.ExecutionResult
	WorkerID     string `json:"worker_id"`
	ProcessingBy string `json:"processing_by"`
}

// Submitter доставляет результаты tasks в controller.
type Submitter struct {
	client     *Client
	claimant   domain.Claimant
	maxRetries int
	baseDelay  time.Duration
	path       string
	metrics    *telemetry.Metrics
	logger     *slog.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewSubmitter создаёт Submitter.
func NewSubmitter(cfg SubmitterConfig) *Submitter {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultSubmitMaxRetries
	}
	baseDelay := cfg.BaseDelay
	if baseDelay <= 0 {
		baseDelay = DefaultSubmitBaseDelay
	}
	path := cfg.Path
	if path == "" {
		path = DefaultSubmitPath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	return &Submitter{
		client:     cfg.Client,
		claimant:   cfg.Claimant,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		path:       path,
		metrics:    cfg.Metrics,
		logger:     logger.With("component", "submitter"),
		sleep:      sleep,
	}
}

// Delay возвращает паузу после неудачной попытки attempt (1-based):
// baseDelay * 2^(attempt-1). Строго растёт с номером попытки.
func (s *Submitter) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return s.baseDelay << (attempt - 1)
}

// Submit доставляет результат. Ошибка оборачивает ErrDelivery.
// AuthError не повторяется.
func (s *Submitter) Submit(ctx context.Context, result *domain.ExecutionResult) (Ack, error) {
	ack := Ack{TaskID: result.TaskID}
	body := submission{
		ExecutionResult: result,
		WorkerID:        s.claimant.WorkerID,
		ProcessingBy:    s.claimant.ProcessingBy,
	}

	var lastErr error
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		ack.Attempts = attempt

		lastErr = s.client.PostJSON(ctx, s.path, body, nil)
		if lastErr == nil {
			ack.Success = true
			s.metrics.Submission("delivered")
			s.logger.Debug("result delivered", "task_id", result.TaskID, "attempts", attempt)
			return ack, nil
		}

		if errors.Is(lastErr, signing.ErrUnauthenticated) {
			s.logger.Error("result rejected by controller authentication",
				"task_id", result.TaskID,
				"reason", signing.ReasonOf(lastErr),
			)
			break
		}

		if attempt == s.maxRetries {
			break
		}

		delay := s.Delay(attempt)
		s.logger.Warn("result delivery failed, retrying",
			"task_id", result.TaskID,
			"attempt", attempt,
			"max_retries", s.maxRetries,
			"delay", delay,
			"error", lastErr,
		)
		if err := s.sleep(ctx, delay); err != nil {
			lastErr = err
			break
		}
	}

	s.metrics.Submission("failed")
	err := fmt.Errorf("%w: task %s after %d attempt(s): %w", ErrDelivery, result.TaskID, ack.Attempts, lastErr)
	ack.Error = err.Error()
	return ack, err
}

// SubmitBatch доставляет результаты по одному; неудача одного не прерывает остальные.
// Возвращает Ack на каждый вход, в том же порядке.
func (s *Submitter) SubmitBatch(ctx context.Context, results []*domain.ExecutionResult) []Ack {
	acks := make([]Ack, len(results))
	for i, result := range results {
		acks[i], _ = s.Submit(ctx, result)
	}
	return acks
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
