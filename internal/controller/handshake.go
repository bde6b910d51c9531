package controller

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shaiso/Harvester/internal/domain"
	"github.com/shaiso/Harvester/internal/repo"
	"github.com/shaiso/Harvester/internal/signing"
)

// Значения по умолчанию для Handshake.
const (
	DefaultRequestWorkPath     = "/request-work"
	DefaultHandshakeMaxTasks   = 5
	DefaultHandshakeMaxRetries = 3
	DefaultHandshakeBaseDelay  = 2 * time.Second
)

// HandshakeConfig — конфигурация Handshake.
type HandshakeConfig struct {
	Client     *Client
	Claimant   domain.Claimant
	MaxTasks   int
	MaxRetries int
	BaseDelay  time.Duration
	Path       string
	Logger     *slog.Logger

	// Sleep подменяется в тестах.
	Sleep func(ctx context.Context, d time.Duration) error
}

// WorkRequest — тело POST /request-work.
type WorkRequest struct {
	MaxTasks     int    `json:"max_tasks"`
	WorkerID     string `json:"worker_id"`
	ProcessingBy string `json:"processing_by"`
}

// WorkResponse — ответ /request-work.
type WorkResponse struct {
	Tasks []domain.Task `json:"tasks"`
}

// Handshake запрашивает стартовую работу у controller.
type Handshake struct {
	client     *Client
	claimant   domain.Claimant
	maxTasks   int
	maxRetries int
	baseDelay  time.Duration
	path       string
	logger     *slog.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewHandshake создаёт Handshake.
func NewHandshake(cfg HandshakeConfig) *Handshake {
	h := &Handshake{
		client:     cfg.Client,
		claimant:   cfg.Claimant,
		maxTasks:   cfg.MaxTasks,
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.BaseDelay,
		path:       cfg.Path,
		logger:     cfg.Logger,
		sleep:      cfg.Sleep,
	}
	if h.maxTasks <= 0 {
		h.maxTasks = DefaultHandshakeMaxTasks
	}
	if h.maxRetries <= 0 {
		h.maxRetries = DefaultHandshakeMaxRetries
	}
	if h.baseDelay <= 0 {
		h.baseDelay = DefaultHandshakeBaseDelay
	}
	if h.path == "" {
		h.path = DefaultRequestWorkPath
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	h.logger = h.logger.With("component", "handshake")
	if h.sleep == nil {
		h.sleep = sleepContext
	}
	return h
}

// RequestWork вызывает /request-work. Никогда не возвращает ошибку:
// после исчерпания попыток (или отказа аутентификации) возвращает пустой список.
func (h *Handshake) RequestWork(ctx context.Context) []domain.Task {
	req := WorkRequest{
		MaxTasks:     h.maxTasks,
		WorkerID:     h.claimant.WorkerID,
		ProcessingBy: h.claimant.ProcessingBy,
	}

	for attempt := 1; attempt <= h.maxRetries; attempt++ {
		var resp WorkResponse
		err := h.client.PostJSON(ctx, h.path, req, &resp)
		if err == nil {
			h.logger.Info("handshake completed", "tasks", len(resp.Tasks), "attempt", attempt)
			return resp.Tasks
		}

		if errors.Is(err, signing.ErrUnauthenticated) {
			h.logger.Error("handshake rejected, starting without initial work",
				"reason", signing.ReasonOf(err),
			)
			return nil
		}

		if attempt == h.maxRetries {
			h.logger.Warn("handshake failed, starting without initial work",
				"attempts", attempt,
				"error", err,
			)
			return nil
		}

		delay := h.baseDelay * time.Duration(attempt)
		h.logger.Warn("handshake failed, retrying",
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
		if err := h.sleep(ctx, delay); err != nil {
			h.logger.Warn("handshake interrupted", "error", err)
			return nil
		}
	}
	return nil
}

// Seed ставит полученные tasks в store. Дубликаты пропускаются.
// Возвращает число поставленных tasks.
func (h *Handshake) Seed(ctx context.Context, store repo.TaskStore) int {
	tasks := h.RequestWork(ctx)
	if len(tasks) == 0 {
		return 0
	}

	ptrs := make([]*domain.Task, len(tasks))
	for i := range tasks {
		ptrs[i] = &tasks[i]
	}

	seeded := 0
	for _, res := range store.Enqueue(ctx, ptrs...) {
		switch {
		case res.Err == nil:
			seeded++
		case errors.Is(res.Err, repo.ErrAlreadyExists):
			h.logger.Debug("handshake task already queued", "task_id", res.ID)
		default:
			h.logger.Error("failed to seed task", "task_id", res.ID, "error", res.Err)
		}
	}

	h.logger.Info("seeded initial tasks", "count", seeded)
	return seeded
}
