package api

import (
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/shaiso/Harvester/internal/repo"
	"github.com/shaiso/Harvester/internal/signing"
	"github.com/shaiso/Harvester/internal/telemetry"
)

// ActivityReporter сообщает число tasks в работе (реализует worker.Processor).
type ActivityReporter interface {
	ActiveCount() int
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	store    repo.TaskStore
	signer   *signing.Signer
	workerID string
	activity ActivityReporter
	metrics  *telemetry.Metrics
	logger   *slog.Logger
	validate *validator.Validate
}

// Config — конфигурация для создания Handler.
type Config struct {
	Store    repo.TaskStore
	Signer   *signing.Signer
	WorkerID string

	// Activity (опционально) — источник active_tasks для ping.
	Activity ActivityReporter

	Metrics *telemetry.Metrics
	Logger  *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		store:    cfg.Store,
		signer:   cfg.Signer,
		workerID: cfg.WorkerID,
		activity: cfg.Activity,
		metrics:  cfg.Metrics,
		logger:   logger.With("component", "api"),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}
