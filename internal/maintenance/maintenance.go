package maintenance

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/Harvester/internal/repo"
	"github.com/shaiso/Harvester/internal/telemetry"
)

// Значения по умолчанию.
const (
	DefaultStuckInterval   = 5 * time.Minute
	DefaultStuckThreshold  = 15 * time.Minute
	DefaultCleanupInterval = time.Hour
	DefaultRetention       = 7 * 24 * time.Hour
)

// Имена sweeps (метка метрики и логов).
const (
	SweepStuck     = "stuck"
	SweepRetention = "retention"
)

// Config — конфигурация Worker.
type Config struct {
	Store repo.TaskStore

	StuckInterval   time.Duration // как часто искать зависшие tasks (default: 5m)
	StuckThreshold  time.Duration // сколько task может быть в processing (default: 15m)
	CleanupInterval time.Duration // как часто удалять старые tasks (default: 1h)
	Retention       time.Duration // сколько хранить terminal tasks (default: 7d)

	Metrics *telemetry.Metrics
	Logger  *slog.Logger
}

// Worker — фоновые sweeps над task store.
type Worker struct {
	store           repo.TaskStore
	stuckInterval   time.Duration
	stuckThreshold  time.Duration
	cleanupInterval time.Duration
	retention       time.Duration
	metrics         *telemetry.Metrics
	logger          *slog.Logger

	mu   sync.Mutex
	cron *cron.Cron
	stop context.CancelFunc
}

// New создаёт Worker.
func New(cfg Config) *Worker {
	w := &Worker{
		store:           cfg.Store,
		stuckInterval:   orDefault(cfg.StuckInterval, DefaultStuckInterval),
		stuckThreshold:  orDefault(cfg.StuckThreshold, DefaultStuckThreshold),
		cleanupInterval: orDefault(cfg.CleanupInterval, DefaultCleanupInterval),
		retention:       orDefault(cfg.Retention, DefaultRetention),
		metrics:         cfg.Metrics,
		logger:          cfg.Logger,
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	w.logger = w.logger.With("component", "maintenance")
	return w
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// Start запускает оба sweep. Stuck sweep выполняется сразу: tasks,
// брошенные упавшим процессом, не ждут первого интервала.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cron != nil {
		return nil
	}
	if w.store == nil {
		return errors.New("maintenance requires a task store")
	}

	ctx, cancel := context.WithCancel(ctx)
	c := newCron(w.logger)

	c.Schedule(cron.Every(w.stuckInterval), cron.FuncJob(func() {
		w.SweepStuck(ctx)
	}))
	c.Schedule(cron.Every(w.cleanupInterval), cron.FuncJob(func() {
		w.SweepRetention(ctx)
	}))

	w.cron = c
	w.stop = cancel

	w.logger.Info("starting maintenance",
		"stuck_interval", w.stuckInterval,
		"stuck_threshold", w.stuckThreshold,
		"cleanup_interval", w.cleanupInterval,
		"retention", w.retention,
	)

	w.SweepStuck(ctx)
	c.Start()
	return nil
}

// Stop останавливает планировщик и ждёт выполняющийся sweep.
func (w *Worker) Stop() {
	w.mu.Lock()
	c, cancel := w.cron, w.stop
	w.cron, w.stop = nil, nil
	w.mu.Unlock()

	if c == nil {
		return
	}

	<-c.Stop().Done()
	cancel()
	w.logger.Info("maintenance stopped")
}

// SweepStuck возвращает в pending tasks, которые дольше порога в processing.
// Возвращает число затронутых tasks; ошибка только логируется.
func (w *Worker) SweepStuck(ctx context.Context) int64 {
	n, err := w.store.ResetStuck(ctx, w.stuckThreshold)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error("stuck sweep failed", "error", err)
		}
		return 0
	}

	w.metrics.MaintenanceAffected(SweepStuck, n)
	if n > 0 {
		w.logger.Warn("reset stuck tasks to pending",
			"count", n,
			"threshold", w.stuckThreshold,
		)
	} else {
		w.logger.Debug("stuck sweep completed", "count", n)
	}
	return n
}

// SweepRetention удаляет completed/failed tasks старше срока хранения.
func (w *Worker) SweepRetention(ctx context.Context) int64 {
	n, err := w.store.Cleanup(ctx, w.retention)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error("retention sweep failed", "error", err)
		}
		return 0
	}

	w.metrics.MaintenanceAffected(SweepRetention, n)
	w.logger.Info("retention sweep completed",
		"count", n,
		"retention", w.retention,
	)
	return n
}
