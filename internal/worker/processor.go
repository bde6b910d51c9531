package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/shaiso/Harvester/internal/controller"
	"github.com/shaiso/Harvester/internal/domain"
	"github.com/shaiso/Harvester/internal/mq"
	"github.com/shaiso/Harvester/internal/repo"
	"github.com/shaiso/Harvester/internal/telemetry"
)

// Default configuration values.
const (
	defaultPollInterval  = 5 * time.Second
	defaultMaxConcurrent = 3
)

// DeliveryPolicy — что делать с task, результат которой не доставлен.
type DeliveryPolicy string

const (
	// DeliveryRequeue — оставить task в processing до stuck-sweep.
	DeliveryRequeue DeliveryPolicy = "requeue"

	// DeliveryFail — перевести task в failed.
	DeliveryFail DeliveryPolicy = "fail"
)

// ParseDeliveryPolicy разбирает политику; пустая строка даёт DeliveryRequeue.
func ParseDeliveryPolicy(s string) (DeliveryPolicy, error) {
	switch DeliveryPolicy(s) {
	case "", DeliveryRequeue:
		return DeliveryRequeue, nil
	case DeliveryFail:
		return DeliveryFail, nil
	default:
		return "", fmt.Errorf("unknown delivery policy %q", s)
	}
}

// Метки исхода task для метрик.
const (
	outcomeCompleted = "completed"
	outcomeFailed    = "failed"
	outcomeRequeued  = "requeued"
	outcomeSkipped   = "skipped"
	outcomeError     = "store_error"
)

// ResultSubmitter доставляет результат в controller.
type ResultSubmitter interface {
	Submit(ctx context.Context, result *domain.ExecutionResult) (controller.Ack, error)
}

// CompletionPublisher публикует событие о терминальном переходе task.
type CompletionPublisher interface {
	PublishTaskCompleted(ctx context.Context, payload mq.TaskCompletedPayload) error
}

// ProcessorConfig — конфигурация Processor.
type ProcessorConfig struct {
	Store    repo.TaskStore
	Executor *Executor

	// Submitter (опционально; если nil — результат только в store).
	Submitter ResultSubmitter

	// Publisher (опционально) — события task.completed.
	Publisher CompletionPublisher

	Claimant domain.Claimant

	MaxConcurrent  int            // максимум tasks в работе (default: 3)
	PollInterval   time.Duration  // интервал claim (default: 5s)
	DeliveryPolicy DeliveryPolicy // default: requeue

	Metrics *telemetry.Metrics
	Tracer  trace.Tracer
	Logger  *slog.Logger
}

// Processor — цикл диспетчеризации tasks.
//
// Жизненный цикл: stopped → running → stopped; Start и Stop идемпотентны.
type Processor struct {
	store     repo.TaskStore
	executor  *Executor
	submitter ResultSubmitter
	publisher CompletionPublisher
	claimant  domain.Claimant

	maxConcurrent int
	pollInterval  time.Duration
	policy        DeliveryPolicy

	metrics *telemetry.Metrics
	tracer  trace.Tracer
	logger  *slog.Logger

	active atomic.Int64

	// Lifecycle
	mu         sync.Mutex
	cancelFunc context.CancelFunc
	abortTasks context.CancelFunc
	loop       sync.WaitGroup
	inflight   sync.WaitGroup
}

// NewProcessor создаёт Processor.
func NewProcessor(cfg ProcessorConfig) *Processor {
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	policy := cfg.DeliveryPolicy
	if policy == "" {
		policy = DeliveryRequeue
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tracer := cfg.Tracer
	if tracer == nil {
		tracer = telemetry.NoopTracing().Tracer
	}

	return &Processor{
		store:         cfg.Store,
		executor:      cfg.Executor,
		submitter:     cfg.Submitter,
		publisher:     cfg.Publisher,
		claimant:      cfg.Claimant,
		maxConcurrent: maxConcurrent,
		pollInterval:  pollInterval,
		policy:        policy,
		metrics:       cfg.Metrics,
		tracer:        tracer,
		logger:        logger.With("component", "processor"),
	}
}

// Start запускает цикл claim. Повторный вызов на работающем Processor — no-op.
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancelFunc != nil {
		return nil
	}
	if p.store == nil || p.executor == nil {
		return errors.New("processor requires store and executor")
	}

	ctx, cancel := context.WithCancel(ctx)
	// Tasks переживают остановку цикла; их отменяет только abortTasks.
	taskCtx, abort := context.WithCancel(context.WithoutCancel(ctx))
	p.cancelFunc = cancel
	p.abortTasks = abort

	p.logger.Info("starting processor",
		"poll_interval", p.pollInterval,
		"max_concurrent", p.maxConcurrent,
		"delivery_policy", p.policy,
		"worker_id", p.claimant.WorkerID,
	)

	p.loop.Add(1)
	go func() {
		defer p.loop.Done()
		p.pollLoop(ctx, taskCtx)
	}()

	return nil
}

// Stop прекращает claim и ждёт tasks в работе без ограничения по времени.
// Повторный вызов — no-op.
func (p *Processor) Stop() {
	_ = p.StopContext(context.Background())
}

// StopContext прекращает claim и ждёт tasks в работе, пока жив ctx.
// После отмены ctx оставшиеся tasks отменяются и остаются в processing
// до stuck-sweep; возвращается ctx.Err().
func (p *Processor) StopContext(ctx context.Context) error {
	p.mu.Lock()
	cancel, abort := p.cancelFunc, p.abortTasks
	p.cancelFunc, p.abortTasks = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return nil
	}
	defer abort()

	p.logger.Info("stopping processor...", "active_tasks", p.ActiveCount())
	cancel()
	p.loop.Wait()

	drained := make(chan struct{})
	go func() {
		p.inflight.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		p.logger.Info("processor stopped")
		return nil
	case <-ctx.Done():
	}

	p.logger.Warn("drain deadline exceeded, aborting in-flight tasks", "active_tasks", p.ActiveCount())
	abort()
	<-drained
	p.logger.Info("processor stopped")
	return ctx.Err()
}

// IsRunning сообщает, запущен ли цикл.
func (p *Processor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancelFunc != nil
}

// ActiveCount возвращает число tasks в работе.
func (p *Processor) ActiveCount() int {
	return int(p.active.Load())
}

// pollLoop — цикл claim по таймеру.
func (p *Processor) pollLoop(ctx, taskCtx context.Context) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	// Первый claim сразу: подхватываем tasks из handshake и с прошлого запуска
	p.poll(ctx, taskCtx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx, taskCtx)
		}
	}
}

// poll захватывает не больше свободных слотов и запускает tasks под taskCtx.
// Возвращает число запущенных tasks.
func (p *Processor) poll(ctx, taskCtx context.Context) int {
	free := p.maxConcurrent - p.ActiveCount()
	if free <= 0 {
		return 0
	}

	tasks, err := p.store.Claim(ctx, p.claimant, free)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Error("failed to claim tasks", "error", err)
		}
		return 0
	}
	if len(tasks) == 0 {
		return 0
	}

	p.metrics.TaskClaimed(len(tasks))
	p.logger.Debug("claimed tasks", "count", len(tasks), "free", free)

	for _, task := range tasks {
		p.active.Add(1)
		p.metrics.TaskStarted()
		p.inflight.Add(1)
		go p.process(taskCtx, task)
	}
	return len(tasks)
}

// process выполняет task, доставляет результат и делает терминальный переход.
// Паника превращается в fail и не затрагивает цикл.
func (p *Processor) process(ctx context.Context, task domain.Task) {
	started := time.Now()
	logger := telemetry.WithTaskID(p.logger, task.ID)
	outcome := outcomeError

	defer func() {
		if r := recover(); r != nil {
			logger.Error("task processing panic",
				"panic", r,
				"stack", string(debug.Stack()),
			)
			outcome = p.settle(ctx, logger, &task, &domain.ExecutionResult{
				TaskID:     task.ID,
				Type:       task.Type,
				Error:      fmt.Sprintf("%v: %v", ErrExecutionPanic, r),
				ErrorKind:  domain.ErrorKindExecution,
				ExecutedAt: started.UTC(),
				DurationMs: domain.DurationMillis(time.Since(started)),
			}, nil)
		}
		p.active.Add(-1)
		p.metrics.TaskFinished(string(task.Type), outcome, time.Since(started))
		p.inflight.Done()
	}()

	result := p.execute(ctx, &task)
	deliveryErr := p.deliver(ctx, logger, &task, result)
	outcome = p.settle(ctx, logger, &task, result, deliveryErr)
}

func (p *Processor) execute(ctx context.Context, task *domain.Task) *domain.ExecutionResult {
	ctx, span := p.tracer.Start(ctx, "task.execute",
		trace.WithAttributes(telemetry.TaskAttributes(task.ID, string(task.Type), task.URL)...),
	)
	defer span.End()

	result := p.executor.Execute(ctx, task)

	span.SetAttributes(
		attribute.Bool("task.success", result.Success),
		attribute.Int64("task.duration_ms", result.DurationMs),
	)
	if !result.Success {
		span.SetAttributes(attribute.String("task.error_type", string(result.ErrorKind)))
		span.SetStatus(codes.Error, result.Error)
	}
	return result
}

func (p *Processor) deliver(ctx context.Context, logger *slog.Logger, task *domain.Task, result *domain.ExecutionResult) error {
	if p.submitter == nil {
		return nil
	}

	ctx, span := p.tracer.Start(ctx, "task.submit",
		trace.WithAttributes(telemetry.TaskAttributes(task.ID, string(task.Type), task.URL)...),
	)
	defer span.End()

	ack, err := p.submitter.Submit(ctx, result)
	span.SetAttributes(attribute.Int("submit.attempts", ack.Attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("result delivery failed",
			"attempts", ack.Attempts,
			"error", err,
		)
		return err
	}
	return nil
}

// settle выполняет терминальный переход в store согласно исходу и политике доставки.
func (p *Processor) settle(ctx context.Context, logger *slog.Logger, task *domain.Task, result *domain.ExecutionResult, deliveryErr error) string {
	validationFailed := result.ErrorKind == domain.ErrorKindValidation

	if deliveryErr != nil && !validationFailed && p.policy == DeliveryRequeue {
		logger.Warn("task left in processing for stuck sweep",
			"type", task.Type,
			"delivery_policy", p.policy,
		)
		return outcomeRequeued
	}

	outcome := result.Outcome()
	outcome.ClaimedBy = p.claimant.WorkerID
	status := domain.TaskStatusCompleted

	var applied bool
	var err error
	if result.Success && deliveryErr == nil {
		applied, err = p.store.Complete(ctx, task.ID, outcome)
	} else {
		status = domain.TaskStatusFailed
		if result.Success {
			outcome.Error = fmt.Sprintf("result not delivered: %v", deliveryErr)
		}
		applied, err = p.store.Fail(ctx, task.ID, outcome)
	}

	if err != nil {
		logger.Error("failed to update task status",
			"status", status,
			"error", err,
		)
		return outcomeError
	}
	if !applied {
		// Stuck-sweep успел вернуть task в pending.
		logger.Warn("task no longer processing, status update skipped", "status", status)
		return outcomeSkipped
	}

	logger.Info("task finished",
		"type", task.Type,
		"status", status,
		"duration_ms", outcome.DurationMs,
	)

	p.publishCompletion(ctx, logger, task, status, outcome)

	if status == domain.TaskStatusCompleted {
		return outcomeCompleted
	}
	return outcomeFailed
}

// publishCompletion публикует task.completed; ошибка публикации не влияет на task.
func (p *Processor) publishCompletion(ctx context.Context, logger *slog.Logger, task *domain.Task, status domain.TaskStatus, outcome domain.Outcome) {
	if p.publisher == nil {
		return
	}

	payload := mq.TaskCompletedPayload{
		TaskID:     task.ID,
		Type:       string(task.Type),
		Status:     string(status),
		Error:      outcome.Error,
		DurationMs: outcome.DurationMs,
	}
	if err := p.publisher.PublishTaskCompleted(ctx, payload); err != nil {
		logger.Warn("failed to publish task.completed", "error", err)
	}
}
