package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"runtime/debug"
	"sort"
	"time"

	"github.com/shaiso/Harvester/internal/browser"
	"github.com/shaiso/Harvester/internal/domain"
	"github.com/shaiso/Harvester/internal/telemetry"
)

// Strategy — выполнение конкретного типа task на полученной странице.
//
// Реализации: WebsiteStrategy, LighthouseStrategy.
//
// Result может быть не nil вместе с ошибкой: он попадает в результат
// task как диагностика (final_url, cloudflare_encountered).
type Strategy interface {
	Execute(ctx context.Context, page browser.Page, task *domain.Task) (map[string]any, error)
}

// Registry — реестр стратегий по типу task.
type Registry struct {
	strategies map[domain.TaskType]Strategy
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{strategies: make(map[domain.TaskType]Strategy)}
}

// Register добавляет стратегию для типа task.
func (r *Registry) Register(taskType domain.TaskType, strategy Strategy) {
	r.strategies[taskType] = strategy
}

// Get возвращает стратегию для типа task.
func (r *Registry) Get(taskType domain.TaskType) (Strategy, error) {
	strategy, ok := r.strategies[taskType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTaskType, taskType)
	}
	return strategy, nil
}

// Types возвращает зарегистрированные типы в алфавитном порядке.
func (r *Registry) Types() []domain.TaskType {
	types := make([]domain.TaskType, 0, len(r.strategies))
	for t := range r.strategies {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// DefaultAcquireTimeout — сколько task ждёт занятую страницу сессии.
const DefaultAcquireTimeout = 2 * time.Minute

// ExecutorConfig — конфигурация Executor.
type ExecutorConfig struct {
	Provider browser.Provider
	Registry *Registry
	Logger   *slog.Logger

	// AcquireTimeout ограничивает ожидание страницы (по умолчанию DefaultAcquireTimeout).
	AcquireTimeout time.Duration

	// Now подменяется в тестах.
	Now func() time.Time
}

// Executor выполняет одну task и никогда не возвращает ошибку наружу:
// любой исход превращается в domain.ExecutionResult.
type Executor struct {
	provider       browser.Provider
	registry       *Registry
	logger         *slog.Logger
	acquireTimeout time.Duration
	now            func() time.Time
}

// NewExecutor создаёт Executor.
func NewExecutor(cfg ExecutorConfig) *Executor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	registry := cfg.Registry
	if registry == nil {
		registry = NewRegistry()
	}

	acquireTimeout := cfg.AcquireTimeout
	if acquireTimeout <= 0 {
		acquireTimeout = DefaultAcquireTimeout
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Executor{
		provider:       cfg.Provider,
		registry:       registry,
		logger:         logger.With("component", "executor"),
		acquireTimeout: acquireTimeout,
		now:            now,
	}
}

// Validate проверяет тип и URL task без обращения к браузеру.
func (e *Executor) Validate(task *domain.Task) error {
	if _, err := e.registry.Get(task.Type); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if err := validateURL(task.URL); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return nil
}

// Execute выполняет task.
func (e *Executor) Execute(ctx context.Context, task *domain.Task) *domain.ExecutionResult {
	started := e.now()
	result := &domain.ExecutionResult{
		TaskID:     task.ID,
		Type:       task.Type,
		ExecutedAt: started.UTC(),
	}

	logger := telemetry.WithTaskID(e.logger, task.ID)

	output, err := e.run(ctx, logger, task)

	result.DurationMs = domain.DurationMillis(e.now().Sub(started))
	result.Result = output
	if err != nil {
		result.Error = err.Error()
		result.ErrorKind = classify(err)
		logger.Warn("task execution failed",
			"type", task.Type,
			"url", task.URL,
			"error_type", result.ErrorKind,
			"error", err,
		)
		return result
	}

	result.Success = true
	logger.Info("task executed",
		"type", task.Type,
		"url", task.URL,
		"duration_ms", result.DurationMs,
	)
	return result
}

// run валидирует task, захватывает страницу и вызывает стратегию.
// Страница освобождается на любом пути выхода; после паники или
// ошибки выполнения страница сессии выбрасывается.
func (e *Executor) run(ctx context.Context, logger *slog.Logger, task *domain.Task) (output map[string]any, err error) {
	if err := e.Validate(task); err != nil {
		return nil, err
	}
	strategy, _ := e.registry.Get(task.Type)

	if e.provider == nil {
		return nil, &acquireError{err: browser.ErrProviderClosed}
	}

	acquireCtx, cancel := context.WithTimeout(ctx, e.acquireTimeout)
	page, err := e.provider.Acquire(acquireCtx, string(task.Type))
	cancel()
	if err != nil {
		return nil, &acquireError{err: err}
	}
	defer page.Release()

	defer func() {
		if err == nil || classify(err) != domain.ErrorKindExecution {
			return
		}
		if d, ok := page.(browser.Discarder); ok {
			logger.Warn("discarding browser session", "type", task.Type, "error", err)
			d.Discard()
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("strategy panic",
				"type", task.Type,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			output = nil
			err = fmt.Errorf("%w: %v", ErrExecutionPanic, r)
		}
	}()

	return strategy.Execute(ctx, page, task)
}

// acquireError — страницу не удалось получить у провайдера.
type acquireError struct {
	err error
}

func (e *acquireError) Error() string { return "acquire page: " + e.err.Error() }
func (e *acquireError) Unwrap() error { return e.err }

// classify сопоставляет ошибку с domain.ErrorKind.
func classify(err error) domain.ErrorKind {
	var acqErr *acquireError
	switch {
	case errors.Is(err, ErrValidation):
		return domain.ErrorKindValidation
	case errors.As(err, &acqErr):
		return domain.ErrorKindBrowser
	case errors.Is(err, browser.ErrChallengeBlocked):
		return domain.ErrorKindChallengeBlocked
	case errors.Is(err, browser.ErrNavigationFailed):
		return domain.ErrorKindNavigation
	default:
		return domain.ErrorKindExecution
	}
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q must be absolute http(s)", ErrInvalidURL, raw)
	}
	return nil
}
