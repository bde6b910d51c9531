// Harvester Worker — исполняет браузерные tasks от controller.
//
// Worker:
//   - Забирает tasks из локального store (seed через request-work, POST /api/v1/tasks, RabbitMQ)
//   - Рендерит страницы в Chrome (website_html, lighthouse_html)
//   - Доставляет подписанный результат в controller
//   - Чистит зависшие и старые tasks по расписанию
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/Harvester/internal/api"
	"github.com/shaiso/Harvester/internal/browser"
	"github.com/shaiso/Harvester/internal/config"
	"github.com/shaiso/Harvester/internal/controller"
	"github.com/shaiso/Harvester/internal/domain"
	"github.com/shaiso/Harvester/internal/maintenance"
	"github.com/shaiso/Harvester/internal/mq"
	"github.com/shaiso/Harvester/internal/repo"
	"github.com/shaiso/Harvester/internal/signing"
	"github.com/shaiso/Harvester/internal/telemetry"
	"github.com/shaiso/Harvester/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "harvester-worker",
		Short:         "Browser automation worker",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to YAML config (default: $"+config.EnvConfigPath+")")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("harvester-worker failed", "error", err)
		cancel()
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting harvester-worker")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	claimant := cfg.Claimant()
	logger = telemetry.WithWorkerID(logger, cfg.Worker.ID)

	// Task store
	store, err := repo.Open(ctx, cfg.Store.Driver, cfg.Store.URL)
	if err != nil {
		return fmt.Errorf("open task store: %w", err)
	}
	defer store.Close()
	logger.Info("task store ready", "driver", cfg.Store.Driver)

	metrics := telemetry.NewMetrics()

	tracing, err := telemetry.InitTracing(ctx, telemetry.TracingConfig{
		Exporter:    cfg.Tracing.Exporter,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: "harvester-worker",
		WorkerID:    cfg.Worker.ID,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			logger.Warn("failed to flush traces", "error", err)
		}
	}()

	// Browser
	provider := browser.NewChromeProvider(browser.ChromeConfig{
		Headless:     cfg.Browser.Headless,
		NoSandbox:    cfg.Browser.NoSandbox,
		ExecPath:     cfg.Browser.ExecPath,
		UserAgent:    cfg.Browser.UserAgent,
		SessionKinds: cfg.Browser.SessionKinds,
	}, logger)
	if err := provider.Start(ctx); err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	defer provider.Close()
	logger.Info("browser started", "headless", cfg.Browser.Headless)

	navCfg := browser.DefaultNavigatorConfig()
	navCfg.Limiter = browser.NewHostLimiter(cfg.Navigation.HostRatePerSec, 1)
	navCfg.Logger = logger
	navigator := browser.NewNavigator(navCfg)

	registry := worker.NewRegistry()
	registry.Register(domain.TaskTypeWebsiteHTML, &worker.WebsiteStrategy{
		Navigator: navigator,
		Defaults: browser.NavigateOptions{
			BaseTimeout:      cfg.Navigation.BaseTimeout,
			ChallengeTimeout: cfg.Navigation.ChallengeTimeout,
			ProgressiveRetry: true,
			HumanDelay:       true,
		},
		Metrics: metrics,
		Logger:  logger,
	})
	registry.Register(domain.TaskTypeLighthouseHTML, &worker.LighthouseStrategy{
		Navigator: navigator,
		BaseURL:   cfg.Lighthouse.BaseURL,
		Timeout:   cfg.Lighthouse.Timeout,
		Metrics:   metrics,
		Logger:    logger,
	})

	logger.Info("task strategies registered", "types", registry.Types())

	executor := worker.NewExecutor(worker.ExecutorConfig{
		Provider:       provider,
		Registry:       registry,
		Logger:         logger,
		AcquireTimeout: cfg.Browser.AcquireTimeout,
	})

	// Controller
	signer := signing.NewSigner([]byte(cfg.Controller.SharedSecret), signing.WithWindow(cfg.SignatureWindow()))
	client := controller.NewClient(controller.ClientConfig{
		BaseURL:         cfg.Controller.URL,
		Signer:          signer,
		VerifyResponses: cfg.Controller.VerifyResponses,
	})
	submitter := controller.NewSubmitter(controller.SubmitterConfig{
		Client:     client,
		Claimant:   claimant,
		MaxRetries: cfg.Submit.MaxRetries,
		BaseDelay:  cfg.Submit.BaseDelay,
		Metrics:    metrics,
		Logger:     logger,
	})

	// RabbitMQ (опционально)
	var publisher worker.CompletionPublisher
	var consumer *mq.Consumer
	if cfg.RabbitMQ.URL != "" {
		mqConn, err := mq.Dial(mq.ConnectionConfig{URL: cfg.RabbitMQ.URL, Name: cfg.Worker.ID}, logger)
		if err != nil {
			logger.Warn("RabbitMQ not available, running without bus", "error", err)
		} else {
			defer mqConn.Close()
			logger.Info("RabbitMQ connected")

			if err := mq.SetupTopology(ctx, mqConn); err != nil {
				logger.Warn("failed to setup topology", "error", err)
			}

			publisher = mq.NewPublisher(mqConn, logger)
			consumer = mq.NewConsumer(mqConn, logger, mq.ConsumerConfig{
				Queue:    string(mq.QueueTasksAssigned),
				Handler:  mq.AssignmentHandler(store, logger),
				Tag:      cfg.Worker.ID,
				Prefetch: cfg.Processor.MaxConcurrent,
			})
		}
	}

	policy, err := worker.ParseDeliveryPolicy(cfg.Processor.DeliveryPolicy)
	if err != nil {
		return err
	}

	processor := worker.NewProcessor(worker.ProcessorConfig{
		Store:          store,
		Executor:       executor,
		Submitter:      submitter,
		Publisher:      publisher,
		Claimant:       claimant,
		MaxConcurrent:  cfg.Processor.MaxConcurrent,
		PollInterval:   cfg.Processor.PollInterval,
		DeliveryPolicy: policy,
		Metrics:        metrics,
		Tracer:         tracing.Tracer,
		Logger:         logger,
	})

	sweeper := maintenance.New(maintenance.Config{
		Store:           store,
		StuckInterval:   cfg.Maintenance.StuckInterval,
		StuckThreshold:  cfg.StuckThreshold(),
		CleanupInterval: cfg.Maintenance.CleanupInterval,
		Retention:       cfg.Retention(),
		Metrics:         metrics,
		Logger:          logger,
	})

	// Handshake: первая порция работы до старта цикла
	handshake := controller.NewHandshake(controller.HandshakeConfig{
		Client:     client,
		Claimant:   claimant,
		MaxTasks:   cfg.Handshake.MaxTasks,
		MaxRetries: cfg.Handshake.MaxRetries,
		BaseDelay:  cfg.Handshake.BaseDelay,
		Logger:     logger,
	})
	handshake.Seed(ctx, store)

	if err := sweeper.Start(ctx); err != nil {
		return fmt.Errorf("start maintenance: %w", err)
	}
	defer sweeper.Stop()

	if err := processor.Start(ctx); err != nil {
		return fmt.Errorf("start processor: %w", err)
	}

	if consumer != nil {
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("assignment consumer stopped", "error", err)
			}
		}()
	}

	// HTTP: протокол controller + операторский API
	handler := api.NewHandler(api.Config{
		Store:    store,
		Signer:   signer,
		WorkerID: cfg.Worker.ID,
		Activity: processor,
		Metrics:  metrics,
		Logger:   logger,
	})

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Worker.Port),
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Ожидаем сигнал завершения
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		logger.Error("http server error", "error", err)
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if consumer != nil {
		consumer.Stop()
	}
	// Дожидаемся in-flight tasks до закрытия браузера и store
	if err := processor.StopContext(shutdownCtx); err != nil {
		logger.Warn("in-flight tasks aborted, left for stuck sweep", "error", err)
	}

	logger.Info("harvester-worker stopped")
	return nil
}

// Проверка на этапе компиляции.
var _ api.ActivityReporter = (*worker.Processor)(nil)
