package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/shaiso/Harvester/internal/domain"
)

// EnvConfigPath — переменная с путём к YAML-файлу.
const EnvConfigPath = "HARVESTER_CONFIG"

// Config — полная конфигурация воркера.
type Config struct {
	Worker      WorkerConfig      `yaml:"worker"`
	Controller  ControllerConfig  `yaml:"controller"`
	Store       StoreConfig       `yaml:"store"`
	Processor   ProcessorConfig   `yaml:"processor"`
	Submit      SubmitConfig      `yaml:"submit"`
	Handshake   HandshakeConfig   `yaml:"handshake"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
	Browser     BrowserConfig     `yaml:"browser"`
	Navigation  NavigationConfig  `yaml:"navigation"`
	Lighthouse  LighthouseConfig  `yaml:"lighthouse"`
	RabbitMQ    RabbitMQConfig    `yaml:"rabbitmq"`
	Tracing     TracingConfig     `yaml:"tracing"`
}

// WorkerConfig — идентичность и входящий порт.
type WorkerConfig struct {
	ID           string `yaml:"id" validate:"required,max=128"`
	ProcessingBy string `yaml:"processing_by" validate:"required,max=128"`
	Port         int    `yaml:"port" validate:"min=1,max=65535"`
}

// ControllerConfig — канал к controller.
type ControllerConfig struct {
	URL             string `yaml:"url" validate:"required,http_url"`
	SharedSecret    string `yaml:"shared_secret" validate:"required"`
	SignatureWindow int    `yaml:"signature_window_sec" validate:"min=1"`
	VerifyResponses bool   `yaml:"verify_responses"`
}

// StoreConfig — task store.
type StoreConfig struct {
	Driver string `yaml:"driver" validate:"oneof=postgres sqlite"`
	URL    string `yaml:"url" validate:"required"`
}

// ProcessorConfig — цикл диспетчеризации.
type ProcessorConfig struct {
	MaxConcurrent  int           `yaml:"max_concurrent" validate:"min=1,max=64"`
	PollInterval   time.Duration `yaml:"poll_interval" validate:"min=100ms"`
	DeliveryPolicy string        `yaml:"delivery_policy" validate:"oneof=requeue fail"`
}

// SubmitConfig — повторы доставки результата.
type SubmitConfig struct {
	MaxRetries int           `yaml:"max_retries" validate:"min=1,max=20"`
	BaseDelay  time.Duration `yaml:"base_delay" validate:"min=0"`
}

// HandshakeConfig — стартовый запрос работы.
type HandshakeConfig struct {
	MaxTasks   int           `yaml:"max_tasks" validate:"min=1,max=100"`
	MaxRetries int           `yaml:"max_retries" validate:"min=1,max=20"`
	BaseDelay  time.Duration `yaml:"base_delay" validate:"min=0"`
}

// MaintenanceConfig — stuck и retention sweeps.
type MaintenanceConfig struct {
	StuckInterval         time.Duration `yaml:"stuck_interval" validate:"min=1s"`
	StuckThresholdMinutes int           `yaml:"stuck_threshold_minutes" validate:"min=1"`
	CleanupInterval       time.Duration `yaml:"cleanup_interval" validate:"min=1s"`
	RetentionDays         int           `yaml:"retention_days" validate:"min=1"`
}

// BrowserConfig — запуск Chrome.
type BrowserConfig struct {
	Headless     bool     `yaml:"headless"`
	NoSandbox    bool     `yaml:"no_sandbox"`
	UserAgent    string   `yaml:"user_agent"`
	ExecPath     string   `yaml:"exec_path"`
	SessionKinds []string `yaml:"session_kinds"`

	// AcquireTimeout — сколько task ждёт занятую страницу сессии.
	AcquireTimeout time.Duration `yaml:"acquire_timeout" validate:"min=0"`
}

// NavigationConfig — значения навигации по умолчанию.
type NavigationConfig struct {
	BaseTimeout      time.Duration `yaml:"base_timeout" validate:"min=1s"`
	ChallengeTimeout time.Duration `yaml:"challenge_timeout" validate:"min=0"`
	HostRatePerSec   float64       `yaml:"host_rate_per_sec" validate:"min=0"`
}

// LighthouseConfig — сайт отчётов производительности.
type LighthouseConfig struct {
	BaseURL string        `yaml:"base_url" validate:"required,http_url"`
	Timeout time.Duration `yaml:"timeout" validate:"min=1s"`
}

// RabbitMQConfig — опциональная шина; пустой URL отключает.
type RabbitMQConfig struct {
	URL string `yaml:"url" validate:"omitempty,url"`
}

// TracingConfig — экспорт трейсов.
type TracingConfig struct {
	Exporter string `yaml:"exporter" validate:"oneof=none stdout otlphttp"`
	Endpoint string `yaml:"endpoint" validate:"required_if=Exporter otlphttp"`
}

// Default возвращает конфигурацию по умолчанию (без секрета).
func Default() *Config {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}

	return &Config{
		Worker: WorkerConfig{
			ID:           "worker-" + uuid.NewString()[:8],
			ProcessingBy: host,
			Port:         8082,
		},
		Controller: ControllerConfig{
			URL:             "http://localhost:8080",
			SignatureWindow: 300,
		},
		Store: StoreConfig{
			Driver: "sqlite",
			URL:    "harvester.db",
		},
		Processor: ProcessorConfig{
			MaxConcurrent:  3,
			PollInterval:   5 * time.Second,
			DeliveryPolicy: "requeue",
		},
		Submit: SubmitConfig{
			MaxRetries: 3,
			BaseDelay:  time.Second,
		},
		Handshake: HandshakeConfig{
			MaxTasks:   5,
			MaxRetries: 3,
			BaseDelay:  2 * time.Second,
		},
		Maintenance: MaintenanceConfig{
			StuckInterval:         5 * time.Minute,
			StuckThresholdMinutes: 15,
			CleanupInterval:       time.Hour,
			RetentionDays:         7,
		},
		Browser: BrowserConfig{
			Headless:       true,
			NoSandbox:      true,
			AcquireTimeout: 2 * time.Minute,
		},
		Navigation: NavigationConfig{
			BaseTimeout:      30 * time.Second,
			ChallengeTimeout: 30 * time.Second,
			HostRatePerSec:   1,
		},
		Lighthouse: LighthouseConfig{
			BaseURL: "https://pagespeed.web.dev/analysis",
			Timeout: 90 * time.Second,
		},
		Tracing: TracingConfig{
			Exporter: "none",
		},
	}
}

// Load собирает конфигурацию. Пустой path берётся из HARVESTER_CONFIG;
// если и он пуст, файл не читается.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate проверяет значения.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			errs := make([]error, 0, len(verrs))
			for _, fe := range verrs {
				errs = append(errs, fmt.Errorf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
		}
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// Claimant возвращает идентичность воркера.
func (c *Config) Claimant() domain.Claimant {
	return domain.Claimant{WorkerID: c.Worker.ID, ProcessingBy: c.Worker.ProcessingBy}
}

// SignatureWindow возвращает окно приёма подписи.
func (c *Config) SignatureWindow() time.Duration {
	return time.Duration(c.Controller.SignatureWindow) * time.Second
}

// StuckThreshold возвращает порог stuck sweep.
func (c *Config) StuckThreshold() time.Duration {
	return time.Duration(c.Maintenance.StuckThresholdMinutes) * time.Minute
}

// Retention возвращает срок хранения terminal tasks.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.Maintenance.RetentionDays) * 24 * time.Hour
}
