package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// envReader накапливает ошибки разбора, чтобы сообщить обо всех сразу.
type envReader struct {
	errs []error
}

func (r *envReader) fail(key, raw string, err error) {
	r.errs = append(r.errs, fmt.Errorf("%w %s=%q: %v", ErrBadEnv, key, raw, err))
}

func (r *envReader) stringVar(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func (r *envReader) intVar(key string, dst *int) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		r.fail(key, raw, err)
		return
	}
	*dst = v
}

func (r *envReader) floatVar(key string, dst *float64) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		r.fail(key, raw, err)
		return
	}
	*dst = v
}

func (r *envReader) boolVar(key string, dst *bool) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		r.fail(key, raw, err)
		return
	}
	*dst = v
}

// durationVar принимает "90s"/"5m" или целое число секунд.
func (r *envReader) durationVar(key string, dst *time.Duration) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return
	}
	raw = strings.TrimSpace(raw)
	if secs, err := strconv.Atoi(raw); err == nil {
		*dst = time.Duration(secs) * time.Second
		return
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		r.fail(key, raw, err)
		return
	}
	*dst = v
}

func (r *envReader) listVar(key string, dst *[]string) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*dst = out
}

// applyEnv переносит переменные окружения поверх cfg.
func applyEnv(cfg *Config) error {
	var r envReader

	r.stringVar("WORKER_ID", &cfg.Worker.ID)
	r.stringVar("PROCESSING_BY", &cfg.Worker.ProcessingBy)
	r.intVar("WORKER_PORT", &cfg.Worker.Port)

	r.stringVar("CONTROLLER_URL", &cfg.Controller.URL)
	r.stringVar("WORKER_SHARED_SECRET", &cfg.Controller.SharedSecret)
	r.intVar("SIGNATURE_WINDOW_SEC", &cfg.Controller.SignatureWindow)
	r.boolVar("CONTROLLER_VERIFY_RESPONSES", &cfg.Controller.VerifyResponses)

	r.stringVar("STORE_DRIVER", &cfg.Store.Driver)
	r.stringVar("DB_URL", &cfg.Store.URL)

	r.intVar("MAX_CONCURRENT", &cfg.Processor.MaxConcurrent)
	r.durationVar("POLL_INTERVAL", &cfg.Processor.PollInterval)
	r.stringVar("DELIVERY_FAILURE_POLICY", &cfg.Processor.DeliveryPolicy)

	r.intVar("SUBMIT_MAX_RETRIES", &cfg.Submit.MaxRetries)
	r.durationVar("SUBMIT_BASE_DELAY", &cfg.Submit.BaseDelay)

	r.intVar("HANDSHAKE_MAX_TASKS", &cfg.Handshake.MaxTasks)
	r.intVar("HANDSHAKE_MAX_RETRIES", &cfg.Handshake.MaxRetries)
	r.durationVar("HANDSHAKE_BASE_DELAY", &cfg.Handshake.BaseDelay)

	r.durationVar("STUCK_SWEEP_INTERVAL", &cfg.Maintenance.StuckInterval)
	r.intVar("STUCK_THRESHOLD_MINUTES", &cfg.Maintenance.StuckThresholdMinutes)
	r.durationVar("CLEANUP_INTERVAL", &cfg.Maintenance.CleanupInterval)
	r.intVar("RETENTION_DAYS", &cfg.Maintenance.RetentionDays)

	r.boolVar("BROWSER_HEADLESS", &cfg.Browser.Headless)
	r.boolVar("BROWSER_NO_SANDBOX", &cfg.Browser.NoSandbox)
	r.stringVar("BROWSER_USER_AGENT", &cfg.Browser.UserAgent)
	r.stringVar("BROWSER_EXEC_PATH", &cfg.Browser.ExecPath)
	r.listVar("BROWSER_SESSION_KINDS", &cfg.Browser.SessionKinds)
	r.durationVar("BROWSER_ACQUIRE_TIMEOUT", &cfg.Browser.AcquireTimeout)

	r.durationVar("NAV_BASE_TIMEOUT", &cfg.Navigation.BaseTimeout)
	r.durationVar("NAV_CHALLENGE_TIMEOUT", &cfg.Navigation.ChallengeTimeout)
	r.floatVar("HOST_RATE_PER_SEC", &cfg.Navigation.HostRatePerSec)

	r.stringVar("LIGHTHOUSE_BASE_URL", &cfg.Lighthouse.BaseURL)
	r.durationVar("LIGHTHOUSE_TIMEOUT", &cfg.Lighthouse.Timeout)

	r.stringVar("RABBITMQ_URL", &cfg.RabbitMQ.URL)

	r.stringVar("OTEL_EXPORTER", &cfg.Tracing.Exporter)
	r.stringVar("OTEL_ENDPOINT", &cfg.Tracing.Endpoint)

	return errors.Join(r.errs...)
}
