package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "harvester.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// --- Load Tests ---

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	t.Setenv("WORKER_SHARED_SECRET", "s3cret")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if !strings.HasPrefix(cfg.Worker.ID, "worker-") || len(cfg.Worker.ID) != len("worker-")+8 {
		t.Errorf("unexpected default worker id %q", cfg.Worker.ID)
	}
	if cfg.Worker.ProcessingBy == "" {
		t.Error("processing_by should default to hostname")
	}
	if cfg.Store.Driver != "sqlite" || cfg.Processor.MaxConcurrent != 3 || cfg.Processor.DeliveryPolicy != "requeue" {
		t.Errorf("unexpected defaults: %+v %+v", cfg.Store, cfg.Processor)
	}
	if cfg.SignatureWindow() != 300*time.Second {
		t.Errorf("signature window = %v", cfg.SignatureWindow())
	}
	if cfg.StuckThreshold() != 15*time.Minute || cfg.Retention() != 7*24*time.Hour {
		t.Errorf("maintenance = %v / %v", cfg.StuckThreshold(), cfg.Retention())
	}
	if cfg.Navigation.BaseTimeout != 30*time.Second || cfg.Lighthouse.Timeout != 90*time.Second {
		t.Errorf("timeouts = %v / %v", cfg.Navigation.BaseTimeout, cfg.Lighthouse.Timeout)
	}
}

func TestLoad_RequiresSecret(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	t.Setenv("WORKER_SHARED_SECRET", "")

	_, err := Load("")
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
	if !strings.Contains(err.Error(), "SharedSecret") {
		t.Errorf("error should name the field: %v", err)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeConfig(t, `
worker:
  id: yaml-worker
  port: 9000
controller:
  url: https://controller.internal
  shared_secret: from-file
store:
  driver: postgres
  url: postgres://localhost/harvester
processor:
  max_concurrent: 8
  poll_interval: 2s
browser:
  session_kinds: [chat]
  acquire_timeout: 45s
`)
	t.Setenv(EnvConfigPath, "")
	t.Setenv("WORKER_SHARED_SECRET", "")
	t.Setenv("WORKER_ID", "env-worker")
	t.Setenv("MAX_CONCURRENT", "4")
	t.Setenv("NAV_CHALLENGE_TIMEOUT", "45")
	t.Setenv("BROWSER_SESSION_KINDS", "chat, lighthouse ,")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Worker.ID != "env-worker" {
		t.Errorf("env should override file, got %q", cfg.Worker.ID)
	}
	if cfg.Worker.Port != 9000 || cfg.Controller.SharedSecret != "from-file" {
		t.Errorf("file values lost: %+v %+v", cfg.Worker, cfg.Controller)
	}
	if cfg.Store.Driver != "postgres" {
		t.Errorf("driver = %q", cfg.Store.Driver)
	}
	if cfg.Processor.MaxConcurrent != 4 || cfg.Processor.PollInterval != 2*time.Second {
		t.Errorf("processor = %+v", cfg.Processor)
	}
	if cfg.Navigation.ChallengeTimeout != 45*time.Second {
		t.Errorf("plain seconds should parse, got %v", cfg.Navigation.ChallengeTimeout)
	}
	if len(cfg.Browser.SessionKinds) != 2 || cfg.Browser.SessionKinds[1] != "lighthouse" {
		t.Errorf("session kinds = %v", cfg.Browser.SessionKinds)
	}
	if cfg.Browser.AcquireTimeout != 45*time.Second {
		t.Errorf("acquire timeout = %v", cfg.Browser.AcquireTimeout)
	}
}

func TestLoad_PathFromEnv(t *testing.T) {
	path := writeConfig(t, "controller:\n  shared_secret: via-env-path\n")
	t.Setenv(EnvConfigPath, path)
	t.Setenv("WORKER_SHARED_SECRET", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Controller.SharedSecret != "via-env-path" {
		t.Errorf("secret = %q", cfg.Controller.SharedSecret)
	}
}

func TestLoad_BadEnv(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	t.Setenv("WORKER_SHARED_SECRET", "x")
	t.Setenv("MAX_CONCURRENT", "many")
	t.Setenv("BROWSER_HEADLESS", "sometimes")

	_, err := Load("")
	if !errors.Is(err, ErrBadEnv) {
		t.Fatalf("expected ErrBadEnv, got %v", err)
	}
	if !strings.Contains(err.Error(), "MAX_CONCURRENT") || !strings.Contains(err.Error(), "BROWSER_HEADLESS") {
		t.Errorf("all bad variables should be reported: %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("WORKER_SHARED_SECRET", "x")
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

// --- Validate Tests ---

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"unknown driver", func(c *Config) { c.Store.Driver = "mysql" }, "Driver"},
		{"zero concurrency", func(c *Config) { c.Processor.MaxConcurrent = 0 }, "MaxConcurrent"},
		{"unknown policy", func(c *Config) { c.Processor.DeliveryPolicy = "drop" }, "DeliveryPolicy"},
		{"relative controller url", func(c *Config) { c.Controller.URL = "controller:8080" }, "URL"},
		{"tiny poll interval", func(c *Config) { c.Processor.PollInterval = time.Millisecond }, "PollInterval"},
		{"otlp without endpoint", func(c *Config) { c.Tracing.Exporter = "otlphttp" }, "Endpoint"},
		{"unknown exporter", func(c *Config) { c.Tracing.Exporter = "jaeger" }, "Exporter"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Controller.SharedSecret = "x"
			tt.mutate(cfg)

			err := cfg.Validate()
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error should mention %s: %v", tt.field, err)
			}
		})
	}

	cfg := Default()
	cfg.Controller.SharedSecret = "x"
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults with secret should be valid: %v", err)
	}
}

func TestClaimant(t *testing.T) {
	cfg := Default()
	cfg.Worker.ID = "w-1"
	cfg.Worker.ProcessingBy = "host-1"

	c := cfg.Claimant()
	if c.WorkerID != "w-1" || c.ProcessingBy != "host-1" {
		t.Errorf("claimant = %+v", c)
	}
}
