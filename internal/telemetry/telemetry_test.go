package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// --- Logging Tests ---

func TestLogLevel(t *testing.T) {
	tests := []struct {
		env  string
		want slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			t.Setenv("LOG_LEVEL", tt.env)
			if got := LogLevel(); got != tt.want {
				t.Errorf("LogLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSetupLogger_Format(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	t.Setenv("LOG_LEVEL", "INFO")
	t.Setenv("LOG_FORMAT", "json")

	var buf bytes.Buffer
	logger := setupLogger(&buf)
	WithTaskID(logger, "t1").Info("task claimed")

	out := buf.String()
	if !strings.Contains(out, `"task_id":"t1"`) || !strings.Contains(out, `"msg":"task claimed"`) {
		t.Errorf("unexpected json log: %s", out)
	}

	buf.Reset()
	t.Setenv("LOG_FORMAT", "text")
	logger = setupLogger(&buf)
	WithWorkerID(logger, "w1").Info("started")
	if !strings.Contains(buf.String(), "worker_id=w1") {
		t.Errorf("unexpected text log: %s", buf.String())
	}
}

// --- Metrics Tests ---

func TestMetrics_Exposed(t *testing.T) {
	m := NewMetrics()
	m.TaskClaimed(2)
	m.TaskStarted()
	m.TaskFinished("website_html", "completed", 1500*time.Millisecond)
	m.Navigation("blocked")
	m.Submission("delivered")
	m.MaintenanceAffected("stuck", 3)
	m.SignatureRejected("TIMESTAMP_EXPIRED")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()

	for _, want := range []string{
		"harvester_tasks_claimed_total 2",
		`harvester_tasks_finished_total{status="completed"} 1`,
		"harvester_active_tasks 0",
		`harvester_navigation_total{outcome="blocked"} 1`,
		`harvester_result_submissions_total{outcome="delivered"} 1`,
		`harvester_maintenance_affected_total{sweep="stuck"} 3`,
		`harvester_task_duration_seconds_count{type="website_html"} 1`,
		`harvester_signature_rejected_total{reason="TIMESTAMP_EXPIRED"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.TaskClaimed(1)
	m.TaskStarted()
	m.TaskFinished("x", "failed", time.Second)
	m.Navigation("failed")
	m.Submission("failed")
	m.MaintenanceAffected("cleanup", 1)
	m.SignatureRejected("MISSING_HEADERS")
	if m.Registry() != nil {
		t.Error("expected nil registry")
	}
}

// --- Tracing Tests ---

func TestInitTracing_Noop(t *testing.T) {
	tr, err := InitTracing(context.Background(), TracingConfig{Exporter: ExporterNone})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	_, span := tr.Tracer.Start(context.Background(), "task.execute")
	span.End()
	if err := tr.Shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestInitTracing_UnknownExporter(t *testing.T) {
	if _, err := InitTracing(context.Background(), TracingConfig{Exporter: "jaeger"}); err == nil {
		t.Error("expected error for unknown exporter")
	}
}
