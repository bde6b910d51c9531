package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/shaiso/Harvester/internal/api"
	"github.com/shaiso/Harvester/internal/repo"
	"github.com/shaiso/Harvester/internal/signing"
)

var testSecret = []byte("cli-secret")

func newWorkerAPI(t *testing.T) *httptest.Server {
	t.Helper()

	store, err := repo.Open(context.Background(), repo.DriverSQLite, filepath.Join(t.TempDir(), "cli.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	h := api.NewHandler(api.Config{
		Store:    store,
		Signer:   signing.NewSigner(testSecret),
		WorkerID: "worker-cli",
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)
	return srv
}

// run выполняет команду CLI и возвращает stdout.
func run(t *testing.T, baseURL string, secret []byte, args ...string) (string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	clientFn := func() *Client { return NewClient(baseURL, secret) }
	outputFn := func() *Output { return NewOutputTo(true, &stdout, &stderr) }

	root := &cobra.Command{Use: "harvester", SilenceUsage: true, SilenceErrors: true}
	root.AddCommand(
		NewPingCmd(clientFn, outputFn),
		NewStatsCmd(clientFn, outputFn),
		NewTaskCmd(clientFn, outputFn),
	)
	root.SetArgs(args)
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)

	err := root.Execute()
	return stdout.String(), err
}

// --- Command Tests ---

func TestPingCommand(t *testing.T) {
	srv := newWorkerAPI(t)

	out, err := run(t, srv.URL, testSecret, "ping")
	if err != nil {
		t.Fatalf("ping: %v", err)
	}

	var ping PingResponse
	if err := json.Unmarshal([]byte(out), &ping); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if ping.Status != "ok" || ping.WorkerID != "worker-cli" {
		t.Errorf("unexpected ping: %+v", ping)
	}
}

func TestPingCommand_WrongSecret(t *testing.T) {
	srv := newWorkerAPI(t)

	_, err := run(t, srv.URL, []byte("wrong"), "ping")
	if !errors.Is(err, signing.ErrUnauthenticated) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if signing.ReasonOf(err) != signing.ReasonInvalidSignature {
		t.Errorf("reason = %s", signing.ReasonOf(err))
	}
}

func TestTaskCommands(t *testing.T) {
	srv := newWorkerAPI(t)

	_, err := run(t, srv.URL, testSecret,
		"task", "enqueue",
		"--id", "cli-1",
		"--url", "https://example.com",
		"--payload", "include_markdown=true",
		"--payload", "timeout_ms=45000",
	)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	out, err := run(t, srv.URL, testSecret, "task", "show", "cli-1")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	var task TaskResponse
	if err := json.Unmarshal([]byte(out), &task); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if task.Status != "pending" || task.Type != "website_html" {
		t.Errorf("unexpected task: %+v", task)
	}
	if task.Payload["include_markdown"] != true || task.Payload["timeout_ms"] != float64(45000) {
		t.Errorf("payload types lost: %v", task.Payload)
	}

	// Повторный ID отклоняется с причиной.
	_, err = run(t, srv.URL, testSecret, "task", "enqueue", "--id", "cli-1", "--url", "https://example.com")
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Errorf("expected duplicate error, got %v", err)
	}

	out, err = run(t, srv.URL, testSecret, "task", "list", "--status", "pending")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var tasks []TaskResponse
	if err := json.Unmarshal([]byte(out), &tasks); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != "cli-1" {
		t.Errorf("unexpected list: %+v", tasks)
	}

	out, err = run(t, srv.URL, testSecret, "stats")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	var stats StatsResponse
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Pending != 1 || stats.Total != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestTaskShow_NotFound(t *testing.T) {
	srv := newWorkerAPI(t)

	_, err := run(t, srv.URL, testSecret, "task", "show", "missing")
	if err == nil || !strings.Contains(err.Error(), "NOT_FOUND") {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}

func TestTaskEnqueue_InvalidURL(t *testing.T) {
	srv := newWorkerAPI(t)

	_, err := run(t, srv.URL, testSecret, "task", "enqueue", "--url", "not-a-url")
	if err == nil || !strings.Contains(err.Error(), "BAD_REQUEST") {
		t.Errorf("expected BAD_REQUEST, got %v", err)
	}
}

// --- ParsePayload Tests ---

func TestParsePayload(t *testing.T) {
	got, err := ParsePayload([]string{"wait_until=load", "human_delay=false", "timeout_ms=1000", "note=a=b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := map[string]any{
		"wait_until":  "load",
		"human_delay": false,
		"timeout_ms":  float64(1000),
		"note":        "a=b",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}

	if _, err := ParsePayload([]string{"novalue"}); err == nil {
		t.Error("expected error for missing '='")
	}
	if p, _ := ParsePayload(nil); p != nil {
		t.Error("empty input should produce nil payload")
	}
}
