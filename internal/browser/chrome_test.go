package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// --- waitNavigation Tests ---

func TestWaitNavigation_LoadWaitsForNavigate(t *testing.T) {
	navErr := errors.New("net::ERR_CONNECTION_REFUSED")

	for _, strategy := range []WaitStrategy{WaitLoad, ""} {
		navDone := make(chan error, 1)
		navDone <- navErr
		// reached для load не используется
		reached := make(chan struct{})
		close(reached)

		if err := waitNavigation(context.Background(), strategy, navDone, reached); !errors.Is(err, navErr) {
			t.Errorf("%q: expected navigate error, got %v", strategy, err)
		}
	}
}

func TestWaitNavigation_NetworkIdleBeforeLoad(t *testing.T) {
	navDone := make(chan error)
	reached := make(chan struct{})
	close(reached)

	if err := waitNavigation(context.Background(), WaitNetworkIdle, navDone, reached); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestWaitNavigation_NetworkIdleAfterLoad(t *testing.T) {
	navDone := make(chan error, 1)
	navDone <- nil
	reached := make(chan struct{})

	go func() {
		time.Sleep(10 * time.Millisecond)
		close(reached)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := waitNavigation(ctx, WaitNetworkIdle, navDone, reached); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestWaitNavigation_NetworkIdleNeverReached(t *testing.T) {
	navDone := make(chan error, 1)
	navDone <- nil

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := waitNavigation(ctx, WaitNetworkIdle, navDone, make(chan struct{}))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestWaitNavigation_DOMContentLoadedSatisfiedByLoad(t *testing.T) {
	navDone := make(chan error, 1)
	navDone <- nil

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := waitNavigation(ctx, WaitDOMContentLoaded, navDone, make(chan struct{})); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestWaitNavigation_NavigateErrorWins(t *testing.T) {
	navErr := errors.New("net::ERR_NAME_NOT_RESOLVED")
	navDone := make(chan error, 1)
	navDone <- navErr

	err := waitNavigation(context.Background(), WaitNetworkIdle, navDone, make(chan struct{}))
	if !errors.Is(err, navErr) {
		t.Errorf("expected navigate error, got %v", err)
	}
}

func TestWaitNavigation_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := waitNavigation(ctx, WaitDOMContentLoaded, make(chan error), make(chan struct{}))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected canceled, got %v", err)
	}
}

func TestLifecycleEvent(t *testing.T) {
	tests := map[WaitStrategy]string{
		WaitNetworkIdle:      "networkIdle",
		WaitDOMContentLoaded: "DOMContentLoaded",
		WaitLoad:             "",
	}
	for strategy, want := range tests {
		if got := lifecycleEvent(strategy); got != want {
			t.Errorf("%s: got %q, want %q", strategy, got, want)
		}
	}
}

// --- attachWithin Tests ---

func TestAttachWithin_Success(t *testing.T) {
	var cancelled atomic.Bool
	err := attachWithin(context.Background(), time.Second, func() { cancelled.Store(true) }, func() error {
		return nil
	})
	if err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if cancelled.Load() {
		t.Error("successful attach must not be cancelled")
	}
}

func TestAttachWithin_ErrorCancels(t *testing.T) {
	boom := errors.New("exec: chrome not found")
	var cancelled atomic.Bool

	err := attachWithin(context.Background(), time.Second, func() { cancelled.Store(true) }, func() error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("expected attach error, got %v", err)
	}
	if !cancelled.Load() {
		t.Error("failed attach must release the browser context")
	}
}

func TestAttachWithin_TimeoutDoesNotWaitForAttach(t *testing.T) {
	unblock := make(chan struct{})
	defer close(unblock)
	var cancelled atomic.Bool

	start := time.Now()
	err := attachWithin(context.Background(), 20*time.Millisecond, func() { cancelled.Store(true) }, func() error {
		<-unblock
		return nil
	})

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	if !cancelled.Load() {
		t.Error("timed out attach must be cancelled")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("attachWithin waited %v for a blocked attach", elapsed)
	}
}

func TestAttachWithin_CallerCancel(t *testing.T) {
	unblock := make(chan struct{})
	defer close(unblock)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var cancelled atomic.Bool
	err := attachWithin(ctx, time.Minute, func() { cancelled.Store(true) }, func() error {
		<-unblock
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected canceled, got %v", err)
	}
	if !cancelled.Load() {
		t.Error("cancelled attach must release the browser context")
	}
}

// --- ChromeProvider Tests ---

// HARVESTER_TEST_CHROME=1 включает тесты с настоящим Chrome;
// HARVESTER_TEST_CHROME_PATH задаёт бинарник.
func newTestChrome(t *testing.T, sessionKinds ...string) *ChromeProvider {
	t.Helper()
	if os.Getenv("HARVESTER_TEST_CHROME") == "" {
		t.Skip("set HARVESTER_TEST_CHROME=1 to run against a real Chrome")
	}

	p := NewChromeProvider(ChromeConfig{
		Headless:       true,
		NoSandbox:      true,
		ExecPath:       os.Getenv("HARVESTER_TEST_CHROME_PATH"),
		StartupTimeout: 30 * time.Second,
		SessionKinds:   sessionKinds,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	// ctx запуска отменяется сразу после Start: браузер не должен от него зависеть.
	startCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
	err := p.Start(startCtx)
	cancel()
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func newTestSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<!doctype html><html><head><title>Harvest Me</title></head>
<body><h1>ok</h1><img src="/slow.png"></body></html>`)
	})
	mux.HandleFunc("/slow.png", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Header().Set("Content-Type", "image/png")
	})
	mux.HandleFunc("/redirect", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/page", http.StatusFound)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestChromeProvider_TabsOutliveStartContext(t *testing.T) {
	p := newTestChrome(t)
	site := newTestSite(t)
	ctx := context.Background()

	for i := range 2 {
		page, err := p.Acquire(ctx, "website_html")
		if err != nil {
			t.Fatalf("acquire tab %d after start: %v", i, err)
		}

		final, err := page.Navigate(ctx, site.URL+"/redirect", NavigateParams{Strategy: WaitLoad, Timeout: 15 * time.Second})
		if err != nil {
			page.Release()
			t.Fatalf("navigate tab %d: %v", i, err)
		}
		if !strings.HasSuffix(final, "/page") {
			t.Errorf("expected redirect target, got %s", final)
		}
		page.Release()
		page.Release()
	}
}

func TestChromeProvider_NavigateStrategies(t *testing.T) {
	p := newTestChrome(t)
	site := newTestSite(t)
	ctx := context.Background()

	for _, strategy := range []WaitStrategy{WaitNetworkIdle, WaitLoad, WaitDOMContentLoaded} {
		t.Run(string(strategy), func(t *testing.T) {
			page, err := p.Acquire(ctx, "website_html")
			if err != nil {
				t.Fatalf("acquire: %v", err)
			}
			defer page.Release()

			if _, err := page.Navigate(ctx, site.URL+"/page", NavigateParams{Strategy: strategy, Timeout: 20 * time.Second}); err != nil {
				t.Fatalf("navigate: %v", err)
			}
			title, err := page.Title(ctx)
			if err != nil || title != "Harvest Me" {
				t.Errorf("title = %q, %v", title, err)
			}
			html, err := page.Content(ctx)
			if err != nil || !strings.Contains(html, "<h1>ok</h1>") {
				t.Errorf("content missing heading: %v", err)
			}
			var hidden bool
			if err := page.Evaluate(ctx, "navigator.webdriver === undefined", &hidden); err != nil {
				t.Errorf("evaluate: %v", err)
			}
			if !hidden {
				t.Error("navigator.webdriver should be hidden")
			}
		})
	}
}

func TestChromeProvider_SessionKindReusesTab(t *testing.T) {
	p := newTestChrome(t, "lighthouse_html")
	site := newTestSite(t)
	ctx := context.Background()

	first, err := p.Acquire(ctx, "lighthouse_html")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := first.Navigate(ctx, site.URL+"/page", NavigateParams{Strategy: WaitLoad, Timeout: 15 * time.Second}); err != nil {
		t.Fatalf("navigate: %v", err)
	}
	first.Release()

	second, err := p.Acquire(ctx, "lighthouse_html")
	if err != nil {
		t.Fatalf("reacquire: %v", err)
	}
	defer second.Release()

	loc, err := second.Location(ctx)
	if err != nil || !strings.HasSuffix(loc, "/page") {
		t.Errorf("session tab must keep its document, got %q, %v", loc, err)
	}
}

func TestChromeProvider_ClosedRejectsAcquire(t *testing.T) {
	p := newTestChrome(t)
	p.Close()

	if _, err := p.Acquire(context.Background(), "website_html"); !errors.Is(err, ErrProviderClosed) {
		t.Errorf("expected ErrProviderClosed, got %v", err)
	}
}
