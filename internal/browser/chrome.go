package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// DefaultUserAgent — UA обычного десктопного Chrome.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// opTimeout — таймаут для коротких операций (title, content, evaluate).
const opTimeout = 15 * time.Second

// stealthScript скрывает признаки автоматизации до выполнения скриптов страницы.
const stealthScript = `
Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'] });
Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3, 4, 5] });
window.chrome = window.chrome || { runtime: {} };
`

// ChromeConfig — параметры запуска Chrome.
type ChromeConfig struct {
	Headless       bool
	NoSandbox      bool
	ExecPath       string
	UserAgent      string
	WindowWidth    int
	WindowHeight   int
	StartupTimeout time.Duration

	// SessionKinds — виды страниц, которые живут между tasks (см. SessionRegistry).
	SessionKinds []string
}

// ChromeProvider — Provider на chromedp: один процесс браузера, вкладка на Acquire.
type ChromeProvider struct {
	cfg    ChromeConfig
	logger *slog.Logger

	mu            sync.Mutex
	browserCtx    context.Context
	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
	sessions      *SessionRegistry
	persistent    map[string]bool
}

// NewChromeProvider создаёт провайдер. Браузер запускается в Start.
func NewChromeProvider(cfg ChromeConfig, logger *slog.Logger) *ChromeProvider {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.WindowWidth <= 0 || cfg.WindowHeight <= 0 {
		cfg.WindowWidth, cfg.WindowHeight = 1920, 1080
	}
	if cfg.StartupTimeout <= 0 {
		cfg.StartupTimeout = 30 * time.Second
	}

	persistent := make(map[string]bool, len(cfg.SessionKinds))
	for _, kind := range cfg.SessionKinds {
		persistent[kind] = true
	}

	p := &ChromeProvider{
		cfg:        cfg,
		logger:     logger.With("component", "chrome"),
		persistent: persistent,
	}
	p.sessions = NewSessionRegistry(p.openTab)
	return p
}

// Start запускает браузер и проверяет, что он отвечает.
func (p *ChromeProvider) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.browserCtx != nil {
		return nil
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", p.cfg.Headless),
		chromedp.Flag("no-sandbox", p.cfg.NoSandbox),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("ignore-certificate-errors", true),
		chromedp.UserAgent(p.cfg.UserAgent),
		chromedp.WindowSize(p.cfg.WindowWidth, p.cfg.WindowHeight),
	)
	if p.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(p.cfg.ExecPath))
	}

	// Браузер живёт дольше ctx запуска.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			p.logger.Debug(fmt.Sprintf("chromedp: "+format, args...))
		}),
	)

	shutdown := func() {
		browserCancel()
		allocCancel()
	}

	// Процесс браузера привязан к ctx первого Run, таймаут только снаружи.
	err := attachWithin(ctx, p.cfg.StartupTimeout, shutdown, func() error {
		return chromedp.Run(browserCtx)
	})
	if err != nil {
		return fmt.Errorf("browser startup: %w", err)
	}

	probeCtx, probeCancel := context.WithTimeout(browserCtx, p.cfg.StartupTimeout)
	defer probeCancel()
	stop := context.AfterFunc(ctx, probeCancel)
	defer stop()

	if err := chromedp.Run(probeCtx, chromedp.Navigate("about:blank")); err != nil {
		shutdown()
		return fmt.Errorf("browser probe: %w", err)
	}

	p.browserCtx = browserCtx
	p.allocCancel = allocCancel
	p.browserCancel = browserCancel

	p.logger.Info("browser started",
		"headless", p.cfg.Headless,
		"session_kinds", p.cfg.SessionKinds,
	)
	return nil
}

// Acquire выдаёт страницу: из реестра сессий для persistent kind, иначе новую вкладку.
func (p *ChromeProvider) Acquire(ctx context.Context, kind string) (Page, error) {
	if p.persistent[kind] {
		return p.sessions.Acquire(ctx, kind)
	}
	return p.openTab(ctx, kind)
}

// Close закрывает все вкладки и браузер.
func (p *ChromeProvider) Close() error {
	p.sessions.Close()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.browserCtx == nil {
		return nil
	}

	p.browserCancel()
	p.allocCancel()
	p.browserCtx = nil

	p.logger.Info("browser stopped")
	return nil
}

func (p *ChromeProvider) openTab(ctx context.Context, kind string) (Page, error) {
	p.mu.Lock()
	browserCtx := p.browserCtx
	p.mu.Unlock()

	if browserCtx == nil {
		return nil, ErrProviderClosed
	}

	tabCtx, cancel := chromedp.NewContext(browserCtx)
	tab := &chromePage{ctx: tabCtx, cancel: cancel}

	// Как и браузер, target вкладки живёт на ctx первого Run.
	err := attachWithin(ctx, opTimeout, cancel, func() error {
		return chromedp.Run(tabCtx)
	})
	if err != nil {
		return nil, fmt.Errorf("open tab %s: %w", kind, err)
	}

	err = tab.run(ctx, opTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
		return err
	}))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open tab %s: %w", kind, err)
	}

	return tab, nil
}

// attachWithin выполняет attach, ограничивая ожидание timeout и ctx.
// По истечении вызывает cancel и не дожидается attach: done буферизован.
func attachWithin(ctx context.Context, timeout time.Duration, cancel context.CancelFunc, attach func() error) error {
	done := make(chan error, 1)
	go func() { done <- attach() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			cancel()
		}
		return err
	case <-timer.C:
		cancel()
		return fmt.Errorf("no response within %s: %w", timeout, context.DeadlineExceeded)
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
}

// chromePage — вкладка chromedp.
type chromePage struct {
	ctx      context.Context
	cancel   context.CancelFunc
	released atomic.Bool
}

// lifecycleEvent возвращает имя события Page.lifecycleEvent для стратегии.
func lifecycleEvent(strategy WaitStrategy) string {
	switch strategy {
	case WaitNetworkIdle:
		return "networkIdle"
	case WaitDOMContentLoaded:
		return "DOMContentLoaded"
	default:
		return ""
	}
}

func (p *chromePage) Navigate(ctx context.Context, url string, params NavigateParams) (string, error) {
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = DefaultNavigationTimeout
	}

	navCtx, cancel := context.WithTimeout(p.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	reached := make(chan struct{})
	want := lifecycleEvent(params.Strategy)
	if want != "" {
		var (
			started atomic.Bool
			once    sync.Once
		)
		// События до "init" относятся к предыдущему документу.
		chromedp.ListenTarget(navCtx, func(ev any) {
			e, ok := ev.(*page.EventLifecycleEvent)
			if !ok {
				return
			}
			if e.Name == "init" {
				started.Store(true)
				return
			}
			if started.Load() && e.Name == want {
				once.Do(func() { close(reached) })
			}
		})

		if err := chromedp.Run(navCtx, page.SetLifecycleEventsEnabled(true)); err != nil {
			return "", fmt.Errorf("enable lifecycle events: %w", err)
		}
	}

	navDone := make(chan error, 1)
	go func() {
		navDone <- chromedp.Run(navCtx, chromedp.Navigate(url))
	}()

	if err := waitNavigation(navCtx, params.Strategy, navDone, reached); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return "", fmt.Errorf("%w: %s after %s", ErrNavigationTimeout, params.Strategy, timeout)
		}
		return "", err
	}

	return p.Location(ctx)
}

// waitNavigation ждёт условия стратегии.
func waitNavigation(ctx context.Context, strategy WaitStrategy, navDone <-chan error, reached <-chan struct{}) error {
	if strategy == WaitLoad || strategy == "" {
		return <-navDone
	}

	select {
	case <-reached:
		return nil
	case err := <-navDone:
		if err != nil {
			return err
		}
		// DOMContentLoaded всегда предшествует load.
		if strategy == WaitDOMContentLoaded {
			return nil
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-reached:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *chromePage) Title(ctx context.Context) (string, error) {
	var title string
	err := p.run(ctx, opTimeout, chromedp.Title(&title))
	return title, err
}

func (p *chromePage) Content(ctx context.Context) (string, error) {
	var html string
	err := p.run(ctx, opTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

func (p *chromePage) Location(ctx context.Context) (string, error) {
	var loc string
	err := p.run(ctx, opTimeout, chromedp.Location(&loc))
	return loc, err
}

func (p *chromePage) Evaluate(ctx context.Context, script string, out any) error {
	return p.run(ctx, opTimeout, chromedp.Evaluate(script, out))
}

func (p *chromePage) Release() {
	if p.released.CompareAndSwap(false, true) {
		p.cancel()
	}
}

// run выполняет actions во вкладке с таймаутом и отменой по ctx вызывающего.
func (p *chromePage) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if p.released.Load() {
		return ErrProviderClosed
	}

	runCtx, cancel := context.WithTimeout(p.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}
