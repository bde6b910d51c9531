package browser

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"
)

// Значения по умолчанию для Navigator.
const (
	DefaultPollInterval       = 1 * time.Second
	DefaultSettleDelay        = 2 * time.Second
	DefaultRedirectSettle     = 1 * time.Second
	DefaultHumanDelayMin      = 1 * time.Second
	DefaultHumanDelayMax      = 3 * time.Second
	DefaultMaxStrategyTimeout = 30 * time.Second
	DefaultNavigationTimeout  = 30 * time.Second
	DefaultChallengeTimeout   = 30 * time.Second
)

// progressiveStrategies — порядок ослабления условий загрузки.
var progressiveStrategies = []WaitStrategy{WaitNetworkIdle, WaitLoad, WaitDOMContentLoaded}

// NavigatorConfig — задержки и зависимости Navigator.
type NavigatorConfig struct {
	PollInterval       time.Duration
	SettleDelay        time.Duration
	RedirectSettle     time.Duration
	HumanDelayMin      time.Duration
	HumanDelayMax      time.Duration
	MaxStrategyTimeout time.Duration

	Limiter *HostLimiter
	Logger  *slog.Logger

	// Sleep и Now подменяются в тестах.
	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
}

// DefaultNavigatorConfig возвращает конфигурацию с production-задержками.
func DefaultNavigatorConfig() NavigatorConfig {
	return NavigatorConfig{
		PollInterval:       DefaultPollInterval,
		SettleDelay:        DefaultSettleDelay,
		RedirectSettle:     DefaultRedirectSettle,
		HumanDelayMin:      DefaultHumanDelayMin,
		HumanDelayMax:      DefaultHumanDelayMax,
		MaxStrategyTimeout: DefaultMaxStrategyTimeout,
	}
}

// NavigateOptions — параметры навигации для одной task.
type NavigateOptions struct {
	// BaseTimeout — таймаут навигации (без progressive retry) или верхняя
	// граница одной стратегии (с progressive retry).
	BaseTimeout time.Duration

	// ChallengeTimeout — сколько ждать исчезновения challenge.
	// Отсчитывается после навигации и добавляется к её таймауту.
	ChallengeTimeout time.Duration

	ProgressiveRetry bool
	Strategy         WaitStrategy
	HumanDelay       bool
}

// NavigationResult — исход навигации.
type NavigationResult struct {
	Success               bool         `json:"success"`
	Blocked               bool         `json:"blocked"`
	CloudflareEncountered bool         `json:"cloudflare_encountered"`
	FinalURL              string       `json:"final_url"`
	Strategy              WaitStrategy `json:"strategy,omitempty"`
	Attempts              int          `json:"attempts"`
	Err                   error        `json:"-"`
}

// Error возвращает ошибку исхода или nil при успехе.
func (r NavigationResult) Error() error {
	switch {
	case r.Success:
		return nil
	case r.Blocked:
		return ErrChallengeBlocked
	case r.Err != nil:
		return fmt.Errorf("%w: %w", ErrNavigationFailed, r.Err)
	default:
		return ErrNavigationFailed
	}
}

// Navigator — драйвер навигации с обработкой anti-bot challenge.
type Navigator struct {
	cfg    NavigatorConfig
	logger *slog.Logger
}

// NewNavigator создаёт Navigator.
// Нулевые задержки означают «без паузы»; PollInterval <= 0 заменяется значением по умолчанию.
func NewNavigator(cfg NavigatorConfig) *Navigator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxStrategyTimeout <= 0 {
		cfg.MaxStrategyTimeout = DefaultMaxStrategyTimeout
	}
	if cfg.HumanDelayMax < cfg.HumanDelayMin {
		cfg.HumanDelayMax = cfg.HumanDelayMin
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepContext
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Navigator{
		cfg:    cfg,
		logger: logger.With("component", "navigator"),
	}
}

// Navigate открывает target на странице page.
func (n *Navigator) Navigate(ctx context.Context, page Page, target string, opts NavigateOptions) NavigationResult {
	strategies, timeout := n.plan(opts)
	result := NavigationResult{FinalURL: target}

	if opts.HumanDelay {
		if err := n.sleep(ctx, n.humanDelay()); err != nil {
			result.Err = err
			return result
		}
	}

	var lastErr error
	for _, strategy := range strategies {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}

		if err := n.cfg.Limiter.Wait(ctx, target); err != nil {
			lastErr = err
			break
		}

		result.Attempts++
		finalURL, err := page.Navigate(ctx, target, NavigateParams{Strategy: strategy, Timeout: timeout})
		if err != nil {
			lastErr = err
			n.logger.Warn("navigation attempt failed",
				"url", target,
				"strategy", strategy,
				"timeout", timeout,
				"error", err,
			)
			continue
		}

		result.Strategy = strategy
		if finalURL != "" {
			result.FinalURL = finalURL
		}

		if err := n.sleep(ctx, n.cfg.RedirectSettle); err != nil {
			result.Err = err
			return result
		}

		n.resolveChallenge(ctx, page, opts.ChallengeTimeout, &result)
		result.FinalURL = n.location(ctx, page, result.FinalURL)
		return result
	}

	result.Err = lastErr
	result.CloudflareEncountered = n.detect(ctx, page)
	result.FinalURL = n.location(ctx, page, result.FinalURL)

	n.logger.Warn("navigation failed",
		"url", target,
		"attempts", result.Attempts,
		"cloudflare", result.CloudflareEncountered,
		"error", lastErr,
	)
	return result
}

// plan возвращает список стратегий и таймаут одной попытки.
func (n *Navigator) plan(opts NavigateOptions) ([]WaitStrategy, time.Duration) {
	base := opts.BaseTimeout
	if base <= 0 {
		base = DefaultNavigationTimeout
	}

	if opts.ProgressiveRetry {
		return progressiveStrategies, min(n.cfg.MaxStrategyTimeout, base)
	}

	strategy := opts.Strategy
	if strategy == "" {
		strategy = WaitLoad
	}
	return []WaitStrategy{strategy}, base
}

// resolveChallenge ждёт исчезновения challenge и заполняет result.
func (n *Navigator) resolveChallenge(ctx context.Context, page Page, timeout time.Duration, result *NavigationResult) {
	if !n.detect(ctx, page) {
		result.Success = true
		return
	}

	if timeout <= 0 {
		timeout = DefaultChallengeTimeout
	}

	result.CloudflareEncountered = true
	deadline := n.cfg.Now().Add(timeout)

	n.logger.Info("challenge detected, waiting",
		"url", result.FinalURL,
		"challenge_timeout", timeout,
	)

	for {
		if err := n.sleep(ctx, n.cfg.PollInterval); err != nil {
			result.Blocked = true
			result.Err = err
			return
		}

		if !n.detect(ctx, page) {
			if err := n.sleep(ctx, n.cfg.SettleDelay); err != nil {
				result.Err = err
				return
			}
			result.Success = true
			n.logger.Info("challenge cleared", "url", result.FinalURL)
			return
		}

		if !n.cfg.Now().Before(deadline) {
			result.Blocked = true
			result.Err = ErrChallengeBlocked
			n.logger.Warn("challenge not cleared", "url", result.FinalURL, "challenge_timeout", timeout)
			return
		}
	}
}

// detect читает title и content; ошибки чтения считаются отсутствием маркеров.
func (n *Navigator) detect(ctx context.Context, page Page) bool {
	title, err := page.Title(ctx)
	if err != nil {
		title = ""
	}
	content, err := page.Content(ctx)
	if err != nil {
		content = ""
	}
	return DetectChallenge(title, content)
}

// location возвращает текущий URL страницы или fallback.
func (n *Navigator) location(ctx context.Context, page Page, fallback string) string {
	loc, err := page.Location(ctx)
	if err != nil || loc == "" || loc == "about:blank" {
		return fallback
	}
	return loc
}

func (n *Navigator) humanDelay() time.Duration {
	lo, hi := n.cfg.HumanDelayMin, n.cfg.HumanDelayMax
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo+1)
}

func (n *Navigator) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	return n.cfg.Sleep(ctx, d)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
