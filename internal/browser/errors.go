package browser

import "errors"

// Ошибки браузерного слоя.
var (
	// ErrNavigationFailed — навигация не удалась ни одной стратегией (timeout, DNS, TLS).
	ErrNavigationFailed = errors.New("navigation failed")

	// ErrNavigationTimeout — стратегия загрузки не дождалась своего события.
	ErrNavigationTimeout = errors.New("navigation timeout")

	// ErrChallengeBlocked — anti-bot challenge не исчез за challengeTimeout.
	ErrChallengeBlocked = errors.New("challenge blocked")

	// ErrSessionBusy — страница сессии занята, а контекст истёк.
	ErrSessionBusy = errors.New("browser session busy")

	// ErrProviderClosed — провайдер закрыт или не запущен.
	ErrProviderClosed = errors.New("browser provider closed")
)
