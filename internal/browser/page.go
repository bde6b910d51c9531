package browser

import (
	"context"
	"time"
)

// WaitStrategy — условие «страница готова» для навигации.
type WaitStrategy string

const (
	// WaitNetworkIdle — нет сетевой активности (самое строгое условие).
	WaitNetworkIdle WaitStrategy = "networkidle"

	// WaitLoad — событие load.
	WaitLoad WaitStrategy = "load"

	// WaitDOMContentLoaded — событие DOMContentLoaded (самое слабое условие).
	WaitDOMContentLoaded WaitStrategy = "domcontentloaded"
)

// ParseWaitStrategy разбирает стратегию; неизвестные значения дают WaitLoad.
func ParseWaitStrategy(s string) WaitStrategy {
	switch WaitStrategy(s) {
	case WaitNetworkIdle, WaitLoad, WaitDOMContentLoaded:
		return WaitStrategy(s)
	default:
		return WaitLoad
	}
}

// NavigateParams — параметры одной попытки навигации.
type NavigateParams struct {
	Strategy WaitStrategy
	Timeout  time.Duration
}

// Page — дескриптор страницы браузера.
//
// Реализация не обязана поддерживать конкурентный доступ:
// одна страница принадлежит одной task.
type Page interface {
	// Navigate открывает url и ждёт условия стратегии.
	// Возвращает URL после редиректов.
	Navigate(ctx context.Context, url string, params NavigateParams) (string, error)

	// Title возвращает document.title.
	Title(ctx context.Context) (string, error)

	// Content возвращает полную разметку документа.
	Content(ctx context.Context) (string, error)

	// Location возвращает текущий URL страницы.
	Location(ctx context.Context) (string, error)

	// Evaluate выполняет выражение на странице и декодирует результат в out.
	Evaluate(ctx context.Context, script string, out any) error

	// Release освобождает страницу. Повторный вызов безопасен.
	Release()
}

// Provider выдаёт страницы по виду (kind).
type Provider interface {
	Acquire(ctx context.Context, kind string) (Page, error)
}
