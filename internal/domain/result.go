package domain

import "time"

// ErrorKind — класс ошибки выполнения task.
//
// Позволяет отличить «сайт недоступен» от «сайт активно блокирует»
// и от ошибок формы task.
type ErrorKind string

const (
	// ErrorKindValidation — некорректная task (тип, URL). Retry бессмысленен.
	ErrorKindValidation ErrorKind = "validation"

	// ErrorKindNavigation — таймауты, DNS, TLS после исчерпания стратегий загрузки.
	ErrorKindNavigation ErrorKind = "navigation"

	// ErrorKindChallengeBlocked — anti-bot challenge не прошёл за отведённое время.
	ErrorKindChallengeBlocked ErrorKind = "challenge_blocked"

	// ErrorKindBrowser — не удалось получить страницу у провайдера.
	ErrorKindBrowser ErrorKind = "browser"

	// ErrorKindExecution — прочие ошибки стратегии (извлечение, скрипты, паника).
	ErrorKindExecution ErrorKind = "execution"
)

// ExecutionResult — результат выполнения одной task Executor'ом.
//
// Создаётся всегда, независимо от успеха; ошибки не выходят за
// границу Executor'а иначе как через Error/ErrorKind.
type ExecutionResult struct {
	TaskID     string         `json:"task_id"`
	Type       TaskType       `json:"type"`
	Success    bool           `json:"success"`
	Result     map[string]any `json:"result,omitempty"`
	Error      string         `json:"error,omitempty"`
	ErrorKind  ErrorKind      `json:"error_type,omitempty"`
	ExecutedAt time.Time      `json:"executed_at"`
	DurationMs int64          `json:"duration_ms"`
}

// Outcome преобразует результат в данные терминального перехода.
func (r *ExecutionResult) Outcome() Outcome {
	return Outcome{
		Result:     r.Result,
		Error:      r.Error,
		DurationMs: r.DurationMs,
	}
}

// DurationMillis округляет длительность вверх до миллисекунд,
// так что любое ненулевое выполнение даёт duration_ms > 0.
func DurationMillis(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64((d + time.Millisecond - 1) / time.Millisecond)
}
