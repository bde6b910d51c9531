package worker

import "errors"

// Ошибки воркера.
var (
	// ErrValidation — task некорректна (тип, URL). Не повторяется.
	ErrValidation = errors.New("validation failed")

	// ErrUnknownTaskType — нет стратегии для типа task.
	ErrUnknownTaskType = errors.New("unknown task type")

	// ErrInvalidURL — URL не абсолютный http/https.
	ErrInvalidURL = errors.New("invalid url")

	// ErrExecutionPanic — стратегия запаниковала.
	ErrExecutionPanic = errors.New("execution panic")

	// ErrReportUnreachable — страница отчёта недоступна ни для одного form factor.
	ErrReportUnreachable = errors.New("report page unreachable")
)
