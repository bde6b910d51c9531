package domain

// TaskStatus — статус browser-task в локальной очереди.
//
// Жизненный цикл:
//
//	pending → processing → completed
//	                     ↘ failed
//	processing → pending (stuck-recovery)
//
// Из терминальных статусов (completed, failed) переходов нет.
type TaskStatus string

const (
	// TaskStatusPending — task в очереди, ожидает claim.
	TaskStatusPending TaskStatus = "pending"

	// TaskStatusProcessing — task захвачен воркером и выполняется.
	TaskStatusProcessing TaskStatus = "processing"

	// TaskStatusCompleted — task успешно выполнен.
	TaskStatusCompleted TaskStatus = "completed"

	// TaskStatusFailed — task завершился с ошибкой.
	TaskStatusFailed TaskStatus = "failed"
)

// IsTerminal возвращает true, если статус финальный.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// IsValid проверяет, что статус входит в известный набор.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusPending, TaskStatusProcessing, TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// CanTransition проверяет допустимость перехода from → to.
func CanTransition(from, to TaskStatus) bool {
	switch from {
	case TaskStatusPending:
		return to == TaskStatusProcessing
	case TaskStatusProcessing:
		return to == TaskStatusCompleted || to == TaskStatusFailed || to == TaskStatusPending
	default:
		return false
	}
}

// ParseTaskStatus парсит строку в TaskStatus.
// Возвращает false, если статус неизвестен.
func ParseTaskStatus(s string) (TaskStatus, bool) {
	status := TaskStatus(s)
	return status, status.IsValid()
}
