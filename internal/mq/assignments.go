package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shaiso/Harvester/internal/domain"
	"github.com/shaiso/Harvester/internal/repo"
)

// TaskAssignedPayload — task, назначенная воркеру через шину.
type TaskAssignedPayload struct {
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	URL     string         `json:"url"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Task преобразует payload в domain.Task для enqueue.
func (p TaskAssignedPayload) Task() *domain.Task {
	return &domain.Task{
		ID:      p.ID,
		Type:    domain.TaskType(p.Type),
		URL:     p.URL,
		Payload: p.Payload,
	}
}

// AssignmentHandler возвращает Handler для tasks.assigned:
// task ставится в локальную очередь.
//
// Повторная доставка (ErrAlreadyExists) подтверждается и игнорируется.
// Сообщения без id или другого типа уходят в DLQ.
func AssignmentHandler(store repo.TaskStore, logger *slog.Logger) Handler {
	return func(ctx context.Context, d *Delivery) error {
		if d.Message.Type != MessageTypeTaskAssigned {
			return Permanent(fmt.Errorf("%w: %s", ErrUnexpectedMessage, d.Message.Type))
		}

		payload, err := ParsePayload[TaskAssignedPayload](&d.Message)
		if err != nil {
			return Permanent(err)
		}
		if payload.ID == "" {
			return Permanent(errors.New("task.assigned without task id"))
		}

		res := store.Enqueue(ctx, payload.Task())[0]
		switch {
		case res.Err == nil:
			logger.Info("task assigned via bus",
				"task_id", res.ID,
				"type", payload.Type,
				"message_id", d.Message.ID,
			)
			return nil
		case errors.Is(res.Err, repo.ErrAlreadyExists):
			logger.Debug("duplicate task assignment ignored", "task_id", payload.ID)
			return nil
		case errors.Is(res.Err, repo.ErrInvalidState):
			return Permanent(res.Err)
		default:
			return fmt.Errorf("enqueue assigned task: %w", res.Err)
		}
	}
}
