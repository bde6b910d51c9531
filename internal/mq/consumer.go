package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler обрабатывает одно сообщение.
//
// nil — ack. Ошибка, обёрнутая Permanent, — reject без requeue (DLQ);
// любая другая — nack с requeue.
type Handler func(ctx context.Context, d *Delivery) error

// permanentError — ошибка, повтор которой не поможет.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent помечает ошибку обработчика как неповторяемую.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent сообщает, что ошибка помечена Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Delivery — разобранное сообщение очереди.
type Delivery struct {
	Message Message

	// Redelivered — брокер уже отдавал это сообщение (после nack или разрыва).
	Redelivered bool
}

// disposition — судьба сообщения после обработчика.
type disposition int

const (
	dispositionAck disposition = iota
	dispositionRequeue
	dispositionReject
)

func (d disposition) String() string {
	switch d {
	case dispositionAck:
		return "ack"
	case dispositionRequeue:
		return "requeue"
	default:
		return "reject"
	}
}

func dispositionOf(err error) disposition {
	switch {
	case err == nil:
		return dispositionAck
	case IsPermanent(err):
		return dispositionReject
	default:
		return dispositionRequeue
	}
}

// ConsumerConfig — конфигурация Consumer.
type ConsumerConfig struct {
	Queue   string
	Handler Handler

	// Tag — consumer tag в брокере (обычно worker_id); пустой генерирует брокер.
	Tag string

	// Prefetch — сколько неподтверждённых сообщений брокер держит на воркере.
	Prefetch int

	// RetryDelay — пауза перед повторной подпиской после ошибки (default: 1s).
	RetryDelay time.Duration
}

// Consumer читает очередь назначений и передаёт сообщения Handler.
//
// Run блокируется до Stop или отмены ctx и переподписывается
// после каждого разрыва связи.
type Consumer struct {
	conn   *Connection
	logger *slog.Logger
	cfg    ConsumerConfig

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

// NewConsumer создаёт Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}

	return &Consumer{
		conn:   conn,
		logger: logger.With("component", "consumer", "queue", cfg.Queue),
		cfg:    cfg,
	}
}

// Run читает очередь до Stop или отмены ctx. Повторный Run на работающем
// Consumer возвращает ошибку.
func (c *Consumer) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return errors.New("consumer already running")
	}
	c.cancel = cancel
	c.stopped = make(chan struct{})
	stopped := c.stopped
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.cancel = nil
		c.mu.Unlock()
		close(stopped)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.conn.Ready():
		}

		deliveries, err := c.subscribe()
		if err != nil {
			c.logger.Warn("failed to subscribe, retrying", "retry_in", c.cfg.RetryDelay, "error", err)
			if err := sleep(ctx, c.cfg.RetryDelay); err != nil {
				return err
			}
			continue
		}

		c.logger.Info("consuming task assignments", "prefetch", c.cfg.Prefetch)
		c.drain(ctx, deliveries)

		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("delivery stream interrupted, resubscribing")
	}
}

// subscribe выставляет prefetch и подписывается на очередь.
func (c *Consumer) subscribe() (<-chan amqp.Delivery, error) {
	var deliveries <-chan amqp.Delivery
	err := c.conn.WithChannel(context.Background(), func(ch *amqp.Channel) error {
		if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
			return fmt.Errorf("set qos: %w", err)
		}

		var err error
		deliveries, err = ch.Consume(
			c.cfg.Queue,
			c.cfg.Tag,
			false, // ack вручную после enqueue
			false, // exclusive
			false, // no-local
			false, // no-wait
			nil,
		)
		if err != nil {
			return fmt.Errorf("consume %s: %w", c.cfg.Queue, err)
		}
		return nil
	})
	return deliveries, err
}

// drain обрабатывает поток до его закрытия брокером или отмены ctx.
func (c *Consumer) drain(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-deliveries:
			if !ok {
				return
			}
			c.handle(ctx, raw)
		}
	}
}

// handle разбирает сообщение, вызывает Handler и подтверждает доставку.
// Повтор назначения безопасен: enqueue идемпотентен по ID task.
func (c *Consumer) handle(ctx context.Context, raw amqp.Delivery) disposition {
	var msg Message
	err := json.Unmarshal(raw.Body, &msg)
	if err != nil {
		err = Permanent(fmt.Errorf("decode message: %w", err))
	} else {
		err = c.cfg.Handler(ctx, &Delivery{Message: msg, Redelivered: raw.Redelivered})
	}

	disp := dispositionOf(err)
	if err != nil {
		c.logger.Error("assignment not accepted",
			"message_id", msg.ID,
			"type", msg.Type,
			"redelivered", raw.Redelivered,
			"disposition", disp,
			"error", err,
		)
	} else {
		c.logger.Debug("assignment accepted", "message_id", msg.ID, "type", msg.Type)
	}

	var ackErr error
	switch disp {
	case dispositionAck:
		ackErr = raw.Ack(false)
	case dispositionRequeue:
		ackErr = raw.Nack(false, true)
	case dispositionReject:
		ackErr = raw.Reject(false)
	}
	if ackErr != nil {
		c.logger.Warn("failed to settle delivery", "message_id", msg.ID, "disposition", disp, "error", ackErr)
	}
	return disp
}

// Stop прерывает Run и ждёт его выхода.
func (c *Consumer) Stop() {
	c.mu.Lock()
	cancel, stopped := c.cancel, c.stopped
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-stopped
}

// ParsePayload декодирует Message.Payload (map после JSON) в T.
func ParsePayload[T any](msg *Message) (T, error) {
	var result T

	raw, err := json.Marshal(msg.Payload)
	if err != nil {
		return result, fmt.Errorf("marshal payload: %w", err)
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return result, fmt.Errorf("unmarshal payload: %w", err)
	}
	return result, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
