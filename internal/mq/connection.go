package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Значения по умолчанию для ConnectionConfig.
const (
	defaultHeartbeat = 10 * time.Second
	defaultRetryMin  = time.Second
	defaultRetryMax  = 30 * time.Second
)

// ConnectionConfig — параметры подключения воркера к шине.
type ConnectionConfig struct {
	URL string

	// Name попадает в connection_name и виден в management UI
	// (обычно worker_id).
	Name string

	Heartbeat time.Duration
	RetryMin  time.Duration
	RetryMax  time.Duration
}

// Connection — AMQP соединение и канал воркера.
//
// Шина опциональна: пока связи нет, WithChannel возвращает ErrNoChannel,
// а Processor продолжает работу по polling. Ready закрывается, когда
// канал снова доступен; после разрыва Ready возвращает новый канал ожидания.
type Connection struct {
	cfg    ConnectionConfig
	logger *slog.Logger

	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel
	ready   chan struct{}
	live    bool

	closed   bool
	closedCh chan struct{}
}

// Dial подключается к шине и запускает восстановление связи в фоне.
// Первая попытка синхронная: её ошибка возвращается вызывающему.
func Dial(cfg ConnectionConfig, logger *slog.Logger) (*Connection, error) {
	c := newConnection(cfg, logger)

	conn, ch, err := c.open()
	if err != nil {
		return nil, err
	}
	c.up(conn, ch)

	go c.supervise(conn, ch)
	return c, nil
}

func newConnection(cfg ConnectionConfig, logger *slog.Logger) *Connection {
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = defaultHeartbeat
	}
	if cfg.RetryMin <= 0 {
		cfg.RetryMin = defaultRetryMin
	}
	if cfg.RetryMax < cfg.RetryMin {
		cfg.RetryMax = max(defaultRetryMax, cfg.RetryMin)
	}

	return &Connection{
		cfg:      cfg,
		logger:   logger.With("component", "amqp", "host", redactURL(cfg.URL)),
		ready:    make(chan struct{}),
		closedCh: make(chan struct{}),
	}
}

// open устанавливает соединение и открывает канал.
func (c *Connection) open() (*amqp.Connection, *amqp.Channel, error) {
	props := amqp.NewConnectionProperties()
	if c.cfg.Name != "" {
		props.SetClientConnectionName(c.cfg.Name)
	}

	conn, err := amqp.DialConfig(c.cfg.URL, amqp.Config{
		Heartbeat:  c.cfg.Heartbeat,
		Properties: props,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	return conn, ch, nil
}

// up публикует живую связь и будит ожидающих Ready.
// После Close возвращает false и связь не принимает.
func (c *Connection) up(conn *amqp.Connection, ch *amqp.Channel) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	c.conn, c.channel = conn, ch
	if !c.live {
		c.live = true
		close(c.ready)
	}
	return true
}

// down снимает канал; следующий Ready будет ждать нового up.
func (c *Connection) down() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.channel = nil
	if c.live {
		c.live = false
		c.ready = make(chan struct{})
	}
}

// supervise следит за связью: при закрытии канала открывает новый
// на том же соединении, при потере соединения переподключается.
func (c *Connection) supervise(conn *amqp.Connection, ch *amqp.Channel) {
	for {
		connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
		chClosed := ch.NotifyClose(make(chan *amqp.Error, 1))

		select {
		case <-c.closedCh:
			return

		case err := <-chClosed:
			c.down()
			if err != nil {
				c.logger.Warn("channel closed by broker", "error", err)
			}
			if !conn.IsClosed() {
				if next, err := conn.Channel(); err == nil {
					ch = next
					if !c.up(conn, ch) {
						return
					}
					c.logger.Info("channel reopened")
					continue
				}
			}

		case err := <-connClosed:
			c.down()
			if err != nil {
				c.logger.Warn("connection lost", "error", err)
			}
		}

		if !conn.IsClosed() {
			conn.Close()
		}
		var ok bool
		if conn, ch, ok = c.redial(); !ok {
			return
		}
	}
}

// redial переподключается с экспоненциальной задержкой до успеха или Close.
func (c *Connection) redial() (*amqp.Connection, *amqp.Channel, bool) {
	delay := c.cfg.RetryMin
	for attempt := 1; ; attempt++ {
		timer := time.NewTimer(delay)
		select {
		case <-c.closedCh:
			timer.Stop()
			return nil, nil, false
		case <-timer.C:
		}

		conn, ch, err := c.open()
		if err != nil {
			c.logger.Warn("reconnect failed", "attempt", attempt, "retry_in", delay, "error", err)
			delay = nextDelay(delay, c.cfg.RetryMax)
			continue
		}

		if !c.up(conn, ch) {
			ch.Close()
			conn.Close()
			return nil, nil, false
		}
		c.logger.Info("reconnected to RabbitMQ", "attempts", attempt)
		return conn, ch, true
	}
}

func nextDelay(d, limit time.Duration) time.Duration {
	return min(d*2, limit)
}

// Ready закрывается, когда канал доступен. Снимок: после разрыва нужно
// вызвать Ready заново.
func (c *Connection) Ready() <-chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// Close закрывает канал и соединение. Повторный вызов — no-op.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.closedCh)

	var errs []error
	if c.channel != nil {
		if err := c.channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, fmt.Errorf("close channel: %w", err))
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
	}
	c.channel, c.conn = nil, nil

	c.logger.Info("bus connection closed")
	return errors.Join(errs...)
}

// WithChannel выполняет fn на текущем канале; без связи — ErrNoChannel.
func (c *Connection) WithChannel(ctx context.Context, fn func(ch *amqp.Channel) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.RLock()
	ch := c.channel
	c.mu.RUnlock()

	if ch == nil || ch.IsClosed() {
		return ErrNoChannel
	}
	return fn(ch)
}

// redactURL оставляет от URL только host: учётные данные не попадают в логи.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "invalid-url"
	}
	return u.Host
}
