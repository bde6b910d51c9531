package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeTasks Exchange = "harvester.tasks"
	ExchangeDLQ   Exchange = "harvester.dlq"
)

// Queues — имена очередей.
const (
	QueueTasksAssigned  Queue = "tasks.assigned"
	QueueTasksCompleted Queue = "tasks.completed"
	QueueDLQTasks       Queue = "dlq.tasks"
)

// Routing keys.
const (
	RoutingKeyAssigned  RoutingKey = "assigned"
	RoutingKeyCompleted RoutingKey = "completed"
	RoutingKeyDLQTasks  RoutingKey = "tasks"
)

type exchangeDecl struct {
	name Exchange
	kind string
}

type queueDecl struct {
	name Queue
	args amqp.Table
}

type bindingDecl struct {
	queue      Queue
	routingKey RoutingKey
	exchange   Exchange
}

// Topology — полный набор объявлений воркера.
type Topology struct {
	exchanges []exchangeDecl
	queues    []queueDecl
	bindings  []bindingDecl
}

// DefaultTopology возвращает топологию Harvester.
//
// tasks.assigned уходит в DLQ при nack без requeue (битые сообщения).
// tasks.completed читают внешние потребители; воркер только публикует.
func DefaultTopology() Topology {
	dlqArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQTasks),
	}

	return Topology{
		exchanges: []exchangeDecl{
			{ExchangeTasks, amqp.ExchangeDirect},
			{ExchangeDLQ, amqp.ExchangeDirect},
		},
		queues: []queueDecl{
			{QueueTasksAssigned, dlqArgs},
			{QueueTasksCompleted, nil},
			{QueueDLQTasks, nil},
		},
		bindings: []bindingDecl{
			{QueueTasksAssigned, RoutingKeyAssigned, ExchangeTasks},
			{QueueTasksCompleted, RoutingKeyCompleted, ExchangeTasks},
			{QueueDLQTasks, RoutingKeyDLQTasks, ExchangeDLQ},
		},
	}
}

// SetupTopology объявляет exchanges, очереди и bindings. Повторный вызов безопасен.
func SetupTopology(ctx context.Context, conn *Connection) error {
	topo := DefaultTopology()
	return conn.WithChannel(ctx, topo.declare)
}

func (t Topology) declare(ch *amqp.Channel) error {
	for _, ex := range t.exchanges {
		err := ch.ExchangeDeclare(
			string(ex.name), // name
			ex.kind,         // type
			true,            // durable
			false,           // auto-deleted
			false,           // internal
			false,           // no-wait
			nil,             // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}

	for _, q := range t.queues {
		_, err := ch.QueueDeclare(
			string(q.name), // name
			true,           // durable
			false,          // delete when unused
			false,          // exclusive
			false,          // no-wait
			q.args,         // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}

	for _, b := range t.bindings {
		err := ch.QueueBind(
			string(b.queue),      // queue name
			string(b.routingKey), // routing key
			string(b.exchange),   // exchange
			false,                // no-wait
			nil,                  // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}

	return nil
}

// Routes возвращает bindings в виде "exchange/routing_key -> queue".
func (t Topology) Routes() []string {
	routes := make([]string, 0, len(t.bindings))
	for _, b := range t.bindings {
		routes = append(routes, fmt.Sprintf("%s/%s -> %s", b.exchange, b.routingKey, b.queue))
	}
	return routes
}
