// Package mq — опциональная шина RabbitMQ воркера.
//
// Структура:
//   - connection.go  — соединение, восстановление канала и reconnect
//   - topology.go    — exchanges, queues, bindings
//   - publisher.go   — публикация task.completed
//   - consumer.go    — чтение назначений с ack, requeue и reject в DLQ
//   - assignments.go — обработчик tasks.assigned: enqueue в локальную очередь
//
// Типы сообщений:
//   - task.assigned  — controller назначил воркеру task
//   - task.completed — task перешла в completed или failed
//
// Exchanges:
//   - harvester.tasks — назначения и события завершения
//   - harvester.dlq   — сообщения, которые нельзя обработать
//
// Без RABBITMQ_URL шина не поднимается: воркер получает tasks
// через handshake, API и polling локальной очереди.
package mq
