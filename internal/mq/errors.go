package mq

import "errors"

// Ошибки шины.
var (
	// ErrNoChannel — нет открытого AMQP канала (соединение разорвано).
	ErrNoChannel = errors.New("no amqp channel available")

	// ErrUnexpectedMessage — тип сообщения не подходит обработчику.
	ErrUnexpectedMessage = errors.New("unexpected message type")
)
