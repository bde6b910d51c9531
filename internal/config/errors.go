package config

import "errors"

var (
	// ErrInvalid — конфигурация не прошла проверку.
	ErrInvalid = errors.New("invalid configuration")

	// ErrBadEnv — переменная окружения не разобрана.
	ErrBadEnv = errors.New("invalid environment variable")
)
