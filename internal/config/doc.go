// Package config загружает конфигурацию воркера.
//
// Порядок применения: значения по умолчанию → YAML-файл (опционально,
// путь из --config или HARVESTER_CONFIG) → переменные окружения →
// проверка через go-playground/validator.
package config
