// Package telemetry обеспечивает наблюдаемость воркера.
//
// Включает:
//   - logging.go — structured logging через slog
//   - metrics.go — Prometheus метрики
//   - tracing.go — OpenTelemetry трейсинг (no-op, если выключен)
//
// Метрики экспортируются на /metrics endpoint воркера.
package telemetry
