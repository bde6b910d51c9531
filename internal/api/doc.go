// Package api содержит входящий HTTP API воркера.
//
// Структура:
//   - handler.go      — Handler с DI (store, signer, metrics, logger)
//   - routes.go       — регистрация маршрутов и цепочка middleware
//   - middleware.go   — middleware (logging, recovery)
//   - response.go     — унифицированные JSON-ответы и обработка ошибок
//   - dto.go          — запросы/ответы и их валидация
//   - protocol.go     — ping, request-work, task-result
//   - task_handler.go — /tasks и /stats
//
// Все маршруты /api/v1 закрыты signing.Middleware: запрос без валидной
// подписи получает 401, каждый ответ подписан. /healthz и /metrics открыты.
package api
