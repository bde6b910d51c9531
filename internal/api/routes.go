package api

import (
	"net/http"

	"github.com/shaiso/Harvester/internal/signing"
)

// Routes возвращает http.Handler со всеми маршрутами.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return mux
}

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)
	signed := Chain(
		chain,
		signing.MiddlewareWithHook(h.signer, h.logger, func(reason signing.Reason) {
			h.metrics.SignatureRejected(string(reason))
		}),
	)

	// Служебные (без подписи)
	mux.HandleFunc("GET /healthz", h.Healthz)
	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics.Handler())
	}

	// Protocol
	mux.Handle("POST /api/v1/ping", signed(http.HandlerFunc(h.Ping)))
	mux.Handle("POST /api/v1/request-work", signed(http.HandlerFunc(h.RequestWork)))
	mux.Handle("POST /api/v1/task-result", signed(http.HandlerFunc(h.TaskResult)))

	// Tasks
	mux.Handle("POST /api/v1/tasks", signed(http.HandlerFunc(h.EnqueueTasks)))
	mux.Handle("GET /api/v1/tasks", signed(http.HandlerFunc(h.ListTasks)))
	mux.Handle("GET /api/v1/tasks/{id}", signed(http.HandlerFunc(h.GetTask)))
	mux.Handle("GET /api/v1/stats", signed(http.HandlerFunc(h.Stats)))
}
