package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/shaiso/Harvester/internal/domain"
	"github.com/shaiso/Harvester/internal/repo"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// EnqueueTasks ставит пакет tasks в очередь; каждая task независима.
// POST /api/v1/tasks
func (h *Handler) EnqueueTasks(w http.ResponseWriter, r *http.Request) {
	var req EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		ValidationFailed(w, err)
		return
	}

	tasks := make([]*domain.Task, len(req.Tasks))
	for i, in := range req.Tasks {
		tasks[i] = &domain.Task{
			ID:      in.ID,
			Type:    domain.TaskType(in.Type),
			URL:     in.URL,
			Payload: in.Payload,
		}
	}

	results := h.store.Enqueue(r.Context(), tasks...)

	items := make([]EnqueueItem, len(results))
	var accepted int
	for i, res := range results {
		items[i] = EnqueueItem{ID: res.ID, Success: res.Err == nil}
		if res.Err != nil {
			items[i].Error = res.Err.Error()
			continue
		}
		accepted++
	}

	h.logger.Info("tasks enqueued", "count", accepted, "rejected", len(items)-accepted)

	if accepted == 0 {
		JSON(w, http.StatusConflict, ListResponse{Data: items, Total: len(items)})
		return
	}
	JSON(w, http.StatusCreated, ListResponse{Data: items, Total: len(items)})
}

// GetTask возвращает task по ID.
// GET /api/v1/tasks/{id}
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.store.GetByID(r.Context(), r.PathValue("id"))
	if HandleRepoError(w, h.logger, err, "task not found") {
		return
	}

	Success(w, TaskFromDomain(*task))
}

// ListTasks возвращает tasks, новые первыми.
// GET /api/v1/tasks?status=...&limit=...
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	filter := repo.ListFilter{Limit: defaultListLimit}

	if s := r.URL.Query().Get("status"); s != "" {
		status, ok := domain.ParseTaskStatus(s)
		if !ok {
			BadRequest(w, "unknown status "+s)
			return
		}
		filter.Status = status
	}

	if s := r.URL.Query().Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit <= 0 {
			BadRequest(w, "invalid limit")
			return
		}
		filter.Limit = min(limit, maxListLimit)
	}

	tasks, err := h.store.List(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	List(w, tasksFromDomain(tasks), len(tasks))
}

// Stats возвращает количество tasks по статусам.
// GET /api/v1/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Statistics(r.Context())
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	Success(w, stats)
}
