package api

import (
	"encoding/json"
	"net/http"

	"github.com/shaiso/Harvester/internal/domain"
	"github.com/shaiso/Harvester/internal/telemetry"
)

// Healthz — liveness без подписи.
// GET /healthz
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// Ping подтверждает доступность воркера и подлинность канала.
// POST /api/v1/ping
func (h *Handler) Ping(w http.ResponseWriter, _ *http.Request) {
	resp := PingResponse{Status: "ok", WorkerID: h.workerID}
	if h.activity != nil {
		resp.ActiveTasks = h.activity.ActiveCount()
	}
	JSON(w, http.StatusOK, resp)
}

// RequestWork захватывает pending tasks для удалённого воркера.
// POST /api/v1/request-work
func (h *Handler) RequestWork(w http.ResponseWriter, r *http.Request) {
	var req RequestWorkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		ValidationFailed(w, err)
		return
	}

	claimant := domain.Claimant{WorkerID: req.WorkerID, ProcessingBy: req.ProcessingBy}
	tasks, err := h.store.Claim(r.Context(), claimant, req.MaxTasks)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	h.logger.Info("work requested",
		"requester", req.WorkerID,
		"max_tasks", req.MaxTasks,
		"count", len(tasks),
	)

	JSON(w, http.StatusOK, RequestWorkResponse{Tasks: tasksFromDomain(tasks)})
}

// TaskResult принимает результат и делает терминальный переход.
// POST /api/v1/task-result
func (h *Handler) TaskResult(w http.ResponseWriter, r *http.Request) {
	var req TaskResultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		ValidationFailed(w, err)
		return
	}

	logger := telemetry.WithTaskID(h.logger, req.TaskID)

	var applied bool
	var err error
	if req.Success {
		applied, err = h.store.Complete(r.Context(), req.TaskID, req.Outcome())
	} else {
		applied, err = h.store.Fail(r.Context(), req.TaskID, req.Outcome())
	}
	if HandleRepoError(w, h.logger, err, "task not found") {
		return
	}

	if !applied {
		logger.Warn("task result ignored, task not processing for reporter",
			"reporter", req.WorkerID,
			"success", req.Success,
		)
	} else {
		logger.Info("task result accepted",
			"reporter", req.WorkerID,
			"success", req.Success,
			"error_type", req.ErrorType,
		)
	}

	JSON(w, http.StatusOK, TaskResultResponse{Success: true, Applied: applied})
}
