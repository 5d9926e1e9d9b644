package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/predictd/internal/domain"
)

// TaskService defines the methods that the task handler requires from the
// service layer.
type TaskService interface {
	Schedule(ctx context.Context, roundID string, executeAt time.Time) (domain.ScheduledTask, error)
	Pending(ctx context.Context, now time.Time) ([]domain.ScheduledTask, error)
	Complete(ctx context.Context, id string) (domain.ScheduledTask, error)
}

// TaskHandler serves scheduled-task HTTP endpoints.
type TaskHandler struct {
	tasks  TaskService
	logger *slog.Logger
}

// NewTaskHandler creates a TaskHandler with the given service and logger.
func NewTaskHandler(tasks TaskService, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{
		tasks:  tasks,
		logger: logger,
	}
}

type scheduleTaskRequest struct {
	RoundID   string    `json:"round_id"`
	ExecuteAt time.Time `json:"execute_at"`
}

// ScheduleTask inserts a resolution task for a round.
// POST /api/tasks
func (h *TaskHandler) ScheduleTask(w http.ResponseWriter, r *http.Request) {
	var req scheduleTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.RoundID == "" || req.ExecuteAt.IsZero() {
		writeError(w, http.StatusBadRequest, "round_id and execute_at are required")
		return
	}

	task, err := h.tasks.Schedule(r.Context(), req.RoundID, req.ExecuteAt)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: schedule task failed",
			slog.String("round_id", req.RoundID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to schedule task")
		return
	}

	writeJSON(w, http.StatusCreated, task)
}

type pendingTasksResponse struct {
	Tasks []domain.ScheduledTask `json:"tasks"`
}

// ListPending returns every task that is due now.
// GET /api/tasks/pending
func (h *TaskHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.tasks.Pending(r.Context(), time.Now().UTC())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list pending tasks failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list pending tasks")
		return
	}

	writeJSON(w, http.StatusOK, pendingTasksResponse{Tasks: tasks})
}

// CompleteTask marks a task COMPLETED.
// POST /api/tasks/{id}/complete
func (h *TaskHandler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing task id")
		return
	}

	task, err := h.tasks.Complete(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: complete task failed",
			slog.String("task_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to complete task")
		return
	}

	writeJSON(w, http.StatusOK, task)
}
