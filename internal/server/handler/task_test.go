package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/predictd/internal/domain"
)

type stubTaskService struct {
	task  domain.ScheduledTask
	tasks []domain.ScheduledTask
	err   error
}

func (s *stubTaskService) Schedule(ctx context.Context, roundID string, executeAt time.Time) (domain.ScheduledTask, error) {
	return s.task, s.err
}

func (s *stubTaskService) Pending(ctx context.Context, now time.Time) ([]domain.ScheduledTask, error) {
	return s.tasks, s.err
}

func (s *stubTaskService) Complete(ctx context.Context, id string) (domain.ScheduledTask, error) {
	return s.task, s.err
}

func taskMux(h *TaskHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/tasks", h.ScheduleTask)
	mux.HandleFunc("GET /api/tasks/pending", h.ListPending)
	mux.HandleFunc("POST /api/tasks/{id}/complete", h.CompleteTask)
	return mux
}

func TestScheduleTask(t *testing.T) {
	task := domain.ScheduledTask{
		ID:      "task-1",
		RoundID: "round-1",
		Type:    domain.TaskTypeResolveRound,
		Status:  domain.TaskStatusPending,
	}
	mux := taskMux(NewTaskHandler(&stubTaskService{task: task}, testLogger()))

	body := `{"round_id":"round-1","execute_at":"2026-08-28T12:00:00Z"}`
	req := httptest.NewRequest(http.MethodPost, "/api/tasks", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body %s", rec.Code, rec.Body.String())
	}
}

func TestScheduleTaskValidation(t *testing.T) {
	mux := taskMux(NewTaskHandler(&stubTaskService{}, testLogger()))

	tests := []struct {
		name string
		body string
	}{
		{name: "missing round id", body: `{"execute_at":"2026-08-28T12:00:00Z"}`},
		{name: "missing execute at", body: `{"round_id":"round-1"}`},
		{name: "malformed", body: `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/tasks", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestListPending(t *testing.T) {
	tasks := []domain.ScheduledTask{
		{ID: "task-1", Status: domain.TaskStatusPending},
		{ID: "task-2", Status: domain.TaskStatusPending},
	}
	mux := taskMux(NewTaskHandler(&stubTaskService{tasks: tasks}, testLogger()))

	req := httptest.NewRequest(http.MethodGet, "/api/tasks/pending", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Tasks []domain.ScheduledTask `json:"tasks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Tasks) != 2 {
		t.Errorf("got %d tasks, want 2", len(resp.Tasks))
	}
}

func TestCompleteTaskNotFound(t *testing.T) {
	mux := taskMux(NewTaskHandler(&stubTaskService{err: domain.ErrNotFound}, testLogger()))

	req := httptest.NewRequest(http.MethodPost, "/api/tasks/missing/complete", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
