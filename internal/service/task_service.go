package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/predictd/internal/domain"
)

// TaskService owns the scheduled-task lifecycle. It is pure bookkeeping: it
// stores rows and answers "what is due"; the resolver executes them.
type TaskService struct {
	tasks  domain.TaskStore
	logger *slog.Logger
}

// NewTaskService creates a TaskService backed by the given store.
func NewTaskService(tasks domain.TaskStore, logger *slog.Logger) *TaskService {
	return &TaskService{tasks: tasks, logger: logger}
}

// Schedule inserts a PENDING RESOLVE_ROUND task for the round at executeAt.
func (s *TaskService) Schedule(ctx context.Context, roundID string, executeAt time.Time) (domain.ScheduledTask, error) {
	task := domain.ScheduledTask{
		ID:        uuid.New().String(),
		RoundID:   roundID,
		Type:      domain.TaskTypeResolveRound,
		ExecuteAt: executeAt,
		Status:    domain.TaskStatusPending,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.tasks.Create(ctx, task); err != nil {
		return domain.ScheduledTask{}, fmt.Errorf("task_service: schedule: %w", err)
	}

	s.logger.InfoContext(ctx, "task_service: task scheduled",
		slog.String("task_id", task.ID),
		slog.String("round_id", roundID),
		slog.Time("execute_at", executeAt),
	)

	return task, nil
}

// Pending returns every PENDING task due at or before now, ordered by
// execute_at ascending.
func (s *TaskService) Pending(ctx context.Context, now time.Time) ([]domain.ScheduledTask, error) {
	tasks, err := s.tasks.ListDue(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("task_service: pending: %w", err)
	}
	return tasks, nil
}

// Complete marks the task COMPLETED. Completing twice is a no-op on final
// state.
func (s *TaskService) Complete(ctx context.Context, id string) (domain.ScheduledTask, error) {
	task, err := s.tasks.Complete(ctx, id, time.Now().UTC())
	if err != nil {
		return domain.ScheduledTask{}, fmt.Errorf("task_service: complete %q: %w", id, err)
	}
	return task, nil
}
