package domain

import "time"

// TaskStatus is the lifecycle state of a scheduled task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "PENDING"
	TaskStatusCompleted TaskStatus = "COMPLETED"
)

// TaskType identifies what a scheduled task should do when it becomes due.
type TaskType string

// TaskTypeResolveRound requests that the referenced round be resolved at
// ExecuteAt. It is currently the only task type.
const TaskTypeResolveRound TaskType = "RESOLVE_ROUND"

// ScheduledTask is a deferred-execution record. The task store is pure
// bookkeeping: a resolver polls for due tasks, executes them, and marks them
// COMPLETED. A task transitions PENDING to COMPLETED exactly once.
type ScheduledTask struct {
	ID          string     `json:"id"`
	RoundID     string     `json:"round_id"`
	Type        TaskType   `json:"type"`
	ExecuteAt   time.Time  `json:"execute_at"`
	Status      TaskStatus `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Due reports whether the task is pending and its execution time has passed.
func (t ScheduledTask) Due(now time.Time) bool {
	return t.Status == TaskStatusPending && !t.ExecuteAt.After(now)
}
