package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/predictd/internal/domain"
)

// TaskStore implements domain.TaskStore using PostgreSQL.
type TaskStore struct {
	pool *pgxpool.Pool
}

// NewTaskStore creates a new TaskStore backed by the given connection pool.
func NewTaskStore(pool *pgxpool.Pool) *TaskStore {
	return &TaskStore{pool: pool}
}

const taskSelectCols = `id, round_id, task_type, execute_at, status, created_at, completed_at`

func scanTask(scanner interface{ Scan(dest ...any) error }) (domain.ScheduledTask, error) {
	var t domain.ScheduledTask
	var taskType, status string

	err := scanner.Scan(
		&t.ID, &t.RoundID, &taskType, &t.ExecuteAt,
		&status, &t.CreatedAt, &t.CompletedAt,
	)
	if err != nil {
		return domain.ScheduledTask{}, err
	}

	t.Type = domain.TaskType(taskType)
	t.Status = domain.TaskStatus(status)
	return t, nil
}

// Create inserts a new scheduled task.
func (s *TaskStore) Create(ctx context.Context, t domain.ScheduledTask) error {
	const query = `
		INSERT INTO scheduled_tasks (id, round_id, task_type, execute_at, status, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.pool.Exec(ctx, query,
		t.ID, t.RoundID, string(t.Type), t.ExecuteAt,
		string(t.Status), t.CreatedAt, t.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create task %s: %w", t.ID, err)
	}
	return nil
}

// GetByID retrieves a single task by ID.
func (s *TaskStore) GetByID(ctx context.Context, id string) (domain.ScheduledTask, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+taskSelectCols+` FROM scheduled_tasks WHERE id = $1`, id)

	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ScheduledTask{}, domain.ErrNotFound
		}
		return domain.ScheduledTask{}, fmt.Errorf("postgres: get task %s: %w", id, err)
	}
	return t, nil
}

// ListDue returns all PENDING tasks whose execution time has passed, ordered
// by execute_at ascending.
func (s *TaskStore) ListDue(ctx context.Context, now time.Time) ([]domain.ScheduledTask, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+taskSelectCols+` FROM scheduled_tasks
		 WHERE status = 'PENDING' AND execute_at <= $1
		 ORDER BY execute_at ASC`, now)
	if err != nil {
		return nil, fmt.Errorf("postgres: list due tasks: %w", err)
	}
	defer rows.Close()

	var tasks []domain.ScheduledTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan due task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// Complete marks the task COMPLETED. Completing an already-completed task is
// a no-op on final state; the stored completed_at is not overwritten.
func (s *TaskStore) Complete(ctx context.Context, id string, at time.Time) (domain.ScheduledTask, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE scheduled_tasks
		SET status = 'COMPLETED', completed_at = COALESCE(completed_at, $2)
		WHERE id = $1
		RETURNING `+taskSelectCols,
		id, at,
	)

	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ScheduledTask{}, domain.ErrNotFound
		}
		return domain.ScheduledTask{}, fmt.Errorf("postgres: complete task %s: %w", id, err)
	}
	return t, nil
}

// ListCompletedBefore returns completed tasks older than cutoff, oldest first,
// for retention archival.
func (s *TaskStore) ListCompletedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.ScheduledTask, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+taskSelectCols+` FROM scheduled_tasks
		 WHERE status = 'COMPLETED' AND completed_at < $1
		 ORDER BY completed_at ASC
		 LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list completed tasks: %w", err)
	}
	defer rows.Close()

	var tasks []domain.ScheduledTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan completed task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// DeleteByIDs removes archived tasks.
func (s *TaskStore) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM scheduled_tasks WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("postgres: delete tasks: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.TaskStore = (*TaskStore)(nil)
