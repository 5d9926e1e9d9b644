package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// RoundStore persists prediction rounds.
//
// At most one round may be ACTIVE at a time; implementations enforce this with
// a uniqueness constraint and return ErrActiveRound from Create when violated.
type RoundStore interface {
	Create(ctx context.Context, round Round) error
	GetByID(ctx context.Context, id string) (Round, error)
	// Resolve performs the guarded ACTIVE -> RESOLVED transition, setting the
	// final price. It returns ErrNotFound if the round does not exist and
	// ErrAlreadyResolved if it is no longer ACTIVE.
	Resolve(ctx context.Context, id string, finalPrice float64, at time.Time) (Round, error)
	// GetActive returns the current ACTIVE round, or ErrNotFound when none.
	GetActive(ctx context.Context) (Round, error)
	// ListResolvedBefore returns resolved rounds older than cutoff that have
	// no remaining scheduled-task rows, so callers can prune them safely.
	ListResolvedBefore(ctx context.Context, cutoff time.Time, limit int) ([]Round, error)
	DeleteByIDs(ctx context.Context, ids []string) error
}

// TaskStore persists scheduled tasks.
type TaskStore interface {
	Create(ctx context.Context, task ScheduledTask) error
	GetByID(ctx context.Context, id string) (ScheduledTask, error)
	// ListDue returns every PENDING task with ExecuteAt <= now, ordered by
	// ExecuteAt ascending so concurrent pollers process deterministically.
	ListDue(ctx context.Context, now time.Time) ([]ScheduledTask, error)
	Complete(ctx context.Context, id string, at time.Time) (ScheduledTask, error)
	ListCompletedBefore(ctx context.Context, cutoff time.Time, limit int) ([]ScheduledTask, error)
	DeleteByIDs(ctx context.Context, ids []string) error
}

// NotificationStore persists user notifications.
type NotificationStore interface {
	Create(ctx context.Context, n Notification) error
	// ListByUser returns the user's notifications ordered by creation time
	// descending (newest first). The ordering is part of the contract.
	ListByUser(ctx context.Context, userID string, opts ListOpts) ([]Notification, error)
	MarkRead(ctx context.Context, id string) (Notification, error)
}

// UserStore reads user records. Users are provisioned outside this service.
type UserStore interface {
	GetByID(ctx context.Context, id string) (User, error)
	GetByToken(ctx context.Context, token string) (User, error)
}

// RoundResolver atomically resolves a round and completes its scheduled task
// in a single transaction, so a crash cannot leave a RESOLVED round with a
// still-PENDING task. A round that is already RESOLVED is tolerated (the task
// is still completed), which makes crash replay safe.
type RoundResolver interface {
	ResolveRoundTask(ctx context.Context, roundID, taskID string, finalPrice float64, at time.Time) (Round, error)
}
