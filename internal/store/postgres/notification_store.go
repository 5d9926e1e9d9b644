package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/predictd/internal/domain"
)

// NotificationStore implements domain.NotificationStore using PostgreSQL.
type NotificationStore struct {
	pool *pgxpool.Pool
}

// NewNotificationStore creates a new NotificationStore backed by the given
// connection pool.
func NewNotificationStore(pool *pgxpool.Pool) *NotificationStore {
	return &NotificationStore{pool: pool}
}

const notificationSelectCols = `id, user_id, message, read, created_at`

func scanNotification(scanner interface{ Scan(dest ...any) error }) (domain.Notification, error) {
	var n domain.Notification
	err := scanner.Scan(&n.ID, &n.UserID, &n.Message, &n.Read, &n.CreatedAt)
	if err != nil {
		return domain.Notification{}, err
	}
	return n, nil
}

// Create inserts a new unread notification.
func (s *NotificationStore) Create(ctx context.Context, n domain.Notification) error {
	const query = `
		INSERT INTO notifications (id, user_id, message, read, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.pool.Exec(ctx, query, n.ID, n.UserID, n.Message, n.Read, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: create notification %s: %w", n.ID, err)
	}
	return nil
}

// ListByUser returns the user's notifications newest first.
func (s *NotificationStore) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Notification, error) {
	query := `SELECT ` + notificationSelectCols + ` FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC`
	args := []any{userID}
	argIdx := 2

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list notifications for %s: %w", userID, err)
	}
	defer rows.Close()

	var notifications []domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// MarkRead sets read = true. Marking an already-read notification is a no-op
// on final state.
func (s *NotificationStore) MarkRead(ctx context.Context, id string) (domain.Notification, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE notifications SET read = TRUE WHERE id = $1
		RETURNING `+notificationSelectCols, id)

	n, err := scanNotification(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Notification{}, domain.ErrNotFound
		}
		return domain.Notification{}, fmt.Errorf("postgres: mark notification read %s: %w", id, err)
	}
	return n, nil
}

// Compile-time interface check.
var _ domain.NotificationStore = (*NotificationStore)(nil)
