package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/predictd/internal/domain"
)

// NotificationService owns per-user notifications and pushes them into the
// user's realtime room as they are created.
type NotificationService struct {
	notifications domain.NotificationStore
	bus           domain.SignalBus
	logger        *slog.Logger
}

// NewNotificationService creates a NotificationService with all required
// dependencies.
func NewNotificationService(
	notifications domain.NotificationStore,
	bus domain.SignalBus,
	logger *slog.Logger,
) *NotificationService {
	return &NotificationService{
		notifications: notifications,
		bus:           bus,
		logger:        logger,
	}
}

// Create inserts an unread notification and publishes it to the user's room.
func (s *NotificationService) Create(ctx context.Context, userID, message string) (domain.Notification, error) {
	n := domain.Notification{
		ID:        uuid.New().String(),
		UserID:    userID,
		Message:   message,
		Read:      false,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.notifications.Create(ctx, n); err != nil {
		return domain.Notification{}, fmt.Errorf("notification_service: create: %w", err)
	}

	// Best-effort realtime push; the notification is durable either way.
	if event, err := domain.NewNotificationEvent(n); err == nil {
		if pubErr := s.bus.Publish(ctx, domain.UserChannel(userID), event); pubErr != nil {
			s.logger.WarnContext(ctx, "notification_service: publish failed",
				slog.String("user_id", userID),
				slog.String("error", pubErr.Error()),
			)
		}
	}

	return n, nil
}

// ForUser returns the user's notifications newest first.
func (s *NotificationService) ForUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Notification, error) {
	notifications, err := s.notifications.ListByUser(ctx, userID, opts)
	if err != nil {
		return nil, fmt.Errorf("notification_service: list for %q: %w", userID, err)
	}
	return notifications, nil
}

// MarkRead sets read = true on the notification.
func (s *NotificationService) MarkRead(ctx context.Context, id string) (domain.Notification, error) {
	n, err := s.notifications.MarkRead(ctx, id)
	if err != nil {
		return domain.Notification{}, fmt.Errorf("notification_service: mark read %q: %w", id, err)
	}
	return n, nil
}
