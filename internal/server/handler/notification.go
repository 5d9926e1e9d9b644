package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/predictd/internal/domain"
	"github.com/alanyoungcy/predictd/internal/server/middleware"
)

// NotificationService defines the methods that the notification handler
// requires from the service layer.
type NotificationService interface {
	Create(ctx context.Context, userID, message string) (domain.Notification, error)
	ForUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Notification, error)
	MarkRead(ctx context.Context, id string) (domain.Notification, error)
}

// NotificationHandler serves notification HTTP endpoints.
type NotificationHandler struct {
	notifications NotificationService
	logger        *slog.Logger
}

// NewNotificationHandler creates a NotificationHandler with the given service
// and logger.
func NewNotificationHandler(notifications NotificationService, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{
		notifications: notifications,
		logger:        logger,
	}
}

type createNotificationRequest struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

// CreateNotification inserts an unread notification for a user. The target
// user defaults to the authenticated caller when user_id is omitted.
// POST /api/notifications
func (h *NotificationHandler) CreateNotification(w http.ResponseWriter, r *http.Request) {
	var req createNotificationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	userID := req.UserID
	if userID == "" {
		user, ok := middleware.UserFrom(r.Context())
		if !ok {
			writeError(w, http.StatusBadRequest, "user_id is required")
			return
		}
		userID = user.ID
	}

	n, err := h.notifications.Create(r.Context(), userID, req.Message)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: create notification failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create notification")
		return
	}

	writeJSON(w, http.StatusCreated, n)
}

type listNotificationsResponse struct {
	Notifications []domain.Notification `json:"notifications"`
	Limit         int                   `json:"limit"`
	Offset        int                   `json:"offset"`
}

// ListNotifications returns the authenticated user's notifications, newest
// first.
// GET /api/notifications?limit=50&offset=0
func (h *NotificationHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	opts := parseListOpts(r)
	notifications, err := h.notifications.ForUser(r.Context(), user.ID, opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list notifications failed",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list notifications")
		return
	}

	writeJSON(w, http.StatusOK, listNotificationsResponse{
		Notifications: notifications,
		Limit:         opts.Limit,
		Offset:        opts.Offset,
	})
}

// MarkRead sets read = true on a notification.
// POST /api/notifications/{id}/read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing notification id")
		return
	}

	n, err := h.notifications.MarkRead(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "notification not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: mark notification read failed",
			slog.String("notification_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to mark notification read")
		return
	}

	writeJSON(w, http.StatusOK, n)
}
