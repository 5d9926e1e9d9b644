package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alanyoungcy/predictd/internal/domain"
	"github.com/alanyoungcy/predictd/internal/server/handler"
)

type stubRounds struct{}

func (stubRounds) Create(ctx context.Context, startPrice float64, mode int) (domain.Round, error) {
	return domain.Round{ID: "round-1", Status: domain.RoundStatusActive}, nil
}

func (stubRounds) Get(ctx context.Context, id string) (domain.Round, error) {
	return domain.Round{ID: id, Status: domain.RoundStatusActive}, nil
}

func (stubRounds) Resolve(ctx context.Context, id string, finalPrice float64) (domain.Round, error) {
	return domain.Round{ID: id, Status: domain.RoundStatusResolved}, nil
}

func (stubRounds) Active(ctx context.Context) (domain.Round, error) {
	return domain.Round{ID: "round-1", Status: domain.RoundStatusActive}, nil
}

type stubTasks struct{}

func (stubTasks) Schedule(ctx context.Context, roundID string, executeAt time.Time) (domain.ScheduledTask, error) {
	return domain.ScheduledTask{ID: "task-1"}, nil
}

func (stubTasks) Pending(ctx context.Context, now time.Time) ([]domain.ScheduledTask, error) {
	return nil, nil
}

func (stubTasks) Complete(ctx context.Context, id string) (domain.ScheduledTask, error) {
	return domain.ScheduledTask{ID: id}, nil
}

type stubNotifications struct{}

func (stubNotifications) Create(ctx context.Context, userID, message string) (domain.Notification, error) {
	return domain.Notification{ID: "n-1", UserID: userID, Message: message}, nil
}

func (stubNotifications) ForUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Notification, error) {
	return nil, nil
}

func (stubNotifications) MarkRead(ctx context.Context, id string) (domain.Notification, error) {
	return domain.Notification{ID: id, Read: true}, nil
}

type stubUsers struct{}

func (stubUsers) GetByToken(ctx context.Context, token string) (domain.User, error) {
	if token != "good-token" {
		return domain.User{}, domain.ErrNotFound
	}
	return domain.User{ID: "user-1", Token: token}, nil
}

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer(
		Config{Port: 0},
		Handlers{
			Health:        handler.NewHealthHandler(logger),
			Rounds:        handler.NewRoundHandler(stubRounds{}, logger),
			Tasks:         handler.NewTaskHandler(stubTasks{}, logger),
			Notifications: handler.NewNotificationHandler(stubNotifications{}, logger),
		},
		nil,
		stubUsers{},
		logger,
	)
	return srv.httpServer.Handler
}

func TestHealthIsPublic(t *testing.T) {
	h := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 without auth", rec.Code)
	}
}

func TestAPIRequiresAuth(t *testing.T) {
	h := newTestServer(t)

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/rounds/active"},
		{http.MethodGet, "/api/rounds/round-1"},
		{http.MethodGet, "/api/tasks/pending"},
		{http.MethodGet, "/api/notifications"},
	}

	for _, route := range routes {
		req := httptest.NewRequest(route.method, route.path, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s status = %d, want 401 without token", route.method, route.path, rec.Code)
		}
	}
}

func TestAPIWithToken(t *testing.T) {
	h := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/rounds/active", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 with valid token, body %s", rec.Code, rec.Body.String())
	}
}
