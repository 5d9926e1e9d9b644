package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/alanyoungcy/predictd/internal/domain"
)

func TestNotificationServiceCreatePublishes(t *testing.T) {
	ctx := context.Background()
	bus := &recordingBus{}
	svc := NewNotificationService(newMemNotificationStore(), bus, testLogger())

	n, err := svc.Create(ctx, "user-1", "round resolved")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if n.Read {
		t.Error("new notification is read, want unread")
	}
	if n.UserID != "user-1" || n.Message != "round resolved" {
		t.Errorf("notification = %+v", n)
	}

	records := bus.records()
	if len(records) != 1 {
		t.Fatalf("got %d published events, want 1", len(records))
	}
	if want := domain.UserChannel("user-1"); records[0].channel != want {
		t.Errorf("publish channel = %q, want %q", records[0].channel, want)
	}
	var event domain.Event
	if err := json.Unmarshal(records[0].payload, &event); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	if event.Type != domain.EventNotification {
		t.Errorf("event type = %q, want %q", event.Type, domain.EventNotification)
	}
}

func TestNotificationServiceForUserOrdering(t *testing.T) {
	ctx := context.Background()
	svc := NewNotificationService(newMemNotificationStore(), &recordingBus{}, testLogger())

	if _, err := svc.Create(ctx, "user-1", "first"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Create(ctx, "user-1", "second"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Create(ctx, "user-2", "other user"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	list, err := svc.ForUser(ctx, "user-1", domain.ListOpts{Limit: 10})
	if err != nil {
		t.Fatalf("ForUser: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("got %d notifications, want 2", len(list))
	}
	// Newest first.
	if list[0].CreatedAt.Before(list[1].CreatedAt) {
		t.Errorf("order = [%s %s], want newest first", list[0].ID, list[1].ID)
	}

	limited, err := svc.ForUser(ctx, "user-1", domain.ListOpts{Limit: 1})
	if err != nil {
		t.Fatalf("ForUser limited: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("got %d notifications with limit 1, want 1", len(limited))
	}
}

func TestNotificationServiceMarkRead(t *testing.T) {
	ctx := context.Background()
	svc := NewNotificationService(newMemNotificationStore(), &recordingBus{}, testLogger())

	n, err := svc.Create(ctx, "user-1", "hello")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	read, err := svc.MarkRead(ctx, n.ID)
	if err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if !read.Read {
		t.Error("notification not marked read")
	}

	// Marking again is harmless.
	again, err := svc.MarkRead(ctx, n.ID)
	if err != nil {
		t.Fatalf("second MarkRead: %v", err)
	}
	if !again.Read {
		t.Error("notification unread after second mark")
	}

	if _, err := svc.MarkRead(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("MarkRead missing err = %v, want ErrNotFound", err)
	}
}
