package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/predictd/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// patternBus is an in-memory SignalBus that routes published payloads to
// pattern subscriptions by prefix ("round:*" matches "round:abc").
type patternBus struct {
	mu   sync.Mutex
	subs map[string][]chan []byte
}

func newPatternBus() *patternBus {
	return &patternBus{subs: make(map[string][]chan []byte)}
}

func (b *patternBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for pattern, chans := range b.subs {
		prefix := strings.TrimSuffix(pattern, "*")
		if strings.HasPrefix(channel, prefix) {
			for _, ch := range chans {
				ch <- payload
			}
		}
	}
	return nil
}

func (b *patternBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, 16)
	b.mu.Lock()
	b.subs[channel] = append(b.subs[channel], ch)
	b.mu.Unlock()
	return ch, nil
}

type fixedRoundLookup struct {
	rounds map[string]domain.Round
}

func (l fixedRoundLookup) Get(ctx context.Context, id string) (domain.Round, error) {
	r, ok := l.rounds[id]
	if !ok {
		return domain.Round{}, domain.ErrNotFound
	}
	return r, nil
}

type fixedUserLookup struct {
	users map[string]domain.User
}

func (l fixedUserLookup) GetByID(ctx context.Context, id string) (domain.User, error) {
	u, ok := l.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

// startHub runs a hub against a test HTTP server and returns a connected
// client plus the bus for publishing.
func startHub(t *testing.T, rounds RoundLookup, users UserLookup) (*websocket.Conn, *patternBus) {
	t.Helper()

	bus := newPatternBus()
	hub := NewHub(bus, rounds, users, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return conn, bus
}

func readEvent(t *testing.T, conn *websocket.Conn) domain.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var event domain.Event
	if err := json.Unmarshal(data, &event); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	return event
}

func TestSubscribeRoundSendsSnapshot(t *testing.T) {
	round := domain.Round{ID: "round-1", StartPrice: 0.5, Status: domain.RoundStatusActive}
	conn, _ := startHub(t,
		fixedRoundLookup{rounds: map[string]domain.Round{"round-1": round}},
		fixedUserLookup{},
	)

	if err := conn.WriteJSON(map[string]string{"type": "subscribe:round", "id": "round-1"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	event := readEvent(t, conn)
	if event.Type != domain.EventRoundUpdate {
		t.Fatalf("event type = %q, want %q", event.Type, domain.EventRoundUpdate)
	}
	var got domain.Round
	if err := json.Unmarshal(event.Payload, &got); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if got.ID != "round-1" || got.StartPrice != 0.5 {
		t.Errorf("snapshot = %+v", got)
	}
}

func TestSubscribeRoundReceivesUpdates(t *testing.T) {
	round := domain.Round{ID: "round-1", Status: domain.RoundStatusActive}
	conn, bus := startHub(t,
		fixedRoundLookup{rounds: map[string]domain.Round{"round-1": round}},
		fixedUserLookup{},
	)

	if err := conn.WriteJSON(map[string]string{"type": "subscribe:round", "id": "round-1"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	// Drain the subscribe snapshot first.
	if event := readEvent(t, conn); event.Type != domain.EventRoundUpdate {
		t.Fatalf("snapshot type = %q", event.Type)
	}

	// Publish a settled round to the round's channel, as the resolver does.
	final := 0.75
	resolved := round
	resolved.Status = domain.RoundStatusResolved
	resolved.FinalPrice = &final
	payload, err := domain.NewRoundUpdateEvent(resolved)
	if err != nil {
		t.Fatalf("encode event: %v", err)
	}

	// The bridge subscribes asynchronously; retry until it is wired up.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if err := bus.Publish(context.Background(), domain.RoundChannel("round-1"), payload); err != nil {
			t.Fatalf("publish: %v", err)
		}
		conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		_, data, err := conn.ReadMessage()
		if err == nil {
			var event domain.Event
			if err := json.Unmarshal(data, &event); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			var got domain.Round
			if err := json.Unmarshal(event.Payload, &got); err != nil {
				t.Fatalf("unmarshal payload: %v", err)
			}
			if got.Status != domain.RoundStatusResolved {
				t.Errorf("update status = %q, want RESOLVED", got.Status)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for round update")
		}
	}
}

func TestSubscribeUnknownRoundIsSilent(t *testing.T) {
	conn, _ := startHub(t, fixedRoundLookup{}, fixedUserLookup{})

	if err := conn.WriteJSON(map[string]string{"type": "subscribe:round", "id": "missing"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	// No snapshot, no error frame: the connection stays quiet.
	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("received a message for an unknown round")
	}
}

func TestSubscribeUserReceivesNotifications(t *testing.T) {
	user := domain.User{ID: "user-1"}
	conn, bus := startHub(t,
		fixedRoundLookup{},
		fixedUserLookup{users: map[string]domain.User{"user-1": user}},
	)

	if err := conn.WriteJSON(map[string]string{"type": "subscribe:user", "id": "user-1"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	n := domain.Notification{ID: "n-1", UserID: "user-1", Message: "round resolved", CreatedAt: time.Now().UTC()}
	payload, err := domain.NewNotificationEvent(n)
	if err != nil {
		t.Fatalf("encode event: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if err := bus.Publish(context.Background(), domain.UserChannel("user-1"), payload); err != nil {
			t.Fatalf("publish: %v", err)
		}
		conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		_, data, err := conn.ReadMessage()
		if err == nil {
			var event domain.Event
			if err := json.Unmarshal(data, &event); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if event.Type != domain.EventNotification {
				t.Fatalf("event type = %q, want %q", event.Type, domain.EventNotification)
			}
			var got domain.Notification
			if err := json.Unmarshal(event.Payload, &got); err != nil {
				t.Fatalf("unmarshal payload: %v", err)
			}
			if got.UserID != "user-1" || got.Message != "round resolved" {
				t.Errorf("notification = %+v", got)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for notification")
		}
	}
}

func TestRoomIsolation(t *testing.T) {
	rounds := fixedRoundLookup{rounds: map[string]domain.Round{
		"round-1": {ID: "round-1", Status: domain.RoundStatusActive},
		"round-2": {ID: "round-2", Status: domain.RoundStatusActive},
	}}
	conn, bus := startHub(t, rounds, fixedUserLookup{})

	if err := conn.WriteJSON(map[string]string{"type": "subscribe:round", "id": "round-1"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if event := readEvent(t, conn); event.Type != domain.EventRoundUpdate {
		t.Fatalf("snapshot type = %q", event.Type)
	}

	// An update for a different round must not reach this client. Give the
	// bridge a moment to route, then check nothing arrived.
	other := domain.Round{ID: "round-2", Status: domain.RoundStatusResolved}
	payload, err := domain.NewRoundUpdateEvent(other)
	if err != nil {
		t.Fatalf("encode event: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := bus.Publish(context.Background(), domain.RoundChannel("round-2"), payload); err != nil {
		t.Fatalf("publish: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, data, err := conn.ReadMessage(); err == nil {
		t.Fatalf("received cross-room message: %s", data)
	}
}

func TestShutdownReleasesConnections(t *testing.T) {
	bus := newPatternBus()
	hub := NewHub(bus, fixedRoundLookup{}, fixedUserLookup{}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- hub.Run(ctx) }()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	cancel()
	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}

	// The connected client's pumps must wind down instead of blocking on the
	// stopped loop: the server closes the connection, so the read fails fast.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("read succeeded after shutdown")
	}

	// A late upgrade is turned away rather than parked on the register queue.
	late, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return // handshake already refused, also fine
	}
	t.Cleanup(func() { late.Close() })
	late.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := late.ReadMessage(); err == nil {
		t.Fatal("late connection stayed open after shutdown")
	}
}

func TestRoomForEnvelope(t *testing.T) {
	roundEvent, err := domain.NewRoundUpdateEvent(domain.Round{ID: "round-1"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if room, ok := roomFor("round:*", roundEvent); !ok || room != "round:round-1" {
		t.Errorf("roomFor round = %q, %v", room, ok)
	}

	notifEvent, err := domain.NewNotificationEvent(domain.Notification{ID: "n-1", UserID: "user-1"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if room, ok := roomFor("user:*", notifEvent); !ok || room != "user:user-1" {
		t.Errorf("roomFor notification = %q, %v", room, ok)
	}

	if _, ok := roomFor("round:*", []byte(`{"type":"bogus","payload":{}}`)); ok {
		t.Error("roomFor accepted an unknown event type")
	}
	if _, ok := roomFor("round:*", []byte(`not json`)); ok {
		t.Error("roomFor accepted a malformed payload")
	}
}
