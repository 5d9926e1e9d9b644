package domain

import "encoding/json"

// Realtime event types pushed to websocket rooms.
const (
	EventRoundUpdate  = "round:update"
	EventNotification = "notification"
)

// Event is the tagged envelope for every server-to-client realtime message.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// NewRoundUpdateEvent builds the round:update envelope for a round snapshot.
func NewRoundUpdateEvent(round Round) ([]byte, error) {
	payload, err := json.Marshal(round)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Event{Type: EventRoundUpdate, Payload: payload})
}

// NewNotificationEvent builds the notification envelope for a user room.
func NewNotificationEvent(n Notification) ([]byte, error) {
	payload, err := json.Marshal(n)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Event{Type: EventNotification, Payload: payload})
}
