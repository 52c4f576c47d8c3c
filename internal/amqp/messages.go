package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"centsible/internal/core"
)

// EventMessage is the envelope put on the wire for every ledger event.
// The event type doubles as the routing key.
type EventMessage struct {
	ID          string           `json:"id"`
	Event       core.LedgerEvent `json:"event"`
	PublishedAt time.Time        `json:"publishedAt"`
}

// NewEventMessage wraps event with a fresh message id.
func NewEventMessage(event core.LedgerEvent) *EventMessage {
	return &EventMessage{
		ID:          uuid.NewString(),
		Event:       event,
		PublishedAt: time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *EventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// EventMessageFromJSON decodes and sanity-checks a message body.
func EventMessageFromJSON(data []byte) (*EventMessage, error) {
	var msg EventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Event.Type == "" {
		return nil, errors.New("event type missing")
	}
	if msg.Event.UserID <= 0 {
		return nil, fmt.Errorf("event %s: invalid user id %d", msg.Event.Type, msg.Event.UserID)
	}
	return &msg, nil
}
