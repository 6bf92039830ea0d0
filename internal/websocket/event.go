package websocket

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType represents the credit operation the event is about
type EventType string

const (
	EventTypeAdded    EventType = "added"
	EventTypeConsumed EventType = "consumed"
	EventTypeRefunded EventType = "refunded"
	EventTypeExpired  EventType = "expired"
	EventTypeRenewed  EventType = "renewed"
)

// EntityTypeCredits is the only entity this hub broadcasts about
const EntityTypeCredits = "credits"

// Event represents a WebSocket event message sent to clients
// Format: { type, entity, payload, timestamp }
type Event struct {
	Type      string      `json:"type"`      // Combined type e.g. "credits.consumed"
	Entity    string      `json:"entity"`    // Entity type, always "credits"
	Payload   interface{} `json:"payload"`   // Event data
	Timestamp time.Time   `json:"timestamp"` // Event timestamp
}

// NewEvent creates a new event with the given type and payload
func NewEvent(eventType EventType, payload interface{}) Event {
	return Event{
		Type:      fmt.Sprintf("%s.%s", EntityTypeCredits, eventType),
		Entity:    EntityTypeCredits,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON serializes the event to JSON bytes
func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// CreditsAdded creates a credits.added event
func CreditsAdded(payload interface{}) Event {
	return NewEvent(EventTypeAdded, payload)
}

// CreditsConsumed creates a credits.consumed event
func CreditsConsumed(payload interface{}) Event {
	return NewEvent(EventTypeConsumed, payload)
}

// CreditsRefunded creates a credits.refunded event
func CreditsRefunded(payload interface{}) Event {
	return NewEvent(EventTypeRefunded, payload)
}

// CreditsExpired creates a credits.expired event
func CreditsExpired(payload interface{}) Event {
	return NewEvent(EventTypeExpired, payload)
}

// CreditsRenewed creates a credits.renewed event
func CreditsRenewed(payload interface{}) Event {
	return NewEvent(EventTypeRenewed, payload)
}
