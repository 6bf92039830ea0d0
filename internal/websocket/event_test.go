package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventType_String(t *testing.T) {
	tests := []struct {
		name     string
		et       EventType
		expected string
	}{
		{"added", EventTypeAdded, "added"},
		{"consumed", EventTypeConsumed, "consumed"},
		{"refunded", EventTypeRefunded, "refunded"},
		{"expired", EventTypeExpired, "expired"},
		{"renewed", EventTypeRenewed, "renewed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, string(tt.et))
		})
	}
}

func TestNewEvent(t *testing.T) {
	payload := map[string]interface{}{
		"accountId": "aa5d7a3e-9c1f-4c13-9a49-2f9a2f1f5fb1",
		"balance":   float64(150),
	}

	before := time.Now()
	evt := NewEvent(EventTypeAdded, payload)
	after := time.Now()

	assert.Equal(t, "credits.added", evt.Type)
	assert.Equal(t, EntityTypeCredits, evt.Entity)
	assert.Equal(t, payload, evt.Payload)
	assert.True(t, !evt.Timestamp.Before(before) && !evt.Timestamp.After(after))
}

func TestEvent_JSON_Serialization(t *testing.T) {
	fixedTime := time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)
	payload := map[string]interface{}{
		"companyId": "c4f3a2a2-1111-4a0c-8f35-9c6a8a1c9d42",
		"balance":   float64(90),
	}

	evt := Event{
		Type:      "credits.consumed",
		Entity:    EntityTypeCredits,
		Payload:   payload,
		Timestamp: fixedTime,
	}

	data, err := json.Marshal(evt)
	require.NoError(t, err)

	var decoded Event
	err = json.Unmarshal(data, &decoded)
	require.NoError(t, err)

	assert.Equal(t, evt.Type, decoded.Type)
	assert.Equal(t, evt.Entity, decoded.Entity)
	assert.Equal(t, fixedTime.UTC(), decoded.Timestamp.UTC())

	// Payload should be preserved
	decodedPayload, ok := decoded.Payload.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "c4f3a2a2-1111-4a0c-8f35-9c6a8a1c9d42", decodedPayload["companyId"])
	assert.Equal(t, float64(90), decodedPayload["balance"])
}

func TestEvent_ToJSON(t *testing.T) {
	payload := map[string]interface{}{
		"balance": float64(42),
	}

	evt := NewEvent(EventTypeConsumed, payload)

	data, err := evt.ToJSON()
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	// Verify it's valid JSON
	var decoded map[string]interface{}
	err = json.Unmarshal(data, &decoded)
	require.NoError(t, err)

	assert.Equal(t, "credits.consumed", decoded["type"])
	assert.Equal(t, "credits", decoded["entity"])
	assert.NotNil(t, decoded["payload"])
	assert.NotNil(t, decoded["timestamp"])
}

func TestCreditEvent_Helpers(t *testing.T) {
	payload := map[string]interface{}{
		"companyId": "c4f3a2a2-1111-4a0c-8f35-9c6a8a1c9d42",
		"balance":   float64(75),
	}

	tests := []struct {
		name     string
		build    func(interface{}) Event
		wantType string
	}{
		{"CreditsAdded", CreditsAdded, "credits.added"},
		{"CreditsConsumed", CreditsConsumed, "credits.consumed"},
		{"CreditsRefunded", CreditsRefunded, "credits.refunded"},
		{"CreditsExpired", CreditsExpired, "credits.expired"},
		{"CreditsRenewed", CreditsRenewed, "credits.renewed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evt := tt.build(payload)
			assert.Equal(t, tt.wantType, evt.Type)
			assert.Equal(t, EntityTypeCredits, evt.Entity)
			assert.Equal(t, payload, evt.Payload)
		})
	}
}
