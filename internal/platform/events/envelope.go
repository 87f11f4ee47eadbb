// Package events publishes order lifecycle events to a message bus.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hoangphuc3604/my-shop-backend/internal/services"
)

const schemaVersion = 1

// Envelope is the wire form shared by every publisher.
type Envelope struct {
	EventID        string         `json:"eventId"`
	SchemaVersion  int            `json:"schemaVersion"`
	Type           string         `json:"type"`
	OrderID        string         `json:"orderId"`
	PreviousStatus string         `json:"previousStatus,omitempty"`
	CurrentStatus  string         `json:"currentStatus,omitempty"`
	ActorID        string         `json:"actorId,omitempty"`
	OccurredAt     time.Time      `json:"occurredAt"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// NewEnvelope stamps event with a fresh id.
func NewEnvelope(event services.OrderEvent) Envelope {
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	return Envelope{
		EventID:        uuid.NewString(),
		SchemaVersion:  schemaVersion,
		Type:           event.Type,
		OrderID:        event.OrderID,
		PreviousStatus: event.PreviousStatus,
		CurrentStatus:  event.CurrentStatus,
		ActorID:        event.ActorID,
		OccurredAt:     occurred.UTC(),
		Metadata:       event.Metadata,
	}
}

func (e Envelope) marshal() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", e.Type, err)
	}
	return data, nil
}

// attributes mirrors the routing fields as string headers.
func (e Envelope) attributes() map[string]string {
	attrs := map[string]string{
		"eventId":       e.EventID,
		"eventType":     e.Type,
		"orderId":       e.OrderID,
		"schemaVersion": fmt.Sprint(e.SchemaVersion),
	}
	if e.CurrentStatus != "" {
		attrs["status"] = e.CurrentStatus
	}
	return attrs
}
