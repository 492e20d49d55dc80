package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	AggregateOrder = "order"

	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
)

// Message is one event waiting in the outbox table.
type Message struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
}

// Stats describes the unpublished backlog.
type Stats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

func NewMessage(aggregateType, aggregateID, eventType string, payload any) (Message, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Message{
		ID:            uuid.New(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       body,
		CreatedAt:     time.Now().UTC(),
	}, nil
}
