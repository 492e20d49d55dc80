package kafka

import (
	"encoding/json"
	"errors"
	"time"

	"fruitapp-be/internal/outbox"
)

var ErrPublisherNotInitialized = errors.New("kafka outbox publisher is not initialized")

// OutboxPublisher sends outbox messages to one topic, keyed by aggregate id so
// events of one order stay ordered within a partition.
type OutboxPublisher struct {
	producer *Producer
	topic    string
}

func NewOutboxPublisher(producer *Producer, topic string) *OutboxPublisher {
	if topic == "" {
		topic = TopicOrderEvents
	}
	return &OutboxPublisher{
		producer: producer,
		topic:    topic,
	}
}

type envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurred_at"`
	PublishedAt   time.Time       `json:"published_at"`
}

func (p *OutboxPublisher) Publish(msg outbox.Message) error {
	if p == nil || p.producer == nil {
		return ErrPublisherNotInitialized
	}

	key := msg.AggregateID
	if key == "" {
		key = msg.ID.String()
	}

	payload := json.RawMessage(msg.Payload)
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}

	return p.producer.PublishEvent(p.topic, key, envelope{
		ID:            msg.ID.String(),
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       payload,
		OccurredAt:    msg.CreatedAt,
		PublishedAt:   time.Now().UTC(),
	})
}

var _ outbox.Publisher = (*OutboxPublisher)(nil)
