package kafka

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/vladislavdragonenkov/epiccart/internal/domain"
)

// HeaderEventType дублирует тип события в заголовке для фильтрации без разбора тела.
const HeaderEventType = "event_type"

var errPublisherNotReady = errors.New("kafka outbox publisher is not initialized")

// OutboxTopicPublisher переводит записи outbox в OutboxEnvelope и отправляет их в один топик.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
	now      func() time.Time
}

func NewOutboxPublisher(producer *Producer, topic string) *OutboxTopicPublisher {
	if topic == "" {
		topic = TopicOrderEvents
	}
	return &OutboxTopicPublisher{producer: producer, topic: topic, now: time.Now}
}

func (p *OutboxTopicPublisher) Topic() string { return p.topic }

// Publish партиционирует по ID заказа: все события заказа попадают в одну партицию и читаются по порядку.
func (p *OutboxTopicPublisher) Publish(message domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return errPublisherNotReady
	}
	return p.producer.PublishEvent(p.topic, partitionKey(message), p.envelope(message),
		Header(HeaderEventType, message.EventType))
}

func (p *OutboxTopicPublisher) envelope(message domain.OutboxMessage) OutboxEnvelope {
	return OutboxEnvelope{
		ID:            message.ID,
		AggregateType: message.AggregateType,
		AggregateID:   message.AggregateID,
		EventType:     message.EventType,
		Payload:       json.RawMessage(message.Payload),
		PublishedAt:   p.now().UTC(),
	}
}

func partitionKey(message domain.OutboxMessage) string {
	if message.AggregateID != "" {
		return message.AggregateID
	}
	return message.ID
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
