package kafka

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
)

// Топики по умолчанию; переопределяются конфигурацией.
const (
	TopicOrderEvents     = "epiccart.order.events"
	TopicPaymentEvents   = "epiccart.payment.events"
	TopicDeadLetterQueue = "epiccart.dlq"
)

// Заголовки сообщений, которые уходят в DLQ.
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// OutboxEnvelope — формат события заказа в топике ORDER_EVENTS.
type OutboxEnvelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// PaymentCapturedEvent — подтверждение оплаты от платёжного шлюза.
type PaymentCapturedEvent struct {
	OrderID    string `json:"order_id"`
	ExternalID string `json:"external_id"`
	Status     string `json:"status"`
	UpdateTime string `json:"update_time"`
	PayerEmail string `json:"payer_email"`
}

// DeadLetter — сообщение, которое не удалось обработать.
type DeadLetter struct {
	OriginalTopic     string    `json:"original_topic"`
	OriginalPartition int32     `json:"original_partition"`
	OriginalOffset    int64     `json:"original_offset"`
	OriginalKey       string    `json:"original_key"`
	OriginalValue     string    `json:"original_value"`
	ErrorMessage      string    `json:"error_message"`
	Attempts          int       `json:"attempts"`
	FailedAt          time.Time `json:"failed_at"`
}

// ParsePaymentCapturedEvent разбирает событие оплаты. Ошибки разбора постоянные: повтор не поможет.
func ParsePaymentCapturedEvent(message *sarama.ConsumerMessage) (PaymentCapturedEvent, error) {
	var event PaymentCapturedEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		return PaymentCapturedEvent{}, Permanent(fmt.Errorf("unmarshal payment event: %w", err))
	}
	event.OrderID = strings.TrimSpace(event.OrderID)
	if event.OrderID == "" {
		return PaymentCapturedEvent{}, Permanent(fmt.Errorf("payment event without order_id"))
	}
	return event, nil
}

// ParseOutboxEnvelope разбирает событие заказа.
func ParseOutboxEnvelope(message *sarama.ConsumerMessage) (OutboxEnvelope, error) {
	var envelope OutboxEnvelope
	if err := json.Unmarshal(message.Value, &envelope); err != nil {
		return OutboxEnvelope{}, fmt.Errorf("unmarshal order event: %w", err)
	}
	return envelope, nil
}
