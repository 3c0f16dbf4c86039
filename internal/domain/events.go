package domain

import "time"

// OrderEventType задаёт тип события заказа во внешнем потоке.
type OrderEventType string

const (
	OrderEventCreated   OrderEventType = "order.created"
	OrderEventPaid      OrderEventType = "order.paid"
	OrderEventDelivered OrderEventType = "order.delivered"
)

// OrderAggregateType — aggregate_type сообщений outbox для заказов.
const OrderAggregateType = "order"

// OrderEvent — полезная нагрузка события заказа в outbox и Kafka.
type OrderEvent struct {
	EventType   OrderEventType `json:"event_type"`
	OrderID     string         `json:"order_id"`
	OwnerID     string         `json:"owner_id"`
	State       OrderState     `json:"state"`
	TotalPrice  string         `json:"total_price"`
	IsPaid      bool           `json:"is_paid"`
	IsDelivered bool           `json:"is_delivered"`
	Timestamp   time.Time      `json:"timestamp"`
}

// NewOrderEvent собирает событие из текущего состояния заказа.
func NewOrderEvent(eventType OrderEventType, order Order, at time.Time) OrderEvent {
	return OrderEvent{
		EventType:   eventType,
		OrderID:     order.ID,
		OwnerID:     order.OwnerID,
		State:       order.State(),
		TotalPrice:  order.TotalPrice.StringFixed(2),
		IsPaid:      order.IsPaid,
		IsDelivered: order.IsDelivered,
		Timestamp:   at.UTC(),
	}
}
