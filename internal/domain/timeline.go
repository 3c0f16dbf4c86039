package domain

import (
	"strings"
	"time"
)

// Типы событий таймлайна заказа.
const (
	TimelineOrderCreated   = "OrderCreated"
	TimelineOrderPaid      = "OrderPaid"
	TimelineOrderDelivered = "OrderDelivered"
)

// TimelineEvent описывает событие в жизненном цикле заказа.
type TimelineEvent struct {
	OrderID  string
	Type     string
	Reason   string
	Occurred time.Time
}

// ErrTimelineTypeRequired возвращается для события без типа.
var ErrTimelineTypeRequired = newKindError(ErrInvalidRequest, "timeline event type is required")

// Normalized проверяет событие и приводит время к UTC; пустое время заменяется на now.
func (e TimelineEvent) Normalized(now time.Time) (TimelineEvent, error) {
	e.OrderID = strings.TrimSpace(e.OrderID)
	e.Type = strings.TrimSpace(e.Type)
	if e.OrderID == "" {
		return TimelineEvent{}, ErrOrderIDRequired
	}
	if e.Type == "" {
		return TimelineEvent{}, ErrTimelineTypeRequired
	}
	if e.Occurred.IsZero() {
		e.Occurred = now
	}
	e.Occurred = e.Occurred.UTC()
	return e, nil
}
