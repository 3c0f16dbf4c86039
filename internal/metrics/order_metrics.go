package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// OrderMetrics содержит метрики жизненного цикла заказов.
type OrderMetrics struct {
	ordersCreated   prometheus.Counter
	ordersPaid      prometheus.Counter
	ordersDelivered prometheus.Counter

	// Ошибки по операции и категории
	operationFailures *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec

	orderValue prometheus.Histogram

	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter
}

// NewOrderMetrics создаёт метрики в глобальном реестре.
func NewOrderMetrics() *OrderMetrics {
	return NewOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOrderMetricsWithRegisterer создаёт метрики в переданном реестре.
func NewOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	return &OrderMetrics{
		ordersCreated: register(registerer, "epiccart_orders_created_total", prometheus.NewCounter(prometheus.CounterOpts{
			Name: "epiccart_orders_created_total",
			Help: "Total number of orders created",
		})),
		ordersPaid: register(registerer, "epiccart_orders_paid_total", prometheus.NewCounter(prometheus.CounterOpts{
			Name: "epiccart_orders_paid_total",
			Help: "Total number of payment confirmations applied",
		})),
		ordersDelivered: register(registerer, "epiccart_orders_delivered_total", prometheus.NewCounter(prometheus.CounterOpts{
			Name: "epiccart_orders_delivered_total",
			Help: "Total number of delivery confirmations applied",
		})),
		operationFailures: register(registerer, "epiccart_order_operation_failures_total", prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "epiccart_order_operation_failures_total",
			Help: "Total number of failed order operations by operation and error kind",
		}, []string{"operation", "kind"})),
		operationDuration: register(registerer, "epiccart_order_operation_duration_seconds", prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "epiccart_order_operation_duration_seconds",
			Help:    "Duration of order operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"operation"})),
		orderValue: register(registerer, "epiccart_order_total_price", prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "epiccart_order_total_price",
			Help:    "Distribution of order total price",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		})),
		timelineEvents: register(registerer, "epiccart_timeline_events_total", prometheus.NewCounter(prometheus.CounterOpts{
			Name: "epiccart_timeline_events_total",
			Help: "Total number of timeline events recorded",
		})),
		outboxEvents: register(registerer, "epiccart_outbox_events_total", prometheus.NewCounter(prometheus.CounterOpts{
			Name: "epiccart_outbox_events_total",
			Help: "Total number of outbox events enqueued",
		})),
	}
}

// RecordOrderCreated учитывает новый заказ и его сумму.
func (m *OrderMetrics) RecordOrderCreated(total decimal.Decimal) {
	m.ordersCreated.Inc()
	m.orderValue.Observe(total.InexactFloat64())
}

// RecordOrderPaid увеличивает счётчик оплат.
func (m *OrderMetrics) RecordOrderPaid() {
	m.ordersPaid.Inc()
}

// RecordOrderDelivered увеличивает счётчик доставок.
func (m *OrderMetrics) RecordOrderDelivered() {
	m.ordersDelivered.Inc()
}

// RecordFailure учитывает ошибку операции.
func (m *OrderMetrics) RecordFailure(operation, kind string) {
	m.operationFailures.WithLabelValues(operation, kind).Inc()
}

// RecordDuration записывает время выполнения операции.
func (m *OrderMetrics) RecordDuration(operation string, duration time.Duration) {
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *OrderMetrics) RecordTimelineEvent() {
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *OrderMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}
