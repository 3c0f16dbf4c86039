package metrics

import "github.com/prometheus/client_golang/prometheus"

// OutboxMetrics содержит метрики outbox worker.
type OutboxMetrics struct {
	PublishAttempts  *prometheus.CounterVec
	PendingRecords   prometheus.Gauge
	OldestPendingAge prometheus.Gauge
}

// NewOutboxMetrics регистрирует метрики outbox.
func NewOutboxMetrics(registerer prometheus.Registerer) *OutboxMetrics {
	return &OutboxMetrics{
		PublishAttempts: register(registerer, "epiccart_outbox_publish_attempts_total", prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "epiccart_outbox_publish_attempts_total",
			Help: "Total number of outbox publish attempts grouped by result.",
		}, []string{"result"})),
		PendingRecords: register(registerer, "epiccart_outbox_pending_records", prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "epiccart_outbox_pending_records",
			Help: "Current number of pending records in transactional outbox.",
		})),
		OldestPendingAge: register(registerer, "epiccart_outbox_oldest_pending_age_seconds", prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "epiccart_outbox_oldest_pending_age_seconds",
			Help: "Age in seconds of the oldest pending outbox record.",
		})),
	}
}

// CleanupMetrics считает очистку idempotency ключей.
type CleanupMetrics struct {
	Runs        *prometheus.CounterVec
	Deleted     prometheus.Counter
	LastDeleted prometheus.Gauge
}

// NewCleanupMetrics регистрирует метрики очистки.
func NewCleanupMetrics(registerer prometheus.Registerer) *CleanupMetrics {
	return &CleanupMetrics{
		Runs: register(registerer, "epiccart_idempotency_cleanup_runs_total", prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "epiccart_idempotency_cleanup_runs_total",
			Help: "Total number of idempotency cleanup runs grouped by result.",
		}, []string{"result"})),
		Deleted: register(registerer, "epiccart_idempotency_cleanup_deleted_total", prometheus.NewCounter(prometheus.CounterOpts{
			Name: "epiccart_idempotency_cleanup_deleted_total",
			Help: "Total number of deleted expired idempotency records.",
		})),
		LastDeleted: register(registerer, "epiccart_idempotency_cleanup_last_deleted", prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "epiccart_idempotency_cleanup_last_deleted",
			Help: "Number of deleted records during the last cleanup run.",
		})),
	}
}

// ConsumerMetrics считает обработку входящих сообщений Kafka.
type ConsumerMetrics struct {
	Messages *prometheus.CounterVec
}

// NewConsumerMetrics регистрирует метрики consumer.
func NewConsumerMetrics(registerer prometheus.Registerer) *ConsumerMetrics {
	return &ConsumerMetrics{
		Messages: register(registerer, "epiccart_kafka_consumed_messages_total", prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "epiccart_kafka_consumed_messages_total",
			Help: "Total number of consumed Kafka messages grouped by topic and result.",
		}, []string{"topic", "result"})),
	}
}
