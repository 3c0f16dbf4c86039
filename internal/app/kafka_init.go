package app

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/epiccart/internal/domain"
	"github.com/vladislavdragonenkov/epiccart/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/epiccart/internal/metrics"
)

// kafkaRuntime — producer и consumer, поднятые при заданных брокерах.
type kafkaRuntime struct {
	producer  *kafka.Producer
	consumer  *kafka.Consumer
	publisher domain.OutboxPublisher
	dlq       domain.OutboxPublisher
}

// initKafkaProducer создаёт producer, если brokers не пустой.
// Возвращает nil, nil при пустом списке брокеров.
func initKafkaProducer(brokers []string, logger *log.Entry) (*kafka.Producer, error) {
	if len(brokers) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokers)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil, err
	}

	logger.WithField("brokers", brokers).Info("kafka producer initialized")
	return producer, nil
}

// initKafka поднимает публикацию outbox и consumer оплат. Без брокеров события outbox
// только логируются, а consumer не запускается.
func initKafka(ctx context.Context, cfg Config, payer kafka.Payer, registerer prometheus.Registerer, logger *log.Entry) *kafkaRuntime {
	rt := &kafkaRuntime{publisher: logPublisher{logger: logger.WithField("component", "outbox-log")}}

	producer, err := initKafkaProducer(cfg.Brokers(), logger)
	if err != nil || producer == nil {
		return rt
	}
	rt.producer = producer
	rt.publisher = kafka.NewOutboxPublisher(producer, cfg.OrderEventsTopic)
	rt.dlq = kafka.NewOutboxPublisher(producer, kafka.TopicDeadLetterQueue)

	consumer, err := kafka.NewConsumer(
		cfg.Brokers(),
		cfg.PaymentConsumerGroup,
		[]string{cfg.PaymentEventsTopic},
		kafka.NewPaymentHandler(payer, logger.WithField("component", "payment-consumer")),
		kafka.WithDLQ(producer, kafka.TopicDeadLetterQueue),
		kafka.WithMaxAttempts(cfg.OutboxMaxAttempts),
		kafka.WithRetryDelay(cfg.OutboxRetryDelay),
		kafka.WithConsumerLogger(logger.WithField("component", "kafka-consumer")),
		kafka.WithConsumerMetrics(metrics.NewConsumerMetrics(registerer)),
	)
	if err != nil {
		logger.WithError(err).Warn("failed to create payment consumer, payments are accepted over http only")
		return rt
	}
	if err := consumer.Start(ctx); err != nil {
		logger.WithError(err).Warn("failed to start payment consumer")
		return rt
	}
	rt.consumer = consumer
	return rt
}

// close останавливает consumer раньше producer: DLQ пишет через producer.
func (rt *kafkaRuntime) close(logger *log.Entry) {
	if rt == nil {
		return
	}
	if rt.consumer != nil {
		if err := rt.consumer.Stop(); err != nil {
			logger.WithError(err).Warn("failed to stop payment consumer")
		}
	}
	closeKafkaProducer(rt.producer, logger)
}

// closeKafkaProducer закрывает Kafka producer, если он не nil.
func closeKafkaProducer(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}

// logPublisher подменяет брокер, когда Kafka не настроена.
type logPublisher struct {
	logger *log.Entry
}

func (p logPublisher) Publish(event domain.OutboxMessage) error {
	p.logger.WithFields(log.Fields{
		"event_id":   event.ID,
		"event_type": event.EventType,
		"order_id":   event.AggregateID,
	}).Debug("order event published to log")
	return nil
}
