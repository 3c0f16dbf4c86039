package kafka

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/epiccart/internal/metrics"
)

const (
	defaultMaxAttempts = 3
	defaultRetryDelay  = 200 * time.Millisecond
	maxRetryDelay      = 10 * time.Second
)

// MessageHandler обрабатывает сообщение из Kafka.
type MessageHandler func(ctx context.Context, message *sarama.ConsumerMessage) error

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent помечает ошибку как неисправимую: сообщение сразу уходит в DLQ без повторов.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent сообщает, помечена ли ошибка через Permanent.
func IsPermanent(err error) bool {
	var perr *permanentError
	return errors.As(err, &perr)
}

// ConsumerOption настраивает Consumer.
type ConsumerOption func(*Consumer)

// WithDLQ включает отправку необработанных сообщений в topic.
func WithDLQ(producer *Producer, topic string) ConsumerOption {
	return func(c *Consumer) {
		c.dlqProducer = producer
		if topic != "" {
			c.dlqTopic = topic
		}
	}
}

// WithMaxAttempts задаёт число попыток обработки одного сообщения.
func WithMaxAttempts(attempts int) ConsumerOption {
	return func(c *Consumer) {
		if attempts > 0 {
			c.maxAttempts = attempts
		}
	}
}

// WithRetryDelay задаёт базовую задержку между попытками; растёт экспоненциально.
func WithRetryDelay(delay time.Duration) ConsumerOption {
	return func(c *Consumer) {
		if delay >= 0 {
			c.retryDelay = delay
		}
	}
}

// WithConsumerLogger задаёт logger.
func WithConsumerLogger(logger *log.Entry) ConsumerOption {
	return func(c *Consumer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithConsumerMetrics включает метрики обработки.
func WithConsumerMetrics(m *metrics.ConsumerMetrics) ConsumerOption {
	return func(c *Consumer) { c.metrics = m }
}

// Consumer читает топики в consumer group, повторяет неудачную обработку и отправляет
// исчерпавшие попытки сообщения в DLQ.
type Consumer struct {
	consumer    sarama.ConsumerGroup
	topics      []string
	handler     MessageHandler
	logger      *log.Entry
	metrics     *metrics.ConsumerMetrics
	dlqProducer *Producer
	dlqTopic    string
	maxAttempts int
	retryDelay  time.Duration
	wg          sync.WaitGroup
}

// NewConsumer подключается к брокерам как участник группы groupID.
func NewConsumer(brokers []string, groupID string, topics []string, handler MessageHandler, opts ...ConsumerOption) (*Consumer, error) {
	config := sarama.NewConfig()
	config.ClientID = defaultClientID
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}
	return newConsumer(group, topics, handler, opts...), nil
}

func newConsumer(group sarama.ConsumerGroup, topics []string, handler MessageHandler, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		consumer:    group,
		topics:      topics,
		handler:     handler,
		logger:      log.WithField("component", "kafka-consumer"),
		dlqTopic:    TopicDeadLetterQueue,
		maxAttempts: defaultMaxAttempts,
		retryDelay:  defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start запускает чтение в фоне до отмены ctx.
func (c *Consumer) Start(ctx context.Context) error {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			// Consume возвращается при каждом rebalance.
			if err := c.consumer.Consume(ctx, c.topics, c); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				c.logger.WithError(err).Error("error from consumer")
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for err := range c.consumer.Errors() {
			c.logger.WithError(err).Error("consumer error")
		}
	}()

	c.logger.WithField("topics", c.topics).Info("kafka consumer started")
	return nil
}

// Stop закрывает группу и ждёт фоновые горутины.
func (c *Consumer) Stop() error {
	if err := c.consumer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka consumer: %w", err)
	}
	c.wg.Wait()
	c.logger.Info("kafka consumer stopped")
	return nil
}

// Setup вызывается при старте сессии.
func (c *Consumer) Setup(sarama.ConsumerGroupSession) error { return nil }

// Cleanup вызывается при завершении сессии.
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim обрабатывает сообщения партиции. Если сообщение не удалось ни обработать,
// ни отправить в DLQ, сессия завершается без коммита и сообщение будет прочитано снова.
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok || message == nil {
				return nil
			}
			if err := c.process(session.Context(), message); err != nil {
				return err
			}
			session.MarkMessage(message, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

func (c *Consumer) process(ctx context.Context, message *sarama.ConsumerMessage) error {
	entry := c.logger.WithFields(log.Fields{
		"topic":     message.Topic,
		"partition": message.Partition,
		"offset":    message.Offset,
	})

	attempts, err := c.handleWithRetry(ctx, message)
	if err == nil {
		c.record(message.Topic, "processed")
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	entry = entry.WithError(err).WithField("attempts", attempts)
	if c.dlqProducer == nil {
		entry.Error("message processing failed, dropping message")
		c.record(message.Topic, "dropped")
		return nil
	}
	if dlqErr := c.sendToDLQ(message, err, attempts); dlqErr != nil {
		entry.WithField("dlq_error", dlqErr.Error()).Error("failed to send message to DLQ")
		c.record(message.Topic, "dlq_failed")
		return fmt.Errorf("send to dlq: %w", dlqErr)
	}
	entry.Warn("message sent to DLQ")
	c.record(message.Topic, "dead_lettered")
	return nil
}

func (c *Consumer) handleWithRetry(ctx context.Context, message *sarama.ConsumerMessage) (int, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		lastErr = c.handler(ctx, message)
		if lastErr == nil {
			return attempt, nil
		}
		if IsPermanent(lastErr) || attempt == c.maxAttempts {
			return attempt, lastErr
		}

		c.record(message.Topic, "retried")
		timer := time.NewTimer(c.backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, ctx.Err()
		case <-timer.C:
		}
	}
	return c.maxAttempts, lastErr
}

func (c *Consumer) backoff(attempt int) time.Duration {
	delay := c.retryDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return delay
}

func (c *Consumer) sendToDLQ(message *sarama.ConsumerMessage, processingErr error, attempts int) error {
	failedAt := time.Now().UTC()
	letter := DeadLetter{
		OriginalTopic:     message.Topic,
		OriginalPartition: message.Partition,
		OriginalOffset:    message.Offset,
		OriginalKey:       string(message.Key),
		OriginalValue:     string(message.Value),
		ErrorMessage:      processingErr.Error(),
		Attempts:          attempts,
		FailedAt:          failedAt,
	}
	return c.dlqProducer.PublishEvent(c.dlqTopic, string(message.Key), letter,
		Header(HeaderOriginalTopic, message.Topic),
		Header(HeaderRetryCount, strconv.Itoa(attempts)),
		Header(HeaderErrorMessage, processingErr.Error()),
		Header(HeaderFailedAt, failedAt.Format(time.RFC3339)),
	)
}

func (c *Consumer) record(topic, result string) {
	if c.metrics != nil {
		c.metrics.Messages.WithLabelValues(topic, result).Inc()
	}
}
