package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

const (
	defaultClientID     = "epic-cart"
	defaultSendAttempts = 5
)

// ProducerOption настраивает Producer.
type ProducerOption func(*producerSettings)

type producerSettings struct {
	clientID string
	attempts int
	logger   *log.Entry
	now      func() time.Time
}

// WithClientID задаёт client.id, под которым брокер видит сервис.
func WithClientID(id string) ProducerOption {
	return func(s *producerSettings) {
		if id != "" {
			s.clientID = id
		}
	}
}

// WithProducerLogger подменяет логгер.
func WithProducerLogger(logger *log.Entry) ProducerOption {
	return func(s *producerSettings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func buildSettings(opts []ProducerOption) producerSettings {
	s := producerSettings{
		clientID: defaultClientID,
		attempts: defaultSendAttempts,
		logger:   log.WithField("component", "kafka-producer"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// saramaConfig: подтверждение от всех реплик и идемпотентная запись без дублей при ретраях.
func (s producerSettings) saramaConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.ClientID = s.clientID
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Return.Successes = true
	cfg.Producer.Retry.Max = s.attempts
	cfg.Producer.Compression = sarama.CompressionSnappy
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	return cfg
}

// Producer отправляет события заказов и DLQ-записи синхронно: вызов возвращается после ack брокера.
type Producer struct {
	sync     sarama.SyncProducer
	settings producerSettings
}

func NewProducer(brokers []string, opts ...ProducerOption) (*Producer, error) {
	settings := buildSettings(opts)
	sync, err := sarama.NewSyncProducer(brokers, settings.saramaConfig())
	if err != nil {
		return nil, fmt.Errorf("connect kafka producer to %v: %w", brokers, err)
	}
	return &Producer{sync: sync, settings: settings}, nil
}

// NewProducerFromSync используется с mocks.SyncProducer в тестах и с заранее настроенным клиентом.
func NewProducerFromSync(sync sarama.SyncProducer, opts ...ProducerOption) *Producer {
	return &Producer{sync: sync, settings: buildSettings(opts)}
}

// Header собирает заголовок записи из строк.
func Header(key, value string) sarama.RecordHeader {
	return sarama.RecordHeader{Key: []byte(key), Value: []byte(value)}
}

func (p *Producer) PublishEvent(topic, key string, event any, headers ...sarama.RecordHeader) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %T for topic %s: %w", event, topic, err)
	}
	return p.PublishRaw(topic, key, value, headers...)
}

func (p *Producer) PublishRaw(topic, key string, value []byte, headers ...sarama.RecordHeader) error {
	entry := p.settings.logger.WithFields(log.Fields{"topic": topic, "key": key})

	partition, offset, err := p.sync.SendMessage(&sarama.ProducerMessage{
		Topic:     topic,
		Key:       sarama.StringEncoder(key),
		Value:     sarama.ByteEncoder(value),
		Headers:   headers,
		Timestamp: p.settings.now(),
	})
	if err != nil {
		entry.WithError(err).Error("kafka send failed")
		return fmt.Errorf("send to topic %s: %w", topic, err)
	}

	entry.WithFields(log.Fields{"partition": partition, "offset": offset}).Debug("kafka message acknowledged")
	return nil
}

func (p *Producer) Close() error {
	if err := p.sync.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}
