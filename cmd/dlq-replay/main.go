// Command dlq-replay перечитывает dead-letter топик и возвращает сообщения в исходные топики.
// По умолчанию работает в режиме dry-run и только логирует кандидатов.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/epiccart/internal/env"
	"github.com/vladislavdragonenkov/epiccart/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/epiccart/internal/service/outbox"
)

const (
	defaultReplayLimit = 100
	defaultIdleTimeout = 2 * time.Second

	envKafkaBrokers     = "EPICCART_KAFKA_BROKERS"
	envOrderEventsTopic = "EPICCART_ORDER_EVENTS_TOPIC"

	headerReplayedFrom = "x-replayed-from"
)

// errNotReplayable: в сообщении DLQ нет исходных данных.
var errNotReplayable = errors.New("dead letter has no original message")

type config struct {
	brokers     []string
	sourceTopic string
	ordersTopic string
	limit       int
	execute     bool
	fromNewest  bool
	idleTimeout time.Duration
}

type offsetClient interface {
	Partitions(topic string) ([]int32, error)
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Close() error
}

type partitionConsumer interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type partitionSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error)
	Close() error
}

// replayPublisher реализуется *kafka.Producer.
type replayPublisher interface {
	PublishRaw(topic, key string, value []byte, headers ...sarama.RecordHeader) error
	Close() error
}

type saramaSource struct {
	consumer sarama.Consumer
}

func (s saramaSource) ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error) {
	return s.consumer.ConsumePartition(topic, partition, offset)
}

func (s saramaSource) Close() error { return s.consumer.Close() }

// replayMessage хранит восстановленное исходное сообщение.
type replayMessage struct {
	topic string
	key   string
	value []byte
}

type replayStats struct {
	scanned  int
	replayed int
	skipped  int
}

func (s *replayStats) add(other replayStats) {
	s.scanned += other.scanned
	s.replayed += other.replayed
	s.skipped += other.skipped
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	if err := env.Load(".env", ".env.local"); err != nil {
		fail("load env files: %v", err)
	}

	cfg, err := readConfig(os.Args[1:], os.Getenv)
	if err != nil {
		fail("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats, err := run(ctx, cfg)
	if err != nil {
		stop()
		fail("dlq replay failed: %v", err)
	}
	log.WithFields(log.Fields{
		"execute":  cfg.execute,
		"scanned":  stats.scanned,
		"replayed": stats.replayed,
		"skipped":  stats.skipped,
	}).Info("dlq replay finished")
}

func readConfig(args []string, getenv func(string) string) (config, error) {
	flags := flag.NewFlagSet("dlq-replay", flag.ContinueOnError)
	flags.SetOutput(io.Discard)

	var (
		cfg     config
		brokers string
	)
	flags.StringVar(&brokers, "brokers", "", "Kafka brokers, comma-separated (fallback: "+envKafkaBrokers+")")
	flags.StringVar(&cfg.sourceTopic, "source-topic", kafka.TopicDeadLetterQueue, "dead-letter topic to scan")
	flags.StringVar(&cfg.ordersTopic, "orders-topic", "", "topic for replayed order events (fallback: "+envOrderEventsTopic+")")
	flags.IntVar(&cfg.limit, "limit", defaultReplayLimit, "max number of messages to scan")
	flags.BoolVar(&cfg.execute, "execute", false, "publish messages; default is dry-run")
	flags.BoolVar(&cfg.fromNewest, "from-newest", false, "scan the newest messages of each partition")
	flags.DurationVar(&cfg.idleTimeout, "idle-timeout", defaultIdleTimeout, "stop reading a partition after this idle period")
	if err := flags.Parse(args); err != nil {
		return config{}, fmt.Errorf("parse flags: %w", err)
	}

	if strings.TrimSpace(brokers) == "" {
		brokers = getenv(envKafkaBrokers)
	}
	for _, broker := range strings.Split(brokers, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			cfg.brokers = append(cfg.brokers, broker)
		}
	}
	if cfg.ordersTopic = strings.TrimSpace(cfg.ordersTopic); cfg.ordersTopic == "" {
		cfg.ordersTopic = strings.TrimSpace(getenv(envOrderEventsTopic))
	}
	if cfg.ordersTopic == "" {
		cfg.ordersTopic = kafka.TopicOrderEvents
	}
	cfg.sourceTopic = strings.TrimSpace(cfg.sourceTopic)

	switch {
	case len(cfg.brokers) == 0:
		return config{}, fmt.Errorf("kafka brokers are required (-brokers or %s)", envKafkaBrokers)
	case cfg.sourceTopic == "":
		return config{}, errors.New("source-topic is required")
	case cfg.sourceTopic == cfg.ordersTopic:
		return config{}, errors.New("source-topic must differ from orders-topic")
	case cfg.limit <= 0:
		return config{}, errors.New("limit must be > 0")
	case cfg.idleTimeout <= 0:
		return config{}, errors.New("idle-timeout must be > 0")
	}
	return cfg, nil
}

func run(ctx context.Context, cfg config) (replayStats, error) {
	client, err := sarama.NewClient(cfg.brokers, newClientConfig())
	if err != nil {
		return replayStats{}, fmt.Errorf("create kafka client: %w", err)
	}
	defer client.Close()

	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		return replayStats{}, fmt.Errorf("create kafka consumer: %w", err)
	}
	source := saramaSource{consumer: consumer}
	defer source.Close()

	var publisher replayPublisher
	if cfg.execute {
		producer, err := kafka.NewProducer(cfg.brokers, kafka.WithClientID("epic-cart-dlq-replay"))
		if err != nil {
			return replayStats{}, err
		}
		defer producer.Close()
		publisher = producer
	}

	return replay(ctx, cfg, client, source, publisher)
}

func newClientConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.ClientID = "epic-cart-dlq-replay"
	config.Consumer.Return.Errors = true
	return config
}

// replay обходит партиции по возрастанию номера, пока не исчерпан общий лимит.
func replay(ctx context.Context, cfg config, offsets offsetClient, source partitionSource, publisher replayPublisher) (replayStats, error) {
	var total replayStats
	if cfg.execute && publisher == nil {
		return total, errors.New("publisher is required in execute mode")
	}

	partitions, err := offsets.Partitions(cfg.sourceTopic)
	if err != nil {
		return total, fmt.Errorf("list partitions of %s: %w", cfg.sourceTopic, err)
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	logger := log.WithFields(log.Fields{
		"component":    "dlq-replay",
		"source_topic": cfg.sourceTopic,
		"execute":      cfg.execute,
	})
	logger.WithField("partitions", len(partitions)).Info("dlq replay started")

	for _, partition := range partitions {
		remaining := cfg.limit - total.scanned
		if remaining <= 0 {
			break
		}
		stats, err := replayPartition(ctx, cfg, offsets, source, publisher, partition, remaining, logger)
		total.add(stats)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func replayPartition(
	ctx context.Context,
	cfg config,
	offsets offsetClient,
	source partitionSource,
	publisher replayPublisher,
	partition int32,
	limit int,
	logger *log.Entry,
) (replayStats, error) {
	var stats replayStats

	oldest, err := offsets.GetOffset(cfg.sourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return stats, fmt.Errorf("oldest offset of partition %d: %w", partition, err)
	}
	// newest — offset следующего сообщения; читаем строго до него.
	newest, err := offsets.GetOffset(cfg.sourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return stats, fmt.Errorf("newest offset of partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return stats, nil
	}

	start := oldest
	if cfg.fromNewest && newest-int64(limit) > oldest {
		start = newest - int64(limit)
	}

	pc, err := source.ConsumePartition(cfg.sourceTopic, partition, start)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer pc.Close()

	idle := time.NewTimer(cfg.idleTimeout)
	defer idle.Stop()

	for stats.scanned < limit {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case <-idle.C:
			logger.WithField("partition", partition).Warn("partition is idle before reaching the newest offset")
			return stats, nil
		case consumerErr := <-pc.Errors():
			if consumerErr != nil {
				return stats, fmt.Errorf("partition %d: %w", partition, consumerErr)
			}
		case msg, ok := <-pc.Messages():
			if !ok {
				return stats, nil
			}
			if msg.Offset >= newest {
				return stats, nil
			}
			resetTimer(idle, cfg.idleTimeout)
			stats.scanned++

			entry := logger.WithFields(log.Fields{"partition": msg.Partition, "offset": msg.Offset})
			replayMsg, err := decodeDeadLetter(msg, cfg.ordersTopic)
			if err != nil {
				stats.skipped++
				entry.WithError(err).Warn("skip dead letter")
			} else if !cfg.execute {
				stats.replayed++
				entry.WithFields(log.Fields{
					"target_topic": replayMsg.topic,
					"key":          replayMsg.key,
				}).Info("dead letter would be replayed")
			} else {
				origin := fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset)
				if err := publisher.PublishRaw(replayMsg.topic, replayMsg.key, replayMsg.value,
					kafka.Header(headerReplayedFrom, origin),
				); err != nil {
					return stats, fmt.Errorf("replay %s: %w", origin, err)
				}
				stats.replayed++
			}

			if msg.Offset+1 >= newest {
				return stats, nil
			}
		}
	}
	return stats, nil
}

func resetTimer(timer *time.Timer, d time.Duration) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	timer.Reset(d)
}

// decodeDeadLetter восстанавливает исходное сообщение. Поддерживаются два формата DLQ:
// сообщения consumer'а оплат (kafka.DeadLetter) и события outbox (outbox.DeadLetter внутри конверта).
func decodeDeadLetter(msg *sarama.ConsumerMessage, ordersTopic string) (replayMessage, error) {
	var consumed kafka.DeadLetter
	if err := json.Unmarshal(msg.Value, &consumed); err != nil {
		return replayMessage{}, fmt.Errorf("decode dead letter: %w", err)
	}
	if consumed.OriginalValue != "" {
		topic := consumed.OriginalTopic
		if topic == "" {
			topic = headerValue(msg, kafka.HeaderOriginalTopic)
		}
		if topic == "" {
			return replayMessage{}, errors.New("dead letter has no original topic")
		}
		return replayMessage{topic: topic, key: consumed.OriginalKey, value: []byte(consumed.OriginalValue)}, nil
	}

	envelope, err := kafka.ParseOutboxEnvelope(msg)
	if err != nil || len(envelope.Payload) == 0 {
		return replayMessage{}, errNotReplayable
	}
	var letter outbox.DeadLetter
	if err := json.Unmarshal(envelope.Payload, &letter); err != nil {
		return replayMessage{}, fmt.Errorf("decode outbox dead letter: %w", err)
	}
	if len(letter.Payload) == 0 {
		return replayMessage{}, errNotReplayable
	}

	event := kafka.OutboxEnvelope{
		ID:            firstNonEmpty(letter.OutboxID, envelope.ID),
		AggregateType: firstNonEmpty(letter.AggregateType, envelope.AggregateType),
		AggregateID:   firstNonEmpty(letter.AggregateID, envelope.AggregateID),
		EventType:     firstNonEmpty(letter.EventType, envelope.EventType),
		Payload:       letter.Payload,
		PublishedAt:   time.Now().UTC(),
	}
	value, err := json.Marshal(event)
	if err != nil {
		return replayMessage{}, fmt.Errorf("encode order event: %w", err)
	}
	return replayMessage{topic: ordersTopic, key: firstNonEmpty(event.AggregateID, event.ID), value: value}, nil
}

func headerValue(msg *sarama.ConsumerMessage, key string) string {
	for _, header := range msg.Headers {
		if header != nil && string(header.Key) == key {
			return string(header.Value)
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
