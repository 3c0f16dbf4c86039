package app

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/epiccart/internal/messaging/kafka"
)

const (
	// StorageDriverMemory хранит всё в памяти процесса.
	StorageDriverMemory = "memory"
	// StorageDriverPostgres хранит заказы, outbox и idempotency в PostgreSQL.
	StorageDriverPostgres = "postgres"
	// StorageDriverMongo хранит заказы и каталог в MongoDB.
	StorageDriverMongo = "mongo"
)

const envPrefix = "EPICCART_"

const (
	envHTTPAddr                    = envPrefix + "HTTP_ADDR"
	envGRPCAddr                    = envPrefix + "GRPC_ADDR"
	envMetricsAddr                 = envPrefix + "METRICS_ADDR"
	envStorageDriver               = envPrefix + "STORAGE_DRIVER"
	envPostgresDSN                 = envPrefix + "POSTGRES_DSN"
	envPostgresAutoMigrate         = envPrefix + "POSTGRES_AUTO_MIGRATE"
	envMongoURI                    = envPrefix + "MONGO_URI"
	envMongoDatabase               = envPrefix + "MONGO_DATABASE"
	envRedisAddr                   = envPrefix + "REDIS_ADDR"
	envKafkaBrokers                = envPrefix + "KAFKA_BROKERS"
	envOrderEventsTopic            = envPrefix + "ORDER_EVENTS_TOPIC"
	envPaymentEventsTopic          = envPrefix + "PAYMENT_EVENTS_TOPIC"
	envPaymentConsumerGroup        = envPrefix + "PAYMENT_CONSUMER_GROUP"
	envOutboxPollInterval          = envPrefix + "OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize             = envPrefix + "OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts           = envPrefix + "OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay            = envPrefix + "OUTBOX_RETRY_DELAY"
	envIdempotencyCleanupInterval  = envPrefix + "IDEMPOTENCY_CLEANUP_INTERVAL"
	envIdempotencyCleanupBatchSize = envPrefix + "IDEMPOTENCY_CLEANUP_BATCH_SIZE"
	envJWTSecret                   = envPrefix + "JWT_SECRET"
	envPayPalClientID              = envPrefix + "PAYPAL_CLIENT_ID"
	envAllowedOrigins              = envPrefix + "ALLOWED_ORIGINS"
	envStrictTransitions           = envPrefix + "STRICT_TRANSITIONS"
	envCatalogSeedFile             = envPrefix + "CATALOG_SEED_FILE"
	envLogLevel                    = envPrefix + "LOG_LEVEL"
	envLogJSON                     = envPrefix + "LOG_JSON"
)

// Config описывает настройки запуска приложения.
// Списки (брокеры, origins) хранятся строками через запятую, чтобы Config оставался сравнимым.
type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool
	MongoURI            string
	MongoDatabase       string
	RedisAddr           string

	KafkaBrokers         string
	OrderEventsTopic     string
	PaymentEventsTopic   string
	PaymentConsumerGroup string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration

	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int

	JWTSecret         string
	PayPalClientID    string
	AllowedOrigins    string
	StrictTransitions bool
	CatalogSeedFile   string

	LogLevel string
	LogJSON  bool
}

// DefaultConfig возвращает настройки по умолчанию для локального запуска.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:                    ":5000",
		GRPCAddr:                    ":50051",
		MetricsAddr:                 ":9090",
		StorageDriver:               StorageDriverMemory,
		PostgresAutoMigrate:         true,
		MongoDatabase:               "epiccart",
		OrderEventsTopic:            kafka.TopicOrderEvents,
		PaymentEventsTopic:          kafka.TopicPaymentEvents,
		PaymentConsumerGroup:        "epiccart-payments",
		OutboxPollInterval:          time.Second,
		OutboxBatchSize:             100,
		OutboxMaxAttempts:           3,
		OutboxRetryDelay:            50 * time.Millisecond,
		IdempotencyCleanupInterval:  10 * time.Minute,
		IdempotencyCleanupBatchSize: 500,
		LogLevel:                    log.InfoLevel.String(),
	}
}

// EnvLookup совместим с os.LookupEnv.
type EnvLookup func(key string) (string, bool)

// LoadConfig накладывает переменные EPICCART_* на DefaultConfig.
// Некорректные значения не прерывают загрузку: остаётся значение по умолчанию, а причина
// возвращается в списке предупреждений.
func LoadConfig(lookup EnvLookup) (Config, []error) {
	cfg := DefaultConfig()
	var warnings []error

	str := func(key string, target *string) {
		if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
			*target = strings.TrimSpace(value)
		}
	}
	boolean := func(key string, target *bool) {
		value, ok := lookup(key)
		if !ok || strings.TrimSpace(value) == "" {
			return
		}
		parsed, err := parseBool(value)
		if err != nil {
			warnings = append(warnings, fmt.Errorf("%s: %w", key, err))
			return
		}
		*target = parsed
	}
	positiveInt := func(key string, target *int) {
		value, ok := lookup(key)
		if !ok || strings.TrimSpace(value) == "" {
			return
		}
		parsed, err := parseInt(value, func(v int) bool { return v > 0 }, "must be > 0")
		if err != nil {
			warnings = append(warnings, fmt.Errorf("%s: %w", key, err))
			return
		}
		*target = parsed
	}
	duration := func(key string, target *time.Duration, valid func(time.Duration) bool, rule string) {
		value, ok := lookup(key)
		if !ok || strings.TrimSpace(value) == "" {
			return
		}
		parsed, err := parseDuration(value, valid, rule)
		if err != nil {
			warnings = append(warnings, fmt.Errorf("%s: %w", key, err))
			return
		}
		*target = parsed
	}
	positive := func(v time.Duration) bool { return v > 0 }

	str(envHTTPAddr, &cfg.HTTPAddr)
	str(envGRPCAddr, &cfg.GRPCAddr)
	str(envMetricsAddr, &cfg.MetricsAddr)
	str(envStorageDriver, &cfg.StorageDriver)
	cfg.StorageDriver = strings.ToLower(cfg.StorageDriver)
	str(envPostgresDSN, &cfg.PostgresDSN)
	boolean(envPostgresAutoMigrate, &cfg.PostgresAutoMigrate)
	str(envMongoURI, &cfg.MongoURI)
	str(envMongoDatabase, &cfg.MongoDatabase)
	str(envRedisAddr, &cfg.RedisAddr)

	str(envKafkaBrokers, &cfg.KafkaBrokers)
	str(envOrderEventsTopic, &cfg.OrderEventsTopic)
	str(envPaymentEventsTopic, &cfg.PaymentEventsTopic)
	str(envPaymentConsumerGroup, &cfg.PaymentConsumerGroup)

	duration(envOutboxPollInterval, &cfg.OutboxPollInterval, positive, "must be > 0")
	positiveInt(envOutboxBatchSize, &cfg.OutboxBatchSize)
	positiveInt(envOutboxMaxAttempts, &cfg.OutboxMaxAttempts)
	duration(envOutboxRetryDelay, &cfg.OutboxRetryDelay, func(v time.Duration) bool { return v >= 0 }, "must be >= 0")
	duration(envIdempotencyCleanupInterval, &cfg.IdempotencyCleanupInterval, positive, "must be > 0")
	positiveInt(envIdempotencyCleanupBatchSize, &cfg.IdempotencyCleanupBatchSize)

	str(envJWTSecret, &cfg.JWTSecret)
	str(envPayPalClientID, &cfg.PayPalClientID)
	str(envAllowedOrigins, &cfg.AllowedOrigins)
	boolean(envStrictTransitions, &cfg.StrictTransitions)
	str(envCatalogSeedFile, &cfg.CatalogSeedFile)

	if value, ok := lookup(envLogLevel); ok && strings.TrimSpace(value) != "" {
		if _, err := log.ParseLevel(strings.TrimSpace(value)); err != nil {
			warnings = append(warnings, fmt.Errorf("%s: %w", envLogLevel, err))
		} else {
			cfg.LogLevel = strings.ToLower(strings.TrimSpace(value))
		}
	}
	boolean(envLogJSON, &cfg.LogJSON)

	return cfg, warnings
}

// Validate проверяет, что конфигурации хватает для запуска выбранного драйвера.
func (c Config) Validate() error {
	var errs []error

	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, fmt.Errorf("%s is required for storage driver %q", envPostgresDSN, c.StorageDriver))
		}
	case StorageDriverMongo:
		if c.MongoURI == "" {
			errs = append(errs, fmt.Errorf("%s is required for storage driver %q", envMongoURI, c.StorageDriver))
		}
		if c.MongoDatabase == "" {
			errs = append(errs, fmt.Errorf("%s is required for storage driver %q", envMongoDatabase, c.StorageDriver))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver: %q", c.StorageDriver))
	}

	if c.JWTSecret == "" {
		errs = append(errs, fmt.Errorf("%s is required", envJWTSecret))
	}
	if c.OutboxPollInterval <= 0 || c.OutboxBatchSize <= 0 || c.OutboxMaxAttempts <= 0 || c.OutboxRetryDelay < 0 {
		errs = append(errs, errors.New("outbox worker settings must be positive"))
	}
	if c.IdempotencyCleanupInterval <= 0 || c.IdempotencyCleanupBatchSize <= 0 {
		errs = append(errs, errors.New("idempotency cleanup settings must be positive"))
	}

	return errors.Join(errs...)
}

// Brokers возвращает список Kafka брокеров без пустых элементов.
func (c Config) Brokers() []string {
	return splitList(c.KafkaBrokers)
}

// Origins возвращает разрешённые CORS origins.
func (c Config) Origins() []string {
	return splitList(c.AllowedOrigins)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid int value %q: %w", raw, err)
	}
	if !valid(value) {
		return 0, fmt.Errorf("value %d %s", value, rule)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration value %q: %w", raw, err)
	}
	if !valid(value) {
		return 0, fmt.Errorf("value %s %s", value, rule)
	}
	return value, nil
}
