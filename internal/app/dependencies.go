package app

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/epiccart/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/epiccart/internal/health"
	"github.com/vladislavdragonenkov/epiccart/internal/storage/memory"
	"github.com/vladislavdragonenkov/epiccart/internal/storage/mongo"
	"github.com/vladislavdragonenkov/epiccart/internal/storage/postgres"
	"github.com/vladislavdragonenkov/epiccart/internal/storage/redis"
)

// runtimeDependencies — репозитории выбранного драйвера и проверки их доступности.
type runtimeDependencies struct {
	repo            domain.OrderRepository
	products        domain.ProductRepository
	outboxRepo      domain.OutboxRepository
	timelineRepo    domain.TimelineRepository
	idempotencyRepo domain.IdempotencyRepository

	// checkers попадают в /healthz и /readyz.
	checkers map[string]healthcheck.Checker
	closers  []func() error
}

func (d *runtimeDependencies) addCloser(fn func() error) {
	d.closers = append(d.closers, fn)
}

// closeFn закрывает соединения в обратном порядке открытия.
func (d *runtimeDependencies) closeFn() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}
	deps := &runtimeDependencies{checkers: make(map[string]healthcheck.Checker)}

	var err error
	switch cfg.StorageDriver {
	case StorageDriverMemory, "":
		initMemoryStorage(deps)
	case StorageDriverPostgres:
		err = initPostgresStorage(ctx, cfg, logger, deps)
	case StorageDriverMongo:
		err = initMongoStorage(ctx, cfg, logger, deps)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %q", cfg.StorageDriver)
	}
	if err != nil {
		_ = deps.closeFn()
		return nil, err
	}

	if cfg.RedisAddr != "" {
		client, err := redis.NewClient(ctx, cfg.RedisAddr)
		if err != nil {
			_ = deps.closeFn()
			return nil, fmt.Errorf("init redis idempotency store: %w", err)
		}
		deps.idempotencyRepo = redis.NewIdempotencyRepository(client)
		deps.checkers["redis"] = healthcheck.NewPingChecker("redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
		deps.addCloser(client.Close)
		logger.WithField("addr", cfg.RedisAddr).Info("idempotency keys are stored in redis")
	}

	if cfg.CatalogSeedFile != "" {
		count, err := seedCatalog(ctx, cfg.CatalogSeedFile, deps.products)
		if err != nil {
			_ = deps.closeFn()
			return nil, err
		}
		logger.WithFields(log.Fields{
			"file":     cfg.CatalogSeedFile,
			"products": count,
		}).Info("catalog seeded")
	}

	logger.WithField("storage_driver", cfg.StorageDriver).Info("storage initialized")
	return deps, nil
}

func initMemoryStorage(deps *runtimeDependencies) {
	deps.repo = memory.NewOrderRepository()
	deps.products = memory.NewProductRepository()
	deps.outboxRepo = memory.NewOutboxRepository()
	deps.timelineRepo = memory.NewTimelineRepository()
	deps.idempotencyRepo = memory.NewIdempotencyRepository()
}

func initPostgresStorage(ctx context.Context, cfg Config, logger *log.Entry, deps *runtimeDependencies) error {
	if cfg.PostgresDSN == "" {
		return errors.New("postgres storage requires a DSN")
	}

	store, err := postgres.Open(ctx, cfg.PostgresDSN, postgres.WithLogger(logger.WithField("component", "postgres")))
	if err != nil {
		return fmt.Errorf("init postgres storage: %w", err)
	}
	deps.addCloser(store.Close)

	if cfg.PostgresAutoMigrate {
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("apply postgres migrations: %w", err)
		}
	}

	deps.repo = postgres.NewOrderRepository(store)
	deps.products = postgres.NewProductRepository(store)
	deps.outboxRepo = postgres.NewOutboxRepository(store)
	deps.timelineRepo = postgres.NewTimelineRepository(store)
	deps.idempotencyRepo = postgres.NewIdempotencyRepository(store)
	deps.checkers["postgres"] = healthcheck.NewPingChecker("postgres", store.Ping)
	return nil
}

// initMongoStorage хранит заказы, каталог и таймлайн в MongoDB; outbox и idempotency
// остаются в памяти процесса, если не задан Redis.
func initMongoStorage(ctx context.Context, cfg Config, logger *log.Entry, deps *runtimeDependencies) error {
	if cfg.MongoURI == "" {
		return errors.New("mongo storage requires a URI")
	}

	store, err := mongo.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase, logger.WithField("component", "mongo"))
	if err != nil {
		return fmt.Errorf("init mongo storage: %w", err)
	}
	deps.addCloser(func() error { return store.Close(context.Background()) })

	if err := store.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("ensure mongo indexes: %w", err)
	}

	deps.repo = mongo.NewOrderRepository(store)
	deps.products = mongo.NewProductRepository(store)
	deps.timelineRepo = mongo.NewTimelineRepository(store)
	deps.outboxRepo = memory.NewOutboxRepository()
	deps.idempotencyRepo = memory.NewIdempotencyRepository()
	deps.checkers["mongo"] = healthcheck.NewPingChecker("mongo", store.Ping)

	logger.Warn("mongo driver keeps outbox in memory: undelivered events are lost on restart")
	return nil
}
