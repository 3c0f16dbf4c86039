package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	opTimeout          = 5 * time.Second
	defaultConnTimeout = 5 * time.Second

	ordersCollection   = "orders"
	productsCollection = "products"
	timelineCollection = "timeline_events"
)

var errStoreNotInitialized = errors.New("mongo store is not initialized")

// Store держит клиента MongoDB и выбранную базу.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	logger *log.Entry
}

// Connect подключается к MongoDB и проверяет доступность primary.
func Connect(ctx context.Context, uri, database string, logger *log.Entry) (*Store, error) {
	if database == "" {
		return nil, errors.New("mongo database name is required")
	}
	if logger == nil {
		logger = log.WithField("component", "mongo")
	}

	connectCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().
		ApplyURI(uri).
		SetAppName("epic-cart").
		SetServerSelectionTimeout(defaultConnTimeout))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	s := &Store{client: client, db: client.Database(database), logger: logger}
	if err := s.Ping(connectCtx); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	logger.WithField("database", database).Info("mongo connection established")
	return s, nil
}

// Database возвращает базу для низкоуровневого доступа.
func (s *Store) Database() *mongo.Database {
	return s.db
}

// Ping проверяет доступность primary; используется readiness-проверкой.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return errStoreNotInitialized
	}
	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	return s.client.Ping(pingCtx, readpref.Primary())
}

// EnsureIndexes создаёт индексы для выборок по владельцу, дате и заказу.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errStoreNotInitialized
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	indexes := map[string][]mongo.IndexModel{
		ordersCollection: {
			{Keys: bson.D{{Key: "user", Value: 1}, {Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "isPaid", Value: 1}, {Key: "paidAt", Value: 1}}},
		},
		timelineCollection: {
			{Keys: bson.D{{Key: "orderId", Value: 1}, {Key: "occurred", Value: 1}}},
		},
	}
	for collection, models := range indexes {
		if _, err := s.db.Collection(collection).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create %s indexes: %w", collection, err)
		}
	}
	return nil
}

// Close отключает клиента.
func (s *Store) Close(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}
