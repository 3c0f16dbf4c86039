package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/epiccart/internal/domain"
	"github.com/vladislavdragonenkov/epiccart/internal/storage/memory"
)

func TestInitRuntimeDependencies_Memory(t *testing.T) {
	t.Parallel()

	deps, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: StorageDriverMemory,
	}, log.WithField("test", "memory-storage"))
	require.NoError(t, err)

	assert.NotNil(t, deps.repo)
	assert.NotNil(t, deps.products)
	assert.NotNil(t, deps.outboxRepo)
	assert.NotNil(t, deps.timelineRepo)
	assert.NotNil(t, deps.idempotencyRepo)
	assert.Empty(t, deps.checkers, "memory storage has nothing to probe")
	assert.NoError(t, deps.closeFn())
}

func TestInitRuntimeDependencies_PostgresRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: StorageDriverPostgres,
	}, log.WithField("test", "postgres-missing-dsn"))
	require.Error(t, err)
}

func TestInitRuntimeDependencies_MongoRequiresURI(t *testing.T) {
	t.Parallel()

	_, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: StorageDriverMongo,
		MongoDatabase: "epiccart",
	}, log.WithField("test", "mongo-missing-uri"))
	require.Error(t, err)
}

func TestInitRuntimeDependencies_UnsupportedDriver(t *testing.T) {
	t.Parallel()

	_, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: "sqlite",
	}, log.WithField("test", "unsupported-driver"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported storage driver")
}

func TestInitRuntimeDependencies_SeedsCatalog(t *testing.T) {
	t.Parallel()

	path := writeSeedFile(t, `[
		{"_id": "p-1", "name": "Airpods", "image": "/images/airpods.jpg", "price": "89.99", "countInStock": 10},
		{"_id": "p-2", "name": "Camera", "image": "/images/camera.jpg", "price": 929.99, "countInStock": 0}
	]`)

	deps, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver:   StorageDriverMemory,
		CatalogSeedFile: path,
	}, log.WithField("test", "seed"))
	require.NoError(t, err)

	found, err := deps.products.ResolveProducts(context.Background(), []string{"p-1", "p-2", "p-3"})
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.True(t, found["p-1"].Price.Equal(decimal.RequireFromString("89.99")))
	assert.Equal(t, "Camera", found["p-2"].Name)
}

func TestInitRuntimeDependencies_BadSeedFile(t *testing.T) {
	t.Parallel()

	_, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver:   StorageDriverMemory,
		CatalogSeedFile: filepath.Join(t.TempDir(), "missing.json"),
	}, log.WithField("test", "seed-missing"))
	require.Error(t, err)
}

func TestSeedCatalog(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("invalid json", func(t *testing.T) {
		_, err := seedCatalog(ctx, writeSeedFile(t, `{"_id": 1}`), memory.NewProductRepository())
		require.Error(t, err)
	})

	t.Run("invalid product", func(t *testing.T) {
		count, err := seedCatalog(ctx, writeSeedFile(t, `[
			{"_id": "ok", "name": "Mouse", "price": "10"},
			{"_id": "", "name": "No id", "price": "1"}
		]`), memory.NewProductRepository())
		require.Error(t, err)
		assert.Equal(t, 1, count)
		assert.True(t, errors.Is(err, domain.ErrInvalidRequest), "unexpected error: %v", err)
	})

	t.Run("nil catalog", func(t *testing.T) {
		_, err := seedCatalog(ctx, writeSeedFile(t, `[]`), nil)
		require.Error(t, err)
	})
}

func TestRuntimeDependencies_CloseFnOrder(t *testing.T) {
	t.Parallel()

	var order []string
	deps := &runtimeDependencies{}
	deps.addCloser(func() error { order = append(order, "first"); return nil })
	deps.addCloser(func() error { order = append(order, "second"); return errors.New("boom") })

	err := deps.closeFn()
	require.Error(t, err)
	assert.Equal(t, []string{"second", "first"}, order)
	assert.NoError(t, deps.closeFn(), "second close must be a no-op")
}

func writeSeedFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "products.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}
