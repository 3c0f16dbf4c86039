package mongo

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/epiccart/internal/domain"
)

const defaultLocalIntegrationURI = "mongodb://localhost:27017"

func openStoreForIntegrationTest(t *testing.T) *Store {
	t.Helper()

	uri := strings.TrimSpace(os.Getenv("EPICCART_MONGO_TEST_URI"))
	if uri == "" {
		uri = defaultLocalIntegrationURI
	}
	database := fmt.Sprintf("epiccart_test_%d", time.Now().UnixNano())

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	store, err := Connect(ctx, uri, database, nil)
	if err != nil {
		t.Skipf("mongo is not available for integration tests: %v", err)
	}
	require.NoError(t, store.EnsureIndexes(ctx))

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = store.Database().Drop(ctx)
		_ = store.Close(ctx)
	})
	return store
}

func TestOrderRepository_MongoLifecycle(t *testing.T) {
	store := openStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)
	ctx := context.Background()

	// Mongo хранит время с точностью до миллисекунды.
	now := time.Now().UTC().Truncate(time.Millisecond)
	first := sampleOrder("order-1", "user-1", now.Add(-time.Minute))
	second := sampleOrder("order-2", "user-1", now)
	require.NoError(t, repo.Create(ctx, first))
	require.NoError(t, repo.Create(ctx, second))
	require.ErrorIs(t, repo.Create(ctx, first), domain.ErrOrderAlreadyExists)

	got, err := repo.Get(ctx, "order-1")
	require.NoError(t, err)
	require.True(t, got.TotalPrice.Equal(first.TotalPrice))
	require.Len(t, got.Items, 2)

	_, err = repo.Get(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrOrderNotFound)

	mine, err := repo.ListByOwner(ctx, "user-1", 1)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.Equal(t, "order-2", mine[0].ID)

	_, err = repo.MarkDelivered(ctx, "order-1", domain.DeliveryUpdate{DeliveredAt: now, RequirePaid: true})
	require.ErrorIs(t, err, domain.ErrOrderNotPaid)

	pay := domain.PaymentUpdate{PaidAt: now, Result: domain.PaymentResult{ExternalID: "PAY-1"}, RequireUnpaid: true}
	paid, err := repo.MarkPaid(ctx, "order-1", pay)
	require.NoError(t, err)
	require.True(t, paid.IsPaid)
	require.Equal(t, "PAY-1", paid.PaymentResult.ExternalID)

	_, err = repo.MarkPaid(ctx, "order-1", pay)
	require.ErrorIs(t, err, domain.ErrOrderAlreadyPaid)
	_, err = repo.MarkPaid(ctx, "missing", pay)
	require.ErrorIs(t, err, domain.ErrOrderNotFound)

	delivered, err := repo.MarkDelivered(ctx, "order-1", domain.DeliveryUpdate{DeliveredAt: now, RequirePaid: true, RequireUndelivered: true})
	require.NoError(t, err)
	require.Equal(t, domain.OrderStateFulfilled, delivered.State())

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)

	total, err := repo.TotalSales(ctx)
	require.NoError(t, err)
	require.True(t, total.Equal(first.TotalPrice.Add(second.TotalPrice)), "total %s", total)

	daily, err := repo.SalesByDate(ctx)
	require.NoError(t, err)
	require.Len(t, daily, 1)
	require.Equal(t, now.Format("2006-01-02"), daily[0].Date)
	require.True(t, daily[0].TotalSales.Equal(first.TotalPrice))
}

func TestProductAndTimelineRepositories_Mongo(t *testing.T) {
	store := openStoreForIntegrationTest(t)
	products := NewProductRepository(store)
	timeline := NewTimelineRepository(store)
	ctx := context.Background()

	require.NoError(t, products.Upsert(ctx, domain.Product{ID: "p-1", Name: "Keyboard", Price: decimal.NewFromInt(40)}))
	require.NoError(t, products.Upsert(ctx, domain.Product{ID: "p-1", Name: "Keyboard", Price: decimal.NewFromInt(45)}))

	found, err := products.ResolveProducts(ctx, []string{"p-1", "missing"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.True(t, found["p-1"].Price.Equal(decimal.NewFromInt(45)))

	_, err = products.Get(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrProductNotFound)

	at := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, timeline.Append(ctx, domain.TimelineEvent{OrderID: "o-1", Type: domain.TimelineOrderPaid, Occurred: at.Add(time.Second)}))
	require.NoError(t, timeline.Append(ctx, domain.TimelineEvent{OrderID: "o-1", Type: domain.TimelineOrderCreated, Occurred: at}))

	events, err := timeline.List(ctx, "o-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, domain.TimelineOrderCreated, events[0].Type)
}

func TestStore_NilGuards(t *testing.T) {
	var store *Store
	require.ErrorIs(t, store.Ping(context.Background()), errStoreNotInitialized)
	require.ErrorIs(t, store.EnsureIndexes(context.Background()), errStoreNotInitialized)
	require.NoError(t, store.Close(context.Background()))

	_, err := Connect(context.Background(), defaultLocalIntegrationURI, "", nil)
	require.Error(t, err)
}
