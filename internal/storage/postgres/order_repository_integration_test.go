package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/epiccart/internal/domain"
)

func TestOrderRepository_PostgresCreateGetAndList(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)
	ctx := context.Background()

	now := time.Now().UTC().Round(time.Microsecond)
	order1 := sampleOrder("order-1", "user-1", now.Add(-2*time.Minute))
	order2 := sampleOrder("order-2", "user-1", now.Add(-time.Minute))
	order3 := sampleOrder("order-3", "user-2", now)

	for _, o := range []domain.Order{order1, order2, order3} {
		if err := repo.Create(ctx, o); err != nil {
			t.Fatalf("create %s: %v", o.ID, err)
		}
	}

	got, err := repo.Get(ctx, order1.ID)
	if err != nil {
		t.Fatalf("get order1: %v", err)
	}
	if got.OwnerID != "user-1" || got.ShippingAddress != order1.ShippingAddress || got.PaymentMethod != "PayPal" {
		t.Fatalf("unexpected order payload: %+v", got)
	}
	if len(got.Items) != 2 || got.Items[0].ProductID != "p-1" || got.Items[1].ProductID != "p-2" {
		t.Fatalf("items must keep their order: %+v", got.Items)
	}
	if !got.Items[0].Price.Equal(decimal.RequireFromString("45.50")) {
		t.Fatalf("unexpected item price %s", got.Items[0].Price)
	}
	if !got.TotalPrice.Equal(order1.TotalPrice) || !got.TaxPrice.Equal(order1.TaxPrice) {
		t.Fatalf("prices changed on round trip: %+v", got.Pricing())
	}
	if errs := got.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("stored order must stay valid: %v", errs)
	}
	if got.ItemsPrice.Exponent() != -2 || got.TotalPrice.Exponent() != -2 || got.Items[1].Price.Exponent() != -2 {
		t.Fatalf("money must be stored with two places: %+v", got.Pricing())
	}
	if got.IsPaid || got.PaidAt != nil || got.PaymentResult != nil {
		t.Fatalf("new order must be unpaid: %+v", got)
	}

	mine, err := repo.ListByOwner(ctx, "user-1", 1)
	if err != nil {
		t.Fatalf("list by owner with limit: %v", err)
	}
	if len(mine) != 1 || mine[0].ID != order2.ID || len(mine[0].Items) != 2 {
		t.Fatalf("unexpected list result with limit: %+v", mine)
	}

	all, err := repo.List(ctx, 0)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 || all[0].ID != order3.ID {
		t.Fatalf("expected newest first, got %+v", all)
	}
}

func TestOrderRepository_PostgresTransitions(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)
	ctx := context.Background()

	now := time.Now().UTC().Round(time.Microsecond)
	if err := repo.Create(ctx, sampleOrder("order-tr", "user-1", now)); err != nil {
		t.Fatalf("create: %v", err)
	}

	strictDeliver := domain.DeliveryUpdate{DeliveredAt: now, RequirePaid: true, RequireUndelivered: true}
	if _, err := repo.MarkDelivered(ctx, "order-tr", strictDeliver); !errors.Is(err, domain.ErrOrderNotPaid) {
		t.Fatalf("expected ErrOrderNotPaid, got %v", err)
	}

	paidAt := now.Add(time.Minute)
	pay := domain.PaymentUpdate{
		PaidAt:        paidAt,
		Result:        domain.PaymentResult{ExternalID: "PAY-1", Status: "COMPLETED", UpdateTime: "2024-01-01T10:00:00Z", PayerEmail: "buyer@example.com"},
		RequireUnpaid: true,
	}
	paid, err := repo.MarkPaid(ctx, "order-tr", pay)
	if err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if !paid.IsPaid || paid.PaymentResult == nil || paid.PaymentResult.ExternalID != "PAY-1" {
		t.Fatalf("unexpected paid order: %+v", paid)
	}
	if _, err := repo.MarkPaid(ctx, "order-tr", pay); !errors.Is(err, domain.ErrOrderAlreadyPaid) {
		t.Fatalf("expected ErrOrderAlreadyPaid, got %v", err)
	}

	delivered, err := repo.MarkDelivered(ctx, "order-tr", strictDeliver)
	if err != nil {
		t.Fatalf("mark delivered: %v", err)
	}
	if delivered.State() != domain.OrderStateFulfilled {
		t.Fatalf("expected fulfilled, got %s", delivered.State())
	}

	reloaded, err := repo.Get(ctx, "order-tr")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !reloaded.PaidAt.Equal(paidAt) || reloaded.PaymentResult.PayerEmail != "buyer@example.com" || !reloaded.IsDelivered {
		t.Fatalf("transition not persisted: %+v", reloaded)
	}

	if _, err := repo.MarkPaid(ctx, "missing", pay); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderRepository_PostgresReports(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)
	ctx := context.Background()

	day1 := time.Date(2024, 3, 1, 23, 30, 0, 0, time.UTC)
	day2 := time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC)

	for i, id := range []string{"o-a", "o-b", "o-c"} {
		if err := repo.Create(ctx, sampleOrder(id, "user-1", day1.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	for id, at := range map[string]time.Time{"o-a": day1, "o-b": day2} {
		if _, err := repo.MarkPaid(ctx, id, domain.PaymentUpdate{PaidAt: at, Result: domain.PaymentResult{ExternalID: id}}); err != nil {
			t.Fatalf("pay %s: %v", id, err)
		}
	}

	count, err := repo.Count(ctx)
	if err != nil || count != 3 {
		t.Fatalf("expected 3 orders, got %d (%v)", count, err)
	}

	single := sampleOrder("x", "u", day1).TotalPrice
	total, err := repo.TotalSales(ctx)
	if err != nil {
		t.Fatalf("total sales: %v", err)
	}
	if !total.Equal(single.Mul(decimal.NewFromInt(3))) {
		t.Fatalf("unexpected total sales %s", total)
	}

	daily, err := repo.SalesByDate(ctx)
	if err != nil {
		t.Fatalf("sales by date: %v", err)
	}
	if len(daily) != 2 || daily[0].Date != "2024-03-01" || daily[1].Date != "2024-03-02" {
		t.Fatalf("unexpected daily sales %+v", daily)
	}
	if !daily[0].TotalSales.Equal(single) {
		t.Fatalf("unexpected day total %s", daily[0].TotalSales)
	}
}

func TestOrderRepository_PostgresErrors(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)
	ctx := context.Background()

	if _, err := repo.Get(ctx, "missing-order"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}

	base := sampleOrder("order-dup", "user-1", time.Now().UTC())
	if err := repo.Create(ctx, base); err != nil {
		t.Fatalf("create base order: %v", err)
	}
	if err := repo.Create(ctx, base); !errors.Is(err, domain.ErrOrderAlreadyExists) {
		t.Fatalf("expected ErrOrderAlreadyExists on duplicate create, got %v", err)
	}

	empty, err := NewOrderRepository(store).SalesByDate(ctx)
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected no paid days, got %+v (%v)", empty, err)
	}
}

func TestSQLStateHelpers(t *testing.T) {
	if !isUniqueViolation(&pgconn.PgError{Code: "23505"}) {
		t.Fatal("expected unique violation for code 23505")
	}
	if isUniqueViolation(&pgconn.PgError{Code: "22001"}) {
		t.Fatal("unexpected unique violation for non-unique code")
	}
	if !isForeignKeyViolation(&pgconn.PgError{Code: "23503"}) {
		t.Fatal("expected foreign key violation for code 23503")
	}
	if isUniqueViolation(errors.New("plain error")) {
		t.Fatal("plain error must not be unique violation")
	}
}

func TestPaymentColumns(t *testing.T) {
	ext, status, upd, email := paymentColumns(nil)
	if ext.Valid || status.Valid || upd.Valid || email.Valid {
		t.Fatal("nil result must map to NULL columns")
	}

	ext, _, _, email = paymentColumns(&domain.PaymentResult{ExternalID: "PAY-1"})
	if !ext.Valid || ext.String != "PAY-1" || !email.Valid || email.String != "" {
		t.Fatalf("unexpected columns: %+v %+v", ext, email)
	}
}
