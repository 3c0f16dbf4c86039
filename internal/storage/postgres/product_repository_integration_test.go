package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/epiccart/internal/domain"
)

func TestProductRepository_PostgresUpsertAndResolve(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewProductRepository(store)
	ctx := context.Background()

	if err := repo.Upsert(ctx, domain.Product{ID: "p-1", Name: "Keyboard", Price: decimal.RequireFromString("45.50"), CountInStock: 3}); err != nil {
		t.Fatalf("upsert p-1: %v", err)
	}
	if err := repo.Upsert(ctx, domain.Product{ID: "p-2", Name: "Mouse", Price: decimal.NewFromInt(12)}); err != nil {
		t.Fatalf("upsert p-2: %v", err)
	}
	if err := repo.Upsert(ctx, domain.Product{ID: "p-1", Name: "Keyboard v2", Price: decimal.NewFromInt(50), CountInStock: 1}); err != nil {
		t.Fatalf("upsert p-1 again: %v", err)
	}

	got, err := repo.Get(ctx, "p-1")
	if err != nil {
		t.Fatalf("get p-1: %v", err)
	}
	if got.Name != "Keyboard v2" || !got.Price.Equal(decimal.NewFromInt(50)) || got.CountInStock != 1 {
		t.Fatalf("upsert must overwrite: %+v", got)
	}

	found, err := repo.ResolveProducts(ctx, []string{"p-1", "p-2", "p-1", "missing"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("expected 2 products, got %+v", found)
	}
	if _, ok := found["missing"]; ok {
		t.Fatal("missing product must not be resolved")
	}

	empty, err := repo.ResolveProducts(ctx, nil)
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty result, got %+v (%v)", empty, err)
	}
}

func TestProductRepository_PostgresErrors(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewProductRepository(store)
	ctx := context.Background()

	if _, err := repo.Get(ctx, "nope"); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
	if err := repo.Upsert(ctx, domain.Product{ID: "neg", Price: decimal.NewFromInt(-1)}); !errors.Is(err, domain.ErrItemPriceInvalid) {
		t.Fatalf("expected ErrItemPriceInvalid, got %v", err)
	}
}
