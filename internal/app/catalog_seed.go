package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/epiccart/internal/domain"
)

// seedProduct — запись файла каталога; формат совпадает с документом products.
type seedProduct struct {
	ID           string          `json:"_id"`
	Name         string          `json:"name"`
	Image        string          `json:"image"`
	Price        decimal.Decimal `json:"price"`
	CountInStock int             `json:"countInStock"`
}

// seedCatalog загружает товары из JSON-файла в каталог. Существующие записи перезаписываются.
func seedCatalog(ctx context.Context, path string, products domain.ProductRepository) (int, error) {
	if products == nil {
		return 0, errors.New("catalog is not initialized")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read catalog seed %s: %w", path, err)
	}

	var items []seedProduct
	if err := json.Unmarshal(raw, &items); err != nil {
		return 0, fmt.Errorf("decode catalog seed %s: %w", path, err)
	}

	for i, item := range items {
		product := domain.Product{
			ID:           item.ID,
			Name:         item.Name,
			Image:        item.Image,
			Price:        item.Price,
			CountInStock: item.CountInStock,
		}
		if err := products.Upsert(ctx, product); err != nil {
			return i, fmt.Errorf("seed product %q: %w", item.ID, err)
		}
	}
	return len(items), nil
}
