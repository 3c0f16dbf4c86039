package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/epiccart/internal/domain"
)

type productRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Product
}

// NewProductRepository создаёт in-memory каталог, опционально заполненный товарами.
func NewProductRepository(products ...domain.Product) domain.ProductRepository {
	repo := &productRepositoryInMemory{items: make(map[string]domain.Product, len(products))}
	for _, p := range products {
		repo.items[p.ID] = p
	}
	return repo
}

func (r *productRepositoryInMemory) ResolveProducts(_ context.Context, ids []string) (map[string]domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	found := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := r.items[id]; ok {
			found[id] = p
		}
	}
	return found, nil
}

func (r *productRepositoryInMemory) Get(_ context.Context, id string) (domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.items[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return p, nil
}

func (r *productRepositoryInMemory) Upsert(_ context.Context, product domain.Product) error {
	if err := product.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[product.ID] = product
	return nil
}

var _ domain.ProductRepository = (*productRepositoryInMemory)(nil)
