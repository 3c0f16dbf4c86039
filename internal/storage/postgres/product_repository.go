package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/epiccart/internal/domain"
)

type productRepository struct {
	db *sql.DB
}

// NewProductRepository создаёт каталог товаров поверх PostgreSQL.
func NewProductRepository(store *Store) domain.ProductRepository {
	return &productRepository{db: store.DB()}
}

func (r *productRepository) ResolveProducts(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	found := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, image, price, count_in_stock
		FROM products
		WHERE id = ANY($1)
	`, domain.UniqueIDs(ids))
	if err != nil {
		return nil, fmt.Errorf("resolve products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Image, &p.Price, &p.CountInStock); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		found[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return found, nil
}

func (r *productRepository) Get(ctx context.Context, id string) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var p domain.Product
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, image, price, count_in_stock
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Image, &p.Price, &p.CountInStock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

func (r *productRepository) Upsert(ctx context.Context, product domain.Product) error {
	if err := product.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO products (id, name, image, price, count_in_stock, updated_at)
		VALUES ($1,$2,$3,$4,$5,NOW())
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    image = EXCLUDED.image,
		    price = EXCLUDED.price,
		    count_in_stock = EXCLUDED.count_in_stock,
		    updated_at = NOW()
	`, product.ID, product.Name, product.Image, product.Price, product.CountInStock); err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}
	return nil
}

var _ domain.ProductRepository = (*productRepository)(nil)
