package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/epiccart/internal/domain"
)

const orderColumns = `
	id, owner_id,
	shipping_address, shipping_city, shipping_postal_code, shipping_country,
	payment_method,
	items_price, shipping_price, tax_price, total_price,
	is_paid, paid_at,
	payment_external_id, payment_status, payment_update_time, payment_payer_email,
	is_delivered, delivered_at,
	created_at, updated_at`

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

func (r *orderRepository) Create(ctx context.Context, order domain.Order) (err error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	extID, payStatus, updTime, payerMail := paymentColumns(order.PaymentResult)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
	`,
		order.ID, order.OwnerID,
		order.ShippingAddress.Address, order.ShippingAddress.City,
		order.ShippingAddress.PostalCode, order.ShippingAddress.Country,
		order.PaymentMethod,
		order.ItemsPrice, order.ShippingPrice, order.TaxPrice, order.TotalPrice,
		order.IsPaid, order.PaidAt,
		extID, payStatus, updTime, payerMail,
		order.IsDelivered, order.DeliveredAt,
		order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrOrderAlreadyExists
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for pos, item := range order.Items {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, position, product_id, name, image, price, qty)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, order.ID, pos, item.ProductID, item.Name, item.Image, item.Price, item.Qty); err != nil {
			return fmt.Errorf("insert order item %d: %w", pos, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create order: %w", err)
	}
	return nil
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return r.getWith(ctx, r.db, id, false)
}

func (r *orderRepository) ListByOwner(ctx context.Context, ownerID string, limit int) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := `SELECT ` + orderColumns + ` FROM orders WHERE owner_id = $1 ORDER BY created_at DESC, id DESC`
	args := []any{ownerID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	return r.list(ctx, query, args...)
}

func (r *orderRepository) List(ctx context.Context, limit int) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC, id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	return r.list(ctx, query, args...)
}

func (r *orderRepository) MarkPaid(ctx context.Context, id string, update domain.PaymentUpdate) (domain.Order, error) {
	return r.mutate(ctx, id, func(o *domain.Order) error { return o.ApplyPayment(update) })
}

func (r *orderRepository) MarkDelivered(ctx context.Context, id string, update domain.DeliveryUpdate) (domain.Order, error) {
	return r.mutate(ctx, id, func(o *domain.Order) error { return o.ApplyDelivery(update) })
}

// mutate блокирует строку заказа на время транзакции, применяет переход и сохраняет флаги.
func (r *orderRepository) mutate(ctx context.Context, id string, apply func(o *domain.Order) error) (order domain.Order, err error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	order, err = r.getWith(ctx, tx, id, true)
	if err != nil {
		return domain.Order{}, err
	}
	if err = apply(&order); err != nil {
		return domain.Order{}, err
	}

	extID, payStatus, updTime, payerMail := paymentColumns(order.PaymentResult)
	if _, err = tx.ExecContext(ctx, `
		UPDATE orders
		SET is_paid = $2,
		    paid_at = $3,
		    payment_external_id = $4,
		    payment_status = $5,
		    payment_update_time = $6,
		    payment_payer_email = $7,
		    is_delivered = $8,
		    delivered_at = $9,
		    updated_at = $10
		WHERE id = $1
	`,
		order.ID,
		order.IsPaid, order.PaidAt,
		extID, payStatus, updTime, payerMail,
		order.IsDelivered, order.DeliveredAt,
		order.UpdatedAt,
	); err != nil {
		return domain.Order{}, fmt.Errorf("update order: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return domain.Order{}, fmt.Errorf("commit order update: %w", err)
	}
	return order, nil
}

func (r *orderRepository) Count(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var count int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}
	return count, nil
}

func (r *orderRepository) TotalSales(ctx context.Context) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var total decimal.Decimal
	if err := r.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(total_price), 0) FROM orders`).Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("sum total sales: %w", err)
	}
	return total, nil
}

func (r *orderRepository) SalesByDate(ctx context.Context) ([]domain.DailySales, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT to_char(paid_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, SUM(total_price)
		FROM orders
		WHERE is_paid AND paid_at IS NOT NULL
		GROUP BY day
		ORDER BY day ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sales by date: %w", err)
	}
	defer rows.Close()

	result := make([]domain.DailySales, 0)
	for rows.Next() {
		var day domain.DailySales
		if err := rows.Scan(&day.Date, &day.TotalSales); err != nil {
			return nil, fmt.Errorf("scan daily sales: %w", err)
		}
		result = append(result, day)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily sales: %w", err)
	}
	return result, nil
}

func (r *orderRepository) getWith(ctx context.Context, q querier, id string, forUpdate bool) (domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	order, err := scanOrder(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("get order: %w", err)
	}

	items, err := loadItems(ctx, q, []string{order.ID})
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items[order.ID]
	return order, nil
}

func (r *orderRepository) list(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	ids := make([]string, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
		ids = append(ids, order.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	if len(orders) == 0 {
		return orders, nil
	}

	items, err := loadItems(ctx, r.db, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}
	return orders, nil
}

func loadItems(ctx context.Context, q querier, orderIDs []string) (map[string][]domain.OrderItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT order_id, product_id, name, image, price, qty
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, position
	`, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	result := make(map[string][]domain.OrderItem, len(orderIDs))
	for rows.Next() {
		var (
			orderID string
			item    domain.OrderItem
		)
		if err := rows.Scan(&orderID, &item.ProductID, &item.Name, &item.Image, &item.Price, &item.Qty); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		result[orderID] = append(result[orderID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order                                domain.Order
		paidAt, deliveredAt                  sql.NullTime
		extID, payStatus, updTime, payerMail sql.NullString
	)

	if err := row.Scan(
		&order.ID, &order.OwnerID,
		&order.ShippingAddress.Address, &order.ShippingAddress.City,
		&order.ShippingAddress.PostalCode, &order.ShippingAddress.Country,
		&order.PaymentMethod,
		&order.ItemsPrice, &order.ShippingPrice, &order.TaxPrice, &order.TotalPrice,
		&order.IsPaid, &paidAt,
		&extID, &payStatus, &updTime, &payerMail,
		&order.IsDelivered, &deliveredAt,
		&order.CreatedAt, &order.UpdatedAt,
	); err != nil {
		return domain.Order{}, err
	}

	if paidAt.Valid {
		t := paidAt.Time.UTC()
		order.PaidAt = &t
	}
	if deliveredAt.Valid {
		t := deliveredAt.Time.UTC()
		order.DeliveredAt = &t
	}
	if order.IsPaid || extID.Valid {
		order.PaymentResult = &domain.PaymentResult{
			ExternalID: extID.String,
			Status:     payStatus.String,
			UpdateTime: updTime.String,
			PayerEmail: payerMail.String,
		}
	}
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()
	return order, nil
}

// paymentColumns раскладывает результат оплаты по колонкам; nil даёт NULL во всех четырёх.
func paymentColumns(result *domain.PaymentResult) (extID, status, updateTime, payerEmail sql.NullString) {
	if result == nil {
		return
	}
	return sql.NullString{String: result.ExternalID, Valid: true},
		sql.NullString{String: result.Status, Valid: true},
		sql.NullString{String: result.UpdateTime, Valid: true},
		sql.NullString{String: result.PayerEmail, Valid: true}
}

func isUniqueViolation(err error) bool {
	return hasSQLState(err, "23505")
}

func isForeignKeyViolation(err error) bool {
	return hasSQLState(err, "23503")
}

func hasSQLState(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

var _ domain.OrderRepository = (*orderRepository)(nil)
