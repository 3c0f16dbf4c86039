package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/epiccart/internal/domain"
)

type orderRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Order
}

// NewOrderRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewOrderRepository() domain.OrderRepository {
	return &orderRepositoryInMemory{
		items: make(map[string]domain.Order),
	}
}

// Create сохраняет новый заказ, если ID ещё не занят.
func (r *orderRepositoryInMemory) Create(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[order.ID]; exists {
		return domain.ErrOrderAlreadyExists
	}
	// Сохраняем копию, чтобы избежать непредсказуемых мутаций извне.
	r.items[order.ID] = order.Clone()
	return nil
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (r *orderRepositoryInMemory) Get(_ context.Context, id string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.items[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order.Clone(), nil
}

// ListByOwner возвращает заказы пользователя, ограничивая выборку limit (если >0).
func (r *orderRepositoryInMemory) ListByOwner(_ context.Context, ownerID string, limit int) ([]domain.Order, error) {
	return r.list(func(o domain.Order) bool { return o.OwnerID == ownerID }, limit), nil
}

// List возвращает все заказы.
func (r *orderRepositoryInMemory) List(_ context.Context, limit int) ([]domain.Order, error) {
	return r.list(func(domain.Order) bool { return true }, limit), nil
}

func (r *orderRepositoryInMemory) list(match func(domain.Order) bool, limit int) []domain.Order {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Order, 0, len(r.items))
	for _, order := range r.items {
		if !match(order) {
			continue
		}
		result = append(result, order.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result
}

// MarkPaid применяет оплату под блокировкой.
func (r *orderRepositoryInMemory) MarkPaid(_ context.Context, id string, update domain.PaymentUpdate) (domain.Order, error) {
	return r.mutate(id, func(o *domain.Order) error { return o.ApplyPayment(update) })
}

// MarkDelivered применяет доставку под блокировкой.
func (r *orderRepositoryInMemory) MarkDelivered(_ context.Context, id string, update domain.DeliveryUpdate) (domain.Order, error) {
	return r.mutate(id, func(o *domain.Order) error { return o.ApplyDelivery(update) })
}

func (r *orderRepositoryInMemory) mutate(id string, apply func(o *domain.Order) error) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}

	next := current.Clone()
	if err := apply(&next); err != nil {
		return domain.Order{}, err
	}
	r.items[id] = next
	return next.Clone(), nil
}

// Count возвращает количество заказов.
func (r *orderRepositoryInMemory) Count(_ context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return int64(len(r.items)), nil
}

// TotalSales суммирует итог по всем заказам.
func (r *orderRepositoryInMemory) TotalSales(_ context.Context) (decimal.Decimal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := decimal.Zero
	for _, order := range r.items {
		total = total.Add(order.TotalPrice)
	}
	return total, nil
}

// SalesByDate группирует оплаченные заказы по дню оплаты.
func (r *orderRepositoryInMemory) SalesByDate(_ context.Context) ([]domain.DailySales, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byDate := make(map[string]decimal.Decimal)
	for _, order := range r.items {
		if !order.IsPaid || order.PaidAt == nil {
			continue
		}
		day := order.PaidAt.UTC().Format("2006-01-02")
		byDate[day] = byDate[day].Add(order.TotalPrice)
	}

	result := make([]domain.DailySales, 0, len(byDate))
	for day, total := range byDate {
		result = append(result, domain.DailySales{Date: day, TotalSales: total})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date < result[j].Date })

	return result, nil
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
