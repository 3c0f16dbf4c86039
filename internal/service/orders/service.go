// Package orders реализует жизненный цикл заказа: создание с расчётом цен, оплату и доставку.
package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/epiccart/internal/domain"
	"github.com/vladislavdragonenkov/epiccart/internal/metrics"
	"github.com/vladislavdragonenkov/epiccart/internal/pricing"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// RequestedItem — позиция запроса: какой товар и сколько. Цена клиента не принимается.
type RequestedItem struct {
	ProductID string
	Qty       int
}

// CreateOrderInput — вход операции создания заказа. OwnerID берётся из проверенной личности.
type CreateOrderInput struct {
	OwnerID         string
	Items           []RequestedItem
	ShippingAddress domain.ShippingAddress
	PaymentMethod   string
}

// Service управляет заказами поверх репозиториев.
type Service struct {
	repo     domain.OrderRepository
	catalog  domain.Catalog
	timeline domain.TimelineRepository
	outbox   domain.OutboxRepository
	metrics  *metrics.OrderMetrics
	logger   *log.Entry
	strict   bool
	now      func() time.Time
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт logger сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTimeline включает запись событий таймлайна.
func WithTimeline(timeline domain.TimelineRepository) Option {
	return func(s *Service) { s.timeline = timeline }
}

// WithOutbox включает постановку событий в outbox.
func WithOutbox(outbox domain.OutboxRepository) Option {
	return func(s *Service) { s.outbox = outbox }
}

// WithMetrics задаёт метрики.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithStrictTransitions запрещает повторную оплату, доставку до оплаты и повторную доставку.
func WithStrictTransitions(strict bool) Option {
	return func(s *Service) { s.strict = strict }
}

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService конструирует сервис с зависимостями.
func NewService(repo domain.OrderRepository, catalog domain.Catalog, opts ...Option) *Service {
	s := &Service{
		repo:    repo,
		catalog: catalog,
		logger:  log.WithField("component", "orders"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create проверяет запрос, фиксирует цены каталога, считает стоимость и сохраняет заказ.
func (s *Service) Create(ctx context.Context, in CreateOrderInput) (order domain.Order, err error) {
	defer s.observe(domain.OrderOperationCreate, time.Now(), &err)

	ownerID := strings.TrimSpace(in.OwnerID)
	if ownerID == "" {
		return domain.Order{}, domain.ErrOwnerRequired
	}
	if len(in.Items) == 0 {
		return domain.Order{}, domain.ErrItemsRequired
	}

	ids := make([]string, 0, len(in.Items))
	for _, item := range in.Items {
		id := strings.TrimSpace(item.ProductID)
		if id == "" {
			return domain.Order{}, domain.ErrItemProductRequired
		}
		if item.Qty <= 0 {
			return domain.Order{}, fmt.Errorf("%w: product %s qty %d", domain.ErrItemQtyInvalid, id, item.Qty)
		}
		ids = append(ids, id)
	}

	products, err := s.catalog.ResolveProducts(ctx, domain.UniqueIDs(ids))
	if err != nil {
		return domain.Order{}, domain.WrapPersistence("resolve products", err)
	}
	if missing := domain.MissingProductIDs(ids, products); len(missing) > 0 {
		return domain.Order{}, &domain.ProductsNotFoundError{IDs: missing}
	}

	now := s.now().UTC()
	order = domain.Order{
		ID:              uuid.NewString(),
		OwnerID:         ownerID,
		Items:           make([]domain.OrderItem, 0, len(ids)),
		ShippingAddress: in.ShippingAddress,
		PaymentMethod:   strings.TrimSpace(in.PaymentMethod),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for i, id := range ids {
		product := products[id]
		if product.Price.IsNegative() {
			return domain.Order{}, fmt.Errorf("%w: product %s", domain.ErrItemPriceInvalid, id)
		}
		order.Items = append(order.Items, domain.OrderItem{
			ProductID: id,
			Name:      product.Name,
			Image:     product.Image,
			Price:     product.Price,
			Qty:       in.Items[i].Qty,
		})
	}
	order.ApplyPricing(pricing.Calculate(order.PricingLines()))

	if err := s.repo.Create(ctx, order); err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Error("failed to create order")
		return domain.Order{}, domain.WrapPersistence("create order", err)
	}

	s.appendTimeline(ctx, order.ID, domain.TimelineOrderCreated, "", now)
	s.enqueueEvent(ctx, domain.OrderEventCreated, order, now)
	if s.metrics != nil {
		s.metrics.RecordOrderCreated(order.TotalPrice)
	}

	s.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"owner_id": order.OwnerID,
		"items":    len(order.Items),
		"total":    order.TotalPrice.StringFixed(2),
	}).Info("order created")

	return order, nil
}

// Pay применяет подтверждение оплаты одной атомарной операцией хранилища.
func (s *Service) Pay(ctx context.Context, orderID string, result domain.PaymentResult) (order domain.Order, err error) {
	defer s.observe(domain.OrderOperationPay, time.Now(), &err)

	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, domain.ErrOrderIDRequired
	}

	now := s.now().UTC()
	order, err = s.repo.MarkPaid(ctx, orderID, domain.PaymentUpdate{
		PaidAt:        now,
		Result:        result,
		RequireUnpaid: s.strict,
	})
	if err != nil {
		return domain.Order{}, s.transitionError("pay", orderID, err)
	}

	s.appendTimeline(ctx, order.ID, domain.TimelineOrderPaid, result.ExternalID, now)
	s.enqueueEvent(ctx, domain.OrderEventPaid, order, now)
	if s.metrics != nil {
		s.metrics.RecordOrderPaid()
	}

	s.logger.WithFields(log.Fields{
		"order_id":   order.ID,
		"payment_id": result.ExternalID,
		"status":     result.Status,
	}).Info("order paid")

	return order, nil
}

// Deliver отмечает заказ доставленным.
func (s *Service) Deliver(ctx context.Context, orderID string) (order domain.Order, err error) {
	defer s.observe(domain.OrderOperationDeliver, time.Now(), &err)

	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, domain.ErrOrderIDRequired
	}

	now := s.now().UTC()
	order, err = s.repo.MarkDelivered(ctx, orderID, domain.DeliveryUpdate{
		DeliveredAt:        now,
		RequirePaid:        s.strict,
		RequireUndelivered: s.strict,
	})
	if err != nil {
		return domain.Order{}, s.transitionError("deliver", orderID, err)
	}

	reason := ""
	if !order.IsPaid {
		reason = "delivered before payment"
		s.logger.WithField("order_id", order.ID).Warn("order delivered before payment")
	}
	s.appendTimeline(ctx, order.ID, domain.TimelineOrderDelivered, reason, now)
	s.enqueueEvent(ctx, domain.OrderEventDelivered, order, now)
	if s.metrics != nil {
		s.metrics.RecordOrderDelivered()
	}

	s.logger.WithField("order_id", order.ID).Info("order delivered")
	return order, nil
}

// Get возвращает заказ по идентификатору.
func (s *Service) Get(ctx context.Context, orderID string) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, domain.ErrOrderIDRequired
	}

	order, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, domain.WrapPersistence("get order", err)
	}
	return order, nil
}

// ListByOwner возвращает заказы пользователя, новые первыми.
func (s *Service) ListByOwner(ctx context.Context, ownerID string, limit int) ([]domain.Order, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, domain.ErrOwnerRequired
	}

	orders, err := s.repo.ListByOwner(ctx, ownerID, normalizeLimit(limit))
	if err != nil {
		return nil, domain.WrapPersistence("list orders by owner", err)
	}
	return orders, nil
}

// List возвращает все заказы (для администратора).
func (s *Service) List(ctx context.Context, limit int) ([]domain.Order, error) {
	orders, err := s.repo.List(ctx, normalizeLimit(limit))
	if err != nil {
		return nil, domain.WrapPersistence("list orders", err)
	}
	return orders, nil
}

// Timeline возвращает события заказа в хронологическом порядке.
func (s *Service) Timeline(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	if _, err := s.Get(ctx, orderID); err != nil {
		return nil, err
	}
	if s.timeline == nil {
		return []domain.TimelineEvent{}, nil
	}

	events, err := s.timeline.List(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return nil, domain.WrapPersistence("list timeline", err)
	}
	return events, nil
}

// CountOrders возвращает общее количество заказов.
func (s *Service) CountOrders(ctx context.Context) (int64, error) {
	count, err := s.repo.Count(ctx)
	if err != nil {
		return 0, domain.WrapPersistence("count orders", err)
	}
	return count, nil
}

// TotalSales возвращает сумму TotalPrice по всем заказам.
func (s *Service) TotalSales(ctx context.Context) (decimal.Decimal, error) {
	total, err := s.repo.TotalSales(ctx)
	if err != nil {
		return decimal.Zero, domain.WrapPersistence("total sales", err)
	}
	return total.Round(2), nil
}

// SalesByDate возвращает выручку оплаченных заказов по дням.
func (s *Service) SalesByDate(ctx context.Context) ([]domain.DailySales, error) {
	sales, err := s.repo.SalesByDate(ctx)
	if err != nil {
		return nil, domain.WrapPersistence("sales by date", err)
	}
	return sales, nil
}

func (s *Service) transitionError(op, orderID string, err error) error {
	entry := s.logger.WithError(err).WithFields(log.Fields{"order_id": orderID, "operation": op})
	switch {
	case errors.Is(err, domain.ErrNotFound):
		entry.Debug("order not found")
	case errors.Is(err, domain.ErrInvalidTransition):
		entry.Info("transition rejected")
	default:
		entry.Error("failed to apply transition")
	}
	return domain.WrapPersistence(op+" order", err)
}

func (s *Service) observe(op domain.OrderOperation, start time.Time, errp *error) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordDuration(string(op), time.Since(start))
	if *errp != nil {
		s.metrics.RecordFailure(string(op), string(domain.KindOf(*errp)))
	}
}

func (s *Service) appendTimeline(ctx context.Context, orderID, eventType, reason string, occurred time.Time) {
	if s.timeline == nil {
		return
	}
	event := domain.TimelineEvent{
		OrderID:  orderID,
		Type:     eventType,
		Reason:   reason,
		Occurred: occurred,
	}
	if err := s.timeline.Append(ctx, event); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": orderID,
			"event":    eventType,
		}).Warn("failed to append timeline event")
		return
	}
	if s.metrics != nil {
		s.metrics.RecordTimelineEvent()
	}
}

func (s *Service) enqueueEvent(ctx context.Context, eventType domain.OrderEventType, order domain.Order, at time.Time) {
	if s.outbox == nil {
		return
	}

	payload, err := json.Marshal(domain.NewOrderEvent(eventType, order, at))
	if err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Warn("failed to encode order event")
		return
	}

	_, err = s.outbox.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: domain.OrderAggregateType,
		AggregateID:   order.ID,
		EventType:     string(eventType),
		Payload:       payload,
	})
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id":   order.ID,
			"event_type": eventType,
		}).Warn("failed to enqueue order event")
		return
	}
	if s.metrics != nil {
		s.metrics.RecordOutboxEvent()
	}
}

func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	default:
		return limit
	}
}
