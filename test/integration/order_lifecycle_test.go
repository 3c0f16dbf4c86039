package integration

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/epiccart/internal/domain"
	"github.com/vladislavdragonenkov/epiccart/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/epiccart/internal/service/orders"
	"github.com/vladislavdragonenkov/epiccart/internal/service/outbox"
	"github.com/vladislavdragonenkov/epiccart/internal/storage/memory"
)

// OrderLifecycleTestSuite проверяет путь заказа от создания до доставки через outbox и Kafka.
type OrderLifecycleTestSuite struct {
	suite.Suite
	logger   *log.Entry
	repo     domain.OrderRepository
	timeline domain.TimelineRepository
	outbox   *memory.OutboxRepository
	catalog  domain.ProductRepository
	service  *orders.Service
}

func (suite *OrderLifecycleTestSuite) SetupTest() {
	baseLogger := log.New()
	baseLogger.SetLevel(log.WarnLevel)
	suite.logger = baseLogger.WithField("component", "integration-test")

	suite.repo = memory.NewOrderRepository()
	suite.timeline = memory.NewTimelineRepository()
	suite.outbox = memory.NewOutboxRepository()
	suite.catalog = memory.NewProductRepository(
		domain.Product{ID: "laptop-pro", Name: "Laptop Pro", Price: decimal.RequireFromString("1999.00"), CountInStock: 5},
		domain.Product{ID: "mouse-wireless", Name: "Wireless Mouse", Price: decimal.RequireFromString("49.99"), CountInStock: 20},
		domain.Product{ID: "cable", Name: "USB-C Cable", Price: decimal.RequireFromString("20.00"), CountInStock: 100},
	)

	suite.service = suite.newService(false)
}

func (suite *OrderLifecycleTestSuite) newService(strict bool) *orders.Service {
	return orders.NewService(suite.repo, suite.catalog,
		orders.WithLogger(suite.logger),
		orders.WithTimeline(suite.timeline),
		orders.WithOutbox(suite.outbox),
		orders.WithStrictTransitions(strict),
	)
}

func (suite *OrderLifecycleTestSuite) TestSuccessfulOrderLifecycle() {
	ctx := context.Background()

	// 1. Создаём заказ
	order, err := suite.service.Create(ctx, orders.CreateOrderInput{
		OwnerID: "customer-123",
		Items: []orders.RequestedItem{
			{ProductID: "laptop-pro", Qty: 1},
			{ProductID: "mouse-wireless", Qty: 2},
		},
		ShippingAddress: domain.ShippingAddress{Address: "1 Main St", City: "Springfield", PostalCode: "12345", Country: "US"},
		PaymentMethod:   "PayPal",
	})
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.OrderStateCreated, order.State())
	require.Equal(suite.T(), "2098.98", order.ItemsPrice.StringFixed(2))
	require.Equal(suite.T(), "0.00", order.ShippingPrice.StringFixed(2))
	require.Equal(suite.T(), "314.85", order.TaxPrice.StringFixed(2))
	require.Equal(suite.T(), "2413.83", order.TotalPrice.StringFixed(2))

	// 2. Оплата приходит событием из Kafka
	handler := kafka.NewPaymentHandler(suite.service, suite.logger)
	require.NoError(suite.T(), handler(ctx, paymentMessage(suite.T(), kafka.PaymentCapturedEvent{
		OrderID:    order.ID,
		ExternalID: "PAY-1",
		Status:     "COMPLETED",
		PayerEmail: "buyer@example.com",
	})))

	// 3. Доставка
	delivered, err := suite.service.Deliver(ctx, order.ID)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.OrderStateFulfilled, delivered.State())
	require.Equal(suite.T(), "PAY-1", delivered.PaymentResult.ExternalID)
	require.Empty(suite.T(), delivered.ValidateInvariants())

	// 4. Таймлайн
	events, err := suite.service.Timeline(ctx, order.ID)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), []string{
		domain.TimelineOrderCreated,
		domain.TimelineOrderPaid,
		domain.TimelineOrderDelivered,
	}, timelineTypes(events))

	// 5. Outbox публикует события в порядке их появления
	published := suite.drainOutbox(3)
	require.Equal(suite.T(), []string{
		string(domain.OrderEventCreated),
		string(domain.OrderEventPaid),
		string(domain.OrderEventDelivered),
	}, published)

	stats, err := suite.outbox.Stats(ctx)
	require.NoError(suite.T(), err)
	require.Zero(suite.T(), stats.PendingCount)
}

func (suite *OrderLifecycleTestSuite) TestDeliveryBeforePayment() {
	ctx := context.Background()

	order := suite.createSmallOrder(ctx)
	require.Equal(suite.T(), "10.00", order.ShippingPrice.StringFixed(2))
	require.Equal(suite.T(), "33.00", order.TotalPrice.StringFixed(2))

	delivered, err := suite.service.Deliver(ctx, order.ID)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.OrderStateDeliveredUnpaid, delivered.State())

	paid, err := suite.service.Pay(ctx, order.ID, domain.PaymentResult{ExternalID: "PAY-LATE", Status: "COMPLETED"})
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.OrderStateFulfilled, paid.State())

	events, err := suite.service.Timeline(ctx, order.ID)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), events, 3)
	require.Equal(suite.T(), "delivered before payment", events[1].Reason)
}

func (suite *OrderLifecycleTestSuite) TestStrictTransitions() {
	ctx := context.Background()
	strict := suite.newService(true)

	order := suite.createSmallOrder(ctx)

	_, err := strict.Deliver(ctx, order.ID)
	require.ErrorIs(suite.T(), err, domain.ErrInvalidTransition)

	_, err = strict.Pay(ctx, order.ID, domain.PaymentResult{ExternalID: "PAY-1"})
	require.NoError(suite.T(), err)

	// Повторное событие оплаты отбрасывается без повторов.
	handler := kafka.NewPaymentHandler(strict, suite.logger)
	err = handler(ctx, paymentMessage(suite.T(), kafka.PaymentCapturedEvent{OrderID: order.ID, ExternalID: "PAY-2"}))
	require.True(suite.T(), kafka.IsPermanent(err))
	require.ErrorIs(suite.T(), err, domain.ErrOrderAlreadyPaid)

	stored, err := suite.repo.Get(ctx, order.ID)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), "PAY-1", stored.PaymentResult.ExternalID)
}

func (suite *OrderLifecycleTestSuite) TestPaymentForUnknownOrder() {
	handler := kafka.NewPaymentHandler(suite.service, suite.logger)

	err := handler(context.Background(), paymentMessage(suite.T(), kafka.PaymentCapturedEvent{OrderID: "missing"}))
	require.True(suite.T(), kafka.IsPermanent(err))
	require.ErrorIs(suite.T(), err, domain.ErrNotFound)
}

func (suite *OrderLifecycleTestSuite) TestCreateRejectsUnknownProducts() {
	_, err := suite.service.Create(context.Background(), orders.CreateOrderInput{
		OwnerID: "customer-123",
		Items:   []orders.RequestedItem{{ProductID: "cable", Qty: 1}, {ProductID: "ghost", Qty: 1}},
	})

	var notFound *domain.ProductsNotFoundError
	require.True(suite.T(), errors.As(err, &notFound))
	require.Equal(suite.T(), []string{"ghost"}, notFound.IDs)

	list, err := suite.service.List(context.Background(), 0)
	require.NoError(suite.T(), err)
	require.Empty(suite.T(), list)
}

func (suite *OrderLifecycleTestSuite) TestSalesReports() {
	ctx := context.Background()

	first := suite.createSmallOrder(ctx)
	suite.createSmallOrder(ctx)

	_, err := suite.service.Pay(ctx, first.ID, domain.PaymentResult{ExternalID: "PAY-1"})
	require.NoError(suite.T(), err)

	count, err := suite.service.CountOrders(ctx)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), int64(2), count)

	total, err := suite.service.TotalSales(ctx)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), "66.00", total.StringFixed(2))

	daily, err := suite.service.SalesByDate(ctx)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), daily, 1)
	require.Equal(suite.T(), "33.00", daily[0].TotalSales.StringFixed(2))
}

func (suite *OrderLifecycleTestSuite) createSmallOrder(ctx context.Context) domain.Order {
	order, err := suite.service.Create(ctx, orders.CreateOrderInput{
		OwnerID: "customer-123",
		Items:   []orders.RequestedItem{{ProductID: "cable", Qty: 1}},
	})
	require.NoError(suite.T(), err)
	return order
}

// drainOutbox прогоняет outbox worker через mock-продюсер и возвращает типы отправленных событий.
func (suite *OrderLifecycleTestSuite) drainOutbox(expected int) []string {
	var published []string
	producer := mocks.NewSyncProducer(suite.T(), nil)
	for i := 0; i < expected; i++ {
		producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
			raw, err := msg.Value.Encode()
			if err != nil {
				return err
			}
			envelope := kafka.OutboxEnvelope{}
			if err := json.Unmarshal(raw, &envelope); err != nil {
				return err
			}
			published = append(published, envelope.EventType)
			return nil
		})
	}

	worker := outbox.NewWorker(suite.outbox, kafka.NewOutboxPublisher(kafka.NewProducerFromSync(producer), ""),
		outbox.WithLogger(suite.logger),
	)
	result := worker.ProcessOnce(context.Background())
	require.Equal(suite.T(), expected, result.Sent)
	require.Zero(suite.T(), result.Failed)
	require.NoError(suite.T(), producer.Close())

	return published
}

func paymentMessage(t *testing.T, event kafka.PaymentCapturedEvent) *sarama.ConsumerMessage {
	t.Helper()

	value, err := json.Marshal(event)
	require.NoError(t, err)
	return &sarama.ConsumerMessage{Topic: kafka.TopicPaymentEvents, Key: []byte(event.OrderID), Value: value}
}

func timelineTypes(events []domain.TimelineEvent) []string {
	types := make([]string, 0, len(events))
	for _, event := range events {
		types = append(types, event.Type)
	}
	return types
}

func TestOrderLifecycleTestSuite(t *testing.T) {
	suite.Run(t, new(OrderLifecycleTestSuite))
}
