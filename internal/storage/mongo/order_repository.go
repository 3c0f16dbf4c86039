package mongo

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vladislavdragonenkov/epiccart/internal/domain"
)

var newestFirst = bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}

type orderRepository struct {
	orders *mongo.Collection
}

// NewOrderRepository хранит заказы документами коллекции orders, позиции вложены в заказ.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{orders: store.Database().Collection(ordersCollection)}
}

func (r *orderRepository) Create(ctx context.Context, order domain.Order) error {
	doc, err := orderToDocument(order)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.orders.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrOrderAlreadyExists
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var doc orderDocument
	if err := r.orders.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("find order: %w", err)
	}
	return doc.toDomain()
}

func (r *orderRepository) ListByOwner(ctx context.Context, ownerID string, limit int) ([]domain.Order, error) {
	return r.find(ctx, bson.M{"user": ownerID}, limit)
}

func (r *orderRepository) List(ctx context.Context, limit int) ([]domain.Order, error) {
	return r.find(ctx, bson.M{}, limit)
}

func (r *orderRepository) find(ctx context.Context, filter bson.M, limit int) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	opts := options.Find().SetSort(newestFirst)
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.orders.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find orders: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []orderDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode orders: %w", err)
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		order, err := doc.toDomain()
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}

// MarkPaid обновляет документ одним FindOneAndUpdate; условие строгой политики входит в фильтр.
func (r *orderRepository) MarkPaid(ctx context.Context, id string, update domain.PaymentUpdate) (domain.Order, error) {
	filter := bson.M{"_id": id}
	if update.RequireUnpaid {
		filter["isPaid"] = false
	}

	paidAt := update.PaidAt.UTC()
	set := bson.M{
		"isPaid":        true,
		"paidAt":        paidAt,
		"paymentResult": paymentResultFromDomain(&update.Result),
		"updatedAt":     paidAt,
	}

	return r.transition(ctx, id, filter, set, func(o *domain.Order) error { return o.ApplyPayment(update) })
}

func (r *orderRepository) MarkDelivered(ctx context.Context, id string, update domain.DeliveryUpdate) (domain.Order, error) {
	filter := bson.M{"_id": id}
	if update.RequirePaid {
		filter["isPaid"] = true
	}
	if update.RequireUndelivered {
		filter["isDelivered"] = false
	}

	deliveredAt := update.DeliveredAt.UTC()
	set := bson.M{
		"isDelivered": true,
		"deliveredAt": deliveredAt,
		"updatedAt":   deliveredAt,
	}

	return r.transition(ctx, id, filter, set, func(o *domain.Order) error { return o.ApplyDelivery(update) })
}

// transition применяет $set к документу, прошедшему фильтр. Если документ не прошёл фильтр,
// причина определяется повторной проверкой перехода на текущем состоянии.
func (r *orderRepository) transition(ctx context.Context, id string, filter, set bson.M, check func(o *domain.Order) error) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var doc orderDocument
	err := r.orders.FindOneAndUpdate(ctx, filter, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&doc)
	if err == nil {
		return doc.toDomain()
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Order{}, fmt.Errorf("update order: %w", err)
	}

	current, err := r.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	if err := check(&current); err != nil {
		return domain.Order{}, err
	}
	return domain.Order{}, fmt.Errorf("order %s changed concurrently", id)
}

func (r *orderRepository) Count(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	count, err := r.orders.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}
	return count, nil
}

func (r *orderRepository) TotalSales(ctx context.Context) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	cursor, err := r.orders.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "totalSales", Value: bson.D{{Key: "$sum", Value: "$totalPrice"}}},
		}}},
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("aggregate total sales: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		TotalSales primitive.Decimal128 `bson:"totalSales"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return decimal.Zero, fmt.Errorf("decode total sales: %w", err)
	}
	if len(rows) == 0 {
		return decimal.Zero, nil
	}
	return fromDecimal128(rows[0].TotalSales)
}

func (r *orderRepository) SalesByDate(ctx context.Context) ([]domain.DailySales, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	cursor, err := r.orders.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "isPaid", Value: true},
			{Key: "paidAt", Value: bson.D{{Key: "$ne", Value: nil}}},
		}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{{Key: "$dateToString", Value: bson.D{
				{Key: "format", Value: "%Y-%m-%d"},
				{Key: "date", Value: "$paidAt"},
			}}}},
			{Key: "totalSales", Value: bson.D{{Key: "$sum", Value: "$totalPrice"}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	})
	if err != nil {
		return nil, fmt.Errorf("aggregate sales by date: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Date       string               `bson:"_id"`
		TotalSales primitive.Decimal128 `bson:"totalSales"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode sales by date: %w", err)
	}

	result := make([]domain.DailySales, 0, len(rows))
	for _, row := range rows {
		total, err := fromDecimal128(row.TotalSales)
		if err != nil {
			return nil, err
		}
		result = append(result, domain.DailySales{Date: row.Date, TotalSales: total})
	}
	return result, nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
