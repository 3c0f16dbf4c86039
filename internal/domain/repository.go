package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ целиком или не сохраняет ничего.
	// Возвращает ErrOrderAlreadyExists, если запись с таким ID уже существует.
	Create(ctx context.Context, order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(ctx context.Context, id string) (Order, error)
	// ListByOwner возвращает заказы пользователя с опциональным ограничением на количество.
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]Order, error)
	// List возвращает все заказы, новые первыми.
	List(ctx context.Context, limit int) ([]Order, error)
	// MarkPaid атомарно применяет оплату и возвращает обновлённый заказ.
	MarkPaid(ctx context.Context, id string, update PaymentUpdate) (Order, error)
	// MarkDelivered атомарно применяет доставку и возвращает обновлённый заказ.
	MarkDelivered(ctx context.Context, id string, update DeliveryUpdate) (Order, error)
	// Count возвращает общее количество заказов.
	Count(ctx context.Context) (int64, error)
	// TotalSales суммирует TotalPrice по всем заказам.
	TotalSales(ctx context.Context) (decimal.Decimal, error)
	// SalesByDate суммирует TotalPrice оплаченных заказов по дням оплаты (UTC), по возрастанию даты.
	SalesByDate(ctx context.Context) ([]DailySales, error)
}

// Catalog разрешает идентификаторы товаров. Отсутствующие товары не попадают в результат.
type Catalog interface {
	ResolveProducts(ctx context.Context, ids []string) (map[string]Product, error)
}

// ProductRepository расширяет Catalog операциями наполнения.
type ProductRepository interface {
	Catalog
	Get(ctx context.Context, id string) (Product, error)
	Upsert(ctx context.Context, product Product) error
}
