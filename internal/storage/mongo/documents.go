package mongo

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/vladislavdragonenkov/epiccart/internal/domain"
)

// Документы повторяют схему коллекций исходного магазина: camelCase-поля, цены в Decimal128.

type orderItemDocument struct {
	Product string               `bson:"product"`
	Name    string               `bson:"name"`
	Image   string               `bson:"image"`
	Price   primitive.Decimal128 `bson:"price"`
	Qty     int                  `bson:"qty"`
}

type shippingAddressDocument struct {
	Address    string `bson:"address"`
	City       string `bson:"city"`
	PostalCode string `bson:"postalCode"`
	Country    string `bson:"country"`
}

type paymentResultDocument struct {
	ID           string `bson:"id"`
	Status       string `bson:"status"`
	UpdateTime   string `bson:"update_time"`
	EmailAddress string `bson:"email_address"`
}

type orderDocument struct {
	ID              string                  `bson:"_id"`
	User            string                  `bson:"user"`
	OrderItems      []orderItemDocument     `bson:"orderItems"`
	ShippingAddress shippingAddressDocument `bson:"shippingAddress"`
	PaymentMethod   string                  `bson:"paymentMethod"`
	PaymentResult   *paymentResultDocument  `bson:"paymentResult,omitempty"`
	ItemsPrice      primitive.Decimal128    `bson:"itemsPrice"`
	ShippingPrice   primitive.Decimal128    `bson:"shippingPrice"`
	TaxPrice        primitive.Decimal128    `bson:"taxPrice"`
	TotalPrice      primitive.Decimal128    `bson:"totalPrice"`
	IsPaid          bool                    `bson:"isPaid"`
	PaidAt          *time.Time              `bson:"paidAt,omitempty"`
	IsDelivered     bool                    `bson:"isDelivered"`
	DeliveredAt     *time.Time              `bson:"deliveredAt,omitempty"`
	CreatedAt       time.Time               `bson:"createdAt"`
	UpdatedAt       time.Time               `bson:"updatedAt"`
}

type productDocument struct {
	ID           string               `bson:"_id"`
	Name         string               `bson:"name"`
	Image        string               `bson:"image"`
	Price        primitive.Decimal128 `bson:"price"`
	CountInStock int                  `bson:"countInStock"`
}

type timelineDocument struct {
	ID       primitive.ObjectID `bson:"_id,omitempty"`
	OrderID  string             `bson:"orderId"`
	Type     string             `bson:"type"`
	Reason   string             `bson:"reason"`
	Occurred time.Time          `bson:"occurred"`
}

// toDecimal128 кодирует денежное значение с двумя знаками после запятой.
func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	v, err := primitive.ParseDecimal128(d.StringFixed(2))
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("encode decimal %s: %w", d, err)
	}
	return v, nil
}

func fromDecimal128(v primitive.Decimal128) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("decode decimal %s: %w", v, err)
	}
	return d, nil
}

func paymentResultFromDomain(r *domain.PaymentResult) *paymentResultDocument {
	if r == nil {
		return nil
	}
	return &paymentResultDocument{
		ID:           r.ExternalID,
		Status:       r.Status,
		UpdateTime:   r.UpdateTime,
		EmailAddress: r.PayerEmail,
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

func orderToDocument(o domain.Order) (orderDocument, error) {
	doc := orderDocument{
		ID:   o.ID,
		User: o.OwnerID,
		ShippingAddress: shippingAddressDocument{
			Address:    o.ShippingAddress.Address,
			City:       o.ShippingAddress.City,
			PostalCode: o.ShippingAddress.PostalCode,
			Country:    o.ShippingAddress.Country,
		},
		PaymentMethod: o.PaymentMethod,
		PaymentResult: paymentResultFromDomain(o.PaymentResult),
		IsPaid:        o.IsPaid,
		PaidAt:        utcPtr(o.PaidAt),
		IsDelivered:   o.IsDelivered,
		DeliveredAt:   utcPtr(o.DeliveredAt),
		CreatedAt:     o.CreatedAt.UTC(),
		UpdatedAt:     o.UpdatedAt.UTC(),
	}

	doc.OrderItems = make([]orderItemDocument, 0, len(o.Items))
	for _, item := range o.Items {
		price, err := toDecimal128(item.Price)
		if err != nil {
			return orderDocument{}, err
		}
		doc.OrderItems = append(doc.OrderItems, orderItemDocument{
			Product: item.ProductID,
			Name:    item.Name,
			Image:   item.Image,
			Price:   price,
			Qty:     item.Qty,
		})
	}

	prices := []struct {
		src decimal.Decimal
		dst *primitive.Decimal128
	}{
		{o.ItemsPrice, &doc.ItemsPrice},
		{o.ShippingPrice, &doc.ShippingPrice},
		{o.TaxPrice, &doc.TaxPrice},
		{o.TotalPrice, &doc.TotalPrice},
	}
	for _, p := range prices {
		v, err := toDecimal128(p.src)
		if err != nil {
			return orderDocument{}, err
		}
		*p.dst = v
	}
	return doc, nil
}

func (d orderDocument) toDomain() (domain.Order, error) {
	o := domain.Order{
		ID:      d.ID,
		OwnerID: d.User,
		ShippingAddress: domain.ShippingAddress{
			Address:    d.ShippingAddress.Address,
			City:       d.ShippingAddress.City,
			PostalCode: d.ShippingAddress.PostalCode,
			Country:    d.ShippingAddress.Country,
		},
		PaymentMethod: d.PaymentMethod,
		IsPaid:        d.IsPaid,
		PaidAt:        utcPtr(d.PaidAt),
		IsDelivered:   d.IsDelivered,
		DeliveredAt:   utcPtr(d.DeliveredAt),
		CreatedAt:     d.CreatedAt.UTC(),
		UpdatedAt:     d.UpdatedAt.UTC(),
	}
	if d.PaymentResult != nil {
		o.PaymentResult = &domain.PaymentResult{
			ExternalID: d.PaymentResult.ID,
			Status:     d.PaymentResult.Status,
			UpdateTime: d.PaymentResult.UpdateTime,
			PayerEmail: d.PaymentResult.EmailAddress,
		}
	}

	o.Items = make([]domain.OrderItem, 0, len(d.OrderItems))
	for _, item := range d.OrderItems {
		price, err := fromDecimal128(item.Price)
		if err != nil {
			return domain.Order{}, err
		}
		o.Items = append(o.Items, domain.OrderItem{
			ProductID: item.Product,
			Name:      item.Name,
			Image:     item.Image,
			Price:     price,
			Qty:       item.Qty,
		})
	}

	var err error
	if o.ItemsPrice, err = fromDecimal128(d.ItemsPrice); err != nil {
		return domain.Order{}, err
	}
	if o.ShippingPrice, err = fromDecimal128(d.ShippingPrice); err != nil {
		return domain.Order{}, err
	}
	if o.TaxPrice, err = fromDecimal128(d.TaxPrice); err != nil {
		return domain.Order{}, err
	}
	if o.TotalPrice, err = fromDecimal128(d.TotalPrice); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

func productToDocument(p domain.Product) (productDocument, error) {
	price, err := toDecimal128(p.Price)
	if err != nil {
		return productDocument{}, err
	}
	return productDocument{
		ID:           p.ID,
		Name:         p.Name,
		Image:        p.Image,
		Price:        price,
		CountInStock: p.CountInStock,
	}, nil
}

func (d productDocument) toDomain() (domain.Product, error) {
	price, err := fromDecimal128(d.Price)
	if err != nil {
		return domain.Product{}, err
	}
	return domain.Product{
		ID:           d.ID,
		Name:         d.Name,
		Image:        d.Image,
		Price:        price,
		CountInStock: d.CountInStock,
	}, nil
}
