package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/epiccart/internal/pricing"
)

// OrderState описывает положение заказа в жизненном цикле. Хранится не поле, а пара флагов
// IsPaid/IsDelivered, состояние выводится из них.
type OrderState string

const (
	// OrderStateCreated — заказ создан, не оплачен и не доставлен.
	OrderStateCreated OrderState = "created"
	// OrderStatePaid — оплата подтверждена, доставки ещё не было.
	OrderStatePaid OrderState = "paid"
	// OrderStateFulfilled — заказ оплачен и доставлен.
	OrderStateFulfilled OrderState = "fulfilled"
	// OrderStateDeliveredUnpaid — доставлен без оплаты; возможно только при мягкой политике переходов.
	OrderStateDeliveredUnpaid OrderState = "delivered_unpaid"
)

// OrderItem представляет одну позицию заказа. Name, Image и Price — снимок каталога на момент создания.
type OrderItem struct {
	ProductID string
	Name      string
	Image     string
	Price     decimal.Decimal
	Qty       int
}

// ShippingAddress — адрес доставки, передаётся как есть.
type ShippingAddress struct {
	Address    string
	City       string
	PostalCode string
	Country    string
}

// PaymentResult — подтверждение платёжного провайдера.
type PaymentResult struct {
	ExternalID string
	Status     string
	UpdateTime string
	PayerEmail string
}

// Order агрегирует состояние заказа и его позиции.
type Order struct {
	ID              string
	OwnerID         string
	Items           []OrderItem
	ShippingAddress ShippingAddress
	PaymentMethod   string

	ItemsPrice    decimal.Decimal
	ShippingPrice decimal.Decimal
	TaxPrice      decimal.Decimal
	TotalPrice    decimal.Decimal

	IsPaid        bool
	PaidAt        *time.Time
	PaymentResult *PaymentResult

	IsDelivered bool
	DeliveredAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PaymentUpdate — параметры перехода в оплаченное состояние.
type PaymentUpdate struct {
	PaidAt time.Time
	Result PaymentResult
	// RequireUnpaid запрещает повторную оплату.
	RequireUnpaid bool
}

// DeliveryUpdate — параметры перехода в доставленное состояние.
type DeliveryUpdate struct {
	DeliveredAt time.Time
	// RequirePaid запрещает доставку до оплаты.
	RequirePaid bool
	// RequireUndelivered запрещает повторную доставку.
	RequireUndelivered bool
}

// State выводит состояние заказа из флагов.
func (o *Order) State() OrderState {
	switch {
	case o.IsPaid && o.IsDelivered:
		return OrderStateFulfilled
	case o.IsDelivered:
		return OrderStateDeliveredUnpaid
	case o.IsPaid:
		return OrderStatePaid
	default:
		return OrderStateCreated
	}
}

// PricingLines возвращает цены и количества позиций для калькулятора.
func (o *Order) PricingLines() []pricing.Line {
	lines := make([]pricing.Line, 0, len(o.Items))
	for _, item := range o.Items {
		lines = append(lines, pricing.Line{Price: item.Price, Qty: item.Qty})
	}
	return lines
}

// ApplyPricing записывает в заказ результат расчёта.
func (o *Order) ApplyPricing(b pricing.Breakdown) {
	o.ItemsPrice = b.ItemsPrice
	o.ShippingPrice = b.ShippingPrice
	o.TaxPrice = b.TaxPrice
	o.TotalPrice = b.TotalPrice
}

// Pricing возвращает сохранённые в заказе цены.
func (o *Order) Pricing() pricing.Breakdown {
	return pricing.Breakdown{
		ItemsPrice:    o.ItemsPrice,
		ShippingPrice: o.ShippingPrice,
		TaxPrice:      o.TaxPrice,
		TotalPrice:    o.TotalPrice,
	}
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.OwnerID == "" {
		errs = append(errs, ErrOwnerRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}

	for _, item := range o.Items {
		if item.ProductID == "" {
			errs = append(errs, ErrItemProductRequired)
		}
		if item.Qty <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.Price.IsNegative() {
			errs = append(errs, ErrItemPriceInvalid)
		}
	}

	// Цены всегда пересчитываются из позиций, сохранённые значения должны совпадать.
	if !pricing.Calculate(o.PricingLines()).Equal(o.Pricing()) {
		errs = append(errs, ErrPriceMismatch)
	}

	if o.IsPaid && (o.PaidAt == nil || o.PaymentResult == nil) {
		errs = append(errs, ErrPaymentDetailsMissing)
	}
	if o.IsDelivered && o.DeliveredAt == nil {
		errs = append(errs, ErrDeliveryDateMissing)
	}

	return errs
}

// ApplyPayment переводит заказ в оплаченное состояние. Без RequireUnpaid повторная оплата
// перезаписывает дату и результат.
func (o *Order) ApplyPayment(u PaymentUpdate) error {
	if u.RequireUnpaid && o.IsPaid {
		return ErrOrderAlreadyPaid
	}

	paidAt := u.PaidAt.UTC()
	result := u.Result
	o.IsPaid = true
	o.PaidAt = &paidAt
	o.PaymentResult = &result
	o.UpdatedAt = paidAt
	return nil
}

// ApplyDelivery переводит заказ в доставленное состояние.
func (o *Order) ApplyDelivery(u DeliveryUpdate) error {
	if u.RequirePaid && !o.IsPaid {
		return ErrOrderNotPaid
	}
	if u.RequireUndelivered && o.IsDelivered {
		return ErrOrderAlreadyDelivered
	}

	deliveredAt := u.DeliveredAt.UTC()
	o.IsDelivered = true
	o.DeliveredAt = &deliveredAt
	o.UpdatedAt = deliveredAt
	return nil
}

// Clone возвращает глубокую копию заказа.
func (o Order) Clone() Order {
	dst := o
	dst.Items = append([]OrderItem(nil), o.Items...)
	if o.PaidAt != nil {
		paidAt := *o.PaidAt
		dst.PaidAt = &paidAt
	}
	if o.PaymentResult != nil {
		result := *o.PaymentResult
		dst.PaymentResult = &result
	}
	if o.DeliveredAt != nil {
		deliveredAt := *o.DeliveredAt
		dst.DeliveredAt = &deliveredAt
	}
	return dst
}

// DailySales — сумма оплаченных заказов за календарный день (UTC).
type DailySales struct {
	Date       string
	TotalSales decimal.Decimal
}
