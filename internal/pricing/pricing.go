// Package pricing рассчитывает стоимость заказа: товары, доставку, налог и итог.
package pricing

import "github.com/shopspring/decimal"

// Line — позиция для расчёта: цена за единицу и количество.
type Line struct {
	Price decimal.Decimal
	Qty   int
}

// Policy задаёт параметры расчёта.
type Policy struct {
	// FreeShippingOver — порог стоимости товаров, выше которого доставка бесплатна (строго больше).
	FreeShippingOver decimal.Decimal
	// FlatShipping — фиксированная стоимость доставки ниже порога.
	FlatShipping decimal.Decimal
	// TaxRate — ставка налога, применяется к стоимости товаров.
	TaxRate decimal.Decimal
}

// DefaultPolicy возвращает политику магазина: бесплатная доставка от 100, иначе 10, налог 15%.
func DefaultPolicy() Policy {
	return Policy{
		FreeShippingOver: decimal.NewFromInt(100),
		FlatShipping:     decimal.NewFromInt(10),
		TaxRate:          decimal.RequireFromString("0.15"),
	}
}

// Breakdown — результат расчёта, все значения округлены до двух знаков.
type Breakdown struct {
	ItemsPrice    decimal.Decimal
	ShippingPrice decimal.Decimal
	TaxPrice      decimal.Decimal
	TotalPrice    decimal.Decimal
}

// Fixed возвращает значения в виде строк с двумя знаками после запятой.
func (b Breakdown) Fixed() (items, shipping, tax, total string) {
	return b.ItemsPrice.StringFixed(2), b.ShippingPrice.StringFixed(2), b.TaxPrice.StringFixed(2), b.TotalPrice.StringFixed(2)
}

// Equal сравнивает разбивки по значению.
func (b Breakdown) Equal(other Breakdown) bool {
	return b.ItemsPrice.Equal(other.ItemsPrice) &&
		b.ShippingPrice.Equal(other.ShippingPrice) &&
		b.TaxPrice.Equal(other.TaxPrice) &&
		b.TotalPrice.Equal(other.TotalPrice)
}

// Calculate считает стоимость по политике по умолчанию.
func Calculate(lines []Line) Breakdown {
	return DefaultPolicy().Calculate(lines)
}

// Calculate считает стоимость позиций. Налог округляется до сложения с итогом.
// Отрицательные цены и количества не проверяются, это задача вызывающего кода.
func (p Policy) Calculate(lines []Line) Breakdown {
	items := decimal.Zero
	for _, line := range lines {
		items = items.Add(line.Price.Mul(decimal.NewFromInt(int64(line.Qty))))
	}

	shipping := p.FlatShipping
	if items.GreaterThan(p.FreeShippingOver) {
		shipping = decimal.Zero
	}

	tax := items.Mul(p.TaxRate).Round(2)
	total := items.Add(shipping).Add(tax).Round(2)

	return Breakdown{
		ItemsPrice:    items.Round(2),
		ShippingPrice: shipping.Round(2),
		TaxPrice:      tax,
		TotalPrice:    total,
	}
}
