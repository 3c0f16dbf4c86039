package domain

import "github.com/shopspring/decimal"

// Product — запись каталога, из которой берётся снимок позиции заказа.
type Product struct {
	ID           string
	Name         string
	Image        string
	Price        decimal.Decimal
	CountInStock int
}

// Validate проверяет запись перед сохранением в каталог.
func (p Product) Validate() error {
	if p.ID == "" {
		return ErrItemProductRequired
	}
	if p.Price.IsNegative() {
		return ErrItemPriceInvalid
	}
	return nil
}

// MissingProductIDs возвращает идентификаторы, которых нет в found, сохраняя порядок и без повторов.
func MissingProductIDs(ids []string, found map[string]Product) []string {
	var missing []string
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

// UniqueIDs убирает повторы, сохраняя порядок.
func UniqueIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
