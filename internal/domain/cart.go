package domain

import "time"

// CartItem — позиция корзины. Qty всегда равно количеству, удержанному
// на складе под эту позицию (резерв создаётся в момент мутации корзины).
type CartItem struct {
	// ID позиции нужен для PATCH/DELETE по конкретной строке корзины.
	ID string
	// VariantID — вариант товара, под который удержан резерв.
	VariantID string
	// Qty — удержанное количество, строго положительное.
	Qty int64
	// PriceMinor — цена за единицу на момент добавления, в минимальных единицах валюты.
	PriceMinor int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Cart агрегирует живые резервы одного клиента. У клиента одна активная
// корзина, ключом служит CustomerID.
type Cart struct {
	CustomerID string
	Currency   string
	Items      []CartItem
	// UpdatedAt — момент последней мутации; по нему sweeper находит брошенные корзины.
	UpdatedAt time.Time
}

// IsEmpty сообщает, есть ли в корзине хотя бы одна позиция.
func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// TotalMinor возвращает сумму корзины в минимальных единицах валюты.
func (c *Cart) TotalMinor() int64 {
	var total int64
	for _, item := range c.Items {
		total += item.Qty * item.PriceMinor
	}
	return total
}

// ItemByVariant находит позицию по варианту товара.
func (c *Cart) ItemByVariant(variantID string) (CartItem, bool) {
	for _, item := range c.Items {
		if item.VariantID == variantID {
			return item, true
		}
	}
	return CartItem{}, false
}

// Validate проверяет корректность заполнения позиции корзины.
func (i *CartItem) Validate() []error {
	var errs []error

	if i.VariantID == "" {
		errs = append(errs, ErrVariantIDRequired)
	}
	if i.Qty <= 0 {
		errs = append(errs, ErrItemQtyInvalid)
	}
	if i.PriceMinor < 0 {
		errs = append(errs, ErrItemPriceInvalid)
	}

	return errs
}
