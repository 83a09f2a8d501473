package domain

import "time"

// InventoryRecord — складская учётная запись одного продаваемого варианта.
// Доступный остаток всегда вычисляется как StockQty - ReservedQty и не
// хранится отдельно, чтобы исключить рассинхронизацию счётчиков.
type InventoryRecord struct {
	// VariantID — внешний идентификатор варианта товара (уникальный ключ).
	VariantID string
	// StockQty — физический остаток на складе.
	StockQty int64
	// ReservedQty — единицы, удержанные под неподтверждённые заказы.
	ReservedQty int64
	// Version — монотонный счётчик для optimistic locking.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AvailableQty возвращает остаток, доступный для новых резервов.
func (r *InventoryRecord) AvailableQty() int64 {
	return r.StockQty - r.ReservedQty
}

// ValidateInvariants проверяет инвариант 0 <= reserved <= stock.
func (r *InventoryRecord) ValidateInvariants() []error {
	var errs []error

	if r.VariantID == "" {
		errs = append(errs, ErrVariantIDRequired)
	}
	if r.StockQty < 0 {
		errs = append(errs, ErrStockNegative)
	}
	if r.ReservedQty < 0 || r.ReservedQty > r.StockQty {
		errs = append(errs, ErrReservedUnderflow)
	}

	return errs
}
