package memory

import (
	"sync"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// inventoryRepositoryInMemory — in-memory реализация InventoryRepository.
// Мутекс делает каждую условную мутацию атомарной: проверка guard-условия
// и инкремент счётчика происходят под одной блокировкой.
type inventoryRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.InventoryRecord
}

// NewInventoryRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewInventoryRepository() domain.InventoryRepository {
	return &inventoryRepositoryInMemory{
		items: make(map[string]domain.InventoryRecord),
	}
}

// Get возвращает учётную запись или ErrVariantNotFound.
func (r *inventoryRepositoryInMemory) Get(variantID string) (domain.InventoryRecord, error) {
	if variantID == "" {
		return domain.InventoryRecord{}, domain.ErrVariantIDRequired
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.items[variantID]
	if !ok {
		return domain.InventoryRecord{}, domain.ErrVariantNotFound
	}
	return record, nil
}

// Put создаёт или замещает учётную запись варианта.
func (r *inventoryRepositoryInMemory) Put(record domain.InventoryRecord) error {
	if errs := record.ValidateInvariants(); len(errs) != 0 {
		return errs[0]
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := r.items[record.VariantID]; ok {
		record.CreatedAt = existing.CreatedAt
		record.Version = existing.Version + 1
	} else {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	r.items[record.VariantID] = record
	return nil
}

// ReserveAtomic удерживает qty единиц, если доступного остатка хватает.
func (r *inventoryRepositoryInMemory) ReserveAtomic(variantID string, qty int64) (domain.InventoryRecord, error) {
	return r.mutate(variantID, qty, func(rec *domain.InventoryRecord, qty int64) error {
		if rec.StockQty-rec.ReservedQty < qty {
			return domain.ErrInsufficientStock
		}
		rec.ReservedQty += qty
		return nil
	})
}

// ReleaseAtomic возвращает qty удержанных единиц в доступный остаток.
func (r *inventoryRepositoryInMemory) ReleaseAtomic(variantID string, qty int64) (domain.InventoryRecord, error) {
	return r.mutate(variantID, qty, func(rec *domain.InventoryRecord, qty int64) error {
		if rec.ReservedQty < qty {
			return domain.ErrReservedUnderflow
		}
		rec.ReservedQty -= qty
		return nil
	})
}

// CommitAtomic превращает qty удержанных единиц в постоянное списание остатка.
func (r *inventoryRepositoryInMemory) CommitAtomic(variantID string, qty int64) (domain.InventoryRecord, error) {
	return r.mutate(variantID, qty, func(rec *domain.InventoryRecord, qty int64) error {
		if rec.ReservedQty < qty {
			return domain.ErrReservedUnderflow
		}
		rec.ReservedQty -= qty
		rec.StockQty -= qty
		return nil
	})
}

func (r *inventoryRepositoryInMemory) mutate(variantID string, qty int64, apply func(*domain.InventoryRecord, int64) error) (domain.InventoryRecord, error) {
	if variantID == "" {
		return domain.InventoryRecord{}, domain.ErrVariantIDRequired
	}
	if qty <= 0 {
		return domain.InventoryRecord{}, domain.ErrQtyInvalid
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.items[variantID]
	if !ok {
		return domain.InventoryRecord{}, domain.ErrVariantNotFound
	}

	if err := apply(&record, qty); err != nil {
		return record, err
	}

	record.Version++
	record.UpdatedAt = time.Now().UTC()
	r.items[variantID] = record
	return record, nil
}

var _ domain.InventoryRepository = (*inventoryRepositoryInMemory)(nil)
