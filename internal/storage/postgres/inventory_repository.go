package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

const (
	opTimeout = 5 * time.Second
)

type inventoryRepository struct {
	db *sql.DB
}

// NewInventoryRepository создаёт PostgreSQL-реализацию InventoryRepository.
// Все мутации выполняются одиночными guarded UPDATE: проверка условия и
// изменение счётчиков происходят в одном statement, без read-modify-write.
func NewInventoryRepository(store *Store) domain.InventoryRepository {
	return &inventoryRepository{db: store.DB()}
}

func (r *inventoryRepository) Get(variantID string) (domain.InventoryRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	return r.get(ctx, variantID)
}

func (r *inventoryRepository) Put(record domain.InventoryRecord) error {
	if errs := record.ValidateInvariants(); len(errs) > 0 {
		return errs[0]
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO inventory (variant_id, stock_qty, reserved_qty, version, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (variant_id) DO UPDATE
		SET stock_qty = EXCLUDED.stock_qty,
		    reserved_qty = EXCLUDED.reserved_qty,
		    version = inventory.version + 1,
		    updated_at = EXCLUDED.updated_at
	`, record.VariantID, record.StockQty, record.ReservedQty, record.Version, record.CreatedAt, now)
	if err != nil {
		return fmt.Errorf("put inventory record: %w", err)
	}

	return nil
}

func (r *inventoryRepository) ReserveAtomic(variantID string, qty int64) (domain.InventoryRecord, error) {
	return r.guardedUpdate(variantID, qty, `
		UPDATE inventory
		SET reserved_qty = reserved_qty + $2,
		    version = version + 1,
		    updated_at = NOW()
		WHERE variant_id = $1
		  AND stock_qty - reserved_qty >= $2
	`, domain.ErrInsufficientStock)
}

func (r *inventoryRepository) ReleaseAtomic(variantID string, qty int64) (domain.InventoryRecord, error) {
	return r.guardedUpdate(variantID, qty, `
		UPDATE inventory
		SET reserved_qty = reserved_qty - $2,
		    version = version + 1,
		    updated_at = NOW()
		WHERE variant_id = $1
		  AND reserved_qty >= $2
	`, domain.ErrReservedUnderflow)
}

func (r *inventoryRepository) CommitAtomic(variantID string, qty int64) (domain.InventoryRecord, error) {
	return r.guardedUpdate(variantID, qty, `
		UPDATE inventory
		SET stock_qty = stock_qty - $2,
		    reserved_qty = reserved_qty - $2,
		    version = version + 1,
		    updated_at = NOW()
		WHERE variant_id = $1
		  AND reserved_qty >= $2
	`, domain.ErrReservedUnderflow)
}

// guardedUpdate выполняет условное обновление счётчиков. Нулевое число
// затронутых строк означает либо отсутствие варианта, либо нарушение
// guard-условия — различаем повторным SELECT.
func (r *inventoryRepository) guardedUpdate(variantID string, qty int64, query string, guardErr error) (domain.InventoryRecord, error) {
	if variantID == "" {
		return domain.InventoryRecord{}, domain.ErrVariantIDRequired
	}
	if qty <= 0 {
		return domain.InventoryRecord{}, domain.ErrQtyInvalid
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, query, variantID, qty)
	if err != nil {
		return domain.InventoryRecord{}, fmt.Errorf("guarded inventory update: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return domain.InventoryRecord{}, fmt.Errorf("inventory rows affected: %w", err)
	}
	if affected == 0 {
		if _, getErr := r.get(ctx, variantID); getErr != nil {
			return domain.InventoryRecord{}, getErr
		}
		return domain.InventoryRecord{}, guardErr
	}

	return r.get(ctx, variantID)
}

func (r *inventoryRepository) get(ctx context.Context, variantID string) (domain.InventoryRecord, error) {
	if variantID == "" {
		return domain.InventoryRecord{}, domain.ErrVariantIDRequired
	}

	var record domain.InventoryRecord
	err := r.db.QueryRowContext(ctx, `
		SELECT variant_id, stock_qty, reserved_qty, version, created_at, updated_at
		FROM inventory
		WHERE variant_id = $1
	`, variantID).Scan(
		&record.VariantID, &record.StockQty, &record.ReservedQty,
		&record.Version, &record.CreatedAt, &record.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.InventoryRecord{}, domain.ErrVariantNotFound
		}
		return domain.InventoryRecord{}, fmt.Errorf("select inventory record: %w", err)
	}

	return record, nil
}

var _ domain.InventoryRepository = (*inventoryRepository)(nil)
