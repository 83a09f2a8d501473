package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

type cartRepository struct {
	db *sql.DB
}

// NewCartRepository создаёт PostgreSQL-реализацию CartRepository.
func NewCartRepository(store *Store) domain.CartRepository {
	return &cartRepository{db: store.DB()}
}

func (r *cartRepository) Get(customerID string) (domain.Cart, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, variant_id, qty, price_minor, created_at, updated_at
		FROM cart_items
		WHERE customer_id = $1
		ORDER BY created_at ASC, id ASC
	`, customerID)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("select cart items: %w", err)
	}
	defer rows.Close()

	cart := domain.Cart{CustomerID: customerID, Items: make([]domain.CartItem, 0)}
	for rows.Next() {
		var item domain.CartItem
		if err := rows.Scan(&item.ID, &item.VariantID, &item.Qty, &item.PriceMinor, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return domain.Cart{}, fmt.Errorf("scan cart item: %w", err)
		}
		if item.UpdatedAt.After(cart.UpdatedAt) {
			cart.UpdatedAt = item.UpdatedAt
		}
		cart.Items = append(cart.Items, item)
	}
	if err := rows.Err(); err != nil {
		return domain.Cart{}, fmt.Errorf("iterate cart items: %w", err)
	}

	return cart, nil
}

func (r *cartRepository) GetItem(customerID, itemID string) (domain.CartItem, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var item domain.CartItem
	err := r.db.QueryRowContext(ctx, `
		SELECT id, variant_id, qty, price_minor, created_at, updated_at
		FROM cart_items
		WHERE customer_id = $1 AND id = $2
	`, customerID, itemID).Scan(&item.ID, &item.VariantID, &item.Qty, &item.PriceMinor, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.CartItem{}, domain.ErrCartItemNotFound
		}
		return domain.CartItem{}, fmt.Errorf("select cart item: %w", err)
	}

	return item, nil
}

func (r *cartRepository) UpsertItem(customerID string, item domain.CartItem) error {
	if errs := item.Validate(); len(errs) > 0 {
		return errs[0]
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO cart_items (id, customer_id, variant_id, qty, price_minor, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (customer_id, variant_id) DO UPDATE
		SET qty = EXCLUDED.qty,
		    price_minor = EXCLUDED.price_minor,
		    updated_at = EXCLUDED.updated_at
	`, item.ID, customerID, item.VariantID, item.Qty, item.PriceMinor, item.CreatedAt, now)
	if err != nil {
		return fmt.Errorf("upsert cart item: %w", err)
	}

	return nil
}

func (r *cartRepository) RemoveItem(customerID, itemID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		DELETE FROM cart_items
		WHERE customer_id = $1 AND id = $2
	`, customerID, itemID)
	if err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("cart rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrCartItemNotFound
	}

	return nil
}

func (r *cartRepository) Clear(customerID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `
		DELETE FROM cart_items
		WHERE customer_id = $1
	`, customerID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}

	return nil
}

func (r *cartRepository) ListStale(updatedBefore time.Time, limit int) ([]domain.Cart, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	// Корзина считается брошенной, только если все её позиции не менялись
	// с указанного момента.
	rows, err := r.db.QueryContext(ctx, `
		SELECT customer_id
		FROM cart_items
		GROUP BY customer_id
		HAVING MAX(updated_at) < $1
		ORDER BY MAX(updated_at) ASC
		LIMIT $2
	`, updatedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale carts: %w", err)
	}
	defer rows.Close()

	customerIDs := make([]string, 0, limit)
	for rows.Next() {
		var customerID string
		if err := rows.Scan(&customerID); err != nil {
			return nil, fmt.Errorf("scan stale cart customer: %w", err)
		}
		customerIDs = append(customerIDs, customerID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stale carts: %w", err)
	}

	carts := make([]domain.Cart, 0, len(customerIDs))
	for _, customerID := range customerIDs {
		cart, err := r.Get(customerID)
		if err != nil {
			return nil, err
		}
		if !cart.IsEmpty() {
			carts = append(carts, cart)
		}
	}

	return carts, nil
}

var _ domain.CartRepository = (*cartRepository)(nil)
