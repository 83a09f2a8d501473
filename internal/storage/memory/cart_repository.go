package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// cartRepositoryInMemory — in-memory реализация CartRepository.
type cartRepositoryInMemory struct {
	mu    sync.RWMutex
	carts map[string]domain.Cart
}

// NewCartRepository возвращает in-memory репозиторий корзин.
func NewCartRepository() domain.CartRepository {
	return &cartRepositoryInMemory{
		carts: make(map[string]domain.Cart),
	}
}

// Get возвращает корзину клиента; отсутствующая корзина — пустая.
func (r *cartRepositoryInMemory) Get(customerID string) (domain.Cart, error) {
	if customerID == "" {
		return domain.Cart{}, domain.ErrCustomerRequired
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	cart, ok := r.carts[customerID]
	if !ok {
		return domain.Cart{CustomerID: customerID}, nil
	}
	return cloneCart(cart), nil
}

// GetItem возвращает позицию по идентификатору или ErrCartItemNotFound.
func (r *cartRepositoryInMemory) GetItem(customerID, itemID string) (domain.CartItem, error) {
	if customerID == "" {
		return domain.CartItem{}, domain.ErrCustomerRequired
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	cart, ok := r.carts[customerID]
	if !ok {
		return domain.CartItem{}, domain.ErrCartItemNotFound
	}
	for _, item := range cart.Items {
		if item.ID == itemID {
			return item, nil
		}
	}
	return domain.CartItem{}, domain.ErrCartItemNotFound
}

// UpsertItem создаёт или обновляет позицию корзины.
func (r *cartRepositoryInMemory) UpsertItem(customerID string, item domain.CartItem) error {
	if customerID == "" {
		return domain.ErrCustomerRequired
	}
	if errs := item.Validate(); len(errs) != 0 {
		return errs[0]
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	cart, ok := r.carts[customerID]
	if !ok {
		cart = domain.Cart{CustomerID: customerID}
	}

	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now

	replaced := false
	for i, existing := range cart.Items {
		if existing.ID == item.ID {
			item.CreatedAt = existing.CreatedAt
			cart.Items[i] = item
			replaced = true
			break
		}
	}
	if !replaced {
		cart.Items = append(cart.Items, item)
	}

	cart.UpdatedAt = now
	r.carts[customerID] = cart
	return nil
}

// RemoveItem удаляет позицию корзины.
func (r *cartRepositoryInMemory) RemoveItem(customerID, itemID string) error {
	if customerID == "" {
		return domain.ErrCustomerRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cart, ok := r.carts[customerID]
	if !ok {
		return domain.ErrCartItemNotFound
	}

	for i, item := range cart.Items {
		if item.ID != itemID {
			continue
		}
		cart.Items = append(cart.Items[:i], cart.Items[i+1:]...)
		cart.UpdatedAt = time.Now().UTC()
		r.carts[customerID] = cart
		return nil
	}
	return domain.ErrCartItemNotFound
}

// Clear удаляет все позиции корзины.
func (r *cartRepositoryInMemory) Clear(customerID string) error {
	if customerID == "" {
		return domain.ErrCustomerRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.carts, customerID)
	return nil
}

// ListStale возвращает до limit корзин с позициями, не менявшихся с updatedBefore.
func (r *cartRepositoryInMemory) ListStale(updatedBefore time.Time, limit int) ([]domain.Cart, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Cart, 0)
	for _, cart := range r.carts {
		if cart.IsEmpty() || cart.UpdatedAt.After(updatedBefore) {
			continue
		}
		result = append(result, cloneCart(cart))
	}

	// Стабильный порядок: самые старые корзины первыми.
	sort.Slice(result, func(i, j int) bool {
		if !result[i].UpdatedAt.Equal(result[j].UpdatedAt) {
			return result[i].UpdatedAt.Before(result[j].UpdatedAt)
		}
		return result[i].CustomerID < result[j].CustomerID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func cloneCart(src domain.Cart) domain.Cart {
	dst := src
	dst.Items = append([]domain.CartItem(nil), src.Items...)
	return dst
}

var _ domain.CartRepository = (*cartRepositoryInMemory)(nil)
