package catalog

import (
	"sync"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// MockService — конфигурируемая заглушка Catalog для тестов и локального запуска.
type MockService struct {
	mu     sync.RWMutex
	prices map[string]domain.VariantPrice

	PriceErr   error
	PriceCalls int
}

// NewMockService возвращает mock с пустым справочником цен.
func NewMockService() *MockService {
	return &MockService{
		prices: make(map[string]domain.VariantPrice),
	}
}

// SetPrice добавляет или заменяет цену варианта.
func (m *MockService) SetPrice(variantID, currency string, priceMinor int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[variantID] = domain.VariantPrice{
		VariantID:  variantID,
		Currency:   currency,
		PriceMinor: priceMinor,
	}
}

// Price возвращает цену варианта, заранее настроенную ошибку или ErrVariantNotFound.
func (m *MockService) Price(variantID string) (domain.VariantPrice, error) {
	m.mu.Lock()
	m.PriceCalls++
	m.mu.Unlock()

	if m.PriceErr != nil {
		return domain.VariantPrice{}, m.PriceErr
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	price, ok := m.prices[variantID]
	if !ok {
		return domain.VariantPrice{}, domain.ErrVariantNotFound
	}
	return price, nil
}

var _ domain.Catalog = (*MockService)(nil)
