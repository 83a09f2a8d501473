package address

import (
	"sync"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// MockService — конфигурируемая заглушка AddressBook для тестов и локального запуска.
type MockService struct {
	mu     sync.RWMutex
	owners map[string]string // address_id -> customer_id

	// AllowAll отключает проверку владения: любой непустой адрес считается
	// принадлежащим клиенту. Используется для локального демо-запуска.
	AllowAll bool

	ResolveErr   error
	ResolveCalls int
}

// NewMockService возвращает mock с пустой адресной книгой.
func NewMockService() *MockService {
	return &MockService{
		owners: make(map[string]string),
	}
}

// Register закрепляет адрес за клиентом.
func (m *MockService) Register(customerID, addressID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.owners[addressID] = customerID
}

// ResolveOwned возвращает ErrInvalidAddress, если адрес не существует
// или принадлежит другому клиенту.
func (m *MockService) ResolveOwned(customerID, addressID string) error {
	m.mu.Lock()
	m.ResolveCalls++
	m.mu.Unlock()

	if m.ResolveErr != nil {
		return m.ResolveErr
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.AllowAll {
		if addressID == "" {
			return domain.ErrInvalidAddress
		}
		return nil
	}
	owner, ok := m.owners[addressID]
	if !ok || owner != customerID {
		return domain.ErrInvalidAddress
	}
	return nil
}

var _ domain.AddressBook = (*MockService)(nil)
