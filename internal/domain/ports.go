package domain

import "time"

// InventoryRepository описывает требования к хранилищу складских счётчиков.
// Все мутации — одиночные атомарные условные обновления по variant_id:
// никакого read-modify-write через два обращения к хранилищу.
type InventoryRepository interface {
	// Get возвращает учётную запись варианта или ErrVariantNotFound.
	Get(variantID string) (InventoryRecord, error)
	// Put создаёт или замещает учётную запись (публикация варианта).
	Put(record InventoryRecord) error
	// ReserveAtomic увеличивает reserved_qty на qty, только если
	// stock_qty - reserved_qty >= qty. Иначе ErrInsufficientStock.
	ReserveAtomic(variantID string, qty int64) (InventoryRecord, error)
	// ReleaseAtomic уменьшает reserved_qty на qty, только если reserved_qty >= qty.
	// Остаток stock_qty не меняется: единицы возвращаются в доступные.
	ReleaseAtomic(variantID string, qty int64) (InventoryRecord, error)
	// CommitAtomic уменьшает stock_qty и reserved_qty на qty одним шагом,
	// только если reserved_qty >= qty. Раздельное снятие резерва сделало бы
	// списанные единицы снова доступными.
	CommitAtomic(variantID string, qty int64) (InventoryRecord, error)
}

// CartRepository хранит активные корзины клиентов (одна корзина на клиента).
type CartRepository interface {
	// Get возвращает корзину клиента; отсутствие корзины — это пустая корзина.
	Get(customerID string) (Cart, error)
	// GetItem возвращает позицию по идентификатору или ErrCartItemNotFound.
	GetItem(customerID, itemID string) (CartItem, error)
	// UpsertItem создаёт или обновляет позицию корзины.
	UpsertItem(customerID string, item CartItem) error
	// RemoveItem удаляет позицию; отсутствие позиции — ErrCartItemNotFound.
	RemoveItem(customerID, itemID string) error
	// Clear удаляет все позиции корзины (чекаут или полный сброс).
	Clear(customerID string) error
	// ListStale возвращает до limit корзин, не менявшихся с указанного момента.
	ListStale(updatedBefore time.Time, limit int) ([]Cart, error)
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ целиком (all-or-nothing). Возвращает
	// ErrOrderNumberConflict, если номер заказа уже занят.
	Create(order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound.
	Get(id string) (Order, error)
	// ListByCustomer возвращает заказы клиента с опциональным ограничением на количество.
	ListByCustomer(customerID string, limit int) ([]Order, error)
	// Save применяет обновления к заказу с учётом optimistic locking.
	Save(order Order) error
	// MarkItemFinalized долговечно помечает позицию заказа как дошедшую до
	// склада (списание или возврат резерва выполнены). Повторная пометка —
	// no-op; отсутствие позиции — ErrOrderItemNotFound.
	MarkItemFinalized(orderID, itemID string) error
	// NextOrderNumber выдаёт следующее значение монотонной последовательности номеров.
	NextOrderNumber() (int64, error)
}

// WebhookEventRepository хранит dedup-записи webhook-событий.
type WebhookEventRepository interface {
	// InsertIfAbsent атомарно создаёт запись в статусе processing.
	// Если запись уже существует, возвращает её и created=false: два
	// конкурентных получателя одного provider event id не могут оба
	// увидеть "отсутствует".
	InsertIfAbsent(event WebhookEvent) (record WebhookEvent, created bool, err error)
	// Get возвращает запись или ErrEventNotFound.
	Get(providerEventID string) (WebhookEvent, error)
	// MarkApplied фиксирует успешную обработку и кеширует результат.
	MarkApplied(providerEventID string, result []byte) error
	// MarkFailed фиксирует ошибку обработки.
	MarkFailed(providerEventID string, result []byte) error
	// Reclaim атомарно переводит запись failed -> processing для повторной
	// обработки при следующей доставке. Возвращает false, если запись
	// не находилась в статусе failed.
	Reclaim(providerEventID string) (bool, error)
	// ReclaimStale атомарно перезахватывает запись, зависшую в processing
	// (обработчик упал, не успев выставить applied/failed): переводит её
	// в processing с новым received_at, только если текущий received_at
	// старше processingBefore. Возвращает false, если запись не подошла.
	ReclaimStale(providerEventID string, processingBefore time.Time) (bool, error)
	// DeleteExpired удаляет до limit записей с истёкшим TTL.
	DeleteExpired(before time.Time, limit int) (int, error)
}

// AddressBook — внешний коллаборатор: проверка принадлежности адреса клиенту.
type AddressBook interface {
	// ResolveOwned возвращает ErrInvalidAddress, если адрес не существует
	// или принадлежит другому клиенту.
	ResolveOwned(customerID, addressID string) error
}

// VariantPrice — снапшот цены варианта из каталога.
type VariantPrice struct {
	VariantID  string
	Currency   string
	PriceMinor int64
}

// Catalog — внешний коллаборатор: read-only справочник цен и вариантов.
type Catalog interface {
	// Price возвращает актуальную цену варианта или ErrVariantNotFound.
	Price(variantID string) (VariantPrice, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(event TimelineEvent) error
	List(orderID string) ([]TimelineEvent, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
