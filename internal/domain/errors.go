package domain

import "errors"

var (
	// Ошибка отсутствующего идентификатора клиента.
	ErrCustomerRequired = errors.New("customer_id is required")
	// Ошибка отсутствующего кода валюты.
	ErrCurrencyRequired = errors.New("currency is required")
	// Ошибка отсутствия хотя бы одной позиции в заказе.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// Ошибка отрицательной суммы заказа.
	ErrAmountNegative = errors.New("grand_total_minor must be non-negative")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrItemQtyInvalid = errors.New("item qty must be greater than zero")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// Ошибка несоответствия суммы заказа и сумм позиций.
	ErrAmountMismatch = errors.New("order amount does not match items sum")
	// Ошибка отсутствующего идентификатора заказа.
	ErrOrderIDRequired = errors.New("order_id is required")
	// Ошибка отсутствующего адреса доставки или оплаты.
	ErrAddressRequired = errors.New("shipping and billing address ids are required")

	// ErrVariantIDRequired — в операции склада не указан вариант товара.
	ErrVariantIDRequired = errors.New("variant_id is required")
	// ErrVariantNotFound возвращается, если учётная запись склада для варианта отсутствует.
	ErrVariantNotFound = errors.New("inventory variant not found")
	// ErrQtyInvalid — количество в операции склада должно быть строго положительным.
	ErrQtyInvalid = errors.New("qty must be greater than zero")
	// ErrStockNegative — физический остаток не может быть отрицательным.
	ErrStockNegative = errors.New("stock_qty must be non-negative")
	// ErrInsufficientStock — бизнес-исход: запрошено больше, чем доступно (stock - reserved).
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrReservedUnderflow сигнализирует о попытке снять резерв больше удержанного.
	ErrReservedUnderflow = errors.New("reserved qty underflow")
	// ErrInventoryConflict — конфликт версий при конкурентном обновлении учётной записи склада.
	ErrInventoryConflict = errors.New("inventory version conflict")

	// ErrCartItemNotFound возвращается, если позиция корзины не найдена.
	ErrCartItemNotFound = errors.New("cart item not found")
	// ErrEmptyCart — бизнес-исход: чекаут пустой корзины невозможен.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrInvalidAddress — адрес не существует или не принадлежит клиенту.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderItemNotFound возвращается, если позиция заказа не найдена.
	ErrOrderItemNotFound = errors.New("order item not found")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении заказа.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrOrderNumberConflict — сгенерированный номер заказа уже занят, нужен повтор.
	ErrOrderNumberConflict = errors.New("order number conflict")
	// ErrOrderFinalized — заказ уже в терминальном платёжном статусе.
	ErrOrderFinalized = errors.New("order already finalized")

	// ErrEventIDRequired — у webhook-события отсутствует идентификатор провайдера.
	ErrEventIDRequired = errors.New("provider event id is required")
	// ErrEventNotFound возвращается, если dedup-запись события не найдена.
	ErrEventNotFound = errors.New("webhook event not found")
	// ErrEventAlreadyExists — событие с таким provider event id уже зафиксировано.
	ErrEventAlreadyExists = errors.New("webhook event already exists")
	// ErrInvalidSignature — подпись webhook не прошла проверку.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrInvalidPayload — тело webhook не разбирается или не содержит обязательных полей.
	ErrInvalidPayload = errors.New("invalid webhook payload")

	// ErrStorageUnavailable — временная ошибка хранилища, операция может быть повторена.
	ErrStorageUnavailable = errors.New("storage temporarily unavailable")
	// ErrRetryExhausted возвращается после исчерпания бюджета повторов.
	ErrRetryExhausted = errors.New("retry attempts exhausted")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// IsVersionConflict проверяет, является ли ошибка конфликтом версий склада или заказа.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrInventoryConflict) || errors.Is(err, ErrOrderVersionConflict)
}

// IsBusinessRejection отличает ожидаемый бизнес-исход (4xx на границе HTTP)
// от системного сбоя.
func IsBusinessRejection(err error) bool {
	switch {
	case errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrEmptyCart),
		errors.Is(err, ErrInvalidAddress),
		errors.Is(err, ErrQtyInvalid),
		errors.Is(err, ErrCartItemNotFound),
		errors.Is(err, ErrVariantNotFound),
		errors.Is(err, ErrInvalidPayload):
		return true
	default:
		return false
	}
}

// IsTransient проверяет, имеет ли смысл повторить операцию.
func IsTransient(err error) bool {
	return errors.Is(err, ErrStorageUnavailable) || IsVersionConflict(err)
}
