package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// EventType определяет тип публикуемого события.
type EventType string

const (
	// Order события
	EventTypeOrderCreated   EventType = "order.created"
	EventTypeOrderPaid      EventType = "order.paid"
	EventTypeOrderCancelled EventType = "order.cancelled"

	// Inventory события
	EventTypeReservationReleased EventType = "reservation.released"
)

// Topics для Kafka.
const (
	TopicOrderEvents     = "checkout.order.events"
	TopicDeadLetterQueue = "checkout.dlq"
)

// OrderEvent представляет событие жизненного цикла заказа.
type OrderEvent struct {
	EventType  EventType              `json:"event_type"`
	OrderID    string                 `json:"order_id"`
	CustomerID string                 `json:"customer_id"`
	Status     string                 `json:"status"`
	Timestamp  time.Time              `json:"timestamp"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// NewOrderEvent создаёт новое событие заказа.
func NewOrderEvent(eventType EventType, orderID, customerID, status string, metadata map[string]interface{}) *OrderEvent {
	return &OrderEvent{
		EventType:  eventType,
		OrderID:    orderID,
		CustomerID: customerID,
		Status:     status,
		Timestamp:  time.Now(),
		Metadata:   metadata,
	}
}

// OrderEventFromOutbox восстанавливает типизированное событие заказа из
// outbox-сообщения: известные поля payload поднимаются в событие,
// остальные уходят в Metadata.
func OrderEventFromOutbox(msg domain.OutboxMessage) (*OrderEvent, error) {
	fields := make(map[string]interface{})
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &fields); err != nil {
			return nil, fmt.Errorf("decode outbox payload: %w", err)
		}
	}

	event := &OrderEvent{
		EventType: EventType(msg.EventType),
		OrderID:   msg.AggregateID,
		Timestamp: time.Now().UTC(),
	}
	if v, ok := fields["order_id"].(string); ok && v != "" {
		event.OrderID = v
	}
	delete(fields, "order_id")
	if v, ok := fields["customer_id"].(string); ok {
		event.CustomerID = v
		delete(fields, "customer_id")
	}
	if v, ok := fields["status"].(string); ok {
		event.Status = v
		delete(fields, "status")
	}
	if len(fields) > 0 {
		event.Metadata = fields
	}

	return event, nil
}
