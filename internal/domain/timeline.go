package domain

import "time"

// Типы событий таймлайна заказа.
const (
	TimelineOrderCreated        = "OrderCreated"
	TimelinePaymentApplied      = "PaymentApplied"
	TimelinePaymentFailed       = "PaymentFailed"
	TimelineReservationReleased = "ReservationReleased"
	TimelineCommitFailed        = "CommitFailed"
)

// TimelineEvent описывает событие в жизненном цикле заказа.
type TimelineEvent struct {
	OrderID  string
	Type     string
	Reason   string
	Occurred time.Time
}
