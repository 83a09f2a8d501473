package domain_test

import (
	"testing"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

func TestWebhookEventStatusValid(t *testing.T) {
	valid := []domain.WebhookEventStatus{
		domain.WebhookEventProcessing,
		domain.WebhookEventApplied,
		domain.WebhookEventFailed,
	}
	for _, s := range valid {
		if !s.Valid() {
			t.Fatalf("status %q must be valid", s)
		}
	}

	if domain.WebhookEventStatus("done").Valid() {
		t.Fatal("unknown status must be invalid")
	}
}

func TestWebhookEventValidate(t *testing.T) {
	event := domain.WebhookEvent{ProviderEventID: "pi_123", OrderID: "order-1"}
	if errs := event.Validate(); len(errs) != 0 {
		t.Fatalf("expected valid event, got %v", errs)
	}

	empty := domain.WebhookEvent{}
	if errs := empty.Validate(); len(errs) != 2 {
		t.Fatalf("expected 2 validation errors, got %v", errs)
	}
}
