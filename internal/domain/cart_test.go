package domain_test

import (
	"testing"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

func makeCart() domain.Cart {
	now := time.Now().UTC()
	return domain.Cart{
		CustomerID: "customer-1",
		Currency:   "USD",
		Items: []domain.CartItem{
			{ID: "item-1", VariantID: "variant-1", Qty: 2, PriceMinor: 150, CreatedAt: now, UpdatedAt: now},
			{ID: "item-2", VariantID: "variant-2", Qty: 1, PriceMinor: 700, CreatedAt: now, UpdatedAt: now},
		},
		UpdatedAt: now,
	}
}

func TestCartTotalMinor(t *testing.T) {
	cart := makeCart()
	if got := cart.TotalMinor(); got != 1000 {
		t.Fatalf("expected total 1000, got %d", got)
	}
}

func TestCartIsEmpty(t *testing.T) {
	cart := makeCart()
	if cart.IsEmpty() {
		t.Fatal("cart with items must not be empty")
	}

	cart.Items = nil
	if !cart.IsEmpty() {
		t.Fatal("cart without items must be empty")
	}
}

func TestCartItemByVariant(t *testing.T) {
	cart := makeCart()

	item, ok := cart.ItemByVariant("variant-2")
	if !ok {
		t.Fatal("expected to find variant-2")
	}
	if item.ID != "item-2" {
		t.Fatalf("expected item-2, got %s", item.ID)
	}

	if _, ok := cart.ItemByVariant("variant-x"); ok {
		t.Fatal("unexpected item for unknown variant")
	}
}

func TestCartItemValidate(t *testing.T) {
	item := domain.CartItem{ID: "item-1", VariantID: "variant-1", Qty: 1, PriceMinor: 100}
	if errs := item.Validate(); len(errs) != 0 {
		t.Fatalf("expected valid item, got %v", errs)
	}

	bad := domain.CartItem{Qty: 0, PriceMinor: -1}
	if errs := bad.Validate(); len(errs) != 3 {
		t.Fatalf("expected 3 validation errors, got %v", errs)
	}
}
