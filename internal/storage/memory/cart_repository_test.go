package memory_test

import (
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/storage/memory"
)

func TestCartRepository_GetEmpty(t *testing.T) {
	repo := memory.NewCartRepository()

	cart, err := repo.Get("customer-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !cart.IsEmpty() {
		t.Fatal("expected empty cart for unknown customer")
	}
}

func TestCartRepository_UpsertAndGetItem(t *testing.T) {
	repo := memory.NewCartRepository()

	item := domain.CartItem{VariantID: "variant-1", Qty: 2, PriceMinor: 100}
	if err := repo.UpsertItem("customer-1", item); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	cart, err := repo.Get("customer-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(cart.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(cart.Items))
	}
	if cart.Items[0].ID == "" {
		t.Fatal("expected generated item id")
	}

	got, err := repo.GetItem("customer-1", cart.Items[0].ID)
	if err != nil {
		t.Fatalf("get item failed: %v", err)
	}
	if got.VariantID != "variant-1" || got.Qty != 2 {
		t.Fatalf("unexpected item: %+v", got)
	}

	// Повторный upsert той же позиции обновляет количество, не добавляя строку.
	got.Qty = 5
	if err := repo.UpsertItem("customer-1", got); err != nil {
		t.Fatalf("upsert update failed: %v", err)
	}
	cart, _ = repo.Get("customer-1")
	if len(cart.Items) != 1 || cart.Items[0].Qty != 5 {
		t.Fatalf("expected single item with qty 5, got %+v", cart.Items)
	}
}

func TestCartRepository_RemoveItem(t *testing.T) {
	repo := memory.NewCartRepository()

	if err := repo.UpsertItem("customer-1", domain.CartItem{VariantID: "variant-1", Qty: 1, PriceMinor: 50}); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	cart, _ := repo.Get("customer-1")

	if err := repo.RemoveItem("customer-1", cart.Items[0].ID); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if err := repo.RemoveItem("customer-1", cart.Items[0].ID); !errors.Is(err, domain.ErrCartItemNotFound) {
		t.Fatalf("expected ErrCartItemNotFound, got %v", err)
	}
}

func TestCartRepository_Clear(t *testing.T) {
	repo := memory.NewCartRepository()

	if err := repo.UpsertItem("customer-1", domain.CartItem{VariantID: "variant-1", Qty: 1, PriceMinor: 50}); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if err := repo.Clear("customer-1"); err != nil {
		t.Fatalf("clear failed: %v", err)
	}

	cart, _ := repo.Get("customer-1")
	if !cart.IsEmpty() {
		t.Fatal("expected empty cart after clear")
	}
}

func TestCartRepository_ListStale(t *testing.T) {
	repo := memory.NewCartRepository()

	if err := repo.UpsertItem("customer-1", domain.CartItem{VariantID: "variant-1", Qty: 1, PriceMinor: 50}); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	// Свежая корзина не попадает в выборку по прошлому порогу.
	stale, err := repo.ListStale(time.Now().UTC().Add(-time.Hour), 10)
	if err != nil {
		t.Fatalf("list stale failed: %v", err)
	}
	if len(stale) != 0 {
		t.Fatalf("expected no stale carts, got %d", len(stale))
	}

	// Порог в будущем захватывает корзину.
	stale, err = repo.ListStale(time.Now().UTC().Add(time.Hour), 10)
	if err != nil {
		t.Fatalf("list stale failed: %v", err)
	}
	if len(stale) != 1 || stale[0].CustomerID != "customer-1" {
		t.Fatalf("expected stale cart for customer-1, got %+v", stale)
	}
}
