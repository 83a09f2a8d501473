package postgres

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

func newIntegrationOrder(orderNumber string) domain.Order {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return domain.Order{
		ID:                uuid.NewString(),
		OrderNumber:       orderNumber,
		CustomerID:        "customer-1",
		ShippingAddressID: "addr-ship-1",
		BillingAddressID:  "addr-bill-1",
		PaymentMethod:     "card",
		PaymentStatus:     domain.PaymentStatusPending,
		OrderStatus:       domain.OrderStatusCreated,
		InventoryState:    domain.InventoryStateHeld,
		Currency:          "USD",
		GrandTotalMinor:   5000,
		Items: []domain.OrderItem{
			{ID: uuid.NewString(), VariantID: "variant-1", Qty: 2, PriceMinor: 2500, CreatedAt: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestOrderRepository_Integration_CreateAndGet(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)

	order := newIntegrationOrder("ORD-000001")
	if err := repo.Create(order); err != nil {
		t.Fatalf("create order: %v", err)
	}

	loaded, err := repo.Get(order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if loaded.OrderNumber != "ORD-000001" {
		t.Fatalf("unexpected order number: %s", loaded.OrderNumber)
	}
	if loaded.PaymentStatus != domain.PaymentStatusPending || loaded.InventoryState != domain.InventoryStateHeld {
		t.Fatalf("unexpected statuses: %s / %s", loaded.PaymentStatus, loaded.InventoryState)
	}
	if len(loaded.Items) != 1 || loaded.Items[0].VariantID != "variant-1" {
		t.Fatalf("unexpected items: %+v", loaded.Items)
	}
}

func TestOrderRepository_Integration_DuplicateOrderNumber(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)

	if err := repo.Create(newIntegrationOrder("ORD-000042")); err != nil {
		t.Fatalf("create first order: %v", err)
	}

	err := repo.Create(newIntegrationOrder("ORD-000042"))
	if !errors.Is(err, domain.ErrOrderNumberConflict) {
		t.Fatalf("expected ErrOrderNumberConflict, got %v", err)
	}
}

func TestOrderRepository_Integration_SaveOptimisticLocking(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)

	order := newIntegrationOrder("ORD-000002")
	if err := repo.Create(order); err != nil {
		t.Fatalf("create order: %v", err)
	}

	order.PaymentStatus = domain.PaymentStatusPaid
	order.InventoryState = domain.InventoryStateCommitted
	order.UpdatedAt = time.Now().UTC()
	if err := repo.Save(order); err != nil {
		t.Fatalf("save order: %v", err)
	}

	// Сохранение со старой версией должно отклоняться.
	if err := repo.Save(order); !errors.Is(err, domain.ErrOrderVersionConflict) {
		t.Fatalf("expected ErrOrderVersionConflict, got %v", err)
	}

	loaded, err := repo.Get(order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if loaded.PaymentStatus != domain.PaymentStatusPaid || loaded.InventoryState != domain.InventoryStateCommitted {
		t.Fatalf("statuses were not applied together: %s / %s", loaded.PaymentStatus, loaded.InventoryState)
	}
	if loaded.Version != order.Version+1 {
		t.Fatalf("expected version bump to %d, got %d", order.Version+1, loaded.Version)
	}
}

func TestOrderRepository_Integration_NextOrderNumberMonotonic(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)

	first, err := repo.NextOrderNumber()
	if err != nil {
		t.Fatalf("next order number: %v", err)
	}
	second, err := repo.NextOrderNumber()
	if err != nil {
		t.Fatalf("next order number: %v", err)
	}
	if second <= first {
		t.Fatalf("expected monotonic sequence, got %d then %d", first, second)
	}
}

func TestOrderRepository_Integration_ListByCustomer(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)

	for i, number := range []string{"ORD-000010", "ORD-000011", "ORD-000012"} {
		order := newIntegrationOrder(number)
		order.CreatedAt = order.CreatedAt.Add(time.Duration(i) * time.Second)
		order.UpdatedAt = order.CreatedAt
		if err := repo.Create(order); err != nil {
			t.Fatalf("create order %s: %v", number, err)
		}
	}

	orders, err := repo.ListByCustomer("customer-1", 2)
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(orders))
	}
	if orders[0].OrderNumber != "ORD-000012" {
		t.Fatalf("expected newest order first, got %s", orders[0].OrderNumber)
	}
}
