package postgres

import (
	"errors"
	"sync"
	"testing"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

func TestInventoryRepository_Integration_ReserveCommitRelease(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewInventoryRepository(store)

	if err := repo.Put(domain.InventoryRecord{VariantID: "variant-1", StockQty: 10}); err != nil {
		t.Fatalf("put inventory: %v", err)
	}

	record, err := repo.ReserveAtomic("variant-1", 4)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if record.ReservedQty != 4 || record.AvailableQty() != 6 {
		t.Fatalf("unexpected record after reserve: %+v", record)
	}

	if _, err := repo.ReserveAtomic("variant-1", 7); !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	record, err = repo.CommitAtomic("variant-1", 3)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if record.StockQty != 7 || record.ReservedQty != 1 {
		t.Fatalf("unexpected record after commit: %+v", record)
	}

	record, err = repo.ReleaseAtomic("variant-1", 1)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if record.StockQty != 7 || record.ReservedQty != 0 {
		t.Fatalf("unexpected record after release: %+v", record)
	}

	if _, err := repo.ReleaseAtomic("variant-1", 1); !errors.Is(err, domain.ErrReservedUnderflow) {
		t.Fatalf("expected ErrReservedUnderflow, got %v", err)
	}
}

func TestInventoryRepository_Integration_UnknownVariant(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewInventoryRepository(store)

	if _, err := repo.Get("ghost"); !errors.Is(err, domain.ErrVariantNotFound) {
		t.Fatalf("expected ErrVariantNotFound, got %v", err)
	}
	if _, err := repo.ReserveAtomic("ghost", 1); !errors.Is(err, domain.ErrVariantNotFound) {
		t.Fatalf("expected ErrVariantNotFound on reserve, got %v", err)
	}
}

func TestInventoryRepository_Integration_ConcurrentReserveNoOversell(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewInventoryRepository(store)

	if err := repo.Put(domain.InventoryRecord{VariantID: "variant-hot", StockQty: 20}); err != nil {
		t.Fatalf("put inventory: %v", err)
	}

	const (
		workers = 10
		qty     = 3
	)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		rejected int
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.ReserveAtomic("variant-hot", qty)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case errors.Is(err, domain.ErrInsufficientStock):
				rejected++
			default:
				t.Errorf("unexpected reserve error: %v", err)
			}
		}()
	}
	wg.Wait()

	if accepted != 6 || rejected != 4 {
		t.Fatalf("expected 6 accepted / 4 rejected, got %d / %d", accepted, rejected)
	}

	record, err := repo.Get("variant-hot")
	if err != nil {
		t.Fatalf("get inventory: %v", err)
	}
	if record.ReservedQty != 18 || record.AvailableQty() != 2 {
		t.Fatalf("unexpected final record: %+v", record)
	}
}
