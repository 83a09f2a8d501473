package postgres

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

func TestWebhookEventRepository_Integration_InsertIfAbsent(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewWebhookEventRepository(store)

	event := domain.WebhookEvent{
		ProviderEventID: "evt-1",
		Provider:        "stripe",
		EventType:       "payment.succeeded",
		OrderID:         "order-1",
	}

	record, created, err := repo.InsertIfAbsent(event)
	if err != nil {
		t.Fatalf("insert webhook event: %v", err)
	}
	if !created {
		t.Fatal("expected created=true for first insert")
	}
	if record.Status != domain.WebhookEventProcessing {
		t.Fatalf("expected processing status, got %s", record.Status)
	}

	duplicate, created, err := repo.InsertIfAbsent(event)
	if err != nil {
		t.Fatalf("duplicate insert: %v", err)
	}
	if created {
		t.Fatal("expected created=false for duplicate insert")
	}
	if duplicate.ProviderEventID != "evt-1" || duplicate.OrderID != "order-1" {
		t.Fatalf("unexpected duplicate record: %+v", duplicate)
	}
}

func TestWebhookEventRepository_Integration_ConcurrentInsertSingleWinner(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewWebhookEventRepository(store)

	const workers = 8

	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		createdCnt  int
		existingCnt int
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, created, err := repo.InsertIfAbsent(domain.WebhookEvent{
				ProviderEventID: "evt-concurrent",
				OrderID:         "order-1",
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				t.Errorf("insert webhook event: %v", err)
				return
			}
			if created {
				createdCnt++
			} else {
				existingCnt++
			}
		}()
	}
	wg.Wait()

	if createdCnt != 1 {
		t.Fatalf("expected exactly one creator, got %d (existing %d)", createdCnt, existingCnt)
	}
}

func TestWebhookEventRepository_Integration_MarkAndReclaim(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewWebhookEventRepository(store)

	if _, _, err := repo.InsertIfAbsent(domain.WebhookEvent{
		ProviderEventID: "evt-2",
		OrderID:         "order-2",
	}); err != nil {
		t.Fatalf("insert webhook event: %v", err)
	}

	if err := repo.MarkFailed("evt-2", []byte(`{"error":"order not found"}`)); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	reclaimed, err := repo.Reclaim("evt-2")
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if !reclaimed {
		t.Fatal("expected reclaim of failed record to succeed")
	}

	record, err := repo.Get("evt-2")
	if err != nil {
		t.Fatalf("get webhook event: %v", err)
	}
	if record.Status != domain.WebhookEventProcessing {
		t.Fatalf("expected processing after reclaim, got %s", record.Status)
	}
	if len(record.Result) != 0 {
		t.Fatal("expected cached result to be cleared on reclaim")
	}

	// Повторный reclaim не должен перехватить запись в статусе processing.
	reclaimed, err = repo.Reclaim("evt-2")
	if err != nil {
		t.Fatalf("second reclaim: %v", err)
	}
	if reclaimed {
		t.Fatal("expected reclaim of processing record to be rejected")
	}

	if err := repo.MarkApplied("evt-2", []byte(`{"status":"applied"}`)); err != nil {
		t.Fatalf("mark applied: %v", err)
	}
	record, err = repo.Get("evt-2")
	if err != nil {
		t.Fatalf("get applied event: %v", err)
	}
	if record.Status != domain.WebhookEventApplied {
		t.Fatalf("expected applied status, got %s", record.Status)
	}
	if string(record.Result) != `{"status":"applied"}` {
		t.Fatalf("unexpected cached result: %s", record.Result)
	}
	if record.ProcessedAt.IsZero() {
		t.Fatal("expected processed_at to be set")
	}
}

func TestWebhookEventRepository_Integration_DeleteExpired(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewWebhookEventRepository(store)

	now := time.Now().UTC()

	if _, _, err := repo.InsertIfAbsent(domain.WebhookEvent{
		ProviderEventID: "evt-expired",
		OrderID:         "order-1",
		TTLAt:           now.Add(-time.Hour),
	}); err != nil {
		t.Fatalf("insert expired event: %v", err)
	}
	if _, _, err := repo.InsertIfAbsent(domain.WebhookEvent{
		ProviderEventID: "evt-fresh",
		OrderID:         "order-2",
		TTLAt:           now.Add(time.Hour),
	}); err != nil {
		t.Fatalf("insert fresh event: %v", err)
	}

	deleted, err := repo.DeleteExpired(now, 100)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted record, got %d", deleted)
	}

	if _, err := repo.Get("evt-expired"); !errors.Is(err, domain.ErrEventNotFound) {
		t.Fatalf("expected expired event to be gone, got %v", err)
	}
	if _, err := repo.Get("evt-fresh"); err != nil {
		t.Fatalf("fresh event should survive: %v", err)
	}
}
