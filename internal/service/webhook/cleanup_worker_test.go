package webhook

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/storage/memory"
)

func TestCleanupWorker_DeleteExpired(t *testing.T) {
	repo := memory.NewWebhookEventRepository()

	past := time.Now().UTC().Add(-time.Hour)
	if _, _, err := repo.InsertIfAbsent(domain.WebhookEvent{ProviderEventID: "evt_old", OrderID: "order-1", TTLAt: past}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, _, err := repo.InsertIfAbsent(domain.WebhookEvent{ProviderEventID: "evt_new", OrderID: "order-2"}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	worker := NewCleanupWorker(repo, WithBatchSize(10))
	deleted, err := worker.DeleteExpired(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("delete expired failed: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted record, got %d", deleted)
	}

	if _, err := repo.Get("evt_old"); !errors.Is(err, domain.ErrEventNotFound) {
		t.Fatalf("expired record must be gone, got %v", err)
	}
	if _, err := repo.Get("evt_new"); err != nil {
		t.Fatalf("fresh record must survive: %v", err)
	}
}

func TestCleanupWorker_DeleteExpiredInBatches(t *testing.T) {
	repo := memory.NewWebhookEventRepository()

	past := time.Now().UTC().Add(-time.Hour)
	ids := []string{"evt_1", "evt_2", "evt_3", "evt_4", "evt_5"}
	for _, id := range ids {
		if _, _, err := repo.InsertIfAbsent(domain.WebhookEvent{ProviderEventID: id, OrderID: "order-1", TTLAt: past}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	worker := NewCleanupWorker(repo, WithBatchSize(2))
	deleted, err := worker.DeleteExpired(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("delete expired failed: %v", err)
	}
	if deleted != len(ids) {
		t.Fatalf("expected %d deleted records, got %d", len(ids), deleted)
	}
}

func TestCleanupWorker_RunStopsOnContextCancel(t *testing.T) {
	worker := NewCleanupWorker(memory.NewWebhookEventRepository(), WithInterval(time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup worker did not stop after context cancel")
	}
}

func TestNewCleanupWorker_Defaults(t *testing.T) {
	worker := NewCleanupWorker(nil, WithInterval(0), WithBatchSize(0))

	if worker.interval != defaultCleanupInterval {
		t.Fatalf("expected default interval, got %v", worker.interval)
	}
	if worker.batchSize != defaultCleanupBatchSize {
		t.Fatalf("expected default batch size, got %d", worker.batchSize)
	}
}
