package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/storage/memory"
	"github.com/vladislavdragonenkov/checkout/internal/storage/postgres"
)

// Dependencies содержит репозитории приложения и управляет их жизненным циклом.
type Dependencies struct {
	Inventory domain.InventoryRepository
	Carts     domain.CartRepository
	Orders    domain.OrderRepository
	Webhooks  domain.WebhookEventRepository
	Outbox    domain.OutboxRepository
	Timeline  domain.TimelineRepository

	// Store заполнен только при StorageDriverPostgres.
	Store  *postgres.Store
	Logger *log.Entry
}

// NewDependencies создаёт репозитории согласно выбранному storage driver.
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	switch cfg.StorageDriver {
	case StorageDriverMemory, "":
		logger.Info("using in-memory storage")
		return &Dependencies{
			Inventory: memory.NewInventoryRepository(),
			Carts:     memory.NewCartRepository(),
			Orders:    memory.NewOrderRepository(),
			Webhooks:  memory.NewWebhookEventRepository(),
			Outbox:    memory.NewOutboxRepository(),
			Timeline:  memory.NewTimelineRepository(),
			Logger:    logger,
		}, nil
	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres storage driver requires CHECKOUT_POSTGRES_DSN")
		}

		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}

		if cfg.PostgresAutoMigrate {
			if err := store.MigrateUp(ctx, 0); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("apply migrations: %w", err)
			}
			logger.Info("postgres migrations applied")
		}

		logger.Info("using postgres storage")
		return &Dependencies{
			Inventory: postgres.NewInventoryRepository(store),
			Carts:     postgres.NewCartRepository(store),
			Orders:    postgres.NewOrderRepository(store),
			Webhooks:  postgres.NewWebhookEventRepository(store),
			Outbox:    postgres.NewOutboxRepository(store),
			Timeline:  postgres.NewTimelineRepository(store),
			Store:     store,
			Logger:    logger,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.StorageDriver)
	}
}

// Close освобождает ресурсы хранилища.
func (d *Dependencies) Close() {
	if d == nil || d.Store == nil {
		return
	}
	if err := d.Store.Close(); err != nil {
		d.Logger.WithError(err).Warn("failed to close postgres store")
	}
}
