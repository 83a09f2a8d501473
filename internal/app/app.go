package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/cache"
	"github.com/vladislavdragonenkov/checkout/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/checkout/internal/health"
	"github.com/vladislavdragonenkov/checkout/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/checkout/internal/service/address"
	"github.com/vladislavdragonenkov/checkout/internal/service/catalog"
	checkoutsvc "github.com/vladislavdragonenkov/checkout/internal/service/checkout"
	"github.com/vladislavdragonenkov/checkout/internal/service/inventory"
	"github.com/vladislavdragonenkov/checkout/internal/service/outbox"
	"github.com/vladislavdragonenkov/checkout/internal/service/reservation"
	"github.com/vladislavdragonenkov/checkout/internal/service/webhook"
	"github.com/vladislavdragonenkov/checkout/internal/transport/httpx"
	"github.com/vladislavdragonenkov/checkout/internal/version"
)

// Run собирает все зависимости и запускает HTTP API, метрики и фоновые
// воркеры. Блокируется до отмены ctx или фатальной ошибки сервера.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	// Kafka опционален: без брокеров события заказа остаются в outbox.
	// Ошибка подключения уже залогирована, сервис продолжает работу без Kafka.
	kafkaProducer, _ := initKafkaProducer(cfg.KafkaBrokers, logger)
	defer closeKafka(kafkaProducer, logger)

	// Redis опционален: при пустом адресе кеш статусов выключен.
	redisClient := cache.NewRedisClient(cfg.RedisAddr)
	statusCache := cache.NewOrderStatusCache(redisClient, logger.WithField("component", "status-cache"))
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.WithError(err).Warn("failed to close redis client")
			}
		}()
		logger.WithField("addr", cfg.RedisAddr).Info("redis status cache enabled")
	}

	// NOTE: Using mock services for development/demo purposes
	// In production, replace with real catalog and address service clients
	catalogSvc := catalog.NewMockService()
	addressSvc := address.NewMockService()

	if cfg.DemoSeed {
		seedDemoData(cfg, deps, catalogSvc, addressSvc, logger)
	}

	engine := reservation.NewEngine(deps.Inventory, deps.Carts, catalogSvc, logger.WithField("component", "reservation"))
	engine.SetCurrency(cfg.Currency)

	orchestrator := checkoutsvc.NewOrchestrator(
		deps.Carts,
		deps.Orders,
		addressSvc,
		deps.Outbox,
		deps.Timeline,
		logger.WithField("component", "checkout"),
	)
	orchestrator.SetCurrency(cfg.Currency)

	finalizer := inventory.NewFinalizer(
		deps.Orders,
		deps.Inventory,
		deps.Outbox,
		deps.Timeline,
		logger.WithField("component", "inventory-finalizer"),
	)

	if cfg.WebhookSecret == "" {
		logger.Warn("webhook secret is empty, signature verification will reject all deliveries")
	}
	gate := webhook.NewGate(
		deps.Webhooks,
		finalizer,
		[]byte(cfg.WebhookSecret),
		cfg.WebhookProvider,
		logger.WithField("component", "webhook-gate"),
	)
	gate.SetEventTTL(cfg.WebhookEventTTL)

	router := httpx.NewRouter()
	httpx.NewCartHandler(engine, logger.WithField("layer", "http")).Register(router)
	httpx.NewOrdersHandler(orchestrator, statusCache, logger.WithField("layer", "http")).Register(router)
	httpx.NewWebhookHandler(gate, statusCache, logger.WithField("layer", "http")).Register(router)

	// Фоновые воркеры живут до отмены workerCtx.
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	sweeper := reservation.NewSweeper(engine, deps.Carts,
		reservation.WithLogger(logger.WithField("component", "reservation-sweeper")),
		reservation.WithInterval(cfg.SweepInterval),
		reservation.WithTTL(cfg.CartTTL),
		reservation.WithBatchSize(cfg.SweepBatchSize),
	)
	go sweeper.Run(workerCtx)

	cleanup := webhook.NewCleanupWorker(deps.Webhooks,
		webhook.WithLogger(logger.WithField("component", "webhook-cleanup")),
		webhook.WithInterval(cfg.CleanupInterval),
		webhook.WithBatchSize(cfg.CleanupBatchSize),
	)
	go cleanup.Run(workerCtx)

	if kafkaProducer != nil {
		publisher := kafka.NewOutboxPublisher(kafkaProducer, kafka.TopicOrderEvents)
		dlqPublisher := kafka.NewOutboxPublisher(kafkaProducer, kafka.TopicDeadLetterQueue)
		outboxWorker := outbox.NewWorker(deps.Outbox, publisher,
			outbox.WithLogger(logger.WithField("component", "outbox-worker")),
			outbox.WithDLQPublisher(dlqPublisher),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
			outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
			outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
		)
		go outboxWorker.Run(workerCtx)
	} else {
		logger.Info("kafka is not configured, outbox worker disabled")
	}

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	if deps.Store != nil {
		store := deps.Store
		healthHandler.RegisterChecker("postgres", healthcheck.NewSimpleChecker("postgres", func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return store.Ping(pingCtx)
		}))
	}

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	apiSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP API слушает %s", cfg.HTTPAddr)
		errCh <- apiSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем HTTP сервер")
		cancelWorkers()
		shutdownHTTP(apiSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		return ctx.Err()
	case err := <-errCh:
		cancelWorkers()
		shutdownHTTP(metricsSrv, logger)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// seedDemoData наполняет каталог, остатки и адресную книгу данными для
// локального демо и нагрузочных прогонов.
func seedDemoData(cfg Config, deps *Dependencies, catalogSvc *catalog.MockService, addressSvc *address.MockService, logger *log.Entry) {
	seeds := []struct {
		variantID  string
		priceMinor int64
		stockQty   int64
	}{
		{"demo-tee-blue-m", 2500, 10_000},
		{"demo-tee-blue-l", 2500, 10_000},
		{"demo-hoodie-black-m", 5900, 5_000},
		{"demo-mug-white", 1200, 25_000},
	}

	for _, seed := range seeds {
		catalogSvc.SetPrice(seed.variantID, cfg.Currency, seed.priceMinor)
		if err := deps.Inventory.Put(domain.InventoryRecord{
			VariantID: seed.variantID,
			StockQty:  seed.stockQty,
		}); err != nil {
			logger.WithError(err).WithField("variant_id", seed.variantID).Warn("failed to seed inventory")
		}
	}

	addressSvc.AllowAll = true
	logger.WithField("variants", len(seeds)).Info("demo data seeded")
}

// startMetricsServer запускает HTTP-обработчик /metrics для Prometheus.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
