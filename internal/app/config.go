package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// StorageDriver определяет backend хранилища.
type StorageDriver string

const (
	StorageDriverMemory   StorageDriver = "memory"
	StorageDriverPostgres StorageDriver = "postgres"
)

// Config описывает настройки запуска приложения.
type Config struct {
	HTTPAddr    string
	MetricsAddr string

	StorageDriver       StorageDriver
	PostgresDSN         string
	PostgresAutoMigrate bool

	KafkaBrokers string
	RedisAddr    string

	WebhookSecret   string
	WebhookProvider string
	WebhookEventTTL time.Duration

	Currency string

	// DemoSeed наполняет каталог, остатки и адресную книгу демо-данными.
	// Предназначен для локального запуска и нагрузочных прогонов.
	DemoSeed bool

	// CartTTL и SweepInterval управляют сборкой брошенных корзин.
	CartTTL        time.Duration
	SweepInterval  time.Duration
	SweepBatchSize int

	CleanupInterval  time.Duration
	CleanupBatchSize int

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration
}

// DefaultConfig возвращает базовые настройки для локального запуска.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:            ":8080",
		MetricsAddr:         ":9090",
		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,
		WebhookProvider:     "stripe",
		WebhookEventTTL:     7 * 24 * time.Hour,
		Currency:            "USD",
		CartTTL:             30 * time.Minute,
		SweepInterval:       time.Minute,
		SweepBatchSize:      100,
		CleanupInterval:     time.Hour,
		CleanupBatchSize:    500,
		OutboxPollInterval:  time.Second,
		OutboxBatchSize:     100,
		OutboxMaxAttempts:   3,
		OutboxRetryDelay:    50 * time.Millisecond,
	}
}

// LoadConfigFromEnv читает настройки из окружения поверх значений по умолчанию.
// Все переменные имеют префикс CHECKOUT_.
func LoadConfigFromEnv() Config {
	cfg := DefaultConfig()

	cfg.HTTPAddr = envString("CHECKOUT_HTTP_ADDR", cfg.HTTPAddr)
	cfg.MetricsAddr = envString("CHECKOUT_METRICS_ADDR", cfg.MetricsAddr)

	if driver := envString("CHECKOUT_STORAGE_DRIVER", string(cfg.StorageDriver)); driver != "" {
		cfg.StorageDriver = StorageDriver(strings.ToLower(driver))
	}
	cfg.PostgresDSN = envString("CHECKOUT_POSTGRES_DSN", cfg.PostgresDSN)
	cfg.PostgresAutoMigrate = envBool("CHECKOUT_POSTGRES_AUTO_MIGRATE", cfg.PostgresAutoMigrate)

	cfg.KafkaBrokers = envString("CHECKOUT_KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.RedisAddr = envString("CHECKOUT_REDIS_ADDR", cfg.RedisAddr)

	cfg.WebhookSecret = envString("CHECKOUT_WEBHOOK_SECRET", cfg.WebhookSecret)
	cfg.WebhookProvider = envString("CHECKOUT_WEBHOOK_PROVIDER", cfg.WebhookProvider)
	cfg.WebhookEventTTL = envDuration("CHECKOUT_WEBHOOK_EVENT_TTL", cfg.WebhookEventTTL)

	cfg.Currency = envString("CHECKOUT_CURRENCY", cfg.Currency)
	cfg.DemoSeed = envBool("CHECKOUT_DEMO_SEED", cfg.DemoSeed)

	cfg.CartTTL = envDuration("CHECKOUT_CART_TTL", cfg.CartTTL)
	cfg.SweepInterval = envDuration("CHECKOUT_SWEEP_INTERVAL", cfg.SweepInterval)
	cfg.SweepBatchSize = envInt("CHECKOUT_SWEEP_BATCH_SIZE", cfg.SweepBatchSize)

	cfg.CleanupInterval = envDuration("CHECKOUT_CLEANUP_INTERVAL", cfg.CleanupInterval)
	cfg.CleanupBatchSize = envInt("CHECKOUT_CLEANUP_BATCH_SIZE", cfg.CleanupBatchSize)

	cfg.OutboxPollInterval = envDuration("CHECKOUT_OUTBOX_POLL_INTERVAL", cfg.OutboxPollInterval)
	cfg.OutboxBatchSize = envInt("CHECKOUT_OUTBOX_BATCH_SIZE", cfg.OutboxBatchSize)
	cfg.OutboxMaxAttempts = envInt("CHECKOUT_OUTBOX_MAX_ATTEMPTS", cfg.OutboxMaxAttempts)
	cfg.OutboxRetryDelay = envDuration("CHECKOUT_OUTBOX_RETRY_DELAY", cfg.OutboxRetryDelay)

	return cfg
}

func envString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}

func envInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func envDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}
