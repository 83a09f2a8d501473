package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	// Ключ кеша статуса заказа: checkout:order_status:{order_id}.
	keyOrderStatus = "checkout:order_status:%s"

	defaultStatusTTL = 5 * time.Minute
	opTimeout        = 2 * time.Second
)

// OrderStatusCache — read-through кеш статусов заказов поверх Redis.
// Кеш опционален: при nil-клиенте все операции превращаются в no-op,
// источником истины остаётся хранилище заказов.
type OrderStatusCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *log.Entry
}

// NewOrderStatusCache создаёт кеш статусов. client может быть nil.
func NewOrderStatusCache(client *redis.Client, logger *log.Entry) *OrderStatusCache {
	if logger == nil {
		logger = log.WithField("component", "order-status-cache")
	}
	return &OrderStatusCache{
		client: client,
		ttl:    defaultStatusTTL,
		logger: logger,
	}
}

// SetTTL переопределяет время жизни кешированного статуса.
func (c *OrderStatusCache) SetTTL(ttl time.Duration) {
	if ttl > 0 {
		c.ttl = ttl
	}
}

// Enabled сообщает, подключён ли Redis.
func (c *OrderStatusCache) Enabled() bool {
	return c != nil && c.client != nil
}

// Get возвращает закешированное JSON-тело статуса заказа или ok=false.
func (c *OrderStatusCache) Get(ctx context.Context, orderID string) ([]byte, bool) {
	if !c.Enabled() || orderID == "" {
		return nil, false
	}

	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	body, err := c.client.Get(opCtx, fmt.Sprintf(keyOrderStatus, orderID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.WithError(err).WithField("order_id", orderID).Debug("status cache read failed")
		}
		return nil, false
	}
	if len(body) == 0 {
		return nil, false
	}

	return body, true
}

// Set кеширует JSON-тело статуса заказа. Ошибки кеша только логируются.
func (c *OrderStatusCache) Set(ctx context.Context, orderID string, body []byte) {
	if !c.Enabled() || orderID == "" || len(body) == 0 {
		return
	}

	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := c.client.Set(opCtx, fmt.Sprintf(keyOrderStatus, orderID), body, c.ttl).Err(); err != nil {
		c.logger.WithError(err).WithField("order_id", orderID).Debug("status cache write failed")
	}
}

// Invalidate удаляет закешированный статус после изменения заказа.
func (c *OrderStatusCache) Invalidate(ctx context.Context, orderID string) {
	if !c.Enabled() || orderID == "" {
		return
	}

	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := c.client.Del(opCtx, fmt.Sprintf(keyOrderStatus, orderID)).Err(); err != nil {
		c.logger.WithError(err).WithField("order_id", orderID).Debug("status cache invalidate failed")
	}
}

// NewRedisClient создаёт Redis-клиент для кеша статусов.
func NewRedisClient(addr string) *redis.Client {
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: addr})
}
