package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"ordercore/internal/domain"
)

const (
	// KeyOrder order:{order_id} -> JSON domain.Order вместе с платежом
	KeyOrder = "order:{%d}"
	// KeyOrderRevision ревизия закэшированного представления; старшая ревизия не перезаписывается
	KeyOrderRevision = "order:{%d}:rev"

	DefaultOrderTTL = 5 * time.Minute
)

// New redis-клиент с коротким таймаутом на операции
func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// RedisOrders кэш представления заказа. Ошибки Redis не пробрасываются наверх:
// промах кэша всегда означает чтение из хранилища
type RedisOrders struct {
	rdb *redis.Client
	ttl time.Duration
	log *zap.Logger
}

func NewRedisOrders(rdb *redis.Client, ttl time.Duration, log *zap.Logger) *RedisOrders {
	if ttl <= 0 {
		ttl = DefaultOrderTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisOrders{rdb: rdb, ttl: ttl, log: log}
}

// setIfNewer пишет представление, только если закэшированная ревизия не новее
var setIfNewer = redis.NewScript(`
local cur = redis.call('GET', KEYS[2])
if cur and tonumber(cur) > tonumber(ARGV[2]) then
  return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
return 1
`)

func orderKey(id int64) string    { return fmt.Sprintf(KeyOrder, id) }
func revisionKey(id int64) string { return fmt.Sprintf(KeyOrderRevision, id) }

func (c *RedisOrders) Get(ctx context.Context, id int64) (*domain.Order, bool) {
	b, err := c.rdb.Get(ctx, orderKey(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("order cache get failed", zap.Int64("order_id", id), zap.Error(err))
		}
		return nil, false
	}
	var o domain.Order
	if err := json.Unmarshal(b, &o); err != nil {
		c.log.Warn("order cache decode failed", zap.Int64("order_id", id), zap.Error(err))
		return nil, false
	}
	return &o, true
}

// Set запаздывающий читатель со старой ревизией не затирает свежую запись
// после отмены или авторизации платежа
func (c *RedisOrders) Set(ctx context.Context, o *domain.Order) {
	b, err := json.Marshal(o)
	if err != nil {
		c.log.Warn("order cache encode failed", zap.Int64("order_id", o.ID), zap.Error(err))
		return
	}
	keys := []string{orderKey(o.ID), revisionKey(o.ID)}
	written, err := setIfNewer.Run(ctx, c.rdb, keys, b, o.Revision(), c.ttl.Milliseconds()).Int()
	if err != nil {
		c.log.Warn("order cache set failed", zap.Int64("order_id", o.ID), zap.Error(err))
		return
	}
	if written == 0 {
		c.log.Debug("stale order representation skipped", zap.Int64("order_id", o.ID), zap.Int64("revision", o.Revision()))
	}
}
