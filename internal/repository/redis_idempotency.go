package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ordercore/internal/domain"
)

// KeyIdemOrderCreate idem:order:create:{key} -> JSON IdempotencyRecord
const KeyIdemOrderCreate = "idem:order:create:%s"

// RedisIdempotency SET NX как арбитр гонки между процессами; TTL задаёт срок жизни ключа
type RedisIdempotency struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisIdempotency(rdb *redis.Client, ttl time.Duration) *RedisIdempotency {
	return &RedisIdempotency{rdb: rdb, ttl: ttl}
}

var _ IdempotencyRepository = (*RedisIdempotency)(nil)

func idemKey(key string) string { return fmt.Sprintf(KeyIdemOrderCreate, key) }

func (ri *RedisIdempotency) Insert(ctx context.Context, r *domain.IdempotencyRecord) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	ttl := ri.ttl
	if !r.ExpiresAt.IsZero() {
		// short-lived records such as cancel claims carry their own expiry
		if d := time.Until(r.ExpiresAt); d > 0 {
			ttl = d
		}
	} else if ttl > 0 {
		r.ExpiresAt = r.CreatedAt.Add(ttl)
	}
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	ok, err := ri.rdb.SetNX(ctx, idemKey(r.Key), b, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrDuplicate
	}
	return nil
}

func (ri *RedisIdempotency) Get(ctx context.Context, key string) (*domain.IdempotencyRecord, error) {
	b, err := ri.rdb.Get(ctx, idemKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var r domain.IdempotencyRecord
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("decode idempotency record: %w", err)
	}
	return &r, nil
}

// Complete перезаписывает запись, сохраняя оставшийся TTL
func (ri *RedisIdempotency) Complete(ctx context.Context, key string, statusCode int, body []byte) error {
	r, err := ri.Get(ctx, key)
	if err != nil {
		return err
	}
	r.StatusCode = statusCode
	r.ResponseBody = body
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	err = ri.rdb.SetArgs(ctx, idemKey(key), b, redis.SetArgs{Mode: "XX", KeepTTL: true}).Err()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	return err
}

func (ri *RedisIdempotency) Delete(ctx context.Context, key string) error {
	return ri.rdb.Del(ctx, idemKey(key)).Err()
}
