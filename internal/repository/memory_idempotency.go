package repository

import (
	"context"

	"ordercore/internal/domain"
)

// MemoryIdempotency ключи идемпотентности; уникальность ключа проверяется под блокировкой
type MemoryIdempotency struct{ store *MemoryStore }

func NewMemoryIdempotency(store *MemoryStore) *MemoryIdempotency {
	return &MemoryIdempotency{store: store}
}

var _ IdempotencyRepository = (*MemoryIdempotency)(nil)

func (mi *MemoryIdempotency) expired(r domain.IdempotencyRecord) bool {
	return !r.ExpiresAt.IsZero() && !mi.store.now().Before(r.ExpiresAt)
}

func (mi *MemoryIdempotency) Insert(ctx context.Context, r *domain.IdempotencyRecord) error {
	mi.store.wlock(ctx)
	defer mi.store.wunlock(ctx)
	if existing, ok := mi.store.idempotency[r.Key]; ok && !mi.expired(existing) {
		return ErrDuplicate
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = mi.store.now()
	}
	rec := *r
	rec.ResponseBody = append([]byte(nil), r.ResponseBody...)
	mi.store.idempotency[r.Key] = rec
	return nil
}

func (mi *MemoryIdempotency) Get(ctx context.Context, key string) (*domain.IdempotencyRecord, error) {
	mi.store.rlock(ctx)
	defer mi.store.runlock(ctx)
	r, ok := mi.store.idempotency[key]
	if !ok || mi.expired(r) {
		return nil, ErrNotFound
	}
	r.ResponseBody = append([]byte(nil), r.ResponseBody...)
	return &r, nil
}

func (mi *MemoryIdempotency) Complete(ctx context.Context, key string, statusCode int, body []byte) error {
	mi.store.wlock(ctx)
	defer mi.store.wunlock(ctx)
	r, ok := mi.store.idempotency[key]
	if !ok {
		return ErrNotFound
	}
	r.StatusCode = statusCode
	r.ResponseBody = append([]byte(nil), body...)
	mi.store.idempotency[key] = r
	return nil
}

func (mi *MemoryIdempotency) Delete(ctx context.Context, key string) error {
	mi.store.wlock(ctx)
	defer mi.store.wunlock(ctx)
	delete(mi.store.idempotency, key)
	return nil
}
