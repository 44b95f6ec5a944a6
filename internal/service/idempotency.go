package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ordercore/internal/domain"
	"ordercore/internal/observability"
	"ordercore/internal/repository"
)

// OperationOrderCreate тип операции в записи идемпотентности
const OperationOrderCreate = "ORDER_CREATE"

// Response сохранённый ответ: статус и тело
type Response struct {
	StatusCode int
	Body       []byte
}

// IdempotencyGuard исполняет proceed не более одного раза на ключ.
// Гонку первых запросов разрешает уникальная вставка в репозитории
type IdempotencyGuard struct {
	repo    repository.IdempotencyRepository
	ttl     time.Duration
	wait    time.Duration
	poll    time.Duration
	log     *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

func NewIdempotencyGuard(repo repository.IdempotencyRepository, ttl, wait time.Duration, log *zap.Logger, m *observability.Metrics) *IdempotencyGuard {
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = observability.NopMetrics()
	}
	return &IdempotencyGuard{
		repo:    repo,
		ttl:     ttl,
		wait:    wait,
		poll:    25 * time.Millisecond,
		log:     log,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Handle без ключа просто вызывает proceed. Ответы 5xx не сохраняются: ключ освобождается,
// чтобы клиент мог повторить запрос
func (g *IdempotencyGuard) Handle(ctx context.Context, key string, body []byte, proceed func(context.Context) Response) (Response, error) {
	if key == "" {
		return proceed(ctx), nil
	}
	log := observability.LoggerFrom(ctx, g.log).With(zap.String("idempotency_key", key))
	hash := CanonicalHash(body)
	deadline := g.now().Add(g.wait)

	for {
		now := g.now()
		rec := &domain.IdempotencyRecord{
			Key:           key,
			RequestHash:   hash,
			OperationType: OperationOrderCreate,
			CreatedAt:     now,
		}
		if g.ttl > 0 {
			rec.ExpiresAt = now.Add(g.ttl)
		}
		err := g.repo.Insert(ctx, rec)
		if err == nil {
			return g.run(ctx, log, key, proceed), nil
		}
		if !errors.Is(err, repository.ErrDuplicate) {
			return Response{}, fmt.Errorf("idempotency insert: %w", err)
		}

		existing, err := g.repo.Get(ctx, key)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			// released or expired between insert and read
			if g.now().Before(deadline) {
				continue
			}
			return Response{}, ErrRequestInFlight
		case err != nil:
			return Response{}, fmt.Errorf("idempotency lookup: %w", err)
		case existing.RequestHash != hash:
			log.Warn("idempotency key reuse")
			return Response{}, ErrKeyReuse
		case !existing.Pending():
			g.metrics.IdempotentReplays.Inc()
			log.Info("idempotent_replay", zap.Int("status", existing.StatusCode))
			return Response{StatusCode: existing.StatusCode, Body: existing.ResponseBody}, nil
		}

		if !g.now().Before(deadline) {
			return Response{}, ErrRequestInFlight
		}
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case <-time.After(g.poll):
		}
	}
}

func (g *IdempotencyGuard) run(ctx context.Context, log *zap.Logger, key string, proceed func(context.Context) Response) Response {
	resp := proceed(ctx)
	// the record must be settled even if the client went away
	ctx = context.WithoutCancel(ctx)
	if resp.StatusCode >= 500 {
		if err := g.repo.Delete(ctx, key); err != nil {
			log.Error("idempotency key release failed", zap.Error(err))
		}
		return resp
	}
	if err := g.repo.Complete(ctx, key, resp.StatusCode, resp.Body); err != nil {
		log.Error("idempotency record completion failed", zap.Int("status", resp.StatusCode), zap.Error(err))
	}
	return resp
}

// CanonicalHash sha256 от JSON с отсортированными ключами и без пробелов.
// Тело, не являющееся JSON, хэшируется как есть (без крайних пробелов)
func CanonicalHash(body []byte) string {
	canonical := bytes.TrimSpace(body)
	dec := json.NewDecoder(bytes.NewReader(canonical))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err == nil && !dec.More() {
		// map keys are marshalled in sorted order
		if b, err := json.Marshal(v); err == nil {
			canonical = b
		}
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}
