package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"ordercore/internal/domain"
	"ordercore/internal/events"
	"ordercore/internal/observability"
	"ordercore/internal/repository"
)

// CancellationService отмена оплаченного заказа: возврат запаса,
// аннулирование платежа и статус CANCELLED видны только вместе
type CancellationService struct {
	orders     repository.OrderRepository
	payments   repository.PaymentRepository
	tx         repository.TxManager
	claims     repository.IdempotencyRepository
	inventory  *InventoryReservoir
	authorizer *PaymentAuthorizer
	events     events.Publisher
	cache      OrderCache
	log        *zap.Logger
	metrics    *observability.Metrics
	tracer     trace.Tracer
}

// NewCancellationService переиспользует зависимости конвейера заказов
func NewCancellationService(d OrderDeps) *CancellationService {
	s := &CancellationService{
		orders:     d.Orders,
		payments:   d.Payments,
		tx:         d.Tx,
		claims:     d.Claims,
		inventory:  d.Inventory,
		authorizer: d.Authorizer,
		events:     d.Events,
		cache:      d.Cache,
		log:        d.Log,
		metrics:    d.Metrics,
		tracer:     observability.Tracer("ordercore/cancellation"),
	}
	if s.claims == nil {
		s.claims = repository.NewMemoryIdempotency(repository.NewMemoryStore())
	}
	if s.events == nil {
		s.events = events.Nop{}
	}
	if s.cache == nil {
		s.cache = nopCache{}
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.metrics == nil {
		s.metrics = observability.NopMetrics()
	}
	return s
}

// OperationOrderCancel тип записи-захвата отмены заказа
const OperationOrderCancel = "ORDER_CANCEL"

// cancelClaimTTL переживает вызов шлюза; зависший захват истекает сам
const cancelClaimTTL = time.Minute

// Cancel захватывает заказ уникальной вставкой, аннулирует авторизацию в шлюзе
// вне транзакции, затем одной транзакцией возвращает запас и меняет статусы.
// Отказ шлюза ничего не меняет; пока идёт вызов шлюза, хранилище не заблокировано
func (s *CancellationService) Cancel(ctx context.Context, orderID int64) (_ *domain.Order, err error) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, s.tracer, "order.cancel", attribute.Int64("order.id", orderID))
	defer func() {
		observability.EndSpan(span, err)
		s.metrics.ObserveUsecase("cancel_order", start, err)
	}()
	log := observability.LoggerFrom(ctx, s.log).With(zap.Int64("order_id", orderID))
	if orderID <= 0 {
		return nil, fmt.Errorf("%w: invalid order id", ErrValidation)
	}

	release, err := s.claim(ctx, orderID)
	if err != nil {
		return nil, err
	}
	defer release()

	o, pay, err := s.load(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrInvariantViolation) {
			log.Error("cancel rejected", zap.Bool("defect", true), zap.Error(err))
		}
		return nil, err
	}

	if err := s.authorizer.Void(ctx, pay.AuthorizationID); err != nil {
		return nil, err
	}

	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.inventory.ReleaseAll(ctx, o.Items); err != nil {
			return err
		}
		if err := pay.Void(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvariantViolation, err)
		}
		if err := s.payments.Update(ctx, pay); err != nil {
			return err
		}
		if err := o.TransitionTo(domain.OrderStatusCancelled); err != nil {
			return fmt.Errorf("%w: %v", ErrInvariantViolation, err)
		}
		return s.orders.Update(ctx, o)
	})
	if err != nil {
		// the gateway void is idempotent, a repeated cancel completes the commit
		log.Error("authorization voided but cancellation not committed", zap.Bool("defect", true),
			zap.String("authorization_id", pay.AuthorizationID), zap.Error(err))
		if errors.Is(err, repository.ErrVersionConflict) {
			return nil, fmt.Errorf("%w: order %d was modified concurrently", ErrConflict, orderID)
		}
		return nil, err
	}

	o.Payment = pay
	s.cache.Set(ctx, o)
	s.metrics.Compensations.WithLabelValues("cancel_order", "ok").Inc()
	s.events.Publish(ctx, events.OrderCancelled, strconv.FormatInt(orderID, 10), events.OrderCancelledPayload{
		OrderID:         orderID,
		AuthorizationID: pay.AuthorizationID,
	})
	log.Info("order_cancelled", zap.Int("lines", len(o.Items)))
	return o, nil
}

// claim один конкурентный Cancel на заказ; проигравший получает конфликт
func (s *CancellationService) claim(ctx context.Context, orderID int64) (func(), error) {
	key := "order-cancel:" + strconv.FormatInt(orderID, 10)
	now := time.Now().UTC()
	err := s.claims.Insert(ctx, &domain.IdempotencyRecord{
		Key:           key,
		RequestHash:   key,
		OperationType: OperationOrderCancel,
		CreatedAt:     now,
		ExpiresAt:     now.Add(cancelClaimTTL),
	})
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, fmt.Errorf("%w: cancellation of order %d is already in progress", ErrConflict, orderID)
	}
	if err != nil {
		return nil, fmt.Errorf("claim order %d: %w", orderID, err)
	}
	return func() {
		if err := s.claims.Delete(context.WithoutCancel(ctx), key); err != nil {
			observability.LoggerFrom(ctx, s.log).Warn("cancel claim release failed", zap.Int64("order_id", orderID), zap.Error(err))
		}
	}, nil
}

func (s *CancellationService) load(ctx context.Context, orderID int64) (*domain.Order, *domain.Payment, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil, fmt.Errorf("%w: id %d", ErrOrderNotFound, orderID)
	}
	if err != nil {
		return nil, nil, err
	}
	switch o.Status {
	case domain.OrderStatusCancelled:
		return nil, nil, ErrAlreadyCancelled
	case domain.OrderStatusShipped:
		return nil, nil, fmt.Errorf("%w: order %d is already shipped", ErrInvalidState, orderID)
	}

	pay, err := s.payments.GetByOrderID(ctx, orderID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil, fmt.Errorf("%w: order %d has no payment", ErrInvariantViolation, orderID)
	}
	if err != nil {
		return nil, nil, err
	}
	if pay.Status != domain.PaymentStatusAuthorized {
		if o.Status == domain.OrderStatusPaid {
			return nil, nil, fmt.Errorf("%w: paid order %d has payment in status %s", ErrInvariantViolation, orderID, pay.Status)
		}
		// a PENDING/FAILED payment belongs to the authorize-payment flow
		return nil, nil, fmt.Errorf("%w: payment of order %d is %s, only authorized payments can be voided",
			ErrInvalidState, orderID, pay.Status)
	}
	return o, pay, nil
}
