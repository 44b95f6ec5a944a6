package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"ordercore/internal/domain"
	"ordercore/internal/observability"
	"ordercore/internal/payment"
)

// PaymentAuthorizer авторизация через шлюз с одной повторной попыткой на 5xx
type PaymentAuthorizer struct {
	gateway     payment.Gateway
	maxAttempts int
	backoff     time.Duration
	log         *zap.Logger
	metrics     *observability.Metrics
	tracer      trace.Tracer
}

func NewPaymentAuthorizer(gw payment.Gateway, maxAttempts int, backoff time.Duration, log *zap.Logger, m *observability.Metrics) *PaymentAuthorizer {
	if maxAttempts <= 0 {
		maxAttempts = 2
	}
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = observability.NopMetrics()
	}
	return &PaymentAuthorizer{
		gateway:     gw,
		maxAttempts: maxAttempts,
		backoff:     backoff,
		log:         log,
		metrics:     m,
		tracer:      observability.Tracer("ordercore/payment"),
	}
}

// Authorize вызывает шлюз и переводит платёж в AUTHORIZED или FAILED.
// Каждая попытка увеличивает RetryAttempts; 4xx не повторяется
func (a *PaymentAuthorizer) Authorize(ctx context.Context, p *domain.Payment, reference string) (err error) {
	ctx, span := observability.StartSpan(ctx, a.tracer, "payment.authorize",
		attribute.String("payment.reference", reference),
		attribute.String("payment.amount", domain.FormatMoney(p.Amount)))
	defer func() { observability.EndSpan(span, err) }()
	log := observability.LoggerFrom(ctx, a.log)

	for attempt := 1; ; attempt++ {
		p.RecordAttempt()
		authID, gwErr := a.gateway.Authorize(ctx, p.Amount, reference)
		if gwErr == nil {
			a.metrics.PaymentAttempts.WithLabelValues("authorized").Inc()
			log.Info("payment_attempt", zap.String("reference", reference), zap.Int("attempt", attempt),
				zap.String("outcome", "authorized"))
			return p.Authorize(authID)
		}

		perr := classify(gwErr)
		outcome := "declined"
		if perr.Retryable {
			outcome = "retryable"
		}
		a.metrics.PaymentAttempts.WithLabelValues(outcome).Inc()
		log.Warn("payment_attempt", zap.String("reference", reference), zap.Int("attempt", attempt),
			zap.String("outcome", outcome), zap.Error(gwErr))
		if ferr := p.Fail(perr.Message); ferr != nil {
			return fmt.Errorf("%w: %v", ErrInvariantViolation, ferr)
		}

		if !perr.Retryable || attempt >= a.maxAttempts {
			return perr
		}
		if serr := sleepCtx(ctx, a.backoff); serr != nil {
			return perr
		}
	}
}

// Void отмена авторизации во внешнем шлюзе
func (a *PaymentAuthorizer) Void(ctx context.Context, authorizationID string) (err error) {
	ctx, span := observability.StartSpan(ctx, a.tracer, "payment.void",
		attribute.String("payment.authorization_id", authorizationID))
	defer func() { observability.EndSpan(span, err) }()
	if err := a.gateway.Void(ctx, authorizationID); err != nil {
		perr := classify(err)
		perr.Message = "Failed to void payment: " + err.Error()
		return perr
	}
	return nil
}

func classify(err error) *PaymentError {
	var ge *payment.GatewayError
	if errors.As(err, &ge) {
		if ge.Retryable {
			return &PaymentError{Retryable: true, StatusCode: ge.StatusCode, Message: "Payment service temporarily unavailable"}
		}
		return &PaymentError{StatusCode: ge.StatusCode, Message: "Payment authorization failed: " + ge.Message}
	}
	// transport failures outside the gateway contract are transient
	return &PaymentError{Retryable: true, Message: "Payment authorization failed: " + err.Error()}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
