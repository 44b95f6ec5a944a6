package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	OrderCreated      = "OrderCreated"
	OrderCancelled    = "OrderCancelled"
	PaymentAuthorized = "PaymentAuthorized"

	EventVersion = 1
)

// Envelope общий конверт события в топике заказов
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// Publisher публикация доменных событий. Доставка best effort:
// ошибка публикации не откатывает уже зафиксированную операцию
type Publisher interface {
	Publish(ctx context.Context, eventType, key string, payload any)
}

type correlationKey struct{}

// WithCorrelationID кладёт id запроса в контекст для поля correlation_id
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

// NewEnvelope собирает конверт с новым event_id
func NewEnvelope(ctx context.Context, producer, eventType string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  EventVersion,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: CorrelationID(ctx),
		Payload:       raw,
	}, nil
}

// Nop publisher для окружения без брокера
type Nop struct{}

func (Nop) Publish(context.Context, string, string, any) {}

// OrderCreatedPayload payload события OrderCreated
type OrderCreatedPayload struct {
	OrderID       int64  `json:"order_id"`
	CustomerEmail string `json:"customer_email"`
	Total         string `json:"total"`
	ItemCount     int    `json:"item_count"`
}

// OrderCancelledPayload payload события OrderCancelled
type OrderCancelledPayload struct {
	OrderID         int64  `json:"order_id"`
	AuthorizationID string `json:"authorization_id"`
}

// PaymentAuthorizedPayload payload события PaymentAuthorized
type PaymentAuthorizedPayload struct {
	OrderID         int64  `json:"order_id"`
	AuthorizationID string `json:"authorization_id"`
	Amount          string `json:"amount"`
	RetryAttempts   int    `json:"retry_attempts"`
}
