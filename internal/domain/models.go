package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrIllegalTransition возвращается при попытке недопустимого перехода статуса
var ErrIllegalTransition = errors.New("illegal status transition")

// Product товар каталога. Version растёт при каждой записи (optimistic concurrency)
type Product struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	SKU       string          `json:"sku"`
	Price     decimal.Decimal `json:"price"`
	Stock     int64           `json:"stock"`
	Active    bool            `json:"active"`
	Version   int64           `json:"version"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Customer покупатель, уникален по email
type Customer struct {
	ID            int64     `json:"id"`
	Email         string    `json:"email"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	LoyaltyPoints int64     `json:"loyalty_points"`
	CreatedAt     time.Time `json:"created_at"`
}

// OrderStatus тип статуса заказа
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusPaid      OrderStatus = "PAID"
	OrderStatusShipped   OrderStatus = "SHIPPED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending: {OrderStatusPaid, OrderStatusCancelled},
	OrderStatusPaid:    {OrderStatusShipped, OrderStatusCancelled},
}

// CanTransitionTo SHIPPED и CANCELLED терминальные
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, st := range orderTransitions[s] {
		if st == next {
			return true
		}
	}
	return false
}

// OrderItem позиция заказа; цена зафиксирована на момент создания
type OrderItem struct {
	ProductID  int64           `json:"product_id"`
	ProductSKU string          `json:"product_sku"`
	Quantity   int64           `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Subtotal   decimal.Decimal `json:"subtotal"`
}

// Order сущность заказа. Items не меняются после создания
type Order struct {
	ID            int64           `json:"id"`
	CustomerID    int64           `json:"customer_id"`
	CustomerEmail string          `json:"customer_email"`
	Items         []OrderItem     `json:"items"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Discount      decimal.Decimal `json:"discount"`
	Total         decimal.Decimal `json:"total"`
	Status        OrderStatus     `json:"status"`
	Version       int64           `json:"version"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	// Payment заполняется сервисом при чтении; хранится отдельно
	Payment *Payment `json:"payment,omitempty"`
}

// Revision растёт при любой записи заказа или его платежа
func (o *Order) Revision() int64 {
	r := o.Version
	if o.Payment != nil {
		r += o.Payment.Version
	}
	return r
}

// TransitionTo меняет статус, если переход разрешён
func (o *Order) TransitionTo(next OrderStatus) error {
	if !o.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: order %s -> %s", ErrIllegalTransition, o.Status, next)
	}
	o.Status = next
	return nil
}

// PaymentStatus статус платежа
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "PENDING"
	PaymentStatusAuthorized PaymentStatus = "AUTHORIZED"
	PaymentStatusFailed     PaymentStatus = "FAILED"
	PaymentStatusVoided     PaymentStatus = "VOIDED"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:    {PaymentStatusAuthorized, PaymentStatusFailed},
	PaymentStatusFailed:     {PaymentStatusAuthorized, PaymentStatusFailed},
	PaymentStatusAuthorized: {PaymentStatusVoided},
}

func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, st := range paymentTransitions[s] {
		if st == next {
			return true
		}
	}
	return false
}

// Payment платёж, один на заказ
type Payment struct {
	ID              int64           `json:"id"`
	OrderID         int64           `json:"order_id"`
	Amount          decimal.Decimal `json:"amount"`
	Status          PaymentStatus   `json:"status"`
	AuthorizationID string          `json:"authorization_id,omitempty"`
	RetryAttempts   int             `json:"retry_attempts"`
	LastError       string          `json:"last_error,omitempty"`
	Version         int64           `json:"version"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// NewPayment платёж в статусе PENDING без попыток
func NewPayment(amount decimal.Decimal) Payment {
	return Payment{Amount: amount, Status: PaymentStatusPending}
}

func (p *Payment) transition(next PaymentStatus) error {
	if !p.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: payment %s -> %s", ErrIllegalTransition, p.Status, next)
	}
	p.Status = next
	return nil
}

// RecordAttempt учитывает очередной вызов шлюза
func (p *Payment) RecordAttempt() { p.RetryAttempts++ }

func (p *Payment) Authorize(authorizationID string) error {
	if err := p.transition(PaymentStatusAuthorized); err != nil {
		return err
	}
	p.AuthorizationID = authorizationID
	p.LastError = ""
	return nil
}

func (p *Payment) Fail(reason string) error {
	if err := p.transition(PaymentStatusFailed); err != nil {
		return err
	}
	p.LastError = reason
	return nil
}

// Void допустим только из AUTHORIZED
func (p *Payment) Void() error {
	return p.transition(PaymentStatusVoided)
}

// IdempotencyRecord результат запроса по ключу идемпотентности.
// StatusCode == 0 означает, что запрос ещё выполняется
type IdempotencyRecord struct {
	Key           string    `json:"key"`
	RequestHash   string    `json:"request_hash"`
	OperationType string    `json:"operation_type"`
	StatusCode    int       `json:"status_code"`
	ResponseBody  []byte    `json:"response_body"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

func (r IdempotencyRecord) Pending() bool { return r.StatusCode == 0 }
