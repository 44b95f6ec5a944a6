package service

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation бизнес-валидация запроса, побочных эффектов нет
	ErrValidation = errors.New("business validation failed")
	ErrNotFound   = errors.New("not found")
	// ErrConflict дубликат ресурса или конкурентное изменение
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	// ErrInvariantViolation дефект: состояние, недостижимое при корректной работе
	ErrInvariantViolation = errors.New("invariant violation")

	ErrProductNotFound  = fmt.Errorf("product %w", ErrNotFound)
	ErrOrderNotFound    = fmt.Errorf("order %w", ErrNotFound)
	ErrCustomerNotFound = fmt.Errorf("customer %w", ErrNotFound)

	ErrInsufficientStock = fmt.Errorf("%w: insufficient stock", ErrValidation)
	ErrProductInactive   = fmt.Errorf("%w: product is inactive", ErrValidation)

	ErrAlreadyCancelled = fmt.Errorf("%w: order already cancelled", ErrInvalidState)

	ErrKeyReuse        = fmt.Errorf("%w: idempotency key reused with a different request body", ErrConflict)
	ErrRequestInFlight = fmt.Errorf("%w: request with this idempotency key is still in progress", ErrConflict)
)

// PaymentError ошибка авторизации платежа. Retryable отражает класс последней попытки
type PaymentError struct {
	Retryable  bool
	StatusCode int
	Message    string
}

func (e *PaymentError) Error() string { return e.Message }
