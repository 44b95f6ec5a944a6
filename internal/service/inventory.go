package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"ordercore/internal/domain"
	"ordercore/internal/observability"
	"ordercore/internal/repository"
)

// DefaultReserveRetries попытки CAS-цикла при конфликте версий
const DefaultReserveRetries = 5

// InventoryReservoir списание и возврат запаса с оптимистичной проверкой версии
type InventoryReservoir struct {
	products   repository.ProductRepository
	maxRetries int
	log        *zap.Logger
	metrics    *observability.Metrics
}

func NewInventoryReservoir(products repository.ProductRepository, maxRetries int, log *zap.Logger, m *observability.Metrics) *InventoryReservoir {
	if maxRetries <= 0 {
		maxRetries = DefaultReserveRetries
	}
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = observability.NopMetrics()
	}
	return &InventoryReservoir{products: products, maxRetries: maxRetries, log: log, metrics: m}
}

// Reserve читает запас и версию, решает и пишет условно; проигрыш гонки повторяет цикл целиком
func (r *InventoryReservoir) Reserve(ctx context.Context, productID, quantity int64) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}
	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		p, err := r.products.GetByID(ctx, productID)
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: id %d", ErrProductNotFound, productID)
		}
		if err != nil {
			return err
		}
		if !p.Active {
			return fmt.Errorf("%w: %s", ErrProductInactive, p.SKU)
		}
		if p.Stock < quantity {
			return fmt.Errorf("%w: %s has %d, requested %d", ErrInsufficientStock, p.SKU, p.Stock, quantity)
		}
		p.Stock -= quantity
		err = r.products.Update(ctx, p)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return err
		}
		r.metrics.StockConflicts.Inc()
		r.log.Debug("stock version conflict", zap.Int64("product_id", productID), zap.Int("attempt", attempt))
	}
	return fmt.Errorf("%w: product %d stock contention after %d attempts", ErrConflict, productID, r.maxRetries)
}

// Release возвращает запас; безусловное увеличение не конфликтует
func (r *InventoryReservoir) Release(ctx context.Context, productID, quantity int64) error {
	if err := r.products.AddStock(ctx, productID, quantity); err != nil {
		return fmt.Errorf("release product %d: %w", productID, err)
	}
	return nil
}

// ReserveAll все позиции или ни одной: при ошибке уже списанное возвращается
func (r *InventoryReservoir) ReserveAll(ctx context.Context, items []domain.OrderItem) error {
	for i, it := range items {
		if err := r.Reserve(ctx, it.ProductID, it.Quantity); err != nil {
			if rerr := r.ReleaseAll(context.WithoutCancel(ctx), items[:i]); rerr != nil {
				r.log.Error("partial reservation rollback failed", zap.Bool("defect", true), zap.Error(rerr))
				return errors.Join(err, rerr)
			}
			return err
		}
	}
	return nil
}

// ReleaseAll возвращает все позиции, продолжая после ошибок
func (r *InventoryReservoir) ReleaseAll(ctx context.Context, items []domain.OrderItem) error {
	var errs []error
	for i := len(items) - 1; i >= 0; i-- {
		if err := r.Release(ctx, items[i].ProductID, items[i].Quantity); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
