package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"ordercore/internal/domain"
	"ordercore/internal/repository"
)

// ProductService инкапсулирует бизнес-логику вокруг товаров
type ProductService struct {
	repo repository.ProductRepository
}

func NewProductService(repo repository.ProductRepository) *ProductService {
	return &ProductService{repo: repo}
}

func validateProduct(p domain.Product) error {
	switch {
	case p.Name == "":
		return fmt.Errorf("%w: name is required", ErrValidation)
	case p.SKU == "":
		return fmt.Errorf("%w: sku is required", ErrValidation)
	case p.Price.IsNegative():
		return fmt.Errorf("%w: price must not be negative", ErrValidation)
	case p.Stock < 0:
		return fmt.Errorf("%w: stock must not be negative", ErrValidation)
	}
	return nil
}

func productErr(err error, ref any) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrProductNotFound, ref)
	case errors.Is(err, repository.ErrDuplicate):
		return fmt.Errorf("%w: product with sku %v already exists", ErrConflict, ref)
	case errors.Is(err, repository.ErrVersionConflict):
		return fmt.Errorf("%w: product %v was modified concurrently", ErrConflict, ref)
	}
	return err
}

// Create новый товар активен, цена округляется до центов
func (s *ProductService) Create(ctx context.Context, p domain.Product) (*domain.Product, error) {
	if err := validateProduct(p); err != nil {
		return nil, err
	}
	cp := p
	cp.Price = domain.RoundMoney(cp.Price)
	cp.Active = true
	if err := s.repo.Create(ctx, &cp); err != nil {
		return nil, productErr(err, cp.SKU)
	}
	return &cp, nil
}

func (s *ProductService) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: invalid product id", ErrValidation)
	}
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, productErr(err, id)
	}
	return p, nil
}

func (s *ProductService) GetBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	p, err := s.repo.GetBySKU(ctx, sku)
	if err != nil {
		return nil, productErr(err, sku)
	}
	return p, nil
}

// ProductPatch изменяемые поля товара; nil означает "не менять".
// Запас через обновление не меняется: только резерв и возврат
type ProductPatch struct {
	Name   *string
	SKU    *string
	Price  *decimal.Decimal
	Active *bool
	// Version 0: применить к текущей версии; иначе запись условна по переданной
	Version int64
}

const maxUpdateRetries = 5

// Update накладывает patch на свежее чтение. Без Version конкурентная запись
// (например, резерв запаса) приводит к повтору, а не к потере чужого изменения
func (s *ProductService) Update(ctx context.Context, id int64, patch ProductPatch) (*domain.Product, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: invalid product id", ErrValidation)
	}
	for attempt := 1; ; attempt++ {
		cur, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, productErr(err, id)
		}
		if patch.Version != 0 && patch.Version != cur.Version {
			return nil, productErr(repository.ErrVersionConflict, id)
		}
		next := *cur
		if patch.Name != nil {
			next.Name = *patch.Name
		}
		if patch.SKU != nil {
			next.SKU = *patch.SKU
		}
		if patch.Price != nil {
			next.Price = domain.RoundMoney(*patch.Price)
		}
		if patch.Active != nil {
			next.Active = *patch.Active
		}
		if err := validateProduct(next); err != nil {
			return nil, err
		}
		err = s.repo.Update(ctx, &next)
		switch {
		case err == nil:
			return &next, nil
		case errors.Is(err, repository.ErrDuplicate):
			return nil, productErr(err, next.SKU)
		case errors.Is(err, repository.ErrVersionConflict) && patch.Version == 0 && attempt < maxUpdateRetries:
			continue
		}
		return nil, productErr(err, id)
	}
}

// Delete мягкое удаление: товар деактивируется, история заказов сохраняет ссылку
func (s *ProductService) Delete(ctx context.Context, id int64) error {
	inactive := false
	_, err := s.Update(ctx, id, ProductPatch{Active: &inactive})
	return err
}

func (s *ProductService) List(ctx context.Context, f repository.ProductFilter) ([]domain.Product, error) {
	return s.repo.List(ctx, f)
}
