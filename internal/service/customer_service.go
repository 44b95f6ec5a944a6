package service

import (
	"context"
	"errors"
	"fmt"

	"ordercore/internal/domain"
	"ordercore/internal/repository"
)

// CustomerService поиск и регистрация покупателей по email
type CustomerService struct {
	repo repository.CustomerRepository
}

func NewCustomerService(repo repository.CustomerRepository) *CustomerService {
	return &CustomerService{repo: repo}
}

// FindOrCreate при гонке двух регистраций побеждает уникальный email
func (s *CustomerService) FindOrCreate(ctx context.Context, email, firstName, lastName string) (*domain.Customer, error) {
	c, err := s.repo.GetByEmail(ctx, email)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	c = &domain.Customer{Email: email, FirstName: firstName, LastName: lastName}
	err = s.repo.Create(ctx, c)
	if errors.Is(err, repository.ErrDuplicate) {
		return s.repo.GetByEmail(ctx, email)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *CustomerService) GetByEmail(ctx context.Context, email string) (*domain.Customer, error) {
	c, err := s.repo.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrCustomerNotFound, email)
	}
	return c, err
}
