package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"ordercore/internal/domain"
)

var (
	// ErrNotFound возвращается, когда сущность не найдена
	ErrNotFound = errors.New("not found")
	// ErrDuplicate нарушение уникальности (SKU, email, ключ идемпотентности, платёж заказа)
	ErrDuplicate = errors.New("duplicate key")
	// ErrVersionConflict версия изменилась с момента чтения
	ErrVersionConflict = errors.New("version conflict")
)

// ProductFilter параметры фильтрации списка товаров
type ProductFilter struct {
	NameSubstring string
	MinPrice      *decimal.Decimal
	MaxPrice      *decimal.Decimal
	ActiveOnly    bool
}

// ProductRepository интерфейс репозитория товаров.
// Update условный: пишет только если p.Version равна сохранённой, затем увеличивает Version
type ProductRepository interface {
	Create(ctx context.Context, p *domain.Product) error
	GetByID(ctx context.Context, id int64) (*domain.Product, error)
	GetBySKU(ctx context.Context, sku string) (*domain.Product, error)
	Update(ctx context.Context, p *domain.Product) error
	AddStock(ctx context.Context, id int64, qty int64) error
	List(ctx context.Context, f ProductFilter) ([]domain.Product, error)
}

type CustomerRepository interface {
	Create(ctx context.Context, c *domain.Customer) error
	GetByID(ctx context.Context, id int64) (*domain.Customer, error)
	GetByEmail(ctx context.Context, email string) (*domain.Customer, error)
}

// OrderRepository интерфейс репозитория заказов
type OrderRepository interface {
	Create(ctx context.Context, o *domain.Order) error
	GetByID(ctx context.Context, id int64) (*domain.Order, error)
	Update(ctx context.Context, o *domain.Order) error
	ListByCustomer(ctx context.Context, customerID int64, page, size int) ([]domain.Order, int, error)
}

// PaymentRepository один платёж на заказ; Update условный по Version
type PaymentRepository interface {
	Create(ctx context.Context, p *domain.Payment) error
	GetByOrderID(ctx context.Context, orderID int64) (*domain.Payment, error)
	Update(ctx context.Context, p *domain.Payment) error
}

// IdempotencyRepository Insert разрешает гонку: ровно один вставивший получает nil
type IdempotencyRepository interface {
	Insert(ctx context.Context, r *domain.IdempotencyRecord) error
	Get(ctx context.Context, key string) (*domain.IdempotencyRecord, error)
	Complete(ctx context.Context, key string, statusCode int, body []byte) error
	Delete(ctx context.Context, key string) error
}

// TxManager абстракция транзакции: все записи внутри fn видны вместе или не видны вовсе
type TxManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// helper: case-insensitive contains
func containsIgnoreCase(s, substr string) bool {
	if substr == "" {
		return true
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func matchesFilter(p domain.Product, f ProductFilter) bool {
	if !containsIgnoreCase(p.Name, f.NameSubstring) {
		return false
	}
	if f.ActiveOnly && !p.Active {
		return false
	}
	if f.MinPrice != nil && p.Price.LessThan(*f.MinPrice) {
		return false
	}
	if f.MaxPrice != nil && p.Price.GreaterThan(*f.MaxPrice) {
		return false
	}
	return true
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func pageBounds(total, page, size int) (int, int) {
	if size <= 0 || page < 0 {
		return 0, 0
	}
	// page*size may overflow for huge pages
	if page > total/size {
		return total, total
	}
	from := page * size
	to := from + size
	if to > total {
		to = total
	}
	return from, to
}
