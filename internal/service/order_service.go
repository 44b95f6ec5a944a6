package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"ordercore/internal/domain"
	"ordercore/internal/events"
	"ordercore/internal/observability"
	"ordercore/internal/repository"
)

// OrderCache кэш представления заказа; промах или сбой означает чтение из хранилища
type OrderCache interface {
	Get(ctx context.Context, id int64) (*domain.Order, bool)
	Set(ctx context.Context, o *domain.Order)
}

type nopCache struct{}

func (nopCache) Get(context.Context, int64) (*domain.Order, bool) { return nil, false }
func (nopCache) Set(context.Context, *domain.Order)               {}

// CreateOrderLine строка запроса на создание заказа
type CreateOrderLine struct {
	ProductID int64 `json:"productId" validate:"gt=0"`
	Quantity  int64 `json:"quantity" validate:"gte=1"`
}

// CreateOrderRequest запрос на создание заказа
type CreateOrderRequest struct {
	CustomerEmail string            `json:"customerEmail" validate:"required,email"`
	FirstName     string            `json:"firstName,omitempty"`
	LastName      string            `json:"lastName,omitempty"`
	Items         []CreateOrderLine `json:"items" validate:"required,min=1,dive"`
}

// OrderPage страница заказов покупателя
type OrderPage struct {
	Content       []domain.Order
	Page          int
	Size          int
	TotalElements int
	TotalPages    int
}

const MaxPageSize = 100

// OrderDeps зависимости конвейера заказов
type OrderDeps struct {
	Products   repository.ProductRepository
	Orders     repository.OrderRepository
	Payments   repository.PaymentRepository
	Tx         repository.TxManager
	// Claims уникальные захваты отмены заказа; обычно то же хранилище, что и ключи идемпотентности
	Claims     repository.IdempotencyRepository
	Customers  *CustomerService
	Inventory  *InventoryReservoir
	Discounts  DiscountCalculator
	Authorizer *PaymentAuthorizer
	Events     events.Publisher
	Cache      OrderCache
	Log        *zap.Logger
	Metrics    *observability.Metrics
	MinTotal   decimal.Decimal
}

// OrderService конвейер оформления заказа:
// валидация -> цена -> резерв -> оплата -> фиксация, с компенсациями на каждом шаге
type OrderService struct {
	OrderDeps
	validate *validator.Validate
	tracer   trace.Tracer
}

func NewOrderService(d OrderDeps) *OrderService {
	if d.Events == nil {
		d.Events = events.Nop{}
	}
	if d.Cache == nil {
		d.Cache = nopCache{}
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Metrics == nil {
		d.Metrics = observability.NopMetrics()
	}
	return &OrderService{
		OrderDeps: d,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		tracer:    observability.Tracer("ordercore/orders"),
	}
}

// compensation обратное действие для уже выполненного шага
type compensation struct {
	action string
	undo   func(ctx context.Context) error
}

type compensations []compensation

func (c *compensations) push(action string, undo func(ctx context.Context) error) {
	*c = append(*c, compensation{action: action, undo: undo})
}

// run выполняет компенсации в обратном порядке; отмена контекста клиента их не прерывает
func (c compensations) run(ctx context.Context, log *zap.Logger, m *observability.Metrics) {
	ctx = context.WithoutCancel(ctx)
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i].undo(ctx); err != nil {
			m.Compensations.WithLabelValues(c[i].action, "error").Inc()
			log.Error("compensation failed", zap.String("action", c[i].action), zap.Bool("defect", true), zap.Error(err))
			continue
		}
		m.Compensations.WithLabelValues(c[i].action, "ok").Inc()
		log.Info("compensation applied", zap.String("action", c[i].action))
	}
}

// CreateOrder полный прогон конвейера. Любая ошибка после резерва откатывает
// выполненные шаги; заказ не остаётся PENDING с зарезервированным запасом
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (_ *domain.Order, err error) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, s.tracer, "order.create",
		attribute.Int("order.lines", len(req.Items)))
	log := observability.LoggerFrom(ctx, s.Log)
	var undo compensations
	defer func() {
		if err != nil {
			undo.run(ctx, log, s.Metrics)
		}
		observability.EndSpan(span, err)
		s.Metrics.ObserveUsecase("create_order", start, err)
	}()

	// Validating
	customer, items, err := s.validateRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	// Pricing
	order := s.price(customer, items)
	if order.Total.LessThan(s.MinTotal) {
		return nil, fmt.Errorf("%w: order total %s is below minimum %s", ErrValidation,
			domain.FormatMoney(order.Total), domain.FormatMoney(s.MinTotal))
	}

	// Reserving
	if err = s.Inventory.ReserveAll(ctx, order.Items); err != nil {
		return nil, err
	}
	undo.push("release_stock", func(ctx context.Context) error {
		return s.Inventory.ReleaseAll(ctx, order.Items)
	})

	// Authorizing
	pay := domain.NewPayment(order.Total)
	reference := "ord-" + uuid.NewString()
	if err = s.Authorizer.Authorize(ctx, &pay, reference); err != nil {
		return nil, err
	}
	authID := pay.AuthorizationID
	undo.push("void_payment", func(ctx context.Context) error {
		return s.Authorizer.Void(ctx, authID)
	})

	// Committing
	if err = order.TransitionTo(domain.OrderStatusPaid); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvariantViolation, err)
	}
	err = s.Tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.Orders.Create(ctx, order); err != nil {
			return err
		}
		pay.OrderID = order.ID
		return s.Payments.Create(ctx, &pay)
	})
	if err != nil {
		return nil, fmt.Errorf("commit order: %w", err)
	}

	// Done
	order.Payment = &pay
	s.Cache.Set(ctx, order)
	s.Events.Publish(ctx, events.OrderCreated, strconv.FormatInt(order.ID, 10), events.OrderCreatedPayload{
		OrderID:       order.ID,
		CustomerEmail: order.CustomerEmail,
		Total:         domain.FormatMoney(order.Total),
		ItemCount:     len(order.Items),
	})
	log.Info("order_created",
		zap.Int64("order_id", order.ID),
		zap.String("customer", order.CustomerEmail),
		zap.String("total", domain.FormatMoney(order.Total)),
		zap.Int("payment_attempts", pay.RetryAttempts))
	return order, nil
}

func (s *OrderService) validateRequest(ctx context.Context, req CreateOrderRequest) (*domain.Customer, []domain.OrderItem, error) {
	req.CustomerEmail = strings.TrimSpace(req.CustomerEmail)
	if err := s.validate.Struct(req); err != nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrValidation, describeValidation(err))
	}

	items := make([]domain.OrderItem, 0, len(req.Items))
	for _, line := range req.Items {
		p, err := s.Products.GetByID(ctx, line.ProductID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, fmt.Errorf("%w: product %d not found", ErrValidation, line.ProductID)
		}
		if err != nil {
			return nil, nil, err
		}
		if !p.Active {
			return nil, nil, fmt.Errorf("%w: %s", ErrProductInactive, p.SKU)
		}
		items = append(items, domain.OrderItem{
			ProductID:  p.ID,
			ProductSKU: p.SKU,
			Quantity:   line.Quantity,
			UnitPrice:  p.Price,
			Subtotal:   domain.LineTotal(p.Price, line.Quantity),
		})
	}

	customer, err := s.Customers.FindOrCreate(ctx, req.CustomerEmail, req.FirstName, req.LastName)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve customer: %w", err)
	}
	return customer, items, nil
}

func (s *OrderService) price(customer *domain.Customer, items []domain.OrderItem) *domain.Order {
	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.Subtotal)
	}
	subtotal = domain.RoundMoney(subtotal)
	discount := s.Discounts.Discount(subtotal)
	return &domain.Order{
		CustomerID:    customer.ID,
		CustomerEmail: customer.Email,
		Items:         items,
		Subtotal:      subtotal,
		Discount:      discount,
		Total:         domain.RoundMoney(subtotal.Sub(discount)),
		Status:        domain.OrderStatusPending,
	}
}

func describeValidation(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err.Error()
	}
	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "email":
			msgs = append(msgs, fe.Field()+" must be a valid email")
		case "min":
			msgs = append(msgs, fe.Field()+" must contain at least "+fe.Param()+" item")
		case "gt", "gte":
			msgs = append(msgs, fe.Namespace()+" must be positive")
		default:
			msgs = append(msgs, fe.Namespace()+" is invalid")
		}
	}
	return strings.Join(msgs, "; ")
}

// GetOrder заказ вместе с платежом, через кэш
func (s *OrderService) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: invalid order id", ErrValidation)
	}
	if o, ok := s.Cache.Get(ctx, id); ok {
		return o, nil
	}
	o, err := s.loadOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	s.Cache.Set(ctx, o)
	return o, nil
}

func (s *OrderService) loadOrder(ctx context.Context, id int64) (*domain.Order, error) {
	o, err := s.Orders.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: id %d", ErrOrderNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if err := s.attachPayment(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *OrderService) attachPayment(ctx context.Context, o *domain.Order) error {
	p, err := s.Payments.GetByOrderID(ctx, o.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	o.Payment = p
	return nil
}

// ListOrders заказы покупателя по времени создания; size 1..100
func (s *OrderService) ListOrders(ctx context.Context, email string, page, size int) (*OrderPage, error) {
	if strings.TrimSpace(email) == "" {
		return nil, fmt.Errorf("%w: customerEmail is required", ErrValidation)
	}
	if page < 0 || size < 1 || size > MaxPageSize {
		return nil, fmt.Errorf("%w: page must be >= 0 and size between 1 and %d", ErrValidation, MaxPageSize)
	}
	c, err := s.Customers.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	orders, total, err := s.Orders.ListByCustomer(ctx, c.ID, page, size)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		if err := s.attachPayment(ctx, &orders[i]); err != nil {
			return nil, err
		}
	}
	return &OrderPage{
		Content:       orders,
		Page:          page,
		Size:          size,
		TotalElements: total,
		TotalPages:    (total + size - 1) / size,
	}, nil
}

// AuthorizePayment повторная авторизация платежа PENDING/FAILED.
// AUTHORIZED возвращается без изменений; запись условна по версиям, поэтому
// конкурентная отмена или второй повтор проигрывают проверку
func (s *OrderService) AuthorizePayment(ctx context.Context, orderID int64) (_ *domain.Order, err error) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, s.tracer, "order.authorize_payment",
		attribute.Int64("order.id", orderID))
	defer func() {
		observability.EndSpan(span, err)
		s.Metrics.ObserveUsecase("authorize_payment", start, err)
	}()
	log := observability.LoggerFrom(ctx, s.Log).With(zap.Int64("order_id", orderID))

	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	pay := order.Payment
	if pay == nil {
		log.Error("order without payment", zap.Bool("defect", true))
		return nil, fmt.Errorf("%w: order %d has no payment", ErrInvariantViolation, orderID)
	}
	if order.Status == domain.OrderStatusCancelled {
		return nil, fmt.Errorf("%w: order %d is cancelled", ErrInvalidState, orderID)
	}
	switch pay.Status {
	case domain.PaymentStatusAuthorized:
		return order, nil
	case domain.PaymentStatusVoided:
		return nil, fmt.Errorf("%w: payment of order %d is voided", ErrInvalidState, orderID)
	}
	if order.Status != domain.OrderStatusPending {
		log.Error("unpaid payment on non-pending order", zap.Bool("defect", true),
			zap.String("order_status", string(order.Status)), zap.String("payment_status", string(pay.Status)))
		return nil, fmt.Errorf("%w: order %d is %s with payment %s", ErrInvariantViolation, orderID, order.Status, pay.Status)
	}

	authErr := s.Authorizer.Authorize(ctx, pay, "order-"+strconv.FormatInt(orderID, 10))
	if authErr != nil && errors.Is(authErr, ErrInvariantViolation) {
		return nil, authErr
	}
	if authErr == nil {
		if err := order.TransitionTo(domain.OrderStatusPaid); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvariantViolation, err)
		}
	}

	err = s.Tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.Payments.Update(ctx, pay); err != nil {
			return err
		}
		if authErr != nil {
			return nil
		}
		return s.Orders.Update(ctx, order)
	})
	if err != nil {
		if authErr == nil {
			undo := compensations{{action: "void_payment", undo: func(ctx context.Context) error {
				return s.Authorizer.Void(ctx, pay.AuthorizationID)
			}}}
			undo.run(ctx, log, s.Metrics)
		}
		if errors.Is(err, repository.ErrVersionConflict) {
			return nil, fmt.Errorf("%w: order %d was modified concurrently", ErrConflict, orderID)
		}
		return nil, fmt.Errorf("persist payment: %w", err)
	}
	s.Cache.Set(ctx, order)

	if authErr != nil {
		log.Warn("payment_retry_failed", zap.Int("retry_attempts", pay.RetryAttempts), zap.Error(authErr))
		return nil, authErr
	}
	s.Events.Publish(ctx, events.PaymentAuthorized, strconv.FormatInt(orderID, 10), events.PaymentAuthorizedPayload{
		OrderID:         orderID,
		AuthorizationID: pay.AuthorizationID,
		Amount:          domain.FormatMoney(pay.Amount),
		RetryAttempts:   pay.RetryAttempts,
	})
	log.Info("payment_authorized", zap.Int("retry_attempts", pay.RetryAttempts))
	return order, nil
}
