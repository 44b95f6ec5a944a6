package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"ordercore/internal/config"
	"ordercore/internal/domain"
	"ordercore/internal/payment"
	"ordercore/internal/repository"
)

var (
	errGatewayDown = &payment.GatewayError{StatusCode: 503, Message: "Payment service temporarily unavailable", Retryable: true}
	errDeclined    = &payment.GatewayError{StatusCode: 402, Message: "Insufficient funds"}
)

// fakeGateway отвечает по сценарию: i-й вызов Authorize получает script[i], далее успех
type fakeGateway struct {
	mu      sync.Mutex
	script  []error
	calls   int
	voids   []string
	voidErr error

	// voidStarted/voidRelease задерживают Void, пока тест не отпустит вызов
	voidStarted chan struct{}
	voidRelease chan struct{}
}

func (g *fakeGateway) Authorize(_ context.Context, _ decimal.Decimal, _ string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.calls <= len(g.script) && g.script[g.calls-1] != nil {
		return "", g.script[g.calls-1]
	}
	return fmt.Sprintf("AUTH_%d", g.calls), nil
}

func (g *fakeGateway) Void(_ context.Context, id string) error {
	if g.voidStarted != nil {
		g.voidStarted <- struct{}{}
		<-g.voidRelease
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.voidErr != nil {
		return g.voidErr
	}
	g.voids = append(g.voids, id)
	return nil
}

func (g *fakeGateway) authorizeCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// failingOrders ломает фиксацию заказа, имитируя сбой хранилища
type failingOrders struct {
	repository.OrderRepository
	err error
}

func (f failingOrders) Create(context.Context, *domain.Order) error { return f.err }

// failingOrderUpdates ломает запись статуса заказа, пока err задан
type failingOrderUpdates struct {
	repository.OrderRepository
	err error
}

func (f *failingOrderUpdates) Update(ctx context.Context, o *domain.Order) error {
	if f.err != nil {
		return f.err
	}
	return f.OrderRepository.Update(ctx, o)
}

type testEnv struct {
	store     *repository.MemoryStore
	products  *ProductService
	orders    *OrderService
	cancel    *CancellationService
	payments  *repository.MemoryPayments
	ordersDB  *repository.MemoryOrders
	customers *repository.MemoryCustomers
	gateway   *fakeGateway
}

type envOption func(*OrderDeps)

func newEnv(t *testing.T, gw *fakeGateway, opts ...envOption) *testEnv {
	t.Helper()
	if gw == nil {
		gw = &fakeGateway{}
	}
	store := repository.NewMemoryStore()
	ordersDB := repository.NewMemoryOrders(store)
	payments := repository.NewMemoryPayments(store)
	customers := repository.NewMemoryCustomers(store)
	deps := OrderDeps{
		Products:   store,
		Orders:     ordersDB,
		Payments:   payments,
		Tx:         repository.NewMemoryTx(store),
		Claims:     repository.NewMemoryIdempotency(store),
		Customers:  NewCustomerService(customers),
		Inventory:  NewInventoryReservoir(store, 5, nil, nil),
		Discounts:  NewDiscountCalculator(testTiers()),
		Authorizer: NewPaymentAuthorizer(gw, 2, 0, nil, nil),
		MinTotal:   decimal.RequireFromString("0.01"),
	}
	for _, opt := range opts {
		opt(&deps)
	}
	return &testEnv{
		store:     store,
		products:  NewProductService(store),
		orders:    NewOrderService(deps),
		cancel:    NewCancellationService(deps),
		payments:  payments,
		ordersDB:  ordersDB,
		customers: customers,
		gateway:   gw,
	}
}

func testTiers() []config.DiscountTier {
	return []config.DiscountTier{
		{Threshold: decimal.NewFromInt(50), Rate: decimal.RequireFromString("0.05")},
		{Threshold: decimal.NewFromInt(100), Rate: decimal.RequireFromString("0.10")},
	}
}

func (e *testEnv) product(t *testing.T, sku, price string, stock int64) *domain.Product {
	t.Helper()
	p, err := e.products.Create(context.Background(), domain.Product{
		Name: sku, SKU: sku, Price: decimal.RequireFromString(price), Stock: stock,
	})
	if err != nil {
		t.Fatalf("create product %s: %v", sku, err)
	}
	return p
}

func (e *testEnv) stock(t *testing.T, id int64) int64 {
	t.Helper()
	p, err := e.store.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get product %d: %v", id, err)
	}
	return p.Stock
}

func order(email string, lines ...CreateOrderLine) CreateOrderRequest {
	return CreateOrderRequest{CustomerEmail: email, Items: lines}
}

func line(productID, qty int64) CreateOrderLine {
	return CreateOrderLine{ProductID: productID, Quantity: qty}
}

var errStorage = errors.New("storage unavailable")
