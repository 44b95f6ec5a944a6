package service

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"ordercore/internal/domain"
)

func TestCreateOrderAndCancel(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)
	p1 := e.product(t, "SKU1", "10.00", 5)
	p2 := e.product(t, "SKU2", "20.00", 2)

	o, err := e.orders.CreateOrder(ctx, order("john@example.com", line(p1.ID, 3), line(p2.ID, 2)))
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if o.Status != domain.OrderStatusPaid {
		t.Fatalf("expected PAID, got %s", o.Status)
	}
	if o.Payment == nil || o.Payment.Status != domain.PaymentStatusAuthorized || o.Payment.RetryAttempts != 1 {
		t.Fatalf("unexpected payment %+v", o.Payment)
	}
	// 30 + 40 = 70 -> 5% tier
	if o.Subtotal.StringFixed(2) != "70.00" || o.Discount.StringFixed(2) != "3.50" || o.Total.StringFixed(2) != "66.50" {
		t.Fatalf("unexpected money: %s %s %s", o.Subtotal, o.Discount, o.Total)
	}

	if e.stock(t, p1.ID) != 2 || e.stock(t, p2.ID) != 0 {
		t.Fatalf("stock not decreased: %d %d", e.stock(t, p1.ID), e.stock(t, p2.ID))
	}

	o2, err := e.cancel.Cancel(ctx, o.ID)
	if err != nil {
		t.Fatalf("cancel order: %v", err)
	}
	if o2.Status != domain.OrderStatusCancelled || o2.Payment.Status != domain.PaymentStatusVoided {
		t.Fatalf("expected cancelled/voided, got %s/%s", o2.Status, o2.Payment.Status)
	}
	if e.stock(t, p1.ID) != 5 || e.stock(t, p2.ID) != 2 {
		t.Fatalf("stock not restored: %d %d", e.stock(t, p1.ID), e.stock(t, p2.ID))
	}
	if len(e.gateway.voids) != 1 || e.gateway.voids[0] != o.Payment.AuthorizationID {
		t.Fatalf("expected gateway void of %s, got %v", o.Payment.AuthorizationID, e.gateway.voids)
	}
}

func TestCreateOrder_DiscountExample(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)
	p := e.product(t, "TEN", "25.00", 10)

	o, err := e.orders.CreateOrder(ctx, order("a@example.com", line(p.ID, 4)))
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if o.Discount.StringFixed(2) != "10.00" || o.Total.StringFixed(2) != "90.00" {
		t.Fatalf("expected 10.00/90.00, got %s/%s", o.Discount.StringFixed(2), o.Total.StringFixed(2))
	}
	if !o.Payment.Amount.Equal(o.Total) {
		t.Fatalf("payment amount %s != total %s", o.Payment.Amount, o.Total)
	}
	if o.Items[0].UnitPrice.StringFixed(2) != "25.00" || o.Items[0].ProductSKU != "TEN" {
		t.Fatalf("unexpected item snapshot %+v", o.Items[0])
	}
}

func TestCreateOrder_PriceSnapshot(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)
	p := e.product(t, "SNAP", "10.00", 10)
	o, err := e.orders.CreateOrder(ctx, order("a@example.com", line(p.ID, 1)))
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	price := decimal.RequireFromString("99.00")
	if _, err := e.products.Update(ctx, p.ID, ProductPatch{Price: &price}); err != nil {
		t.Fatalf("update price: %v", err)
	}
	got, err := e.orders.GetOrder(ctx, o.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if got.Items[0].UnitPrice.StringFixed(2) != "10.00" || got.Total.StringFixed(2) != "10.00" {
		t.Fatalf("price snapshot changed: %+v", got.Items[0])
	}
}

func TestCreateOrder_NoPartialReservation(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)
	p1 := e.product(t, "SKU1", "10.00", 5)
	p2 := e.product(t, "SKU2", "10.00", 1)

	_, err := e.orders.CreateOrder(ctx, order("john@example.com", line(p1.ID, 2), line(p2.ID, 2)))
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if e.stock(t, p1.ID) != 5 || e.stock(t, p2.ID) != 1 {
		t.Fatalf("stock changed: %d %d", e.stock(t, p1.ID), e.stock(t, p2.ID))
	}
	if e.gateway.authorizeCalls() != 0 {
		t.Fatalf("payment must not be attempted")
	}
}

func TestCreateOrder_PaymentFailureRollsBackStock(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, &fakeGateway{script: []error{errGatewayDown, errGatewayDown}})
	p := e.product(t, "SKU1", "10.00", 5)

	_, err := e.orders.CreateOrder(ctx, order("john@example.com", line(p.ID, 2)))
	var perr *PaymentError
	if !errors.As(err, &perr) || !perr.Retryable {
		t.Fatalf("expected retryable payment error, got %v", err)
	}
	if e.gateway.authorizeCalls() != 2 {
		t.Fatalf("expected 2 attempts, got %d", e.gateway.authorizeCalls())
	}
	if e.stock(t, p.ID) != 5 {
		t.Fatalf("stock not rolled back: %d", e.stock(t, p.ID))
	}
	page, err := e.orders.ListOrders(ctx, "john@example.com", 0, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.TotalElements != 0 {
		t.Fatalf("no order must be persisted, got %d", page.TotalElements)
	}
}

func TestCreateOrder_RetryThenSuccess(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, &fakeGateway{script: []error{errGatewayDown}})
	p := e.product(t, "SKU1", "10.00", 5)

	o, err := e.orders.CreateOrder(ctx, order("john@example.com", line(p.ID, 1)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if o.Payment.Status != domain.PaymentStatusAuthorized || o.Payment.RetryAttempts != 2 {
		t.Fatalf("unexpected payment %+v", o.Payment)
	}
}

func TestCreateOrder_DeclinedIsNotRetried(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, &fakeGateway{script: []error{errDeclined}})
	p := e.product(t, "SKU1", "10.00", 5)

	_, err := e.orders.CreateOrder(ctx, order("john@example.com", line(p.ID, 1)))
	var perr *PaymentError
	if !errors.As(err, &perr) || perr.Retryable {
		t.Fatalf("expected declined payment error, got %v", err)
	}
	if e.gateway.authorizeCalls() != 1 || e.stock(t, p.ID) != 5 {
		t.Fatalf("calls=%d stock=%d", e.gateway.authorizeCalls(), e.stock(t, p.ID))
	}
}

func TestCreateOrder_CommitFailureCompensates(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{}
	e := newEnv(t, gw, func(d *OrderDeps) {
		d.Orders = failingOrders{OrderRepository: d.Orders, err: errStorage}
	})
	p := e.product(t, "SKU1", "10.00", 5)

	_, err := e.orders.CreateOrder(ctx, order("john@example.com", line(p.ID, 3)))
	if !errors.Is(err, errStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if e.stock(t, p.ID) != 5 {
		t.Fatalf("stock not restored: %d", e.stock(t, p.ID))
	}
	if len(gw.voids) != 1 || gw.voids[0] != "AUTH_1" {
		t.Fatalf("authorization not voided: %v", gw.voids)
	}
}

func TestCreateOrder_InvalidInput(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)
	p1 := e.product(t, "S1", "10.00", 5)

	cases := map[string]CreateOrderRequest{
		"empty email":     order("", line(p1.ID, 1)),
		"bad email":       order("not-an-email", line(p1.ID, 1)),
		"no items":        order("john@example.com"),
		"zero quantity":   order("john@example.com", line(p1.ID, 0)),
		"bad product id":  order("john@example.com", line(0, 1)),
		"unknown product": order("john@example.com", line(999, 1)),
	}
	for name, req := range cases {
		if _, err := e.orders.CreateOrder(ctx, req); !errors.Is(err, ErrValidation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
	if e.stock(t, p1.ID) != 5 || e.gateway.authorizeCalls() != 0 {
		t.Fatalf("validation failures must not have side effects")
	}
}

func TestCreateOrder_InactiveProductAndMinimumTotal(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)
	gone := e.product(t, "GONE", "10.00", 5)
	free := e.product(t, "FREE", "0.00", 5)
	if err := e.products.Delete(ctx, gone.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := e.orders.CreateOrder(ctx, order("a@example.com", line(gone.ID, 1))); !errors.Is(err, ErrProductInactive) {
		t.Fatalf("expected inactive product, got %v", err)
	}
	if _, err := e.orders.CreateOrder(ctx, order("a@example.com", line(free.ID, 1))); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected minimum total violation, got %v", err)
	}
	if e.stock(t, free.ID) != 5 {
		t.Fatalf("stock changed")
	}
}

func TestStockConservation(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)
	p := e.product(t, "P", "5.00", 20)

	var kept int64
	for i, qty := range []int64{1, 2, 3, 4} {
		o, err := e.orders.CreateOrder(ctx, order("c@example.com", line(p.ID, qty)))
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		if i%2 == 0 {
			if _, err := e.cancel.Cancel(ctx, o.ID); err != nil {
				t.Fatalf("cancel %d: %v", i, err)
			}
			continue
		}
		kept += qty
	}
	if got := e.stock(t, p.ID); got != 20-kept {
		t.Fatalf("expected stock %d, got %d", 20-kept, got)
	}
}

func TestListOrders(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)
	p := e.product(t, "P", "5.00", 20)
	for i := 0; i < 3; i++ {
		if _, err := e.orders.CreateOrder(ctx, order("Buyer@Example.com", line(p.ID, 1))); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if _, err := e.orders.CreateOrder(ctx, order("other@example.com", line(p.ID, 1))); err != nil {
		t.Fatalf("create: %v", err)
	}

	page, err := e.orders.ListOrders(ctx, "buyer@example.com", 1, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.TotalElements != 3 || page.TotalPages != 2 || len(page.Content) != 1 {
		t.Fatalf("unexpected page %+v", page)
	}
	if page.Content[0].Payment == nil {
		t.Fatalf("payment not attached")
	}

	if _, err := e.orders.ListOrders(ctx, "nobody@example.com", 0, 10); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := e.orders.ListOrders(ctx, "buyer@example.com", 0, 101); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for size, got %v", err)
	}
}

func TestGetOrder_NotFound(t *testing.T) {
	e := newEnv(t, nil)
	if _, err := e.orders.GetOrder(context.Background(), 42); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected order not found, got %v", err)
	}
}

// seedUnpaid заказ PENDING с неавторизованным платежом, как после сбоя в старых данных
func seedUnpaid(t *testing.T, e *testEnv, payStatus domain.PaymentStatus) *domain.Order {
	t.Helper()
	ctx := context.Background()
	c, err := e.orders.Customers.FindOrCreate(ctx, "legacy@example.com", "", "")
	if err != nil {
		t.Fatalf("customer: %v", err)
	}
	p := e.product(t, "LEGACY", "10.00", 5)
	o := &domain.Order{CustomerID: c.ID, CustomerEmail: c.Email, Status: domain.OrderStatusPending,
		Subtotal: p.Price, Discount: decimal.Zero, Total: p.Price,
		Items: []domain.OrderItem{{ProductID: p.ID, ProductSKU: p.SKU, Quantity: 1, UnitPrice: p.Price, Subtotal: p.Price}}}
	if err := e.ordersDB.Create(ctx, o); err != nil {
		t.Fatalf("order: %v", err)
	}
	pay := domain.NewPayment(o.Total)
	pay.OrderID = o.ID
	pay.Status = payStatus
	if payStatus == domain.PaymentStatusFailed {
		pay.RetryAttempts = 2
		pay.LastError = "Payment service temporarily unavailable"
	}
	if err := e.payments.Create(ctx, &pay); err != nil {
		t.Fatalf("payment: %v", err)
	}
	return o
}

func TestAuthorizePayment_RetrySucceeds(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)
	o := seedUnpaid(t, e, domain.PaymentStatusFailed)

	got, err := e.orders.AuthorizePayment(ctx, o.ID)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if got.Status != domain.OrderStatusPaid || got.Payment.Status != domain.PaymentStatusAuthorized {
		t.Fatalf("unexpected state %s/%s", got.Status, got.Payment.Status)
	}
	if got.Payment.RetryAttempts != 3 || got.Payment.LastError != "" {
		t.Fatalf("unexpected payment %+v", got.Payment)
	}

	again, err := e.orders.AuthorizePayment(ctx, o.ID)
	if err != nil || again.Payment.AuthorizationID != got.Payment.AuthorizationID {
		t.Fatalf("authorized payment must be returned unchanged: %v", err)
	}
	if e.gateway.authorizeCalls() != 1 {
		t.Fatalf("gateway called %d times", e.gateway.authorizeCalls())
	}
}

func TestAuthorizePayment_FailureIsPersisted(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, &fakeGateway{script: []error{errDeclined}})
	o := seedUnpaid(t, e, domain.PaymentStatusPending)

	_, err := e.orders.AuthorizePayment(ctx, o.ID)
	var perr *PaymentError
	if !errors.As(err, &perr) || perr.Retryable {
		t.Fatalf("expected declined, got %v", err)
	}
	got, err := e.orders.GetOrder(ctx, o.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.OrderStatusPending || got.Payment.Status != domain.PaymentStatusFailed || got.Payment.RetryAttempts != 1 {
		t.Fatalf("unexpected state %s %+v", got.Status, got.Payment)
	}
}

func TestCancelAndRetryAreMutuallyExclusive(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)
	o := seedUnpaid(t, e, domain.PaymentStatusFailed)

	if _, err := e.cancel.Cancel(ctx, o.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("cancel of unpaid order must fail with invalid state, got %v", err)
	}
	if _, err := e.orders.AuthorizePayment(ctx, o.ID); err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if _, err := e.cancel.Cancel(ctx, o.ID); err != nil {
		t.Fatalf("cancel after authorization: %v", err)
	}
	if _, err := e.orders.AuthorizePayment(ctx, o.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("retry on cancelled order must fail, got %v", err)
	}
}
