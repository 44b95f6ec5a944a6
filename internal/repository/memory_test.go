package repository

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"ordercore/internal/domain"
)

func seedProduct(t *testing.T, store *MemoryStore, sku string, stock int64) domain.Product {
	t.Helper()
	p := domain.Product{Name: "A " + sku, SKU: sku, Price: decimal.RequireFromString("10.00"), Stock: stock, Active: true}
	if err := store.Create(context.Background(), &p); err != nil {
		t.Fatalf("create: %v", err)
	}
	return p
}

func TestMemoryStore_ProductCRUD(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	p := seedProduct(t, store, "S1", 5)
	if p.ID == 0 || p.Version != 1 {
		t.Fatalf("unexpected product after create: %+v", p)
	}

	got, err := store.GetBySKU(ctx, "S1")
	if err != nil || got.ID != p.ID {
		t.Fatalf("get by sku: %v", err)
	}

	p.Price = decimal.RequireFromString("12.00")
	if err := store.Update(ctx, &p); err != nil {
		t.Fatalf("update: %v", err)
	}
	if p.Version != 2 {
		t.Fatalf("expected version 2, got %d", p.Version)
	}

	dup := domain.Product{Name: "B", SKU: "S1"}
	if err := store.Create(ctx, &dup); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected duplicate sku, got %v", err)
	}
	if _, err := store.GetByID(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryStore_UpdateRejectsStaleVersion(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	p := seedProduct(t, store, "S1", 5)

	a, _ := store.GetByID(ctx, p.ID)
	b, _ := store.GetByID(ctx, p.ID)

	a.Stock -= 2
	if err := store.Update(ctx, a); err != nil {
		t.Fatalf("first writer: %v", err)
	}
	b.Stock -= 1
	if err := store.Update(ctx, b); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}

	cur, _ := store.GetByID(ctx, p.ID)
	if cur.Stock != 3 {
		t.Fatalf("stale write applied: stock %d", cur.Stock)
	}
}

func TestMemoryStore_AddStockBumpsVersion(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	p := seedProduct(t, store, "S1", 1)

	if err := store.AddStock(ctx, p.ID, 4); err != nil {
		t.Fatalf("add stock: %v", err)
	}
	cur, _ := store.GetByID(ctx, p.ID)
	if cur.Stock != 5 || cur.Version != p.Version+1 {
		t.Fatalf("unexpected product: %+v", cur)
	}
	if err := store.AddStock(ctx, 42, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryStore_ListFilter(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	seedProduct(t, store, "S1", 1)
	inactive := seedProduct(t, store, "S2", 1)
	inactive.Active = false
	if err := store.Update(ctx, &inactive); err != nil {
		t.Fatal(err)
	}

	all, _ := store.List(ctx, ProductFilter{})
	if len(all) != 2 {
		t.Fatalf("expected 2 products, got %d", len(all))
	}
	active, _ := store.List(ctx, ProductFilter{ActiveOnly: true})
	if len(active) != 1 || active[0].SKU != "S1" {
		t.Fatalf("unexpected active list: %+v", active)
	}
	maxPrice := decimal.RequireFromString("5")
	cheap, _ := store.List(ctx, ProductFilter{MaxPrice: &maxPrice})
	if len(cheap) != 0 {
		t.Fatalf("expected empty list, got %d", len(cheap))
	}
}

func TestMemoryTx_CommitsTogether(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	tx := NewMemoryTx(store)
	orders := NewMemoryOrders(store)
	payments := NewMemoryPayments(store)
	p := seedProduct(t, store, "S1", 5)

	err := tx.WithTransaction(ctx, func(ctx context.Context) error {
		pp, err := store.GetByID(ctx, p.ID)
		if err != nil {
			return err
		}
		pp.Stock -= 3
		if err := store.Update(ctx, pp); err != nil {
			return err
		}
		o := domain.Order{CustomerID: 1, Status: domain.OrderStatusPaid,
			Items: []domain.OrderItem{{ProductID: p.ID, Quantity: 3}}}
		if err := orders.Create(ctx, &o); err != nil {
			return err
		}
		pay := domain.NewPayment(decimal.NewFromInt(30))
		pay.OrderID = o.ID
		return payments.Create(ctx, &pay)
	})
	if err != nil {
		t.Fatalf("tx err: %v", err)
	}
	cur, _ := store.GetByID(ctx, p.ID)
	if cur.Stock != 2 {
		t.Fatalf("expected stock 2, got %d", cur.Stock)
	}
	if _, err := payments.GetByOrderID(ctx, 1); err != nil {
		t.Fatalf("payment not committed: %v", err)
	}
}

func TestMemoryTx_RollbackOnError(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	tx := NewMemoryTx(store)
	orders := NewMemoryOrders(store)
	customers := NewMemoryCustomers(store)
	p := seedProduct(t, store, "S1", 5)
	boom := errors.New("boom")

	err := tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := store.AddStock(ctx, p.ID, -2); err != nil {
			return err
		}
		if err := customers.Create(ctx, &domain.Customer{Email: "a@b.c"}); err != nil {
			return err
		}
		o := domain.Order{CustomerID: 1, Status: domain.OrderStatusPaid}
		if err := orders.Create(ctx, &o); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	cur, _ := store.GetByID(ctx, p.ID)
	if cur.Stock != 5 || cur.Version != p.Version {
		t.Fatalf("stock change survived rollback: %+v", cur)
	}
	if _, err := orders.GetByID(ctx, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("order survived rollback: %v", err)
	}
	if _, err := customers.GetByEmail(ctx, "a@b.c"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("customer survived rollback: %v", err)
	}
}

func TestMemoryOrders_UpdateAndList(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	orders := NewMemoryOrders(store)

	for i := 0; i < 3; i++ {
		o := domain.Order{CustomerID: 7, Status: domain.OrderStatusPaid}
		if err := orders.Create(ctx, &o); err != nil {
			t.Fatal(err)
		}
	}
	other := domain.Order{CustomerID: 8, Status: domain.OrderStatusPaid}
	_ = orders.Create(ctx, &other)

	page, total, err := orders.ListByCustomer(ctx, 7, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 || len(page) != 1 || page[0].ID != 3 {
		t.Fatalf("unexpected page: total=%d page=%+v", total, page)
	}

	o, _ := orders.GetByID(ctx, 1)
	stale := *o
	o.Status = domain.OrderStatusCancelled
	if err := orders.Update(ctx, o); err != nil {
		t.Fatalf("update: %v", err)
	}
	stale.Status = domain.OrderStatusShipped
	if err := orders.Update(ctx, &stale); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}
}

func TestMemoryOrders_ListHugePage(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	orders := NewMemoryOrders(store)
	o := domain.Order{CustomerID: 7, Status: domain.OrderStatusPaid}
	if err := orders.Create(ctx, &o); err != nil {
		t.Fatal(err)
	}

	page, total, err := orders.ListByCustomer(ctx, 7, 100000000000000000, 100)
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || len(page) != 0 {
		t.Fatalf("expected empty page past the end, got total=%d page=%d", total, len(page))
	}
}

func TestPageBounds(t *testing.T) {
	cases := []struct {
		total, page, size int
		from, to          int
	}{
		{total: 5, page: 0, size: 2, from: 0, to: 2},
		{total: 5, page: 2, size: 2, from: 4, to: 5},
		{total: 5, page: 3, size: 2, from: 5, to: 5},
		{total: 0, page: 0, size: 10, from: 0, to: 0},
		{total: 3, page: math.MaxInt / 2, size: 100, from: 3, to: 3},
	}
	for _, tc := range cases {
		from, to := pageBounds(tc.total, tc.page, tc.size)
		if from != tc.from || to != tc.to {
			t.Fatalf("pageBounds(%d,%d,%d) = %d,%d; want %d,%d", tc.total, tc.page, tc.size, from, to, tc.from, tc.to)
		}
	}
}

func TestMemoryPayments_OnePerOrder(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	payments := NewMemoryPayments(store)

	p := domain.NewPayment(decimal.NewFromInt(10))
	p.OrderID = 1
	if err := payments.Create(ctx, &p); err != nil {
		t.Fatal(err)
	}
	again := domain.NewPayment(decimal.NewFromInt(10))
	again.OrderID = 1
	if err := payments.Create(ctx, &again); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected duplicate, got %v", err)
	}
}

func TestMemoryIdempotency_SingleWinner(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	repo := NewMemoryIdempotency(store)

	const workers = 16
	var wg sync.WaitGroup
	wins := make(chan int, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := repo.Insert(ctx, &domain.IdempotencyRecord{Key: "k1", RequestHash: "h"}); err == nil {
				wins <- i
			}
		}(i)
	}
	wg.Wait()
	close(wins)
	if n := len(wins); n != 1 {
		t.Fatalf("expected exactly one insert winner, got %d", n)
	}

	if err := repo.Complete(ctx, "k1", 201, []byte(`{"id":1}`)); err != nil {
		t.Fatal(err)
	}
	rec, err := repo.Get(ctx, "k1")
	if err != nil || rec.Pending() || string(rec.ResponseBody) != `{"id":1}` {
		t.Fatalf("unexpected record %+v err=%v", rec, err)
	}
}

func TestMemoryIdempotency_Expiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	repo := NewMemoryIdempotency(store)

	if err := repo.Insert(ctx, &domain.IdempotencyRecord{Key: "k", ExpiresAt: now.Add(time.Hour)}); err != nil {
		t.Fatal(err)
	}
	now = now.Add(2 * time.Hour)
	if _, err := repo.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired record to be gone, got %v", err)
	}
	if err := repo.Insert(ctx, &domain.IdempotencyRecord{Key: "k"}); err != nil {
		t.Fatalf("expected insert over expired record, got %v", err)
	}
}
