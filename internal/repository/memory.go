package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"ordercore/internal/domain"
)

// MemoryStore объединённое in-memory хранилище и простой генератор ID
type MemoryStore struct {
	mu             sync.RWMutex
	nextProdID     int64
	nextCustomerID int64
	nextOrderID    int64
	nextPaymentID  int64
	productsByID   map[int64]domain.Product
	productBySKU   map[string]int64
	customersByID  map[int64]domain.Customer
	customerByMail map[string]int64
	ordersByID     map[int64]domain.Order
	paymentByOrder map[int64]domain.Payment
	idempotency    map[string]domain.IdempotencyRecord
	now            func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextProdID:     1,
		nextCustomerID: 1,
		nextOrderID:    1,
		nextPaymentID:  1,
		productsByID:   make(map[int64]domain.Product),
		productBySKU:   make(map[string]int64),
		customersByID:  make(map[int64]domain.Customer),
		customerByMail: make(map[string]int64),
		ordersByID:     make(map[int64]domain.Order),
		paymentByOrder: make(map[int64]domain.Payment),
		idempotency:    make(map[string]domain.IdempotencyRecord),
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// transaction-aware locking helpers.
// Внутри транзакции блокировка уже взята, записи журналируются для отката
type txKey struct{}

type memTx struct{ undo []func() }

func txFrom(ctx context.Context) *memTx {
	tx, _ := ctx.Value(txKey{}).(*memTx)
	return tx
}

func (m *MemoryStore) rlock(ctx context.Context) {
	if txFrom(ctx) == nil {
		m.mu.RLock()
	}
}
func (m *MemoryStore) runlock(ctx context.Context) {
	if txFrom(ctx) == nil {
		m.mu.RUnlock()
	}
}
func (m *MemoryStore) wlock(ctx context.Context) {
	if txFrom(ctx) == nil {
		m.mu.Lock()
	}
}
func (m *MemoryStore) wunlock(ctx context.Context) {
	if txFrom(ctx) == nil {
		m.mu.Unlock()
	}
}

// journal запоминает обратное действие для текущей транзакции
func (m *MemoryStore) journal(ctx context.Context, undo func()) {
	if tx := txFrom(ctx); tx != nil {
		tx.undo = append(tx.undo, undo)
	}
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

// Ensure interfaces
var (
	_ ProductRepository = (*MemoryStore)(nil)
	_ Pinger            = (*MemoryStore)(nil)
)

// ProductRepository implementation
func (m *MemoryStore) Create(ctx context.Context, p *domain.Product) error {
	m.wlock(ctx)
	defer m.wunlock(ctx)
	if _, ok := m.productBySKU[p.SKU]; ok {
		return ErrDuplicate
	}
	p.ID = m.nextProdID
	m.nextProdID++
	p.Version = 1
	p.CreatedAt = m.now()
	p.UpdatedAt = p.CreatedAt
	m.productsByID[p.ID] = *p
	m.productBySKU[p.SKU] = p.ID
	id, sku := p.ID, p.SKU
	m.journal(ctx, func() {
		delete(m.productsByID, id)
		delete(m.productBySKU, sku)
	})
	return nil
}

func (m *MemoryStore) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	m.rlock(ctx)
	defer m.runlock(ctx)
	p, ok := m.productsByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	// return copy
	cp := p
	return &cp, nil
}

func (m *MemoryStore) GetBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	m.rlock(ctx)
	defer m.runlock(ctx)
	id, ok := m.productBySKU[sku]
	if !ok {
		return nil, ErrNotFound
	}
	cp := m.productsByID[id]
	return &cp, nil
}

func (m *MemoryStore) Update(ctx context.Context, p *domain.Product) error {
	m.wlock(ctx)
	defer m.wunlock(ctx)
	prev, ok := m.productsByID[p.ID]
	if !ok {
		return ErrNotFound
	}
	if prev.Version != p.Version {
		return ErrVersionConflict
	}
	if p.SKU != prev.SKU {
		if _, taken := m.productBySKU[p.SKU]; taken {
			return ErrDuplicate
		}
		delete(m.productBySKU, prev.SKU)
		m.productBySKU[p.SKU] = p.ID
	}
	p.Version++
	p.CreatedAt = prev.CreatedAt
	p.UpdatedAt = m.now()
	m.productsByID[p.ID] = *p
	newSKU := p.SKU
	m.journal(ctx, func() {
		delete(m.productBySKU, newSKU)
		m.productBySKU[prev.SKU] = prev.ID
		m.productsByID[prev.ID] = prev
	})
	return nil
}

func (m *MemoryStore) AddStock(ctx context.Context, id int64, qty int64) error {
	m.wlock(ctx)
	defer m.wunlock(ctx)
	prev, ok := m.productsByID[id]
	if !ok {
		return ErrNotFound
	}
	next := prev
	next.Stock += qty
	next.Version++
	next.UpdatedAt = m.now()
	m.productsByID[id] = next
	m.journal(ctx, func() { m.productsByID[id] = prev })
	return nil
}

func (m *MemoryStore) List(ctx context.Context, f ProductFilter) ([]domain.Product, error) {
	m.rlock(ctx)
	defer m.runlock(ctx)
	out := make([]domain.Product, 0)
	for _, p := range m.productsByID {
		if matchesFilter(p, f) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Tx manager: блокировка записи на время fn, при ошибке журнал откатывается в обратном порядке
type MemoryTx struct{ store *MemoryStore }

func NewMemoryTx(store *MemoryStore) *MemoryTx { return &MemoryTx{store: store} }

var _ TxManager = (*MemoryTx)(nil)

func (tx *MemoryTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if txFrom(ctx) != nil {
		// nested call joins the outer transaction
		return fn(ctx)
	}
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()

	t := &memTx{}
	defer func() {
		if r := recover(); r != nil {
			t.rollback()
			panic(r)
		}
		if err != nil {
			t.rollback()
		}
	}()
	return fn(context.WithValue(ctx, txKey{}, t))
}

func (t *memTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}
