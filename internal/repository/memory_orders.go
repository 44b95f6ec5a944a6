package repository

import (
	"context"
	"sort"

	"ordercore/internal/domain"
)

// CustomerRepository implementation on wrapper type
type MemoryCustomers struct{ store *MemoryStore }

func NewMemoryCustomers(store *MemoryStore) *MemoryCustomers { return &MemoryCustomers{store: store} }

var _ CustomerRepository = (*MemoryCustomers)(nil)

func (mc *MemoryCustomers) Create(ctx context.Context, c *domain.Customer) error {
	mc.store.wlock(ctx)
	defer mc.store.wunlock(ctx)
	email := normalizeEmail(c.Email)
	if _, ok := mc.store.customerByMail[email]; ok {
		return ErrDuplicate
	}
	c.ID = mc.store.nextCustomerID
	mc.store.nextCustomerID++
	c.Email = email
	c.CreatedAt = mc.store.now()
	mc.store.customersByID[c.ID] = *c
	mc.store.customerByMail[email] = c.ID
	id := c.ID
	mc.store.journal(ctx, func() {
		delete(mc.store.customersByID, id)
		delete(mc.store.customerByMail, email)
	})
	return nil
}

func (mc *MemoryCustomers) GetByID(ctx context.Context, id int64) (*domain.Customer, error) {
	mc.store.rlock(ctx)
	defer mc.store.runlock(ctx)
	c, ok := mc.store.customersByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (mc *MemoryCustomers) GetByEmail(ctx context.Context, email string) (*domain.Customer, error) {
	mc.store.rlock(ctx)
	defer mc.store.runlock(ctx)
	id, ok := mc.store.customerByMail[normalizeEmail(email)]
	if !ok {
		return nil, ErrNotFound
	}
	c := mc.store.customersByID[id]
	return &c, nil
}

// OrderRepository implementation on wrapper type
type MemoryOrders struct{ store *MemoryStore }

func NewMemoryOrders(store *MemoryStore) *MemoryOrders { return &MemoryOrders{store: store} }

var _ OrderRepository = (*MemoryOrders)(nil)

func cloneOrder(o domain.Order) domain.Order {
	o.Items = append([]domain.OrderItem(nil), o.Items...)
	o.Payment = nil
	return o
}

func (mo *MemoryOrders) Create(ctx context.Context, o *domain.Order) error {
	mo.store.wlock(ctx)
	defer mo.store.wunlock(ctx)
	o.ID = mo.store.nextOrderID
	mo.store.nextOrderID++
	o.Version = 1
	o.CreatedAt = mo.store.now()
	o.UpdatedAt = o.CreatedAt
	mo.store.ordersByID[o.ID] = cloneOrder(*o)
	id := o.ID
	mo.store.journal(ctx, func() { delete(mo.store.ordersByID, id) })
	return nil
}

func (mo *MemoryOrders) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	mo.store.rlock(ctx)
	defer mo.store.runlock(ctx)
	o, ok := mo.store.ordersByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := cloneOrder(o)
	return &cp, nil
}

// Update меняет статус заказа; позиции заказа неизменны
func (mo *MemoryOrders) Update(ctx context.Context, o *domain.Order) error {
	mo.store.wlock(ctx)
	defer mo.store.wunlock(ctx)
	prev, ok := mo.store.ordersByID[o.ID]
	if !ok {
		return ErrNotFound
	}
	if prev.Version != o.Version {
		return ErrVersionConflict
	}
	next := cloneOrder(prev)
	next.Status = o.Status
	next.Version++
	next.UpdatedAt = mo.store.now()
	mo.store.ordersByID[o.ID] = next
	o.Version = next.Version
	o.UpdatedAt = next.UpdatedAt
	mo.store.journal(ctx, func() { mo.store.ordersByID[prev.ID] = prev })
	return nil
}

func (mo *MemoryOrders) ListByCustomer(ctx context.Context, customerID int64, page, size int) ([]domain.Order, int, error) {
	mo.store.rlock(ctx)
	defer mo.store.runlock(ctx)
	all := make([]domain.Order, 0)
	for _, o := range mo.store.ordersByID {
		if o.CustomerID == customerID {
			all = append(all, o)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	from, to := pageBounds(len(all), page, size)
	out := make([]domain.Order, 0, to-from)
	for _, o := range all[from:to] {
		out = append(out, cloneOrder(o))
	}
	return out, len(all), nil
}

// PaymentRepository implementation on wrapper type
type MemoryPayments struct{ store *MemoryStore }

func NewMemoryPayments(store *MemoryStore) *MemoryPayments { return &MemoryPayments{store: store} }

var _ PaymentRepository = (*MemoryPayments)(nil)

func (mp *MemoryPayments) Create(ctx context.Context, p *domain.Payment) error {
	mp.store.wlock(ctx)
	defer mp.store.wunlock(ctx)
	if _, ok := mp.store.paymentByOrder[p.OrderID]; ok {
		return ErrDuplicate
	}
	p.ID = mp.store.nextPaymentID
	mp.store.nextPaymentID++
	p.Version = 1
	p.CreatedAt = mp.store.now()
	p.UpdatedAt = p.CreatedAt
	mp.store.paymentByOrder[p.OrderID] = *p
	orderID := p.OrderID
	mp.store.journal(ctx, func() { delete(mp.store.paymentByOrder, orderID) })
	return nil
}

func (mp *MemoryPayments) GetByOrderID(ctx context.Context, orderID int64) (*domain.Payment, error) {
	mp.store.rlock(ctx)
	defer mp.store.runlock(ctx)
	p, ok := mp.store.paymentByOrder[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (mp *MemoryPayments) Update(ctx context.Context, p *domain.Payment) error {
	mp.store.wlock(ctx)
	defer mp.store.wunlock(ctx)
	prev, ok := mp.store.paymentByOrder[p.OrderID]
	if !ok {
		return ErrNotFound
	}
	if prev.Version != p.Version {
		return ErrVersionConflict
	}
	p.Version++
	p.ID = prev.ID
	p.CreatedAt = prev.CreatedAt
	p.UpdatedAt = mp.store.now()
	mp.store.paymentByOrder[p.OrderID] = *p
	mp.store.journal(ctx, func() { mp.store.paymentByOrder[prev.OrderID] = prev })
	return nil
}
