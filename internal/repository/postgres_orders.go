package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"ordercore/internal/domain"
)

type PostgresCustomers struct{ store *PostgresStore }

func NewPostgresCustomers(store *PostgresStore) *PostgresCustomers {
	return &PostgresCustomers{store: store}
}

var _ CustomerRepository = (*PostgresCustomers)(nil)

func scanCustomer(row pgx.Row) (*domain.Customer, error) {
	var c domain.Customer
	if err := row.Scan(&c.ID, &c.Email, &c.FirstName, &c.LastName, &c.LoyaltyPoints, &c.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (pc *PostgresCustomers) Create(ctx context.Context, c *domain.Customer) error {
	c.Email = normalizeEmail(c.Email)
	err := pc.store.q(ctx).QueryRow(ctx, `
		INSERT INTO customers (email, first_name, last_name, loyalty_points)
		VALUES ($1, $2, $3, $4) RETURNING id, created_at`,
		c.Email, c.FirstName, c.LastName, c.LoyaltyPoints).Scan(&c.ID, &c.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (pc *PostgresCustomers) GetByID(ctx context.Context, id int64) (*domain.Customer, error) {
	return scanCustomer(pc.store.q(ctx).QueryRow(ctx, `
		SELECT id, email, first_name, last_name, loyalty_points, created_at
		  FROM customers WHERE id = $1`, id))
}

func (pc *PostgresCustomers) GetByEmail(ctx context.Context, email string) (*domain.Customer, error) {
	return scanCustomer(pc.store.q(ctx).QueryRow(ctx, `
		SELECT id, email, first_name, last_name, loyalty_points, created_at
		  FROM customers WHERE email = $1`, normalizeEmail(email)))
}

// PostgresOrders заказ и его позиции пишутся в одной транзакции вызывающего
type PostgresOrders struct{ store *PostgresStore }

func NewPostgresOrders(store *PostgresStore) *PostgresOrders { return &PostgresOrders{store: store} }

var _ OrderRepository = (*PostgresOrders)(nil)

const orderColumns = `o.id, o.customer_id, c.email, o.subtotal::text, o.discount::text, o.total::text,
	o.status, o.version, o.created_at, o.updated_at`

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var o domain.Order
	var subtotal, discount, total, status string
	if err := row.Scan(&o.ID, &o.CustomerID, &o.CustomerEmail, &subtotal, &discount, &total,
		&status, &o.Version, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	o.Status = domain.OrderStatus(status)
	var err error
	if o.Subtotal, err = parseMoney(subtotal); err != nil {
		return nil, err
	}
	if o.Discount, err = parseMoney(discount); err != nil {
		return nil, err
	}
	if o.Total, err = parseMoney(total); err != nil {
		return nil, err
	}
	return &o, nil
}

func (po *PostgresOrders) Create(ctx context.Context, o *domain.Order) error {
	return NewPostgresTx(po.store).WithTransaction(ctx, func(ctx context.Context) error {
		q := po.store.q(ctx)
		err := q.QueryRow(ctx, `
			INSERT INTO orders (customer_id, subtotal, discount, total, status)
			VALUES ($1, $2::numeric, $3::numeric, $4::numeric, $5)
			RETURNING id, version, created_at, updated_at`,
			o.CustomerID, o.Subtotal.String(), o.Discount.String(), o.Total.String(), string(o.Status),
		).Scan(&o.ID, &o.Version, &o.CreatedAt, &o.UpdatedAt)
		if err != nil {
			return err
		}
		for i, it := range o.Items {
			if _, err := q.Exec(ctx, `
				INSERT INTO order_items (order_id, line_no, product_id, product_sku, quantity, unit_price, subtotal)
				VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric)`,
				o.ID, i, it.ProductID, it.ProductSKU, it.Quantity, it.UnitPrice.String(), it.Subtotal.String()); err != nil {
				return err
			}
		}
		return nil
	})
}

func (po *PostgresOrders) loadItems(ctx context.Context, orders []*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(orders))
	byID := make(map[int64]*domain.Order, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
		byID[o.ID] = o
	}
	rows, err := po.store.q(ctx).Query(ctx, `
		SELECT order_id, product_id, product_sku, quantity, unit_price::text, subtotal::text
		  FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, line_no`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var orderID int64
		var it domain.OrderItem
		var unit, sub string
		if err := rows.Scan(&orderID, &it.ProductID, &it.ProductSKU, &it.Quantity, &unit, &sub); err != nil {
			return err
		}
		if it.UnitPrice, err = parseMoney(unit); err != nil {
			return err
		}
		if it.Subtotal, err = parseMoney(sub); err != nil {
			return err
		}
		byID[orderID].Items = append(byID[orderID].Items, it)
	}
	return rows.Err()
}

func (po *PostgresOrders) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	o, err := scanOrder(po.store.q(ctx).QueryRow(ctx, `
		SELECT `+orderColumns+` FROM orders o JOIN customers c ON c.id = o.customer_id
		 WHERE o.id = $1`, id))
	if err != nil {
		return nil, err
	}
	if err := po.loadItems(ctx, []*domain.Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (po *PostgresOrders) Update(ctx context.Context, o *domain.Order) error {
	err := po.store.q(ctx).QueryRow(ctx, `
		UPDATE orders SET status = $3, version = version + 1, updated_at = now()
		 WHERE id = $1 AND version = $2
		RETURNING version, updated_at`,
		o.ID, o.Version, string(o.Status)).Scan(&o.Version, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := po.GetByID(ctx, o.ID); getErr != nil {
			return getErr
		}
		return ErrVersionConflict
	}
	return err
}

func (po *PostgresOrders) ListByCustomer(ctx context.Context, customerID int64, page, size int) ([]domain.Order, int, error) {
	q := po.store.q(ctx)
	var total int
	if err := q.QueryRow(ctx, `SELECT count(*) FROM orders WHERE customer_id = $1`, customerID).Scan(&total); err != nil {
		return nil, 0, err
	}
	from, to := pageBounds(total, page, size)
	if from == to {
		return []domain.Order{}, total, nil
	}
	rows, err := q.Query(ctx, `
		SELECT `+orderColumns+` FROM orders o JOIN customers c ON c.id = o.customer_id
		 WHERE o.customer_id = $1
		 ORDER BY o.created_at, o.id
		 LIMIT $2 OFFSET $3`, customerID, to-from, from)
	if err != nil {
		return nil, 0, err
	}
	ptrs := make([]*domain.Order, 0, to-from)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, 0, err
		}
		ptrs = append(ptrs, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if err := po.loadItems(ctx, ptrs); err != nil {
		return nil, 0, err
	}
	out := make([]domain.Order, 0, len(ptrs))
	for _, o := range ptrs {
		out = append(out, *o)
	}
	return out, total, nil
}

type PostgresPayments struct{ store *PostgresStore }

func NewPostgresPayments(store *PostgresStore) *PostgresPayments {
	return &PostgresPayments{store: store}
}

var _ PaymentRepository = (*PostgresPayments)(nil)

func (pp *PostgresPayments) Create(ctx context.Context, p *domain.Payment) error {
	err := pp.store.q(ctx).QueryRow(ctx, `
		INSERT INTO payments (order_id, amount, status, authorization_id, retry_attempts, last_error)
		VALUES ($1, $2::numeric, $3, $4, $5, $6)
		RETURNING id, version, created_at, updated_at`,
		p.OrderID, p.Amount.String(), string(p.Status), p.AuthorizationID, p.RetryAttempts, p.LastError,
	).Scan(&p.ID, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (pp *PostgresPayments) GetByOrderID(ctx context.Context, orderID int64) (*domain.Payment, error) {
	var p domain.Payment
	var amount, status string
	err := pp.store.q(ctx).QueryRow(ctx, `
		SELECT id, order_id, amount::text, status, authorization_id, retry_attempts, last_error,
		       version, created_at, updated_at
		  FROM payments WHERE order_id = $1`, orderID,
	).Scan(&p.ID, &p.OrderID, &amount, &status, &p.AuthorizationID, &p.RetryAttempts, &p.LastError,
		&p.Version, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	p.Status = domain.PaymentStatus(status)
	if p.Amount, err = parseMoney(amount); err != nil {
		return nil, err
	}
	return &p, nil
}

func (pp *PostgresPayments) Update(ctx context.Context, p *domain.Payment) error {
	err := pp.store.q(ctx).QueryRow(ctx, `
		UPDATE payments
		   SET status = $3, authorization_id = $4, retry_attempts = $5, last_error = $6,
		       version = version + 1, updated_at = now()
		 WHERE order_id = $1 AND version = $2
		RETURNING version, updated_at`,
		p.OrderID, p.Version, string(p.Status), p.AuthorizationID, p.RetryAttempts, p.LastError,
	).Scan(&p.Version, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := pp.GetByOrderID(ctx, p.OrderID); getErr != nil {
			return getErr
		}
		return ErrVersionConflict
	}
	return err
}

// PostgresIdempotency уникальность ключа обеспечивает PRIMARY KEY
type PostgresIdempotency struct{ store *PostgresStore }

func NewPostgresIdempotency(store *PostgresStore) *PostgresIdempotency {
	return &PostgresIdempotency{store: store}
}

var _ IdempotencyRepository = (*PostgresIdempotency)(nil)

// Insert просроченную запись можно перезаписать, живую нельзя
func (pi *PostgresIdempotency) Insert(ctx context.Context, r *domain.IdempotencyRecord) error {
	var expires *time.Time
	if !r.ExpiresAt.IsZero() {
		expires = &r.ExpiresAt
	}
	ct, err := pi.store.q(ctx).Exec(ctx, `
		INSERT INTO idempotency_records (key, request_hash, operation_type, status_code, response_body, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (key) DO UPDATE
		   SET request_hash = EXCLUDED.request_hash, operation_type = EXCLUDED.operation_type,
		       status_code = EXCLUDED.status_code, response_body = EXCLUDED.response_body,
		       created_at = now(), expires_at = EXCLUDED.expires_at
		 WHERE idempotency_records.expires_at IS NOT NULL AND idempotency_records.expires_at <= now()`,
		r.Key, r.RequestHash, r.OperationType, r.StatusCode, r.ResponseBody, expires)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrDuplicate
	}
	return nil
}

func (pi *PostgresIdempotency) Get(ctx context.Context, key string) (*domain.IdempotencyRecord, error) {
	var r domain.IdempotencyRecord
	var expires *time.Time
	err := pi.store.q(ctx).QueryRow(ctx, `
		SELECT key, request_hash, operation_type, status_code, coalesce(response_body, ''::bytea), created_at, expires_at
		  FROM idempotency_records
		 WHERE key = $1 AND (expires_at IS NULL OR expires_at > now())`, key,
	).Scan(&r.Key, &r.RequestHash, &r.OperationType, &r.StatusCode, &r.ResponseBody, &r.CreatedAt, &expires)
	if err != nil {
		return nil, notFound(err)
	}
	if expires != nil {
		r.ExpiresAt = *expires
	}
	return &r, nil
}

func (pi *PostgresIdempotency) Complete(ctx context.Context, key string, statusCode int, body []byte) error {
	ct, err := pi.store.q(ctx).Exec(ctx, `
		UPDATE idempotency_records SET status_code = $2, response_body = $3 WHERE key = $1`,
		key, statusCode, body)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (pi *PostgresIdempotency) Delete(ctx context.Context, key string) error {
	_, err := pi.store.q(ctx).Exec(ctx, `DELETE FROM idempotency_records WHERE key = $1`, key)
	return err
}
