package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"ordercore/internal/domain"
)

// Connect пул соединений с проверкой доступности
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 8
	cfg.MinConns = 1
	cfg.HealthCheckPeriod = 30 * time.Second
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgTxKey struct{}

// PostgresStore товары; остальные репозитории это обёртки над тем же пулом
type PostgresStore struct{ pool *pgxpool.Pool }

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore { return &PostgresStore{pool: pool} }

var (
	_ ProductRepository = (*PostgresStore)(nil)
	_ Pinger            = (*PostgresStore)(nil)
)

// q транзакция из контекста или пул
func (s *PostgresStore) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(pgTxKey{}).(pgx.Tx); ok {
		return tx
	}
	return s.pool
}

func (s *PostgresStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func parseMoney(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("numeric %q: %w", s, err)
	}
	return d, nil
}

const productColumns = `id, name, sku, price::text, stock, active, version, created_at, updated_at`

func scanProduct(row pgx.Row) (*domain.Product, error) {
	var p domain.Product
	var price string
	if err := row.Scan(&p.ID, &p.Name, &p.SKU, &price, &p.Stock, &p.Active, &p.Version, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	var err error
	if p.Price, err = parseMoney(price); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStore) Create(ctx context.Context, p *domain.Product) error {
	row := s.q(ctx).QueryRow(ctx, `
		INSERT INTO products (name, sku, price, stock, active)
		VALUES ($1, $2, $3::numeric, $4, $5)
		RETURNING id, version, created_at, updated_at`,
		p.Name, p.SKU, p.Price.String(), p.Stock, p.Active)
	if err := row.Scan(&p.ID, &p.Version, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	return scanProduct(s.q(ctx).QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
}

func (s *PostgresStore) GetBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	return scanProduct(s.q(ctx).QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE sku = $1`, sku))
}

// Update условная запись: WHERE version = прочитанная версия
func (s *PostgresStore) Update(ctx context.Context, p *domain.Product) error {
	row := s.q(ctx).QueryRow(ctx, `
		UPDATE products
		   SET name = $3, sku = $4, price = $5::numeric, stock = $6, active = $7,
		       version = version + 1, updated_at = now()
		 WHERE id = $1 AND version = $2
		RETURNING version, updated_at`,
		p.ID, p.Version, p.Name, p.SKU, p.Price.String(), p.Stock, p.Active)
	err := row.Scan(&p.Version, &p.UpdatedAt)
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err):
		return ErrDuplicate
	case errors.Is(err, pgx.ErrNoRows):
		if _, getErr := s.GetByID(ctx, p.ID); getErr != nil {
			return getErr
		}
		return ErrVersionConflict
	default:
		return err
	}
}

func (s *PostgresStore) AddStock(ctx context.Context, id int64, qty int64) error {
	ct, err := s.q(ctx).Exec(ctx, `
		UPDATE products SET stock = stock + $2, version = version + 1, updated_at = now()
		 WHERE id = $1`, id, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, f ProductFilter) ([]domain.Product, error) {
	var minPrice, maxPrice *string
	if f.MinPrice != nil {
		v := f.MinPrice.String()
		minPrice = &v
	}
	if f.MaxPrice != nil {
		v := f.MaxPrice.String()
		maxPrice = &v
	}
	rows, err := s.q(ctx).Query(ctx, `
		SELECT `+productColumns+` FROM products
		 WHERE ($1 = '' OR name ILIKE '%' || $1 || '%')
		   AND (NOT $2 OR active)
		   AND ($3::numeric IS NULL OR price >= $3::numeric)
		   AND ($4::numeric IS NULL OR price <= $4::numeric)
		 ORDER BY id`,
		f.NameSubstring, f.ActiveOnly, minPrice, maxPrice)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]domain.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// PostgresTx транзакция пула, пробрасывается через контекст
type PostgresTx struct{ store *PostgresStore }

func NewPostgresTx(store *PostgresStore) *PostgresTx { return &PostgresTx{store: store} }

var _ TxManager = (*PostgresTx)(nil)

func (t *PostgresTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(pgTxKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}
	tx, err := t.store.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(context.WithValue(ctx, pgTxKey{}, tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
