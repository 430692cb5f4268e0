package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/susu3304/tablesplit/internal/ledger"
	"github.com/susu3304/tablesplit/internal/split"
)

// ErrDuplicate is returned when an insert hits a unique constraint.
var ErrDuplicate = errors.New("duplicate record")

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type DB struct {
	pool *pgxpool.Pool
	q    querier
}

var (
	_ split.Store     = (*DB)(nil)
	_ split.Directory = (*DB)(nil)
)

func New(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool, q: pool}, nil
}

func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// WithSessionLock locks the session row with SELECT ... FOR UPDATE and runs
// fn inside the same transaction.
func (db *DB) WithSessionLock(ctx context.Context, sessionID int64, fn func(tx split.Store) error) error {
	if db.pool == nil {
		return fmt.Errorf("nested session lock on session %d", sessionID)
	}
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id int64
	if err := tx.QueryRow(ctx, `SELECT id FROM dining_sessions WHERE id = $1 FOR UPDATE`, sessionID).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %d", ledger.ErrSessionNotFound, sessionID)
		}
		return err
	}

	if err := fn(&DB{q: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// notFound maps pgx.ErrNoRows to the given lookup error.
func notFound(err error, target error, key any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %v", target, key)
	}
	return err
}

func mapUnique(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}

// RunMigrations runs database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	_, err := db.q.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS restaurants (
			id BIGSERIAL PRIMARY KEY,
			trade_name TEXT NOT NULL,
			service_fee_pct NUMERIC(5,4) NOT NULL DEFAULT 0.10 CHECK (service_fee_pct >= 0 AND service_fee_pct <= 1),
			currency TEXT NOT NULL DEFAULT 'BRL'
		);

		CREATE TABLE IF NOT EXISTS menu_items (
			id BIGSERIAL PRIMARY KEY,
			restaurant_id BIGINT NOT NULL REFERENCES restaurants(id),
			name TEXT NOT NULL,
			price NUMERIC(12,2) NOT NULL CHECK (price >= 0),
			active BOOLEAN NOT NULL DEFAULT TRUE
		);
		CREATE INDEX IF NOT EXISTS idx_menu_items_restaurant ON menu_items(restaurant_id);

		CREATE TABLE IF NOT EXISTS staff (
			restaurant_id BIGINT NOT NULL REFERENCES restaurants(id),
			user_id TEXT NOT NULL,
			role TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (restaurant_id, user_id)
		);
		CREATE INDEX IF NOT EXISTS idx_staff_user ON staff(user_id);

		CREATE TABLE IF NOT EXISTS dining_sessions (
			id BIGSERIAL PRIMARY KEY,
			restaurant_id BIGINT NOT NULL REFERENCES restaurants(id),
			table_ref TEXT NOT NULL,
			origin TEXT NOT NULL,
			status TEXT NOT NULL,
			share_token TEXT NOT NULL UNIQUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			closed_at TIMESTAMPTZ
		);

		CREATE TABLE IF NOT EXISTS orders (
			id BIGSERIAL PRIMARY KEY,
			session_id BIGINT NOT NULL REFERENCES dining_sessions(id),
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_orders_session ON orders(session_id);

		CREATE TABLE IF NOT EXISTS order_line_items (
			id BIGSERIAL PRIMARY KEY,
			order_id BIGINT NOT NULL REFERENCES orders(id),
			session_id BIGINT NOT NULL REFERENCES dining_sessions(id),
			menu_item_id BIGINT NOT NULL REFERENCES menu_items(id),
			name TEXT NOT NULL,
			unit_price NUMERIC(12,2) NOT NULL CHECK (unit_price >= 0),
			quantity INT NOT NULL CHECK (quantity >= 1),
			status TEXT NOT NULL,
			notes TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_line_items_session ON order_line_items(session_id);

		CREATE TABLE IF NOT EXISTS payment_divisions (
			id UUID PRIMARY KEY,
			session_id BIGINT NOT NULL REFERENCES dining_sessions(id),
			payer_name TEXT NOT NULL,
			amount NUMERIC(12,2) NOT NULL CHECK (amount > 0),
			status TEXT NOT NULL,
			strategy TEXT NOT NULL,
			line_item_ids BIGINT[],
			note TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			resolved_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_divisions_session ON payment_divisions(session_id);
		CREATE INDEX IF NOT EXISTS idx_divisions_pending ON payment_divisions(created_at) WHERE status = 'PENDING';
	`)
	return err
}
