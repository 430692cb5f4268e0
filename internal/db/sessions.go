package db

import (
	"context"
	"fmt"
	"time"

	"github.com/susu3304/tablesplit/internal/ledger"
)

const sessionColumns = `id, restaurant_id, table_ref, origin, status, share_token, created_at, closed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (ledger.Session, error) {
	var s ledger.Session
	err := row.Scan(&s.ID, &s.RestaurantID, &s.TableRef, &s.Origin, &s.Status, &s.ShareToken, &s.CreatedAt, &s.ClosedAt)
	return s, err
}

func (db *DB) GetSession(ctx context.Context, id int64) (ledger.Session, error) {
	s, err := scanSession(db.q.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM dining_sessions WHERE id = $1`, id))
	if err != nil {
		return ledger.Session{}, notFound(err, ledger.ErrSessionNotFound, id)
	}
	return s, nil
}

func (db *DB) CreateSession(ctx context.Context, s ledger.Session) (ledger.Session, error) {
	out, err := scanSession(db.q.QueryRow(ctx,
		`INSERT INTO dining_sessions (restaurant_id, table_ref, origin, status, share_token, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+sessionColumns,
		s.RestaurantID, s.TableRef, s.Origin, s.Status, s.ShareToken, s.CreatedAt,
	))
	if err != nil {
		return ledger.Session{}, mapUnique(err)
	}
	return out, nil
}

func (db *DB) SessionByShareToken(ctx context.Context, token string) (ledger.Session, error) {
	s, err := scanSession(db.q.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM dining_sessions WHERE share_token = $1`, token))
	if err != nil {
		return ledger.Session{}, notFound(err, ledger.ErrSessionNotFound, "share token")
	}
	return s, nil
}

func (db *DB) UpdateSessionStatus(ctx context.Context, id int64, status ledger.SessionStatus, closedAt *time.Time) error {
	ct, err := db.q.Exec(ctx,
		`UPDATE dining_sessions SET status = $2, closed_at = $3 WHERE id = $1`,
		id, status, closedAt,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", ledger.ErrSessionNotFound, id)
	}
	return nil
}

func (db *DB) Restaurant(ctx context.Context, id int64) (ledger.Restaurant, error) {
	var r ledger.Restaurant
	err := db.q.QueryRow(ctx,
		`SELECT id, trade_name, service_fee_pct, currency FROM restaurants WHERE id = $1`, id,
	).Scan(&r.ID, &r.TradeName, &r.ServiceFeePct, &r.Currency)
	if err != nil {
		return ledger.Restaurant{}, notFound(err, ledger.ErrRestaurantNotFound, id)
	}
	return r, nil
}

func (db *DB) MenuItems(ctx context.Context, restaurantID int64) ([]ledger.MenuItem, error) {
	rows, err := db.q.Query(ctx,
		`SELECT id, restaurant_id, name, price, active FROM menu_items WHERE restaurant_id = $1 ORDER BY id`,
		restaurantID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.MenuItem
	for rows.Next() {
		var m ledger.MenuItem
		if err := rows.Scan(&m.ID, &m.RestaurantID, &m.Name, &m.Price, &m.Active); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
