package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/susu3304/tablesplit/internal/ledger"
	"github.com/susu3304/tablesplit/internal/split"
)

// UpsertRestaurant inserts a restaurant, or updates it when r.ID is set.
func (db *DB) UpsertRestaurant(ctx context.Context, r ledger.Restaurant) (ledger.Restaurant, error) {
	if r.ID == 0 {
		err := db.q.QueryRow(ctx,
			`INSERT INTO restaurants (trade_name, service_fee_pct, currency) VALUES ($1, $2, $3) RETURNING id`,
			r.TradeName, r.ServiceFeePct, r.Currency,
		).Scan(&r.ID)
		return r, err
	}
	if _, err := db.q.Exec(ctx,
		`INSERT INTO restaurants (id, trade_name, service_fee_pct, currency)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE
		 SET trade_name = EXCLUDED.trade_name,
			 service_fee_pct = EXCLUDED.service_fee_pct,
			 currency = EXCLUDED.currency`,
		r.ID, r.TradeName, r.ServiceFeePct, r.Currency,
	); err != nil {
		return ledger.Restaurant{}, err
	}
	_, err := db.q.Exec(ctx,
		`SELECT setval(pg_get_serial_sequence('restaurants', 'id'), GREATEST((SELECT MAX(id) FROM restaurants), 1))`)
	return r, err
}

// UpsertMenuItem inserts a menu item, or updates it when m.ID is set.
func (db *DB) UpsertMenuItem(ctx context.Context, m ledger.MenuItem) (ledger.MenuItem, error) {
	if m.ID == 0 {
		err := db.q.QueryRow(ctx,
			`INSERT INTO menu_items (restaurant_id, name, price, active) VALUES ($1, $2, $3, $4) RETURNING id`,
			m.RestaurantID, m.Name, m.Price, m.Active,
		).Scan(&m.ID)
		return m, err
	}
	if _, err := db.q.Exec(ctx,
		`INSERT INTO menu_items (id, restaurant_id, name, price, active)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE
		 SET restaurant_id = EXCLUDED.restaurant_id,
			 name = EXCLUDED.name,
			 price = EXCLUDED.price,
			 active = EXCLUDED.active`,
		m.ID, m.RestaurantID, m.Name, m.Price, m.Active,
	); err != nil {
		return ledger.MenuItem{}, err
	}
	_, err := db.q.Exec(ctx,
		`SELECT setval(pg_get_serial_sequence('menu_items', 'id'), GREATEST((SELECT MAX(id) FROM menu_items), 1))`)
	return m, err
}

func (db *DB) UpsertStaff(ctx context.Context, s split.Staff) error {
	_, err := db.q.Exec(ctx,
		`INSERT INTO staff (restaurant_id, user_id, role)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (restaurant_id, user_id) DO UPDATE SET role = EXCLUDED.role`,
		s.RestaurantID, s.UserID, s.Role,
	)
	return err
}

func (db *DB) StaffRestaurants(ctx context.Context, userID string) ([]split.StaffRestaurant, error) {
	rows, err := db.q.Query(ctx,
		`SELECT r.id, r.trade_name, r.service_fee_pct, r.currency, s.role
		 FROM staff s
		 JOIN restaurants r ON r.id = s.restaurant_id
		 WHERE s.user_id = $1
		 ORDER BY r.id`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []split.StaffRestaurant
	for rows.Next() {
		var sr split.StaffRestaurant
		if err := rows.Scan(&sr.Restaurant.ID, &sr.Restaurant.TradeName, &sr.Restaurant.ServiceFeePct, &sr.Restaurant.Currency, &sr.Role); err != nil {
			return nil, err
		}
		out = append(out, sr)
	}
	return out, rows.Err()
}

func (db *DB) StaffRole(ctx context.Context, restaurantID int64, userID string) (string, error) {
	var role string
	err := db.q.QueryRow(ctx,
		`SELECT role FROM staff WHERE restaurant_id = $1 AND user_id = $2`,
		restaurantID, userID,
	).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", split.ErrNotStaff
		}
		return "", err
	}
	return role, nil
}
