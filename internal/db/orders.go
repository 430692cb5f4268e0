package db

import (
	"context"
	"fmt"

	"github.com/susu3304/tablesplit/internal/ledger"
)

const lineItemColumns = `id, order_id, session_id, menu_item_id, name, unit_price, quantity, status, notes`

func scanLineItem(row rowScanner) (ledger.LineItem, error) {
	var li ledger.LineItem
	err := row.Scan(&li.ID, &li.OrderID, &li.SessionID, &li.MenuItemID, &li.Name, &li.UnitPrice, &li.Quantity, &li.Status, &li.Notes)
	return li, err
}

// CreateOrder inserts an order and its line items. Inside WithSessionLock it
// joins the session transaction; otherwise it opens its own.
func (db *DB) CreateOrder(ctx context.Context, sessionID int64, items []ledger.LineItem) (ledger.Order, error) {
	q := db.q
	if db.pool != nil {
		tx, err := db.pool.Begin(ctx)
		if err != nil {
			return ledger.Order{}, err
		}
		defer func() { _ = tx.Rollback(ctx) }()
		q = tx
		order, err := insertOrder(ctx, q, sessionID, items)
		if err != nil {
			return ledger.Order{}, err
		}
		return order, tx.Commit(ctx)
	}
	return insertOrder(ctx, q, sessionID, items)
}

func insertOrder(ctx context.Context, q querier, sessionID int64, items []ledger.LineItem) (ledger.Order, error) {
	var order ledger.Order
	if err := q.QueryRow(ctx,
		`INSERT INTO orders (session_id) VALUES ($1) RETURNING id, session_id, created_at`,
		sessionID,
	).Scan(&order.ID, &order.SessionID, &order.CreatedAt); err != nil {
		return ledger.Order{}, err
	}

	for _, it := range items {
		li, err := scanLineItem(q.QueryRow(ctx,
			`INSERT INTO order_line_items (order_id, session_id, menu_item_id, name, unit_price, quantity, status, notes)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 RETURNING `+lineItemColumns,
			order.ID, sessionID, it.MenuItemID, it.Name, it.UnitPrice, it.Quantity, it.Status, it.Notes,
		))
		if err != nil {
			return ledger.Order{}, err
		}
		order.Items = append(order.Items, li)
	}
	return order, nil
}

func (db *DB) OrdersForSession(ctx context.Context, sessionID int64) ([]ledger.Order, error) {
	rows, err := db.q.Query(ctx,
		`SELECT id, session_id, created_at FROM orders WHERE session_id = $1 ORDER BY id`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	var orders []ledger.Order
	index := make(map[int64]int)
	for rows.Next() {
		var o ledger.Order
		if err := rows.Scan(&o.ID, &o.SessionID, &o.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		index[o.ID] = len(orders)
		orders = append(orders, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	items, err := db.LineItemsForSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	for _, li := range items {
		if i, ok := index[li.OrderID]; ok {
			orders[i].Items = append(orders[i].Items, li)
		}
	}
	return orders, nil
}

func (db *DB) LineItemsForSession(ctx context.Context, sessionID int64) ([]ledger.LineItem, error) {
	rows, err := db.q.Query(ctx,
		`SELECT `+lineItemColumns+` FROM order_line_items WHERE session_id = $1 ORDER BY id`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.LineItem
	for rows.Next() {
		li, err := scanLineItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, li)
	}
	return out, rows.Err()
}

func (db *DB) GetLineItem(ctx context.Context, id int64) (ledger.LineItem, error) {
	li, err := scanLineItem(db.q.QueryRow(ctx,
		`SELECT `+lineItemColumns+` FROM order_line_items WHERE id = $1`, id))
	if err != nil {
		return ledger.LineItem{}, notFound(err, ledger.ErrLineItemNotFound, id)
	}
	return li, nil
}

func (db *DB) UpdateLineItemStatus(ctx context.Context, id int64, status ledger.LineItemStatus) error {
	ct, err := db.q.Exec(ctx, `UPDATE order_line_items SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", ledger.ErrLineItemNotFound, id)
	}
	return nil
}
