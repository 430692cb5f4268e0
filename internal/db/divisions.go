package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/susu3304/tablesplit/internal/ledger"
)

const divisionColumns = `id, session_id, payer_name, amount, status, strategy, line_item_ids, note, created_at, resolved_at`

func scanDivision(row rowScanner) (ledger.PaymentDivision, error) {
	var d ledger.PaymentDivision
	err := row.Scan(&d.ID, &d.SessionID, &d.PayerName, &d.Amount, &d.Status, &d.Strategy, &d.LineItemIDs, &d.Note, &d.CreatedAt, &d.ResolvedAt)
	return d, err
}

func (db *DB) queryDivisions(ctx context.Context, sql string, args ...any) ([]ledger.PaymentDivision, error) {
	rows, err := db.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.PaymentDivision
	for rows.Next() {
		d, err := scanDivision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (db *DB) ListDivisions(ctx context.Context, sessionID int64) ([]ledger.PaymentDivision, error) {
	return db.queryDivisions(ctx,
		`SELECT `+divisionColumns+` FROM payment_divisions WHERE session_id = $1 ORDER BY created_at, id`,
		sessionID,
	)
}

func (db *DB) GetDivision(ctx context.Context, id uuid.UUID) (ledger.PaymentDivision, error) {
	d, err := scanDivision(db.q.QueryRow(ctx,
		`SELECT `+divisionColumns+` FROM payment_divisions WHERE id = $1`, id))
	if err != nil {
		return ledger.PaymentDivision{}, notFound(err, ledger.ErrDivisionNotFound, id)
	}
	return d, nil
}

func (db *DB) InsertDivision(ctx context.Context, d ledger.PaymentDivision) error {
	_, err := db.q.Exec(ctx,
		`INSERT INTO payment_divisions (id, session_id, payer_name, amount, status, strategy, line_item_ids, note, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		d.ID, d.SessionID, d.PayerName, d.Amount, d.Status, d.Strategy, d.LineItemIDs, d.Note, d.CreatedAt,
	)
	return mapUnique(err)
}

func (db *DB) UpdateDivisionStatus(ctx context.Context, d ledger.PaymentDivision) error {
	ct, err := db.q.Exec(ctx,
		`UPDATE payment_divisions SET status = $2, note = $3, resolved_at = $4 WHERE id = $1`,
		d.ID, d.Status, d.Note, d.ResolvedAt,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ledger.ErrDivisionNotFound, d.ID)
	}
	return nil
}

// PendingDivisionsBefore returns PENDING divisions created before cutoff,
// oldest first.
func (db *DB) PendingDivisionsBefore(ctx context.Context, cutoff time.Time) ([]ledger.PaymentDivision, error) {
	return db.queryDivisions(ctx,
		`SELECT `+divisionColumns+` FROM payment_divisions
		 WHERE status = 'PENDING' AND created_at < $1
		 ORDER BY created_at`,
		cutoff,
	)
}
