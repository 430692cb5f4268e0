package events

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type Type string

const (
	SessionOpened    Type = "session.opened"
	OrderPlaced      Type = "order.placed"
	LineItemUpdated  Type = "line_item.updated"
	DivisionProposed Type = "division.proposed"
	DivisionPaid     Type = "division.paid"
	DivisionFailed   Type = "division.failed"
	SessionClosed    Type = "session.closed"
	SessionCancelled Type = "session.cancelled"
)

// Event is a change to a session's ledger state.
type Event struct {
	Type         Type             `json:"type"`
	SessionID    int64            `json:"session_id"`
	RestaurantID int64            `json:"restaurant_id,omitempty"`
	DivisionID   string           `json:"division_id,omitempty"`
	LineItemID   int64            `json:"line_item_id,omitempty"`
	PayerName    string           `json:"payer_name,omitempty"`
	Amount       *decimal.Decimal `json:"amount,omitempty"`
	Note         string           `json:"note,omitempty"`
	At           time.Time        `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Multi publishes to every publisher in order. A failing publisher does not
// stop the others; their errors are joined for the caller to report.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }
