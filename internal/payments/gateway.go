package payments

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/susu3304/tablesplit/internal/ledger"
)

var (
	ErrFractionalAmount = errors.New("gateway only accepts whole amounts")
	ErrNotConfigured    = errors.New("payment gateway is not configured")
)

type CheckoutRequest struct {
	DivisionID  uuid.UUID
	SessionID   int64
	PayerName   string
	Amount      decimal.Decimal
	Currency    string
	Description string
}

// Checkout is where the guest completes payment. RedirectURL is empty when
// the payment is collected at the table.
type Checkout struct {
	RedirectURL string `json:"redirectUrl,omitempty"`
	Token       string `json:"token,omitempty"`
}

// Gateway captures funds for a division. The order id of a checkout is the
// division id.
type Gateway interface {
	Name() string
	Checkout(ctx context.Context, req CheckoutRequest) (Checkout, error)
	// Outcome asks the gateway for the state of an order. final is false
	// while the payment can still change.
	Outcome(ctx context.Context, orderID string) (status ledger.DivisionStatus, final bool, err error)
}

// WholeAmounts is implemented by gateways that only charge whole units of
// the currency.
type WholeAmounts interface {
	WholeAmounts() bool
}

// NeedsWholeAmounts reports whether g only charges whole amounts.
func NeedsWholeAmounts(g Gateway) bool {
	w, ok := g.(WholeAmounts)
	return ok && w.WholeAmounts()
}

// Manual is the gateway for payments taken by staff at the table (cash or
// card terminal). Staff confirm the division themselves.
type Manual struct{}

func (Manual) Name() string { return "manual" }

func (Manual) Checkout(context.Context, CheckoutRequest) (Checkout, error) {
	return Checkout{}, nil
}

func (Manual) Outcome(context.Context, string) (ledger.DivisionStatus, bool, error) {
	return ledger.DivisionPending, false, nil
}
