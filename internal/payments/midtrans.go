package payments

import (
	"context"
	"fmt"
	"strings"

	midtrans "github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/susu3304/tablesplit/internal/ledger"
)

type snapAPI interface {
	CreateTransaction(req *snap.Request) (*snap.Response, *midtrans.Error)
}

type statusAPI interface {
	CheckTransaction(param string) (*coreapi.TransactionStatusResponse, *midtrans.Error)
}

// Midtrans creates Snap checkouts and verifies notifications through the
// Core API status endpoint.
type Midtrans struct {
	snap   snapAPI
	status statusAPI
}

func NewMidtrans(serverKey string, production bool) *Midtrans {
	env := midtrans.Sandbox
	if production {
		env = midtrans.Production
	}
	var s snap.Client
	s.New(serverKey, env)
	var c coreapi.Client
	c.New(serverKey, env)
	return &Midtrans{snap: &s, status: &c}
}

func (m *Midtrans) Name() string { return "midtrans" }

// WholeAmounts is true: Snap gross amounts are integers.
func (m *Midtrans) WholeAmounts() bool { return true }

func (m *Midtrans) Checkout(ctx context.Context, req CheckoutRequest) (Checkout, error) {
	if err := ctx.Err(); err != nil {
		return Checkout{}, err
	}
	if !req.Amount.IsPositive() {
		return Checkout{}, fmt.Errorf("invalid amount %s", req.Amount)
	}
	if !req.Amount.Equal(req.Amount.Truncate(0)) {
		return Checkout{}, fmt.Errorf("%w: %s", ErrFractionalAmount, req.Amount.StringFixed(2))
	}
	gross := req.Amount.IntPart()
	orderID := req.DivisionID.String()

	name := req.Description
	if name == "" {
		name = fmt.Sprintf("Table %d", req.SessionID)
	}
	r := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  orderID,
			GrossAmt: gross,
		},
		CustomerDetail: &midtrans.CustomerDetails{
			FName: req.PayerName,
		},
		Items: &[]midtrans.ItemDetails{
			{
				ID:    orderID,
				Price: gross,
				Qty:   1,
				Name:  truncate(name, 50),
			},
		},
	}
	resp, merr := m.snap.CreateTransaction(r)
	if merr != nil {
		return Checkout{}, fmt.Errorf("midtrans: create transaction: %w", merr)
	}
	return Checkout{RedirectURL: resp.RedirectURL, Token: resp.Token}, nil
}

func (m *Midtrans) Outcome(ctx context.Context, orderID string) (ledger.DivisionStatus, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	resp, merr := m.status.CheckTransaction(orderID)
	if merr != nil {
		return "", false, fmt.Errorf("midtrans: check transaction %s: %w", orderID, merr)
	}
	status, final := mapStatus(resp.TransactionStatus, resp.FraudStatus)
	return status, final, nil
}

// mapStatus maps a Midtrans transaction state to a division outcome.
func mapStatus(transactionStatus, fraudStatus string) (ledger.DivisionStatus, bool) {
	ts := strings.ToLower(transactionStatus)
	fraud := strings.ToLower(fraudStatus)
	switch ts {
	case "capture":
		// card payments: accept is paid, challenge waits for review
		switch fraud {
		case "accept", "":
			return ledger.DivisionPaid, true
		case "challenge":
			return ledger.DivisionPending, false
		}
		return ledger.DivisionFailed, true
	case "settlement":
		return ledger.DivisionPaid, true
	case "deny", "cancel", "expire", "failure":
		return ledger.DivisionFailed, true
	}
	return ledger.DivisionPending, false
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n]
}
