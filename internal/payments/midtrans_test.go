package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	midtrans "github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/shopspring/decimal"
	"github.com/susu3304/tablesplit/internal/ledger"
)

type fakeSnap struct {
	req *snap.Request
	err *midtrans.Error
}

func (f *fakeSnap) CreateTransaction(req *snap.Request) (*snap.Response, *midtrans.Error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return &snap.Response{Token: "tok", RedirectURL: "https://pay.example/tok"}, nil
}

type fakeStatus struct {
	resp *coreapi.TransactionStatusResponse
}

func (f *fakeStatus) CheckTransaction(string) (*coreapi.TransactionStatusResponse, *midtrans.Error) {
	return f.resp, nil
}

func TestMidtransCheckout(t *testing.T) {
	fs := &fakeSnap{}
	m := &Midtrans{snap: fs}
	id := uuid.New()

	got, err := m.Checkout(context.Background(), CheckoutRequest{
		DivisionID: id,
		SessionID:  3,
		PayerName:  "Ana",
		Amount:     decimal.NewFromInt(58000),
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.RedirectURL != "https://pay.example/tok" || got.Token != "tok" {
		t.Errorf("Checkout = %+v", got)
	}
	if fs.req.TransactionDetails.OrderID != id.String() || fs.req.TransactionDetails.GrossAmt != 58000 {
		t.Errorf("request = %+v", fs.req.TransactionDetails)
	}
}

func TestMidtransCheckoutRejects(t *testing.T) {
	m := &Midtrans{snap: &fakeSnap{}}
	ctx := context.Background()

	if _, err := m.Checkout(ctx, CheckoutRequest{DivisionID: uuid.New(), Amount: decimal.RequireFromString("58.30")}); !errors.Is(err, ErrFractionalAmount) {
		t.Errorf("fractional amount error = %v, want ErrFractionalAmount", err)
	}
	if _, err := m.Checkout(ctx, CheckoutRequest{DivisionID: uuid.New(), Amount: decimal.Zero}); err == nil {
		t.Error("zero amount accepted")
	}

	failing := &Midtrans{snap: &fakeSnap{err: &midtrans.Error{Message: "unauthorized", StatusCode: 401}}}
	if _, err := failing.Checkout(ctx, CheckoutRequest{DivisionID: uuid.New(), Amount: decimal.NewFromInt(10)}); err == nil {
		t.Error("gateway error swallowed")
	}
}

func TestMapStatus(t *testing.T) {
	tests := []struct {
		ts, fraud string
		want      ledger.DivisionStatus
		final     bool
	}{
		{"settlement", "", ledger.DivisionPaid, true},
		{"capture", "accept", ledger.DivisionPaid, true},
		{"capture", "challenge", ledger.DivisionPending, false},
		{"capture", "deny", ledger.DivisionFailed, true},
		{"pending", "", ledger.DivisionPending, false},
		{"deny", "", ledger.DivisionFailed, true},
		{"cancel", "", ledger.DivisionFailed, true},
		{"EXPIRE", "", ledger.DivisionFailed, true},
		{"failure", "", ledger.DivisionFailed, true},
		{"refund", "", ledger.DivisionPending, false},
	}
	for _, tt := range tests {
		t.Run(tt.ts+"/"+tt.fraud, func(t *testing.T) {
			got, final := mapStatus(tt.ts, tt.fraud)
			if got != tt.want || final != tt.final {
				t.Errorf("mapStatus(%q, %q) = %s, %v; want %s, %v", tt.ts, tt.fraud, got, final, tt.want, tt.final)
			}
		})
	}
}

func TestMidtransOutcome(t *testing.T) {
	m := &Midtrans{status: &fakeStatus{resp: &coreapi.TransactionStatusResponse{TransactionStatus: "settlement"}}}
	got, final, err := m.Outcome(context.Background(), uuid.NewString())
	if err != nil {
		t.Fatal(err)
	}
	if got != ledger.DivisionPaid || !final {
		t.Errorf("Outcome = %s, %v; want PAID, true", got, final)
	}
}

func TestManual(t *testing.T) {
	var g Gateway = Manual{}
	c, err := g.Checkout(context.Background(), CheckoutRequest{Amount: decimal.RequireFromString("58.30")})
	if err != nil || c.RedirectURL != "" {
		t.Errorf("Checkout = %+v, %v", c, err)
	}
	if _, final, _ := g.Outcome(context.Background(), "x"); final {
		t.Error("manual outcome reported final")
	}
}

func TestNeedsWholeAmounts(t *testing.T) {
	if !NeedsWholeAmounts(NewMidtrans("key", false)) {
		t.Error("midtrans should need whole amounts")
	}
	if NeedsWholeAmounts(Manual{}) {
		t.Error("manual gateway should take cents")
	}
}
