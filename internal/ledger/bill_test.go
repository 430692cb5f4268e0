package ledger

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func item(id int64, price string, qty int) LineItem {
	return LineItem{ID: id, SessionID: 1, UnitPrice: dec(price), Quantity: qty, Status: ItemDelivered}
}

func TestComputeBill(t *testing.T) {
	tests := []struct {
		name         string
		items        []LineItem
		pct          string
		wantSubtotal string
		wantFee      string
		wantTotal    string
		wantErr      error
	}{
		{
			name:         "two lines with ten percent fee",
			items:        []LineItem{item(1, "42.00", 1), item(2, "32.00", 2)},
			pct:          "0.10",
			wantSubtotal: "106.00",
			wantFee:      "10.60",
			wantTotal:    "116.60",
		},
		{
			name:         "fee rounds half up",
			items:        []LineItem{item(1, "0.05", 1)},
			pct:          "0.10",
			wantSubtotal: "0.05",
			wantFee:      "0.01",
			wantTotal:    "0.06",
		},
		{
			name:         "no fee",
			items:        []LineItem{item(1, "19.90", 3)},
			pct:          "0",
			wantSubtotal: "59.70",
			wantFee:      "0",
			wantTotal:    "59.70",
		},
		{
			name:         "empty bill",
			items:        nil,
			pct:          "0.10",
			wantSubtotal: "0",
			wantFee:      "0",
			wantTotal:    "0",
		},
		{
			name:    "negative price",
			items:   []LineItem{item(1, "-1.00", 1)},
			pct:     "0.10",
			wantErr: ErrInvalidLineItem,
		},
		{
			name:    "zero quantity",
			items:   []LineItem{item(1, "10.00", 0)},
			pct:     "0.10",
			wantErr: ErrInvalidLineItem,
		},
		{
			name:    "fee above one",
			items:   []LineItem{item(1, "10.00", 1)},
			pct:     "1.5",
			wantErr: ErrInvalidServiceFee,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputeBill(tt.items, dec(tt.pct))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ComputeBill() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ComputeBill() unexpected error: %v", err)
			}
			if !got.Subtotal.Equal(dec(tt.wantSubtotal)) {
				t.Errorf("Subtotal = %s, want %s", got.Subtotal, tt.wantSubtotal)
			}
			if !got.ServiceFee.Equal(dec(tt.wantFee)) {
				t.Errorf("ServiceFee = %s, want %s", got.ServiceFee, tt.wantFee)
			}
			if !got.TotalDue.Equal(dec(tt.wantTotal)) {
				t.Errorf("TotalDue = %s, want %s", got.TotalDue, tt.wantTotal)
			}
		})
	}
}

func TestComputeBillDeterministic(t *testing.T) {
	items := []LineItem{item(1, "12.35", 3), item(2, "7.77", 1), item(3, "0.99", 7)}
	first, err := ComputeBill(items, dec("0.13"))
	if err != nil {
		t.Fatal(err)
	}
	second, err := ComputeBill(items, dec("0.13"))
	if err != nil {
		t.Fatal(err)
	}
	if !first.Subtotal.Equal(second.Subtotal) || !first.ServiceFee.Equal(second.ServiceFee) || !first.TotalDue.Equal(second.TotalDue) {
		t.Errorf("ComputeBill not deterministic: %+v vs %+v", first, second)
	}
}

func TestSessionBillSkipsCancelledItems(t *testing.T) {
	cancelled := item(3, "50.00", 1)
	cancelled.Status = ItemCancelled
	snap := Snapshot{
		Session:       Session{ID: 1, Status: SessionInProgress},
		Items:         []LineItem{item(1, "42.00", 1), item(2, "32.00", 2), cancelled},
		ServiceFeePct: dec("0.10"),
	}
	bill, err := SessionBill(snap)
	if err != nil {
		t.Fatal(err)
	}
	if !bill.TotalDue.Equal(dec("116.60")) {
		t.Errorf("TotalDue = %s, want 116.60", bill.TotalDue)
	}
}
