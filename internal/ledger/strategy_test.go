package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

var now = time.Date(2026, 10, 16, 20, 0, 0, 0, time.UTC)

// scenarioSnapshot is the bill from the reference scenario: 42.00 x1 and
// 32.00 x2 with a ten percent fee, 116.60 due.
func scenarioSnapshot() Snapshot {
	return Snapshot{
		Session:       Session{ID: 1, RestaurantID: 1, Status: SessionInProgress},
		Items:         []LineItem{item(1, "42.00", 1), item(2, "32.00", 2)},
		ServiceFeePct: dec("0.10"),
	}
}

func division(amount string, status DivisionStatus, items ...int64) PaymentDivision {
	return PaymentDivision{
		ID:          uuid.New(),
		SessionID:   1,
		PayerName:   "guest",
		Amount:      dec(amount),
		Status:      status,
		LineItemIDs: items,
		CreatedAt:   now,
	}
}

func TestProposeDivision(t *testing.T) {
	tests := []struct {
		name       string
		divisions  []PaymentDivision
		strategy   Strategy
		wantAmount string
		wantErr    error
	}{
		{name: "equal share of two", strategy: EqualShare{N: 2}, wantAmount: "58.30"},
		{name: "equal share of one is the whole remaining", strategy: EqualShare{N: 1}, wantAmount: "116.60"},
		{name: "equal share of three rounds", strategy: EqualShare{N: 3}, wantAmount: "38.87"},
		{name: "zero shares", strategy: EqualShare{N: 0}, wantErr: ErrInvalidStrategy},
		{name: "percentage", strategy: Percentage{Pct: dec("25")}, wantAmount: "29.15"},
		{name: "whole equal share drops cents", strategy: EqualShare{N: 2, Whole: true}, wantAmount: "58.00"},
		{name: "whole percentage drops cents", strategy: Percentage{Pct: dec("25"), Whole: true}, wantAmount: "29.00"},
		{name: "whole share of everything stays exact", strategy: Percentage{Pct: dec("100"), Whole: true}, wantAmount: "116.60"},
		{
			name:       "whole share leaves cents to the last payer",
			divisions:  []PaymentDivision{division("58.00", DivisionPaid)},
			strategy:   EqualShare{N: 1, Whole: true},
			wantAmount: "58.60",
		},
		{
			name:       "whole share under one unit stays exact",
			divisions:  []PaymentDivision{division("115.60", DivisionPaid)},
			strategy:   EqualShare{N: 2, Whole: true},
			wantAmount: "0.50",
		},
		{name: "percentage above 100", strategy: Percentage{Pct: dec("101")}, wantErr: ErrInvalidStrategy},
		{name: "percentage zero", strategy: Percentage{Pct: dec("0")}, wantErr: ErrInvalidStrategy},
		{name: "custom amount", strategy: CustomAmount{Value: dec("20")}, wantAmount: "20.00"},
		{name: "custom amount above total", strategy: CustomAmount{Value: dec("200.00")}, wantErr: ErrExceedsRemaining},
		{name: "custom amount within tolerance is clamped", strategy: CustomAmount{Value: dec("116.61")}, wantAmount: "116.60"},
		{name: "custom amount not positive", strategy: CustomAmount{Value: dec("0")}, wantErr: ErrInvalidStrategy},
		{name: "item subset includes fee", strategy: ItemSubset{LineItemIDs: []int64{2}}, wantAmount: "70.40"},
		{name: "item subset ignores duplicates", strategy: ItemSubset{LineItemIDs: []int64{1, 1}}, wantAmount: "46.20"},
		{name: "item subset unknown item", strategy: ItemSubset{LineItemIDs: []int64{9}}, wantErr: ErrUnknownLineItem},
		{name: "item subset empty", strategy: ItemSubset{}, wantErr: ErrInvalidStrategy},
		{
			name:      "item already paid",
			divisions: []PaymentDivision{division("46.20", DivisionPaid, 1)},
			strategy:  ItemSubset{LineItemIDs: []int64{1, 2}},
			wantErr:   ErrAlreadyCovered,
		},
		{
			name:      "item being paid by someone else",
			divisions: []PaymentDivision{division("46.20", DivisionPending, 1)},
			strategy:  ItemSubset{LineItemIDs: []int64{1}},
			wantErr:   ErrConcurrentAdmission,
		},
		{
			name:       "item paid after failed attempt",
			divisions:  []PaymentDivision{division("46.20", DivisionFailed, 1)},
			strategy:   ItemSubset{LineItemIDs: []int64{1}},
			wantAmount: "46.20",
		},
		{
			name:       "equal share is based on remaining after payments",
			divisions:  []PaymentDivision{division("58.30", DivisionPaid)},
			strategy:   EqualShare{N: 2},
			wantAmount: "29.15",
		},
		{
			name:      "reserved balance",
			divisions: []PaymentDivision{division("100.00", DivisionPending)},
			strategy:  CustomAmount{Value: dec("20.00")},
			wantErr:   ErrConcurrentAdmission,
		},
		{
			name:      "fully paid",
			divisions: []PaymentDivision{division("116.60", DivisionPaid)},
			strategy:  EqualShare{N: 1},
			wantErr:   ErrNothingDue,
		},
		{
			name:       "mixing item and generic shares",
			divisions:  []PaymentDivision{division("70.40", DivisionPaid, 2)},
			strategy:   Percentage{Pct: dec("100")},
			wantAmount: "46.20",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := scenarioSnapshot()
			snap.Divisions = tt.divisions
			id := uuid.New()
			got, err := ProposeDivision(snap, "Ana", tt.strategy, id, now)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ProposeDivision() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ProposeDivision() unexpected error: %v", err)
			}
			if !got.Amount.Equal(dec(tt.wantAmount)) {
				t.Errorf("Amount = %s, want %s", got.Amount, tt.wantAmount)
			}
			if got.Status != DivisionPending {
				t.Errorf("Status = %s, want PENDING", got.Status)
			}
			if got.ID != id || got.SessionID != 1 || got.PayerName != "Ana" {
				t.Errorf("unexpected division identity: %+v", got)
			}
			if got.Strategy != tt.strategy.Name() {
				t.Errorf("Strategy = %q, want %q", got.Strategy, tt.strategy.Name())
			}
		})
	}
}

func TestProposeDivisionRejects(t *testing.T) {
	t.Run("closed session", func(t *testing.T) {
		snap := scenarioSnapshot()
		snap.Session.Status = SessionClosed
		if _, err := ProposeDivision(snap, "Ana", EqualShare{N: 1}, uuid.New(), now); !errors.Is(err, ErrSessionNotOpen) {
			t.Errorf("error = %v, want ErrSessionNotOpen", err)
		}
	})
	t.Run("blank payer", func(t *testing.T) {
		if _, err := ProposeDivision(scenarioSnapshot(), "  ", EqualShare{N: 1}, uuid.New(), now); !errors.Is(err, ErrInvalidStrategy) {
			t.Errorf("error = %v, want ErrInvalidStrategy", err)
		}
	})
	t.Run("nil strategy", func(t *testing.T) {
		if _, err := ProposeDivision(scenarioSnapshot(), "Ana", nil, uuid.New(), now); !errors.Is(err, ErrInvalidStrategy) {
			t.Errorf("error = %v, want ErrInvalidStrategy", err)
		}
	})
	t.Run("empty session", func(t *testing.T) {
		snap := scenarioSnapshot()
		snap.Items = nil
		if _, err := ProposeDivision(snap, "Ana", EqualShare{N: 1}, uuid.New(), now); !errors.Is(err, ErrNothingDue) {
			t.Errorf("error = %v, want ErrNothingDue", err)
		}
	})
}

// Scenarios 2 and 3: two equal halves proposed up front, both confirmed.
func TestEqualSplitSettlesBill(t *testing.T) {
	snap := scenarioSnapshot()

	first, err := ProposeDivision(snap, "Ana", EqualShare{N: 2}, uuid.New(), now)
	if err != nil {
		t.Fatal(err)
	}
	snap.Divisions = append(snap.Divisions, first)
	second, err := ProposeDivision(snap, "Bruno", EqualShare{N: 2}, uuid.New(), now)
	if err != nil {
		t.Fatal(err)
	}
	snap.Divisions = append(snap.Divisions, second)
	if !first.Amount.Equal(dec("58.30")) || !second.Amount.Equal(dec("58.30")) {
		t.Fatalf("amounts = %s, %s; want 58.30 each", first.Amount, second.Amount)
	}

	paid, changed, err := ConfirmDivision(snap, first.ID, DivisionPaid, now)
	if err != nil || !changed {
		t.Fatalf("ConfirmDivision() = %v, %v", changed, err)
	}
	snap.Divisions[0] = paid

	st, err := GetStatus(snap)
	if err != nil {
		t.Fatal(err)
	}
	if !st.PaidAmount.Equal(dec("58.30")) || !st.RemainingAmount.Equal(dec("58.30")) || st.IsComplete {
		t.Fatalf("after first payment: paid %s remaining %s complete %v", st.PaidAmount, st.RemainingAmount, st.IsComplete)
	}

	paid, _, err = ConfirmDivision(snap, second.ID, DivisionPaid, now)
	if err != nil {
		t.Fatal(err)
	}
	snap.Divisions[1] = paid
	st, err = GetStatus(snap)
	if err != nil {
		t.Fatal(err)
	}
	if !st.RemainingAmount.IsZero() || !st.IsComplete {
		t.Fatalf("after second payment: remaining %s complete %v", st.RemainingAmount, st.IsComplete)
	}

	closed, ok, err := CloseSessionIfComplete(snap, now)
	if err != nil || !ok {
		t.Fatalf("CloseSessionIfComplete() = %v, %v", ok, err)
	}
	if closed.Status != SessionClosed || closed.ClosedAt == nil {
		t.Errorf("session = %+v, want CLOSED with closed_at", closed)
	}
}

// Paying in arbitrary instalments never records more than the total and the
// remaining amount never grows.
func TestPaidNeverExceedsTotal(t *testing.T) {
	strategies := []Strategy{
		Percentage{Pct: dec("33.3")},
		EqualShare{N: 3},
		CustomAmount{Value: dec("10.01")},
		ItemSubset{LineItemIDs: []int64{1}},
		EqualShare{N: 7},
		Percentage{Pct: dec("99.99")},
		CustomAmount{Value: dec("0.02")},
		EqualShare{N: 1},
	}
	snap := scenarioSnapshot()
	st, _ := GetStatus(snap)
	last := st.RemainingAmount
	for i, s := range strategies {
		d, err := ProposeDivision(snap, "guest", s, uuid.New(), now)
		if err != nil {
			continue
		}
		snap.Divisions = append(snap.Divisions, d)
		paid, _, err := ConfirmDivision(snap, d.ID, DivisionPaid, now)
		if err != nil {
			t.Fatalf("step %d: confirm: %v", i, err)
		}
		snap.Divisions[len(snap.Divisions)-1] = paid

		st, err := GetStatus(snap)
		if err != nil {
			t.Fatal(err)
		}
		if st.PaidAmount.GreaterThan(st.TotalAmount.Add(Tolerance)) {
			t.Fatalf("step %d: paid %s exceeds total %s", i, st.PaidAmount, st.TotalAmount)
		}
		if st.RemainingAmount.GreaterThan(last) {
			t.Fatalf("step %d: remaining grew from %s to %s", i, last, st.RemainingAmount)
		}
		last = st.RemainingAmount
	}
	if !last.IsZero() {
		t.Errorf("final remaining = %s, want 0", last)
	}
}
