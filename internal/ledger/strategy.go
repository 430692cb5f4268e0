package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Strategy decides how much of the bill a new division claims.
type Strategy interface {
	Name() string
	amount(snap Snapshot, st Status) (decimal.Decimal, []int64, error)
}

// EqualShare pays remaining / N. With Whole set the share is rounded down
// to a whole amount and the cents are left to the share that settles the bill.
type EqualShare struct {
	N     int
	Whole bool
}

// Percentage pays Pct percent (0 < Pct <= 100) of the remaining balance.
// Whole rounds like EqualShare.
type Percentage struct {
	Pct   decimal.Decimal
	Whole bool
}

// CustomAmount pays exactly Value.
type CustomAmount struct {
	Value decimal.Decimal
}

// ItemSubset pays for specific line items, service fee included.
type ItemSubset struct {
	LineItemIDs []int64
}

func (EqualShare) Name() string   { return "equal" }
func (Percentage) Name() string   { return "percentage" }
func (CustomAmount) Name() string { return "custom" }
func (ItemSubset) Name() string   { return "items" }

func (s EqualShare) amount(_ Snapshot, st Status) (decimal.Decimal, []int64, error) {
	if s.N < 1 {
		return decimal.Zero, nil, fmt.Errorf("%w: share count must be at least 1, got %d", ErrInvalidStrategy, s.N)
	}
	if s.N == 1 {
		return st.RemainingAmount, nil, nil
	}
	share := Round(st.RemainingAmount.Div(decimal.NewFromInt(int64(s.N))))
	if s.Whole {
		share = wholeShare(share, st.RemainingAmount)
	}
	return share, nil, nil
}

var hundred = decimal.NewFromInt(100)

func (s Percentage) amount(_ Snapshot, st Status) (decimal.Decimal, []int64, error) {
	if !s.Pct.IsPositive() || s.Pct.GreaterThan(hundred) {
		return decimal.Zero, nil, fmt.Errorf("%w: percentage must be in (0, 100], got %s", ErrInvalidStrategy, s.Pct)
	}
	share := Round(st.RemainingAmount.Mul(s.Pct).Div(hundred))
	if s.Whole {
		share = wholeShare(share, st.RemainingAmount)
	}
	return share, nil, nil
}

// wholeShare drops the cents of a partial share. The share that pays the
// whole remaining balance, or one under a single unit, is kept exact.
func wholeShare(share, remaining decimal.Decimal) decimal.Decimal {
	if share.GreaterThanOrEqual(remaining) {
		return share
	}
	if whole := share.Floor(); whole.IsPositive() {
		return whole
	}
	return share
}

func (s CustomAmount) amount(_ Snapshot, _ Status) (decimal.Decimal, []int64, error) {
	if !s.Value.IsPositive() {
		return decimal.Zero, nil, fmt.Errorf("%w: amount must be positive, got %s", ErrInvalidStrategy, s.Value)
	}
	return Round(s.Value), nil, nil
}

func (s ItemSubset) amount(snap Snapshot, _ Status) (decimal.Decimal, []int64, error) {
	if len(s.LineItemIDs) == 0 {
		return decimal.Zero, nil, fmt.Errorf("%w: no line items selected", ErrInvalidStrategy)
	}
	ids := uniqueIDs(s.LineItemIDs)
	bill, err := SubsetBill(snap, ids)
	if err != nil {
		return decimal.Zero, nil, err
	}

	paid, reserved := coveredItems(snap.Divisions)
	for _, id := range ids {
		if _, ok := paid[id]; ok {
			return decimal.Zero, nil, fmt.Errorf("%w: %d", ErrAlreadyCovered, id)
		}
	}
	for _, id := range ids {
		if _, ok := reserved[id]; ok {
			return decimal.Zero, nil, fmt.Errorf("%w: line item %d is being paid", ErrConcurrentAdmission, id)
		}
	}
	return AmountDue(bill.Subtotal, snap.ServiceFeePct), ids, nil
}

// coveredItems returns the line items referenced by PAID and by PENDING item
// divisions.
func coveredItems(divs []PaymentDivision) (paid, pending map[int64]struct{}) {
	paid = make(map[int64]struct{})
	pending = make(map[int64]struct{})
	for _, d := range divs {
		for _, id := range d.LineItemIDs {
			switch d.Status {
			case DivisionPaid:
				paid[id] = struct{}{}
			case DivisionPending:
				pending[id] = struct{}{}
			}
		}
	}
	return paid, pending
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// ProposeDivision validates a new payment against the snapshot and returns it
// in PENDING status. Nothing is mutated; the caller persists the result while
// still holding the session lock the snapshot was read under.
//
// PENDING divisions do not count as paid, but they do reserve balance: a
// proposal that fits the remaining amount and not the unreserved part fails
// with ErrConcurrentAdmission.
func ProposeDivision(snap Snapshot, payer string, strategy Strategy, id uuid.UUID, now time.Time) (PaymentDivision, error) {
	if snap.Session.Terminal() {
		return PaymentDivision{}, fmt.Errorf("%w: session %d is %s", ErrSessionNotOpen, snap.Session.ID, snap.Session.Status)
	}
	payer = strings.TrimSpace(payer)
	if payer == "" {
		return PaymentDivision{}, fmt.Errorf("%w: payer name is required", ErrInvalidStrategy)
	}
	if strategy == nil {
		return PaymentDivision{}, fmt.Errorf("%w: no strategy", ErrInvalidStrategy)
	}
	st, err := GetStatus(snap)
	if err != nil {
		return PaymentDivision{}, err
	}
	if st.AvailableAmount.IsZero() && st.PendingAmount.IsZero() {
		return PaymentDivision{}, ErrNothingDue
	}

	amount, itemIDs, err := strategy.amount(snap, st)
	if err != nil {
		return PaymentDivision{}, err
	}
	if amount.GreaterThan(st.RemainingAmount.Add(Tolerance)) {
		return PaymentDivision{}, fmt.Errorf("%w: remaining balance is %s", ErrExceedsRemaining, st.RemainingAmount.StringFixed(2))
	}
	if amount.GreaterThan(st.AvailableAmount.Add(Tolerance)) {
		return PaymentDivision{}, fmt.Errorf("%w: %s of %s is awaiting payment confirmation",
			ErrConcurrentAdmission, st.PendingAmount.StringFixed(2), st.RemainingAmount.StringFixed(2))
	}
	if amount.GreaterThan(st.AvailableAmount) {
		amount = st.AvailableAmount
	}
	if !amount.IsPositive() {
		if st.AvailableAmount.IsPositive() {
			return PaymentDivision{}, fmt.Errorf("%w: amount rounds to zero", ErrInvalidStrategy)
		}
		if st.PendingAmount.IsPositive() {
			return PaymentDivision{}, fmt.Errorf("%w: remaining balance is awaiting payment confirmation", ErrConcurrentAdmission)
		}
		return PaymentDivision{}, ErrNothingDue
	}

	return PaymentDivision{
		ID:          id,
		SessionID:   snap.Session.ID,
		PayerName:   payer,
		Amount:      amount,
		Status:      DivisionPending,
		Strategy:    strategy.Name(),
		LineItemIDs: itemIDs,
		CreatedAt:   now,
	}, nil
}
