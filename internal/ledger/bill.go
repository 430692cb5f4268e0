package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Tolerance is the rounding slack allowed when comparing amounts.
var Tolerance = decimal.New(1, -2)

// DefaultServiceFeePct is used when a restaurant does not configure one.
var DefaultServiceFeePct = decimal.New(10, -2)

// Round rounds to cents, half away from zero (half-up for the non-negative
// amounts the ledger handles).
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// ComputeBill sums the line totals and applies the service fee.
func ComputeBill(items []LineItem, serviceFeePct decimal.Decimal) (Bill, error) {
	if serviceFeePct.IsNegative() || serviceFeePct.GreaterThan(decimal.NewFromInt(1)) {
		return Bill{}, fmt.Errorf("%w: %s", ErrInvalidServiceFee, serviceFeePct)
	}
	subtotal := decimal.Zero
	for _, it := range items {
		if it.UnitPrice.IsNegative() {
			return Bill{}, fmt.Errorf("%w: item %d has negative unit price %s", ErrInvalidLineItem, it.ID, it.UnitPrice)
		}
		if it.Quantity < 1 {
			return Bill{}, fmt.Errorf("%w: item %d has quantity %d", ErrInvalidLineItem, it.ID, it.Quantity)
		}
		subtotal = subtotal.Add(it.Total())
	}
	fee := Round(subtotal.Mul(serviceFeePct))
	return Bill{
		Subtotal:      subtotal,
		ServiceFeePct: serviceFeePct,
		ServiceFee:    fee,
		TotalDue:      subtotal.Add(fee),
	}, nil
}

// AmountDue is subtotal * (1 + pct) rounded to cents. Item-level divisions are
// priced with it.
func AmountDue(subtotal, serviceFeePct decimal.Decimal) decimal.Decimal {
	return Round(subtotal.Mul(decimal.NewFromInt(1).Add(serviceFeePct)))
}

func billable(items []LineItem) []LineItem {
	out := make([]LineItem, 0, len(items))
	for _, it := range items {
		if it.Billable() {
			out = append(out, it)
		}
	}
	return out
}

// SessionBill computes the bill over the billable items of a snapshot.
func SessionBill(snap Snapshot) (Bill, error) {
	return ComputeBill(billable(snap.Items), snap.ServiceFeePct)
}

// SubsetBill computes the bill for the given billable line items only.
func SubsetBill(snap Snapshot, lineItemIDs []int64) (Bill, error) {
	byID := make(map[int64]LineItem, len(snap.Items))
	for _, it := range billable(snap.Items) {
		byID[it.ID] = it
	}
	var picked []LineItem
	seen := make(map[int64]struct{}, len(lineItemIDs))
	for _, id := range lineItemIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		it, ok := byID[id]
		if !ok {
			return Bill{}, fmt.Errorf("%w: %d", ErrUnknownLineItem, id)
		}
		picked = append(picked, it)
	}
	return ComputeBill(picked, snap.ServiceFeePct)
}
