package ledger

import "github.com/shopspring/decimal"

// GetStatus projects the payment state of a session from its snapshot.
func GetStatus(snap Snapshot) (Status, error) {
	bill, err := SessionBill(snap)
	if err != nil {
		return Status{}, err
	}
	paid, pending := decimal.Zero, decimal.Zero
	for _, d := range snap.Divisions {
		switch d.Status {
		case DivisionPaid:
			paid = paid.Add(d.Amount)
		case DivisionPending:
			pending = pending.Add(d.Amount)
		}
	}
	remaining := nonNegative(bill.TotalDue.Sub(paid))
	divisions := snap.Divisions
	if divisions == nil {
		divisions = []PaymentDivision{}
	}
	return Status{
		SessionID:       snap.Session.ID,
		SessionStatus:   snap.Session.Status,
		Bill:            bill,
		TotalAmount:     bill.TotalDue,
		PaidAmount:      paid,
		PendingAmount:   pending,
		RemainingAmount: remaining,
		AvailableAmount: nonNegative(remaining.Sub(pending)),
		IsComplete:      remaining.LessThanOrEqual(Tolerance),
		Divisions:       divisions,
	}, nil
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
