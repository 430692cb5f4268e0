package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ConfirmDivision records the capture outcome of a division. Confirming a
// resolved division with the same outcome is a no-op (changed is false).
func ConfirmDivision(snap Snapshot, id uuid.UUID, outcome DivisionStatus, now time.Time) (PaymentDivision, bool, error) {
	if outcome != DivisionPaid && outcome != DivisionFailed {
		return PaymentDivision{}, false, fmt.Errorf("%w: outcome must be PAID or FAILED, got %q", ErrInvalidTransition, outcome)
	}
	idx := -1
	for i, d := range snap.Divisions {
		if d.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return PaymentDivision{}, false, fmt.Errorf("%w: %s", ErrDivisionNotFound, id)
	}
	d := snap.Divisions[idx]
	switch d.Status {
	case outcome:
		return d, false, nil
	case DivisionPaid, DivisionFailed:
		return d, false, fmt.Errorf("%w: division %s is %s", ErrInvalidTransition, id, d.Status)
	}

	if outcome == DivisionPaid {
		st, err := GetStatus(snap)
		if err != nil {
			return PaymentDivision{}, false, err
		}
		over := st.PaidAmount.Add(d.Amount).Sub(st.TotalAmount)
		if over.GreaterThan(Tolerance) {
			return d, false, fmt.Errorf("%w: remaining balance is %s", ErrExceedsRemaining, st.RemainingAmount.StringFixed(2))
		}
	}
	d.Status = outcome
	d.ResolvedAt = &now
	return d, true, nil
}

// ExpirePending fails every PENDING division created before cutoff.
func ExpirePending(divs []PaymentDivision, cutoff, now time.Time) []PaymentDivision {
	var out []PaymentDivision
	for _, d := range divs {
		if d.Status != DivisionPending || !d.CreatedAt.Before(cutoff) {
			continue
		}
		d.Status = DivisionFailed
		d.Note = "expired"
		d.ResolvedAt = &now
		out = append(out, d)
	}
	return out
}

// TransitionSession applies the session state machine:
// OPEN -> IN_PROGRESS -> CLOSED | CANCELLED, and OPEN -> CLOSED | CANCELLED.
func TransitionSession(s Session, to SessionStatus, now time.Time) (Session, error) {
	if s.Status == to {
		return s, nil
	}
	ok := false
	switch s.Status {
	case SessionOpen:
		ok = to == SessionInProgress || to == SessionClosed || to == SessionCancelled
	case SessionInProgress:
		ok = to == SessionClosed || to == SessionCancelled
	}
	if !ok {
		return s, fmt.Errorf("%w: session %d cannot go from %s to %s", ErrInvalidTransition, s.ID, s.Status, to)
	}
	s.Status = to
	if s.Terminal() {
		s.ClosedAt = &now
	}
	return s, nil
}

// CloseSessionIfComplete closes the session once the bill is settled, nothing
// is still coming out of the kitchen and no payment is awaiting confirmation.
// A table with nothing billed is never complete: only staff end it.
// Otherwise the session is returned unchanged.
func CloseSessionIfComplete(snap Snapshot, now time.Time) (Session, bool, error) {
	s := snap.Session
	if s.Terminal() || s.Status == SessionOpen || len(billable(snap.Items)) == 0 {
		return s, false, nil
	}
	st, err := GetStatus(snap)
	if err != nil {
		return s, false, err
	}
	if !st.IsComplete || st.PendingAmount.IsPositive() {
		return s, false, nil
	}
	for _, it := range snap.Items {
		if it.Pending() {
			return s, false, nil
		}
	}
	closed, err := TransitionSession(s, SessionClosed, now)
	if err != nil {
		return s, false, err
	}
	return closed, true, nil
}
