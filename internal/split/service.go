package split

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/susu3304/tablesplit/internal/events"
	"github.com/susu3304/tablesplit/internal/ledger"
)

// DefaultPendingTTL is how long a division may wait for payment capture
// before it is expired.
const DefaultPendingTTL = 15 * time.Minute

// Service runs the ledger against a Store. Writes that depend on ledger state
// happen under the session lock and always re-read the committed state.
type Service struct {
	store Store
	pub   events.Publisher
	now   func() time.Time
	newID func() uuid.UUID
	ttl   time.Duration
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithPendingTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.ttl = d
		}
	}
}

func NewService(store Store, pub events.Publisher, opts ...Option) *Service {
	if pub == nil {
		pub = events.Discard{}
	}
	s := &Service{
		store: store,
		pub:   pub,
		now:   time.Now,
		newID: uuid.New,
		ttl:   DefaultPendingTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OrderLine is one entry of a guest order.
type OrderLine struct {
	MenuItemID int64
	Quantity   int
	Notes      string
}

func (s *Service) OpenSession(ctx context.Context, restaurantID int64, tableRef string, origin ledger.Origin) (ledger.Session, error) {
	tableRef = strings.TrimSpace(tableRef)
	if tableRef == "" {
		return ledger.Session{}, fmt.Errorf("%w: table reference is required", ledger.ErrInvalidSession)
	}
	if origin == "" {
		origin = ledger.OriginQRCode
	}
	switch origin {
	case ledger.OriginQRCode, ledger.OriginWalkIn, ledger.OriginMap, ledger.OriginReservation:
	default:
		return ledger.Session{}, fmt.Errorf("%w: unknown origin %q", ledger.ErrInvalidSession, origin)
	}
	if _, err := s.store.Restaurant(ctx, restaurantID); err != nil {
		return ledger.Session{}, classify(err)
	}
	sess, err := s.store.CreateSession(ctx, ledger.Session{
		RestaurantID: restaurantID,
		TableRef:     tableRef,
		Origin:       origin,
		Status:       ledger.SessionOpen,
		ShareToken:   uuid.NewString(),
		CreatedAt:    s.now(),
	})
	if err != nil {
		return ledger.Session{}, classify(err)
	}
	s.publish(ctx, events.Event{Type: events.SessionOpened, SessionID: sess.ID, RestaurantID: restaurantID})
	return sess, nil
}

func (s *Service) Session(ctx context.Context, id int64) (ledger.Session, error) {
	sess, err := s.store.GetSession(ctx, id)
	return sess, classify(err)
}

// ResolveShareToken returns the session a share link points to.
func (s *Service) ResolveShareToken(ctx context.Context, token string) (ledger.Session, error) {
	if strings.TrimSpace(token) == "" {
		return ledger.Session{}, ledger.ErrSessionNotFound
	}
	sess, err := s.store.SessionByShareToken(ctx, token)
	return sess, classify(err)
}

func (s *Service) Restaurant(ctx context.Context, id int64) (ledger.Restaurant, error) {
	r, err := s.store.Restaurant(ctx, id)
	return r, classify(err)
}

// Menu lists the active menu items of a restaurant.
func (s *Service) Menu(ctx context.Context, restaurantID int64) ([]ledger.MenuItem, error) {
	if _, err := s.store.Restaurant(ctx, restaurantID); err != nil {
		return nil, classify(err)
	}
	all, err := s.store.MenuItems(ctx, restaurantID)
	if err != nil {
		return nil, classify(err)
	}
	out := make([]ledger.MenuItem, 0, len(all))
	for _, m := range all {
		if m.Active {
			out = append(out, m)
		}
	}
	return out, nil
}

// PlaceOrder adds an order priced from the current menu. The first order
// moves an OPEN session to IN_PROGRESS.
func (s *Service) PlaceOrder(ctx context.Context, sessionID int64, lines []OrderLine) (ledger.Order, error) {
	if len(lines) == 0 {
		return ledger.Order{}, fmt.Errorf("%w: order has no items", ledger.ErrInvalidLineItem)
	}
	var order ledger.Order
	var restaurantID int64
	err := s.store.WithSessionLock(ctx, sessionID, func(tx Store) error {
		sess, err := tx.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if sess.Terminal() {
			return fmt.Errorf("%w: session %d is %s", ledger.ErrSessionNotOpen, sess.ID, sess.Status)
		}
		restaurantID = sess.RestaurantID
		menu, err := tx.MenuItems(ctx, sess.RestaurantID)
		if err != nil {
			return err
		}
		byID := make(map[int64]ledger.MenuItem, len(menu))
		for _, m := range menu {
			byID[m.ID] = m
		}

		items := make([]ledger.LineItem, 0, len(lines))
		for _, l := range lines {
			if l.Quantity < 1 {
				return fmt.Errorf("%w: quantity must be at least 1, got %d", ledger.ErrInvalidLineItem, l.Quantity)
			}
			m, ok := byID[l.MenuItemID]
			if !ok || !m.Active {
				return fmt.Errorf("%w: %d", ledger.ErrMenuItemNotFound, l.MenuItemID)
			}
			items = append(items, ledger.LineItem{
				SessionID:  sessionID,
				MenuItemID: m.ID,
				Name:       m.Name,
				UnitPrice:  m.Price,
				Quantity:   l.Quantity,
				Status:     ledger.ItemCreated,
				Notes:      strings.TrimSpace(l.Notes),
			})
		}
		if _, err := ledger.ComputeBill(items, decimal.Zero); err != nil {
			return err
		}

		order, err = tx.CreateOrder(ctx, sessionID, items)
		if err != nil {
			return err
		}
		if sess.Status == ledger.SessionOpen {
			next, err := ledger.TransitionSession(sess, ledger.SessionInProgress, s.now())
			if err != nil {
				return err
			}
			return tx.UpdateSessionStatus(ctx, sessionID, next.Status, next.ClosedAt)
		}
		return nil
	})
	if err != nil {
		return ledger.Order{}, classify(err)
	}
	s.publish(ctx, events.Event{Type: events.OrderPlaced, SessionID: sessionID, RestaurantID: restaurantID})
	return order, nil
}

func (s *Service) Orders(ctx context.Context, sessionID int64) ([]ledger.Order, error) {
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return nil, classify(err)
	}
	orders, err := s.store.OrdersForSession(ctx, sessionID)
	if err != nil {
		return nil, classify(err)
	}
	if orders == nil {
		orders = []ledger.Order{}
	}
	return orders, nil
}

func (s *Service) LineItem(ctx context.Context, id int64) (ledger.LineItem, error) {
	li, err := s.store.GetLineItem(ctx, id)
	return li, classify(err)
}

// UpdateLineItemStatus records kitchen progress. DELIVERED and CANCELLED are
// final. An item cannot be cancelled once a payment covers it.
func (s *Service) UpdateLineItemStatus(ctx context.Context, lineItemID int64, status ledger.LineItemStatus) (ledger.LineItem, error) {
	switch status {
	case ledger.ItemCreated, ledger.ItemSentToKitchen, ledger.ItemPreparing,
		ledger.ItemReady, ledger.ItemDelivered, ledger.ItemCancelled:
	default:
		return ledger.LineItem{}, fmt.Errorf("%w: unknown line item status %q", ledger.ErrInvalidTransition, status)
	}
	li, err := s.store.GetLineItem(ctx, lineItemID)
	if err != nil {
		return ledger.LineItem{}, classify(err)
	}

	var changed bool
	var restaurantID int64
	err = s.store.WithSessionLock(ctx, li.SessionID, func(tx Store) error {
		snap, err := s.snapshot(ctx, tx, li.SessionID)
		if err != nil {
			return err
		}
		restaurantID = snap.Session.RestaurantID
		idx := -1
		for i, it := range snap.Items {
			if it.ID == lineItemID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return fmt.Errorf("%w: %d", ledger.ErrLineItemNotFound, lineItemID)
		}
		li = snap.Items[idx]
		if li.Status == status {
			return nil
		}
		if snap.Session.Terminal() {
			return fmt.Errorf("%w: session %d is %s", ledger.ErrSessionNotOpen, snap.Session.ID, snap.Session.Status)
		}
		if li.Status == ledger.ItemDelivered || li.Status == ledger.ItemCancelled {
			return fmt.Errorf("%w: line item %d is %s", ledger.ErrInvalidTransition, li.ID, li.Status)
		}
		if status == ledger.ItemCancelled {
			if err := checkCancellable(snap, idx); err != nil {
				return err
			}
		}
		if err := tx.UpdateLineItemStatus(ctx, lineItemID, status); err != nil {
			return err
		}
		li.Status = status
		changed = true
		return nil
	})
	if err != nil {
		return ledger.LineItem{}, classify(err)
	}
	if changed {
		s.publish(ctx, events.Event{Type: events.LineItemUpdated, SessionID: li.SessionID, RestaurantID: restaurantID, LineItemID: li.ID, Note: string(status)})
	}
	return li, nil
}

// checkCancellable rejects cancelling an item that a division pays for, or
// whose removal would leave more paid than due.
func checkCancellable(snap ledger.Snapshot, idx int) error {
	id := snap.Items[idx].ID
	for _, d := range snap.Divisions {
		if d.Status == ledger.DivisionFailed {
			continue
		}
		for _, covered := range d.LineItemIDs {
			if covered == id {
				return fmt.Errorf("%w: %d", ledger.ErrAlreadyCovered, id)
			}
		}
	}
	after := snap
	after.Items = append([]ledger.LineItem(nil), snap.Items...)
	after.Items[idx].Status = ledger.ItemCancelled
	st, err := ledger.GetStatus(after)
	if err != nil {
		return err
	}
	if st.PaidAmount.GreaterThan(st.TotalAmount.Add(ledger.Tolerance)) {
		return fmt.Errorf("%w: cancelling line item %d leaves %s paid against %s due",
			ledger.ErrInvalidTransition, id, st.PaidAmount.StringFixed(2), st.TotalAmount.StringFixed(2))
	}
	return nil
}

// Bill computes the bill of the session, or of the given line items only.
func (s *Service) Bill(ctx context.Context, sessionID int64, lineItemIDs []int64) (ledger.Bill, error) {
	snap, err := s.snapshot(ctx, s.store, sessionID)
	if err != nil {
		return ledger.Bill{}, classify(err)
	}
	if len(lineItemIDs) > 0 {
		return ledger.SubsetBill(snap, lineItemIDs)
	}
	return ledger.SessionBill(snap)
}

func (s *Service) Status(ctx context.Context, sessionID int64) (ledger.Status, error) {
	snap, err := s.snapshot(ctx, s.store, sessionID)
	if err != nil {
		return ledger.Status{}, classify(err)
	}
	return ledger.GetStatus(snap)
}

// Propose admits a new PENDING division against the latest committed state.
func (s *Service) Propose(ctx context.Context, sessionID int64, payer string, strategy ledger.Strategy) (ledger.PaymentDivision, error) {
	var div ledger.PaymentDivision
	var restaurantID int64
	err := s.store.WithSessionLock(ctx, sessionID, func(tx Store) error {
		snap, err := s.snapshot(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		restaurantID = snap.Session.RestaurantID
		div, err = ledger.ProposeDivision(snap, payer, strategy, s.newID(), s.now())
		if err != nil {
			return err
		}
		return tx.InsertDivision(ctx, div)
	})
	if err != nil {
		return ledger.PaymentDivision{}, classify(err)
	}
	amount := div.Amount
	s.publish(ctx, events.Event{
		Type:         events.DivisionProposed,
		SessionID:    sessionID,
		RestaurantID: restaurantID,
		DivisionID:   div.ID.String(),
		PayerName:    div.PayerName,
		Amount:       &amount,
	})
	return div, nil
}

// Confirm records the capture outcome of a division. note is kept only when
// the status actually changes.
func (s *Service) Confirm(ctx context.Context, divisionID uuid.UUID, outcome ledger.DivisionStatus, note string) (ledger.PaymentDivision, error) {
	existing, err := s.store.GetDivision(ctx, divisionID)
	if err != nil {
		return ledger.PaymentDivision{}, classify(err)
	}

	var div ledger.PaymentDivision
	var changed bool
	var restaurantID int64
	err = s.store.WithSessionLock(ctx, existing.SessionID, func(tx Store) error {
		snap, err := s.snapshot(ctx, tx, existing.SessionID)
		if err != nil {
			return err
		}
		restaurantID = snap.Session.RestaurantID
		div, changed, err = ledger.ConfirmDivision(snap, divisionID, outcome, s.now())
		if err != nil || !changed {
			return err
		}
		if note != "" {
			div.Note = note
		}
		return tx.UpdateDivisionStatus(ctx, div)
	})
	if err != nil {
		return ledger.PaymentDivision{}, classify(err)
	}
	if changed {
		s.publishResolved(ctx, restaurantID, div)
	}
	return div, nil
}

// CloseIfComplete closes the session when it is settled. The returned bool
// reports whether this call closed it.
func (s *Service) CloseIfComplete(ctx context.Context, sessionID int64) (ledger.Session, bool, error) {
	var sess ledger.Session
	var closed bool
	err := s.store.WithSessionLock(ctx, sessionID, func(tx Store) error {
		snap, err := s.snapshot(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		sess, closed, err = ledger.CloseSessionIfComplete(snap, s.now())
		if err != nil || !closed {
			return err
		}
		return tx.UpdateSessionStatus(ctx, sessionID, sess.Status, sess.ClosedAt)
	})
	if err != nil {
		return ledger.Session{}, false, classify(err)
	}
	if closed {
		s.publish(ctx, events.Event{Type: events.SessionClosed, SessionID: sessionID, RestaurantID: sess.RestaurantID})
	}
	return sess, closed, nil
}

// EndSession is the explicit staff action: CLOSED or CANCELLED regardless of
// the balance.
func (s *Service) EndSession(ctx context.Context, sessionID int64, to ledger.SessionStatus) (ledger.Session, error) {
	if to != ledger.SessionClosed && to != ledger.SessionCancelled {
		return ledger.Session{}, fmt.Errorf("%w: a session can only be ended as CLOSED or CANCELLED, got %q", ledger.ErrInvalidTransition, to)
	}
	var sess ledger.Session
	var changed bool
	err := s.store.WithSessionLock(ctx, sessionID, func(tx Store) error {
		cur, err := tx.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		sess, err = ledger.TransitionSession(cur, to, s.now())
		if err != nil || sess.Status == cur.Status {
			return err
		}
		changed = true
		return tx.UpdateSessionStatus(ctx, sessionID, sess.Status, sess.ClosedAt)
	})
	if err != nil {
		return ledger.Session{}, classify(err)
	}
	if changed {
		typ := events.SessionClosed
		if to == ledger.SessionCancelled {
			typ = events.SessionCancelled
		}
		s.publish(ctx, events.Event{Type: typ, SessionID: sessionID, RestaurantID: sess.RestaurantID})
	}
	return sess, nil
}

func (s *Service) Division(ctx context.Context, id uuid.UUID) (ledger.PaymentDivision, error) {
	d, err := s.store.GetDivision(ctx, id)
	return d, classify(err)
}

// ExpirePending fails every PENDING division older than the pending TTL and
// returns how many were expired.
func (s *Service) ExpirePending(ctx context.Context) (int, error) {
	now := s.now()
	cutoff := now.Add(-s.ttl)
	stale, err := s.store.PendingDivisionsBefore(ctx, cutoff)
	if err != nil {
		return 0, classify(err)
	}
	sessions := make([]int64, 0)
	seen := make(map[int64]struct{})
	for _, d := range stale {
		if _, ok := seen[d.SessionID]; ok {
			continue
		}
		seen[d.SessionID] = struct{}{}
		sessions = append(sessions, d.SessionID)
	}

	total := 0
	var errs []error
	for _, id := range sessions {
		var expired []ledger.PaymentDivision
		var restaurantID int64
		err := s.store.WithSessionLock(ctx, id, func(tx Store) error {
			sess, err := tx.GetSession(ctx, id)
			if err != nil {
				return err
			}
			restaurantID = sess.RestaurantID
			divs, err := tx.ListDivisions(ctx, id)
			if err != nil {
				return err
			}
			expired = ledger.ExpirePending(divs, cutoff, now)
			for _, d := range expired {
				if err := tx.UpdateDivisionStatus(ctx, d); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("session %d: %w", id, classify(err)))
			continue
		}
		total += len(expired)
		for _, d := range expired {
			s.publishResolved(ctx, restaurantID, d)
		}
	}
	return total, errors.Join(errs...)
}

func (s *Service) snapshot(ctx context.Context, st Store, sessionID int64) (ledger.Snapshot, error) {
	sess, err := st.GetSession(ctx, sessionID)
	if err != nil {
		return ledger.Snapshot{}, err
	}
	r, err := st.Restaurant(ctx, sess.RestaurantID)
	if err != nil {
		return ledger.Snapshot{}, err
	}
	items, err := st.LineItemsForSession(ctx, sessionID)
	if err != nil {
		return ledger.Snapshot{}, err
	}
	divs, err := st.ListDivisions(ctx, sessionID)
	if err != nil {
		return ledger.Snapshot{}, err
	}
	return ledger.Snapshot{
		Session:       sess,
		Items:         items,
		Divisions:     divs,
		ServiceFeePct: r.ServiceFeePct,
	}, nil
}

func (s *Service) publishResolved(ctx context.Context, restaurantID int64, d ledger.PaymentDivision) {
	typ := events.DivisionPaid
	if d.Status == ledger.DivisionFailed {
		typ = events.DivisionFailed
	}
	amount := d.Amount
	s.publish(ctx, events.Event{
		Type:         typ,
		SessionID:    d.SessionID,
		RestaurantID: restaurantID,
		DivisionID:   d.ID.String(),
		PayerName:    d.PayerName,
		Amount:       &amount,
		Note:         d.Note,
	})
}

func (s *Service) publish(ctx context.Context, e events.Event) {
	if e.At.IsZero() {
		e.At = s.now()
	}
	if err := s.pub.Publish(context.WithoutCancel(ctx), e); err != nil {
		log.Printf("split: publish %s for session %d: %v", e.Type, e.SessionID, err)
	}
}

// classify leaves rejections and lookup misses as they are and marks every
// other failure as transient.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if ledger.IsRejection(err) || ledger.IsNotFound(err) || errors.Is(err, ledger.ErrUnavailable) || errors.Is(err, ErrNotStaff) {
		return err
	}
	return fmt.Errorf("%w: %v", ledger.ErrUnavailable, err)
}
