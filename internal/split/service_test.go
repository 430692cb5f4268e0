package split

import (
	"bytes"
	"context"
	"errors"
	"log"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/susu3304/tablesplit/internal/config"
	"github.com/susu3304/tablesplit/internal/events"
	"github.com/susu3304/tablesplit/internal/ledger"
)

type recorder struct {
	mu  sync.Mutex
	got []events.Event
}

func (r *recorder) Publish(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, e)
	return nil
}

func (r *recorder) types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Type, len(r.got))
	for i, e := range r.got {
		out[i] = e.Type
	}
	return out
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

const testSeed = `
restaurants:
  - id: 1
    trade_name: Cantina
    service_fee_pct: "0.10"
    menu:
      - {id: 1, name: Feijoada, price: "42.00"}
      - {id: 2, name: Moqueca, price: "32.00"}
      - {id: 3, name: Old special, price: "10.00", inactive: true}
    staff:
      - {user_id: "42", role: GERENTE}
`

type fixture struct {
	svc   *Service
	store *MemoryStore
	pub   *recorder
	clock *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	seed, err := config.ParseSeed([]byte(testSeed))
	if err != nil {
		t.Fatal(err)
	}
	store := NewMemoryStore()
	if err := ApplySeed(context.Background(), store, seed); err != nil {
		t.Fatal(err)
	}
	c := &clock{t: time.Date(2026, 10, 16, 20, 0, 0, 0, time.UTC)}
	pub := &recorder{}
	return &fixture{
		svc:   NewService(store, pub, WithClock(c.now)),
		store: store,
		pub:   pub,
		clock: c,
	}
}

// openTable opens a session with the reference order: one Feijoada and two
// Moquecas, 116.60 due.
func (f *fixture) openTable(t *testing.T) (ledger.Session, ledger.Order) {
	t.Helper()
	ctx := context.Background()
	sess, err := f.svc.OpenSession(ctx, 1, "T4", ledger.OriginQRCode)
	if err != nil {
		t.Fatal(err)
	}
	order, err := f.svc.PlaceOrder(ctx, sess.ID, []OrderLine{
		{MenuItemID: 1, Quantity: 1},
		{MenuItemID: 2, Quantity: 2, Notes: " sem coentro "},
	})
	if err != nil {
		t.Fatal(err)
	}
	return sess, order
}

func (f *fixture) deliverAll(t *testing.T, order ledger.Order) {
	t.Helper()
	for _, it := range order.Items {
		if _, err := f.svc.UpdateLineItemStatus(context.Background(), it.ID, ledger.ItemDelivered); err != nil {
			t.Fatal(err)
		}
	}
}

func TestServiceSettlesTable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess, order := f.openTable(t)

	got, err := f.svc.Session(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != ledger.SessionInProgress {
		t.Errorf("Status after first order = %s, want IN_PROGRESS", got.Status)
	}
	if order.Items[1].Notes != "sem coentro" || !order.Items[1].UnitPrice.Equal(dec("32.00")) {
		t.Errorf("unexpected line item: %+v", order.Items[1])
	}

	bill, err := f.svc.Bill(ctx, sess.ID, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !bill.Subtotal.Equal(dec("106.00")) || !bill.ServiceFee.Equal(dec("10.60")) || !bill.TotalDue.Equal(dec("116.60")) {
		t.Fatalf("bill = %+v", bill)
	}

	first, err := f.svc.Propose(ctx, sess.ID, "Ana", ledger.EqualShare{N: 2})
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.svc.Propose(ctx, sess.ID, "Bruno", ledger.EqualShare{N: 2})
	if err != nil {
		t.Fatal(err)
	}
	if !first.Amount.Equal(dec("58.30")) || !second.Amount.Equal(dec("58.30")) {
		t.Fatalf("amounts = %s, %s; want 58.30 each", first.Amount, second.Amount)
	}

	if _, err := f.svc.Confirm(ctx, first.ID, ledger.DivisionPaid, ""); err != nil {
		t.Fatal(err)
	}
	st, err := f.svc.Status(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !st.PaidAmount.Equal(dec("58.30")) || !st.RemainingAmount.Equal(dec("58.30")) || st.IsComplete {
		t.Fatalf("status = paid %s remaining %s complete %v", st.PaidAmount, st.RemainingAmount, st.IsComplete)
	}

	if _, err := f.svc.Confirm(ctx, second.ID, ledger.DivisionPaid, ""); err != nil {
		t.Fatal(err)
	}
	st, err = f.svc.Status(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !st.RemainingAmount.IsZero() || !st.IsComplete {
		t.Fatalf("status = remaining %s complete %v", st.RemainingAmount, st.IsComplete)
	}

	if _, closed, err := f.svc.CloseIfComplete(ctx, sess.ID); err != nil || closed {
		t.Fatalf("CloseIfComplete with kitchen items pending = %v, %v", closed, err)
	}
	f.deliverAll(t, order)
	closedSess, closed, err := f.svc.CloseIfComplete(ctx, sess.ID)
	if err != nil || !closed {
		t.Fatalf("CloseIfComplete = %v, %v", closed, err)
	}
	if closedSess.Status != ledger.SessionClosed {
		t.Errorf("Status = %s, want CLOSED", closedSess.Status)
	}

	want := []events.Type{
		events.SessionOpened, events.OrderPlaced,
		events.DivisionProposed, events.DivisionProposed,
		events.DivisionPaid, events.DivisionPaid,
		events.LineItemUpdated, events.LineItemUpdated,
		events.SessionClosed,
	}
	gotTypes := f.pub.types()
	if len(gotTypes) != len(want) {
		t.Fatalf("events = %v, want %v", gotTypes, want)
	}
	for i := range want {
		if gotTypes[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, gotTypes[i], want[i])
		}
	}
}

// Two guests claim the last 58.30 at the same time: exactly one is admitted.
func TestConcurrentProposals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess, _ := f.openTable(t)

	half, err := f.svc.Propose(ctx, sess.ID, "Ana", ledger.EqualShare{N: 2})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Confirm(ctx, half.ID, ledger.DivisionPaid, ""); err != nil {
		t.Fatal(err)
	}

	start := make(chan struct{})
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.svc.Propose(ctx, sess.ID, "guest", ledger.CustomAmount{Value: dec("58.30")})
		}(i)
	}
	close(start)
	wg.Wait()

	admitted, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			admitted++
		case errors.Is(err, ledger.ErrConcurrentAdmission):
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if admitted != 1 || conflicts != 1 {
		t.Fatalf("admitted %d, conflicts %d; want 1 and 1", admitted, conflicts)
	}
}

func TestConcurrentProposalsNeverOverbook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess, _ := f.openTable(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := f.svc.Propose(ctx, sess.ID, "guest", ledger.CustomAmount{Value: dec("10.00")})
			if err != nil {
				return
			}
			_, _ = f.svc.Confirm(ctx, d.ID, ledger.DivisionPaid, "")
		}()
	}
	wg.Wait()

	st, err := f.svc.Status(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if st.PaidAmount.Add(st.PendingAmount).GreaterThan(st.TotalAmount.Add(ledger.Tolerance)) {
		t.Fatalf("paid %s + pending %s exceeds total %s", st.PaidAmount, st.PendingAmount, st.TotalAmount)
	}
	if !st.PaidAmount.Equal(dec("110.00")) {
		t.Errorf("paid = %s, want 110.00 (eleven tens)", st.PaidAmount)
	}
}

func TestProposeRevalidatesAgainstCommittedState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess, _ := f.openTable(t)

	if _, err := f.svc.Propose(ctx, sess.ID, "guest", ledger.CustomAmount{Value: dec("200.00")}); !errors.Is(err, ledger.ErrExceedsRemaining) {
		t.Fatalf("error = %v, want ErrExceedsRemaining", err)
	}

	full, err := f.svc.Propose(ctx, sess.ID, "Ana", ledger.EqualShare{N: 1})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Propose(ctx, sess.ID, "Bruno", ledger.Percentage{Pct: dec("50")}); !errors.Is(err, ledger.ErrConcurrentAdmission) {
		t.Fatalf("error while reserved = %v, want ErrConcurrentAdmission", err)
	}

	if _, err := f.svc.Confirm(ctx, full.ID, ledger.DivisionFailed, "declined"); err != nil {
		t.Fatal(err)
	}
	retry, err := f.svc.Propose(ctx, sess.ID, "Bruno", ledger.Percentage{Pct: dec("50")})
	if err != nil {
		t.Fatalf("retry after failed capture: %v", err)
	}
	if !retry.Amount.Equal(dec("58.30")) {
		t.Errorf("retry amount = %s, want 58.30", retry.Amount)
	}
	failed, err := f.svc.Division(ctx, full.ID)
	if err != nil {
		t.Fatal(err)
	}
	if failed.Status != ledger.DivisionFailed || failed.Note != "declined" {
		t.Errorf("failed division = %+v", failed)
	}
}

func TestConfirmIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess, _ := f.openTable(t)

	d, err := f.svc.Propose(ctx, sess.ID, "Ana", ledger.EqualShare{N: 2})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if _, err := f.svc.Confirm(ctx, d.ID, ledger.DivisionPaid, ""); err != nil {
			t.Fatalf("confirm %d: %v", i, err)
		}
	}
	if _, err := f.svc.Confirm(ctx, d.ID, ledger.DivisionFailed, ""); !errors.Is(err, ledger.ErrInvalidTransition) {
		t.Errorf("conflicting outcome error = %v, want ErrInvalidTransition", err)
	}

	paidEvents := 0
	for _, typ := range f.pub.types() {
		if typ == events.DivisionPaid {
			paidEvents++
		}
	}
	if paidEvents != 1 {
		t.Errorf("division.paid published %d times, want 1", paidEvents)
	}
	st, _ := f.svc.Status(ctx, sess.ID)
	if !st.PaidAmount.Equal(dec("58.30")) {
		t.Errorf("paid = %s, want 58.30", st.PaidAmount)
	}
}

func TestExpirePending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess, _ := f.openTable(t)

	stale, err := f.svc.Propose(ctx, sess.ID, "Ana", ledger.EqualShare{N: 1})
	if err != nil {
		t.Fatal(err)
	}
	f.clock.advance(DefaultPendingTTL + time.Minute)

	n, err := f.svc.ExpirePending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expired %d, want 1", n)
	}
	d, _ := f.svc.Division(ctx, stale.ID)
	if d.Status != ledger.DivisionFailed || d.Note != "expired" {
		t.Errorf("division = %+v, want FAILED/expired", d)
	}
	st, _ := f.svc.Status(ctx, sess.ID)
	if !st.PendingAmount.IsZero() || !st.AvailableAmount.Equal(dec("116.60")) {
		t.Errorf("status after expiry = pending %s available %s", st.PendingAmount, st.AvailableAmount)
	}

	if n, err := f.svc.ExpirePending(ctx); err != nil || n != 0 {
		t.Errorf("second run = %d, %v; want 0, nil", n, err)
	}
}

func TestUpdateLineItemStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess, order := f.openTable(t)
	feijoada, moqueca := order.Items[0], order.Items[1]

	d, err := f.svc.Propose(ctx, sess.ID, "Ana", ledger.ItemSubset{LineItemIDs: []int64{moqueca.ID}})
	if err != nil {
		t.Fatal(err)
	}
	if !d.Amount.Equal(dec("70.40")) {
		t.Errorf("item division = %s, want 70.40", d.Amount)
	}
	if _, err := f.svc.UpdateLineItemStatus(ctx, moqueca.ID, ledger.ItemCancelled); !errors.Is(err, ledger.ErrAlreadyCovered) {
		t.Errorf("cancel covered item error = %v, want ErrAlreadyCovered", err)
	}

	li, err := f.svc.UpdateLineItemStatus(ctx, feijoada.ID, ledger.ItemPreparing)
	if err != nil || li.Status != ledger.ItemPreparing {
		t.Fatalf("UpdateLineItemStatus = %+v, %v", li, err)
	}
	if _, err := f.svc.UpdateLineItemStatus(ctx, feijoada.ID, ledger.ItemCancelled); err != nil {
		t.Fatal(err)
	}
	bill, _ := f.svc.Bill(ctx, sess.ID, nil)
	if !bill.TotalDue.Equal(dec("70.40")) {
		t.Errorf("bill after cancel = %s, want 70.40", bill.TotalDue)
	}
	if _, err := f.svc.UpdateLineItemStatus(ctx, feijoada.ID, ledger.ItemReady); !errors.Is(err, ledger.ErrInvalidTransition) {
		t.Errorf("reopen cancelled item error = %v, want ErrInvalidTransition", err)
	}
	if _, err := f.svc.UpdateLineItemStatus(ctx, feijoada.ID, "EATEN"); !errors.Is(err, ledger.ErrInvalidTransition) {
		t.Errorf("unknown status error = %v, want ErrInvalidTransition", err)
	}
	if _, err := f.svc.UpdateLineItemStatus(ctx, 999, ledger.ItemReady); !errors.Is(err, ledger.ErrLineItemNotFound) {
		t.Errorf("unknown item error = %v, want ErrLineItemNotFound", err)
	}
}

func TestCancelItemCannotLeaveOverpayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess, order := f.openTable(t)

	d, err := f.svc.Propose(ctx, sess.ID, "Ana", ledger.CustomAmount{Value: dec("100.00")})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Confirm(ctx, d.ID, ledger.DivisionPaid, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.UpdateLineItemStatus(ctx, order.Items[1].ID, ledger.ItemCancelled); !errors.Is(err, ledger.ErrInvalidTransition) {
		t.Errorf("error = %v, want ErrInvalidTransition", err)
	}
}

func TestPlaceOrderRejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess, err := f.svc.OpenSession(ctx, 1, "T1", "")
	if err != nil {
		t.Fatal(err)
	}
	if sess.Origin != ledger.OriginQRCode || sess.ShareToken == "" {
		t.Errorf("session = %+v", sess)
	}

	tests := []struct {
		name    string
		lines   []OrderLine
		wantErr error
	}{
		{"empty", nil, ledger.ErrInvalidLineItem},
		{"zero quantity", []OrderLine{{MenuItemID: 1, Quantity: 0}}, ledger.ErrInvalidLineItem},
		{"unknown item", []OrderLine{{MenuItemID: 99, Quantity: 1}}, ledger.ErrMenuItemNotFound},
		{"inactive item", []OrderLine{{MenuItemID: 3, Quantity: 1}}, ledger.ErrMenuItemNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.PlaceOrder(ctx, sess.ID, tt.lines); !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	got, _ := f.svc.Session(ctx, sess.ID)
	if got.Status != ledger.SessionOpen {
		t.Errorf("rejected orders changed status to %s", got.Status)
	}
	if _, err := f.svc.PlaceOrder(ctx, 404, []OrderLine{{MenuItemID: 1, Quantity: 1}}); !errors.Is(err, ledger.ErrSessionNotFound) {
		t.Errorf("unknown session error = %v", err)
	}
}

func TestOpenSessionRejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.OpenSession(ctx, 1, " ", ledger.OriginWalkIn); !errors.Is(err, ledger.ErrInvalidSession) {
		t.Errorf("blank table error = %v", err)
	}
	if _, err := f.svc.OpenSession(ctx, 1, "T1", "DRONE"); !errors.Is(err, ledger.ErrInvalidSession) {
		t.Errorf("bad origin error = %v", err)
	}
	if _, err := f.svc.OpenSession(ctx, 9, "T1", ledger.OriginMap); !errors.Is(err, ledger.ErrRestaurantNotFound) {
		t.Errorf("unknown restaurant error = %v", err)
	}
}

func TestEndSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess, _ := f.openTable(t)

	if _, err := f.svc.EndSession(ctx, sess.ID, ledger.SessionOpen); !errors.Is(err, ledger.ErrInvalidTransition) {
		t.Errorf("end as OPEN error = %v", err)
	}
	ended, err := f.svc.EndSession(ctx, sess.ID, ledger.SessionCancelled)
	if err != nil {
		t.Fatal(err)
	}
	if ended.Status != ledger.SessionCancelled || ended.ClosedAt == nil {
		t.Errorf("ended = %+v", ended)
	}
	if _, err := f.svc.EndSession(ctx, sess.ID, ledger.SessionClosed); !errors.Is(err, ledger.ErrInvalidTransition) {
		t.Errorf("close cancelled session error = %v", err)
	}
	if _, err := f.svc.Propose(ctx, sess.ID, "Ana", ledger.EqualShare{N: 1}); !errors.Is(err, ledger.ErrSessionNotOpen) {
		t.Errorf("propose on cancelled session error = %v", err)
	}
	if _, err := f.svc.PlaceOrder(ctx, sess.ID, []OrderLine{{MenuItemID: 1, Quantity: 1}}); !errors.Is(err, ledger.ErrSessionNotOpen) {
		t.Errorf("order on cancelled session error = %v", err)
	}
}

func TestResolveShareToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess, _ := f.openTable(t)

	got, err := f.svc.ResolveShareToken(ctx, sess.ShareToken)
	if err != nil || got.ID != sess.ID {
		t.Fatalf("ResolveShareToken = %+v, %v", got, err)
	}
	if _, err := f.svc.ResolveShareToken(ctx, "nope"); !errors.Is(err, ledger.ErrSessionNotFound) {
		t.Errorf("unknown token error = %v", err)
	}
}

type brokenStore struct {
	*MemoryStore
}

func (brokenStore) ListDivisions(context.Context, int64) ([]ledger.PaymentDivision, error) {
	return nil, errors.New("connection refused")
}

func TestStoreFailuresAreTransient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess, _ := f.openTable(t)

	svc := NewService(brokenStore{f.store}, nil)
	if _, err := svc.Status(ctx, sess.ID); !errors.Is(err, ledger.ErrUnavailable) {
		t.Errorf("Status error = %v, want ErrUnavailable", err)
	}
	if _, err := svc.Status(ctx, 404); !errors.Is(err, ledger.ErrSessionNotFound) {
		t.Errorf("missing session error = %v, want ErrSessionNotFound", err)
	}
}

func TestMenuHidesInactiveItems(t *testing.T) {
	f := newFixture(t)
	menu, err := f.svc.Menu(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(menu) != 2 {
		t.Errorf("menu has %d items, want 2", len(menu))
	}
	if _, err := f.svc.Menu(context.Background(), 5); !errors.Is(err, ledger.ErrRestaurantNotFound) {
		t.Errorf("unknown restaurant error = %v", err)
	}
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, events.Event) error {
	return errors.New("broker down")
}

func TestPublishFailureLoggedOnce(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	f := newFixture(t)
	svc := NewService(f.store, events.Multi{failingPublisher{}, f.pub, failingPublisher{}}, WithClock(f.clock.now))
	if _, err := svc.OpenSession(context.Background(), 1, "T1", ledger.OriginQRCode); err != nil {
		t.Fatal(err)
	}

	if n := strings.Count(buf.String(), "session.opened"); n != 1 {
		t.Errorf("logged the publish failure %d times, want once:\n%s", n, buf.String())
	}
	if got := f.pub.types(); len(got) != 1 || got[0] != events.SessionOpened {
		t.Errorf("healthy publisher got %v, want [session.opened]", got)
	}
}
