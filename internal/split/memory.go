package split

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/susu3304/tablesplit/internal/ledger"
)

type staffKey struct {
	restaurantID int64
	userID       string
}

// MemoryStore keeps everything in process. It implements Store and Directory
// and is used when no database is configured.
type MemoryStore struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex

	restaurants map[int64]ledger.Restaurant
	menu        map[int64]ledger.MenuItem
	staff       map[staffKey]Staff

	sessions      map[int64]ledger.Session
	orders        map[int64]ledger.Order
	sessionOrders map[int64][]int64
	items         map[int64]ledger.LineItem
	orderItems    map[int64][]int64
	divisions     map[uuid.UUID]ledger.PaymentDivision
	sessionDivs   map[int64][]uuid.UUID

	nextRestaurant int64
	nextMenuItem   int64
	nextSession    int64
	nextOrder      int64
	nextLineItem   int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		locks:         make(map[int64]*sync.Mutex),
		restaurants:   make(map[int64]ledger.Restaurant),
		menu:          make(map[int64]ledger.MenuItem),
		staff:         make(map[staffKey]Staff),
		sessions:      make(map[int64]ledger.Session),
		orders:        make(map[int64]ledger.Order),
		sessionOrders: make(map[int64][]int64),
		items:         make(map[int64]ledger.LineItem),
		orderItems:    make(map[int64][]int64),
		divisions:     make(map[uuid.UUID]ledger.PaymentDivision),
		sessionDivs:   make(map[int64][]uuid.UUID),
	}
}

func (m *MemoryStore) WithSessionLock(ctx context.Context, sessionID int64, fn func(tx Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	if _, ok := m.sessions[sessionID]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %d", ledger.ErrSessionNotFound, sessionID)
	}
	l, ok := m.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[sessionID] = l
	}
	m.mu.Unlock()

	l.Lock()
	defer l.Unlock()
	return fn(m)
}

func (m *MemoryStore) GetSession(_ context.Context, id int64) (ledger.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return ledger.Session{}, fmt.Errorf("%w: %d", ledger.ErrSessionNotFound, id)
	}
	return s, nil
}

func (m *MemoryStore) CreateSession(_ context.Context, s ledger.Session) (ledger.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.restaurants[s.RestaurantID]; !ok {
		return ledger.Session{}, fmt.Errorf("%w: %d", ledger.ErrRestaurantNotFound, s.RestaurantID)
	}
	m.nextSession++
	s.ID = m.nextSession
	m.sessions[s.ID] = s
	return s, nil
}

func (m *MemoryStore) SessionByShareToken(_ context.Context, token string) (ledger.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.ShareToken == token {
			return s, nil
		}
	}
	return ledger.Session{}, ledger.ErrSessionNotFound
}

func (m *MemoryStore) UpdateSessionStatus(_ context.Context, id int64, status ledger.SessionStatus, closedAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %d", ledger.ErrSessionNotFound, id)
	}
	s.Status = status
	s.ClosedAt = closedAt
	m.sessions[id] = s
	return nil
}

func (m *MemoryStore) Restaurant(_ context.Context, id int64) (ledger.Restaurant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.restaurants[id]
	if !ok {
		return ledger.Restaurant{}, fmt.Errorf("%w: %d", ledger.ErrRestaurantNotFound, id)
	}
	return r, nil
}

func (m *MemoryStore) MenuItems(_ context.Context, restaurantID int64) ([]ledger.MenuItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ledger.MenuItem
	for _, item := range m.menu {
		if item.RestaurantID == restaurantID {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) CreateOrder(_ context.Context, sessionID int64, items []ledger.LineItem) (ledger.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sessionID]; !ok {
		return ledger.Order{}, fmt.Errorf("%w: %d", ledger.ErrSessionNotFound, sessionID)
	}
	m.nextOrder++
	order := ledger.Order{ID: m.nextOrder, SessionID: sessionID, CreatedAt: time.Now()}
	m.orders[order.ID] = order
	m.sessionOrders[sessionID] = append(m.sessionOrders[sessionID], order.ID)
	for _, it := range items {
		m.nextLineItem++
		it.ID = m.nextLineItem
		it.OrderID = order.ID
		it.SessionID = sessionID
		m.items[it.ID] = it
		m.orderItems[order.ID] = append(m.orderItems[order.ID], it.ID)
		order.Items = append(order.Items, it)
	}
	return order, nil
}

func (m *MemoryStore) OrdersForSession(_ context.Context, sessionID int64) ([]ledger.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ledger.Order
	for _, id := range m.sessionOrders[sessionID] {
		o := m.orders[id]
		o.Items = nil
		for _, itemID := range m.orderItems[id] {
			o.Items = append(o.Items, m.items[itemID])
		}
		out = append(out, o)
	}
	return out, nil
}

func (m *MemoryStore) LineItemsForSession(_ context.Context, sessionID int64) ([]ledger.LineItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ledger.LineItem
	for _, orderID := range m.sessionOrders[sessionID] {
		for _, itemID := range m.orderItems[orderID] {
			out = append(out, m.items[itemID])
		}
	}
	return out, nil
}

func (m *MemoryStore) GetLineItem(_ context.Context, id int64) (ledger.LineItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return ledger.LineItem{}, fmt.Errorf("%w: %d", ledger.ErrLineItemNotFound, id)
	}
	return it, nil
}

func (m *MemoryStore) UpdateLineItemStatus(_ context.Context, id int64, status ledger.LineItemStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return fmt.Errorf("%w: %d", ledger.ErrLineItemNotFound, id)
	}
	it.Status = status
	m.items[id] = it
	return nil
}

func (m *MemoryStore) ListDivisions(_ context.Context, sessionID int64) ([]ledger.PaymentDivision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ledger.PaymentDivision
	for _, id := range m.sessionDivs[sessionID] {
		out = append(out, copyDivision(m.divisions[id]))
	}
	return out, nil
}

func (m *MemoryStore) GetDivision(_ context.Context, id uuid.UUID) (ledger.PaymentDivision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.divisions[id]
	if !ok {
		return ledger.PaymentDivision{}, fmt.Errorf("%w: %s", ledger.ErrDivisionNotFound, id)
	}
	return copyDivision(d), nil
}

func (m *MemoryStore) InsertDivision(_ context.Context, d ledger.PaymentDivision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[d.SessionID]; !ok {
		return fmt.Errorf("%w: %d", ledger.ErrSessionNotFound, d.SessionID)
	}
	if _, exists := m.divisions[d.ID]; exists {
		return fmt.Errorf("division %s already exists", d.ID)
	}
	m.divisions[d.ID] = copyDivision(d)
	m.sessionDivs[d.SessionID] = append(m.sessionDivs[d.SessionID], d.ID)
	return nil
}

func (m *MemoryStore) UpdateDivisionStatus(_ context.Context, d ledger.PaymentDivision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.divisions[d.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ledger.ErrDivisionNotFound, d.ID)
	}
	cur.Status = d.Status
	cur.Note = d.Note
	cur.ResolvedAt = d.ResolvedAt
	m.divisions[d.ID] = cur
	return nil
}

func (m *MemoryStore) PendingDivisionsBefore(_ context.Context, cutoff time.Time) ([]ledger.PaymentDivision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ledger.PaymentDivision
	for _, d := range m.divisions {
		if d.Status == ledger.DivisionPending && d.CreatedAt.Before(cutoff) {
			out = append(out, copyDivision(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) UpsertRestaurant(_ context.Context, r ledger.Restaurant) (ledger.Restaurant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == 0 {
		m.nextRestaurant++
		r.ID = m.nextRestaurant
	} else if r.ID > m.nextRestaurant {
		m.nextRestaurant = r.ID
	}
	m.restaurants[r.ID] = r
	return r, nil
}

func (m *MemoryStore) UpsertMenuItem(_ context.Context, item ledger.MenuItem) (ledger.MenuItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.restaurants[item.RestaurantID]; !ok {
		return ledger.MenuItem{}, fmt.Errorf("%w: %d", ledger.ErrRestaurantNotFound, item.RestaurantID)
	}
	if item.ID == 0 {
		m.nextMenuItem++
		item.ID = m.nextMenuItem
	} else if item.ID > m.nextMenuItem {
		m.nextMenuItem = item.ID
	}
	m.menu[item.ID] = item
	return item, nil
}

func (m *MemoryStore) UpsertStaff(_ context.Context, s Staff) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.restaurants[s.RestaurantID]; !ok {
		return fmt.Errorf("%w: %d", ledger.ErrRestaurantNotFound, s.RestaurantID)
	}
	m.staff[staffKey{s.RestaurantID, s.UserID}] = s
	return nil
}

func (m *MemoryStore) StaffRestaurants(_ context.Context, userID string) ([]StaffRestaurant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []StaffRestaurant
	for k, s := range m.staff {
		if k.userID != userID {
			continue
		}
		out = append(out, StaffRestaurant{Restaurant: m.restaurants[k.restaurantID], Role: s.Role})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Restaurant.ID < out[j].Restaurant.ID })
	return out, nil
}

func (m *MemoryStore) StaffRole(_ context.Context, restaurantID int64, userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.staff[staffKey{restaurantID, userID}]
	if !ok {
		return "", ErrNotStaff
	}
	return s.Role, nil
}

func copyDivision(d ledger.PaymentDivision) ledger.PaymentDivision {
	if d.LineItemIDs != nil {
		d.LineItemIDs = append([]int64(nil), d.LineItemIDs...)
	}
	return d
}
