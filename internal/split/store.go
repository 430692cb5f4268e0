package split

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/susu3304/tablesplit/internal/ledger"
)

// Store is the persistence the service runs on. Lookups return the ledger
// not-found errors; anything else is treated as a transient failure.
type Store interface {
	GetSession(ctx context.Context, id int64) (ledger.Session, error)
	CreateSession(ctx context.Context, s ledger.Session) (ledger.Session, error)
	SessionByShareToken(ctx context.Context, token string) (ledger.Session, error)
	UpdateSessionStatus(ctx context.Context, id int64, status ledger.SessionStatus, closedAt *time.Time) error

	Restaurant(ctx context.Context, id int64) (ledger.Restaurant, error)
	MenuItems(ctx context.Context, restaurantID int64) ([]ledger.MenuItem, error)

	CreateOrder(ctx context.Context, sessionID int64, items []ledger.LineItem) (ledger.Order, error)
	OrdersForSession(ctx context.Context, sessionID int64) ([]ledger.Order, error)
	LineItemsForSession(ctx context.Context, sessionID int64) ([]ledger.LineItem, error)
	GetLineItem(ctx context.Context, id int64) (ledger.LineItem, error)
	UpdateLineItemStatus(ctx context.Context, id int64, status ledger.LineItemStatus) error

	ListDivisions(ctx context.Context, sessionID int64) ([]ledger.PaymentDivision, error)
	GetDivision(ctx context.Context, id uuid.UUID) (ledger.PaymentDivision, error)
	InsertDivision(ctx context.Context, d ledger.PaymentDivision) error
	// UpdateDivisionStatus persists status, note and resolved_at of d.
	UpdateDivisionStatus(ctx context.Context, d ledger.PaymentDivision) error
	PendingDivisionsBefore(ctx context.Context, cutoff time.Time) ([]ledger.PaymentDivision, error)

	// WithSessionLock runs fn while holding the session's lock. Everything fn
	// does through tx commits together, and no other WithSessionLock for the
	// same session runs concurrently. Calls must not nest.
	WithSessionLock(ctx context.Context, sessionID int64, fn func(tx Store) error) error
}

const (
	RoleWaiter  = "GARCOM"
	RoleKitchen = "COZINHA"
	RoleBar     = "BAR"
	RoleManager = "GERENTE"
)

// CanConfirm reports whether role may record a payment outcome.
func CanConfirm(role string) bool {
	return role == RoleWaiter || role == RoleManager
}

// CanEndSession reports whether role may close or cancel a table regardless
// of its balance.
func CanEndSession(role string) bool {
	return role == RoleManager
}

// Staff links a Discord user to a restaurant.
type Staff struct {
	RestaurantID int64  `json:"restaurant_id"`
	UserID       string `json:"user_id"`
	Role         string `json:"role"`
}

// StaffRestaurant is a restaurant as seen by one of its staff.
type StaffRestaurant struct {
	Restaurant ledger.Restaurant `json:"restaurant"`
	Role       string            `json:"role"`
}

var (
	ErrNotStaff       = errors.New("user is not staff of this restaurant")
	ErrRoleNotAllowed = errors.New("staff role not allowed to do this")
)

// Directory holds restaurants, menus and staff. It is written by the seed
// loader and read by the staff surfaces.
type Directory interface {
	UpsertRestaurant(ctx context.Context, r ledger.Restaurant) (ledger.Restaurant, error)
	UpsertMenuItem(ctx context.Context, m ledger.MenuItem) (ledger.MenuItem, error)
	UpsertStaff(ctx context.Context, s Staff) error
	StaffRestaurants(ctx context.Context, userID string) ([]StaffRestaurant, error)
	StaffRole(ctx context.Context, restaurantID int64, userID string) (string, error)
}
