package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type SessionStatus string

const (
	SessionOpen       SessionStatus = "OPEN"
	SessionInProgress SessionStatus = "IN_PROGRESS"
	SessionClosed     SessionStatus = "CLOSED"
	SessionCancelled  SessionStatus = "CANCELLED"
)

// Origin tells how the table was opened.
type Origin string

const (
	OriginQRCode      Origin = "QRCODE"
	OriginWalkIn      Origin = "WALK_IN"
	OriginMap         Origin = "MAP"
	OriginReservation Origin = "RESERVATION"
)

type LineItemStatus string

const (
	ItemCreated       LineItemStatus = "CREATED"
	ItemSentToKitchen LineItemStatus = "SENT_TO_KITCHEN"
	ItemPreparing     LineItemStatus = "PREPARING"
	ItemReady         LineItemStatus = "READY"
	ItemDelivered     LineItemStatus = "DELIVERED"
	ItemCancelled     LineItemStatus = "CANCELLED"
)

type DivisionStatus string

const (
	DivisionPending DivisionStatus = "PENDING"
	DivisionPaid    DivisionStatus = "PAID"
	DivisionFailed  DivisionStatus = "FAILED"
)

type Restaurant struct {
	ID            int64           `json:"id"`
	TradeName     string          `json:"trade_name"`
	ServiceFeePct decimal.Decimal `json:"service_fee_pct"`
	Currency      string          `json:"currency"`
}

type MenuItem struct {
	ID           int64           `json:"id"`
	RestaurantID int64           `json:"restaurant_id"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	Active       bool            `json:"active"`
}

type Session struct {
	ID           int64         `json:"id"`
	RestaurantID int64         `json:"restaurant_id"`
	TableRef     string        `json:"table_ref"`
	Origin       Origin        `json:"origin"`
	Status       SessionStatus `json:"status"`
	ShareToken   string        `json:"share_token"`
	CreatedAt    time.Time     `json:"created_at"`
	ClosedAt     *time.Time    `json:"closed_at,omitempty"`
}

// Terminal reports whether no further transition is possible.
func (s Session) Terminal() bool {
	return s.Status == SessionClosed || s.Status == SessionCancelled
}

type Order struct {
	ID        int64      `json:"id"`
	SessionID int64      `json:"session_id"`
	CreatedAt time.Time  `json:"created_at"`
	Items     []LineItem `json:"items"`
}

type LineItem struct {
	ID         int64           `json:"id"`
	OrderID    int64           `json:"order_id"`
	SessionID  int64           `json:"session_id"`
	MenuItemID int64           `json:"menu_item_id"`
	Name       string          `json:"name"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Quantity   int             `json:"quantity"`
	Status     LineItemStatus  `json:"status"`
	Notes      string          `json:"notes,omitempty"`
}

// Total is unit price times quantity.
func (li LineItem) Total() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// Billable reports whether the item is charged to the session.
func (li LineItem) Billable() bool {
	return li.Status != ItemCancelled
}

// Pending reports whether the kitchen may still deliver (and charge) this item.
func (li LineItem) Pending() bool {
	switch li.Status {
	case ItemCreated, ItemSentToKitchen, ItemPreparing, ItemReady:
		return true
	}
	return false
}

type PaymentDivision struct {
	ID          uuid.UUID       `json:"id"`
	SessionID   int64           `json:"session_id"`
	PayerName   string          `json:"payer_name"`
	Amount      decimal.Decimal `json:"amount"`
	Status      DivisionStatus  `json:"status"`
	Strategy    string          `json:"strategy"`
	LineItemIDs []int64         `json:"line_item_ids,omitempty"`
	Note        string          `json:"note,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	ResolvedAt  *time.Time      `json:"resolved_at,omitempty"`
}

// Snapshot is the session-scoped state every ledger computation works on.
// It is loaded by the caller and never retained by the ledger.
type Snapshot struct {
	Session       Session
	Items         []LineItem
	Divisions     []PaymentDivision
	ServiceFeePct decimal.Decimal
}

type Bill struct {
	Subtotal      decimal.Decimal `json:"subtotal"`
	ServiceFeePct decimal.Decimal `json:"serviceFeePct"`
	ServiceFee    decimal.Decimal `json:"serviceFee"`
	TotalDue      decimal.Decimal `json:"totalDue"`
}

type Status struct {
	SessionID       int64             `json:"sessionId"`
	SessionStatus   SessionStatus     `json:"sessionStatus"`
	Bill            Bill              `json:"bill"`
	TotalAmount     decimal.Decimal   `json:"totalAmount"`
	PaidAmount      decimal.Decimal   `json:"paidAmount"`
	PendingAmount   decimal.Decimal   `json:"pendingAmount"`
	RemainingAmount decimal.Decimal   `json:"remainingAmount"`
	AvailableAmount decimal.Decimal   `json:"availableAmount"`
	IsComplete      bool              `json:"isComplete"`
	Divisions       []PaymentDivision `json:"divisions"`
}
