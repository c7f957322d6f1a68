package models

import "time"

// StockItem is the inventory row for a single product. Available is the
// quantity free to sell, Reserved the quantity currently held by open
// reservations.
type StockItem struct {
	ProductID         string    `json:"product_id" db:"product_id"`
	Available         int       `json:"available" db:"available"`
	Reserved          int       `json:"reserved" db:"reserved"`
	LowStockThreshold int       `json:"low_stock_threshold" db:"low_stock_threshold"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

func (s *StockItem) InStock() bool { return s.Available > 0 }

func (s *StockItem) LowStock() bool { return s.Available <= s.LowStockThreshold }

type ReservationState string

const (
	ReservationHeld      ReservationState = "held"
	ReservationReleased  ReservationState = "released"
	ReservationCommitted ReservationState = "committed"
)

type ReservedLine struct {
	ProductID string `json:"product_id" db:"product_id"`
	Quantity  int    `json:"quantity" db:"quantity"`
}

// Reservation is a temporary hold on inventory preventing oversell
// between checkout and payment confirmation.
type Reservation struct {
	Token     string           `json:"token" db:"token"`
	OrderUID  string           `json:"order_uid" db:"order_uid"`
	Lines     []ReservedLine   `json:"lines" db:"-"`
	State     ReservationState `json:"state" db:"state"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt time.Time        `json:"updated_at" db:"updated_at"`
}

// AuditEntry records an administrative override outside the normal
// lifecycle transitions, so invariants are never bypassed silently.
type AuditEntry struct {
	ID        int64     `json:"id" db:"id"`
	OrderUID  string    `json:"order_uid" db:"order_uid"`
	Actor     string    `json:"actor" db:"actor"`
	Action    string    `json:"action" db:"action"`
	FromState string    `json:"from_state" db:"from_state"`
	ToState   string    `json:"to_state" db:"to_state"`
	Reason    string    `json:"reason" db:"reason"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
