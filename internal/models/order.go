package models

import "time"

// OrderState is the lifecycle state of an order. The set of legal
// transitions between states is owned by the lifecycle engine.
type OrderState string

const (
	StatePending           OrderState = "pending"
	StateAwaitingPayment   OrderState = "awaiting_payment"
	StatePaid              OrderState = "paid"
	StateProcessing        OrderState = "processing"
	StateShipped           OrderState = "shipped"
	StateDelivered         OrderState = "delivered"
	StateCompleted         OrderState = "completed"
	StateCancelled         OrderState = "cancelled"
	StateRefunded          OrderState = "refunded"
	StatePartiallyRefunded OrderState = "partially_refunded"
	StateFailed            OrderState = "failed"
)

// IsTerminal reports whether no further lifecycle transition is defined
// from this state.
func (s OrderState) IsTerminal() bool {
	switch s {
	case StateCompleted, StateCancelled, StateRefunded, StateFailed:
		return true
	}
	return false
}

type Order struct {
	OrderUID      string     `json:"order_uid" db:"order_uid"`
	CustomerID    string     `json:"customer_id" db:"customer_id"`
	State         OrderState `json:"state" db:"state"`
	SubtotalCents int64      `json:"subtotal" db:"subtotal_cents"`
	ShippingCents int64      `json:"shipping_cost" db:"shipping_cents"`
	DiscountCents int64      `json:"discount_amount" db:"discount_cents"`
	TotalCents    int64      `json:"total" db:"total_cents"`
	Currency      string     `json:"currency" db:"currency"`

	Items []LineItem `json:"items" db:"-"`

	// Address snapshots are copied at creation time and never change
	// afterwards, even if the customer edits their saved addresses.
	BillingAddress  Address `json:"billing_address" db:"-"`
	ShippingAddress Address `json:"shipping_address" db:"-"`

	Carrier        string `json:"carrier,omitempty" db:"carrier"`
	ServiceLevel   string `json:"service_level,omitempty" db:"service_level"`
	ShipmentRef    string `json:"shipment_ref,omitempty" db:"shipment_ref"`
	TrackingNumber string `json:"tracking_number,omitempty" db:"tracking_number"`

	ReservationToken string `json:"-" db:"reservation_token"`

	CreatedAt      time.Time `json:"date_created" db:"created_at"`
	UpdatedAt      time.Time `json:"date_updated" db:"updated_at"`
	StateEnteredAt time.Time `json:"state_entered_at" db:"state_entered_at"`

	// Version is bumped on every persisted mutation; the store rejects
	// writes carrying a stale version.
	Version  int64 `json:"-" db:"version"`
	Archived bool  `json:"-" db:"archived"`
}

type LineItem struct {
	OrderUID       string `json:"-" db:"order_uid"`
	ProductID      string `json:"product_id" db:"product_id"`
	Name           string `json:"name" db:"name"`
	Quantity       int    `json:"quantity" db:"quantity"`
	UnitPriceCents int64  `json:"unit_price" db:"unit_price_cents"`
}

type Address struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Zip     string `json:"zip"`
	City    string `json:"city"`
	Address string `json:"address"`
	Region  string `json:"region"`
	Email   string `json:"email"`
}

// RecalculateTotal recomputes subtotal and total from the line items.
// Called only at creation and on explicit recalculation, so the stored
// total never drifts silently.
func (o *Order) RecalculateTotal() {
	var subtotal int64
	for _, item := range o.Items {
		subtotal += item.UnitPriceCents * int64(item.Quantity)
	}

	o.SubtotalCents = subtotal
	o.TotalCents = subtotal + o.ShippingCents - o.DiscountCents
}

// SetState records a state change together with the entry timestamp.
func (o *Order) SetState(s OrderState, now time.Time) {
	o.State = s
	o.StateEnteredAt = now
	o.UpdatedAt = now
}
