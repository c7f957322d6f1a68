package storage

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoOrder         = errors.New("no order found")
	ErrEmptyOrder      = errors.New("no items in order")
	ErrNoPayment       = errors.New("no payment found")
	ErrNoRefund        = errors.New("no refund found")
	ErrNoShipment      = errors.New("no shipment found")
	ErrNoWebhookEvent  = errors.New("no webhook event found")
	ErrNoStockItem     = errors.New("no stock item found")
	ErrNoReservation   = errors.New("no reservation found")
	ErrNegativeStock   = errors.New("adjustment would make stock negative")
	ErrVersionConflict = errors.New("stale order version")
)

// InsufficientStockError reports which lines could not be reserved.
// Reservation is all-or-nothing: when this error is returned no quantity
// has been decremented for any line.
type InsufficientStockError struct {
	ProductIDs []string
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for products: %s", strings.Join(e.ProductIDs, ", "))
}
