package lifecycle

import (
	"context"
	"time"

	"github.com/orderflow/storefront/internal/models"
)

// OrderStore persists orders. UpdateOrder must reject writes carrying a
// stale version with storage.ErrVersionConflict.
type OrderStore interface {
	SaveOrder(ctx context.Context, order *models.Order) error
	UpdateOrder(ctx context.Context, order *models.Order) error
	GetOrder(ctx context.Context, orderUID string) (*models.Order, error)
	ListOrdersInState(ctx context.Context, state models.OrderState, enteredBefore time.Time) ([]*models.Order, error)
	ArchiveOrders(ctx context.Context, before time.Time) (int64, error)
}

type PaymentStore interface {
	SavePayment(ctx context.Context, payment *models.Payment) error
	UpdatePayment(ctx context.Context, payment *models.Payment) error
	GetPaymentByTxnRef(ctx context.Context, txnRef string) (*models.Payment, error)
	PaymentsForOrder(ctx context.Context, orderUID string) ([]*models.Payment, error)
	SaveRefund(ctx context.Context, refund *models.Refund) error
	UpdateRefund(ctx context.Context, refund *models.Refund) error
	GetRefundByRef(ctx context.Context, externalRef string) (*models.Refund, error)
	RefundsForPayment(ctx context.Context, paymentID string) ([]*models.Refund, error)
}

// WebhookStore is the idempotency boundary for at-least-once webhook
// delivery. InsertWebhookEvent returns false when the external id was
// already recorded; the unique constraint on the external id column is
// what makes duplicate concurrent deliveries resolve to one processing.
type WebhookStore interface {
	InsertWebhookEvent(ctx context.Context, event *models.WebhookEvent) (bool, error)
	MarkWebhookProcessed(ctx context.Context, externalID string, processingErr string) error
}

type ShipmentStore interface {
	SaveShipment(ctx context.Context, rec *models.ShipmentRecord) error
	UpdateShipment(ctx context.Context, rec *models.ShipmentRecord) error
	GetShipmentByRef(ctx context.Context, shipmentRef string) (*models.ShipmentRecord, error)
	ListActiveShipments(ctx context.Context) ([]*models.ShipmentRecord, error)
}

type AuditStore interface {
	SaveAuditEntry(ctx context.Context, entry *models.AuditEntry) error
}

// Store is the full ledger surface the engine drives.
type Store interface {
	OrderStore
	PaymentStore
	WebhookStore
	ShipmentStore
	AuditStore
}

// StockReserver holds, releases and commits inventory for order lines.
// Reserve is all-or-nothing across lines; Release is idempotent;
// Commit makes the decrement permanent. Restock is the compensation
// path for cancellations after the reservation was committed.
type StockReserver interface {
	Reserve(ctx context.Context, orderUID string, lines []models.ReservedLine) (string, error)
	Release(ctx context.Context, token string) error
	Commit(ctx context.Context, token string) error
	Restock(ctx context.Context, lines []models.ReservedLine) error
}

// OrderCache is the read cache invalidated on every state transition.
type OrderCache interface {
	SaveOrder(ctx context.Context, order *models.Order) error
	Invalidate(ctx context.Context, orderUID string) error
}

// Notifier is the external notification dispatcher (email/SMS). The
// engine only triggers it; delivery is out of scope.
type Notifier interface {
	OrderStateChanged(ctx context.Context, order *models.Order, previous models.OrderState)
	PaymentReminder(ctx context.Context, order *models.Order)
}
