// Package gateway defines the contract with the external payment
// processor. The processor delivers events at-least-once and possibly
// out of order; deduplication happens in the webhook event store, not
// here.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/orderflow/storefront/internal/models"
)

// Gateway is the outbound surface of the payment processor.
// Implementations must honor the context deadline: no call may block
// past the configured timeout.
type Gateway interface {
	// Charge initiates a charge for the full order total and returns
	// the gateway's transaction reference. Confirmation arrives later
	// as a webhook event.
	Charge(ctx context.Context, order *models.Order, method string) (string, error)

	// Refund requests a refund against a captured transaction and
	// returns the gateway's refund reference.
	Refund(ctx context.Context, txnRef string, amountCents int64) (string, error)
}

// WebhookEvent is a decoded gateway webhook payload. ExternalID is
// globally unique per event and is the deduplication key.
type WebhookEvent struct {
	ExternalID  string `json:"event_id"`
	Type        string `json:"type"`
	OrderUID    string `json:"order_uid"`
	TxnRef      string `json:"transaction"`
	RefundRef   string `json:"refund_ref,omitempty"`
	AmountCents int64  `json:"amount"`
	Currency    string `json:"currency"`
}

// Event types delivered by the gateway.
const (
	EventChargeCompleted = "charge.completed"
	EventChargeFailed    = "charge.failed"
	EventRefundCompleted = "refund.completed"
	EventRefundFailed    = "refund.failed"
)

// PaymentError is returned for failed gateway calls. Retryable is true
// for transient transport failures and timeouts; declines are terminal.
type PaymentError struct {
	Op        string
	Retryable bool
	Err       error
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("payment gateway %s failed: %v", e.Op, e.Err)
}

func (e *PaymentError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a transient payment failure.
func IsRetryable(err error) bool {
	var pe *PaymentError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}
