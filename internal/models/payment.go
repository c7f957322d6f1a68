package models

import "time"

type PaymentState string

const (
	PaymentPending           PaymentState = "pending"
	PaymentProcessing        PaymentState = "processing"
	PaymentCompleted         PaymentState = "completed"
	PaymentFailed            PaymentState = "failed"
	PaymentCancelled         PaymentState = "cancelled"
	PaymentRefunded          PaymentState = "refunded"
	PaymentPartiallyRefunded PaymentState = "partially_refunded"
)

// IsTerminal reports whether the payment can no longer change state,
// except for refund linkage.
func (s PaymentState) IsTerminal() bool {
	switch s {
	case PaymentCompleted, PaymentFailed, PaymentCancelled,
		PaymentRefunded, PaymentPartiallyRefunded:
		return true
	}
	return false
}

// Payment is a single charge attempt against an order. An order may
// accumulate several failed attempts but at most one non-failed payment.
type Payment struct {
	ID            string       `json:"id" db:"id"`
	OrderUID      string       `json:"order_uid" db:"order_uid"`
	AmountCents   int64        `json:"amount" db:"amount_cents"`
	Currency      string       `json:"currency" db:"currency"`
	GatewayTxnRef string       `json:"transaction" db:"gateway_txn_ref"`
	State         PaymentState `json:"state" db:"state"`
	CreatedAt     time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at" db:"updated_at"`
}

type RefundState string

const (
	RefundPending   RefundState = "pending"
	RefundCompleted RefundState = "completed"
	RefundFailed    RefundState = "failed"
)

type Refund struct {
	ID          string      `json:"id" db:"id"`
	PaymentID   string      `json:"payment_id" db:"payment_id"`
	AmountCents int64       `json:"amount" db:"amount_cents"`
	State       RefundState `json:"state" db:"state"`
	ExternalRef string      `json:"external_ref" db:"external_ref"`
	IssuedBy    string      `json:"issued_by" db:"issued_by"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at" db:"updated_at"`
}
