package models

import "time"

// WebhookEventSource names the external system a webhook came from.
type WebhookEventSource string

const (
	SourcePayment  WebhookEventSource = "payment"
	SourceShipping WebhookEventSource = "shipping"
)

// WebhookEvent is the deduplication record for inbound webhook deliveries.
// ExternalID carries a unique constraint in the store: the same external
// event inserted twice resolves to exactly one processing, which is the
// correctness boundary for at-least-once delivery from the gateway and
// the shipping aggregator.
type WebhookEvent struct {
	ID          int64              `json:"id" db:"id"`
	ExternalID  string             `json:"external_id" db:"external_id"`
	Source      WebhookEventSource `json:"source" db:"source"`
	EventType   string             `json:"event_type" db:"event_type"`
	Payload     []byte             `json:"payload" db:"payload"`
	Processed   bool               `json:"processed" db:"processed"`
	ProcessedAt *time.Time         `json:"processed_at,omitempty" db:"processed_at"`
	Error       string             `json:"error,omitempty" db:"error"`
	ReceivedAt  time.Time          `json:"received_at" db:"received_at"`
}
