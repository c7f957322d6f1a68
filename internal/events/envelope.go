// Package events defines the wire envelope for webhook events buffered
// through the events topic. Both the gateway and the shipping
// aggregator deliveries are wrapped in it; Source selects the decoder.
package events

import (
	"encoding/json"

	"github.com/orderflow/storefront/internal/models"
)

type Envelope struct {
	Source models.WebhookEventSource `json:"source"`
	Event  json.RawMessage           `json:"event"`
}
