// Package shipping defines the contract with the external multi-carrier
// shipping aggregator: rate quotes, label purchase and tracking. The
// aggregator delivers tracking webhooks at-least-once; deduplication is
// handled by the webhook event store.
package shipping

import (
	"context"
	"errors"
	"fmt"

	"github.com/orderflow/storefront/internal/models"
)

// Aggregator is the outbound surface of the shipping provider.
// Implementations must honor the context deadline.
type Aggregator interface {
	GetRates(ctx context.Context, parcel Parcel, from, to models.Address) ([]RateQuote, error)
	PurchaseLabel(ctx context.Context, rateID string) (*ShipmentRef, error)
	GetTracking(ctx context.Context, shipmentRef string) (TrackingStatus, error)
}

type Parcel struct {
	WeightGrams int `json:"weight_grams"`
	LengthMM    int `json:"length_mm"`
	WidthMM     int `json:"width_mm"`
	HeightMM    int `json:"height_mm"`
}

type RateQuote struct {
	RateID       string `json:"rate_id"`
	Carrier      string `json:"carrier"`
	ServiceLevel string `json:"service_level"`
	AmountCents  int64  `json:"amount"`
	Currency     string `json:"currency"`
	EstimateDays int    `json:"estimate_days"`
}

// ShipmentRef identifies a purchased label at the aggregator.
type ShipmentRef struct {
	ShipmentID     string `json:"shipment_id"`
	LabelID        string `json:"label_id"`
	Carrier        string `json:"carrier"`
	ServiceLevel   string `json:"service_level"`
	TrackingNumber string `json:"tracking_number"`
}

// TrackingStatus is the aggregator's normalized tracking state.
type TrackingStatus string

const (
	TrackingUnknown        TrackingStatus = "unknown"
	TrackingPreTransit     TrackingStatus = "pre_transit"
	TrackingInTransit      TrackingStatus = "in_transit"
	TrackingOutForDelivery TrackingStatus = "out_for_delivery"
	TrackingDelivered      TrackingStatus = "delivered"
	TrackingReturned       TrackingStatus = "returned"
	TrackingFailure        TrackingStatus = "failure"
)

// Final reports whether the parcel has reached its destination.
func (s TrackingStatus) Final() bool { return s == TrackingDelivered }

// TrackingEvent is a decoded tracking webhook. ExternalID is the
// deduplication key, unique per delivery attempt at the aggregator.
type TrackingEvent struct {
	ExternalID  string         `json:"event_id"`
	ShipmentRef string         `json:"shipment_ref"`
	Status      TrackingStatus `json:"status"`
}

// ShippingError is returned for failed aggregator calls. Retryable
// failures are retried with backoff up to a bounded attempt count,
// after which the order stays in processing for manual intervention.
type ShippingError struct {
	Op        string
	Retryable bool
	Err       error
}

func (e *ShippingError) Error() string {
	return fmt.Sprintf("shipping aggregator %s failed: %v", e.Op, e.Err)
}

func (e *ShippingError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a transient shipping failure.
func IsRetryable(err error) bool {
	var se *ShippingError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}
