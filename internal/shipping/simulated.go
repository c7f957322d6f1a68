package shipping

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"

	"github.com/orderflow/storefront/internal/models"
)

var carriers = []string{"usps", "ups", "fedex", "dhl"}

var (
	errUnknownRate     = errors.New("unknown rate id")
	errUnknownShipment = errors.New("unknown shipment")
)

// Simulated is a local stand-in for the shipping aggregator. Rates and
// labels are fabricated; tracking for a purchased label walks forward
// one step per poll until delivered.
type Simulated struct {
	log *slog.Logger

	mu       sync.Mutex
	rates    map[string]RateQuote
	tracking map[string]TrackingStatus
}

func NewSimulated(log *slog.Logger) *Simulated {
	return &Simulated{
		log:      log,
		rates:    make(map[string]RateQuote),
		tracking: make(map[string]TrackingStatus),
	}
}

func (s *Simulated) GetRates(_ context.Context, _ Parcel, _, _ models.Address) ([]RateQuote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	quotes := make([]RateQuote, 0, len(carriers))

	for _, carrier := range carriers {
		quote := RateQuote{
			RateID:       "rate-" + uuid.NewString(),
			Carrier:      carrier,
			ServiceLevel: "ground",
			AmountCents:  int64(gofakeit.Number(500, 3000)),
			Currency:     "USD",
			EstimateDays: gofakeit.Number(2, 7),
		}

		s.rates[quote.RateID] = quote
		quotes = append(quotes, quote)
	}

	return quotes, nil
}

func (s *Simulated) PurchaseLabel(_ context.Context, rateID string) (*ShipmentRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	quote, ok := s.rates[rateID]
	if !ok {
		return nil, &ShippingError{Op: "purchase_label", Retryable: false, Err: errUnknownRate}
	}

	ref := &ShipmentRef{
		ShipmentID:     "shp-" + uuid.NewString(),
		LabelID:        "lbl-" + uuid.NewString(),
		Carrier:        quote.Carrier,
		ServiceLevel:   quote.ServiceLevel,
		TrackingNumber: gofakeit.Numerify("1Z###############"),
	}

	s.tracking[ref.ShipmentID] = TrackingPreTransit

	s.log.Info("label purchased",
		slog.String("shipment_id", ref.ShipmentID),
		slog.String("carrier", ref.Carrier),
		slog.String("tracking_number", ref.TrackingNumber),
	)

	return ref, nil
}

func (s *Simulated) GetTracking(_ context.Context, shipmentRef string) (TrackingStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	status, ok := s.tracking[shipmentRef]
	if !ok {
		return TrackingUnknown, &ShippingError{Op: "get_tracking", Retryable: false, Err: errUnknownShipment}
	}

	switch status {
	case TrackingPreTransit:
		status = TrackingInTransit
	case TrackingInTransit:
		status = TrackingOutForDelivery
	case TrackingOutForDelivery:
		status = TrackingDelivered
	}

	s.tracking[shipmentRef] = status

	return status, nil
}
