package gateway

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/orderflow/storefront/internal/models"
)

// Simulated is a local stand-in for the payment processor. It accepts
// every charge and refund request and returns a fresh reference;
// confirmation events arrive separately through the webhook pipeline
// (see cmd/event-generator).
type Simulated struct {
	log *slog.Logger
}

func NewSimulated(log *slog.Logger) *Simulated {
	return &Simulated{log: log}
}

func (s *Simulated) Charge(_ context.Context, order *models.Order, method string) (string, error) {
	txnRef := "txn-" + uuid.NewString()

	s.log.Info("charge requested",
		slog.String("order_uid", order.OrderUID),
		slog.String("method", method),
		slog.Int64("amount", order.TotalCents),
		slog.String("txn_ref", txnRef),
	)

	return txnRef, nil
}

func (s *Simulated) Refund(_ context.Context, txnRef string, amountCents int64) (string, error) {
	refundRef := "rfnd-" + uuid.NewString()

	s.log.Info("refund requested",
		slog.String("txn_ref", txnRef),
		slog.Int64("amount", amountCents),
		slog.String("refund_ref", refundRef),
	)

	return refundRef, nil
}
