// Package notify is the trigger surface for the external notification
// dispatcher (email/SMS). Delivery itself is out of scope; the default
// implementation only logs what would have been sent.
package notify

import (
	"context"
	"log/slog"

	"github.com/orderflow/storefront/internal/models"
)

type Logger struct {
	log *slog.Logger
}

func NewLogger(log *slog.Logger) *Logger {
	return &Logger{log: log}
}

func (n *Logger) OrderStateChanged(_ context.Context, order *models.Order, previous models.OrderState) {
	n.log.Info("notification: order state changed",
		slog.String("order_uid", order.OrderUID),
		slog.String("customer_id", order.CustomerID),
		slog.String("from", string(previous)),
		slog.String("to", string(order.State)),
	)
}

func (n *Logger) PaymentReminder(_ context.Context, order *models.Order) {
	n.log.Info("notification: payment reminder",
		slog.String("order_uid", order.OrderUID),
		slog.String("customer_id", order.CustomerID),
	)
}
