package router

import (
	"context"
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/orderflow/storefront/internal/http-server/handlers/admin/override"
	adminstock "github.com/orderflow/storefront/internal/http-server/handlers/admin/stock"
	"github.com/orderflow/storefront/internal/http-server/handlers/checkout"
	"github.com/orderflow/storefront/internal/http-server/handlers/order/cancel"
	"github.com/orderflow/storefront/internal/http-server/handlers/order/fulfill"
	"github.com/orderflow/storefront/internal/http-server/handlers/order/get"
	"github.com/orderflow/storefront/internal/http-server/handlers/order/refund"
	"github.com/orderflow/storefront/internal/http-server/handlers/webhook/payment"
	"github.com/orderflow/storefront/internal/http-server/handlers/webhook/shipment"
	mwLogger "github.com/orderflow/storefront/internal/http-server/middleware/logger"
	"github.com/orderflow/storefront/internal/lifecycle"
)

// Secrets carries the per-source webhook signing secrets.
type Secrets struct {
	PaymentWebhook  string
	ShippingWebhook string
}

// AdminStore is the storage surface behind the admin routes.
type AdminStore interface {
	adminstock.Adjuster
	adminstock.AuditWriter
}

// New wires all handlers into a chi router. The engine is the single
// entry point for every mutation; cache and store back the read path.
func New(
	ctx context.Context,
	log *slog.Logger,
	engine *lifecycle.Engine,
	cache get.OrderGetter,
	store get.OrderGetter,
	admin AdminStore,
	secrets Secrets,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(mwLogger.New(log))

	r.Post("/checkout", checkout.New(ctx, log, engine))
	r.Post("/order", get.New(ctx, log, cache, store))

	r.Route("/orders/{orderUID}", func(r chi.Router) {
		r.Post("/cancel", cancel.New(ctx, log, engine))
		r.Post("/refund", refund.New(ctx, log, engine))
		r.Post("/process", fulfill.NewStart(ctx, log, engine))
		r.Post("/ship", fulfill.NewShip(ctx, log, engine))
	})

	r.Post("/webhooks/payment", payment.New(ctx, log, engine, secrets.PaymentWebhook))
	r.Post("/webhooks/shipping", shipment.New(ctx, log, engine, secrets.ShippingWebhook))

	r.Post("/admin/orders/{orderUID}/override", override.New(ctx, log, engine))
	r.Post("/admin/stock/{productID}", adminstock.New(ctx, log, admin, admin))

	return r
}
