package shipment

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/orderflow/storefront/internal/gateway"
	"github.com/orderflow/storefront/internal/shipping"
	resp "github.com/orderflow/storefront/lib/api/response"
	"github.com/orderflow/storefront/lib/logger/sl"
)

const SignatureHeader = "X-Webhook-Signature"

type Ingester interface {
	HandleShippingWebhook(ctx context.Context, evt shipping.TrackingEvent) error
}

// New has the same acknowledgment contract as the payment webhook
// handler: 200 regardless of the internal processing outcome.
func New(ctx context.Context, log *slog.Logger, engine Ingester, secret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const fn = "handlers.webhook.shipment.New"

		log := log.With(
			slog.String("fn", fn),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		body, err := io.ReadAll(r.Body)
		if err != nil {
			log.Error("failed to read body", sl.Err(err))

			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, resp.Error("failed to read body"))

			return
		}

		if err := gateway.VerifySignature(body, r.Header.Get(SignatureHeader), secret); err != nil {
			log.Warn("signature verification failed", sl.Err(err))

			w.WriteHeader(http.StatusUnauthorized)
			render.JSON(w, r, resp.Error("bad signature"))

			return
		}

		var evt shipping.TrackingEvent
		if err := json.Unmarshal(body, &evt); err != nil {
			log.Error("failed to decode event", sl.Err(err))

			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, resp.Error("failed to decode event"))

			return
		}

		if err := engine.HandleShippingWebhook(ctx, evt); err != nil {
			log.Error("failed to ingest event", sl.Err(err))
		}

		render.JSON(w, r, resp.OK())
	}
}
