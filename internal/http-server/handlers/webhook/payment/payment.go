package payment

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/orderflow/storefront/internal/gateway"
	resp "github.com/orderflow/storefront/lib/api/response"
	"github.com/orderflow/storefront/lib/logger/sl"
)

// SignatureHeader carries the gateway's HMAC of the raw body.
const SignatureHeader = "X-Webhook-Signature"

type Ingester interface {
	HandlePaymentWebhook(ctx context.Context, evt gateway.WebhookEvent) error
}

// New verifies the gateway signature and hands the event to the engine.
// The response is 200 regardless of the internal processing outcome:
// processing errors are recorded on the stored event, and failing the
// HTTP request would only cause a redelivery storm. Only a bad
// signature or an unreadable payload is rejected.
func New(ctx context.Context, log *slog.Logger, engine Ingester, secret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const fn = "handlers.webhook.payment.New"

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

		var evt gateway.WebhookEvent
		if err := json.Unmarshal(body, &evt); err != nil {
			log.Error("failed to decode event", sl.Err(err))

			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, resp.Error("failed to decode event"))

			return
		}

		if err := engine.HandlePaymentWebhook(ctx, evt); err != nil {
			// Ingestion infrastructure failure; the gateway will retry.
			log.Error("failed to ingest event", sl.Err(err))
		}

		render.JSON(w, r, resp.OK())
	}
}
