// Package fulfill exposes the fulfillment triggers: moving a paid
// order into processing and purchasing the shipping label.
package fulfill

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/orderflow/storefront/internal/lifecycle"
	"github.com/orderflow/storefront/internal/models"
	"github.com/orderflow/storefront/internal/shipping"
	strg "github.com/orderflow/storefront/internal/storage"
	resp "github.com/orderflow/storefront/lib/api/response"
	"github.com/orderflow/storefront/lib/logger/sl"
)

type Response struct {
	resp.Response
	OrderUID       string `json:"order_uid,omitempty"`
	State          string `json:"state,omitempty"`
	TrackingNumber string `json:"tracking_number,omitempty"`
}

type Engine interface {
	StartProcessing(ctx context.Context, orderUID string) (*models.Order, error)
	AdvanceShipment(ctx context.Context, orderUID, carrier, serviceLevel string) (*models.Order, error)
}

// NewStart moves a paid order into processing.
func NewStart(ctx context.Context, log *slog.Logger, engine Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const fn = "handlers.order.fulfill.NewStart"

		log := log.With(
			slog.String("fn", fn),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		orderUID := chi.URLParam(r, "orderUID")

		order, err := engine.StartProcessing(ctx, orderUID)
		if err != nil {
			writeError(w, r, log, orderUID, err, "failed to start processing")

			return
		}

		render.JSON(w, r, Response{
			Response: resp.OK(),
			OrderUID: order.OrderUID,
			State:    string(order.State),
		})
	}
}

type ShipRequest struct {
	Carrier      string `json:"carrier"`
	ServiceLevel string `json:"service_level"`
}

// NewShip purchases a label and moves the order to shipped. A
// retryable shipping failure leaves the order in processing and is
// reported as 502 so the caller can retry.
func NewShip(ctx context.Context, log *slog.Logger, engine Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const fn = "handlers.order.fulfill.NewShip"

		log := log.With(
			slog.String("fn", fn),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		orderUID := chi.URLParam(r, "orderUID")

		var req ShipRequest

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Error("failed to decode json body", sl.Err(err))

			render.JSON(w, r, resp.Error("failed to decode request"))

			return
		}

		order, err := engine.AdvanceShipment(ctx, orderUID, req.Carrier, req.ServiceLevel)

		var shippingErr *shipping.ShippingError

		switch {
		case errors.As(err, &shippingErr):
			log.Error("label purchase failed", sl.Err(err))

			w.WriteHeader(http.StatusBadGateway)
			render.JSON(w, r, resp.Error(shippingErr.Error()))

			return

		case err != nil:
			writeError(w, r, log, orderUID, err, "failed to advance shipment")

			return
		}

		render.JSON(w, r, Response{
			Response:       resp.OK(),
			OrderUID:       order.OrderUID,
			State:          string(order.State),
			TrackingNumber: order.TrackingNumber,
		})
	}
}

func writeError(w http.ResponseWriter, r *http.Request, log *slog.Logger, orderUID string, err error, fallback string) {
	var invalidState *lifecycle.InvalidOrderStateError

	switch {
	case errors.Is(err, strg.ErrNoOrder):
		log.Info("order not found", slog.String("order_uid", orderUID))

		w.WriteHeader(http.StatusNotFound)
		render.JSON(w, r, resp.Error("order not found"))

	case errors.As(err, &invalidState):
		log.Info("transition blocked",
			slog.String("order_uid", orderUID),
			slog.String("blocking_state", string(invalidState.Current)),
		)

		w.WriteHeader(http.StatusConflict)
		render.JSON(w, r, resp.Error(invalidState.Error()))

	default:
		log.Error(fallback, sl.Err(err))

		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, resp.Error(fallback))
	}
}
