package cancel

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"github.com/orderflow/storefront/internal/lifecycle"
	"github.com/orderflow/storefront/internal/models"
	strg "github.com/orderflow/storefront/internal/storage"
	resp "github.com/orderflow/storefront/lib/api/response"
	"github.com/orderflow/storefront/lib/logger/sl"
)

type Request struct {
	Actor string `json:"actor" validate:"required"`
}

type Response struct {
	resp.Response
	OrderUID string `json:"order_uid,omitempty"`
	State    string `json:"state,omitempty"`
}

type Canceller interface {
	RequestCancellation(ctx context.Context, orderUID, actor string) (*models.Order, error)
}

func New(ctx context.Context, log *slog.Logger, engine Canceller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const fn = "handlers.order.cancel.New"

		log := log.With(
			slog.String("fn", fn),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		orderUID := chi.URLParam(r, "orderUID")

		var req Request

		err := render.DecodeJSON(r.Body, &req)
		if err != nil {
			log.Error("failed to decode json body", sl.Err(err))

			render.JSON(w, r, resp.Error("failed to decode request"))

			return
		}

		if err := validator.New().Struct(req); err != nil {
			validateErr := err.(validator.ValidationErrors)

			log.Error("invalid request", sl.Err(err))

			render.JSON(w, r, resp.ValidationError(validateErr))

			return
		}

		order, err := engine.RequestCancellation(ctx, orderUID, req.Actor)

		var invalidState *lifecycle.InvalidOrderStateError

		switch {
		case errors.Is(err, strg.ErrNoOrder):
			log.Info("order not found", slog.String("order_uid", orderUID))

			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, resp.Error("order not found"))

			return

		case errors.As(err, &invalidState):
			log.Info("cancellation blocked",
				slog.String("order_uid", orderUID),
				slog.String("blocking_state", string(invalidState.Current)),
			)

			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, resp.Error(invalidState.Error()))

			return

		case err != nil:
			log.Error("failed to cancel order", sl.Err(err))

			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("failed to cancel order"))

			return
		}

		log.Info("order cancelled", slog.String("order_uid", orderUID))

		render.JSON(w, r, Response{
			Response: resp.OK(),
			OrderUID: order.OrderUID,
			State:    string(order.State),
		})
	}
}
