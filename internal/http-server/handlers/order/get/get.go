package get

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"github.com/orderflow/storefront/internal/models"
	strg "github.com/orderflow/storefront/internal/storage"
	resp "github.com/orderflow/storefront/lib/api/response"
	"github.com/orderflow/storefront/lib/logger/sl"
)

type Request struct {
	ID string `json:"id" validate:"required,uuid"`
}

type Response struct {
	resp.Response
	Order []byte `json:"order"`
}

type OrderGetter interface {
	GetOrder(ctx context.Context, orderUID string) (*models.Order, error)
}

// New returns a read-through handler: the cache is consulted first and
// the ledger store on a miss.
func New(ctx context.Context, log *slog.Logger, cache OrderGetter, storage OrderGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const fn = "handlers.order.get.New"

		log = log.With(
			slog.String("fn", fn),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req Request

		err := render.DecodeJSON(r.Body, &req)
		if err != nil {
			log.Error("failed to decode json body", sl.Err(err))

			render.JSON(w, r, resp.Error("failed to decode request"))

			return
		}

		log.Info("request body decoded", slog.Any("request", req))

		if err := validator.New().Struct(req); err != nil {
			validateErr := err.(validator.ValidationErrors)

			log.Error("invalid request", sl.Err(err))

			render.JSON(w, r, resp.ValidationError(validateErr))

			return
		}

		var order *models.Order

		order, err = cache.GetOrder(ctx, req.ID)
		if errors.Is(err, strg.ErrNoOrder) {
			order, err = storage.GetOrder(ctx, req.ID)
			if errors.Is(err, strg.ErrNoOrder) {
				log.Info("order not found", slog.String("order_uid", req.ID))

				render.JSON(w, r, resp.Error("order not found"))

				return
			}
		}

		if err != nil {
			log.Error("failed to get order", sl.Err(err))

			render.JSON(w, r, resp.Error("failed to get order"))

			return
		}

		log.Info("got order successfully", slog.String("order_uid", req.ID))

		orderJSON, err := json.Marshal(order)
		if err != nil {
			log.Error("failed to marshal order", sl.Err(err))

			render.JSON(w, r, resp.Error("internal error"))

			return
		}

		render.JSON(w, r, Response{
			Response: resp.OK(),
			Order:    orderJSON,
		})
	}
}
