// Package override exposes the audited administrative state override.
// It bypasses the lifecycle transition table, so every call is recorded
// in the audit log with the acting admin and a reason.
package override

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"github.com/orderflow/storefront/internal/models"
	strg "github.com/orderflow/storefront/internal/storage"
	resp "github.com/orderflow/storefront/lib/api/response"
	"github.com/orderflow/storefront/lib/logger/sl"
)

type Request struct {
	State  string `json:"state" validate:"required"`
	Actor  string `json:"actor" validate:"required"`
	Reason string `json:"reason" validate:"required"`
}

type Response struct {
	resp.Response
	OrderUID string `json:"order_uid,omitempty"`
	State    string `json:"state,omitempty"`
}

type Overrider interface {
	AdminOverrideState(ctx context.Context, orderUID string, target models.OrderState, actor, reason string) (*models.Order, error)
}

func New(ctx context.Context, log *slog.Logger, engine Overrider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const fn = "handlers.admin.override.New"

		log := log.With(
			slog.String("fn", fn),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		orderUID := chi.URLParam(r, "orderUID")

		var req Request

		if err := render.DecodeJSON(r.Body, &req); err != nil {
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

		order, err := engine.AdminOverrideState(ctx, orderUID, models.OrderState(req.State), req.Actor, req.Reason)
		if errors.Is(err, strg.ErrNoOrder) {
			log.Info("order not found", slog.String("order_uid", orderUID))

			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, resp.Error("order not found"))

			return
		}
		if err != nil {
			log.Error("failed to override state", sl.Err(err))

			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("failed to override state"))

			return
		}

		log.Warn("state overridden",
			slog.String("order_uid", orderUID),
			slog.String("actor", req.Actor),
			slog.String("state", req.State),
		)

		render.JSON(w, r, Response{
			Response: resp.OK(),
			OrderUID: order.OrderUID,
			State:    string(order.State),
		})
	}
}
