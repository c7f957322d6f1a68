// Package stock exposes the audited manual stock adjustment. Every
// adjustment is recorded in the audit log with the acting admin and a
// reason; the handler also flags when the new quantity is at or below
// the low-stock threshold.
package stock

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

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
	Delta  int    `json:"delta" validate:"required"`
	Actor  string `json:"actor" validate:"required"`
	Reason string `json:"reason" validate:"required"`
}

type Response struct {
	resp.Response
	ProductID string `json:"product_id,omitempty"`
	Available int    `json:"available"`
	LowStock  bool   `json:"low_stock,omitempty"`
}

type Adjuster interface {
	AdjustStock(ctx context.Context, productID string, delta int) (models.StockItem, error)
}

type AuditWriter interface {
	SaveAuditEntry(ctx context.Context, entry *models.AuditEntry) error
}

func New(ctx context.Context, log *slog.Logger, stock Adjuster, audit AuditWriter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const fn = "handlers.admin.stock.New"

		log := log.With(
			slog.String("fn", fn),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		productID := chi.URLParam(r, "productID")

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

		item, err := stock.AdjustStock(ctx, productID, req.Delta)
		if errors.Is(err, strg.ErrNegativeStock) {
			log.Info("adjustment rejected",
				slog.String("product_id", productID),
				slog.Int("delta", req.Delta),
			)

			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, resp.Error(err.Error()))

			return
		}
		if err != nil {
			log.Error("failed to adjust stock", sl.Err(err))

			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("failed to adjust stock"))

			return
		}

		entry := &models.AuditEntry{
			OrderUID:  "",
			Actor:     req.Actor,
			Action:    "stock_adjustment:" + productID,
			Reason:    req.Reason,
			CreatedAt: time.Now().UTC(),
		}
		if err := audit.SaveAuditEntry(ctx, entry); err != nil {
			log.Error("failed to save audit entry", sl.Err(err))
		}

		if item.LowStock() {
			log.Warn("stock low after adjustment",
				slog.String("product_id", productID),
				slog.Int("available", item.Available),
			)
		}

		render.JSON(w, r, Response{
			Response:  resp.OK(),
			ProductID: item.ProductID,
			Available: item.Available,
			LowStock:  item.LowStock(),
		})
	}
}
