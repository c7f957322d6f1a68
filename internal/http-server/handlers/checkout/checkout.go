package checkout

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"github.com/orderflow/storefront/internal/lifecycle"
	"github.com/orderflow/storefront/internal/models"
	"github.com/orderflow/storefront/internal/storage"
	resp "github.com/orderflow/storefront/lib/api/response"
	"github.com/orderflow/storefront/lib/logger/sl"
)

type Item struct {
	ProductID string `json:"product_id" validate:"required"`
	Name      string `json:"name" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
	UnitPrice int64  `json:"unit_price" validate:"required,gt=0"`
}

type Request struct {
	CustomerID      string         `json:"customer_id" validate:"required"`
	Items           []Item         `json:"items" validate:"required,min=1,dive"`
	ShippingCost    int64          `json:"shipping_cost" validate:"gte=0"`
	Discount        int64          `json:"discount" validate:"gte=0"`
	PaymentMethod   string         `json:"payment_method" validate:"required"`
	BillingAddress  models.Address `json:"billing_address" validate:"required"`
	ShippingAddress models.Address `json:"shipping_address" validate:"required"`
}

type Response struct {
	resp.Response
	OrderUID string `json:"order_uid,omitempty"`
	State    string `json:"state,omitempty"`
	Total    int64  `json:"total,omitempty"`
}

// OrderSubmitter is the slice of the lifecycle engine the checkout
// handler needs.
type OrderSubmitter interface {
	SubmitOrder(ctx context.Context, cart lifecycle.CartSnapshot, addrs lifecycle.AddressSnapshots) (*models.Order, error)
}

func New(ctx context.Context, log *slog.Logger, engine OrderSubmitter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const fn = "handlers.checkout.New"

		log := log.With(
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

		log.Info("request body decoded", slog.String("customer_id", req.CustomerID))

		if err := validator.New().Struct(req); err != nil {
			validateErr := err.(validator.ValidationErrors)

			log.Error("invalid request", sl.Err(err))

			render.JSON(w, r, resp.ValidationError(validateErr))

			return
		}

		items := make([]models.LineItem, 0, len(req.Items))
		for _, item := range req.Items {
			items = append(items, models.LineItem{
				ProductID:      item.ProductID,
				Name:           item.Name,
				Quantity:       item.Quantity,
				UnitPriceCents: item.UnitPrice,
			})
		}

		order, err := engine.SubmitOrder(ctx,
			lifecycle.CartSnapshot{
				CustomerID:    req.CustomerID,
				Items:         items,
				ShippingCents: req.ShippingCost,
				DiscountCents: req.Discount,
				PaymentMethod: req.PaymentMethod,
			},
			lifecycle.AddressSnapshots{
				Billing:  req.BillingAddress,
				Shipping: req.ShippingAddress,
			},
		)

		var insufficientStock *storage.InsufficientStockError

		switch {
		case errors.As(err, &insufficientStock):
			log.Info("insufficient stock", slog.Any("products", insufficientStock.ProductIDs))

			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, resp.Error(insufficientStock.Error()))

			return

		case errors.Is(err, lifecycle.ErrEmptyCart), errors.Is(err, lifecycle.ErrInvalidAddress):
			log.Info("invalid checkout", sl.Err(err))

			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, resp.Error(err.Error()))

			return

		case err != nil:
			log.Error("failed to submit order", sl.Err(err))

			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("failed to submit order"))

			return
		}

		log.Info("order submitted", slog.String("order_uid", order.OrderUID))

		render.JSON(w, r, Response{
			Response: resp.OK(),
			OrderUID: order.OrderUID,
			State:    string(order.State),
			Total:    order.TotalCents,
		})
	}
}
