package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/orderflow/storefront/internal/models"
	"github.com/orderflow/storefront/internal/storage"
)

// orderRow mirrors the orders table; address snapshots are stored as
// JSONB columns.
type orderRow struct {
	models.Order
	BillingJSON  []byte `db:"billing_address"`
	ShippingJSON []byte `db:"shipping_address"`
}

var orderColumns = []string{
	"order_uid", "customer_id", "state",
	"subtotal_cents", "shipping_cents", "discount_cents", "total_cents", "currency",
	"billing_address", "shipping_address",
	"carrier", "service_level", "shipment_ref", "tracking_number",
	"reservation_token", "created_at", "updated_at", "state_entered_at",
	"version", "archived",
}

func (s *Storage) SaveOrder(ctx context.Context, order *models.Order) error {
	const fn = "storage.postgres.SaveOrder"

	billing, err := json.Marshal(order.BillingAddress)
	if err != nil {
		return fmt.Errorf("%s: can't marshal billing address: %v", fn, err)
	}
	shipping, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return fmt.Errorf("%s: can't marshal shipping address: %v", fn, err)
	}

	order.Version = 1

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: can't begin tx: %v", fn, err)
	}
	defer tx.Rollback()

	query, args, err := s.sb.Insert("orders").
		Columns(orderColumns...).
		Values(
			order.OrderUID, order.CustomerID, order.State,
			order.SubtotalCents, order.ShippingCents, order.DiscountCents, order.TotalCents, order.Currency,
			billing, shipping,
			order.Carrier, order.ServiceLevel, order.ShipmentRef, order.TrackingNumber,
			order.ReservationToken, order.CreatedAt, order.UpdatedAt, order.StateEnteredAt,
			order.Version, order.Archived,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("%s: can't build query: %v", fn, err)
	}

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: can't insert order: %v", fn, err)
	}

	for _, item := range order.Items {
		query, args, err := s.sb.Insert("order_items").
			Columns("order_uid", "product_id", "name", "quantity", "unit_price_cents").
			Values(order.OrderUID, item.ProductID, item.Name, item.Quantity, item.UnitPriceCents).
			ToSql()
		if err != nil {
			return fmt.Errorf("%s: can't build query: %v", fn, err)
		}

		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("%s: can't insert order item: %v", fn, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: can't commit tx: %v", fn, err)
	}

	return nil
}

// UpdateOrder persists order mutations guarded by the version counter.
// A write carrying a stale version affects zero rows and is reported as
// storage.ErrVersionConflict so the engine can re-read and retry.
func (s *Storage) UpdateOrder(ctx context.Context, order *models.Order) error {
	const fn = "storage.postgres.UpdateOrder"

	query, args, err := s.sb.Update("orders").
		Set("state", order.State).
		Set("subtotal_cents", order.SubtotalCents).
		Set("shipping_cents", order.ShippingCents).
		Set("discount_cents", order.DiscountCents).
		Set("total_cents", order.TotalCents).
		Set("carrier", order.Carrier).
		Set("service_level", order.ServiceLevel).
		Set("shipment_ref", order.ShipmentRef).
		Set("tracking_number", order.TrackingNumber).
		Set("reservation_token", order.ReservationToken).
		Set("updated_at", order.UpdatedAt).
		Set("state_entered_at", order.StateEnteredAt).
		Set("archived", order.Archived).
		Set("version", order.Version+1).
		Where(sq.Eq{"order_uid": order.OrderUID, "version": order.Version}).
		ToSql()
	if err != nil {
		return fmt.Errorf("%s: can't build query: %v", fn, err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: can't update order: %v", fn, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: can't get rows affected: %v", fn, err)
	}
	if affected == 0 {
		return storage.ErrVersionConflict
	}

	order.Version++

	return nil
}

func (s *Storage) GetOrder(ctx context.Context, orderUID string) (*models.Order, error) {
	const fn = "storage.postgres.GetOrder"

	query, args, err := s.sb.Select(orderColumns...).
		From("orders").
		Where(sq.Eq{"order_uid": orderUID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: can't build query: %v", fn, err)
	}

	var row orderRow
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNoOrder
		}

		return nil, fmt.Errorf("%s: can't get order: %v", fn, err)
	}

	order := row.Order
	if err := json.Unmarshal(row.BillingJSON, &order.BillingAddress); err != nil {
		return nil, fmt.Errorf("%s: can't unmarshal billing address: %v", fn, err)
	}
	if err := json.Unmarshal(row.ShippingJSON, &order.ShippingAddress); err != nil {
		return nil, fmt.Errorf("%s: can't unmarshal shipping address: %v", fn, err)
	}

	query, args, err = s.sb.Select("order_uid", "product_id", "name", "quantity", "unit_price_cents").
		From("order_items").
		Where(sq.Eq{"order_uid": orderUID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: can't build query: %v", fn, err)
	}

	if err := s.db.SelectContext(ctx, &order.Items, query, args...); err != nil {
		return nil, fmt.Errorf("%s: can't get order items: %v", fn, err)
	}

	return &order, nil
}

func (s *Storage) ListOrdersInState(ctx context.Context, state models.OrderState, enteredBefore time.Time) ([]*models.Order, error) {
	const fn = "storage.postgres.ListOrdersInState"

	query, args, err := s.sb.Select("order_uid").
		From("orders").
		Where(sq.Eq{"state": state, "archived": false}).
		Where(sq.Lt{"state_entered_at": enteredBefore}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: can't build query: %v", fn, err)
	}

	var uids []string
	if err := s.db.SelectContext(ctx, &uids, query, args...); err != nil {
		return nil, fmt.Errorf("%s: can't list orders: %v", fn, err)
	}

	orders := make([]*models.Order, 0, len(uids))
	for _, uid := range uids {
		order, err := s.GetOrder(ctx, uid)
		if err != nil {
			return nil, fmt.Errorf("%s: %v", fn, err)
		}
		orders = append(orders, order)
	}

	return orders, nil
}

// ArchiveOrders soft-archives terminal orders that entered their state
// before the cutoff. Orders are never hard-deleted.
func (s *Storage) ArchiveOrders(ctx context.Context, before time.Time) (int64, error) {
	const fn = "storage.postgres.ArchiveOrders"

	query, args, err := s.sb.Update("orders").
		Set("archived", true).
		Where(sq.Eq{
			"archived": false,
			"state": []models.OrderState{
				models.StateCompleted, models.StateCancelled,
				models.StateRefunded, models.StateFailed,
			},
		}).
		Where(sq.Lt{"state_entered_at": before}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("%s: can't build query: %v", fn, err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: can't archive orders: %v", fn, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: can't get rows affected: %v", fn, err)
	}

	return affected, nil
}
