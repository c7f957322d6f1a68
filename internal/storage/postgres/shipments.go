package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/orderflow/storefront/internal/models"
	"github.com/orderflow/storefront/internal/shipping"
	"github.com/orderflow/storefront/internal/storage"
)

var shipmentColumns = []string{
	"id", "order_uid", "shipment_ref", "label_ref", "carrier", "service_level",
	"tracking_number", "tracking_status", "created_at", "updated_at",
}

func (s *Storage) SaveShipment(ctx context.Context, rec *models.ShipmentRecord) error {
	const fn = "storage.postgres.SaveShipment"

	query, args, err := s.sb.Insert("shipments").
		Columns(shipmentColumns...).
		Values(
			rec.ID, rec.OrderUID, rec.ShipmentRef, rec.LabelRef, rec.Carrier,
			rec.ServiceLevel, rec.TrackingNumber, rec.TrackingStatus,
			rec.CreatedAt, rec.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("%s: can't build query: %v", fn, err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: can't insert shipment: %v", fn, err)
	}

	return nil
}

func (s *Storage) UpdateShipment(ctx context.Context, rec *models.ShipmentRecord) error {
	const fn = "storage.postgres.UpdateShipment"

	query, args, err := s.sb.Update("shipments").
		Set("tracking_status", rec.TrackingStatus).
		Set("updated_at", rec.UpdatedAt).
		Where(sq.Eq{"id": rec.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("%s: can't build query: %v", fn, err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: can't update shipment: %v", fn, err)
	}

	return nil
}

func (s *Storage) GetShipmentByRef(ctx context.Context, shipmentRef string) (*models.ShipmentRecord, error) {
	const fn = "storage.postgres.GetShipmentByRef"

	query, args, err := s.sb.Select(shipmentColumns...).
		From("shipments").
		Where(sq.Eq{"shipment_ref": shipmentRef}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: can't build query: %v", fn, err)
	}

	var rec models.ShipmentRecord
	if err := s.db.GetContext(ctx, &rec, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNoShipment
		}

		return nil, fmt.Errorf("%s: can't get shipment: %v", fn, err)
	}

	return &rec, nil
}

// ListActiveShipments returns shipments that have not reached a final
// tracking status yet; the tracking poller iterates over these.
func (s *Storage) ListActiveShipments(ctx context.Context) ([]*models.ShipmentRecord, error) {
	const fn = "storage.postgres.ListActiveShipments"

	query, args, err := s.sb.Select(shipmentColumns...).
		From("shipments").
		Where(sq.NotEq{"tracking_status": string(shipping.TrackingDelivered)}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: can't build query: %v", fn, err)
	}

	var recs []*models.ShipmentRecord
	if err := s.db.SelectContext(ctx, &recs, query, args...); err != nil {
		return nil, fmt.Errorf("%s: can't list shipments: %v", fn, err)
	}

	return recs, nil
}
