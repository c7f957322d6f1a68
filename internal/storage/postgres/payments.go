package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/orderflow/storefront/internal/models"
	"github.com/orderflow/storefront/internal/storage"
)

var paymentColumns = []string{
	"id", "order_uid", "amount_cents", "currency", "gateway_txn_ref",
	"state", "created_at", "updated_at",
}

func (s *Storage) SavePayment(ctx context.Context, payment *models.Payment) error {
	const fn = "storage.postgres.SavePayment"

	query, args, err := s.sb.Insert("payments").
		Columns(paymentColumns...).
		Values(
			payment.ID, payment.OrderUID, payment.AmountCents, payment.Currency,
			payment.GatewayTxnRef, payment.State, payment.CreatedAt, payment.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("%s: can't build query: %v", fn, err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: can't insert payment: %v", fn, err)
	}

	return nil
}

func (s *Storage) UpdatePayment(ctx context.Context, payment *models.Payment) error {
	const fn = "storage.postgres.UpdatePayment"

	query, args, err := s.sb.Update("payments").
		Set("state", payment.State).
		Set("updated_at", payment.UpdatedAt).
		Where(sq.Eq{"id": payment.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("%s: can't build query: %v", fn, err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: can't update payment: %v", fn, err)
	}

	return nil
}

func (s *Storage) GetPaymentByTxnRef(ctx context.Context, txnRef string) (*models.Payment, error) {
	const fn = "storage.postgres.GetPaymentByTxnRef"

	query, args, err := s.sb.Select(paymentColumns...).
		From("payments").
		Where(sq.Eq{"gateway_txn_ref": txnRef}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: can't build query: %v", fn, err)
	}

	var payment models.Payment
	if err := s.db.GetContext(ctx, &payment, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNoPayment
		}

		return nil, fmt.Errorf("%s: can't get payment: %v", fn, err)
	}

	return &payment, nil
}

func (s *Storage) PaymentsForOrder(ctx context.Context, orderUID string) ([]*models.Payment, error) {
	const fn = "storage.postgres.PaymentsForOrder"

	query, args, err := s.sb.Select(paymentColumns...).
		From("payments").
		Where(sq.Eq{"order_uid": orderUID}).
		OrderBy("created_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: can't build query: %v", fn, err)
	}

	var payments []*models.Payment
	if err := s.db.SelectContext(ctx, &payments, query, args...); err != nil {
		return nil, fmt.Errorf("%s: can't list payments: %v", fn, err)
	}

	return payments, nil
}

var refundColumns = []string{
	"id", "payment_id", "amount_cents", "state", "external_ref",
	"issued_by", "created_at", "updated_at",
}

func (s *Storage) SaveRefund(ctx context.Context, refund *models.Refund) error {
	const fn = "storage.postgres.SaveRefund"

	query, args, err := s.sb.Insert("refunds").
		Columns(refundColumns...).
		Values(
			refund.ID, refund.PaymentID, refund.AmountCents, refund.State,
			refund.ExternalRef, refund.IssuedBy, refund.CreatedAt, refund.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("%s: can't build query: %v", fn, err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: can't insert refund: %v", fn, err)
	}

	return nil
}

func (s *Storage) UpdateRefund(ctx context.Context, refund *models.Refund) error {
	const fn = "storage.postgres.UpdateRefund"

	query, args, err := s.sb.Update("refunds").
		Set("state", refund.State).
		Set("updated_at", refund.UpdatedAt).
		Where(sq.Eq{"id": refund.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("%s: can't build query: %v", fn, err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: can't update refund: %v", fn, err)
	}

	return nil
}

func (s *Storage) GetRefundByRef(ctx context.Context, externalRef string) (*models.Refund, error) {
	const fn = "storage.postgres.GetRefundByRef"

	query, args, err := s.sb.Select(refundColumns...).
		From("refunds").
		Where(sq.Eq{"external_ref": externalRef}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: can't build query: %v", fn, err)
	}

	var refund models.Refund
	if err := s.db.GetContext(ctx, &refund, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNoRefund
		}

		return nil, fmt.Errorf("%s: can't get refund: %v", fn, err)
	}

	return &refund, nil
}

func (s *Storage) RefundsForPayment(ctx context.Context, paymentID string) ([]*models.Refund, error) {
	const fn = "storage.postgres.RefundsForPayment"

	query, args, err := s.sb.Select(refundColumns...).
		From("refunds").
		Where(sq.Eq{"payment_id": paymentID}).
		OrderBy("created_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: can't build query: %v", fn, err)
	}

	var refunds []*models.Refund
	if err := s.db.SelectContext(ctx, &refunds, query, args...); err != nil {
		return nil, fmt.Errorf("%s: can't list refunds: %v", fn, err)
	}

	return refunds, nil
}
