package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/orderflow/storefront/internal/models"
	"github.com/orderflow/storefront/internal/storage"
)

// AdjustStock applies a manual delta to the available quantity of a
// product, creating the row if needed. The CHECK constraint on the
// column rejects adjustments that would make the quantity negative.
func (s *Storage) AdjustStock(ctx context.Context, productID string, delta int) (models.StockItem, error) {
	const fn = "storage.postgres.AdjustStock"

	var item models.StockItem

	err := s.db.GetContext(ctx, &item,
		`INSERT INTO stock_items (product_id, available, reserved, low_stock_threshold, updated_at)
		 VALUES ($1, GREATEST($2, 0), 0, 0, $3)
		 ON CONFLICT (product_id)
		 DO UPDATE SET available = stock_items.available + $2, updated_at = $3
		 RETURNING product_id, available, reserved, low_stock_threshold, updated_at`,
		productID, delta, time.Now().UTC(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "stock_items_available_check") {
			return models.StockItem{}, storage.ErrNegativeStock
		}

		return models.StockItem{}, fmt.Errorf("%s: can't adjust stock: %v", fn, err)
	}

	return item, nil
}

// Reserve checks and decrements every line in a single transaction with
// row locks, so concurrent orders never observe a partial reservation:
// either the whole hold succeeds or nothing is decremented.
func (s *Storage) Reserve(ctx context.Context, orderUID string, lines []models.ReservedLine) (string, error) {
	const fn = "storage.postgres.Reserve"

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("%s: can't begin tx: %v", fn, err)
	}
	defer tx.Rollback()

	productIDs := make([]string, 0, len(lines))
	for _, line := range lines {
		productIDs = append(productIDs, line.ProductID)
	}

	rows := []struct {
		ProductID string `db:"product_id"`
		Available int    `db:"available"`
	}{}

	err = tx.SelectContext(ctx, &rows,
		`SELECT product_id, available FROM stock_items WHERE product_id = ANY($1) FOR UPDATE`,
		pq.Array(productIDs),
	)
	if err != nil {
		return "", fmt.Errorf("%s: can't lock stock rows: %v", fn, err)
	}

	available := make(map[string]int, len(rows))
	for _, row := range rows {
		available[row.ProductID] = row.Available
	}

	var short []string
	for _, line := range lines {
		got, ok := available[line.ProductID]
		if !ok || got < line.Quantity {
			short = append(short, line.ProductID)
		}
	}
	if len(short) > 0 {
		return "", &storage.InsufficientStockError{ProductIDs: short}
	}

	now := time.Now().UTC()

	for _, line := range lines {
		_, err := tx.ExecContext(ctx,
			`UPDATE stock_items
			 SET available = available - $1, reserved = reserved + $1, updated_at = $2
			 WHERE product_id = $3`,
			line.Quantity, now, line.ProductID,
		)
		if err != nil {
			return "", fmt.Errorf("%s: can't decrement stock: %v", fn, err)
		}
	}

	token := uuid.NewString()

	query, args, err := s.sb.Insert("reservations").
		Columns("token", "order_uid", "state", "created_at", "updated_at").
		Values(token, orderUID, models.ReservationHeld, now, now).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("%s: can't build query: %v", fn, err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return "", fmt.Errorf("%s: can't insert reservation: %v", fn, err)
	}

	for _, line := range lines {
		query, args, err := s.sb.Insert("reservation_lines").
			Columns("token", "product_id", "quantity").
			Values(token, line.ProductID, line.Quantity).
			ToSql()
		if err != nil {
			return "", fmt.Errorf("%s: can't build query: %v", fn, err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return "", fmt.Errorf("%s: can't insert reservation line: %v", fn, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("%s: can't commit tx: %v", fn, err)
	}

	return token, nil
}

// Release restores held quantities. Releasing an already released token
// is a no-op; a committed reservation can no longer be released.
func (s *Storage) Release(ctx context.Context, token string) error {
	const fn = "storage.postgres.Release"

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: can't begin tx: %v", fn, err)
	}
	defer tx.Rollback()

	state, lines, err := s.lockReservation(ctx, tx, token)
	if err != nil {
		return fmt.Errorf("%s: %w", fn, err)
	}

	switch state {
	case models.ReservationReleased:
		return nil
	case models.ReservationCommitted:
		return fmt.Errorf("%s: %w", fn, storage.ErrNoReservation)
	}

	now := time.Now().UTC()

	for _, line := range lines {
		_, err := tx.ExecContext(ctx,
			`UPDATE stock_items
			 SET available = available + $1, reserved = reserved - $1, updated_at = $2
			 WHERE product_id = $3`,
			line.Quantity, now, line.ProductID,
		)
		if err != nil {
			return fmt.Errorf("%s: can't restore stock: %v", fn, err)
		}
	}

	if err := s.setReservationState(ctx, tx, token, models.ReservationReleased, now); err != nil {
		return fmt.Errorf("%s: %v", fn, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: can't commit tx: %v", fn, err)
	}

	return nil
}

// Commit finalizes the hold as a permanent decrement. Committing twice
// is a no-op so webhook retries stay harmless.
func (s *Storage) Commit(ctx context.Context, token string) error {
	const fn = "storage.postgres.Commit"

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: can't begin tx: %v", fn, err)
	}
	defer tx.Rollback()

	state, lines, err := s.lockReservation(ctx, tx, token)
	if err != nil {
		return fmt.Errorf("%s: %w", fn, err)
	}

	switch state {
	case models.ReservationCommitted:
		return nil
	case models.ReservationReleased:
		return fmt.Errorf("%s: %w", fn, storage.ErrNoReservation)
	}

	now := time.Now().UTC()

	for _, line := range lines {
		_, err := tx.ExecContext(ctx,
			`UPDATE stock_items
			 SET reserved = reserved - $1, updated_at = $2
			 WHERE product_id = $3`,
			line.Quantity, now, line.ProductID,
		)
		if err != nil {
			return fmt.Errorf("%s: can't commit stock: %v", fn, err)
		}
	}

	if err := s.setReservationState(ctx, tx, token, models.ReservationCommitted, now); err != nil {
		return fmt.Errorf("%s: %v", fn, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: can't commit tx: %v", fn, err)
	}

	return nil
}

// Restock returns quantities to the shelf, the compensation path for
// cancellations after the reservation was committed.
func (s *Storage) Restock(ctx context.Context, lines []models.ReservedLine) error {
	const fn = "storage.postgres.Restock"

	now := time.Now().UTC()

	for _, line := range lines {
		_, err := s.db.ExecContext(ctx,
			`UPDATE stock_items
			 SET available = available + $1, updated_at = $2
			 WHERE product_id = $3`,
			line.Quantity, now, line.ProductID,
		)
		if err != nil {
			return fmt.Errorf("%s: can't restock: %v", fn, err)
		}
	}

	return nil
}

func (s *Storage) lockReservation(ctx context.Context, tx *sqlx.Tx, token string) (models.ReservationState, []models.ReservedLine, error) {
	var state models.ReservationState

	err := tx.GetContext(ctx, &state,
		`SELECT state FROM reservations WHERE token = $1 FOR UPDATE`, token)
	if err != nil {
		return "", nil, storage.ErrNoReservation
	}

	var lines []models.ReservedLine

	err = tx.SelectContext(ctx, &lines,
		`SELECT product_id, quantity FROM reservation_lines WHERE token = $1`, token)
	if err != nil {
		return "", nil, fmt.Errorf("can't get reservation lines: %v", err)
	}

	return state, lines, nil
}

func (s *Storage) setReservationState(ctx context.Context, tx *sqlx.Tx, token string, state models.ReservationState, now time.Time) error {
	query, args, err := s.sb.Update("reservations").
		Set("state", state).
		Set("updated_at", now).
		Where(sq.Eq{"token": token}).
		ToSql()
	if err != nil {
		return fmt.Errorf("can't build query: %v", err)
	}

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("can't update reservation: %v", err)
	}

	return nil
}
