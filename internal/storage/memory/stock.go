package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/orderflow/storefront/internal/models"
	"github.com/orderflow/storefront/internal/storage"
)

// Stock is the in-memory stock reserver. A single mutex makes the
// multi-line reserve atomic: concurrent orders never observe a partial
// reservation.
type Stock struct {
	mu           sync.Mutex
	items        map[string]*models.StockItem
	reservations map[string]*models.Reservation
}

func NewStock() *Stock {
	return &Stock{
		items:        make(map[string]*models.StockItem),
		reservations: make(map[string]*models.Reservation),
	}
}

// SetStock seeds or replaces the available quantity for a product.
func (s *Stock) SetStock(productID string, available int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[productID] = &models.StockItem{
		ProductID: productID,
		Available: available,
		UpdatedAt: time.Now().UTC(),
	}
}

// Item returns a copy of the stock row for a product.
func (s *Stock) Item(productID string) (models.StockItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[productID]
	if !ok {
		return models.StockItem{}, false
	}

	return *item, true
}

// AdjustStock applies a manual delta to the available quantity of a
// product, creating the row if needed. Negative adjustments cannot take
// the quantity below zero.
func (s *Stock) AdjustStock(_ context.Context, productID string, delta int) (models.StockItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[productID]
	if !ok {
		item = &models.StockItem{ProductID: productID}
		s.items[productID] = item
	}

	if item.Available+delta < 0 {
		return models.StockItem{}, storage.ErrNegativeStock
	}

	item.Available += delta
	item.UpdatedAt = time.Now().UTC()

	return *item, nil
}

// Reserve checks and decrements every line in one critical section.
// Either all lines are held or none are.
func (s *Stock) Reserve(_ context.Context, orderUID string, lines []models.ReservedLine) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var short []string
	for _, line := range lines {
		item, ok := s.items[line.ProductID]
		if !ok || item.Available < line.Quantity {
			short = append(short, line.ProductID)
		}
	}
	if len(short) > 0 {
		return "", &storage.InsufficientStockError{ProductIDs: short}
	}

	now := time.Now().UTC()
	for _, line := range lines {
		item := s.items[line.ProductID]
		item.Available -= line.Quantity
		item.Reserved += line.Quantity
		item.UpdatedAt = now
	}

	token := uuid.NewString()
	s.reservations[token] = &models.Reservation{
		Token:     token,
		OrderUID:  orderUID,
		Lines:     append([]models.ReservedLine(nil), lines...),
		State:     models.ReservationHeld,
		CreatedAt: now,
		UpdatedAt: now,
	}

	return token, nil
}

// Release restores the held quantities. Releasing an already released
// token is a no-op; a committed reservation can no longer be released.
func (s *Stock) Release(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, ok := s.reservations[token]
	if !ok {
		return storage.ErrNoReservation
	}

	switch res.State {
	case models.ReservationReleased:
		return nil
	case models.ReservationCommitted:
		return storage.ErrNoReservation
	}

	now := time.Now().UTC()
	for _, line := range res.Lines {
		item := s.items[line.ProductID]
		item.Available += line.Quantity
		item.Reserved -= line.Quantity
		item.UpdatedAt = now
	}

	res.State = models.ReservationReleased
	res.UpdatedAt = now

	return nil
}

// Commit finalizes the hold as a permanent decrement. Committing an
// already committed token is a no-op so that webhook retries stay
// harmless.
func (s *Stock) Commit(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, ok := s.reservations[token]
	if !ok {
		return storage.ErrNoReservation
	}

	switch res.State {
	case models.ReservationCommitted:
		return nil
	case models.ReservationReleased:
		return storage.ErrNoReservation
	}

	now := time.Now().UTC()
	for _, line := range res.Lines {
		item := s.items[line.ProductID]
		item.Reserved -= line.Quantity
		item.UpdatedAt = now
	}

	res.State = models.ReservationCommitted
	res.UpdatedAt = now

	return nil
}

// Restock returns quantities to the shelf. Compensation path for
// cancellations that happen after the reservation was committed.
func (s *Stock) Restock(_ context.Context, lines []models.ReservedLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for _, line := range lines {
		item, ok := s.items[line.ProductID]
		if !ok {
			item = &models.StockItem{ProductID: line.ProductID}
			s.items[line.ProductID] = item
		}

		item.Available += line.Quantity
		item.UpdatedAt = now
	}

	return nil
}
