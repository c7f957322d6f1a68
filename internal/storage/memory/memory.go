// Package memory holds in-memory implementations of the ledger store
// and the stock reserver. They back the engine tests and local runs
// without Postgres; semantics mirror the postgres package, including
// version conflict detection.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/orderflow/storefront/internal/models"
	"github.com/orderflow/storefront/internal/storage"
)

type Store struct {
	mu sync.RWMutex

	orders    map[string]*models.Order
	payments  map[string]*models.Payment // keyed by payment id
	refunds   map[string]*models.Refund  // keyed by refund id
	events    map[string]*models.WebhookEvent
	shipments map[string]*models.ShipmentRecord // keyed by shipment ref
	audit     []*models.AuditEntry
	eventSeq  int64
}

func NewStore() *Store {
	return &Store{
		orders:    make(map[string]*models.Order),
		payments:  make(map[string]*models.Payment),
		refunds:   make(map[string]*models.Refund),
		events:    make(map[string]*models.WebhookEvent),
		shipments: make(map[string]*models.ShipmentRecord),
	}
}

func (s *Store) SaveOrder(_ context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order.Version = 1
	s.orders[order.OrderUID] = cloneOrder(order)

	return nil
}

func (s *Store) UpdateOrder(_ context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.orders[order.OrderUID]
	if !ok {
		return storage.ErrNoOrder
	}

	if current.Version != order.Version {
		return storage.ErrVersionConflict
	}

	order.Version++
	s.orders[order.OrderUID] = cloneOrder(order)

	return nil
}

func (s *Store) GetOrder(_ context.Context, orderUID string) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[orderUID]
	if !ok {
		return nil, storage.ErrNoOrder
	}

	return cloneOrder(order), nil
}

func (s *Store) ListOrdersInState(_ context.Context, state models.OrderState, enteredBefore time.Time) ([]*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Order
	for _, order := range s.orders {
		if order.State == state && !order.Archived && order.StateEnteredAt.Before(enteredBefore) {
			out = append(out, cloneOrder(order))
		}
	}

	return out, nil
}

func (s *Store) ArchiveOrders(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, order := range s.orders {
		if order.State.IsTerminal() && !order.Archived && order.StateEnteredAt.Before(before) {
			order.Archived = true
			n++
		}
	}

	return n, nil
}

func (s *Store) SavePayment(_ context.Context, payment *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := *payment
	s.payments[payment.ID] = &p

	return nil
}

func (s *Store) UpdatePayment(ctx context.Context, payment *models.Payment) error {
	return s.SavePayment(ctx, payment)
}

func (s *Store) GetPaymentByTxnRef(_ context.Context, txnRef string) (*models.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.payments {
		if p.GatewayTxnRef == txnRef {
			out := *p
			return &out, nil
		}
	}

	return nil, storage.ErrNoPayment
}

func (s *Store) PaymentsForOrder(_ context.Context, orderUID string) ([]*models.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Payment
	for _, p := range s.payments {
		if p.OrderUID == orderUID {
			cp := *p
			out = append(out, &cp)
		}
	}

	return out, nil
}

func (s *Store) SaveRefund(_ context.Context, refund *models.Refund) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := *refund
	s.refunds[refund.ID] = &r

	return nil
}

func (s *Store) UpdateRefund(ctx context.Context, refund *models.Refund) error {
	return s.SaveRefund(ctx, refund)
}

func (s *Store) GetRefundByRef(_ context.Context, externalRef string) (*models.Refund, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.refunds {
		if r.ExternalRef == externalRef {
			out := *r
			return &out, nil
		}
	}

	return nil, storage.ErrNoRefund
}

func (s *Store) RefundsForPayment(_ context.Context, paymentID string) ([]*models.Refund, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Refund
	for _, r := range s.refunds {
		if r.PaymentID == paymentID {
			cp := *r
			out = append(out, &cp)
		}
	}

	return out, nil
}

func (s *Store) InsertWebhookEvent(_ context.Context, event *models.WebhookEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.events[event.ExternalID]; exists {
		return false, nil
	}

	s.eventSeq++
	event.ID = s.eventSeq

	e := *event
	s.events[event.ExternalID] = &e

	return true, nil
}

func (s *Store) MarkWebhookProcessed(_ context.Context, externalID, processingErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.events[externalID]
	if !ok {
		return storage.ErrNoWebhookEvent
	}

	now := time.Now().UTC()
	event.Processed = true
	event.ProcessedAt = &now
	event.Error = processingErr

	return nil
}

// GetWebhookEvent exposes the stored dedup record, used by tests.
func (s *Store) GetWebhookEvent(externalID string) (*models.WebhookEvent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	event, ok := s.events[externalID]
	if !ok {
		return nil, false
	}

	out := *event

	return &out, true
}

func (s *Store) SaveShipment(_ context.Context, rec *models.ShipmentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := *rec
	s.shipments[rec.ShipmentRef] = &r

	return nil
}

func (s *Store) UpdateShipment(ctx context.Context, rec *models.ShipmentRecord) error {
	return s.SaveShipment(ctx, rec)
}

func (s *Store) GetShipmentByRef(_ context.Context, shipmentRef string) (*models.ShipmentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.shipments[shipmentRef]
	if !ok {
		return nil, storage.ErrNoShipment
	}

	out := *rec

	return &out, nil
}

func (s *Store) ListActiveShipments(_ context.Context) ([]*models.ShipmentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.ShipmentRecord
	for _, rec := range s.shipments {
		if rec.TrackingStatus != "delivered" {
			cp := *rec
			out = append(out, &cp)
		}
	}

	return out, nil
}

func (s *Store) SaveAuditEntry(_ context.Context, entry *models.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := *entry
	e.ID = int64(len(s.audit) + 1)
	s.audit = append(s.audit, &e)

	return nil
}

// AuditEntries exposes recorded overrides, used by tests.
func (s *Store) AuditEntries() []*models.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.AuditEntry, len(s.audit))
	copy(out, s.audit)

	return out
}

func cloneOrder(order *models.Order) *models.Order {
	cp := *order
	cp.Items = append([]models.LineItem(nil), order.Items...)

	return &cp
}
