// Package lifecycle owns the order state machine: it coordinates the
// ledger store, stock reservation, the payment gateway and the shipping
// aggregator, and is the only component allowed to mutate order state.
//
// All state transitions for a single order are serialized through a
// per-order lock. The lock is held only around the read-modify-write of
// order state, never across adapter network calls.
package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/orderflow/storefront/internal/gateway"
	"github.com/orderflow/storefront/internal/models"
	"github.com/orderflow/storefront/internal/shipping"
	"github.com/orderflow/storefront/internal/storage"
	"github.com/orderflow/storefront/lib/logger/sl"
)

var (
	ErrEmptyCart            = errors.New("cart has no line items")
	ErrInvalidAddress       = errors.New("address snapshot is incomplete")
	ErrRefundExceedsBalance = errors.New("refund amount exceeds refundable balance")
	ErrNoCapturedPayment    = errors.New("order has no captured payment")
	ErrAmountMismatch       = errors.New("charge amount does not match order total")
)

// Config is the immutable configuration injected into the engine at
// construction. Nothing here is read from ambient global state.
type Config struct {
	Currency        string
	AdapterTimeout  time.Duration
	RetentionWindow time.Duration
	ArchiveWindow   time.Duration
	ReminderAge     time.Duration
	ShippingRetry   shipping.RetryPolicy
	DefaultParcel   shipping.Parcel
	OriginAddress   models.Address
}

type Engine struct {
	store    Store
	stock    StockReserver
	gateway  gateway.Gateway
	shipping shipping.Aggregator
	cache    OrderCache
	notifier Notifier
	cfg      Config
	log      *slog.Logger

	locks *keyedMutex
	now   func() time.Time
}

func New(
	store Store,
	stock StockReserver,
	gw gateway.Gateway,
	agg shipping.Aggregator,
	cache OrderCache,
	notifier Notifier,
	cfg Config,
	log *slog.Logger,
) *Engine {
	return &Engine{
		store:    store,
		stock:    stock,
		gateway:  gw,
		shipping: agg,
		cache:    cache,
		notifier: notifier,
		cfg:      cfg,
		log:      log,
		locks:    newKeyedMutex(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CartSnapshot is the checkout input: line items with unit prices
// already snapshotted, plus shipping and discount amounts.
type CartSnapshot struct {
	CustomerID    string
	Items         []models.LineItem
	ShippingCents int64
	DiscountCents int64
	PaymentMethod string
}

type AddressSnapshots struct {
	Billing  models.Address
	Shipping models.Address
}

// SubmitOrder reserves stock for every line atomically, snapshots
// prices and addresses, creates the order in pending and immediately
// advances it to awaiting_payment, then requests a charge from the
// gateway. Fails with storage.InsufficientStockError or
// ErrInvalidAddress without leaving a partial reservation behind.
func (e *Engine) SubmitOrder(ctx context.Context, cart CartSnapshot, addrs AddressSnapshots) (*models.Order, error) {
	const fn = "lifecycle.SubmitOrder"
	log := e.log.With("fn", fn)

	if len(cart.Items) == 0 {
		return nil, ErrEmptyCart
	}

	if !validAddress(addrs.Billing) || !validAddress(addrs.Shipping) {
		return nil, ErrInvalidAddress
	}

	now := e.now()

	order := &models.Order{
		OrderUID:        uuid.NewString(),
		CustomerID:      cart.CustomerID,
		State:           models.StatePending,
		ShippingCents:   cart.ShippingCents,
		DiscountCents:   cart.DiscountCents,
		Currency:        e.cfg.Currency,
		Items:           cart.Items,
		BillingAddress:  addrs.Billing,
		ShippingAddress: addrs.Shipping,
		CreatedAt:       now,
		UpdatedAt:       now,
		StateEnteredAt:  now,
	}
	for i := range order.Items {
		order.Items[i].OrderUID = order.OrderUID
	}
	order.RecalculateTotal()

	lines := make([]models.ReservedLine, 0, len(cart.Items))
	for _, item := range cart.Items {
		lines = append(lines, models.ReservedLine{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	token, err := e.stock.Reserve(ctx, order.OrderUID, lines)
	if err != nil {
		log.Warn("stock reservation failed", slog.String("order_uid", order.OrderUID), sl.Err(err))

		return nil, fmt.Errorf("%s: %w", fn, err)
	}
	order.ReservationToken = token

	if err := e.store.SaveOrder(ctx, order); err != nil {
		// The hold must not outlive a failed checkout.
		if relErr := e.stock.Release(ctx, token); relErr != nil {
			log.Error("failed to release reservation", sl.Err(relErr))
		}

		return nil, fmt.Errorf("%s: can't save order: %w", fn, err)
	}

	if err := e.applyTransition(ctx, order, models.StateAwaitingPayment); err != nil {
		if relErr := e.stock.Release(ctx, token); relErr != nil {
			log.Error("failed to release reservation", sl.Err(relErr))
		}

		return nil, fmt.Errorf("%s: %w", fn, err)
	}

	log.Info("order submitted",
		slog.String("order_uid", order.OrderUID),
		slog.Int64("total", order.TotalCents),
	)

	e.requestCharge(ctx, order, cart.PaymentMethod)

	return order, nil
}

// requestCharge initiates the gateway charge outside the per-order lock
// and records the pending payment attempt. A failed initiation leaves
// the order in awaiting_payment: the gateway's webhook (or a retry) is
// the authoritative outcome.
func (e *Engine) requestCharge(ctx context.Context, order *models.Order, method string) {
	const fn = "lifecycle.requestCharge"
	log := e.log.With("fn", fn, slog.String("order_uid", order.OrderUID))

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.AdapterTimeout)
	defer cancel()

	txnRef, err := e.gateway.Charge(callCtx, order, method)
	if err != nil {
		log.Error("charge initiation failed", sl.Err(err))

		return
	}

	now := e.now()
	payment := &models.Payment{
		ID:            uuid.NewString(),
		OrderUID:      order.OrderUID,
		AmountCents:   order.TotalCents,
		Currency:      order.Currency,
		GatewayTxnRef: txnRef,
		State:         models.PaymentPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := e.store.SavePayment(ctx, payment); err != nil {
		log.Error("failed to save payment attempt", sl.Err(err))
	}
}

// HandlePaymentWebhook ingests a gateway event idempotently. Replays of
// an already recorded external id are a no-op. Processing failures are
// recorded on the stored event and never returned to the caller: the
// gateway must still receive its acknowledgment. Only a storage failure
// during ingestion itself is propagated.
func (e *Engine) HandlePaymentWebhook(ctx context.Context, evt gateway.WebhookEvent) error {
	const fn = "lifecycle.HandlePaymentWebhook"
	log := e.log.With("fn", fn, slog.String("event_id", evt.ExternalID))

	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("%s: can't marshal event: %w", fn, err)
	}

	inserted, err := e.store.InsertWebhookEvent(ctx, &models.WebhookEvent{
		ExternalID: evt.ExternalID,
		Source:     models.SourcePayment,
		EventType:  evt.Type,
		Payload:    payload,
		ReceivedAt: e.now(),
	})
	if err != nil {
		return fmt.Errorf("%s: can't record event: %w", fn, err)
	}
	if !inserted {
		log.Debug("duplicate webhook event, skipping")

		return nil
	}

	procErr := e.processPaymentEvent(ctx, evt)
	if procErr != nil {
		log.Warn("webhook processing failed", sl.Err(procErr))
	}

	if err := e.store.MarkWebhookProcessed(ctx, evt.ExternalID, errText(procErr)); err != nil {
		log.Error("failed to mark webhook processed", sl.Err(err))
	}

	return nil
}

func (e *Engine) processPaymentEvent(ctx context.Context, evt gateway.WebhookEvent) error {
	switch evt.Type {
	case gateway.EventChargeCompleted:
		return e.onChargeCompleted(ctx, evt)
	case gateway.EventChargeFailed:
		return e.onChargeFailed(ctx, evt)
	case gateway.EventRefundCompleted:
		return e.onRefundCompleted(ctx, evt)
	case gateway.EventRefundFailed:
		return e.onRefundFailed(ctx, evt)
	default:
		return fmt.Errorf("unknown gateway event type %q", evt.Type)
	}
}

func (e *Engine) onChargeCompleted(ctx context.Context, evt gateway.WebhookEvent) error {
	return e.withOrder(ctx, evt.OrderUID, func(order *models.Order) error {
		if !CanTransition(order.State, models.StatePaid) {
			return &InvalidOrderStateError{
				OrderUID:  order.OrderUID,
				Current:   order.State,
				Requested: models.StatePaid,
			}
		}

		if evt.AmountCents != order.TotalCents {
			return fmt.Errorf("%w: charged %d, order total %d",
				ErrAmountMismatch, evt.AmountCents, order.TotalCents)
		}

		payment, err := e.store.GetPaymentByTxnRef(ctx, evt.TxnRef)
		if errors.Is(err, storage.ErrNoPayment) {
			// Webhook won the race against charge initiation bookkeeping.
			now := e.now()
			payment = &models.Payment{
				ID:            uuid.NewString(),
				OrderUID:      order.OrderUID,
				AmountCents:   evt.AmountCents,
				Currency:      evt.Currency,
				GatewayTxnRef: evt.TxnRef,
				State:         models.PaymentPending,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			if err := e.store.SavePayment(ctx, payment); err != nil {
				return fmt.Errorf("can't save payment: %w", err)
			}
		} else if err != nil {
			return fmt.Errorf("can't get payment: %w", err)
		}

		payment.State = models.PaymentCompleted
		payment.UpdatedAt = e.now()
		if err := e.store.UpdatePayment(ctx, payment); err != nil {
			return fmt.Errorf("can't update payment: %w", err)
		}

		if order.ReservationToken != "" {
			if err := e.stock.Commit(ctx, order.ReservationToken); err != nil {
				return fmt.Errorf("can't commit reservation: %w", err)
			}
		}

		return e.applyTransition(ctx, order, models.StatePaid)
	})
}

func (e *Engine) onChargeFailed(ctx context.Context, evt gateway.WebhookEvent) error {
	return e.withOrder(ctx, evt.OrderUID, func(order *models.Order) error {
		if !CanTransition(order.State, models.StateFailed) {
			return &InvalidOrderStateError{
				OrderUID:  order.OrderUID,
				Current:   order.State,
				Requested: models.StateFailed,
			}
		}

		if payment, err := e.store.GetPaymentByTxnRef(ctx, evt.TxnRef); err == nil {
			payment.State = models.PaymentFailed
			payment.UpdatedAt = e.now()
			if err := e.store.UpdatePayment(ctx, payment); err != nil {
				return fmt.Errorf("can't update payment: %w", err)
			}
		}

		if order.ReservationToken != "" {
			if err := e.stock.Release(ctx, order.ReservationToken); err != nil {
				return fmt.Errorf("can't release reservation: %w", err)
			}
		}

		return e.applyTransition(ctx, order, models.StateFailed)
	})
}

func (e *Engine) onRefundCompleted(ctx context.Context, evt gateway.WebhookEvent) error {
	refund, err := e.store.GetRefundByRef(ctx, evt.RefundRef)
	if err != nil {
		return fmt.Errorf("can't get refund %s: %w", evt.RefundRef, err)
	}

	refund.State = models.RefundCompleted
	refund.UpdatedAt = e.now()
	if err := e.store.UpdateRefund(ctx, refund); err != nil {
		return fmt.Errorf("can't update refund: %w", err)
	}

	payment, err := e.store.GetPaymentByTxnRef(ctx, evt.TxnRef)
	if err != nil {
		return fmt.Errorf("can't get payment: %w", err)
	}

	refunded, err := e.refundTotal(ctx, payment.ID, models.RefundCompleted)
	if err != nil {
		return err
	}

	target := models.StatePartiallyRefunded
	paymentState := models.PaymentPartiallyRefunded
	if refunded >= payment.AmountCents {
		target = models.StateRefunded
		paymentState = models.PaymentRefunded
	}

	payment.State = paymentState
	payment.UpdatedAt = e.now()
	if err := e.store.UpdatePayment(ctx, payment); err != nil {
		return fmt.Errorf("can't update payment: %w", err)
	}

	return e.withOrder(ctx, payment.OrderUID, func(order *models.Order) error {
		return e.applyTransition(ctx, order, target)
	})
}

func (e *Engine) onRefundFailed(ctx context.Context, evt gateway.WebhookEvent) error {
	refund, err := e.store.GetRefundByRef(ctx, evt.RefundRef)
	if err != nil {
		return fmt.Errorf("can't get refund %s: %w", evt.RefundRef, err)
	}

	refund.State = models.RefundFailed
	refund.UpdatedAt = e.now()

	return e.store.UpdateRefund(ctx, refund)
}

// RequestCancellation cancels an order if the state graph allows it.
// Cancellation is disallowed once the order is delivered. Stock is
// restored unless the parcel already left the warehouse.
func (e *Engine) RequestCancellation(ctx context.Context, orderUID, actor string) (*models.Order, error) {
	const fn = "lifecycle.RequestCancellation"
	log := e.log.With("fn", fn, slog.String("order_uid", orderUID))

	var out *models.Order

	err := e.withOrder(ctx, orderUID, func(order *models.Order) error {
		if !CanTransition(order.State, models.StateCancelled) {
			return &InvalidOrderStateError{
				OrderUID:  orderUID,
				Current:   order.State,
				Requested: models.StateCancelled,
			}
		}

		if order.State != models.StateShipped {
			lines := reservedLines(order)
			if err := e.stock.Restock(ctx, lines); err != nil {
				return fmt.Errorf("can't restock: %w", err)
			}
		}

		if err := e.applyTransition(ctx, order, models.StateCancelled); err != nil {
			return err
		}

		out = order

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn, err)
	}

	log.Info("order cancelled", slog.String("actor", actor))

	return out, nil
}

// RequestRefund validates the amount against the refundable balance of
// the captured payment and records the refund in pending before the
// gateway is asked for anything: the pending row reserves its share of
// the balance, so overlapping requests cannot both spend the same
// captured amount. The order transition happens later, on the gateway's
// refund.completed webhook.
func (e *Engine) RequestRefund(ctx context.Context, orderUID string, amountCents int64, actor string) (*models.Refund, error) {
	const fn = "lifecycle.RequestRefund"
	log := e.log.With("fn", fn, slog.String("order_uid", orderUID))

	var (
		refund  *models.Refund
		payment *models.Payment
	)

	// Validation and the pending insert run under the per-order lock.
	err := e.withOrder(ctx, orderUID, func(order *models.Order) error {
		if !CanTransition(order.State, models.StatePartiallyRefunded) {
			return &InvalidOrderStateError{
				OrderUID:  orderUID,
				Current:   order.State,
				Requested: models.StatePartiallyRefunded,
			}
		}

		var err error

		payment, err = e.capturedPayment(ctx, orderUID)
		if err != nil {
			return err
		}

		// Pending refunds still hold their share of the balance.
		reserved, err := e.refundTotal(ctx, payment.ID, models.RefundPending, models.RefundCompleted)
		if err != nil {
			return err
		}

		refundable := payment.AmountCents - reserved
		if amountCents <= 0 || amountCents > refundable {
			return fmt.Errorf("%w: requested %d, refundable %d",
				ErrRefundExceedsBalance, amountCents, refundable)
		}

		now := e.now()
		refund = &models.Refund{
			ID:          uuid.NewString(),
			PaymentID:   payment.ID,
			AmountCents: amountCents,
			State:       models.RefundPending,
			IssuedBy:    actor,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		if err := e.store.SaveRefund(ctx, refund); err != nil {
			return fmt.Errorf("can't save refund: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn, err)
	}

	// Gateway call happens outside the per-order lock.
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.AdapterTimeout)
	defer cancel()

	refundRef, err := e.gateway.Refund(callCtx, payment.GatewayTxnRef, amountCents)
	if err != nil {
		log.Error("gateway refund failed", sl.Err(err))

		// A refund the gateway never saw must stop holding the balance.
		refund.State = models.RefundFailed
		refund.UpdatedAt = e.now()
		if updErr := e.store.UpdateRefund(ctx, refund); updErr != nil {
			log.Error("failed to mark refund failed", sl.Err(updErr))
		}

		return nil, fmt.Errorf("%s: %w", fn, err)
	}

	refund.ExternalRef = refundRef
	refund.UpdatedAt = e.now()
	if err := e.store.UpdateRefund(ctx, refund); err != nil {
		return nil, fmt.Errorf("%s: can't save refund: %w", fn, err)
	}

	log.Info("refund requested",
		slog.Int64("amount", amountCents),
		slog.String("actor", actor),
	)

	return refund, nil
}

// StartProcessing moves a paid order into fulfillment.
func (e *Engine) StartProcessing(ctx context.Context, orderUID string) (*models.Order, error) {
	const fn = "lifecycle.StartProcessing"

	var out *models.Order

	err := e.withOrder(ctx, orderUID, func(order *models.Order) error {
		if order.State != models.StatePaid {
			return &InvalidOrderStateError{
				OrderUID:  orderUID,
				Current:   order.State,
				Requested: models.StateProcessing,
			}
		}

		if err := e.applyTransition(ctx, order, models.StateProcessing); err != nil {
			return err
		}

		out = order

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn, err)
	}

	return out, nil
}

// AdvanceShipment purchases a label for a processing order and moves it
// to shipped. Rate lookup and label purchase run outside the per-order
// lock with bounded retries; on failure the order stays in processing
// and the error is retryable by the caller.
func (e *Engine) AdvanceShipment(ctx context.Context, orderUID, carrier, serviceLevel string) (*models.Order, error) {
	const fn = "lifecycle.AdvanceShipment"
	log := e.log.With("fn", fn, slog.String("order_uid", orderUID))

	order, err := e.store.GetOrder(ctx, orderUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn, err)
	}

	if order.State != models.StateProcessing {
		return nil, &InvalidOrderStateError{
			OrderUID:  orderUID,
			Current:   order.State,
			Requested: models.StateShipped,
		}
	}

	var ref *shipping.ShipmentRef

	err = e.cfg.ShippingRetry.Do(ctx, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.AdapterTimeout)
		defer cancel()

		quotes, err := e.shipping.GetRates(callCtx, e.cfg.DefaultParcel, e.cfg.OriginAddress, order.ShippingAddress)
		if err != nil {
			return err
		}

		rateID, err := pickRate(quotes, carrier, serviceLevel)
		if err != nil {
			return err
		}

		ref, err = e.shipping.PurchaseLabel(callCtx, rateID)

		return err
	})
	if err != nil {
		log.Error("label purchase failed, order stays in processing", sl.Err(err))

		return nil, fmt.Errorf("%s: %w", fn, err)
	}

	now := e.now()
	rec := &models.ShipmentRecord{
		ID:             uuid.NewString(),
		OrderUID:       orderUID,
		ShipmentRef:    ref.ShipmentID,
		LabelRef:       ref.LabelID,
		Carrier:        ref.Carrier,
		ServiceLevel:   ref.ServiceLevel,
		TrackingNumber: ref.TrackingNumber,
		TrackingStatus: string(shipping.TrackingPreTransit),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := e.store.SaveShipment(ctx, rec); err != nil {
		return nil, fmt.Errorf("%s: can't save shipment: %w", fn, err)
	}

	var out *models.Order

	err = e.withOrder(ctx, orderUID, func(order *models.Order) error {
		order.Carrier = ref.Carrier
		order.ServiceLevel = ref.ServiceLevel
		order.ShipmentRef = ref.ShipmentID
		order.TrackingNumber = ref.TrackingNumber

		if err := e.applyTransition(ctx, order, models.StateShipped); err != nil {
			return err
		}

		out = order

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn, err)
	}

	log.Info("shipment advanced",
		slog.String("carrier", ref.Carrier),
		slog.String("tracking_number", ref.TrackingNumber),
	)

	return out, nil
}

// HandleShippingWebhook ingests a carrier tracking event with the same
// idempotency and acknowledgment contract as payment webhooks.
func (e *Engine) HandleShippingWebhook(ctx context.Context, evt shipping.TrackingEvent) error {
	const fn = "lifecycle.HandleShippingWebhook"
	log := e.log.With("fn", fn, slog.String("event_id", evt.ExternalID))

	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("%s: can't marshal event: %w", fn, err)
	}

	inserted, err := e.store.InsertWebhookEvent(ctx, &models.WebhookEvent{
		ExternalID: evt.ExternalID,
		Source:     models.SourceShipping,
		EventType:  string(evt.Status),
		Payload:    payload,
		ReceivedAt: e.now(),
	})
	if err != nil {
		return fmt.Errorf("%s: can't record event: %w", fn, err)
	}
	if !inserted {
		log.Debug("duplicate tracking event, skipping")

		return nil
	}

	procErr := e.IngestTrackingUpdate(ctx, evt.ShipmentRef, evt.Status)
	if procErr != nil {
		log.Warn("tracking event processing failed", sl.Err(procErr))
	}

	if err := e.store.MarkWebhookProcessed(ctx, evt.ExternalID, errText(procErr)); err != nil {
		log.Error("failed to mark webhook processed", sl.Err(err))
	}

	return nil
}

// IngestTrackingUpdate records the latest tracking status on the
// shipment and, for a final delivery status, moves the order from
// shipped to delivered. An unreachable transition leaves the order
// untouched and is reported to the caller.
func (e *Engine) IngestTrackingUpdate(ctx context.Context, shipmentRef string, status shipping.TrackingStatus) error {
	const fn = "lifecycle.IngestTrackingUpdate"

	rec, err := e.store.GetShipmentByRef(ctx, shipmentRef)
	if err != nil {
		return fmt.Errorf("%s: %w", fn, err)
	}

	rec.TrackingStatus = string(status)
	rec.UpdatedAt = e.now()
	if err := e.store.UpdateShipment(ctx, rec); err != nil {
		return fmt.Errorf("%s: can't update shipment: %w", fn, err)
	}

	if !status.Final() {
		return nil
	}

	err = e.withOrder(ctx, rec.OrderUID, func(order *models.Order) error {
		if !CanTransition(order.State, models.StateDelivered) {
			return &InvalidOrderStateError{
				OrderUID:  order.OrderUID,
				Current:   order.State,
				Requested: models.StateDelivered,
			}
		}

		return e.applyTransition(ctx, order, models.StateDelivered)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", fn, err)
	}

	return nil
}

// SweepDelivered completes delivered orders whose retention window has
// elapsed without a dispute or refund. Called by the background sweep
// job; the engine owns no timers.
func (e *Engine) SweepDelivered(ctx context.Context) (int, error) {
	const fn = "lifecycle.SweepDelivered"
	log := e.log.With("fn", fn)

	cutoff := e.now().Add(-e.cfg.RetentionWindow)

	orders, err := e.store.ListOrdersInState(ctx, models.StateDelivered, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", fn, err)
	}

	completed := 0

	for _, stale := range orders {
		err := e.withOrder(ctx, stale.OrderUID, func(order *models.Order) error {
			if order.State != models.StateDelivered {
				return nil // refunded or disputed since listing
			}

			return e.applyTransition(ctx, order, models.StateCompleted)
		})
		if err != nil {
			log.Error("failed to complete order", slog.String("order_uid", stale.OrderUID), sl.Err(err))

			continue
		}

		completed++
	}

	return completed, nil
}

// ArchiveTerminal soft-archives orders that have been terminal longer
// than the archive window. Orders are never hard-deleted.
func (e *Engine) ArchiveTerminal(ctx context.Context) (int64, error) {
	const fn = "lifecycle.ArchiveTerminal"

	n, err := e.store.ArchiveOrders(ctx, e.now().Add(-e.cfg.ArchiveWindow))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", fn, err)
	}

	return n, nil
}

// RemindAwaitingPayment triggers payment reminders for orders that have
// been awaiting payment longer than the configured age.
func (e *Engine) RemindAwaitingPayment(ctx context.Context) (int, error) {
	const fn = "lifecycle.RemindAwaitingPayment"

	cutoff := e.now().Add(-e.cfg.ReminderAge)

	orders, err := e.store.ListOrdersInState(ctx, models.StateAwaitingPayment, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", fn, err)
	}

	for _, order := range orders {
		e.notifier.PaymentReminder(ctx, order)
	}

	return len(orders), nil
}

// AdminOverrideState forces an order into a target state outside the
// lifecycle graph. Every override writes an audit entry; this is the
// only mutation path that bypasses the transition table.
func (e *Engine) AdminOverrideState(ctx context.Context, orderUID string, target models.OrderState, actor, reason string) (*models.Order, error) {
	const fn = "lifecycle.AdminOverrideState"
	log := e.log.With("fn", fn, slog.String("order_uid", orderUID))

	var out *models.Order

	err := e.withOrder(ctx, orderUID, func(order *models.Order) error {
		entry := &models.AuditEntry{
			OrderUID:  orderUID,
			Actor:     actor,
			Action:    "state_override",
			FromState: string(order.State),
			ToState:   string(target),
			Reason:    reason,
			CreatedAt: e.now(),
		}

		if err := e.store.SaveAuditEntry(ctx, entry); err != nil {
			return fmt.Errorf("can't save audit entry: %w", err)
		}

		previous := order.State
		order.SetState(target, e.now())

		if err := e.store.UpdateOrder(ctx, order); err != nil {
			return fmt.Errorf("can't update order: %w", err)
		}

		e.invalidate(ctx, order)
		e.notifier.OrderStateChanged(ctx, order, previous)

		out = order

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn, err)
	}

	log.Warn("state overridden",
		slog.String("target", string(target)),
		slog.String("actor", actor),
	)

	return out, nil
}

// withOrder serializes a read-modify-write cycle for one order. The
// per-order lock covers only the cycle itself; version conflicts from
// other processes are retried with a fresh read.
func (e *Engine) withOrder(ctx context.Context, orderUID string, fn func(order *models.Order) error) error {
	e.locks.Lock(orderUID)
	defer e.locks.Unlock(orderUID)

	const maxAttempts = 3

	var err error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		var order *models.Order

		order, err = e.store.GetOrder(ctx, orderUID)
		if err != nil {
			return err
		}

		err = fn(order)
		if !errors.Is(err, storage.ErrVersionConflict) {
			return err
		}
	}

	return err
}

// applyTransition validates the transition against the state graph,
// persists it and fans out cache invalidation and notification. Every
// rejected attempt is logged with the blocking state and the target.
func (e *Engine) applyTransition(ctx context.Context, order *models.Order, to models.OrderState) error {
	if !CanTransition(order.State, to) {
		e.log.Warn("transition rejected",
			slog.String("order_uid", order.OrderUID),
			slog.String("current", string(order.State)),
			slog.String("requested", string(to)),
		)

		return &InvalidOrderStateError{OrderUID: order.OrderUID, Current: order.State, Requested: to}
	}

	previous := order.State
	order.SetState(to, e.now())

	if err := e.store.UpdateOrder(ctx, order); err != nil {
		return fmt.Errorf("can't update order: %w", err)
	}

	e.log.Info("order transitioned",
		slog.String("order_uid", order.OrderUID),
		slog.String("from", string(previous)),
		slog.String("to", string(to)),
	)

	e.invalidate(ctx, order)
	e.notifier.OrderStateChanged(ctx, order, previous)

	return nil
}

func (e *Engine) invalidate(ctx context.Context, order *models.Order) {
	if e.cache == nil {
		return
	}

	if err := e.cache.Invalidate(ctx, order.OrderUID); err != nil {
		e.log.Error("cache invalidation failed",
			slog.String("order_uid", order.OrderUID), sl.Err(err))
	}
}

// capturedPayment returns the order's single non-failed captured
// payment.
func (e *Engine) capturedPayment(ctx context.Context, orderUID string) (*models.Payment, error) {
	payments, err := e.store.PaymentsForOrder(ctx, orderUID)
	if err != nil {
		return nil, err
	}

	for _, p := range payments {
		switch p.State {
		case models.PaymentCompleted, models.PaymentPartiallyRefunded:
			return p, nil
		}
	}

	return nil, ErrNoCapturedPayment
}

// refundTotal sums refunds for the payment that are in one of the given
// states.
func (e *Engine) refundTotal(ctx context.Context, paymentID string, states ...models.RefundState) (int64, error) {
	refunds, err := e.store.RefundsForPayment(ctx, paymentID)
	if err != nil {
		return 0, fmt.Errorf("can't list refunds: %w", err)
	}

	var total int64
	for _, r := range refunds {
		for _, state := range states {
			if r.State == state {
				total += r.AmountCents
				break
			}
		}
	}

	return total, nil
}

func reservedLines(order *models.Order) []models.ReservedLine {
	lines := make([]models.ReservedLine, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, models.ReservedLine{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return lines
}

func pickRate(quotes []shipping.RateQuote, carrier, serviceLevel string) (string, error) {
	for _, q := range quotes {
		if q.Carrier == carrier && (serviceLevel == "" || q.ServiceLevel == serviceLevel) {
			return q.RateID, nil
		}
	}

	if len(quotes) > 0 && carrier == "" {
		return quotes[0].RateID, nil
	}

	return "", &shipping.ShippingError{
		Op:  "get_rates",
		Err: fmt.Errorf("no rate for carrier %q service %q", carrier, serviceLevel),
	}
}

func validAddress(a models.Address) bool {
	return a.Name != "" && a.Address != "" && a.City != "" && a.Zip != ""
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
