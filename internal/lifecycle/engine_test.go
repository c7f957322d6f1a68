package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/orderflow/storefront/internal/gateway"
	"github.com/orderflow/storefront/internal/models"
	"github.com/orderflow/storefront/internal/shipping"
	"github.com/orderflow/storefront/internal/storage"
	"github.com/orderflow/storefront/internal/storage/memory"
)

type fakeGateway struct {
	mu        sync.Mutex
	charges   []string // order uids
	refunds   []int64
	chargeSeq int
	refundSeq int
	refundErr error
}

func (g *fakeGateway) Charge(_ context.Context, order *models.Order, _ string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.charges = append(g.charges, order.OrderUID)
	g.chargeSeq++

	return fmt.Sprintf("txn-%d", g.chargeSeq), nil
}

func (g *fakeGateway) Refund(_ context.Context, _ string, amountCents int64) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.refundErr != nil {
		return "", g.refundErr
	}

	g.refunds = append(g.refunds, amountCents)
	g.refundSeq++

	return fmt.Sprintf("rfnd-%d", g.refundSeq), nil
}

type fakeAggregator struct {
	rateErr error
}

func (a *fakeAggregator) GetRates(_ context.Context, _ shipping.Parcel, _, _ models.Address) ([]shipping.RateQuote, error) {
	if a.rateErr != nil {
		return nil, a.rateErr
	}

	return []shipping.RateQuote{
		{RateID: "rate-1", Carrier: "usps", ServiceLevel: "ground", AmountCents: 500, Currency: "USD", EstimateDays: 3},
	}, nil
}

func (a *fakeAggregator) PurchaseLabel(_ context.Context, rateID string) (*shipping.ShipmentRef, error) {
	if rateID != "rate-1" {
		return nil, &shipping.ShippingError{Op: "purchase_label", Err: errors.New("unknown rate")}
	}

	return &shipping.ShipmentRef{
		ShipmentID:     "shp-1",
		LabelID:        "lbl-1",
		Carrier:        "usps",
		ServiceLevel:   "ground",
		TrackingNumber: "1Z999",
	}, nil
}

func (a *fakeAggregator) GetTracking(_ context.Context, _ string) (shipping.TrackingStatus, error) {
	return shipping.TrackingInTransit, nil
}

type noopNotifier struct{}

func (noopNotifier) OrderStateChanged(context.Context, *models.Order, models.OrderState) {}
func (noopNotifier) PaymentReminder(context.Context, *models.Order)                      {}

type testEnv struct {
	engine *Engine
	store  *memory.Store
	stock  *memory.Stock
	gw     *fakeGateway
	now    time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := memory.NewStore()
	stock := memory.NewStock()
	gw := &fakeGateway{}

	env := &testEnv{
		store: store,
		stock: stock,
		gw:    gw,
		now:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	env.engine = New(
		store,
		stock,
		gw,
		&fakeAggregator{},
		nil,
		noopNotifier{},
		Config{
			Currency:        "USD",
			AdapterTimeout:  time.Second,
			RetentionWindow: 14 * 24 * time.Hour,
			ArchiveWindow:   90 * 24 * time.Hour,
			ReminderAge:     24 * time.Hour,
			ShippingRetry:   shipping.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
			DefaultParcel:   shipping.Parcel{WeightGrams: 1000},
			OriginAddress:   testAddress("Warehouse"),
		},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	env.engine.now = func() time.Time { return env.now }

	return env
}

func testAddress(name string) models.Address {
	return models.Address{
		Name:    name,
		Zip:     "2639809",
		City:    "Kiryat Mozkin",
		Address: "Ploshad Mira 15",
		Region:  "Kraiot",
	}
}

func testCart() CartSnapshot {
	return CartSnapshot{
		CustomerID: "customer-1",
		Items: []models.LineItem{
			{ProductID: "p-1", Name: "Mascaras", Quantity: 2, UnitPriceCents: 2500},
			{ProductID: "p-2", Name: "Vision", Quantity: 1, UnitPriceCents: 5000},
		},
		ShippingCents: 500,
		PaymentMethod: "card",
	}
}

func (env *testEnv) submit(t *testing.T) *models.Order {
	t.Helper()

	env.stock.SetStock("p-1", 10)
	env.stock.SetStock("p-2", 10)

	order, err := env.engine.SubmitOrder(context.Background(), testCart(), AddressSnapshots{
		Billing:  testAddress("Test Testov"),
		Shipping: testAddress("Test Testov"),
	})
	if err != nil {
		t.Fatalf("SubmitOrder: %v", err)
	}

	return order
}

// pay drives the order through the charge.completed webhook.
func (env *testEnv) pay(t *testing.T, order *models.Order, eventID string) {
	t.Helper()

	err := env.engine.HandlePaymentWebhook(context.Background(), gateway.WebhookEvent{
		ExternalID:  eventID,
		Type:        gateway.EventChargeCompleted,
		OrderUID:    order.OrderUID,
		TxnRef:      "txn-1",
		AmountCents: order.TotalCents,
		Currency:    "USD",
	})
	if err != nil {
		t.Fatalf("HandlePaymentWebhook: %v", err)
	}
}

func (env *testEnv) mustState(t *testing.T, orderUID string, want models.OrderState) *models.Order {
	t.Helper()

	order, err := env.store.GetOrder(context.Background(), orderUID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if order.State != want {
		t.Fatalf("order state = %s, want %s", order.State, want)
	}

	return order
}

func TestSubmitOrderTotals(t *testing.T) {
	env := newTestEnv(t)

	order := env.submit(t)

	// 2*25.00 + 50.00 items, 5.00 shipping.
	if order.SubtotalCents != 10000 {
		t.Errorf("subtotal = %d, want 10000", order.SubtotalCents)
	}
	if order.TotalCents != 10500 {
		t.Errorf("total = %d, want 10500", order.TotalCents)
	}

	env.mustState(t, order.OrderUID, models.StateAwaitingPayment)

	if len(env.gw.charges) != 1 || env.gw.charges[0] != order.OrderUID {
		t.Errorf("expected one charge for %s, got %v", order.OrderUID, env.gw.charges)
	}

	item, _ := env.stock.Item("p-1")
	if item.Available != 8 || item.Reserved != 2 {
		t.Errorf("p-1 available/reserved = %d/%d, want 8/2", item.Available, item.Reserved)
	}
}

func TestSubmitOrderValidation(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.SubmitOrder(context.Background(), CartSnapshot{CustomerID: "c"}, AddressSnapshots{
		Billing:  testAddress("A"),
		Shipping: testAddress("B"),
	})
	if !errors.Is(err, ErrEmptyCart) {
		t.Errorf("empty cart: got %v, want ErrEmptyCart", err)
	}

	_, err = env.engine.SubmitOrder(context.Background(), testCart(), AddressSnapshots{})
	if !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("missing address: got %v, want ErrInvalidAddress", err)
	}
}

func TestSubmitOrderInsufficientStock(t *testing.T) {
	env := newTestEnv(t)

	env.stock.SetStock("p-1", 1)
	env.stock.SetStock("p-2", 10)

	_, err := env.engine.SubmitOrder(context.Background(), testCart(), AddressSnapshots{
		Billing:  testAddress("A"),
		Shipping: testAddress("A"),
	})

	var insufficient *storage.InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("got %v, want InsufficientStockError", err)
	}
	if len(insufficient.ProductIDs) != 1 || insufficient.ProductIDs[0] != "p-1" {
		t.Errorf("short products = %v, want [p-1]", insufficient.ProductIDs)
	}

	// All-or-nothing: the in-stock line must not stay decremented.
	item, _ := env.stock.Item("p-2")
	if item.Available != 10 || item.Reserved != 0 {
		t.Errorf("p-2 available/reserved = %d/%d, want 10/0", item.Available, item.Reserved)
	}
}

// failingUpdateStore injects an error into the order update path.
type failingUpdateStore struct {
	*memory.Store
	updateErr error
}

func (s *failingUpdateStore) UpdateOrder(ctx context.Context, order *models.Order) error {
	if s.updateErr != nil {
		return s.updateErr
	}

	return s.Store.UpdateOrder(ctx, order)
}

func TestSubmitOrderPersistFailureReleasesStock(t *testing.T) {
	stock := memory.NewStock()
	store := &failingUpdateStore{Store: memory.NewStore(), updateErr: errors.New("db down")}

	engine := New(
		store,
		stock,
		&fakeGateway{},
		&fakeAggregator{},
		nil,
		noopNotifier{},
		Config{Currency: "USD", AdapterTimeout: time.Second},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)

	stock.SetStock("p-1", 10)
	stock.SetStock("p-2", 10)

	_, err := engine.SubmitOrder(context.Background(), testCart(), AddressSnapshots{
		Billing:  testAddress("A"),
		Shipping: testAddress("A"),
	})
	if err == nil {
		t.Fatal("expected SubmitOrder to fail")
	}

	// A checkout that never reached awaiting_payment must not keep the
	// hold alive.
	item, _ := stock.Item("p-1")
	if item.Available != 10 || item.Reserved != 0 {
		t.Errorf("p-1 available/reserved = %d/%d, want 10/0", item.Available, item.Reserved)
	}
}

func TestHappyPathToCompleted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	order := env.submit(t)

	env.pay(t, order, "evt-1")
	env.mustState(t, order.OrderUID, models.StatePaid)

	// Payment confirmation makes the stock decrement permanent.
	item, _ := env.stock.Item("p-1")
	if item.Reserved != 0 || item.Available != 8 {
		t.Errorf("p-1 available/reserved after commit = %d/%d, want 8/0", item.Available, item.Reserved)
	}

	if _, err := env.engine.StartProcessing(ctx, order.OrderUID); err != nil {
		t.Fatalf("StartProcessing: %v", err)
	}

	shipped, err := env.engine.AdvanceShipment(ctx, order.OrderUID, "usps", "ground")
	if err != nil {
		t.Fatalf("AdvanceShipment: %v", err)
	}
	if shipped.TrackingNumber != "1Z999" {
		t.Errorf("tracking number = %q, want 1Z999", shipped.TrackingNumber)
	}
	env.mustState(t, order.OrderUID, models.StateShipped)

	if err := env.engine.IngestTrackingUpdate(ctx, "shp-1", shipping.TrackingDelivered); err != nil {
		t.Fatalf("IngestTrackingUpdate: %v", err)
	}
	env.mustState(t, order.OrderUID, models.StateDelivered)

	// Inside the retention window nothing completes.
	completed, err := env.engine.SweepDelivered(ctx)
	if err != nil {
		t.Fatalf("SweepDelivered: %v", err)
	}
	if completed != 0 {
		t.Errorf("completed inside retention window = %d, want 0", completed)
	}

	env.now = env.now.Add(15 * 24 * time.Hour)

	completed, err = env.engine.SweepDelivered(ctx)
	if err != nil {
		t.Fatalf("SweepDelivered: %v", err)
	}
	if completed != 1 {
		t.Errorf("completed = %d, want 1", completed)
	}
	env.mustState(t, order.OrderUID, models.StateCompleted)
}

func TestPaymentWebhookReplay(t *testing.T) {
	env := newTestEnv(t)

	order := env.submit(t)

	env.pay(t, order, "evt-dup")
	env.pay(t, order, "evt-dup") // redelivery of the same external id

	env.mustState(t, order.OrderUID, models.StatePaid)

	event, ok := env.store.GetWebhookEvent("evt-dup")
	if !ok {
		t.Fatal("webhook event not recorded")
	}
	if !event.Processed || event.Error != "" {
		t.Errorf("event processed=%v error=%q, want processed with no error", event.Processed, event.Error)
	}
}

func TestPaymentWebhookUnreachableTransition(t *testing.T) {
	env := newTestEnv(t)

	order := env.submit(t)
	env.pay(t, order, "evt-1")

	// A second completion with a fresh external id is recorded but the
	// paid order is not transitioned again.
	env.pay(t, order, "evt-2")

	env.mustState(t, order.OrderUID, models.StatePaid)

	event, ok := env.store.GetWebhookEvent("evt-2")
	if !ok {
		t.Fatal("webhook event not recorded")
	}
	if !event.Processed || event.Error == "" {
		t.Error("expected the unreachable transition to be recorded as a processing error")
	}
}

func TestChargeAmountMismatch(t *testing.T) {
	env := newTestEnv(t)

	order := env.submit(t)

	err := env.engine.HandlePaymentWebhook(context.Background(), gateway.WebhookEvent{
		ExternalID:  "evt-bad-amount",
		Type:        gateway.EventChargeCompleted,
		OrderUID:    order.OrderUID,
		TxnRef:      "txn-1",
		AmountCents: 9999,
		Currency:    "USD",
	})
	if err != nil {
		t.Fatalf("HandlePaymentWebhook: %v", err)
	}

	env.mustState(t, order.OrderUID, models.StateAwaitingPayment)

	event, _ := env.store.GetWebhookEvent("evt-bad-amount")
	if event == nil || event.Error == "" {
		t.Error("expected amount mismatch to be recorded on the event")
	}
}

func TestChargeFailedReleasesStock(t *testing.T) {
	env := newTestEnv(t)

	order := env.submit(t)

	err := env.engine.HandlePaymentWebhook(context.Background(), gateway.WebhookEvent{
		ExternalID: "evt-fail",
		Type:       gateway.EventChargeFailed,
		OrderUID:   order.OrderUID,
		TxnRef:     "txn-1",
	})
	if err != nil {
		t.Fatalf("HandlePaymentWebhook: %v", err)
	}

	env.mustState(t, order.OrderUID, models.StateFailed)

	item, _ := env.stock.Item("p-1")
	if item.Available != 10 || item.Reserved != 0 {
		t.Errorf("p-1 available/reserved = %d/%d, want 10/0", item.Available, item.Reserved)
	}
}

func TestRefundFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	order := env.submit(t)
	env.pay(t, order, "evt-1")

	refund, err := env.engine.RequestRefund(ctx, order.OrderUID, 5000, "support")
	if err != nil {
		t.Fatalf("RequestRefund: %v", err)
	}
	if refund.State != models.RefundPending {
		t.Errorf("refund state = %s, want pending", refund.State)
	}

	// The order only moves once the gateway confirms.
	env.mustState(t, order.OrderUID, models.StatePaid)

	err = env.engine.HandlePaymentWebhook(ctx, gateway.WebhookEvent{
		ExternalID: "evt-refund-1",
		Type:       gateway.EventRefundCompleted,
		OrderUID:   order.OrderUID,
		TxnRef:     "txn-1",
		RefundRef:  refund.ExternalRef,
	})
	if err != nil {
		t.Fatalf("HandlePaymentWebhook: %v", err)
	}

	env.mustState(t, order.OrderUID, models.StatePartiallyRefunded)

	// 105.00 captured, 50.00 refunded: another 60.00 exceeds the balance.
	_, err = env.engine.RequestRefund(ctx, order.OrderUID, 6000, "support")
	if !errors.Is(err, ErrRefundExceedsBalance) {
		t.Errorf("over-refund: got %v, want ErrRefundExceedsBalance", err)
	}

	// Refunding the exact remainder moves the order to refunded.
	refund2, err := env.engine.RequestRefund(ctx, order.OrderUID, 5500, "support")
	if err != nil {
		t.Fatalf("RequestRefund remainder: %v", err)
	}

	err = env.engine.HandlePaymentWebhook(ctx, gateway.WebhookEvent{
		ExternalID: "evt-refund-2",
		Type:       gateway.EventRefundCompleted,
		OrderUID:   order.OrderUID,
		TxnRef:     "txn-1",
		RefundRef:  refund2.ExternalRef,
	})
	if err != nil {
		t.Fatalf("HandlePaymentWebhook: %v", err)
	}

	env.mustState(t, order.OrderUID, models.StateRefunded)
}

func TestRefundPendingReservesBalance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	order := env.submit(t)
	env.pay(t, order, "evt-1")

	if _, err := env.engine.RequestRefund(ctx, order.OrderUID, order.TotalCents, "support"); err != nil {
		t.Fatalf("RequestRefund: %v", err)
	}

	// The first refund is unconfirmed, but it already holds the whole
	// balance: a second full-amount request must not reach the gateway.
	_, err := env.engine.RequestRefund(ctx, order.OrderUID, order.TotalCents, "support")
	if !errors.Is(err, ErrRefundExceedsBalance) {
		t.Fatalf("second refund: got %v, want ErrRefundExceedsBalance", err)
	}

	if len(env.gw.refunds) != 1 {
		t.Errorf("gateway refund calls = %d, want 1", len(env.gw.refunds))
	}
}

func TestRefundFailedInitiationFreesBalance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	order := env.submit(t)
	env.pay(t, order, "evt-1")

	env.gw.refundErr = errors.New("gateway unavailable")

	_, err := env.engine.RequestRefund(ctx, order.OrderUID, 5000, "support")
	if err == nil {
		t.Fatal("expected refund initiation to fail")
	}

	env.gw.refundErr = nil

	// The failed attempt stops holding the balance.
	if _, err := env.engine.RequestRefund(ctx, order.OrderUID, order.TotalCents, "support"); err != nil {
		t.Fatalf("RequestRefund after failed attempt: %v", err)
	}
}

func TestRefundRequiresCapturedPayment(t *testing.T) {
	env := newTestEnv(t)

	order := env.submit(t)

	_, err := env.engine.RequestRefund(context.Background(), order.OrderUID, 1000, "support")

	var invalidState *InvalidOrderStateError
	if !errors.As(err, &invalidState) {
		t.Fatalf("got %v, want InvalidOrderStateError", err)
	}
	if invalidState.Current != models.StateAwaitingPayment {
		t.Errorf("blocking state = %s, want awaiting_payment", invalidState.Current)
	}
}

func TestCancellation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	order := env.submit(t)

	// Not allowed while payment is pending.
	_, err := env.engine.RequestCancellation(ctx, order.OrderUID, "customer")

	var invalidState *InvalidOrderStateError
	if !errors.As(err, &invalidState) {
		t.Fatalf("got %v, want InvalidOrderStateError", err)
	}

	env.pay(t, order, "evt-1")

	cancelled, err := env.engine.RequestCancellation(ctx, order.OrderUID, "customer")
	if err != nil {
		t.Fatalf("RequestCancellation: %v", err)
	}
	if cancelled.State != models.StateCancelled {
		t.Errorf("state = %s, want cancelled", cancelled.State)
	}

	// Committed stock goes back on the shelf.
	item, _ := env.stock.Item("p-1")
	if item.Available != 10 {
		t.Errorf("p-1 available = %d, want 10", item.Available)
	}
}

func TestConcurrentOversell(t *testing.T) {
	env := newTestEnv(t)

	env.stock.SetStock("p-solo", 1)

	cart := CartSnapshot{
		CustomerID:    "customer-1",
		Items:         []models.LineItem{{ProductID: "p-solo", Name: "Last one", Quantity: 1, UnitPriceCents: 1000}},
		PaymentMethod: "card",
	}
	addrs := AddressSnapshots{Billing: testAddress("A"), Shipping: testAddress("A")}

	var wg sync.WaitGroup
	errs := make([]error, 2)

	for i := range errs {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, errs[i] = env.engine.SubmitOrder(context.Background(), cart, addrs)
		}()
	}

	wg.Wait()

	var won, lost int
	for _, err := range errs {
		var insufficient *storage.InsufficientStockError

		switch {
		case err == nil:
			won++
		case errors.As(err, &insufficient):
			lost++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if won != 1 || lost != 1 {
		t.Errorf("won=%d lost=%d, want exactly one winner", won, lost)
	}

	item, _ := env.stock.Item("p-solo")
	if item.Available != 0 || item.Reserved != 1 {
		t.Errorf("p-solo available/reserved = %d/%d, want 0/1", item.Available, item.Reserved)
	}
}

func TestAdminOverrideWritesAudit(t *testing.T) {
	env := newTestEnv(t)

	order := env.submit(t)

	// completed is unreachable from awaiting_payment through the graph.
	out, err := env.engine.AdminOverrideState(context.Background(), order.OrderUID, models.StateCompleted, "admin", "support escalation")
	if err != nil {
		t.Fatalf("AdminOverrideState: %v", err)
	}
	if out.State != models.StateCompleted {
		t.Errorf("state = %s, want completed", out.State)
	}

	entries := env.store.AuditEntries()
	if len(entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(entries))
	}
	if entries[0].Actor != "admin" || entries[0].ToState != string(models.StateCompleted) {
		t.Errorf("unexpected audit entry: %+v", entries[0])
	}
}

func TestRemindAwaitingPayment(t *testing.T) {
	env := newTestEnv(t)

	order := env.submit(t)

	sent, err := env.engine.RemindAwaitingPayment(context.Background())
	if err != nil {
		t.Fatalf("RemindAwaitingPayment: %v", err)
	}
	if sent != 0 {
		t.Errorf("reminders before cutoff = %d, want 0", sent)
	}

	env.now = env.now.Add(25 * time.Hour)

	sent, err = env.engine.RemindAwaitingPayment(context.Background())
	if err != nil {
		t.Fatalf("RemindAwaitingPayment: %v", err)
	}
	if sent != 1 {
		t.Errorf("reminders = %d, want 1", sent)
	}

	env.mustState(t, order.OrderUID, models.StateAwaitingPayment)
}
