package payment_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/orderflow/storefront/internal/gateway"
	"github.com/orderflow/storefront/internal/http-server/handlers/webhook/payment"
)

type stubIngester struct {
	events []gateway.WebhookEvent
	err    error
}

func (s *stubIngester) HandlePaymentWebhook(_ context.Context, evt gateway.WebhookEvent) error {
	s.events = append(s.events, evt)

	return s.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWebhookAccepted(t *testing.T) {
	const secret = "test-secret"

	ingester := &stubIngester{}
	handler := payment.New(context.Background(), discardLogger(), ingester, secret)

	body := []byte(`{"event_id":"evt-1","type":"charge.completed","order_uid":"order-1","transaction":"txn-1","amount":10500,"currency":"USD"}`)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(body))
	req.Header.Set(payment.SignatureHeader, gateway.Sign(body, secret))

	rr := httptest.NewRecorder()
	handler(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rr.Code)
	}
	if len(ingester.events) != 1 {
		t.Fatalf("ingested events = %d, want 1", len(ingester.events))
	}
	if ingester.events[0].ExternalID != "evt-1" || ingester.events[0].AmountCents != 10500 {
		t.Errorf("unexpected event: %+v", ingester.events[0])
	}
}

// The acknowledgment contract: processing failures still return 200,
// otherwise the gateway would redeliver an event that is already
// recorded.
func TestWebhookAcknowledgedDespiteProcessingError(t *testing.T) {
	const secret = "test-secret"

	ingester := &stubIngester{err: errors.New("storage down")}
	handler := payment.New(context.Background(), discardLogger(), ingester, secret)

	body := []byte(`{"event_id":"evt-1","type":"charge.completed"}`)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(body))
	req.Header.Set(payment.SignatureHeader, gateway.Sign(body, secret))

	rr := httptest.NewRecorder()
	handler(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rr.Code)
	}
}

func TestWebhookBadSignature(t *testing.T) {
	ingester := &stubIngester{}
	handler := payment.New(context.Background(), discardLogger(), ingester, "test-secret")

	body := []byte(`{"event_id":"evt-1"}`)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(body))
	req.Header.Set(payment.SignatureHeader, gateway.Sign(body, "attacker-secret"))

	rr := httptest.NewRecorder()
	handler(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rr.Code)
	}
	if len(ingester.events) != 0 {
		t.Errorf("event reached the engine despite bad signature")
	}
}

func TestWebhookMalformedBody(t *testing.T) {
	const secret = "test-secret"

	ingester := &stubIngester{}
	handler := payment.New(context.Background(), discardLogger(), ingester, secret)

	body := []byte(`not json`)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(body))
	req.Header.Set(payment.SignatureHeader, gateway.Sign(body, secret))

	rr := httptest.NewRecorder()
	handler(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}
