package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/orderflow/storefront/internal/models"
	"github.com/orderflow/storefront/internal/storage"
)

func TestInsertWebhookEventDedup(t *testing.T) {
	t.Parallel()

	store := NewStore()
	ctx := context.Background()

	inserted, err := store.InsertWebhookEvent(ctx, &models.WebhookEvent{
		ExternalID: "evt-1",
		Source:     models.SourcePayment,
		EventType:  "charge.completed",
		Payload:    []byte(`{}`),
		ReceivedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("InsertWebhookEvent: %v", err)
	}
	if !inserted {
		t.Error("first insert: inserted = false, want true")
	}

	inserted, err = store.InsertWebhookEvent(ctx, &models.WebhookEvent{
		ExternalID: "evt-1",
		Source:     models.SourcePayment,
		EventType:  "charge.completed",
		Payload:    []byte(`{}`),
		ReceivedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("InsertWebhookEvent replay: %v", err)
	}
	if inserted {
		t.Error("replay: inserted = true, want false")
	}
}

func TestMarkWebhookProcessed(t *testing.T) {
	t.Parallel()

	store := NewStore()
	ctx := context.Background()

	if _, err := store.InsertWebhookEvent(ctx, &models.WebhookEvent{
		ExternalID: "evt-1",
		Source:     models.SourceShipping,
		EventType:  "in_transit",
		Payload:    []byte(`{}`),
		ReceivedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("InsertWebhookEvent: %v", err)
	}

	if err := store.MarkWebhookProcessed(ctx, "evt-1", "boom"); err != nil {
		t.Fatalf("MarkWebhookProcessed: %v", err)
	}

	event, ok := store.GetWebhookEvent("evt-1")
	if !ok {
		t.Fatal("event not found after marking")
	}
	if !event.Processed || event.Error != "boom" || event.ProcessedAt == nil {
		t.Errorf("event = %+v, want processed with error recorded", event)
	}

	err := store.MarkWebhookProcessed(ctx, "evt-missing", "")
	if !errors.Is(err, storage.ErrNoWebhookEvent) {
		t.Errorf("unknown event: got %v, want ErrNoWebhookEvent", err)
	}
}
