package postgres

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/orderflow/storefront/internal/models"
	"github.com/orderflow/storefront/internal/storage"
)

// InsertWebhookEvent records an inbound webhook delivery. The unique
// index on external_id makes concurrent duplicate deliveries resolve to
// exactly one inserted row; the losers see inserted == false and treat
// the event as already processed.
func (s *Storage) InsertWebhookEvent(ctx context.Context, event *models.WebhookEvent) (bool, error) {
	const fn = "storage.postgres.InsertWebhookEvent"

	query, args, err := s.sb.Insert("webhook_events").
		Columns("external_id", "source", "event_type", "payload", "processed", "received_at").
		Values(event.ExternalID, event.Source, event.EventType, event.Payload, false, event.ReceivedAt).
		Suffix("ON CONFLICT (external_id) DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("%s: can't build query: %v", fn, err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("%s: can't insert event: %v", fn, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: can't get rows affected: %v", fn, err)
	}

	return affected == 1, nil
}

func (s *Storage) MarkWebhookProcessed(ctx context.Context, externalID, processingErr string) error {
	const fn = "storage.postgres.MarkWebhookProcessed"

	query, args, err := s.sb.Update("webhook_events").
		Set("processed", true).
		Set("processed_at", time.Now().UTC()).
		Set("error", processingErr).
		Where(sq.Eq{"external_id": externalID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("%s: can't build query: %v", fn, err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: can't mark event processed: %v", fn, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: can't get rows affected: %v", fn, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", fn, storage.ErrNoWebhookEvent)
	}

	return nil
}
