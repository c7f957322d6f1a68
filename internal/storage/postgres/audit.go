package postgres

import (
	"context"
	"fmt"

	"github.com/orderflow/storefront/internal/models"
)

func (s *Storage) SaveAuditEntry(ctx context.Context, entry *models.AuditEntry) error {
	const fn = "storage.postgres.SaveAuditEntry"

	query, args, err := s.sb.Insert("audit_log").
		Columns("order_uid", "actor", "action", "from_state", "to_state", "reason", "created_at").
		Values(entry.OrderUID, entry.Actor, entry.Action, entry.FromState,
			entry.ToState, entry.Reason, entry.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("%s: can't build query: %v", fn, err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: can't insert audit entry: %v", fn, err)
	}

	return nil
}
