package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dkudzin/nestswipe/internal/domain/model"
)

type NotificationRepo struct {
	pool *pgxpool.Pool
}

func NewNotificationRepo(pool *pgxpool.Pool) *NotificationRepo {
	return &NotificationRepo{pool: pool}
}

// Insert writes one notification row. The dedupe key
// (recipient_id, kind, ref_id, sender_id) makes redelivery of the same
// swipe produce at most one notification.
func (r *NotificationRepo) Insert(ctx context.Context, recipientID, senderID, kind, refID string) error {
	if strings.TrimSpace(recipientID) == "" || strings.TrimSpace(kind) == "" {
		return fmt.Errorf("%w: recipient and kind are required", model.ErrValidation)
	}
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	if _, err := r.pool.Exec(ctx, `
INSERT INTO notifications (
	recipient_id,
	sender_id,
	kind,
	ref_id,
	read,
	created_at
) VALUES ($1, $2, $3, $4, FALSE, NOW())
ON CONFLICT (recipient_id, sender_id, kind, ref_id) DO NOTHING
`, recipientID, senderID, kind, refID); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}

	return nil
}
