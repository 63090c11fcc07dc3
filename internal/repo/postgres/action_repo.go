package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dkudzin/nestswipe/internal/domain/model"
)

// ActionRepo writes swipe actions to the remote store. The write is an
// upsert keyed on (actor_id, target_id, target_type): redelivering the same
// logical action overwrites the stored direction instead of duplicating it.
type ActionRepo struct {
	pool *pgxpool.Pool
}

func NewActionRepo(pool *pgxpool.Pool) *ActionRepo {
	return &ActionRepo{pool: pool}
}

func (r *ActionRepo) Upsert(ctx context.Context, action model.QueuedAction) error {
	if strings.TrimSpace(action.ActorID) == "" ||
		strings.TrimSpace(action.TargetID) == "" {
		return fmt.Errorf("%w: actor and target are required", model.ErrValidation)
	}
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	if _, err := r.pool.Exec(ctx, `
INSERT INTO swipe_actions (
	actor_id,
	target_id,
	target_type,
	direction,
	created_at,
	updated_at
) VALUES ($1, $2, $3, $4, NOW(), NOW())
ON CONFLICT (actor_id, target_id, target_type) DO UPDATE SET
	direction = EXCLUDED.direction,
	updated_at = NOW()
`, action.ActorID, action.TargetID, string(action.TargetType), string(action.Direction)); err != nil {
		return fmt.Errorf("upsert swipe action: %w", err)
	}

	return nil
}
