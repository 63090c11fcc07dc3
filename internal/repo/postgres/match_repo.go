package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dkudzin/nestswipe/internal/domain/model"
)

type MatchRepo struct {
	pool *pgxpool.Pool
}

func NewMatchRepo(pool *pgxpool.Pool) *MatchRepo {
	return &MatchRepo{pool: pool}
}

// ReciprocalExists reports whether otherUserID already swiped right on a
// profile owned by actorID.
func (r *MatchRepo) ReciprocalExists(ctx context.Context, actorID, otherUserID string) (bool, error) {
	if actorID == "" || otherUserID == "" {
		return false, fmt.Errorf("%w: both actors are required", model.ErrValidation)
	}
	if r.pool == nil {
		return false, fmt.Errorf("postgres pool is nil")
	}

	var one int
	err := r.pool.QueryRow(ctx, `
SELECT 1
FROM swipe_actions sa
JOIN profiles p ON p.id = sa.target_id
WHERE
	sa.actor_id = $1
	AND sa.direction = 'right'
	AND sa.target_type = 'profile'
	AND p.user_id = $2
LIMIT 1
`, otherUserID, actorID).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("lookup reciprocal action: %w", err)
	}

	return true, nil
}

// EnsureMatch upserts the match and its conversation for the unordered
// actor pair, atomically. The pair alone identifies the match: the two
// sides of a mutual like arrive with different target profiles, so the
// context id is recorded for provenance but kept out of the conflict key.
// Repeated detection from either side, or redelivery of an already
// matched swipe, lands on the conflict keys and creates nothing new.
func (r *MatchRepo) EnsureMatch(ctx context.Context, actorID, otherUserID, contextID string) (bool, error) {
	if actorID == "" || otherUserID == "" {
		return false, fmt.Errorf("%w: both actors are required", model.ErrValidation)
	}
	if r.pool == nil {
		return false, fmt.Errorf("postgres pool is nil")
	}

	userA, userB := actorID, otherUserID
	if userA > userB {
		userA, userB = userB, userA
	}

	created := false
	err := WithTx(ctx, r.pool, func(txCtx context.Context, tx pgx.Tx) error {
		var matchID string
		err := tx.QueryRow(txCtx, `
INSERT INTO matches (
	user_a_id,
	user_b_id,
	context_id,
	created_at
) VALUES ($1, $2, $3, NOW())
ON CONFLICT (user_a_id, user_b_id) DO NOTHING
RETURNING id
`, userA, userB, contextID).Scan(&matchID)
		if err != nil {
			if !errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("create match: %w", err)
			}
			// Match existed already; find it so the conversation
			// upsert still has its key.
			if err := tx.QueryRow(txCtx, `
SELECT id
FROM matches
WHERE user_a_id = $1 AND user_b_id = $2
`, userA, userB).Scan(&matchID); err != nil {
				return fmt.Errorf("load existing match: %w", err)
			}
		} else {
			created = true
		}

		if _, err := tx.Exec(txCtx, `
INSERT INTO conversations (
	match_id,
	created_at
) VALUES ($1, NOW())
ON CONFLICT (match_id) DO NOTHING
`, matchID); err != nil {
			return fmt.Errorf("create conversation: %w", err)
		}

		return nil
	})
	if err != nil {
		return false, err
	}

	return created, nil
}
