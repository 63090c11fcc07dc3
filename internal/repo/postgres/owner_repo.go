package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dkudzin/nestswipe/internal/domain/model"
)

var ErrOwnerNotFound = errors.New("target owner not found")

// OwnerRepo resolves who should be notified about a positive swipe: the
// owner of a listing, or the user behind a candidate profile.
type OwnerRepo struct {
	pool *pgxpool.Pool
}

func NewOwnerRepo(pool *pgxpool.Pool) *OwnerRepo {
	return &OwnerRepo{pool: pool}
}

func (r *OwnerRepo) OwnerOf(ctx context.Context, targetID string, targetType model.TargetType) (string, error) {
	if targetID == "" {
		return "", fmt.Errorf("%w: target id is required", model.ErrValidation)
	}
	if r.pool == nil {
		return "", fmt.Errorf("postgres pool is nil")
	}

	var query string
	switch targetType {
	case model.TargetListing:
		query = `SELECT owner_id FROM listings WHERE id = $1`
	case model.TargetProfile:
		query = `SELECT user_id FROM profiles WHERE id = $1`
	default:
		return "", fmt.Errorf("%w: unsupported target type %q", model.ErrValidation, targetType)
	}

	var ownerID string
	if err := r.pool.QueryRow(ctx, query, targetID).Scan(&ownerID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrOwnerNotFound
		}
		return "", fmt.Errorf("resolve target owner: %w", err)
	}

	return ownerID, nil
}
