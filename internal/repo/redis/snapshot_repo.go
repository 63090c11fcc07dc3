package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dkudzin/nestswipe/internal/domain/model"
)

const snapshotOpTimeout = 2 * time.Second

// SnapshotRepo keeps the pending-queue snapshot under a single redis key.
// It backs deployments of the agent without a writable disk; the contract
// is identical to the file slot: write whole, read whole, clear on empty.
type SnapshotRepo struct {
	client *goredis.Client
	key    string
}

func NewSnapshotRepo(client *goredis.Client, key string) *SnapshotRepo {
	if key == "" {
		key = "nestswipe:pending_swipes"
	}
	return &SnapshotRepo{client: client, key: key}
}

func (r *SnapshotRepo) Load(ctx context.Context) ([]model.QueuedAction, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}

	ctx, cancel := context.WithTimeout(ctx, snapshotOpTimeout)
	defer cancel()

	data, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("get snapshot key: %w", err)
	}

	var actions []model.QueuedAction
	if err := json.Unmarshal(data, &actions); err != nil {
		return nil, nil
	}

	return actions, nil
}

func (r *SnapshotRepo) Save(ctx context.Context, actions []model.QueuedAction) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}

	data, err := json.Marshal(actions)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, snapshotOpTimeout)
	defer cancel()

	if err := r.client.Set(ctx, r.key, data, 0).Err(); err != nil {
		return fmt.Errorf("set snapshot key: %w", err)
	}

	return nil
}

func (r *SnapshotRepo) Clear(ctx context.Context) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}

	ctx, cancel := context.WithTimeout(ctx, snapshotOpTimeout)
	defer cancel()

	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("delete snapshot key: %w", err)
	}

	return nil
}
