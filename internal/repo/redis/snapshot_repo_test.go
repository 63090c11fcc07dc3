package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/dkudzin/nestswipe/internal/domain/model"
)

func newMiniRedisRepo(t *testing.T) (*miniredis.Miniredis, *SnapshotRepo) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, NewSnapshotRepo(client, "test:pending")
}

func TestRedisSnapshotRoundTrip(t *testing.T) {
	_, repo := newMiniRedisRepo(t)
	ctx := context.Background()

	actions := []model.QueuedAction{
		{ID: "1", TargetID: "L1", TargetType: model.TargetListing, Direction: model.DirectionRight},
		{ID: "2", TargetID: "P2", TargetType: model.TargetProfile, Direction: model.DirectionLeft, RetryCount: 1},
	}

	if err := repo.Save(ctx, actions); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != 2 || loaded[0].ID != "1" || loaded[1].ID != "2" {
		t.Fatalf("unexpected snapshot contents: %+v", loaded)
	}
}

func TestRedisSnapshotMissingKeyIsEmptyQueue(t *testing.T) {
	_, repo := newMiniRedisRepo(t)

	loaded, err := repo.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != 0 {
		t.Fatalf("expected empty queue, got %d", len(loaded))
	}
}

func TestRedisSnapshotCorruptValueIsEmptyQueue(t *testing.T) {
	mr, repo := newMiniRedisRepo(t)
	if err := mr.Set("test:pending", "{broken"); err != nil {
		t.Fatalf("seed corrupt value: %v", err)
	}

	loaded, err := repo.Load(context.Background())
	if err != nil || len(loaded) != 0 {
		t.Fatalf("corrupt snapshot must read as empty: %v %v", loaded, err)
	}
}

func TestRedisSnapshotClear(t *testing.T) {
	mr, repo := newMiniRedisRepo(t)
	ctx := context.Background()

	if err := repo.Save(ctx, []model.QueuedAction{{ID: "1", TargetID: "L1"}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := repo.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if mr.Exists("test:pending") {
		t.Fatalf("expected snapshot key to be deleted")
	}
}
