package delivery

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dkudzin/nestswipe/internal/domain/model"
	"github.com/dkudzin/nestswipe/internal/identity"
	"github.com/dkudzin/nestswipe/internal/queue"
	"github.com/dkudzin/nestswipe/internal/repo/localstore"
	"github.com/dkudzin/nestswipe/internal/scheduler"
)

type dispatcherStub struct {
	mu   sync.Mutex
	seen []model.QueuedAction
}

func (d *dispatcherStub) Dispatch(action model.QueuedAction) {
	d.mu.Lock()
	d.seen = append(d.seen, action)
	d.mu.Unlock()
}

func (d *dispatcherStub) targets() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.seen))
	for i, a := range d.seen {
		out[i] = a.TargetID
	}
	return out
}

func TestRunCycleDispatchesOnlyConfirmedLikes(t *testing.T) {
	q := queue.New(nil, queue.Config{}, nil)
	q.Enqueue(mustAction(t, "listing-1", model.DirectionRight, model.TargetListing, "user-1"))
	q.Enqueue(mustAction(t, "listing-2", model.DirectionLeft, model.TargetListing, "user-1"))

	dispatcher := &dispatcherStub{}
	exec := NewExecutor(&remoteStoreStub{}, &actorSourceStub{id: "user-1"}, nil)
	svc := NewService(q, exec, dispatcher, Config{BatchSize: 5}, nil)

	if more := svc.RunCycle(context.Background()); more {
		t.Fatal("expected the queue to be empty after one cycle")
	}
	if q.Depth() != 0 {
		t.Fatalf("queue depth %d after successful delivery", q.Depth())
	}
	if got := dispatcher.targets(); len(got) != 1 || got[0] != "listing-1" {
		t.Fatalf("expected side effects only for the like, got %v", got)
	}
}

func TestRunCycleRequeuesRetryableFailures(t *testing.T) {
	q := queue.New(nil, queue.Config{}, nil)
	flaky := mustAction(t, "listing-1", model.DirectionRight, model.TargetListing, "user-1")
	ok := mustAction(t, "listing-2", model.DirectionRight, model.TargetListing, "user-1")
	q.Enqueue(flaky)
	q.Enqueue(ok)

	remote := &remoteStoreStub{errBy: map[string]error{flaky.ID: errors.New("connection refused")}}
	dispatcher := &dispatcherStub{}
	exec := NewExecutor(remote, &actorSourceStub{id: "user-1"}, nil)
	svc := NewService(q, exec, dispatcher, Config{BatchSize: 5}, nil)

	if more := svc.RunCycle(context.Background()); !more {
		t.Fatal("expected pending work after a retryable failure")
	}
	if q.Depth() != 1 {
		t.Fatalf("expected only the failed action requeued, depth %d", q.Depth())
	}
	if got := dispatcher.targets(); len(got) != 1 || got[0] != "listing-2" {
		t.Fatalf("side effects must follow confirmed writes only, got %v", got)
	}

	requeued := q.DrainBatch(1)
	if len(requeued) != 1 || requeued[0].ID != flaky.ID {
		t.Fatalf("wrong action requeued: %+v", requeued)
	}
	if requeued[0].RetryCount != 1 {
		t.Fatalf("retry count not bumped, got %d", requeued[0].RetryCount)
	}
}

func TestRunCycleDropsFatalFailures(t *testing.T) {
	q := queue.New(nil, queue.Config{}, nil)
	bad := mustAction(t, "listing-gone", model.DirectionRight, model.TargetListing, "user-1")
	q.Enqueue(bad)

	remote := &remoteStoreStub{errBy: map[string]error{bad.ID: &pgconn.PgError{Code: "23503"}}}
	dispatcher := &dispatcherStub{}
	exec := NewExecutor(remote, &actorSourceStub{id: "user-1"}, nil)
	svc := NewService(q, exec, dispatcher, Config{BatchSize: 5}, nil)

	if more := svc.RunCycle(context.Background()); more {
		t.Fatal("a fatally failed action must not stay pending")
	}
	if q.Depth() != 0 {
		t.Fatalf("fatal failure must not be requeued, depth %d", q.Depth())
	}
	if len(dispatcher.targets()) != 0 {
		t.Fatal("no side effects for a failed write")
	}
}

func TestRunCycleReturnsBatchWhenUnattempted(t *testing.T) {
	q := queue.New(nil, queue.Config{}, nil)
	first := mustAction(t, "listing-1", model.DirectionRight, model.TargetListing, "")
	second := mustAction(t, "listing-2", model.DirectionLeft, model.TargetListing, "")
	q.Enqueue(first)
	q.Enqueue(second)

	exec := NewExecutor(&remoteStoreStub{}, &actorSourceStub{err: errors.New("no session")}, nil)
	svc := NewService(q, exec, &dispatcherStub{}, Config{BatchSize: 5}, nil)

	if more := svc.RunCycle(context.Background()); more {
		t.Fatal("a deferred batch must not request immediate rescheduling")
	}
	if q.Depth() != 2 {
		t.Fatalf("deferred batch must be fully restored, depth %d", q.Depth())
	}

	restored := q.DrainBatch(2)
	if restored[0].ID != first.ID || restored[1].ID != second.ID {
		t.Fatal("deferred batch restored out of order")
	}
	if restored[0].RetryCount != 0 || restored[1].RetryCount != 0 {
		t.Fatal("deferring a batch must not bump retry counters")
	}
}

func TestRunCycleBatchSizeBoundsDrain(t *testing.T) {
	q := queue.New(nil, queue.Config{}, nil)
	for i := 0; i < 7; i++ {
		q.Enqueue(mustAction(t, "listing", model.DirectionLeft, model.TargetListing, "user-1"))
	}

	exec := NewExecutor(&remoteStoreStub{}, &actorSourceStub{id: "user-1"}, nil)
	svc := NewService(q, exec, &dispatcherStub{}, Config{BatchSize: 5}, nil)

	if more := svc.RunCycle(context.Background()); !more {
		t.Fatal("expected remaining work after a partial drain")
	}
	if q.Depth() != 2 {
		t.Fatalf("expected 2 actions left after a 5-action batch, depth %d", q.Depth())
	}
	if more := svc.RunCycle(context.Background()); more {
		t.Fatal("expected the queue drained after the second cycle")
	}
}

// A swipe buffered before login must flow out right after the session
// appears, without another swipe or a restart to nudge the scheduler.
func TestLoginWakesDeferredDelivery(t *testing.T) {
	q := queue.New(nil, queue.Config{}, nil)
	actors := identity.NewCache(nil, nil)
	remote := &remoteStoreStub{}
	exec := NewExecutor(remote, actors, nil)
	svc := NewService(q, exec, &dispatcherStub{}, Config{BatchSize: 5}, nil)

	sched := scheduler.New(svc.RunCycle, scheduler.Config{IdleTimeout: time.Millisecond}, nil)
	q.OnEnqueue(sched.Wake)
	actors.OnSet(sched.Wake)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sched.Run(ctx)

	q.Enqueue(mustAction(t, "listing-1", model.DirectionRight, model.TargetListing, ""))

	// The drain defers: no session yet. The swipe must stay buffered.
	time.Sleep(30 * time.Millisecond)
	if q.Depth() != 1 {
		t.Fatalf("deferred swipe must stay buffered, depth %d", q.Depth())
	}
	remote.mu.Lock()
	attempts := len(remote.seen)
	remote.mu.Unlock()
	if attempts != 0 {
		t.Fatalf("no write may happen before login, saw %d", attempts)
	}

	actors.Set("user-1")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && q.Depth() > 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if q.Depth() != 0 {
		t.Fatal("buffered swipe never delivered after login")
	}

	remote.mu.Lock()
	defer remote.mu.Unlock()
	if len(remote.seen) != 1 || remote.seen[0].ActorID != "user-1" {
		t.Fatalf("unexpected writes after login: %+v", remote.seen)
	}
}

// Simulates the offline-then-relaunch path end to end: swipes recorded
// against a file snapshot, a fresh queue restoring from it, and a drain
// once the remote store is reachable.
func TestOfflineSwipesSurviveRestartAndFlush(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pending.json")
	ctx := context.Background()

	slot := func() *localstore.SnapshotRepo {
		repo, err := localstore.NewSnapshotRepo(path)
		if err != nil {
			t.Fatalf("snapshot repo: %v", err)
		}
		return repo
	}

	offline := queue.New(slot(), queue.Config{}, nil)
	offline.Enqueue(mustAction(t, "listing-1", model.DirectionRight, model.TargetListing, "user-1"))
	offline.Enqueue(mustAction(t, "listing-2", model.DirectionLeft, model.TargetListing, "user-1"))

	// Relaunch: a new queue over the same snapshot slot.
	restored := queue.New(slot(), queue.Config{}, nil)
	restored.Restore(ctx)
	if restored.Depth() != 2 {
		t.Fatalf("expected 2 restored actions, got %d", restored.Depth())
	}

	remote := &remoteStoreStub{}
	dispatcher := &dispatcherStub{}
	exec := NewExecutor(remote, &actorSourceStub{id: "user-1"}, nil)
	svc := NewService(restored, exec, dispatcher, Config{BatchSize: 5}, nil)

	if more := svc.RunCycle(ctx); more {
		t.Fatal("expected the restored queue drained in one cycle")
	}
	if restored.Depth() != 0 {
		t.Fatalf("queue depth %d after flush", restored.Depth())
	}
	if len(remote.seen) != 2 {
		t.Fatalf("expected 2 remote writes, got %d", len(remote.seen))
	}
	if got := dispatcher.targets(); len(got) != 1 || got[0] != "listing-1" {
		t.Fatalf("expected side effects for the restored like, got %v", got)
	}

	// The snapshot slot must be empty after the flush.
	again := queue.New(slot(), queue.Config{}, nil)
	again.Restore(ctx)
	if again.Depth() != 0 {
		t.Fatalf("snapshot not cleared after flush, restored %d", again.Depth())
	}
}
