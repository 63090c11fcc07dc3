package queue

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/dkudzin/nestswipe/internal/domain/model"
)

// SnapshotStore is the durable slot holding the serialized pending queue.
// The snapshot is written whole on every mutation and read whole once on
// restore. A missing or corrupt snapshot is an empty queue, not an error.
type SnapshotStore interface {
	Load(ctx context.Context) ([]model.QueuedAction, error)
	Save(ctx context.Context, actions []model.QueuedAction) error
	Clear(ctx context.Context) error
}

type Config struct {
	MaxRetries int
}

// Queue is the in-memory FIFO of pending swipe actions. Every method is a
// single synchronous step under one mutex; nothing here suspends, which is
// what keeps the enqueue path safe to call from the interaction layer.
type Queue struct {
	mu            sync.Mutex
	items         []model.QueuedAction
	dropped       int64
	persistFailed bool

	store  SnapshotStore
	cfg    Config
	logger *zap.Logger
	notify func()
}

func New(store SnapshotStore, cfg Config, log *zap.Logger) *Queue {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Queue{
		store:  store,
		cfg:    cfg,
		logger: log,
	}
}

// OnEnqueue registers the scheduler wake hook. Called once during wiring,
// before the queue is shared.
func (q *Queue) OnEnqueue(fn func()) {
	q.notify = fn
}

// Enqueue appends an action and persists the snapshot. It never fails for
// a valid action: a broken snapshot store degrades to memory-only queueing.
func (q *Queue) Enqueue(action model.QueuedAction) {
	q.mu.Lock()
	q.items = append(q.items, action)
	q.persistLocked()
	q.mu.Unlock()

	if q.notify != nil {
		q.notify()
	}
}

// DrainBatch removes and returns up to maxSize actions from the head.
func (q *Queue) DrainBatch(maxSize int) []model.QueuedAction {
	if maxSize <= 0 {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	n := maxSize
	if n > len(q.items) {
		n = len(q.items)
	}
	if n == 0 {
		return nil
	}

	batch := make([]model.QueuedAction, n)
	copy(batch, q.items[:n])
	q.items = append(q.items[:0:0], q.items[n:]...)
	q.persistLocked()

	return batch
}

// Requeue puts a failed action back at the tail with its retry counter
// bumped. A requeued action loses its original position relative to swipes
// enqueued meanwhile; delivery is recency-biased on purpose. Once the
// counter exceeds MaxRetries the action is dropped and only counted.
func (q *Queue) Requeue(action model.QueuedAction) {
	action.RetryCount++

	q.mu.Lock()
	defer q.mu.Unlock()

	if action.RetryCount > q.cfg.MaxRetries {
		q.dropped++
		q.logger.Info("action dropped after exhausted retries",
			zap.String("action_id", action.ID),
			zap.String("target_id", action.TargetID),
			zap.Int("retries", action.RetryCount-1),
			zap.Int64("dropped_total", q.dropped),
		)
		return
	}

	q.items = append(q.items, action)
	q.persistLocked()
}

// ReturnBatch reinstates a drained batch at the head in its original order,
// without touching retry counters. Used when the whole batch could not be
// attempted, e.g. no authenticated session yet.
func (q *Queue) ReturnBatch(batch []model.QueuedAction) {
	if len(batch) == 0 {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	restored := make([]model.QueuedAction, 0, len(batch)+len(q.items))
	restored = append(restored, batch...)
	restored = append(restored, q.items...)
	q.items = restored
	q.persistLocked()
}

// Restore repopulates the queue from a previously persisted snapshot. It is
// called once during wiring, before any enqueue, so unflushed swipes from a
// prior session resume at the head.
func (q *Queue) Restore(ctx context.Context) {
	if q.store == nil {
		return
	}

	loaded, err := q.store.Load(ctx)
	if err != nil {
		q.logger.Warn("restore pending queue snapshot", zap.Error(err))
		return
	}
	if len(loaded) == 0 {
		return
	}

	q.mu.Lock()
	q.items = append(loaded, q.items...)
	q.mu.Unlock()

	q.logger.Info("restored pending actions from snapshot", zap.Int("count", len(loaded)))

	if q.notify != nil {
		q.notify()
	}
}

func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped reports how many actions were discarded after exhausted retries.
func (q *Queue) Dropped() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// persistLocked mirrors the queue into the snapshot slot. The slot is
// cleared only when the queue becomes empty. Persistence is best effort:
// failures are logged once and queueing continues in memory.
func (q *Queue) persistLocked() {
	if q.store == nil {
		return
	}

	ctx := context.Background()

	var err error
	if len(q.items) == 0 {
		err = q.store.Clear(ctx)
	} else {
		snapshot := make([]model.QueuedAction, len(q.items))
		copy(snapshot, q.items)
		err = q.store.Save(ctx, snapshot)
	}

	if err != nil {
		if !q.persistFailed {
			q.logger.Warn("persist queue snapshot failed, continuing in-memory only", zap.Error(err))
		}
		q.persistFailed = true
		return
	}
	q.persistFailed = false
}
