package sideeffects

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dkudzin/nestswipe/internal/domain/model"
)

type OwnerStore interface {
	OwnerOf(ctx context.Context, targetID string, targetType model.TargetType) (string, error)
}

type NotificationStore interface {
	Insert(ctx context.Context, recipientID, senderID, kind, refID string) error
}

type MatchStore interface {
	ReciprocalExists(ctx context.Context, actorID, otherUserID string) (bool, error)
	EnsureMatch(ctx context.Context, actorID, otherUserID, contextID string) (bool, error)
}

type Config struct {
	JobTimeout time.Duration
}

// Dispatcher runs the post-write jobs for confirmed positive swipes:
// notify the target's owner, and detect a reciprocal match. Every job is
// detached and best effort. A lost notification or a missed match is
// recoverable (the match is re-derivable on the next candidate poll); the
// underlying write is not, so nothing here ever feeds back into the queue.
type Dispatcher struct {
	owners        OwnerStore
	notifications NotificationStore
	matches       MatchStore
	cfg           Config
	logger        *zap.Logger
	wg            sync.WaitGroup
}

// matchSideEffect is the transient result of a reciprocal-interest check.
// It lives inside a single job and is never queued or retried.
type matchSideEffect struct {
	recipientID string
	reciprocal  bool
}

func NewDispatcher(owners OwnerStore, notifications NotificationStore, matches MatchStore, cfg Config, log *zap.Logger) *Dispatcher {
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 5 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Dispatcher{
		owners:        owners,
		notifications: notifications,
		matches:       matches,
		cfg:           cfg,
		logger:        log,
	}
}

// Dispatch fires the two jobs for one confirmed right-swipe. They run
// independently: one failing does not stop the other, and neither outcome
// reaches the caller.
func (d *Dispatcher) Dispatch(action model.QueuedAction) {
	d.spawn(func(ctx context.Context) {
		d.notifyRecipient(ctx, action)
	})

	if action.TargetType == model.TargetProfile {
		d.spawn(func(ctx context.Context) {
			d.detectMatch(ctx, action)
		})
	}
}

// Wait blocks until all in-flight jobs settle. Only tests and shutdown
// call this; the delivery path never does.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) spawn(job func(ctx context.Context)) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Warn("side-effect job panicked", zap.Any("panic", r))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.JobTimeout)
		defer cancel()
		job(ctx)
	}()
}

func (d *Dispatcher) notifyRecipient(ctx context.Context, action model.QueuedAction) {
	if d.owners == nil || d.notifications == nil {
		return
	}

	recipientID, err := d.owners.OwnerOf(ctx, action.TargetID, action.TargetType)
	if err != nil {
		d.logger.Debug("resolve notification recipient failed",
			zap.String("target_id", action.TargetID), zap.Error(err))
		return
	}
	if recipientID == action.ActorID {
		return
	}

	kind := "listing_liked"
	if action.TargetType == model.TargetProfile {
		kind = "profile_liked"
	}

	if err := d.notifications.Insert(ctx, recipientID, action.ActorID, kind, action.TargetID); err != nil {
		d.logger.Debug("insert notification failed",
			zap.String("recipient_id", recipientID), zap.Error(err))
	}
}

func (d *Dispatcher) detectMatch(ctx context.Context, action model.QueuedAction) {
	if d.owners == nil || d.matches == nil {
		return
	}

	effect := matchSideEffect{}

	recipientID, err := d.owners.OwnerOf(ctx, action.TargetID, action.TargetType)
	if err != nil {
		d.logger.Debug("resolve match counterpart failed",
			zap.String("target_id", action.TargetID), zap.Error(err))
		return
	}
	effect.recipientID = recipientID
	if effect.recipientID == action.ActorID {
		return
	}

	effect.reciprocal, err = d.matches.ReciprocalExists(ctx, action.ActorID, effect.recipientID)
	if err != nil {
		d.logger.Debug("reciprocal lookup failed", zap.Error(err))
		return
	}
	if !effect.reciprocal {
		return
	}

	created, err := d.matches.EnsureMatch(ctx, action.ActorID, effect.recipientID, action.TargetID)
	if err != nil {
		d.logger.Debug("ensure match failed", zap.Error(err))
		return
	}
	if created {
		d.logger.Info("match created",
			zap.String("actor_id", action.ActorID),
			zap.String("other_id", effect.recipientID),
			zap.String("context_id", action.TargetID),
		)
	}
}
