package swipes

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dkudzin/nestswipe/internal/domain/model"
	"github.com/dkudzin/nestswipe/internal/identity"
	"github.com/dkudzin/nestswipe/internal/queue"
)

// Service is the surface the interaction layer talks to. Enqueue is the
// one call the rendering path depends on: it validates, records, persists
// and returns, with no network I/O in between.
type Service struct {
	queue  *queue.Queue
	actors *identity.Cache
	logger *zap.Logger
	now    func() time.Time
}

func NewService(q *queue.Queue, actors *identity.Cache, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}

	return &Service{
		queue:  q,
		actors: actors,
		logger: log,
		now:    time.Now,
	}
}

// Enqueue records one swipe gesture. The actor id is attached now if the
// session is already known, otherwise it is resolved lazily at drain time;
// pre-login swipes are buffered, not rejected. The only possible error is
// input validation.
func (s *Service) Enqueue(targetID string, direction model.Direction, targetType model.TargetType) error {
	actorID := ""
	if s.actors != nil {
		actorID, _ = s.actors.Get()
	}

	action, err := model.NewQueuedAction(targetID, direction, targetType, actorID, s.now().UTC())
	if err != nil {
		return err
	}

	s.queue.Enqueue(action)
	return nil
}

func (s *Service) SetActorID(actorID string) {
	if s.actors != nil {
		s.actors.Set(actorID)
	}
}

func (s *Service) PrefetchActorID(ctx context.Context) {
	if s.actors != nil {
		s.actors.Prefetch(ctx)
	}
}

func (s *Service) Depth() int {
	return s.queue.Depth()
}

func (s *Service) Dropped() int64 {
	return s.queue.Dropped()
}
