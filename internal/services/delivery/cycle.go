package delivery

import (
	"context"

	"go.uber.org/zap"

	"github.com/dkudzin/nestswipe/internal/domain/model"
)

// ActionQueue is the slice of the queue the drain cycle needs.
type ActionQueue interface {
	DrainBatch(maxSize int) []model.QueuedAction
	Requeue(action model.QueuedAction)
	ReturnBatch(batch []model.QueuedAction)
	Depth() int
}

// Dispatcher fans out post-write side effects for confirmed positive
// actions. Dispatch must not block and must not fail the caller.
type Dispatcher interface {
	Dispatch(action model.QueuedAction)
}

type Config struct {
	BatchSize int
}

// Service is the drain cycle: it pulls one batch off the queue, hands it
// to the executor, and routes each outcome (side effects, requeue, drop).
type Service struct {
	queue      ActionQueue
	executor   *Executor
	dispatcher Dispatcher
	cfg        Config
	logger     *zap.Logger
}

func NewService(queue ActionQueue, executor *Executor, dispatcher Dispatcher, cfg Config, log *zap.Logger) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Service{
		queue:      queue,
		executor:   executor,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     log,
	}
}

// RunCycle processes one batch and reports whether pending work remains.
func (s *Service) RunCycle(ctx context.Context) bool {
	batch := s.queue.DrainBatch(s.cfg.BatchSize)
	if len(batch) == 0 {
		return false
	}

	results, err := s.executor.Execute(ctx, batch)
	if err != nil {
		// The batch was never attempted; put it back where it was and
		// wait for a later cycle.
		s.queue.ReturnBatch(batch)
		s.logger.Debug("batch deferred", zap.Error(err), zap.Int("size", len(batch)))
		return false
	}

	for _, res := range results {
		switch res.Outcome {
		case OutcomeOK:
			if res.Action.Direction == model.DirectionRight && s.dispatcher != nil {
				s.dispatcher.Dispatch(res.Action)
			}
		case OutcomeRetryable:
			s.queue.Requeue(res.Action)
		case OutcomeFatal:
			s.logger.Warn("dropping action after fatal write failure",
				zap.String("action_id", res.Action.ID),
				zap.String("target_id", res.Action.TargetID),
				zap.Error(res.Err),
			)
		}
	}

	return s.queue.Depth() > 0
}
