package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Cycle drains and delivers one batch. It reports whether pending work
// remains, in which case the scheduler reschedules itself.
type Cycle func(ctx context.Context) bool

type Config struct {
	// IdleTimeout is the stand-in for a cooperative idle callback: each
	// drain is deferred off the interactive path, but never by more than
	// this bound.
	IdleTimeout time.Duration
}

// Scheduler runs drain cycles on a single background goroutine. The wake
// channel has capacity one, so any number of enqueues during an in-flight
// cycle collapse into a single follow-up cycle.
type Scheduler struct {
	wake   chan struct{}
	cycle  Cycle
	cfg    Config
	logger *zap.Logger
}

func New(cycle Cycle, cfg Config, log *zap.Logger) *Scheduler {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 500 * time.Millisecond
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Scheduler{
		wake:   make(chan struct{}, 1),
		cycle:  cycle,
		cfg:    cfg,
		logger: log,
	}
}

// Wake requests a drain cycle. Never blocks; a wake during an in-flight
// cycle is absorbed by the buffered channel.
func (s *Scheduler) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is cancelled, servicing wake requests.
func (s *Scheduler) Run(ctx context.Context) {
	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		}

		timer.Reset(s.cfg.IdleTimeout)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return
		case <-timer.C:
		}

		start := time.Now()
		more := s.cycle(ctx)
		s.logger.Debug("drain cycle finished",
			zap.Duration("took", time.Since(start)),
			zap.Bool("more_pending", more),
		)

		if more {
			s.Wake()
		}
	}
}
