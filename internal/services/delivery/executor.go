package delivery

import (
	"context"
	"errors"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dkudzin/nestswipe/internal/domain/model"
)

type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeRetryable
	OutcomeFatal
)

type Result struct {
	Action  model.QueuedAction
	Outcome Outcome
	Err     error
}

// RemoteStore is the idempotent insert-or-update operation against the
// remote table, keyed on (actor, target, target type).
type RemoteStore interface {
	Upsert(ctx context.Context, action model.QueuedAction) error
}

// ActorSource resolves the authenticated actor id, lazily and cached.
type ActorSource interface {
	Resolve(ctx context.Context) (string, error)
}

// Executor delivers one drained batch to the remote store and classifies
// each action's outcome. Distinct logical targets are written concurrently
// (the batch size bounds the fan-out); actions sharing the same
// (actor, target, type) triple are written one after another in batch
// order, so the last-delivered direction is the last-enqueued one.
type Executor struct {
	remote RemoteStore
	actors ActorSource
	logger *zap.Logger
}

func NewExecutor(remote RemoteStore, actors ActorSource, log *zap.Logger) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{remote: remote, actors: actors, logger: log}
}

// Execute writes the batch. A non-nil error means the batch as a whole was
// not attempted (no authenticated session yet, or the context ended) and
// should go back to the queue untouched.
func (e *Executor) Execute(ctx context.Context, batch []model.QueuedAction) ([]Result, error) {
	if len(batch) == 0 {
		return nil, nil
	}

	for i := range batch {
		if batch[i].ActorID != "" {
			continue
		}
		actorID, err := e.actors.Resolve(ctx)
		if err != nil {
			return nil, err
		}
		for j := i; j < len(batch); j++ {
			if batch[j].ActorID == "" {
				batch[j].ActorID = actorID
			}
		}
		break
	}

	// Per-triple chains keep same-target writes in FIFO order while
	// unrelated targets fan out.
	chains := make(map[string][]int, len(batch))
	order := make([]string, 0, len(batch))
	for i, action := range batch {
		key := action.TripleKey()
		if _, seen := chains[key]; !seen {
			order = append(order, key)
		}
		chains[key] = append(chains[key], i)
	}

	results := make([]Result, len(batch))

	g := new(errgroup.Group)
	g.SetLimit(len(batch))
	for _, key := range order {
		indexes := chains[key]
		g.Go(func() error {
			for _, i := range indexes {
				err := e.remote.Upsert(ctx, batch[i])
				results[i] = Result{
					Action:  batch[i],
					Outcome: Classify(err),
					Err:     err,
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	return results, nil
}

// Classify sorts a write error into the retry taxonomy: transient faults
// are retryable, validation and permission faults are fatal because
// retrying them cannot succeed.
func Classify(err error) Outcome {
	if err == nil {
		return OutcomeOK
	}

	if errors.Is(err, model.ErrValidation) {
		return OutcomeFatal
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) >= 2 {
		switch pgErr.Code[:2] {
		case "22", "23", "28", "42":
			// data exception, integrity violation, auth failure,
			// access/undefined-object errors
			return OutcomeFatal
		}
		return OutcomeRetryable
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return OutcomeRetryable
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return OutcomeRetryable
	}

	return OutcomeRetryable
}
