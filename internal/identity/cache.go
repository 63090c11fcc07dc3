package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrUnavailable means no authenticated session exists yet. Queued actions
// stay buffered until one appears; nothing is dropped over this.
var ErrUnavailable = errors.New("identity unavailable")

// Provider answers who the current actor is. Resolution may suspend; the
// result is cached for the process lifetime.
type Provider interface {
	CurrentActor(ctx context.Context) (string, error)
}

// Cache is the single-slot actor-id cache. It is populated once, either
// explicitly by the session layer or lazily on first drain.
type Cache struct {
	mu       sync.Mutex
	actorID  string
	provider Provider
	group    singleflight.Group
	logger   *zap.Logger
	notify   func()
}

func NewCache(provider Provider, log *zap.Logger) *Cache {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{provider: provider, logger: log}
}

// OnSet registers a hook fired whenever the actor id becomes known.
// Wiring points it at the scheduler wake, so swipes buffered before login
// drain as soon as the session appears instead of waiting for the next
// enqueue. Called once during wiring, before the cache is shared.
func (c *Cache) OnSet(fn func()) {
	c.notify = fn
}

// Set stores the actor id directly, bypassing the provider. Used when the
// session layer already knows who is signed in.
func (c *Cache) Set(actorID string) {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return
	}

	c.mu.Lock()
	c.actorID = actorID
	c.mu.Unlock()

	if c.notify != nil {
		c.notify()
	}
}

// Get returns the cached actor id without resolving.
func (c *Cache) Get() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.actorID, c.actorID != ""
}

// Resolve returns the cached actor id, resolving it through the provider
// on first use. Concurrent callers share a single in-flight resolution.
func (c *Cache) Resolve(ctx context.Context) (string, error) {
	if id, ok := c.Get(); ok {
		return id, nil
	}
	if c.provider == nil {
		return "", ErrUnavailable
	}

	v, err, _ := c.group.Do("actor", func() (any, error) {
		id, err := c.provider.CurrentActor(ctx)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(id) == "" {
			return "", ErrUnavailable
		}
		c.Set(id)
		return id, nil
	})
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return v.(string), nil
}

// Prefetch warms the slot in the background so the first drain does not
// pay the resolution latency.
func (c *Cache) Prefetch(ctx context.Context) {
	if _, ok := c.Get(); ok {
		return
	}

	go func() {
		if _, err := c.Resolve(ctx); err != nil {
			c.logger.Debug("actor prefetch failed", zap.Error(err))
		}
	}()
}
