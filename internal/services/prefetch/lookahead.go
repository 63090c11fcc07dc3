package prefetch

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ImageCache is the slice of the decode cache the prefetcher drives.
type ImageCache interface {
	Preload(ctx context.Context, url string) bool
	IsReady(url string) bool
}

type Config struct {
	// Lookahead is how many upcoming cards get their image warmed.
	Lookahead int
	// EagerCount of those are fetched immediately, nearest first; the
	// rest wait for IdleDelay so they never race the visible card.
	EagerCount int
	IdleDelay  time.Duration
}

// Lookahead feeds the decode cache ahead of the user's position in the
// deck. Each SetDeck call supersedes the previous pass.
type Lookahead struct {
	cache  ImageCache
	cfg    Config
	logger *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

func New(cache ImageCache, cfg Config, log *zap.Logger) *Lookahead {
	if cfg.Lookahead <= 0 {
		cfg.Lookahead = 5
	}
	if cfg.EagerCount <= 0 || cfg.EagerCount > cfg.Lookahead {
		cfg.EagerCount = 2
	}
	if cfg.IdleDelay <= 0 {
		cfg.IdleDelay = 250 * time.Millisecond
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Lookahead{cache: cache, cfg: cfg, logger: log}
}

// SetDeck points the prefetcher at the current deck position. Images for
// the next Lookahead cards are warmed in order of proximity: the nearest
// EagerCount right away, the far tail after an idle pause. A newer call
// cancels the in-flight pass.
func (l *Lookahead) SetDeck(deck []string, current int) {
	upcoming := sliceUpcoming(deck, current, l.cfg.Lookahead)
	if len(upcoming) == 0 {
		return
	}

	ctx := l.restart()

	go func() {
		for i, url := range upcoming {
			if ctx.Err() != nil {
				return
			}
			if i == l.cfg.EagerCount {
				select {
				case <-ctx.Done():
					return
				case <-time.After(l.cfg.IdleDelay):
				}
			}
			if l.cache.IsReady(url) {
				continue
			}
			l.cache.Preload(ctx, url)
		}
	}()
}

// Stop cancels any in-flight prefetch pass.
func (l *Lookahead) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
}

func (l *Lookahead) restart() context.Context {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cancel != nil {
		l.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	return ctx
}

func sliceUpcoming(deck []string, current, lookahead int) []string {
	if current < -1 {
		current = -1
	}
	start := current + 1
	if start >= len(deck) {
		return nil
	}
	end := start + lookahead
	if end > len(deck) {
		end = len(deck)
	}

	upcoming := make([]string, 0, end-start)
	for _, url := range deck[start:end] {
		if url != "" {
			upcoming = append(upcoming, url)
		}
	}
	return upcoming
}
