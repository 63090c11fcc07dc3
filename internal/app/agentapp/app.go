package agentapp

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dkudzin/nestswipe/internal/config"
	"github.com/dkudzin/nestswipe/internal/identity"
	"github.com/dkudzin/nestswipe/internal/imagecache"
	"github.com/dkudzin/nestswipe/internal/queue"
	localrepo "github.com/dkudzin/nestswipe/internal/repo/localstore"
	pgrepo "github.com/dkudzin/nestswipe/internal/repo/postgres"
	redrepo "github.com/dkudzin/nestswipe/internal/repo/redis"
	"github.com/dkudzin/nestswipe/internal/scheduler"
	deliverysvc "github.com/dkudzin/nestswipe/internal/services/delivery"
	prefetchsvc "github.com/dkudzin/nestswipe/internal/services/prefetch"
	sideeffectsvc "github.com/dkudzin/nestswipe/internal/services/sideeffects"
	swipesvc "github.com/dkudzin/nestswipe/internal/services/swipes"
)

// App wires the whole client core: queue, scheduler, executor, dispatcher,
// image cache, and the loopback HTTP surface the SPA talks to.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	server *http.Server

	postgres   *pgxpool.Pool
	redis      *goredis.Client
	queue      *queue.Queue
	scheduler  *scheduler.Scheduler
	dispatcher *sideeffectsvc.Dispatcher
	lookahead  *prefetchsvc.Lookahead

	schedCtx    context.Context
	schedCancel context.CancelFunc
}

func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	r := chi.NewRouter()
	ApplyMiddlewares(r, log)

	var pool *pgxpool.Pool
	if p, err := pgrepo.NewPool(ctx, cfg.Postgres.DSN); err != nil {
		log.Warn("postgres init failed, swipes will queue until the store is reachable", zap.Error(err))
	} else {
		pool = p
	}

	var redisClient *goredis.Client
	snapshotStore := buildSnapshotStore(cfg, log, &redisClient)

	q := queue.New(snapshotStore, queue.Config{MaxRetries: cfg.Queue.MaxRetries}, log)

	actors := identity.NewCache(identity.NewTokenProvider(cfg.Identity.TokenPath), log)

	actionRepo := pgrepo.NewActionRepo(pool)
	ownerRepo := pgrepo.NewOwnerRepo(pool)
	notificationRepo := pgrepo.NewNotificationRepo(pool)
	matchRepo := pgrepo.NewMatchRepo(pool)

	dispatcher := sideeffectsvc.NewDispatcher(ownerRepo, notificationRepo, matchRepo, sideeffectsvc.Config{}, log)
	executor := deliverysvc.NewExecutor(actionRepo, actors, log)
	cycle := deliverysvc.NewService(q, executor, dispatcher, deliverysvc.Config{
		BatchSize: cfg.Queue.BatchSize,
	}, log)

	sched := scheduler.New(cycle.RunCycle, scheduler.Config{
		IdleTimeout: cfg.Queue.MaxFlushDelay,
	}, log)
	q.OnEnqueue(sched.Wake)
	actors.OnSet(sched.Wake)
	q.Restore(ctx)

	swipeService := swipesvc.NewService(q, actors, log)
	swipeService.PrefetchActorID(ctx)

	fetcher := &imagecache.SchemeFetcher{
		HTTP: imagecache.NewHTTPFetcher(cfg.Images.FetchTimeout, cfg.Images.MaxBodyBytes),
	}
	if cfg.Images.S3.Endpoint != "" {
		s3Fetcher, err := imagecache.NewS3Fetcher(imagecache.S3Config{
			Endpoint:  cfg.Images.S3.Endpoint,
			AccessKey: cfg.Images.S3.AccessKey,
			SecretKey: cfg.Images.S3.SecretKey,
			UseSSL:    cfg.Images.S3.UseSSL,
		})
		if err != nil {
			log.Warn("s3 image fetcher init failed, bucket urls disabled", zap.Error(err))
		} else {
			fetcher.S3 = s3Fetcher
		}
	}

	cache, err := imagecache.New(fetcher, imagecache.Config{Capacity: cfg.Images.Capacity}, log)
	if err != nil {
		return nil, fmt.Errorf("create image cache: %w", err)
	}

	lookahead := prefetchsvc.New(cache, prefetchsvc.Config{
		Lookahead:  cfg.Images.Lookahead,
		EagerCount: cfg.Images.EagerCount,
		IdleDelay:  cfg.Images.IdleDelay,
	}, log)

	RegisterRoutes(r, Dependencies{
		SwipeService: swipeService,
		ImageCache:   cache,
		Lookahead:    lookahead,
	})

	schedCtx, schedCancel := context.WithCancel(context.Background())

	return &App{
		cfg:    cfg,
		logger: log,
		server: &http.Server{
			Addr:         cfg.HTTP.Addr,
			Handler:      r,
			ReadTimeout:  cfg.HTTP.ReadTimeout,
			WriteTimeout: cfg.HTTP.WriteTimeout,
			IdleTimeout:  cfg.HTTP.IdleTimeout,
		},
		postgres:    pool,
		redis:       redisClient,
		queue:       q,
		scheduler:   sched,
		dispatcher:  dispatcher,
		lookahead:   lookahead,
		schedCtx:    schedCtx,
		schedCancel: schedCancel,
	}, nil
}

// Handler exposes the HTTP surface for tests.
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

func (a *App) Run() error {
	go a.scheduler.Run(a.schedCtx)

	a.logger.Info("agent listening", zap.String("addr", a.cfg.HTTP.Addr))
	return a.server.ListenAndServe()
}

func (a *App) Shutdown(ctx context.Context) error {
	a.schedCancel()
	a.lookahead.Stop()
	a.dispatcher.Wait()

	err := a.server.Shutdown(ctx)

	if a.postgres != nil {
		a.postgres.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}

	return err
}

// buildSnapshotStore picks the durable slot backend. Any init failure
// degrades to memory-only queueing, mirroring a browser with storage
// disabled.
func buildSnapshotStore(cfg config.Config, log *zap.Logger, redisClient **goredis.Client) queue.SnapshotStore {
	switch cfg.Queue.SnapshotBackend {
	case "redis":
		client := redrepo.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		*redisClient = client
		return redrepo.NewSnapshotRepo(client, cfg.Queue.SnapshotKey)
	default:
		store, err := localrepo.NewSnapshotRepo(cfg.Queue.SnapshotPath)
		if err != nil {
			log.Warn("snapshot store init failed, queue will not survive restarts", zap.Error(err))
			return nil
		}
		return store
	}
}
