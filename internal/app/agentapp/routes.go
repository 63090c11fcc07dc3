package agentapp

import (
	"github.com/go-chi/chi/v5"

	"github.com/dkudzin/nestswipe/internal/imagecache"
	prefetchsvc "github.com/dkudzin/nestswipe/internal/services/prefetch"
	swipesvc "github.com/dkudzin/nestswipe/internal/services/swipes"
	"github.com/dkudzin/nestswipe/internal/transport/http/handlers"
)

type Dependencies struct {
	SwipeService *swipesvc.Service
	ImageCache   *imagecache.Cache
	Lookahead    *prefetchsvc.Lookahead
}

func RegisterRoutes(r chi.Router, deps Dependencies) {
	healthHandler := handlers.NewHealthHandler()
	swipeHandler := handlers.NewSwipeHandler(deps.SwipeService)
	imageHandler := handlers.NewImageHandler(deps.ImageCache, deps.Lookahead)

	r.Get("/health", healthHandler.Handle)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/swipes", swipeHandler.Enqueue)
		r.Get("/queue", swipeHandler.QueueStatus)
		r.Post("/actor", swipeHandler.SetActor)

		r.Post("/images/preload", imageHandler.Preload)
		r.Get("/images/ready", imageHandler.Ready)
		r.Get("/images/stats", imageHandler.Stats)
		r.Post("/deck", imageHandler.Deck)
	})
}
