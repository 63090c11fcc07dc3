package handlers

import (
	"net/http"

	"github.com/dkudzin/nestswipe/internal/imagecache"
	prefetchsvc "github.com/dkudzin/nestswipe/internal/services/prefetch"
	httperrors "github.com/dkudzin/nestswipe/internal/transport/http/errors"
)

type ImageHandler struct {
	cache     *imagecache.Cache
	lookahead *prefetchsvc.Lookahead
}

func NewImageHandler(cache *imagecache.Cache, lookahead *prefetchsvc.Lookahead) *ImageHandler {
	return &ImageHandler{cache: cache, lookahead: lookahead}
}

type preloadRequest struct {
	URL string `json:"url"`
}

type readyResponse struct {
	Ready bool `json:"ready"`
}

func (h *ImageHandler) Preload(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		writeInternal(w, "IMAGE_CACHE_UNAVAILABLE", "image cache is unavailable")
		return
	}

	var req preloadRequest
	if err := decodeJSON(r, &req); err != nil || req.URL == "" {
		writeBadRequest(w, "VALIDATION_ERROR", "url is required")
		return
	}

	ready := h.cache.Preload(r.Context(), req.URL)
	httperrors.Write(w, http.StatusOK, readyResponse{Ready: ready})
}

func (h *ImageHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		writeInternal(w, "IMAGE_CACHE_UNAVAILABLE", "image cache is unavailable")
		return
	}

	url := r.URL.Query().Get("url")
	if url == "" {
		writeBadRequest(w, "VALIDATION_ERROR", "url query parameter is required")
		return
	}

	httperrors.Write(w, http.StatusOK, readyResponse{Ready: h.cache.IsReady(url)})
}

type deckRequest struct {
	URLs    []string `json:"urls"`
	Current int      `json:"current"`
}

// Deck points the lookahead prefetcher at the deck currently on screen.
func (h *ImageHandler) Deck(w http.ResponseWriter, r *http.Request) {
	if h.lookahead == nil {
		writeInternal(w, "PREFETCH_UNAVAILABLE", "prefetcher is unavailable")
		return
	}

	var req deckRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
		return
	}

	h.lookahead.SetDeck(req.URLs, req.Current)
	w.WriteHeader(http.StatusNoContent)
}

func (h *ImageHandler) Stats(w http.ResponseWriter, _ *http.Request) {
	if h.cache == nil {
		writeInternal(w, "IMAGE_CACHE_UNAVAILABLE", "image cache is unavailable")
		return
	}

	httperrors.Write(w, http.StatusOK, h.cache.Stats())
}
