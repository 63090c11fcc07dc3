package handlers

import (
	"errors"
	"net/http"

	"github.com/dkudzin/nestswipe/internal/domain/model"
	swipesvc "github.com/dkudzin/nestswipe/internal/services/swipes"
	httperrors "github.com/dkudzin/nestswipe/internal/transport/http/errors"
)

type SwipeHandler struct {
	service *swipesvc.Service
}

func NewSwipeHandler(service *swipesvc.Service) *SwipeHandler {
	return &SwipeHandler{service: service}
}

type swipeRequest struct {
	TargetID   string `json:"target_id"`
	Direction  string `json:"direction"`
	TargetType string `json:"target_type"`
}

type swipeResponse struct {
	QueueDepth int `json:"queue_depth"`
}

// Enqueue accepts one swipe and answers 202 immediately; delivery happens
// in the background.
func (h *SwipeHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeInternal(w, "SWIPE_SERVICE_UNAVAILABLE", "swipe service is unavailable")
		return
	}

	var req swipeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
		return
	}

	err := h.service.Enqueue(req.TargetID, model.Direction(req.Direction), model.TargetType(req.TargetType))
	if err != nil {
		if errors.Is(err, model.ErrValidation) {
			writeBadRequest(w, "VALIDATION_ERROR", err.Error())
			return
		}
		writeInternal(w, "ENQUEUE_FAILED", "failed to enqueue swipe")
		return
	}

	httperrors.Write(w, http.StatusAccepted, swipeResponse{QueueDepth: h.service.Depth()})
}

type queueStatusResponse struct {
	Depth   int   `json:"depth"`
	Dropped int64 `json:"dropped"`
}

// QueueStatus exposes queue diagnostics: current depth and how many
// actions were dropped after exhausted retries.
func (h *SwipeHandler) QueueStatus(w http.ResponseWriter, _ *http.Request) {
	if h.service == nil {
		writeInternal(w, "SWIPE_SERVICE_UNAVAILABLE", "swipe service is unavailable")
		return
	}

	httperrors.Write(w, http.StatusOK, queueStatusResponse{
		Depth:   h.service.Depth(),
		Dropped: h.service.Dropped(),
	})
}

type actorRequest struct {
	ActorID string `json:"actor_id"`
}

// SetActor stores the signed-in actor id so future enqueues carry it.
func (h *SwipeHandler) SetActor(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeInternal(w, "SWIPE_SERVICE_UNAVAILABLE", "swipe service is unavailable")
		return
	}

	var req actorRequest
	if err := decodeJSON(r, &req); err != nil || req.ActorID == "" {
		writeBadRequest(w, "VALIDATION_ERROR", "actor_id is required")
		return
	}

	h.service.SetActorID(req.ActorID)
	w.WriteHeader(http.StatusNoContent)
}
