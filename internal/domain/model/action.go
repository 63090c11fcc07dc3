package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrValidation = errors.New("validation error")

type TargetType string

const (
	TargetListing TargetType = "listing"
	TargetProfile TargetType = "profile"
)

type Direction string

const (
	// DirectionLeft is a dismiss, DirectionRight is a like.
	DirectionLeft  Direction = "left"
	DirectionRight Direction = "right"
)

// QueuedAction is one recorded swipe gesture waiting for delivery. The ID
// identifies the enqueue event; the logical write is keyed on
// (ActorID, TargetID, TargetType) and repeated delivery is safe.
type QueuedAction struct {
	ID         string     `json:"id"`
	TargetID   string     `json:"target_id"`
	TargetType TargetType `json:"target_type"`
	Direction  Direction  `json:"direction"`
	ActorID    string     `json:"actor_id,omitempty"`
	EnqueuedAt time.Time  `json:"enqueued_at"`
	RetryCount int        `json:"retry_count"`
}

// TripleKey identifies the logical upsert target of the action.
func (a QueuedAction) TripleKey() string {
	return a.ActorID + "|" + a.TargetID + "|" + string(a.TargetType)
}

func NewQueuedAction(targetID string, direction Direction, targetType TargetType, actorID string, now time.Time) (QueuedAction, error) {
	if strings.TrimSpace(targetID) == "" {
		return QueuedAction{}, fmt.Errorf("%w: target id is required", ErrValidation)
	}
	if direction != DirectionLeft && direction != DirectionRight {
		return QueuedAction{}, fmt.Errorf("%w: unsupported direction %q", ErrValidation, direction)
	}
	if targetType != TargetListing && targetType != TargetProfile {
		return QueuedAction{}, fmt.Errorf("%w: unsupported target type %q", ErrValidation, targetType)
	}

	return QueuedAction{
		ID:         fmt.Sprintf("%d-%s", now.UnixMilli(), uuid.NewString()[:8]),
		TargetID:   targetID,
		TargetType: targetType,
		Direction:  direction,
		ActorID:    actorID,
		EnqueuedAt: now,
	}, nil
}
