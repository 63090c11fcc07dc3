package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dkudzin/nestswipe/internal/domain/model"
)

// SnapshotRepo keeps the pending-queue snapshot in a single JSON file,
// replaced whole on every write. It is the default backend and the direct
// stand-in for the browser's durable key-value slot.
type SnapshotRepo struct {
	path string
}

func NewSnapshotRepo(path string) (*SnapshotRepo, error) {
	if path == "" {
		return nil, fmt.Errorf("snapshot path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}

	return &SnapshotRepo{path: path}, nil
}

// Load reads the whole snapshot. A missing or unparsable file is an empty
// queue, never an error.
func (r *SnapshotRepo) Load(_ context.Context) ([]model.QueuedAction, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read snapshot file: %w", err)
	}

	var actions []model.QueuedAction
	if err := json.Unmarshal(data, &actions); err != nil {
		return nil, nil
	}

	return actions, nil
}

// Save replaces the snapshot atomically via a temp file and rename, so a
// crash mid-write never leaves a truncated snapshot behind.
func (r *SnapshotRepo) Save(_ context.Context, actions []model.QueuedAction) error {
	data, err := json.Marshal(actions)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot temp file: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("replace snapshot file: %w", err)
	}

	return nil
}

func (r *SnapshotRepo) Clear(_ context.Context) error {
	if err := os.Remove(r.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove snapshot file: %w", err)
	}
	return nil
}
