package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/oshokin/alarm-subsystem/internal/config"
	"github.com/oshokin/alarm-subsystem/internal/domain/place"
)

// Repository defines persistence operations for place snapshots.
type Repository interface {
	Load(ctx context.Context, placeID string) (*place.Snapshot, error)
	Save(ctx context.Context, snapshot *place.Snapshot) error
}

// FileRepository persists snapshots as JSON files, one per place, in a
// directory on disk.
type FileRepository struct {
	// dir is the directory holding the snapshot files.
	dir string
	// mu protects concurrent access to the files.
	mu sync.Mutex
}

var (
	// ErrNotFound is returned when nothing was saved for a place yet.
	ErrNotFound = errors.New("state not found")
	// ErrInvalidPlaceID is returned for place ids that cannot name a file or key.
	ErrInvalidPlaceID = errors.New("invalid place id")
)

// NewFileRepository creates a repository that reads/writes files in dir.
func NewFileRepository(dir string) *FileRepository {
	return &FileRepository{
		dir: filepath.Clean(dir),
	}
}

// Load reads the snapshot of a place from disk.
func (r *FileRepository) Load(_ context.Context, placeID string) (*place.Snapshot, error) {
	path, err := r.path(placeID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read state file: %w", err)
	}

	snapshot, err := unmarshalSnapshot(contents)
	if err != nil {
		return nil, err
	}

	snapshot.PlaceID = placeID

	return snapshot, nil
}

// Save writes the snapshot of a place to disk. The file is replaced
// atomically so a crash never leaves a truncated snapshot behind.
func (r *FileRepository) Save(_ context.Context, snapshot *place.Snapshot) error {
	path, err := r.path(snapshot.PlaceID)
	if err != nil {
		return err
	}

	data, err := marshalSnapshot(snapshot)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err = os.MkdirAll(r.dir, config.DefaultDirPermissions); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	tmp := path + ".tmp"
	if err = os.WriteFile(tmp, data, config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}

	if err = os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}

	return nil
}

func (r *FileRepository) path(placeID string) (string, error) {
	if placeID == "" || placeID != filepath.Base(placeID) || placeID == "." || placeID == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidPlaceID, placeID)
	}

	return filepath.Join(r.dir, placeID+".json"), nil
}
