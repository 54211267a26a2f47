package state

import (
	"context"
	"sync"

	"github.com/oshokin/alarm-subsystem/internal/domain/place"
)

// MemoryRepository keeps snapshots in process memory.
type MemoryRepository struct {
	mu        sync.Mutex
	snapshots map[string]*place.Snapshot
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		snapshots: make(map[string]*place.Snapshot),
	}
}

// Load returns a copy of the stored snapshot.
func (r *MemoryRepository) Load(_ context.Context, placeID string) (*place.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.snapshots[placeID]
	if !ok {
		return nil, ErrNotFound
	}

	return s.Clone(), nil
}

// Save stores a copy of the snapshot.
func (r *MemoryRepository) Save(_ context.Context, snapshot *place.Snapshot) error {
	if snapshot.PlaceID == "" {
		return ErrInvalidPlaceID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.snapshots[snapshot.PlaceID] = snapshot.Clone()

	return nil
}
