package incident

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/oshokin/alarm-subsystem/internal/domain/alarm"
)

// MemoryRepository keeps incidents in process memory.
type MemoryRepository struct {
	mu        sync.Mutex
	incidents map[string]map[string]*alarm.Incident
	history   map[string][]alarm.HistoryEntry
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		incidents: make(map[string]map[string]*alarm.Incident),
		history:   make(map[string][]alarm.HistoryEntry),
	}
}

// Upsert implements Repository.
func (r *MemoryRepository) Upsert(_ context.Context, incident *alarm.Incident) error {
	if err := validate(incident); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	byID, ok := r.incidents[incident.PlaceID]
	if !ok {
		byID = make(map[string]*alarm.Incident)
		r.incidents[incident.PlaceID] = byID
	}

	byID[incident.ID] = incident.Clone()

	return nil
}

// FindByID implements Repository.
func (r *MemoryRepository) FindByID(_ context.Context, placeID, id string) (*alarm.Incident, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	incident, ok := r.incidents[placeID][id]
	if !ok {
		return nil, ErrNotFound
	}

	return incident.Clone(), nil
}

// Current implements Repository.
func (r *MemoryRepository) Current(_ context.Context, placeID string) (*alarm.Incident, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, incident := range r.sorted(placeID) {
		if incident.IsActive() {
			return incident.Clone(), nil
		}
	}

	return nil, ErrNotFound
}

// ListByPlace implements Repository.
func (r *MemoryRepository) ListByPlace(_ context.Context, placeID string, limit int) ([]*alarm.Incident, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sorted := r.sorted(placeID)
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}

	out := make([]*alarm.Incident, 0, len(sorted))
	for _, incident := range sorted {
		out = append(out, incident.Clone())
	}

	return out, nil
}

// AppendHistory implements Repository.
func (r *MemoryRepository) AppendHistory(
	_ context.Context,
	placeID, incidentID string,
	entries []alarm.HistoryEntry,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.incidents[placeID][incidentID]; !ok {
		return ErrNotFound
	}

	r.history[incidentID] = append(r.history[incidentID], entries...)

	return nil
}

// History implements Repository.
func (r *MemoryRepository) History(
	_ context.Context,
	placeID, incidentID string,
	limit int,
) ([]alarm.HistoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.incidents[placeID][incidentID]; !ok {
		return nil, ErrNotFound
	}

	entries := slices.Clone(r.history[incidentID])
	slices.Reverse(entries)
	slices.SortStableFunc(entries, func(a, b alarm.HistoryEntry) int {
		return b.Time.Compare(a.Time)
	})

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	return entries, nil
}

// sorted returns the incidents of a place, newest first. Callers hold mu.
func (r *MemoryRepository) sorted(placeID string) []*alarm.Incident {
	byID := r.incidents[placeID]

	out := make([]*alarm.Incident, 0, len(byID))
	for _, incident := range byID {
		out = append(out, incident)
	}

	slices.SortFunc(out, func(a, b *alarm.Incident) int {
		return cmp.Or(b.StartTime.Compare(a.StartTime), cmp.Compare(b.ID, a.ID))
	})

	return out
}
