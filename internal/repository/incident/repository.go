package incident

import (
	"context"
	"errors"

	"github.com/oshokin/alarm-subsystem/internal/domain/alarm"
)

// Repository defines persistence operations for incidents.
type Repository interface {
	// Upsert inserts or replaces an incident.
	Upsert(ctx context.Context, incident *alarm.Incident) error
	// FindByID returns an incident of a place.
	FindByID(ctx context.Context, placeID, id string) (*alarm.Incident, error)
	// Current returns the most recent incident of a place that is not complete.
	Current(ctx context.Context, placeID string) (*alarm.Incident, error)
	// ListByPlace returns the incidents of a place, newest first.
	ListByPlace(ctx context.Context, placeID string, limit int) ([]*alarm.Incident, error)
	// AppendHistory adds timeline entries to an incident.
	AppendHistory(ctx context.Context, placeID, incidentID string, entries []alarm.HistoryEntry) error
	// History returns the timeline of an incident, newest first.
	History(ctx context.Context, placeID, incidentID string, limit int) ([]alarm.HistoryEntry, error)
}

var (
	// ErrNotFound is returned when no incident matches.
	ErrNotFound = errors.New("incident not found")
	// ErrInvalidIncident is returned for incidents without an id or place.
	ErrInvalidIncident = errors.New("invalid incident")
)

func validate(incident *alarm.Incident) error {
	if incident == nil || incident.ID == "" || incident.PlaceID == "" {
		return ErrInvalidIncident
	}

	return nil
}
