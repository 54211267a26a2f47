package place

import (
	"maps"
	"slices"
	"strings"
)

// Snapshot is everything persisted for one place.
type Snapshot struct {
	// PlaceID identifies the place.
	PlaceID string `json:"placeId"`
	// Attributes are the alarm subsystem model attributes.
	Attributes map[string]string `json:"attributes"`
	// Variables are internal values that are not part of the model.
	Variables map[string]string `json:"variables"`
	// Models are the platform models known in the place, keyed by address.
	Models map[string]*Model `json:"models"`
}

// NewSnapshot returns an empty snapshot for a place.
func NewSnapshot(placeID string) *Snapshot {
	return &Snapshot{
		PlaceID:    placeID,
		Attributes: make(map[string]string),
		Variables:  make(map[string]string),
		Models:     make(map[string]*Model),
	}
}

// Clone returns a deep copy. It returns nil for a nil receiver.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}

	c := &Snapshot{
		PlaceID:    s.PlaceID,
		Attributes: maps.Clone(s.Attributes),
		Variables:  maps.Clone(s.Variables),
		Models:     make(map[string]*Model, len(s.Models)),
	}

	for k, m := range s.Models {
		c.Models[k] = m.Clone()
	}

	return c
}

// SortedModels returns the models ordered by address.
func (s *Snapshot) SortedModels() []*Model {
	out := slices.Collect(maps.Values(s.Models))
	slices.SortFunc(out, func(a, b *Model) int {
		return strings.Compare(a.Address.String(), b.Address.String())
	})

	return out
}
