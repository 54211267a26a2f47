package incident

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/alarm-subsystem/internal/domain/alarm"
)

// TestMemoryRepository_Current checks that the newest incomplete incident is current.
func TestMemoryRepository_Current(t *testing.T) {
	t.Parallel()

	var (
		ctx   = context.Background()
		repo  = NewMemoryRepository()
		start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	)

	_, err := repo.Current(ctx, "p1")
	require.ErrorIs(t, err, ErrNotFound)

	done := &alarm.Incident{ID: "i0", PlaceID: "p1", State: alarm.IncidentComplete, StartTime: start}
	active := &alarm.Incident{ID: "i1", PlaceID: "p1", State: alarm.IncidentCancelling, StartTime: start.Add(time.Hour)}
	other := &alarm.Incident{ID: "i2", PlaceID: "p2", State: alarm.IncidentAlert, StartTime: start}

	for _, i := range []*alarm.Incident{done, active, other} {
		require.NoError(t, repo.Upsert(ctx, i))
	}

	got, err := repo.Current(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, "i1", got.ID)

	got.State = alarm.IncidentComplete

	again, err := repo.Current(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, alarm.IncidentCancelling, again.State, "stored incident must not alias the returned copy")
}

// TestMemoryRepository_ListByPlace checks ordering and the limit.
func TestMemoryRepository_ListByPlace(t *testing.T) {
	t.Parallel()

	var (
		ctx   = context.Background()
		repo  = NewMemoryRepository()
		start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, repo.Upsert(ctx, &alarm.Incident{
			ID:        id,
			PlaceID:   "p1",
			State:     alarm.IncidentComplete,
			StartTime: start.Add(time.Duration(i) * time.Minute),
		}))
	}

	all, err := repo.ListByPlace(ctx, "p1", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "c", all[0].ID)

	limited, err := repo.ListByPlace(ctx, "p1", 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	require.Equal(t, "b", limited[1].ID)
}

// TestMemoryRepository_History checks append and newest-first reads.
func TestMemoryRepository_History(t *testing.T) {
	t.Parallel()

	var (
		ctx  = context.Background()
		repo = NewMemoryRepository()
		at   = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	)

	err := repo.AppendHistory(ctx, "p1", "i1", []alarm.HistoryEntry{{Time: at, MessageKey: "alarm.contact"}})
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, repo.Upsert(ctx, &alarm.Incident{ID: "i1", PlaceID: "p1", State: alarm.IncidentAlert}))
	require.NoError(t, repo.AppendHistory(ctx, "p1", "i1", []alarm.HistoryEntry{
		{Time: at, MessageKey: "alarm.contact"},
		{Time: at.Add(time.Second), MessageKey: "alarm.cancelled"},
	}))

	history, err := repo.History(ctx, "p1", "i1", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, "alarm.cancelled", history[0].MessageKey)

	history, err = repo.History(ctx, "p1", "i1", 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
}

// TestMemoryRepository_Invalid checks incident validation.
func TestMemoryRepository_Invalid(t *testing.T) {
	t.Parallel()

	repo := NewMemoryRepository()

	require.ErrorIs(t, repo.Upsert(context.Background(), nil), ErrInvalidIncident)
	require.ErrorIs(t, repo.Upsert(context.Background(), &alarm.Incident{ID: "i1"}), ErrInvalidIncident)

	_, err := repo.FindByID(context.Background(), "p1", "i1")
	require.ErrorIs(t, err, ErrNotFound)
}
