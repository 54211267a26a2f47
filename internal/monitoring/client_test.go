package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/alarm-subsystem/internal/address"
	"github.com/oshokin/alarm-subsystem/internal/domain/alarm"
)

func testIncident() *alarm.Incident {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	return &alarm.Incident{
		ID:               "i1",
		PlaceID:          "p1",
		State:            alarm.IncidentAlert,
		Alert:            alarm.Smoke,
		AdditionalAlerts: []alarm.Type{alarm.CO},
		Monitored:        true,
		StartTime:        start,
	}
}

// TestClient_Dispatch checks the dispatch request body and headers.
func TestClient_Dispatch(t *testing.T) {
	t.Parallel()

	var got DispatchRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, PathDispatch, r.URL.Path)
		require.Equal(t, "secret", r.Header.Get(headerAPIKey))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(server.Close)

	client := NewClient(server.URL, WithAPIKey("secret"))
	incident := testIncident()
	trigger := alarm.NewTrigger(alarm.Smoke, "d1", incident.StartTime)

	require.NoError(t, client.Dispatch(context.Background(), incident, alarm.Smoke, []alarm.Trigger{trigger}))

	require.Equal(t, "p1", got.PlaceID)
	require.Equal(t, "i1", got.IncidentID)
	require.Equal(t, alarm.Smoke, got.Alarm)
	require.Equal(t, []alarm.Type{alarm.Smoke, alarm.CO}, got.Alarms)
	require.Len(t, got.Triggers, 1)
	require.Equal(t, trigger.Source, got.Triggers[0].Source)
}

// TestClient_Cancel checks the cancel request body.
func TestClient_Cancel(t *testing.T) {
	t.Parallel()

	var got CancelRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, PathCancel, r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	client := NewClient(server.URL)

	require.NoError(t, client.Cancel(context.Background(), testIncident(), address.Person("u1"), "APP"))
	require.Equal(t, CancelRequest{
		PlaceID:     "p1",
		IncidentID:  "i1",
		CancelledBy: "SERV:person:u1",
		Method:      "APP",
	}, got)
}

// TestClient_Rejected checks that client errors are not retried and carry the station message.
func TestClient_Rejected(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"message":"already cancelled"}`))
	}))
	t.Cleanup(server.Close)

	client := NewClient(server.URL)

	err := client.Cancel(context.Background(), testIncident(), address.Address{}, "KEYPAD")
	require.ErrorIs(t, err, ErrRejected)
	require.ErrorContains(t, err, "already cancelled")
	require.Equal(t, int32(1), calls.Load())
}

// TestClient_RetriesServerErrors checks that 5xx answers are retried.
func TestClient_RetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)

			return
		}

		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	client := NewClient(server.URL, WithRetryCount(1), WithTimeout(time.Second))

	require.NoError(t, client.Dispatch(context.Background(), testIncident(), alarm.Smoke, nil))
	require.Equal(t, int32(2), calls.Load())
}
