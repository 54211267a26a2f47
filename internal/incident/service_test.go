package incident_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/alarm-subsystem/internal/address"
	"github.com/oshokin/alarm-subsystem/internal/domain/alarm"
	"github.com/oshokin/alarm-subsystem/internal/domain/place"
	"github.com/oshokin/alarm-subsystem/internal/incident"
	incidents "github.com/oshokin/alarm-subsystem/internal/repository/incident"
	"github.com/oshokin/alarm-subsystem/internal/subsystem"
)

const placeID = "p1"

var (
	errStation = errors.New("station unavailable")
	person     = address.Person("u1")
)

type fakeMonitor struct {
	mu         sync.Mutex
	dispatched []alarm.Type
	cancelled  []string
	err        error
}

func (m *fakeMonitor) Dispatch(_ context.Context, _ *alarm.Incident, t alarm.Type, _ []alarm.Trigger) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.dispatched = append(m.dispatched, t)

	return m.err
}

func (m *fakeMonitor) Cancel(_ context.Context, i *alarm.Incident, _ address.Address, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cancelled = append(m.cancelled, i.ID)

	return m.err
}

type fakePoster struct {
	mu     sync.Mutex
	posted []subsystem.Message
}

func (p *fakePoster) Submit(_ context.Context, msg subsystem.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.posted = append(p.posted, msg)

	return nil
}

func (p *fakePoster) messages() []subsystem.Message {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]subsystem.Message(nil), p.posted...)
}

type fixture struct {
	ctx     *subsystem.PlaceContext
	store   *incidents.MemoryRepository
	service *incident.Service
	monitor *fakeMonitor
	poster  *fakePoster
	now     time.Time
}

func newFixture(t *testing.T, level alarm.ServiceLevel, options ...incident.Option) *fixture {
	t.Helper()

	f := &fixture{
		store:   incidents.NewMemoryRepository(),
		monitor: &fakeMonitor{},
		poster:  &fakePoster{},
		now:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	snapshot := place.NewSnapshot(placeID)

	placeModel := place.NewModel(address.PlatformService(placeID, address.NamespacePlace))
	placeModel.Set(place.AttrCaps, place.CapPlace)
	placeModel.Set(place.AttrPlaceName, "Home")
	placeModel.Set(place.AttrServiceLevel, string(level))

	smoke := place.NewModel(address.PlatformDriver("d1"))
	smoke.Set(place.AttrCaps, "dev,smoke")
	smoke.Set(place.AttrDeviceName, "Kitchen Smoke")

	door := place.NewModel(address.PlatformDriver("d2"))
	door.Set(place.AttrCaps, "cont,dev")
	door.Set(place.AttrDeviceName, "Front Door")

	personModel := place.NewModel(person)
	personModel.Set(place.AttrCaps, place.CapPerson)
	personModel.Set(place.AttrPersonFirstName, "Jane")
	personModel.Set(place.AttrPersonLastName, "Doe")

	hub := place.NewModel(address.PlatformService("h1", address.NamespaceHub))
	hub.Set(place.AttrCaps, place.CapHub)
	hub.Set(place.AttrHubName, "Home Hub")

	for _, m := range []*place.Model{placeModel, smoke, door, personModel, hub} {
		snapshot.Models[m.Address.String()] = m
	}

	f.ctx = subsystem.NewPlaceContext(context.Background(), snapshot, func() time.Time { return f.now }, nil)

	options = append([]incident.Option{
		incident.WithMonitor(f.monitor),
		incident.WithPoster(f.poster),
	}, options...)
	f.service = incident.NewService(f.store, options...)

	return f
}

func (f *fixture) trigger(t alarm.Type, device string) alarm.Trigger {
	return alarm.NewTrigger(t, device, f.now)
}

func (f *fixture) sent(msgType string) []subsystem.Message {
	var out []subsystem.Message

	for _, m := range f.ctx.Outbox() {
		if m.Type == msgType {
			out = append(out, m)
		}
	}

	return out
}

func (f *fixture) history(t *testing.T, addr address.Address) []alarm.HistoryEntry {
	t.Helper()

	entries, err := f.store.History(context.Background(), placeID, addr.ID, 0)
	require.NoError(t, err)

	return entries
}

// TestAddAlert_CreatesIncident checks a fresh alert on a basic place.
func TestAddAlert_CreatesIncident(t *testing.T) {
	t.Parallel()

	f := newFixture(t, alarm.ServiceBasic)

	addr, err := f.service.AddAlert(f.ctx, alarm.Smoke, []alarm.Trigger{f.trigger(alarm.Smoke, "d1")}, true)
	require.NoError(t, err)
	require.Equal(t, addr.String(), f.ctx.Model().String(alarm.AttrCurrentIncident))

	got, err := f.service.GetCurrentIncident(f.ctx)
	require.NoError(t, err)
	require.Equal(t, alarm.IncidentAlert, got.State)
	require.Equal(t, alarm.Smoke, got.Alert)
	require.False(t, got.Monitored)
	require.Equal(t, alarm.MonitoringNone, got.MonitoringState)
	require.Len(t, got.Triggers, 1)
	require.Len(t, got.Tracker, 1)
	require.Equal(t, "smoke.alert", got.Tracker[0].Key)

	require.Len(t, f.sent(subsystem.MessageAdded), 1)
	require.Len(t, f.sent("incident:SmokeAlert"), 1)
	require.Len(t, f.sent(incident.MessageHistoryAdded), 1)

	history := f.history(t, addr)
	require.Len(t, history, 1)
	require.Equal(t, "alarm.smoke", history[0].MessageKey)
	require.Equal(t, []string{"Kitchen Smoke"}, history[0].Values)

	_, ok := f.ctx.Variable(incident.VarTriggerSent)
	require.True(t, ok)

	f.service.Wait()
	require.Empty(t, f.monitor.dispatched, "unmonitored incidents are never dispatched")
}

// TestAddAlert_ExtendsIncident checks that a second alarm joins the active incident.
func TestAddAlert_ExtendsIncident(t *testing.T) {
	t.Parallel()

	f := newFixture(t, alarm.ServiceBasic)

	first, err := f.service.AddAlert(f.ctx, alarm.Smoke, []alarm.Trigger{f.trigger(alarm.Smoke, "d1")}, true)
	require.NoError(t, err)

	second, err := f.service.AddAlert(f.ctx, alarm.CO, []alarm.Trigger{f.trigger(alarm.CO, "d1")}, true)
	require.NoError(t, err)
	require.Equal(t, first, second)

	got, err := f.service.GetIncident(f.ctx, first)
	require.NoError(t, err)
	require.Equal(t, []alarm.Type{alarm.Smoke, alarm.CO}, got.AllAlarms())
	require.Len(t, got.Tracker, 1, "an incident already in ALERT gets no second ALERT tracker event")
	require.Len(t, got.Triggers, 2)
}

// TestAddPreAlert_ThenAlert checks the security flow on a monitored place.
func TestAddPreAlert_ThenAlert(t *testing.T) {
	t.Parallel()

	f := newFixture(t, alarm.ServicePremiumPromon)
	trigger := f.trigger(alarm.Security, "d2")
	deadline := f.now.Add(30 * time.Second)

	addr, err := f.service.AddPreAlert(f.ctx, alarm.Security, deadline, []alarm.Trigger{trigger})
	require.NoError(t, err)

	again, err := f.service.AddPreAlert(f.ctx, alarm.Security, deadline, nil)
	require.NoError(t, err)
	require.Equal(t, addr, again)

	got, err := f.service.GetIncident(f.ctx, addr)
	require.NoError(t, err)
	require.Equal(t, alarm.IncidentPrealert, got.State)
	require.True(t, got.Monitored)
	require.True(t, deadline.Equal(got.PrealertEndTime))

	f.now = f.now.Add(30 * time.Second)

	_, err = f.service.AddAlert(f.ctx, alarm.Security, []alarm.Trigger{trigger}, true)
	require.NoError(t, err)

	got, err = f.service.GetIncident(f.ctx, addr)
	require.NoError(t, err)
	require.Equal(t, alarm.IncidentAlert, got.State)
	require.Equal(t, alarm.MonitoringPending, got.MonitoringState)
	require.Len(t, got.Triggers, 1, "triggers already attached during the pre-alert are not duplicated")
	require.Equal(t, []alarm.TrackerState{alarm.TrackerPrealert, alarm.TrackerAlert},
		[]alarm.TrackerState{got.Tracker[0].State, got.Tracker[1].State})
	require.Len(t, f.history(t, addr), 1)

	f.service.Wait()
	require.Equal(t, []alarm.Type{alarm.Security}, f.monitor.dispatched)

	posted := f.poster.messages()
	require.Len(t, posted, 1)
	require.Equal(t, incident.MessageUpdated, posted[0].Type)
	require.Equal(t, string(alarm.MonitoringDispatching), posted[0].Attribute(incident.AttrMonitoringState))

	require.NoError(t, f.service.OnIncidentUpdated(f.ctx, addr, alarm.MonitoringDispatching, ""))

	got, err = f.service.GetIncident(f.ctx, addr)
	require.NoError(t, err)
	require.Equal(t, alarm.MonitoringDispatching, got.MonitoringState)
	require.Equal(t, "Monitoring Station Alerted", got.Tracker[len(got.Tracker)-1].Message)
}

// TestAddAlert_DispatchFailure checks that a failed dispatch is reported back.
func TestAddAlert_DispatchFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, alarm.ServicePremiumPromon)
	f.monitor.err = errStation

	_, err := f.service.AddAlert(f.ctx, alarm.Panic, []alarm.Trigger{alarm.NewTrigger(alarm.Panic, "d2", f.now)}, true)
	require.NoError(t, err)

	f.service.Wait()

	posted := f.poster.messages()
	require.Len(t, posted, 1)
	require.Equal(t, string(alarm.MonitoringFailed), posted[0].Attribute(incident.AttrMonitoringState))
}

// TestUpdateIncident_RequiresActive checks the no-incident error.
func TestUpdateIncident_RequiresActive(t *testing.T) {
	t.Parallel()

	f := newFixture(t, alarm.ServiceBasic)
	triggers := []alarm.Trigger{f.trigger(alarm.Smoke, "d1")}

	require.ErrorIs(t, f.service.UpdateIncident(f.ctx, triggers, true), incident.ErrNoActiveIncident)
	require.ErrorIs(t, f.service.UpdateIncidentHistory(f.ctx, triggers), incident.ErrNoActiveIncident)
	require.NoError(t, f.service.UpdateIncident(f.ctx, nil, true))
}

// TestUpdateIncident_SkipsSentTrigger checks that the trigger sent by
// AddAlert is not broadcast again, while newer ones are.
func TestUpdateIncident_SkipsSentTrigger(t *testing.T) {
	t.Parallel()

	f := newFixture(t, alarm.ServiceBasic)
	first := f.trigger(alarm.Smoke, "d1")

	addr, err := f.service.AddAlert(f.ctx, alarm.Smoke, []alarm.Trigger{first}, true)
	require.NoError(t, err)
	f.ctx.Model().Set(alarm.AttrAlertState(alarm.Smoke), string(alarm.StateAlert))

	require.NoError(t, f.service.UpdateIncident(f.ctx, []alarm.Trigger{first}, true))
	require.Len(t, f.sent("incident:SmokeAlert"), 1)

	_, ok := f.ctx.Variable(incident.VarTriggerSent)
	require.False(t, ok, "the sent marker is consumed")

	f.now = f.now.Add(time.Second)
	verified := alarm.Trigger{
		Alarm:  alarm.Smoke,
		Event:  alarm.EventVerifiedAlarm,
		Source: person,
		Time:   f.now,
	}

	require.NoError(t, f.service.UpdateIncident(f.ctx, []alarm.Trigger{verified}, true))
	require.Len(t, f.sent("incident:SmokeAlert"), 2)

	got, err := f.service.GetIncident(f.ctx, addr)
	require.NoError(t, err)
	require.Equal(t, alarm.IncidentAlert, got.State)
	require.Len(t, got.Triggers, 2)

	history := f.history(t, addr)
	require.Equal(t, incident.KeyConfirm, history[0].MessageKey)
	require.Equal(t, []string{"Jane", "Doe"}, history[0].Values)
}

// TestVerify checks the verification rules.
func TestVerify(t *testing.T) {
	t.Parallel()

	f := newFixture(t, alarm.ServiceBasic)

	_, err := f.service.Verify(f.ctx, address.Incident("missing"), person)
	require.ErrorIs(t, err, incident.ErrIncidentNotFound)

	addr, err := f.service.AddPreAlert(f.ctx, alarm.Security, f.now.Add(time.Minute), nil)
	require.NoError(t, err)

	at, err := f.service.Verify(f.ctx, addr, person)
	require.NoError(t, err)
	require.Equal(t, f.now, at)

	got, err := f.service.GetIncident(f.ctx, addr)
	require.NoError(t, err)
	require.True(t, got.Confirmed)
	require.Equal(t, person.String(), got.VerifiedBy)

	at, err = f.service.Verify(f.ctx, addr, person)
	require.NoError(t, err)
	require.True(t, at.IsZero(), "a confirmed incident is not verified twice")

	_, err = f.service.Cancel(f.ctx, person, incident.MethodApp)
	require.NoError(t, err)
	f.service.Wait()

	_, err = f.service.Verify(f.ctx, addr, person)
	require.ErrorIs(t, err, incident.ErrInvalidIncidentState)
}

// TestCancel_Completes checks the asynchronous cancel protocol.
func TestCancel_Completes(t *testing.T) {
	t.Parallel()

	f := newFixture(t, alarm.ServicePremiumPromon)

	addr, err := f.service.AddAlert(f.ctx, alarm.Security, []alarm.Trigger{f.trigger(alarm.Security, "d2")}, true)
	require.NoError(t, err)
	f.service.Wait()

	snapshot, err := f.service.Cancel(f.ctx, person, incident.MethodKeypad)
	require.NoError(t, err)
	require.Equal(t, alarm.IncidentCancelling, snapshot.State)
	require.Equal(t, incident.MethodKeypad, snapshot.CancelMethod)

	history := f.history(t, addr)
	require.Equal(t, incident.KeyCancelled, history[0].MessageKey)
	require.Equal(t, []string{"Jane", "Doe", "Security", "keypad"}, history[0].Values)

	f.service.Wait()
	require.Len(t, f.monitor.cancelled, 1)

	posted := f.poster.messages()
	completed := posted[len(posted)-1]
	require.Equal(t, incident.MessageCompleted, completed.Type)
	require.Equal(t, addr, completed.Source)
	require.Equal(t, person, completed.Actor)
	require.Equal(t, addr.String(), f.ctx.Model().String(alarm.AttrCurrentIncident), "still current until completion is handled")

	f.now = f.now.Add(time.Minute)

	done, err := f.service.OnCompleted(f.ctx, completed.Source, completed.Actor)
	require.NoError(t, err)
	require.Equal(t, alarm.IncidentComplete, done.State)
	require.Equal(t, alarm.MonitoringCancelled, done.MonitoringState)
	require.Equal(t, f.now, done.EndTime)
	require.Equal(t, person.String(), done.CancelledBy)
	require.Equal(t, alarm.TrackerCancelled, done.Tracker[len(done.Tracker)-1].State)
	require.Empty(t, f.ctx.Model().String(alarm.AttrCurrentIncident))
	require.Len(t, f.sent(incident.MessageCompleted), 1)

	_, err = f.service.CancelIncident(f.ctx, addr, person, incident.MethodApp)
	require.ErrorIs(t, err, incident.ErrInvalidIncidentState)
}

// TestCancel_StationFailure checks that a failed station cancel leaves the
// incident cancelling and that a retry is accepted.
func TestCancel_StationFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, alarm.ServicePremiumPromon, incident.WithPoster(nil))

	_, err := f.service.AddAlert(f.ctx, alarm.Smoke, []alarm.Trigger{f.trigger(alarm.Smoke, "d1")}, false)
	require.NoError(t, err)

	f.monitor.err = errStation

	_, err = f.service.Cancel(f.ctx, person, incident.MethodApp)
	require.NoError(t, err)
	f.service.Wait()

	current, err := f.service.GetCurrentIncident(f.ctx)
	require.NoError(t, err)
	require.Equal(t, alarm.IncidentCancelling, current.State)

	retry, err := f.service.Cancel(f.ctx, person, incident.MethodApp)
	require.NoError(t, err)
	require.Equal(t, alarm.IncidentCancelling, retry.State)
	f.service.Wait()
	require.Len(t, f.monitor.cancelled, 2)
}

// TestCancel_Repairs checks cancellation without a usable incident.
func TestCancel_Repairs(t *testing.T) {
	t.Parallel()

	f := newFixture(t, alarm.ServiceBasic)

	_, err := f.service.Cancel(f.ctx, person, incident.MethodApp)
	require.ErrorIs(t, err, incident.ErrNoActiveIncident)

	ghost := address.Incident("ghost")
	f.ctx.Model().Set(alarm.AttrCurrentIncident, ghost.String())

	got, err := f.service.Cancel(f.ctx, person, incident.MethodApp)
	require.NoError(t, err)
	require.Nil(t, got)

	posted := f.poster.messages()
	require.Len(t, posted, 1)
	require.Equal(t, ghost, posted[0].Source)

	got, err = f.service.OnCompleted(f.ctx, ghost, person)
	require.NoError(t, err)
	require.Nil(t, got)
	require.Empty(t, f.ctx.Model().String(alarm.AttrCurrentIncident))
}

// TestOnHubConnectivityChanged checks the hub timeline entries.
func TestOnHubConnectivityChanged(t *testing.T) {
	t.Parallel()

	f := newFixture(t, alarm.ServiceBasic)
	hub := f.ctx.ModelByAddress(address.PlatformService("h1", address.NamespaceHub))
	hub.Set(place.AttrHubConnState, place.ConnOffline)

	require.NoError(t, f.service.OnHubConnectivityChanged(f.ctx, hub), "no incident, nothing to record")

	addr, err := f.service.AddAlert(f.ctx, alarm.Water, nil, true)
	require.NoError(t, err)
	require.NoError(t, f.service.OnHubConnectivityChanged(f.ctx, hub))

	history := f.history(t, addr)
	require.Len(t, history, 1)
	require.Equal(t, incident.KeyHubOffline, history[0].MessageKey)
	require.Equal(t, []string{"Home Hub", "", "", "", "Home"}, history[0].Values)
}

// TestListIncidents checks the cap on listed incidents.
func TestListIncidents(t *testing.T) {
	t.Parallel()

	f := newFixture(t, alarm.ServiceBasic, incident.WithMaxIncidents(2))

	for range 3 {
		addr, err := f.service.AddAlert(f.ctx, alarm.Water, nil, true)
		require.NoError(t, err)

		_, err = f.service.Cancel(f.ctx, person, incident.MethodApp)
		require.NoError(t, err)
		f.service.Wait()

		_, err = f.service.OnCompleted(f.ctx, addr, person)
		require.NoError(t, err)

		f.now = f.now.Add(time.Minute)
	}

	list, err := f.service.ListIncidents(f.ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.True(t, list[0].StartTime.After(list[1].StartTime))
}

// TestAlertEvent checks the alert event names.
func TestAlertEvent(t *testing.T) {
	t.Parallel()

	require.Equal(t, "incident:SecurityAlert", incident.AlertEvent(alarm.Security))
	require.Equal(t, "incident:COAlert", incident.AlertEvent(alarm.CO))
	require.Equal(t, "incident:WaterAlert", incident.AlertEvent(alarm.Water))
}
