package alarm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/alarm-subsystem/internal/address"
)

// TestMonitoringGate verifies which alarm types are monitored per service level.
func TestMonitoringGate(t *testing.T) {
	t.Parallel()

	for _, typ := range []Type{CO, Panic, Security, Smoke} {
		require.True(t, IsMonitored(ServicePremiumPromon, typ), typ)
		require.False(t, IsMonitored(ServicePremium, typ), typ)
		require.False(t, IsMonitored(ServiceBasic, typ), typ)
	}

	require.False(t, IsMonitored(ServicePremiumPromon, Water))
	require.False(t, IsMonitored(ServicePremiumPromon, Care))
}

// TestParseAlertState covers known and unknown names.
func TestParseAlertState(t *testing.T) {
	t.Parallel()

	for _, s := range AlertStates {
		got, ok := ParseAlertState(string(s))
		require.True(t, ok)
		require.Equal(t, s, got)
	}

	_, ok := ParseAlertState("ARMED")
	require.False(t, ok)
}

// TestEventFromAlarm checks the alarm type to trigger event mapping.
func TestEventFromAlarm(t *testing.T) {
	t.Parallel()

	cases := map[Type]TriggerEvent{
		Care:     EventBehavior,
		CO:       EventCO,
		Security: EventContact,
		Smoke:    EventSmoke,
		Water:    EventLeak,
		Panic:    EventKeypad,
		"OTHER":  EventRule,
	}

	for typ, want := range cases {
		require.Equal(t, want, EventFromAlarm(typ), typ)
	}
}

// TestAddressFromEvent checks that the event selects the address namespace.
func TestAddressFromEvent(t *testing.T) {
	t.Parallel()

	require.Equal(t, "SERV:rule:r1.10", AddressFromEvent(EventRule, "r1").String())
	require.Equal(t, "SERV:subcare:p1", AddressFromEvent(EventBehavior, "p1").String())
	require.Equal(t, "SERV:person:u1", AddressFromEvent(EventVerifiedAlarm, "u1").String())

	for _, event := range []TriggerEvent{EventContact, EventSmoke, EventCO, EventLeak, EventKeypad} {
		a := AddressFromEvent(event, "d1")
		require.Equal(t, address.GroupDriver, a.Group)
		require.Equal(t, address.NamespaceDevice, a.Namespace)
	}
}

// TestNewTrigger verifies derived event and source.
func TestNewTrigger(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tr := NewTrigger(Water, "leak-1", at)

	require.Equal(t, Water, tr.Alarm)
	require.Equal(t, EventLeak, tr.Event)
	require.Equal(t, "DRIV:dev:leak-1", tr.Source.String())
	require.Equal(t, at, tr.Time)
}

// TestIncidentClone verifies that Clone returns a deep copy and handles nil safely.
func TestIncidentClone(t *testing.T) {
	t.Parallel()
	require.Nil(t, (*Incident)(nil).Clone())

	in := &Incident{
		ID:               "i1",
		Alert:            Security,
		AdditionalAlerts: []Type{Smoke},
		Triggers:         []Trigger{NewTrigger(Security, "d1", time.Now())},
		Tracker:          []TrackerEvent{NewTrackerEvent(Security, TrackerAlert, time.Now(), "")},
	}

	c := in.Clone()
	require.Equal(t, in, c)
	require.NotSame(t, in, c)

	c.Triggers[0].Event = EventRule
	c.AdditionalAlerts[0] = CO
	require.Equal(t, EventContact, in.Triggers[0].Event)
	require.Equal(t, Smoke, in.AdditionalAlerts[0])
}

// TestIncidentAddAlarm covers primary and additional alarm bookkeeping.
func TestIncidentAddAlarm(t *testing.T) {
	t.Parallel()

	var in Incident

	in.AddAlarm(Security)
	in.AddAlarm(Smoke)
	in.AddAlarm(Security)
	in.AddAlarm(Smoke)

	require.Equal(t, Security, in.Alert)
	require.Equal(t, []Type{Security, Smoke}, in.AllAlarms())
}

// TestTrackerEvent verifies keys and standard messages.
func TestTrackerEvent(t *testing.T) {
	t.Parallel()

	at := time.Now()

	ev := NewTrackerEvent(Security, TrackerAlert, at, "")
	require.Equal(t, "security.alert", ev.Key)
	require.Equal(t, "Alarm Triggered", ev.Message)

	ev = NewTrackerEvent(Smoke, TrackerDispatched, at, "")
	require.Equal(t, "Fire Dept. Notified", ev.Message)

	ev = NewTrackerEvent(Panic, TrackerDispatched, at, "Officer en route")
	require.Equal(t, "Officer en route", ev.Message)

	state, ok := MonitoringDispatched.TrackerState(MonitoringDispatching)
	require.True(t, ok)
	require.Equal(t, TrackerDispatched, state)

	_, ok = MonitoringPending.TrackerState(MonitoringNone)
	require.False(t, ok)
}

// TestParseMonitoringState verifies known and unknown names.
func TestParseMonitoringState(t *testing.T) {
	t.Parallel()

	s, ok := ParseMonitoringState("DISPATCHING")
	require.True(t, ok)
	require.Equal(t, MonitoringDispatching, s)

	_, ok = ParseMonitoringState("dispatching")
	require.False(t, ok)
}

// TestTriggerSame verifies that times compare by instant.
func TestTriggerSame(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := NewTrigger(Smoke, "d1", at)
	b := NewTrigger(Smoke, "d1", at.In(time.FixedZone("X", 3600)))

	require.True(t, a.Same(b))
	require.False(t, a.Same(NewTrigger(Smoke, "d2", at)))
}
