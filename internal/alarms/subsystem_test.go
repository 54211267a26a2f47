package alarms_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/alarm-subsystem/internal/address"
	"github.com/oshokin/alarm-subsystem/internal/alarms"
	"github.com/oshokin/alarm-subsystem/internal/domain/alarm"
	"github.com/oshokin/alarm-subsystem/internal/domain/place"
	"github.com/oshokin/alarm-subsystem/internal/fsm"
	"github.com/oshokin/alarm-subsystem/internal/incident"
	"github.com/oshokin/alarm-subsystem/internal/sounds"
	"github.com/oshokin/alarm-subsystem/internal/subsystem"
)

// TestSmokeAlarm_Lifecycle walks a smoke alarm from detection through cancel
// and back to READY once the detector clears.
func TestSmokeAlarm_Lifecycle(t *testing.T) {
	t.Parallel()

	h := newHarness(t, alarm.ServiceBasic, alarms.Settings{})
	require.Equal(t, alarm.StateInactive, h.state(alarm.Smoke))

	detector := h.addDevice("s1", "dev,smoke", place.AttrSmoke, place.Safe)
	require.Equal(t, alarm.StateReady, h.state(alarm.Smoke))
	require.Equal(t, string(alarm.SubsystemReady), h.ctx.Model().String(alarm.AttrAlarmState))

	h.change(detector, place.AttrSmoke, place.Detected)
	require.Equal(t, alarm.StateAlert, h.state(alarm.Smoke))
	require.Equal(t, string(alarm.SubsystemAlerting), h.ctx.Model().String(alarm.AttrAlarmState))
	require.Equal(t, "SMOKE", h.ctx.Model().String(alarm.AttrActiveAlerts))

	addr := h.currentIncident()
	created := h.incident(addr)
	require.Equal(t, alarm.IncidentAlert, created.State)
	require.Equal(t, alarm.Smoke, created.Alert)
	require.Len(t, created.Triggers, 1)
	require.Equal(t, detector, created.Triggers[0].Source)
	require.Equal(t, alarm.EventSmoke, created.Triggers[0].Event)

	cancelled, err := h.sub.Cancel(h.ctx, address.Address{}, person, incident.MethodApp)
	require.NoError(t, err)
	require.Equal(t, alarm.IncidentCancelling, cancelled.State)
	require.Equal(t, alarm.StateClearing, h.state(alarm.Smoke))

	_, pending := fsm.Timeout(h.ctx, alarms.KeyCancel)
	require.True(t, pending)

	h.deliver()

	require.Equal(t, alarm.IncidentComplete, h.incident(addr).State)
	require.Empty(t, h.ctx.Model().String(alarm.AttrCurrentIncident))
	require.Equal(t, alarm.StateClearing, h.state(alarm.Smoke), "smoke holds CLEARING while the detector reports")

	_, pending = fsm.Timeout(h.ctx, alarms.KeyCancel)
	require.False(t, pending)

	h.change(detector, place.AttrSmoke, place.Safe)
	require.Equal(t, alarm.StateReady, h.state(alarm.Smoke))
	require.Empty(t, h.ctx.Model().String(alarm.AttrTriggers(alarm.Smoke)))

	require.Equal(t, []string{
		string(sounds.Triggered(alarm.Smoke)),
		string(sounds.Cleared(alarm.Smoke)),
	}, h.sounds())
	require.Contains(t, h.metrics.transitions, "SMOKE:READY>ALERT")
}

// TestCOAlarm_JoinsIncidentAndDisarmCancels checks that CO joins the current
// incident and that disarming cancels it even with no security devices.
func TestCOAlarm_JoinsIncidentAndDisarmCancels(t *testing.T) {
	t.Parallel()

	h := newHarness(t, alarm.ServiceBasic, alarms.Settings{})

	smoke := h.addDevice("s1", "dev,smoke", place.AttrSmoke, place.Safe)
	co := h.addDevice("co1", "co,dev", place.AttrCO, place.Safe)
	require.Equal(t, alarm.StateReady, h.state(alarm.CO))

	h.change(smoke, place.AttrSmoke, place.Detected)
	addr := h.currentIncident()

	h.change(co, place.AttrCO, place.Detected)
	require.Equal(t, alarm.StateAlert, h.state(alarm.CO))
	require.Equal(t, addr, h.currentIncident())
	require.Equal(t, alarm.Smoke, h.incident(addr).Alert)
	require.Contains(t, h.incident(addr).AllAlarms(), alarm.CO)

	require.NoError(t, h.sub.Disarm(h.ctx, person, incident.MethodKeypad))
	require.Equal(t, alarm.IncidentCancelling, h.incident(addr).State)

	h.deliver()

	require.Equal(t, alarm.IncidentComplete, h.incident(addr).State)
	require.Equal(t, alarm.StateClearing, h.state(alarm.CO))

	h.change(co, place.AttrCO, place.Safe)
	require.Equal(t, alarm.StateReady, h.state(alarm.CO))
	require.Equal(t, alarm.StateClearing, h.state(alarm.Smoke), "smoke detector still reports")
}

// TestWaterAlarm_ClosesValves checks that every leak closes the valves and
// lands on the same incident.
func TestWaterAlarm_ClosesValves(t *testing.T) {
	t.Parallel()

	h := newHarness(t, alarm.ServicePremiumPromon, alarms.Settings{})

	first := h.addDevice("w1", "dev,leakh2o", place.AttrLeak, place.Safe)
	second := h.addDevice("w2", "dev,leakh2o", place.AttrLeak, place.Safe)
	valve := h.addDevice("v1", "dev,valv", place.AttrValveState, place.ValveOpen)

	h.change(first, place.AttrLeak, place.Leak)
	require.Equal(t, alarm.StateAlert, h.state(alarm.Water))
	require.Len(t, h.sent(subsystem.MessageSetAttributes), 1)

	h.now = h.now.Add(time.Minute)
	h.change(second, place.AttrLeak, place.Leak)
	require.Equal(t, alarm.StateAlert, h.state(alarm.Water))

	closes := h.sent(subsystem.MessageSetAttributes)
	require.Len(t, closes, 2)

	for _, msg := range closes {
		require.Equal(t, valve, msg.Destination)
		require.Equal(t, place.ValveClosed, msg.Attribute(place.AttrValveState))
	}

	list, err := h.sub.ListIncidents(h.ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Len(t, list[0].Triggers, 2)
	require.False(t, list[0].Monitored, "water is never monitored")
	require.False(t, h.ctx.Model().Bool(alarm.AttrMonitored(alarm.Water)))
}

// TestSmokeAlarm_Verify checks that verifying a smoke incident records a
// verification trigger and keeps the alarm in ALERT.
func TestSmokeAlarm_Verify(t *testing.T) {
	t.Parallel()

	h := newHarness(t, alarm.ServicePremiumPromon, alarms.Settings{})

	detector := h.addDevice("s1", "dev,smoke", place.AttrSmoke, place.Safe)
	h.change(detector, place.AttrSmoke, place.Detected)

	addr := h.currentIncident()
	require.True(t, h.incident(addr).Monitored)
	require.Equal(t, []string{string(sounds.Monitored(alarm.Smoke))}, h.sounds())

	err := h.sub.Verify(h.ctx, address.Incident("other"), person)
	require.ErrorIs(t, err, alarms.ErrIncidentInactive)

	h.now = h.now.Add(time.Minute)
	require.NoError(t, h.sub.Verify(h.ctx, addr, person))
	require.Equal(t, alarm.StateAlert, h.state(alarm.Smoke))

	verified := h.incident(addr)
	require.True(t, verified.Confirmed)
	require.Len(t, verified.Triggers, 2)
	require.Equal(t, alarm.EventVerifiedAlarm, verified.Triggers[1].Event)
	require.Equal(t, person, verified.Triggers[1].Source)

	require.NoError(t, h.sub.Verify(h.ctx, addr, person))
	require.Len(t, h.incident(addr).Triggers, 2, "a confirmed incident is not verified twice")
}

// TestSyncMonitored checks that service level upgrades and downgrades only
// flip the monitored flags.
func TestSyncMonitored(t *testing.T) {
	t.Parallel()

	h := newHarness(t, alarm.ServiceBasic, alarms.Settings{})

	for _, typ := range alarm.Types {
		require.False(t, h.ctx.Model().Bool(alarm.AttrMonitored(typ)), typ)
	}

	h.change(address.PlatformService(placeID, address.NamespacePlace), place.AttrServiceLevel, "premium_promon")

	for _, typ := range []alarm.Type{alarm.CO, alarm.Panic, alarm.Security, alarm.Smoke} {
		require.True(t, h.ctx.Model().Bool(alarm.AttrMonitored(typ)), typ)
	}

	require.False(t, h.ctx.Model().Bool(alarm.AttrMonitored(alarm.Water)))

	h.change(address.PlatformService(placeID, address.NamespacePlace), place.AttrServiceLevel, "premium")

	for _, typ := range alarm.Types {
		require.False(t, h.ctx.Model().Bool(alarm.AttrMonitored(typ)), typ)
	}

	for _, typ := range alarm.Types {
		require.Equal(t, alarm.StateInactive, h.state(typ), typ)
	}
}

// TestOfflineDevicesNeverTrigger checks the offline bookkeeping.
func TestOfflineDevicesNeverTrigger(t *testing.T) {
	t.Parallel()

	h := newHarness(t, alarm.ServiceBasic, alarms.Settings{})

	detector := h.addDevice("c1", "dev,co", place.AttrCO, place.Detected, place.AttrConnState, place.ConnOffline)

	require.Equal(t, alarm.StateReady, h.state(alarm.CO))
	require.Equal(t, detector.String(), h.ctx.Model().String(alarm.AttrOfflineDevices(alarm.CO)))
	require.Empty(t, h.ctx.Model().String(alarm.AttrTriggeredDevices(alarm.CO)))

	h.change(detector, place.AttrConnState, place.ConnOnline)
	require.Equal(t, alarm.StateAlert, h.state(alarm.CO))
	require.Empty(t, h.ctx.Model().String(alarm.AttrOfflineDevices(alarm.CO)))
}

// TestPanic checks the trigger event derived from who raised the panic.
func TestPanic(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		setup func(h *harness) address.Address
		event alarm.TriggerEvent
	}{
		{
			name:  "person without keypads",
			setup: func(*harness) address.Address { return person },
			event: alarm.EventVerifiedAlarm,
		},
		{
			name: "keypad",
			setup: func(h *harness) address.Address {
				return h.addDevice("k1", "dev,keypad")
			},
			event: alarm.EventKeypad,
		},
		{
			name:  "rule",
			setup: func(*harness) address.Address { return address.Rule("r1") },
			event: alarm.EventRule,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, alarm.ServiceBasic, alarms.Settings{})
			by := tt.setup(h)

			require.NoError(t, h.sub.Panic(h.ctx, by))
			require.Equal(t, alarm.StateAlert, h.state(alarm.Panic))

			raised := h.incident(h.currentIncident())
			require.Equal(t, alarm.Panic, raised.Alert)
			require.Len(t, raised.Triggers, 1)
			require.Equal(t, tt.event, raised.Triggers[0].Event)
			require.Equal(t, by, raised.Triggers[0].Source)
		})
	}
}

// TestPanic_UnknownSource checks that a panic needs a source.
func TestPanic_UnknownSource(t *testing.T) {
	t.Parallel()

	h := newHarness(t, alarm.ServiceBasic, alarms.Settings{})

	require.ErrorIs(t, h.sub.Panic(h.ctx, address.Address{}), alarms.ErrUnknownPanicSource)
	require.Equal(t, alarm.StateInactive, h.state(alarm.Panic))
}

// TestPanic_KeypadMessage checks the keypad panic button.
func TestPanic_KeypadMessage(t *testing.T) {
	t.Parallel()

	h := newHarness(t, alarm.ServiceBasic, alarms.Settings{})
	keypad := h.addDevice("k1", "dev,keypad")
	require.Equal(t, alarm.StateReady, h.state(alarm.Panic))

	h.handle(subsystem.Message{Type: alarms.MessagePanicPressed, Source: keypad})
	require.Equal(t, alarm.StateAlert, h.state(alarm.Panic))
}

// TestCancel_NoIncident checks that there is nothing to cancel on a quiet place.
func TestCancel_NoIncident(t *testing.T) {
	t.Parallel()

	h := newHarness(t, alarm.ServiceBasic, alarms.Settings{})
	h.addDevice("s1", "dev,smoke", place.AttrSmoke, place.Safe)

	_, err := h.sub.Cancel(h.ctx, address.Address{}, person, incident.MethodApp)
	require.ErrorIs(t, err, incident.ErrNoActiveIncident)

	_, pending := fsm.Timeout(h.ctx, alarms.KeyCancel)
	require.False(t, pending)
	require.Equal(t, alarm.StateReady, h.state(alarm.Smoke))
}

// TestCancel_Retry checks that a lost completion is recovered by the cancel timeout.
func TestCancel_Retry(t *testing.T) {
	t.Parallel()

	h := newHarness(t, alarm.ServiceBasic, alarms.Settings{CancelRetry: time.Minute})

	detector := h.addDevice("c1", "dev,co", place.AttrCO, place.Safe)
	h.change(detector, place.AttrCO, place.Detected)
	h.change(detector, place.AttrCO, place.Safe)
	require.Equal(t, alarm.StateAlert, h.state(alarm.CO))

	addr := h.currentIncident()

	_, err := h.sub.Cancel(h.ctx, addr, person, incident.MethodApp)
	require.NoError(t, err)

	h.service.Wait()
	require.Len(t, h.poster.drain(), 1, "the first completion is lost")

	h.fire(alarms.KeyCancel)
	require.Equal(t, alarm.IncidentCancelling, h.incident(addr).State)

	h.deliver()

	require.Equal(t, alarm.IncidentComplete, h.incident(addr).State)
	require.Equal(t, alarm.StateReady, h.state(alarm.CO))
}

// TestIncidentCompleted_Stale checks that completions of other incidents are ignored.
func TestIncidentCompleted_Stale(t *testing.T) {
	t.Parallel()

	h := newHarness(t, alarm.ServiceBasic, alarms.Settings{})

	detector := h.addDevice("s1", "dev,smoke", place.AttrSmoke, place.Safe)
	h.change(detector, place.AttrSmoke, place.Detected)

	current := h.currentIncident()

	h.handle(incident.CompletedMessage(placeID, address.Incident("stale"), person))

	require.Equal(t, current, h.currentIncident())
	require.Equal(t, alarm.StateAlert, h.state(alarm.Smoke))
}

// TestIncidentUpdated checks that monitoring reports reach the incident.
func TestIncidentUpdated(t *testing.T) {
	t.Parallel()

	h := newHarness(t, alarm.ServicePremiumPromon, alarms.Settings{})

	detector := h.addDevice("s1", "dev,smoke", place.AttrSmoke, place.Safe)
	h.change(detector, place.AttrSmoke, place.Detected)

	addr := h.currentIncident()

	h.handle(incident.UpdatedMessage(placeID, addr, alarm.MonitoringDispatching, ""))
	require.Equal(t, alarm.MonitoringDispatching, h.incident(addr).MonitoringState)

	err := h.sub.Handle(h.ctx, subsystem.Message{
		Type:       incident.MessageUpdated,
		Source:     addr,
		PlaceID:    placeID,
		Attributes: map[string]string{incident.AttrMonitoringState: "BOGUS"},
	})
	require.ErrorIs(t, err, alarms.ErrInvalidState)
}

// TestDeviceRemoved checks that an alarm without devices goes INACTIVE.
func TestDeviceRemoved(t *testing.T) {
	t.Parallel()

	h := newHarness(t, alarm.ServiceBasic, alarms.Settings{})

	detector := h.addDevice("s1", "dev,smoke", place.AttrSmoke, place.Safe)
	require.Equal(t, alarm.StateReady, h.state(alarm.Smoke))

	h.handle(subsystem.Message{Type: subsystem.MessageDeleted, Source: detector})
	require.Equal(t, alarm.StateInactive, h.state(alarm.Smoke))
	require.Nil(t, h.ctx.ModelByAddress(detector))
	require.Empty(t, h.ctx.Model().String(alarm.AttrAvailableAlerts))
}
