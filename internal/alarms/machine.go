package alarms

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/oshokin/alarm-subsystem/internal/address"
	"github.com/oshokin/alarm-subsystem/internal/domain/alarm"
	"github.com/oshokin/alarm-subsystem/internal/domain/place"
	"github.com/oshokin/alarm-subsystem/internal/fsm"
	"github.com/oshokin/alarm-subsystem/internal/logger"
	"github.com/oshokin/alarm-subsystem/internal/subsystem"
)

// Incidents is the incident service the machines report to.
type Incidents interface {
	AddPreAlert(c subsystem.Context, t alarm.Type, prealertEnd time.Time, triggers []alarm.Trigger) (address.Address, error)
	AddAlert(c subsystem.Context, t alarm.Type, triggers []alarm.Trigger, sendNotifications bool) (address.Address, error)
	UpdateIncident(c subsystem.Context, triggers []alarm.Trigger, sendNotifications bool) error
	OnHubConnectivityChanged(c subsystem.Context, hub *place.Model) error
	Verify(c subsystem.Context, addr, by address.Address) (time.Time, error)
	Cancel(c subsystem.Context, by address.Address, method string) (*alarm.Incident, error)
	OnCompleted(c subsystem.Context, addr, by address.Address) (*alarm.Incident, error)
	OnIncidentUpdated(c subsystem.Context, addr address.Address, state alarm.MonitoringState, trackerMessage string) error
	ListIncidents(c subsystem.Context) ([]*alarm.Incident, error)
}

// Metrics observes the machines.
type Metrics interface {
	Transition(t alarm.Type, from, to string)
	HookFailure(t alarm.Type, state, hook string)
}

type nopMetrics struct{}

func (nopMetrics) Transition(alarm.Type, string, string)  {}
func (nopMetrics) HookFailure(alarm.Type, string, string) {}

// Settings are the delays used by the machines.
type Settings struct {
	// EntranceDelay is how long the security alarm pre-alerts before alerting.
	EntranceDelay time.Duration
	// ExitDelay is how long the security alarm takes to arm.
	ExitDelay time.Duration
	// CancelRetry is how long a cancel waits for completion before it is retried.
	CancelRetry time.Duration
}

// State is an alert state of one alarm type.
type State interface {
	fsm.State[subsystem.Context]

	OnSensorAdded(c subsystem.Context, sensor address.Address) (string, error)
	OnSensorRemoved(c subsystem.Context, sensor address.Address) (string, error)
	OnSensorTriggered(c subsystem.Context, sensor address.Address, event alarm.TriggerEvent) (string, error)
	OnSensorCleared(c subsystem.Context, sensor address.Address) (string, error)
	// OnTriggered handles a trigger that does not come from a participating
	// device: a rule, a keypad or a person.
	OnTriggered(c subsystem.Context, by address.Address, event alarm.TriggerEvent) (string, error)
	OnVerified(c subsystem.Context, by address.Address, at time.Time) (string, error)
	Cancel(c subsystem.Context) (string, error)
	OnCancelled(c subsystem.Context) (string, error)
	Arm(c subsystem.Context, mode alarm.SecurityMode, bypass bool) (string, error)
	Disarm(c subsystem.Context) (string, error)
}

// Machine is the alert state machine of one alarm type. It holds no place
// state: the current state name, device sets and pending triggers live on
// the subsystem model.
type Machine struct {
	def       Definition
	incidents Incidents
	settings  Settings
	states    map[string]State
	fsm       *fsm.Machine[subsystem.Context]
}

// NewMachine creates the machine of def.
func NewMachine(def Definition, incidents Incidents, settings Settings, metrics Metrics) *Machine {
	if metrics == nil {
		metrics = nopMetrics{}
	}

	m := &Machine{
		def:       def,
		incidents: incidents,
		settings:  settings,
	}

	if def.Type == alarm.Security {
		m.states = securityStates(m)
	} else {
		m.states = genericStates(m)
	}

	attr := alarm.AttrAlertState(def.Type)

	m.fsm = fsm.New(
		string(def.Type),
		string(alarm.StateInactive),
		m.resolve,
		fsm.Persistence[subsystem.Context]{
			Load: func(c subsystem.Context) string {
				return c.Model().String(attr)
			},
			Save: func(c subsystem.Context, name string) {
				c.Model().Set(attr, name)
			},
		},
		fsm.WithObserver[subsystem.Context](m.playSound),
		fsm.WithObserver[subsystem.Context](func(_ subsystem.Context, from, to string) {
			metrics.Transition(def.Type, from, to)
		}),
		fsm.WithFailureHandler[subsystem.Context](func(state, hook string, _ error) {
			metrics.HookFailure(def.Type, state, hook)
		}),
	)

	return m
}

// Type returns the alarm type of the machine.
func (m *Machine) Type() alarm.Type {
	return m.def.Type
}

// State returns the current alert state.
func (m *Machine) State(c subsystem.Context) alarm.AlertState {
	s, err := m.current(c)
	if err != nil {
		return alarm.StateInactive
	}

	return alarm.AlertState(s.Name())
}

// OnStarted re-enters the persisted state after a restart.
func (m *Machine) OnStarted(c subsystem.Context) error {
	return m.fsm.OnStarted(c)
}

// OnTimeout delivers a fired wake-up.
func (m *Machine) OnTimeout(c subsystem.Context, event fsm.TimeoutEvent) error {
	return m.fsm.OnTimeout(c, event)
}

// OnSensorAdded handles a device joining the alarm.
func (m *Machine) OnSensorAdded(c subsystem.Context, sensor address.Address) error {
	return m.fire(c, "sensor added", func(s State) (string, error) {
		return s.OnSensorAdded(c, sensor)
	})
}

// OnSensorRemoved handles a device leaving the alarm.
func (m *Machine) OnSensorRemoved(c subsystem.Context, sensor address.Address) error {
	return m.fire(c, "sensor removed", func(s State) (string, error) {
		return s.OnSensorRemoved(c, sensor)
	})
}

// OnSensorTriggered handles a device starting to fire. Bypassed security
// sensors are ignored.
func (m *Machine) OnSensorTriggered(c subsystem.Context, sensor address.Address, event alarm.TriggerEvent) error {
	if m.ignores(c, sensor) {
		logger.DebugKV(c.Context(), "Ignoring bypassed sensor", "alarm", m.def.Type, "sensor", sensor.String())

		return nil
	}

	return m.fire(c, "sensor triggered", func(s State) (string, error) {
		return s.OnSensorTriggered(c, sensor, event)
	})
}

// OnSensorCleared handles a device that stopped firing.
func (m *Machine) OnSensorCleared(c subsystem.Context, sensor address.Address) error {
	return m.fire(c, "sensor cleared", func(s State) (string, error) {
		return s.OnSensorCleared(c, sensor)
	})
}

// OnTriggered handles a rule, keypad or person trigger.
func (m *Machine) OnTriggered(c subsystem.Context, by address.Address, event alarm.TriggerEvent) error {
	return m.fire(c, "triggered", func(s State) (string, error) {
		return s.OnTriggered(c, by, event)
	})
}

// OnVerified handles a verified incident.
func (m *Machine) OnVerified(c subsystem.Context, by address.Address, at time.Time) error {
	return m.fire(c, "verified", func(s State) (string, error) {
		return s.OnVerified(c, by, at)
	})
}

// Cancel starts clearing an alerting alarm.
func (m *Machine) Cancel(c subsystem.Context) error {
	return m.fire(c, "cancel", func(s State) (string, error) {
		return s.Cancel(c)
	})
}

// OnCancelled handles the completion of the incident.
func (m *Machine) OnCancelled(c subsystem.Context) error {
	return m.fire(c, "cancelled", func(s State) (string, error) {
		return s.OnCancelled(c)
	})
}

// Arm arms the alarm. Only the security alarm can be armed.
func (m *Machine) Arm(c subsystem.Context, mode alarm.SecurityMode, bypass bool) error {
	return m.fire(c, "arm", func(s State) (string, error) {
		return s.Arm(c, mode, bypass)
	})
}

// Disarm disarms the alarm.
func (m *Machine) Disarm(c subsystem.Context) error {
	return m.fire(c, "disarm", func(s State) (string, error) {
		return s.Disarm(c)
	})
}

// fire runs an event on the current state and moves to the state it returns.
func (m *Machine) fire(c subsystem.Context, event string, fn func(s State) (string, error)) error {
	current, err := m.current(c)
	if err != nil {
		return err
	}

	next, err := fn(current)
	if err != nil {
		return fmt.Errorf("%s %s in %s: %w", m.def.Type, event, current.Name(), err)
	}

	return m.fsm.Transition(c, next)
}

func (m *Machine) current(c subsystem.Context) (State, error) {
	s, err := m.fsm.Current(c)
	if err != nil {
		return nil, err
	}

	state, ok := s.(State)
	if !ok {
		return nil, fmt.Errorf("%s: %w: %s", m.def.Type, fsm.ErrUnknownState, s.Name())
	}

	return state, nil
}

//nolint:ireturn // States are a closed set of implementations.
func (m *Machine) resolve(name string) (fsm.State[subsystem.Context], error) {
	s, ok := m.states[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", fsm.ErrUnknownState, name)
	}

	return s, nil
}

func (m *Machine) hasDevices(c subsystem.Context) bool {
	return len(c.Model().Strings(alarm.AttrDevices(m.def.Type))) > 0
}

func (m *Machine) hasTriggeredDevices(c subsystem.Context) bool {
	return len(c.Model().Strings(alarm.AttrTriggeredDevices(m.def.Type))) > 0
}

func (m *Machine) hasIncident(c subsystem.Context) bool {
	return c.Model().String(alarm.AttrCurrentIncident) != ""
}

// ignores reports whether triggers of sensor are dropped: bypassed sensors
// and, in partial mode, motion sensors.
func (m *Machine) ignores(c subsystem.Context, sensor address.Address) bool {
	if m.def.Type != alarm.Security {
		return false
	}

	if slices.Contains(c.Model().Strings(alarm.AttrExcludedDevices(m.def.Type)), sensor.String()) {
		return true
	}

	if !c.Model().Is(alarm.AttrSecurityMode, string(alarm.SecurityModePartial)) {
		return false
	}

	model := c.ModelByAddress(sensor)

	return model != nil && isMotionSensor(model)
}

func (m *Machine) newTrigger(c subsystem.Context, source address.Address, event alarm.TriggerEvent) alarm.Trigger {
	return alarm.Trigger{
		Alarm:  m.def.Type,
		Event:  event,
		Source: source,
		Time:   c.Now(),
	}
}

// triggers returns the triggers collected since the alarm became ready.
func (m *Machine) triggers(c subsystem.Context) []alarm.Trigger {
	raw := c.Model().String(alarm.AttrTriggers(m.def.Type))
	if raw == "" {
		return nil
	}

	var triggers []alarm.Trigger
	if err := json.Unmarshal([]byte(raw), &triggers); err != nil {
		logger.WarnKV(c.Context(), "Dropping malformed triggers", "alarm", m.def.Type, "error", err)

		return nil
	}

	return triggers
}

func (m *Machine) addTrigger(c subsystem.Context, t alarm.Trigger) {
	triggers := append(m.triggers(c), t)

	raw, err := json.Marshal(triggers)
	if err != nil {
		logger.WarnKV(c.Context(), "Failed to store trigger", "alarm", m.def.Type, "error", err)

		return
	}

	c.Model().Set(alarm.AttrTriggers(m.def.Type), string(raw))
}

func (m *Machine) clearTriggers(c subsystem.Context) {
	c.Model().Set(alarm.AttrTriggers(m.def.Type), "")
}

// SyncDevices recomputes the device sets of the alarm from the place models
// and raises an event for every difference with the persisted sets.
// Offline devices never count as triggered.
func (m *Machine) SyncDevices(c subsystem.Context) error {
	var (
		t         = m.def.Type
		model     = c.Model()
		addrs     = make(map[string]address.Address)
		devices   []string
		triggered []string
		offline   []string
	)

	for _, d := range c.Models() {
		if !m.def.Devices(d) {
			continue
		}

		key := d.Address.String()
		addrs[key] = d.Address
		devices = append(devices, key)

		switch {
		case d.IsOffline():
			offline = append(offline, key)
		case m.def.Triggered(d):
			triggered = append(triggered, key)
		}
	}

	var (
		oldDevices   = model.Strings(alarm.AttrDevices(t))
		oldTriggered = model.Strings(alarm.AttrTriggeredDevices(t))
		errs         []error
	)

	model.SetStrings(alarm.AttrDevices(t), devices)
	model.SetStrings(alarm.AttrOfflineDevices(t), offline)
	model.SetStrings(alarm.AttrTriggeredDevices(t), triggered)

	if t == alarm.Security {
		// A bypassed sensor rejoins once it is closed and online again.
		excluded := slices.DeleteFunc(model.Strings(alarm.AttrExcludedDevices(t)), func(key string) bool {
			return !slices.Contains(triggered, key) && !slices.Contains(offline, key)
		})
		model.SetStrings(alarm.AttrExcludedDevices(t), excluded)
	}

	for _, key := range difference(devices, oldDevices) {
		errs = append(errs, m.OnSensorAdded(c, addrs[key]))
	}

	for _, key := range difference(oldDevices, devices) {
		if addr, err := address.Parse(key); err == nil {
			errs = append(errs, m.OnSensorRemoved(c, addr))
		}
	}

	for _, key := range difference(triggered, oldTriggered) {
		errs = append(errs, m.OnSensorTriggered(c, addrs[key], m.def.Event))
	}

	for _, key := range difference(oldTriggered, triggered) {
		if addr, err := address.Parse(key); err == nil {
			errs = append(errs, m.OnSensorCleared(c, addr))
		}
	}

	return errors.Join(errs...)
}

// difference returns the elements of a missing from b.
func difference(a, b []string) []string {
	var out []string

	for _, v := range a {
		if !slices.Contains(b, v) {
			out = append(out, v)
		}
	}

	return out
}
