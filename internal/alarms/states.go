package alarms

import (
	"errors"
	"fmt"
	"time"

	"github.com/oshokin/alarm-subsystem/internal/address"
	"github.com/oshokin/alarm-subsystem/internal/domain/alarm"
	"github.com/oshokin/alarm-subsystem/internal/domain/place"
	"github.com/oshokin/alarm-subsystem/internal/fsm"
	"github.com/oshokin/alarm-subsystem/internal/logger"
	"github.com/oshokin/alarm-subsystem/internal/subsystem"
)

// ErrInvalidState is returned when the current state cannot handle a request.
var ErrInvalidState = errors.New("invalid alarm state")

const (
	inactive = string(alarm.StateInactive)
	ready    = string(alarm.StateReady)
	alert    = string(alarm.StateAlert)
	clearing = string(alarm.StateClearing)
)

// base implements every event by staying in the current state.
type base struct {
	fsm.Base[subsystem.Context]

	m *Machine
}

func newBase(m *Machine, name alarm.AlertState, timeoutKey string) base {
	return base{
		Base: fsm.Base[subsystem.Context]{
			StateName: string(name),
			Key:       timeoutKey,
		},
		m: m,
	}
}

func (b base) stay() (string, error) {
	return b.StateName, nil
}

func (b base) OnSensorAdded(subsystem.Context, address.Address) (string, error) {
	return b.stay()
}

func (b base) OnSensorRemoved(subsystem.Context, address.Address) (string, error) {
	return b.stay()
}

func (b base) OnSensorTriggered(subsystem.Context, address.Address, alarm.TriggerEvent) (string, error) {
	return b.stay()
}

func (b base) OnSensorCleared(subsystem.Context, address.Address) (string, error) {
	return b.stay()
}

func (b base) OnTriggered(subsystem.Context, address.Address, alarm.TriggerEvent) (string, error) {
	return b.stay()
}

func (b base) OnVerified(subsystem.Context, address.Address, time.Time) (string, error) {
	return b.stay()
}

func (b base) Cancel(subsystem.Context) (string, error) {
	return b.stay()
}

func (b base) OnCancelled(subsystem.Context) (string, error) {
	return b.stay()
}

func (b base) Arm(subsystem.Context, alarm.SecurityMode, bool) (string, error) {
	return "", fmt.Errorf("%w: %s cannot be armed while %s", ErrInvalidState, b.m.def.Type, b.StateName)
}

func (b base) Disarm(subsystem.Context) (string, error) {
	return b.stay()
}

// settle returns where an alarm goes once its incident is over.
func (m *Machine) settle(c subsystem.Context) string {
	switch {
	case m.def.HoldClearing && m.hasTriggeredDevices(c):
		return clearing
	case m.hasDevices(c):
		return ready
	default:
		return inactive
	}
}

// record adds a trigger to the pending set and to the active incident.
func (m *Machine) record(c subsystem.Context, t alarm.Trigger, sendNotifications bool) error {
	m.addTrigger(c, t)

	return m.incidents.UpdateIncident(c, []alarm.Trigger{t}, sendNotifications)
}

// closeValves asks every water valve of the place to close.
func (m *Machine) closeValves(c subsystem.Context) {
	for _, valve := range c.Models() {
		if !isValve(valve) {
			continue
		}

		logger.InfoKV(c.Context(), "Closing water valve", "valve", valve.Address.String())

		c.Send(subsystem.Message{
			Type:        subsystem.MessageSetAttributes,
			Destination: valve.Address,
			Attributes: map[string]string{
				place.AttrValveState: place.ValveClosed,
			},
		})
	}
}

func genericStates(m *Machine) map[string]State {
	variant := alertGeneric

	switch m.def.Type {
	case alarm.Smoke:
		variant = alertSmoke
	case alarm.Water:
		variant = alertWater
	default:
	}

	states := []State{
		inactiveState{newBase(m, alarm.StateInactive, "")},
		readyState{newBase(m, alarm.StateReady, "")},
		alertState{base: newBase(m, alarm.StateAlert, ""), variant: variant},
		clearingState{newBase(m, alarm.StateClearing, "")},
	}

	return index(states)
}

func index(states []State) map[string]State {
	out := make(map[string]State, len(states))
	for _, s := range states {
		out[s.Name()] = s
	}

	return out
}

type inactiveState struct {
	base
}

func (s inactiveState) OnStarted(c subsystem.Context) (string, error) {
	return s.OnEnter(c)
}

func (s inactiveState) OnEnter(c subsystem.Context) (string, error) {
	if s.m.hasDevices(c) {
		return ready, nil
	}

	return s.stay()
}

func (s inactiveState) OnSensorAdded(c subsystem.Context, _ address.Address) (string, error) {
	return s.OnEnter(c)
}

// OnTriggered lets a panic fire even when the place has no keypad.
func (s inactiveState) OnTriggered(c subsystem.Context, by address.Address, event alarm.TriggerEvent) (string, error) {
	if s.m.def.Type != alarm.Panic {
		return s.stay()
	}

	s.m.addTrigger(c, s.m.newTrigger(c, by, event))

	return alert, nil
}

type readyState struct {
	base
}

func (s readyState) OnStarted(c subsystem.Context) (string, error) {
	return s.OnEnter(c)
}

func (s readyState) OnEnter(c subsystem.Context) (string, error) {
	if !s.m.hasDevices(c) {
		return inactive, nil
	}

	return s.stay()
}

func (s readyState) OnSensorRemoved(c subsystem.Context, _ address.Address) (string, error) {
	return s.OnEnter(c)
}

func (s readyState) OnSensorTriggered(c subsystem.Context, sensor address.Address, event alarm.TriggerEvent) (string, error) {
	s.m.addTrigger(c, s.m.newTrigger(c, sensor, event))

	return alert, nil
}

func (s readyState) OnTriggered(c subsystem.Context, by address.Address, event alarm.TriggerEvent) (string, error) {
	s.m.addTrigger(c, s.m.newTrigger(c, by, event))

	return alert, nil
}

type alertVariant int

const (
	alertGeneric alertVariant = iota
	// alertSmoke re-dispatches the incident when someone verifies it.
	alertSmoke
	// alertWater shuts the water off whenever a leak is reported.
	alertWater
)

type alertState struct {
	base

	variant alertVariant
}

func (s alertState) OnEnter(c subsystem.Context) (string, error) {
	if s.variant == alertWater {
		s.m.closeValves(c)
	}

	if _, err := s.m.incidents.AddAlert(c, s.m.def.Type, s.m.triggers(c), true); err != nil {
		return s.StateName, fmt.Errorf("add alert: %w", err)
	}

	return s.stay()
}

func (s alertState) OnSensorTriggered(c subsystem.Context, sensor address.Address, event alarm.TriggerEvent) (string, error) {
	return s.OnTriggered(c, sensor, event)
}

func (s alertState) OnTriggered(c subsystem.Context, by address.Address, event alarm.TriggerEvent) (string, error) {
	if s.variant == alertWater {
		s.m.closeValves(c)
	}

	if err := s.m.record(c, s.m.newTrigger(c, by, event), true); err != nil {
		return s.StateName, err
	}

	return s.stay()
}

func (s alertState) OnVerified(c subsystem.Context, by address.Address, at time.Time) (string, error) {
	if s.variant != alertSmoke {
		return s.stay()
	}

	t := s.m.newTrigger(c, by, alarm.EventVerifiedAlarm)
	if !at.IsZero() {
		t.Time = at
	}

	if err := s.m.record(c, t, true); err != nil {
		return s.StateName, err
	}

	return s.stay()
}

func (s alertState) Cancel(subsystem.Context) (string, error) {
	return clearing, nil
}

func (s alertState) OnCancelled(c subsystem.Context) (string, error) {
	return s.m.settle(c), nil
}

type clearingState struct {
	base
}

func (s clearingState) OnEnter(c subsystem.Context) (string, error) {
	s.m.clearTriggers(c)

	return s.stay()
}

func (s clearingState) OnStarted(c subsystem.Context) (string, error) {
	if s.m.hasIncident(c) {
		return s.stay()
	}

	return s.m.settle(c), nil
}

func (s clearingState) OnSensorRemoved(c subsystem.Context, _ address.Address) (string, error) {
	return s.OnStarted(c)
}

func (s clearingState) OnSensorCleared(c subsystem.Context, _ address.Address) (string, error) {
	return s.OnStarted(c)
}

func (s clearingState) OnCancelled(c subsystem.Context) (string, error) {
	return s.m.settle(c), nil
}
