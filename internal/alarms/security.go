package alarms

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oshokin/alarm-subsystem/internal/address"
	"github.com/oshokin/alarm-subsystem/internal/domain/alarm"
	"github.com/oshokin/alarm-subsystem/internal/fsm"
	"github.com/oshokin/alarm-subsystem/internal/subsystem"
)

// ErrTriggeredDevices is returned when arming without bypass while some
// security devices are open or offline.
var ErrTriggeredDevices = errors.New("security devices are triggered or offline")

// Timeout keys of the security alarm.
const (
	KeyArming   = "SECURITY.ARMING"
	KeyPrealert = "SECURITY.PREALERT"
)

const (
	disarmed = string(alarm.StateDisarmed)
	arming   = string(alarm.StateArming)
	prealert = string(alarm.StatePrealert)
)

func securityStates(m *Machine) map[string]State {
	return index([]State{
		securityInactive{newBase(m, alarm.StateInactive, "")},
		securityDisarmed{newBase(m, alarm.StateDisarmed, "")},
		securityArming{newBase(m, alarm.StateArming, KeyArming)},
		securityReady{newBase(m, alarm.StateReady, "")},
		securityPrealert{newBase(m, alarm.StatePrealert, KeyPrealert)},
		securityAlert{newBase(m, alarm.StateAlert, "")},
		securityClearing{newBase(m, alarm.StateClearing, "")},
	})
}

func setSecurityMode(c subsystem.Context, mode alarm.SecurityMode) {
	c.Model().Set(alarm.AttrSecurityMode, string(mode))
}

type securityInactive struct {
	base
}

func (s securityInactive) OnStarted(c subsystem.Context) (string, error) {
	return s.OnEnter(c)
}

func (s securityInactive) OnEnter(c subsystem.Context) (string, error) {
	if s.m.hasDevices(c) {
		return disarmed, nil
	}

	setSecurityMode(c, alarm.SecurityModeInactive)

	return s.stay()
}

func (s securityInactive) OnSensorAdded(c subsystem.Context, _ address.Address) (string, error) {
	return s.OnEnter(c)
}

type securityDisarmed struct {
	base
}

func (s securityDisarmed) OnStarted(c subsystem.Context) (string, error) {
	if !s.m.hasDevices(c) {
		return inactive, nil
	}

	return s.stay()
}

func (s securityDisarmed) OnEnter(c subsystem.Context) (string, error) {
	if !s.m.hasDevices(c) {
		return inactive, nil
	}

	model := c.Model()
	model.Set(alarm.AttrExcludedDevices(alarm.Security), "")
	model.Set(alarm.AttrSecurityArmTime, "")
	s.m.clearTriggers(c)
	setSecurityMode(c, alarm.SecurityModeDisarmed)

	return s.stay()
}

func (s securityDisarmed) OnSensorRemoved(c subsystem.Context, _ address.Address) (string, error) {
	return s.OnStarted(c)
}

// Arm starts arming. Open or offline devices fail the request unless they
// are bypassed; bypassed devices are ignored until they are ready again.
func (s securityDisarmed) Arm(c subsystem.Context, mode alarm.SecurityMode, bypass bool) (string, error) {
	var (
		model    = c.Model()
		blocking = append(
			model.Strings(alarm.AttrTriggeredDevices(alarm.Security)),
			model.Strings(alarm.AttrOfflineDevices(alarm.Security))...,
		)
	)

	if len(blocking) > 0 && !bypass {
		return "", fmt.Errorf("%w: %s", ErrTriggeredDevices, strings.Join(blocking, ", "))
	}

	model.SetStrings(alarm.AttrExcludedDevices(alarm.Security), blocking)
	setSecurityMode(c, mode)

	return arming, nil
}

type securityArming struct {
	base
}

func (s securityArming) OnStarted(c subsystem.Context) (string, error) {
	if _, ok := fsm.RestoreTimeout(c, s.Key); !ok {
		return ready, nil
	}

	return s.stay()
}

func (s securityArming) OnEnter(c subsystem.Context) (string, error) {
	delay := s.m.settings.ExitDelay
	if delay <= 0 {
		return ready, nil
	}

	at := fsm.SetTimeoutAfter(c, s.Key, delay)
	c.Model().Set(alarm.AttrSecurityArmTime, at.UTC().Format(time.RFC3339Nano))

	return s.stay()
}

func (s securityArming) OnTimeout(subsystem.Context) (string, error) {
	return ready, nil
}

func (s securityArming) Arm(subsystem.Context, alarm.SecurityMode, bool) (string, error) {
	return s.stay()
}

func (s securityArming) Disarm(subsystem.Context) (string, error) {
	return disarmed, nil
}

type securityReady struct {
	base
}

func (s securityReady) OnSensorTriggered(c subsystem.Context, sensor address.Address, event alarm.TriggerEvent) (string, error) {
	s.m.addTrigger(c, s.m.newTrigger(c, sensor, event))

	if s.m.settings.EntranceDelay > 0 {
		return prealert, nil
	}

	return alert, nil
}

// OnTriggered skips the entrance delay: rules never wait.
func (s securityReady) OnTriggered(c subsystem.Context, by address.Address, event alarm.TriggerEvent) (string, error) {
	s.m.addTrigger(c, s.m.newTrigger(c, by, event))

	return alert, nil
}

func (s securityReady) Arm(subsystem.Context, alarm.SecurityMode, bool) (string, error) {
	return s.stay()
}

func (s securityReady) Disarm(subsystem.Context) (string, error) {
	return disarmed, nil
}

type securityPrealert struct {
	base
}

// OnStarted escalates when the entrance deadline was lost.
func (s securityPrealert) OnStarted(c subsystem.Context) (string, error) {
	if _, ok := fsm.RestoreTimeout(c, s.Key); !ok {
		return alert, nil
	}

	return s.stay()
}

func (s securityPrealert) OnEnter(c subsystem.Context) (string, error) {
	at := fsm.SetTimeoutAfter(c, s.Key, s.m.settings.EntranceDelay)

	if _, err := s.m.incidents.AddPreAlert(c, alarm.Security, at, s.m.triggers(c)); err != nil {
		return s.StateName, fmt.Errorf("add pre-alert: %w", err)
	}

	return s.stay()
}

func (s securityPrealert) OnTimeout(subsystem.Context) (string, error) {
	return alert, nil
}

func (s securityPrealert) OnSensorTriggered(c subsystem.Context, sensor address.Address, event alarm.TriggerEvent) (string, error) {
	if err := s.m.record(c, s.m.newTrigger(c, sensor, event), false); err != nil {
		return s.StateName, err
	}

	return s.stay()
}

func (s securityPrealert) OnTriggered(c subsystem.Context, by address.Address, event alarm.TriggerEvent) (string, error) {
	s.m.addTrigger(c, s.m.newTrigger(c, by, event))

	return alert, nil
}

func (s securityPrealert) OnVerified(subsystem.Context, address.Address, time.Time) (string, error) {
	return alert, nil
}

func (s securityPrealert) Cancel(subsystem.Context) (string, error) {
	return clearing, nil
}

func (s securityPrealert) Disarm(subsystem.Context) (string, error) {
	return clearing, nil
}

func (s securityPrealert) OnCancelled(subsystem.Context) (string, error) {
	return disarmed, nil
}

type securityAlert struct {
	base
}

func (s securityAlert) OnEnter(c subsystem.Context) (string, error) {
	if _, err := s.m.incidents.AddAlert(c, alarm.Security, s.m.triggers(c), true); err != nil {
		return s.StateName, fmt.Errorf("add alert: %w", err)
	}

	return s.stay()
}

func (s securityAlert) OnSensorTriggered(c subsystem.Context, sensor address.Address, event alarm.TriggerEvent) (string, error) {
	return s.OnTriggered(c, sensor, event)
}

func (s securityAlert) OnTriggered(c subsystem.Context, by address.Address, event alarm.TriggerEvent) (string, error) {
	if err := s.m.record(c, s.m.newTrigger(c, by, event), true); err != nil {
		return s.StateName, err
	}

	return s.stay()
}

func (s securityAlert) Cancel(subsystem.Context) (string, error) {
	return clearing, nil
}

func (s securityAlert) Disarm(subsystem.Context) (string, error) {
	return clearing, nil
}

func (s securityAlert) OnCancelled(subsystem.Context) (string, error) {
	return disarmed, nil
}

type securityClearing struct {
	base
}

func (s securityClearing) OnEnter(c subsystem.Context) (string, error) {
	s.m.clearTriggers(c)

	return s.stay()
}

func (s securityClearing) OnStarted(c subsystem.Context) (string, error) {
	if s.m.hasIncident(c) {
		return s.stay()
	}

	return disarmed, nil
}

func (s securityClearing) OnCancelled(subsystem.Context) (string, error) {
	return disarmed, nil
}
