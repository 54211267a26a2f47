package alarms

import (
	"github.com/oshokin/alarm-subsystem/internal/domain/alarm"
	"github.com/oshokin/alarm-subsystem/internal/domain/place"
	"github.com/oshokin/alarm-subsystem/internal/logger"
	"github.com/oshokin/alarm-subsystem/internal/sounds"
	"github.com/oshokin/alarm-subsystem/internal/subsystem"
)

// Hub sounder command.
const (
	MessagePlaySound = "hubsounder:Play"
	AttrSounderMode  = "hubsounder:mode"
	AttrSounderAlarm = "hubsounder:alarm"
)

// sound picks the sounder mode for a step of the machine.
func (m *Machine) sound(c subsystem.Context, from, to alarm.AlertState) sounds.Mode {
	monitored := c.Model().Bool(alarm.AttrMonitored(m.def.Type))

	if m.def.Type == alarm.Security {
		mode := sounds.Transition(from, to, m.def.Type)
		if mode == sounds.NoSound && from == alarm.StatePrealert && to == alarm.StateAlert {
			return sounds.Get(true, monitored, m.def.Type)
		}

		return mode
	}

	switch {
	case to == alarm.StateAlert:
		return sounds.Get(true, monitored, m.def.Type)
	case from == alarm.StateAlert:
		return sounds.Get(false, monitored, m.def.Type)
	default:
		return sounds.NoSound
	}
}

// playSound is the machine observer sending sounder commands to the hub.
func (m *Machine) playSound(c subsystem.Context, from, to string) {
	mode := m.sound(c, alarm.AlertState(from), alarm.AlertState(to))
	if mode == sounds.NoSound {
		return
	}

	if c.Model().Bool(alarm.AttrSilent(m.def.Type)) {
		logger.DebugKV(c.Context(), "Alarm is silent, not playing", "alarm", m.def.Type, "mode", mode)

		return
	}

	hubs := subsystem.ModelsWith(c, place.CapHub)
	if len(hubs) == 0 {
		logger.DebugKV(c.Context(), "No hub to play sound", "alarm", m.def.Type, "mode", mode)

		return
	}

	c.Send(subsystem.Message{
		Type:        MessagePlaySound,
		Destination: hubs[0].Address,
		Attributes: map[string]string{
			AttrSounderMode:  string(mode),
			AttrSounderAlarm: string(m.def.Type),
		},
	})
}
