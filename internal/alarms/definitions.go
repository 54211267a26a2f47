package alarms

import (
	"github.com/oshokin/alarm-subsystem/internal/domain/alarm"
	"github.com/oshokin/alarm-subsystem/internal/domain/place"
)

// Definition describes how one alarm type selects and reads its devices.
type Definition struct {
	Type alarm.Type
	// Devices selects the models participating in the alarm.
	Devices func(m *place.Model) bool
	// Triggered reports whether a participating model is firing.
	Triggered func(m *place.Model) bool
	// Event classifies the firing condition of the alarm's devices.
	Event alarm.TriggerEvent
	// HoldClearing keeps a cancelled alarm CLEARING while a device still fires.
	HoldClearing bool
}

// Definitions returns the definitions of every alarm type owning a machine,
// in evaluation order.
func Definitions() []Definition {
	return []Definition{
		{
			Type:         alarm.CO,
			Devices:      isCO,
			Triggered:    coDetected,
			Event:        alarm.EventCO,
			HoldClearing: true,
		},
		{
			Type:      alarm.Panic,
			Devices:   isKeyPad,
			Triggered: never,
			Event:     alarm.EventKeypad,
		},
		{
			Type:      alarm.Security,
			Devices:   isSecurityDevice,
			Triggered: securityTriggered,
			Event:     alarm.EventContact,
		},
		{
			Type:         alarm.Smoke,
			Devices:      isSmoke,
			Triggered:    smokeDetected,
			Event:        alarm.EventSmoke,
			HoldClearing: true,
		},
		{
			Type:      alarm.Water,
			Devices:   isLeakDetector,
			Triggered: leakDetected,
			Event:     alarm.EventLeak,
		},
	}
}

// DefinitionOf returns the definition of t.
func DefinitionOf(t alarm.Type) (Definition, bool) {
	for _, d := range Definitions() {
		if d.Type == t {
			return d, true
		}
	}

	return Definition{}, false
}
