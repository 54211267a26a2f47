package sounds

import (
	"github.com/oshokin/alarm-subsystem/internal/domain/alarm"
)

//nolint:gochecknoglobals // Read-only tables.
var (
	triggered = map[alarm.Type]Mode{
		alarm.Security: SecurityAlarmTriggered,
		alarm.Panic:    PanicAlarm,
		alarm.Smoke:    SmokeAlarmTriggered,
		alarm.CO:       COTriggered,
		alarm.Water:    WaterLeakDetected,
		alarm.Care:     CareTriggered,
	}

	// Water is never monitored; its entry keeps lookups total.
	monitored = map[alarm.Type]Mode{
		alarm.Security: SecurityTriggeredMonitoringNotified,
		alarm.Panic:    PanicTriggeredMonitoringNotified,
		alarm.Smoke:    SmokeTriggeredMonitoringNotified,
		alarm.CO:       COTriggeredMonitoringNotified,
		alarm.Water:    WaterLeakDetected,
		alarm.Care:     CareTriggered,
	}

	cleared = map[alarm.Type]Mode{
		alarm.Security: SecurityAlarmOff,
		alarm.Panic:    PanicAlarmCancelled,
		alarm.Smoke:    SmokeAlarmCancelled,
		alarm.CO:       COAlarmCancelled,
		alarm.Water:    WaterLeakAlarmCancelled,
		alarm.Care:     CareCancelled,
	}
)

func lookup(table map[alarm.Type]Mode, t alarm.Type) Mode {
	if m, ok := table[t]; ok {
		return m
	}

	return NoSound
}

// Triggered returns the sound for an unmonitored alarm going off.
func Triggered(t alarm.Type) Mode {
	return lookup(triggered, t)
}

// Monitored returns the sound for a monitored alarm going off.
func Monitored(t alarm.Type) Mode {
	return lookup(monitored, t)
}

// Cleared returns the sound for an alarm being cleared.
func Cleared(t alarm.Type) Mode {
	return lookup(cleared, t)
}

// TriggeredFor returns the triggered sound for alarm t.
//
// isMonitored is ignored and the monitored table is always used. Hubs in
// the field depend on this routing, so callers that need the unmonitored
// sound must use Triggered or Get.
func TriggeredFor(_ bool, t alarm.Type) Mode {
	return Monitored(t)
}

// Get picks the sound for an alarm in the given condition.
func Get(isTriggered, isMonitored bool, t alarm.Type) Mode {
	switch {
	case isTriggered && isMonitored:
		return Monitored(t)
	case isTriggered:
		return Triggered(t)
	default:
		return Cleared(t)
	}
}
