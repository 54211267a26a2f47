package alarm

// Type names an alarm type. The values are wire-stable.
type Type string

// Alarm types handled by the subsystem.
const (
	Security Type = "SECURITY"
	Panic    Type = "PANIC"
	Smoke    Type = "SMOKE"
	CO       Type = "CO"
	Water    Type = "WATER"
	// Care has no state machine of its own but appears in trigger and sound lookups.
	Care Type = "CARE"
)

// Types lists the alarm types that own a state machine, in evaluation order.
//
//nolint:gochecknoglobals // Read-only table.
var Types = []Type{CO, Panic, Security, Smoke, Water}

// AlertState is the alert state of a single alarm. The values are wire-stable.
type AlertState string

// Alert states shared by all alarm types.
const (
	StateInactive     AlertState = "INACTIVE"
	StatePrealert     AlertState = "PREALERT"
	StateAlert        AlertState = "ALERT"
	StateClearing     AlertState = "CLEARING"
	StatePendingClear AlertState = "PENDING_CLEAR"
	StateReady        AlertState = "READY"
	StateDisarmed     AlertState = "DISARMED"
	StateArming       AlertState = "ARMING"
)

// AlertStates lists every alert state.
//
//nolint:gochecknoglobals // Read-only table.
var AlertStates = []AlertState{
	StateInactive,
	StatePrealert,
	StateAlert,
	StateClearing,
	StatePendingClear,
	StateReady,
	StateDisarmed,
	StateArming,
}

// ParseAlertState returns the alert state with the given name.
func ParseAlertState(name string) (AlertState, bool) {
	for _, s := range AlertStates {
		if string(s) == name {
			return s, true
		}
	}

	return "", false
}

// IsAlerting reports whether the state represents an ongoing alarm.
func (s AlertState) IsAlerting() bool {
	return s == StatePrealert || s == StateAlert
}

// ServiceLevel is the subscription level of a place.
type ServiceLevel string

// Service levels known to the monitoring gate.
const (
	ServiceBasic         ServiceLevel = "BASIC"
	ServicePremium       ServiceLevel = "PREMIUM"
	ServicePremiumPromon ServiceLevel = "PREMIUM_PROMON"
)

// IsProMon reports whether the level includes professional monitoring.
func (l ServiceLevel) IsProMon() bool {
	return l == ServicePremiumPromon
}

// IsMonitorable reports whether alarms of type t can ever be reported
// to a monitoring station. Water and care are never monitored.
func IsMonitorable(t Type) bool {
	switch t {
	case CO, Panic, Security, Smoke:
		return true
	default:
		return false
	}
}

// IsMonitored is the monitoring gate: whether alarm t is monitored at the
// given service level.
func IsMonitored(level ServiceLevel, t Type) bool {
	return level.IsProMon() && IsMonitorable(t)
}
