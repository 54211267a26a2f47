package alarm

// Attributes of the alarm subsystem model.
const (
	// AttrCurrentIncident holds the address of the place's active incident.
	AttrCurrentIncident = "alarmsubsystem:currentIncident"
	// AttrSecurityMode holds the arming mode of the security alarm.
	AttrSecurityMode = "alarmsubsystem:securityMode"
	// AttrSecurityArmTime holds when the security alarm finishes arming.
	AttrSecurityArmTime = "alarmsubsystem:securityArmTime"
	// AttrLastArmedBy and AttrLastDisarmedBy hold the actors of the last arm and disarm.
	AttrLastArmedBy    = "alarmsubsystem:lastArmedBy"
	AttrLastDisarmedBy = "alarmsubsystem:lastDisarmedBy"
	// AttrAlarmState summarizes the alert states of all alarms.
	AttrAlarmState = "alarmsubsystem:alarmState"
	// AttrActiveAlerts lists the alarms in ALERT.
	AttrActiveAlerts = "alarmsubsystem:activeAlerts"
	// AttrAvailableAlerts lists the alarms that are not INACTIVE.
	AttrAvailableAlerts = "alarmsubsystem:availableAlerts"

	attrAlertState       = "alarm:alertState:"
	attrMonitored        = "alarm:monitored:"
	attrSilent           = "alarm:silent:"
	attrDevices          = "alarm:devices:"
	attrTriggeredDevices = "alarm:triggeredDevices:"
	attrOfflineDevices   = "alarm:offlineDevices:"
	attrExcludedDevices  = "alarm:excludedDevices:"
	attrTriggers         = "alarm:triggers:"
)

// AttrAlertState names the attribute holding the alert state of t.
func AttrAlertState(t Type) string {
	return attrAlertState + string(t)
}

// AttrMonitored names the attribute holding the monitored flag of t.
func AttrMonitored(t Type) string {
	return attrMonitored + string(t)
}

// AttrSilent names the attribute holding the silent flag of t.
func AttrSilent(t Type) string {
	return attrSilent + string(t)
}

// AttrDevices names the attribute holding the devices participating in t.
func AttrDevices(t Type) string {
	return attrDevices + string(t)
}

// AttrTriggeredDevices names the attribute holding the devices currently triggering t.
func AttrTriggeredDevices(t Type) string {
	return attrTriggeredDevices + string(t)
}

// AttrOfflineDevices names the attribute holding the offline devices of t.
func AttrOfflineDevices(t Type) string {
	return attrOfflineDevices + string(t)
}

// AttrExcludedDevices names the attribute holding the bypassed devices of t.
// Only the security alarm bypasses devices.
func AttrExcludedDevices(t Type) string {
	return attrExcludedDevices + string(t)
}

// AttrTriggers names the attribute holding the pending triggers of t as JSON.
func AttrTriggers(t Type) string {
	return attrTriggers + string(t)
}

// SubsystemState summarizes the alert states of all alarms of a place.
type SubsystemState string

// Subsystem states.
const (
	SubsystemInactive SubsystemState = "INACTIVE"
	SubsystemReady    SubsystemState = "READY"
	SubsystemPrealert SubsystemState = "PREALERT"
	SubsystemAlerting SubsystemState = "ALERTING"
	SubsystemClearing SubsystemState = "CLEARING"
)

// SecurityMode is the arming mode of the security alarm.
type SecurityMode string

// Security modes. The values are wire-stable.
const (
	SecurityModeInactive SecurityMode = "INACTIVE"
	SecurityModeDisarmed SecurityMode = "DISARMED"
	SecurityModeOn       SecurityMode = "ON"
	SecurityModePartial  SecurityMode = "PARTIAL"
)

// ParseSecurityMode returns an arming mode. Only ON and PARTIAL can be
// requested by an actor.
func ParseSecurityMode(name string) (SecurityMode, bool) {
	switch m := SecurityMode(name); m {
	case SecurityModeOn, SecurityModePartial:
		return m, true
	default:
		return "", false
	}
}
