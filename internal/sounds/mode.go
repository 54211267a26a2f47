package sounds

// Mode is a local sounder intent. The names are wire-stable.
type Mode string

// Sounder modes understood by the hub.
const (
	NoSound                             Mode = "NO_SOUND"
	Armed                               Mode = "ARMED"
	Arming                              Mode = "ARMING"
	ArmingGraceEnter                    Mode = "ARMING_GRACE_ENTER"
	ArmingGraceExit                     Mode = "ARMING_GRACE_EXIT"
	ArmingGraceExitPartial              Mode = "ARMING_GRACE_EXIT_PARTIAL"
	AwesomeAllSetup                     Mode = "AWESOME_ALL_SETUP"
	ButtonPress                         Mode = "BUTTON_PRESS"
	ButtonPressBackup                   Mode = "BUTTON_PRESS_BACKUP"
	ButtonPressBackupBatt               Mode = "BUTTON_PRESS_BACKUP_BATT"
	ButtonPressBackupOffline            Mode = "BUTTON_PRESS_BACKUP_OFFLINE"
	ButtonPressBattery                  Mode = "BUTTON_PRESS_BATTERY"
	ButtonPressNoPlace                  Mode = "BUTTON_PRESS_NOPLACE"
	ButtonPressNormal                   Mode = "BUTTON_PRESS_NORMAL"
	ButtonPressOffline                  Mode = "BUTTON_PRESS_OFFLINE"
	ButtonPressOfflineBatt              Mode = "BUTTON_PRESS_OFFLINE_BATT"
	CareAlarm                           Mode = "CARE_ALARM"
	CareCancelled                       Mode = "CARE_CANCELLED"
	CareTriggered                       Mode = "CARE_TRIGGERED"
	Chime                               Mode = "CHIME"
	ConnectedWifi                       Mode = "CONNECTED_WIFI"
	COAlarm                             Mode = "CO_ALARM"
	COAlarmCancelled                    Mode = "CO_ALARM_CANCELLED"
	COTriggered                         Mode = "CO_TRIGGERED"
	COTriggeredMonitoringNotified       Mode = "CO_TRIGGERED_MONITORING_NOTIFIED"
	DeviceRemoved                       Mode = "DEVICE_REMOVED"
	DoorChime1                          Mode = "DOOR_CHIME_1"
	DoorChime2                          Mode = "DOOR_CHIME_2"
	DoorChime3                          Mode = "DOOR_CHIME_3"
	DoorChime4                          Mode = "DOOR_CHIME_4"
	DoorChime5                          Mode = "DOOR_CHIME_5"
	DoorChime6                          Mode = "DOOR_CHIME_6"
	DoorChime7                          Mode = "DOOR_CHIME_7"
	DoorChime8                          Mode = "DOOR_CHIME_8"
	DoorChime9                          Mode = "DOOR_CHIME_9"
	DoorChime10                         Mode = "DOOR_CHIME_10"
	DoubleButtonPress                   Mode = "DOUBLE_BUTTON_PRESS"
	EverythingGreat                     Mode = "EVERYTHING_GREAT"
	FactoryResetOffline                 Mode = "FACTORY_RESET_OFFLINE"
	Failed                              Mode = "FAILED"
	FirmwareUpdateNeeded                Mode = "FIRMWARE_UPDATE_NEEDED"
	FirstBootup                         Mode = "FIRST_BOOTUP"
	GreatNewsConnectedCloud             Mode = "GREATNEWS_CONNECTED_CLOUD"
	GreatNewsInternetConnected          Mode = "GREATNEWS_INTERNET_CONNECTED"
	HubFactoryReset                     Mode = "HUB_FACTORY_RESET"
	HubRemoved                          Mode = "HUB_REMOVED"
	Intruder                            Mode = "INTRUDER"
	LowBattery                          Mode = "LOW_BATTERY"
	Paired                              Mode = "PAIRED"
	PanicAlarm                          Mode = "PANIC_ALARM"
	PanicAlarmCancelled                 Mode = "PANIC_ALARM_CANCELLED"
	PanicTriggeredMonitoringNotified    Mode = "PANIC_TRIGGERED_MONITORING_NOTIFIED"
	RebootHub                           Mode = "REBOOT_HUB"
	RegisterSuccess                     Mode = "REGISTER_SUCCESS"
	Safety                              Mode = "SAFETY"
	SecurityAlarm                       Mode = "SECURITY_ALARM"
	SecurityAlarmFailed                 Mode = "SECURITY_ALARM_FAILED"
	SecurityAlarmOff                    Mode = "SECURITY_ALARM_OFF"
	SecurityAlarmOn                     Mode = "SECURITY_ALARM_ON"
	SecurityAlarmPartial                Mode = "SECURITY_ALARM_PARTIAL"
	SecurityAlarmTriggered              Mode = "SECURITY_ALARM_TRIGGERED"
	SecurityTriggeredMonitoringNotified Mode = "SECURITY_TRIGGERED_MONITORING_NOTIFIED"
	SmokeAlarm                          Mode = "SMOKE_ALARM"
	SmokeAlarmCancelled                 Mode = "SMOKE_ALARM_CANCELLED"
	SmokeAlarmTriggered                 Mode = "SMOKE_ALARM_TRIGGERED"
	SmokeTriggeredMonitoringNotified    Mode = "SMOKE_TRIGGERED_MONITORING_NOTIFIED"
	Startup                             Mode = "STARTUP"
	SuccessDevicePaired                 Mode = "SUCCESS_DEVICE_PAIRED"
	SuccessDisarm                       Mode = "SUCCESS_DISARM"
	SuccessReboot                       Mode = "SUCCESS_REBOOT"
	SuccessRemoval                      Mode = "SUCCESS_REMOVAL"
	SuccessSingle                       Mode = "SUCCESS_SINGLE"
	SuccessTriple                       Mode = "SUCCESS_TRIPLE"
	Trigger15Seconds                    Mode = "TRIGGER_15_SECONDS"
	TurningOff                          Mode = "TURNING_OFF"
	Unknown                             Mode = "UNKNOWN"
	Unpaired                            Mode = "UNPAIRED"
	UserDefined                         Mode = "USER_DEFINED"
	WaterLeakAlarm                      Mode = "WATER_LEAK_ALARM"
	WaterLeakAlarmCancelled             Mode = "WATER_LEAK_ALARM_CANCELLED"
	WaterLeakDetected                   Mode = "WATER_LEAK_DETECTED"
	WifiConnectionIssue                 Mode = "WIFI_CONNECTION_ISSUE"
)

//nolint:gochecknoglobals // Read-only table.
var modes = []Mode{
	NoSound, Armed, Arming, ArmingGraceEnter, ArmingGraceExit, ArmingGraceExitPartial,
	AwesomeAllSetup, ButtonPress, ButtonPressBackup, ButtonPressBackupBatt,
	ButtonPressBackupOffline, ButtonPressBattery, ButtonPressNoPlace, ButtonPressNormal,
	ButtonPressOffline, ButtonPressOfflineBatt, CareAlarm, CareCancelled, CareTriggered,
	Chime, ConnectedWifi, COAlarm, COAlarmCancelled, COTriggered, COTriggeredMonitoringNotified,
	DeviceRemoved, DoorChime1, DoorChime2, DoorChime3, DoorChime4, DoorChime5, DoorChime6,
	DoorChime7, DoorChime8, DoorChime9, DoorChime10, DoubleButtonPress, EverythingGreat,
	FactoryResetOffline, Failed, FirmwareUpdateNeeded, FirstBootup, GreatNewsConnectedCloud,
	GreatNewsInternetConnected, HubFactoryReset, HubRemoved, Intruder, LowBattery, Paired,
	PanicAlarm, PanicAlarmCancelled, PanicTriggeredMonitoringNotified, RebootHub,
	RegisterSuccess, Safety, SecurityAlarm, SecurityAlarmFailed, SecurityAlarmOff,
	SecurityAlarmOn, SecurityAlarmPartial, SecurityAlarmTriggered,
	SecurityTriggeredMonitoringNotified, SmokeAlarm, SmokeAlarmCancelled, SmokeAlarmTriggered,
	SmokeTriggeredMonitoringNotified, Startup, SuccessDevicePaired, SuccessDisarm,
	SuccessReboot, SuccessRemoval, SuccessSingle, SuccessTriple, Trigger15Seconds,
	TurningOff, Unknown, Unpaired, UserDefined, WaterLeakAlarm, WaterLeakAlarmCancelled,
	WaterLeakDetected, WifiConnectionIssue,
}

// ParseMode returns the sounder mode with the given name.
func ParseMode(name string) (Mode, bool) {
	for _, m := range modes {
		if string(m) == name {
			return m, true
		}
	}

	return "", false
}
