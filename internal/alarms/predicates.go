package alarms

import (
	"github.com/oshokin/alarm-subsystem/internal/domain/place"
)

func isSmoke(m *place.Model) bool {
	return m.IsA(place.CapSmoke)
}

func smokeDetected(m *place.Model) bool {
	return m.Is(place.AttrSmoke, place.Detected)
}

func isCO(m *place.Model) bool {
	return m.IsA(place.CapCO)
}

func coDetected(m *place.Model) bool {
	return m.Is(place.AttrCO, place.Detected)
}

func isLeakDetector(m *place.Model) bool {
	return m.IsA(place.CapLeak)
}

func leakDetected(m *place.Model) bool {
	return m.Is(place.AttrLeak, place.Leak)
}

func isValve(m *place.Model) bool {
	return m.IsA(place.CapValve)
}

func isKeyPad(m *place.Model) bool {
	return m.IsA(place.CapKeyPad)
}

func isMotionSensor(m *place.Model) bool {
	return m.IsA(place.CapMotion)
}

func isSecurityDevice(m *place.Model) bool {
	return m.IsA(place.CapContact) ||
		m.IsA(place.CapMotion) ||
		m.IsA(place.CapGlass) ||
		m.IsA(place.CapMotorizedDoor)
}

// securityTriggered reports an open contact, detected motion, broken glass
// or a door that is not closed.
func securityTriggered(m *place.Model) bool {
	switch {
	case m.Is(place.AttrContact, place.ContactOpened):
		return true
	case m.Is(place.AttrMotion, place.Detected):
		return true
	case m.Is(place.AttrGlassBreak, place.Detected):
		return true
	}

	switch m.String(place.AttrDoorState) {
	case place.DoorOpen, place.DoorOpening, place.DoorObstruction:
		return true
	default:
		return false
	}
}

func never(*place.Model) bool {
	return false
}
