package alarm

import (
	"time"

	"github.com/oshokin/alarm-subsystem/internal/address"
)

// TriggerEvent classifies what caused a trigger. The values are wire-stable.
type TriggerEvent string

// Trigger events.
const (
	EventRule          TriggerEvent = "RULE"
	EventBehavior      TriggerEvent = "BEHAVIOR"
	EventContact       TriggerEvent = "CONTACT"
	EventSmoke         TriggerEvent = "SMOKE"
	EventCO            TriggerEvent = "CO"
	EventLeak          TriggerEvent = "LEAK"
	EventKeypad        TriggerEvent = "KEYPAD"
	EventVerifiedAlarm TriggerEvent = "VERIFIED_ALARM"
)

// Trigger is an immutable record of one alarm-causing condition.
type Trigger struct {
	// Alarm is the alarm type the trigger belongs to.
	Alarm Type `json:"alarm"`
	// Event classifies the cause.
	Event TriggerEvent `json:"event"`
	// Source is the address of whatever caused the trigger; its namespace
	// follows from Event.
	Source address.Address `json:"source"`
	// Time is when the condition was observed.
	Time time.Time `json:"time"`
}

// NewTrigger builds a trigger for alarm t with the event derived from the
// alarm type and the source address derived from the event.
func NewTrigger(t Type, sourceID string, at time.Time) Trigger {
	event := EventFromAlarm(t)

	return Trigger{
		Alarm:  t,
		Event:  event,
		Source: AddressFromEvent(event, sourceID),
		Time:   at,
	}
}

// EventFromAlarm maps an alarm type to the default trigger event.
func EventFromAlarm(t Type) TriggerEvent {
	switch t {
	case Care:
		return EventBehavior
	case CO:
		return EventCO
	case Security:
		return EventContact
	case Smoke:
		return EventSmoke
	case Water:
		return EventLeak
	case Panic:
		return EventKeypad
	default:
		return EventRule
	}
}

// AddressFromEvent builds the source address for a trigger event. Rules,
// behaviors and verifications come from services; everything else comes
// from a device driver.
func AddressFromEvent(event TriggerEvent, id string) address.Address {
	switch event {
	case EventRule:
		return address.Rule(id)
	case EventBehavior:
		return address.PlatformService(id, address.NamespaceCare)
	case EventVerifiedAlarm:
		return address.Person(id)
	default:
		return address.PlatformDriver(id)
	}
}

// CloneTriggers returns a copy of the slice.
func CloneTriggers(triggers []Trigger) []Trigger {
	if triggers == nil {
		return nil
	}

	return append([]Trigger(nil), triggers...)
}

// Same reports whether two triggers describe the same occurrence.
func (t Trigger) Same(other Trigger) bool {
	return t.Alarm == other.Alarm &&
		t.Event == other.Event &&
		t.Source == other.Source &&
		t.Time.Equal(other.Time)
}
