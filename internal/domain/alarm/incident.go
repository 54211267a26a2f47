package alarm

import (
	"slices"
	"strings"
	"time"

	"github.com/oshokin/alarm-subsystem/internal/address"
)

// IncidentState is the alert state of an incident.
type IncidentState string

// Incident alert states. Complete is terminal.
const (
	IncidentPrealert   IncidentState = "PREALERT"
	IncidentAlert      IncidentState = "ALERT"
	IncidentCancelling IncidentState = "CANCELLING"
	IncidentComplete   IncidentState = "COMPLETE"
)

// MonitoringState tracks the professional monitoring side of an incident.
type MonitoringState string

// Monitoring states.
const (
	MonitoringNone        MonitoringState = "NONE"
	MonitoringPending     MonitoringState = "PENDING"
	MonitoringDispatching MonitoringState = "DISPATCHING"
	MonitoringDispatched  MonitoringState = "DISPATCHED"
	MonitoringRefused     MonitoringState = "REFUSED"
	MonitoringCancelled   MonitoringState = "CANCELLED"
	MonitoringFailed      MonitoringState = "FAILED"
)

// ParseMonitoringState returns the monitoring state with the given name.
func ParseMonitoringState(name string) (MonitoringState, bool) {
	switch s := MonitoringState(name); s {
	case MonitoringNone, MonitoringPending, MonitoringDispatching, MonitoringDispatched,
		MonitoringRefused, MonitoringCancelled, MonitoringFailed:
		return s, true
	default:
		return "", false
	}
}

// TrackerState names a step shown on the incident tracker.
type TrackerState string

// Tracker states.
const (
	TrackerPrealert          TrackerState = "PREALERT"
	TrackerAlert             TrackerState = "ALERT"
	TrackerCancelled         TrackerState = "CANCELLED"
	TrackerDispatching       TrackerState = "DISPATCHING"
	TrackerDispatched        TrackerState = "DISPATCHED"
	TrackerDispatchRefused   TrackerState = "DISPATCH_REFUSED"
	TrackerDispatchFailed    TrackerState = "DISPATCH_FAILED"
	TrackerDispatchCancelled TrackerState = "DISPATCH_CANCELLED"
)

// TrackerState returns the tracker step produced by moving from old to s,
// or false when the move is not shown on the tracker.
func (s MonitoringState) TrackerState(old MonitoringState) (TrackerState, bool) {
	switch s {
	case MonitoringDispatching:
		return TrackerDispatching, old != MonitoringDispatching
	case MonitoringDispatched:
		return TrackerDispatched, old != MonitoringDispatched
	case MonitoringRefused:
		return TrackerDispatchRefused, old != MonitoringRefused
	case MonitoringFailed:
		return TrackerDispatchFailed, old != MonitoringFailed
	case MonitoringCancelled:
		return TrackerDispatchCancelled, old != MonitoringCancelled
	default:
		return "", false
	}
}

//nolint:gochecknoglobals // Read-only table.
var trackerMessages = map[string]string{
	"security.prealert":           "Grace Period Countdown",
	"security.alert":              "Alarm Triggered",
	"security.cancelled":          "",
	"security.dispatching":        "Monitoring Station Alerted",
	"security.dispatched":         "Police Notified",
	"security.dispatch_refused":   "Police Not Responding",
	"security.dispatch_cancelled": "Dispatch Cancellation Attempted",
	"security.dispatch_failed":    "Monitoring Station Unavailable",
	"panic.alert":                 "Alarm Triggered",
	"panic.cancelled":             "",
	"panic.dispatching":           "Monitoring Station Alerted",
	"panic.dispatched":            "Police Notified",
	"panic.dispatch_refused":      "Police Not Responding",
	"panic.dispatch_cancelled":    "Police Dispatch Cancelled",
	"panic.dispatch_failed":       "Monitoring Station Unavailable",
	"smoke.alert":                 "Alarm Triggered",
	"smoke.cancelled":             "",
	"smoke.dispatching":           "Monitoring Station Alerted",
	"smoke.dispatched":            "Fire Dept. Notified",
	"smoke.dispatch_refused":      "Fire Dept. Not Responding",
	"smoke.dispatch_cancelled":    "Dispatch Cancellation Attempted",
	"smoke.dispatch_failed":       "Monitoring Station Unavailable",
	"co.alert":                    "Alarm Triggered",
	"co.cancelled":                "",
	"co.dispatching":              "Monitoring Station Alerted",
	"co.dispatched":               "Fire Dept. Notified",
	"co.dispatch_refused":         "Fire Dept. Not Responding",
	"co.dispatch_cancelled":       "Dispatch Cancellation Attempted",
	"co.dispatch_failed":          "Monitoring Station Unavailable",
	"water.alert":                 "Alarm Triggered",
	"water.cancelled":             "",
}

// TrackerEvent is one entry of the incident tracker.
type TrackerEvent struct {
	Time    time.Time    `json:"time"`
	State   TrackerState `json:"state"`
	Key     string       `json:"key"`
	Message string       `json:"message"`
}

// NewTrackerEvent builds a tracker event for alarm t. An empty custom
// message selects the standard message for the key.
func NewTrackerEvent(t Type, state TrackerState, at time.Time, custom string) TrackerEvent {
	key := strings.ToLower(string(t)) + "." + strings.ToLower(string(state))

	message := custom
	if strings.TrimSpace(message) == "" {
		message = trackerMessages[key]
	}

	return TrackerEvent{
		Time:    at,
		State:   state,
		Key:     key,
		Message: message,
	}
}

// TrackerMessage returns the standard message for a tracker key.
func TrackerMessage(key string) string {
	return trackerMessages[key]
}

// HistoryEntry is a human-readable line of the incident timeline.
type HistoryEntry struct {
	Time       time.Time `json:"time"`
	MessageKey string    `json:"messageKey"`
	Subject    string    `json:"subject"`
	Values     []string  `json:"values,omitempty"`
}

// Incident is the place-scoped record aggregating triggers across alarm types.
type Incident struct {
	ID               string          `json:"id"`
	PlaceID          string          `json:"placeId"`
	State            IncidentState   `json:"alertState"`
	Alert            Type            `json:"alert"`
	AdditionalAlerts []Type          `json:"additionalAlerts,omitempty"`
	Monitored        bool            `json:"monitored"`
	MonitoringState  MonitoringState `json:"monitoringState"`
	StartTime        time.Time       `json:"startTime"`
	PrealertEndTime  time.Time       `json:"prealertEndTime,omitzero"`
	EndTime          time.Time       `json:"endTime,omitzero"`
	Confirmed        bool            `json:"confirmed"`
	VerifiedTime     time.Time       `json:"verifiedTime,omitzero"`
	VerifiedBy       string          `json:"verifiedBy,omitempty"`
	CancelledBy      string          `json:"cancelledBy,omitempty"`
	CancelMethod     string          `json:"cancelMethod,omitempty"`
	Triggers         []Trigger       `json:"triggers,omitempty"`
	Tracker          []TrackerEvent  `json:"tracker,omitempty"`
}

// Address returns the platform address of the incident.
func (i *Incident) Address() address.Address {
	return address.Incident(i.ID)
}

// IsActive reports whether the incident has not reached a terminal state.
// A cancelling incident is still the place's current incident.
func (i *Incident) IsActive() bool {
	return i != nil && i.State != IncidentComplete
}

// IsAlerting reports whether the incident may be verified or cancelled.
func (i *Incident) IsAlerting() bool {
	return i != nil && (i.State == IncidentPrealert || i.State == IncidentAlert)
}

// AllAlarms returns the primary alarm followed by the additional ones.
func (i *Incident) AllAlarms() []Type {
	alarms := make([]Type, 0, len(i.AdditionalAlerts)+1)
	if i.Alert != "" {
		alarms = append(alarms, i.Alert)
	}

	return append(alarms, i.AdditionalAlerts...)
}

// AddAlarm records t as the primary alarm, or as an additional alarm when
// the incident already has a different primary one.
func (i *Incident) AddAlarm(t Type) {
	switch {
	case i.Alert == "":
		i.Alert = t
	case i.Alert == t, slices.Contains(i.AdditionalAlerts, t):
	default:
		i.AdditionalAlerts = append(i.AdditionalAlerts, t)
	}
}

// Clone returns a deep copy of the incident. It returns nil for a nil receiver.
func (i *Incident) Clone() *Incident {
	if i == nil {
		return nil
	}

	c := *i
	c.AdditionalAlerts = slices.Clone(i.AdditionalAlerts)
	c.Triggers = CloneTriggers(i.Triggers)
	c.Tracker = slices.Clone(i.Tracker)

	return &c
}
