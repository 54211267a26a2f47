package incident

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/oshokin/alarm-subsystem/internal/address"
	"github.com/oshokin/alarm-subsystem/internal/domain/alarm"
	"github.com/oshokin/alarm-subsystem/internal/subsystem"
)

// Incident message types.
const (
	// MessageCompleted reports that an incident finished cancelling. It is
	// posted back to the place executor and broadcast once handled.
	MessageCompleted = "incident:Completed"
	// MessageUpdated carries a monitoring state reported for an incident.
	MessageUpdated = "incident:Updated"
	// MessageHistoryAdded broadcasts new timeline entries.
	MessageHistoryAdded = "incident:HistoryAdded"
)

// Attributes of incident messages.
const (
	AttrAlertState       = "incident:alertState"
	AttrAlert            = "incident:alert"
	AttrAdditionalAlerts = "incident:additionalAlerts"
	AttrMonitored        = "incident:monitored"
	AttrMonitoringState  = "incident:monitoringState"
	AttrConfirmed        = "incident:confirmed"
	AttrStartTime        = "incident:startTime"
	AttrPrealertEndTime  = "incident:prealertEndTime"
	AttrEndTime          = "incident:endTime"
	AttrCancelledBy      = "incident:cancelledBy"
	AttrTrackerMessage   = "incident:trackerMessage"
	AttrTriggers         = "triggers"
	AttrEvents           = "events"
)

// AlertEvent returns the type of the event broadcast when alarm t is added
// to an incident, e.g. incident:SmokeAlert.
func AlertEvent(t alarm.Type) string {
	name := string(t)
	if t != alarm.CO {
		name = name[:1] + strings.ToLower(name[1:])
	}

	return "incident:" + name + "Alert"
}

// CompletedMessage builds the message completing an incident.
func CompletedMessage(placeID string, incident, by address.Address) subsystem.Message {
	return subsystem.Message{
		Type:    MessageCompleted,
		Source:  incident,
		PlaceID: placeID,
		Actor:   by,
	}
}

// UpdatedMessage builds the message reporting a monitoring state.
func UpdatedMessage(placeID string, incident address.Address, state alarm.MonitoringState, trackerMessage string) subsystem.Message {
	attributes := map[string]string{
		AttrMonitoringState: string(state),
	}

	if trackerMessage != "" {
		attributes[AttrTrackerMessage] = trackerMessage
	}

	return subsystem.Message{
		Type:       MessageUpdated,
		Source:     incident,
		PlaceID:    placeID,
		Attributes: attributes,
	}
}

// Attributes flattens an incident into message attributes.
func Attributes(i *alarm.Incident) map[string]string {
	attributes := map[string]string{
		AttrAlertState:      string(i.State),
		AttrAlert:           string(i.Alert),
		AttrMonitored:       strconv.FormatBool(i.Monitored),
		AttrMonitoringState: string(i.MonitoringState),
		AttrConfirmed:       strconv.FormatBool(i.Confirmed),
		AttrStartTime:       formatTime(i.StartTime),
	}

	optional := map[string]string{
		AttrAdditionalAlerts: joinTypes(i.AdditionalAlerts),
		AttrPrealertEndTime:  formatTime(i.PrealertEndTime),
		AttrEndTime:          formatTime(i.EndTime),
		AttrCancelledBy:      i.CancelledBy,
	}

	for k, v := range optional {
		if v != "" {
			attributes[k] = v
		}
	}

	return attributes
}

// diff returns the attributes of updated that differ from prev. Removed
// attributes are reported with an empty value.
func diff(prev, updated *alarm.Incident) map[string]string {
	before := Attributes(prev)
	after := Attributes(updated)

	changed := make(map[string]string)

	for k, v := range after {
		if before[k] != v {
			changed[k] = v
		}
	}

	for k := range before {
		if _, ok := after[k]; !ok {
			changed[k] = ""
		}
	}

	return changed
}

func encodeJSON(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return ""
	}

	return string(raw)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	return t.UTC().Format(time.RFC3339Nano)
}

func joinTypes(types []alarm.Type) string {
	names := make([]string, 0, len(types))
	for _, t := range types {
		names = append(names, string(t))
	}

	return strings.Join(names, ",")
}
