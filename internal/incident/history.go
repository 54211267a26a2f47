package incident

import (
	"fmt"
	"strings"
	"time"

	"github.com/oshokin/alarm-subsystem/internal/address"
	"github.com/oshokin/alarm-subsystem/internal/domain/alarm"
	"github.com/oshokin/alarm-subsystem/internal/domain/place"
	"github.com/oshokin/alarm-subsystem/internal/logger"
	incidents "github.com/oshokin/alarm-subsystem/internal/repository/incident"
	"github.com/oshokin/alarm-subsystem/internal/subsystem"
)

// History message keys.
const (
	KeyConfirm     = "alarm.confirm"
	KeyPanic       = "alarm.panic"
	KeyCancelled   = "alarm.cancelled"
	KeyHubOnline   = "hub.connection.online"
	KeyHubOffline  = "hub.connection.offline"
	keyTriggerBase = "alarm."

	rulePrefix     = "the rule "
	defaultHubName = "My Hub"
)

// Cancel methods.
const (
	MethodKeypad = "KEYPAD"
	MethodApp    = "APP"
)

// HistoryListener turns incident changes into timeline entries, stores them
// and broadcasts them.
type HistoryListener struct {
	store incidents.Repository
}

// NewHistoryListener creates a listener writing to store.
func NewHistoryListener(store incidents.Repository) *HistoryListener {
	return &HistoryListener{
		store: store,
	}
}

// OnTriggersAdded records one entry per trigger. Triggers whose source is
// not a known model are dropped.
func (h *HistoryListener) OnTriggersAdded(c subsystem.Context, incident address.Address, triggers []alarm.Trigger) error {
	entries := make([]alarm.HistoryEntry, 0, len(triggers))

	for _, t := range triggers {
		m := c.ModelByAddress(t.Source)
		if m == nil {
			logger.WarnKV(c.Context(), "Dropping incident trigger of unknown model",
				"source", t.Source.String(),
				"event", t.Event,
			)

			continue
		}

		entries = append(entries, alarm.HistoryEntry{
			Time:       t.Time,
			MessageKey: triggerKey(t),
			Subject:    t.Source.String(),
			Values:     modelValues(m),
		})
	}

	return h.emit(c, incident, entries)
}

// OnCancelled records who cancelled the incident and how.
func (h *HistoryListener) OnCancelled(
	c subsystem.Context,
	incident *alarm.Incident,
	by address.Address,
	method string,
) error {
	m := c.ModelByAddress(by)
	if m == nil {
		logger.WarnKV(c.Context(), "Dropping cancel entry of unknown model", "cancelled_by", by.String())

		return nil
	}

	values := append(modelValues(m), alarmName(incident.Alert), methodName(method))

	return h.emit(c, incident.Address(), []alarm.HistoryEntry{{
		Time:       c.Now(),
		MessageKey: KeyCancelled,
		Subject:    by.String(),
		Values:     values,
	}})
}

// OnHubConnectivityChanged records the hub going online or offline.
func (h *HistoryListener) OnHubConnectivityChanged(c subsystem.Context, incident address.Address, hub *place.Model) error {
	if hub == nil {
		logger.WarnKV(c.Context(), "Hub connectivity changed without a hub model")

		return nil
	}

	var key string

	switch hub.String(place.AttrHubConnState) {
	case place.ConnOnline:
		key = KeyHubOnline
	case place.ConnOffline:
		key = KeyHubOffline
	default:
		return nil
	}

	at := c.Now()
	if changed, err := time.Parse(time.RFC3339Nano, hub.String(place.AttrHubLastChange)); err == nil {
		at = changed
	}

	name := hub.String(place.AttrHubName)
	if name == "" {
		name = defaultHubName
	}

	placeModel := c.ModelByAddress(address.PlatformService(c.PlaceID(), address.NamespacePlace))

	return h.emit(c, incident, []alarm.HistoryEntry{{
		Time:       at,
		MessageKey: key,
		Subject:    hub.Address.String(),
		Values:     []string{name, "", "", "", placeModel.String(place.AttrPlaceName)},
	}})
}

func (h *HistoryListener) emit(c subsystem.Context, incident address.Address, entries []alarm.HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}

	if err := h.store.AppendHistory(c.Context(), c.PlaceID(), incident.ID, entries); err != nil {
		return fmt.Errorf("append history: %w", err)
	}

	c.Send(subsystem.Message{
		Type:   MessageHistoryAdded,
		Source: incident,
		Attributes: map[string]string{
			AttrEvents: encodeJSON(entries),
		},
	})

	return nil
}

func triggerKey(t alarm.Trigger) string {
	switch {
	case t.Event == alarm.EventVerifiedAlarm:
		return KeyConfirm
	case t.Alarm == alarm.Panic:
		return KeyPanic
	default:
		return keyTriggerBase + strings.ToLower(string(t.Event))
	}
}

func modelValues(m *place.Model) []string {
	switch {
	case m.IsA(place.CapDevice):
		return []string{m.String(place.AttrDeviceName)}
	case m.IsA(place.CapRule):
		return []string{rulePrefix + m.String(place.AttrRuleName)}
	case m.IsA(place.CapPerson):
		return []string{m.String(place.AttrPersonFirstName), m.String(place.AttrPersonLastName)}
	default:
		return []string{}
	}
}

func alarmName(t alarm.Type) string {
	switch t {
	case alarm.Water:
		return "Water Leak"
	case alarm.CO:
		return "Carbon Monoxide"
	default:
		name := strings.ToLower(string(t))
		if name == "" {
			return ""
		}

		return strings.ToUpper(name[:1]) + name[1:]
	}
}

func methodName(method string) string {
	if strings.EqualFold(method, MethodKeypad) {
		return "keypad"
	}

	return "app"
}
