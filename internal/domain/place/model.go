package place

import (
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/oshokin/alarm-subsystem/internal/address"
)

// Capability namespaces and attribute names read by the subsystem.
const (
	AttrCaps = "base:caps"

	CapDevice        = "dev"
	CapContact       = "cont"
	CapMotion        = "mot"
	CapGlass         = "glass"
	CapMotorizedDoor = "motdoor"
	CapKeyPad        = "keypad"
	CapSmoke         = "smoke"
	CapCO            = "co"
	CapLeak          = "leakh2o"
	CapValve         = "valv"
	CapHub           = "hub"
	CapPerson        = "person"
	CapRule          = "rule"
	CapPlace         = "place"

	AttrDeviceName      = "dev:name"
	AttrDeviceProductID = "dev:productid"
	AttrConnState       = "devconn:state"
	AttrContact         = "cont:contact"
	AttrMotion          = "mot:motion"
	AttrGlassBreak      = "glass:break"
	AttrDoorState       = "motdoor:doorstate"
	AttrSmoke           = "smoke:smoke"
	AttrCO              = "co:co"
	AttrLeak            = "leakh2o:state"
	AttrValveState      = "valv:valvestate"
	AttrHubName         = "hub:name"
	AttrHubConnState    = "hubconn:state"
	AttrHubLastChange   = "hubconn:lastchange"
	AttrPersonFirstName = "person:firstName"
	AttrPersonLastName  = "person:lastName"
	AttrRuleName        = "rule:name"
	AttrPlaceName       = "place:name"
	AttrServiceLevel    = "place:serviceLevel"
)

// Attribute values.
const (
	ConnOnline  = "ONLINE"
	ConnOffline = "OFFLINE"

	ContactOpened = "OPENED"
	ContactClosed = "CLOSED"
	Detected      = "DETECTED"
	Safe          = "SAFE"
	Leak          = "LEAK"

	DoorOpen        = "OPEN"
	DoorOpening     = "OPENING"
	DoorObstruction = "OBSTRUCTION"
	DoorClosed      = "CLOSED"

	ValveOpen   = "OPEN"
	ValveClosed = "CLOSED"
)

// Model is a platform object: a device, the hub, a person, a rule or the
// alarm subsystem itself.
type Model struct {
	Address    address.Address   `json:"address"`
	Attributes map[string]string `json:"attributes"`
}

// NewModel creates an empty model.
func NewModel(addr address.Address) *Model {
	return &Model{
		Address:    addr,
		Attributes: make(map[string]string),
	}
}

// Clone returns a deep copy. It returns nil for a nil receiver.
func (m *Model) Clone() *Model {
	if m == nil {
		return nil
	}

	return &Model{
		Address:    m.Address,
		Attributes: maps.Clone(m.Attributes),
	}
}

// Get returns an attribute value.
func (m *Model) Get(key string) (string, bool) {
	if m == nil {
		return "", false
	}

	v, ok := m.Attributes[key]

	return v, ok
}

// String returns an attribute value or "".
func (m *Model) String(key string) string {
	v, _ := m.Get(key)

	return v
}

// Is reports whether the attribute equals value.
func (m *Model) Is(key, value string) bool {
	v, ok := m.Get(key)

	return ok && v == value
}

// Bool returns a boolean attribute; missing or malformed values are false.
func (m *Model) Bool(key string) bool {
	v, err := strconv.ParseBool(m.String(key))

	return err == nil && v
}

// Set stores an attribute and reports whether the value changed.
// An empty value removes the attribute.
func (m *Model) Set(key, value string) bool {
	if m.Attributes == nil {
		m.Attributes = make(map[string]string)
	}

	old, ok := m.Attributes[key]
	if value == "" {
		delete(m.Attributes, key)

		return ok
	}

	m.Attributes[key] = value

	return !ok || old != value
}

// SetBool stores a boolean attribute.
func (m *Model) SetBool(key string, value bool) bool {
	return m.Set(key, strconv.FormatBool(value))
}

// Strings returns a set attribute.
func (m *Model) Strings(key string) []string {
	return SplitSet(m.String(key))
}

// SetStrings stores a set attribute. Values are deduplicated and sorted.
func (m *Model) SetStrings(key string, values []string) bool {
	return m.Set(key, JoinSet(values))
}

// Capabilities returns the capability namespaces of the model.
func (m *Model) Capabilities() []string {
	return m.Strings(AttrCaps)
}

// IsA reports whether the model has the capability.
func (m *Model) IsA(capability string) bool {
	return slices.Contains(m.Capabilities(), capability)
}

// IsOffline reports whether the device is known to be offline.
func (m *Model) IsOffline() bool {
	return m.Is(AttrConnState, ConnOffline)
}

// SplitSet parses a comma-joined set.
func SplitSet(raw string) []string {
	if raw == "" {
		return nil
	}

	return strings.Split(raw, ",")
}

// JoinSet encodes a set.
func JoinSet(values []string) string {
	if len(values) == 0 {
		return ""
	}

	sorted := slices.Clone(values)
	slices.Sort(sorted)

	return strings.Join(slices.Compact(sorted), ",")
}
