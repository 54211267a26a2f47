package address

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// GroupDriver is the group of device driver addresses.
	GroupDriver = "DRIV"
	// GroupService is the group of platform service addresses.
	GroupService = "SERV"

	// NamespaceDevice is the namespace of platform device drivers.
	NamespaceDevice = "dev"
	// NamespaceRule is the namespace of the rule service.
	NamespaceRule = "rule"
	// NamespaceCare is the namespace of the care subsystem.
	NamespaceCare = "subcare"
	// NamespacePerson is the namespace of people.
	NamespacePerson = "person"
	// NamespaceIncident is the namespace of alarm incidents.
	NamespaceIncident = "incident"
	// NamespaceAlarm is the namespace of the alarm subsystem.
	NamespaceAlarm = "subalarm"
	// NamespacePlace is the namespace of places.
	NamespacePlace = "place"
	// NamespaceHub is the namespace of hubs.
	NamespaceHub = "hub"

	// RuleContext is the context qualifier used for rule addresses.
	RuleContext = 10
)

// ErrMalformed is returned when an address representation cannot be parsed.
var ErrMalformed = errors.New("malformed address")

// Address identifies a device, service or object on the platform.
// The zero value is the empty address.
type Address struct {
	Group     string
	Namespace string
	ID        string
	// Context is an optional qualifier; zero means none.
	Context int
}

// PlatformDriver returns the driver address of a device.
func PlatformDriver(id string) Address {
	return Address{Group: GroupDriver, Namespace: NamespaceDevice, ID: id}
}

// PlatformService returns the address of a service object.
func PlatformService(id, namespace string) Address {
	return Address{Group: GroupService, Namespace: namespace, ID: id}
}

// PlatformServiceWithContext returns a qualified service address.
func PlatformServiceWithContext(id, namespace string, qualifier int) Address {
	return Address{Group: GroupService, Namespace: namespace, ID: id, Context: qualifier}
}

// Rule returns the rule service address for the given rule id.
func Rule(id string) Address {
	return PlatformServiceWithContext(id, NamespaceRule, RuleContext)
}

// Person returns the address of a person.
func Person(id string) Address {
	return PlatformService(id, NamespacePerson)
}

// Incident returns the address of an alarm incident.
func Incident(id string) Address {
	return PlatformService(id, NamespaceIncident)
}

// IsZero reports whether a is the empty address.
func (a Address) IsZero() bool {
	return a == Address{}
}

// String returns the wire representation.
func (a Address) String() string {
	if a.IsZero() {
		return ""
	}

	representation := a.Group + ":" + a.Namespace + ":" + a.ID
	if a.Context > 0 {
		representation += "." + strconv.Itoa(a.Context)
	}

	return representation
}

// Parse parses the wire representation of an address.
// The empty string parses to the zero address.
func Parse(s string) (Address, error) {
	if s == "" {
		return Address{}, nil
	}

	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Address{}, fmt.Errorf("%w: %q", ErrMalformed, s)
	}

	a := Address{
		Group:     parts[0],
		Namespace: parts[1],
		ID:        parts[2],
	}

	if a.Group != GroupDriver && a.Group != GroupService {
		return Address{}, fmt.Errorf("%w: unknown group %q", ErrMalformed, a.Group)
	}

	if idx := strings.LastIndexByte(a.ID, '.'); idx > 0 {
		qualifier, err := strconv.Atoi(a.ID[idx+1:])
		if err == nil && qualifier > 0 {
			a.ID = a.ID[:idx]
			a.Context = qualifier
		}
	}

	return a, nil
}

// MustParse is like Parse but panics on malformed input.
// Intended for constants and tests.
func MustParse(s string) Address {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}

	return a
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}

	*a = parsed

	return nil
}
