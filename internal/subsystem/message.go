package subsystem

import (
	"time"

	"github.com/oshokin/alarm-subsystem/internal/address"
)

// Platform message types understood by every subsystem.
const (
	// MessageValueChange carries changed attributes of the source model.
	MessageValueChange = "base:ValueChange"
	// MessageAdded announces a new model; attributes are its full state.
	MessageAdded = "base:Added"
	// MessageDeleted announces a removed model.
	MessageDeleted = "base:Deleted"
	// MessageSetAttributes asks the destination model to change attributes.
	MessageSetAttributes = "base:SetAttributes"
	// MessageTimeout is posted by the scheduler when a wake-up fires.
	MessageTimeout = "subsystem:Timeout"
)

// Attribute keys of a timeout message.
const (
	AttrTimeoutKey      = "key"
	AttrTimeoutDeadline = "deadline"
)

// Message is a platform message addressed to or emitted by a place.
type Message struct {
	Type        string            `json:"type"`
	Source      address.Address   `json:"source,omitzero"`
	Destination address.Address   `json:"destination,omitzero"`
	PlaceID     string            `json:"placeId"`
	Actor       address.Address   `json:"actor,omitzero"`
	Time        time.Time         `json:"time,omitzero"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// Attribute returns a message attribute or "".
func (m Message) Attribute(key string) string {
	return m.Attributes[key]
}

// NewTimeoutMessage builds the message delivered for a fired wake-up.
func NewTimeoutMessage(placeID, key string, deadline time.Time) Message {
	return Message{
		Type:    MessageTimeout,
		PlaceID: placeID,
		Time:    deadline,
		Attributes: map[string]string{
			AttrTimeoutKey:      key,
			AttrTimeoutDeadline: deadline.UTC().Format(time.RFC3339Nano),
		},
	}
}
