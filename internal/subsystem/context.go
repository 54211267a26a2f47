package subsystem

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/oshokin/alarm-subsystem/internal/address"
	"github.com/oshokin/alarm-subsystem/internal/domain/place"
	"github.com/oshokin/alarm-subsystem/internal/fsm"
)

// Context is what a handler sees of its place while handling one message.
type Context interface {
	fsm.Context

	// PlaceID returns the identifier of the place.
	PlaceID() string
	// Model returns the subsystem model. Changes are persisted.
	Model() *place.Model
	// Models returns every other model known in the place, ordered by address.
	Models() []*place.Model
	// ModelByAddress returns a model or nil.
	ModelByAddress(addr address.Address) *place.Model
	// PutModel stores or replaces a model.
	PutModel(m *place.Model)
	// RemoveModel deletes a model.
	RemoveModel(addr address.Address)
	// Send queues an outbound message. Messages are delivered after the
	// handler returns and the snapshot was saved.
	Send(msg Message)
}

// Scheduler registers wake-ups for places.
type Scheduler interface {
	Schedule(placeID, key string, at time.Time)
	Cancel(placeID, key string)
}

// PlaceContext implements Context over an in-memory snapshot.
type PlaceContext struct {
	ctx       context.Context
	snapshot  *place.Snapshot
	model     *place.Model
	clock     func() time.Time
	scheduler Scheduler
	outbox    []Message
}

// NewPlaceContext wraps a snapshot. A nil scheduler drops wake-ups and a nil
// clock uses time.Now.
func NewPlaceContext(
	ctx context.Context,
	snapshot *place.Snapshot,
	clock func() time.Time,
	scheduler Scheduler,
) *PlaceContext {
	if clock == nil {
		clock = time.Now
	}

	if snapshot.Attributes == nil {
		snapshot.Attributes = make(map[string]string)
	}

	if snapshot.Variables == nil {
		snapshot.Variables = make(map[string]string)
	}

	if snapshot.Models == nil {
		snapshot.Models = make(map[string]*place.Model)
	}

	return &PlaceContext{
		ctx:      ctx,
		snapshot: snapshot,
		model: &place.Model{
			Address:    address.PlatformService(snapshot.PlaceID, address.NamespaceAlarm),
			Attributes: snapshot.Attributes,
		},
		clock:     clock,
		scheduler: scheduler,
	}
}

// Context implements fsm.Context.
func (c *PlaceContext) Context() context.Context {
	return c.ctx
}

// Now implements fsm.Context.
func (c *PlaceContext) Now() time.Time {
	return c.clock()
}

// Variable implements fsm.Context.
func (c *PlaceContext) Variable(key string) (string, bool) {
	v, ok := c.snapshot.Variables[key]

	return v, ok
}

// SetVariable implements fsm.Context.
func (c *PlaceContext) SetVariable(key, value string) {
	if value == "" {
		delete(c.snapshot.Variables, key)

		return
	}

	c.snapshot.Variables[key] = value
}

// WakeUpAt implements fsm.Context.
func (c *PlaceContext) WakeUpAt(key string, at time.Time) {
	if c.scheduler != nil {
		c.scheduler.Schedule(c.snapshot.PlaceID, key, at)
	}
}

// CancelWakeUp implements fsm.Context.
func (c *PlaceContext) CancelWakeUp(key string) {
	if c.scheduler != nil {
		c.scheduler.Cancel(c.snapshot.PlaceID, key)
	}
}

// PlaceID implements Context.
func (c *PlaceContext) PlaceID() string {
	return c.snapshot.PlaceID
}

// Model implements Context.
func (c *PlaceContext) Model() *place.Model {
	return c.model
}

// Models implements Context.
func (c *PlaceContext) Models() []*place.Model {
	return c.snapshot.SortedModels()
}

// ModelByAddress implements Context.
func (c *PlaceContext) ModelByAddress(addr address.Address) *place.Model {
	if addr == c.model.Address {
		return c.model
	}

	return c.snapshot.Models[addr.String()]
}

// PutModel implements Context.
func (c *PlaceContext) PutModel(m *place.Model) {
	c.snapshot.Models[m.Address.String()] = m
}

// RemoveModel implements Context.
func (c *PlaceContext) RemoveModel(addr address.Address) {
	delete(c.snapshot.Models, addr.String())
}

// Send implements Context.
func (c *PlaceContext) Send(msg Message) {
	if msg.PlaceID == "" {
		msg.PlaceID = c.snapshot.PlaceID
	}

	if msg.Source.IsZero() {
		msg.Source = c.model.Address
	}

	if msg.Time.IsZero() {
		msg.Time = c.clock()
	}

	c.outbox = append(c.outbox, msg)
}

// Outbox returns the messages queued so far.
func (c *PlaceContext) Outbox() []Message {
	return slices.Clone(c.outbox)
}

// Snapshot returns the underlying snapshot.
func (c *PlaceContext) Snapshot() *place.Snapshot {
	return c.snapshot
}

// ModelsWith returns the models having the given capability.
func ModelsWith(c Context, capability string) []*place.Model {
	var out []*place.Model

	for _, m := range c.Models() {
		if m.IsA(capability) {
			out = append(out, m)
		}
	}

	return out
}

// ServiceLevel returns the service level stored on the place model, if known.
func ServiceLevel(c Context) string {
	m := c.ModelByAddress(address.PlatformService(c.PlaceID(), address.NamespacePlace))

	return strings.ToUpper(m.String(place.AttrServiceLevel))
}
