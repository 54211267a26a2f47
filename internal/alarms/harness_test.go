package alarms_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/alarm-subsystem/internal/address"
	"github.com/oshokin/alarm-subsystem/internal/alarms"
	"github.com/oshokin/alarm-subsystem/internal/domain/alarm"
	"github.com/oshokin/alarm-subsystem/internal/domain/place"
	"github.com/oshokin/alarm-subsystem/internal/fsm"
	"github.com/oshokin/alarm-subsystem/internal/incident"
	incidents "github.com/oshokin/alarm-subsystem/internal/repository/incident"
	"github.com/oshokin/alarm-subsystem/internal/subsystem"
)

const placeID = "p1"

var person = address.Person("u1")

// poster collects the messages the incident service posts back to the place.
type poster struct {
	mu     sync.Mutex
	posted []subsystem.Message
}

func (p *poster) Submit(_ context.Context, msg subsystem.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.posted = append(p.posted, msg)

	return nil
}

func (p *poster) drain() []subsystem.Message {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := p.posted
	p.posted = nil

	return out
}

type recordingScheduler struct {
	scheduled map[string]time.Time
}

func newRecordingScheduler() *recordingScheduler {
	return &recordingScheduler{scheduled: make(map[string]time.Time)}
}

func (s *recordingScheduler) Schedule(_, key string, at time.Time) {
	s.scheduled[key] = at
}

func (s *recordingScheduler) Cancel(_, key string) {
	delete(s.scheduled, key)
}

type transitionMetrics struct {
	transitions []string
}

func (m *transitionMetrics) Transition(t alarm.Type, from, to string) {
	m.transitions = append(m.transitions, string(t)+":"+from+">"+to)
}

func (m *transitionMetrics) HookFailure(alarm.Type, string, string) {}

// harness runs one place through the subsystem without a registry: every
// message is handled inline and posted messages are delivered on demand.
type harness struct {
	t        *testing.T
	ctx      *subsystem.PlaceContext
	store    *incidents.MemoryRepository
	service  *incident.Service
	poster   *poster
	metrics  *transitionMetrics
	sub      *alarms.Subsystem
	settings alarms.Settings
	now      time.Time
}

func newHarness(t *testing.T, level alarm.ServiceLevel, settings alarms.Settings) *harness {
	t.Helper()

	h := &harness{
		t:        t,
		store:    incidents.NewMemoryRepository(),
		poster:   &poster{},
		metrics:  &transitionMetrics{},
		settings: settings,
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	snapshot := place.NewSnapshot(placeID)

	placeModel := place.NewModel(address.PlatformService(placeID, address.NamespacePlace))
	placeModel.Set(place.AttrCaps, place.CapPlace)
	placeModel.Set(place.AttrPlaceName, "Home")
	placeModel.Set(place.AttrServiceLevel, string(level))

	hub := place.NewModel(address.PlatformService("h1", address.NamespaceHub))
	hub.Set(place.AttrCaps, place.CapHub)
	hub.Set(place.AttrHubName, "Home Hub")

	personModel := place.NewModel(person)
	personModel.Set(place.AttrCaps, place.CapPerson)
	personModel.Set(place.AttrPersonFirstName, "Jane")
	personModel.Set(place.AttrPersonLastName, "Doe")

	for _, m := range []*place.Model{placeModel, hub, personModel} {
		snapshot.Models[m.Address.String()] = m
	}

	h.service = incident.NewService(h.store, incident.WithPoster(h.poster))
	h.sub = alarms.New(h.service, alarms.WithSettings(settings), alarms.WithMetrics(h.metrics))

	h.restart(snapshot, nil)

	return h
}

// restart loads the snapshot into a fresh context and starts the subsystem.
func (h *harness) restart(snapshot *place.Snapshot, scheduler subsystem.Scheduler) {
	h.t.Helper()

	h.ctx = subsystem.NewPlaceContext(context.Background(), snapshot, func() time.Time { return h.now }, scheduler)

	require.NoError(h.t, h.sub.Start(h.ctx))
}

func (h *harness) handle(msg subsystem.Message) {
	h.t.Helper()

	if msg.PlaceID == "" {
		msg.PlaceID = placeID
	}

	require.NoError(h.t, h.sub.Handle(h.ctx, msg))
}

func (h *harness) addDevice(id, caps string, attributes ...string) address.Address {
	h.t.Helper()

	addr := address.PlatformDriver(id)
	attrs := map[string]string{
		place.AttrCaps:       caps,
		place.AttrDeviceName: id,
	}

	for i := 0; i+1 < len(attributes); i += 2 {
		attrs[attributes[i]] = attributes[i+1]
	}

	h.handle(subsystem.Message{Type: subsystem.MessageAdded, Source: addr, Attributes: attrs})

	return addr
}

func (h *harness) change(addr address.Address, key, value string) {
	h.t.Helper()

	h.handle(subsystem.Message{
		Type:       subsystem.MessageValueChange,
		Source:     addr,
		Attributes: map[string]string{key: value},
	})
}

// fire delivers the wake-up of key at its persisted deadline.
func (h *harness) fire(key string) {
	h.t.Helper()

	deadline, ok := fsm.Timeout(h.ctx, key)
	require.True(h.t, ok, "no timeout pending for %s", key)

	h.now = deadline
	h.handle(subsystem.NewTimeoutMessage(placeID, key, deadline))
}

// deliver waits for the incident service and hands its posted messages to the place.
func (h *harness) deliver() {
	h.t.Helper()

	h.service.Wait()

	for _, msg := range h.poster.drain() {
		h.handle(msg)
	}
}

func (h *harness) state(t alarm.Type) alarm.AlertState {
	return alarm.AlertState(h.ctx.Model().String(alarm.AttrAlertState(t)))
}

func (h *harness) currentIncident() address.Address {
	h.t.Helper()

	raw := h.ctx.Model().String(alarm.AttrCurrentIncident)
	require.NotEmpty(h.t, raw, "no current incident")

	return address.MustParse(raw)
}

func (h *harness) incident(addr address.Address) *alarm.Incident {
	h.t.Helper()

	i, err := h.service.GetIncident(h.ctx, addr)
	require.NoError(h.t, err)

	return i
}

func (h *harness) sent(msgType string) []subsystem.Message {
	var out []subsystem.Message

	for _, m := range h.ctx.Outbox() {
		if m.Type == msgType {
			out = append(out, m)
		}
	}

	return out
}

// sounds returns the sounder modes sent to the hub, in order.
func (h *harness) sounds() []string {
	var out []string

	for _, m := range h.sent(alarms.MessagePlaySound) {
		out = append(out, m.Attribute(alarms.AttrSounderMode))
	}

	return out
}
