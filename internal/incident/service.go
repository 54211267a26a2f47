package incident

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oshokin/alarm-subsystem/internal/address"
	"github.com/oshokin/alarm-subsystem/internal/domain/alarm"
	"github.com/oshokin/alarm-subsystem/internal/domain/place"
	"github.com/oshokin/alarm-subsystem/internal/logger"
	incidents "github.com/oshokin/alarm-subsystem/internal/repository/incident"
	"github.com/oshokin/alarm-subsystem/internal/subsystem"
)

const (
	// DefaultMaxIncidents caps ListIncidents.
	DefaultMaxIncidents = 25
	// VarTriggerSent holds the time of the last trigger sent by AddAlert.
	VarTriggerSent = "triggerSent"

	opDispatch = "dispatch"
	opCancel   = "cancel"
)

var (
	// ErrNoActiveIncident is returned when an operation needs an active incident.
	ErrNoActiveIncident = errors.New("no active incident")
	// ErrIncidentNotFound is returned for unknown incident addresses.
	ErrIncidentNotFound = errors.New("incident not found")
	// ErrInvalidIncidentState is returned when an incident cannot accept an operation.
	ErrInvalidIncidentState = errors.New("invalid incident state")
)

// Monitor talks to the professional monitoring station.
type Monitor interface {
	// Dispatch reports alarm t of the incident with the triggers that caused it.
	Dispatch(ctx context.Context, incident *alarm.Incident, t alarm.Type, triggers []alarm.Trigger) error
	// Cancel asks the station to stand down.
	Cancel(ctx context.Context, incident *alarm.Incident, by address.Address, method string) error
}

// Poster delivers messages back to a place executor.
type Poster interface {
	Submit(ctx context.Context, msg subsystem.Message) error
}

// PosterFunc adapts a function to Poster.
type PosterFunc func(ctx context.Context, msg subsystem.Message) error

// Submit implements Poster.
func (f PosterFunc) Submit(ctx context.Context, msg subsystem.Message) error {
	return f(ctx, msg)
}

// Metrics observes incident activity.
type Metrics interface {
	IncidentCreated(t alarm.Type)
	MonitoringRequest(op string, err error)
}

// Service implements the incident lifecycle.
type Service struct {
	store        incidents.Repository
	history      *HistoryListener
	monitor      Monitor
	poster       Poster
	metrics      Metrics
	maxIncidents int
	newID        func() (uuid.UUID, error)

	wg sync.WaitGroup
}

// Option configures a Service.
type Option func(*Service)

// WithMonitor enables monitoring station requests.
func WithMonitor(m Monitor) Option {
	return func(s *Service) {
		s.monitor = m
	}
}

// WithPoster sets where asynchronous results are delivered.
func WithPoster(p Poster) Option {
	return func(s *Service) {
		s.poster = p
	}
}

// WithMetrics sets the metrics observer.
func WithMetrics(m Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithMaxIncidents overrides DefaultMaxIncidents.
func WithMaxIncidents(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxIncidents = n
		}
	}
}

// WithIDGenerator overrides the time-based UUID generator.
func WithIDGenerator(gen func() (uuid.UUID, error)) Option {
	return func(s *Service) {
		s.newID = gen
	}
}

// NewService creates a service storing incidents in store.
func NewService(store incidents.Repository, options ...Option) *Service {
	s := &Service{
		store:        store,
		history:      NewHistoryListener(store),
		maxIncidents: DefaultMaxIncidents,
		newID:        uuid.NewUUID,
	}

	for _, o := range options {
		o(s)
	}

	return s
}

// Wait blocks until every asynchronous monitoring request has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// GetCurrentIncident returns the incident referenced by the subsystem, or
// nil when there is none.
func (s *Service) GetCurrentIncident(c subsystem.Context) (*alarm.Incident, error) {
	raw := c.Model().String(alarm.AttrCurrentIncident)
	if raw == "" {
		return nil, nil //nolint:nilnil // No current incident is not an error.
	}

	addr, err := address.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("current incident: %w", err)
	}

	return s.GetIncident(c, addr)
}

// GetIncident returns an incident of the place.
func (s *Service) GetIncident(c subsystem.Context, addr address.Address) (*alarm.Incident, error) {
	incident, err := s.store.FindByID(c.Context(), c.PlaceID(), addr.ID)
	if err != nil {
		if errors.Is(err, incidents.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrIncidentNotFound, addr)
		}

		return nil, fmt.Errorf("load incident %s: %w", addr, err)
	}

	return incident, nil
}

// ListIncidents returns the incidents of the place, newest first.
func (s *Service) ListIncidents(c subsystem.Context) ([]*alarm.Incident, error) {
	list, err := s.store.ListByPlace(c.Context(), c.PlaceID(), s.maxIncidents)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}

	return list, nil
}

// AddPreAlert starts a pre-alert incident for alarm t, or returns the
// active incident unchanged. The triggers are recorded on the incident and
// its timeline but not dispatched until the alarm goes to ALERT.
func (s *Service) AddPreAlert(
	c subsystem.Context,
	t alarm.Type,
	prealertEnd time.Time,
	triggers []alarm.Trigger,
) (address.Address, error) {
	current, err := s.active(c)
	if err != nil {
		return address.Address{}, err
	}

	if current != nil {
		c.Model().Set(alarm.AttrCurrentIncident, current.Address().String())

		return current.Address(), nil
	}

	incident, err := s.newIncident(c, alarm.IncidentPrealert)
	if err != nil {
		return address.Address{}, err
	}

	incident.PrealertEndTime = prealertEnd
	incident.Monitored = s.monitoredFlag(c, t, nil)
	incident.AddAlarm(t)
	incident.Tracker = append(incident.Tracker, alarm.NewTrackerEvent(t, alarm.TrackerPrealert, c.Now(), ""))
	added := appendTriggers(incident, triggers)

	if err = s.save(c, nil, incident); err != nil {
		return address.Address{}, err
	}

	s.created(t)
	c.Model().Set(alarm.AttrCurrentIncident, incident.Address().String())

	if err = s.history.OnTriggersAdded(c, incident.Address(), added); err != nil {
		logger.WarnKV(c.Context(), "Failed to record incident history", "incident_id", incident.ID, "error", err)
	}

	logger.InfoKV(c.Context(), "Pre-alert added", "alarm", t, "incident_id", incident.ID)

	return incident.Address(), nil
}

// AddAlert moves the active incident to ALERT with alarm t, creating it if
// needed, and broadcasts the alert. With sendNotifications the monitoring
// station is told as well.
func (s *Service) AddAlert(
	c subsystem.Context,
	t alarm.Type,
	triggers []alarm.Trigger,
	sendNotifications bool,
) (address.Address, error) {
	current, err := s.active(c)
	if err != nil {
		return address.Address{}, err
	}

	var incident *alarm.Incident

	if current == nil {
		incident, err = s.newIncident(c, alarm.IncidentAlert)
		if err != nil {
			return address.Address{}, err
		}

		incident.Tracker = append(incident.Tracker, alarm.NewTrackerEvent(t, alarm.TrackerAlert, c.Now(), ""))
	} else {
		incident = current.Clone()

		if incident.State != alarm.IncidentAlert {
			incident.State = alarm.IncidentAlert
			incident.Tracker = append(incident.Tracker, alarm.NewTrackerEvent(t, alarm.TrackerAlert, c.Now(), ""))
		}
	}

	incident.Monitored = s.monitoredFlag(c, t, current)
	incident.AddAlarm(t)
	added := appendTriggers(incident, triggers)

	if err = s.save(c, current, incident); err != nil {
		return address.Address{}, err
	}

	if current == nil {
		s.created(t)
	}

	c.Model().Set(alarm.AttrCurrentIncident, incident.Address().String())

	logger.InfoKV(c.Context(), "Alert added", "alarm", t, "incident_id", incident.ID)

	s.onAlert(c, incident, t, triggers, sendNotifications)

	if err = s.history.OnTriggersAdded(c, incident.Address(), added); err != nil {
		logger.WarnKV(c.Context(), "Failed to record incident history", "incident_id", incident.ID, "error", err)
	}

	if len(triggers) > 0 {
		c.SetVariable(VarTriggerSent, formatTime(triggers[len(triggers)-1].Time))
	}

	return incident.Address(), nil
}

// UpdateIncident appends triggers to the active incident. When the alarm of
// the first trigger is already in ALERT and the triggers are newer than the
// ones AddAlert sent, the update is broadcast and dispatched.
func (s *Service) UpdateIncident(c subsystem.Context, triggers []alarm.Trigger, sendNotifications bool) error {
	if len(triggers) == 0 {
		return nil
	}

	current, err := s.active(c)
	if err != nil {
		return err
	}

	if current == nil {
		return ErrNoActiveIncident
	}

	incident := current.Clone()

	added := appendTriggers(incident, triggers)
	if len(added) > 0 {
		if err = s.save(c, current, incident); err != nil {
			return err
		}
	}

	s.issueAlertUpdatedIfNeeded(c, incident, triggers, sendNotifications)

	return s.history.OnTriggersAdded(c, incident.Address(), added)
}

// UpdateIncidentHistory records triggers on the timeline of the active
// incident without changing it.
func (s *Service) UpdateIncidentHistory(c subsystem.Context, triggers []alarm.Trigger) error {
	if len(triggers) == 0 {
		return nil
	}

	current, err := s.active(c)
	if err != nil {
		return err
	}

	if current == nil {
		return ErrNoActiveIncident
	}

	return s.history.OnTriggersAdded(c, current.Address(), triggers)
}

// OnHubConnectivityChanged records a hub connectivity change on the active
// incident, if any.
func (s *Service) OnHubConnectivityChanged(c subsystem.Context, hub *place.Model) error {
	logger.DebugKV(c.Context(), "Hub connectivity changed", "state", hub.String(place.AttrHubConnState))

	current, err := s.active(c)
	if err != nil || current == nil {
		return err
	}

	return s.history.OnHubConnectivityChanged(c, current.Address(), hub)
}

// Verify confirms a pre-alert or alert incident. It returns the
// verification time, which is zero when the incident was already confirmed.
func (s *Service) Verify(c subsystem.Context, addr, by address.Address) (time.Time, error) {
	incident, err := s.GetIncident(c, addr)
	if err != nil {
		return time.Time{}, err
	}

	if !incident.IsAlerting() {
		return time.Time{}, fmt.Errorf("%w: cannot verify %s incident %s", ErrInvalidIncidentState, incident.State, addr)
	}

	if incident.Confirmed {
		return time.Time{}, nil
	}

	logger.DebugKV(c.Context(), "Incident verified", "incident_id", incident.ID, "verified_by", by.String())

	updated := incident.Clone()
	updated.Confirmed = true
	updated.VerifiedTime = c.Now()
	updated.VerifiedBy = by.String()

	if err = s.save(c, incident, updated); err != nil {
		return time.Time{}, err
	}

	return updated.VerifiedTime, nil
}

// Cancel cancels the active incident and returns it as it was when the
// request was accepted. Completion arrives later as MessageCompleted.
func (s *Service) Cancel(c subsystem.Context, by address.Address, method string) (*alarm.Incident, error) {
	current, err := s.active(c)
	if err != nil {
		return nil, err
	}

	if current != nil {
		return s.cancel(c, current, by, method)
	}

	raw := c.Model().String(alarm.AttrCurrentIncident)
	if raw == "" {
		return nil, ErrNoActiveIncident
	}

	addr, err := address.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("current incident: %w", err)
	}

	incident, err := s.GetIncident(c, addr)
	if err != nil {
		if errors.Is(err, ErrIncidentNotFound) {
			logger.WarnKV(c.Context(), "Cancelling unknown incident, repairing state", "incident", raw)
			s.post(c.Context(), CompletedMessage(c.PlaceID(), addr, by))

			return nil, nil //nolint:nilnil // Repaired asynchronously.
		}

		return nil, err
	}

	logger.WarnKV(c.Context(), "Cancelling completed incident, repairing state", "incident", raw)

	return s.OnCompleted(c, incident.Address(), by)
}

// CancelIncident cancels a specific incident of the place.
func (s *Service) CancelIncident(
	c subsystem.Context,
	addr, by address.Address,
	method string,
) (*alarm.Incident, error) {
	incident, err := s.GetIncident(c, addr)
	if err != nil {
		if errors.Is(err, ErrIncidentNotFound) {
			logger.WarnKV(c.Context(), "Cancelling unknown incident, repairing state", "incident", addr.String())
			s.post(c.Context(), CompletedMessage(c.PlaceID(), addr, by))
		}

		return nil, err
	}

	return s.cancel(c, incident, by, method)
}

// OnCompleted finishes a cancelled incident and clears it from the
// subsystem. Unknown incidents only clear the reference.
func (s *Service) OnCompleted(c subsystem.Context, addr, by address.Address) (*alarm.Incident, error) {
	incident, err := s.GetIncident(c, addr)
	if err != nil {
		if errors.Is(err, ErrIncidentNotFound) {
			logger.WarnKV(c.Context(), "Completed incident not found", "incident", addr.String())
			clearCurrent(c, addr)

			return nil, nil //nolint:nilnil // Nothing left to complete.
		}

		return nil, err
	}

	if incident.State == alarm.IncidentComplete {
		clearCurrent(c, addr)

		return incident, nil
	}

	updated := incident.Clone()
	updated.State = alarm.IncidentComplete
	updated.EndTime = c.Now()
	updated.Tracker = append(updated.Tracker, alarm.NewTrackerEvent(incident.Alert, alarm.TrackerCancelled, c.Now(), ""))

	if !by.IsZero() {
		updated.CancelledBy = by.String()
	}

	switch updated.MonitoringState {
	case alarm.MonitoringPending, alarm.MonitoringDispatching:
		updated.MonitoringState = alarm.MonitoringCancelled
	default:
	}

	if err = s.save(c, incident, updated); err != nil {
		return nil, err
	}

	clearCurrent(c, addr)
	c.Send(CompletedMessage(c.PlaceID(), addr, by))

	logger.InfoKV(c.Context(), "Incident completed", "incident_id", incident.ID)

	return updated, nil
}

// OnIncidentUpdated applies a monitoring state reported for an incident.
func (s *Service) OnIncidentUpdated(
	c subsystem.Context,
	addr address.Address,
	state alarm.MonitoringState,
	trackerMessage string,
) error {
	incident, err := s.GetIncident(c, addr)
	if err != nil {
		return err
	}

	updated := incident.Clone()
	updated.MonitoringState = state

	if tracker, ok := state.TrackerState(incident.MonitoringState); ok {
		updated.Tracker = append(updated.Tracker, alarm.NewTrackerEvent(incident.Alert, tracker, c.Now(), trackerMessage))
	}

	return s.save(c, incident, updated)
}

func (s *Service) cancel(
	c subsystem.Context,
	incident *alarm.Incident,
	by address.Address,
	method string,
) (*alarm.Incident, error) {
	switch incident.State {
	case alarm.IncidentPrealert, alarm.IncidentAlert:
		updated := incident.Clone()
		updated.State = alarm.IncidentCancelling
		updated.CancelMethod = method

		if err := s.save(c, incident, updated); err != nil {
			return nil, err
		}

		if err := s.history.OnCancelled(c, incident, by, method); err != nil {
			logger.WarnKV(c.Context(), "Failed to record incident history", "incident_id", incident.ID, "error", err)
		}

		incident = updated
	case alarm.IncidentCancelling:
		logger.DebugKV(c.Context(), "Incident already cancelling, retrying", "incident_id", incident.ID)
	default:
		return nil, fmt.Errorf("%w: cannot cancel %s incident %s", ErrInvalidIncidentState, incident.State, incident.ID)
	}

	s.doCancel(c, incident.Clone(), by, method)

	return incident, nil
}

// doCancel tells the monitoring station and posts completion back to the
// place. A failed station request leaves the incident CANCELLING.
func (s *Service) doCancel(c subsystem.Context, incident *alarm.Incident, by address.Address, method string) {
	ctx := context.WithoutCancel(c.Context())
	placeID := c.PlaceID()

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		if s.monitor != nil && incident.Monitored {
			err := s.monitor.Cancel(ctx, incident, by, method)
			s.requested(opCancel, err)

			if err != nil {
				logger.WarnKV(ctx, "Failed to cancel incident", "incident_id", incident.ID, "error", err)

				return
			}
		}

		s.post(ctx, CompletedMessage(placeID, incident.Address(), by))
	}()
}

func (s *Service) onAlert(
	c subsystem.Context,
	incident *alarm.Incident,
	t alarm.Type,
	triggers []alarm.Trigger,
	sendNotifications bool,
) {
	c.Send(subsystem.Message{
		Type:   AlertEvent(t),
		Source: incident.Address(),
		Actor:  c.Model().Address,
		Attributes: map[string]string{
			AttrTriggers: encodeJSON(triggers),
		},
	})

	if sendNotifications {
		s.dispatch(c, incident, t, triggers)
	}
}

func (s *Service) issueAlertUpdatedIfNeeded(
	c subsystem.Context,
	incident *alarm.Incident,
	triggers []alarm.Trigger,
	sendNotifications bool,
) {
	first := triggers[0]
	if !c.Model().Is(alarm.AttrAlertState(first.Alarm), string(alarm.StateAlert)) {
		return
	}

	raw, sent := c.Variable(VarTriggerSent)

	last, err := time.Parse(time.RFC3339Nano, raw)
	if !sent || err != nil || last.Before(first.Time) {
		s.onAlert(c, incident, first.Alarm, triggers, sendNotifications)
	}

	if sent {
		c.SetVariable(VarTriggerSent, "")
	}
}

// dispatch reports a monitored incident to the station. The outcome is
// posted back as MessageUpdated.
func (s *Service) dispatch(c subsystem.Context, incident *alarm.Incident, t alarm.Type, triggers []alarm.Trigger) {
	if s.monitor == nil || !incident.Monitored {
		return
	}

	if incident.MonitoringState == alarm.MonitoringNone {
		updated := incident.Clone()
		updated.MonitoringState = alarm.MonitoringPending

		if err := s.save(c, incident, updated); err != nil {
			logger.WarnKV(c.Context(), "Failed to mark incident pending", "incident_id", incident.ID, "error", err)
		}

		incident = updated
	}

	var (
		ctx      = context.WithoutCancel(c.Context())
		placeID  = c.PlaceID()
		snapshot = incident.Clone()
		sent     = alarm.CloneTriggers(triggers)
	)

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		err := s.monitor.Dispatch(ctx, snapshot, t, sent)
		s.requested(opDispatch, err)

		state := alarm.MonitoringDispatching
		if err != nil {
			logger.WarnKV(ctx, "Failed to dispatch incident", "incident_id", snapshot.ID, "error", err)

			state = alarm.MonitoringFailed
		}

		s.post(ctx, UpdatedMessage(placeID, snapshot.Address(), state, ""))
	}()
}

// active returns the incident of the place that is not complete, or nil.
func (s *Service) active(c subsystem.Context) (*alarm.Incident, error) {
	incident, err := s.store.Current(c.Context(), c.PlaceID())
	if err != nil {
		if errors.Is(err, incidents.ErrNotFound) {
			return nil, nil //nolint:nilnil // No active incident.
		}

		return nil, fmt.Errorf("load active incident: %w", err)
	}

	return incident, nil
}

func (s *Service) newIncident(c subsystem.Context, state alarm.IncidentState) (*alarm.Incident, error) {
	id, err := s.newID()
	if err != nil {
		return nil, fmt.Errorf("generate incident id: %w", err)
	}

	return &alarm.Incident{
		ID:              id.String(),
		PlaceID:         c.PlaceID(),
		State:           state,
		MonitoringState: alarm.MonitoringNone,
		StartTime:       c.Now(),
	}, nil
}

// save stores updated and broadcasts it as added or changed.
func (s *Service) save(c subsystem.Context, prev, updated *alarm.Incident) error {
	if err := s.store.Upsert(c.Context(), updated); err != nil {
		return fmt.Errorf("save incident %s: %w", updated.ID, err)
	}

	msg := subsystem.Message{
		Type:       subsystem.MessageAdded,
		Source:     updated.Address(),
		Attributes: Attributes(updated),
	}

	if prev != nil {
		msg.Type = subsystem.MessageValueChange
		msg.Attributes = diff(prev, updated)

		if len(msg.Attributes) == 0 {
			return nil
		}
	}

	c.Send(msg)

	return nil
}

// monitoredFlag reports whether a professionally monitored place should
// have the incident monitored once t joins it.
func (s *Service) monitoredFlag(c subsystem.Context, t alarm.Type, current *alarm.Incident) bool {
	level := alarm.ServiceLevel(subsystem.ServiceLevel(c))
	if !level.IsProMon() {
		return false
	}

	if alarm.IsMonitorable(t) {
		return true
	}

	return current != nil && slices.ContainsFunc(current.AllAlarms(), alarm.IsMonitorable)
}

func (s *Service) post(ctx context.Context, msg subsystem.Message) {
	if s.poster == nil {
		logger.WarnKV(ctx, "No poster configured, dropping message", "type", msg.Type)

		return
	}

	if err := s.poster.Submit(ctx, msg); err != nil {
		logger.WarnKV(ctx, "Failed to post message", "type", msg.Type, "error", err)
	}
}

func (s *Service) created(t alarm.Type) {
	if s.metrics != nil {
		s.metrics.IncidentCreated(t)
	}
}

func (s *Service) requested(op string, err error) {
	if s.metrics != nil {
		s.metrics.MonitoringRequest(op, err)
	}
}

// appendTriggers adds the triggers the incident does not hold yet and
// returns them.
func appendTriggers(incident *alarm.Incident, triggers []alarm.Trigger) []alarm.Trigger {
	var added []alarm.Trigger

	for _, t := range triggers {
		if slices.ContainsFunc(incident.Triggers, t.Same) {
			continue
		}

		incident.Triggers = append(incident.Triggers, t)
		added = append(added, t)
	}

	return added
}

func clearCurrent(c subsystem.Context, addr address.Address) {
	if c.Model().Is(alarm.AttrCurrentIncident, addr.String()) {
		c.Model().Set(alarm.AttrCurrentIncident, "")
	}
}
