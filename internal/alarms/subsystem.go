package alarms

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/oshokin/alarm-subsystem/internal/address"
	"github.com/oshokin/alarm-subsystem/internal/domain/alarm"
	"github.com/oshokin/alarm-subsystem/internal/domain/place"
	"github.com/oshokin/alarm-subsystem/internal/fsm"
	"github.com/oshokin/alarm-subsystem/internal/incident"
	"github.com/oshokin/alarm-subsystem/internal/logger"
	"github.com/oshokin/alarm-subsystem/internal/subsystem"
)

// Keypad messages.
const (
	MessageArmPressed    = "keypad:ArmPressed"
	MessageDisarmPressed = "keypad:DisarmPressed"
	MessagePanicPressed  = "keypad:PanicPressed"

	AttrKeypadMode   = "keypad:mode"
	AttrKeypadBypass = "keypad:bypass"
)

// KeyCancel is the timeout key of a pending incident cancel.
const KeyCancel = "cancel"

const (
	varCancelledBy  = "cancel:by"
	varCancelMethod = "cancel:method"

	defaultCancelRetry = 35 * time.Second
)

var (
	// ErrIncidentInactive is returned when a request names an incident that
	// is not the place's current incident.
	ErrIncidentInactive = errors.New("incident is not active")
	// ErrUnknownPanicSource is returned for a panic without a source.
	ErrUnknownPanicSource = errors.New("unknown panic source")
)

// Subsystem is the alarm subsystem of a place. It implements
// subsystem.Handler and the actor requests served by the API.
type Subsystem struct {
	incidents Incidents
	settings  Settings
	metrics   Metrics
}

// Option configures a Subsystem.
type Option func(*Subsystem)

// WithSettings overrides the machine delays.
func WithSettings(settings Settings) Option {
	return func(s *Subsystem) {
		s.settings = settings
	}
}

// WithMetrics registers a metrics observer.
func WithMetrics(metrics Metrics) Option {
	return func(s *Subsystem) {
		if metrics != nil {
			s.metrics = metrics
		}
	}
}

// New creates the subsystem.
func New(incidents Incidents, options ...Option) *Subsystem {
	s := &Subsystem{
		incidents: incidents,
		metrics:   nopMetrics{},
	}

	for _, o := range options {
		o(s)
	}

	if s.settings.CancelRetry <= 0 {
		s.settings.CancelRetry = defaultCancelRetry
	}

	return s
}

// machines builds the machines of every alarm type. They are cheap and
// hold no place state, so every message gets its own set.
func (s *Subsystem) machines() []*Machine {
	defs := Definitions()
	out := make([]*Machine, 0, len(defs))

	for _, d := range defs {
		out = append(out, NewMachine(d, s.incidents, s.settings, s.metrics))
	}

	return out
}

func (s *Subsystem) machine(t alarm.Type) *Machine {
	d, _ := DefinitionOf(t)

	return NewMachine(d, s.incidents, s.settings, s.metrics)
}

// Start implements subsystem.Handler.
func (s *Subsystem) Start(c subsystem.Context) error {
	model := c.Model()

	for _, t := range alarm.Types {
		if _, ok := model.Get(alarm.AttrSilent(t)); !ok {
			model.SetBool(alarm.AttrSilent(t), false)
		}
	}

	if _, ok := model.Get(alarm.AttrSecurityMode); !ok {
		setSecurityMode(c, alarm.SecurityModeInactive)
	}

	s.SyncMonitored(c)

	var errs []error

	for _, m := range s.machines() {
		errs = append(errs, m.SyncDevices(c), m.OnStarted(c))
	}

	if _, ok := fsm.RestoreTimeout(c, KeyCancel); ok {
		logger.DebugKV(c.Context(), "Restored pending cancel")
	}

	s.syncSummary(c)

	return errors.Join(errs...)
}

// Handle implements subsystem.Handler.
func (s *Subsystem) Handle(c subsystem.Context, msg subsystem.Message) error {
	err := s.handle(c, msg)

	s.syncSummary(c)

	return err
}

func (s *Subsystem) handle(c subsystem.Context, msg subsystem.Message) error {
	switch msg.Type {
	case subsystem.MessageAdded, subsystem.MessageValueChange, subsystem.MessageDeleted:
		return s.onModelChanged(c, msg)
	case subsystem.MessageTimeout:
		return s.onTimeout(c, msg)
	case incident.MessageCompleted:
		return s.onIncidentCompleted(c, msg)
	case incident.MessageUpdated:
		return s.onIncidentUpdated(c, msg)
	case MessageArmPressed:
		mode, ok := alarm.ParseSecurityMode(msg.Attribute(AttrKeypadMode))
		if !ok {
			mode = alarm.SecurityModeOn
		}

		bypass, _ := strconv.ParseBool(msg.Attribute(AttrKeypadBypass))

		_, err := s.Arm(c, mode, bypass, msg.Source)

		return err
	case MessageDisarmPressed:
		return s.Disarm(c, msg.Source, incident.MethodKeypad)
	case MessagePanicPressed:
		return s.Panic(c, msg.Source)
	default:
		logger.DebugKV(c.Context(), "Ignoring message", "type", msg.Type)

		return nil
	}
}

// SyncMonitored recomputes the monitored flag of every alarm from the
// service level of the place.
func (s *Subsystem) SyncMonitored(c subsystem.Context) {
	level := alarm.ServiceLevel(subsystem.ServiceLevel(c))

	for _, t := range alarm.Types {
		c.Model().SetBool(alarm.AttrMonitored(t), alarm.IsMonitored(level, t))
	}
}

func (s *Subsystem) onModelChanged(c subsystem.Context, msg subsystem.Message) error {
	if msg.Source.IsZero() || msg.Source == c.Model().Address {
		return nil
	}

	var model *place.Model

	switch msg.Type {
	case subsystem.MessageDeleted:
		c.RemoveModel(msg.Source)
	case subsystem.MessageAdded:
		model = place.NewModel(msg.Source)
	default:
		model = c.ModelByAddress(msg.Source).Clone()
		if model == nil {
			model = place.NewModel(msg.Source)
		}
	}

	if model != nil {
		for k, v := range msg.Attributes {
			model.Set(k, v)
		}

		c.PutModel(model)
	}

	var errs []error

	if _, ok := msg.Attributes[place.AttrServiceLevel]; ok {
		s.SyncMonitored(c)
	}

	if _, ok := msg.Attributes[place.AttrHubConnState]; ok && model.IsA(place.CapHub) {
		errs = append(errs, s.incidents.OnHubConnectivityChanged(c, model))
	}

	for _, m := range s.machines() {
		errs = append(errs, m.SyncDevices(c))
	}

	return errors.Join(errs...)
}

func (s *Subsystem) onTimeout(c subsystem.Context, msg subsystem.Message) error {
	event := fsm.TimeoutEvent{
		Key: msg.Attribute(subsystem.AttrTimeoutKey),
	}

	if deadline, err := time.Parse(time.RFC3339Nano, msg.Attribute(subsystem.AttrTimeoutDeadline)); err == nil {
		event.Deadline = deadline
	}

	if event.Key == KeyCancel {
		return s.retryCancel(c, event)
	}

	var errs []error

	for _, m := range s.machines() {
		errs = append(errs, m.OnTimeout(c, event))
	}

	return errors.Join(errs...)
}

func (s *Subsystem) onIncidentCompleted(c subsystem.Context, msg subsystem.Message) error {
	current := c.Model().String(alarm.AttrCurrentIncident)
	if current != "" && current != msg.Source.String() {
		logger.DebugKV(c.Context(), "Ignoring completion of stale incident",
			"incident", msg.Source.String(),
			"current", current,
		)

		return nil
	}

	if _, err := s.incidents.OnCompleted(c, msg.Source, msg.Actor); err != nil {
		return fmt.Errorf("complete incident %s: %w", msg.Source, err)
	}

	return s.completed(c)
}

func (s *Subsystem) onIncidentUpdated(c subsystem.Context, msg subsystem.Message) error {
	state, ok := alarm.ParseMonitoringState(msg.Attribute(incident.AttrMonitoringState))
	if !ok {
		return fmt.Errorf("%w: monitoring state %q", ErrInvalidState, msg.Attribute(incident.AttrMonitoringState))
	}

	return s.incidents.OnIncidentUpdated(c, msg.Source, state, msg.Attribute(incident.AttrTrackerMessage))
}

// Arm arms the security alarm and returns when arming completes, or the
// zero time when it armed at once.
func (s *Subsystem) Arm(c subsystem.Context, mode alarm.SecurityMode, bypass bool, by address.Address) (time.Time, error) {
	if err := s.machine(alarm.Security).Arm(c, mode, bypass); err != nil {
		return time.Time{}, err
	}

	if !by.IsZero() {
		c.Model().Set(alarm.AttrLastArmedBy, by.String())
	}

	logger.InfoKV(c.Context(), "Security alarm arming", "mode", mode, "by", by.String())

	at, _ := fsm.Timeout(c, KeyArming)

	return at, nil
}

// Disarm disarms the security alarm and cancels the current incident.
func (s *Subsystem) Disarm(c subsystem.Context, by address.Address, method string) error {
	security := s.machine(alarm.Security)
	alerting := security.State(c).IsAlerting()

	if err := security.Disarm(c); err != nil {
		return err
	}

	if !by.IsZero() {
		c.Model().Set(alarm.AttrLastDisarmedBy, by.String())
	}

	logger.InfoKV(c.Context(), "Security alarm disarmed", "by", by.String())

	if !alerting && !s.hasIncident(c) {
		return nil
	}

	if _, err := s.tryCancel(c, by, method); err != nil && !errors.Is(err, incident.ErrNoActiveIncident) {
		return err
	}

	return nil
}

// Panic raises the panic alarm. The trigger event follows from who pressed it.
func (s *Subsystem) Panic(c subsystem.Context, by address.Address) error {
	var event alarm.TriggerEvent

	switch {
	case by.IsZero():
		return ErrUnknownPanicSource
	case by.Namespace == address.NamespaceRule:
		event = alarm.EventRule
	case by.Group == address.GroupDriver:
		event = alarm.EventKeypad
	default:
		event = alarm.EventVerifiedAlarm
	}

	logger.InfoKV(c.Context(), "Panic", "by", by.String(), "event", event)

	return s.machine(alarm.Panic).OnTriggered(c, by, event)
}

// Verify confirms the current incident. Pre-alerts escalate at once and
// smoke alerts are dispatched again.
func (s *Subsystem) Verify(c subsystem.Context, incidentAddr, by address.Address) error {
	if err := s.requireCurrent(c, incidentAddr); err != nil {
		return err
	}

	at, err := s.incidents.Verify(c, incidentAddr, by)
	if err != nil {
		return err
	}

	if at.IsZero() {
		return nil
	}

	return errors.Join(
		s.machine(alarm.Security).OnVerified(c, by, at),
		s.machine(alarm.Smoke).OnVerified(c, by, at),
	)
}

// Cancel cancels the current incident. A zero incidentAddr means whatever
// incident is current.
func (s *Subsystem) Cancel(
	c subsystem.Context,
	incidentAddr, by address.Address,
	method string,
) (*alarm.Incident, error) {
	if !incidentAddr.IsZero() {
		if err := s.requireCurrent(c, incidentAddr); err != nil {
			return nil, err
		}
	}

	return s.tryCancel(c, by, method)
}

// ListIncidents returns the incidents of the place, newest first.
func (s *Subsystem) ListIncidents(c subsystem.Context) ([]*alarm.Incident, error) {
	return s.incidents.ListIncidents(c)
}

func (s *Subsystem) hasIncident(c subsystem.Context) bool {
	return c.Model().String(alarm.AttrCurrentIncident) != ""
}

func (s *Subsystem) requireCurrent(c subsystem.Context, addr address.Address) error {
	if current := c.Model().String(alarm.AttrCurrentIncident); current != addr.String() {
		return fmt.Errorf("%w: %s", ErrIncidentInactive, addr)
	}

	return nil
}

// tryCancel moves every alerting machine to clearing and cancels the
// incident. The cancel is retried until the incident completes.
func (s *Subsystem) tryCancel(c subsystem.Context, by address.Address, method string) (*alarm.Incident, error) {
	var (
		machines = s.machines()
		alerting bool
		errs     []error
	)

	for _, m := range machines {
		switch m.State(c) {
		case alarm.StatePrealert, alarm.StateAlert, alarm.StateClearing:
			alerting = true
		default:
		}

		errs = append(errs, m.Cancel(c))
	}

	if err := errors.Join(errs...); err != nil {
		logger.WarnKV(c.Context(), "Failed to cancel alarms", "error", err)
	}

	c.SetVariable(varCancelledBy, by.String())
	c.SetVariable(varCancelMethod, method)
	fsm.SetTimeoutAfter(c, KeyCancel, s.settings.CancelRetry)

	result, err := s.incidents.Cancel(c, by, method)

	switch {
	case errors.Is(err, incident.ErrNoActiveIncident):
		if !alerting {
			s.clearCancel(c)

			return nil, err
		}

		logger.WarnKV(c.Context(), "Alarms alerting without an incident, clearing")

		return nil, s.completed(c)
	case err != nil:
		return nil, err
	case result != nil && result.State == alarm.IncidentComplete:
		return result, s.completed(c)
	default:
		return result, nil
	}
}

func (s *Subsystem) retryCancel(c subsystem.Context, event fsm.TimeoutEvent) error {
	deadline, ok := fsm.Timeout(c, KeyCancel)
	if !ok || (!event.Deadline.IsZero() && !event.Deadline.Equal(deadline)) {
		return nil
	}

	fsm.CancelTimeout(c, KeyCancel)

	raw, _ := c.Variable(varCancelledBy)
	method, _ := c.Variable(varCancelMethod)

	by, err := address.Parse(raw)
	if err != nil {
		by = address.Address{}
	}

	logger.InfoKV(c.Context(), "Retrying incident cancel", "cancelled_by", raw)

	_, err = s.tryCancel(c, by, method)
	if errors.Is(err, incident.ErrNoActiveIncident) {
		return nil
	}

	return err
}

// completed finishes a cancel: every machine leaves CLEARING.
func (s *Subsystem) completed(c subsystem.Context) error {
	s.clearCancel(c)

	var errs []error

	for _, m := range s.machines() {
		errs = append(errs, m.OnCancelled(c))
	}

	return errors.Join(errs...)
}

func (s *Subsystem) clearCancel(c subsystem.Context) {
	c.SetVariable(varCancelledBy, "")
	c.SetVariable(varCancelMethod, "")
	fsm.CancelTimeout(c, KeyCancel)
}

// syncSummary derives the place-wide alarm attributes from the machines.
func (s *Subsystem) syncSummary(c subsystem.Context) {
	var (
		model     = c.Model()
		summary   = alarm.SubsystemInactive
		active    []string
		available []string
	)

	for _, t := range alarm.Types {
		state, _ := alarm.ParseAlertState(model.String(alarm.AttrAlertState(t)))

		switch state {
		case alarm.StateAlert:
			active = append(active, string(t))
			summary = alarm.SubsystemAlerting
		case alarm.StatePrealert:
			if summary != alarm.SubsystemAlerting {
				summary = alarm.SubsystemPrealert
			}
		case alarm.StateClearing:
			if summary == alarm.SubsystemInactive || summary == alarm.SubsystemReady {
				summary = alarm.SubsystemClearing
			}
		case alarm.StateInactive, "":
			continue
		default:
			if summary == alarm.SubsystemInactive {
				summary = alarm.SubsystemReady
			}
		}

		available = append(available, string(t))
	}

	model.Set(alarm.AttrAlarmState, string(summary))
	model.SetStrings(alarm.AttrActiveAlerts, active)
	model.SetStrings(alarm.AttrAvailableAlerts, available)
}
