package alarm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/alarm-subsystem/internal/address"
	"github.com/oshokin/alarm-subsystem/internal/alarms"
	domain "github.com/oshokin/alarm-subsystem/internal/domain/alarm"
	"github.com/oshokin/alarm-subsystem/internal/incident"
	"github.com/oshokin/alarm-subsystem/internal/logger"
	"github.com/oshokin/alarm-subsystem/internal/subsystem"
)

// Request and response field names.
const (
	FieldPlaceID    = "placeId"
	FieldActor      = "actor"
	FieldMode       = "mode"
	FieldBypass     = "bypass"
	FieldMethod     = "method"
	FieldIncident   = "incident"
	FieldType       = "type"
	FieldSource     = "source"
	FieldAttributes = "attributes"
	FieldArmedAt    = "armedAt"
	FieldIncidents  = "incidents"
)

// Registry runs work on place executors.
type Registry interface {
	Call(ctx context.Context, placeID string, fn func(c subsystem.Context) error) error
	Submit(ctx context.Context, msg subsystem.Message) error
}

// Subsystem is the alarm logic the API drives.
type Subsystem interface {
	Arm(c subsystem.Context, mode domain.SecurityMode, bypass bool, by address.Address) (time.Time, error)
	Disarm(c subsystem.Context, by address.Address, method string) error
	Panic(c subsystem.Context, by address.Address) error
	Verify(c subsystem.Context, incidentAddr, by address.Address) error
	Cancel(c subsystem.Context, incidentAddr, by address.Address, method string) (*domain.Incident, error)
	ListIncidents(c subsystem.Context) ([]*domain.Incident, error)
}

var (
	errFieldRequired = errors.New("field is required")
	errInvalidMode   = errors.New("invalid arming mode")
	errInvalidType   = errors.New("unsupported device message type")
)

// Server implements alarm.v1.AlarmSubsystem.
type Server struct {
	registry  Registry
	subsystem Subsystem
}

var _ AlarmSubsystemServer = (*Server)(nil)

// NewServer creates the API over registry and subsystem.
func NewServer(registry Registry, sub Subsystem) *Server {
	return &Server{
		registry:  registry,
		subsystem: sub,
	}
}

// Arm arms the security alarm. The response carries armedAt when an exit delay runs.
func (s *Server) Arm(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	r := request{req}

	placeID, by, err := r.placeAndActor()
	if err != nil {
		return nil, toStatus(err)
	}

	modeName := r.str(FieldMode)
	if modeName == "" {
		modeName = string(domain.SecurityModeOn)
	}

	mode, ok := domain.ParseSecurityMode(modeName)
	if !ok {
		return nil, toStatus(fmt.Errorf("%w: %q", errInvalidMode, modeName))
	}

	var armedAt time.Time

	err = s.registry.Call(ctx, placeID, func(c subsystem.Context) error {
		var armErr error

		armedAt, armErr = s.subsystem.Arm(c, mode, r.boolean(FieldBypass), by)

		return armErr
	})
	if err != nil {
		return nil, toStatus(err)
	}

	resp := map[string]any{}
	if !armedAt.IsZero() {
		resp[FieldArmedAt] = formatTime(armedAt)
	}

	return structpb.NewStruct(resp)
}

// Disarm disarms the security alarm and cancels any incident.
func (s *Server) Disarm(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	r := request{req}

	placeID, by, err := r.placeAndActor()
	if err != nil {
		return nil, toStatus(err)
	}

	method := r.method()

	err = s.registry.Call(ctx, placeID, func(c subsystem.Context) error {
		return s.subsystem.Disarm(c, by, method)
	})
	if err != nil {
		return nil, toStatus(err)
	}

	return &structpb.Struct{}, nil
}

// Panic raises the panic alarm on behalf of the actor.
func (s *Server) Panic(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	r := request{req}

	placeID, by, err := r.placeAndActor()
	if err != nil {
		return nil, toStatus(err)
	}

	err = s.registry.Call(ctx, placeID, func(c subsystem.Context) error {
		return s.subsystem.Panic(c, by)
	})
	if err != nil {
		return nil, toStatus(err)
	}

	return &structpb.Struct{}, nil
}

// Verify confirms the named incident.
func (s *Server) Verify(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	r := request{req}

	placeID, by, err := r.placeAndActor()
	if err != nil {
		return nil, toStatus(err)
	}

	incidentAddr, err := r.address(FieldIncident, true)
	if err != nil {
		return nil, toStatus(err)
	}

	err = s.registry.Call(ctx, placeID, func(c subsystem.Context) error {
		return s.subsystem.Verify(c, incidentAddr, by)
	})
	if err != nil {
		return nil, toStatus(err)
	}

	return &structpb.Struct{}, nil
}

// Cancel cancels the named incident, or the current one when none is named.
func (s *Server) Cancel(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	r := request{req}

	placeID, by, err := r.placeAndActor()
	if err != nil {
		return nil, toStatus(err)
	}

	incidentAddr, err := r.address(FieldIncident, false)
	if err != nil {
		return nil, toStatus(err)
	}

	method := r.method()

	var cancelled *domain.Incident

	err = s.registry.Call(ctx, placeID, func(c subsystem.Context) error {
		var cancelErr error

		cancelled, cancelErr = s.subsystem.Cancel(c, incidentAddr, by, method)

		return cancelErr
	})
	if err != nil {
		return nil, toStatus(err)
	}

	if cancelled == nil {
		return &structpb.Struct{}, nil
	}

	return structpb.NewStruct(map[string]any{FieldIncident: incidentFields(cancelled)})
}

// ListIncidents returns the incident history of the place, newest first.
func (s *Server) ListIncidents(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	r := request{req}

	placeID := r.str(FieldPlaceID)
	if placeID == "" {
		return nil, toStatus(fmt.Errorf("%s: %w", FieldPlaceID, errFieldRequired))
	}

	var list []*domain.Incident

	err := s.registry.Call(ctx, placeID, func(c subsystem.Context) error {
		var listErr error

		list, listErr = s.subsystem.ListIncidents(c)

		return listErr
	})
	if err != nil {
		return nil, toStatus(err)
	}

	items := make([]any, 0, len(list))
	for _, i := range list {
		items = append(items, incidentFields(i))
	}

	return structpb.NewStruct(map[string]any{FieldIncidents: items})
}

// ReportDevice queues a device event for its place.
func (s *Server) ReportDevice(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	r := request{req}

	placeID := r.str(FieldPlaceID)
	if placeID == "" {
		return nil, toStatus(fmt.Errorf("%s: %w", FieldPlaceID, errFieldRequired))
	}

	source, err := r.address(FieldSource, true)
	if err != nil {
		return nil, toStatus(err)
	}

	msgType := r.str(FieldType)
	switch msgType {
	case "":
		msgType = subsystem.MessageValueChange
	case subsystem.MessageValueChange, subsystem.MessageAdded, subsystem.MessageDeleted:
	default:
		return nil, toStatus(fmt.Errorf("%w: %q", errInvalidType, msgType))
	}

	msg := subsystem.Message{
		Type:       msgType,
		Source:     source,
		PlaceID:    placeID,
		Time:       time.Now(),
		Attributes: r.attributes(),
	}

	if err = s.registry.Submit(ctx, msg); err != nil {
		return nil, toStatus(err)
	}

	logger.DebugKV(ctx, "Device event queued", "place_id", placeID, "type", msgType, "source", source.String())

	return &structpb.Struct{}, nil
}

// request reads typed fields of a Struct request.
type request struct {
	*structpb.Struct
}

func (r request) str(name string) string {
	return r.GetFields()[name].GetStringValue()
}

func (r request) boolean(name string) bool {
	return r.GetFields()[name].GetBoolValue()
}

func (r request) method() string {
	if m := r.str(FieldMethod); m != "" {
		return m
	}

	return incident.MethodApp
}

func (r request) address(name string, required bool) (address.Address, error) {
	raw := r.str(name)
	if raw == "" {
		if required {
			return address.Address{}, fmt.Errorf("%s: %w", name, errFieldRequired)
		}

		return address.Address{}, nil
	}

	addr, err := address.Parse(raw)
	if err != nil {
		return address.Address{}, fmt.Errorf("%s: %w", name, err)
	}

	return addr, nil
}

func (r request) placeAndActor() (string, address.Address, error) {
	placeID := r.str(FieldPlaceID)
	if placeID == "" {
		return "", address.Address{}, fmt.Errorf("%s: %w", FieldPlaceID, errFieldRequired)
	}

	by, err := r.address(FieldActor, true)

	return placeID, by, err
}

func (r request) attributes() map[string]string {
	fields := r.GetFields()[FieldAttributes].GetStructValue().GetFields()
	if len(fields) == 0 {
		return nil
	}

	out := make(map[string]string, len(fields))

	for k, v := range fields {
		switch kind := v.GetKind().(type) {
		case *structpb.Value_StringValue:
			out[k] = kind.StringValue
		case *structpb.Value_BoolValue:
			out[k] = fmt.Sprint(kind.BoolValue)
		case *structpb.Value_NumberValue:
			out[k] = fmt.Sprint(kind.NumberValue)
		}
	}

	return out
}

// incidentFields renders an incident as Struct-compatible values.
func incidentFields(i *domain.Incident) map[string]any {
	alerts := make([]any, 0, len(i.AdditionalAlerts))
	for _, t := range i.AdditionalAlerts {
		alerts = append(alerts, string(t))
	}

	fields := map[string]any{
		"address":          i.Address().String(),
		"alertState":       string(i.State),
		"alert":            string(i.Alert),
		"additionalAlerts": alerts,
		"monitored":        i.Monitored,
		"monitoringState":  string(i.MonitoringState),
		"confirmed":        i.Confirmed,
		"startTime":        formatTime(i.StartTime),
	}

	optional := map[string]time.Time{
		"prealertEndTime": i.PrealertEndTime,
		"endTime":         i.EndTime,
		"verifiedTime":    i.VerifiedTime,
	}

	for k, t := range optional {
		if !t.IsZero() {
			fields[k] = formatTime(t)
		}
	}

	if i.CancelledBy != "" {
		fields["cancelledBy"] = i.CancelledBy
		fields["cancelMethod"] = i.CancelMethod
	}

	return fields
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// toStatus maps domain errors to gRPC status codes.
func toStatus(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	case errors.Is(err, errFieldRequired),
		errors.Is(err, errInvalidMode),
		errors.Is(err, errInvalidType),
		errors.Is(err, address.ErrMalformed),
		errors.Is(err, alarms.ErrUnknownPanicSource),
		errors.Is(err, subsystem.ErrMissingPlace):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, incident.ErrIncidentNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, incident.ErrNoActiveIncident),
		errors.Is(err, incident.ErrInvalidIncidentState),
		errors.Is(err, alarms.ErrIncidentInactive),
		errors.Is(err, alarms.ErrInvalidState),
		errors.Is(err, alarms.ErrTriggeredDevices):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, subsystem.ErrClosed):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
