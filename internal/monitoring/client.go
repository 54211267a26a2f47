package monitoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/oshokin/alarm-subsystem/internal/address"
	"github.com/oshokin/alarm-subsystem/internal/domain/alarm"
	"github.com/oshokin/alarm-subsystem/internal/logger"
)

// Station API paths.
const (
	PathDispatch = "/dispatch"
	PathCancel   = "/cancel"

	headerAPIKey = "X-Api-Key"

	defaultTimeout       = 10 * time.Second
	defaultRetryWait     = 500 * time.Millisecond
	defaultRetryMaxWait  = 5 * time.Second
	defaultRetryAttempts = 2
)

// ErrRejected is returned when the station answers with an error status.
var ErrRejected = errors.New("monitoring station rejected request")

// DispatchRequest reports an alarm of an incident to the station.
type DispatchRequest struct {
	PlaceID    string          `json:"placeId"`
	IncidentID string          `json:"incidentId"`
	Alarm      alarm.Type      `json:"alarm"`
	Alarms     []alarm.Type    `json:"alarms"`
	Confirmed  bool            `json:"confirmed"`
	StartTime  time.Time       `json:"startTime"`
	Triggers   []alarm.Trigger `json:"triggers"`
}

// CancelRequest asks the station to stand down.
type CancelRequest struct {
	PlaceID     string `json:"placeId"`
	IncidentID  string `json:"incidentId"`
	CancelledBy string `json:"cancelledBy,omitempty"`
	Method      string `json:"method"`
}

type stationError struct {
	Message string `json:"message"`
}

// Client talks to the monitoring station.
type Client struct {
	http *resty.Client
}

// Option configures a Client.
type Option func(*resty.Client)

// WithAPIKey authenticates every request.
func WithAPIKey(key string) Option {
	return func(c *resty.Client) {
		if key != "" {
			c.SetHeader(headerAPIKey, key)
		}
	}
}

// WithTimeout overrides the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *resty.Client) {
		if d > 0 {
			c.SetTimeout(d)
		}
	}
}

// WithRetryCount overrides the number of retries of a failed request.
func WithRetryCount(n int) Option {
	return func(c *resty.Client) {
		if n >= 0 {
			c.SetRetryCount(n)
		}
	}
}

// NewClient creates a client of the station at baseURL.
func NewClient(baseURL string, options ...Option) *Client {
	http := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(defaultTimeout).
		SetRetryCount(defaultRetryAttempts).
		SetRetryWaitTime(defaultRetryWait).
		SetRetryMaxWaitTime(defaultRetryMaxWait).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		})

	for _, o := range options {
		o(http)
	}

	return &Client{
		http: http,
	}
}

// Dispatch implements incident.Monitor.
func (c *Client) Dispatch(ctx context.Context, incident *alarm.Incident, t alarm.Type, triggers []alarm.Trigger) error {
	req := DispatchRequest{
		PlaceID:    incident.PlaceID,
		IncidentID: incident.ID,
		Alarm:      t,
		Alarms:     incident.AllAlarms(),
		Confirmed:  incident.Confirmed,
		StartTime:  incident.StartTime,
		Triggers:   triggers,
	}

	logger.DebugKV(ctx, "Dispatching incident",
		"incident_id", incident.ID,
		"alarm", t,
		"triggers", len(triggers),
	)

	return c.post(ctx, PathDispatch, req)
}

// Cancel implements incident.Monitor.
func (c *Client) Cancel(ctx context.Context, incident *alarm.Incident, by address.Address, method string) error {
	req := CancelRequest{
		PlaceID:    incident.PlaceID,
		IncidentID: incident.ID,
		Method:     method,
	}

	if !by.IsZero() {
		req.CancelledBy = by.String()
	}

	logger.DebugKV(ctx, "Cancelling incident", "incident_id", incident.ID, "method", method)

	return c.post(ctx, PathCancel, req)
}

func (c *Client) post(ctx context.Context, path string, body any) error {
	var failure stationError

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetError(&failure).
		Post(path)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}

	if resp.IsError() {
		message := failure.Message
		if message == "" {
			message = resp.Status()
		}

		return fmt.Errorf("%w: %s: %d %s", ErrRejected, path, resp.StatusCode(), message)
	}

	return nil
}
