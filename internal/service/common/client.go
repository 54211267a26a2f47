//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	api "github.com/oshokin/alarm-subsystem/internal/api/grpc/alarm"
	"github.com/oshokin/alarm-subsystem/internal/config"
)

// Client wraps the alarm.v1.AlarmSubsystem client with typed helpers.
type Client struct {
	// conn is the underlying gRPC connection to the alarm subsystem.
	conn *grpc.ClientConn
	// api invokes the Struct-based methods.
	api *api.Client

	// callTimeout is the default timeout for individual RPC calls.
	callTimeout time.Duration
}

// Option configures client behaviour.
type Option func(*Client)

// WithCallTimeout sets a default timeout for service calls.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

var (
	// errAddressRequired is returned when a required address value is missing.
	errAddressRequired = errors.New("address must be provided")
	// errPlaceRequired is returned when a request names no place.
	errPlaceRequired = errors.New("place must be provided")
)

// Request identifies who acts on which place.
type Request struct {
	// PlaceID is the place to act on.
	PlaceID string
	// Actor is the platform address of whoever acts.
	Actor string
	// Incident optionally names an incident.
	Incident string
	// Method is how a disarm or cancel was requested.
	Method string
}

// Dial creates a client of the alarm subsystem at address.
// Note: this uses insecure transport credentials; deploy on a trusted network
// or terminate TLS in a proxy until native TLS is added.
func Dial(address string, opts ...Option) (*Client, error) {
	if address == "" {
		return nil, errAddressRequired
	}

	conn, err := grpc.NewClient(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial alarm subsystem: %w", err)
	}

	client := &Client{
		conn:        conn,
		api:         api.NewClient(conn),
		callTimeout: config.DefaultTimeout,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}

	return c.conn.Close()
}

// Arm arms the security alarm and returns when arming completes, if delayed.
func (c *Client) Arm(ctx context.Context, req Request, mode string, bypass bool) (time.Time, error) {
	fields := req.fields()
	fields[api.FieldMode] = mode
	fields[api.FieldBypass] = bypass

	resp, err := c.invoke(ctx, api.MethodArm, req, fields)
	if err != nil {
		return time.Time{}, err
	}

	raw := resp.GetFields()[api.FieldArmedAt].GetStringValue()
	if raw == "" {
		return time.Time{}, nil
	}

	armedAt, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %s: %w", api.FieldArmedAt, err)
	}

	return armedAt, nil
}

// Disarm disarms the security alarm.
func (c *Client) Disarm(ctx context.Context, req Request) error {
	_, err := c.invoke(ctx, api.MethodDisarm, req, req.fields())

	return err
}

// Panic raises the panic alarm.
func (c *Client) Panic(ctx context.Context, req Request) error {
	_, err := c.invoke(ctx, api.MethodPanic, req, req.fields())

	return err
}

// Verify confirms req.Incident.
func (c *Client) Verify(ctx context.Context, req Request) error {
	_, err := c.invoke(ctx, api.MethodVerify, req, req.fields())

	return err
}

// Cancel cancels req.Incident, or the current incident when it is empty.
func (c *Client) Cancel(ctx context.Context, req Request) (map[string]any, error) {
	resp, err := c.invoke(ctx, api.MethodCancel, req, req.fields())
	if err != nil {
		return nil, err
	}

	return resp.GetFields()[api.FieldIncident].GetStructValue().AsMap(), nil
}

// ListIncidents returns the incidents of the place, newest first.
func (c *Client) ListIncidents(ctx context.Context, placeID string) ([]any, error) {
	req := Request{PlaceID: placeID}

	resp, err := c.invoke(ctx, api.MethodListIncidents, req, req.fields())
	if err != nil {
		return nil, err
	}

	return resp.GetFields()[api.FieldIncidents].GetListValue().AsSlice(), nil
}

func (c *Client) invoke(ctx context.Context, method string, req Request, fields map[string]any) (*structpb.Struct, error) {
	if req.PlaceID == "" {
		return nil, errPlaceRequired
	}

	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	out, err := c.api.Invoke(callCtx, method, in)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}

	return out, nil
}

// fields renders the non-empty request fields.
func (r Request) fields() map[string]any {
	fields := map[string]any{api.FieldPlaceID: r.PlaceID}

	for name, value := range map[string]string{
		api.FieldActor:    r.Actor,
		api.FieldIncident: r.Incident,
		api.FieldMethod:   r.Method,
	} {
		if value != "" {
			fields[name] = value
		}
	}

	return fields
}

// callContext returns a context with the client's call timeout if configured,
// otherwise a cancellable child context without a deadline.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.callTimeout)
}
