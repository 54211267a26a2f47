package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/oshokin/alarm-subsystem/internal/config"
	"github.com/oshokin/alarm-subsystem/internal/logger"
	"github.com/oshokin/alarm-subsystem/internal/service/common"
)

// Action is a control operation.
type Action string

// Supported actions.
const (
	ActionArm       Action = "arm"
	ActionDisarm    Action = "disarm"
	ActionPanic     Action = "panic"
	ActionVerify    Action = "verify"
	ActionCancel    Action = "cancel"
	ActionIncidents Action = "incidents"
)

// DefaultServerAddress is where the control commands look for the service.
const DefaultServerAddress = "127.0.0.1" + config.DefaultListenAddress

// maxRetryElapsed bounds retries while the service is unavailable.
const maxRetryElapsed = 30 * time.Second

var errUnknownAction = errors.New("unknown action")

// Options configures one control operation.
type Options struct {
	// ServerAddress is the gRPC address of the alarm subsystem.
	ServerAddress string
	// Timeout bounds each call.
	Timeout time.Duration
	// Action selects the operation.
	Action Action
	// PlaceID is the place to act on.
	PlaceID string
	// Actor is the acting person address; the OS user when empty.
	Actor string
	// Mode is the arming mode.
	Mode string
	// Bypass arms with triggered devices excluded.
	Bypass bool
	// Incident names the incident to verify or cancel.
	Incident string
	// Method is how a disarm or cancel was requested.
	Method string
}

// Run performs the action, retrying while the service is unavailable, and
// writes the result to out.
func Run(ctx context.Context, opts *Options, out io.Writer) error {
	ctx = logger.WithName(ctx, "alarm-control")

	serverAddress := opts.ServerAddress
	if serverAddress == "" {
		serverAddress = DefaultServerAddress
	}

	actor := opts.Actor
	if actor == "" && opts.Action != ActionIncidents {
		detected, err := common.DetectActor()
		if err != nil {
			return err
		}

		actor = detected
	}

	client, err := common.Dial(serverAddress, common.WithCallTimeout(opts.Timeout))
	if err != nil {
		return err
	}

	defer func() {
		_ = client.Close()
	}()

	req := common.Request{
		PlaceID:  opts.PlaceID,
		Actor:    actor,
		Incident: opts.Incident,
		Method:   opts.Method,
	}

	var result any

	attempt := func() error {
		var err error

		result, err = perform(ctx, client, opts, req)
		if status.Code(err) != codes.Unavailable {
			return backoff.Permanent(err)
		}

		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = maxRetryElapsed

	notify := func(err error, next time.Duration) {
		logger.WarnKV(ctx, "Alarm subsystem unavailable", "server_address", serverAddress, "error", err, "retry_in", next)
	}

	if err = backoff.RetryNotify(attempt, backoff.WithContext(bo, ctx), notify); err != nil {
		return err
	}

	logger.InfoKV(ctx, "Action completed", "action", opts.Action, "place_id", opts.PlaceID)

	if result == nil {
		return nil
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")

	if err = encoder.Encode(result); err != nil {
		return fmt.Errorf("write result: %w", err)
	}

	return nil
}

func perform(ctx context.Context, client *common.Client, opts *Options, req common.Request) (any, error) {
	switch opts.Action {
	case ActionArm:
		armedAt, err := client.Arm(ctx, req, opts.Mode, opts.Bypass)
		if err != nil || armedAt.IsZero() {
			return nil, err
		}

		return map[string]any{"armedAt": armedAt}, nil
	case ActionDisarm:
		return nil, client.Disarm(ctx, req)
	case ActionPanic:
		return nil, client.Panic(ctx, req)
	case ActionVerify:
		return nil, client.Verify(ctx, req)
	case ActionCancel:
		incident, err := client.Cancel(ctx, req)
		if err != nil || len(incident) == 0 {
			return nil, err
		}

		return incident, nil
	case ActionIncidents:
		return client.ListIncidents(ctx, opts.PlaceID)
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownAction, opts.Action)
	}
}
