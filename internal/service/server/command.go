package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"google.golang.org/grpc"

	api "github.com/oshokin/alarm-subsystem/internal/api/grpc/alarm"
	"github.com/oshokin/alarm-subsystem/internal/config"
	"github.com/oshokin/alarm-subsystem/internal/logger"
	"github.com/oshokin/alarm-subsystem/internal/metrics"
	"github.com/oshokin/alarm-subsystem/internal/version"
)

// Options controls the alarm-subsystem process.
type Options struct {
	// ConfigPath specifies the path to settings YAML file.
	ConfigPath string
	// ListenAddress overrides the gRPC listen address from settings.
	ListenAddress string
}

const shutdownTimeout = 5 * time.Second

// Run starts the engine and its gRPC and metrics listeners, and blocks until
// ctx is canceled or a listener fails.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "alarm-subsystem")
	logger.InfoKV(ctx, "Starting alarm subsystem", version.KV()...)

	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	if opts.ListenAddress != "" {
		settings.ListenAddress = opts.ListenAddress
	}

	if level, ok := logger.ParseLogLevel(settings.LogLevel); ok {
		logger.SetLevel(level)
	}

	m := metrics.New()

	e, err := newEngine(ctx, settings, m)
	if err != nil {
		return fmt.Errorf("initialise engine: %w", err)
	}
	defer e.close()

	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", settings.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", settings.ListenAddress, err)
	}

	grpcServer := grpc.NewServer()
	api.RegisterAlarmSubsystemServer(grpcServer, api.NewServer(e.registry, e.subsystem))

	errs := make(chan error, 2) //nolint:mnd // One slot per listener.

	if e.bridge != nil {
		go func() {
			if err := e.bridge.Start(ctx, e.registry); err != nil && ctx.Err() == nil {
				logger.ErrorKV(ctx, "MQTT bridge failed", "error", err)
			}
		}()
	}

	var metricsServer *http.Server

	if settings.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())

		metricsServer = &http.Server{
			Addr:              settings.MetricsAddress,
			Handler:           mux,
			ReadHeaderTimeout: settings.Timeout,
		}

		go func() {
			logger.InfoKV(ctx, "Metrics listening", "metrics_address", settings.MetricsAddress)

			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errs <- fmt.Errorf("serve metrics: %w", err)
			}
		}()
	}

	go func() {
		logger.InfoKV(ctx, "Alarm subsystem listening",
			"listen_address", settings.ListenAddress,
			"store", settings.Store.Driver,
			"incidents", settings.Incidents.Driver,
		)

		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errs <- fmt.Errorf("serve gRPC: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err = <-errs:
	}

	logger.Info(ctx, "Shutting down")
	grpcServer.GracefulStop()

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		_ = metricsServer.Shutdown(shutdownCtx)
	}

	logger.Info(ctx, "Alarm subsystem stopped")

	return err
}
