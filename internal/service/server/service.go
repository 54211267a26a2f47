package server

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/oshokin/alarm-subsystem/internal/alarms"
	"github.com/oshokin/alarm-subsystem/internal/config"
	"github.com/oshokin/alarm-subsystem/internal/incident"
	"github.com/oshokin/alarm-subsystem/internal/logger"
	"github.com/oshokin/alarm-subsystem/internal/metrics"
	"github.com/oshokin/alarm-subsystem/internal/monitoring"
	incidents "github.com/oshokin/alarm-subsystem/internal/repository/incident"
	state "github.com/oshokin/alarm-subsystem/internal/repository/state"
	"github.com/oshokin/alarm-subsystem/internal/subsystem"
	"github.com/oshokin/alarm-subsystem/internal/transport/mqtt"
)

// engine holds the wired alarm subsystem and everything it must release.
type engine struct {
	registry  *subsystem.Registry
	subsystem *alarms.Subsystem
	incidents *incident.Service
	metrics   *metrics.Metrics
	bridge    *mqtt.Bridge

	closers []func()
}

// newEngine wires stores, the incident service and the place registry from settings.
func newEngine(ctx context.Context, settings *config.Config, m *metrics.Metrics) (*engine, error) {
	e := &engine{metrics: m}

	placeStore, err := e.newStateStore(ctx, &settings.Store)
	if err != nil {
		e.close()

		return nil, err
	}

	incidentStore, err := e.newIncidentStore(ctx, &settings.Incidents)
	if err != nil {
		e.close()

		return nil, err
	}

	serviceOptions := []incident.Option{
		incident.WithMaxIncidents(settings.Alarm.MaxIncidents),
		incident.WithMetrics(m),
		incident.WithPoster(incident.PosterFunc(func(ctx context.Context, msg subsystem.Message) error {
			return e.registry.Submit(ctx, msg)
		})),
	}

	if settings.Monitoring.URL != "" {
		client := monitoring.NewClient(settings.Monitoring.URL,
			monitoring.WithAPIKey(settings.Monitoring.APIKey),
			monitoring.WithTimeout(settings.Timeout),
			monitoring.WithRetryCount(settings.Monitoring.RetryCount),
		)

		serviceOptions = append(serviceOptions, incident.WithMonitor(client))
	}

	e.incidents = incident.NewService(incidentStore, serviceOptions...)
	e.subsystem = alarms.New(e.incidents,
		alarms.WithSettings(alarms.Settings{
			EntranceDelay: settings.Alarm.EntranceDelay,
			ExitDelay:     settings.Alarm.ExitDelay,
		}),
		alarms.WithMetrics(m),
	)

	var sender subsystem.Sender = subsystem.SenderFunc(logSend)

	if settings.MQTT.Broker != "" {
		e.bridge = mqtt.NewBridge(mqtt.NewClient(settings.MQTT),
			mqtt.WithTopicPrefix(settings.MQTT.TopicPrefix),
			mqtt.WithQoS(settings.MQTT.QoS),
			mqtt.WithTimeout(settings.Timeout),
		)
		sender = e.bridge
	}

	e.registry = subsystem.NewRegistry(ctx, placeStore, instrumented{e.subsystem, m}, sender,
		subsystem.WithIdleTimeout(settings.Store.IdleTimeout),
	)

	return e, nil
}

func (e *engine) newStateStore(ctx context.Context, cfg *config.StoreConfig) (state.Repository, error) {
	switch cfg.Driver {
	case config.DriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		e.closers = append(e.closers, func() { _ = client.Close() })

		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
		}

		return state.NewRedisRepository(client, cfg.KeyPrefix, cfg.TTL), nil
	case config.DriverMemory:
		return state.NewMemoryRepository(), nil
	default:
		return state.NewFileRepository(cfg.Dir), nil
	}
}

func (e *engine) newIncidentStore(ctx context.Context, cfg *config.IncidentsConfig) (incidents.Repository, error) {
	if cfg.Driver != config.DriverPostgres {
		return incidents.NewMemoryRepository(), nil
	}

	db, err := incidents.OpenPostgres(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}

	e.closers = append(e.closers, func() { _ = db.Close() })

	repo := incidents.NewPostgresRepository(db)
	if err = repo.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate incidents: %w", err)
	}

	return repo, nil
}

// close stops the registry, waits for pending incident work and releases stores.
func (e *engine) close() {
	if e.bridge != nil {
		e.bridge.Close()
	}

	if e.incidents != nil {
		e.incidents.Wait()
	}

	if e.registry != nil {
		e.registry.Close()
	}

	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

// instrumented counts handled messages per type and outcome.
type instrumented struct {
	subsystem.Handler

	metrics *metrics.Metrics
}

func (h instrumented) Handle(c subsystem.Context, msg subsystem.Message) error {
	err := h.Handler.Handle(c, msg)
	h.metrics.MessageHandled(msg.Type, err)

	return err
}

// logSend stands in for the device bus when MQTT is not configured.
func logSend(ctx context.Context, msg subsystem.Message) error {
	logger.InfoKV(ctx, "Outbound message",
		"type", msg.Type,
		"place_id", msg.PlaceID,
		"destination", msg.Destination.String(),
		"attributes", msg.Attributes,
	)

	return nil
}
