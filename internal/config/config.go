package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config holds the settings of the alarm subsystem service.
type Config struct {
	// ListenAddress is the gRPC listen address.
	ListenAddress string `yaml:"listen_addr" env:"LISTEN_ADDR"`
	// MetricsAddress is the HTTP listen address of /metrics; empty disables it.
	MetricsAddress string `yaml:"metrics_addr" env:"METRICS_ADDR"`
	// LogLevel is the minimum log level.
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`
	// Timeout is the duration for network operations.
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// Store selects where place snapshots live.
	Store StoreConfig `yaml:"store" envPrefix:"STORE_"`
	// Incidents selects where incidents live.
	Incidents IncidentsConfig `yaml:"incidents" envPrefix:"INCIDENTS_"`
	// MQTT configures the device event bridge.
	MQTT MQTTConfig `yaml:"mqtt" envPrefix:"MQTT_"`
	// Monitoring configures the professional monitoring station client.
	Monitoring MonitoringConfig `yaml:"monitoring" envPrefix:"MONITORING_"`
	// Alarm tunes alarm behaviour.
	Alarm AlarmConfig `yaml:"alarm" envPrefix:"ALARM_"`
}

// StoreConfig configures place snapshot persistence.
type StoreConfig struct {
	// Driver is one of file, redis or memory.
	Driver string `yaml:"driver" env:"DRIVER"`
	// Dir is the directory of the file driver.
	Dir string `yaml:"dir" env:"DIR"`
	// RedisAddr is the address of the Redis server.
	RedisAddr string `yaml:"redis_addr" env:"REDIS_ADDR"`
	// RedisPassword authenticates against Redis.
	RedisPassword string `yaml:"redis_password" env:"REDIS_PASSWORD"`
	// RedisDB selects the Redis database.
	RedisDB int `yaml:"redis_db" env:"REDIS_DB"`
	// KeyPrefix prefixes Redis keys.
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
	// TTL expires idle places in Redis; zero keeps them.
	TTL time.Duration `yaml:"ttl" env:"TTL"`
	// IdleTimeout unloads a place from memory after this long without messages.
	IdleTimeout time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
}

// IncidentsConfig configures incident persistence.
type IncidentsConfig struct {
	// Driver is one of postgres or memory.
	Driver string `yaml:"driver" env:"DRIVER"`
	// DSN is the PostgreSQL connection string.
	DSN string `yaml:"dsn" env:"DSN"`
}

// MQTTConfig configures the device bus.
type MQTTConfig struct {
	// Broker is the broker URL, e.g. tcp://localhost:1883; empty disables MQTT.
	Broker string `yaml:"broker" env:"BROKER"`
	// ClientID identifies this service to the broker.
	ClientID string `yaml:"client_id" env:"CLIENT_ID"`
	// Username authenticates against the broker.
	Username string `yaml:"username" env:"USERNAME"`
	// Password authenticates against the broker.
	Password string `yaml:"password" env:"PASSWORD"`
	// TopicPrefix is the root of every topic.
	TopicPrefix string `yaml:"topic_prefix" env:"TOPIC_PREFIX"`
	// QoS is the quality of service of subscriptions and publications.
	QoS byte `yaml:"qos" env:"QOS"`
}

// MonitoringConfig configures the monitoring station.
type MonitoringConfig struct {
	// URL is the base URL of the station API; empty disables dispatching.
	URL string `yaml:"url" env:"URL"`
	// APIKey authenticates against the station.
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// RetryCount is the number of retries of a failed request.
	RetryCount int `yaml:"retry_count" env:"RETRY_COUNT"`
}

// AlarmConfig tunes alarm behaviour.
type AlarmConfig struct {
	// MaxIncidents caps the incident history returned for a place.
	MaxIncidents int `yaml:"max_incidents" env:"MAX_INCIDENTS"`
	// EntranceDelay is the security pre-alert grace period.
	EntranceDelay time.Duration `yaml:"entrance_delay" env:"ENTRANCE_DELAY"`
	// ExitDelay is the security arming grace period.
	ExitDelay time.Duration `yaml:"exit_delay" env:"EXIT_DELAY"`
}

// Store and incident drivers.
const (
	DriverFile     = "file"
	DriverRedis    = "redis"
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

const (
	// DefaultConfigFilename is the default filename for service settings.
	DefaultConfigFilename = "alarm-subsystem.yaml"

	// DefaultStateDir is the default directory of place snapshots.
	DefaultStateDir = "alarm-state"

	// DefaultListenAddress is the default gRPC listen address.
	DefaultListenAddress = ":50051"

	// DefaultTimeout is the default duration for network operations.
	DefaultTimeout = 5 * time.Second

	// DefaultTopicPrefix is the default MQTT topic root.
	DefaultTopicPrefix = "arcus"

	// DefaultMaxIncidents is the default incident history size.
	DefaultMaxIncidents = 25

	// DefaultEntranceDelay is the default security pre-alert grace period.
	DefaultEntranceDelay = 30 * time.Second

	// DefaultExitDelay is the default security arming grace period.
	DefaultExitDelay = 30 * time.Second

	// DefaultIdleTimeout is how long an idle place stays loaded.
	DefaultIdleTimeout = 10 * time.Minute

	// DefaultFilePermissions is the default file permission for config and state files.
	DefaultFilePermissions = 0o600

	// DefaultDirPermissions is the default permission for state directories.
	DefaultDirPermissions = 0o700

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "ALARM_"
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errUnknownDriver is returned for unsupported store or incident drivers.
	errUnknownDriver = errors.New("unknown driver")
	// errRedisAddrRequired is returned when the redis driver has no address.
	errRedisAddrRequired = errors.New("redis address must be provided")
	// errDSNRequired is returned when the postgres driver has no DSN.
	errDSNRequired = errors.New("postgres dsn must be provided")
	// errInvalidQoS is returned for an MQTT QoS outside 0..2.
	errInvalidQoS = errors.New("mqtt qos must be 0, 1 or 2")
)

// Load reads configuration from the provided path, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := ApplyEnv(&cfg); err != nil {
		return nil, err
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ApplyEnv overrides settings with ALARM_* environment variables.
func ApplyEnv(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}

	return nil
}

// Save writes Settings to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions, the file may hold credentials.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided settings and fills in defaults.
func Validate(settings *Config) error {
	if settings == nil {
		return errConfigIsNotSet
	}

	if settings.ListenAddress == "" {
		settings.ListenAddress = DefaultListenAddress
	}

	if _, err := net.ResolveTCPAddr("tcp", settings.ListenAddress); err != nil {
		return fmt.Errorf("invalid listen address: %w", err)
	}

	if settings.MetricsAddress != "" {
		if _, err := net.ResolveTCPAddr("tcp", settings.MetricsAddress); err != nil {
			return fmt.Errorf("invalid metrics address: %w", err)
		}
	}

	// Set default timeout if not specified
	if settings.Timeout <= 0 {
		settings.Timeout = DefaultTimeout
	}

	if err := validateStore(&settings.Store); err != nil {
		return err
	}

	if err := validateIncidents(&settings.Incidents); err != nil {
		return err
	}

	if err := validateMQTT(&settings.MQTT); err != nil {
		return err
	}

	if settings.Monitoring.URL != "" {
		if _, err := url.ParseRequestURI(settings.Monitoring.URL); err != nil {
			return fmt.Errorf("invalid monitoring URL: %w", err)
		}
	}

	if settings.Alarm.MaxIncidents <= 0 {
		settings.Alarm.MaxIncidents = DefaultMaxIncidents
	}

	if settings.Alarm.EntranceDelay <= 0 {
		settings.Alarm.EntranceDelay = DefaultEntranceDelay
	}

	if settings.Alarm.ExitDelay <= 0 {
		settings.Alarm.ExitDelay = DefaultExitDelay
	}

	return nil
}

func validateStore(store *StoreConfig) error {
	switch store.Driver {
	case "", DriverFile:
		store.Driver = DriverFile

		if store.Dir == "" {
			store.Dir = DefaultStateDir
		}
	case DriverRedis:
		if store.RedisAddr == "" {
			return errRedisAddrRequired
		}
	case DriverMemory:
	default:
		return fmt.Errorf("store: %w %q", errUnknownDriver, store.Driver)
	}

	if store.IdleTimeout <= 0 {
		store.IdleTimeout = DefaultIdleTimeout
	}

	return nil
}

func validateIncidents(incidents *IncidentsConfig) error {
	switch incidents.Driver {
	case "", DriverMemory:
		incidents.Driver = DriverMemory
	case DriverPostgres:
		if incidents.DSN == "" {
			return errDSNRequired
		}
	default:
		return fmt.Errorf("incidents: %w %q", errUnknownDriver, incidents.Driver)
	}

	return nil
}

func validateMQTT(mqtt *MQTTConfig) error {
	if mqtt.Broker == "" {
		return nil
	}

	if _, err := url.Parse(mqtt.Broker); err != nil {
		return fmt.Errorf("invalid mqtt broker: %w", err)
	}

	if mqtt.QoS > 2 { //nolint:mnd // MQTT defines three QoS levels.
		return errInvalidQoS
	}

	if mqtt.TopicPrefix == "" {
		mqtt.TopicPrefix = DefaultTopicPrefix
	}

	if mqtt.ClientID == "" {
		mqtt.ClientID = "alarm-subsystem"
	}

	return nil
}
