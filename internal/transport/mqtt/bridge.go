package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/oshokin/alarm-subsystem/internal/config"
	"github.com/oshokin/alarm-subsystem/internal/logger"
	"github.com/oshokin/alarm-subsystem/internal/subsystem"
)

const (
	topicPlace   = "place"
	topicEvent   = "event"
	topicCommand = "command"

	disconnectQuiesce = 250
	defaultTimeout    = 5 * time.Second
	maxRetryInterval  = 30 * time.Second
)

// ErrTimeout is returned when the broker does not acknowledge in time.
var ErrTimeout = errors.New("mqtt operation timed out")

// Client is the part of the paho client the bridge uses.
type Client interface {
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload any) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

// Submitter queues a message for its place.
type Submitter interface {
	Submit(ctx context.Context, msg subsystem.Message) error
}

// Bridge connects the broker to the place executors.
type Bridge struct {
	client  Client
	prefix  string
	qos     byte
	timeout time.Duration
	backOff func() backoff.BackOff
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithTopicPrefix sets the root of every topic.
func WithTopicPrefix(prefix string) Option {
	return func(b *Bridge) {
		b.prefix = strings.TrimSuffix(prefix, "/")
	}
}

// WithQoS sets the quality of service of subscriptions and publications.
func WithQoS(qos byte) Option {
	return func(b *Bridge) {
		b.qos = qos
	}
}

// WithTimeout bounds every broker operation.
func WithTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithBackOff overrides the connect retry policy.
func WithBackOff(policy func() backoff.BackOff) Option {
	return func(b *Bridge) {
		b.backOff = policy
	}
}

// NewClient creates a paho client from the configuration.
func NewClient(cfg config.MQTTConfig) paho.Client { //nolint:ireturn // paho only exposes the interface.
	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetCleanSession(true).
		SetConnectRetry(false)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}

	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	return paho.NewClient(opts)
}

// NewBridge creates a bridge over client.
func NewBridge(client Client, options ...Option) *Bridge {
	b := &Bridge{
		client:  client,
		prefix:  config.DefaultTopicPrefix,
		timeout: defaultTimeout,
		backOff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.MaxInterval = maxRetryInterval
			bo.MaxElapsedTime = 0

			return bo
		},
	}

	for _, o := range options {
		o(b)
	}

	return b
}

// EventTopic returns the topic device events of a place are published on.
func (b *Bridge) EventTopic(placeID string) string {
	return strings.Join([]string{b.prefix, topicPlace, placeID, topicEvent}, "/")
}

// CommandTopic returns the topic messages of a place are published on.
func (b *Bridge) CommandTopic(placeID string) string {
	return strings.Join([]string{b.prefix, topicPlace, placeID, topicCommand}, "/")
}

// Start connects to the broker, retrying until ctx is done, and submits
// every device event to submitter.
func (b *Bridge) Start(ctx context.Context, submitter Submitter) error {
	connect := func() error {
		return b.wait(b.client.Connect())
	}

	notify := func(err error, next time.Duration) {
		logger.WarnKV(ctx, "Failed to connect to MQTT broker", "error", err, "retry_in", next)
	}

	if err := backoff.RetryNotify(connect, backoff.WithContext(b.backOff(), ctx), notify); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	filter := strings.Join([]string{b.prefix, topicPlace, "+", topicEvent}, "/")

	handler := func(_ paho.Client, m paho.Message) {
		b.onMessage(ctx, submitter, m.Topic(), m.Payload())
	}

	if err := b.wait(b.client.Subscribe(filter, b.qos, handler)); err != nil {
		return fmt.Errorf("subscribe %s: %w", filter, err)
	}

	logger.InfoKV(ctx, "MQTT bridge started", "filter", filter)

	return nil
}

// Send implements subsystem.Sender.
func (b *Bridge) Send(_ context.Context, msg subsystem.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Type, err)
	}

	topic := b.CommandTopic(msg.PlaceID)
	if err = b.wait(b.client.Publish(topic, b.qos, false, payload)); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	return nil
}

// Close disconnects from the broker.
func (b *Bridge) Close() {
	b.client.Disconnect(disconnectQuiesce)
}

func (b *Bridge) onMessage(ctx context.Context, submitter Submitter, topic string, payload []byte) {
	placeID, ok := b.placeOf(topic)
	if !ok {
		logger.WarnKV(ctx, "Ignoring message on unexpected topic", "topic", topic)

		return
	}

	var msg subsystem.Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		logger.WarnKV(ctx, "Ignoring malformed device event", "topic", topic, "error", err)

		return
	}

	msg.PlaceID = placeID

	if err := submitter.Submit(ctx, msg); err != nil {
		logger.WarnKV(ctx, "Failed to submit device event", "place_id", placeID, "type", msg.Type, "error", err)
	}
}

// placeOf extracts the place id from <prefix>/place/<id>/event.
func (b *Bridge) placeOf(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, b.prefix+"/"+topicPlace+"/")
	if !ok {
		return "", false
	}

	placeID, suffix, ok := strings.Cut(rest, "/")
	if !ok || suffix != topicEvent || placeID == "" {
		return "", false
	}

	return placeID, true
}

func (b *Bridge) wait(token paho.Token) error {
	if !token.WaitTimeout(b.timeout) {
		return ErrTimeout
	}

	return token.Error()
}
