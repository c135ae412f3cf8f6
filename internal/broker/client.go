// Package broker owns the MQTT connection to one telemetry broker and keeps
// its topic subscriptions reconciled against the roster of operational
// stations.
package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Config describes one broker connection.
type Config struct {
	URL           string
	ClientID      string
	Username      string
	Password      string
	TopicTemplate string
	Interval      time.Duration
	QoS           byte
}

// DefaultTopicTemplate is the per-device uplink topic pattern. {deviceId} is
// substituted with the station's device identifier.
const DefaultTopicTemplate = "v3/hydromet/devices/{deviceId}/up"

// DefaultInterval is the reconciliation period.
const DefaultInterval = 12 * time.Minute

const subscribeTimeout = 5 * time.Second

// TopicForDevice renders the uplink topic for one device.
func TopicForDevice(template, deviceID string) string {
	if template == "" {
		template = DefaultTopicTemplate
	}
	return strings.ReplaceAll(template, "{deviceId}", deviceID)
}

// Connection wraps one paho client with reconnect-aware defaults.
type Connection struct {
	client mqtt.Client
	logger *slog.Logger

	// reconnected is signalled by the on-connect callback so the
	// subscription manager can reconcile immediately after a (re)connect.
	reconnected chan struct{}
}

// NewConnection builds a connection. It does not dial; call Connect.
func NewConnection(cfg Config, logger *slog.Logger) (*Connection, error) {
	if cfg.URL == "" {
		return nil, errors.New("broker: empty url")
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Connection{
		logger:      logger,
		reconnected: make(chan struct{}, 1),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.URL)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		logger.Info("mqtt connected", "broker", cfg.URL)
		select {
		case c.reconnected <- struct{}{}:
		default:
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", "broker", cfg.URL, "error", err)
	})

	c.client = mqtt.NewClient(opts)
	return c, nil
}

// Connect dials the broker, honoring context cancellation.
func (c *Connection) Connect(ctx context.Context) error {
	token := c.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			return nil
		}
		select {
		case <-ctx.Done():
			c.client.Disconnect(0)
			return ctx.Err()
		default:
		}
	}
}

// Close disconnects from the broker.
func (c *Connection) Close() {
	c.client.Disconnect(250)
}
