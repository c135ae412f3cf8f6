// Package mqtt decodes broker uplink messages and feeds them to the
// ingestion pipeline.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"hydromet-cloud/internal/telemetry/application"
)

// uplinkMessage is the JSON envelope published on a device's uplink topic:
// a receive timestamp and the decoded map of sensor-variable name to value.
type uplinkMessage struct {
	ReceivedAt time.Time      `json:"receivedAt"`
	DeviceID   string         `json:"deviceId"`
	Payload    map[string]any `json:"payload"`
}

// Consumer turns uplink messages into ingestion calls. The broker's
// at-least-once delivery governs redelivery; the consumer never retries.
type Consumer struct {
	ingest  *application.IngestService
	timeout time.Duration
	logger  *slog.Logger
}

// NewConsumer constructs a consumer. Timeout bounds each ingestion call; a
// non-positive value falls back to 30 seconds.
func NewConsumer(ingest *application.IngestService, timeout time.Duration, logger *slog.Logger) (*Consumer, error) {
	if ingest == nil {
		return nil, errors.New("mqtt consumer: nil ingest service")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{ingest: ingest, timeout: timeout, logger: logger}, nil
}

// Handler returns the paho message handler to attach on subscribe.
func (c *Consumer) Handler() paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		c.handle(msg.Topic(), msg.Payload())
	}
}

func (c *Consumer) handle(topic string, payload []byte) {
	var msg uplinkMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		c.logger.Warn("uplink decode failed", "topic", topic, "error", err)
		return
	}
	if msg.DeviceID == "" {
		msg.DeviceID = deviceFromTopic(topic)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	result, err := c.ingest.Ingest(ctx, application.IngestRequest{
		Timestamp: msg.ReceivedAt,
		DeviceID:  msg.DeviceID,
		Payload:   msg.Payload,
	})
	if err != nil {
		c.logger.Warn("uplink rejected", "topic", topic, "device", msg.DeviceID, "error", err)
		return
	}
	c.logger.Debug("uplink ingested",
		"topic", topic, "device", msg.DeviceID, "accepted", len(result.Accepted))
}

// deviceFromTopic extracts the device id from a .../devices/{id}/up topic.
func deviceFromTopic(topic string) string {
	segments := strings.Split(topic, "/")
	for i, segment := range segments {
		if segment == "devices" && i+1 < len(segments) {
			return segments[i+1]
		}
	}
	return ""
}
