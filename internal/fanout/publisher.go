// Package fanout pushes accepted measurement batches to connected listeners.
// Delivery is at-most-once and connected-only: there is no backlog, and the
// absence of listeners is not an error.
package fanout

import (
	"context"
	"log/slog"
	"time"

	telemetry "hydromet-cloud/internal/telemetry/domain"
)

// ChannelName is the event name dashboards subscribe to.
const ChannelName = "new-measurements"

// Batch is one accepted-measurement batch from a single ingested message.
type Batch struct {
	ID       string                      `json:"id"`
	At       time.Time                   `json:"at"`
	Readings []telemetry.AcceptedReading `json:"readings"`
}

// Publisher publishes a batch on the real-time channel. Implementations must
// treat zero listeners as success.
type Publisher interface {
	Publish(ctx context.Context, batch Batch) error
}

// LogPublisher logs batches instead of delivering them. Used in tests and in
// deployments without a push transport.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher constructs a logging publisher.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

// Publish logs the batch and succeeds.
func (p *LogPublisher) Publish(_ context.Context, batch Batch) error {
	p.logger.Debug("fanout batch", "id", batch.ID, "readings", len(batch.Readings))
	return nil
}
