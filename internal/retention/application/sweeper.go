package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"hydromet-cloud/internal/observability/metrics"
	telemetry "hydromet-cloud/internal/telemetry/domain"
)

// DefaultRetention is how long raw measurements are kept before sweeping.
const DefaultRetention = 7 * 24 * time.Hour

// Sweeper prunes aged raw measurements and the quantities they leave
// unreferenced. Measurements go first; quantity orphans only exist after
// their referencing measurements are gone.
type Sweeper struct {
	measurements telemetry.MeasurementRepository
	retention    time.Duration
	logger       *slog.Logger
}

// NewSweeper constructs the sweeper. A non-positive retention falls back to
// DefaultRetention.
func NewSweeper(measurements telemetry.MeasurementRepository, retention time.Duration, logger *slog.Logger) (*Sweeper, error) {
	if measurements == nil {
		return nil, errors.New("sweeper: nil measurement repository")
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{measurements: measurements, retention: retention, logger: logger}, nil
}

// SweepOld removes measurements older than the retention cutoff, then the
// quantities no remaining measurement references. Naturally idempotent.
func (s *Sweeper) SweepOld(ctx context.Context) (telemetry.SweepResult, error) {
	cutoff := time.Now().UTC().Add(-s.retention)
	result, err := s.measurements.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return telemetry.SweepResult{}, fmt.Errorf("sweep: %w", err)
	}
	metrics.ObserveSweep(result.DeletedMeasurements, result.DeletedQuantities)
	s.logger.Info("retention sweep complete",
		"cutoff", cutoff,
		"measurements", result.DeletedMeasurements,
		"quantities", result.DeletedQuantities)
	return result, nil
}

// TruncateRaw empties both raw tables and resets their identities.
// Destructive: the external scheduler must only invoke it right after a
// daily rollup pass, or un-rolled-up raw data is lost.
func (s *Sweeper) TruncateRaw(ctx context.Context) error {
	if err := s.measurements.TruncateAll(ctx); err != nil {
		return fmt.Errorf("truncate raw: %w", err)
	}
	s.logger.Warn("raw measurement store truncated")
	return nil
}
