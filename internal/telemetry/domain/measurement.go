package telemetry

import (
	"context"
	"errors"
	"time"
)

// Quantity is the raw numeric value container referenced by exactly one
// measurement. Created by ingestion, never updated, deleted only by the
// retention sweeper once unreferenced.
type Quantity struct {
	ID     int64
	Value  float64
	Active bool
}

// Measurement is one timestamped observation of one phenomenon at one
// station. Immutable once created.
type Measurement struct {
	ID           int64
	StationID    int64
	PhenomenonID int64
	QuantityID   int64
	TS           time.Time
	Active       bool
}

// Validate checks measurement invariants prior to persistence.
func (m Measurement) Validate() error {
	if m.StationID == 0 {
		return errors.New("measurement: empty station id")
	}
	if m.PhenomenonID == 0 {
		return errors.New("measurement: empty phenomenon id")
	}
	if m.TS.IsZero() {
		return errors.New("measurement: zero timestamp")
	}
	return nil
}

// RawPoint is one raw reading loaded for on-the-fly aggregation.
type RawPoint struct {
	StationID      int64
	StationName    string
	PhenomenonID   int64
	PhenomenonName string
	TS             time.Time
	Value          float64
}

// SweepResult reports what a retention pass removed.
type SweepResult struct {
	DeletedMeasurements int64
	DeletedQuantities   int64
}

// MeasurementRepository owns the raw measurement and quantity tables.
type MeasurementRepository interface {
	// InsertWithQuantity writes the quantity and its measurement in one
	// atomic unit; on failure neither row persists.
	InsertWithQuantity(ctx context.Context, m Measurement, value float64) error
	// QueryRawSince loads raw points with timestamp at or after the cutoff,
	// optionally restricted to one station id (0 means all).
	QueryRawSince(ctx context.Context, since time.Time, stationID int64) ([]RawPoint, error)
	// DeleteOlderThan removes measurements older than the cutoff, then
	// quantities left unreferenced. Returns both counts.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (SweepResult, error)
	// TruncateAll empties both tables and resets their identity sequences.
	TruncateAll(ctx context.Context) error
}
