package statistic

import (
	"context"
	"errors"
	"time"
)

// DailyMeasurement is one precomputed per-day statistic. Rows are append-only
// and there is at most one per (day, station, phenomenon, operation).
type DailyMeasurement struct {
	ID           int64
	Day          time.Time
	StationID    int64
	PhenomenonID int64
	Operation    Operation
	Value        float64
	Active       bool
}

// Validate checks rollup row invariants.
func (d DailyMeasurement) Validate() error {
	if d.Day.IsZero() {
		return errors.New("daily measurement: zero day")
	}
	if d.StationID == 0 {
		return errors.New("daily measurement: empty station id")
	}
	if d.PhenomenonID == 0 {
		return errors.New("daily measurement: empty phenomenon id")
	}
	if !d.Operation.IsValid() {
		return errors.New("daily measurement: invalid operation")
	}
	return nil
}

// RawDayGroup is the one-pass aggregation of raw measurements for one
// (day, station, phenomenon) group past the high-water mark.
type RawDayGroup struct {
	Day          time.Time
	StationID    int64
	PhenomenonID int64
	Count        int64
	Average      float64
	Max          float64
	Min          float64
	Sum          float64
}

// Value returns the group's value for one operation.
func (g RawDayGroup) Value(op Operation) (float64, bool) {
	if g.Count == 0 {
		return 0, false
	}
	switch op {
	case OperationAverage:
		return g.Average, true
	case OperationMax:
		return g.Max, true
	case OperationMin:
		return g.Min, true
	case OperationSum:
		return g.Sum, true
	}
	return 0, false
}

// DailyMeasurementRepository persists and reads per-day rollup rows.
type DailyMeasurementRepository interface {
	// HighWaterMark returns the latest rolled-up day, or the zero time when
	// no rollup rows exist yet.
	HighWaterMark(ctx context.Context) (time.Time, error)
	// AggregateRawAfter groups raw measurements with timestamp at or after
	// the cutoff by (day, station, phenomenon). A zero cutoff scans all rows.
	AggregateRawAfter(ctx context.Context, cutoff time.Time) ([]RawDayGroup, error)
	Insert(ctx context.Context, rows []DailyMeasurement) error
	// ListSince returns rollup rows for days at or after the given day.
	ListSince(ctx context.Context, day time.Time) ([]DailyMeasurement, error)
}
