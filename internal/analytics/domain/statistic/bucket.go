package statistic

import (
	"errors"
	"time"
)

// Scale is the width of an aggregation bucket.
type Scale string

const (
	ScaleFifteenMinutes Scale = "15m"
	ScaleThirtyMinutes  Scale = "30m"
	ScaleHour           Scale = "1h"
	ScaleDay            Scale = "1d"
)

// ErrInvalidScale is returned for an unknown scale token.
var ErrInvalidScale = errors.New("statistic: invalid scale")

// ParseScale validates a scale token.
func ParseScale(token string) (Scale, error) {
	switch Scale(token) {
	case ScaleFifteenMinutes, ScaleThirtyMinutes, ScaleHour, ScaleDay:
		return Scale(token), nil
	}
	return "", ErrInvalidScale
}

// Width returns the bucket width. The day scale has no sub-day width.
func (s Scale) Width() time.Duration {
	switch s {
	case ScaleFifteenMinutes:
		return 15 * time.Minute
	case ScaleThirtyMinutes:
		return 30 * time.Minute
	case ScaleHour:
		return time.Hour
	}
	return 24 * time.Hour
}

// Lookback returns how far back raw data is scanned for the scale. Sub-hour
// and hourly views serve short-horizon dashboards; the daily view reaches
// further back because most of it is answered from rollups.
func (s Scale) Lookback() time.Duration {
	if s == ScaleDay {
		return 14 * 24 * time.Hour
	}
	return 3 * 24 * time.Hour
}

// TimeZone resolves bucket and day boundaries. Ingestion calibration and
// aggregation bucketing must share one instance so both sides agree on
// where a local day starts.
type TimeZone struct {
	loc *time.Location
}

// NewTimeZone builds a zone from a fixed UTC offset in minutes.
func NewTimeZone(offsetMinutes int) TimeZone {
	if offsetMinutes == 0 {
		return TimeZone{loc: time.UTC}
	}
	return TimeZone{loc: time.FixedZone("local", offsetMinutes*60)}
}

// Location returns the underlying location, defaulting to UTC.
func (z TimeZone) Location() *time.Location {
	if z.loc == nil {
		return time.UTC
	}
	return z.loc
}

// DayStart truncates a timestamp to the start of its local day.
func (z TimeZone) DayStart(t time.Time) time.Time {
	local := t.In(z.Location())
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, z.Location())
}

// BucketStart floors a timestamp to the start of its containing bucket:
// minutes since the local midnight, floor-divided by the bucket width.
func (z TimeZone) BucketStart(t time.Time, scale Scale) time.Time {
	day := z.DayStart(t)
	if scale == ScaleDay {
		return day
	}
	width := scale.Width()
	elapsed := t.In(z.Location()).Sub(day)
	return day.Add(elapsed / width * width)
}
