package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	domainstatistic "hydromet-cloud/internal/analytics/domain/statistic"
	masterdata "hydromet-cloud/internal/masterdata/domain"
	telemetry "hydromet-cloud/internal/telemetry/domain"
)

// BucketQuery is one aggregation request. StationID zero means all
// operational stations.
type BucketQuery struct {
	Scale     domainstatistic.Scale
	StationID int64
}

// BucketResult holds the statistics of one station within one time bucket.
// Measures maps phenomenon name to the values of its registered operations,
// keyed by persisted operation identifier.
type BucketResult struct {
	BucketStart time.Time
	StationName string
	Measures    map[string]map[string]float64
}

// BucketQueryService is the read-only time-bucket aggregator. Sub-day scales
// aggregate raw measurements on the fly; the day scale merges precomputed
// rollup rows with on-the-fly aggregation of days not yet rolled up.
type BucketQueryService struct {
	measurements telemetry.MeasurementRepository
	rollups      domainstatistic.DailyMeasurementRepository
	stations     masterdata.StationRepository
	phenomena    masterdata.PhenomenonRepository
	zone         domainstatistic.TimeZone
	clock        domainstatistic.Clock
	logger       *slog.Logger
}

// NewBucketQueryService constructs the aggregator.
func NewBucketQueryService(
	measurements telemetry.MeasurementRepository,
	rollups domainstatistic.DailyMeasurementRepository,
	stations masterdata.StationRepository,
	phenomena masterdata.PhenomenonRepository,
	zone domainstatistic.TimeZone,
	clock domainstatistic.Clock,
	logger *slog.Logger,
) (*BucketQueryService, error) {
	if measurements == nil {
		return nil, errors.New("bucket query service: nil measurement repository")
	}
	if rollups == nil {
		return nil, errors.New("bucket query service: nil rollup repository")
	}
	if stations == nil {
		return nil, errors.New("bucket query service: nil station repository")
	}
	if phenomena == nil {
		return nil, errors.New("bucket query service: nil phenomenon repository")
	}
	if clock == nil {
		clock = domainstatistic.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BucketQueryService{
		measurements: measurements,
		rollups:      rollups,
		stations:     stations,
		phenomena:    phenomena,
		zone:         zone,
		clock:        clock,
		logger:       logger,
	}, nil
}

// masterIndex is the masterdata snapshot one query pass works against.
type masterIndex struct {
	stationNames    map[int64]string
	phenomenonNames map[int64]string
	operations      map[int64][]domainstatistic.Operation
}

type bucketKey struct {
	start   time.Time
	station int64
}

// Query runs one aggregation pass. Results are ordered by bucket start, then
// station name.
func (s *BucketQueryService) Query(ctx context.Context, q BucketQuery) ([]BucketResult, error) {
	if _, err := domainstatistic.ParseScale(string(q.Scale)); err != nil {
		return nil, err
	}

	index, err := s.loadIndex(ctx, q.StationID)
	if err != nil {
		return nil, err
	}

	since := s.zone.DayStart(s.clock.Now().Add(-q.Scale.Lookback()))

	var rollupRows []domainstatistic.DailyMeasurement
	if q.Scale == domainstatistic.ScaleDay {
		rollupRows, err = s.rollups.ListSince(ctx, since)
		if err != nil {
			return nil, fmt.Errorf("bucket query: rollup scan: %w", err)
		}
	}
	rolledDays := make(map[time.Time]bool, len(rollupRows))
	for _, row := range rollupRows {
		rolledDays[s.zone.DayStart(row.Day)] = true
	}

	points, err := s.measurements.QueryRawSince(ctx, since, q.StationID)
	if err != nil {
		return nil, fmt.Errorf("bucket query: raw scan: %w", err)
	}

	buckets := make(map[bucketKey]map[int64]*domainstatistic.Accumulator)
	for _, point := range points {
		if _, ok := index.stationNames[point.StationID]; !ok {
			continue
		}
		start := s.zone.BucketStart(point.TS, q.Scale)
		if rolledDays[s.zone.DayStart(point.TS)] {
			// The day is already rolled up; its raw rows are answered
			// from the rollup store.
			continue
		}
		key := bucketKey{start: start, station: point.StationID}
		group := buckets[key]
		if group == nil {
			group = make(map[int64]*domainstatistic.Accumulator)
			buckets[key] = group
		}
		acc := group[point.PhenomenonID]
		if acc == nil {
			acc = &domainstatistic.Accumulator{}
			group[point.PhenomenonID] = acc
		}
		acc.Add(point.Value)
	}

	measures := make(map[bucketKey]map[string]map[string]float64, len(buckets))
	for key, group := range buckets {
		bucketMeasures := make(map[string]map[string]float64, len(group))
		for phenomenonID, acc := range group {
			values := make(map[string]float64)
			for _, op := range index.operations[phenomenonID] {
				if value, ok := acc.Value(op); ok {
					values[op.String()] = value
				}
			}
			if len(values) == 0 {
				continue
			}
			bucketMeasures[index.phenomenonNames[phenomenonID]] = values
		}
		if len(bucketMeasures) > 0 {
			measures[key] = bucketMeasures
		}
	}

	// Overlay precomputed rollup rows; they take precedence for
	// overlapping (day, station) keys.
	for _, row := range rollupRows {
		if _, ok := index.stationNames[row.StationID]; !ok {
			continue
		}
		phenomenonName, ok := index.phenomenonNames[row.PhenomenonID]
		if !ok {
			continue
		}
		key := bucketKey{start: s.zone.DayStart(row.Day), station: row.StationID}
		bucketMeasures := measures[key]
		if bucketMeasures == nil {
			bucketMeasures = make(map[string]map[string]float64)
			measures[key] = bucketMeasures
		}
		values := bucketMeasures[phenomenonName]
		if values == nil {
			values = make(map[string]float64)
			bucketMeasures[phenomenonName] = values
		}
		values[row.Operation.String()] = row.Value
	}

	results := make([]BucketResult, 0, len(measures))
	for key, bucketMeasures := range measures {
		results = append(results, BucketResult{
			BucketStart: key.start,
			StationName: index.stationNames[key.station],
			Measures:    bucketMeasures,
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if !results[i].BucketStart.Equal(results[j].BucketStart) {
			return results[i].BucketStart.Before(results[j].BucketStart)
		}
		return results[i].StationName < results[j].StationName
	})
	return results, nil
}

func (s *BucketQueryService) loadIndex(ctx context.Context, stationID int64) (masterIndex, error) {
	operational, err := s.stations.ListOperative(ctx)
	if err != nil {
		return masterIndex{}, fmt.Errorf("bucket query: list stations: %w", err)
	}
	phenomena, err := s.phenomena.ListActive(ctx)
	if err != nil {
		return masterIndex{}, fmt.Errorf("bucket query: list phenomena: %w", err)
	}

	index := masterIndex{
		stationNames:    make(map[int64]string, len(operational)),
		phenomenonNames: make(map[int64]string, len(phenomena)),
		operations:      make(map[int64][]domainstatistic.Operation, len(phenomena)),
	}
	for _, st := range operational {
		if stationID != 0 && st.ID != stationID {
			continue
		}
		index.stationNames[st.ID] = st.Name
	}
	for _, p := range phenomena {
		index.phenomenonNames[p.ID] = p.Name
		index.operations[p.ID] = registeredOperations(p)
	}
	return index, nil
}

func registeredOperations(p masterdata.PhenomenonType) []domainstatistic.Operation {
	ops := make([]domainstatistic.Operation, 0, len(p.Operations))
	seen := make(map[domainstatistic.Operation]bool, len(p.Operations))
	for _, id := range p.Operations {
		op, err := domainstatistic.ParseOperation(id)
		if err != nil || seen[op] {
			continue
		}
		seen[op] = true
		ops = append(ops, op)
	}
	return ops
}
