package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	domainstatistic "hydromet-cloud/internal/analytics/domain/statistic"
	masterdata "hydromet-cloud/internal/masterdata/domain"
	"hydromet-cloud/internal/observability/metrics"
)

// RollupResult reports one daily rollup pass.
type RollupResult struct {
	MigratedCount int
}

// DailyRollupService compacts raw measurements into per-day statistics.
// Each pass resumes strictly after the high-water mark, so re-running with
// no new raw data inserts nothing.
type DailyRollupService struct {
	rollups   domainstatistic.DailyMeasurementRepository
	phenomena masterdata.PhenomenonRepository
	zone      domainstatistic.TimeZone
	logger    *slog.Logger
}

// NewDailyRollupService constructs the rollup job.
func NewDailyRollupService(
	rollups domainstatistic.DailyMeasurementRepository,
	phenomena masterdata.PhenomenonRepository,
	zone domainstatistic.TimeZone,
	logger *slog.Logger,
) (*DailyRollupService, error) {
	if rollups == nil {
		return nil, errors.New("daily rollup service: nil rollup repository")
	}
	if phenomena == nil {
		return nil, errors.New("daily rollup service: nil phenomenon repository")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DailyRollupService{
		rollups:   rollups,
		phenomena: phenomena,
		zone:      zone,
		logger:    logger,
	}, nil
}

// Run executes one rollup pass and returns how many rows it inserted.
// Scheduling is the external invoker's concern; the job never self-schedules.
func (s *DailyRollupService) Run(ctx context.Context) (RollupResult, error) {
	mark, err := s.rollups.HighWaterMark(ctx)
	if err != nil {
		metrics.ObserveRollup(metrics.ResultError, 0)
		return RollupResult{}, fmt.Errorf("daily rollup: high-water mark: %w", err)
	}

	// Raw rows on the high-water day itself are already compacted; the
	// scan starts at the next local day.
	var cutoff time.Time
	if !mark.IsZero() {
		cutoff = s.zone.DayStart(mark).AddDate(0, 0, 1)
	}

	groups, err := s.rollups.AggregateRawAfter(ctx, cutoff)
	if err != nil {
		metrics.ObserveRollup(metrics.ResultError, 0)
		return RollupResult{}, fmt.Errorf("daily rollup: aggregate raw: %w", err)
	}
	if len(groups) == 0 {
		metrics.ObserveRollup(metrics.ResultSuccess, 0)
		return RollupResult{}, nil
	}

	phenomena, err := s.phenomena.ListActive(ctx)
	if err != nil {
		metrics.ObserveRollup(metrics.ResultError, 0)
		return RollupResult{}, fmt.Errorf("daily rollup: list phenomena: %w", err)
	}
	operations := make(map[int64][]domainstatistic.Operation, len(phenomena))
	for _, p := range phenomena {
		operations[p.ID] = registeredOperations(p)
	}

	rows := make([]domainstatistic.DailyMeasurement, 0, len(groups))
	for _, group := range groups {
		for _, op := range operations[group.PhenomenonID] {
			value, ok := group.Value(op)
			if !ok {
				continue
			}
			rows = append(rows, domainstatistic.DailyMeasurement{
				Day:          s.zone.DayStart(group.Day),
				StationID:    group.StationID,
				PhenomenonID: group.PhenomenonID,
				Operation:    op,
				Value:        domainstatistic.Round2(value),
				Active:       true,
			})
		}
	}
	if len(rows) == 0 {
		metrics.ObserveRollup(metrics.ResultSuccess, 0)
		return RollupResult{}, nil
	}

	if err := s.rollups.Insert(ctx, rows); err != nil {
		metrics.ObserveRollup(metrics.ResultError, 0)
		return RollupResult{}, fmt.Errorf("daily rollup: insert: %w", err)
	}

	metrics.ObserveRollup(metrics.ResultSuccess, len(rows))
	s.logger.Info("daily rollup pass complete", "rows", len(rows), "after", cutoff)
	return RollupResult{MigratedCount: len(rows)}, nil
}
