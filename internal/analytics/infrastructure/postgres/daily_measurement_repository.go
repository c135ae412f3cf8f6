package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	domainstatistic "hydromet-cloud/internal/analytics/domain/statistic"
)

const (
	defaultDailyTable       = "daily_measurements"
	defaultMeasurementTable = "measurements"
	defaultQuantityTable    = "quantities"
)

// DailyMeasurementRepository is the Postgres implementation for per-day
// rollup rows and the grouped one-pass aggregation feeding them.
type DailyMeasurementRepository struct {
	db               *sql.DB
	dailyTable       string
	measurementTable string
	quantityTable    string
	zone             domainstatistic.TimeZone
}

// NewDailyMeasurementRepository constructs a repository with default table
// names and UTC day boundaries.
func NewDailyMeasurementRepository(db *sql.DB, opts ...RepositoryOption) *DailyMeasurementRepository {
	repo := &DailyMeasurementRepository{
		db:               db,
		dailyTable:       defaultDailyTable,
		measurementTable: defaultMeasurementTable,
		quantityTable:    defaultQuantityTable,
	}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// RepositoryOption configures the repository.
type RepositoryOption func(*DailyMeasurementRepository)

// WithDailyTable overrides the default rollup table name.
func WithDailyTable(table string) RepositoryOption {
	return func(repo *DailyMeasurementRepository) {
		if table != "" {
			repo.dailyTable = table
		}
	}
}

// WithTimeZone sets the zone resolving local-day boundaries.
func WithTimeZone(zone domainstatistic.TimeZone) RepositoryOption {
	return func(repo *DailyMeasurementRepository) {
		repo.zone = zone
	}
}

// HighWaterMark returns the latest rolled-up day as local midnight, or the
// zero time when no rollup rows exist.
func (r *DailyMeasurementRepository) HighWaterMark(ctx context.Context) (time.Time, error) {
	if r == nil || r.db == nil {
		return time.Time{}, errors.New("daily repo: nil db")
	}

	query := fmt.Sprintf(`SELECT MAX(day) FROM %s`, r.dailyTable)
	var mark sql.NullTime
	if err := r.db.QueryRowContext(ctx, query).Scan(&mark); err != nil {
		return time.Time{}, err
	}
	if !mark.Valid {
		return time.Time{}, nil
	}
	return r.localDay(mark.Time), nil
}

// AggregateRawAfter groups raw measurements with timestamp at or after the
// cutoff by (local day, station, phenomenon), computing count, average, max,
// min and sum in one pass. A zero cutoff scans everything.
func (r *DailyMeasurementRepository) AggregateRawAfter(ctx context.Context, cutoff time.Time) ([]domainstatistic.RawDayGroup, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("daily repo: nil db")
	}

	offset := r.offsetInterval()
	query := fmt.Sprintf(`
SELECT
	date_trunc('day', m.ts + $2::interval) AS day,
	m.station_id,
	m.phenomenon_id,
	COUNT(q.value),
	AVG(q.value),
	MAX(q.value),
	MIN(q.value),
	SUM(q.value)
FROM %s m
JOIN %s q ON q.id = m.quantity_id
WHERE m.ts >= $1
GROUP BY 1, 2, 3
ORDER BY 1, 2, 3`, r.measurementTable, r.quantityTable)

	rows, err := r.db.QueryContext(ctx, query, cutoff, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	groups := make([]domainstatistic.RawDayGroup, 0)
	for rows.Next() {
		var group domainstatistic.RawDayGroup
		var day time.Time
		if err := rows.Scan(
			&day,
			&group.StationID,
			&group.PhenomenonID,
			&group.Count,
			&group.Average,
			&group.Max,
			&group.Min,
			&group.Sum,
		); err != nil {
			return nil, err
		}
		group.Day = r.localDay(day)
		groups = append(groups, group)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return groups, nil
}

// Insert appends rollup rows. Conflicting (day, station, phenomenon,
// operation) keys are left untouched; rows are append-only.
func (r *DailyMeasurementRepository) Insert(ctx context.Context, rows []domainstatistic.DailyMeasurement) error {
	if r == nil || r.db == nil {
		return errors.New("daily repo: nil db")
	}
	if len(rows) == 0 {
		return nil
	}

	query := fmt.Sprintf(`
INSERT INTO %s (day, station_id, phenomenon_id, operation, value, active)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (day, station_id, phenomenon_id, operation) DO NOTHING`, r.dailyTable)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, row := range rows {
		if err := row.Validate(); err != nil {
			_ = tx.Rollback()
			return err
		}
		if _, err := stmt.ExecContext(
			ctx,
			row.Day,
			row.StationID,
			row.PhenomenonID,
			row.Operation.String(),
			row.Value,
			row.Active,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// ListSince returns rollup rows for days at or after the given day.
func (r *DailyMeasurementRepository) ListSince(ctx context.Context, day time.Time) ([]domainstatistic.DailyMeasurement, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("daily repo: nil db")
	}

	query := fmt.Sprintf(`
SELECT id, day, station_id, phenomenon_id, operation, value, active
FROM %s
WHERE day >= $1
ORDER BY day ASC, station_id ASC`, r.dailyTable)

	rows, err := r.db.QueryContext(ctx, query, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domainstatistic.DailyMeasurement, 0)
	for rows.Next() {
		var row domainstatistic.DailyMeasurement
		var rowDay time.Time
		var operation string
		if err := rows.Scan(
			&row.ID,
			&rowDay,
			&row.StationID,
			&row.PhenomenonID,
			&operation,
			&row.Value,
			&row.Active,
		); err != nil {
			return nil, err
		}
		op, err := domainstatistic.ParseOperation(operation)
		if err != nil {
			return nil, fmt.Errorf("daily repo: row %d: %w", row.ID, err)
		}
		row.Operation = op
		row.Day = r.localDay(rowDay)
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// localDay rebuilds a scanned day as midnight in the configured zone. DATE
// columns come back anchored to UTC regardless of the deployment zone.
func (r *DailyMeasurementRepository) localDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, r.zone.Location())
}

// offsetInterval renders the zone offset as a Postgres interval literal, so
// day grouping in SQL matches local-day boundaries.
func (r *DailyMeasurementRepository) offsetInterval() string {
	_, seconds := time.Now().In(r.zone.Location()).Zone()
	return fmt.Sprintf("%d seconds", seconds)
}
