package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	telemetry "hydromet-cloud/internal/telemetry/domain"
)

const (
	defaultMeasurementTable = "measurements"
	defaultQuantityTable    = "quantities"
	defaultStationTable     = "stations"
	defaultPhenomenonTable  = "phenomenon_types"
)

// MeasurementRepository is the Postgres implementation owning the raw
// measurement and quantity tables.
type MeasurementRepository struct {
	db               *sql.DB
	measurementTable string
	quantityTable    string
	stationTable     string
	phenomenonTable  string
}

// NewMeasurementRepository constructs a repository with default table names.
func NewMeasurementRepository(db *sql.DB, opts ...RepositoryOption) *MeasurementRepository {
	repo := &MeasurementRepository{
		db:               db,
		measurementTable: defaultMeasurementTable,
		quantityTable:    defaultQuantityTable,
		stationTable:     defaultStationTable,
		phenomenonTable:  defaultPhenomenonTable,
	}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// RepositoryOption configures the repository.
type RepositoryOption func(*MeasurementRepository)

// WithMeasurementTable overrides the default measurement table name.
func WithMeasurementTable(table string) RepositoryOption {
	return func(repo *MeasurementRepository) {
		if table != "" {
			repo.measurementTable = table
		}
	}
}

// WithQuantityTable overrides the default quantity table name.
func WithQuantityTable(table string) RepositoryOption {
	return func(repo *MeasurementRepository) {
		if table != "" {
			repo.quantityTable = table
		}
	}
}

// InsertWithQuantity writes the quantity row and its measurement in one
// transaction. If either insert fails, neither persists, so no quantity is
// left dangling without its measurement.
func (r *MeasurementRepository) InsertWithQuantity(ctx context.Context, m telemetry.Measurement, value float64) error {
	if r == nil || r.db == nil {
		return errors.New("measurement repo: nil db")
	}
	if err := m.Validate(); err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	quantityQuery := fmt.Sprintf(`
INSERT INTO %s (value, active)
VALUES ($1, TRUE)
RETURNING id`, r.quantityTable)

	var quantityID int64
	if err := tx.QueryRowContext(ctx, quantityQuery, value).Scan(&quantityID); err != nil {
		_ = tx.Rollback()
		return err
	}

	measurementQuery := fmt.Sprintf(`
INSERT INTO %s (station_id, phenomenon_id, quantity_id, ts, active)
VALUES ($1, $2, $3, $4, TRUE)`, r.measurementTable)

	if _, err := tx.ExecContext(ctx, measurementQuery, m.StationID, m.PhenomenonID, quantityID, m.TS); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}

// QueryRawSince loads raw points with timestamp at or after the cutoff,
// joined with station and phenomenon names. A zero stationID loads all
// stations.
func (r *MeasurementRepository) QueryRawSince(ctx context.Context, since time.Time, stationID int64) ([]telemetry.RawPoint, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("measurement repo: nil db")
	}
	if since.IsZero() {
		return nil, errors.New("measurement repo: zero cutoff")
	}

	query := fmt.Sprintf(`
SELECT m.station_id, s.name, m.phenomenon_id, p.name, m.ts, q.value
FROM %s m
JOIN %s q ON q.id = m.quantity_id
JOIN %s s ON s.id = m.station_id
JOIN %s p ON p.id = m.phenomenon_id
WHERE m.ts >= $1
	AND ($2 = 0 OR m.station_id = $2)
ORDER BY m.ts ASC`, r.measurementTable, r.quantityTable, r.stationTable, r.phenomenonTable)

	rows, err := r.db.QueryContext(ctx, query, since, stationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	points := make([]telemetry.RawPoint, 0)
	for rows.Next() {
		var point telemetry.RawPoint
		if err := rows.Scan(
			&point.StationID,
			&point.StationName,
			&point.PhenomenonID,
			&point.PhenomenonName,
			&point.TS,
			&point.Value,
		); err != nil {
			return nil, err
		}
		points = append(points, point)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return points, nil
}

// DeleteOlderThan removes measurements older than the cutoff, then the
// quantities no remaining measurement references. Both deletes run in one
// transaction; the order matters, orphans only exist once the measurements
// are gone.
func (r *MeasurementRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (telemetry.SweepResult, error) {
	if r == nil || r.db == nil {
		return telemetry.SweepResult{}, errors.New("measurement repo: nil db")
	}
	if cutoff.IsZero() {
		return telemetry.SweepResult{}, errors.New("measurement repo: zero cutoff")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return telemetry.SweepResult{}, err
	}

	measurementDelete := fmt.Sprintf(`DELETE FROM %s WHERE ts < $1`, r.measurementTable)
	res, err := tx.ExecContext(ctx, measurementDelete, cutoff)
	if err != nil {
		_ = tx.Rollback()
		return telemetry.SweepResult{}, err
	}
	deletedMeasurements, err := res.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return telemetry.SweepResult{}, err
	}

	quantityDelete := fmt.Sprintf(`
DELETE FROM %s q
WHERE NOT EXISTS (
	SELECT 1 FROM %s m WHERE m.quantity_id = q.id
)`, r.quantityTable, r.measurementTable)
	res, err = tx.ExecContext(ctx, quantityDelete)
	if err != nil {
		_ = tx.Rollback()
		return telemetry.SweepResult{}, err
	}
	deletedQuantities, err := res.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return telemetry.SweepResult{}, err
	}

	if err := tx.Commit(); err != nil {
		return telemetry.SweepResult{}, err
	}
	return telemetry.SweepResult{
		DeletedMeasurements: deletedMeasurements,
		DeletedQuantities:   deletedQuantities,
	}, nil
}

// TruncateAll empties both raw tables and resets their identity sequences.
func (r *MeasurementRepository) TruncateAll(ctx context.Context) error {
	if r == nil || r.db == nil {
		return errors.New("measurement repo: nil db")
	}
	query := fmt.Sprintf(`TRUNCATE %s, %s RESTART IDENTITY CASCADE`, r.measurementTable, r.quantityTable)
	_, err := r.db.ExecContext(ctx, query)
	return err
}
