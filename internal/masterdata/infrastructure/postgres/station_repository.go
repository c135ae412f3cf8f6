package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	masterdata "hydromet-cloud/internal/masterdata/domain"
)

const defaultStationTable = "stations"

// StationRepository is a read-only Postgres implementation for stations.
type StationRepository struct {
	db    *sql.DB
	table string
}

// NewStationRepository constructs a repository with the default table name.
func NewStationRepository(db *sql.DB, opts ...StationOption) *StationRepository {
	repo := &StationRepository{db: db, table: defaultStationTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// StationOption configures the repository.
type StationOption func(*StationRepository)

// WithStationTable overrides the default table name.
func WithStationTable(table string) StationOption {
	return func(repo *StationRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// GetByDeviceID resolves a station by its device identifier.
func (r *StationRepository) GetByDeviceID(ctx context.Context, deviceID string) (*masterdata.Station, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("station repo: nil db")
	}
	if deviceID == "" {
		return nil, masterdata.ErrStationNotFound
	}

	query := fmt.Sprintf(`
SELECT id, name, device_id, status, created_at
FROM %s
WHERE device_id = $1
LIMIT 1`, r.table)

	var station masterdata.Station
	err := r.db.QueryRowContext(ctx, query, deviceID).Scan(
		&station.ID,
		&station.Name,
		&station.DeviceID,
		&station.Status,
		&station.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, masterdata.ErrStationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &station, nil
}

// ListOperative returns all stations in OPERATIVE status.
func (r *StationRepository) ListOperative(ctx context.Context) ([]masterdata.Station, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("station repo: nil db")
	}

	query := fmt.Sprintf(`
SELECT id, name, device_id, status, created_at
FROM %s
WHERE status = $1
ORDER BY id ASC`, r.table)

	rows, err := r.db.QueryContext(ctx, query, string(masterdata.StatusOperative))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stations := make([]masterdata.Station, 0)
	for rows.Next() {
		var station masterdata.Station
		if err := rows.Scan(
			&station.ID,
			&station.Name,
			&station.DeviceID,
			&station.Status,
			&station.CreatedAt,
		); err != nil {
			return nil, err
		}
		stations = append(stations, station)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stations, nil
}
