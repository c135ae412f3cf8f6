package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	masterdata "hydromet-cloud/internal/masterdata/domain"
)

const defaultPhenomenonTable = "phenomenon_types"

// PhenomenonRepository is a read-only Postgres implementation for phenomenon
// types. The registered operation set is stored as a comma-separated list of
// persisted identifiers.
type PhenomenonRepository struct {
	db    *sql.DB
	table string
}

// NewPhenomenonRepository constructs a repository with the default table name.
func NewPhenomenonRepository(db *sql.DB, opts ...PhenomenonOption) *PhenomenonRepository {
	repo := &PhenomenonRepository{db: db, table: defaultPhenomenonTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// PhenomenonOption configures the repository.
type PhenomenonOption func(*PhenomenonRepository)

// WithPhenomenonTable overrides the default table name.
func WithPhenomenonTable(table string) PhenomenonOption {
	return func(repo *PhenomenonRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// GetByName resolves an active phenomenon by case-insensitive name match.
func (r *PhenomenonRepository) GetByName(ctx context.Context, name string) (*masterdata.PhenomenonType, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("phenomenon repo: nil db")
	}
	if name == "" {
		return nil, masterdata.ErrPhenomenonNotFound
	}

	query := fmt.Sprintf(`
SELECT id, name, unit, operations, active
FROM %s
WHERE LOWER(name) = LOWER($1)
	AND active = TRUE
LIMIT 1`, r.table)

	row := r.db.QueryRowContext(ctx, query, name)
	phenomenon, err := scanPhenomenon(row)
	if err == sql.ErrNoRows {
		return nil, masterdata.ErrPhenomenonNotFound
	}
	if err != nil {
		return nil, err
	}
	return phenomenon, nil
}

// ListActive returns all active phenomenon types.
func (r *PhenomenonRepository) ListActive(ctx context.Context) ([]masterdata.PhenomenonType, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("phenomenon repo: nil db")
	}

	query := fmt.Sprintf(`
SELECT id, name, unit, operations, active
FROM %s
WHERE active = TRUE
ORDER BY id ASC`, r.table)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	phenomena := make([]masterdata.PhenomenonType, 0)
	for rows.Next() {
		phenomenon, err := scanPhenomenon(rows)
		if err != nil {
			return nil, err
		}
		phenomena = append(phenomena, *phenomenon)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return phenomena, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPhenomenon(row rowScanner) (*masterdata.PhenomenonType, error) {
	var phenomenon masterdata.PhenomenonType
	var operations sql.NullString
	if err := row.Scan(
		&phenomenon.ID,
		&phenomenon.Name,
		&phenomenon.Unit,
		&operations,
		&phenomenon.Active,
	); err != nil {
		return nil, err
	}
	if operations.Valid && operations.String != "" {
		for _, id := range strings.Split(operations.String, ",") {
			id = strings.TrimSpace(id)
			if id != "" {
				phenomenon.Operations = append(phenomenon.Operations, id)
			}
		}
	}
	return &phenomenon, nil
}
