package masterdata

import (
	"context"
	"errors"
	"strings"
)

// PhenomenonType is a named measurable quantity with a unit and the set of
// statistical operations registered for it. Read-only from this core.
type PhenomenonType struct {
	ID         int64
	Name       string
	Unit       string
	Operations []string
	Active     bool
}

// Validate checks phenomenon invariants.
func (p PhenomenonType) Validate() error {
	if p.ID == 0 {
		return errors.New("phenomenon: empty id")
	}
	if p.Name == "" {
		return errors.New("phenomenon: empty name")
	}
	return nil
}

// HasOperation reports whether the named operation is registered, matching
// persisted identifiers case-insensitively.
func (p PhenomenonType) HasOperation(name string) bool {
	for _, op := range p.Operations {
		if strings.EqualFold(op, name) {
			return true
		}
	}
	return false
}

// ErrPhenomenonNotFound is returned when no phenomenon matches the lookup.
var ErrPhenomenonNotFound = errors.New("masterdata: phenomenon not found")

// PhenomenonRepository reads phenomenon masterdata.
type PhenomenonRepository interface {
	// GetByName resolves by case-insensitive name match.
	GetByName(ctx context.Context, name string) (*PhenomenonType, error)
	ListActive(ctx context.Context) ([]PhenomenonType, error)
}
