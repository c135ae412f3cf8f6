package masterdata

import (
	"context"
	"errors"
	"time"
)

// StationStatus is the operational state of a field station.
type StationStatus string

const (
	StatusOperative   StationStatus = "OPERATIVE"
	StatusMaintenance StationStatus = "MAINTENANCE"
	StatusInoperative StationStatus = "INOPERATIVE"
)

// IsValid reports whether the status is a known state.
func (s StationStatus) IsValid() bool {
	switch s {
	case StatusOperative, StatusMaintenance, StatusInoperative:
		return true
	}
	return false
}

// Station represents a remote field station in masterdata.
// Lifecycle management is external; this core only reads status and device id.
type Station struct {
	ID        int64
	Name      string
	DeviceID  string
	Status    StationStatus
	CreatedAt time.Time
}

// Validate checks station invariants.
func (s Station) Validate() error {
	if s.ID == 0 {
		return errors.New("station: empty id")
	}
	if s.Name == "" {
		return errors.New("station: empty name")
	}
	if s.DeviceID == "" {
		return errors.New("station: empty device id")
	}
	if !s.Status.IsValid() {
		return errors.New("station: invalid status")
	}
	return nil
}

// ErrStationNotFound is returned when no station matches the lookup.
var ErrStationNotFound = errors.New("masterdata: station not found")

// StationRepository reads station masterdata.
type StationRepository interface {
	GetByDeviceID(ctx context.Context, deviceID string) (*Station, error)
	ListOperative(ctx context.Context) ([]Station, error)
}
