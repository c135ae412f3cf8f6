package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"hydromet-cloud/internal/fanout"
	masterdata "hydromet-cloud/internal/masterdata/domain"
	"hydromet-cloud/internal/observability/metrics"
	telemetry "hydromet-cloud/internal/telemetry/domain"
)

// ErrInvalidInput is returned when a message misses its timestamp, device id
// or payload. Checked before any lookup.
var ErrInvalidInput = errors.New("ingest: invalid input")

// IngestRequest is one decoded broker message.
type IngestRequest struct {
	Timestamp time.Time
	DeviceID  string
	Payload   map[string]any
}

// IngestResult lists the readings that were accepted and persisted.
type IngestResult struct {
	Accepted []telemetry.AcceptedReading
}

// IngestService is the telemetry ingestion pipeline: validate, calibrate,
// anomaly-filter and persist one message as independent per-variable writes,
// then fan out the accepted batch.
type IngestService struct {
	stations     masterdata.StationRepository
	phenomena    masterdata.PhenomenonRepository
	measurements telemetry.MeasurementRepository
	policy       telemetry.SensorPolicy
	publisher    fanout.Publisher
	logger       *slog.Logger
}

// NewIngestService constructs the pipeline.
func NewIngestService(
	stations masterdata.StationRepository,
	phenomena masterdata.PhenomenonRepository,
	measurements telemetry.MeasurementRepository,
	policy telemetry.SensorPolicy,
	publisher fanout.Publisher,
	logger *slog.Logger,
) (*IngestService, error) {
	if stations == nil {
		return nil, errors.New("ingest service: nil station repository")
	}
	if phenomena == nil {
		return nil, errors.New("ingest service: nil phenomenon repository")
	}
	if measurements == nil {
		return nil, errors.New("ingest service: nil measurement repository")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestService{
		stations:     stations,
		phenomena:    phenomena,
		measurements: measurements,
		policy:       policy,
		publisher:    publisher,
		logger:       logger,
	}, nil
}

// Ingest processes one telemetry message. Unknown devices reject the whole
// message; every other per-variable condition only skips that variable.
func (s *IngestService) Ingest(ctx context.Context, req IngestRequest) (IngestResult, error) {
	start := time.Now()

	if req.Timestamp.IsZero() || req.DeviceID == "" || len(req.Payload) == 0 {
		metrics.ObserveIngest(metrics.ResultError, time.Since(start))
		return IngestResult{}, ErrInvalidInput
	}

	station, err := s.stations.GetByDeviceID(ctx, req.DeviceID)
	if err != nil {
		metrics.ObserveIngest(metrics.ResultError, time.Since(start))
		if errors.Is(err, masterdata.ErrStationNotFound) {
			return IngestResult{}, err
		}
		return IngestResult{}, fmt.Errorf("ingest: resolve station: %w", err)
	}

	variables := make([]string, 0, len(req.Payload))
	for name := range req.Payload {
		variables = append(variables, name)
	}
	sort.Strings(variables)

	accepted := make([]telemetry.AcceptedReading, 0, len(variables))
	for _, variable := range variables {
		value, ok := parseNumeric(req.Payload[variable])
		if !ok {
			metrics.CountReading(metrics.ReadingSkippedNonNumeric)
			continue
		}

		value = s.policy.Calibrate(variable, value)
		if s.policy.Anomalous(variable, value) {
			metrics.CountReading(metrics.ReadingDroppedAnomaly)
			s.logger.Debug("anomalous reading dropped",
				"device", req.DeviceID, "variable", variable, "value", value)
			continue
		}

		phenomenon, err := s.phenomena.GetByName(ctx, variable)
		if err != nil {
			if !errors.Is(err, masterdata.ErrPhenomenonNotFound) {
				s.logger.Error("phenomenon lookup failed",
					"device", req.DeviceID, "variable", variable, "error", err)
			}
			metrics.CountReading(metrics.ReadingSkippedUnknown)
			continue
		}

		measurement := telemetry.Measurement{
			StationID:    station.ID,
			PhenomenonID: phenomenon.ID,
			TS:           req.Timestamp,
			Active:       true,
		}
		if err := s.measurements.InsertWithQuantity(ctx, measurement, value); err != nil {
			s.logger.Error("measurement insert failed",
				"device", req.DeviceID, "variable", variable, "error", err)
			continue
		}

		metrics.CountReading(metrics.ReadingAccepted)
		accepted = append(accepted, telemetry.AcceptedReading{
			Variable: variable,
			Value:    value,
			Unit:     phenomenon.Unit,
			DeviceID: req.DeviceID,
		})
	}

	if len(accepted) > 0 && s.publisher != nil {
		batch := fanout.Batch{
			ID:       uuid.NewString(),
			At:       req.Timestamp,
			Readings: accepted,
		}
		if err := s.publisher.Publish(ctx, batch); err != nil {
			metrics.CountFanout(metrics.ResultError)
			s.logger.Warn("fanout publish failed", "batch", batch.ID, "error", err)
		} else {
			metrics.CountFanout(metrics.ResultSuccess)
		}
	}

	metrics.ObserveIngest(metrics.ResultSuccess, time.Since(start))
	return IngestResult{Accepted: accepted}, nil
}

func parseNumeric(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		parsed, err := v.Float64()
		return parsed, err == nil
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		return parsed, err == nil
	}
	return 0, false
}
