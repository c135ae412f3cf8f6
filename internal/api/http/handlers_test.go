package apihttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	analyticsapp "hydromet-cloud/internal/analytics/application"
	domainstatistic "hydromet-cloud/internal/analytics/domain/statistic"
	masterdata "hydromet-cloud/internal/masterdata/domain"
	retentionapp "hydromet-cloud/internal/retention/application"
	telemetryapp "hydromet-cloud/internal/telemetry/application"
	telemetry "hydromet-cloud/internal/telemetry/domain"
)

type stubStationRepo struct {
	stations []masterdata.Station
}

func (s stubStationRepo) GetByDeviceID(_ context.Context, deviceID string) (*masterdata.Station, error) {
	for _, station := range s.stations {
		if station.DeviceID == deviceID {
			st := station
			return &st, nil
		}
	}
	return nil, masterdata.ErrStationNotFound
}

func (s stubStationRepo) ListOperative(context.Context) ([]masterdata.Station, error) {
	return s.stations, nil
}

type stubPhenomenonRepo struct {
	phenomena []masterdata.PhenomenonType
}

func (s stubPhenomenonRepo) GetByName(_ context.Context, name string) (*masterdata.PhenomenonType, error) {
	for _, p := range s.phenomena {
		if p.Name == name {
			phenomenon := p
			return &phenomenon, nil
		}
	}
	return nil, masterdata.ErrPhenomenonNotFound
}

func (s stubPhenomenonRepo) ListActive(context.Context) ([]masterdata.PhenomenonType, error) {
	return s.phenomena, nil
}

type stubMeasurementRepo struct {
	points   []telemetry.RawPoint
	inserted int
	sweep    telemetry.SweepResult
}

func (s *stubMeasurementRepo) InsertWithQuantity(context.Context, telemetry.Measurement, float64) error {
	s.inserted++
	return nil
}

func (s *stubMeasurementRepo) QueryRawSince(_ context.Context, since time.Time, stationID int64) ([]telemetry.RawPoint, error) {
	out := make([]telemetry.RawPoint, 0, len(s.points))
	for _, point := range s.points {
		if point.TS.Before(since) {
			continue
		}
		if stationID != 0 && point.StationID != stationID {
			continue
		}
		out = append(out, point)
	}
	return out, nil
}

func (s *stubMeasurementRepo) DeleteOlderThan(context.Context, time.Time) (telemetry.SweepResult, error) {
	return s.sweep, nil
}

func (s *stubMeasurementRepo) TruncateAll(context.Context) error { return nil }

type stubRollupRepo struct {
	rows   []domainstatistic.DailyMeasurement
	groups []domainstatistic.RawDayGroup
	err    error
}

func (s *stubRollupRepo) HighWaterMark(context.Context) (time.Time, error) {
	if s.err != nil {
		return time.Time{}, s.err
	}
	return time.Time{}, nil
}

func (s *stubRollupRepo) AggregateRawAfter(context.Context, time.Time) ([]domainstatistic.RawDayGroup, error) {
	return s.groups, nil
}

func (s *stubRollupRepo) Insert(_ context.Context, rows []domainstatistic.DailyMeasurement) error {
	s.rows = append(s.rows, rows...)
	return nil
}

func (s *stubRollupRepo) ListSince(context.Context, time.Time) ([]domainstatistic.DailyMeasurement, error) {
	return s.rows, nil
}

func masterdataFixtures() (stubStationRepo, stubPhenomenonRepo) {
	stations := stubStationRepo{stations: []masterdata.Station{
		{ID: 1, Name: "North Ridge", DeviceID: "dev-a", Status: masterdata.StatusOperative},
	}}
	phenomena := stubPhenomenonRepo{phenomena: []masterdata.PhenomenonType{
		{ID: 10, Name: "Temperature", Unit: "°C", Operations: []string{"PROMEDIO", "MAX"}, Active: true},
	}}
	return stations, phenomena
}

func newStatsHandler(t *testing.T, measurements *stubMeasurementRepo) *StatsHandler {
	t.Helper()
	stations, phenomena := masterdataFixtures()
	query, err := analyticsapp.NewBucketQueryService(
		measurements, &stubRollupRepo{}, stations, phenomena,
		domainstatistic.NewTimeZone(0), nil, nil)
	if err != nil {
		t.Fatalf("new query service: %v", err)
	}
	handler, err := NewStatsHandler(query, nil)
	if err != nil {
		t.Fatalf("new stats handler: %v", err)
	}
	return handler
}

func TestStatsHandlerRejectsInvalidScale(t *testing.T) {
	handler := newStatsHandler(t, &stubMeasurementRepo{})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/statistics?scale=weekly", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestStatsHandlerRejectsBadStationID(t *testing.T) {
	handler := newStatsHandler(t, &stubMeasurementRepo{})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/statistics?scale=1h&station_id=abc", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestStatsHandlerReturnsBuckets(t *testing.T) {
	ts := time.Now().UTC().Add(-time.Hour)
	measurements := &stubMeasurementRepo{points: []telemetry.RawPoint{
		{StationID: 1, StationName: "North Ridge", PhenomenonID: 10, PhenomenonName: "Temperature", TS: ts, Value: 21},
	}}
	handler := newStatsHandler(t, measurements)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/statistics?scale=1h", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var items []statsResponseItem
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
	if items[0].StationName != "North Ridge" {
		t.Fatalf("station = %q", items[0].StationName)
	}
	if items[0].Measures["Temperature"]["PROMEDIO"] != 21 {
		t.Fatalf("measures = %v", items[0].Measures)
	}
}

func TestStatsHandlerMethodNotAllowed(t *testing.T) {
	handler := newStatsHandler(t, &stubMeasurementRepo{})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/statistics", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestRollupHandlerReportsMigratedCount(t *testing.T) {
	_, phenomena := masterdataFixtures()
	day := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	rollups := &stubRollupRepo{groups: []domainstatistic.RawDayGroup{
		{Day: day, StationID: 1, PhenomenonID: 10, Count: 2, Average: 21.5, Max: 25, Min: 18, Sum: 43},
	}}
	service, err := analyticsapp.NewDailyRollupService(rollups, phenomena, domainstatistic.NewTimeZone(0), nil)
	if err != nil {
		t.Fatalf("new rollup service: %v", err)
	}
	handler, err := NewRollupHandler(service, nil)
	if err != nil {
		t.Fatalf("new rollup handler: %v", err)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/rollup/daily", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var body struct {
		MigratedCount int `json:"migratedCount"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.MigratedCount != 2 {
		t.Fatalf("migratedCount = %d, want 2 (PROMEDIO and MAX)", body.MigratedCount)
	}
}

func TestRollupHandlerReportsFailure(t *testing.T) {
	_, phenomena := masterdataFixtures()
	rollups := &stubRollupRepo{err: errors.New("database down")}
	service, err := analyticsapp.NewDailyRollupService(rollups, phenomena, domainstatistic.NewTimeZone(0), nil)
	if err != nil {
		t.Fatalf("new rollup service: %v", err)
	}
	handler, err := NewRollupHandler(service, nil)
	if err != nil {
		t.Fatalf("new rollup handler: %v", err)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/rollup/daily", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestSweepHandlerReturnsCounts(t *testing.T) {
	repo := &stubMeasurementRepo{sweep: telemetry.SweepResult{DeletedMeasurements: 5, DeletedQuantities: 4}}
	sweeper, err := retentionapp.NewSweeper(repo, 0, nil)
	if err != nil {
		t.Fatalf("new sweeper: %v", err)
	}
	handler, err := NewSweepHandler(sweeper, false, nil)
	if err != nil {
		t.Fatalf("new sweep handler: %v", err)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/retention/sweep", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		DeletedMeasurements int64 `json:"deletedMeasurements"`
		DeletedQuantities   int64 `json:"deletedQuantities"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.DeletedMeasurements != 5 || body.DeletedQuantities != 4 {
		t.Fatalf("body = %+v, want {5 4}", body)
	}
}

func TestSweepHandlerTruncateReturnsNoContent(t *testing.T) {
	sweeper, err := retentionapp.NewSweeper(&stubMeasurementRepo{}, 0, nil)
	if err != nil {
		t.Fatalf("new sweeper: %v", err)
	}
	handler, err := NewSweepHandler(sweeper, true, nil)
	if err != nil {
		t.Fatalf("new sweep handler: %v", err)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/retention/truncate", nil))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
}

func newIngestHandler(t *testing.T) (*IngestHandler, *stubMeasurementRepo) {
	t.Helper()
	stations, phenomena := masterdataFixtures()
	measurements := &stubMeasurementRepo{}
	service, err := telemetryapp.NewIngestService(
		stations, phenomena, measurements,
		telemetry.NewSensorPolicy(0, nil, nil), nil, nil)
	if err != nil {
		t.Fatalf("new ingest service: %v", err)
	}
	handler, err := NewIngestHandler(service, nil)
	if err != nil {
		t.Fatalf("new ingest handler: %v", err)
	}
	return handler, measurements
}

func TestIngestHandlerAcceptsReading(t *testing.T) {
	handler, measurements := newIngestHandler(t)

	body := `{"timestamp":"2026-08-30T12:00:00Z","deviceId":"dev-a","payload":{"Temperature":21.5}}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/ingest", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if measurements.inserted != 1 {
		t.Fatalf("inserted = %d, want 1", measurements.inserted)
	}
	var response struct {
		Accepted []telemetry.AcceptedReading `json:"accepted"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(response.Accepted) != 1 || response.Accepted[0].Variable != "Temperature" {
		t.Fatalf("accepted = %+v", response.Accepted)
	}
}

func TestIngestHandlerRejectsInvalidInput(t *testing.T) {
	handler, _ := newIngestHandler(t)

	body := `{"deviceId":"dev-a","payload":{"Temperature":21.5}}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/ingest", strings.NewReader(body)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var response struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if response.Kind != "InvalidInput" {
		t.Fatalf("kind = %q, want InvalidInput", response.Kind)
	}
}

func TestIngestHandlerRejectsUnknownDevice(t *testing.T) {
	handler, _ := newIngestHandler(t)

	body := `{"timestamp":"2026-08-30T12:00:00Z","deviceId":"ghost","payload":{"Temperature":21.5}}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/ingest", strings.NewReader(body)))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var response struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if response.Kind != "StationNotFound" {
		t.Fatalf("kind = %q, want StationNotFound", response.Kind)
	}
}

func TestIngestHandlerRejectsMalformedJSON(t *testing.T) {
	handler, _ := newIngestHandler(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/ingest", strings.NewReader("{not json")))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
