package mqtt

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	masterdata "hydromet-cloud/internal/masterdata/domain"
	"hydromet-cloud/internal/telemetry/application"
	telemetry "hydromet-cloud/internal/telemetry/domain"
)

type stubStationRepo struct{}

func (stubStationRepo) GetByDeviceID(_ context.Context, deviceID string) (*masterdata.Station, error) {
	if deviceID != "dev-a" {
		return nil, masterdata.ErrStationNotFound
	}
	return &masterdata.Station{ID: 1, Name: "North Ridge", DeviceID: "dev-a", Status: masterdata.StatusOperative}, nil
}

func (stubStationRepo) ListOperative(context.Context) ([]masterdata.Station, error) {
	return nil, nil
}

type stubPhenomenonRepo struct{}

func (stubPhenomenonRepo) GetByName(_ context.Context, name string) (*masterdata.PhenomenonType, error) {
	if name != "Temperature" {
		return nil, masterdata.ErrPhenomenonNotFound
	}
	return &masterdata.PhenomenonType{ID: 10, Name: "Temperature", Unit: "°C", Operations: []string{"PROMEDIO"}, Active: true}, nil
}

func (stubPhenomenonRepo) ListActive(context.Context) ([]masterdata.PhenomenonType, error) {
	return nil, nil
}

type countingMeasurementRepo struct {
	inserted []float64
}

func (r *countingMeasurementRepo) InsertWithQuantity(_ context.Context, _ telemetry.Measurement, value float64) error {
	r.inserted = append(r.inserted, value)
	return nil
}

func (r *countingMeasurementRepo) QueryRawSince(context.Context, time.Time, int64) ([]telemetry.RawPoint, error) {
	return nil, nil
}

func (r *countingMeasurementRepo) DeleteOlderThan(context.Context, time.Time) (telemetry.SweepResult, error) {
	return telemetry.SweepResult{}, nil
}

func (r *countingMeasurementRepo) TruncateAll(context.Context) error { return nil }

func newConsumer(t *testing.T) (*Consumer, *countingMeasurementRepo) {
	t.Helper()
	measurements := &countingMeasurementRepo{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ingest, err := application.NewIngestService(
		stubStationRepo{}, stubPhenomenonRepo{}, measurements,
		telemetry.NewSensorPolicy(0, nil, nil), nil, logger)
	if err != nil {
		t.Fatalf("new ingest service: %v", err)
	}
	consumer, err := NewConsumer(ingest, 0, logger)
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}
	return consumer, measurements
}

func TestHandleIngestsUplink(t *testing.T) {
	consumer, measurements := newConsumer(t)

	payload := []byte(`{"receivedAt":"2026-08-30T12:00:00Z","deviceId":"dev-a","payload":{"Temperature":21.5}}`)
	consumer.handle("v3/hydromet/devices/dev-a/up", payload)

	if len(measurements.inserted) != 1 || measurements.inserted[0] != 21.5 {
		t.Fatalf("inserted = %v, want [21.5]", measurements.inserted)
	}
}

func TestHandleFallsBackToTopicDevice(t *testing.T) {
	consumer, measurements := newConsumer(t)

	// No deviceId in the envelope; the topic segment identifies the device.
	payload := []byte(`{"receivedAt":"2026-08-30T12:00:00Z","payload":{"Temperature":19}}`)
	consumer.handle("v3/hydromet/devices/dev-a/up", payload)

	if len(measurements.inserted) != 1 {
		t.Fatalf("inserted = %v, want one reading", measurements.inserted)
	}
}

func TestHandleIgnoresMalformedPayload(t *testing.T) {
	consumer, measurements := newConsumer(t)

	consumer.handle("v3/hydromet/devices/dev-a/up", []byte("not json"))

	if len(measurements.inserted) != 0 {
		t.Fatalf("inserted = %v, want none", measurements.inserted)
	}
}

func TestHandleIgnoresUnknownDevice(t *testing.T) {
	consumer, measurements := newConsumer(t)

	payload := []byte(`{"receivedAt":"2026-08-30T12:00:00Z","deviceId":"ghost","payload":{"Temperature":21.5}}`)
	consumer.handle("v3/hydromet/devices/ghost/up", payload)

	if len(measurements.inserted) != 0 {
		t.Fatalf("inserted = %v, want none", measurements.inserted)
	}
}

func TestDeviceFromTopic(t *testing.T) {
	cases := []struct {
		topic string
		want  string
	}{
		{"v3/hydromet/devices/wx-17/up", "wx-17"},
		{"devices/abc", "abc"},
		{"v3/hydromet/stations/wx-17/up", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := deviceFromTopic(tc.topic); got != tc.want {
			t.Errorf("deviceFromTopic(%q) = %q, want %q", tc.topic, got, tc.want)
		}
	}
}
