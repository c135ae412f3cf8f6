// Package apihttp exposes the trigger and query surface of the core: job
// triggers for the external scheduler and the statistics query for
// dashboards.
package apihttp

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	analyticsapp "hydromet-cloud/internal/analytics/application"
	domainstatistic "hydromet-cloud/internal/analytics/domain/statistic"
	analyticsinterfaces "hydromet-cloud/internal/analytics/interfaces"
	masterdata "hydromet-cloud/internal/masterdata/domain"
	retentionapp "hydromet-cloud/internal/retention/application"
	telemetryapp "hydromet-cloud/internal/telemetry/application"
)

// StatsHandler serves GET /api/v1/statistics.
type StatsHandler struct {
	query  *analyticsapp.BucketQueryService
	logger *slog.Logger
}

// NewStatsHandler constructs the handler.
func NewStatsHandler(query *analyticsapp.BucketQueryService, logger *slog.Logger) (*StatsHandler, error) {
	if query == nil {
		return nil, errors.New("stats handler: nil query service")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StatsHandler{query: query, logger: logger}, nil
}

type statsResponseItem struct {
	BucketStart time.Time                     `json:"bucketStart"`
	StationName string                        `json:"stationName"`
	Measures    map[string]map[string]float64 `json:"measures"`
}

// ServeHTTP handles the statistics query.
func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	stationID := int64(0)
	if raw := r.URL.Query().Get("station_id"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			http.Error(w, "invalid station_id", http.StatusBadRequest)
			return
		}
		stationID = parsed
	}

	results, err := h.query.Query(r.Context(), analyticsapp.BucketQuery{
		Scale:     domainstatistic.Scale(r.URL.Query().Get("scale")),
		StationID: stationID,
	})
	if err != nil {
		if errors.Is(err, domainstatistic.ErrInvalidScale) {
			http.Error(w, "invalid scale", http.StatusBadRequest)
			return
		}
		h.logger.Error("statistics query failed", "error", err)
		http.Error(w, "query error", http.StatusInternalServerError)
		return
	}

	items := make([]statsResponseItem, 0, len(results))
	for _, result := range results {
		items = append(items, statsResponseItem{
			BucketStart: result.BucketStart,
			StationName: result.StationName,
			Measures:    result.Measures,
		})
	}
	writeJSON(w, items)
}

// RollupHandler serves POST /api/v1/rollup/daily for the external scheduler.
type RollupHandler struct {
	rollup *analyticsapp.DailyRollupService
	logger *slog.Logger
}

// NewRollupHandler constructs the handler.
func NewRollupHandler(rollup *analyticsapp.DailyRollupService, logger *slog.Logger) (*RollupHandler, error) {
	if rollup == nil {
		return nil, errors.New("rollup handler: nil rollup service")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RollupHandler{rollup: rollup, logger: logger}, nil
}

// ServeHTTP runs one rollup pass.
func (h *RollupHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	result, err := h.rollup.Run(r.Context())
	if err != nil {
		h.logger.Error("daily rollup failed", "error", err)
		writeJSONStatus(w, http.StatusInternalServerError, map[string]any{
			"migratedCount": 0,
			"error":         err.Error(),
		})
		return
	}
	writeJSON(w, map[string]any{"migratedCount": result.MigratedCount})
}

// SweepHandler serves POST /api/v1/retention/sweep and
// POST /api/v1/retention/truncate.
type SweepHandler struct {
	sweeper  *retentionapp.Sweeper
	truncate bool
	logger   *slog.Logger
}

// NewSweepHandler constructs the sweep handler.
func NewSweepHandler(sweeper *retentionapp.Sweeper, truncate bool, logger *slog.Logger) (*SweepHandler, error) {
	if sweeper == nil {
		return nil, errors.New("sweep handler: nil sweeper")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SweepHandler{sweeper: sweeper, truncate: truncate, logger: logger}, nil
}

// ServeHTTP runs one retention operation.
func (h *SweepHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if h.truncate {
		if err := h.sweeper.TruncateRaw(r.Context()); err != nil {
			h.logger.Error("truncate failed", "error", err)
			http.Error(w, "truncate error", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	result, err := h.sweeper.SweepOld(r.Context())
	if err != nil {
		h.logger.Error("retention sweep failed", "error", err)
		writeJSONStatus(w, http.StatusInternalServerError, map[string]any{
			"deletedMeasurements": 0,
			"deletedQuantities":   0,
			"error":               err.Error(),
		})
		return
	}
	writeJSON(w, map[string]any{
		"deletedMeasurements": result.DeletedMeasurements,
		"deletedQuantities":   result.DeletedQuantities,
	})
}

// IngestHandler serves POST /api/v1/ingest, the direct (non-broker) path
// used by the offline migration tool and manual backfills.
type IngestHandler struct {
	ingest *telemetryapp.IngestService
	logger *slog.Logger
}

// NewIngestHandler constructs the handler.
func NewIngestHandler(ingest *telemetryapp.IngestService, logger *slog.Logger) (*IngestHandler, error) {
	if ingest == nil {
		return nil, errors.New("ingest handler: nil ingest service")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestHandler{ingest: ingest, logger: logger}, nil
}

type ingestRequest struct {
	Timestamp time.Time      `json:"timestamp"`
	DeviceID  string         `json:"deviceId"`
	Payload   map[string]any `json:"payload"`
}

// ServeHTTP ingests one telemetry message.
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	result, err := h.ingest.Ingest(r.Context(), telemetryapp.IngestRequest{
		Timestamp: req.Timestamp,
		DeviceID:  req.DeviceID,
		Payload:   req.Payload,
	})
	if err != nil {
		switch {
		case errors.Is(err, telemetryapp.ErrInvalidInput):
			writeJSONStatus(w, http.StatusBadRequest, map[string]string{"kind": "InvalidInput"})
		case errors.Is(err, masterdata.ErrStationNotFound):
			writeJSONStatus(w, http.StatusNotFound, map[string]string{"kind": "StationNotFound"})
		default:
			h.logger.Error("ingest failed", "device", req.DeviceID, "error", err)
			http.Error(w, "ingest error", http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, map[string]any{"accepted": result.Accepted})
}

// ExportHandler serves GET /api/v1/rollup/export?format=xlsx|pdf.
type ExportHandler struct {
	rollups   domainstatistic.DailyMeasurementRepository
	stations  masterdata.StationRepository
	phenomena masterdata.PhenomenonRepository
	logger    *slog.Logger
}

// NewExportHandler constructs the handler.
func NewExportHandler(
	rollups domainstatistic.DailyMeasurementRepository,
	stations masterdata.StationRepository,
	phenomena masterdata.PhenomenonRepository,
	logger *slog.Logger,
) (*ExportHandler, error) {
	if rollups == nil {
		return nil, errors.New("export handler: nil rollup repository")
	}
	if stations == nil {
		return nil, errors.New("export handler: nil station repository")
	}
	if phenomena == nil {
		return nil, errors.New("export handler: nil phenomenon repository")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ExportHandler{rollups: rollups, stations: stations, phenomena: phenomena, logger: logger}, nil
}

// ServeHTTP exports the last 14 days of rollup rows.
func (h *ExportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	format := r.URL.Query().Get("format")
	if format != "xlsx" && format != "pdf" {
		http.Error(w, "format must be xlsx or pdf", http.StatusBadRequest)
		return
	}

	since := time.Now().UTC().AddDate(0, 0, -14)
	rows, err := h.rollups.ListSince(r.Context(), since)
	if err != nil {
		h.logger.Error("rollup export scan failed", "error", err)
		http.Error(w, "export error", http.StatusInternalServerError)
		return
	}

	stations, err := h.stations.ListOperative(r.Context())
	if err != nil {
		h.logger.Error("rollup export stations failed", "error", err)
		http.Error(w, "export error", http.StatusInternalServerError)
		return
	}
	stationNames := make(map[int64]string, len(stations))
	for _, st := range stations {
		stationNames[st.ID] = st.Name
	}
	phenomena, err := h.phenomena.ListActive(r.Context())
	if err != nil {
		h.logger.Error("rollup export phenomena failed", "error", err)
		http.Error(w, "export error", http.StatusInternalServerError)
		return
	}
	phenomenonNames := make(map[int64]masterdata.PhenomenonType, len(phenomena))
	for _, p := range phenomena {
		phenomenonNames[p.ID] = p
	}

	export := make([]analyticsinterfaces.RollupExportRow, 0, len(rows))
	for _, row := range rows {
		p := phenomenonNames[row.PhenomenonID]
		export = append(export, analyticsinterfaces.RollupExportRow{
			Row:            row,
			StationName:    stationNames[row.StationID],
			PhenomenonName: p.Name,
			Unit:           p.Unit,
		})
	}

	var payload []byte
	var contentType, filename string
	if format == "xlsx" {
		payload, err = analyticsinterfaces.BuildRollupXLSX(export)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		filename = "daily-statistics.xlsx"
	} else {
		payload, err = analyticsinterfaces.BuildRollupPDF(export)
		contentType = "application/pdf"
		filename = "daily-statistics.pdf"
	}
	if err != nil {
		h.logger.Error("rollup export render failed", "format", format, "error", err)
		http.Error(w, "export error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	_, _ = w.Write(payload)
}

func writeJSON(w http.ResponseWriter, payload any) {
	writeJSONStatus(w, http.StatusOK, payload)
}

func writeJSONStatus(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
