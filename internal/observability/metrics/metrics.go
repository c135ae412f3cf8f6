package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "hydromet_"

	ResultSuccess = "success"
	ResultError   = "error"

	ReadingAccepted          = "accepted"
	ReadingDroppedAnomaly    = "dropped_anomaly"
	ReadingSkippedNonNumeric = "skipped_non_numeric"
	ReadingSkippedUnknown    = "skipped_unknown_phenomenon"
)

var (
	registerOnce sync.Once

	ingestMessages *prometheus.CounterVec
	ingestReadings *prometheus.CounterVec
	ingestLatency  *prometheus.HistogramVec

	rollupRuns *prometheus.CounterVec
	rollupRows prometheus.Counter

	sweepMeasurements prometheus.Counter
	sweepQuantities   prometheus.Counter

	reconcilePasses  *prometheus.CounterVec
	subscribedTopics prometheus.Gauge

	fanoutPublishes *prometheus.CounterVec
)

// Init registers all collectors with the default registry. Safe to call more
// than once.
func Init() {
	registerOnce.Do(func() {
		ingestMessages = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_messages_total",
				Help: "Total ingested telemetry messages by result",
			},
			[]string{"result"},
		)
		ingestReadings = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_readings_total",
				Help: "Per-variable ingestion outcomes",
			},
			[]string{"outcome"},
		)
		ingestLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "ingest_latency_seconds",
				Help:    "Ingest latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		rollupRuns = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "rollup_runs_total",
				Help: "Daily rollup passes by result",
			},
			[]string{"result"},
		)
		rollupRows = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "rollup_rows_total",
				Help: "Daily rollup rows inserted",
			},
		)

		sweepMeasurements = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "sweep_deleted_measurements_total",
				Help: "Measurements deleted by the retention sweeper",
			},
		)
		sweepQuantities = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "sweep_deleted_quantities_total",
				Help: "Orphaned quantities deleted by the retention sweeper",
			},
		)

		reconcilePasses = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "subscription_reconcile_total",
				Help: "Subscription reconciliation passes by result",
			},
			[]string{"result"},
		)
		subscribedTopics = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "subscribed_topics",
				Help: "Topics currently tracked as subscribed",
			},
		)

		fanoutPublishes = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "fanout_publish_total",
				Help: "Real-time fanout publishes by result",
			},
			[]string{"result"},
		)

		prometheus.MustRegister(
			ingestMessages,
			ingestReadings,
			ingestLatency,
			rollupRuns,
			rollupRows,
			sweepMeasurements,
			sweepQuantities,
			reconcilePasses,
			subscribedTopics,
			fanoutPublishes,
		)
	})
}

// ObserveIngest records one ingested message.
func ObserveIngest(result string, elapsed time.Duration) {
	if ingestMessages == nil {
		return
	}
	ingestMessages.WithLabelValues(result).Inc()
	ingestLatency.WithLabelValues(result).Observe(elapsed.Seconds())
}

// CountReading records one per-variable outcome.
func CountReading(outcome string) {
	if ingestReadings == nil {
		return
	}
	ingestReadings.WithLabelValues(outcome).Inc()
}

// ObserveRollup records one rollup pass.
func ObserveRollup(result string, rows int) {
	if rollupRuns == nil {
		return
	}
	rollupRuns.WithLabelValues(result).Inc()
	if rows > 0 {
		rollupRows.Add(float64(rows))
	}
}

// ObserveSweep records the counts of one retention pass.
func ObserveSweep(measurements, quantities int64) {
	if sweepMeasurements == nil {
		return
	}
	sweepMeasurements.Add(float64(measurements))
	sweepQuantities.Add(float64(quantities))
}

// ObserveReconcile records one subscription reconciliation pass.
func ObserveReconcile(result string, tracked int) {
	if reconcilePasses == nil {
		return
	}
	reconcilePasses.WithLabelValues(result).Inc()
	subscribedTopics.Set(float64(tracked))
}

// CountFanout records one fanout publish attempt.
func CountFanout(result string) {
	if fanoutPublishes == nil {
		return
	}
	fanoutPublishes.WithLabelValues(result).Inc()
}
