package telemetry

// AcceptedReading is one calibrated, in-bounds reading that passed the
// ingestion pipeline. The accepted list of a message is what gets fanned out
// to connected listeners.
type AcceptedReading struct {
	Variable string  `json:"variable"`
	Value    float64 `json:"value"`
	Unit     string  `json:"unit"`
	DeviceID string  `json:"deviceId"`
}
