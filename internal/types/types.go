package types

import (
	"math"
	"time"
)

// Reading is the latest environmental sample held by the node.
// All three fields come from the same sample and are replaced together.
type Reading struct {
	Temperature float64 // degrees Celsius
	Humidity    float64 // percent relative humidity
	Pressure    float64 // hectopascals
}

// LogAttrs returns the reading as slog key/value pairs.
func (r Reading) LogAttrs() []any {
	return []any{
		"temperature_c", r.Temperature,
		"humidity_pct", r.Humidity,
		"pressure_hpa", r.Pressure,
	}
}

// Telemetry represents a telemetry message published by a weather station
type Telemetry struct {
	StationID   string    `json:"station_id"`
	Timestamp   time.Time `json:"timestamp"`
	Temperature *float64  `json:"temperature_c,omitempty"`
	Humidity    *float64  `json:"humidity_pct,omitempty"`
	Pressure    *float64  `json:"pressure_hpa,omitempty"`
	Status      string    `json:"status,omitempty"`
	Sequence    *int      `json:"sequence,omitempty"`
}

// StationHealth is the retained liveness message of a station.
type StationHealth struct {
	StationID string    `json:"station_id"`
	LastSeen  time.Time `json:"last_seen"`
	Healthy   bool      `json:"healthy"`
}

// NewTelemetry builds a telemetry message from a reading. Non-finite values
// are left out since JSON cannot carry them.
func NewTelemetry(stationID string, ts time.Time, r Reading, status string, seq int) Telemetry {
	return Telemetry{
		StationID:   stationID,
		Timestamp:   ts,
		Temperature: finitePtr(r.Temperature),
		Humidity:    finitePtr(r.Humidity),
		Pressure:    finitePtr(r.Pressure),
		Status:      status,
		Sequence:    &seq,
	}
}

func finitePtr(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
