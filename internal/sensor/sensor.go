// Package sensor samples the ambient-conditions sensor into the node's Reading.
package sensor

import (
	"log/slog"
	"math"

	"weatherstation-node/internal/config"
	"weatherstation-node/internal/types"
)

// Device is an environmental sensor driver. Init performs the presence check;
// the read methods return the sensor's native units (degrees Celsius, percent
// relative humidity, pascals). A failed read yields whatever the driver
// reports, typically NaN.
type Device interface {
	Init() error
	ReadTemperature() float64
	ReadHumidity() float64
	ReadPressure() float64
}

// Open returns the driver selected by cfg.SensorDriver. No I/O happens until Init.
func Open(cfg config.Config) Device {
	if cfg.SensorDriver == "simulated" {
		return NewSimulated()
	}
	return NewBME280(cfg.I2CBus, cfg.BME280Address)
}

// Sampler refreshes a Reading from a Device.
type Sampler struct {
	device Device
	logger *slog.Logger
}

func NewSampler(device Device, logger *slog.Logger) *Sampler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sampler{device: device, logger: logger}
}

// Sample reads temperature, humidity and pressure and overwrites r in one
// assignment. Values are stored as read; non-finite values are logged but kept.
func (s *Sampler) Sample(r *types.Reading) {
	next := types.Reading{
		Temperature: s.device.ReadTemperature(),
		Humidity:    s.device.ReadHumidity(),
		Pressure:    s.device.ReadPressure() / 100,
	}
	*r = next

	if !finite(next.Temperature) || !finite(next.Humidity) || !finite(next.Pressure) {
		s.logger.Warn("sensor returned non-finite value", next.LogAttrs()...)
		return
	}
	s.logger.Info("sensor sample", next.LogAttrs()...)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
