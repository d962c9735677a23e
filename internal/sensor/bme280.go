//go:build !tinygo

package sensor

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/bmxx80"
	"periph.io/x/host/v3"
)

// senseDevice is the part of *bmxx80.Dev the driver uses.
type senseDevice interface {
	Sense(env *physic.Env) error
	Halt() error
}

// BME280 reads a Bosch BME280 over Linux I²C via periph.
//
// ReadTemperature triggers one forced conversion; ReadHumidity and
// ReadPressure return values from that same conversion, so a sample taken in
// temperature, humidity, pressure order describes a single instant.
type BME280 struct {
	busName string
	addr    uint16

	mu  sync.Mutex
	bus i2c.BusCloser
	dev senseDevice

	env    physic.Env
	envErr error
	sensed bool
}

// NewBME280 prepares a driver for the sensor at addr on busName ("" is the default bus).
func NewBME280(busName string, addr uint16) *BME280 {
	return &BME280{busName: busName, addr: addr}
}

func (s *BME280) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dev != nil {
		return nil
	}
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("host init: %w", err)
	}

	bus, err := i2creg.Open(s.busName)
	if err != nil {
		return fmt.Errorf("i2c open %q: %w", s.busName, err)
	}

	dev, err := bmxx80.NewI2C(bus, s.addr, &bmxx80.DefaultOpts)
	if err != nil {
		_ = bus.Close()
		return fmt.Errorf("bme280 at 0x%02X: %w", s.addr, err)
	}

	s.bus = bus
	s.dev = dev
	return nil
}

func (s *BME280) ReadTemperature() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	env, ok := s.senseLocked()
	if !ok {
		return math.NaN()
	}
	return env.Temperature.Celsius()
}

// ReadHumidity converts from periph's 0.00001 %rH fixed point.
func (s *BME280) ReadHumidity() float64 {
	env, ok := s.lastEnv()
	if !ok {
		return math.NaN()
	}
	return float64(env.Humidity) / float64(physic.PercentRH)
}

// ReadPressure converts from periph's nanopascals to pascals.
func (s *BME280) ReadPressure() float64 {
	env, ok := s.lastEnv()
	if !ok {
		return math.NaN()
	}
	return float64(env.Pressure) / float64(physic.Pascal)
}

// lastEnv returns the conversion of the latest ReadTemperature, sensing
// first if there has been none.
func (s *BME280) lastEnv() (physic.Env, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.sensed {
		return s.senseLocked()
	}
	return s.env, s.envErr == nil
}

func (s *BME280) senseLocked() (physic.Env, bool) {
	if s.dev == nil {
		return physic.Env{}, false
	}
	var env physic.Env
	err := s.dev.Sense(&env)
	s.env, s.envErr, s.sensed = env, err, true
	if err != nil {
		slog.Debug("bme280 sense failed", "addr", fmt.Sprintf("0x%02X", s.addr), "error", err)
		return env, false
	}
	return env, true
}

func (s *BME280) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.dev != nil {
		errs = append(errs, s.dev.Halt())
		s.dev = nil
		s.sensed = false
	}
	if s.bus != nil {
		errs = append(errs, s.bus.Close())
		s.bus = nil
	}
	return errors.Join(errs...)
}
