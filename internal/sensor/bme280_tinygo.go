//go:build tinygo

package sensor

import (
	"errors"
	"math"

	"machine"

	"tinygo.org/x/drivers/bme280"
)

// BME280 reads a Bosch BME280 on the board's first I²C peripheral.
type BME280 struct {
	addr uint16
	dev  *bme280.Device
}

// NewBME280 prepares a driver for the sensor at addr. The bus name is ignored
// on microcontrollers.
func NewBME280(_ string, addr uint16) *BME280 {
	return &BME280{addr: addr}
}

func (s *BME280) Init() error {
	if s.dev != nil {
		return nil
	}
	i2c := machine.I2C0
	if err := i2c.Configure(machine.I2CConfig{
		Frequency: 400 * machine.KHz,
	}); err != nil {
		return err
	}

	dev := bme280.New(i2c)
	dev.Address = s.addr
	dev.Configure()
	if !dev.Connected() {
		return errors.New("bme280 not found")
	}
	s.dev = &dev
	return nil
}

// ReadTemperature converts from milli-degrees Celsius.
func (s *BME280) ReadTemperature() float64 {
	if s.dev == nil {
		return math.NaN()
	}
	t, err := s.dev.ReadTemperature()
	if err != nil {
		return math.NaN()
	}
	return float64(t) / 1000
}

// ReadHumidity converts from hundredths of a percent.
func (s *BME280) ReadHumidity() float64 {
	if s.dev == nil {
		return math.NaN()
	}
	h, err := s.dev.ReadHumidity()
	if err != nil {
		return math.NaN()
	}
	return float64(h) / 100
}

// ReadPressure converts from millipascals.
func (s *BME280) ReadPressure() float64 {
	if s.dev == nil {
		return math.NaN()
	}
	p, err := s.dev.ReadPressure()
	if err != nil {
		return math.NaN()
	}
	return float64(p) / 1000
}

func (s *BME280) Close() error {
	return nil
}
