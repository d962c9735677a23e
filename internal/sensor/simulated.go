package sensor

import (
	"math"
	"time"
)

// Simulated produces slowly varying plausible values for benches without hardware.
type Simulated struct {
	start time.Time
	now   func() time.Time
}

func NewSimulated() *Simulated {
	return &Simulated{start: time.Now(), now: time.Now}
}

func (s *Simulated) Init() error { return nil }

func (s *Simulated) ReadTemperature() float64 {
	return 21.0 + 1.5*s.wave(10*time.Minute)
}

func (s *Simulated) ReadHumidity() float64 {
	return 47.0 + 5.0*s.wave(15*time.Minute)
}

func (s *Simulated) ReadPressure() float64 {
	return 101320.0 + 150.0*s.wave(time.Hour)
}

func (s *Simulated) wave(period time.Duration) float64 {
	phase := float64(s.now().Sub(s.start)) / float64(period)
	return math.Sin(2 * math.Pi * phase)
}
