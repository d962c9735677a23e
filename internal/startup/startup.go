// Package startup brings the node from power-on to the point where it can
// sample and serve: the sensor must answer, then the network must come up.
//
// A missing sensor is fail-stop. The machine parks in SensorFailed and keeps
// logging, with growing pauses, until its context ends. Network failures are
// retried at a fixed interval for as long as it takes.
package startup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
)

var ErrSensorFailed = errors.New("sensor not found")

type State int

const (
	Initializing State = iota
	SensorFailed
	Connecting
	Ready
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case SensorFailed:
		return "sensor_failed"
	case Connecting:
		return "connecting"
	case Ready:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type Sensor interface {
	Init() error
}

type Link interface {
	Connect(ssid, password string) error
	Connected() bool
	LocalIP() net.IP
}

type Options struct {
	SSID     string
	Password string
	// NetworkRetryInterval is the pause between connection attempts.
	NetworkRetryInterval time.Duration
	// SensorRetryMaxInterval caps the pause between sensor-failure log lines.
	SensorRetryMaxInterval time.Duration
	Logger                 *slog.Logger
}

type Machine struct {
	sensor Sensor
	link   Link
	opts   Options
	logger *slog.Logger

	state          State
	sensorBackoff  backoff.BackOff
	networkBackoff backoff.BackOff

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func New(s Sensor, link Link, opts Options) *Machine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.NetworkRetryInterval <= 0 {
		opts.NetworkRetryInterval = time.Second
	}
	if opts.SensorRetryMaxInterval <= 0 {
		opts.SensorRetryMaxInterval = 30 * time.Second
	}

	sb := backoff.NewExponentialBackOff()
	sb.InitialInterval = time.Second
	if sb.InitialInterval > opts.SensorRetryMaxInterval {
		sb.InitialInterval = opts.SensorRetryMaxInterval
	}
	sb.MaxInterval = opts.SensorRetryMaxInterval
	sb.MaxElapsedTime = 0
	sb.Reset()

	return &Machine{
		sensor:         s,
		link:           link,
		opts:           opts,
		logger:         logger,
		state:          Initializing,
		sensorBackoff:  sb,
		networkBackoff: backoff.NewConstantBackOff(opts.NetworkRetryInterval),
		sleep:          sleepContext,
	}
}

func (m *Machine) State() State {
	return m.state
}

// Step performs the work of the current state once and returns the state
// reached. It only returns an error when ctx ends during a pause.
func (m *Machine) Step(ctx context.Context) (State, error) {
	switch m.state {
	case Initializing:
		if err := m.sensor.Init(); err != nil {
			m.logger.Error("could not find a valid BME280 sensor, check wiring", "error", err)
			m.state = SensorFailed
			return m.state, nil
		}
		m.logger.Info("sensor initialized")
		m.logger.Info("network connecting", "ssid", m.opts.SSID)
		m.state = Connecting
		return m.state, nil

	case SensorFailed:
		d := m.sensorBackoff.NextBackOff()
		m.logger.Error(ErrSensorFailed.Error(), "retry_in", d)
		if err := m.sleep(ctx, d); err != nil {
			return m.state, err
		}
		return m.state, nil

	case Connecting:
		err := m.link.Connect(m.opts.SSID, m.opts.Password)
		if err == nil && m.link.Connected() {
			m.state = Ready
			m.logger.Info("network connected", "ip", m.link.LocalIP().String())
			return m.state, nil
		}
		d := m.networkBackoff.NextBackOff()
		m.logger.Debug("network not ready", "error", err, "retry_in", d)
		if err := m.sleep(ctx, d); err != nil {
			return m.state, err
		}
		return m.state, nil

	default:
		return m.state, nil
	}
}

// Run steps the machine until it is Ready. A machine stuck in SensorFailed
// only returns once ctx ends, with an error matching ErrSensorFailed.
func (m *Machine) Run(ctx context.Context) (net.IP, error) {
	for m.state != Ready {
		if err := ctx.Err(); err != nil {
			return nil, m.wrap(err)
		}
		if _, err := m.Step(ctx); err != nil {
			return nil, m.wrap(err)
		}
	}
	return m.link.LocalIP(), nil
}

func (m *Machine) wrap(err error) error {
	if m.state == SensorFailed {
		return fmt.Errorf("%w: %w", ErrSensorFailed, err)
	}
	return fmt.Errorf("startup %s: %w", m.state, err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
