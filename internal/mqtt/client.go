package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"weatherstation-node/internal/config"
	"weatherstation-node/internal/types"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

var (
	ErrStopped      = errors.New("client stopped")
	ErrNotConnected = errors.New("mqtt client not connected")
)

const publishTimeout = 5 * time.Second

// Client mirrors the node's telemetry to an MQTT broker.
type Client struct {
	client    mqtt.Client
	stationID string
	broker    string
	port      int
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool

	// healthMu orders health publishes so the final healthy=false on
	// Disconnect cannot be overtaken by a late healthy=true.
	healthMu sync.Mutex

	stopCh   chan struct{}
	stopOnce sync.Once
}

func TelemetryTopic(stationID string) string {
	return fmt.Sprintf("stations/%s/telemetry", stationID)
}

func HealthTopic(stationID string) string {
	return fmt.Sprintf("stations/%s/health", stationID)
}

func NewClient(cfg config.Config, logger *slog.Logger) (*Client, error) {
	if cfg.MQTTBroker == "" {
		return nil, errors.New("mqtt broker not configured")
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		stationID: cfg.StationID,
		broker:    cfg.MQTTBroker,
		port:      cfg.MQTTPort,
		logger:    logger,
		stopCh:    make(chan struct{}),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTTBroker, cfg.MQTTPort))
	opts.SetClientID(cfg.MQTTClientID)
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	// The broker marks the station unhealthy if the node drops off.
	if will, err := json.Marshal(types.StationHealth{StationID: cfg.StationID, Healthy: false}); err == nil {
		opts.SetBinaryWill(HealthTopic(cfg.StationID), will, 1, true)
	}

	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)

	c.client = mqtt.NewClient(opts)
	return c, nil
}

// onConnect runs on the initial connect and on every automatic reconnect.
// The broker may hold the retained last will by now, so health is announced
// again each time.
func (c *Client) onConnect(_ mqtt.Client) {
	c.setConnected(true)
	c.logger.Info("mqtt connected", "broker", c.broker, "port", c.port)

	// paho callbacks must not wait on tokens.
	go c.announceHealthy()
}

func (c *Client) onConnectionLost(_ mqtt.Client, err error) {
	c.setConnected(false)
	c.logger.Warn("mqtt connection lost", "error", err)
}

func (c *Client) announceHealthy() {
	c.healthMu.Lock()
	defer c.healthMu.Unlock()

	select {
	case <-c.stopCh:
		return
	default:
	}
	if err := c.PublishHealth(true); err != nil {
		c.logger.Warn("mqtt health publish failed", "error", err)
	}
}

// Connect waits for the initial connection and respects ctx and Disconnect.
func (c *Client) Connect(ctx context.Context) error {
	select {
	case <-c.stopCh:
		return ErrStopped
	default:
	}

	if c.IsConnected() {
		return nil
	}

	// With ConnectRetry the token only completes once connected or stopped.
	token := c.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stopCh:
			return ErrStopped
		default:
		}
	}
}

// PublishTelemetry publishes a telemetry message to the station topic.
func (c *Client) PublishTelemetry(telemetry types.Telemetry) error {
	if telemetry.StationID == "" {
		telemetry.StationID = c.stationID
	}
	if telemetry.Timestamp.IsZero() {
		telemetry.Timestamp = time.Now().UTC()
	}
	topic := TelemetryTopic(telemetry.StationID)
	if err := c.publish(topic, false, telemetry); err != nil {
		return fmt.Errorf("publish telemetry: %w", err)
	}
	c.logger.Debug("published telemetry", "topic", topic)
	return nil
}

// PublishHealth publishes the retained liveness state of this station.
func (c *Client) PublishHealth(healthy bool) error {
	health := types.StationHealth{
		StationID: c.stationID,
		LastSeen:  time.Now().UTC(),
		Healthy:   healthy,
	}
	topic := HealthTopic(c.stationID)
	if err := c.publish(topic, true, health); err != nil {
		return fmt.Errorf("publish health: %w", err)
	}
	c.logger.Debug("published station health", "topic", topic, "healthy", healthy)
	return nil
}

func (c *Client) publish(topic string, retained bool, v any) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	token := c.client.Publish(topic, 1, retained, data)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		c.logger.Error("mqtt publish failed", "topic", topic, "error", err)
		return err
	}
	return nil
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	connected := c.connected
	c.mu.RUnlock()
	return connected && c.client.IsConnected()
}

// Disconnect marks the station unhealthy, since a clean disconnect does not
// trigger the last will, then stops the client and closes the connection. It
// is idempotent; afterwards Connect returns ErrStopped.
func (c *Client) Disconnect() {
	first := false
	c.stopOnce.Do(func() {
		close(c.stopCh)
		first = true
	})
	if !first {
		return
	}

	c.healthMu.Lock()
	if c.IsConnected() {
		if err := c.PublishHealth(false); err != nil {
			c.logger.Warn("mqtt health publish failed", "error", err)
		}
	}
	c.healthMu.Unlock()

	// Also ends a connect attempt still retrying in the background.
	if c.client != nil {
		c.client.Disconnect(250)
	}
	c.setConnected(false)
	c.logger.Info("mqtt disconnected")
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}
