package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

const DefaultSecretsFile = "secrets.env"

type Config struct {
	AppEnv   string
	LogLevel slog.Level
	HTTPAddr string

	SensorDriver  string
	I2CBus        string
	BME280Address uint16

	SampleInterval   time.Duration
	UploadInterval   time.Duration
	PollInterval     time.Duration
	RequestQueueSize int

	WiFiSSID               string
	WiFiPassword           string
	NetworkInterface       string
	NetworkRetryInterval   time.Duration
	SensorRetryMaxInterval time.Duration

	ThingSpeakURL       string
	ThingSpeakChannelID uint64
	ThingSpeakAPIKey    string
	ThingSpeakTimeout   time.Duration
	TelemetryStatus     string

	// MQTTBroker empty disables the MQTT telemetry mirror.
	MQTTBroker   string
	MQTTPort     int
	MQTTClientID string
	StationID    string
}

// MQTTEnabled reports whether a broker is configured.
func (c Config) MQTTEnabled() bool {
	return c.MQTTBroker != ""
}

// LoadSecrets reads KEY=value pairs from a dotenv file into the process
// environment. Variables already set in the environment win. A missing file
// is only an error when required is true.
func LoadSecrets(path string, required bool) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}
	if !required && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load secrets %s: %w", path, err)
}

func LoadFromEnv() (Config, error) {
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = "dev"
	}
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	logLevelStr := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if logLevelStr == "" {
		logLevelStr = "info"
	}
	level, err := parseLogLevel(logLevelStr)
	if err != nil {
		return Config{}, err
	}

	httpAddr := strings.TrimSpace(os.Getenv("HTTP_ADDR"))
	if httpAddr == "" {
		httpAddr = ":80"
	}

	sensorDriver := strings.ToLower(strings.TrimSpace(os.Getenv("SENSOR_DRIVER")))
	if sensorDriver == "" {
		sensorDriver = "bme280"
	}
	switch sensorDriver {
	case "bme280", "simulated":
	default:
		return Config{}, fmt.Errorf("invalid SENSOR_DRIVER %q (allowed: bme280, simulated)", sensorDriver)
	}

	bme280AddressStr := strings.TrimSpace(os.Getenv("BME280_ADDRESS"))
	if bme280AddressStr == "" {
		bme280AddressStr = "0x76"
	}
	bme280Address, err := strconv.ParseUint(bme280AddressStr, 0, 16)
	if err != nil {
		return Config{}, fmt.Errorf("invalid BME280_ADDRESS %q: %w", bme280AddressStr, err)
	}

	sampleInterval, err := positiveDuration("SAMPLE_INTERVAL", "5s")
	if err != nil {
		return Config{}, err
	}
	uploadInterval, err := positiveDuration("UPLOAD_INTERVAL", "20s")
	if err != nil {
		return Config{}, err
	}
	pollInterval, err := positiveDuration("POLL_INTERVAL", "10ms")
	if err != nil {
		return Config{}, err
	}
	networkRetryInterval, err := positiveDuration("NETWORK_RETRY_INTERVAL", "1s")
	if err != nil {
		return Config{}, err
	}
	sensorRetryMaxInterval, err := positiveDuration("SENSOR_RETRY_MAX_INTERVAL", "30s")
	if err != nil {
		return Config{}, err
	}
	thingSpeakTimeout, err := positiveDuration("THINGSPEAK_TIMEOUT", "10s")
	if err != nil {
		return Config{}, err
	}

	queueSizeStr := strings.TrimSpace(os.Getenv("REQUEST_QUEUE_SIZE"))
	if queueSizeStr == "" {
		queueSizeStr = "16"
	}
	queueSize, err := strconv.Atoi(queueSizeStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid REQUEST_QUEUE_SIZE %q: %w", queueSizeStr, err)
	}
	if queueSize <= 0 {
		return Config{}, fmt.Errorf("REQUEST_QUEUE_SIZE must be positive, got %d", queueSize)
	}

	thingSpeakURL := strings.TrimSpace(os.Getenv("THINGSPEAK_URL"))
	if thingSpeakURL == "" {
		thingSpeakURL = "https://api.thingspeak.com"
	}
	thingSpeakURL = strings.TrimRight(thingSpeakURL, "/")

	var channelID uint64
	if s := strings.TrimSpace(os.Getenv("THINGSPEAK_CHANNEL_ID")); s != "" {
		channelID, err = strconv.ParseUint(s, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid THINGSPEAK_CHANNEL_ID %q: %w", s, err)
		}
	}

	telemetryStatus := strings.TrimSpace(os.Getenv("TELEMETRY_STATUS"))
	if telemetryStatus == "" {
		telemetryStatus = "Alles in Ordnung!"
	}

	mqttPortStr := strings.TrimSpace(os.Getenv("MQTT_PORT"))
	if mqttPortStr == "" {
		mqttPortStr = "1883"
	}
	mqttPort, err := strconv.Atoi(mqttPortStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid MQTT_PORT %q: %w", mqttPortStr, err)
	}

	mqttClientID := strings.TrimSpace(os.Getenv("MQTT_CLIENT_ID"))
	if mqttClientID == "" {
		mqttClientID = "weather-node-" + uuid.NewString()[:8]
	}

	stationID := strings.TrimSpace(os.Getenv("STATION_ID"))
	if stationID == "" {
		stationID = "home"
	}

	return Config{
		AppEnv:                 appEnv,
		LogLevel:               level,
		HTTPAddr:               httpAddr,
		SensorDriver:           sensorDriver,
		I2CBus:                 strings.TrimSpace(os.Getenv("I2C_BUS")),
		BME280Address:          uint16(bme280Address),
		SampleInterval:         sampleInterval,
		UploadInterval:         uploadInterval,
		PollInterval:           pollInterval,
		RequestQueueSize:       queueSize,
		WiFiSSID:               strings.TrimSpace(os.Getenv("WIFI_SSID")),
		WiFiPassword:           os.Getenv("WIFI_PASSWORD"),
		NetworkInterface:       strings.TrimSpace(os.Getenv("NETWORK_INTERFACE")),
		NetworkRetryInterval:   networkRetryInterval,
		SensorRetryMaxInterval: sensorRetryMaxInterval,
		ThingSpeakURL:          thingSpeakURL,
		ThingSpeakChannelID:    channelID,
		ThingSpeakAPIKey:       strings.TrimSpace(os.Getenv("THINGSPEAK_API_KEY")),
		ThingSpeakTimeout:      thingSpeakTimeout,
		TelemetryStatus:        telemetryStatus,
		MQTTBroker:             strings.TrimSpace(os.Getenv("MQTT_BROKER")),
		MQTTPort:               mqttPort,
		MQTTClientID:           mqttClientID,
		StationID:              stationID,
	}, nil
}

func positiveDuration(key, def string) (time.Duration, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		s = def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %v", key, d)
	}
	return d, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
