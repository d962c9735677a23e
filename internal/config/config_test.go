package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var envKeys = []string{
	"APP_ENV", "LOG_LEVEL", "HTTP_ADDR", "SENSOR_DRIVER", "I2C_BUS", "BME280_ADDRESS",
	"SAMPLE_INTERVAL", "UPLOAD_INTERVAL", "POLL_INTERVAL", "REQUEST_QUEUE_SIZE",
	"WIFI_SSID", "WIFI_PASSWORD", "NETWORK_INTERFACE", "NETWORK_RETRY_INTERVAL",
	"SENSOR_RETRY_MAX_INTERVAL", "THINGSPEAK_URL", "THINGSPEAK_CHANNEL_ID", "THINGSPEAK_API_KEY",
	"THINGSPEAK_TIMEOUT", "TELEMETRY_STATUS", "MQTT_BROKER", "MQTT_PORT", "MQTT_CLIENT_ID", "STATION_ID",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	got, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v, want nil", err)
	}

	if got.AppEnv != "dev" {
		t.Errorf("AppEnv = %q, want %q", got.AppEnv, "dev")
	}
	if got.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want %v", got.LogLevel, slog.LevelInfo)
	}
	if got.HTTPAddr != ":80" {
		t.Errorf("HTTPAddr = %q, want %q", got.HTTPAddr, ":80")
	}
	if got.SensorDriver != "bme280" {
		t.Errorf("SensorDriver = %q, want bme280", got.SensorDriver)
	}
	if got.BME280Address != 0x76 {
		t.Errorf("BME280Address = %#x, want 0x76", got.BME280Address)
	}
	if got.SampleInterval != 5*time.Second {
		t.Errorf("SampleInterval = %v, want 5s", got.SampleInterval)
	}
	if got.UploadInterval != 20*time.Second {
		t.Errorf("UploadInterval = %v, want 20s", got.UploadInterval)
	}
	if got.PollInterval != 10*time.Millisecond {
		t.Errorf("PollInterval = %v, want 10ms", got.PollInterval)
	}
	if got.RequestQueueSize != 16 {
		t.Errorf("RequestQueueSize = %d, want 16", got.RequestQueueSize)
	}
	if got.ThingSpeakURL != "https://api.thingspeak.com" {
		t.Errorf("ThingSpeakURL = %q", got.ThingSpeakURL)
	}
	if got.TelemetryStatus != "Alles in Ordnung!" {
		t.Errorf("TelemetryStatus = %q", got.TelemetryStatus)
	}
	if got.MQTTEnabled() {
		t.Error("MQTTEnabled() = true with no broker, want false")
	}
	if !strings.HasPrefix(got.MQTTClientID, "weather-node-") {
		t.Errorf("MQTTClientID = %q, want weather-node- prefix", got.MQTTClientID)
	}
	if got.StationID != "home" {
		t.Errorf("StationID = %q, want home", got.StationID)
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("HTTP_ADDR", " :8080 ")
	t.Setenv("SENSOR_DRIVER", "Simulated")
	t.Setenv("BME280_ADDRESS", "0x77")
	t.Setenv("SAMPLE_INTERVAL", "250ms")
	t.Setenv("THINGSPEAK_URL", "http://127.0.0.1:9000/")
	t.Setenv("THINGSPEAK_CHANNEL_ID", "123456")
	t.Setenv("THINGSPEAK_API_KEY", " KEY ")
	t.Setenv("MQTT_BROKER", "broker.local")
	t.Setenv("MQTT_PORT", "1884")
	t.Setenv("MQTT_CLIENT_ID", "node-1")

	got, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v, want nil", err)
	}
	if got.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want :8080", got.HTTPAddr)
	}
	if got.SensorDriver != "simulated" {
		t.Errorf("SensorDriver = %q, want simulated", got.SensorDriver)
	}
	if got.BME280Address != 0x77 {
		t.Errorf("BME280Address = %#x, want 0x77", got.BME280Address)
	}
	if got.SampleInterval != 250*time.Millisecond {
		t.Errorf("SampleInterval = %v, want 250ms", got.SampleInterval)
	}
	if got.ThingSpeakURL != "http://127.0.0.1:9000" {
		t.Errorf("ThingSpeakURL = %q, want trailing slash trimmed", got.ThingSpeakURL)
	}
	if got.ThingSpeakChannelID != 123456 {
		t.Errorf("ThingSpeakChannelID = %d, want 123456", got.ThingSpeakChannelID)
	}
	if got.ThingSpeakAPIKey != "KEY" {
		t.Errorf("ThingSpeakAPIKey = %q, want KEY", got.ThingSpeakAPIKey)
	}
	if !got.MQTTEnabled() || got.MQTTPort != 1884 || got.MQTTClientID != "node-1" {
		t.Errorf("mqtt = %q:%d id=%q", got.MQTTBroker, got.MQTTPort, got.MQTTClientID)
	}
}

func TestLoadFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "app env", key: "APP_ENV", value: "staging"},
		{name: "log level", key: "LOG_LEVEL", value: "loud"},
		{name: "sensor driver", key: "SENSOR_DRIVER", value: "dht22"},
		{name: "bme280 address", key: "BME280_ADDRESS", value: "zz"},
		{name: "sample interval", key: "SAMPLE_INTERVAL", value: "often"},
		{name: "zero upload interval", key: "UPLOAD_INTERVAL", value: "0s"},
		{name: "negative poll interval", key: "POLL_INTERVAL", value: "-1ms"},
		{name: "queue size", key: "REQUEST_QUEUE_SIZE", value: "0"},
		{name: "channel id", key: "THINGSPEAK_CHANNEL_ID", value: "abc"},
		{name: "mqtt port", key: "MQTT_PORT", value: "port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := LoadFromEnv()
			if err == nil {
				t.Fatalf("LoadFromEnv() with %s=%q error = nil, want non-nil", tt.key, tt.value)
			}
			if !strings.Contains(err.Error(), tt.key) {
				t.Errorf("error %q does not name %s", err, tt.key)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "INFO", want: slog.LevelInfo},
		{in: " warning ", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "", want: slog.LevelInfo, wantErr: true},
		{in: "nope", want: slog.LevelInfo, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseLogLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseLogLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestLoadSecrets(t *testing.T) {
	t.Run("missing optional file is ignored", func(t *testing.T) {
		if err := LoadSecrets(filepath.Join(t.TempDir(), "absent.env"), false); err != nil {
			t.Fatalf("LoadSecrets() error = %v, want nil", err)
		}
	})

	t.Run("missing required file fails", func(t *testing.T) {
		if err := LoadSecrets(filepath.Join(t.TempDir(), "absent.env"), true); err == nil {
			t.Fatal("LoadSecrets() error = nil, want non-nil")
		}
	})

	t.Run("file values do not override environment", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "secrets.env")
		content := "WIFI_SSID=from-file\nTHINGSPEAK_API_KEY=file-key\n"
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("write secrets: %v", err)
		}
		t.Setenv("WIFI_SSID", "from-env")
		t.Setenv("THINGSPEAK_API_KEY", "")
		os.Unsetenv("THINGSPEAK_API_KEY")

		if err := LoadSecrets(path, true); err != nil {
			t.Fatalf("LoadSecrets() error = %v", err)
		}
		if got := os.Getenv("WIFI_SSID"); got != "from-env" {
			t.Errorf("WIFI_SSID = %q, want from-env", got)
		}
		if got := os.Getenv("THINGSPEAK_API_KEY"); got != "file-key" {
			t.Errorf("THINGSPEAK_API_KEY = %q, want file-key", got)
		}
	})
}
