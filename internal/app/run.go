package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"weatherstation-node/internal/clock"
	"weatherstation-node/internal/config"
	"weatherstation-node/internal/dispatcher"
	"weatherstation-node/internal/httpapi"
	"weatherstation-node/internal/mqtt"
	"weatherstation-node/internal/network"
	"weatherstation-node/internal/publisher"
	"weatherstation-node/internal/sensor"
	"weatherstation-node/internal/startup"
	"weatherstation-node/internal/telemetry"
	"weatherstation-node/internal/types"
)

func Run(ctx context.Context, cfg config.Config) error {
	slog.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"httpAddr", cfg.HTTPAddr,
		"sensorDriver", cfg.SensorDriver,
		"i2cBus", cfg.I2CBus,
		"bme280Address", fmt.Sprintf("0x%02x", cfg.BME280Address),
		"sampleInterval", cfg.SampleInterval,
		"uploadInterval", cfg.UploadInterval,
		"networkInterface", cfg.NetworkInterface,
		"thingSpeakURL", cfg.ThingSpeakURL,
		"thingSpeakChannelID", cfg.ThingSpeakChannelID,
		"mqttBroker", cfg.MQTTBroker,
		"mqttPort", cfg.MQTTPort,
		"stationID", cfg.StationID,
	)

	if err := publisher.LoadTemplates(); err != nil {
		return err
	}

	device := sensor.Open(cfg)
	defer closeDevice(device)

	machine := startup.New(device, network.NewHostLink(cfg.NetworkInterface), startup.Options{
		SSID:                   cfg.WiFiSSID,
		Password:               cfg.WiFiPassword,
		NetworkRetryInterval:   cfg.NetworkRetryInterval,
		SensorRetryMaxInterval: cfg.SensorRetryMaxInterval,
		Logger:                 slog.Default(),
	})
	ip, err := machine.Run(ctx)
	if err != nil {
		return err
	}

	var mirror telemetry.Mirror
	if cfg.MQTTEnabled() {
		mqttClient, err := mqtt.NewClient(cfg, slog.Default())
		if err != nil {
			return err
		}
		defer func() {
			slog.Info("mqtt disconnecting")
			mqttClient.Disconnect()
		}()
		mirror = mqttClient

		// Uploads keep going to ThingSpeak while the broker is unreachable.
		// The client announces health itself on every connect.
		go func() {
			if err := mqttClient.Connect(ctx); err != nil {
				if !errors.Is(err, context.Canceled) && !errors.Is(err, mqtt.ErrStopped) {
					slog.Warn("mqtt connection failed (continuing without mqtt)", "error", err)
				}
			}
		}()
	}

	uploader := telemetry.NewUploader(
		telemetry.NewThingSpeak(cfg.ThingSpeakURL, cfg.ThingSpeakTimeout),
		telemetry.Options{
			ChannelID: cfg.ThingSpeakChannelID,
			APIKey:    cfg.ThingSpeakAPIKey,
			Status:    cfg.TelemetryStatus,
			StationID: cfg.StationID,
			Mirror:    mirror,
			Logger:    slog.Default(),
		},
	)
	// Runs before the MQTT disconnect deferred above.
	defer uploader.Close()

	d := dispatcher.New(
		clock.NewMonotonic(),
		sensor.NewSampler(device, slog.Default()),
		uploader,
		dispatcher.Options{
			SampleInterval: cfg.SampleInterval,
			UploadInterval: cfg.UploadInterval,
			PollInterval:   cfg.PollInterval,
			QueueSize:      cfg.RequestQueueSize,
		},
	)

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	dispatchDone := make(chan error, 1)
	go func() {
		dispatchDone <- d.Run(runCtx)
	}()

	srv := httpapi.NewServer(cfg.HTTPAddr, publisher.New(d).Routes())

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http listening", "addr", cfg.HTTPAddr, "ip", ip.String())
		errCh <- srv.ListenAndServe()
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		if errors.Is(serveErr, http.ErrServerClosed) {
			serveErr = nil
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if serveErr == nil {
		slog.Info("http shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	cancelRun()
	<-dispatchDone

	if serveErr != nil {
		return serveErr
	}
	return ctx.Err()
}

// SampleOnce initializes the configured sensor, takes one sample and writes
// it to w.
func SampleOnce(cfg config.Config, w io.Writer) (types.Reading, error) {
	device := sensor.Open(cfg)
	defer closeDevice(device)

	if err := device.Init(); err != nil {
		return types.Reading{}, fmt.Errorf("%w: %w", startup.ErrSensorFailed, err)
	}

	var r types.Reading
	sensor.NewSampler(device, slog.Default()).Sample(&r)

	_, err := fmt.Fprintf(w, "Temperature: %.2f °C\nHumidity: %.2f %%\nPressure: %.2f hPa\n",
		r.Temperature, r.Humidity, r.Pressure)
	return r, err
}

func closeDevice(device sensor.Device) {
	c, ok := device.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		slog.Warn("sensor close", "error", err)
	}
}
