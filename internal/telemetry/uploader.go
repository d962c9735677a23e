// Package telemetry pushes the node's Reading to the remote time-series service.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"weatherstation-node/internal/types"
)

const (
	FieldTemperature = 1
	FieldHumidity    = 2
	FieldPressure    = 3
)

// Writer is a channel-update client: stage fields and a status, then write them
// in one transaction that returns an HTTP-style result code.
type Writer interface {
	SetField(field int, value float64) int
	SetStatus(status string) int
	WriteFields(ctx context.Context, channelID uint64, apiKey string) int
}

// Mirror receives a copy of every upload, e.g. an MQTT publisher.
type Mirror interface {
	PublishTelemetry(telemetry types.Telemetry) error
}

type Options struct {
	ChannelID uint64
	APIKey    string
	Status    string
	StationID string
	// Mirror is optional. It is fed from its own goroutine so a slow broker
	// never holds up the caller of Upload.
	Mirror Mirror
	// MirrorQueueSize bounds the messages waiting for the mirror; further
	// messages are dropped. Defaults to 8.
	MirrorQueueSize int
	Logger          *slog.Logger
}

// Uploader performs one write per call. Failures are logged and dropped; the
// next scheduled call is the retry.
type Uploader struct {
	writer Writer
	opts   Options
	logger *slog.Logger
	seq    int
	now    func() time.Time

	mirrorQ   chan types.Telemetry
	quit      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewUploader starts the mirror goroutine when opts.Mirror is set; Close
// stops it.
func NewUploader(writer Writer, opts Options) *Uploader {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	u := &Uploader{writer: writer, opts: opts, logger: logger, now: time.Now, quit: make(chan struct{})}
	if opts.Mirror != nil {
		size := opts.MirrorQueueSize
		if size <= 0 {
			size = 8
		}
		u.mirrorQ = make(chan types.Telemetry, size)
		u.wg.Add(1)
		go u.runMirror()
	}
	return u
}

// Close stops the mirror goroutine and waits for an in-flight publish.
// Messages still queued are dropped.
func (u *Uploader) Close() {
	u.closeOnce.Do(func() { close(u.quit) })
	u.wg.Wait()
}

func (u *Uploader) runMirror() {
	defer u.wg.Done()
	for {
		select {
		case <-u.quit:
			return
		case msg := <-u.mirrorQ:
			if err := u.opts.Mirror.PublishTelemetry(msg); err != nil {
				u.logger.Warn("telemetry mirror publish failed", "station_id", msg.StationID, "error", err)
			}
		}
	}
}

func (u *Uploader) Upload(ctx context.Context, r types.Reading) {
	u.stage(FieldTemperature, r.Temperature)
	u.stage(FieldHumidity, r.Humidity)
	u.stage(FieldPressure, r.Pressure)
	if code := u.writer.SetStatus(u.opts.Status); code != OK {
		u.logger.Debug("status not staged", "code", code, "reason", CodeText(code))
	}

	code := u.writer.WriteFields(ctx, u.opts.ChannelID, u.opts.APIKey)
	if code == OK {
		u.logger.Info("channel update successful", "channel_id", u.opts.ChannelID)
	} else {
		u.logger.Warn(fmt.Sprintf("problem updating channel, HTTP error code %d", code),
			"channel_id", u.opts.ChannelID,
			"code", code,
			"reason", CodeText(code),
		)
	}

	u.seq++
	if u.mirrorQ == nil {
		return
	}
	msg := types.NewTelemetry(u.opts.StationID, u.now().UTC(), r, u.opts.Status, u.seq)
	select {
	case u.mirrorQ <- msg:
	default:
		u.logger.Warn("telemetry mirror queue full, message dropped", "station_id", u.opts.StationID, "sequence", u.seq)
	}
}

func (u *Uploader) stage(field int, value float64) {
	if code := u.writer.SetField(field, value); code != OK {
		u.logger.Debug("field not staged", "field", field, "value", value, "code", code, "reason", CodeText(code))
	}
}
