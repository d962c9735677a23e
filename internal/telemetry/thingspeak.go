package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Result codes of a channel write. Positive values are HTTP status codes;
// negative values match the ThingSpeak client library's error codes.
const (
	OK                   = 200
	ErrOutOfRange        = -101
	ErrInvalidFieldNum   = -201
	ErrSetFieldNotCalled = -210
	ErrConnectFailed     = -301
	ErrUnexpectedFail    = -302
	ErrBadResponse       = -303
	ErrTimeout           = -304
	ErrNotInserted       = -401
)

const (
	maxFields = 8
	// ThingSpeak rejects field values outside this range.
	fieldMin = -999999999999.0
	fieldMax = 999999999999.0
	// Status messages are truncated to this length by the service.
	maxStatusLen = 255
)

// ThingSpeak writes channel updates to the ThingSpeak REST API.
// Pending field values and status are cleared after every write attempt.
type ThingSpeak struct {
	baseURL string
	client  *http.Client

	fields [maxFields]*string
	status *string
}

func NewThingSpeak(baseURL string, timeout time.Duration) *ThingSpeak {
	return &ThingSpeak{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// SetField stages value for field (1..8). It returns OK or a negative code.
func (t *ThingSpeak) SetField(field int, value float64) int {
	if field < 1 || field > maxFields {
		return ErrInvalidFieldNum
	}
	if value < fieldMin || value > fieldMax {
		return ErrOutOfRange
	}
	s := strconv.FormatFloat(value, 'f', -1, 64)
	t.fields[field-1] = &s
	return OK
}

func (t *ThingSpeak) SetStatus(status string) int {
	if len(status) > maxStatusLen {
		return ErrOutOfRange
	}
	t.status = &status
	return OK
}

// WriteFields posts the staged values to the channel and returns the result code.
func (t *ThingSpeak) WriteFields(ctx context.Context, channelID uint64, apiKey string) int {
	defer t.reset()

	form := url.Values{}
	form.Set("api_key", apiKey)
	staged := false
	for i, v := range t.fields {
		if v != nil {
			form.Set("field"+strconv.Itoa(i+1), *v)
			staged = true
		}
	}
	if t.status != nil {
		form.Set("status", *t.status)
		staged = true
	}
	if !staged {
		return ErrSetFieldNotCalled
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/update", strings.NewReader(form.Encode()))
	if err != nil {
		slog.Debug("thingspeak: build request failed", "channel_id", channelID, "error", err)
		return ErrUnexpectedFail
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		slog.Debug("thingspeak: request failed", "channel_id", channelID, "error", err)
		return transportCode(err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64))
	if err != nil {
		return ErrBadResponse
	}
	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode
	}

	// The service answers 200 with the new entry id, or "0" when nothing was stored.
	entryID, err := strconv.ParseInt(strings.TrimSpace(string(body)), 10, 64)
	if err != nil {
		return ErrBadResponse
	}
	if entryID == 0 {
		return ErrNotInserted
	}
	return OK
}

func (t *ThingSpeak) reset() {
	t.fields = [maxFields]*string{}
	t.status = nil
}

func transportCode(err error) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}
	return ErrConnectFailed
}

// CodeText describes a result code for log lines.
func CodeText(code int) string {
	switch code {
	case ErrOutOfRange:
		return "value out of range"
	case ErrInvalidFieldNum:
		return "invalid field number"
	case ErrSetFieldNotCalled:
		return "no fields set"
	case ErrConnectFailed:
		return "failed to connect"
	case ErrUnexpectedFail:
		return "unexpected failure"
	case ErrBadResponse:
		return "unable to parse response"
	case ErrTimeout:
		return "timeout waiting for server"
	case ErrNotInserted:
		return "point was not inserted"
	}
	if text := http.StatusText(code); text != "" {
		return text
	}
	return fmt.Sprintf("code %d", code)
}
