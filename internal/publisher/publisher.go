// Package publisher serves the latest Reading as an HTML status page.
package publisher

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"

	"weatherstation-node/internal/httpapi"
	"weatherstation-node/internal/types"
)

// Source hands out a copy of the latest Reading. It must not wait for a new
// sample to be taken.
type Source interface {
	Snapshot(ctx context.Context) (types.Reading, error)
}

type Publisher struct {
	source Source
}

func New(source Source) *Publisher {
	return &Publisher{source: source}
}

// Routes is the node's route table; everything else is answered with 404.
func (p *Publisher) Routes() []httpapi.Route {
	return []httpapi.Route{
		{Method: http.MethodGet, Path: "/", Handler: p.handleIndex},
	}
}

func (p *Publisher) handleIndex(w http.ResponseWriter, r *http.Request) {
	reading, err := p.source.Snapshot(r.Context())
	if err != nil {
		// Only after the dispatcher has stopped or the client went away.
		slog.Warn("status page: no reading available", "error", err)
		httpapi.WriteText(w, http.StatusServiceUnavailable, "Service unavailable")
		return
	}

	var buf bytes.Buffer
	if err := RenderStatusPage(&buf, reading); err != nil {
		slog.Error("status page render failed", "error", err)
		httpapi.WriteText(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Error("status page: write response failed", "error", err)
	}
}
