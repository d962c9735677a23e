package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
)

// Route binds one method and exact path to a handler.
type Route struct {
	Method  string
	Path    string
	Handler http.HandlerFunc
}

// NewRouter builds a router from an explicit route table. Requests that match
// no entry, including a known path with another method, get NotFound.
func NewRouter(routes []Route) *mux.Router {
	r := mux.NewRouter()
	for _, rt := range routes {
		r.HandleFunc(rt.Path, rt.Handler).Methods(rt.Method)
	}
	r.NotFoundHandler = http.HandlerFunc(NotFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(NotFound)
	return r
}

// NotFound writes a plain 404 with the body "Not found".
func NotFound(w http.ResponseWriter, _ *http.Request) {
	WriteText(w, http.StatusNotFound, "Not found")
}

func WriteText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(body)); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}
