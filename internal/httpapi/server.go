package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/handlers"
)

func NewServer(addr string, routes []Route) *http.Server {
	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{}),
		handlers.PrintRecoveryStack(false),
	)
	return &http.Server{
		Addr:              addr,
		Handler:           requestLogger(recovery(NewRouter(routes))),
		ReadHeaderTimeout: 5 * time.Second,
	}
}
