package httpserver

import (
	"net/http"

	"settlement-engine/internal/platform/config"
)

// New builds the engine's HTTP server. Timeouts come from the engine config
// after Validate has filled their defaults.
func New(addr string, handler http.Handler, timeouts config.HTTPTimeouts) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: timeouts.ReadHeader,
		ReadTimeout:       timeouts.Read,
		WriteTimeout:      timeouts.Write,
		IdleTimeout:       timeouts.Idle,
	}
}
