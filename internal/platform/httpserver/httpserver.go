package httpserver

import (
	"net/http"
	"time"
)

// New builds the ops HTTP server. Timeouts are tight because the only
// traffic is health probes, metrics scrapes and support lookups.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
