// Package ops exposes the operational HTTP surface: liveness,
// readiness, Prometheus metrics and read-only inspection endpoints for
// support tooling. Issuance is invoked as a library by the embedding
// API layer; no write endpoint lives here.
package ops

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"veritas/internal/attestation"
	id "veritas/pkg/domain"
	dErrors "veritas/pkg/domain-errors"
)

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// Inspector is the read-only slice of the attestation engine surfaced
// for operators.
type Inspector interface {
	Get(ctx context.Context, attID id.AttestationID) (*attestation.Attestation, error)
	Verify(ctx context.Context, uid id.AttestationUID) (*attestation.VerifyResult, error)
}

// Option customizes the ops router.
type Option func(*routerConfig)

type routerConfig struct {
	inspector Inspector
}

// WithInspector mounts read-only attestation lookup endpoints.
func WithInspector(inspector Inspector) Option {
	return func(c *routerConfig) { c.inspector = inspector }
}

// NewRouter builds the ops router. Checks run on /readyz; /healthz only
// states the process is up.
func NewRouter(checks map[string]HealthCheck, opts ...Option) http.Handler {
	var cfg routerConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(req.Context()); err != nil {
				status = http.StatusServiceUnavailable
				results[name] = err.Error()
				continue
			}
			results[name] = "ok"
		}
		writeJSON(w, status, results)
	})

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	if cfg.inspector != nil {
		r.Get("/attestations/{id}", getAttestation(cfg.inspector))
		r.Get("/attestations/uid/{uid}/verify", verifyAttestation(cfg.inspector))
	}
	return r
}

func getAttestation(inspector Inspector) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		attID, err := id.ParseAttestationID(chi.URLParam(req, "id"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid attestation id"})
			return
		}
		record, err := inspector.Get(req.Context(), attID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, record)
	}
}

func verifyAttestation(inspector Inspector) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		uid, err := id.ParseAttestationUID(chi.URLParam(req, "uid"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid attestation uid"})
			return
		}
		result, err := inspector.Verify(req.Context(), uid)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch dErrors.CodeOf(err) {
	case dErrors.CodeNotFound:
		status = http.StatusNotFound
	case dErrors.CodeInvalidInput:
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
