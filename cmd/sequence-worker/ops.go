package main

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/leadcadencehq/leadcadence-backend/pkg/config"
	"github.com/leadcadencehq/leadcadence-backend/pkg/logger"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// opsDependency pairs a readiness dependency with the name reported when its
// ping fails.
type opsDependency struct {
	name string
	ping pinger
}

// newOpsRouter serves the worker's operational surface: liveness, readiness
// and Prometheus metrics. No domain routes live here.
func newOpsRouter(cfg *config.Config, logg *logger.Logger, deps []opsDependency) http.Handler {
	r := chi.NewRouter()

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", handleLive(cfg))
		r.Get("/ready", handleReady(cfg, logg, deps))
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func handleLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-LeadCadence-Env", cfg.App.Env)
		writeOpsJSON(w, http.StatusOK, map[string]string{"status": "live"})
	}
}

func handleReady(cfg *config.Config, logg *logger.Logger, deps []opsDependency) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-LeadCadence-Env", cfg.App.Env)
		for _, dep := range deps {
			if dep.ping == nil {
				continue
			}
			if err := dep.ping.Ping(r.Context()); err != nil {
				logg.Error(r.Context(), dep.name+" readiness ping failed", err)
				writeOpsJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status":     "unavailable",
					"dependency": dep.name,
				})
				return
			}
		}
		writeOpsJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func writeOpsJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
