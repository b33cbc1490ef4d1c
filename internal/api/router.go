package api

import (
	"context"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/system", s.handleSystem)

		if s.bridge != nil {
			r.Get("/state", s.handleState)
		}

		if s.history != nil {
			r.Route("/data", func(r chi.Router) {
				r.Get("/", listHandler(s, s.history.ListEntries))
				r.Get("/general", listHandler(s, s.history.ListGeneral))
				r.Get("/battery", listHandler(s, s.history.ListBattery))
				r.Get("/location", listHandler(s, s.history.ListLocation))
			})
		}
	})

	if s.hub != nil {
		path := s.wsCfg.Path
		if path == "" {
			path = "/ws"
		}
		r.Get(path, s.handleWebSocket)
	}

	return r
}

// handleHealth reports "ok", or "degraded" with 503 when a dependency check fails.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	checks := make(map[string]string, len(s.checks))

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := s.checks[name].HealthCheck(ctx)
		cancel()
		if err != nil {
			checks[name] = err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	resp := map[string]any{
		"status":  status,
		"version": s.version,
	}
	if len(checks) > 0 {
		resp["checks"] = checks
	}
	if s.bridge != nil {
		resp["state"] = s.bridge.Status().State
	}
	writeJSON(w, code, resp)
}

// handleState returns the orchestrator status, including the last published snapshot.
func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.bridge.Status())
}
