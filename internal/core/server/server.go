// Package server exposes the operational HTTP surface of the intake binaries.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/raster-intake/internal/bulk"
	"github.com/mohammed-shakir/raster-intake/internal/core/health"
	middleware "github.com/mohammed-shakir/raster-intake/internal/core/middleware"
)

// JobLookup is satisfied by *bulk.Coordinator.
type JobLookup interface {
	Report(jobID string) (bulk.JobReport, bool)
}

type Routes struct {
	Metrics   http.Handler
	Readiness health.ReadinessReporter
	Deps      map[string]health.Pinger
	Jobs      JobLookup
}

func Handler(logger *slog.Logger, rt Routes) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(rt.Readiness, rt.Deps))
	if rt.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", rt.Metrics)
	}
	if rt.Jobs != nil {
		r.Get("/jobs/{id}", jobReport(rt.Jobs))
	}
	return r
}

func jobReport(jobs JobLookup) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rep, ok := jobs.Report(chi.URLParam(r, "id"))
		w.Header().Set("Content-Type", "application/json")
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "job not found"})
			return
		}
		_ = json.NewEncoder(w).Encode(rep)
	}
}

// Run serves h on addr until ctx is done.
func Run(ctx context.Context, addr string, logger *slog.Logger, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
