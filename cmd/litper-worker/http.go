package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/litperpro/litper/config"
	"github.com/litperpro/litper/internal/metrics"
	"github.com/litperpro/litper/internal/services/poller"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
)

//go:embed worker_openapi.json
var workerOpenAPI []byte

type workerHTTPOpts struct {
	httpAddr string
	onListen func(httpAddr string)

	poller *poller.Poller
	cfg    *config.Config
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func workerRouter(opts workerHTTPOpts) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		if opts.poller == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "poller not wired"})
			return
		}
		writeJSON(w, http.StatusOK, opts.poller.Stats())
	})

	r.Get("/config", func(w http.ResponseWriter, r *http.Request) {
		if opts.cfg == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "config not wired"})
			return
		}
		// только рабочие настройки воркера, без секретов
		c := opts.cfg.Litper
		writeJSON(w, http.StatusOK, map[string]any{
			"pollIntervalSeconds":          c.WorkerPollIntervalSeconds,
			"batchSize":                    c.WorkerBatchSize,
			"concurrency":                  c.WorkerConcurrency,
			"leaseSeconds":                 c.WorkerLeaseSeconds,
			"carrierTimeoutSeconds":        c.CarrierTimeoutSeconds,
			"nextCheckInTransitMinSeconds": c.WorkerNextCheckInTransitMinSeconds,
			"nextCheckInTransitMaxSeconds": c.WorkerNextCheckInTransitMaxSeconds,
			"nextCheckExceptionSeconds":    c.WorkerNextCheckExceptionSeconds,
			"nextCheckUnknownSeconds":      c.WorkerNextCheckUnknownSeconds,
			"carrierRateLimitsPerMinute": map[string]int{
				"coordinadora": opts.cfg.Carriers.Coordinadora.RateLimitPerMinute,
				"servientrega": opts.cfg.Carriers.Servientrega.RateLimitPerMinute,
				"aggregator":   opts.cfg.Carriers.Aggregator.RateLimitPerMinute,
			},
		})
	})

	r.Post("/trigger", func(w http.ResponseWriter, r *http.Request) {
		if opts.poller == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "poller not wired"})
			return
		}
		opts.poller.Trigger()
		writeJSON(w, http.StatusAccepted, map[string]bool{"triggered": true})
	})

	r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write(workerOpenAPI)
	})
	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/swagger.json")))

	return r
}

func runWorkerHTTPServer(ctx context.Context, opts workerHTTPOpts) error {
	if opts.httpAddr == "" {
		opts.httpAddr = ":8082"
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	srv := &http.Server{Handler: workerRouter(opts), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
