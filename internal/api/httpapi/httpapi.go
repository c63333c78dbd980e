package httpapi

import (
	"context"
	_ "embed"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/litperpro/litper/internal/broker/messages"
	"github.com/litperpro/litper/internal/metrics"
	"github.com/litperpro/litper/internal/services/rescue"
	"github.com/litperpro/litper/internal/services/shipments"
	"github.com/litperpro/litper/internal/services/tracking"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
)

//go:embed openapi.json
var openAPISpec []byte

// ActivityLog: журнал действий очереди спасения (Postgres).
type ActivityLog interface {
	ListRescueActivity(ctx context.Context, trackingNumber string, limit int) ([]messages.RescueActivity, error)
}

type Options struct {
	BulkMaxConcurrent  int
	RateLimitPerMinute int
	// Ready проверяет зависимости для /readyz; nil: всегда готов.
	Ready func(ctx context.Context) error
}

type API struct {
	tracking  *tracking.Service
	rescue    *rescue.Service
	shipments *shipments.Service
	activity  ActivityLog

	opts     Options
	validate *validator.Validate
}

// New: shipments и activity могут быть nil, тогда соответствующие маршруты не регистрируются.
func New(t *tracking.Service, r *rescue.Service, sh *shipments.Service, activity ActivityLog, opts Options) *API {
	if opts.BulkMaxConcurrent <= 0 {
		opts.BulkMaxConcurrent = tracking.DefaultMaxConcurrent
	}
	return &API{
		tracking:  t,
		rescue:    r,
		shipments: sh,
		activity:  activity,
		opts:      opts,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(instrument)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", a.readyz)
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(openAPISpec)
	})
	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/swagger.json")))

	r.Route("/api/v1", func(r chi.Router) {
		if a.opts.RateLimitPerMinute > 0 {
			r.Use(httprate.Limit(
				a.opts.RateLimitPerMinute,
				time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
					writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				}),
			))
		}

		r.Route("/tracking", func(r chi.Router) {
			r.Get("/carriers", a.listCarriers)
			r.Get("/detect/{number}", a.detectCarrier)
			r.Post("/bulk", a.bulkTracking)
			r.Delete("/cache", a.clearCache)
			r.Get("/cache/stats", a.cacheStats)
			r.Get("/{number}", a.getTracking)
		})

		r.Route("/rescue", func(r chi.Router) {
			r.Get("/stats", a.rescueStats)
			r.Get("/export.csv", a.exportCSV)
			r.Post("/whatsapp/bulk", a.bulkWhatsApp)

			r.Post("/queue", a.addToQueue)
			r.Post("/queue/bulk", a.addBulkToQueue)
			r.Get("/queue", a.getQueue)
			r.Route("/queue/{number}", func(r chi.Router) {
				r.Get("/", a.getItem)
				r.Get("/script", a.callScript)
				r.Get("/activity", a.itemActivity)
				r.Post("/whatsapp", a.sendWhatsApp)
				r.Post("/call-pending", a.callPending)
				r.Post("/call-completed", a.callCompleted)
				r.Post("/recovered", a.recovered)
				r.Post("/lost", a.lost)
				r.Post("/cancel", a.cancel)
				r.Post("/reschedule", a.reschedule)
			})
		})

		if a.shipments != nil {
			r.Route("/shipments", func(r chi.Router) {
				r.Post("/", a.createShipments)
				r.Get("/", a.getShipments)
				r.Get("/{id}/events", a.shipmentEvents)
				r.Post("/{id}/refresh", a.refreshShipment)
			})
		}
	})

	return r
}

func (a *API) readyz(w http.ResponseWriter, r *http.Request) {
	if a.opts.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.opts.Ready(ctx); err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
