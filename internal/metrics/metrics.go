package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated registry served on /metrics.
	Registry = prometheus.NewRegistry()

	CarrierLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "litper_carrier_lookups_total", Help: "Carrier lookups by carrier, mode and outcome."},
		[]string{"carrier", "mode", "outcome"},
	)
	CarrierLookupDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "litper_carrier_lookup_duration_seconds", Help: "Carrier lookup duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"carrier"},
	)
	TrackingCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "litper_tracking_cache_total", Help: "Tracking cache lookups by result."},
		[]string{"result"},
	)
	RescueTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "litper_rescue_transitions_total", Help: "Rescue queue transitions by target status."},
		[]string{"status"},
	)
	RescueQueueSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "litper_rescue_queue_size", Help: "Live rescue queue size by priority."},
		[]string{"priority"},
	)
	WhatsAppSends = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "litper_whatsapp_sends_total", Help: "WhatsApp rescue contacts by outcome."},
		[]string{"outcome"},
	)
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "litper_http_requests_total", Help: "HTTP requests by method, route and status."},
		[]string{"method", "route", "status"},
	)
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "litper_http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "route"},
	)
	PollerProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "litper_poller_processed_total", Help: "Watched shipments processed by the poller by outcome."},
		[]string{"outcome"},
	)
)

var regOnce sync.Once

// Register registers all collectors on Registry. Safe to call more than once.
func Register() {
	regOnce.Do(func() {
		Registry.MustRegister(
			CarrierLookups,
			CarrierLookupDuration,
			TrackingCache,
			RescueTransitions,
			RescueQueueSize,
			WhatsAppSends,
			HTTPRequests,
			HTTPDuration,
			PollerProcessed,
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
}
