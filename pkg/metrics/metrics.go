// Package metrics defines the Prometheus metric collectors used by the
// gateway and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the gateway.
type Metrics struct {
	HTTPRequestsTotal      *prometheus.CounterVec
	HTTPRequestDuration    *prometheus.HistogramVec
	HTTPRequestsInFlight   prometheus.Gauge
	SubmissionsTotal       *prometheus.CounterVec
	StatusLookupsTotal     *prometheus.CounterVec
	CaptchaVerifications   *prometheus.CounterVec
	RateLimitRejections    *prometheus.CounterVec
	TrackerRequestsTotal   *prometheus.CounterVec
	TrackerRequestDuration *prometheus.HistogramVec
	NotificationsTotal     *prometheus.CounterVec
	NotificationsInFlight  prometheus.Gauge
	StatusCacheLookups     *prometheus.CounterVec
	CircuitBreakerState    *prometheus.GaugeVec
	PipelineStageDuration  *prometheus.HistogramVec
}

// New creates all collectors and registers them with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		SubmissionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intake_submissions_total",
				Help: "Submissions by terminal outcome (created, invalid, rate_limited, captcha_rejected, captcha_unavailable, create_failed, internal).",
			},
			[]string{"outcome"},
		),
		StatusLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intake_status_lookups_total",
				Help: "Status lookups by outcome (found, not_found, invalid, error).",
			},
			[]string{"outcome"},
		),
		CaptchaVerifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "captcha_verifications_total",
				Help: "CAPTCHA verification results (accepted, rejected, unavailable).",
			},
			[]string{"result"},
		),
		RateLimitRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rate_limit_rejections_total",
				Help: "Requests rejected by per-IP admission control.",
			},
			[]string{"route"},
		),
		TrackerRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_requests_total",
				Help: "Ticket tracker API calls by operation and result.",
			},
			[]string{"operation", "result"},
		),
		TrackerRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tracker_request_duration_seconds",
				Help:    "Ticket tracker API latency in seconds.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"operation"},
		),
		NotificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifications_total",
				Help: "Best-effort notifications by channel and result.",
			},
			[]string{"channel", "result"},
		),
		NotificationsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "notifications_in_flight",
				Help: "Notifications dispatched but not yet finished.",
			},
		),
		StatusCacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "status_cache_lookups_total",
				Help: "Status cache lookups by result (hit, miss).",
			},
			[]string{"result"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
		PipelineStageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "intake_pipeline_stage_duration_seconds",
				Help:    "Duration of each submission pipeline stage.",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"stage"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SubmissionsTotal,
		m.StatusLookupsTotal,
		m.CaptchaVerifications,
		m.RateLimitRejections,
		m.TrackerRequestsTotal,
		m.TrackerRequestDuration,
		m.NotificationsTotal,
		m.NotificationsInFlight,
		m.StatusCacheLookups,
		m.CircuitBreakerState,
		m.PipelineStageDuration,
	)

	return m
}

// NewUnregistered returns collectors attached to a private registry. Used by
// tests and by components constructed without a metrics dependency.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
