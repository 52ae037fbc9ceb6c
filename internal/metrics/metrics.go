package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	prospectTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_prospect_transitions_total",
			Help: "Prospect status changes applied by the lifecycle tracker",
		},
		[]string{"from", "to"},
	)

	dispatchOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_dispatch_outcomes_total",
			Help: "Per-prospect results of dispatch passes",
		},
		[]string{"outcome"},
	)

	dispatchPassDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "outreach_dispatch_pass_duration_seconds",
			Help:    "Wall time of one dispatch pass",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)

	campaignsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_campaigns_skipped_total",
			Help: "Campaigns skipped by a dispatch pass, by eligibility reason",
		},
		[]string{"reason"},
	)

	integrationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "integration_errors_total",
			Help: "Total number of integration errors",
		},
		[]string{"service", "kind"},
	)

	callbacksReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_status_callbacks_total",
			Help: "Status callbacks from the workflow orchestrator, by source and result",
		},
		[]string{"source", "result"},
	)
)

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware records request counts and latency by chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}
		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rw.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func RecordTransition(from, to string) {
	prospectTransitions.WithLabelValues(from, to).Inc()
}

func RecordDispatchOutcome(outcome string) {
	dispatchOutcomes.WithLabelValues(outcome).Inc()
}

func ObservePassDuration(d time.Duration) {
	dispatchPassDuration.Observe(d.Seconds())
}

func RecordCampaignSkipped(reason string) {
	campaignsSkipped.WithLabelValues(reason).Inc()
}

func RecordIntegrationError(service, kind string) {
	integrationErrors.WithLabelValues(service, kind).Inc()
}

func RecordCallback(source, result string) {
	callbacksReceived.WithLabelValues(source, result).Inc()
}
