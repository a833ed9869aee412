package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "billing_http_request_duration_seconds",
			Help:    "HTTP request latency by path and status.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method", "status"},
	)

	webhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_webhook_events_total",
			Help: "Webhook deliveries by event type and outcome.",
		},
		[]string{"event_type", "outcome"},
	)

	unresolvedIdentitiesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "billing_unresolved_identities_total",
			Help: "Webhook events dropped because no email could be resolved.",
		},
	)
)

// Webhook outcomes recorded per delivery.
const (
	OutcomeApplied = "applied"
	OutcomeIgnored = "ignored"
	OutcomeDropped = "dropped"
	OutcomeError   = "error"
)

// RecordWebhookEvent counts one processed delivery.
func RecordWebhookEvent(eventType, outcome string) {
	webhookEventsTotal.WithLabelValues(eventType, outcome).Inc()
}

// RecordUnresolvedIdentity counts one acknowledged-and-dropped event.
func RecordUnresolvedIdentity() {
	unresolvedIdentitiesTotal.Inc()
}

// Metrics instruments a handler with the request duration histogram.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		httpRequestDuration.
			WithLabelValues(r.URL.Path, r.Method, strconv.Itoa(rec.status)).
			Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
