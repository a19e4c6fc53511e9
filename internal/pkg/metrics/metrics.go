package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HTTPRequestsTotal counts handled requests by method, path and status.
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTPRequestDuration observes request latency in seconds.
	HTTPRequestDuration prometheus.Histogram

	// AuthFailuresTotal counts rejected authentications by reason.
	AuthFailuresTotal *prometheus.CounterVec

	// SecurityEventsTotal counts recorded security events.
	SecurityEventsTotal prometheus.Counter

	// LoginThrottledTotal counts login requests rejected by the rate limiter.
	LoginThrottledTotal prometheus.Counter
)

var initOnce sync.Once

// Init registers all collectors. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tasktracker_http_requests_total",
			Help: "Handled HTTP requests.",
		}, []string{"method", "path", "status"})

		HTTPRequestDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tasktracker_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		})

		AuthFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tasktracker_auth_failures_total",
			Help: "Rejected authentications by reason.",
		}, []string{"reason"})

		SecurityEventsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tasktracker_security_events_total",
			Help: "Security events written to the event log.",
		})

		LoginThrottledTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tasktracker_login_throttled_total",
			Help: "Login requests rejected by the rate limiter.",
		})

		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			AuthFailuresTotal,
			SecurityEventsTotal,
			LoginThrottledTotal,
		)
	})
}
