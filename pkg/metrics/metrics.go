package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FlashRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flashgate_flash_requests_total",
		Help: "Total number of flash requests grouped by final stage and outcome",
	}, []string{"stage", "outcome"})
	RateLimitDenied = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flashgate_ratelimit_denied_total",
		Help: "Total number of requests denied by the fixed-window limiter",
	}, []string{"scope"})
	LoginFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flashgate_login_failures_total",
		Help: "Total number of failed login attempts",
	})
	LoginLockouts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flashgate_login_lockouts_total",
		Help: "Total number of login attempts rejected by the credential throttle",
	})
	UpstreamRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flashgate_upstream_requests_total",
		Help: "Total number of outbound weather/geocoding API calls grouped by outcome",
	}, []string{"api", "outcome"})
)

func init() {
	prometheus.MustRegister(FlashRequests)
	prometheus.MustRegister(RateLimitDenied)
	prometheus.MustRegister(LoginFailures)
	prometheus.MustRegister(LoginLockouts)
	prometheus.MustRegister(UpstreamRequests)
}

// MetricsHandler returns an http.Handler exposing Prometheus metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
