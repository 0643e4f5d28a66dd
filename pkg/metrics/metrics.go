package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Client-side auth flow metrics
	LoginsStarted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "eventsctl_login_started_total",
		Help: "Total number of authorization code logins started",
	}, []string{"realm"})
	// Outcome is "success" or the error kind that ended the exchange.
	TokenExchanges = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "eventsctl_token_exchange_total",
		Help: "Total number of authorization code exchanges by outcome",
	}, []string{"outcome"})
	Logouts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "eventsctl_logout_total",
		Help: "Total number of logouts",
	}, []string{"realm"})

	// Events API metrics. Route is the registered path template, never the raw
	// path, to keep cardinality bounded.
	APIRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "events_api_requests_total",
		Help: "Total number of events API requests",
	}, []string{"method", "route", "status"})
	APIAuthFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "events_api_auth_failures_total",
		Help: "Total number of requests rejected by bearer-token validation",
	}, []string{"reason"})
	APIRateLimited = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "events_api_rate_limited_total",
		Help: "Total number of requests rejected by the rate limiter",
	})
)

func init() {
	prometheus.MustRegister(LoginsStarted)
	prometheus.MustRegister(TokenExchanges)
	prometheus.MustRegister(Logouts)
	prometheus.MustRegister(APIRequests)
	prometheus.MustRegister(APIAuthFailures)
	prometheus.MustRegister(APIRateLimited)
}

// MetricsHandler returns an http.Handler exposing Prometheus metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
