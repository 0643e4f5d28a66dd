// Package metrics defines Prometheus metrics for eventsctl and the events API,
// covering login attempts, token exchanges, logouts, API requests and
// bearer-token validation failures.
package metrics
