// Package client implements the HTTP client eventsctl uses to talk to the
// events API. Bearer tokens are attached by the transport the caller installs,
// and every request carries an X-Request-ID for correlation with API logs.
package client
