// Package cli defines the events-api server flags and their environment
// variable fallbacks: listen address, Keycloak realm, token validation
// method, required scope, CORS origins and rate limits.
package cli
