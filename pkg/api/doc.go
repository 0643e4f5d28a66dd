// Package api implements the events API server (Gin-based): CRUD endpoints for
// events protected by Keycloak bearer tokens, validated either against the
// realm JWKS or through token introspection, plus health and metrics endpoints.
package api
