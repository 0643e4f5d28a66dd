// Package cmd implements the cobra command tree for eventsctl: logging in to
// Keycloak with the authorization code flow and PKCE, managing events through
// the events API, configuration and shell completion.
package cmd
