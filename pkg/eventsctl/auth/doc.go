// Package auth implements the OAuth2 authorization code flow with PKCE for
// eventsctl: verifier/challenge generation, the authorization redirect, the
// code-for-token exchange, an in-memory token store and the session facade
// the rest of the CLI uses to decorate API requests.
package auth
