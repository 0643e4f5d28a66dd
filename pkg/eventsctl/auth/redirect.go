package auth

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/telekom/eventsctl/pkg/metrics"
)

// reserved parameters ExtraAuthParams may not override.
var reservedAuthParams = map[string]struct{}{
	"client_id":             {},
	"redirect_uri":          {},
	"response_type":         {},
	"scope":                 {},
	"code_challenge":        {},
	"code_challenge_method": {},
}

// Redirector starts a login: it creates and stores the verifier and sends the
// user agent to the authorization endpoint.
type Redirector struct {
	cfg       ProviderConfig
	endpoints Endpoints
	random    RandomSource
	digest    Digest
	storage   ScopedStorage
	navigator Navigator
	log       *zap.SugaredLogger
}

// BeginLogin replaces any stored verifier with a fresh one and navigates to
// the authorization URL, which is also returned for display.
func (r *Redirector) BeginLogin(ctx context.Context) (string, error) {
	verifier, err := GenerateVerifier(r.random, r.cfg.VerifierLength)
	if err != nil {
		return "", err
	}
	if err := r.storage.Set(VerifierKey, verifier); err != nil {
		return "", fmt.Errorf("failed to store code verifier: %w", err)
	}
	authURL := r.AuthorizationURL(DeriveChallenge(r.digest, verifier))
	metrics.LoginsStarted.WithLabelValues(r.cfg.Realm).Inc()
	r.log.Infow("Starting authorization code login", "realm", r.cfg.Realm, "clientID", r.cfg.ClientID, "redirectURI", r.navigator.Origin())
	if err := r.navigator.Navigate(ctx, authURL); err != nil {
		return authURL, fmt.Errorf("failed to navigate to authorization endpoint: %w", err)
	}
	return authURL, nil
}

// AuthorizationURL builds the authorization request for a challenge.
func (r *Redirector) AuthorizationURL(challenge string) string {
	oauthCfg := oauth2.Config{
		ClientID:    r.cfg.ClientID,
		Endpoint:    oauth2.Endpoint{AuthURL: r.endpoints.AuthURL, TokenURL: r.endpoints.TokenURL},
		RedirectURL: r.navigator.Origin(),
		Scopes:      r.cfg.Scopes,
	}
	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("code_challenge", challenge),
		oauth2.SetAuthURLParam("code_challenge_method", ChallengeMethodS256),
	}
	for k, v := range r.cfg.ExtraAuthParams {
		if _, reserved := reservedAuthParams[k]; reserved {
			continue
		}
		opts = append(opts, oauth2.SetAuthURLParam(k, v))
	}
	return oauthCfg.AuthCodeURL("", opts...)
}
