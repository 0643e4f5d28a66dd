package auth

import (
	"errors"
	"strings"
	"time"
)

// ProviderConfig is the identity provider and client configuration the core
// consumes. It is owned by the caller.
type ProviderConfig struct {
	// BaseURL is the Keycloak base URL, e.g. https://sso.example.com.
	BaseURL  string
	Realm    string
	ClientID string
	Scopes   []string
	// ExtraAuthParams are appended to the authorization request. They cannot
	// override the PKCE or client parameters.
	ExtraAuthParams map[string]string
	// ExchangeTimeout bounds the token endpoint call.
	ExchangeTimeout time.Duration
	// LoginTimeout bounds the wait for the provider redirect in Authenticate.
	LoginTimeout time.Duration
	// VerifierLength defaults to DefaultVerifierLength.
	VerifierLength int
	// VerifyIDToken checks the id_token signature, issuer and audience after exchange.
	VerifyIDToken bool
}

const (
	DefaultExchangeTimeout = 15 * time.Second
	DefaultLoginTimeout    = 5 * time.Minute
)

// DefaultScopes are requested when none are configured.
var DefaultScopes = []string{"openid", "events-api-access"}

func (c ProviderConfig) Validate() error {
	if c.BaseURL == "" || c.Realm == "" || c.ClientID == "" {
		return errors.New("keycloak-url, realm and client-id are required")
	}
	if c.VerifierLength != 0 && (c.VerifierLength < MinVerifierLength || c.VerifierLength > MaxVerifierLength) {
		return errors.New("verifier-length must be between 43 and 128")
	}
	return nil
}

func (c ProviderConfig) withDefaults() ProviderConfig {
	if len(c.Scopes) == 0 {
		c.Scopes = DefaultScopes
	}
	if c.ExchangeTimeout <= 0 {
		c.ExchangeTimeout = DefaultExchangeTimeout
	}
	if c.LoginTimeout <= 0 {
		c.LoginTimeout = DefaultLoginTimeout
	}
	if c.VerifierLength == 0 {
		c.VerifierLength = DefaultVerifierLength
	}
	return c
}

// Endpoints are the OpenID Connect endpoints of one Keycloak realm.
type Endpoints struct {
	Issuer    string
	AuthURL   string
	TokenURL  string
	LogoutURL string
}

func KeycloakEndpoints(baseURL, realm string) Endpoints {
	issuer := strings.TrimRight(baseURL, "/") + "/realms/" + realm
	oidcBase := issuer + "/protocol/openid-connect"
	return Endpoints{
		Issuer:    issuer,
		AuthURL:   oidcBase + "/auth",
		TokenURL:  oidcBase + "/token",
		LogoutURL: oidcBase + "/logout",
	}
}
