package api

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/Nerzal/gocloak/v13"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"

	"github.com/telekom/eventsctl/pkg/metrics"
	"github.com/telekom/eventsctl/pkg/system"
)

const (
	AuthHeaderKey = "Authorization"

	identityKey = "identity"
)

var (
	ErrInactiveToken = errors.New("token is not active")
	ErrIssuer        = errors.New("token issuer mismatch")
)

// Identity is what the API learns about the caller from a validated token.
type Identity struct {
	Subject  string
	Username string
	Email    string
	Scopes   []string
	Roles    []string
}

func (i *Identity) HasScope(scope string) bool {
	return slices.Contains(i.Scopes, scope)
}

// HasAllScopes is true when every scope is granted, or none is required.
func (i *Identity) HasAllScopes(scopes ...string) bool {
	for _, s := range scopes {
		if !i.HasScope(s) {
			return false
		}
	}
	return true
}

// TokenValidator turns a raw bearer token into an Identity.
type TokenValidator interface {
	Validate(ctx context.Context, rawToken string) (*Identity, error)
}

// keycloakClaims are the access token claims the API reads.
type keycloakClaims struct {
	jwt.RegisteredClaims
	Scope             string `json:"scope,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`
	Email             string `json:"email,omitempty"`
	RealmAccess       struct {
		Roles []string `json:"roles,omitempty"`
	} `json:"realm_access,omitempty"`
}

func (c *keycloakClaims) identity() *Identity {
	return &Identity{
		Subject:  c.Subject,
		Username: c.PreferredUsername,
		Email:    c.Email,
		Scopes:   strings.Fields(c.Scope),
		Roles:    c.RealmAccess.Roles,
	}
}

// JWKSValidator verifies token signatures against the realm's published keys.
type JWKSValidator struct {
	keyfunc jwt.Keyfunc
	jwks    *keyfunc.JWKS
	issuer  string
	parser  *jwt.Parser
}

// NewJWKSValidator fetches the key set at jwksURL and keeps it refreshed in the background.
func NewJWKSValidator(log *zap.SugaredLogger, jwksURL, issuer string, client *http.Client) (*JWKSValidator, error) {
	options := keyfunc.Options{
		Client:            client,
		RefreshInterval:   time.Hour,
		RefreshTimeout:    10 * time.Second,
		RefreshRateLimit:  time.Minute,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			log.Errorw("Failed to refresh JWKS", "url", jwksURL, "error", err)
		},
	}
	jwks, err := keyfunc.Get(jwksURL, options)
	if err != nil {
		return nil, fmt.Errorf("failed to load JWKS from %s: %w", jwksURL, err)
	}
	v := NewKeyfuncValidator(jwks.Keyfunc, issuer)
	v.jwks = jwks
	return v, nil
}

// NewKeyfuncValidator validates with an arbitrary key lookup.
func NewKeyfuncValidator(kf jwt.Keyfunc, issuer string) *JWKSValidator {
	return &JWKSValidator{
		keyfunc: kf,
		issuer:  issuer,
		parser:  jwt.NewParser(jwt.WithValidMethods([]string{"RS256", "RS384", "RS512", "ES256", "ES384", "ES512", "PS256"})),
	}
}

func (v *JWKSValidator) Validate(_ context.Context, rawToken string) (*Identity, error) {
	claims := &keycloakClaims{}
	if _, err := v.parser.ParseWithClaims(rawToken, claims, v.keyfunc); err != nil {
		return nil, err
	}
	if v.issuer != "" && !claims.VerifyIssuer(v.issuer, true) {
		return nil, ErrIssuer
	}
	return claims.identity(), nil
}

// Close stops the background key refresh.
func (v *JWKSValidator) Close() {
	if v.jwks != nil {
		v.jwks.EndBackground()
	}
}

// IntrospectionValidator asks Keycloak whether a token is active. Keycloak
// decides validity; the identity is read from the token's own claims.
type IntrospectionValidator struct {
	client       *gocloak.GoCloak
	realm        string
	clientID     string
	clientSecret string
	parser       *jwt.Parser
}

func NewIntrospectionValidator(baseURL, realm, clientID, clientSecret string, client *http.Client) *IntrospectionValidator {
	gc := gocloak.NewClient(strings.TrimRight(baseURL, "/"))
	if client != nil {
		gc.RestyClient().SetTransport(client.Transport).SetTimeout(client.Timeout)
	}
	return &IntrospectionValidator{
		client:       gc,
		realm:        realm,
		clientID:     clientID,
		clientSecret: clientSecret,
		parser:       jwt.NewParser(),
	}
}

func (v *IntrospectionValidator) Validate(ctx context.Context, rawToken string) (*Identity, error) {
	result, err := v.client.RetrospectToken(ctx, rawToken, v.clientID, v.clientSecret, v.realm)
	if err != nil {
		return nil, fmt.Errorf("token introspection failed: %w", err)
	}
	if result == nil || result.Active == nil || !*result.Active {
		return nil, ErrInactiveToken
	}
	claims := &keycloakClaims{}
	if _, _, err := v.parser.ParseUnverified(rawToken, claims); err != nil {
		// opaque token: active, but without readable scopes
		return &Identity{}, nil
	}
	return claims.identity(), nil
}

// AuthHandler authenticates requests with a TokenValidator and enforces scopes.
type AuthHandler struct {
	validator TokenValidator
	realm     string
	log       *zap.SugaredLogger
}

func NewAuthHandler(log *zap.SugaredLogger, validator TokenValidator, realm string) *AuthHandler {
	return &AuthHandler{validator: validator, realm: realm, log: log}
}

// Middleware rejects requests without a valid bearer token with 401.
func (a *AuthHandler) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}
		log := system.GetReqLogger(c, a.log)
		authHeader := c.GetHeader(AuthHeaderKey)
		// delete the header to avoid logging it by accident
		c.Request.Header.Del(AuthHeaderKey)

		scheme, bearer, found := strings.Cut(authHeader, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(bearer) == "" {
			metrics.APIAuthFailures.WithLabelValues("missing_token").Inc()
			c.Header("WWW-Authenticate", fmt.Sprintf(`Bearer realm=%q`, a.realm))
			respondError(c, http.StatusUnauthorized, "no bearer token provided in Authorization header")
			return
		}

		identity, err := a.validator.Validate(c.Request.Context(), strings.TrimSpace(bearer))
		if err != nil {
			metrics.APIAuthFailures.WithLabelValues("invalid_token").Inc()
			log.Debugw("Bearer token rejected", "error", err)
			c.Header("WWW-Authenticate", fmt.Sprintf(`Bearer realm=%q, error="invalid_token"`, a.realm))
			respondError(c, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		c.Set(identityKey, identity)
		c.Set("subject", identity.Subject)
		c.Set("username", identity.Username)
		c.Set("email", identity.Email)
		c.Set("scopes", identity.Scopes)
		c.Set(system.ReqLoggerKey, system.EnrichReqLoggerWithAuth(c, log))
		c.Next()
	}
}

// RequireScopes rejects authenticated requests lacking any of scopes with 403.
func (a *AuthHandler) RequireScopes(scopes ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}
		identity := IdentityFrom(c)
		if identity == nil || !identity.HasAllScopes(scopes...) {
			metrics.APIAuthFailures.WithLabelValues("insufficient_scope").Inc()
			c.Header("WWW-Authenticate", fmt.Sprintf(`Bearer realm=%q, error="insufficient_scope", scope=%q`, a.realm, strings.Join(scopes, " ")))
			respondError(c, http.StatusForbidden, "insufficient scope")
			return
		}
		c.Next()
	}
}

// IdentityFrom returns the identity stored by Middleware, if any.
func IdentityFrom(c *gin.Context) *Identity {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil
	}
	identity, _ := v.(*Identity)
	return identity
}

// NewHTTPClient builds the client used for JWKS and introspection calls.
func NewHTTPClient(caFile string, insecureSkipVerify bool, timeout time.Duration) (*http.Client, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: insecureSkipVerify} // #nosec G402 -- opt-in for dev setups
	if caFile != "" {
		data, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if ok := pool.AppendCertsFromPEM(data); !ok {
			return nil, errors.New("could not parse CA file")
		}
		tlsConfig.RootCAs = pool
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsConfig
	return &http.Client{Transport: transport, Timeout: timeout}, nil
}
