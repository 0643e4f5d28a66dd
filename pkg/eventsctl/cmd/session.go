package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/telekom/eventsctl/pkg/eventsctl/auth"
	"github.com/telekom/eventsctl/pkg/eventsctl/config"
	"github.com/telekom/eventsctl/pkg/eventsctl/output"
)

func (rt *runtimeState) resolveProvider() (*config.Context, *config.OIDCProvider, error) {
	ctxCfg, err := rt.ResolveContext()
	if err != nil {
		return nil, nil, err
	}
	provider, err := rt.cfg.ResolveProvider(ctxCfg)
	if err != nil {
		return nil, nil, err
	}
	return ctxCfg, provider, nil
}

func providerConfig(p *config.OIDCProvider) auth.ProviderConfig {
	return auth.ProviderConfig{
		BaseURL:         p.KeycloakURL,
		Realm:           p.Realm,
		ClientID:        p.ClientID,
		Scopes:          p.Scopes,
		ExtraAuthParams: p.ExtraAuthParams,
		ExchangeTimeout: p.ExchangeTimeout,
		LoginTimeout:    p.LoginTimeout,
		VerifyIDToken:   p.VerifyIDToken,
	}
}

func (rt *runtimeState) timeout() time.Duration {
	if rt.cfg != nil {
		return rt.cfg.Settings.Timeout
	}
	return 0
}

// newSession builds the per-process session for provider. Storage holds the
// code verifier; nil keeps it in memory.
func (rt *runtimeState) newSession(provider *config.OIDCProvider, nav auth.Navigator, storage auth.ScopedStorage) (*auth.Session, error) {
	httpClient, err := auth.NewHTTPClient(provider.CAFile, provider.InsecureSkipTLS, rt.timeout())
	if err != nil {
		return nil, err
	}
	if storage == nil {
		storage = auth.NewMemoryStorage()
	}
	session, err := auth.NewSession(providerConfig(provider), nav,
		auth.WithStorage(storage),
		auth.WithHTTPClient(httpClient),
		auth.WithLogger(rt.Logger()),
	)
	if err != nil {
		return nil, err
	}
	session.OnAuthenticated(func(tokens auth.TokenSet) {
		id := identityFromTokens(tokens)
		rt.Logger().Infow("Logged in", "provider", provider.Name, "user", id.Username, "subject", id.Subject, "expiresAt", tokens.ExpiresAt)
	})
	return session, nil
}

// persistentStorage is the verifier storage that survives between two
// invocations, used by manual logins.
func (rt *runtimeState) persistentStorage() (auth.ScopedStorage, error) {
	mode := rt.VerifierStorage()
	if mode == config.VerifierStorageMemory {
		return nil, errors.New("manual login needs file or keyring verifier storage")
	}
	return auth.NewStorage(mode, config.DefaultPendingLoginPath())
}

func (rt *runtimeState) interactiveNavigator(provider *config.OIDCProvider) (auth.Navigator, func(), error) {
	factory := rt.newNavigator
	if factory == nil {
		factory = loopbackNavigator
	}
	nav, err := factory(provider.RedirectURI, rt.ErrWriter(), rt.OpenBrowser())
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {}
	if c, ok := nav.(io.Closer); ok {
		closeFn = func() { _ = c.Close() }
	}
	return nav, closeFn, nil
}

func loopbackNavigator(redirectURI string, out io.Writer, openBrowser bool) (auth.Navigator, error) {
	return auth.NewLoopbackNavigator(redirectURI, out, openBrowser)
}

// login runs a complete interactive login and returns the authenticated session.
func (rt *runtimeState) login(ctx context.Context) (*auth.Session, *config.Context, func(), error) {
	ctxCfg, provider, err := rt.resolveProvider()
	if err != nil {
		return nil, nil, nil, err
	}
	nav, closeNav, err := rt.interactiveNavigator(provider)
	if err != nil {
		return nil, nil, nil, err
	}
	session, err := rt.newSession(provider, nav, nil)
	if err != nil {
		closeNav()
		return nil, nil, nil, err
	}
	if err := session.Authenticate(ctx); err != nil {
		closeNav()
		return nil, nil, nil, describeAuthError(err)
	}
	return session, ctxCfg, closeNav, nil
}

// describeAuthError adds a hint for the failures a user can act on.
func describeAuthError(err error) error {
	switch {
	case auth.IsKind(err, auth.KindMissingVerifier):
		return fmt.Errorf("%w; start a new login with 'eventsctl auth login'", err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w; the login was not completed in time", err)
	}
	var authErr *auth.Error
	if errors.As(err, &authErr) && authErr.Code == "access_denied" {
		return fmt.Errorf("%w; the identity provider denied the login", err)
	}
	return err
}

type tokenIdentity struct {
	Subject  string
	Username string
	Scopes   []string
}

// identityFromTokens reads display information from the held tokens without
// verifying them; the events API performs the real validation.
func identityFromTokens(tokens auth.TokenSet) tokenIdentity {
	var id tokenIdentity
	parser := jwt.Parser{}
	for _, raw := range []string{tokens.AccessToken, tokens.IDToken} {
		if raw == "" {
			continue
		}
		claims := jwt.MapClaims{}
		if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
			continue
		}
		if id.Subject == "" {
			id.Subject, _ = claims["sub"].(string)
		}
		if id.Username == "" {
			if username, ok := claims["preferred_username"].(string); ok && username != "" {
				id.Username = username
			} else if email, ok := claims["email"].(string); ok {
				id.Username = email
			}
		}
		if len(id.Scopes) == 0 {
			if scope, ok := claims["scope"].(string); ok {
				id.Scopes = strings.Fields(scope)
			}
		}
	}
	return id
}

func buildAuthStatus(ctxName string, provider *config.OIDCProvider, session *auth.Session) output.AuthStatus {
	status := output.AuthStatus{
		Context:  ctxName,
		Issuer:   auth.KeycloakEndpoints(provider.KeycloakURL, provider.Realm).Issuer,
		ClientID: provider.ClientID,
	}
	if session == nil {
		return status
	}
	status.PendingLogin, _ = session.PendingLogin()
	if tokens, ok := session.Tokens(); ok {
		id := identityFromTokens(tokens)
		status.Authenticated = true
		status.Subject = id.Subject
		status.Username = id.Username
		status.Scopes = id.Scopes
		status.ExpiresAt = tokens.ExpiresAt
	}
	return status
}

func writeAuthStatus(rt *runtimeState, status output.AuthStatus) error {
	format, err := output.ParseFormat(rt.OutputFormat())
	if err != nil {
		return err
	}
	switch format {
	case output.FormatTable, output.FormatWide:
		output.WriteAuthStatusTable(rt.Writer(), status)
		return nil
	default:
		return output.WriteObject(rt.Writer(), format, status)
	}
}
