package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/telekom/eventsctl/pkg/metrics"
)

// Session is the only surface the rest of eventsctl uses for authentication.
// One Session is created per process and passed to whatever needs auth state.
type Session struct {
	cfg        ProviderConfig
	endpoints  Endpoints
	navigator  Navigator
	storage    ScopedStorage
	random     RandomSource
	digest     Digest
	httpClient *http.Client
	now        func() time.Time
	log        *zap.SugaredLogger
	idVerifier IDTokenVerifier

	store      *TokenStore
	redirector *Redirector
	exchanger  *Exchanger

	mu        sync.Mutex
	listeners []func(TokenSet)
}

type Option func(*Session) error

func WithStorage(storage ScopedStorage) Option {
	return func(s *Session) error {
		if storage == nil {
			return errors.New("storage is nil")
		}
		s.storage = storage
		return nil
	}
}

func WithRandomSource(src RandomSource) Option {
	return func(s *Session) error {
		s.random = src
		return nil
	}
}

func WithDigest(d Digest) Option {
	return func(s *Session) error {
		s.digest = d
		return nil
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(s *Session) error {
		s.httpClient = client
		return nil
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Session) error {
		if now == nil {
			return errors.New("clock is nil")
		}
		s.now = now
		return nil
	}
}

func WithLogger(log *zap.SugaredLogger) Option {
	return func(s *Session) error {
		s.log = log
		return nil
	}
}

// WithIDTokenVerifier overrides the verifier used when VerifyIDToken is set.
func WithIDTokenVerifier(v IDTokenVerifier) Option {
	return func(s *Session) error {
		s.idVerifier = v
		return nil
	}
}

func NewSession(cfg ProviderConfig, navigator Navigator, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if navigator == nil {
		return nil, errors.New("navigator is required")
	}
	cfg = cfg.withDefaults()
	s := &Session{
		cfg:       cfg,
		endpoints: KeycloakEndpoints(cfg.BaseURL, cfg.Realm),
		navigator: navigator,
		storage:   NewMemoryStorage(),
		random:    CryptoRandom,
		digest:    SHA256,
		now:       time.Now,
		log:       zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.httpClient == nil {
		s.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.VerifyIDToken && s.idVerifier == nil {
		s.idVerifier = NewOIDCVerifier(s.endpoints.Issuer, cfg.ClientID, s.httpClient, s.now)
	}
	if !cfg.VerifyIDToken {
		s.idVerifier = nil
	}

	s.store = NewTokenStore(s.now)
	s.redirector = &Redirector{
		cfg:       cfg,
		endpoints: s.endpoints,
		random:    s.random,
		digest:    s.digest,
		storage:   s.storage,
		navigator: navigator,
		log:       s.log,
	}
	s.exchanger = &Exchanger{
		cfg:        cfg,
		endpoints:  s.endpoints,
		http:       resty.NewWithClient(s.httpClient).SetLogger(s.log),
		storage:    s.storage,
		navigator:  navigator,
		store:      s.store,
		idVerifier: s.idVerifier,
		log:        s.log,
	}
	return s, nil
}

// OnAuthenticated registers fn to run after every successful callback.
func (s *Session) OnAuthenticated(fn func(TokenSet)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Login starts a new authorization code login and returns the URL navigated to.
func (s *Session) Login(ctx context.Context) (string, error) {
	return s.redirector.BeginLogin(ctx)
}

// HandleCallback completes a login if the current location carries a code.
func (s *Session) HandleCallback(ctx context.Context) (*TokenSet, error) {
	tokens, err := s.exchanger.HandleCallback(ctx)
	if err != nil || tokens == nil {
		return tokens, err
	}
	s.mu.Lock()
	listeners := append([]func(TokenSet){}, s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(*tokens)
	}
	return tokens, nil
}

func (s *Session) IsAuthenticated() bool {
	return s.store.IsAuthenticated()
}

// AccessToken returns the valid access token or a KindUnauthenticated error.
func (s *Session) AccessToken() (string, error) {
	token, ok := s.store.AccessToken()
	if !ok {
		s.log.Debug("Access token requested while not authenticated")
		return "", newError(KindUnauthenticated, "access token", ErrUnauthenticated)
	}
	return token, nil
}

// Tokens returns the held token set while it is valid.
func (s *Session) Tokens() (TokenSet, bool) {
	return s.store.Snapshot()
}

// PendingLogin reports whether a verifier from an unfinished login is stored.
func (s *Session) PendingLogin() (bool, error) {
	_, ok, err := s.storage.Get(VerifierKey)
	return ok, err
}

// Logout drops all local state and navigates to the provider logout endpoint.
func (s *Session) Logout(ctx context.Context) (string, error) {
	s.store.Clear()
	if err := s.storage.Remove(VerifierKey); err != nil {
		s.log.Warnw("Failed to remove code verifier", "error", err)
	}
	metrics.Logouts.WithLabelValues(s.cfg.Realm).Inc()
	logoutURL := s.LogoutURL()
	s.log.Infow("Logging out", "realm", s.cfg.Realm)
	if err := s.navigator.Navigate(ctx, logoutURL); err != nil {
		return logoutURL, fmt.Errorf("failed to navigate to logout endpoint: %w", err)
	}
	return logoutURL, nil
}

func (s *Session) LogoutURL() string {
	return s.endpoints.LogoutURL + "?" + url.Values{"redirect_uri": {s.navigator.Origin()}}.Encode()
}

// Authenticate runs a complete login when no valid token is held. It needs a
// navigator that can wait for the provider redirect.
func (s *Session) Authenticate(ctx context.Context) error {
	if s.IsAuthenticated() {
		return nil
	}
	waiter, ok := s.navigator.(CallbackWaiter)
	if !ok {
		return errors.New("navigator cannot receive the login callback")
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.LoginTimeout)
	defer cancel()

	if _, err := s.Login(ctx); err != nil {
		return err
	}
	if err := waiter.WaitForCallback(ctx); err != nil {
		return fmt.Errorf("login callback not received: %w", err)
	}
	tokens, err := s.HandleCallback(ctx)
	if err != nil {
		return err
	}
	if tokens == nil {
		code := ""
		if location := s.navigator.Location(); location != nil {
			code = location.Query().Get("error")
		}
		return &Error{Kind: KindTokenEndpoint, Op: "authenticate", Code: code, Err: errors.New("callback carried no authorization code")}
	}
	return nil
}

// Reauthenticate discards the held tokens and logs in again. Callers use it
// after the API rejected a token with 401.
func (s *Session) Reauthenticate(ctx context.Context) error {
	s.store.Clear()
	return s.Authenticate(ctx)
}

// WithAuthHeader returns a copy of req carrying the bearer token, or req
// itself when no valid token is held.
func (s *Session) WithAuthHeader(req *http.Request) *http.Request {
	token, ok := s.store.AccessToken()
	if !ok {
		return req
	}
	authed := req.Clone(req.Context())
	(&oauth2.Token{AccessToken: token}).SetAuthHeader(authed)
	return authed
}

// Transport wraps base so every request goes through WithAuthHeader.
func (s *Session) Transport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &authTransport{session: s, base: base}
}

type authTransport struct {
	session *Session
	base    http.RoundTripper
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.base.RoundTrip(t.session.WithAuthHeader(req))
}
