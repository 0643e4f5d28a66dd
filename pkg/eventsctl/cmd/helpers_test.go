package cmd

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/telekom/eventsctl/pkg/api"
	"github.com/telekom/eventsctl/pkg/eventsctl/auth"
	"github.com/telekom/eventsctl/pkg/eventsctl/config"
)

const (
	testRealm       = "events"
	testClientID    = "events-cli"
	testRedirectURI = "http://127.0.0.1:8400/callback"
)

// fakeNavigator plays the browser: navigating to the authorization endpoint
// immediately "redirects" back with a fresh code.
type fakeNavigator struct {
	origin string

	mu         sync.Mutex
	location   *url.URL
	navigated  []string
	codes      int
	callbacks  chan struct{}
	denyLogins bool
}

func newFakeNavigator(origin string) *fakeNavigator {
	if origin == "" {
		origin = testRedirectURI
	}
	return &fakeNavigator{origin: origin, callbacks: make(chan struct{}, 1)}
}

func (n *fakeNavigator) Navigate(_ context.Context, target string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.navigated = append(n.navigated, target)
	u, err := url.Parse(target)
	if err != nil || !strings.HasSuffix(u.Path, "/protocol/openid-connect/auth") {
		return err
	}
	back, _ := url.Parse(u.Query().Get("redirect_uri"))
	if n.denyLogins {
		back.RawQuery = url.Values{"error": {"access_denied"}}.Encode()
	} else {
		n.codes++
		back.RawQuery = url.Values{"code": {fmt.Sprintf("code-%d", n.codes)}}.Encode()
	}
	n.location = back
	select {
	case n.callbacks <- struct{}{}:
	default:
	}
	return nil
}

func (n *fakeNavigator) Location() *url.URL {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.location == nil {
		return nil
	}
	u := *n.location
	return &u
}

func (n *fakeNavigator) ReplaceLocation(u *url.URL) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.location = u
}

func (n *fakeNavigator) Origin() string {
	return n.origin
}

func (n *fakeNavigator) WaitForCallback(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-n.callbacks:
		return nil
	}
}

// fakeKeycloak issues RS256 access tokens from its token endpoint.
type fakeKeycloak struct {
	*httptest.Server
	key        *rsa.PrivateKey
	tokenCalls atomic.Int32
	scope      atomic.Value
}

func newFakeKeycloak(t *testing.T) *fakeKeycloak {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	kc := &fakeKeycloak{key: key}
	kc.scope.Store("openid events-api-access")
	mux := http.NewServeMux()
	mux.HandleFunc("/realms/"+testRealm+"/protocol/openid-connect/token", func(w http.ResponseWriter, r *http.Request) {
		kc.tokenCalls.Add(1)
		if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "authorization_code" ||
			r.PostForm.Get("code_verifier") == "" || r.PostForm.Get("client_id") != testClientID {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_request"}`))
			return
		}
		if r.PostForm.Get("code") == "stale" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Code not valid"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": kc.sign(),
			"token_type":   "Bearer",
			"expires_in":   300,
		})
	})
	kc.Server = httptest.NewServer(mux)
	t.Cleanup(kc.Close)
	return kc
}

func (kc *fakeKeycloak) issuer() string {
	return kc.URL + "/realms/" + testRealm
}

func (kc *fakeKeycloak) sign() string {
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss":                kc.issuer(),
		"sub":                "user-1",
		"preferred_username": "alice",
		"scope":              kc.scope.Load(),
		"exp":                time.Now().Add(5 * time.Minute).Unix(),
		"iat":                time.Now().Unix(),
	})
	raw, _ := tok.SignedString(kc.key)
	return raw
}

func (kc *fakeKeycloak) keyfunc(*jwt.Token) (interface{}, error) {
	return &kc.key.PublicKey, nil
}

// flakyValidator rejects the first n tokens, like an API restarted with new keys.
type flakyValidator struct {
	api.TokenValidator
	reject atomic.Int32
}

func (v *flakyValidator) Validate(ctx context.Context, raw string) (*api.Identity, error) {
	if v.reject.Add(-1) >= 0 {
		return nil, fmt.Errorf("key rotated")
	}
	return v.TokenValidator.Validate(ctx, raw)
}

// newEventsAPI serves the real events API, trusting tokens from kc.
func newEventsAPI(t *testing.T, kc *fakeKeycloak, rejectFirst int32) *httptest.Server {
	t.Helper()
	log := zap.NewNop()
	validator := &flakyValidator{TokenValidator: api.NewKeyfuncValidator(kc.keyfunc, kc.issuer())}
	validator.reject.Store(rejectFirst)
	handler := api.NewAuthHandler(log.Sugar(), validator, testRealm)
	server := api.NewServer(log, api.ServerConfig{})
	repo := api.NewMemoryEventRepository(api.SeedEvents(time.Now())...)
	require.NoError(t, server.RegisterAll([]api.APIController{
		api.NewEventsController(log.Sugar(), repo, handler, api.DefaultRequiredScope, nil, nil),
	}))
	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)
	return srv
}

type testEnv struct {
	configPath string
	nav        *fakeNavigator
	keycloak   *fakeKeycloak
	apiServer  *httptest.Server
	log        *zap.SugaredLogger
}

func newTestEnv(t *testing.T, rejectFirst int32) *testEnv {
	t.Helper()
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	for _, key := range []string{"EVENTSCTL_CONTEXT", "EVENTSCTL_OUTPUT", "EVENTSCTL_SERVER", "EVENTSCTL_VERIFIER_STORAGE", "EVENTSCTL_VERBOSE"} {
		t.Setenv(key, "")
	}

	kc := newFakeKeycloak(t)
	apiServer := newEventsAPI(t, kc, rejectFirst)
	openBrowser := false
	cfg := config.DefaultConfig()
	cfg.Settings.OpenBrowser = &openBrowser
	cfg.CurrentContext = "local"
	cfg.OIDCProviders = []config.OIDCProvider{{
		Name:        "keycloak",
		KeycloakURL: kc.URL,
		Realm:       testRealm,
		ClientID:    testClientID,
		RedirectURI: testRedirectURI,
	}}
	cfg.Contexts = []config.Context{{Name: "local", Server: apiServer.URL, OIDCProvider: "keycloak"}}
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, config.Save(path, &cfg))

	return &testEnv{configPath: path, nav: newFakeNavigator(testRedirectURI), keycloak: kc, apiServer: apiServer}
}

// run executes eventsctl with args and returns stdout and the prompt stream.
func (e *testEnv) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	log := e.log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	root := NewRootCommand(Config{
		ConfigPath:   e.configPath,
		OutputWriter: &out,
		ErrWriter:    &errOut,
		Logger:       log,
		NewNavigator: func(string, io.Writer, bool) (auth.Navigator, error) {
			return e.nav, nil
		},
	})
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), errOut.String(), err
}
