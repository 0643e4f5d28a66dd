package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	testRealm    = "events"
	testClientID = "events-frontend"
	testOrigin   = "http://127.0.0.1:8400/callback"
	tokenPath    = "/realms/events/protocol/openid-connect/token"
)

// fakeNavigator records navigations and lets tests play the identity provider.
type fakeNavigator struct {
	origin string

	mu          sync.Mutex
	location    *url.URL
	navigations []string
	navigateErr error
	onNavigate  func(target string)
	callbacks   chan struct{}
}

func newFakeNavigator() *fakeNavigator {
	return &fakeNavigator{origin: testOrigin, callbacks: make(chan struct{}, 1)}
}

func (n *fakeNavigator) Navigate(_ context.Context, target string) error {
	n.mu.Lock()
	n.navigations = append(n.navigations, target)
	hook, err := n.onNavigate, n.navigateErr
	n.mu.Unlock()
	if err != nil {
		return err
	}
	if hook != nil {
		hook(target)
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

// redirectBack simulates the provider sending the user agent back with query.
func (n *fakeNavigator) redirectBack(t *testing.T, query string) {
	t.Helper()
	u, err := url.Parse(n.origin + "?" + query)
	require.NoError(t, err)
	n.ReplaceLocation(u)
	select {
	case n.callbacks <- struct{}{}:
	default:
	}
}

func (n *fakeNavigator) lastNavigation() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.navigations) == 0 {
		return ""
	}
	return n.navigations[len(n.navigations)-1]
}

func (n *fakeNavigator) navigationCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.navigations)
}

// fakeKeycloak serves the token endpoint of one realm.
type fakeKeycloak struct {
	server     *httptest.Server
	tokenCalls atomic.Int32

	mu       sync.Mutex
	lastForm url.Values
	lastType string
	respond  func(w http.ResponseWriter, r *http.Request)
	extra    map[string]http.HandlerFunc
}

func newFakeKeycloak(t *testing.T) *fakeKeycloak {
	t.Helper()
	kc := &fakeKeycloak{extra: map[string]http.HandlerFunc{}}
	kc.respond = func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token":  "A",
			"refresh_token": "R",
			"id_token":      "I",
			"token_type":    "Bearer",
			"expires_in":    60,
		})
	}
	kc.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == tokenPath && r.Method == http.MethodPost {
			kc.tokenCalls.Add(1)
			_ = r.ParseForm()
			kc.mu.Lock()
			kc.lastForm = r.PostForm
			kc.lastType = r.Header.Get("Content-Type")
			respond := kc.respond
			kc.mu.Unlock()
			respond(w, r)
			return
		}
		kc.mu.Lock()
		handler, ok := kc.extra[r.URL.Path]
		kc.mu.Unlock()
		if ok {
			handler(w, r)
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(kc.server.Close)
	return kc
}

func (kc *fakeKeycloak) setResponder(fn func(w http.ResponseWriter, r *http.Request)) {
	kc.mu.Lock()
	defer kc.mu.Unlock()
	kc.respond = fn
}

func (kc *fakeKeycloak) handle(path string, fn http.HandlerFunc) {
	kc.mu.Lock()
	defer kc.mu.Unlock()
	kc.extra[path] = fn
}

func (kc *fakeKeycloak) form() (url.Values, string) {
	kc.mu.Lock()
	defer kc.mu.Unlock()
	return kc.lastForm, kc.lastType
}

func (kc *fakeKeycloak) issuer() string {
	return kc.server.URL + "/realms/" + testRealm
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func testProviderConfig(baseURL string) ProviderConfig {
	return ProviderConfig{
		BaseURL:         baseURL,
		Realm:           testRealm,
		ClientID:        testClientID,
		ExchangeTimeout: 2 * time.Second,
		LoginTimeout:    2 * time.Second,
	}
}

func newTestSession(t *testing.T, cfg ProviderConfig, nav Navigator, opts ...Option) *Session {
	t.Helper()
	session, err := NewSession(cfg, nav, opts...)
	require.NoError(t, err)
	return session
}

// completeLogin runs Login and the provider redirect, leaving a code in the location.
func completeLogin(t *testing.T, session *Session, nav *fakeNavigator, code string) {
	t.Helper()
	_, err := session.Login(context.Background())
	require.NoError(t, err)
	nav.redirectBack(t, "code="+url.QueryEscape(code)+"&session_state=s1")
}

func sequentialReader(n int) RandomSource {
	return bytes.NewReader(sequentialBytes(n))
}
