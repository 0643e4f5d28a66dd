package api

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	v1 "github.com/telekom/eventsctl/api/v1"
	"github.com/telekom/eventsctl/pkg/ratelimit"
)

const (
	testIssuer = "http://keycloak.test/realms/events"
	testKID    = "k1"
)

type signer struct {
	key *rsa.PrivateKey
	kid string
}

func newSigner(t *testing.T) *signer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return &signer{key: key, kid: testKID}
}

func (s *signer) keyfunc(*jwt.Token) (interface{}, error) {
	return &s.key.PublicKey, nil
}

// jwks renders the public key as a JSON Web Key Set.
func (s *signer) jwks() []byte {
	e := big.NewInt(int64(s.key.PublicKey.E)).Bytes()
	set := map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"kid": s.kid,
			"alg": "RS256",
			"use": "sig",
			"n":   base64.RawURLEncoding.EncodeToString(s.key.PublicKey.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(e),
		}},
	}
	out, _ := json.Marshal(set)
	return out
}

func (s *signer) sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = s.kid
	raw, err := tok.SignedString(s.key)
	require.NoError(t, err)
	return raw
}

func validClaims(scope string) jwt.MapClaims {
	return jwt.MapClaims{
		"iss":                testIssuer,
		"sub":                "user-1",
		"preferred_username": "alice",
		"email":              "alice@example.com",
		"scope":              scope,
		"exp":                time.Now().Add(5 * time.Minute).Unix(),
		"iat":                time.Now().Unix(),
		"realm_access":       map[string]any{"roles": []string{"events-admin"}},
	}
}

type testAPI struct {
	server *Server
	repo   *MemoryEventRepository
	signer *signer
}

func newTestAPI(t *testing.T, subjectLimiter *ratelimit.Limiter) *testAPI {
	t.Helper()
	log := zaptest.NewLogger(t)
	s := newSigner(t)
	repo := NewMemoryEventRepository()
	auth := NewAuthHandler(log.Sugar(), NewKeyfuncValidator(s.keyfunc, testIssuer), "events")
	server := NewServer(log, ServerConfig{AllowOrigins: []string{"http://localhost:3000"}})
	ctrl := NewEventsController(log.Sugar(), repo, auth, DefaultRequiredScope, nil, subjectLimiter)
	require.NoError(t, server.RegisterAll([]APIController{ctrl}))
	return &testAPI{server: server, repo: repo, signer: s}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) token(t *testing.T) string {
	return a.signer.sign(t, validClaims("openid "+DefaultRequiredScope))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) v1.ErrorResponse {
	t.Helper()
	var resp v1.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func serveJWKS(t *testing.T, s *signer) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(s.jwks())
	}))
	t.Cleanup(srv.Close)
	return srv
}
