package auth

import (
	"sync"
	"time"
)

// TokenResponse is the JSON body of a successful token endpoint response.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int64  `json:"expires_in"`
}

// TokenSet is the immutable set of tokens from one successful exchange.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	IDToken      string
	TokenType    string
	ExpiresAt    time.Time
}

// TokenStore is the only holder of tokens and the only source of truth for
// authentication state. Expiry is evaluated on every read.
type TokenStore struct {
	mu     sync.RWMutex
	now    func() time.Time
	tokens TokenSet
}

func NewTokenStore(now func() time.Time) *TokenStore {
	if now == nil {
		now = time.Now
	}
	return &TokenStore{now: now}
}

// Set replaces the held tokens. ExpiresAt is now plus expires_in seconds.
func (s *TokenStore) Set(resp TokenResponse) TokenSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = TokenSet{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		IDToken:      resp.IDToken,
		TokenType:    resp.TokenType,
		ExpiresAt:    s.now().Add(time.Duration(resp.ExpiresIn) * time.Second),
	}
	return s.tokens
}

func (s *TokenStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = TokenSet{}
}

func (s *TokenStore) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.validLocked()
}

// AccessToken returns the access token only while it is valid.
func (s *TokenStore) AccessToken() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.validLocked() {
		return "", false
	}
	return s.tokens.AccessToken, true
}

// Snapshot returns a copy of the held tokens while they are valid.
func (s *TokenStore) Snapshot() (TokenSet, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.validLocked() {
		return TokenSet{}, false
	}
	return s.tokens, true
}

func (s *TokenStore) validLocked() bool {
	return s.tokens.AccessToken != "" && s.now().Before(s.tokens.ExpiresAt)
}
