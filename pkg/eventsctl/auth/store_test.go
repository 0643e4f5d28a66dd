package auth

import (
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestTokenStoreLifecycle(t *testing.T) {
	clock := newFakeClock()
	store := NewTokenStore(clock.Now)

	assert.False(t, store.IsAuthenticated())
	_, ok := store.AccessToken()
	assert.False(t, ok)

	tokens := store.Set(TokenResponse{AccessToken: "A", RefreshToken: "R", IDToken: "I", ExpiresIn: 3600})
	assert.Equal(t, clock.Now().Add(time.Hour), tokens.ExpiresAt)
	assert.True(t, store.IsAuthenticated())

	clock.Advance(time.Hour)
	assert.False(t, store.IsAuthenticated(), "token must be invalid once now reaches expiresAt")
	_, ok = store.AccessToken()
	assert.False(t, ok)
}

func TestTokenStoreExpiryBoundary(t *testing.T) {
	clock := newFakeClock()
	store := NewTokenStore(clock.Now)
	store.Set(TokenResponse{AccessToken: "A", RefreshToken: "R", IDToken: "I", ExpiresIn: 60})

	clock.Advance(59 * time.Second)
	token, ok := store.AccessToken()
	require.True(t, ok)
	assert.Equal(t, "A", token)

	clock.Advance(2 * time.Second)
	token, ok = store.AccessToken()
	assert.False(t, ok)
	assert.Empty(t, token)
}

func TestTokenStoreSetReplacesWholeSet(t *testing.T) {
	clock := newFakeClock()
	store := NewTokenStore(clock.Now)
	store.Set(TokenResponse{AccessToken: "A1", RefreshToken: "R1", IDToken: "I1", ExpiresIn: 60})
	store.Set(TokenResponse{AccessToken: "A2", ExpiresIn: 120})

	snapshot, ok := store.Snapshot()
	require.True(t, ok)
	assert.Equal(t, TokenSet{AccessToken: "A2", ExpiresAt: clock.Now().Add(2 * time.Minute)}, snapshot)
}

func TestTokenStoreClear(t *testing.T) {
	store := NewTokenStore(nil)
	store.Set(TokenResponse{AccessToken: "A", ExpiresIn: 60})
	require.True(t, store.IsAuthenticated())

	store.Clear()
	assert.False(t, store.IsAuthenticated())
	_, ok := store.Snapshot()
	assert.False(t, ok)
}

func TestTokenStoreAccessTokenNeverOutlivesAuthentication(t *testing.T) {
	clock := newFakeClock()
	store := NewTokenStore(clock.Now)
	check := func() {
		token, ok := store.AccessToken()
		assert.Equal(t, store.IsAuthenticated(), ok)
		if !ok {
			assert.Empty(t, token)
		}
	}

	check()
	store.Set(TokenResponse{AccessToken: "A", ExpiresIn: 10})
	check()
	clock.Advance(10 * time.Second)
	check()
	store.Set(TokenResponse{AccessToken: "", ExpiresIn: 10})
	check()
	store.Set(TokenResponse{AccessToken: "B", ExpiresIn: 0})
	check()
	store.Clear()
	check()
}

func TestTokenStoreConcurrentAccess(t *testing.T) {
	store := NewTokenStore(nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			store.Set(TokenResponse{AccessToken: "A", ExpiresIn: 60})
		}()
		go func() {
			defer wg.Done()
			if snapshot, ok := store.Snapshot(); ok {
				assert.Equal(t, "A", snapshot.AccessToken)
			}
		}()
	}
	wg.Wait()
	store.Clear()
	assert.False(t, store.IsAuthenticated())
}

func TestTokenStoreSnapshot(t *testing.T) {
	clock := newFakeClock()
	store := NewTokenStore(clock.Now)

	set := store.Set(TokenResponse{AccessToken: "A", RefreshToken: "R", IDToken: "I", TokenType: "Bearer", ExpiresIn: 300})
	snap, ok := store.Snapshot()
	require.True(t, ok)
	if diff := cmp.Diff(set, snap); diff != "" {
		t.Errorf("snapshot differs from stored set (-want +got):\n%s", diff)
	}

	store.Clear()
	_, ok = store.Snapshot()
	assert.False(t, ok)
}
