package auth

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrowserNavigatorPrintsURL(t *testing.T) {
	var out bytes.Buffer
	nav := NewBrowserNavigator(testOrigin, &out, false)

	require.NoError(t, nav.Navigate(context.Background(), "https://sso.example.com/auth?x=1"))
	assert.Contains(t, out.String(), "https://sso.example.com/auth?x=1")
	assert.Nil(t, nav.Location())
	assert.Equal(t, testOrigin, nav.Origin())
}

func TestBrowserNavigatorOpenFailureIsNotFatal(t *testing.T) {
	var out bytes.Buffer
	nav := NewBrowserNavigator(testOrigin, &out, true)
	nav.open = func(string) error { return io.ErrClosedPipe }

	require.NoError(t, nav.Navigate(context.Background(), "https://sso.example.com/auth"))
	assert.Contains(t, out.String(), "Could not open browser")
}

func TestBrowserNavigatorSetLocation(t *testing.T) {
	nav := NewBrowserNavigator(testOrigin, io.Discard, false)
	require.NoError(t, nav.SetLocation(testOrigin+"?code=abc"))

	location := nav.Location()
	require.NotNil(t, location)
	assert.Equal(t, "abc", location.Query().Get("code"))

	// returned locations are copies
	location.RawQuery = ""
	assert.Equal(t, "abc", nav.Location().Query().Get("code"))

	require.Error(t, nav.SetLocation("://bad"))
}

func TestNewLoopbackNavigatorRejectsNonLoopback(t *testing.T) {
	for _, uri := range []string{
		"https://127.0.0.1:0/callback",
		"http://example.com:0/callback",
		"://bad",
	} {
		_, err := NewLoopbackNavigator(uri, io.Discard, false)
		assert.Error(t, err, uri)
	}
}

func TestLoopbackNavigatorReceivesCallback(t *testing.T) {
	nav, err := NewLoopbackNavigator("", io.Discard, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = nav.Close() })

	origin := nav.Origin()
	require.True(t, strings.HasPrefix(origin, "http://127.0.0.1:"), origin)
	require.False(t, strings.HasPrefix(origin, "http://127.0.0.1:0/"), origin)
	require.True(t, strings.HasSuffix(origin, "/callback"), origin)

	resp, err := http.Get(strings.TrimSuffix(origin, "/callback") + "/other")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(origin + "?code=abc&session_state=s1")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "Authentication complete")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, nav.WaitForCallback(ctx))

	location := nav.Location()
	require.NotNil(t, location)
	assert.Equal(t, "abc", location.Query().Get("code"))
	assert.Equal(t, origin, strings.Split(location.String(), "?")[0])
}

func TestLoopbackNavigatorWaitHonorsContext(t *testing.T) {
	nav, err := NewLoopbackNavigator("http://localhost:0/cb", io.Discard, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = nav.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, nav.WaitForCallback(ctx), context.DeadlineExceeded)
}

func TestSessionLoginThroughLoopback(t *testing.T) {
	kc := newFakeKeycloak(t)
	nav, err := NewLoopbackNavigator("", io.Discard, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = nav.Close() })
	session := newTestSession(t, testProviderConfig(kc.server.URL), nav)

	// stands in for the browser following the provider redirect
	nav.open = func(string) error {
		go func() {
			resp, err := http.Get(nav.Origin() + "?code=loop")
			if err == nil {
				resp.Body.Close()
			}
		}()
		return nil
	}
	nav.openBrowser = true

	require.NoError(t, session.Authenticate(context.Background()))
	assert.True(t, session.IsAuthenticated())
	form, _ := kc.form()
	assert.Equal(t, "loop", form.Get("code"))
	assert.Equal(t, nav.Origin(), form.Get("redirect_uri"))
}

func TestLoopbackNavigatorIgnoresRequestsWithoutResponse(t *testing.T) {
	nav, err := NewLoopbackNavigator("", io.Discard, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = nav.Close() })

	for _, query := range []string{"", "?session_state=s1"} {
		resp, err := http.Get(nav.Origin() + query)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, query)
	}
	assert.Nil(t, nav.Location())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, nav.WaitForCallback(ctx), context.DeadlineExceeded)
}

func TestReauthenticateAfterCallbackReload(t *testing.T) {
	kc := newFakeKeycloak(t)
	nav, err := NewLoopbackNavigator("", io.Discard, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = nav.Close() })
	session := newTestSession(t, testProviderConfig(kc.server.URL), nav)

	var logins atomic.Int32
	nav.open = func(string) error {
		code := fmt.Sprintf("c%d", logins.Add(1))
		go func() {
			resp, err := http.Get(nav.Origin() + "?code=" + code)
			if err == nil {
				resp.Body.Close()
			}
		}()
		return nil
	}
	nav.openBrowser = true

	require.NoError(t, session.Authenticate(context.Background()))
	form, _ := kc.form()
	require.Equal(t, "c1", form.Get("code"))

	// the user reloads the finished callback tab
	resp, err := http.Get(nav.Origin() + "?code=c1")
	require.NoError(t, err)
	resp.Body.Close()

	require.NoError(t, session.Reauthenticate(context.Background()))
	form, _ = kc.form()
	assert.Equal(t, "c2", form.Get("code"))
	assert.EqualValues(t, 2, kc.tokenCalls.Load())
	assert.True(t, session.IsAuthenticated())
}
