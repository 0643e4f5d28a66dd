package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telekom/eventsctl/pkg/ratelimit"
)

func TestRunRejectsInvalidFlags(t *testing.T) {
	err := run(context.Background(), []string{"--validation-method", "magic"})
	require.Error(t, err)
}

func TestRunFailsWithoutJWKS(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	err := run(context.Background(), []string{"--keycloak-url", srv.URL, "--listen-address", "127.0.0.1:0"})
	require.Error(t, err)
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := run(ctx, []string{
		"--validation-method", "introspection",
		"--client-id", "events-api",
		"--client-secret", "s3cret",
		"--listen-address", "127.0.0.1:0",
	})
	require.NoError(t, err)
}

func TestNewLimiter(t *testing.T) {
	assert.Nil(t, newLimiter(ratelimit.DefaultAuthenticatedConfig(), 0))

	l := newLimiter(ratelimit.DefaultUnauthenticatedConfig(), 0.2)
	require.NotNil(t, l)
	t.Cleanup(l.Stop)
	assert.Equal(t, 1, l.Config().Burst)
	assert.InDelta(t, 0.2, l.Config().Rate, 0.0001)
	stopLimiter(nil)
}
