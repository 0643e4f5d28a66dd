package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/telekom/eventsctl/pkg/eventsctl/auth"
	"github.com/telekom/eventsctl/pkg/eventsctl/client"
	"github.com/telekom/eventsctl/pkg/eventsctl/config"
	"github.com/telekom/eventsctl/pkg/version"
)

func buildClient(rt *runtimeState, ctxCfg *config.Context, session *auth.Session) (*client.Client, error) {
	server := rt.resolveServer(ctxCfg)
	if server == "" {
		return nil, errors.New("server is required")
	}
	return client.New(
		client.WithServer(server),
		client.WithUserAgent(version.UserAgent("eventsctl")),
		client.WithTimeout(rt.timeout()),
		client.WithTLSConfig(ctxCfg.CAFile, ctxCfg.InsecureSkipTLSVerify),
		client.WithTransport(session.Transport),
		client.WithLogger(rt.Logger()),
	)
}

// withEvents logs in, runs fn against the events API and, if the API rejects
// the token, logs in once more and retries.
func withEvents(cmd *cobra.Command, fn func(ctx context.Context, events *client.EventService) error) error {
	rt, err := getRuntime(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	session, ctxCfg, closeNav, err := rt.login(ctx)
	if err != nil {
		return err
	}
	defer closeNav()

	c, err := buildClient(rt, ctxCfg, session)
	if err != nil {
		return err
	}
	err = fn(ctx, c.Events())
	if !errors.Is(err, client.ErrUnauthorized) {
		return err
	}
	rt.Logger().Infow("Events API rejected the access token, logging in again")
	if err := session.Reauthenticate(ctx); err != nil {
		return describeAuthError(err)
	}
	return fn(ctx, c.Events())
}
