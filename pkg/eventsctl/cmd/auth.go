package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/telekom/eventsctl/pkg/eventsctl/auth"
)

func NewAuthCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authenticate with Keycloak",
	}
	cmd.AddCommand(
		newAuthLoginCommand(),
		newAuthCallbackCommand(),
		newAuthStatusCommand(),
		newAuthTokenCommand(),
		newAuthLogoutCommand(),
	)
	return cmd
}

func newAuthLoginCommand() *cobra.Command {
	var manual bool
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Login with the authorization code flow and PKCE",
		Long: "Opens the Keycloak login page and receives the redirect on a local listener.\n" +
			"With --manual the login URL is printed and the redirected URL is passed to\n" +
			"'eventsctl auth callback' afterwards, possibly from another shell.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if manual {
				return runManualLogin(cmd, rt)
			}
			session, ctxCfg, closeNav, err := rt.login(cmd.Context())
			if err != nil {
				return err
			}
			defer closeNav()
			provider, err := rt.cfg.ResolveProvider(ctxCfg)
			if err != nil {
				return err
			}
			return writeAuthStatus(rt, buildAuthStatus(ctxCfg.Name, provider, session))
		},
	}
	cmd.Flags().BoolVar(&manual, "manual", false, "Print the login URL and finish with 'eventsctl auth callback'")
	return cmd
}

func runManualLogin(cmd *cobra.Command, rt *runtimeState) error {
	_, provider, err := rt.resolveProvider()
	if err != nil {
		return err
	}
	if provider.RedirectURI == "" {
		return errors.New("manual login needs a redirect-uri in the oidc provider config")
	}
	storage, err := rt.persistentStorage()
	if err != nil {
		return err
	}
	nav := auth.NewBrowserNavigator(provider.RedirectURI, rt.ErrWriter(), rt.OpenBrowser())
	session, err := rt.newSession(provider, nav, storage)
	if err != nil {
		return err
	}
	if _, err := session.Login(cmd.Context()); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(rt.ErrWriter(), "After signing in, run: eventsctl auth callback '<URL of the page you were redirected to>'")
	return nil
}

func newAuthCallbackCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "callback URL",
		Short: "Complete a login started with 'auth login --manual'",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			ctxCfg, provider, err := rt.resolveProvider()
			if err != nil {
				return err
			}
			storage, err := rt.persistentStorage()
			if err != nil {
				return err
			}
			nav := auth.NewBrowserNavigator(provider.RedirectURI, rt.ErrWriter(), false)
			if err := nav.SetLocation(args[0]); err != nil {
				return err
			}
			session, err := rt.newSession(provider, nav, storage)
			if err != nil {
				return err
			}
			tokens, err := session.HandleCallback(cmd.Context())
			if err != nil {
				return describeAuthError(err)
			}
			if tokens == nil {
				if code := nav.Location().Query().Get("error"); code != "" {
					return describeAuthError(&auth.Error{Kind: auth.KindTokenEndpoint, Op: "callback", Code: code})
				}
				return errors.New("the URL carries no authorization code")
			}
			return writeAuthStatus(rt, buildAuthStatus(ctxCfg.Name, provider, session))
		},
	}
}

func newAuthStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the login configuration and any pending manual login",
		Long: "Tokens live only for the lifetime of one eventsctl process, so a new\n" +
			"process always starts unauthenticated. Status reports the provider in use\n" +
			"and whether a manual login is waiting for its callback.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			ctxCfg, provider, err := rt.resolveProvider()
			if err != nil {
				return err
			}
			var session *auth.Session
			if storage, err := rt.persistentStorage(); err == nil {
				nav := auth.NewBrowserNavigator(provider.RedirectURI, rt.ErrWriter(), false)
				if session, err = rt.newSession(provider, nav, storage); err != nil {
					return err
				}
			}
			return writeAuthStatus(rt, buildAuthStatus(ctxCfg.Name, provider, session))
		},
	}
}

func newAuthTokenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Login and print the access token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			session, _, closeNav, err := rt.login(cmd.Context())
			if err != nil {
				return err
			}
			defer closeNav()
			token, err := session.AccessToken()
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(rt.Writer(), token)
			return nil
		},
	}
}

func newAuthLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the Keycloak session and drop any pending login",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			ctxCfg, provider, err := rt.resolveProvider()
			if err != nil {
				return err
			}
			// memory storage has nothing to clear
			storage, _ := rt.persistentStorage()
			origin := provider.RedirectURI
			if origin == "" {
				origin = rt.resolveServer(ctxCfg)
			}
			nav := auth.NewBrowserNavigator(origin, rt.ErrWriter(), rt.OpenBrowser())
			session, err := rt.newSession(provider, nav, storage)
			if err != nil {
				return err
			}
			if _, err := session.Logout(cmd.Context()); err != nil {
				rt.Logger().Warnw("Could not open the logout page", "error", err)
			}
			_, _ = fmt.Fprintln(rt.Writer(), "Logged out")
			return nil
		},
	}
}
