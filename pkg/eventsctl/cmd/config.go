package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/telekom/eventsctl/pkg/eventsctl/config"
	"github.com/telekom/eventsctl/pkg/eventsctl/output"
)

func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage eventsctl configuration",
	}

	cmd.AddCommand(
		newConfigInitCommand(),
		newConfigViewCommand(),
		newConfigContextsCommand(),
		newConfigCurrentContextCommand(),
		newConfigSetContextCommand(),
		newConfigUseContextCommand(),
		newConfigSetValueCommand(),
		newConfigAddContextCommand(),
		newConfigAddOIDCProviderCommand(),
		newConfigGetOIDCProvidersCommand(),
		newConfigDeleteContextCommand(),
		newConfigDeleteOIDCProviderCommand(),
	)

	return cmd
}

type providerFlags struct {
	keycloakURL   string
	realm         string
	clientID      string
	scopes        []string
	redirectURI   string
	caFile        string
	verifyIDToken bool
}

func (f *providerFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.keycloakURL, "keycloak-url", "", "Keycloak base URL")
	cmd.Flags().StringVar(&f.realm, "realm", "events", "Keycloak realm")
	cmd.Flags().StringVar(&f.clientID, "client-id", "", "Public client ID registered in the realm")
	cmd.Flags().StringSliceVar(&f.scopes, "scopes", nil, "Scopes to request (default openid,events-api-access)")
	cmd.Flags().StringVar(&f.redirectURI, "redirect-uri", "", "Loopback redirect URI; empty picks a free port")
	cmd.Flags().StringVar(&f.caFile, "ca-file", "", "CA bundle for Keycloak")
	cmd.Flags().BoolVar(&f.verifyIDToken, "verify-id-token", false, "Verify the ID token signature after login")
}

func (f *providerFlags) provider(name string) config.OIDCProvider {
	return config.OIDCProvider{
		Name:          name,
		KeycloakURL:   f.keycloakURL,
		Realm:         f.realm,
		ClientID:      f.clientID,
		Scopes:        f.scopes,
		RedirectURI:   f.redirectURI,
		CAFile:        f.caFile,
		VerifyIDToken: f.verifyIDToken,
	}
}

func newConfigInitCommand() *cobra.Command {
	var (
		contextName string
		server      string
		insecure    bool
		force       bool
		pf          providerFlags
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize an eventsctl config file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			path := rt.configPathValue()
			if !force {
				if _, err := os.Stat(path); err == nil {
					return fmt.Errorf("config already exists: %s", path)
				}
			}
			if contextName == "" {
				contextName = "default"
			}
			cfg := config.DefaultConfig()
			cfg.CurrentContext = contextName
			cfg.OIDCProviders = append(cfg.OIDCProviders, pf.provider(contextName))
			cfg.Contexts = append(cfg.Contexts, config.Context{
				Name:                  contextName,
				Server:                server,
				OIDCProvider:          contextName,
				InsecureSkipTLSVerify: insecure,
			})
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := config.Save(path, &cfg); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(rt.Writer(), "Initialized config at %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&contextName, "context", "default", "Context name")
	cmd.Flags().StringVar(&server, "server", "", "Events API server URL")
	cmd.Flags().BoolVar(&insecure, "insecure-skip-tls-verify", false, "Skip TLS verification towards the events API")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing config")
	pf.bind(cmd)

	_ = cmd.MarkFlagRequired("server")
	_ = cmd.MarkFlagRequired("keycloak-url")
	_ = cmd.MarkFlagRequired("client-id")
	return cmd
}

func newConfigViewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "view",
		Short: "Show the current configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := rt.EnsureConfigLoaded(); err != nil {
				return err
			}
			return output.WriteObject(rt.Writer(), output.FormatYAML, rt.cfg)
		},
	}
}

func newConfigContextsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get-contexts",
		Short: "List configured contexts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := rt.EnsureConfigLoaded(); err != nil {
				return err
			}
			current := rt.cfg.CurrentContext
			for _, ctx := range rt.cfg.Contexts {
				marker := " "
				if ctx.Name == current {
					marker = "*"
				}
				_, _ = fmt.Fprintf(rt.Writer(), "%s %s\t%s\t%s\n", marker, ctx.Name, ctx.Server, ctx.OIDCProvider)
			}
			return nil
		},
	}
}

func newConfigSetContextCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set-context NAME",
		Short: "Set the default context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := rt.EnsureConfigLoaded(); err != nil {
				return err
			}
			name := args[0]
			if _, err := rt.cfg.FindContext(name); err != nil {
				return err
			}
			rt.cfg.CurrentContext = name
			if err := config.Save(rt.configPathValue(), rt.cfg); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(rt.Writer(), "%s\n", name)
			return nil
		},
	}
}

func newConfigUseContextCommand() *cobra.Command {
	cmd := newConfigSetContextCommand()
	cmd.Use = "use-context NAME"
	cmd.Aliases = []string{"use"}
	cmd.Short = "Alias for set-context"
	return cmd
}

func newConfigCurrentContextCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "current-context",
		Short: "Show the current context",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := rt.EnsureConfigLoaded(); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(rt.Writer(), rt.cfg.CurrentContext)
			return nil
		},
	}
}

func newConfigSetValueCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Set a configuration value",
		Long: "Supported keys: settings.output-format, settings.verifier-storage,\n" +
			"settings.open-browser, settings.timeout",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := rt.EnsureConfigLoaded(); err != nil {
				return err
			}
			key := args[0]
			value := args[1]
			switch key {
			case "settings.output-format":
				format, err := output.ParseFormat(value)
				if err != nil {
					return err
				}
				rt.cfg.Settings.OutputFormat = string(format)
			case "settings.verifier-storage":
				rt.cfg.Settings.VerifierStorage = strings.ToLower(value)
			case "settings.open-browser":
				open, err := strconv.ParseBool(value)
				if err != nil {
					return fmt.Errorf("invalid boolean: %s", value)
				}
				rt.cfg.Settings.OpenBrowser = &open
			case "settings.timeout":
				timeout, err := time.ParseDuration(value)
				if err != nil {
					return fmt.Errorf("invalid timeout: %s", value)
				}
				rt.cfg.Settings.Timeout = timeout
			default:
				return fmt.Errorf("unsupported key: %s", key)
			}
			if err := rt.cfg.Validate(); err != nil {
				return err
			}
			return config.Save(rt.configPathValue(), rt.cfg)
		},
	}
}

func newConfigAddContextCommand() *cobra.Command {
	var (
		server       string
		oidcProvider string
		insecure     bool
	)
	cmd := &cobra.Command{
		Use:   "add-context NAME",
		Short: "Add a new context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := rt.EnsureConfigLoaded(); err != nil {
				return err
			}
			name := args[0]
			if _, err := rt.cfg.FindContext(name); err == nil {
				return fmt.Errorf("context already exists: %s", name)
			}
			if _, err := rt.cfg.FindOIDCProvider(oidcProvider); err != nil {
				return err
			}
			rt.cfg.Contexts = append(rt.cfg.Contexts, config.Context{
				Name:                  name,
				Server:                server,
				OIDCProvider:          oidcProvider,
				InsecureSkipTLSVerify: insecure,
			})
			if err := config.Save(rt.configPathValue(), rt.cfg); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(rt.Writer(), "Added context %s\n", name)
			return nil
		},
	}
	cmd.Flags().StringVar(&server, "server", "", "Events API server URL")
	cmd.Flags().StringVar(&oidcProvider, "oidc-provider", "", "OIDC provider name")
	cmd.Flags().BoolVar(&insecure, "insecure-skip-tls-verify", false, "Skip TLS verification")
	_ = cmd.MarkFlagRequired("server")
	_ = cmd.MarkFlagRequired("oidc-provider")
	return cmd
}

func newConfigAddOIDCProviderCommand() *cobra.Command {
	var pf providerFlags
	cmd := &cobra.Command{
		Use:   "add-oidc-provider NAME",
		Short: "Add a Keycloak realm and client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := rt.EnsureConfigLoaded(); err != nil {
				return err
			}
			name := args[0]
			if _, err := rt.cfg.FindOIDCProvider(name); err == nil {
				return fmt.Errorf("oidc provider already exists: %s", name)
			}
			provider := pf.provider(name)
			if err := provider.Validate(); err != nil {
				return err
			}
			rt.cfg.OIDCProviders = append(rt.cfg.OIDCProviders, provider)
			if err := config.Save(rt.configPathValue(), rt.cfg); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(rt.Writer(), "Added OIDC provider %s\n", name)
			return nil
		},
	}
	pf.bind(cmd)
	_ = cmd.MarkFlagRequired("keycloak-url")
	_ = cmd.MarkFlagRequired("client-id")
	return cmd
}

func newConfigGetOIDCProvidersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get-oidc-providers",
		Short: "List configured OIDC providers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := rt.EnsureConfigLoaded(); err != nil {
				return err
			}
			for _, p := range rt.cfg.OIDCProviders {
				_, _ = fmt.Fprintf(rt.Writer(), "%s\t%s\t%s\t%s\n", p.Name, p.KeycloakURL, p.Realm, p.ClientID)
			}
			return nil
		},
	}
}

func newConfigDeleteContextCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-context NAME",
		Short: "Delete a context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := rt.EnsureConfigLoaded(); err != nil {
				return err
			}
			name := args[0]
			contexts := rt.cfg.Contexts
			filtered := contexts[:0]
			found := false
			for _, ctx := range contexts {
				if ctx.Name == name {
					found = true
					continue
				}
				filtered = append(filtered, ctx)
			}
			if !found {
				return fmt.Errorf("context not found: %s", name)
			}
			rt.cfg.Contexts = filtered
			if rt.cfg.CurrentContext == name {
				rt.cfg.CurrentContext = ""
			}
			if err := config.Save(rt.configPathValue(), rt.cfg); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(rt.Writer(), "Deleted context %s\n", name)
			return nil
		},
	}
}

func newConfigDeleteOIDCProviderCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-oidc-provider NAME",
		Short: "Delete an OIDC provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := rt.EnsureConfigLoaded(); err != nil {
				return err
			}
			name := args[0]
			for _, ctx := range rt.cfg.Contexts {
				if ctx.OIDCProvider == name {
					return fmt.Errorf("oidc provider %s still referenced by context %s", name, ctx.Name)
				}
			}
			providers := rt.cfg.OIDCProviders
			filtered := providers[:0]
			found := false
			for _, p := range providers {
				if p.Name == name {
					found = true
					continue
				}
				filtered = append(filtered, p)
			}
			if !found {
				return fmt.Errorf("oidc provider not found: %s", name)
			}
			rt.cfg.OIDCProviders = filtered
			if err := config.Save(rt.configPathValue(), rt.cfg); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(rt.Writer(), "Deleted OIDC provider %s\n", name)
			return nil
		},
	}
}
