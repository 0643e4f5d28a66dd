package cmd

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/telekom/eventsctl/pkg/eventsctl/auth"
	"github.com/telekom/eventsctl/pkg/eventsctl/config"
	"github.com/telekom/eventsctl/pkg/system"
)

// NavigatorFactory builds the navigator used for interactive logins.
type NavigatorFactory func(redirectURI string, out io.Writer, openBrowser bool) (auth.Navigator, error)

type Config struct {
	ConfigPath   string
	OutputWriter io.Writer
	// ErrWriter receives login prompts so they never mix with command output.
	ErrWriter      io.Writer
	DefaultContext string
	// NewNavigator defaults to a loopback callback listener.
	NewNavigator NavigatorFactory
	// Logger overrides the logger built from --verbose.
	Logger *zap.SugaredLogger
	// Context is the parent of every command context, e.g. one cancelled on SIGINT.
	Context context.Context
}

type runtimeState struct {
	configPath              string
	cfg                     *config.Config
	contextOverride         string
	outputFormat            string
	serverOverride          string
	verifierStorageOverride string
	noBrowser               bool
	verbose                 bool
	writer                  io.Writer
	errWriter               io.Writer
	newNavigator            NavigatorFactory
	log                     *zap.SugaredLogger
}

type runtimeKey struct{}

func DefaultConfig() Config {
	return Config{
		ConfigPath:   config.DefaultConfigPath(),
		OutputWriter: os.Stdout,
		ErrWriter:    os.Stderr,
	}
}

func NewRootCommand(cfg Config) *cobra.Command {
	rt := &runtimeState{
		configPath:      cfg.ConfigPath,
		contextOverride: cfg.DefaultContext,
		writer:          cfg.OutputWriter,
		errWriter:       cfg.ErrWriter,
		newNavigator:    cfg.NewNavigator,
		log:             cfg.Logger,
	}

	root := &cobra.Command{
		Use:           "eventsctl",
		Short:         "Events CLI with Keycloak login",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if rt.writer == nil {
				rt.writer = os.Stdout
			}
			if rt.errWriter == nil {
				rt.errWriter = os.Stderr
			}
			if rt.configPath == "" {
				rt.configPath = config.DefaultConfigPath()
			}
			if rt.contextOverride == "" {
				rt.contextOverride = os.Getenv("EVENTSCTL_CONTEXT")
			}
			if rt.outputFormat == "" {
				rt.outputFormat = os.Getenv("EVENTSCTL_OUTPUT")
			}
			if rt.serverOverride == "" {
				rt.serverOverride = os.Getenv("EVENTSCTL_SERVER")
			}
			if rt.verifierStorageOverride == "" {
				rt.verifierStorageOverride = os.Getenv("EVENTSCTL_VERIFIER_STORAGE")
			}
			if !rt.verbose {
				rt.verbose = strings.EqualFold(os.Getenv("EVENTSCTL_VERBOSE"), "true")
			}
			if rt.log == nil {
				zl, err := system.NewCLILogger(rt.verbose)
				if err != nil {
					return err
				}
				rt.log = zl.Sugar()
			}

			// Skip config loading for commands that don't need it
			if cmd.Name() == "init" && cmd.Parent() != nil && cmd.Parent().Name() == "config" {
				return nil
			}
			if cmd.Name() == "version" || cmd.Name() == "completion" {
				return nil
			}

			cfg, err := config.Load(rt.configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			rt.cfg = cfg
			return nil
		},
	}

	root.PersistentFlags().StringVar(&rt.configPath, "config", rt.configPath, "Path to config file")
	root.PersistentFlags().StringVarP(&rt.contextOverride, "context", "c", rt.contextOverride, "Context name override")
	root.PersistentFlags().StringVarP(&rt.outputFormat, "output", "o", "", "Output format: table, wide, json, yaml")
	root.PersistentFlags().StringVar(&rt.serverOverride, "server", "", "Events API server override")
	root.PersistentFlags().StringVar(&rt.verifierStorageOverride, "verifier-storage", "", "Where a pending login keeps its code verifier: memory, file or keyring")
	root.PersistentFlags().BoolVar(&rt.noBrowser, "no-browser", false, "Print the login URL instead of opening the browser")
	root.PersistentFlags().BoolVarP(&rt.verbose, "verbose", "v", false, "Enable verbose output with request IDs")

	parent := cfg.Context
	if parent == nil {
		parent = context.Background()
	}
	root.SetContext(context.WithValue(parent, runtimeKey{}, rt))

	root.AddCommand(
		NewConfigCommand(),
		NewAuthCommand(),
		NewEventsCommand(),
		NewCompletionCommand(),
		NewVersionCommand(),
	)

	return root
}

func getRuntime(cmd *cobra.Command) (*runtimeState, error) {
	rt, ok := cmd.Context().Value(runtimeKey{}).(*runtimeState)
	if !ok || rt == nil {
		return nil, errors.New("runtime not initialized")
	}
	return rt, nil
}

func (rt *runtimeState) ResolveContextName() string {
	if rt.contextOverride != "" {
		return rt.contextOverride
	}
	if rt.cfg != nil {
		return rt.cfg.CurrentContextOrDefault()
	}
	return ""
}

func (rt *runtimeState) OutputFormat() string {
	if rt.outputFormat != "" {
		return rt.outputFormat
	}
	if rt.cfg != nil && rt.cfg.Settings.OutputFormat != "" {
		return rt.cfg.Settings.OutputFormat
	}
	return "table"
}

func (rt *runtimeState) VerifierStorage() string {
	if rt.verifierStorageOverride != "" {
		return rt.verifierStorageOverride
	}
	if rt.cfg != nil && rt.cfg.Settings.VerifierStorage != "" {
		return rt.cfg.Settings.VerifierStorage
	}
	return config.VerifierStorageFile
}

func (rt *runtimeState) OpenBrowser() bool {
	if rt.noBrowser {
		return false
	}
	if rt.cfg != nil {
		return rt.cfg.Settings.OpenBrowserOrDefault()
	}
	return true
}

func (rt *runtimeState) Writer() io.Writer {
	if rt.writer != nil {
		return rt.writer
	}
	return os.Stdout
}

func (rt *runtimeState) ErrWriter() io.Writer {
	if rt.errWriter != nil {
		return rt.errWriter
	}
	return os.Stderr
}

func (rt *runtimeState) Logger() *zap.SugaredLogger {
	if rt.log != nil {
		return rt.log
	}
	return zap.NewNop().Sugar()
}

func (rt *runtimeState) EnsureConfigLoaded() error {
	if rt.cfg != nil {
		return nil
	}
	cfg, err := config.Load(rt.configPath)
	if err != nil {
		return err
	}
	rt.cfg = cfg
	return nil
}

func (rt *runtimeState) ResolveContext() (*config.Context, error) {
	if rt.cfg == nil {
		return nil, errors.New("config not loaded")
	}
	name := rt.ResolveContextName()
	if name == "" {
		return nil, errors.New("no context configured; run 'eventsctl config init'")
	}
	return rt.cfg.FindContext(name)
}

func (rt *runtimeState) resolveServer(ctx *config.Context) string {
	if rt.serverOverride != "" {
		return rt.serverOverride
	}
	if ctx != nil {
		return ctx.Server
	}
	return ""
}

func (rt *runtimeState) configPathValue() string {
	if rt.configPath == "" {
		return config.DefaultConfigPath()
	}
	return rt.configPath
}
