package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/telekom/eventsctl/pkg/api"
	"github.com/telekom/eventsctl/pkg/cli"
	"github.com/telekom/eventsctl/pkg/ratelimit"
	"github.com/telekom/eventsctl/pkg/system"
	"github.com/telekom/eventsctl/pkg/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if err := cli.LoadEnvFile(os.Getenv("EVENTS_API_ENV_FILE")); err != nil {
		return err
	}
	config, err := cli.Parse(flag.NewFlagSet("events-api", flag.ContinueOnError), args)
	if err != nil {
		return err
	}

	zl, err := system.NewLogger(config.Debug)
	if err != nil {
		return err
	}
	defer func() { _ = zl.Sync() }()
	log := zl.Sugar()
	log.With("version", version.GetBuildInfo().Version).Info("Starting events api")
	config.Print(log)

	httpClient, err := api.NewHTTPClient(config.CAFile, config.InsecureSkipVerify, config.ProviderTimeout)
	if err != nil {
		return err
	}

	var validator api.TokenValidator
	switch config.ValidationMethod {
	case cli.ValidationIntrospection:
		validator = api.NewIntrospectionValidator(config.KeycloakURL, config.Realm, config.ClientID, config.ClientSecret, httpClient)
	default:
		jwks, err := api.NewJWKSValidator(log, config.JWKSURL(), config.RealmURL(), httpClient)
		if err != nil {
			return err
		}
		defer jwks.Close()
		validator = jwks
	}
	auth := api.NewAuthHandler(log, validator, config.Realm)

	ipLimiter := newLimiter(ratelimit.DefaultUnauthenticatedConfig(), config.IPRateLimit)
	subjectLimiter := newLimiter(ratelimit.DefaultAuthenticatedConfig(), config.SubjectRateLimit)
	defer stopLimiter(ipLimiter)
	defer stopLimiter(subjectLimiter)

	repo := api.NewMemoryEventRepository()
	if config.SeedEvents {
		repo = api.NewMemoryEventRepository(api.SeedEvents(time.Now())...)
	}

	server := api.NewServer(zl, api.ServerConfig{
		ListenAddress:   config.ListenAddress,
		AllowOrigins:    config.AllowOrigins,
		ShutdownTimeout: config.ShutdownTimeout,
		Debug:           config.Debug,
	})
	err = server.RegisterAll([]api.APIController{
		api.NewEventsController(log, repo, auth, config.RequiredScope, ipLimiter, subjectLimiter),
	})
	if err != nil {
		return fmt.Errorf("error registering controllers: %w", err)
	}

	return server.Run(ctx)
}

// newLimiter scales the default burst to the configured rate; a zero rate disables limiting.
func newLimiter(defaults ratelimit.Config, rps float64) *ratelimit.Limiter {
	if rps <= 0 {
		return nil
	}
	defaults.Burst = max(1, int(rps*2))
	defaults.Rate = rps
	return ratelimit.New(defaults)
}

func stopLimiter(l *ratelimit.Limiter) {
	if l != nil {
		l.Stop()
	}
}
