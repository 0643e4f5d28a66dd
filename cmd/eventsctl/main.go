package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	eventsctlcmd "github.com/telekom/eventsctl/pkg/eventsctl/cmd"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := eventsctlcmd.DefaultConfig()
	cfg.Context = ctx
	root := eventsctlcmd.NewRootCommand(cfg)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		return 1
	}
	return 0
}
