// Command depsync restores and publishes node_modules bundles.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmgilman/depsync/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.Execute(ctx); err != nil {
		cli.PrintError(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
