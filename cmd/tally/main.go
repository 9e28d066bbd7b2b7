package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/akyairhashvil/tally/internal/cli"
)

func main() {
	// Ctrl-C cancels the context so long-running commands (sync --daemon)
	// shut down cleanly instead of dying mid-upload.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Alas, there's been an error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
