package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		// PersistentPostRun is skipped when a command fails
		closeStore()
		printFailure(os.Stderr, err)
		stop()
		os.Exit(exitCode(err))
	}
}
