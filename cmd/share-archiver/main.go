// Package main is the entry point for the share-archiver CLI.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/raoulx24/share-archiver/cmd/share-archiver/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := commands.Execute(ctx)
	stop()

	if code := commands.Report(os.Stderr, err); code != 0 {
		os.Exit(code)
	}
}
