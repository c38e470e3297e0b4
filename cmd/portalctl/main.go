package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/bobbygour30/admitcard/internal/cli"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// a missing .env is fine; PORTALCTL_* variables may come from the shell
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		cli.Fail(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCommand(version).ExecuteContext(ctx); err != nil {
		cli.Fail(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
