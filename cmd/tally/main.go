package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/andy/tally/internal/app"
	"github.com/andy/tally/internal/cli"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Help and config commands must work before the database is unlocked
	if cli.NeedsApp(os.Args[1:]) {
		a, err := app.New(ctx)
		if err != nil {
			cli.PrintError(os.Stderr, err)
			return cli.ExitFailure
		}
		defer a.Close()
		cli.SetApp(a)
	}

	if err := cli.ExecuteContext(ctx); err != nil {
		cli.PrintError(os.Stderr, err)
		return cli.ExitCode(err)
	}
	return cli.ExitOK
}
