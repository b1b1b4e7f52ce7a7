package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/specialistvlad/grasptest/internal/app"
	"github.com/specialistvlad/grasptest/internal/cli"
	"github.com/specialistvlad/grasptest/internal/hcl"
	"github.com/specialistvlad/grasptest/internal/localsession"
)

// main is the entrypoint for the grasptest application.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	// An interrupt cancels the run; nothing else ever does.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Stdout, os.Args[1:])
	stop()

	if err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(cli.ExitCode(err))
	}
}

// run encapsulates the main application logic for easier testing and error handling.
func run(ctx context.Context, outW io.Writer, args []string) error {
	appConfig, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	graspApp, err := app.NewApp(outW, appConfig, hcl.NewLoader(), &localsession.SessionFactory{})
	if err != nil {
		return fmt.Errorf("application startup failed | %w", err)
	}
	return graspApp.Run(ctx)
}
