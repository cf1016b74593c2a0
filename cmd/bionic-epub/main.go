package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	bionic "github.com/simp-lee/bionic-epub"
	"github.com/simp-lee/bionic-epub/internal/cli"
)

// main is the entrypoint for the bionic-epub command.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			stop()
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// run encapsulates the main application logic for easier testing and error
// handling. Usage text goes to outW, progress logs to logW.
func run(ctx context.Context, outW, logW io.Writer, args []string) error {
	opts, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	logger := cli.NewLogger(opts.LogLevel, opts.LogFormat, logW)
	t, err := bionic.NewTransformer(opts.Config, logger)
	if err != nil {
		return err
	}

	res, err := t.Run(ctx, opts.Input)
	if err != nil {
		return err
	}
	logger.Info("done",
		"output", res.Output,
		"documents", res.Documents,
		"rewritten", res.Rewritten,
		"skipped", len(res.Skipped),
	)
	return nil
}
