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
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

const (
	exitFailure = 1
	exitUsage   = 2
)

func usageError(err error) error {
	return &ExitError{Code: exitUsage, Message: err.Error(), Err: err}
}

func failure(err error) error {
	return &ExitError{Code: exitFailure, Message: err.Error(), Err: err}
}

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		stop()
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitFailure)
	}
}

// run executes the CLI against args. Errors are always *ExitError.
func run(ctx context.Context, outW, errW io.Writer, args []string) error {
	c := &cli{outW: outW, errW: errW}
	return c.execute(ctx, args)
}

func (c *cli) execute(ctx context.Context, args []string) error {
	root := c.newRootCmd()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	closeErr := c.logger.Close()
	if err == nil {
		if closeErr != nil {
			return failure(closeErr)
		}
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}
	// Anything cobra reports itself (unknown flags, arg counts) is a usage error.
	return usageError(err)
}
