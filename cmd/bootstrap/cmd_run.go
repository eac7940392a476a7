package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/kingrea/bootstrap/internal/bootstrap"
	"github.com/kingrea/bootstrap/internal/host"
	"github.com/kingrea/bootstrap/internal/logbook"
	"github.com/kingrea/bootstrap/internal/telemetry"
	"github.com/kingrea/bootstrap/internal/tui"
)

type runOptions struct {
	tui     bool
	journal string
	trace   string
	metrics string
}

func (c *cli) newRunCmd() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run MANIFEST",
		Short: "Run every unit declared in a manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runManifest(cmd.Context(), args[0], opts)
		},
	}
	flags := cmd.Flags()
	flags.BoolVar(&opts.tui, "tui", false, "show live progress in a terminal UI")
	flags.StringVar(&opts.journal, "journal", "", "append unit events to this journal file")
	flags.StringVar(&opts.trace, "trace", telemetry.ExporterNone, "trace exporter: none or stdout")
	flags.StringVar(&opts.metrics, "metrics", telemetry.ExporterNone, "metric exporter: none or stdout")
	return cmd
}

func (c *cli) runManifest(ctx context.Context, path string, opts runOptions) (err error) {
	logger := c.logger.Logger

	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		TraceExporter:  opts.trace,
		MetricExporter: opts.metrics,
		Out:            c.outW,
	})
	if err != nil {
		return usageError(err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := shutdown(flushCtx); shutdownErr != nil {
			logger.Warn("Telemetry shutdown failed.", "error", shutdownErr)
		}
	}()

	unitOut := c.outW
	if opts.tui {
		unitOut = io.Discard
	}
	m, plan, err := c.loadPlan(path, unitOut)
	if err != nil {
		return err
	}
	mgr, err := plan.Manager()
	if err != nil {
		return usageError(err)
	}
	logger = logger.With("manifest", m.ID, "run_id", mgr.RunID())

	var journalDone chan error
	if opts.journal != "" {
		book, err := logbook.New(opts.journal)
		if err != nil {
			return failure(err)
		}
		sub := mgr.Subscribe()
		journalDone = make(chan error, 1)
		go func() { journalDone <- book.Follow(sub) }()
		defer func() {
			if journalErr := <-journalDone; journalErr != nil {
				logger.Warn("Journal incomplete.", "path", opts.journal, "error", journalErr)
			}
		}()
	}

	h := host.New(mgr, host.Options{AutoRun: plan.AutoRun})
	if opts.tui {
		err = c.runWithTUI(ctx, m.ID, mgr, h)
	} else {
		err = c.runPlain(ctx, h, logger)
	}
	if err != nil {
		return failure(err)
	}
	total := 0
	for _, layer := range mgr.Layers() {
		total += len(layer.Entries)
	}
	fmt.Fprintf(c.outW, "bootstrap %s: %d units initialized (run %s)\n", m.ID, total, mgr.RunID())
	return nil
}

func (c *cli) runPlain(ctx context.Context, h *host.Context, logger *slog.Logger) error {
	if err := h.Initialize(ctx); err != nil {
		return err
	}
	if !h.Started() {
		logger.Info("Auto-run disabled, starting run explicitly.")
		return h.Run(ctx)
	}
	return nil
}

func (c *cli) runWithTUI(ctx context.Context, title string, mgr *bootstrap.Manager, h *host.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sub := mgr.Subscribe()
	result := make(chan error, 1)
	go func() {
		err := h.Initialize(runCtx)
		if err == nil && !h.Started() {
			err = h.Run(runCtx)
		}
		result <- err
	}()

	model := tui.New(title, mgr.Layers(), sub.Events, result, cancel)
	final, err := tea.NewProgram(model, tea.WithContext(ctx), tea.WithOutput(c.outW)).Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		cancel()
		return fmt.Errorf("tui: %w", err)
	}
	if fm, ok := final.(tui.Model); ok && fm.Finished() {
		return fm.Err()
	}
	// The program ended before the run did; wait for the cancelled run.
	cancel()
	return <-result
}
