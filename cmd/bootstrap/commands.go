package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/kingrea/bootstrap/internal/bootstrap"
	"github.com/kingrea/bootstrap/internal/config"
	"github.com/kingrea/bootstrap/internal/container"
	"github.com/kingrea/bootstrap/internal/logbook"
	"github.com/kingrea/bootstrap/internal/logging"
	"github.com/kingrea/bootstrap/internal/units"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F7B801"))
	asyncStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
)

// cli holds state shared by the subcommands of one invocation.
type cli struct {
	outW, errW io.Writer

	logLevel  string
	logFormat string
	logFile   string

	logger *logging.Logger
}

// newRootCmd builds the command tree. The caller closes c.logger once the
// command returns, whether or not it failed.
func (c *cli) newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "bootstrap",
		Short:         "Run initialization units in priority and dependency order",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.New(logging.Options{
				Level:  c.logLevel,
				Format: c.logFormat,
				Out:    c.errW,
				File:   c.logFile,
			})
			if err != nil {
				return usageError(err)
			}
			c.logger = logger
			cmd.SetContext(logging.WithLogger(cmd.Context(), logger.Logger))
			return nil
		},
	}
	root.SetOut(c.outW)
	root.SetErr(c.errW)
	flags := root.PersistentFlags()
	flags.StringVar(&c.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	flags.StringVar(&c.logFormat, "log-format", "text", "log format: text or json")
	flags.StringVar(&c.logFile, "log-file", "", "also append logs to this file")

	root.AddCommand(
		c.newRunCmd(),
		c.newValidateCmd(),
		c.newUnitsCmd(),
		c.newJournalCmd(),
		c.newInitCmd(),
	)
	return root
}

// loadPlan reads a manifest and resolves it against the built-in factories.
// Relative unit paths resolve against the manifest's directory.
func (c *cli) loadPlan(path string, out io.Writer) (config.Manifest, container.Plan, error) {
	resolved, err := config.ResolveManifestPath(path)
	if err != nil {
		return config.Manifest{}, container.Plan{}, usageError(err)
	}
	m, err := config.LoadManifestFile(resolved)
	if err != nil {
		return config.Manifest{}, container.Plan{}, usageError(err)
	}
	env := container.Env{Out: out, Logger: c.logger.Logger, Dir: filepath.Dir(resolved)}
	plan, err := container.Build(m, units.NewRegistry(), env)
	if err != nil {
		return config.Manifest{}, container.Plan{}, usageError(err)
	}
	return m, plan, nil
}

func (c *cli) newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate MANIFEST",
		Short: "Check a manifest and print its priority layers without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, plan, err := c.loadPlan(args[0], io.Discard)
			if err != nil {
				return err
			}
			mgr, err := plan.Manager()
			if err != nil {
				return usageError(err)
			}
			layers := mgr.Layers()
			fmt.Fprintln(c.outW, headerStyle.Render("manifest "+m.ID))
			total := 0
			for _, layer := range layers {
				fmt.Fprintf(c.outW, "priority %d: %s\n", layer.Priority, describeLayer(layer))
				total += len(layer.Entries)
			}
			fmt.Fprintf(c.outW, "valid: %d units in %d layers\n", total, len(layers))
			return nil
		},
	}
}

func describeLayer(layer bootstrap.Layer) string {
	parts := make([]string, 0, len(layer.Entries))
	for _, e := range layer.Entries {
		label := string(e.Kind())
		if e.Unit.IsAsync() {
			label += asyncStyle.Render(" (async)")
		}
		if len(e.Dependencies) > 0 {
			deps := make([]string, len(e.Dependencies))
			for i, d := range e.Dependencies {
				deps[i] = string(d)
			}
			label += mutedStyle.Render(" <- " + strings.Join(deps, ", "))
		}
		parts = append(parts, label)
	}
	return strings.Join(parts, "; ")
}

func (c *cli) newUnitsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "units",
		Short: "List the unit factories manifests can use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, def := range units.NewRegistry().Definitions() {
				mode := "sync "
				if def.Async {
					mode = asyncStyle.Render("async")
				}
				fmt.Fprintf(c.outW, "%-8s %s  %s\n", def.ID, mode, mutedStyle.Render(def.Description))
			}
			return nil
		},
	}
}

func (c *cli) newJournalCmd() *cobra.Command {
	var lines int
	cmd := &cobra.Command{
		Use:   "journal FILE",
		Short: "Show the most recent entries of a run journal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if lines <= 0 {
				return usageError(fmt.Errorf("journal: -n must be positive"))
			}
			book, err := logbook.New(args[0])
			if err != nil {
				return failure(err)
			}
			entries, total := book.Tail(lines)
			if total == 0 {
				fmt.Fprintf(c.outW, "journal %s is empty\n", args[0])
				return nil
			}
			for _, line := range entries {
				fmt.Fprintln(c.outW, line)
			}
			fmt.Fprintln(c.outW, mutedStyle.Render(fmt.Sprintf("showing %d of %d entries", len(entries), total)))
			return nil
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 20, "number of entries to show")
	return cmd
}

func (c *cli) newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init [DIR]",
		Short: "Create a .bootstrap workspace with a starter manifest",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			ws, err := config.InitWorkspace(dir)
			if err != nil {
				return failure(err)
			}
			fmt.Fprintf(c.outW, "workspace ready: %s\n", ws.ManifestPath())
			return nil
		},
	}
}
