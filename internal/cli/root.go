package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/cosimkit/internal/config"
	"github.com/roach88/cosimkit/internal/simulation"
	"github.com/roach88/cosimkit/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	CosimPath  string
	WorkRoot   string
	Database   string

	// Settings is the effective configuration, resolved before any
	// subcommand runs.
	Settings *config.Config

	// IDGenerator overrides run id generation (for testing).
	IDGenerator simulation.IDGenerator
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the cosimkit CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cosimkit",
		Short: "cosimkit - co-simulation runner",
		Long: `Stage OSP system structures and FMUs, run them with cosim and load the
per-component CSV results.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Validate format flag
			if !isValidFormat(opts.Format) {
				msg := fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
				fmt.Fprintf(cmd.ErrOrStderr(), "Error [%s]: %s\n", ErrCodeValidation, msg)
				return NewExitError(ExitCommandError, msg)
			}
			setupLogging(cmd.ErrOrStderr(), opts.Verbose)
			if err := resolveSettings(cmd, opts); err != nil {
				_ = newFormatter(opts, cmd).Error(ErrCodeValidation, err.Error(), nil)
				return err
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (default $HOME/.cosimkit/config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.CosimPath, "cosim", "", "cosim executable (default: cosim on PATH, or $"+config.EnvCosimPath+")")
	cmd.PersistentFlags().StringVar(&opts.WorkRoot, "work-root", "", "directory for working directories (default: OS temp dir)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "run history database (default $HOME/.cosimkit/history.db, or $"+config.EnvDatabase+")")

	// Add subcommands
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewRunSingleCommand(opts))
	cmd.AddCommand(NewInspectCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func setupLogging(w io.Writer, verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// resolveSettings layers flags over environment over config file over
// defaults.
func resolveSettings(cmd *cobra.Command, opts *RootOptions) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	cfg.ApplyEnv(os.LookupEnv)

	flags := cmd.Flags()
	if flags.Changed("cosim") {
		cfg.CosimPath = opts.CosimPath
	}
	if flags.Changed("work-root") {
		cfg.WorkRoot = opts.WorkRoot
	}
	if flags.Changed("db") {
		cfg.Database = opts.Database
	}
	opts.Settings = cfg
	slog.Debug("settings resolved", "cosim", cfg.CosimPath, "work_root", cfg.WorkRoot, "db", cfg.Database)
	return nil
}

// newFormatter builds the output formatter for a command.
func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
}

// openHistory opens the run history store, or returns nil when history is
// disabled. A store that cannot be opened is logged and skipped.
func openHistory(opts *RootOptions, disabled bool) *store.Store {
	if disabled || opts.Settings.Database == "" {
		return nil
	}
	st, err := store.Open(opts.Settings.Database)
	if err != nil {
		slog.Warn("run history disabled", "db", opts.Settings.Database, "error", err)
		return nil
	}
	return st
}

// newRunner builds a simulation runner from the effective settings.
func newRunner(opts *RootOptions, history *store.Store) *simulation.Runner {
	runnerOpts := []simulation.RunnerOption{
		simulation.WithExecutable(opts.Settings.CosimPath),
		simulation.WithWorkRoot(opts.Settings.WorkRoot),
		simulation.WithLogger(slog.Default()),
	}
	if opts.IDGenerator != nil {
		runnerOpts = append(runnerOpts, simulation.WithIDGenerator(opts.IDGenerator))
	}
	if history != nil {
		runnerOpts = append(runnerOpts, simulation.WithRecorder(history))
	}
	return simulation.NewRunner(runnerOpts...)
}

func closeHistory(st *store.Store) {
	if st == nil {
		return
	}
	if err := st.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}
