package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/cosimkit/internal/cosim"
	"github.com/roach88/cosimkit/internal/logconfig"
	"github.com/roach88/cosimkit/internal/results"
	"github.com/roach88/cosimkit/internal/scenario"
	"github.com/roach88/cosimkit/internal/simulation"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	FMUDir        string
	Duration      float64
	LogLevel      string
	ScenarioPath  string
	LogConfigPath string
	RelPath       string
	Cleanup       bool
	NoHistory     bool
}

// ComponentReport summarizes one result table.
type ComponentReport struct {
	Name    string   `json:"name"`
	Path    string   `json:"path"`
	Rows    int      `json:"rows"`
	Columns []string `json:"columns"`
}

// RunReport is the output of the run command.
type RunReport struct {
	RunID      string            `json:"run_id"`
	WorkDir    string            `json:"work_dir"`
	ResultDir  string            `json:"result_dir"`
	Components []ComponentReport `json:"components"`
	Log        string            `json:"log,omitempty"`
}

func (r RunReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s finished\n", r.RunID)
	fmt.Fprintf(&b, "  work dir: %s\n", r.WorkDir)
	for _, c := range r.Components {
		fmt.Fprintf(&b, "  %s: %d rows [%s]\n", c.Name, c.Rows, strings.Join(c.Columns, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <system-structure>",
		Short: "Run a co-simulation",
		Long: `Stage a system structure and its FMUs into a working directory, run cosim
against it and load the per-component results.

The argument is an OspSystemStructure.xml file or the directory holding it.
FMUs are looked up next to the structure unless --fmu-dir is given, and a
LogConfig.xml next to the structure is used unless --log-config is given.

Exit codes:
  0 - Simulation finished and results were loaded
  1 - cosim failed or produced unreadable results
  2 - Command error (bad arguments, missing files, cosim not found)

Examples:
  cosimkit run ./system --duration 10
  cosimkit run ./system/OspSystemStructure.xml --duration 10 --scenario step.json
  cosimkit run ./system --duration 10 --log-level debug --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulation(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.FMUDir, "fmu-dir", "", "directory holding the FMUs (default: next to the structure)")
	cmd.Flags().Float64VarP(&opts.Duration, "duration", "d", 0, "simulated time in seconds (required)")
	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "", "cosim log level: error|warning|info|debug|trace")
	cmd.Flags().StringVar(&opts.ScenarioPath, "scenario", "", "scenario file (.json, .yaml)")
	cmd.Flags().StringVar(&opts.LogConfigPath, "log-config", "", "logging configuration (LogConfig.xml)")
	cmd.Flags().StringVar(&opts.RelPath, "rel-path", "", "place the system structure in this sub-directory of the working directory")
	cmd.Flags().BoolVar(&opts.Cleanup, "cleanup", false, "remove the working directory after the run")
	cmd.Flags().BoolVar(&opts.NoHistory, "no-history", false, "do not record the run")
	_ = cmd.MarkFlagRequired("duration")

	return cmd
}

func runSimulation(opts *RunOptions, structurePath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := buildConfiguration(structurePath, opts.FMUDir, opts.ScenarioPath, opts.LogConfigPath)
	if err != nil {
		return formatter.Fail("invalid simulation setup", err)
	}
	formatter.VerboseLog("Components: %s", strings.Join(cfg.ComponentNames(), ", "))

	level := opts.LogLevel
	if level == "" {
		level = opts.Settings.LogLevel
	}
	cleanup := !opts.Settings.KeepWorkDir
	if cmd.Flags().Changed("cleanup") {
		cleanup = opts.Cleanup
	}

	history := openHistory(opts.RootOptions, opts.NoHistory)
	defer closeHistory(history)
	runner := newRunner(opts.RootOptions, history)

	ctx, stop := signalContext(cmd)
	defer stop()

	out, err := runner.Run(ctx, cfg, simulation.RunOptions{
		Duration: opts.Duration,
		LogLevel: cosim.LogLevel(level),
		RelPath:  opts.RelPath,
		Cleanup:  cleanup,
	})
	if err != nil {
		return formatter.Fail("simulation failed", err)
	}
	formatter.VerboseLog("cosim log:\n%s", out.Log)

	report := RunReport{
		RunID:      out.RunID,
		WorkDir:    out.OutputFilePath,
		ResultDir:  out.ResultDir,
		Components: componentReports(out.Result),
	}
	if opts.Verbose {
		report.Log = out.Log
	}
	return formatter.Success(report)
}

// buildConfiguration loads a system structure with its optional scenario
// and logging configuration.
func buildConfiguration(structurePath, fmuDir, scenarioPath, logConfigPath string) (*simulation.Configuration, error) {
	b, err := simulation.FromStructure(structurePath, fmuDir)
	if err != nil {
		return nil, err
	}
	if scenarioPath != "" {
		sc, err := scenario.Load(scenarioPath)
		if err != nil {
			return nil, err
		}
		if err := b.WithScenario(sc); err != nil {
			return nil, err
		}
	}
	if logConfigPath != "" {
		lc, err := logconfig.Load(logConfigPath)
		if err != nil {
			return nil, err
		}
		if err := b.WithLoggingConfig(lc); err != nil {
			return nil, err
		}
	}
	return b.Build()
}

func componentReports(set results.Set) []ComponentReport {
	out := make([]ComponentReport, 0, len(set))
	for _, name := range set.Names() {
		t := set[name]
		out = append(out, ComponentReport{
			Name:    name,
			Path:    t.Path,
			Rows:    t.Rows(),
			Columns: t.Columns,
		})
	}
	return out
}

// signalContext cancels on SIGINT/SIGTERM. Uses the command's context if
// available (for testing).
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
