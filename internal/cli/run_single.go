package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/cosimkit/internal/simulation"
)

// RunSingleOptions holds flags for the run-single command.
type RunSingleOptions struct {
	*RootOptions
	Duration      float64
	StepSize      float64
	InitialValues map[string]string
	Cleanup       bool
	NoHistory     bool
}

// RunSingleReport is the output of the run-single command.
type RunSingleReport struct {
	RunID      string   `json:"run_id"`
	OutputFile string   `json:"output_file"`
	Rows       int      `json:"rows"`
	Columns    []string `json:"columns"`
	Log        string   `json:"log,omitempty"`
}

func (r RunSingleReport) String() string {
	return fmt.Sprintf("Run %s finished\n  output: %s\n  %d rows [%s]",
		r.RunID, r.OutputFile, r.Rows, strings.Join(r.Columns, ", "))
}

// NewRunSingleCommand creates the run-single command.
func NewRunSingleCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunSingleOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run-single <fmu>",
		Short: "Run one FMU on its own",
		Long: `Run a single FMU with cosim run-single and load its result CSV.

Examples:
  cosimkit run-single chassis.fmu --duration 10
  cosimkit run-single chassis.fmu -d 10 --step-size 0.01 --set C.mChassis=450`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSingle(opts, args[0], cmd)
		},
	}

	cmd.Flags().Float64VarP(&opts.Duration, "duration", "d", 0, "simulated time in seconds (required)")
	cmd.Flags().Float64VarP(&opts.StepSize, "step-size", "s", 0, "step size in seconds (default: cosim's)")
	cmd.Flags().StringToStringVar(&opts.InitialValues, "set", nil, "initial value as name=value (repeatable)")
	cmd.Flags().BoolVar(&opts.Cleanup, "cleanup", false, "remove the working directory after the run")
	cmd.Flags().BoolVar(&opts.NoHistory, "no-history", false, "do not record the run")
	_ = cmd.MarkFlagRequired("duration")

	return cmd
}

func runSingle(opts *RunSingleOptions, fmuPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cleanup := !opts.Settings.KeepWorkDir
	if cmd.Flags().Changed("cleanup") {
		cleanup = opts.Cleanup
	}

	history := openHistory(opts.RootOptions, opts.NoHistory)
	defer closeHistory(history)
	runner := newRunner(opts.RootOptions, history)

	ctx, stop := signalContext(cmd)
	defer stop()

	out, err := runner.RunSingle(ctx, fmuPath, simulation.SingleOptions{
		Duration:      opts.Duration,
		StepSize:      opts.StepSize,
		InitialValues: opts.InitialValues,
		Cleanup:       cleanup,
	})
	if err != nil {
		return formatter.Fail("simulation failed", err)
	}
	formatter.VerboseLog("cosim log:\n%s", out.Log)

	report := RunSingleReport{
		RunID:      out.RunID,
		OutputFile: out.OutputFilePath,
		Rows:       out.Result.Rows(),
		Columns:    out.Result.Columns,
	}
	if opts.Verbose {
		report.Log = out.Log
	}
	return formatter.Success(report)
}
