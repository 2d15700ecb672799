package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/cosimkit/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Limit  int
	Delete bool
}

// DeleteResult reports a removed run.
type DeleteResult struct {
	Deleted string `json:"deleted"`
}

func (r DeleteResult) String() string {
	return "Deleted run " + r.Deleted
}

// HistoryResult lists recorded runs.
type HistoryResult struct {
	Runs  []store.Run `json:"runs"`
	Total int         `json:"total"`
}

func (r HistoryResult) String() string {
	if len(r.Runs) == 0 {
		return "No runs recorded"
	}
	var b strings.Builder
	for _, run := range r.Runs {
		fmt.Fprintf(&b, "%-36s  %-10s  %-9s  %s  %s\n",
			run.ID, run.Kind, run.Status, run.StartedAt.Local().Format(time.DateTime), run.WorkDir)
	}
	return strings.TrimRight(b.String(), "\n")
}

// RunDetail is the text rendering of a single run.
type RunDetail struct {
	*store.Run
}

func (d RunDetail) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s (%s)\n", d.ID, d.Kind)
	fmt.Fprintf(&b, "  status:   %s\n", d.Status)
	if d.StructurePath != "" {
		fmt.Fprintf(&b, "  source:   %s\n", d.StructurePath)
	}
	fmt.Fprintf(&b, "  work dir: %s\n", d.WorkDir)
	fmt.Fprintf(&b, "  duration: %gs\n", d.Duration)
	if d.Scenario != "" {
		fmt.Fprintf(&b, "  scenario: %s\n", d.Scenario)
	}
	fmt.Fprintf(&b, "  started:  %s\n", d.StartedAt.Local().Format(time.DateTime))
	if d.FinishedAt != nil {
		fmt.Fprintf(&b, "  finished: %s\n", d.FinishedAt.Local().Format(time.DateTime))
	}
	if d.ErrorKind != "" {
		fmt.Fprintf(&b, "  error:    [%s] %s\n", d.ErrorKind, d.ErrorMessage)
	}
	for _, r := range d.Results {
		fmt.Fprintf(&b, "  %s: %d rows, %d columns (%s)\n", r.Component, r.Rows, r.Columns, r.Path)
	}
	return strings.TrimRight(b.String(), "\n")
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List recorded runs",
		Long: `List recorded runs, newest first, or show one run with its result files.
With --delete the run is removed from the history. Its work directory is
left in place.

Examples:
  cosimkit history
  cosimkit history --limit 5 --format json
  cosimkit history 0190f4c2-8a7e-7c1d-9f3b-2a4c6e8d0b1f
  cosimkit history --delete 0190f4c2-8a7e-7c1d-9f3b-2a4c6e8d0b1f`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			return runHistory(opts, id, cmd)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "maximum number of runs to list (0 = all)")
	cmd.Flags().BoolVar(&opts.Delete, "delete", false, "remove the given run from the history")

	return cmd
}

func runHistory(opts *HistoryOptions, id string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	if opts.Delete && id == "" {
		_ = formatter.Error(ErrCodeValidation, "--delete needs a run id", nil)
		return NewExitError(ExitCommandError, "--delete needs a run id")
	}

	st, err := store.Open(opts.Settings.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer closeHistory(st)

	ctx := cmd.Context()
	if opts.Delete {
		if err := st.DeleteRun(ctx, id); err != nil {
			_ = formatter.Error(runErrorCode(err), err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to delete run", err)
		}
		return formatter.Success(DeleteResult{Deleted: id})
	}
	if id != "" {
		run, err := st.GetRun(ctx, id)
		if err != nil {
			_ = formatter.Error(runErrorCode(err), fmt.Sprintf("run %s: %v", id, err), nil)
			return WrapExitError(ExitCommandError, "failed to read run", err)
		}
		if opts.Format == "json" {
			return formatter.Success(run)
		}
		return formatter.Success(RunDetail{Run: run})
	}

	runs, err := st.ListRuns(ctx, opts.Limit)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}
	return formatter.Success(HistoryResult{Runs: runs, Total: len(runs)})
}

func runErrorCode(err error) string {
	if errors.Is(err, store.ErrNotFound) {
		return ErrCodeNotFound
	}
	return ErrCodeGeneric
}
