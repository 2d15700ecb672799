package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/cosimkit/internal/model"
)

// InspectOptions holds flags for the inspect command.
type InspectOptions struct {
	*RootOptions
	UseCosim bool
}

// InspectReport describes a model.
type InspectReport struct {
	Name           string          `json:"name"`
	GUID           string          `json:"uuid"`
	Description    string          `json:"description,omitempty"`
	Author         string          `json:"author,omitempty"`
	Version        string          `json:"version,omitempty"`
	FMIVersion     string          `json:"fmi_version,omitempty"`
	OSPDescription string          `json:"osp_description,omitempty"`
	VariableGroups []string        `json:"variable_groups,omitempty"`
	Variables      model.Variables `json:"variables"`
}

func (r InspectReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", r.Name, r.GUID)
	if r.Description != "" {
		fmt.Fprintf(&b, "  %s\n", r.Description)
	}
	section := func(title string, vs []model.Variable) {
		if len(vs) == 0 {
			return
		}
		fmt.Fprintf(&b, "%s:\n", title)
		for _, v := range vs {
			fmt.Fprintf(&b, "  %-24s %-8s %s\n", v.Name, v.Type, v.Causality)
		}
	}
	section("Parameters", r.Variables.Parameters)
	section("Inputs", r.Variables.Inputs)
	section("Outputs", r.Variables.Outputs)
	section("Others", r.Variables.Others)
	if len(r.VariableGroups) > 0 {
		fmt.Fprintf(&b, "Variable groups:\n  %s\n", strings.Join(r.VariableGroups, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

// InspectList describes every FMU in a directory.
type InspectList struct {
	Models []InspectReport `json:"models"`
}

func (l InspectList) String() string {
	parts := make([]string, 0, len(l.Models))
	for _, m := range l.Models {
		parts = append(parts, m.String())
	}
	return strings.Join(parts, "\n\n")
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InspectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inspect <fmu|dir>",
		Short: "Show the variables of an FMU",
		Long: `Show the model description of an FMU with its variables grouped into
parameters, inputs, outputs and others. Given a directory, every FMU in it
is described in file name order.

The description is read from the archive. With --use-cosim it is obtained
from "cosim inspect" instead.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.UseCosim, "use-cosim", false, "ask cosim for the model description")

	return cmd
}

func runInspect(opts *InspectOptions, fmuPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	ctx, stop := signalContext(cmd)
	defer stop()

	if info, err := os.Stat(fmuPath); err == nil && info.IsDir() {
		list, err := inspectDir(ctx, opts, fmuPath)
		if err != nil {
			return formatter.Fail("inspect failed", err)
		}
		return formatter.Success(list)
	}

	var report InspectReport
	if opts.UseCosim {
		desc, err := newRunner(opts.RootOptions, nil).Inspect(ctx, fmuPath)
		if err != nil {
			return formatter.Fail("inspect failed", err)
		}
		report = inspectReport(desc)
	} else {
		fmu, err := model.Open(fmuPath)
		if err != nil {
			return formatter.Fail("inspect failed", err)
		}
		if report, err = archiveReport(fmu); err != nil {
			return formatter.Fail("inspect failed", err)
		}
	}
	return formatter.Success(report)
}

func inspectDir(ctx context.Context, opts *InspectOptions, dir string) (InspectList, error) {
	fmus, err := model.ImportDir(dir)
	if err != nil {
		return InspectList{}, err
	}

	list := InspectList{Models: make([]InspectReport, 0, len(fmus))}
	for _, name := range model.SortedNames(fmus) {
		fmu := fmus[name]
		var report InspectReport
		if opts.UseCosim {
			desc, err := newRunner(opts.RootOptions, nil).Inspect(ctx, fmu.Path)
			if err != nil {
				return InspectList{}, err
			}
			report = inspectReport(desc)
		} else if report, err = archiveReport(fmu); err != nil {
			return InspectList{}, err
		}
		list.Models = append(list.Models, report)
	}
	return list, nil
}

func archiveReport(fmu *model.FMU) (InspectReport, error) {
	groups, err := fmu.VariableGroupNames()
	if err != nil {
		return InspectReport{}, err
	}
	report := inspectReport(&fmu.Description)
	report.OSPDescription = fmu.OSPDescriptionPath
	report.VariableGroups = groups
	return report, nil
}

func inspectReport(d *model.Description) InspectReport {
	return InspectReport{
		Name:        d.Name,
		GUID:        d.GUID,
		Description: d.Description,
		Author:      d.Author,
		Version:     d.Version,
		FMIVersion:  d.FMIVersion,
		Variables:   d.Classify(),
	}
}
