package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	FMUDir        string
	ScenarioPath  string
	LogConfigPath string
}

// ValidationResult summarizes a valid simulation setup.
type ValidationResult struct {
	Valid       bool     `json:"valid"`
	Components  []string `json:"components"`
	Connections int      `json:"connections"`
	Scenario    string   `json:"scenario,omitempty"`
	Events      int      `json:"events,omitempty"`
	Logged      []string `json:"logged,omitempty"`
}

func (r ValidationResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "✓ %d component(s), %d connection(s)\n", len(r.Components), r.Connections)
	fmt.Fprintf(&b, "  components: %s\n", strings.Join(r.Components, ", "))
	if r.Scenario != "" {
		fmt.Fprintf(&b, "  scenario: %s (%d events)\n", r.Scenario, r.Events)
	}
	if len(r.Logged) > 0 {
		fmt.Fprintf(&b, "  logged: %s\n", strings.Join(r.Logged, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <system-structure>",
		Short: "Check a simulation setup without running it",
		Long: `Load a system structure, its FMUs and the optional scenario and logging
configuration, and check them against each other without staging or running
anything.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.FMUDir, "fmu-dir", "", "directory holding the FMUs (default: next to the structure)")
	cmd.Flags().StringVar(&opts.ScenarioPath, "scenario", "", "scenario file (.json, .yaml)")
	cmd.Flags().StringVar(&opts.LogConfigPath, "log-config", "", "logging configuration (LogConfig.xml)")

	return cmd
}

func runValidate(opts *ValidateOptions, structurePath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := buildConfiguration(structurePath, opts.FMUDir, opts.ScenarioPath, opts.LogConfigPath)
	if err != nil {
		return formatter.Fail("validation failed", err)
	}

	result := ValidationResult{
		Valid:       true,
		Components:  cfg.ComponentNames(),
		Connections: cfg.Structure().ConnectionCount(),
	}
	if sc := cfg.Scenario(); sc != nil {
		if err := sc.Validate(); err != nil {
			return formatter.Fail("validation failed", err)
		}
		result.Scenario = sc.Name
		result.Events = len(sc.Events)
	}
	if lc := cfg.LogConfig(); lc != nil {
		result.Logged = lc.Components()
	}
	return formatter.Success(result)
}
