// Package cosim pins the command-line contract of the external cosim tool
// and runs it as a child process.
//
// Only three subcommands are used:
//
//	cosim run <structure-dir> --output-dir=<dir> [--scenario=<file>] --duration=<s> --log-level=<level>
//	cosim run-single <fmu> [name=value ...] --output-file=<file> [-d<duration>] [-s<step>]
//	cosim inspect <fmu>
//
// Argument names and order follow ContractVersion. A newer cosim with a
// different layout needs a new contract here, not guessing at runtime.
package cosim

import (
	"sort"
	"strconv"
	"strings"

	"github.com/roach88/cosimkit/internal/simerr"
)

// ContractVersion identifies the argument layout built by this package.
const ContractVersion = "cosim-cli/0.7"

// DefaultExecutable is looked up on PATH when no explicit path is given.
const DefaultExecutable = "cosim"

// LogLevel is the verbosity passed with --log-level.
type LogLevel string

const (
	LevelError   LogLevel = "error"
	LevelWarning LogLevel = "warning"
	LevelInfo    LogLevel = "info"
	LevelDebug   LogLevel = "debug"
	LevelTrace   LogLevel = "trace"
)

// DefaultLogLevel is used when no level is requested.
const DefaultLogLevel = LevelWarning

// LogLevels lists the accepted levels from least to most verbose.
var LogLevels = []LogLevel{LevelError, LevelWarning, LevelInfo, LevelDebug, LevelTrace}

// Valid reports whether l is one of LogLevels.
func (l LogLevel) Valid() bool {
	for _, v := range LogLevels {
		if l == v {
			return true
		}
	}
	return false
}

// ParseLogLevel parses a level name case-insensitively. "" yields
// DefaultLogLevel.
func ParseLogLevel(s string) (LogLevel, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return DefaultLogLevel, nil
	}
	l := LogLevel(s)
	if !l.Valid() {
		return "", simerr.Validation("invalid log level %q (want error, warning, info, debug or trace)", s)
	}
	return l, nil
}

// RunArgs describes a `cosim run` invocation.
type RunArgs struct {
	StructureDir string
	OutputDir    string
	ScenarioFile string
	Duration     float64
	LogLevel     LogLevel
}

// Args returns the argument list, without the executable.
func (a RunArgs) Args() []string {
	args := []string{"run", a.StructureDir}
	if a.OutputDir != "" {
		args = append(args, "--output-dir="+a.OutputDir)
	}
	if a.ScenarioFile != "" {
		args = append(args, "--scenario="+a.ScenarioFile)
	}
	if a.Duration > 0 {
		args = append(args, "--duration="+formatFloat(a.Duration))
	}
	level := a.LogLevel
	if level == "" {
		level = DefaultLogLevel
	}
	return append(args, "--log-level="+string(level))
}

// RunSingleArgs describes a `cosim run-single` invocation.
type RunSingleArgs struct {
	FMU           string
	InitialValues map[string]string
	OutputFile    string
	Duration      float64
	StepSize      float64
}

// Args returns the argument list, without the executable. Initial values
// are emitted sorted by name.
func (a RunSingleArgs) Args() []string {
	args := []string{"run-single", a.FMU}

	names := make([]string, 0, len(a.InitialValues))
	for k := range a.InitialValues {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		args = append(args, k+"="+a.InitialValues[k])
	}

	if a.OutputFile != "" {
		args = append(args, "--output-file="+a.OutputFile)
	}
	if a.Duration > 0 {
		args = append(args, "-d"+formatFloat(a.Duration))
	}
	if a.StepSize > 0 {
		args = append(args, "-s"+formatFloat(a.StepSize))
	}
	return args
}

// InspectArgs returns the argument list for `cosim inspect`.
func InspectArgs(fmu string) []string {
	return []string{"inspect", fmu}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
