package cosim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/roach88/cosimkit/internal/simerr"
)

// Command is one invocation of the cosim executable.
type Command struct {
	Path string
	Args []string
	Dir  string
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Path}, c.Args...), " ")
}

// Result is what a finished process left behind.
type Result struct {
	// Output is the combined stdout and stderr.
	Output   []byte
	ExitCode int
}

// Executor runs a command to completion.
//
// A non-zero exit is not an error for the Executor: it is reported in
// Result.ExitCode. Errors mean the process could not be started or was
// interrupted.
type Executor interface {
	Execute(ctx context.Context, cmd Command) (Result, error)
}

// ProcessExecutor runs commands as child processes and blocks until exit.
type ProcessExecutor struct {
	Logger *slog.Logger
}

// NewProcessExecutor creates a ProcessExecutor. A nil logger uses slog.Default().
func NewProcessExecutor(logger *slog.Logger) *ProcessExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessExecutor{Logger: logger}
}

// Execute runs cmd with stdout and stderr captured together.
// Returns an ENVIRONMENT error when the executable cannot be started.
func (e *ProcessExecutor) Execute(ctx context.Context, cmd Command) (Result, error) {
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := exec.CommandContext(ctx, cmd.Path, cmd.Args...)
	c.Dir = cmd.Dir
	logger.Debug("starting cosim", "cmd", cmd.String(), "dir", cmd.Dir)

	out, err := c.CombinedOutput()
	if err == nil {
		logger.Debug("cosim finished", "exit_code", 0, "output_bytes", len(out))
		return Result{Output: out}, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return Result{Output: out, ExitCode: -1}, fmt.Errorf("cosim interrupted: %w", ctxErr)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		logger.Debug("cosim finished", "exit_code", code, "output_bytes", len(out))
		return Result{Output: out, ExitCode: code}, nil
	}

	return Result{Output: out, ExitCode: -1}, simerr.Environment(cmd.Path, "cannot start cosim", err)
}

// Resolve locates the cosim executable. An empty path looks up
// DefaultExecutable on PATH; a path with a separator must name an
// executable file. Returns an ENVIRONMENT error otherwise.
func Resolve(path string) (string, error) {
	if path == "" {
		path = DefaultExecutable
	}

	if !strings.ContainsRune(path, os.PathSeparator) && !strings.ContainsRune(path, '/') {
		found, err := exec.LookPath(path)
		if err != nil {
			return "", simerr.Environment(path, "cosim executable not found on PATH", err)
		}
		path = found
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", simerr.Environment(path, "cannot resolve cosim path", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", simerr.Environment(abs, "cosim executable not found", err)
	}
	if info.IsDir() {
		return "", simerr.Environment(abs, "cosim path is a directory", nil)
	}
	if runtime.GOOS != "windows" && info.Mode().Perm()&0o111 == 0 {
		return "", simerr.Environment(abs, "cosim is not executable", nil)
	}
	return abs, nil
}
