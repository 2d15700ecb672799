package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// FakeCosim describes the behavior of a stand-in cosim executable.
type FakeCosim struct {
	// Results maps result file names to CSV content. They are written into
	// the directory given by --output-dir.
	Results map[string]string

	// SingleResult is written to the path given by --output-file.
	SingleResult string

	// Inspect is printed for the inspect subcommand.
	Inspect string

	// Stdout and Stderr are printed before exiting.
	Stdout string
	Stderr string

	ExitCode int
}

// WriteFakeCosim writes an executable shell script named cosim into dir.
// Every invocation appends its arguments, one per line, to args.txt next to
// the script. Returns the script path. Skips the test on Windows.
func WriteFakeCosim(t testing.TB, dir string, fc FakeCosim) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake cosim is a POSIX shell script")
	}

	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	b.WriteString("out=\"\"\noutfile=\"\"\n")
	b.WriteString("for a in \"$@\"; do\n")
	b.WriteString("  case \"$a\" in\n")
	b.WriteString("    --output-dir=*) out=\"${a#--output-dir=}\" ;;\n")
	b.WriteString("    --output-file=*) outfile=\"${a#--output-file=}\" ;;\n")
	b.WriteString("  esac\n")
	b.WriteString("done\n")
	fmt.Fprintf(&b, "printf '%%s\\n' \"$@\" >> '%s'\n", filepath.Join(dir, "args.txt"))

	if fc.Inspect != "" {
		b.WriteString("if [ \"$1\" = \"inspect\" ]; then\n")
		heredoc(&b, "", fc.Inspect)
		b.WriteString("exit 0\nfi\n")
	}

	if fc.Stdout != "" {
		heredoc(&b, "", fc.Stdout)
	}
	if fc.Stderr != "" {
		heredoc(&b, ">&2", fc.Stderr)
	}

	names := make([]string, 0, len(fc.Results))
	for name := range fc.Results {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) > 0 {
		b.WriteString("if [ -n \"$out\" ]; then\n")
		b.WriteString("mkdir -p \"$out\"\n")
		for _, name := range names {
			heredoc(&b, fmt.Sprintf("> \"$out/%s\"", name), fc.Results[name])
		}
		b.WriteString("fi\n")
	}

	if fc.SingleResult != "" {
		b.WriteString("if [ -n \"$outfile\" ]; then\n")
		heredoc(&b, "> \"$outfile\"", fc.SingleResult)
		b.WriteString("fi\n")
	}

	fmt.Fprintf(&b, "exit %d\n", fc.ExitCode)

	p := filepath.Join(dir, "cosim")
	require.NoError(t, os.WriteFile(p, []byte(b.String()), 0o755))
	return p
}

// ReadArgs returns the arguments recorded by a fake cosim in dir.
func ReadArgs(t testing.TB, dir string) []string {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(dir, "args.txt"))
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func heredoc(b *strings.Builder, redirect, content string) {
	if redirect != "" {
		fmt.Fprintf(b, "cat %s <<'COSIM_EOF'\n", redirect)
	} else {
		b.WriteString("cat <<'COSIM_EOF'\n")
	}
	b.WriteString(content)
	if !strings.HasSuffix(content, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("COSIM_EOF\n")
}
