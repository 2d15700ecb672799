package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cosimkit/internal/testutil"
)

const chassisCSV = `Time, StepCount, p.e [2 output real], zChassis [3 local real]
0, 0, 0.5, 1
0.01, 1, 0.75, 1.5
0.02, 2, 1, 2
`

const wheelCSV = `Time, StepCount, zWheel [3 output real]
0, 0, 0.1
0.01, 1, 0.2
`

var systemResults = map[string]string{
	"chassis_20240102_030405_000001.csv": chassisCSV,
	"wheel_20240102_030405_000002.csv":   wheelCSV,
}

func TestRunCommand_Text(t *testing.T) {
	f := newCLIFixture(t, testutil.FakeCosim{Results: systemResults})

	stdout, _, err := f.execute(t, "run", f.systemDir, "--duration", "10")
	require.NoError(t, err)

	assert.Contains(t, stdout, "Run run-1 finished")
	assert.Contains(t, stdout, "chassis: 3 rows [p.e, zChassis]")
	assert.Contains(t, stdout, "wheel: 2 rows [zWheel]")

	dir := filepath.Join(f.workRoot, "cosimkit_tmp", "sim_run-1")
	assert.Equal(t, []string{
		"run",
		dir,
		"--output-dir=" + dir,
		"--duration=10",
		"--log-level=warning",
	}, testutil.ReadArgs(t, f.binDir))
	assert.DirExists(t, dir)
}

func TestRunCommand_JSON(t *testing.T) {
	f := newCLIFixture(t, testutil.FakeCosim{Results: systemResults})

	stdout, _, err := f.execute(t, "run", f.systemDir, "-d", "1", "--log-level", "debug", "--format", "json")
	require.NoError(t, err)

	resp := decode(t, stdout)
	assert.Equal(t, "ok", resp.Status)

	var report RunReport
	data(t, resp, &report)
	assert.Equal(t, "run-1", report.RunID)
	require.Len(t, report.Components, 2)
	assert.Equal(t, "chassis", report.Components[0].Name)
	assert.Equal(t, 3, report.Components[0].Rows)
	assert.Equal(t, "wheel", report.Components[1].Name)
	assert.Empty(t, report.Log)

	assert.Contains(t, testutil.ReadArgs(t, f.binDir), "--log-level=debug")
}

func TestRunCommand_Scenario(t *testing.T) {
	f := newCLIFixture(t, testutil.FakeCosim{Results: systemResults})
	sc := testutil.WriteFile(t, filepath.Join(t.TempDir(), "step.yaml"), `name: step
end: 10
events:
  - time: 1
    model: chassis
    variable: p.f
    action: override
    value: 10.5
`)

	_, _, err := f.execute(t, "run", f.systemDir, "-d", "5", "--scenario", sc)
	require.NoError(t, err)

	dir := filepath.Join(f.workRoot, "cosimkit_tmp", "sim_run-1")
	assert.Contains(t, testutil.ReadArgs(t, f.binDir), "--scenario="+filepath.Join(dir, "step.json"))
	assert.FileExists(t, filepath.Join(dir, "step.json"))
}

func TestRunCommand_Cleanup(t *testing.T) {
	f := newCLIFixture(t, testutil.FakeCosim{Results: systemResults})

	_, _, err := f.execute(t, "run", f.systemDir, "-d", "1", "--cleanup")
	require.NoError(t, err)

	_, statErr := os.Stat(filepath.Join(f.workRoot, "cosimkit_tmp", "sim_run-1"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunCommand_CosimFailure(t *testing.T) {
	f := newCLIFixture(t, testutil.FakeCosim{Stderr: "fatal: step failed", ExitCode: 3})

	stdout, stderr, err := f.execute(t, "run", f.systemDir, "-d", "1")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	assert.Contains(t, stdout, "Error [E005]")
	assert.Contains(t, stderr, "fatal: step failed")
}

func TestRunCommand_MissingResults(t *testing.T) {
	f := newCLIFixture(t, testutil.FakeCosim{})

	stdout, _, err := f.execute(t, "run", f.systemDir, "-d", "1", "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, ErrCodeResultParsing, decode(t, stdout).Error.Code)
}

func TestRunCommand_CommandErrors(t *testing.T) {
	tests := []struct {
		name string
		args func(f *cliFixture) []string
		code string
	}{
		{
			name: "zero duration",
			args: func(f *cliFixture) []string { return []string{"run", f.systemDir, "-d", "0"} },
			code: ErrCodeValidation,
		},
		{
			name: "bad log level",
			args: func(f *cliFixture) []string { return []string{"run", f.systemDir, "-d", "1", "--log-level", "loud"} },
			code: ErrCodeValidation,
		},
		{
			name: "missing model",
			args: func(f *cliFixture) []string {
				require.NoError(t, os.Remove(filepath.Join(f.systemDir, "wheel.fmu")))
				return []string{"run", f.systemDir, "-d", "1"}
			},
			code: ErrCodeDeployment,
		},
		{
			name: "cosim not found",
			args: func(f *cliFixture) []string {
				return []string{"run", f.systemDir, "-d", "1", "--cosim", filepath.Join(f.binDir, "missing")}
			},
			code: ErrCodeEnvironment,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newCLIFixture(t, testutil.FakeCosim{Results: systemResults})

			stdout, _, err := f.execute(t, append(tt.args(f), "--format", "json")...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))

			resp := decode(t, stdout)
			assert.Equal(t, "error", resp.Status)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}

func TestRunCommand_DurationRequired(t *testing.T) {
	f := newCLIFixture(t, testutil.FakeCosim{})

	_, _, err := f.execute(t, "run", f.systemDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duration")
}
