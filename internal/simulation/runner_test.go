package simulation

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cosimkit/internal/cosim"
	"github.com/roach88/cosimkit/internal/deploy"
	"github.com/roach88/cosimkit/internal/model"
	"github.com/roach88/cosimkit/internal/scenario"
	"github.com/roach88/cosimkit/internal/simerr"
	"github.com/roach88/cosimkit/internal/store"
	"github.com/roach88/cosimkit/internal/structure"
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
0.02, 2, 0.3
`

var systemResults = map[string]string{
	"chassis_20240102_030405_000001.csv": chassisCSV,
	"wheel_20240102_030405_000002.csv":   wheelCSV,
}

// fakeExecutor records commands instead of starting processes.
type fakeExecutor struct {
	calls  []cosim.Command
	result cosim.Result
	err    error
}

func (f *fakeExecutor) Execute(_ context.Context, cmd cosim.Command) (cosim.Result, error) {
	f.calls = append(f.calls, cmd)
	return f.result, f.err
}

type runnerFixture struct {
	cfg    *Configuration
	root   string
	binDir string
	store  *store.Store
	runner *Runner
}

func newRunnerFixture(t *testing.T, fc testutil.FakeCosim, opts ...RunnerOption) *runnerFixture {
	t.Helper()

	b, err := FromStructure(testutil.WriteSystem(t, t.TempDir()), "")
	require.NoError(t, err)
	cfg, err := b.Build()
	require.NoError(t, err)

	return newRunnerFixtureFor(t, cfg, fc, opts...)
}

func newRunnerFixtureFor(t *testing.T, cfg *Configuration, fc testutil.FakeCosim, opts ...RunnerOption) *runnerFixture {
	t.Helper()

	f := &runnerFixture{cfg: cfg, root: t.TempDir(), binDir: t.TempDir()}
	exe := testutil.WriteFakeCosim(t, f.binDir, fc)

	s, err := store.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	f.store = s

	base := []RunnerOption{
		WithExecutable(exe),
		WithWorkRoot(f.root),
		WithIDGenerator(testutil.NewFixedIDGenerator("run")),
		WithClock(testutil.NewStepClock(time.Second).Now),
		WithRecorder(s),
	}
	f.runner = NewRunner(append(base, opts...)...)
	return f
}

func (f *runnerFixture) workDir(id string) string {
	return filepath.Join(f.root, deploy.TempDirName, "sim_"+id)
}

func TestRun(t *testing.T) {
	f := newRunnerFixture(t, testutil.FakeCosim{Results: systemResults, Stdout: "simulation complete"})
	ctx := context.Background()

	out, err := f.runner.Run(ctx, f.cfg, RunOptions{Duration: 10})
	require.NoError(t, err)

	dir := f.workDir("run-1")
	assert.Equal(t, "run-1", out.RunID)
	assert.Equal(t, dir, out.OutputFilePath)
	assert.Equal(t, dir, out.ResultDir)
	assert.Contains(t, out.Log, "simulation complete")

	assert.Equal(t, []string{"chassis", "wheel"}, out.Result.Names())
	chassis := out.Result["chassis"]
	assert.Equal(t, 3, chassis.Rows())
	assert.Equal(t, []string{"p.e", "zChassis"}, chassis.Columns)
	assert.Equal(t, 3, out.Result["wheel"].Rows())

	assert.Equal(t, []string{
		"run",
		dir,
		"--output-dir=" + dir,
		"--duration=10",
		"--log-level=warning",
	}, testutil.ReadArgs(t, f.binDir))

	assert.FileExists(t, filepath.Join(dir, structure.FileName))
	assert.FileExists(t, filepath.Join(dir, "chassis.fmu"))
	assert.FileExists(t, filepath.Join(dir, "wheel.fmu"))

	rec, err := f.store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusSucceeded, rec.Status)
	assert.Equal(t, store.KindRun, rec.Kind)
	assert.Equal(t, f.cfg.Source(), rec.StructurePath)
	assert.Equal(t, dir, rec.WorkDir)
	assert.Equal(t, "warning", rec.LogLevel)
	assert.True(t, testutil.Epoch.Equal(rec.StartedAt))
	require.NotNil(t, rec.FinishedAt)
	assert.True(t, testutil.Epoch.Add(time.Second).Equal(*rec.FinishedAt))
	require.Len(t, rec.Results, 2)
	assert.Equal(t, "chassis", rec.Results[0].Component)
	assert.Equal(t, 3, rec.Results[0].Rows)
	assert.Equal(t, 2, rec.Results[0].Columns)
}

func TestRun_ScenarioAndLogLevel(t *testing.T) {
	b, err := FromStructure(testutil.WriteSystem(t, t.TempDir()), "")
	require.NoError(t, err)
	b.SetScenario("step change", 10, "")
	require.NoError(t, b.AddEvent(scenario.NewEvent(1, "chassis", "p.f", scenario.Override, 10.5)))
	cfg, err := b.Build()
	require.NoError(t, err)

	f := newRunnerFixtureFor(t, cfg, testutil.FakeCosim{Results: systemResults})
	_, err = f.runner.Run(context.Background(), cfg, RunOptions{Duration: 2.5, LogLevel: cosim.LevelDebug})
	require.NoError(t, err)

	dir := f.workDir("run-1")
	scenarioPath := filepath.Join(dir, "step_change.json")
	assert.Equal(t, []string{
		"run",
		dir,
		"--output-dir=" + dir,
		"--scenario=" + scenarioPath,
		"--duration=2.5",
		"--log-level=debug",
	}, testutil.ReadArgs(t, f.binDir))
	assert.FileExists(t, scenarioPath)

	rec, err := f.store.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, "step_change.json", rec.Scenario)
}

func TestRun_LogConfigRestrictsResults(t *testing.T) {
	b, err := FromStructure(testutil.WriteSystem(t, t.TempDir()), "")
	require.NoError(t, err)
	require.NoError(t, b.AddLoggingVariable("chassis", "p.e", 1))
	cfg, err := b.Build()
	require.NoError(t, err)

	f := newRunnerFixtureFor(t, cfg, testutil.FakeCosim{Results: map[string]string{
		"chassis_20240102_030405_000001.csv": "Time, StepCount, p.e [2 output real]\n0, 0, 0.5\n0.01, 1, 0.75\n",
	}})
	out, err := f.runner.Run(context.Background(), cfg, RunOptions{Duration: 1})
	require.NoError(t, err)

	require.Equal(t, []string{"chassis"}, out.Result.Names())
	assert.Equal(t, []string{"p.e"}, out.Result["chassis"].Columns)
	assert.FileExists(t, filepath.Join(f.workDir("run-1"), "LogConfig.xml"))
}

func TestRun_RelPath(t *testing.T) {
	f := newRunnerFixture(t, testutil.FakeCosim{Results: systemResults})

	out, err := f.runner.Run(context.Background(), f.cfg, RunOptions{Duration: 1, RelPath: filepath.Join("sub", "dir")})
	require.NoError(t, err)

	structureDir := filepath.Join(f.workDir("run-1"), "sub", "dir")
	assert.Equal(t, structureDir, out.ResultDir)

	s, err := structure.Load(structureDir)
	require.NoError(t, err)
	chassis, ok := s.Simulator("chassis")
	require.True(t, ok)
	assert.Equal(t, "../../chassis.fmu", chassis.Source)
}

func TestRun_InvalidArguments(t *testing.T) {
	b, err := FromStructure(testutil.WriteSystem(t, t.TempDir()), "")
	require.NoError(t, err)
	b.SetScenario("late", 5, "")
	require.NoError(t, b.AddEvent(scenario.ResetEvent(6, "chassis", "p.f")))
	lateCfg, err := b.Build()
	require.NoError(t, err)

	exec := &fakeExecutor{}
	f := newRunnerFixture(t, testutil.FakeCosim{Results: systemResults}, WithExecutor(exec))

	tests := []struct {
		name string
		cfg  *Configuration
		opts RunOptions
	}{
		{"zero duration", f.cfg, RunOptions{Duration: 0}},
		{"negative duration", f.cfg, RunOptions{Duration: -1}},
		{"NaN duration", f.cfg, RunOptions{Duration: math.NaN()}},
		{"infinite duration", f.cfg, RunOptions{Duration: math.Inf(1)}},
		{"unknown log level", f.cfg, RunOptions{Duration: 1, LogLevel: "verbose"}},
		{"event after end", lateCfg, RunOptions{Duration: 1}},
		{"no configuration", nil, RunOptions{Duration: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.runner.Run(context.Background(), tt.cfg, tt.opts)
			assert.True(t, simerr.IsValidation(err), "got %v", err)
		})
	}

	assert.Empty(t, exec.calls)
	assert.NoDirExists(t, filepath.Join(f.root, deploy.TempDirName))
}

func TestRun_MissingExecutable(t *testing.T) {
	f := newRunnerFixture(t, testutil.FakeCosim{}, WithExecutable(filepath.Join(t.TempDir(), "cosim")))

	_, err := f.runner.Run(context.Background(), f.cfg, RunOptions{Duration: 1})
	assert.True(t, simerr.IsEnvironment(err), "got %v", err)
	assert.NoDirExists(t, filepath.Join(f.root, deploy.TempDirName))
}

func TestRun_NonZeroExit(t *testing.T) {
	f := newRunnerFixture(t, testutil.FakeCosim{Stderr: "error: slave failed to initialize", ExitCode: 3})
	ctx := context.Background()

	_, err := f.runner.Run(ctx, f.cfg, RunOptions{Duration: 1})
	require.True(t, simerr.IsExecution(err), "got %v", err)
	assert.Contains(t, simerr.LogOf(err), "slave failed to initialize")

	var se *simerr.Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 3, se.ExitCode)

	rec, err := f.store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, rec.Status)
	assert.Equal(t, string(simerr.KindExecution), rec.ErrorKind)
	assert.Equal(t, 3, rec.ExitCode)
}

func TestRun_MissingResults(t *testing.T) {
	f := newRunnerFixture(t, testutil.FakeCosim{Results: map[string]string{
		"chassis_20240102_030405_000001.csv": chassisCSV,
	}})

	_, err := f.runner.Run(context.Background(), f.cfg, RunOptions{Duration: 1})
	assert.True(t, simerr.IsResultParsing(err), "got %v", err)

	rec, err := f.store.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, string(simerr.KindResultParsing), rec.ErrorKind)
}

func TestRun_Cleanup(t *testing.T) {
	f := newRunnerFixture(t, testutil.FakeCosim{Results: systemResults})

	out, err := f.runner.Run(context.Background(), f.cfg, RunOptions{Duration: 1, Cleanup: true})
	require.NoError(t, err)
	assert.Len(t, out.Result, 2)
	assert.NoDirExists(t, out.OutputFilePath)
}

func TestRun_KeepsWorkDirByDefault(t *testing.T) {
	f := newRunnerFixture(t, testutil.FakeCosim{Results: systemResults})

	first, err := f.runner.Run(context.Background(), f.cfg, RunOptions{Duration: 1})
	require.NoError(t, err)
	second, err := f.runner.Run(context.Background(), f.cfg, RunOptions{Duration: 1})
	require.NoError(t, err)

	assert.Equal(t, "run-2", second.RunID)
	assert.DirExists(t, first.OutputFilePath)
	assert.DirExists(t, second.OutputFilePath)

	runs, err := f.store.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestRun_ExecutorError(t *testing.T) {
	exec := &fakeExecutor{err: simerr.Environment("/usr/bin/cosim", "cannot start cosim", os.ErrPermission)}
	f := newRunnerFixture(t, testutil.FakeCosim{}, WithExecutor(exec))

	_, err := f.runner.Run(context.Background(), f.cfg, RunOptions{Duration: 1})
	assert.True(t, simerr.IsEnvironment(err))
	require.Len(t, exec.calls, 1)
	assert.Equal(t, f.workDir("run-1"), exec.calls[0].Dir)

	rec, err := f.store.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, rec.Status)
}

func TestRun_WithoutRecorder(t *testing.T) {
	exec := &fakeExecutor{result: cosim.Result{Output: []byte("ok")}}
	f := newRunnerFixture(t, testutil.FakeCosim{}, WithExecutor(exec), WithRecorder(nil))

	// the fake executor writes no CSV files
	_, err := f.runner.Run(context.Background(), f.cfg, RunOptions{Duration: 1})
	assert.True(t, simerr.IsResultParsing(err))

	runs, err := f.store.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestRunSingle(t *testing.T) {
	dir := testutil.WriteSystem(t, t.TempDir())
	f := newRunnerFixture(t, testutil.FakeCosim{
		SingleResult: "Time, StepCount, p.e [2 output real]\n0, 0, 0.5\n0.1, 1, 0.6\n",
	})
	ctx := context.Background()

	out, err := f.runner.RunSingle(ctx, filepath.Join(dir, "chassis.fmu"), SingleOptions{
		Duration:      1,
		StepSize:      0.1,
		InitialValues: map[string]string{"C.mChassis": "450"},
	})
	require.NoError(t, err)

	outFile := filepath.Join(f.workDir("run-1"), "chassis_results.csv")
	assert.Equal(t, outFile, out.OutputFilePath)
	assert.Equal(t, "chassis", out.Result.Component)
	assert.Equal(t, 2, out.Result.Rows())

	assert.Equal(t, []string{
		"run-single",
		filepath.Join(dir, "chassis.fmu"),
		"C.mChassis=450",
		"--output-file=" + outFile,
		"-d1",
		"-s0.1",
	}, testutil.ReadArgs(t, f.binDir))

	rec, err := f.store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, store.KindRunSingle, rec.Kind)
	assert.Equal(t, store.StatusSucceeded, rec.Status)
}

func TestRunSingle_Errors(t *testing.T) {
	dir := testutil.WriteSystem(t, t.TempDir())
	f := newRunnerFixture(t, testutil.FakeCosim{})
	fmu := filepath.Join(dir, "chassis.fmu")

	_, err := f.runner.RunSingle(context.Background(), fmu, SingleOptions{Duration: 0})
	assert.True(t, simerr.IsValidation(err))

	_, err = f.runner.RunSingle(context.Background(), fmu, SingleOptions{Duration: 1, StepSize: -1})
	assert.True(t, simerr.IsValidation(err))

	_, err = f.runner.RunSingle(context.Background(), fmu, SingleOptions{
		Duration:      1,
		InitialValues: map[string]string{"nope": "1"},
	})
	assert.True(t, simerr.IsValidation(err))

	_, err = f.runner.RunSingle(context.Background(), filepath.Join(dir, "tire.fmu"), SingleOptions{Duration: 1})
	assert.True(t, simerr.IsDeployment(err))

	// exits 0 but writes no output file
	_, err = f.runner.RunSingle(context.Background(), fmu, SingleOptions{Duration: 1})
	assert.True(t, simerr.IsResultParsing(err))
}

const inspectYAML = `name: chassis
uuid: '{chassis-guid}'
description: chassis test model
author: test
version: '1.0'
variables:
  - name: C.mChassis
    reference: 0
    type: real
    causality: parameter
    variability: fixed
  - name: p.f
    reference: 1
    type: real
    causality: input
    variability: continuous
`

func TestInspect(t *testing.T) {
	dir := testutil.WriteSystem(t, t.TempDir())
	f := newRunnerFixture(t, testutil.FakeCosim{Inspect: inspectYAML})
	fmu := filepath.Join(dir, "chassis.fmu")

	desc, err := f.runner.Inspect(context.Background(), fmu)
	require.NoError(t, err)

	assert.Equal(t, "chassis", desc.Name)
	assert.Equal(t, []string{"C.mChassis"}, desc.ParameterNames())
	assert.Equal(t, []string{"p.f"}, desc.InputNames())
	v, ok := desc.Lookup("p.f")
	require.True(t, ok)
	assert.Equal(t, model.TypeReal, v.Type)

	assert.Equal(t, []string{"inspect", fmu}, testutil.ReadArgs(t, f.binDir))
}

func TestInspect_Failure(t *testing.T) {
	f := newRunnerFixture(t, testutil.FakeCosim{Stderr: "cannot open FMU", ExitCode: 1})

	_, err := f.runner.Inspect(context.Background(), filepath.Join(t.TempDir(), "x.fmu"))
	assert.True(t, simerr.IsExecution(err))
	assert.Contains(t, simerr.LogOf(err), "cannot open FMU")
}
