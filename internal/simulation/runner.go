package simulation

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"path/filepath"
	"time"

	"github.com/roach88/cosimkit/internal/cosim"
	"github.com/roach88/cosimkit/internal/deploy"
	"github.com/roach88/cosimkit/internal/ident"
	"github.com/roach88/cosimkit/internal/model"
	"github.com/roach88/cosimkit/internal/results"
	"github.com/roach88/cosimkit/internal/simerr"
	"github.com/roach88/cosimkit/internal/store"
)

// Recorder keeps a history of runs. *store.Store implements it.
type Recorder interface {
	StartRun(ctx context.Context, r store.Run) error
	FinishRun(ctx context.Context, id string, f store.Finish) error
}

// Runner launches cosim. One call runs one child process and blocks until
// it exits.
type Runner struct {
	executable string
	workRoot   string
	executor   cosim.Executor
	ids        IDGenerator
	now        func() time.Time
	recorder   Recorder
	logger     *slog.Logger
}

// RunnerOption allows configuration of runner parameters.
type RunnerOption func(*Runner)

// WithExecutable sets the cosim executable. Empty means "cosim" on PATH.
func WithExecutable(path string) RunnerOption {
	return func(r *Runner) { r.executable = path }
}

// WithWorkRoot sets the directory holding cosimkit_tmp. Empty means the OS
// temp directory.
func WithWorkRoot(dir string) RunnerOption {
	return func(r *Runner) { r.workRoot = dir }
}

// WithExecutor replaces the process executor.
func WithExecutor(e cosim.Executor) RunnerOption {
	return func(r *Runner) { r.executor = e }
}

// WithIDGenerator replaces the run id generator.
func WithIDGenerator(g IDGenerator) RunnerOption {
	return func(r *Runner) { r.ids = g }
}

// WithClock replaces time.Now for recorded start and finish times.
func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

// WithRecorder records every run. Recording failures are logged, never
// returned.
func WithRecorder(rec Recorder) RunnerOption {
	return func(r *Runner) { r.recorder = rec }
}

// WithLogger sets the logger. nil means slog.Default().
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

// NewRunner creates a runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		ids: UUIDv7Generator{},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.executor == nil {
		r.executor = cosim.NewProcessExecutor(r.logger)
	}
	return r
}

// RunOptions parameterize one system run.
type RunOptions struct {
	// Duration is the simulated time in seconds. Must be positive.
	Duration float64

	// LogLevel is cosim's log verbosity. Empty means warning.
	LogLevel cosim.LogLevel

	// RelPath places the system structure in a sub-directory of the
	// working directory.
	RelPath string

	// Cleanup removes the working directory after the run. Output paths
	// then point at files that no longer exist.
	Cleanup bool
}

// Output is the result of a system run.
type Output struct {
	RunID string `json:"run_id"`

	// Result maps component names, spelled as in the system structure, to
	// their result tables.
	Result results.Set `json:"-"`

	// Log is cosim's combined stdout and stderr.
	Log string `json:"log"`

	// OutputFilePath is the working directory.
	OutputFilePath string `json:"output_file_path"`

	// ResultDir is where cosim wrote the CSV files.
	ResultDir string `json:"result_dir"`
}

// Run stages cfg into a fresh working directory, runs cosim against it and
// loads the results.
//
// Argument problems are reported as VALIDATION errors before anything is
// written, and a missing executable as an ENVIRONMENT error before staging.
// A non-zero exit is an EXECUTION error carrying the log.
func (r *Runner) Run(ctx context.Context, cfg *Configuration, opts RunOptions) (*Output, error) {
	if cfg == nil {
		return nil, simerr.Validation("no simulation configuration")
	}
	if err := checkDuration(opts.Duration); err != nil {
		return nil, err
	}
	level, err := cosim.ParseLogLevel(string(opts.LogLevel))
	if err != nil {
		return nil, err
	}
	sc := cfg.Scenario()
	if sc != nil {
		if err := sc.Validate(); err != nil {
			return nil, err
		}
	}
	lc := cfg.LogConfig()
	if lc != nil {
		if err := lc.Validate(); err != nil {
			return nil, err
		}
	}

	exe, err := cosim.Resolve(r.executable)
	if err != nil {
		return nil, err
	}

	id := r.ids.Generate()
	dir, err := deploy.PrepareDir(r.workRoot, id)
	if err != nil {
		return nil, err
	}
	if opts.Cleanup {
		defer r.cleanup(dir)
	}

	staged, err := deploy.Stage(dir, deploy.Plan{
		Structure: cfg.Structure(),
		FMUs:      cfg.FMUs(),
		Scenario:  sc,
		LogConfig: lc,
		RelPath:   opts.RelPath,
	})
	if err != nil {
		return nil, err
	}
	r.logger.Info("simulation staged", "run_id", id, "dir", dir)

	rec := store.Run{
		ID:            id,
		Kind:          store.KindRun,
		StructurePath: cfg.Source(),
		WorkDir:       dir,
		Duration:      opts.Duration,
		LogLevel:      string(level),
		StartedAt:     r.now(),
	}
	if sc != nil {
		rec.Scenario = sc.FileName()
	}
	r.recordStart(ctx, rec)

	args := cosim.RunArgs{
		StructureDir: staged.StructureDir,
		OutputDir:    staged.StructureDir,
		ScenarioFile: staged.ScenarioPath,
		Duration:     opts.Duration,
		LogLevel:     level,
	}
	log, err := r.execute(ctx, cosim.Command{Path: exe, Args: args.Args(), Dir: dir})
	if err != nil {
		r.recordFinish(ctx, id, err, nil)
		return nil, err
	}

	set, err := results.LoadDir(staged.StructureDir, cfg.ExpectedComponents())
	if err != nil {
		r.recordFinish(ctx, id, err, nil)
		return nil, err
	}
	r.recordFinish(ctx, id, nil, resultFiles(set))
	r.logger.Info("simulation finished", "run_id", id, "components", len(set))

	return &Output{
		RunID:          id,
		Result:         set,
		Log:            log,
		OutputFilePath: dir,
		ResultDir:      staged.StructureDir,
	}, nil
}

// SingleOptions parameterize a single-model run.
type SingleOptions struct {
	Duration float64

	// StepSize is the co-simulation step in seconds. Zero leaves cosim's
	// default.
	StepSize float64

	// InitialValues override start values by variable name.
	InitialValues map[string]string

	Cleanup bool
}

// SingleOutput is the result of a single-model run.
type SingleOutput struct {
	RunID          string         `json:"run_id"`
	Result         *results.Table `json:"-"`
	Log            string         `json:"log"`
	OutputFilePath string         `json:"output_file_path"`
}

// RunSingle runs one FMU on its own with `cosim run-single`.
func (r *Runner) RunSingle(ctx context.Context, fmuPath string, opts SingleOptions) (*SingleOutput, error) {
	if err := checkDuration(opts.Duration); err != nil {
		return nil, err
	}
	if opts.StepSize < 0 || math.IsNaN(opts.StepSize) || math.IsInf(opts.StepSize, 0) {
		return nil, simerr.Validation("step size must be a positive number, got %v", opts.StepSize)
	}

	fmu, err := model.Open(fmuPath)
	if err != nil {
		return nil, err
	}
	values := make(map[string]string, len(opts.InitialValues))
	for name, v := range opts.InitialValues {
		found := false
		for _, mv := range fmu.Description.Variables {
			if ident.Equal(mv.Name, name) {
				values[mv.Name] = v
				found = true
				break
			}
		}
		if !found {
			return nil, simerr.Validation("model %q has no variable %q", fmu.Name(), name)
		}
	}

	exe, err := cosim.Resolve(r.executable)
	if err != nil {
		return nil, err
	}

	id := r.ids.Generate()
	dir, err := deploy.PrepareDir(r.workRoot, id)
	if err != nil {
		return nil, err
	}
	if opts.Cleanup {
		defer r.cleanup(dir)
	}
	outFile := filepath.Join(dir, fmu.Name()+"_results.csv")

	r.recordStart(ctx, store.Run{
		ID:            id,
		Kind:          store.KindRunSingle,
		StructurePath: fmu.Path,
		WorkDir:       dir,
		Duration:      opts.Duration,
		StartedAt:     r.now(),
	})

	args := cosim.RunSingleArgs{
		FMU:           fmu.Path,
		InitialValues: values,
		OutputFile:    outFile,
		Duration:      opts.Duration,
		StepSize:      opts.StepSize,
	}
	log, err := r.execute(ctx, cosim.Command{Path: exe, Args: args.Args(), Dir: dir})
	if err != nil {
		r.recordFinish(ctx, id, err, nil)
		return nil, err
	}

	t, err := results.Load(outFile, fmu.Name())
	if err != nil {
		r.recordFinish(ctx, id, err, nil)
		return nil, err
	}
	r.recordFinish(ctx, id, nil, resultFiles(results.Set{t.Component: t}))

	return &SingleOutput{RunID: id, Result: t, Log: log, OutputFilePath: outFile}, nil
}

// Inspect asks cosim for the model description of an FMU.
func (r *Runner) Inspect(ctx context.Context, fmuPath string) (*model.Description, error) {
	exe, err := cosim.Resolve(r.executable)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(fmuPath)
	if err != nil {
		return nil, simerr.Deployment(fmuPath, "cannot resolve model artifact path", err)
	}

	log, err := r.execute(ctx, cosim.Command{Path: exe, Args: cosim.InspectArgs(abs)})
	if err != nil {
		return nil, err
	}
	desc, err := model.ParseInspect([]byte(log))
	if err != nil {
		return nil, simerr.ResultParsing(abs, "cannot parse inspect output", err)
	}
	return desc, nil
}

// execute runs cmd and turns a non-zero exit into an EXECUTION error.
func (r *Runner) execute(ctx context.Context, cmd cosim.Command) (string, error) {
	r.logger.Debug("running cosim", "cmd", cmd.String())

	res, err := r.executor.Execute(ctx, cmd)
	log := string(res.Output)
	if err != nil {
		return log, err
	}
	if res.ExitCode != 0 {
		r.logger.Warn("cosim failed", "exit_code", res.ExitCode)
		return log, simerr.Execution(res.ExitCode, log, nil)
	}
	return log, nil
}

func (r *Runner) recordStart(ctx context.Context, run store.Run) {
	if r.recorder == nil {
		return
	}
	if err := r.recorder.StartRun(ctx, run); err != nil {
		r.logger.Warn("cannot record run", "run_id", run.ID, "error", err)
	}
}

func (r *Runner) recordFinish(ctx context.Context, id string, runErr error, files []store.ResultFile) {
	if r.recorder == nil {
		return
	}
	f := store.Finish{
		Status:     store.StatusSucceeded,
		FinishedAt: r.now(),
		Results:    files,
	}
	if runErr != nil {
		f.Status = store.StatusFailed
		f.ErrorKind = string(simerr.KindOf(runErr))
		f.ErrorMessage = runErr.Error()
		var se *simerr.Error
		if errors.As(runErr, &se) {
			f.ExitCode = se.ExitCode
		}
	}
	// A cancelled run is still recorded.
	if ctx.Err() != nil {
		ctx = context.WithoutCancel(ctx)
	}
	if err := r.recorder.FinishRun(ctx, id, f); err != nil {
		r.logger.Warn("cannot record run outcome", "run_id", id, "error", err)
	}
}

func (r *Runner) cleanup(dir string) {
	if err := deploy.Remove(dir); err != nil {
		r.logger.Warn("cannot remove working directory", "dir", dir, "error", err)
	}
}

func checkDuration(d float64) error {
	if math.IsNaN(d) || math.IsInf(d, 0) || d <= 0 {
		return simerr.Validation("duration must be a positive number, got %v", d)
	}
	return nil
}

func resultFiles(set results.Set) []store.ResultFile {
	var out []store.ResultFile
	for _, name := range set.Names() {
		t := set[name]
		out = append(out, store.ResultFile{
			Component: name,
			Path:      t.Path,
			Rows:      t.Rows(),
			Columns:   len(t.Columns),
		})
	}
	return out
}
