package deploy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cosimkit/internal/logconfig"
	"github.com/roach88/cosimkit/internal/model"
	"github.com/roach88/cosimkit/internal/scenario"
	"github.com/roach88/cosimkit/internal/simerr"
	"github.com/roach88/cosimkit/internal/structure"
	"github.com/roach88/cosimkit/internal/testutil"
)

func testPlan(t *testing.T) Plan {
	t.Helper()

	src := testutil.WriteSystem(t, t.TempDir())
	testutil.WriteFile(t, filepath.Join(src, "wheel"+model.OSPDescriptionSuffix), "<OspModelDescription/>")

	fmus, err := model.ImportDir(src)
	require.NoError(t, err)
	s, err := structure.Load(src)
	require.NoError(t, err)

	return Plan{
		Structure: s,
		FMUs:      []*model.FMU{fmus["chassis.fmu"], fmus["wheel.fmu"]},
	}
}

func TestPrepareDir(t *testing.T) {
	root := t.TempDir()

	dir, err := PrepareDir(root, "abc")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, TempDirName, "sim_abc"), dir)
	assert.DirExists(t, dir)

	_, err = PrepareDir(root, "")
	assert.True(t, simerr.IsValidation(err))
}

func TestPrepareDir_Unwritable(t *testing.T) {
	root := testutil.WriteFile(t, filepath.Join(t.TempDir(), "file"), "not a dir")

	_, err := PrepareDir(root, "abc")
	assert.True(t, simerr.IsDeployment(err), "got %v", err)
}

func TestStage_Flat(t *testing.T) {
	dir := t.TempDir()

	staged, err := Stage(dir, testPlan(t))
	require.NoError(t, err)

	assert.Equal(t, dir, staged.StructureDir)
	assert.Equal(t, []string{filepath.Join(dir, "chassis.fmu"), filepath.Join(dir, "wheel.fmu")}, staged.FMUPaths)
	assert.FileExists(t, filepath.Join(dir, "wheel"+model.OSPDescriptionSuffix))
	assert.NoFileExists(t, filepath.Join(dir, "chassis"+model.OSPDescriptionSuffix))
	assert.Empty(t, staged.LogConfigPath)
	assert.Empty(t, staged.ScenarioPath)

	s, err := structure.Load(staged.StructurePath)
	require.NoError(t, err)
	assert.Equal(t, "chassis.fmu", s.Simulators[0].Source)

	_, err = model.Open(staged.FMUPaths[0])
	require.NoError(t, err)
}

func TestStage_RelPathWithScenarioAndLogging(t *testing.T) {
	dir := t.TempDir()
	plan := testPlan(t)
	plan.RelPath = filepath.Join("config", "run")
	plan.Scenario = scenario.New("step change", 10)
	require.NoError(t, plan.Scenario.AddEvent(scenario.NewEvent(1, "chassis", "p.f", scenario.Override, 2)))
	plan.LogConfig = logconfig.New()
	require.NoError(t, plan.LogConfig.AddVariable("wheel", "zWheel", 1))

	staged, err := Stage(dir, plan)
	require.NoError(t, err)

	structDir := filepath.Join(dir, "config", "run")
	assert.Equal(t, structDir, staged.StructureDir)
	assert.Equal(t, filepath.Join(structDir, logconfig.FileName), staged.LogConfigPath)
	assert.Equal(t, filepath.Join(structDir, "step_change.json"), staged.ScenarioPath)

	s, err := structure.Load(staged.StructurePath)
	require.NoError(t, err)
	assert.Equal(t, "../../chassis.fmu", s.Simulators[0].Source)
	assert.Equal(t, "../../wheel.fmu", s.Simulators[1].Source)

	sc, err := scenario.Load(staged.ScenarioPath)
	require.NoError(t, err)
	assert.Len(t, sc.Events, 1)

	// the caller's structure is untouched
	assert.Equal(t, "chassis.fmu", plan.Structure.Simulators[0].Source)
}

func TestStage_MissingArtifact(t *testing.T) {
	plan := testPlan(t)
	plan.FMUs = plan.FMUs[:1]

	_, err := Stage(t.TempDir(), plan)
	assert.True(t, simerr.IsDeployment(err), "got %v", err)
}

func TestStage_ArtifactRemovedAfterImport(t *testing.T) {
	plan := testPlan(t)
	require.NoError(t, os.Remove(plan.FMUs[0].Path))

	_, err := Stage(t.TempDir(), plan)
	assert.True(t, simerr.IsDeployment(err), "got %v", err)
}

func TestStage_RelPathEscapes(t *testing.T) {
	plan := testPlan(t)
	plan.RelPath = "../outside"

	_, err := Stage(t.TempDir(), plan)
	assert.True(t, simerr.IsDeployment(err), "got %v", err)
}

func TestFMURelPath(t *testing.T) {
	tests := []struct {
		deploy, structDir, want string
	}{
		{"/tmp/sim", "/tmp/sim", ""},
		{"/tmp/sim/", "/tmp/sim", ""},
		{"/tmp/sim", "/tmp/sim/a", "../"},
		{"/tmp/sim", "/tmp/sim/a/b", "../../"},
	}
	for _, tt := range tests {
		got, err := FMURelPath(filepath.FromSlash(tt.deploy), filepath.FromSlash(tt.structDir))
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s -> %s", tt.structDir, tt.deploy)
	}
}

func TestRemove(t *testing.T) {
	dir, err := PrepareDir(t.TempDir(), "gone")
	require.NoError(t, err)
	testutil.WriteFile(t, filepath.Join(dir, "x.csv"), "Time\n0\n")

	require.NoError(t, Remove(dir))
	assert.NoDirExists(t, dir)
}
