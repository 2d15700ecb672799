package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cosimkit/internal/simerr"
	"github.com/roach88/cosimkit/internal/testutil"
)

func TestOpen_ReadsDescription(t *testing.T) {
	dir := t.TempDir()
	p := testutil.WriteFMU(t, dir, "chassis.fmu", "chassis", testutil.ChassisVars)

	fmu, err := Open(p)
	require.NoError(t, err)

	assert.Equal(t, "chassis", fmu.Name())
	assert.Equal(t, "chassis.fmu", fmu.FileName())
	assert.True(t, filepath.IsAbs(fmu.Path))
	assert.Equal(t, "{chassis-guid}", fmu.Description.GUID)
	assert.Equal(t, "2.0", fmu.Description.FMIVersion)
	assert.Empty(t, fmu.OSPDescriptionPath)

	require.Len(t, fmu.Description.Variables, 4)
	mass := fmu.Description.Variables[0]
	assert.Equal(t, "C.mChassis", mass.Name)
	assert.Equal(t, TypeReal, mass.Type)
	assert.Equal(t, "400", mass.Start)
	assert.Equal(t, uint32(0), mass.ValueReference)
}

func TestOpen_DetectsOSPDescription(t *testing.T) {
	dir := t.TempDir()
	p := testutil.WriteFMU(t, dir, "wheel.fmu", "wheel", testutil.WheelVars)
	side := testutil.WriteFile(t, filepath.Join(dir, "wheel"+OSPDescriptionSuffix), "<OspModelDescription/>")

	fmu, err := Open(p)
	require.NoError(t, err)
	assert.Equal(t, side, fmu.OSPDescriptionPath)
}

func TestOpen_Errors(t *testing.T) {
	dir := t.TempDir()

	notZip := testutil.WriteFile(t, filepath.Join(dir, "broken.fmu"), "plain text")
	noDesc := filepath.Join(dir, "empty.fmu")
	require.NoError(t, os.WriteFile(noDesc, emptyZip(), 0o644))

	tests := []struct {
		name string
		path string
	}{
		{"missing file", filepath.Join(dir, "missing.fmu")},
		{"wrong extension", filepath.Join(dir, "chassis.zip")},
		{"not a zip", notZip},
		{"no model description", noDesc},
		{"directory", mkdir(t, filepath.Join(dir, "dir.fmu"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(tt.path)
			require.Error(t, err)
			assert.True(t, simerr.IsDeployment(err), "got %v", err)
		})
	}
}

func TestImportDir(t *testing.T) {
	dir := testutil.WriteSystem(t, t.TempDir())

	fmus, err := ImportDir(dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"chassis.fmu", "wheel.fmu"}, SortedNames(fmus))
	assert.Equal(t, "wheel", fmus["wheel.fmu"].Name())
}

func TestImportDir_Empty(t *testing.T) {
	_, err := ImportDir(t.TempDir())
	require.Error(t, err)
	assert.True(t, simerr.IsDeployment(err))
}

func TestClassify(t *testing.T) {
	desc, err := ParseDescription([]byte(testutil.ModelDescriptionXML("wheel", append(testutil.WheelVars,
		testutil.Var{Name: "tunable", Causality: "local", Variability: "fixed"},
		testutil.Var{Name: "time", Causality: "independent"},
		testutil.Var{Name: "internal"},
	))))
	require.NoError(t, err)

	vs := desc.Classify()
	assert.Equal(t, []string{"C.mWheel", "tunable"}, names(vs.Parameters))
	assert.Equal(t, []string{"p1.e"}, names(vs.Inputs))
	assert.Equal(t, []string{"p1.f", "zWheel", "isContact"}, names(vs.Outputs))
	assert.Equal(t, []string{"time", "internal"}, names(vs.Others))

	assert.Equal(t, names(vs.Outputs), desc.OutputNames())
	assert.Equal(t, []string{"C.mWheel", "internal", "isContact", "p1.e", "p1.f", "time", "tunable", "zWheel"}, desc.AllNames())

	internal, ok := desc.Lookup("internal")
	require.True(t, ok)
	assert.Equal(t, CausalityLocal, internal.Causality)
	assert.Equal(t, "continuous", internal.Variability)

	contact, ok := desc.Lookup("isContact")
	require.True(t, ok)
	assert.Equal(t, TypeBoolean, contact.Type)
}

func TestParseDescription_RequiresModelName(t *testing.T) {
	_, err := ParseDescription([]byte(`<fmiModelDescription fmiVersion="2.0"/>`))
	assert.Error(t, err)

	_, err = ParseDescription([]byte(`not xml`))
	assert.Error(t, err)
}

func TestParseInspect(t *testing.T) {
	out := []byte(`[warning] loading library
name: chassis
uuid: '{chassis-guid}'
description: chassis test model
author: test
version: '1.0'
variables:
  - name: C.mChassis
    reference: 0
    type: Real
    causality: parameter
    variability: fixed
  - name: p.e
    reference: 2
    type: Real
    causality: output
    variability: continuous
`)

	desc, err := ParseInspect(out)
	require.NoError(t, err)

	assert.Equal(t, "chassis", desc.Name)
	assert.Equal(t, "{chassis-guid}", desc.GUID)
	assert.Equal(t, "1.0", desc.Version)
	require.Len(t, desc.Variables, 2)
	assert.Equal(t, TypeReal, desc.Variables[1].Type)
	assert.Equal(t, uint32(2), desc.Variables[1].ValueReference)
	assert.Equal(t, []string{"C.mChassis"}, desc.ParameterNames())
}

func TestParseInspect_Invalid(t *testing.T) {
	_, err := ParseInspect([]byte("variables: []\n"))
	assert.Error(t, err)
}

func emptyZip() []byte {
	// End of central directory record for an archive with no entries.
	return []byte{0x50, 0x4b, 0x05, 0x06, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
}

func mkdir(t *testing.T, p string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(p, 0o755))
	return p
}

func TestVariableGroupNames(t *testing.T) {
	dir := t.TempDir()
	p := testutil.WriteFMU(t, dir, "wheel.fmu", "wheel", testutil.WheelVars)

	plain, err := Open(p)
	require.NoError(t, err)
	names, err := plain.VariableGroupNames()
	require.NoError(t, err)
	assert.Empty(t, names)

	testutil.WriteFile(t, filepath.Join(dir, "wheel"+OSPDescriptionSuffix), testutil.PortDescriptionXML)
	withPorts, err := Open(p)
	require.NoError(t, err)
	names, err = withPorts.VariableGroupNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"hub", "hub.force", "hub.velocity"}, names)
}

func TestVariableGroupNames_Malformed(t *testing.T) {
	dir := t.TempDir()
	p := testutil.WriteFMU(t, dir, "wheel.fmu", "wheel", testutil.WheelVars)
	testutil.WriteFile(t, filepath.Join(dir, "wheel"+OSPDescriptionSuffix), "<OspModelDescription><VariableGroups>")

	fmu, err := Open(p)
	require.NoError(t, err)
	_, err = fmu.VariableGroupNames()
	assert.True(t, simerr.IsDeployment(err))
}
