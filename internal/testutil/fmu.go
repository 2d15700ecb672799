package testutil

import (
	"archive/zip"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// Var describes one scalar variable of a fake FMU.
type Var struct {
	Name        string
	Causality   string
	Variability string
	// Type is the FMI type element: Real (default), Integer, Boolean, String.
	Type  string
	Start string
}

var (
	// ChassisVars is the interface of the chassis test model.
	ChassisVars = []Var{
		{Name: "C.mChassis", Causality: "parameter", Variability: "fixed", Start: "400"},
		{Name: "p.f", Causality: "input"},
		{Name: "p.e", Causality: "output"},
		{Name: "zChassis", Causality: "local"},
	}

	// WheelVars is the interface of the wheel test model.
	WheelVars = []Var{
		{Name: "C.mWheel", Causality: "parameter", Variability: "fixed", Start: "40"},
		{Name: "p1.e", Causality: "input"},
		{Name: "p1.f", Causality: "output"},
		{Name: "zWheel", Causality: "output"},
		{Name: "isContact", Causality: "output", Type: "Boolean"},
	}
)

// StructureXML wires the chassis and wheel models into a two-simulator system.
const StructureXML = `<?xml version="1.0" encoding="UTF-8"?>
<OspSystemStructure xmlns="http://opensimulationplatform.com/MSMI/OSPSystemStructure" version="0.1">
    <BaseStepSize>0.01</BaseStepSize>
    <Simulators>
        <Simulator name="chassis" source="chassis.fmu">
            <InitialValues>
                <InitialValue variable="C.mChassis">
                    <Real value="450"/>
                </InitialValue>
            </InitialValues>
        </Simulator>
        <Simulator name="wheel" source="wheel.fmu" stepSize="0.005"/>
    </Simulators>
    <Connections>
        <VariableConnection>
            <Variable simulator="wheel" name="p1.f"/>
            <Variable simulator="chassis" name="p.f"/>
        </VariableConnection>
        <VariableConnection>
            <Variable simulator="chassis" name="p.e"/>
            <Variable simulator="wheel" name="p1.e"/>
        </VariableConnection>
    </Connections>
</OspSystemStructure>
`

// PortDescriptionXML is an OSP model description declaring one linear
// mechanical port, "hub", built from a force group and a velocity group.
const PortDescriptionXML = `<?xml version="1.0" encoding="UTF-8"?>
<OspModelDescription xmlns="https://open-simulation-platform.com/OspModelDescription/1.0.0" version="1.0">
    <UnitDefinitions>
        <Unit name="N">
            <BaseUnit kg="1" m="1" s="-2"/>
        </Unit>
    </UnitDefinitions>
    <VariableGroups>
        <LinearMechanicalPort name="hub">
            <Force name="hub.force">
                <Variable ref="p.f" unit="N"/>
            </Force>
            <LinearVelocity name="hub.velocity">
                <Variable ref="p.e"/>
            </LinearVelocity>
        </LinearMechanicalPort>
    </VariableGroups>
</OspModelDescription>
`

// ModelDescriptionXML renders an FMI 2.0 modelDescription.xml.
func ModelDescriptionXML(modelName string, vars []Var) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<?xml version="1.0" encoding="UTF-8"?>
<fmiModelDescription fmiVersion="2.0" modelName=%q guid="{%s-guid}" author="test" version="1.0" description="%s test model">
  <CoSimulation modelIdentifier=%q/>
  <ModelVariables>
`, modelName, modelName, modelName, modelName)
	for i, v := range vars {
		typ := v.Type
		if typ == "" {
			typ = "Real"
		}
		fmt.Fprintf(&b, `    <ScalarVariable name=%q valueReference="%d"`, v.Name, i)
		if v.Causality != "" {
			fmt.Fprintf(&b, ` causality=%q`, v.Causality)
		}
		if v.Variability != "" {
			fmt.Fprintf(&b, ` variability=%q`, v.Variability)
		}
		b.WriteString(">\n")
		if v.Start != "" {
			fmt.Fprintf(&b, "      <%s start=%q/>\n", typ, v.Start)
		} else {
			fmt.Fprintf(&b, "      <%s/>\n", typ)
		}
		b.WriteString("    </ScalarVariable>\n")
	}
	b.WriteString("  </ModelVariables>\n</fmiModelDescription>\n")
	return b.String()
}

// WriteFMU writes <dir>/<fileName> as a zip archive holding a model
// description for modelName. Returns the archive path.
func WriteFMU(t testing.TB, dir, fileName, modelName string, vars []Var) string {
	t.Helper()

	p := filepath.Join(dir, fileName)
	f, err := os.Create(p)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	w, err := zw.Create("modelDescription.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(ModelDescriptionXML(modelName, vars)))
	require.NoError(t, err)

	w, err = zw.Create("binaries/linux64/" + modelName + ".so")
	require.NoError(t, err)
	_, err = w.Write([]byte("not a real binary"))
	require.NoError(t, err)

	require.NoError(t, zw.Close())
	return p
}

// WriteSystem writes chassis.fmu, wheel.fmu and OspSystemStructure.xml into
// dir and returns dir.
func WriteSystem(t testing.TB, dir string) string {
	t.Helper()

	WriteFMU(t, dir, "chassis.fmu", "chassis", ChassisVars)
	WriteFMU(t, dir, "wheel.fmu", "wheel", WheelVars)
	WriteFile(t, filepath.Join(dir, "OspSystemStructure.xml"), StructureXML)
	return dir
}

// WriteFile writes content to path, creating parent directories.
func WriteFile(t testing.TB, path, content string) string {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
