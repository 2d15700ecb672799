// Package deploy stages a simulation into a working directory.
//
// A staged directory looks like:
//
//	<root>/cosimkit_tmp/sim_<id>/
//	    chassis.fmu
//	    chassis_OspModelDescription.xml   (when the FMU has one)
//	    wheel.fmu
//	    <rel>/OspSystemStructure.xml       (sources rewritten relative to <rel>)
//	    <rel>/LogConfig.xml                (when logging is configured)
//	    <rel>/<scenario>.json              (when a scenario is set)
//
// cosim writes its CSV results next to the system structure file.
package deploy

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/cosimkit/internal/logconfig"
	"github.com/roach88/cosimkit/internal/model"
	"github.com/roach88/cosimkit/internal/scenario"
	"github.com/roach88/cosimkit/internal/simerr"
	"github.com/roach88/cosimkit/internal/structure"
)

// TempDirName is the directory under the work root holding all runs.
const TempDirName = "cosimkit_tmp"

// Plan lists everything that goes into a working directory.
type Plan struct {
	Structure *structure.Structure

	// FMUs are the model artifacts. Every simulator source must match the
	// file name of one of them.
	FMUs []*model.FMU

	Scenario  *scenario.Scenario
	LogConfig *logconfig.Config

	// RelPath places the system structure in a sub-directory.
	RelPath string
}

// Staged describes a prepared working directory.
type Staged struct {
	Dir           string
	StructureDir  string
	StructurePath string
	LogConfigPath string
	ScenarioPath  string
	FMUPaths      []string
}

// PrepareDir creates <root>/cosimkit_tmp/sim_<id> and returns its path.
// An empty root uses the OS temp directory ($TMPDIR on Unix).
func PrepareDir(root, id string) (string, error) {
	if root == "" {
		root = os.TempDir()
	}
	if id == "" {
		return "", simerr.Validation("run id is required")
	}
	dir := filepath.Join(root, TempDirName, "sim_"+id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", simerr.Deployment(dir, "cannot create working directory", err)
	}
	return dir, nil
}

// Stage writes plan into dir, which must exist.
func Stage(dir string, plan Plan) (*Staged, error) {
	if plan.Structure == nil {
		return nil, simerr.Validation("no system structure to stage")
	}
	if plan.RelPath != "" && !filepath.IsLocal(plan.RelPath) {
		return nil, simerr.Deployment(plan.RelPath, "system structure path must stay inside the working directory", nil)
	}

	byName := make(map[string]*model.FMU, len(plan.FMUs))
	for _, f := range plan.FMUs {
		byName[f.FileName()] = f
	}
	for _, sim := range plan.Structure.Simulators {
		base := filepath.Base(filepath.FromSlash(sim.Source))
		if _, ok := byName[base]; !ok {
			return nil, simerr.Deployment(sim.Source, fmt.Sprintf("no model artifact for simulator %q", sim.Name), nil)
		}
	}

	staged := &Staged{Dir: dir}
	for _, base := range plan.Structure.Sources() {
		f := byName[base]
		dst := filepath.Join(dir, base)
		if err := copyFile(f.Path, dst); err != nil {
			return nil, err
		}
		staged.FMUPaths = append(staged.FMUPaths, dst)

		if f.OSPDescriptionPath != "" {
			side := filepath.Join(dir, f.Name()+model.OSPDescriptionSuffix)
			if err := copyFile(f.OSPDescriptionPath, side); err != nil {
				return nil, err
			}
		}
	}

	staged.StructureDir = filepath.Join(dir, plan.RelPath)
	if err := os.MkdirAll(staged.StructureDir, 0o755); err != nil {
		return nil, simerr.Deployment(staged.StructureDir, "cannot create system structure directory", err)
	}

	prefix, err := FMURelPath(dir, staged.StructureDir)
	if err != nil {
		return nil, err
	}
	staged.StructurePath = filepath.Join(staged.StructureDir, structure.FileName)
	if err := plan.Structure.WithSourcePrefix(prefix).WriteFile(staged.StructurePath); err != nil {
		return nil, err
	}

	if plan.LogConfig != nil {
		staged.LogConfigPath, err = plan.LogConfig.WriteFile(staged.StructureDir)
		if err != nil {
			return nil, err
		}
	}

	if plan.Scenario != nil {
		data, err := plan.Scenario.Marshal()
		if err != nil {
			return nil, err
		}
		p := filepath.Join(staged.StructureDir, plan.Scenario.FileName())
		if err := os.WriteFile(p, data, 0o644); err != nil {
			return nil, simerr.Deployment(p, "cannot write scenario", err)
		}
		staged.ScenarioPath = p
	}

	return staged, nil
}

// FMURelPath returns the prefix that turns an FMU file name in deployDir into
// a path relative to structureDir: "" when they are the same directory,
// "../" per level otherwise. Always uses forward slashes.
func FMURelPath(deployDir, structureDir string) (string, error) {
	rel, err := filepath.Rel(structureDir, deployDir)
	if err != nil {
		return "", simerr.Deployment(structureDir, "cannot relate system structure to working directory", err)
	}
	if rel == "." {
		return "", nil
	}
	return strings.TrimSuffix(filepath.ToSlash(rel), "/") + "/", nil
}

// Remove deletes a working directory created by PrepareDir.
func Remove(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return simerr.Deployment(dir, "cannot remove working directory", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return simerr.Deployment(src, "model artifact not found", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return simerr.Deployment(dst, "cannot write to working directory", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return simerr.Deployment(dst, "cannot copy model artifact", err)
	}
	if err := out.Close(); err != nil {
		return simerr.Deployment(dst, "cannot copy model artifact", err)
	}
	return nil
}
