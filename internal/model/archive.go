package model

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/roach88/cosimkit/internal/simerr"
)

const (
	// Extension is the file extension of FMU archives.
	Extension = ".fmu"

	descriptionEntry = "modelDescription.xml"

	// OSPDescriptionSuffix names the optional OSP interface file that sits
	// next to an FMU: <modelName>_OspModelDescription.xml.
	OSPDescriptionSuffix = "_OspModelDescription.xml"
)

// FMU is an imported model artifact.
type FMU struct {
	// Path is the absolute path to the .fmu archive.
	Path string `json:"path"`

	// OSPDescriptionPath is the OSP model description side file, or "".
	OSPDescriptionPath string `json:"osp_description_path,omitempty"`

	Description Description `json:"description"`
}

// FileName returns the archive's base name.
func (f *FMU) FileName() string {
	return filepath.Base(f.Path)
}

// Name returns the model name from the description.
func (f *FMU) Name() string {
	return f.Description.Name
}

// Open reads the FMU archive at path.
// Returns a DEPLOYMENT error when the artifact cannot be located or read.
func Open(path string) (*FMU, error) {
	if !strings.EqualFold(filepath.Ext(path), Extension) {
		return nil, simerr.Deployment(path, "model artifact must have the .fmu extension", nil)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, simerr.Deployment(path, "cannot resolve model artifact path", err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, simerr.Deployment(abs, "model artifact not found", err)
	}
	if info.IsDir() {
		return nil, simerr.Deployment(abs, "model artifact is a directory", nil)
	}

	desc, err := readArchiveDescription(abs)
	if err != nil {
		return nil, err
	}

	fmu := &FMU{Path: abs, Description: *desc}

	side := filepath.Join(filepath.Dir(abs), desc.Name+OSPDescriptionSuffix)
	if _, err := os.Stat(side); err == nil {
		fmu.OSPDescriptionPath = side
	}

	return fmu, nil
}

// ImportDir opens every FMU in dir, keyed by file base name.
func ImportDir(dir string) (map[string]*FMU, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, simerr.Deployment(dir, "cannot read model directory", err)
	}

	fmus := make(map[string]*FMU)
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), Extension) {
			continue
		}
		fmu, err := Open(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		fmus[e.Name()] = fmu
	}

	if len(fmus) == 0 {
		return nil, simerr.Deployment(dir, "no model artifacts found", nil)
	}
	return fmus, nil
}

// SortedNames returns the keys of an ImportDir result in order.
func SortedNames(fmus map[string]*FMU) []string {
	out := make([]string, 0, len(fmus))
	for k := range fmus {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func readArchiveDescription(path string) (*Description, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, simerr.Deployment(path, "model artifact is not a valid FMU archive", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name != descriptionEntry {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, simerr.Deployment(path, "cannot open model description", err)
		}
		defer rc.Close()

		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, simerr.Deployment(path, "cannot read model description", err)
		}
		desc, err := ParseDescription(data)
		if err != nil {
			return nil, simerr.Deployment(path, "malformed model description", err)
		}
		return desc, nil
	}

	return nil, simerr.Deployment(path, "FMU archive has no "+descriptionEntry, nil)
}

type fmiModelDescription struct {
	XMLName     xml.Name         `xml:"fmiModelDescription"`
	FMIVersion  string           `xml:"fmiVersion,attr"`
	ModelName   string           `xml:"modelName,attr"`
	GUID        string           `xml:"guid,attr"`
	Description string           `xml:"description,attr"`
	Author      string           `xml:"author,attr"`
	Version     string           `xml:"version,attr"`
	Variables   []scalarVariable `xml:"ModelVariables>ScalarVariable"`
}

type scalarVariable struct {
	Name           string     `xml:"name,attr"`
	ValueReference uint32     `xml:"valueReference,attr"`
	Causality      string     `xml:"causality,attr"`
	Variability    string     `xml:"variability,attr"`
	Real           *typeStart `xml:"Real"`
	Integer        *typeStart `xml:"Integer"`
	Boolean        *typeStart `xml:"Boolean"`
	String         *typeStart `xml:"String"`
	Enumeration    *typeStart `xml:"Enumeration"`
}

type typeStart struct {
	Start string `xml:"start,attr"`
}

// ParseDescription parses FMI 2.0 modelDescription.xml content.
func ParseDescription(data []byte) (*Description, error) {
	var raw fmiModelDescription
	if err := xml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse model description: %w", err)
	}
	if raw.ModelName == "" {
		return nil, fmt.Errorf("parse model description: modelName is required")
	}

	desc := &Description{
		Name:        raw.ModelName,
		GUID:        raw.GUID,
		Description: raw.Description,
		Author:      raw.Author,
		Version:     raw.Version,
		FMIVersion:  raw.FMIVersion,
		Variables:   make([]Variable, 0, len(raw.Variables)),
	}

	for _, sv := range raw.Variables {
		v := Variable{
			Name:           sv.Name,
			ValueReference: sv.ValueReference,
			Causality:      Causality(sv.Causality),
			Variability:    sv.Variability,
		}
		// FMI 2.0 defaults
		if v.Causality == "" {
			v.Causality = CausalityLocal
		}
		if v.Variability == "" {
			v.Variability = "continuous"
		}
		switch {
		case sv.Real != nil:
			v.Type, v.Start = TypeReal, sv.Real.Start
		case sv.Integer != nil:
			v.Type, v.Start = TypeInteger, sv.Integer.Start
		case sv.Boolean != nil:
			v.Type, v.Start = TypeBoolean, sv.Boolean.Start
		case sv.String != nil:
			v.Type, v.Start = TypeString, sv.String.Start
		case sv.Enumeration != nil:
			v.Type, v.Start = TypeEnumeration, sv.Enumeration.Start
		}
		desc.Variables = append(desc.Variables, v)
	}

	return desc, nil
}
