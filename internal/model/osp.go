package model

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/roach88/cosimkit/internal/simerr"
)

// VariableGroupNames returns the names of the variable groups declared in
// the FMU's OSP model description, in document order. Nested groups such as
// the force and velocity halves of a port are listed after their parent.
// An FMU without a side file has no groups.
func (f *FMU) VariableGroupNames() ([]string, error) {
	if f.OSPDescriptionPath == "" {
		return nil, nil
	}
	data, err := os.ReadFile(f.OSPDescriptionPath)
	if err != nil {
		return nil, simerr.Deployment(f.OSPDescriptionPath, "cannot read OSP model description", err)
	}
	names, err := ParseVariableGroupNames(data)
	if err != nil {
		return nil, simerr.Deployment(f.OSPDescriptionPath, "malformed OSP model description", err)
	}
	return names, nil
}

// ParseVariableGroupNames collects the name attribute of every element
// below VariableGroups in OSP model description content.
func ParseVariableGroupNames(data []byte) ([]string, error) {
	d := xml.NewDecoder(bytes.NewReader(data))

	var names []string
	depth := 0 // nesting below VariableGroups, 0 outside it
	for {
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			return names, nil
		}
		if err != nil {
			return nil, fmt.Errorf("parse OSP model description: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if depth == 0 {
				if t.Name.Local == "VariableGroups" {
					depth = 1
				}
				continue
			}
			depth++
			for _, a := range t.Attr {
				if a.Name.Local == "name" {
					names = append(names, a.Value)
				}
			}
		case xml.EndElement:
			if depth > 0 {
				depth--
			}
		}
	}
}
