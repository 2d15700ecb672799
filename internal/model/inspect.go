package model

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// inspectOutput mirrors the YAML document printed by `cosim inspect <fmu>`.
type inspectOutput struct {
	Name        string            `yaml:"name"`
	UUID        string            `yaml:"uuid"`
	Description string            `yaml:"description"`
	Author      string            `yaml:"author"`
	Version     string            `yaml:"version"`
	Variables   []inspectVariable `yaml:"variables"`
}

type inspectVariable struct {
	Name        string `yaml:"name"`
	Reference   uint32 `yaml:"reference"`
	Type        string `yaml:"type"`
	Causality   string `yaml:"causality"`
	Variability string `yaml:"variability"`
}

// ParseInspect parses the output of `cosim inspect` into a Description.
// Text before the first "name:" line (banners, warnings) is skipped.
func ParseInspect(out []byte) (*Description, error) {
	if i := bytes.Index(out, []byte("name:")); i > 0 {
		out = out[i:]
	}

	var raw inspectOutput
	if err := yaml.Unmarshal(out, &raw); err != nil {
		return nil, fmt.Errorf("parse inspect output: %w", err)
	}
	if raw.Name == "" {
		return nil, fmt.Errorf("parse inspect output: name is required")
	}

	desc := &Description{
		Name:        raw.Name,
		GUID:        raw.UUID,
		Description: raw.Description,
		Author:      raw.Author,
		Version:     raw.Version,
		Variables:   make([]Variable, 0, len(raw.Variables)),
	}
	for _, v := range raw.Variables {
		desc.Variables = append(desc.Variables, Variable{
			Name:           v.Name,
			ValueReference: v.Reference,
			Type:           VarType(strings.ToLower(v.Type)),
			Causality:      Causality(v.Causality),
			Variability:    v.Variability,
		})
	}
	return desc, nil
}
