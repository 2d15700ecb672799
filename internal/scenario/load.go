package scenario

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/cosimkit/internal/simerr"
)

// Load reads a scenario from a .json, .yaml or .yml file, or from inline
// JSON content. For files, the name defaults to the file base name.
func Load(source string) (*Scenario, error) {
	if strings.HasPrefix(strings.TrimSpace(source), "{") {
		return ParseJSON([]byte(source))
	}

	data, err := os.ReadFile(source)
	if err != nil {
		return nil, simerr.Deployment(source, "cannot read scenario", err)
	}

	var s *Scenario
	switch ext := strings.ToLower(filepath.Ext(source)); ext {
	case ".json":
		s, err = ParseJSON(data)
	case ".yaml", ".yml":
		s, err = ParseYAML(data)
	default:
		return nil, simerr.Validation("scenario %s: unsupported extension %q", source, ext)
	}
	if err != nil {
		return nil, err
	}
	if s.Name == "" {
		s.Name = strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	}
	return s, nil
}

// ParseJSON decodes cosim scenario JSON. Unknown fields are rejected.
func ParseJSON(data []byte) (*Scenario, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var s Scenario
	if err := dec.Decode(&s); err != nil {
		return nil, simerr.Validation("malformed scenario JSON: %v", err)
	}
	return finish(&s)
}

// ParseYAML decodes a YAML scenario with the same fields as the JSON form
// plus name. Unknown fields are rejected.
func ParseYAML(data []byte) (*Scenario, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var s Scenario
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return nil, simerr.Validation("malformed scenario YAML: %v", err)
	}
	return finish(&s)
}

func finish(s *Scenario) (*Scenario, error) {
	if s.Events == nil {
		s.Events = []Event{}
	}
	for _, e := range s.Events {
		if e.Action.NeedsValue() && e.Value == nil {
			return nil, simerr.Validation("event %s: %s requires a value", e, e.Action)
		}
	}
	return s, nil
}
