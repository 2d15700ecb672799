// Package logconfig builds the cosim logging configuration (LogConfig.xml).
//
// A configuration lists, per simulator, which variables are written to the
// result CSV and how often (every DecimationFactor-th step). Without a
// configuration cosim logs every variable of every simulator at every step.
package logconfig

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/cosimkit/internal/ident"
	"github.com/roach88/cosimkit/internal/simerr"
)

// FileName is the name cosim looks for next to the system structure.
const FileName = "LogConfig.xml"

// Config is a logging configuration.
type Config struct {
	XMLName    xml.Name    `xml:"simulators"`
	Simulators []Simulator `xml:"simulator"`
}

// Simulator is the logging entry of one component.
type Simulator struct {
	Name             string     `xml:"name,attr"`
	DecimationFactor int        `xml:"decimationFactor,attr"`
	Variables        []Variable `xml:"variable"`
}

type Variable struct {
	Name string `xml:"name,attr"`
}

// New returns an empty configuration.
func New() *Config {
	return &Config{}
}

// Simulator returns the entry for component.
func (c *Config) Simulator(component string) (*Simulator, bool) {
	for i := range c.Simulators {
		if ident.Equal(c.Simulators[i].Name, component) {
			return &c.Simulators[i], true
		}
	}
	return nil, false
}

// Components returns the names of all logged components in order.
func (c *Config) Components() []string {
	out := make([]string, len(c.Simulators))
	for i, s := range c.Simulators {
		out[i] = s.Name
	}
	return out
}

// AddVariable adds variable to the entry for component. The entry is created
// with the given decimation factor (0 means 1) on first use; for an existing
// entry the factor is left unchanged. Duplicate variables are ignored.
func (c *Config) AddVariable(component, variable string, decimation int) error {
	if component == "" || variable == "" {
		return simerr.Validation("logging: component and variable are required")
	}
	if decimation == 0 {
		decimation = 1
	}
	if decimation < 1 {
		return simerr.Validation("logging %s: decimation factor must be at least 1, got %d", component, decimation)
	}

	sim, ok := c.Simulator(component)
	if !ok {
		c.Simulators = append(c.Simulators, Simulator{Name: component, DecimationFactor: decimation})
		sim = &c.Simulators[len(c.Simulators)-1]
	}
	for _, v := range sim.Variables {
		if ident.Equal(v.Name, variable) {
			return nil
		}
	}
	sim.Variables = append(sim.Variables, Variable{Name: variable})
	return nil
}

// SetDecimationFactor changes the decimation factor of an existing entry.
func (c *Config) SetDecimationFactor(component string, n int) error {
	if n < 1 {
		return simerr.Validation("logging %s: decimation factor must be at least 1, got %d", component, n)
	}
	sim, ok := c.Simulator(component)
	if !ok {
		return simerr.Validation("logging: no entry for component %q", component)
	}
	sim.DecimationFactor = n
	return nil
}

// Remove drops the entry for component. Reports whether it existed.
func (c *Config) Remove(component string) bool {
	for i := range c.Simulators {
		if ident.Equal(c.Simulators[i].Name, component) {
			c.Simulators = append(c.Simulators[:i], c.Simulators[i+1:]...)
			return true
		}
	}
	return false
}

// Validate checks names and decimation factors.
func (c *Config) Validate() error {
	seen := map[string]bool{}
	for _, s := range c.Simulators {
		if s.Name == "" {
			return simerr.Validation("logging: simulator entry without a name")
		}
		key := ident.Normalize(s.Name)
		if seen[key] {
			return simerr.Validation("logging: duplicate entry for %q", s.Name)
		}
		seen[key] = true
		if s.DecimationFactor < 1 {
			return simerr.Validation("logging %s: decimation factor must be at least 1, got %d", s.Name, s.DecimationFactor)
		}
		for _, v := range s.Variables {
			if v.Name == "" {
				return simerr.Validation("logging %s: variable without a name", s.Name)
			}
		}
	}
	return nil
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	out := &Config{Simulators: make([]Simulator, len(c.Simulators))}
	for i, s := range c.Simulators {
		out.Simulators[i] = Simulator{
			Name:             s.Name,
			DecimationFactor: s.DecimationFactor,
			Variables:        append([]Variable(nil), s.Variables...),
		}
	}
	return out
}

// Load reads a configuration from a path or inline XML. A directory path
// resolves to <dir>/LogConfig.xml. A missing decimationFactor means 1.
func Load(source string) (*Config, error) {
	var data []byte
	if strings.HasPrefix(strings.TrimSpace(source), "<") {
		data = []byte(source)
	} else {
		p := source
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			p = filepath.Join(p, FileName)
		}
		var err error
		data, err = os.ReadFile(p)
		if err != nil {
			return nil, simerr.Deployment(p, "cannot read logging configuration", err)
		}
	}

	var c Config
	if err := xml.Unmarshal(data, &c); err != nil {
		return nil, simerr.Validation("malformed logging configuration: %v", err)
	}
	c.XMLName = xml.Name{}
	for i := range c.Simulators {
		if c.Simulators[i].DecimationFactor == 0 {
			c.Simulators[i].DecimationFactor = 1
		}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Marshal renders c as LogConfig.xml content.
func (c *Config) Marshal() ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	out := c.Clone()
	body, err := xml.MarshalIndent(out, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("marshal logging configuration: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	buf.Write(body)
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// WriteFile writes c to <dir>/LogConfig.xml and returns the path.
func (c *Config) WriteFile(dir string) (string, error) {
	data, err := c.Marshal()
	if err != nil {
		return "", err
	}
	p := filepath.Join(dir, FileName)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", simerr.Deployment(p, "cannot write logging configuration", err)
	}
	return p, nil
}
