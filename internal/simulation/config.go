// Package simulation configures and runs co-simulations.
//
// A Configuration is assembled once with a Builder and is immutable
// afterwards: every getter returns a copy. Runner.Run threads it through
// validation, staging, the cosim process and result loading:
//
//	b, err := simulation.FromStructure("models/OspSystemStructure.xml", "models")
//	b.AddLoggingVariable("chassis", "p.e", 1)
//	cfg, err := b.Build()
//	out, err := simulation.NewRunner().Run(ctx, cfg, simulation.RunOptions{Duration: 10})
package simulation

import (
	"sort"

	"github.com/roach88/cosimkit/internal/ident"
	"github.com/roach88/cosimkit/internal/logconfig"
	"github.com/roach88/cosimkit/internal/model"
	"github.com/roach88/cosimkit/internal/scenario"
	"github.com/roach88/cosimkit/internal/structure"
)

// Configuration is an immutable simulation setup.
type Configuration struct {
	structure *structure.Structure
	fmus      map[string]*model.FMU // normalized component name -> FMU
	scenario  *scenario.Scenario
	logConfig *logconfig.Config
	source    string
}

// Structure returns a copy of the system structure.
func (c *Configuration) Structure() *structure.Structure {
	return c.structure.Clone()
}

// Scenario returns a copy of the scenario, or nil.
func (c *Configuration) Scenario() *scenario.Scenario {
	if c.scenario == nil {
		return nil
	}
	return c.scenario.Clone()
}

// LogConfig returns a copy of the logging configuration, or nil.
func (c *Configuration) LogConfig() *logconfig.Config {
	if c.logConfig == nil {
		return nil
	}
	return c.logConfig.Clone()
}

// Source is the system structure path the configuration was loaded from,
// or "" for structures built in memory.
func (c *Configuration) Source() string {
	return c.source
}

// ComponentNames returns simulator names in declaration order.
func (c *Configuration) ComponentNames() []string {
	return c.structure.SimulatorNames()
}

// FMU returns the model artifact bound to component.
func (c *Configuration) FMU(component string) (*model.FMU, bool) {
	f, ok := c.fmus[ident.Normalize(component)]
	if !ok {
		return nil, false
	}
	cp := *f
	return &cp, true
}

// FMUs returns the distinct model artifacts, sorted by file name.
func (c *Configuration) FMUs() []*model.FMU {
	byName := map[string]*model.FMU{}
	for _, f := range c.fmus {
		byName[f.FileName()] = f
	}
	names := make([]string, 0, len(byName))
	for n := range byName {
		names = append(names, n)
	}
	sort.Strings(names)

	out := make([]*model.FMU, len(names))
	for i, n := range names {
		cp := *byName[n]
		out[i] = &cp
	}
	return out
}

// ExpectedComponents lists the components cosim writes results for: the
// logged components when logging is configured, otherwise all of them.
// Names are spelled as in the system structure.
func (c *Configuration) ExpectedComponents() []string {
	if c.logConfig == nil {
		return c.ComponentNames()
	}
	var out []string
	for _, name := range c.ComponentNames() {
		if _, ok := c.logConfig.Simulator(name); ok {
			out = append(out, name)
		}
	}
	return out
}
