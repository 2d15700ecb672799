package simulation

import (
	"errors"
	"math"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/roach88/cosimkit/internal/ident"
	"github.com/roach88/cosimkit/internal/logconfig"
	"github.com/roach88/cosimkit/internal/model"
	"github.com/roach88/cosimkit/internal/scenario"
	"github.com/roach88/cosimkit/internal/simerr"
	"github.com/roach88/cosimkit/internal/structure"
)

// FunctionKind selects the OSP function type added by AddFunction.
type FunctionKind string

const (
	FunctionLinearTransformation FunctionKind = "LinearTransformation"
	FunctionSum                  FunctionKind = "Sum"
	FunctionVectorSum            FunctionKind = "VectorSum"
)

// Function describes a system structure function. Factor and Offset apply
// to linear transformations, InputCount to sums, Dimension to vector sums.
type Function struct {
	Kind       FunctionKind
	Name       string
	Factor     float64
	Offset     float64
	InputCount int
	Dimension  int
}

// Builder assembles a Configuration. It is not safe for concurrent use.
type Builder struct {
	structure *structure.Structure
	fmus      map[string]*model.FMU
	scenario  *scenario.Scenario
	logConfig *logconfig.Config
	source    string
}

// NewBuilder returns a builder with an empty system structure.
func NewBuilder() *Builder {
	return &Builder{
		structure: &structure.Structure{},
		fmus:      map[string]*model.FMU{},
	}
}

// FromStructure loads a system structure and opens every FMU it references.
//
// source is inline XML, a structure file or a directory holding
// OspSystemStructure.xml. FMUs are looked up by file name in fmuDir, which
// defaults to the structure file's directory. A LogConfig.xml next to the
// structure file is picked up as the logging configuration.
func FromStructure(source, fmuDir string) (*Builder, error) {
	s, err := structure.Load(source)
	if err != nil {
		return nil, err
	}

	b := NewBuilder()
	b.structure = s

	structureDir := ""
	if !strings.HasPrefix(strings.TrimSpace(source), "<") {
		p := source
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			p = filepath.Join(p, structure.FileName)
		}
		b.source = p
		structureDir = filepath.Dir(p)
	}
	if fmuDir == "" {
		fmuDir = structureDir
	}
	if fmuDir == "" {
		return nil, simerr.Validation("an FMU directory is required for an inline system structure")
	}

	opened := map[string]*model.FMU{}
	for _, sim := range s.Simulators {
		base := path.Base(filepath.ToSlash(sim.Source))
		f, ok := opened[base]
		if !ok {
			f, err = model.Open(filepath.Join(fmuDir, base))
			if err != nil {
				return nil, err
			}
			opened[base] = f
		}
		b.fmus[ident.Normalize(sim.Name)] = f
	}

	if structureDir != "" {
		lc := filepath.Join(structureDir, logconfig.FileName)
		if _, err := os.Stat(lc); err == nil {
			cfg, err := logconfig.Load(lc)
			if err != nil {
				return nil, err
			}
			if err := b.WithLoggingConfig(cfg); err != nil {
				return nil, err
			}
		}
	}
	return b, nil
}

// Components returns component names in declaration order.
func (b *Builder) Components() []string {
	return b.structure.SimulatorNames()
}

// AddComponent adds a simulator instance of fmu called name.
func (b *Builder) AddComponent(name string, fmu *model.FMU) error {
	if fmu == nil {
		return simerr.Validation("component %q: model is required", name)
	}
	if err := b.structure.AddSimulator(structure.Simulator{Name: name, Source: fmu.FileName()}); err != nil {
		return err
	}
	b.fmus[ident.Normalize(name)] = fmu
	return nil
}

// DeleteComponent removes a component together with its connections,
// logging entry and scenario events.
func (b *Builder) DeleteComponent(name string) error {
	if err := b.structure.DeleteSimulator(name); err != nil {
		return err
	}
	delete(b.fmus, ident.Normalize(name))
	if b.logConfig != nil {
		b.logConfig.Remove(name)
	}
	if b.scenario != nil {
		b.scenario.DeleteEvents(scenario.Filter{Model: name})
	}
	return nil
}

// AddConnection connects an output variable to an input variable. Each
// input accepts a single connection.
func (b *Builder) AddConnection(source, target structure.VariableEndpoint) error {
	src, err := b.variable(source.Simulator, source.Name)
	if err != nil {
		return err
	}
	if src.Causality != model.CausalityOutput {
		return simerr.Validation("connection source %s is not an output", source)
	}
	dst, err := b.variable(target.Simulator, target.Name)
	if err != nil {
		return err
	}
	if dst.Causality != model.CausalityInput {
		return simerr.Validation("connection target %s is not an input", target)
	}
	if src.Type != "" && dst.Type != "" && src.Type != dst.Type {
		return simerr.Validation("connection %s -> %s: type %s does not match %s", source, target, src.Type, dst.Type)
	}

	for _, c := range b.structure.VariableConnections() {
		if ident.Equal(c[1].Simulator, target.Simulator) && ident.Equal(c[1].Name, target.Name) {
			return simerr.Validation("input %s is already connected to %s", target, c[0])
		}
	}
	return b.structure.AddVariableConnection(source, target)
}

// AddSignalConnection connects a component variable and a function signal.
// The variable feeds the signal unless c.SignalFirst is set, in which case
// the function drives it and it must be an input.
func (b *Builder) AddSignalConnection(c structure.SignalConnection) error {
	v, err := b.variable(c.Variable.Simulator, c.Variable.Name)
	if err != nil {
		return err
	}
	if c.SignalFirst && v.Causality != model.CausalityInput {
		return simerr.Validation("signal target %s is not an input", c.Variable)
	}
	if !c.SignalFirst && v.Causality != model.CausalityOutput {
		return simerr.Validation("signal source %s is not an output", c.Variable)
	}
	return b.structure.AddSignalConnection(c)
}

// VariableGroups lists the variable groups a component's model declares.
func (b *Builder) VariableGroups(component string) ([]string, error) {
	f, ok := b.fmus[ident.Normalize(component)]
	if !ok {
		return nil, simerr.Validation("component %q not found", component)
	}
	return f.VariableGroupNames()
}

// AddVariableGroupConnection connects two variable groups, such as a pair of
// mechanical ports.
func (b *Builder) AddVariableGroupConnection(source, target structure.VariableEndpoint) error {
	if err := b.variableGroup(source); err != nil {
		return err
	}
	if err := b.variableGroup(target); err != nil {
		return err
	}
	return b.structure.AddVariableGroupConnection(source, target)
}

// AddSignalGroupConnection connects a component variable group and a
// function signal group.
func (b *Builder) AddSignalGroupConnection(c structure.SignalGroupConnection) error {
	if err := b.variableGroup(c.VariableGroup); err != nil {
		return err
	}
	return b.structure.AddSignalGroupConnection(c)
}

// DeleteConnection removes the connection between a and b.
func (b *Builder) DeleteConnection(a, c structure.VariableEndpoint) error {
	return b.structure.DeleteVariableConnection(a, c)
}

// AddUpdateInitialValue sets the initial value of a parameter or input.
// Numeric values are converted to the variable's type where lossless.
func (b *Builder) AddUpdateInitialValue(component, variable string, value any) error {
	v, err := b.variable(component, variable)
	if err != nil {
		return err
	}
	if !v.IsParameter() && v.Causality != model.CausalityInput {
		return simerr.Validation("%s.%s is neither a parameter nor an input", component, variable)
	}
	val, err := structure.ValueOf(value)
	if err != nil {
		return simerr.Validation("%s.%s: %v", component, variable, err)
	}
	val, err = coerce(v, val)
	if err != nil {
		return simerr.Validation("%s.%s: %v", component, variable, err)
	}
	return b.structure.SetInitialValue(component, v.Name, val)
}

// DeleteInitialValue removes an initial value.
func (b *Builder) DeleteInitialValue(component, variable string) error {
	return b.structure.DeleteInitialValue(component, variable)
}

// AddFunction adds a function to the system structure.
func (b *Builder) AddFunction(f Function) error {
	switch f.Kind {
	case FunctionLinearTransformation:
		return b.structure.AddLinearTransformation(f.Name, f.Factor, f.Offset)
	case FunctionSum:
		return b.structure.AddSum(f.Name, f.InputCount)
	case FunctionVectorSum:
		return b.structure.AddVectorSum(f.Name, f.InputCount, f.Dimension)
	default:
		return simerr.Validation("unknown function type %q", f.Kind)
	}
}

// SetBaseStepSize sets the master algorithm step size in seconds.
func (b *Builder) SetBaseStepSize(step float64) error {
	return b.structure.SetBaseStepSize(step)
}

// AddLoggingVariable logs component.variable every decimation-th step.
// Creates the logging configuration on first use.
func (b *Builder) AddLoggingVariable(component, variable string, decimation int) error {
	v, err := b.variable(component, variable)
	if err != nil {
		return err
	}
	if b.logConfig == nil {
		b.logConfig = logconfig.New()
	}
	return b.logConfig.AddVariable(b.componentName(component), v.Name, decimation)
}

// SetDecimationFactor changes the decimation factor of a logged component.
func (b *Builder) SetDecimationFactor(component string, n int) error {
	if b.logConfig == nil {
		return simerr.Validation("no logging configuration")
	}
	return b.logConfig.SetDecimationFactor(component, n)
}

// WithLoggingConfig replaces the logging configuration. nil removes it.
// Every entry must name a component and variables it declares.
func (b *Builder) WithLoggingConfig(c *logconfig.Config) error {
	if c == nil {
		b.logConfig = nil
		return nil
	}
	if err := c.Validate(); err != nil {
		return err
	}
	for _, sim := range c.Simulators {
		if _, ok := b.fmus[ident.Normalize(sim.Name)]; !ok {
			return simerr.Validation("logging: component %q not found", sim.Name)
		}
		for _, v := range sim.Variables {
			if _, err := b.variable(sim.Name, v.Name); err != nil {
				return err
			}
		}
	}
	b.logConfig = c.Clone()
	return nil
}

// SetScenario starts a new empty scenario, replacing any previous one.
func (b *Builder) SetScenario(name string, end float64, description string) {
	b.scenario = scenario.New(name, end)
	b.scenario.Description = description
}

// WithScenario replaces the scenario. nil removes it. Every event must
// target a component of the system.
func (b *Builder) WithScenario(s *scenario.Scenario) error {
	if s == nil {
		b.scenario = nil
		return nil
	}
	for _, e := range s.Events {
		if _, err := b.variable(e.Model, e.Variable); err != nil {
			return err
		}
	}
	b.scenario = s.Clone()
	return nil
}

// AddEvent adds an event to the current scenario. The variable must be an
// input or a parameter.
func (b *Builder) AddEvent(e scenario.Event) error {
	if b.scenario == nil {
		return simerr.Validation("no scenario: call SetScenario first")
	}
	v, err := b.variable(e.Model, e.Variable)
	if err != nil {
		return err
	}
	if !v.IsParameter() && v.Causality != model.CausalityInput {
		return simerr.Validation("event %s: variable is neither an input nor a parameter", e)
	}
	return b.scenario.AddEvent(e)
}

// UpdateEvent changes the action and/or value of matching events.
func (b *Builder) UpdateEvent(t float64, component, variable string, action *scenario.Action, value *float64) error {
	if b.scenario == nil {
		return simerr.Validation("no scenario: call SetScenario first")
	}
	return b.scenario.UpdateEvent(t, component, variable, action, value)
}

// DeleteEvents removes matching events and returns how many were removed.
func (b *Builder) DeleteEvents(f scenario.Filter) (int, error) {
	if b.scenario == nil {
		return 0, simerr.Validation("no scenario: call SetScenario first")
	}
	return b.scenario.DeleteEvents(f), nil
}

// Build checks the assembled setup and returns an immutable Configuration.
func (b *Builder) Build() (*Configuration, error) {
	if len(b.structure.Simulators) == 0 {
		return nil, simerr.Validation("system structure has no components")
	}

	fmus := make(map[string]*model.FMU, len(b.fmus))
	for _, sim := range b.structure.Simulators {
		key := ident.Normalize(sim.Name)
		f, ok := b.fmus[key]
		if !ok {
			return nil, simerr.Deployment(sim.Source, "no model artifact for component "+strconv.Quote(sim.Name), nil)
		}
		cp := *f
		fmus[key] = &cp
	}

	cfg := &Configuration{
		structure: b.structure.Clone(),
		fmus:      fmus,
		source:    b.source,
	}
	if b.scenario != nil {
		cfg.scenario = b.scenario.Clone()
	}
	if b.logConfig != nil {
		if err := b.logConfig.Validate(); err != nil {
			return nil, err
		}
		cfg.logConfig = b.logConfig.Clone()
	}
	return cfg, nil
}

// variable looks up component.name in the component's model description.
func (b *Builder) variable(component, name string) (model.Variable, error) {
	f, ok := b.fmus[ident.Normalize(component)]
	if !ok {
		return model.Variable{}, simerr.Validation("component %q not found", component)
	}
	for _, v := range f.Description.Variables {
		if ident.Equal(v.Name, name) {
			return v, nil
		}
	}
	return model.Variable{}, simerr.Validation("component %q has no variable %q", component, name)
}

func (b *Builder) variableGroup(e structure.VariableEndpoint) error {
	names, err := b.VariableGroups(e.Simulator)
	if err != nil {
		return err
	}
	for _, n := range names {
		if ident.Equal(n, e.Name) {
			return nil
		}
	}
	return simerr.Validation("component %q has no variable group %q", e.Simulator, e.Name)
}

func (b *Builder) componentName(name string) string {
	if sim, ok := b.structure.Simulator(name); ok {
		return sim.Name
	}
	return name
}

var errTypeMismatch = errors.New("value does not match variable type")

// coerce converts val to the value kind matching v's declared type.
func coerce(v model.Variable, val structure.Value) (structure.Value, error) {
	switch v.Type {
	case model.TypeReal:
		switch val.Kind {
		case structure.KindReal:
			return val, nil
		case structure.KindInteger:
			return structure.Value{Kind: structure.KindReal, Raw: val.Raw}, nil
		}
	case model.TypeInteger, model.TypeEnumeration:
		switch val.Kind {
		case structure.KindInteger:
			return val, nil
		case structure.KindReal:
			f, err := strconv.ParseFloat(val.Raw, 64)
			if err == nil && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
				return structure.Integer(int64(f)), nil
			}
		}
	case model.TypeBoolean:
		if val.Kind == structure.KindBoolean {
			return val, nil
		}
	case model.TypeString:
		if val.Kind == structure.KindString {
			return val, nil
		}
	case "":
		return val, nil
	}
	return structure.Value{}, errTypeMismatch
}
