package structure

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/roach88/cosimkit/internal/ident"
	"github.com/roach88/cosimkit/internal/simerr"
)

// Load reads a system structure from source, which is either inline XML or
// a path. A directory path resolves to <dir>/OspSystemStructure.xml.
func Load(source string) (*Structure, error) {
	if strings.HasPrefix(strings.TrimSpace(source), "<") {
		return Parse([]byte(source))
	}

	p := source
	if info, err := os.Stat(p); err == nil && info.IsDir() {
		p = filepath.Join(p, FileName)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, simerr.Deployment(p, "cannot read system structure", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Parse decodes system structure XML and checks simulator names.
func Parse(data []byte) (*Structure, error) {
	var s Structure
	if err := xml.Unmarshal(data, &s); err != nil {
		return nil, simerr.Validation("malformed system structure: %v", err)
	}
	if s.XMLName.Local != "OspSystemStructure" {
		return nil, simerr.Validation("unexpected root element %q", s.XMLName.Local)
	}

	seen := make(map[string]bool, len(s.Simulators))
	for _, sim := range s.Simulators {
		if sim.Name == "" {
			return nil, simerr.Validation("simulator without a name")
		}
		if sim.Source == "" {
			return nil, simerr.Validation("simulator %q has no source", sim.Name)
		}
		key := ident.Normalize(sim.Name)
		if seen[key] {
			return nil, simerr.Validation("duplicate simulator %q", sim.Name)
		}
		seen[key] = true
	}
	return &s, nil
}

// Marshal renders s as an indented XML document in the OSP namespace.
func (s *Structure) Marshal() ([]byte, error) {
	out := s.Clone()
	out.XMLName = xml.Name{}
	out.Xmlns = Namespace
	out.Version = SchemaVersion
	if out.Functions != nil && out.Functions.empty() {
		out.Functions = nil
	}
	if out.Connections != nil && out.Connections.empty() {
		out.Connections = nil
	}

	body, err := xml.MarshalIndent(out, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("marshal system structure: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	buf.Write(body)
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// WriteFile writes s to path.
func (s *Structure) WriteFile(path string) error {
	data, err := s.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return simerr.Deployment(path, "cannot write system structure", err)
	}
	return nil
}

// Clone returns a deep copy of s.
func (s *Structure) Clone() *Structure {
	c := *s
	c.StartTime = cloneFloat(s.StartTime)
	c.BaseStepSize = cloneFloat(s.BaseStepSize)

	c.Simulators = make([]Simulator, len(s.Simulators))
	for i, sim := range s.Simulators {
		c.Simulators[i] = sim.clone()
	}

	if s.Functions != nil {
		c.Functions = &Functions{
			LinearTransformations: append([]LinearTransformation(nil), s.Functions.LinearTransformations...),
			Sums:                  append([]Sum(nil), s.Functions.Sums...),
			VectorSums:            append([]VectorSum(nil), s.Functions.VectorSums...),
		}
	}

	if s.Connections != nil {
		cc := &Connections{
			SignalConnections:      append([]SignalConnection(nil), s.Connections.SignalConnections...),
			SignalGroupConnections: append([]SignalGroupConnection(nil), s.Connections.SignalGroupConnections...),
		}
		for _, vc := range s.Connections.VariableConnections {
			cc.VariableConnections = append(cc.VariableConnections, VariableConnection{
				Variables: append([]VariableEndpoint(nil), vc.Variables...),
			})
		}
		for _, gc := range s.Connections.VariableGroupConnections {
			cc.VariableGroupConnections = append(cc.VariableGroupConnections, VariableGroupConnection{
				Groups: append([]VariableEndpoint(nil), gc.Groups...),
			})
		}
		c.Connections = cc
	}
	return &c
}

// WithSourcePrefix returns a copy of s whose simulator sources are the FMU
// file names joined onto prefix with forward slashes.
func (s *Structure) WithSourcePrefix(prefix string) *Structure {
	c := s.Clone()
	for i := range c.Simulators {
		base := path.Base(filepath.ToSlash(c.Simulators[i].Source))
		if prefix == "" || prefix == "." {
			c.Simulators[i].Source = base
		} else {
			c.Simulators[i].Source = strings.TrimSuffix(prefix, "/") + "/" + base
		}
	}
	return c
}

// SimulatorNames returns simulator names in declaration order.
func (s *Structure) SimulatorNames() []string {
	out := make([]string, len(s.Simulators))
	for i, sim := range s.Simulators {
		out[i] = sim.Name
	}
	return out
}

// Simulator returns the simulator called name.
func (s *Structure) Simulator(name string) (*Simulator, bool) {
	for i := range s.Simulators {
		if ident.Equal(s.Simulators[i].Name, name) {
			return &s.Simulators[i], true
		}
	}
	return nil, false
}

// Sources returns the distinct simulator source file names, sorted.
func (s *Structure) Sources() []string {
	seen := map[string]bool{}
	var out []string
	for _, sim := range s.Simulators {
		base := path.Base(filepath.ToSlash(sim.Source))
		if !seen[base] {
			seen[base] = true
			out = append(out, base)
		}
	}
	sort.Strings(out)
	return out
}

// AddSimulator appends a simulator. Names must be unique.
func (s *Structure) AddSimulator(sim Simulator) error {
	if sim.Name == "" {
		return simerr.Validation("simulator name is required")
	}
	if sim.Source == "" {
		return simerr.Validation("simulator %q has no source", sim.Name)
	}
	if _, ok := s.Simulator(sim.Name); ok {
		return simerr.Validation("simulator %q already exists", sim.Name)
	}
	s.Simulators = append(s.Simulators, sim.clone())
	return nil
}

// DeleteSimulator removes a simulator and every connection touching it.
func (s *Structure) DeleteSimulator(name string) error {
	idx := -1
	for i := range s.Simulators {
		if ident.Equal(s.Simulators[i].Name, name) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return simerr.Validation("simulator %q not found", name)
	}
	s.Simulators = append(s.Simulators[:idx], s.Simulators[idx+1:]...)

	if s.Connections == nil {
		return nil
	}
	c := s.Connections
	touches := func(e VariableEndpoint) bool { return ident.Equal(e.Simulator, name) }

	vcs := c.VariableConnections[:0]
	for _, vc := range c.VariableConnections {
		if !anyEndpoint(vc.Variables, touches) {
			vcs = append(vcs, vc)
		}
	}
	c.VariableConnections = vcs

	gcs := c.VariableGroupConnections[:0]
	for _, gc := range c.VariableGroupConnections {
		if !anyEndpoint(gc.Groups, touches) {
			gcs = append(gcs, gc)
		}
	}
	c.VariableGroupConnections = gcs

	scs := c.SignalConnections[:0]
	for _, sc := range c.SignalConnections {
		if !touches(sc.Variable) {
			scs = append(scs, sc)
		}
	}
	c.SignalConnections = scs

	sgs := c.SignalGroupConnections[:0]
	for _, sg := range c.SignalGroupConnections {
		if !touches(sg.VariableGroup) {
			sgs = append(sgs, sg)
		}
	}
	c.SignalGroupConnections = sgs
	return nil
}

// VariableConnections returns (source, target) pairs of all variable
// connections.
func (s *Structure) VariableConnections() [][2]VariableEndpoint {
	if s.Connections == nil {
		return nil
	}
	var out [][2]VariableEndpoint
	for _, vc := range s.Connections.VariableConnections {
		if len(vc.Variables) == 2 {
			out = append(out, [2]VariableEndpoint{vc.Variables[0], vc.Variables[1]})
		}
	}
	return out
}

// AddVariableConnection wires source to target.
func (s *Structure) AddVariableConnection(source, target VariableEndpoint) error {
	if err := s.requireSimulator(source.Simulator); err != nil {
		return err
	}
	if err := s.requireSimulator(target.Simulator); err != nil {
		return err
	}
	s.connections().VariableConnections = append(s.connections().VariableConnections,
		VariableConnection{Variables: []VariableEndpoint{source, target}})
	return nil
}

// AddSignalConnection adds c after checking that its simulator and function
// exist.
func (s *Structure) AddSignalConnection(c SignalConnection) error {
	if err := s.requireSimulator(c.Variable.Simulator); err != nil {
		return err
	}
	if !s.hasFunction(c.Signal.Function) {
		return simerr.Validation("function %q not found", c.Signal.Function)
	}
	s.connections().SignalConnections = append(s.connections().SignalConnections, c)
	return nil
}

// AddVariableGroupConnection wires the variable group source to target.
func (s *Structure) AddVariableGroupConnection(source, target VariableEndpoint) error {
	if err := s.requireSimulator(source.Simulator); err != nil {
		return err
	}
	if err := s.requireSimulator(target.Simulator); err != nil {
		return err
	}
	s.connections().VariableGroupConnections = append(s.connections().VariableGroupConnections,
		VariableGroupConnection{Groups: []VariableEndpoint{source, target}})
	return nil
}

// AddSignalGroupConnection adds c after checking that its simulator and
// function exist.
func (s *Structure) AddSignalGroupConnection(c SignalGroupConnection) error {
	if err := s.requireSimulator(c.VariableGroup.Simulator); err != nil {
		return err
	}
	if !s.hasFunction(c.SignalGroup.Function) {
		return simerr.Validation("function %q not found", c.SignalGroup.Function)
	}
	s.connections().SignalGroupConnections = append(s.connections().SignalGroupConnections, c)
	return nil
}

// ConnectionCount returns the number of connections of every kind.
func (s *Structure) ConnectionCount() int {
	if s.Connections == nil {
		return 0
	}
	c := s.Connections
	return len(c.VariableConnections) + len(c.VariableGroupConnections) +
		len(c.SignalConnections) + len(c.SignalGroupConnections)
}

// DeleteVariableConnection removes the variable or variable group
// connection between a and b, in either direction.
func (s *Structure) DeleteVariableConnection(a, b VariableEndpoint) error {
	if s.Connections != nil {
		c := s.Connections
		for i, vc := range c.VariableConnections {
			if joins(vc.Variables, a, b) {
				c.VariableConnections = append(c.VariableConnections[:i], c.VariableConnections[i+1:]...)
				return nil
			}
		}
		for i, gc := range c.VariableGroupConnections {
			if joins(gc.Groups, a, b) {
				c.VariableGroupConnections = append(c.VariableGroupConnections[:i], c.VariableGroupConnections[i+1:]...)
				return nil
			}
		}
	}
	return simerr.Validation("connection %s -> %s not found", a, b)
}

// SetInitialValue adds or replaces the initial value of a variable.
func (s *Structure) SetInitialValue(component, variable string, v Value) error {
	sim, ok := s.Simulator(component)
	if !ok {
		return simerr.Validation("simulator %q not found", component)
	}
	iv := NewInitialValue(variable, v)
	for i := range sim.InitialValues {
		if ident.Equal(sim.InitialValues[i].Variable, variable) {
			sim.InitialValues[i] = iv
			return nil
		}
	}
	sim.InitialValues = append(sim.InitialValues, iv)
	return nil
}

// DeleteInitialValue removes the initial value of a variable.
func (s *Structure) DeleteInitialValue(component, variable string) error {
	sim, ok := s.Simulator(component)
	if !ok {
		return simerr.Validation("simulator %q not found", component)
	}
	for i := range sim.InitialValues {
		if ident.Equal(sim.InitialValues[i].Variable, variable) {
			sim.InitialValues = append(sim.InitialValues[:i], sim.InitialValues[i+1:]...)
			return nil
		}
	}
	return simerr.Validation("no initial value for %s.%s", component, variable)
}

// AddLinearTransformation adds a factor*x+offset function.
func (s *Structure) AddLinearTransformation(name string, factor, offset float64) error {
	if err := s.checkFunctionName(name); err != nil {
		return err
	}
	f := s.functions()
	f.LinearTransformations = append(f.LinearTransformations,
		LinearTransformation{Name: name, Factor: factor, Offset: offset})
	return nil
}

// AddSum adds a scalar sum function.
func (s *Structure) AddSum(name string, inputCount int) error {
	if err := s.checkFunctionName(name); err != nil {
		return err
	}
	if inputCount < 1 {
		return simerr.Validation("sum %q: inputCount must be positive, got %d", name, inputCount)
	}
	f := s.functions()
	f.Sums = append(f.Sums, Sum{Name: name, InputCount: inputCount})
	return nil
}

// AddVectorSum adds a vector sum function.
func (s *Structure) AddVectorSum(name string, inputCount, dimension int) error {
	if err := s.checkFunctionName(name); err != nil {
		return err
	}
	if inputCount < 1 || dimension < 1 {
		return simerr.Validation("vector sum %q: inputCount and dimension must be positive", name)
	}
	f := s.functions()
	f.VectorSums = append(f.VectorSums, VectorSum{Name: name, InputCount: inputCount, Dimension: dimension})
	return nil
}

// FunctionNames returns the names of all functions in declaration order.
func (s *Structure) FunctionNames() []string {
	if s.Functions == nil {
		return nil
	}
	var out []string
	for _, f := range s.Functions.LinearTransformations {
		out = append(out, f.Name)
	}
	for _, f := range s.Functions.Sums {
		out = append(out, f.Name)
	}
	for _, f := range s.Functions.VectorSums {
		out = append(out, f.Name)
	}
	return out
}

// SetBaseStepSize sets the master algorithm step size in seconds.
func (s *Structure) SetBaseStepSize(step float64) error {
	if !(step > 0) {
		return simerr.Validation("base step size must be positive, got %v", step)
	}
	s.BaseStepSize = &step
	return nil
}

func (s *Structure) requireSimulator(name string) error {
	if _, ok := s.Simulator(name); !ok {
		return simerr.Validation("simulator %q not found", name)
	}
	return nil
}

func (s *Structure) hasFunction(name string) bool {
	for _, n := range s.FunctionNames() {
		if ident.Equal(n, name) {
			return true
		}
	}
	return false
}

func (s *Structure) checkFunctionName(name string) error {
	if name == "" {
		return simerr.Validation("function name is required")
	}
	if s.hasFunction(name) {
		return simerr.Validation("function %q already exists", name)
	}
	return nil
}

func (s *Structure) connections() *Connections {
	if s.Connections == nil {
		s.Connections = &Connections{}
	}
	return s.Connections
}

func (s *Structure) functions() *Functions {
	if s.Functions == nil {
		s.Functions = &Functions{}
	}
	return s.Functions
}

func (f *Functions) empty() bool {
	return len(f.LinearTransformations) == 0 && len(f.Sums) == 0 && len(f.VectorSums) == 0
}

func (c *Connections) empty() bool {
	return len(c.VariableConnections) == 0 && len(c.VariableGroupConnections) == 0 &&
		len(c.SignalConnections) == 0 && len(c.SignalGroupConnections) == 0
}

func (sim Simulator) clone() Simulator {
	c := sim
	c.StepSize = cloneFloat(sim.StepSize)
	c.InitialValues = nil
	for _, iv := range sim.InitialValues {
		c.InitialValues = append(c.InitialValues, NewInitialValue(iv.Variable, iv.Value()))
	}
	return c
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

func sameEndpoint(a, b VariableEndpoint) bool {
	return ident.Equal(a.Simulator, b.Simulator) && ident.Equal(a.Name, b.Name)
}

func joins(es []VariableEndpoint, a, b VariableEndpoint) bool {
	if len(es) != 2 {
		return false
	}
	x, y := es[0], es[1]
	return (sameEndpoint(x, a) && sameEndpoint(y, b)) || (sameEndpoint(x, b) && sameEndpoint(y, a))
}

func anyEndpoint(es []VariableEndpoint, pred func(VariableEndpoint) bool) bool {
	for _, e := range es {
		if pred(e) {
			return true
		}
	}
	return false
}
