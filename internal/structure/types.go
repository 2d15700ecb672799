// Package structure loads, edits and serializes OSP system structure files.
//
// A system structure (OspSystemStructure.xml) names the simulator instances
// of a co-simulation, the FMU each one runs, their initial values, the
// connection functions, and how variables are wired together. Documents are
// accepted in any XML namespace and always written in the OSP namespace.
package structure

import (
	"encoding/xml"
	"fmt"
	"strconv"
)

const (
	// FileName is the conventional system structure file name.
	FileName = "OspSystemStructure.xml"

	// Namespace is the OSP system structure XML namespace.
	Namespace = "http://opensimulationplatform.com/MSMI/OSPSystemStructure"

	// SchemaVersion is written to the version attribute.
	SchemaVersion = "0.1"
)

// Structure is an OSP system structure document.
type Structure struct {
	XMLName      xml.Name     `xml:"OspSystemStructure"`
	Xmlns        string       `xml:"xmlns,attr,omitempty"`
	Version      string       `xml:"version,attr,omitempty"`
	StartTime    *float64     `xml:"StartTime,omitempty"`
	BaseStepSize *float64     `xml:"BaseStepSize,omitempty"`
	Algorithm    string       `xml:"Algorithm,omitempty"`
	Simulators   []Simulator  `xml:"Simulators>Simulator"`
	Functions    *Functions   `xml:"Functions,omitempty"`
	Connections  *Connections `xml:"Connections,omitempty"`
}

// Simulator is a component instance running one FMU.
type Simulator struct {
	Name          string
	Source        string
	StepSize      *float64
	InitialValues []InitialValue
}

// simulatorXML is the wire form of Simulator. InitialValues is omitted
// when empty: the schema requires at least one InitialValue inside it.
type simulatorXML struct {
	Name          string         `xml:"name,attr"`
	Source        string         `xml:"source,attr"`
	StepSize      *float64       `xml:"stepSize,attr,omitempty"`
	InitialValues *initialValues `xml:"InitialValues,omitempty"`
}

type initialValues struct {
	Items []InitialValue `xml:"InitialValue"`
}

func (sim Simulator) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	out := simulatorXML{Name: sim.Name, Source: sim.Source, StepSize: sim.StepSize}
	if len(sim.InitialValues) > 0 {
		out.InitialValues = &initialValues{Items: sim.InitialValues}
	}
	return e.EncodeElement(out, start)
}

func (sim *Simulator) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var in simulatorXML
	if err := d.DecodeElement(&in, &start); err != nil {
		return err
	}
	*sim = Simulator{Name: in.Name, Source: in.Source, StepSize: in.StepSize}
	if in.InitialValues != nil && len(in.InitialValues.Items) > 0 {
		sim.InitialValues = in.InitialValues.Items
	}
	return nil
}

// InitialValue sets the start value of one variable. Exactly one of the
// typed children is set.
type InitialValue struct {
	Variable string     `xml:"variable,attr"`
	Real     *valueAttr `xml:"Real"`
	Integer  *valueAttr `xml:"Integer"`
	Boolean  *valueAttr `xml:"Boolean"`
	String   *valueAttr `xml:"String"`
}

type valueAttr struct {
	Value string `xml:"value,attr"`
}

// Functions groups the connection functions of a structure.
type Functions struct {
	LinearTransformations []LinearTransformation `xml:"LinearTransformation"`
	Sums                  []Sum                  `xml:"Sum"`
	VectorSums            []VectorSum            `xml:"VectorSum"`
}

// LinearTransformation computes factor*x + offset.
type LinearTransformation struct {
	Name   string  `xml:"name,attr"`
	Factor float64 `xml:"factor,attr"`
	Offset float64 `xml:"offset,attr"`
}

// Sum adds InputCount scalar inputs.
type Sum struct {
	Name       string `xml:"name,attr"`
	InputCount int    `xml:"inputCount,attr"`
}

// VectorSum adds InputCount vectors of Dimension elements.
type VectorSum struct {
	Name       string `xml:"name,attr"`
	InputCount int    `xml:"inputCount,attr"`
	Dimension  int    `xml:"dimension,attr"`
}

// Connections groups all connections of a structure.
type Connections struct {
	VariableConnections      []VariableConnection      `xml:"VariableConnection"`
	VariableGroupConnections []VariableGroupConnection `xml:"VariableGroupConnection"`
	SignalConnections        []SignalConnection        `xml:"SignalConnection"`
	SignalGroupConnections   []SignalGroupConnection   `xml:"SignalGroupConnection"`
}

// VariableEndpoint addresses a variable (or variable group) of a simulator.
type VariableEndpoint struct {
	Simulator string `xml:"simulator,attr"`
	Name      string `xml:"name,attr"`
}

func (e VariableEndpoint) String() string {
	return e.Simulator + "." + e.Name
}

// SignalEndpoint addresses a signal (or signal group) of a function.
type SignalEndpoint struct {
	Function string `xml:"function,attr"`
	Name     string `xml:"name,attr"`
}

// VariableConnection wires an output variable to an input variable.
// Variables holds the source first, then the target.
type VariableConnection struct {
	Variables []VariableEndpoint `xml:"Variable"`
}

// VariableGroupConnection wires two variable groups.
type VariableGroupConnection struct {
	Groups []VariableEndpoint `xml:"VariableGroup"`
}

// SignalConnection wires a simulator variable and a function signal. The
// first element written is the source: the variable, unless SignalFirst is
// set, in which case a function output drives the variable.
type SignalConnection struct {
	Variable    VariableEndpoint
	Signal      SignalEndpoint
	SignalFirst bool
}

func (c SignalConnection) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	return encodePair(e, start, "Variable", c.Variable, "Signal", c.Signal, c.SignalFirst)
}

func (c *SignalConnection) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	first, err := decodePair(d, start, "Variable", &c.Variable, "Signal", &c.Signal)
	c.SignalFirst = first
	return err
}

// SignalGroupConnection wires a variable group and a function signal group,
// ordered the same way as SignalConnection.
type SignalGroupConnection struct {
	VariableGroup VariableEndpoint
	SignalGroup   SignalEndpoint
	SignalFirst   bool
}

func (c SignalGroupConnection) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	return encodePair(e, start, "VariableGroup", c.VariableGroup, "SignalGroup", c.SignalGroup, c.SignalFirst)
}

func (c *SignalGroupConnection) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	first, err := decodePair(d, start, "VariableGroup", &c.VariableGroup, "SignalGroup", &c.SignalGroup)
	c.SignalFirst = first
	return err
}

// encodePair writes the variable and signal children of start in
// connection order.
func encodePair(e *xml.Encoder, start xml.StartElement, varElem string, v VariableEndpoint, sigElem string, sig SignalEndpoint, signalFirst bool) error {
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	writeVar := func() error { return e.EncodeElement(v, xml.StartElement{Name: xml.Name{Local: varElem}}) }
	writeSig := func() error { return e.EncodeElement(sig, xml.StartElement{Name: xml.Name{Local: sigElem}}) }
	order := []func() error{writeVar, writeSig}
	if signalFirst {
		order = []func() error{writeSig, writeVar}
	}
	for _, write := range order {
		if err := write(); err != nil {
			return err
		}
	}
	return e.EncodeToken(start.End())
}

// decodePair reads the variable and signal children of start and reports
// whether the signal came first.
func decodePair(d *xml.Decoder, start xml.StartElement, varElem string, v *VariableEndpoint, sigElem string, sig *SignalEndpoint) (bool, error) {
	var haveVar, haveSig, signalFirst bool
	for {
		tok, err := d.Token()
		if err != nil {
			return false, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case varElem:
				if err := d.DecodeElement(v, &t); err != nil {
					return false, err
				}
				haveVar = true
			case sigElem:
				if err := d.DecodeElement(sig, &t); err != nil {
					return false, err
				}
				signalFirst = !haveVar
				haveSig = true
			default:
				if err := d.Skip(); err != nil {
					return false, err
				}
			}
		case xml.EndElement:
			if !haveVar || !haveSig {
				return false, fmt.Errorf("%s needs a %s and a %s", start.Name.Local, varElem, sigElem)
			}
			return signalFirst, nil
		}
	}
}

// ValueKind is the type of an initial value.
type ValueKind string

const (
	KindReal    ValueKind = "Real"
	KindInteger ValueKind = "Integer"
	KindBoolean ValueKind = "Boolean"
	KindString  ValueKind = "String"
)

// Value is a typed initial value.
type Value struct {
	Kind ValueKind
	Raw  string
}

func Real(f float64) Value { return Value{Kind: KindReal, Raw: strconv.FormatFloat(f, 'g', -1, 64)} }
func Integer(i int64) Value { return Value{Kind: KindInteger, Raw: strconv.FormatInt(i, 10)} }
func Boolean(b bool) Value { return Value{Kind: KindBoolean, Raw: strconv.FormatBool(b)} }
func String(s string) Value { return Value{Kind: KindString, Raw: s} }

// ValueOf converts a Go value to a typed initial value.
func ValueOf(v any) (Value, error) {
	switch x := v.(type) {
	case Value:
		return x, nil
	case float64:
		return Real(x), nil
	case float32:
		return Real(float64(x)), nil
	case int:
		return Integer(int64(x)), nil
	case int32:
		return Integer(int64(x)), nil
	case int64:
		return Integer(x), nil
	case bool:
		return Boolean(x), nil
	case string:
		return String(x), nil
	default:
		return Value{}, fmt.Errorf("unsupported initial value type %T", v)
	}
}

// NewInitialValue builds an InitialValue for variable.
func NewInitialValue(variable string, v Value) InitialValue {
	iv := InitialValue{Variable: variable}
	attr := &valueAttr{Value: v.Raw}
	switch v.Kind {
	case KindInteger:
		iv.Integer = attr
	case KindBoolean:
		iv.Boolean = attr
	case KindString:
		iv.String = attr
	default:
		iv.Real = attr
	}
	return iv
}

// Value returns the typed value of iv.
func (iv InitialValue) Value() Value {
	switch {
	case iv.Real != nil:
		return Value{Kind: KindReal, Raw: iv.Real.Value}
	case iv.Integer != nil:
		return Value{Kind: KindInteger, Raw: iv.Integer.Value}
	case iv.Boolean != nil:
		return Value{Kind: KindBoolean, Raw: iv.Boolean.Value}
	case iv.String != nil:
		return Value{Kind: KindString, Raw: iv.String.Value}
	}
	return Value{}
}
