// Package model imports FMU model artifacts and exposes their metadata.
//
// An FMU is a zip archive whose root holds modelDescription.xml (FMI 2.0).
// Only the description is read; binaries inside the archive are never
// touched. Variables are classified the way the co-simulation tooling
// expects them to be edited:
//
//   - parameters: variability "fixed" or causality "parameter"
//   - inputs / outputs: by causality
//   - others: everything else (locals, independent, calculated parameters)
package model

import "sort"

// Causality of a model variable.
type Causality string

const (
	CausalityParameter           Causality = "parameter"
	CausalityCalculatedParameter Causality = "calculatedParameter"
	CausalityInput               Causality = "input"
	CausalityOutput              Causality = "output"
	CausalityLocal               Causality = "local"
	CausalityIndependent         Causality = "independent"
)

// VarType is the value type of a model variable.
type VarType string

const (
	TypeReal        VarType = "real"
	TypeInteger     VarType = "integer"
	TypeBoolean     VarType = "boolean"
	TypeString      VarType = "string"
	TypeEnumeration VarType = "enumeration"
)

// Variable is a single scalar variable of a model.
type Variable struct {
	Name           string    `json:"name" yaml:"name"`
	ValueReference uint32    `json:"reference" yaml:"reference"`
	Type           VarType   `json:"type" yaml:"type"`
	Causality      Causality `json:"causality" yaml:"causality"`
	Variability    string    `json:"variability" yaml:"variability"`
	Start          string    `json:"start,omitempty" yaml:"start,omitempty"`
}

// IsParameter reports whether v is editable as a parameter.
func (v Variable) IsParameter() bool {
	return v.Variability == "fixed" || v.Causality == CausalityParameter
}

// Description summarizes a model description file.
type Description struct {
	Name        string     `json:"name"`
	GUID        string     `json:"uuid"`
	Description string     `json:"description,omitempty"`
	Author      string     `json:"author,omitempty"`
	Version     string     `json:"version,omitempty"`
	FMIVersion  string     `json:"fmi_version,omitempty"`
	Variables   []Variable `json:"variables"`
}

// Variables holds variables sorted into parameter, input, output and others.
type Variables struct {
	Parameters []Variable `json:"parameters"`
	Inputs     []Variable `json:"inputs"`
	Outputs    []Variable `json:"outputs"`
	Others     []Variable `json:"others"`
}

// Classify sorts the variables of d by category. Declaration order is kept
// inside each category.
func (d *Description) Classify() Variables {
	var vs Variables
	for _, v := range d.Variables {
		switch {
		case v.IsParameter():
			vs.Parameters = append(vs.Parameters, v)
		case v.Causality == CausalityInput:
			vs.Inputs = append(vs.Inputs, v)
		case v.Causality == CausalityOutput:
			vs.Outputs = append(vs.Outputs, v)
		default:
			vs.Others = append(vs.Others, v)
		}
	}
	return vs
}

// Lookup returns the variable called name.
func (d *Description) Lookup(name string) (Variable, bool) {
	for _, v := range d.Variables {
		if v.Name == name {
			return v, true
		}
	}
	return Variable{}, false
}

func (d *Description) ParameterNames() []string { return names(d.Classify().Parameters) }
func (d *Description) InputNames() []string { return names(d.Classify().Inputs) }
func (d *Description) OutputNames() []string { return names(d.Classify().Outputs) }
func (d *Description) OtherNames() []string { return names(d.Classify().Others) }

// AllNames returns every variable name, sorted.
func (d *Description) AllNames() []string {
	out := names(d.Variables)
	sort.Strings(out)
	return out
}

func names(vs []Variable) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.Name
	}
	return out
}
