// Package results loads the CSV files cosim writes after a run.
//
// cosim writes one file per simulator named
// <component>_<yyyymmdd>_<hhmmss>_<ms>.csv. The first columns are Time and
// StepCount, followed by one column per logged variable whose header carries
// a " [reference causality type]" suffix. Headers are stored without that
// suffix.
package results

import (
	"sort"

	"github.com/roach88/cosimkit/internal/ident"
)

const (
	TimeColumn      = "Time"
	StepCountColumn = "StepCount"
)

// Table is the result series of one component.
type Table struct {
	// Component is the instance name as given in the system structure.
	Component string

	// Path is the CSV file the table was read from.
	Path string

	Time      []float64
	StepCount []int64

	// Columns lists the variable columns in file order.
	Columns []string

	series map[string][]float64
}

// Rows returns the number of logged time steps.
func (t *Table) Rows() int {
	return len(t.Time)
}

// Column returns the series for a variable column.
func (t *Table) Column(name string) ([]float64, bool) {
	if s, ok := t.series[name]; ok {
		return s, true
	}
	for _, c := range t.Columns {
		if ident.Equal(c, name) {
			return t.series[c], true
		}
	}
	return nil, false
}

// Value returns one cell of a variable column.
func (t *Table) Value(name string, row int) (float64, bool) {
	s, ok := t.Column(name)
	if !ok || row < 0 || row >= len(s) {
		return 0, false
	}
	return s[row], true
}

// Set maps component names to their result tables.
type Set map[string]*Table

// Names returns the component names, sorted.
func (s Set) Names() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
