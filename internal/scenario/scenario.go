// Package scenario builds timed event scenarios for cosim runs.
//
// A scenario is an ordered list of events that override, bias or reset a
// variable of a component at a given simulation time. Events are kept in the
// order they were added; nothing is sorted or de-duplicated. The on-disk form
// is the cosim JSON scenario format:
//
//	{"description": "...", "events": [{"time": 1, "model": "chassis",
//	  "variable": "p.f", "action": "override", "value": 10}], "end": 10}
package scenario

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/roach88/cosimkit/internal/ident"
	"github.com/roach88/cosimkit/internal/simerr"
)

// Action is what an event does to its target variable.
type Action int

const (
	Override Action = iota
	Bias
	Reset
)

var actionNames = map[Action]string{
	Override: "override",
	Bias:     "bias",
	Reset:    "reset",
}

func (a Action) String() string {
	if s, ok := actionNames[a]; ok {
		return strings.ToUpper(s)
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// NeedsValue reports whether events with this action must carry a value.
func (a Action) NeedsValue() bool {
	return a == Override || a == Bias
}

// ParseAction accepts override, bias or reset in any case.
func ParseAction(s string) (Action, error) {
	for a, name := range actionNames {
		if strings.EqualFold(s, name) {
			return a, nil
		}
	}
	return 0, simerr.Validation("unknown event action %q (want override, bias or reset)", s)
}

func (a Action) MarshalText() ([]byte, error) {
	s, ok := actionNames[a]
	if !ok {
		return nil, fmt.Errorf("unknown event action %d", int(a))
	}
	return []byte(s), nil
}

func (a *Action) UnmarshalText(text []byte) error {
	parsed, err := ParseAction(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Event changes one variable of one component at Time.
type Event struct {
	Time     float64  `json:"time" yaml:"time"`
	Model    string   `json:"model" yaml:"model"`
	Variable string   `json:"variable" yaml:"variable"`
	Action   Action   `json:"action" yaml:"action"`
	Value    *float64 `json:"value,omitempty" yaml:"value,omitempty"`
}

// NewEvent builds an event with a value.
func NewEvent(t float64, model, variable string, action Action, value float64) Event {
	return Event{Time: t, Model: model, Variable: variable, Action: action, Value: &value}
}

// ResetEvent builds a RESET event, which carries no value.
func ResetEvent(t float64, model, variable string) Event {
	return Event{Time: t, Model: model, Variable: variable, Action: Reset}
}

func (e Event) String() string {
	if e.Value == nil {
		return fmt.Sprintf("%s %s.%s at t=%g", e.Action, e.Model, e.Variable, e.Time)
	}
	return fmt.Sprintf("%s %s.%s=%g at t=%g", e.Action, e.Model, e.Variable, *e.Value, e.Time)
}

func (e Event) matches(t float64, model, variable string) bool {
	return e.Time == t && ident.Equal(e.Model, model) && ident.Equal(e.Variable, variable)
}

// Scenario is a named, ordered set of events ending at End seconds.
type Scenario struct {
	Name        string  `json:"-" yaml:"name"`
	Description string  `json:"description,omitempty" yaml:"description,omitempty"`
	Events      []Event `json:"events" yaml:"events"`
	End         float64 `json:"end" yaml:"end"`
}

// New creates an empty scenario.
func New(name string, end float64) *Scenario {
	return &Scenario{Name: name, End: end, Events: []Event{}}
}

// AddEvent appends e. OVERRIDE and BIAS events must carry a value.
func (s *Scenario) AddEvent(e Event) error {
	if _, ok := actionNames[e.Action]; !ok {
		return simerr.Validation("event %s: unknown action", e)
	}
	if e.Action.NeedsValue() && e.Value == nil {
		return simerr.Validation("event %s: %s requires a value", e, e.Action)
	}
	s.Events = append(s.Events, e)
	return nil
}

// UpdateEvent changes the action and/or value of every event at time t on
// model.variable. At least one of action and value must be given.
func (s *Scenario) UpdateEvent(t float64, model, variable string, action *Action, value *float64) error {
	if action == nil && value == nil {
		return simerr.Validation("update event: nothing to change")
	}

	found := false
	for i := range s.Events {
		e := &s.Events[i]
		if !e.matches(t, model, variable) {
			continue
		}
		found = true
		updated := *e
		if action != nil {
			updated.Action = *action
		}
		if value != nil {
			v := *value
			updated.Value = &v
		}
		if updated.Action.NeedsValue() && updated.Value == nil {
			return simerr.Validation("event %s: %s requires a value", updated, updated.Action)
		}
		*e = updated
	}
	if !found {
		return simerr.Validation("no event for %s.%s at t=%g", model, variable, t)
	}
	return nil
}

// Filter selects events for deletion. Zero fields match everything.
type Filter struct {
	Time     *float64
	Model    string
	Variable string
}

func (f Filter) match(e Event) bool {
	if f.Time != nil && e.Time != *f.Time {
		return false
	}
	if f.Model != "" && !ident.Equal(f.Model, e.Model) {
		return false
	}
	if f.Variable != "" && !ident.Equal(f.Variable, e.Variable) {
		return false
	}
	return true
}

// DeleteEvents removes the events selected by f and returns how many were
// removed. An empty filter removes all events.
func (s *Scenario) DeleteEvents(f Filter) int {
	kept := s.Events[:0]
	for _, e := range s.Events {
		if !f.match(e) {
			kept = append(kept, e)
		}
	}
	n := len(s.Events) - len(kept)
	s.Events = kept
	return n
}

// Validate checks the end time and every event. All problems are reported
// in one VALIDATION error.
func (s *Scenario) Validate() error {
	var problems []string
	if math.IsNaN(s.End) || math.IsInf(s.End, 0) || s.End <= 0 {
		problems = append(problems, fmt.Sprintf("end time must be positive, got %v", s.End))
	}
	for i, e := range s.Events {
		switch {
		case e.Time < 0 || math.IsNaN(e.Time):
			problems = append(problems, fmt.Sprintf("event %d (%s): negative time", i, e))
		case e.Time > s.End:
			problems = append(problems, fmt.Sprintf("event %d (%s): time exceeds scenario end %g", i, e, s.End))
		}
		if e.Action.NeedsValue() && e.Value == nil {
			problems = append(problems, fmt.Sprintf("event %d (%s): %s requires a value", i, e, e.Action))
		}
		if e.Model == "" || e.Variable == "" {
			problems = append(problems, fmt.Sprintf("event %d: model and variable are required", i))
		}
	}
	if len(problems) > 0 {
		return simerr.Validation("scenario %q: %s", s.Name, strings.Join(problems, "; "))
	}
	return nil
}

// Clone returns a deep copy of s.
func (s *Scenario) Clone() *Scenario {
	c := *s
	c.Events = make([]Event, len(s.Events))
	for i, e := range s.Events {
		c.Events[i] = e
		if e.Value != nil {
			v := *e.Value
			c.Events[i].Value = &v
		}
	}
	return &c
}

// FileName is the staged file name: the scenario name with spaces replaced
// by underscores, plus .json.
func (s *Scenario) FileName() string {
	name := strings.TrimSpace(s.Name)
	if name == "" {
		name = "scenario"
	}
	return strings.ReplaceAll(name, " ", "_") + ".json"
}

// Marshal renders s as cosim scenario JSON.
func (s *Scenario) Marshal() ([]byte, error) {
	out := *s
	if out.Events == nil {
		out.Events = []Event{}
	}
	data, err := json.MarshalIndent(&out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal scenario %q: %w", s.Name, err)
	}
	return append(data, '\n'), nil
}
