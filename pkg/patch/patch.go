package patch

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"taxlab-hq/ledger/pkg/engine"
)

// PolicyDatePath is the parameter that records the date a system was frozen at.
const PolicyDatePath = "reforms.policy_date"

// FreezeWindow is the span of years, starting FreezeLookback years before the
// policy date, over which frozen and lever values are written.
const (
	FreezeLookback = 10
	FreezeWindow   = 20
)

// Patch is an atomic modification of a rule system.
type Patch interface {
	// Apply mutates system in place. Applying a patch twice has the same
	// observable effect as applying it once.
	Apply(system *engine.System) error

	// Target returns the parameter path or variables the patch addresses.
	Target() string

	fmt.Stringer
}

// Window returns the period lever values are written over for a policy date.
func Window(date time.Time) engine.Period {
	return engine.Years(date.Year()-FreezeLookback, FreezeWindow)
}

// ParametricSet sets a parameter to a value over a period.
type ParametricSet struct {
	Path   string
	Value  any
	Period engine.Period
}

func (p ParametricSet) Apply(system *engine.System) error {
	param, err := ResolveParameter(system, p.Path)
	if err != nil {
		return err
	}
	param.Update(p.Period, p.Value)
	return nil
}

func (p ParametricSet) Target() string { return p.Path }

func (p ParametricSet) String() string {
	return fmt.Sprintf("set %s = %v over %s", p.Path, p.Value, p.Period)
}

// ScaleComponentSet sets one component of one bracket of a scale.
type ScaleComponentSet struct {
	Path      string
	Index     int
	Component string
	Value     any
	Period    engine.Period
}

func (p ScaleComponentSet) Apply(system *engine.System) error {
	item, err := Resolve(system, p.Path)
	if err != nil {
		return err
	}
	scale, ok := item.(*engine.Scale)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotScale, p.Path)
	}
	if p.Index < 0 || p.Index >= len(scale.Brackets) {
		return &PathError{Path: p.Target(), Segment: strconv.Itoa(p.Index), Reason: ReasonBadIndex}
	}
	component, ok := scale.Brackets[p.Index].Component(p.Component)
	if !ok {
		return &PathError{Path: p.Target(), Segment: p.Component, Reason: ReasonNotFound}
	}
	component.Update(p.Period, p.Value)
	return nil
}

func (p ScaleComponentSet) Target() string {
	return engine.ComponentPath(p.Path, p.Index, p.Component)
}

func (p ScaleComponentSet) String() string {
	return fmt.Sprintf("set %s = %v over %s", p.Target(), p.Value, p.Period)
}

// AbolitionToggle neutralizes a set of variables together. With Enabled
// false it reinstates them instead.
type AbolitionToggle struct {
	Variables []string
	Enabled   bool
}

func (p AbolitionToggle) Apply(system *engine.System) error {
	for _, name := range p.Variables {
		var err error
		if p.Enabled {
			err = system.Neutralize(name)
		} else {
			err = system.Reinstate(name)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (p AbolitionToggle) Target() string { return strings.Join(p.Variables, ",") }

func (p AbolitionToggle) String() string {
	if p.Enabled {
		return "abolish " + p.Target()
	}
	return "reinstate " + p.Target()
}

// FreezeParameters pins every parameter to the value it has at Date across
// the window around Date, so that a simulation of any year in that window
// sees the policy in force on Date.
type FreezeParameters struct {
	Date time.Time
}

func (p FreezeParameters) Apply(system *engine.System) error {
	window := Window(p.Date)
	for _, param := range Parameters(system.Parameters) {
		value := param.At(p.Date)
		if value == nil {
			continue
		}
		param.Update(window, value)
	}

	if item, err := system.Lookup(PolicyDatePath); err == nil {
		if param, ok := item.(*engine.Parameter); ok {
			stamp, _ := strconv.Atoi(p.Date.Format("20060102"))
			param.Update(window, float64(stamp))
		}
	}
	return nil
}

func (p FreezeParameters) Target() string { return "*" }

func (p FreezeParameters) String() string {
	return "freeze parameters at " + p.Date.Format(engine.DateLayout)
}

// Parameters returns every parameter under root, including the components
// of every scale bracket.
func Parameters(root *engine.Node) []*engine.Parameter {
	var params []*engine.Parameter
	for _, item := range root.Descendants() {
		switch it := item.(type) {
		case *engine.Parameter:
			params = append(params, it)
		case *engine.Scale:
			for _, b := range it.Brackets {
				for _, name := range engine.BracketComponents {
					if c, ok := b.Component(name); ok {
						params = append(params, c)
					}
				}
			}
		}
	}
	return params
}

// Apply applies patches to system in order. It stops at the first failure;
// the system is then partially patched and must be discarded.
func Apply(patches []Patch, system *engine.System) error {
	for i, p := range patches {
		if err := p.Apply(system); err != nil {
			return &ApplyError{Index: i, Patch: p, Err: err}
		}
	}
	return nil
}

// Concat joins patch lists into one flat list, preserving order.
func Concat(lists ...[]Patch) []Patch {
	n := 0
	for _, l := range lists {
		n += len(l)
	}
	out := make([]Patch, 0, n)
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}
