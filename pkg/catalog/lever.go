package catalog

import (
	"time"
)

// Kind is how a lever modifies the rule system.
type Kind string

const (
	KindParametric     Kind = "parametric"
	KindScaleComponent Kind = "scale_component"
	KindAbolition      Kind = "abolition"
)

// ValueType is the type a lever's value is decoded to.
type ValueType string

const (
	ValueBool   ValueType = "bool"
	ValueFloat  ValueType = "float"
	ValueInt    ValueType = "int"
	ValueEnum   ValueType = "Enum"
	ValueString ValueType = "str"
)

// UnitAbolition marks a lever that removes one or more variables.
const UnitAbolition = "abolition"

// BreakdownPart is one step of a breakdown lever's position under its node.
type BreakdownPart struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// Lever is the metadata of one caller-adjustable policy setting.
// Levers are immutable once their catalog is built.
type Lever struct {
	Name        string `json:"name"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Kind        Kind   `json:"kind"`

	// Path addresses the target parameter. Scale components use the
	// bracket form "<scale>[<index>].<component>".
	Path string `json:"parameter"`

	// Variables lists the variables an abolition lever removes.
	Variables []string `json:"variable,omitempty"`

	ValueType      ValueType         `json:"valueType"`
	Unit           string            `json:"unit,omitempty"`
	Period         string            `json:"period,omitempty"`
	Value          any               `json:"value"`
	Min            *float64          `json:"min,omitempty"`
	Max            *float64          `json:"max,omitempty"`
	PossibleValues any               `json:"possibleValues,omitempty"`
	Reference      map[string]string `json:"reference"`
	BreakdownParts []BreakdownPart   `json:"breakdownParts,omitempty"`

	// BracketIndex and Component are set for scale components.
	BracketIndex int    `json:"bracketIndex,omitempty"`
	Component    string `json:"component,omitempty"`
}

// NumericValue returns the lever's current value as a float, reporting
// false for non-numeric values.
func (l *Lever) NumericValue() (float64, bool) {
	switch v := l.Value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// Catalog is the flat set of levers built from one rule system at one date.
type Catalog struct {
	asOf   time.Time
	levers map[string]*Lever
	order  []string
}

func newCatalog(asOf time.Time) *Catalog {
	return &Catalog{asOf: asOf, levers: make(map[string]*Lever)}
}

func (c *Catalog) add(l *Lever) {
	if _, exists := c.levers[l.Name]; !exists {
		c.order = append(c.order, l.Name)
	}
	c.levers[l.Name] = l
}

// AsOf returns the date lever values were read at.
func (c *Catalog) AsOf() time.Time {
	return c.asOf
}

// Lookup returns the lever with the given name.
func (c *Catalog) Lookup(name string) (*Lever, bool) {
	l, ok := c.levers[name]
	return l, ok
}

// Levers returns every lever in tree order.
func (c *Catalog) Levers() []*Lever {
	out := make([]*Lever, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.levers[name])
	}
	return out
}

// Len returns the number of levers.
func (c *Catalog) Len() int {
	return len(c.order)
}
