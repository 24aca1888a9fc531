package engine

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Metadata holds the free-form metadata attached to a tree item.
type Metadata map[string]any

// String returns the metadata value for key as a string, or "" if absent.
func (m Metadata) String(key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// Float returns the metadata value for key as a float.
func (m Metadata) Float(key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// Bool returns the metadata value for key as a bool, or false if absent.
func (m Metadata) Bool(key string) bool {
	b, _ := m[key].(bool)
	return b
}

// Item is a member of the parameter tree: a Node, Parameter or Scale.
type Item interface {
	// Name returns the full dotted path of the item.
	Name() string

	// Meta returns the item's metadata. The map is owned by the item.
	Meta() Metadata

	// Doc returns the item's description.
	Doc() string
}

type valueAt struct {
	start time.Time
	value any
}

// Parameter is a leaf of the parameter tree with time-varying values.
type Parameter struct {
	name        string
	Description string
	Metadata    Metadata
	values      []valueAt
}

// NewParameter creates an empty parameter at the given path.
func NewParameter(name string) *Parameter {
	return &Parameter{name: name, Metadata: Metadata{}}
}

// Name returns the dotted path of the parameter.
func (p *Parameter) Name() string { return p.name }

// Meta returns the parameter metadata.
func (p *Parameter) Meta() Metadata { return p.Metadata }

// Doc returns the parameter description.
func (p *Parameter) Doc() string { return p.Description }

// At returns the value in force at instant, or nil if none is defined.
func (p *Parameter) At(instant time.Time) any {
	var current any
	for _, v := range p.values {
		if v.start.After(instant) {
			break
		}
		current = v.value
	}
	return current
}

// Float returns the value at instant as a float64.
// Booleans map to 0 and 1; missing values map to 0.
func (p *Parameter) Float(instant time.Time) float64 {
	return ToFloat(p.At(instant))
}

// Update sets value over period. Values outside the period are preserved,
// and the value previously in force at the end of a bounded period is
// restored from that point on.
//
// Update is idempotent: applying the same update twice leaves the same
// value history.
func (p *Parameter) Update(period Period, value any) {
	bounded := !period.Stop.IsZero()
	var restore any
	if bounded {
		restore = p.At(period.Stop)
	}

	kept := make([]valueAt, 0, len(p.values)+2)
	hasStopEntry := false
	for _, v := range p.values {
		if v.start.Before(period.Start) {
			kept = append(kept, v)
			continue
		}
		if bounded && !v.start.Before(period.Stop) {
			if v.start.Equal(period.Stop) {
				hasStopEntry = true
			}
			kept = append(kept, v)
		}
	}

	kept = append(kept, valueAt{start: period.Start, value: normalizeValue(value)})
	if bounded && !hasStopEntry && restore != nil {
		kept = append(kept, valueAt{start: period.Stop, value: restore})
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].start.Before(kept[j].start)
	})
	p.values = kept
}

// History returns the start dates and values of the parameter in order.
func (p *Parameter) History() ([]time.Time, []any) {
	starts := make([]time.Time, len(p.values))
	values := make([]any, len(p.values))
	for i, v := range p.values {
		starts[i] = v.start
		values[i] = v.value
	}
	return starts, values
}

// clone returns a deep copy of the parameter.
func (p *Parameter) clone() *Parameter {
	c := &Parameter{
		name:        p.name,
		Description: p.Description,
		Metadata:    cloneMetadata(p.Metadata),
		values:      make([]valueAt, len(p.values)),
	}
	copy(c.values, p.values)
	return c
}

// Bracket components.
const (
	ComponentRate      = "rate"
	ComponentAmount    = "amount"
	ComponentThreshold = "threshold"
)

// BracketComponents lists the components a bracket may carry, in catalog order.
var BracketComponents = []string{ComponentRate, ComponentAmount, ComponentThreshold}

// Bracket is a single band of a Scale.
type Bracket struct {
	components map[string]*Parameter
}

// Component returns the named component parameter of the bracket.
func (b *Bracket) Component(name string) (*Parameter, bool) {
	p, ok := b.components[name]
	return p, ok
}

// Scale is a piecewise schedule of brackets, e.g. income tax bands.
type Scale struct {
	name        string
	Description string
	Metadata    Metadata
	Brackets    []*Bracket
}

// NewScale creates an empty scale at the given path.
func NewScale(name string) *Scale {
	return &Scale{name: name, Metadata: Metadata{}}
}

// Name returns the dotted path of the scale.
func (s *Scale) Name() string { return s.name }

// Meta returns the scale metadata.
func (s *Scale) Meta() Metadata { return s.Metadata }

// Doc returns the scale description.
func (s *Scale) Doc() string { return s.Description }

// AddBracket appends a bracket built from the given components.
// Component parameters are renamed to "<scale>[<index>].<component>".
func (s *Scale) AddBracket(components map[string]*Parameter) *Bracket {
	index := len(s.Brackets)
	b := &Bracket{components: make(map[string]*Parameter, len(components))}
	for key, p := range components {
		p.name = ComponentPath(s.name, index, key)
		b.components[key] = p
	}
	s.Brackets = append(s.Brackets, b)
	return b
}

// ComponentPath returns the addressable path of a bracket component.
func ComponentPath(scale string, index int, component string) string {
	return fmt.Sprintf("%s[%d].%s", scale, index, component)
}

// MarginalRates applies the scale as a marginal rate schedule to base.
func (s *Scale) MarginalRates(base float64, instant time.Time) float64 {
	total := 0.0
	for i, b := range s.Brackets {
		lower := componentFloat(b, ComponentThreshold, instant)
		upper := math.Inf(1)
		if i+1 < len(s.Brackets) {
			upper = componentFloat(s.Brackets[i+1], ComponentThreshold, instant)
		}
		if base <= lower {
			break
		}
		band := math.Min(base, upper) - lower
		if band > 0 {
			total += band * componentFloat(b, ComponentRate, instant)
		}
	}
	return total
}

// SingleAmount returns the amount of the highest bracket whose threshold
// does not exceed base.
func (s *Scale) SingleAmount(base float64, instant time.Time) float64 {
	amount := 0.0
	for _, b := range s.Brackets {
		if base < componentFloat(b, ComponentThreshold, instant) {
			break
		}
		amount = componentFloat(b, ComponentAmount, instant)
	}
	return amount
}

func componentFloat(b *Bracket, component string, instant time.Time) float64 {
	p, ok := b.components[component]
	if !ok {
		return 0
	}
	return p.Float(instant)
}

func (s *Scale) clone() *Scale {
	c := &Scale{
		name:        s.name,
		Description: s.Description,
		Metadata:    cloneMetadata(s.Metadata),
		Brackets:    make([]*Bracket, len(s.Brackets)),
	}
	for i, b := range s.Brackets {
		nb := &Bracket{components: make(map[string]*Parameter, len(b.components))}
		for key, p := range b.components {
			nb.components[key] = p.clone()
		}
		c.Brackets[i] = nb
	}
	return c
}

// Node is an interior node of the parameter tree.
type Node struct {
	name        string
	Description string
	Metadata    Metadata
	children    map[string]Item
	order       []string
}

// NewNode creates an empty node at the given path. The root node has an
// empty name.
func NewNode(name string) *Node {
	return &Node{
		name:     name,
		Metadata: Metadata{},
		children: make(map[string]Item),
	}
}

// Name returns the dotted path of the node.
func (n *Node) Name() string { return n.name }

// Meta returns the node metadata.
func (n *Node) Meta() Metadata { return n.Metadata }

// Doc returns the node description.
func (n *Node) Doc() string { return n.Description }

// AddChild adds or replaces a child under key, preserving insertion order.
func (n *Node) AddChild(key string, item Item) {
	if _, exists := n.children[key]; !exists {
		n.order = append(n.order, key)
	}
	n.children[key] = item
}

// Child returns the direct child with the given key.
func (n *Node) Child(key string) (Item, bool) {
	item, ok := n.children[key]
	return item, ok
}

// Children returns the direct children in insertion order.
func (n *Node) Children() []Item {
	items := make([]Item, 0, len(n.order))
	for _, key := range n.order {
		items = append(items, n.children[key])
	}
	return items
}

// Descendants returns every item below the node, depth-first in insertion
// order. Scales are returned but their bracket components are not.
func (n *Node) Descendants() []Item {
	var items []Item
	for _, child := range n.Children() {
		items = append(items, child)
		if sub, ok := child.(*Node); ok {
			items = append(items, sub.Descendants()...)
		}
	}
	return items
}

// Clone returns a deep copy of the subtree rooted at n.
func (n *Node) Clone() *Node {
	c := NewNode(n.name)
	c.Description = n.Description
	c.Metadata = cloneMetadata(n.Metadata)
	for _, key := range n.order {
		switch item := n.children[key].(type) {
		case *Node:
			c.AddChild(key, item.Clone())
		case *Parameter:
			c.AddChild(key, item.clone())
		case *Scale:
			c.AddChild(key, item.clone())
		}
	}
	return c
}

// ToFloat converts a parameter value to float64.
func ToFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case bool:
		if x {
			return 1
		}
		return 0
	}
	return 0
}

func normalizeValue(v any) any {
	switch x := v.(type) {
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case float32:
		return float64(x)
	}
	return v
}

func cloneMetadata(m Metadata) Metadata {
	c := make(Metadata, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
