package engine

import (
	"fmt"
	"sort"
	"strings"
)

// System is a configured rule system: a parameter tree, the entities it
// models and the variables it can compute.
//
// A System is not safe for concurrent mutation. Callers build a fresh system
// for every reform and patch it before creating simulations from it.
type System struct {
	Parameters *Node

	entities  []*Entity
	variables map[string]*Variable

	// abolished holds the definitions replaced by Neutralize.
	abolished map[string]*Variable
}

// NewSystem creates a system over the given parameter tree.
func NewSystem(parameters *Node, entities []*Entity, variables ...*Variable) *System {
	s := &System{
		Parameters: parameters,
		entities:   entities,
		variables:  make(map[string]*Variable, len(variables)),
		abolished:  make(map[string]*Variable),
	}
	for _, v := range variables {
		s.variables[v.Name] = v
	}
	return s
}

// GetVariable returns the named variable.
func (s *System) GetVariable(name string) (*Variable, error) {
	v, ok := s.variables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVariable, name)
	}
	return v, nil
}

// Variables returns all variables sorted by name.
func (s *System) Variables() []*Variable {
	vars := make([]*Variable, 0, len(s.variables))
	for _, v := range s.variables {
		vars = append(vars, v)
	}
	sort.Slice(vars, func(i, j int) bool { return vars[i].Name < vars[j].Name })
	return vars
}

// Entities returns the entities of the system in declaration order.
func (s *System) Entities() []*Entity {
	return s.entities
}

// Entity returns the entity with the given key.
func (s *System) Entity(key string) (*Entity, error) {
	for _, e := range s.entities {
		if e.Key == key {
			return e, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, key)
}

// PersonEntity returns the person entity of the system.
func (s *System) PersonEntity() *Entity {
	for _, e := range s.entities {
		if e.IsPerson {
			return e
		}
	}
	return nil
}

// Neutralize replaces the named variable with one that always evaluates to
// its default value. Neutralizing an already neutralized variable is a no-op.
func (s *System) Neutralize(name string) error {
	v, err := s.GetVariable(name)
	if err != nil {
		return err
	}
	if _, done := s.abolished[name]; done {
		return nil
	}
	s.abolished[name] = v
	s.variables[name] = v.neutralized()
	return nil
}

// Reinstate restores the definition a variable had before Neutralize.
// Reinstating a variable that is not neutralized is a no-op.
func (s *System) Reinstate(name string) error {
	if _, err := s.GetVariable(name); err != nil {
		return err
	}
	original, ok := s.abolished[name]
	if !ok {
		return nil
	}
	s.variables[name] = original
	delete(s.abolished, name)
	return nil
}

// IsNeutralized reports whether the named variable is currently neutralized.
func (s *System) IsNeutralized(name string) bool {
	_, ok := s.abolished[name]
	return ok
}

// Lookup resolves a dotted parameter path to a tree item.
func (s *System) Lookup(path string) (Item, error) {
	return s.Parameters.Lookup(path)
}

// Lookup resolves a dotted path relative to n.
func (n *Node) Lookup(path string) (Item, error) {
	var current Item = n
	for _, segment := range strings.Split(path, ".") {
		node, ok := current.(*Node)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownParameter, path)
		}
		child, ok := node.Child(segment)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownParameter, path)
		}
		current = child
	}
	return current, nil
}
