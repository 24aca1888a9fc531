package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownVariable is returned when a variable is not defined in a system.
	ErrUnknownVariable = errors.New("unknown variable")

	// ErrUnknownEntity is returned when an entity key is not defined.
	ErrUnknownEntity = errors.New("unknown entity")

	// ErrCycle is returned when variable formulas depend on each other cyclically.
	ErrCycle = errors.New("cyclic variable dependency")

	// ErrUnknownParameter is returned when a parameter path does not resolve.
	ErrUnknownParameter = errors.New("unknown parameter")
)

// LoadError describes a failure to load a parameter tree.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("load parameters: %v", e.Err)
	}
	return fmt.Sprintf("load parameters %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// CalculationError describes a failed variable calculation.
type CalculationError struct {
	Variable string
	Period   Period
	Err      error
}

func (e *CalculationError) Error() string {
	return fmt.Sprintf("calculate %s for %s: %v", e.Variable, e.Period, e.Err)
}

func (e *CalculationError) Unwrap() error {
	return e.Err
}
