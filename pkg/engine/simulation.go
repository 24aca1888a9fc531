package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Data is the tabular input of a simulation: one array per input variable,
// sized to the variable's entity.
type Data struct {
	Year int

	// PersonHousehold maps each person to the index of their household.
	PersonHousehold []int

	// Households is the number of households.
	Households int

	// Inputs holds input arrays keyed by variable name.
	Inputs map[string][]float64
}

// People returns the number of people in the data.
func (d *Data) People() int {
	return len(d.PersonHousehold)
}

// Simulation evaluates variables of a system over a population.
// Results are memoised per variable and period. A Simulation is safe for
// concurrent use.
type Simulation struct {
	system *System
	data   *Data

	mu    sync.Mutex
	cache map[string][]float64
}

// NewSimulation creates a simulation of system over data. The system must
// not be mutated after the simulation is created.
func NewSimulation(system *System, data *Data) (*Simulation, error) {
	if system.PersonEntity() == nil {
		return nil, fmt.Errorf("%w: system has no person entity", ErrUnknownEntity)
	}
	for i, h := range data.PersonHousehold {
		if h < 0 || h >= data.Households {
			return nil, fmt.Errorf("person %d references household %d of %d", i, h, data.Households)
		}
	}
	return &Simulation{
		system: system,
		data:   data,
		cache:  make(map[string][]float64),
	}, nil
}

// System returns the rule system the simulation evaluates.
func (s *Simulation) System() *System {
	return s.system
}

// Data returns the simulation input data.
func (s *Simulation) Data() *Data {
	return s.data
}

// Calculate returns the values of a variable for every member of its entity.
// The returned slice must not be modified.
func (s *Simulation) Calculate(name string, period Period) ([]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calculate(name, period, make(map[string]bool))
}

// CalculateAs returns a variable mapped onto another entity: person values
// are summed per household, household values are projected onto members.
func (s *Simulation) CalculateAs(name, entity string, period Period) ([]float64, error) {
	values, err := s.Calculate(name, period)
	if err != nil {
		return nil, err
	}
	v, err := s.system.GetVariable(name)
	if err != nil {
		return nil, err
	}
	return s.convert(values, v.Entity, entity)
}

// Population returns the population of the given entity.
func (s *Simulation) Population(entity string) (*Population, error) {
	e, err := s.system.Entity(entity)
	if err != nil {
		return nil, err
	}
	return s.population(e), nil
}

func (s *Simulation) population(e *Entity) *Population {
	p := &Population{entity: e, households: s.data.Households, members: s.data.PersonHousehold}
	if e.IsPerson {
		p.count = s.data.People()
	} else {
		p.count = s.data.Households
	}
	return p
}

func (s *Simulation) convert(values []float64, from, to string) ([]float64, error) {
	if from == to {
		return values, nil
	}
	src, err := s.system.Entity(from)
	if err != nil {
		return nil, err
	}
	if _, err := s.system.Entity(to); err != nil {
		return nil, err
	}
	people := s.population(s.system.PersonEntity())
	if src.IsPerson {
		return people.Sum(values), nil
	}
	return people.Project(values), nil
}

func (s *Simulation) calculate(name string, period Period, stack map[string]bool) ([]float64, error) {
	key := name + "@" + period.String()
	if cached, ok := s.cache[key]; ok {
		return cached, nil
	}

	v, err := s.system.GetVariable(name)
	if err != nil {
		return nil, err
	}
	if stack[name] {
		return nil, &CalculationError{Variable: name, Period: period, Err: ErrCycle}
	}
	entity, err := s.system.Entity(v.Entity)
	if err != nil {
		return nil, &CalculationError{Variable: name, Period: period, Err: err}
	}
	pop := s.population(entity)

	var values []float64
	switch {
	case v.IsInput() || (!s.system.IsNeutralized(name) && s.data.Inputs[name] != nil):
		values = s.input(v, pop)
	default:
		stack[name] = true
		ctx := &Context{sim: s, variable: v, period: period, population: pop, stack: stack}
		values = v.Formula(ctx)
		delete(stack, name)
		if ctx.err != nil {
			return nil, ctx.err
		}
		if len(values) != pop.Count() {
			return nil, &CalculationError{
				Variable: name,
				Period:   period,
				Err:      fmt.Errorf("formula returned %d values for %d members", len(values), pop.Count()),
			}
		}
	}

	s.cache[key] = values
	return values, nil
}

func (s *Simulation) input(v *Variable, pop *Population) []float64 {
	if in := s.data.Inputs[v.Name]; len(in) == pop.Count() {
		return in
	}
	return pop.Fill(v.Default)
}

// Context is handed to formulas during a calculation.
type Context struct {
	sim        *Simulation
	variable   *Variable
	period     Period
	population *Population
	stack      map[string]bool
	err        error
}

// Period returns the period being calculated.
func (c *Context) Period() Period {
	return c.period
}

// Instant returns the instant parameters are read at.
func (c *Context) Instant() time.Time {
	return c.period.Start
}

// Population returns the population of the variable being calculated.
func (c *Context) Population() *Population {
	return c.population
}

// Calc returns another variable for the same period, mapped onto the entity
// of the variable being calculated.
func (c *Context) Calc(name string) []float64 {
	if c.err != nil {
		return c.population.Fill(0)
	}
	values, err := c.sim.calculate(name, c.period, c.stack)
	if err != nil {
		c.fail(err)
		return c.population.Fill(0)
	}
	dep, _ := c.sim.system.GetVariable(name)
	values, err = c.sim.convert(values, dep.Entity, c.variable.Entity)
	if err != nil {
		c.fail(err)
		return c.population.Fill(0)
	}
	return values
}

// Param returns the value of a parameter at the calculation instant.
func (c *Context) Param(path string) float64 {
	item, err := c.sim.system.Lookup(path)
	if err != nil {
		c.fail(err)
		return 0
	}
	p, ok := item.(*Parameter)
	if !ok {
		c.fail(fmt.Errorf("%w: %s is not a parameter", ErrUnknownParameter, path))
		return 0
	}
	return p.Float(c.Instant())
}

// Scale returns the scale at path.
func (c *Context) Scale(path string) *Scale {
	item, err := c.sim.system.Lookup(path)
	if err == nil {
		if s, ok := item.(*Scale); ok {
			return s
		}
		err = fmt.Errorf("%w: %s is not a scale", ErrUnknownParameter, path)
	}
	c.fail(err)
	return NewScale(path)
}

// Err returns the first error recorded during the calculation.
func (c *Context) Err() error {
	return c.err
}

func (c *Context) fail(err error) {
	if c.err != nil {
		return
	}
	var calcErr *CalculationError
	if !errors.As(err, &calcErr) {
		err = &CalculationError{Variable: c.variable.Name, Period: c.period, Err: err}
	}
	c.err = err
}

// Population is the set of members of one entity in a simulation.
type Population struct {
	entity     *Entity
	count      int
	households int
	members    []int
}

// Entity returns the entity of the population.
func (p *Population) Entity() *Entity {
	return p.entity
}

// Count returns the number of members.
func (p *Population) Count() int {
	return p.count
}

// Fill returns a member array holding value for every member.
func (p *Population) Fill(value float64) []float64 {
	out := make([]float64, p.count)
	if value != 0 {
		for i := range out {
			out[i] = value
		}
	}
	return out
}

// Sum adds person-level values up to their households.
func (p *Population) Sum(personValues []float64) []float64 {
	out := make([]float64, p.households)
	for i, h := range p.members {
		if i < len(personValues) {
			out[h] += personValues[i]
		}
	}
	return out
}

// Project copies household-level values onto each household member.
func (p *Population) Project(householdValues []float64) []float64 {
	out := make([]float64, len(p.members))
	for i, h := range p.members {
		if h < len(householdValues) {
			out[i] = householdValues[h]
		}
	}
	return out
}

// Any reports, per household, whether any member has a non-zero value.
func (p *Population) Any(personValues []float64) []float64 {
	out := make([]float64, p.households)
	for i, h := range p.members {
		if i < len(personValues) && personValues[i] != 0 {
			out[h] = 1
		}
	}
	return out
}
