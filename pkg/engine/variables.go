package engine

// ValueType is the storage type of a variable.
type ValueType string

const (
	TypeFloat ValueType = "float"
	TypeInt   ValueType = "int"
	TypeBool  ValueType = "bool"
)

// Formula computes a variable for every member of its entity. Formulas read
// other variables and parameters through the context; errors raised there
// are recorded on the context and abort the calculation.
type Formula func(c *Context) []float64

// Variable is a computable quantity defined for one entity.
type Variable struct {
	Name        string
	Label       string
	Description string
	Entity      string
	ValueType   ValueType
	Unit        string

	// Default is used for members with no input and for neutralized variables.
	Default float64

	// Formula is nil for pure input variables.
	Formula Formula
}

// IsInput reports whether the variable has no formula.
func (v *Variable) IsInput() bool {
	return v.Formula == nil
}

// neutralized returns a copy of v that always evaluates to its default.
func (v *Variable) neutralized() *Variable {
	c := *v
	c.Formula = func(ctx *Context) []float64 {
		return ctx.Population().Fill(v.Default)
	}
	return &c
}

// Entity is a kind of population member.
type Entity struct {
	Key         string
	Plural      string
	Label       string
	Description string

	// IsPerson marks the entity whose members are individual people.
	// Every other entity groups people.
	IsPerson bool
}
