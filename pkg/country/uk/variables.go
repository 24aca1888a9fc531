package uk

import (
	"math"

	"taxlab-hq/ledger/pkg/engine"
)

const (
	person    = "person"
	household = "household"
	gbp       = "currency-GBP"
	weeks     = 52
)

func variables() []*engine.Variable {
	return []*engine.Variable{
		// Inputs.
		{Name: "age", Label: "Age", Entity: person, ValueType: engine.TypeInt, Unit: "year", Default: 40},
		{Name: "employment_income", Label: "Employment income", Entity: person, ValueType: engine.TypeFloat, Unit: gbp},
		{Name: "household_weight", Label: "Household weight", Entity: household, ValueType: engine.TypeFloat, Default: 1},
		{Name: "land_value", Label: "Land value", Entity: household, ValueType: engine.TypeFloat, Unit: gbp},

		// Demographics.
		{Name: "is_child", Label: "Is a child", Entity: person, ValueType: engine.TypeBool, Formula: isChild},
		{Name: "is_SP_age", Label: "Is State Pension age", Entity: person, ValueType: engine.TypeBool, Formula: isSPAge},
		{Name: "is_WA_adult", Label: "Is a working-age adult", Entity: person, ValueType: engine.TypeBool, Formula: isWAAdult},
		{Name: "person_count", Label: "Person", Entity: person, ValueType: engine.TypeInt, Formula: one},
		{Name: "person_weight", Label: "Person weight", Entity: person, ValueType: engine.TypeFloat, Formula: passThrough("household_weight")},
		{Name: "people", Label: "People", Description: "Number of people in the household", Entity: household, ValueType: engine.TypeInt, Formula: passThrough("person_count")},

		// Income tax.
		{Name: "personal_allowance", Label: "Personal allowance", Entity: person, ValueType: engine.TypeFloat, Unit: gbp, Formula: personalAllowance},
		{Name: "taxable_income", Label: "Taxable income", Entity: person, ValueType: engine.TypeFloat, Unit: gbp, Formula: taxableIncome},
		{Name: "income_tax", Label: "Income tax", Entity: person, ValueType: engine.TypeFloat, Unit: gbp, Formula: incomeTax},
		{Name: "national_insurance", Label: "National Insurance", Entity: person, ValueType: engine.TypeFloat, Unit: gbp, Formula: nationalInsurance},
		{Name: "tax", Label: "Tax", Entity: person, ValueType: engine.TypeFloat, Unit: gbp, Formula: sum("income_tax", "national_insurance")},

		// Benefits.
		{Name: "state_pension", Label: "State Pension", Entity: person, ValueType: engine.TypeFloat, Unit: gbp, Formula: statePension},
		{Name: "UBI", Label: "Basic income", Entity: person, ValueType: engine.TypeFloat, Unit: gbp, Formula: basicIncome},
		{Name: "benefits", Label: "Benefits", Entity: person, ValueType: engine.TypeFloat, Unit: gbp, Formula: sum("state_pension", "UBI")},
		{Name: "child_benefit", Label: "Child Benefit", Entity: household, ValueType: engine.TypeFloat, Unit: gbp, Formula: childBenefit},

		// Household totals.
		{Name: "LVT", Label: "Land value tax", Entity: household, ValueType: engine.TypeFloat, Unit: gbp, Formula: landValueTax},
		{Name: "household_tax", Label: "Household tax", Entity: household, ValueType: engine.TypeFloat, Unit: gbp, Formula: sum("tax", "LVT")},
		{Name: "household_benefits", Label: "Household benefits", Entity: household, ValueType: engine.TypeFloat, Unit: gbp, Formula: sum("benefits", "child_benefit")},
		{Name: "net_income", Label: "Net income", Entity: person, ValueType: engine.TypeFloat, Unit: gbp, Formula: netIncome},
		{Name: "household_net_income", Label: "Household net income", Entity: household, ValueType: engine.TypeFloat, Unit: gbp, Formula: householdNetIncome},
		{Name: "equivalisation_weight", Label: "Equivalisation weight", Entity: person, ValueType: engine.TypeFloat, Formula: equivalisationWeight},
		{Name: "household_equivalisation", Label: "Equivalisation factor", Description: "Modified OECD scale", Entity: household, ValueType: engine.TypeFloat, Formula: householdEquivalisation},
		{Name: "equiv_household_net_income", Label: "Equivalised household net income", Entity: household, ValueType: engine.TypeFloat, Unit: gbp, Formula: equivHouseholdNetIncome},
		{Name: "in_poverty", Label: "In absolute poverty", Entity: household, ValueType: engine.TypeBool, Formula: inPoverty(1)},
		{Name: "in_deep_poverty", Label: "In deep absolute poverty", Entity: household, ValueType: engine.TypeBool, Formula: inPoverty(0)},
	}
}

func indicator(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func one(c *engine.Context) []float64 {
	return c.Population().Fill(1)
}

// passThrough reads another variable mapped onto the calculating entity.
func passThrough(name string) engine.Formula {
	return func(c *engine.Context) []float64 {
		return c.Calc(name)
	}
}

// sum adds variables after mapping each onto the calculating entity.
func sum(names ...string) engine.Formula {
	return func(c *engine.Context) []float64 {
		out := c.Population().Fill(0)
		for _, name := range names {
			for i, v := range c.Calc(name) {
				out[i] += v
			}
		}
		return out
	}
}

func isChild(c *engine.Context) []float64 {
	age := c.Calc("age")
	out := make([]float64, len(age))
	for i, a := range age {
		out[i] = indicator(a < 18)
	}
	return out
}

func isSPAge(c *engine.Context) []float64 {
	age := c.Calc("age")
	threshold := c.Param("benefit.state_pension.age")
	out := make([]float64, len(age))
	for i, a := range age {
		out[i] = indicator(a >= threshold)
	}
	return out
}

func isWAAdult(c *engine.Context) []float64 {
	child := c.Calc("is_child")
	senior := c.Calc("is_SP_age")
	out := make([]float64, len(child))
	for i := range out {
		out[i] = indicator(child[i] == 0 && senior[i] == 0)
	}
	return out
}

func personalAllowance(c *engine.Context) []float64 {
	income := c.Calc("employment_income")
	allowance := c.Param("tax.income_tax.personal_allowance")
	taper := c.Param("tax.income_tax.allowance_taper")
	out := make([]float64, len(income))
	for i, x := range income {
		reduction := math.Max(0, x-taper) / 2
		out[i] = math.Max(0, allowance-reduction)
	}
	return out
}

func taxableIncome(c *engine.Context) []float64 {
	income := c.Calc("employment_income")
	allowance := c.Calc("personal_allowance")
	out := make([]float64, len(income))
	for i := range income {
		out[i] = math.Max(0, income[i]-allowance[i])
	}
	return out
}

func incomeTax(c *engine.Context) []float64 {
	taxable := c.Calc("taxable_income")
	basic := c.Param("tax.income_tax.rates.basic")
	higher := c.Param("tax.income_tax.rates.higher")
	additional := c.Param("tax.income_tax.rates.additional")
	higherFrom := c.Param("tax.income_tax.thresholds.higher")
	additionalFrom := math.Max(higherFrom, c.Param("tax.income_tax.thresholds.additional"))

	out := make([]float64, len(taxable))
	for i, t := range taxable {
		out[i] = basic*math.Min(t, higherFrom) +
			higher*math.Max(0, math.Min(t, additionalFrom)-higherFrom) +
			additional*math.Max(0, t-additionalFrom)
	}
	return out
}

func nationalInsurance(c *engine.Context) []float64 {
	earnings := c.Calc("employment_income")
	senior := c.Calc("is_SP_age")
	scale := c.Scale("tax.national_insurance.class_1")
	out := make([]float64, len(earnings))
	for i, e := range earnings {
		if senior[i] == 0 {
			out[i] = scale.MarginalRates(e, c.Instant())
		}
	}
	return out
}

func statePension(c *engine.Context) []float64 {
	senior := c.Calc("is_SP_age")
	amount := c.Param("benefit.state_pension.amount") * weeks
	out := make([]float64, len(senior))
	for i, s := range senior {
		out[i] = s * amount
	}
	return out
}

func basicIncome(c *engine.Context) []float64 {
	age := c.Calc("age")
	senior := c.Calc("is_SP_age")
	adultAge := c.Param("reforms.UBI_adult_age")
	child := c.Param("reforms.UBI.child")
	adult := c.Param("reforms.UBI.adult")
	old := c.Param("reforms.UBI.senior")

	out := make([]float64, len(age))
	for i, a := range age {
		switch {
		case senior[i] != 0:
			out[i] = old * weeks
		case a < adultAge:
			out[i] = child * weeks
		default:
			out[i] = adult * weeks
		}
	}
	return out
}

func childBenefit(c *engine.Context) []float64 {
	children := c.Calc("is_child")
	eldest := c.Param("benefit.child_benefit.eldest") * weeks
	additional := c.Param("benefit.child_benefit.additional") * weeks
	out := make([]float64, len(children))
	for i, n := range children {
		if n > 0 {
			out[i] = eldest + (n-1)*additional
		}
	}
	return out
}

func landValueTax(c *engine.Context) []float64 {
	land := c.Calc("land_value")
	rate := c.Param("reforms.LVT.rate")
	out := make([]float64, len(land))
	for i, v := range land {
		out[i] = rate * v
	}
	return out
}

func netIncome(c *engine.Context) []float64 {
	earnings := c.Calc("employment_income")
	benefits := c.Calc("benefits")
	tax := c.Calc("tax")
	out := make([]float64, len(earnings))
	for i := range out {
		out[i] = earnings[i] + benefits[i] - tax[i]
	}
	return out
}

func householdNetIncome(c *engine.Context) []float64 {
	earnings := c.Calc("employment_income")
	benefits := c.Calc("household_benefits")
	tax := c.Calc("household_tax")
	out := make([]float64, len(earnings))
	for i := range out {
		out[i] = earnings[i] + benefits[i] - tax[i]
	}
	return out
}

// equivalisationWeight gives each adult 0.5 and each child 0.3; the
// household adds 0.5 so the first adult counts 1.
func equivalisationWeight(c *engine.Context) []float64 {
	age := c.Calc("age")
	out := make([]float64, len(age))
	for i, a := range age {
		if a < 14 {
			out[i] = 0.3
		} else {
			out[i] = 0.5
		}
	}
	return out
}

func householdEquivalisation(c *engine.Context) []float64 {
	weights := c.Calc("equivalisation_weight")
	out := make([]float64, len(weights))
	for i, w := range weights {
		out[i] = 0.5 + w
	}
	return out
}

func equivHouseholdNetIncome(c *engine.Context) []float64 {
	net := c.Calc("household_net_income")
	factor := c.Calc("household_equivalisation")
	out := make([]float64, len(net))
	for i := range net {
		out[i] = net[i] / factor[i]
	}
	return out
}

// inPoverty compares equivalised income with the poverty line; deep poverty
// (depth 0) uses the line scaled by the deep poverty ratio.
func inPoverty(depth int) engine.Formula {
	return func(c *engine.Context) []float64 {
		income := c.Calc("equiv_household_net_income")
		line := c.Param("poverty.absolute_line")
		if depth == 0 {
			line *= c.Param("poverty.deep_ratio")
		}
		out := make([]float64, len(income))
		for i, x := range income {
			out[i] = indicator(x < line)
		}
		return out
	}
}
