package uk

import (
	"math"
	"math/rand/v2"

	"taxlab-hq/ledger/pkg/engine"
)

// population is the number of UK households the sample weights sum to.
const population = 28_000_000

// Synthesize generates a reproducible household sample for year. The same
// year, size and seed always produce the same data.
func Synthesize(year, households int, seed uint64) *engine.Data {
	rng := rand.New(rand.NewPCG(seed, uint64(year)))
	data := &engine.Data{
		Year:       year,
		Households: households,
		Inputs: map[string][]float64{
			"household_weight": make([]float64, households),
			"land_value":       make([]float64, households),
		},
	}
	var ages, earnings []float64

	for h := range households {
		adults := 1 + rng.IntN(2)
		children := 0
		if rng.Float64() < 0.35 {
			children = 1 + rng.IntN(3)
		}

		head := 18 + rng.IntN(72)
		for a := range adults {
			age := head
			if a > 0 {
				age = max(18, head+rng.IntN(11)-5)
			}
			ages = append(ages, float64(age))
			earnings = append(earnings, earningsFor(rng, age))
			data.PersonHousehold = append(data.PersonHousehold, h)
		}
		for range children {
			ages = append(ages, float64(rng.IntN(18)))
			earnings = append(earnings, 0)
			data.PersonHousehold = append(data.PersonHousehold, h)
		}

		data.Inputs["household_weight"][h] = population / float64(households) * (0.5 + rng.Float64())
		data.Inputs["land_value"][h] = math.Round(math.Exp(11.5 + 0.7*rng.NormFloat64()))
	}

	data.Inputs["age"] = ages
	data.Inputs["employment_income"] = earnings
	return data
}

// earningsFor draws annual employment income: log-normal for those in work,
// with employment falling off after 60.
func earningsFor(rng *rand.Rand, age int) float64 {
	employment := 0.8
	if age >= 60 {
		employment = 0.3
	}
	if age >= 67 {
		employment = 0.05
	}
	if rng.Float64() > employment {
		return 0
	}
	return math.Round(math.Exp(10.2 + 0.65*rng.NormFloat64()))
}
