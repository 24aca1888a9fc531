package decompose

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"

	"taxlab-hq/ledger/pkg/engine"
	"taxlab-hq/ledger/pkg/patch"
	"taxlab-hq/ledger/pkg/reform"
)

const testTree = `
tax:
  rate:
    values:
      2015-01-01: 0.2
benefit:
  amount:
    values:
      2015-01-01: 100
`

var period = engine.Year(2022)

func newSystem() *engine.System {
	root, err := engine.LoadParameters([]byte(testTree))
	if err != nil {
		panic(err)
	}
	entities := []*engine.Entity{{Key: "person", IsPerson: true}, {Key: "household"}}
	return engine.NewSystem(root, entities,
		&engine.Variable{Name: "income", Entity: "person"},
		&engine.Variable{Name: "weight", Entity: "household", Default: 1},
		&engine.Variable{Name: "benefit", Entity: "person", Formula: func(c *engine.Context) []float64 {
			return c.Population().Fill(c.Param("benefit.amount"))
		}},
		&engine.Variable{Name: "net", Entity: "household", Formula: func(c *engine.Context) []float64 {
			income := c.Calc("income")
			benefit := c.Calc("benefit")
			rate := c.Param("tax.rate")
			out := make([]float64, len(income))
			for i := range income {
				out[i] = income[i]*(1-rate) + benefit[i]
			}
			return out
		}},
	)
}

func testData() *engine.Data {
	n := 40
	d := &engine.Data{
		Year:            2022,
		PersonHousehold: make([]int, n),
		Households:      n / 2,
		Inputs: map[string][]float64{
			"income": make([]float64, n),
			"weight": make([]float64, n/2),
		},
	}
	for i := range n {
		d.PersonHousehold[i] = i / 2
		d.Inputs["income"][i] = float64(1000 * (i + 1))
	}
	for h := range n / 2 {
		d.Inputs["weight"][h] = float64(1 + h%3)
	}
	return d
}

func simulate(patches []patch.Patch) (*engine.Simulation, error) {
	s := newSystem()
	if err := patch.Apply(patches, s); err != nil {
		return nil, err
	}
	return engine.NewSimulation(s, testData())
}

func testConfig() Config {
	return Config{
		Variables: Variables{
			NetIncome:         "net",
			EquivalisedIncome: "net",
			Weight:            "weight",
			Person:            "person",
			Household:         "household",
		},
		Period: period,
	}
}

func testProvisions() []reform.Provision {
	window := engine.Years(2012, 20)
	return []reform.Provision{
		{Name: "rate", Label: "Raise tax", Patch: patch.ParametricSet{Path: "tax.rate", Value: 0.25, Period: window}},
		{Name: "amount", Label: "Raise benefit", Patch: patch.ParametricSet{Path: "benefit.amount", Value: 300.0, Period: window}},
		{Name: "abolish", Label: "Abolish benefit", Patch: patch.AbolitionToggle{Variables: []string{"benefit"}, Enabled: true}},
		{Name: "cut", Label: "Cut tax", Patch: patch.ParametricSet{Path: "tax.rate", Value: 0.1, Period: window}},
	}
}

func run(t *testing.T, parallelism int, provisions []reform.Provision) (*Result, *engine.Simulation, *engine.Simulation, int32) {
	t.Helper()
	var builds atomic.Int32
	factory := func(_ context.Context, patches []patch.Patch) (*engine.Simulation, error) {
		builds.Add(1)
		return simulate(patches)
	}

	baselinePatches := []patch.Patch{patch.FreezeParameters{Date: period.Start}}
	reformPatches := append([]patch.Patch{}, baselinePatches...)
	for _, p := range provisions {
		reformPatches = append(reformPatches, p.Patch)
	}
	baseline, err := simulate(baselinePatches)
	if err != nil {
		t.Fatal(err)
	}
	reformed, err := simulate(reformPatches)
	if err != nil {
		t.Fatal(err)
	}

	cfg := testConfig()
	cfg.Parallelism = parallelism
	d, err := New(cfg, factory)
	if err != nil {
		t.Fatal(err)
	}
	result, err := d.Decompose(context.Background(), provisions, baselinePatches, baseline, reformed)
	if err != nil {
		t.Fatalf("Decompose() error = %v", err)
	}
	return result, baseline, reformed, builds.Load()
}

func TestDecomposeAdditivity(t *testing.T) {
	for _, parallelism := range []int{1, 4} {
		result, baseline, reformed, builds := run(t, parallelism, testProvisions())

		if int(builds) != len(testProvisions())-1 {
			t.Errorf("factory builds = %d, want %d (final step reuses the reform)", builds, len(testProvisions())-1)
		}

		cfg := testConfig()
		base, err := (&Decomposer{config: cfg}).baseline(baseline)
		if err != nil {
			t.Fatal(err)
		}
		direct, err := (&Decomposer{config: cfg}).measure(reformed, base)
		if err != nil {
			t.Fatal(err)
		}

		var summed [Deciles]float64
		for _, p := range result.Provisions {
			for d := range Deciles {
				summed[d] += p.Gain[d]
			}
		}
		for d := range Deciles {
			if math.Abs(summed[d]-direct.gain[d]) > 1e-6 {
				t.Errorf("parallelism %d decile %d: summed %v, direct %v", parallelism, d+1, summed[d], direct.gain[d])
			}
		}

		cumulative := result.CumulativeSpending()
		if math.Abs(cumulative[len(cumulative)-1]-direct.spending) > 1e-6 {
			t.Errorf("final cumulative spending %v, direct %v", cumulative[len(cumulative)-1], direct.spending)
		}

		total := 0.0
		for _, s := range result.Spending() {
			total += s
		}
		if math.Abs(total-direct.spending) > 1e-6 {
			t.Errorf("summed spending %v, direct %v", total, direct.spending)
		}
	}
}

func TestDecomposeRanksAndSigns(t *testing.T) {
	result, _, _, _ := run(t, 1, testProvisions())

	want := []int{0, 1, -1, 2}
	got := result.Ranks()
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ranks = %v, want %v", got, want)
			break
		}
	}

	spending := result.Spending()
	if spending[0] >= 0 {
		t.Errorf("tax rise spending = %v, want negative", spending[0])
	}
	if spending[1] <= 0 {
		t.Errorf("benefit rise spending = %v, want positive", spending[1])
	}
	if spending[2] >= 0 {
		t.Errorf("abolition spending = %v, want negative", spending[2])
	}

	for _, p := range result.Provisions {
		for d := range Deciles {
			if p.Gain[d] != 0 && p.Relative[d] == 0 {
				t.Errorf("%s decile %d has gain but no relative change", p.Name, d+1)
			}
		}
	}
}

func TestDecomposeEmpty(t *testing.T) {
	d, _ := New(testConfig(), func(context.Context, []patch.Patch) (*engine.Simulation, error) {
		t.Fatal("factory called for empty decomposition")
		return nil, nil
	})
	result, err := d.Decompose(context.Background(), nil, nil, nil, nil)
	if err != nil || len(result.Provisions) != 0 {
		t.Errorf("Decompose(nil) = %v, %v", result, err)
	}
}

func TestDecomposeFactoryError(t *testing.T) {
	boom := errors.New("boom")
	d, _ := New(testConfig(), func(context.Context, []patch.Patch) (*engine.Simulation, error) {
		return nil, boom
	})
	baseline, _ := simulate(nil)
	_, err := d.Decompose(context.Background(), testProvisions(), nil, baseline, baseline)
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want factory error", err)
	}
}

func TestNewRequiresFactory(t *testing.T) {
	if _, err := New(testConfig(), nil); err == nil {
		t.Error("New(nil factory) should fail")
	}
}

func TestCompareMatchesDecomposition(t *testing.T) {
	result, baseline, reformed, _ := run(t, 1, testProvisions())

	d, err := New(testConfig(), func(context.Context, []patch.Patch) (*engine.Simulation, error) {
		t.Fatal("Compare must not build simulations")
		return nil, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	impact, err := d.Compare(baseline, reformed)
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}

	cumulative := result.CumulativeSpending()
	if math.Abs(impact.Spending-cumulative[len(cumulative)-1]) > 1e-6 {
		t.Errorf("Spending = %v, want %v", impact.Spending, cumulative[len(cumulative)-1])
	}
	for dec := range Deciles {
		summed := 0.0
		for _, p := range result.Provisions {
			summed += p.Gain[dec]
		}
		if math.Abs(impact.Gain[dec]-summed) > 1e-6 {
			t.Errorf("decile %d gain = %v, want %v", dec+1, impact.Gain[dec], summed)
		}
	}
	if impact.Rank != 0 {
		t.Errorf("Rank = %d, want 0", impact.Rank)
	}
}
