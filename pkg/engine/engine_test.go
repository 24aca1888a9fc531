package engine

import (
	"errors"
	"math"
	"testing"
	"testing/fstest"
	"time"
)

const testTree = `
tax:
  description: Taxes
  rate:
    description: Flat rate
    metadata:
      unit: /1
      name: flat_rate
    values:
      2015-01-01: 0.2
      2022-01-01:
        value: 0.25
  bands:
    metadata:
      type: marginal_rate
    brackets:
      - threshold:
          2015-01-01: 0
        rate:
          2015-01-01: 0.1
      - threshold:
          2015-01-01: 100
        rate:
          values:
            2015-01-01: 0.5
      - threshold:
          2015-01-01: .inf
        rate:
          2015-01-01: 0.9
benefit:
  enabled:
    values:
      2015-01-01: true
`

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func mustLoad(t *testing.T) *Node {
	t.Helper()
	root, err := LoadParameters([]byte(testTree))
	if err != nil {
		t.Fatalf("LoadParameters() error = %v", err)
	}
	return root
}

func TestLoadParameters(t *testing.T) {
	root := mustLoad(t)

	children := root.Children()
	if len(children) != 2 || children[0].Name() != "tax" || children[1].Name() != "benefit" {
		t.Fatalf("unexpected top-level order: %v", children)
	}

	item, err := root.Lookup("tax.rate")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	rate, ok := item.(*Parameter)
	if !ok {
		t.Fatalf("tax.rate is %T, want *Parameter", item)
	}
	if got := rate.Float(date(2020, 6, 1)); got != 0.2 {
		t.Errorf("rate in 2020 = %v, want 0.2", got)
	}
	if got := rate.Float(date(2023, 1, 1)); got != 0.25 {
		t.Errorf("rate in 2023 = %v, want 0.25", got)
	}
	if rate.Meta().String("unit") != "/1" {
		t.Errorf("unit metadata = %q", rate.Meta().String("unit"))
	}

	item, err = root.Lookup("tax.bands")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	scale, ok := item.(*Scale)
	if !ok {
		t.Fatalf("tax.bands is %T, want *Scale", item)
	}
	if len(scale.Brackets) != 3 {
		t.Fatalf("brackets = %d, want 3", len(scale.Brackets))
	}
	threshold, _ := scale.Brackets[2].Component(ComponentThreshold)
	if !math.IsInf(threshold.Float(date(2020, 1, 1)), 1) {
		t.Errorf("top threshold = %v, want +Inf", threshold.Float(date(2020, 1, 1)))
	}
	if threshold.Name() != "tax.bands[2].threshold" {
		t.Errorf("component name = %q", threshold.Name())
	}

	item, _ = root.Lookup("benefit.enabled")
	if v := item.(*Parameter).At(date(2020, 1, 1)); v != true {
		t.Errorf("benefit.enabled = %v, want true", v)
	}
}

func TestLoadParametersErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad date", "a:\n  values:\n    not-a-date: 1\n"},
		{"scalar node", "a: 3\n"},
		{"brackets not list", "a:\n  brackets: 3\n"},
		{"invalid yaml", "a: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadParameters([]byte(tt.yaml))
			var loadErr *LoadError
			if !errors.As(err, &loadErr) {
				t.Fatalf("error = %v, want *LoadError", err)
			}
		})
	}
}

func TestLoadParameterDir(t *testing.T) {
	fsys := fstest.MapFS{
		"params/tax.yaml":     {Data: []byte("rate:\n  values:\n    2015-01-01: 0.2\n")},
		"params/benefit.yaml": {Data: []byte("amount:\n  values:\n    2015-01-01: 10\n")},
		"params/README.md":    {Data: []byte("ignored")},
	}
	root, err := LoadParameterDir(fsys, "params")
	if err != nil {
		t.Fatalf("LoadParameterDir() error = %v", err)
	}
	if len(root.Children()) != 2 {
		t.Fatalf("children = %d, want 2", len(root.Children()))
	}
	item, err := root.Lookup("tax.rate")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if item.Name() != "tax.rate" {
		t.Errorf("name = %q, want tax.rate", item.Name())
	}
}

func TestParameterUpdate(t *testing.T) {
	tests := []struct {
		name   string
		period Period
		value  any
		checks map[time.Time]float64
	}{
		{
			name:   "bounded period restores later value",
			period: Years(2018, 2),
			value:  0.3,
			checks: map[time.Time]float64{
				date(2017, 12, 31): 0.2,
				date(2018, 1, 1):   0.3,
				date(2019, 6, 1):   0.3,
				date(2020, 1, 1):   0.2,
				date(2023, 1, 1):   0.25,
			},
		},
		{
			name:   "period spanning existing change",
			period: Years(2021, 3),
			value:  0.4,
			checks: map[time.Time]float64{
				date(2020, 1, 1): 0.2,
				date(2022, 6, 1): 0.4,
				date(2024, 1, 1): 0.25,
			},
		},
		{
			name:   "open-ended period",
			period: From(date(2019, 1, 1)),
			value:  0.1,
			checks: map[time.Time]float64{
				date(2018, 1, 1): 0.2,
				date(2030, 1, 1): 0.1,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item, _ := mustLoad(t).Lookup("tax.rate")
			p := item.(*Parameter)
			p.Update(tt.period, tt.value)
			for instant, want := range tt.checks {
				if got := p.Float(instant); got != want {
					t.Errorf("value at %s = %v, want %v", instant.Format(DateLayout), got, want)
				}
			}

			starts, _ := p.History()
			p.Update(tt.period, tt.value)
			again, _ := p.History()
			if len(starts) != len(again) {
				t.Errorf("second update changed history length from %d to %d", len(starts), len(again))
			}
		})
	}
}

func TestScaleCalculations(t *testing.T) {
	item, _ := mustLoad(t).Lookup("tax.bands")
	scale := item.(*Scale)
	at := date(2020, 1, 1)

	tests := []struct {
		base float64
		want float64
	}{
		{0, 0},
		{50, 5},
		{100, 10},
		{200, 60},
	}
	for _, tt := range tests {
		if got := scale.MarginalRates(tt.base, at); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("MarginalRates(%v) = %v, want %v", tt.base, got, tt.want)
		}
	}
}

func TestNodeClone(t *testing.T) {
	root := mustLoad(t)
	clone := root.Clone()

	item, _ := clone.Lookup("tax.rate")
	item.(*Parameter).Update(From(date(2015, 1, 1)), 0.9)

	orig, _ := root.Lookup("tax.rate")
	if got := orig.(*Parameter).Float(date(2020, 1, 1)); got != 0.2 {
		t.Errorf("original mutated through clone: %v", got)
	}
}

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		in      string
		want    Period
		wantErr bool
	}{
		{in: "2021", want: Year(2021)},
		{in: "year:2015:20", want: Years(2015, 20)},
		{in: "year:2015", want: Year(2015)},
		{in: "2021-04-06", want: From(date(2021, 4, 6))},
		{in: "", wantErr: true},
		{in: "year:x", wantErr: true},
		{in: "06/04/2021", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePeriod(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePeriod(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && (!got.Start.Equal(tt.want.Start) || !got.Stop.Equal(tt.want.Stop)) {
				t.Errorf("ParsePeriod(%q) = %v, want %v", tt.in, got, tt.want)
			}
			if !tt.wantErr {
				round, err := ParsePeriod(got.String())
				if err != nil || !round.Start.Equal(got.Start) {
					t.Errorf("String() %q does not parse back", got.String())
				}
			}
		})
	}
}

func testSystem(t *testing.T) *System {
	t.Helper()
	entities := []*Entity{
		{Key: "person", Plural: "people", IsPerson: true},
		{Key: "household", Plural: "households"},
	}
	vars := []*Variable{
		{Name: "income", Entity: "person", ValueType: TypeFloat},
		{
			Name: "tax", Entity: "person", ValueType: TypeFloat,
			Formula: func(c *Context) []float64 {
				income := c.Calc("income")
				rate := c.Param("tax.rate")
				out := make([]float64, len(income))
				for i, v := range income {
					out[i] = v * rate
				}
				return out
			},
		},
		{
			Name: "net", Entity: "household", ValueType: TypeFloat,
			Formula: func(c *Context) []float64 {
				income := c.Calc("income")
				tax := c.Calc("tax")
				out := make([]float64, len(income))
				for i := range income {
					out[i] = income[i] - tax[i]
				}
				return out
			},
		},
		{
			Name: "loop_a", Entity: "person",
			Formula: func(c *Context) []float64 { return c.Calc("loop_b") },
		},
		{
			Name: "loop_b", Entity: "person",
			Formula: func(c *Context) []float64 { return c.Calc("loop_a") },
		},
	}
	return NewSystem(mustLoad(t), entities, vars...)
}

func testData() *Data {
	return &Data{
		Year:            2020,
		PersonHousehold: []int{0, 0, 1},
		Households:      2,
		Inputs:          map[string][]float64{"income": {100, 50, 200}},
	}
}

func TestSimulationCalculate(t *testing.T) {
	sim, err := NewSimulation(testSystem(t), testData())
	if err != nil {
		t.Fatalf("NewSimulation() error = %v", err)
	}

	net, err := sim.Calculate("net", Year(2020))
	if err != nil {
		t.Fatalf("Calculate() error = %v", err)
	}
	want := []float64{120, 160}
	for i := range want {
		if math.Abs(net[i]-want[i]) > 1e-9 {
			t.Errorf("net[%d] = %v, want %v", i, net[i], want[i])
		}
	}

	perPerson, err := sim.CalculateAs("net", "person", Year(2020))
	if err != nil {
		t.Fatalf("CalculateAs() error = %v", err)
	}
	if len(perPerson) != 3 || perPerson[1] != net[0] {
		t.Errorf("projected net = %v", perPerson)
	}

	_, err = sim.Calculate("loop_a", Year(2020))
	if !errors.Is(err, ErrCycle) {
		t.Errorf("cyclic calculation error = %v, want ErrCycle", err)
	}

	_, err = sim.Calculate("missing", Year(2020))
	if !errors.Is(err, ErrUnknownVariable) {
		t.Errorf("unknown variable error = %v, want ErrUnknownVariable", err)
	}
}

func TestNeutralizeReinstate(t *testing.T) {
	system := testSystem(t)

	if err := system.Neutralize("tax"); err != nil {
		t.Fatalf("Neutralize() error = %v", err)
	}
	if err := system.Neutralize("tax"); err != nil {
		t.Fatalf("second Neutralize() error = %v", err)
	}
	sim, _ := NewSimulation(system, testData())
	tax, _ := sim.Calculate("tax", Year(2020))
	for i, v := range tax {
		if v != 0 {
			t.Errorf("neutralized tax[%d] = %v, want 0", i, v)
		}
	}

	if err := system.Reinstate("tax"); err != nil {
		t.Fatalf("Reinstate() error = %v", err)
	}
	if system.IsNeutralized("tax") {
		t.Error("tax still neutralized after Reinstate")
	}
	sim, _ = NewSimulation(system, testData())
	tax, _ = sim.Calculate("tax", Year(2020))
	if tax[0] != 20 {
		t.Errorf("reinstated tax[0] = %v, want 20", tax[0])
	}

	if err := system.Neutralize("missing"); !errors.Is(err, ErrUnknownVariable) {
		t.Errorf("Neutralize(missing) error = %v", err)
	}
}

func TestDecileRanks(t *testing.T) {
	values := make([]float64, 20)
	for i := range values {
		values[i] = float64(20 - i)
	}
	ranks := DecileRanks(values, nil)
	counts := make(map[int]int)
	for _, r := range ranks {
		counts[r]++
	}
	for d := 1; d <= 10; d++ {
		if counts[d] != 2 {
			t.Errorf("decile %d has %d members, want 2", d, counts[d])
		}
	}
	if ranks[0] != 10 || ranks[19] != 1 {
		t.Errorf("ranks[0]=%d ranks[19]=%d, want 10 and 1", ranks[0], ranks[19])
	}

	sums := GroupSum([]float64{1, 2, 3}, []float64{2, 1, 1}, []int{0, 1, 1}, 2)
	if sums[0] != 2 || sums[1] != 5 {
		t.Errorf("GroupSum = %v, want [2 5]", sums)
	}
	if got := WeightedMean([]float64{1, 3}, []float64{1, 3}); got != 2.5 {
		t.Errorf("WeightedMean = %v, want 2.5", got)
	}
}
