package uk

import (
	"context"
	"math"
	"testing"
	"time"

	"taxlab-hq/ledger/pkg/catalog"
	"taxlab-hq/ledger/pkg/country"
	"taxlab-hq/ledger/pkg/engine"
	"taxlab-hq/ledger/pkg/patch"
)

var _ country.Country = (*UK)(nil)

func newUK(t *testing.T) *UK {
	t.Helper()
	u, err := New(country.Config{Households: 200, Seed: 7})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return u
}

func single(age, earnings float64) *engine.Data {
	return &engine.Data{
		Year:            2023,
		PersonHousehold: []int{0},
		Households:      1,
		Inputs: map[string][]float64{
			"age":               {age},
			"employment_income": {earnings},
		},
	}
}

func simulate(t *testing.T, u *UK, data *engine.Data, patches ...patch.Patch) *engine.Simulation {
	t.Helper()
	system, err := u.NewSystem()
	if err != nil {
		t.Fatal(err)
	}
	if err := patch.Apply(patch.Concat(u.DefaultPatches(), patches), system); err != nil {
		t.Fatal(err)
	}
	sim, err := engine.NewSimulation(system, data)
	if err != nil {
		t.Fatal(err)
	}
	return sim
}

func calc(t *testing.T, sim *engine.Simulation, name string) []float64 {
	t.Helper()
	values, err := sim.Calculate(name, engine.Year(2023))
	if err != nil {
		t.Fatalf("Calculate(%s) error = %v", name, err)
	}
	return values
}

func TestHouseholdCalculation(t *testing.T) {
	u := newUK(t)

	tests := []struct {
		name     string
		age      float64
		earnings float64
		variable string
		want     float64
	}{
		{"basic rate taxpayer income tax", 40, 30000, "income_tax", 0.2 * (30000 - 12570)},
		{"basic rate taxpayer NI", 40, 30000, "national_insurance", 0.12 * (30000 - 12570)},
		{"net income", 40, 30000, "household_net_income", 30000 - 0.32*(30000-12570)},
		{"allowance fully tapered", 40, 130000, "personal_allowance", 0},
		{"pensioner gets state pension", 70, 0, "state_pension", 179.6 * 52},
		{"pensioner pays no NI", 70, 20000, "national_insurance", 0},
		{"no basic income by default", 40, 0, "UBI", 0},
		{"no income is poverty", 40, 0, "in_poverty", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim := simulate(t, u, single(tt.age, tt.earnings))
			got := calc(t, sim, tt.variable)[0]
			if math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("%s = %v, want %v", tt.variable, got, tt.want)
			}
		})
	}
}

func TestChildBenefitAndAbolition(t *testing.T) {
	u := newUK(t)
	data := &engine.Data{
		Year:            2023,
		PersonHousehold: []int{0, 0, 0},
		Households:      1,
		Inputs: map[string][]float64{
			"age": {35, 6, 3},
		},
	}

	sim := simulate(t, u, data)
	want := (21.15 + 14.0) * 52
	if got := calc(t, sim, "child_benefit")[0]; math.Abs(got-want) > 1e-6 {
		t.Errorf("child_benefit = %v, want %v", got, want)
	}
	if got := calc(t, sim, "household_equivalisation")[0]; math.Abs(got-1.6) > 1e-9 {
		t.Errorf("household_equivalisation = %v, want 1.6", got)
	}

	abolished := simulate(t, u, data, patch.AbolitionToggle{Variables: []string{"child_benefit"}, Enabled: true})
	if got := calc(t, abolished, "child_benefit")[0]; got != 0 {
		t.Errorf("abolished child_benefit = %v, want 0", got)
	}
}

func TestDefaultPatchesEnableBasicIncome(t *testing.T) {
	u := newUK(t)
	window := engine.Years(2013, 20)
	set := patch.ParametricSet{Path: "reforms.UBI.adult", Value: 100.0, Period: window}

	bare, err := u.NewSystem()
	if err != nil {
		t.Fatal(err)
	}
	if err := set.Apply(bare); err != nil {
		t.Fatal(err)
	}
	sim, err := engine.NewSimulation(bare, single(40, 0))
	if err != nil {
		t.Fatal(err)
	}
	if got := calc(t, sim, "UBI")[0]; got != 0 {
		t.Errorf("UBI without default patches = %v, want 0", got)
	}

	reformed := simulate(t, u, single(40, 0), set)
	if got := calc(t, reformed, "UBI")[0]; got != 5200 {
		t.Errorf("UBI = %v, want 5200", got)
	}
}

func TestNewSystemIsIndependent(t *testing.T) {
	u := newUK(t)
	a, _ := u.NewSystem()
	b, _ := u.NewSystem()

	set := patch.ParametricSet{Path: "tax.income_tax.rates.basic", Value: 0.3, Period: engine.Years(2013, 20)}
	if err := set.Apply(a); err != nil {
		t.Fatal(err)
	}
	p, err := patch.ResolveParameter(b, "tax.income_tax.rates.basic")
	if err != nil {
		t.Fatal(err)
	}
	if got := p.Float(time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)); got != 0.2 {
		t.Errorf("second system basic rate = %v, want 0.2", got)
	}
}

func TestCatalog(t *testing.T) {
	u := newUK(t)
	system, _ := u.NewSystem()
	c := catalog.Build(system, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC))

	tests := []struct {
		name string
		kind catalog.Kind
		path string
	}{
		{"basic_rate", catalog.KindParametric, "tax.income_tax.rates.basic"},
		{"personal_allowance", catalog.KindParametric, "tax.income_tax.personal_allowance"},
		{"ni_class_1_2_rate", catalog.KindScaleComponent, "tax.national_insurance.class_1[1].rate"},
		{"ni_class_1_3_threshold", catalog.KindScaleComponent, "tax.national_insurance.class_1[2].threshold"},
		{"abolish_CB", catalog.KindAbolition, "benefit.child_benefit.abolish"},
		{"UBI_adult", catalog.KindParametric, "reforms.UBI.adult"},
	}
	for _, tt := range tests {
		l, ok := c.Lookup(tt.name)
		if !ok {
			t.Errorf("lever %s missing", tt.name)
			continue
		}
		if l.Kind != tt.kind || l.Path != tt.path {
			t.Errorf("%s = (%s, %s), want (%s, %s)", tt.name, l.Kind, l.Path, tt.kind, tt.path)
		}
	}

	if _, ok := c.Lookup("reforms_policy_date"); ok {
		t.Error("hidden policy date should not be a lever")
	}
}

func TestSynthesize(t *testing.T) {
	a := Synthesize(2022, 300, 42)
	b := Synthesize(2022, 300, 42)
	c := Synthesize(2022, 300, 43)

	if a.Households != 300 || len(a.Inputs["household_weight"]) != 300 {
		t.Fatalf("households = %d", a.Households)
	}
	if len(a.Inputs["age"]) != a.People() || len(a.Inputs["employment_income"]) != a.People() {
		t.Fatal("person arrays do not match membership")
	}
	for i := range a.PersonHousehold {
		if a.PersonHousehold[i] != b.PersonHousehold[i] || a.Inputs["employment_income"][i] != b.Inputs["employment_income"][i] {
			t.Fatal("same seed produced different data")
		}
	}
	if a.People() == c.People() && a.Inputs["employment_income"][0] == c.Inputs["employment_income"][0] {
		t.Error("different seeds produced identical data")
	}

	total := 0.0
	for _, w := range a.Inputs["household_weight"] {
		total += w
	}
	if total < population*0.8 || total > population*1.2 {
		t.Errorf("weights sum to %v, want about %v", total, population)
	}
}

func TestFetchHonoursContext(t *testing.T) {
	u := newUK(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := u.Fetch(ctx, 2022); err == nil {
		t.Error("Fetch() with cancelled context should fail")
	}
	data, err := u.Fetch(context.Background(), 2022)
	if err != nil || data.Households != 200 {
		t.Errorf("Fetch() = %v, %v", data, err)
	}
}

func TestNewRejectsMissingParametersDir(t *testing.T) {
	if _, err := New(country.Config{ParametersDir: t.TempDir() + "/missing"}); err == nil {
		t.Error("New() should reject a missing parameters directory")
	}
}
