package api

import (
	"context"
	"log/slog"
	"math"

	"taxlab-hq/ledger/pkg/decompose"
	"taxlab-hq/ledger/pkg/engine"
)

func (r *Runtime) validateReform(ctx context.Context, p *Payload) error {
	_, err := r.Compile(ctx, p)
	return err
}

// PopulationImpact is the society-wide effect of a reform.
type PopulationImpact struct {
	BudgetaryImpact    float64 `json:"budgetary_impact"`
	BudgetaryImpactStr string  `json:"budgetary_impact_str"`
	PovertyChange      float64 `json:"poverty_change"`
	DeepPovertyChange  float64 `json:"deep_poverty_change"`
	WinnerShare        float64 `json:"winner_share"`
	LoserShare         float64 `json:"loser_share"`

	RelativeDecileImpact [decompose.Deciles]float64 `json:"relative_decile_impact"`
	AverageDecileImpact  [decompose.Deciles]float64 `json:"average_decile_impact"`

	PolicyDate string `json:"policy_date"`
}

// PopulationReform simulates the reform over the population microdata.
func (r *Runtime) PopulationReform(ctx context.Context, p *Payload, logger *slog.Logger) (any, error) {
	bundle, err := r.Compile(ctx, p)
	if err != nil {
		return nil, err
	}
	baseline, reformed, err := r.Simulations(ctx, bundle)
	if err != nil {
		return nil, err
	}

	res := r.results
	c := &calculator{period: r.period}
	weights := c.calc(baseline, res.HouseholdWeight)
	baseNet := c.calc(baseline, res.HouseholdNetIncome)
	reformNet := c.calc(reformed, res.HouseholdNetIncome)

	personWeights := c.calcAs(baseline, res.HouseholdWeight, res.Person)
	basePersonNet := c.calcAs(baseline, res.HouseholdNetIncome, res.Person)
	reformPersonNet := c.calcAs(reformed, res.HouseholdNetIncome, res.Person)

	basePoverty := c.calcAs(baseline, res.InPoverty, res.Person)
	reformPoverty := c.calcAs(reformed, res.InPoverty, res.Person)
	baseDeep := c.calcAs(baseline, res.InDeepPoverty, res.Person)
	reformDeep := c.calcAs(reformed, res.InDeepPoverty, res.Person)
	if c.err != nil {
		return nil, c.err
	}

	spending := decompose.Spending(reformNet, baseNet, weights)
	out := &PopulationImpact{
		BudgetaryImpact:    spending,
		BudgetaryImpactStr: money(res.Currency, spending),
		PovertyChange: pctChange(
			engine.WeightedMean(basePoverty, personWeights),
			engine.WeightedMean(reformPoverty, personWeights),
		),
		DeepPovertyChange: pctChange(
			engine.WeightedMean(baseDeep, personWeights),
			engine.WeightedMean(reformDeep, personWeights),
		),
		PolicyDate: bundle.PolicyDate.Format(engine.DateLayout),
	}

	winners := make([]float64, len(basePersonNet))
	losers := make([]float64, len(basePersonNet))
	for i := range basePersonNet {
		gain := reformPersonNet[i] - basePersonNet[i]
		if gain > 0 {
			winners[i] = 1
		} else if gain < 0 {
			losers[i] = 1
		}
	}
	out.WinnerShare = engine.WeightedMean(winners, personWeights)
	out.LoserShare = engine.WeightedMean(losers, personWeights)

	impact, err := r.decomposer.Compare(baseline, reformed)
	if err != nil {
		return nil, err
	}
	out.RelativeDecileImpact = impact.Relative
	out.AverageDecileImpact = impact.Average

	logger.InfoContext(ctx, "population reform computed",
		"provisions", len(bundle.Provisions),
		"budgetary_impact", spending,
	)
	return out, nil
}

// ProvisionBreakdown is one provision's row of a breakdown.
type ProvisionBreakdown struct {
	Name     string                     `json:"name"`
	Label    string                     `json:"label"`
	Rank     int                        `json:"rank"`
	Colour   string                     `json:"colour"`
	Spending float64                    `json:"spending"`
	Gain     [decompose.Deciles]float64 `json:"gain"`
	Relative [decompose.Deciles]float64 `json:"relative"`
	Average  [decompose.Deciles]float64 `json:"average"`
}

// Breakdown is the decomposition of a reform into its provisions. Spending
// figures are in billions.
type Breakdown struct {
	Provisions         []string             `json:"provisions"`
	Spending           []float64            `json:"spending"`
	CumulativeSpending []float64            `json:"cumulative_spending"`
	Breakdown          []ProvisionBreakdown `json:"breakdown"`
	PolicyDate         string               `json:"policy_date"`
}

// PopulationBreakdown attributes the reform's impact to each provision in
// the order given.
func (r *Runtime) PopulationBreakdown(ctx context.Context, p *Payload, logger *slog.Logger) (any, error) {
	bundle, err := r.Compile(ctx, p)
	if err != nil {
		return nil, err
	}
	baseline, reformed, err := r.Simulations(ctx, bundle)
	if err != nil {
		return nil, err
	}
	result, err := r.Decompose(ctx, bundle, baseline, reformed)
	if err != nil {
		return nil, err
	}

	ranks := result.Ranks()
	out := &Breakdown{
		Provisions:         make([]string, len(result.Provisions)),
		Spending:           billions(result.Spending()),
		CumulativeSpending: billions(result.CumulativeSpending()),
		Breakdown:          make([]ProvisionBreakdown, len(result.Provisions)),
		PolicyDate:         bundle.PolicyDate.Format(engine.DateLayout),
	}
	for i, prov := range result.Provisions {
		out.Provisions[i] = prov.Label
		out.Breakdown[i] = ProvisionBreakdown{
			Name:     prov.Name,
			Label:    prov.Label,
			Rank:     prov.Rank,
			Colour:   colour(prov.Rank, ranks),
			Spending: out.Spending[i],
			Gain:     prov.Gain,
			Relative: prov.Relative,
			Average:  prov.Average,
		}
	}
	logger.InfoContext(ctx, "population breakdown computed", "provisions", len(result.Provisions))
	return out, nil
}

// UBI returns the flat per-person payment the reform's net revenue would
// fund, or zero if the reform costs money.
func (r *Runtime) UBI(ctx context.Context, p *Payload, logger *slog.Logger) (any, error) {
	bundle, err := r.Compile(ctx, p)
	if err != nil {
		return nil, err
	}
	baseline, reformed, err := r.Simulations(ctx, bundle)
	if err != nil {
		return nil, err
	}

	res := r.results
	c := &calculator{period: r.period}
	weights := c.calc(baseline, res.HouseholdWeight)
	baseNet := c.calc(baseline, res.HouseholdNetIncome)
	reformNet := c.calc(reformed, res.HouseholdNetIncome)
	people := c.calc(baseline, res.People)
	if c.err != nil {
		return nil, c.err
	}

	revenue := -decompose.Spending(reformNet, baseNet, weights)
	population := engine.WeightedSum(people, weights)
	amount := 0.0
	if population > 0 {
		amount = math.Max(0, revenue/population)
	}
	logger.DebugContext(ctx, "ubi computed", "revenue", revenue, "amount", amount)
	return map[string]float64{"UBI": amount}, nil
}

// calculator reads several results, keeping the first error.
type calculator struct {
	period engine.Period
	err    error
}

func (c *calculator) calc(sim *engine.Simulation, name string) []float64 {
	if c.err != nil {
		return nil
	}
	values, err := sim.Calculate(name, c.period)
	c.err = err
	return values
}

func (c *calculator) calcAs(sim *engine.Simulation, name, entity string) []float64 {
	if c.err != nil {
		return nil
	}
	values, err := sim.CalculateAs(name, entity, c.period)
	c.err = err
	return values
}

func billions(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = round(v/1e9, 2)
	}
	return out
}
