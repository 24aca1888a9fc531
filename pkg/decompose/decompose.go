package decompose

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"taxlab-hq/ledger/pkg/engine"
	"taxlab-hq/ledger/pkg/patch"
	"taxlab-hq/ledger/pkg/reform"
)

// Deciles is the number of income groups impacts are reported for.
const Deciles = 10

// SimulationFactory builds a simulation of a fresh system with patches applied.
type SimulationFactory func(ctx context.Context, patches []patch.Patch) (*engine.Simulation, error)

// Variables names the quantities a decomposition reads.
type Variables struct {
	// NetIncome is the household net income variable.
	NetIncome string

	// EquivalisedIncome ranks people into deciles.
	EquivalisedIncome string

	// Weight is the household weight variable.
	Weight string

	Person    string
	Household string
}

// Config configures a Decomposer.
type Config struct {
	Variables Variables
	Period    engine.Period

	// Parallelism bounds the number of steps simulated at once. Values
	// below 1 run steps one at a time.
	Parallelism int

	// OnStep, if set, is called after each simulated step.
	OnStep func(elapsed time.Duration)
}

// ProvisionImpact is one provision's marginal contribution.
type ProvisionImpact struct {
	Name  string `json:"name"`
	Label string `json:"label"`

	// Rank orders provisions for display: the first is 0, later ones move
	// away from zero in the sign of their summed gain.
	Rank int `json:"rank"`

	Spending           float64 `json:"spending"`
	CumulativeSpending float64 `json:"cumulative_spending"`

	// Gain is the weighted net income change per decile, Relative divides it
	// by the decile's baseline income and Average by its population.
	Gain     [Deciles]float64 `json:"gain"`
	Relative [Deciles]float64 `json:"relative"`
	Average  [Deciles]float64 `json:"average"`
}

// Result is the decomposition of one reform.
type Result struct {
	Provisions []ProvisionImpact `json:"provisions"`
}

// Spending returns per-provision spending in provision order.
func (r *Result) Spending() []float64 {
	out := make([]float64, len(r.Provisions))
	for i, p := range r.Provisions {
		out[i] = p.Spending
	}
	return out
}

// CumulativeSpending returns cumulative spending after each provision.
func (r *Result) CumulativeSpending() []float64 {
	out := make([]float64, len(r.Provisions))
	for i, p := range r.Provisions {
		out[i] = p.CumulativeSpending
	}
	return out
}

// Ranks returns the signed rank of each provision.
func (r *Result) Ranks() []int {
	out := make([]int, len(r.Provisions))
	for i, p := range r.Provisions {
		out[i] = p.Rank
	}
	return out
}

// Decomposer attributes a reform's impact to its provisions.
type Decomposer struct {
	config  Config
	factory SimulationFactory
}

// New creates a decomposer that builds intermediate simulations with factory.
func New(config Config, factory SimulationFactory) (*Decomposer, error) {
	if factory == nil {
		return nil, errors.New("decompose: simulation factory is required")
	}
	if config.Parallelism < 1 {
		config.Parallelism = 1
	}
	return &Decomposer{config: config, factory: factory}, nil
}

// baselineView holds the baseline quantities every step is compared with.
type baselineView struct {
	householdNet     []float64
	householdWeights []float64
	personNet        []float64
	personWeights    []float64
	ranks            []int
	income           [Deciles]float64
	population       [Deciles]float64
}

type step struct {
	spending float64
	gain     [Deciles]float64
}

// Decompose replays the reform one provision at a time on top of
// baselinePatches. Step k simulates the first k provisions; the final step
// reuses reformSim. Per-decile gains are differenced against the running
// total of earlier steps so each provision reports only its own effect.
func (d *Decomposer) Decompose(ctx context.Context, provisions []reform.Provision, baselinePatches []patch.Patch, baselineSim, reformSim *engine.Simulation) (*Result, error) {
	if len(provisions) == 0 {
		return &Result{Provisions: []ProvisionImpact{}}, nil
	}

	base, err := d.baseline(baselineSim)
	if err != nil {
		return nil, fmt.Errorf("decompose: baseline: %w", err)
	}

	steps := make([]step, len(provisions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.config.Parallelism)

	for k := 1; k <= len(provisions); k++ {
		g.Go(func() error {
			start := time.Now()
			sim := reformSim
			var err error
			if k < len(provisions) {
				patches := make([]patch.Patch, 0, len(baselinePatches)+k)
				patches = append(patches, baselinePatches...)
				for _, p := range provisions[:k] {
					patches = append(patches, p.Patch)
				}
				if err := gctx.Err(); err != nil {
					return err
				}
				sim, err = d.factory(gctx, patches)
				if err != nil {
					return fmt.Errorf("decompose: step %d (%s): %w", k, provisions[k-1].Name, err)
				}
			}
			s, err := d.measure(sim, base)
			if err != nil {
				return fmt.Errorf("decompose: step %d (%s): %w", k, provisions[k-1].Name, err)
			}
			steps[k-1] = s
			if d.config.OnStep != nil {
				d.config.OnStep(time.Since(start))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return assemble(provisions, steps, base), nil
}

// Compare measures reformSim against baselineSim in a single step, as if
// the whole reform were one provision. It builds no simulations.
func (d *Decomposer) Compare(baselineSim, reformSim *engine.Simulation) (*ProvisionImpact, error) {
	base, err := d.baseline(baselineSim)
	if err != nil {
		return nil, fmt.Errorf("decompose: baseline: %w", err)
	}
	s, err := d.measure(reformSim, base)
	if err != nil {
		return nil, fmt.Errorf("decompose: reform: %w", err)
	}
	impact := assemble([]reform.Provision{{Name: "reform", Label: "Reform"}}, []step{s}, base).Provisions[0]
	return &impact, nil
}

func assemble(provisions []reform.Provision, steps []step, base *baselineView) *Result {
	result := &Result{Provisions: make([]ProvisionImpact, len(provisions))}

	var previous [Deciles]float64
	maxRank, minRank := 0, 0
	for i, p := range provisions {
		impact := ProvisionImpact{
			Name:               p.Name,
			Label:              p.Label,
			CumulativeSpending: steps[i].spending,
			Spending:           steps[i].spending,
		}
		if i > 0 {
			impact.Spending -= steps[i-1].spending
		}

		total := 0.0
		for dec := range Deciles {
			gain := steps[i].gain[dec] - previous[dec]
			previous[dec] += gain
			total += gain

			impact.Gain[dec] = gain
			if base.income[dec] != 0 {
				impact.Relative[dec] = gain / base.income[dec]
			}
			if base.population[dec] != 0 {
				impact.Average[dec] = gain / base.population[dec]
			}
		}

		if i > 0 {
			if total > 0 {
				maxRank++
				impact.Rank = maxRank
			} else {
				minRank--
				impact.Rank = minRank
			}
		}
		result.Provisions[i] = impact
	}
	return result
}

func (d *Decomposer) baseline(sim *engine.Simulation) (*baselineView, error) {
	v := d.config.Variables
	var err error
	base := &baselineView{}

	if base.householdNet, err = sim.Calculate(v.NetIncome, d.config.Period); err != nil {
		return nil, err
	}
	if base.householdWeights, err = sim.Calculate(v.Weight, d.config.Period); err != nil {
		return nil, err
	}
	if base.personNet, err = sim.CalculateAs(v.NetIncome, v.Person, d.config.Period); err != nil {
		return nil, err
	}
	if base.personWeights, err = sim.CalculateAs(v.Weight, v.Person, d.config.Period); err != nil {
		return nil, err
	}
	equiv, err := sim.CalculateAs(v.EquivalisedIncome, v.Person, d.config.Period)
	if err != nil {
		return nil, err
	}

	base.ranks = groupIndex(engine.DecileRanks(equiv, base.personWeights))
	income := engine.GroupSum(base.personNet, base.personWeights, base.ranks, Deciles)
	ones := make([]float64, len(base.personNet))
	for i := range ones {
		ones[i] = 1
	}
	population := engine.GroupSum(ones, base.personWeights, base.ranks, Deciles)
	copy(base.income[:], income)
	copy(base.population[:], population)
	return base, nil
}

func (d *Decomposer) measure(sim *engine.Simulation, base *baselineView) (step, error) {
	v := d.config.Variables
	var s step

	net, err := sim.Calculate(v.NetIncome, d.config.Period)
	if err != nil {
		return s, err
	}
	s.spending = Spending(net, base.householdNet, base.householdWeights)

	personNet, err := sim.CalculateAs(v.NetIncome, v.Person, d.config.Period)
	if err != nil {
		return s, err
	}
	gain := make([]float64, len(personNet))
	for i := range personNet {
		gain[i] = personNet[i] - base.personNet[i]
	}
	copy(s.gain[:], engine.GroupSum(gain, base.personWeights, base.ranks, Deciles))
	return s, nil
}

// Spending is the weighted aggregate change in household net income.
// A negative value means the reform raises revenue.
func Spending(reformNet, baselineNet, weights []float64) float64 {
	return engine.WeightedSum(reformNet, weights) - engine.WeightedSum(baselineNet, weights)
}

// groupIndex converts 1-based decile ranks to 0-based group indices.
func groupIndex(ranks []int) []int {
	out := make([]int, len(ranks))
	for i, r := range ranks {
		out[i] = r - 1
	}
	return out
}
