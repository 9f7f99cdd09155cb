// Package sim runs whole simulations: demographic modules and network
// resimulation stepped over time, one container per replicate.
package sim

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"

	"epinet/internal/logging"
	"epinet/internal/model"
	"epinet/internal/network"
	"epinet/internal/resim"
	"epinet/internal/sampler"
	"epinet/internal/state"
)

// Module changes population state once per step, before the networks are
// resimulated for that step.
type Module interface {
	Name() string
	Step(ctx context.Context, c *state.Container, at int) error
}

// ModuleFactory builds an independent module instance for one replicate.
type ModuleFactory func(seed int64) (Module, error)

type Spec struct {
	Control  model.Control
	Networks []model.NetworkParams
	// Attrs seeds the node attribute table; all vectors share one length.
	Attrs map[string][]int
	// Initial optionally holds the starting edges of each network, as
	// taken from a prior fit. Networks flagged EdApprox are redrawn anyway.
	Initial    [][]network.Edge
	Sampler    string
	Modules    []ModuleFactory
	Hook       resim.Hook
	Seed       int64
	Replicates int
	Workers    int
}

func (s Spec) Validate() error {
	if len(s.Networks) == 0 {
		return fmt.Errorf("at least one network is required")
	}
	if err := s.Control.Validate(len(s.Networks)); err != nil {
		return err
	}
	for _, p := range s.Networks {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	if len(s.Initial) > len(s.Networks) {
		return fmt.Errorf("initial edges given for %d networks, run has %d", len(s.Initial), len(s.Networks))
	}
	if s.Sampler == "" {
		return fmt.Errorf("sampler is required")
	}
	if s.Replicates < 0 {
		return fmt.Errorf("replicates must be >= 0")
	}
	return nil
}

type RunResult struct {
	Replicate   int
	Seed        int64
	Modules     []string
	Diagnostics []model.StepDiagnostics
	Container   *state.Container
}

type Runner struct {
	spec   Spec
	logger *slog.Logger
}

func NewRunner(spec Spec, logger *slog.Logger) (*Runner, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if spec.Replicates == 0 {
		spec.Replicates = 1
	}
	if spec.Workers <= 0 {
		spec.Workers = 1
	}
	return &Runner{spec: spec, logger: logging.OrDiscard(logger)}, nil
}

// Run executes replicate from step 1 to Control.NumSteps. The replicate
// seeds its sampler with Seed+replicate; module seeds derive from it.
func (r *Runner) Run(ctx context.Context, replicate int) (RunResult, error) {
	seed := r.spec.Seed + int64(replicate)
	logger := r.logger.With("replicate", replicate, "seed", seed)

	c, err := state.New(r.spec.Control, r.spec.Networks, r.spec.Attrs)
	if err != nil {
		return RunResult{}, err
	}
	for i, edges := range r.spec.Initial {
		if err := seedNetwork(c, i, edges); err != nil {
			return RunResult{}, err
		}
	}

	sim, err := sampler.New(r.spec.Sampler, seed)
	if err != nil {
		return RunResult{}, err
	}
	seeds := rand.New(rand.NewSource(seed))
	modules := make([]Module, 0, len(r.spec.Modules))
	names := make([]string, 0, len(r.spec.Modules))
	for _, factory := range r.spec.Modules {
		m, err := factory(seeds.Int63())
		if err != nil {
			return RunResult{}, err
		}
		modules = append(modules, m)
		names = append(names, m.Name())
	}

	ctl := resim.NewController(resim.NewDriver(sim, logger), r.spec.Hook, logger)
	logger.Info("run started", "steps", r.spec.Control.NumSteps, "networks", len(r.spec.Networks), "nodes", c.NumNodes())

	if err := ctl.Init(ctx, c); err != nil {
		return RunResult{}, fmt.Errorf("init: %w", err)
	}
	diagnostics := make([]model.StepDiagnostics, 0, r.spec.Control.NumSteps*c.NumNetworks())
	initial, err := Summarize(c, 1, false)
	if err != nil {
		return RunResult{}, err
	}
	diagnostics = append(diagnostics, initial...)

	for at := 2; at <= r.spec.Control.NumSteps; at++ {
		if err := ctx.Err(); err != nil {
			return RunResult{}, err
		}
		for _, m := range modules {
			if err := m.Step(ctx, c, at); err != nil {
				return RunResult{}, fmt.Errorf("module %s at step %d: %w", m.Name(), at, err)
			}
		}
		active, err := resim.AnyActive(c)
		if err != nil {
			return RunResult{}, err
		}
		if err := ctl.Step(ctx, c, at); err != nil {
			return RunResult{}, err
		}
		step, err := Summarize(c, at, active && r.spec.Control.ResimulateEachStep)
		if err != nil {
			return RunResult{}, err
		}
		diagnostics = append(diagnostics, step...)
	}

	logger.Info("run finished", "nodes", c.NumNodes())
	return RunResult{Replicate: replicate, Seed: seed, Modules: names, Diagnostics: diagnostics, Container: c}, nil
}

func seedNetwork(c *state.Container, i int, edges []network.Edge) error {
	if len(edges) == 0 {
		return nil
	}
	rep, err := state.GetNetwork(c, i)
	if err != nil {
		return err
	}
	var seeded network.Representation
	if rep.Kind() == model.RepresentationDynamic {
		seeded = network.DynamicFromEdges(c.NumNodes(), edges, rep.NodeAttrs(), 1)
	} else {
		seeded = network.NewEdgeList(c.NumNodes(), edges, rep.NodeAttrs(), network.NetworkAttrs{Time: 1})
	}
	return state.SetNetwork(c, i, seeded)
}

// Summarize reports one diagnostics row per network for step at.
func Summarize(c *state.Container, at int, resimulated bool) ([]model.StepDiagnostics, error) {
	active, activeG2, err := c.ActiveCounts()
	if err != nil {
		return nil, err
	}

	out := make([]model.StepDiagnostics, 0, c.NumNetworks())
	for i := 0; i < c.NumNetworks(); i++ {
		rep, err := state.GetNetwork(c, i)
		if err != nil {
			return nil, err
		}
		params, err := c.Params(i)
		if err != nil {
			return nil, err
		}
		g := rep.Collapse(at)
		out = append(out, model.StepDiagnostics{
			At:          at,
			Network:     i,
			Active:      active,
			ActiveG2:    activeG2,
			Edges:       g.Edges().Len(),
			MeanDegree:  network.MeanDegree(g),
			BaseCoef:    params.Coef[0],
			Resimulated: resimulated,
		})
	}
	return out, nil
}
