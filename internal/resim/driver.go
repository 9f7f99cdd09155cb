package resim

import (
	"context"
	"log/slog"

	"epinet/internal/logging"
	"epinet/internal/model"
	"epinet/internal/network"
	"epinet/internal/sampler"
	"epinet/internal/state"
)

// Driver advances one network at a time through the sampler. A Driver keeps
// per-run state when ReuseBasis is set and must not be shared across runs.
type Driver struct {
	sampler sampler.Simulator
	logger  *slog.Logger
	last    map[int]network.Representation
}

func NewDriver(sim sampler.Simulator, logger *slog.Logger) *Driver {
	return &Driver{
		sampler: sim,
		logger:  logging.OrDiscard(logger),
		last:    make(map[int]network.Representation),
	}
}

// TimeOffset is 0 only for temporal networks resimulated every step: the new
// slice then coincides with the step being simulated. Otherwise the slice is
// appended after the basis.
func TimeOffset(control model.Control) int {
	if control.Representation == model.RepresentationDynamic && control.ResimulateEachStep {
		return 0
	}
	return 1
}

// BuildRequest composes the sampler call that advances a network with params
// by nsteps slices ending the first one at step at. Basis is left unset.
func BuildRequest(control model.Control, params model.NetworkParams, at, nsteps int) sampler.Request {
	if nsteps < 1 {
		nsteps = 1
	}
	offset := TimeOffset(control)
	req := sampler.Request{
		Constraints: append([]string(nil), params.Constraints...),
		TimeStart:   at - offset,
		TimeOffset:  offset,
		TimeSlices:  nsteps,
		Output:      control.Representation,
	}
	if params.Dissolution.Durational() {
		req.Formula = sampler.Formula{
			Formation:   append([]string(nil), params.Formation.Terms...),
			Persistence: append([]string(nil), params.Dissolution.Terms...),
		}
		req.Coef = append(append([]float64(nil), params.Coef...), params.Dissolution.CoefAdj...)
	} else {
		zero := 0.0
		req.Formula = sampler.Formula{Formation: append([]string(nil), params.Formation.Terms...)}
		req.Coef = append([]float64(nil), params.Coef...)
		req.Control.DiscordanceFraction = &zero
	}
	if control.SaveStats && !control.ResimulateEachStep {
		req.Monitor = monitorTerms(params)
	}
	return req
}

func monitorTerms(params model.NetworkParams) []string {
	if params.Monitor.Len() > 0 {
		return append([]string(nil), params.Monitor.Terms...)
	}
	return append([]string(nil), params.Formation.Terms...)
}

// Advance simulates network i for nsteps slices starting at step at and
// commits the result. Sampler failures come back as *StepError.
func (d *Driver) Advance(ctx context.Context, c *state.Container, i, at, nsteps int) error {
	params, err := c.Params(i)
	if err != nil {
		return err
	}
	req := BuildRequest(c.Control(), params, at, nsteps)
	return d.run(ctx, c, i, at, req)
}

// Initial draws network i's starting cross-section at step 1 from the
// formation model alone, using the cross-sectional coefficients when set.
func (d *Driver) Initial(ctx context.Context, c *state.Container, i int) error {
	params, err := c.Params(i)
	if err != nil {
		return err
	}
	coef := params.Coef
	if len(params.CrossSectionalCoef) > 0 {
		coef = params.CrossSectionalCoef
	}
	zero := 0.0
	req := sampler.Request{
		Formula:     sampler.Formula{Formation: append([]string(nil), params.Formation.Terms...)},
		Coef:        append([]float64(nil), coef...),
		Constraints: append([]string(nil), params.Constraints...),
		TimeStart:   0,
		TimeOffset:  1,
		TimeSlices:  1,
		Control:     sampler.Control{DiscordanceFraction: &zero},
		Output:      c.Control().Representation,
	}
	return d.run(ctx, c, i, 1, req)
}

func (d *Driver) run(ctx context.Context, c *state.Container, i, at int, req sampler.Request) error {
	basis, err := d.basis(c, i)
	if err != nil {
		return err
	}
	req.Basis = basis
	req.Control.Parallel = 0

	res, err := d.sampler.Simulate(ctx, req)
	if err != nil {
		return &StepError{At: at, Network: i, Err: err}
	}
	for _, warning := range res.Warnings {
		d.logger.Log(ctx, logging.LevelTrace, "suppressed sampler warning",
			"at", at, "network", i+1, "sampler", d.sampler.Name(), "warning", warning)
	}
	if err := state.SetNetwork(c, i, res.Network); err != nil {
		return err
	}
	if c.Control().ReuseBasis {
		d.last[i] = res.Network
	}

	if len(req.Monitor) > 0 && res.Stats != nil {
		stats := res.Stats.Dedup()
		if err := c.AppendStats(i, model.StatsRecord{At: at, Names: stats.Names, Rows: stats.Rows}); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) basis(c *state.Container, i int) (network.Representation, error) {
	if c.Control().ReuseBasis {
		if prev, ok := d.last[i]; ok {
			return state.Refresh(c, i, prev)
		}
	}
	return state.GetNetwork(c, i)
}
