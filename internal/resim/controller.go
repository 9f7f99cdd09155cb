// Package resim drives per-step network resimulation: it keeps mean degree
// stable under population turnover, calls the sampler with the right time
// bookkeeping and records the cumulative edge history.
package resim

import (
	"context"
	"log/slog"

	"epinet/internal/logging"
	"epinet/internal/state"
)

// PreLoop is the network index a Hook receives for the call made once per
// step before any network is resimulated.
const PreLoop = -1

// Hook runs around each network update. network is PreLoop or a 0-based
// network index.
type Hook func(ctx context.Context, c *state.Container, at, network int) error

type Controller struct {
	driver *Driver
	hook   Hook
	logger *slog.Logger
}

// NewController wires a driver and an optional hook. A nil hook is a no-op.
func NewController(driver *Driver, hook Hook, logger *slog.Logger) *Controller {
	return &Controller{driver: driver, hook: hook, logger: logging.OrDiscard(logger)}
}

// Init prepares a freshly built container at step 1: it records the baseline
// population, draws the initial cross-section of every network flagged for
// it, and for runs that are not resimulated each step draws the whole
// remaining horizon in one batch.
func (ctl *Controller) Init(ctx context.Context, c *state.Container) error {
	c.SetAt(1)
	if _, err := Adjust(c, 1); err != nil {
		return err
	}
	control := c.Control()
	for i := 0; i < c.NumNetworks(); i++ {
		params, err := c.Params(i)
		if err != nil {
			return err
		}
		if !params.EdApprox {
			continue
		}
		if err := ctl.driver.Initial(ctx, c, i); err != nil {
			return err
		}
	}
	if !control.ResimulateEachStep && control.NumSteps > 1 {
		for i := 0; i < c.NumNetworks(); i++ {
			if err := ctl.driver.Advance(ctx, c, i, 2, control.NumSteps-1); err != nil {
				return err
			}
		}
		ctl.logger.Debug("batch simulated run horizon", "networks", c.NumNetworks(), "steps", control.NumSteps)
	}
	return ctl.recordCumulative(c, 1)
}

// Step resimulates every network for step at when the run asks for it and
// the population allows it, then records the step's edges. Inactivity is not
// an error: the networks are left untouched for the step.
func (ctl *Controller) Step(ctx context.Context, c *state.Container, at int) error {
	c.SetAt(at)
	active, err := AnyActive(c)
	if err != nil {
		return err
	}

	switch {
	case !c.Control().ResimulateEachStep:
	case !active:
		ctl.logger.Debug("skipping resimulation, no active population", "at", at)
	default:
		if _, err := Adjust(c, at); err != nil {
			return err
		}
		if err := ctl.callHook(ctx, c, at, PreLoop); err != nil {
			return err
		}
		for i := 0; i < c.NumNetworks(); i++ {
			if err := ctl.driver.Advance(ctx, c, i, at, 1); err != nil {
				return err
			}
			if err := ctl.callHook(ctx, c, at, i); err != nil {
				return err
			}
		}
	}
	return ctl.recordCumulative(c, at)
}

func (ctl *Controller) callHook(ctx context.Context, c *state.Container, at, network int) error {
	if ctl.hook == nil {
		return nil
	}
	return ctl.hook(ctx, c, at, network)
}

func (ctl *Controller) recordCumulative(c *state.Container, at int) error {
	for i := 0; i < c.NumNetworks(); i++ {
		edges, err := c.Edges(i, at)
		if err != nil {
			return err
		}
		if err := c.AppendCumulative(i, edges, at); err != nil {
			return err
		}
	}
	return nil
}
