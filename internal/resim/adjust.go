package resim

import (
	"fmt"
	"math"

	"epinet/internal/state"
)

// SingleGroupAdjustment is the shift of the base formation coefficient that
// keeps mean degree constant when the active population moves from old to now.
func SingleGroupAdjustment(old, now int) float64 {
	return math.Log(float64(old)) - math.Log(float64(now))
}

// TwoGroupAdjustment scales with the harmonic mean of the two group sizes,
// which is what bounds cross-group edge potential.
func TwoGroupAdjustment(oldG1, oldG2, nowG1, nowG2 int) float64 {
	return math.Log(harmonicPotential(oldG1, oldG2)) - math.Log(harmonicPotential(nowG1, nowG2))
}

func harmonicPotential(g1, g2 int) float64 {
	return 2 * float64(g1) * float64(g2) / float64(g1+g2)
}

// countActive returns the active counts of the run and whether it is a
// two-group run, as configured in its control.
func countActive(c *state.Container) (state.RunScope, bool, error) {
	g1, g2, err := c.ActiveCounts()
	if err != nil {
		return state.RunScope{}, false, err
	}
	return state.RunScope{Num: g1, NumG2: g2, Set: true}, c.Control().NumGroups() == 2, nil
}

// AnyActive reports whether resimulation can proceed: the population is
// non-empty, or for two-group runs both groups have active members.
func AnyActive(c *state.Container) (bool, error) {
	scope, twoGroup, err := countActive(c)
	if err != nil {
		return false, err
	}
	if twoGroup {
		return scope.Num > 0 && scope.NumG2 > 0, nil
	}
	return scope.Num > 0, nil
}

// Adjust shifts the base formation coefficient of every network for step at
// and caches the counts it used. Before step 2 it only records the baseline.
// Empty current populations are not guarded; callers gate on AnyActive.
func Adjust(c *state.Container, at int) (float64, error) {
	now, twoGroup, err := countActive(c)
	if err != nil {
		return 0, err
	}
	if at < 2 {
		c.SetScope(now)
		return 0, nil
	}
	prev := c.Scope()
	if !prev.Set {
		return 0, fmt.Errorf("adjust at step %d: %w", at, ErrMissingBaseline)
	}
	// An empty baseline group has no finite adjustment; the current counts
	// become the new baseline.
	if prev.Num == 0 || (twoGroup && prev.NumG2 == 0) {
		c.SetScope(now)
		return 0, nil
	}

	var delta float64
	if twoGroup {
		delta = TwoGroupAdjustment(prev.Num, prev.NumG2, now.Num, now.NumG2)
	} else {
		delta = SingleGroupAdjustment(prev.Num, now.Num)
	}
	c.ShiftFormationBase(delta)
	c.SetScope(now)
	return delta, nil
}
