// Package demography holds population modules that change who is active
// between network resimulations.
package demography

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"

	"epinet/internal/state"

	"gonum.org/v1/gonum/stat/distuv"
)

// Node attributes maintained by Turnover.
const (
	AttrActive    = "active"
	AttrGroup     = "group"
	AttrEntryTime = "entry_time"
	AttrExitTime  = "exit_time"
)

type TurnoverConfig struct {
	// DepartureRate is the per-step probability an active node leaves.
	DepartureRate float64 `json:"departure_rate" yaml:"departure_rate"`
	// ArrivalRate scales the expected arrivals by the group's active count.
	ArrivalRate float64 `json:"arrival_rate" yaml:"arrival_rate"`
	// ArrivalRateG2 overrides ArrivalRate for nodes in group 2 when set.
	ArrivalRateG2 *float64 `json:"arrival_rate_g2,omitempty" yaml:"arrival_rate_g2,omitempty"`
}

func (c TurnoverConfig) Validate() error {
	if c.DepartureRate < 0 || c.DepartureRate > 1 {
		return fmt.Errorf("departure rate must be in [0, 1]")
	}
	if c.ArrivalRate < 0 {
		return fmt.Errorf("arrival rate must be >= 0")
	}
	if c.ArrivalRateG2 != nil && *c.ArrivalRateG2 < 0 {
		return fmt.Errorf("group 2 arrival rate must be >= 0")
	}
	return nil
}

// Turnover removes active nodes at a fixed rate and adds Poisson arrivals in
// proportion to each group's active size. Departed nodes keep their ids.
type Turnover struct {
	cfg TurnoverConfig
	rng *rand.Rand
}

func NewTurnover(cfg TurnoverConfig, seed int64) (*Turnover, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Turnover{cfg: cfg, rng: rand.New(rand.NewPCG(uint64(seed), 0x9e3779b97f4a7c15))}, nil
}

func (t *Turnover) Name() string { return "turnover" }

func (t *Turnover) Step(ctx context.Context, c *state.Container, at int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n := c.NumNodes()
	active, ok := c.Attr(AttrActive)
	if !ok {
		active = make([]int, n)
		for v := range active {
			active[v] = 1
		}
	}
	group, hasGroup := c.Attr(AttrGroup)
	exit := attrOrZero(c, AttrExitTime, n)

	counts := make(map[int]int)
	for v := 0; v < n; v++ {
		if active[v] != 1 {
			continue
		}
		g := 1
		if hasGroup {
			g = group[v]
		}
		counts[g]++
		if t.cfg.DepartureRate > 0 && t.rng.Float64() < t.cfg.DepartureRate {
			active[v] = 0
			exit[v] = at
		}
	}
	if err := c.SetAttr(AttrActive, active); err != nil {
		return err
	}
	if err := c.SetAttr(AttrExitTime, exit); err != nil {
		return err
	}

	groups := make([]int, 0, len(counts))
	for g := range counts {
		groups = append(groups, g)
	}
	sort.Ints(groups)
	for _, g := range groups {
		rate := t.cfg.ArrivalRate
		if g == 2 && t.cfg.ArrivalRateG2 != nil {
			rate = *t.cfg.ArrivalRateG2
		}
		k := t.arrivals(rate * float64(counts[g]))
		if k == 0 {
			continue
		}
		values := map[string]int{AttrActive: 1, AttrEntryTime: at, AttrExitTime: 0}
		if hasGroup {
			values[AttrGroup] = g
		}
		c.AppendNodes(k, values)
	}
	return nil
}

func (t *Turnover) arrivals(lambda float64) int {
	if lambda <= 0 {
		return 0
	}
	return int(distuv.Poisson{Lambda: lambda, Src: t.rng}.Rand())
}

func attrOrZero(c *state.Container, name string, n int) []int {
	if values, ok := c.Attr(name); ok {
		return values
	}
	return make([]int, n)
}
