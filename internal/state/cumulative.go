package state

import (
	"sort"

	"epinet/internal/model"
	"epinet/internal/network"
)

// AppendCumulative records the edges observed on network i at step at. An
// edge already present at the previous step extends its entry; any other
// edge opens a new entry. Entries that stopped before at-horizon are pruned
// afterwards; a horizon of 0 keeps the whole history.
func (c *Container) AppendCumulative(i int, edges []network.Edge, at int) error {
	ns, err := c.network(i)
	if err != nil {
		return err
	}

	open := make(map[network.Edge]int, len(ns.cumulative))
	for idx, entry := range ns.cumulative {
		if entry.Stop == at-1 || entry.Stop == at {
			open[network.Edge{Tail: entry.Tail, Head: entry.Head}] = idx
		}
	}
	for _, e := range edges {
		e = network.NewEdge(e.Tail, e.Head)
		if idx, ok := open[e]; ok {
			ns.cumulative[idx].Stop = at
			continue
		}
		ns.cumulative = append(ns.cumulative, model.CumulativeEdge{Tail: e.Tail, Head: e.Head, Start: at, Stop: at})
		open[e] = len(ns.cumulative) - 1
	}

	if horizon := c.control.CumulativeHorizon; horizon > 0 {
		kept := ns.cumulative[:0]
		for _, entry := range ns.cumulative {
			if entry.Stop >= at-horizon {
				kept = append(kept, entry)
			}
		}
		ns.cumulative = kept
	}
	return nil
}

// Cumulative returns network i's cumulative edgelist ordered by start, then edge.
func (c *Container) Cumulative(i int) ([]model.CumulativeEdge, error) {
	ns, err := c.network(i)
	if err != nil {
		return nil, err
	}
	out := append([]model.CumulativeEdge(nil), ns.cumulative...)
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Start != out[b].Start {
			return out[a].Start < out[b].Start
		}
		if out[a].Tail != out[b].Tail {
			return out[a].Tail < out[b].Tail
		}
		return out[a].Head < out[b].Head
	})
	return out, nil
}
