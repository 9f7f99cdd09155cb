// Package network holds the two network representations a run can carry
// between steps: a lightweight edge list and a full temporal network.
package network

import (
	"sort"

	"epinet/internal/model"

	"gonum.org/v1/gonum/graph/simple"
)

// Edge is an undirected dyad with Tail < Head. Node ids are zero-based
// indexes into the run's attribute vectors.
type Edge struct {
	Tail int `json:"tail"`
	Head int `json:"head"`
}

func NewEdge(a, b int) Edge {
	if a > b {
		a, b = b, a
	}
	return Edge{Tail: a, Head: b}
}

// Toggle records the last step at which a dyad changed state.
type Toggle struct {
	Edge
	At int `json:"at"`
}

// NodeAttrs maps attribute name to a vector indexed by node id.
type NodeAttrs map[string][]int

func (a NodeAttrs) Clone() NodeAttrs {
	if a == nil {
		return nil
	}
	out := make(NodeAttrs, len(a))
	for name, values := range a {
		out[name] = append([]int(nil), values...)
	}
	return out
}

// NetworkAttrs are network-level attributes used for duration tracking.
type NetworkAttrs struct {
	Time       int      `json:"time"`
	LastToggle []Toggle `json:"last_toggle,omitempty"`
}

func (a NetworkAttrs) Clone() NetworkAttrs {
	return NetworkAttrs{Time: a.Time, LastToggle: append([]Toggle(nil), a.LastToggle...)}
}

// Representation is the capability set shared by both variants.
type Representation interface {
	Kind() model.Representation
	NumNodes() int
	// Edges returns the sorted edge set active at step at.
	Edges(at int) []Edge
	// Collapse returns a static snapshot of the network at step at.
	Collapse(at int) *simple.UndirectedGraph
	NodeAttrs() NodeAttrs
	NetworkAttrs() NetworkAttrs
	// WithNodeAttrs returns a copy carrying attrs, grown to cover every node
	// the attribute vectors describe.
	WithNodeAttrs(attrs NodeAttrs) Representation
}

// Active reports whether node v is eligible for ties. A missing "active"
// attribute means every node is active.
func Active(attrs NodeAttrs, v int) bool {
	active, ok := attrs["active"]
	if !ok {
		return true
	}
	return v < len(active) && active[v] == 1
}

// AttrLen returns the node count implied by the longest attribute vector.
func AttrLen(attrs NodeAttrs) int {
	n := 0
	for _, values := range attrs {
		if len(values) > n {
			n = len(values)
		}
	}
	return n
}

func sortEdges(edges []Edge) {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Tail == edges[j].Tail {
			return edges[i].Head < edges[j].Head
		}
		return edges[i].Tail < edges[j].Tail
	})
}

func sortToggles(toggles []Toggle) {
	sort.Slice(toggles, func(i, j int) bool {
		if toggles[i].Tail == toggles[j].Tail {
			return toggles[i].Head < toggles[j].Head
		}
		return toggles[i].Tail < toggles[j].Tail
	})
}

func snapshot(n int, edges []Edge, include func(v int) bool) *simple.UndirectedGraph {
	g := simple.NewUndirectedGraph()
	for v := 0; v < n; v++ {
		if include(v) {
			g.AddNode(simple.Node(int64(v)))
		}
	}
	for _, e := range edges {
		if g.Node(int64(e.Tail)) == nil || g.Node(int64(e.Head)) == nil {
			continue
		}
		g.SetEdge(g.NewEdge(simple.Node(int64(e.Tail)), simple.Node(int64(e.Head))))
	}
	return g
}

// MeanDegree is twice the edge count over the node count of a snapshot.
func MeanDegree(g *simple.UndirectedGraph) float64 {
	nodes := g.Nodes().Len()
	if nodes == 0 {
		return 0
	}
	return 2 * float64(g.Edges().Len()) / float64(nodes)
}
