package network

import (
	"epinet/internal/model"

	"gonum.org/v1/gonum/graph/simple"
)

// EdgeList is the lightweight representation: the current cross-section only.
type EdgeList struct {
	n     int
	edges []Edge
	nodes NodeAttrs
	attrs NetworkAttrs
}

// NewEdgeList copies its inputs; duplicate and self edges are dropped.
func NewEdgeList(n int, edges []Edge, nodes NodeAttrs, attrs NetworkAttrs) *EdgeList {
	if m := AttrLen(nodes); m > n {
		n = m
	}
	seen := make(map[Edge]struct{}, len(edges))
	out := make([]Edge, 0, len(edges))
	for _, e := range edges {
		e = NewEdge(e.Tail, e.Head)
		if e.Tail == e.Head {
			continue
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	sortEdges(out)
	attrs = attrs.Clone()
	sortToggles(attrs.LastToggle)
	return &EdgeList{n: n, edges: out, nodes: nodes.Clone(), attrs: attrs}
}

func (l *EdgeList) Kind() model.Representation { return model.RepresentationEdgeList }

func (l *EdgeList) NumNodes() int { return l.n }

func (l *EdgeList) Edges(_ int) []Edge {
	return append([]Edge(nil), l.edges...)
}

// Collapse ignores at: an edge list only knows its current state.
func (l *EdgeList) Collapse(_ int) *simple.UndirectedGraph {
	return snapshot(l.n, l.edges, func(v int) bool { return Active(l.nodes, v) })
}

func (l *EdgeList) NodeAttrs() NodeAttrs { return l.nodes.Clone() }

func (l *EdgeList) NetworkAttrs() NetworkAttrs { return l.attrs.Clone() }

func (l *EdgeList) WithNodeAttrs(attrs NodeAttrs) Representation {
	return NewEdgeList(l.n, l.edges, attrs, l.attrs)
}
