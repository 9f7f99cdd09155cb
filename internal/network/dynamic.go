package network

import (
	"math"

	"epinet/internal/model"

	"gonum.org/v1/gonum/graph/simple"
)

// Open marks a spell that has not ended.
const Open = math.MaxInt

// Spell is a half-open activity interval [Onset, Terminus).
type Spell struct {
	Onset    int `json:"onset"`
	Terminus int `json:"terminus"`
}

func (s Spell) Contains(at int) bool {
	return s.Onset <= at && at < s.Terminus
}

// Dynamic is the full temporal network: every vertex and edge keeps the
// spells during which it was active.
type Dynamic struct {
	n        int
	vertices [][]Spell
	edges    map[Edge][]Spell
	nodes    NodeAttrs
	attrs    NetworkAttrs
}

// NewDynamic returns a network of n vertices. Vertices without spells are
// treated as always active.
func NewDynamic(n int, nodes NodeAttrs) *Dynamic {
	if m := AttrLen(nodes); m > n {
		n = m
	}
	return &Dynamic{
		n:        n,
		vertices: make([][]Spell, n),
		edges:    make(map[Edge][]Spell),
		nodes:    nodes.Clone(),
	}
}

// DynamicFromEdges builds a temporal network whose edges all start at onset.
func DynamicFromEdges(n int, edges []Edge, nodes NodeAttrs, onset int) *Dynamic {
	d := NewDynamic(n, nodes)
	for _, e := range edges {
		d.ActivateEdge(e, onset)
	}
	return d
}

func (d *Dynamic) Kind() model.Representation { return model.RepresentationDynamic }

func (d *Dynamic) NumNodes() int { return d.n }

// AddVertices grows the vertex set by k.
func (d *Dynamic) AddVertices(k int) {
	if k <= 0 {
		return
	}
	d.vertices = append(d.vertices, make([][]Spell, k)...)
	d.n += k
}

// ActivateVertex opens a spell for v at onset unless v is already active then.
func (d *Dynamic) ActivateVertex(v, onset int) {
	if v < 0 || v >= d.n {
		return
	}
	if d.vertexOpen(v) {
		return
	}
	d.vertices[v] = append(d.vertices[v], Spell{Onset: onset, Terminus: Open})
}

// DeactivateVertex closes v's open spell at terminus and ends its open edges.
// A vertex that never had a spell gets one covering [0, terminus).
func (d *Dynamic) DeactivateVertex(v, terminus int) {
	if v < 0 || v >= d.n {
		return
	}
	spells := d.vertices[v]
	switch {
	case len(spells) == 0:
		d.vertices[v] = []Spell{{Onset: 0, Terminus: terminus}}
	case spells[len(spells)-1].Terminus == Open:
		spells[len(spells)-1].Terminus = terminus
	default:
		return
	}
	for e, spells := range d.edges {
		if (e.Tail == v || e.Head == v) && spells[len(spells)-1].Terminus == Open {
			spells[len(spells)-1].Terminus = terminus
		}
	}
}

func (d *Dynamic) vertexOpen(v int) bool {
	spells := d.vertices[v]
	return len(spells) == 0 || spells[len(spells)-1].Terminus == Open
}

func (d *Dynamic) VertexActive(v, at int) bool {
	if v < 0 || v >= d.n {
		return false
	}
	spells := d.vertices[v]
	if len(spells) == 0 {
		return true
	}
	for _, s := range spells {
		if s.Contains(at) {
			return true
		}
	}
	return false
}

// ActivateEdge opens a spell for e at onset if e is not already open.
func (d *Dynamic) ActivateEdge(e Edge, onset int) {
	e = NewEdge(e.Tail, e.Head)
	if e.Tail == e.Head {
		return
	}
	if e.Head >= d.n {
		d.AddVertices(e.Head - d.n + 1)
	}
	spells := d.edges[e]
	if len(spells) > 0 && spells[len(spells)-1].Terminus == Open {
		return
	}
	d.edges[e] = append(spells, Spell{Onset: onset, Terminus: Open})
}

// DeactivateEdge closes e's open spell at terminus.
func (d *Dynamic) DeactivateEdge(e Edge, terminus int) {
	e = NewEdge(e.Tail, e.Head)
	spells := d.edges[e]
	if len(spells) == 0 || spells[len(spells)-1].Terminus != Open {
		return
	}
	if spells[len(spells)-1].Onset >= terminus {
		// A spell closed at its own onset never existed.
		spells = spells[:len(spells)-1]
		if len(spells) == 0 {
			delete(d.edges, e)
			return
		}
		d.edges[e] = spells
		return
	}
	spells[len(spells)-1].Terminus = terminus
}

func (d *Dynamic) EdgeActive(e Edge, at int) bool {
	for _, s := range d.edges[NewEdge(e.Tail, e.Head)] {
		if s.Contains(at) {
			return true
		}
	}
	return false
}

// EdgeSpells returns a copy of the spells recorded for e.
func (d *Dynamic) EdgeSpells(e Edge) []Spell {
	return append([]Spell(nil), d.edges[NewEdge(e.Tail, e.Head)]...)
}

func (d *Dynamic) Edges(at int) []Edge {
	out := make([]Edge, 0, len(d.edges))
	for e := range d.edges {
		if d.EdgeActive(e, at) {
			out = append(out, e)
		}
	}
	sortEdges(out)
	return out
}

func (d *Dynamic) Collapse(at int) *simple.UndirectedGraph {
	return snapshot(d.n, d.Edges(at), func(v int) bool { return d.VertexActive(v, at) })
}

func (d *Dynamic) NodeAttrs() NodeAttrs { return d.nodes.Clone() }

func (d *Dynamic) NetworkAttrs() NetworkAttrs { return d.attrs.Clone() }

// SetNetworkAttrs replaces the duration-tracking attributes.
func (d *Dynamic) SetNetworkAttrs(attrs NetworkAttrs) {
	attrs = attrs.Clone()
	sortToggles(attrs.LastToggle)
	d.attrs = attrs
}

func (d *Dynamic) WithNodeAttrs(attrs NodeAttrs) Representation {
	out := d.Clone()
	out.nodes = attrs.Clone()
	if m := AttrLen(attrs); m > out.n {
		out.AddVertices(m - out.n)
	}
	return out
}

// SyncVertices aligns vertex spells with an activity vector at step at:
// inactive vertices are closed and active ones without an open spell reopened.
func (d *Dynamic) SyncVertices(active []int, at int) {
	if len(active) > d.n {
		d.AddVertices(len(active) - d.n)
	}
	for v := 0; v < len(active); v++ {
		open := d.vertexOpen(v)
		switch {
		case active[v] == 1 && !open:
			d.ActivateVertex(v, at)
		case active[v] != 1 && open:
			d.DeactivateVertex(v, at)
		}
	}
}

func (d *Dynamic) Clone() *Dynamic {
	out := &Dynamic{
		n:        d.n,
		vertices: make([][]Spell, len(d.vertices)),
		edges:    make(map[Edge][]Spell, len(d.edges)),
		nodes:    d.nodes.Clone(),
		attrs:    d.attrs.Clone(),
	}
	for v, spells := range d.vertices {
		out.vertices[v] = append([]Spell(nil), spells...)
	}
	for e, spells := range d.edges {
		out.edges[e] = append([]Spell(nil), spells...)
	}
	return out
}
