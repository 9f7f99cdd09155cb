// Package state owns the mutable per-run simulation state threaded through
// every stage of a time step.
package state

import (
	"errors"
	"fmt"
	"sort"

	"epinet/internal/model"
	"epinet/internal/network"
)

var (
	ErrNetworkIndex           = errors.New("network index out of range")
	ErrAttrLength             = errors.New("attribute length mismatch")
	ErrRepresentationMismatch = errors.New("representation does not match run control")
)

// RunScope caches active-population counts from the last adjustment. It is
// recomputed every step and never persisted.
type RunScope struct {
	Num   int
	NumG2 int
	Set   bool
}

type networkState struct {
	params model.NetworkParams
	// rep is written only by SetNetwork.
	rep        network.Representation
	cumulative []model.CumulativeEdge
	stats      []model.StatsRecord
}

// Container is the state of one simulation run. It is owned by exactly one
// goroutine and is not safe for concurrent use.
type Container struct {
	control  model.Control
	attrs    map[string][]int
	nodes    int
	scope    RunScope
	at       int
	networks []*networkState
}

// New builds a container with empty networks. attrs vectors must share one
// length; that length is the initial node count.
func New(control model.Control, params []model.NetworkParams, attrs map[string][]int) (*Container, error) {
	if len(params) == 0 {
		return nil, fmt.Errorf("at least one network is required")
	}
	if err := control.Validate(len(params)); err != nil {
		return nil, err
	}
	nodes := -1
	copied := make(map[string][]int, len(attrs))
	for name, values := range attrs {
		if nodes >= 0 && len(values) != nodes {
			return nil, fmt.Errorf("%w: %s has %d values, want %d", ErrAttrLength, name, len(values), nodes)
		}
		nodes = len(values)
		copied[name] = append([]int(nil), values...)
	}
	if nodes < 0 {
		nodes = 0
	}
	if _, ok := copied["group"]; control.NumGroups() == 2 && !ok {
		return nil, fmt.Errorf("%w: two-group runs need a group attribute", ErrAttrLength)
	}

	c := &Container{
		control:  control,
		attrs:    copied,
		nodes:    nodes,
		networks: make([]*networkState, 0, len(params)),
	}
	for _, p := range params {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		ns := &networkState{params: p.Clone()}
		if control.Representation == model.RepresentationDynamic {
			ns.rep = network.NewDynamic(nodes, c.nodeAttrs())
		} else {
			ns.rep = network.NewEdgeList(nodes, nil, c.nodeAttrs(), network.NetworkAttrs{})
		}
		c.networks = append(c.networks, ns)
	}
	return c, nil
}

func (c *Container) Control() model.Control {
	out := c.control
	out.TrackDuration = append([]bool(nil), c.control.TrackDuration...)
	return out
}

func (c *Container) NumNetworks() int { return len(c.networks) }

// NumNodes is the current maximum node id plus one, active or not.
func (c *Container) NumNodes() int { return c.nodes }

// At is the step currently being simulated.
func (c *Container) At() int { return c.at }

func (c *Container) SetAt(at int) { c.at = at }

// Attr returns a copy of the named attribute vector.
func (c *Container) Attr(name string) ([]int, bool) {
	values, ok := c.attrs[name]
	if !ok {
		return nil, false
	}
	return append([]int(nil), values...), true
}

func (c *Container) AttrNames() []string {
	names := make([]string, 0, len(c.attrs))
	for name := range c.attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Container) SetAttr(name string, values []int) error {
	if len(values) != c.nodes {
		return fmt.Errorf("%w: %s has %d values, want %d", ErrAttrLength, name, len(values), c.nodes)
	}
	c.attrs[name] = append([]int(nil), values...)
	return nil
}

// AppendNodes adds k nodes. Attributes named in values get that value for
// the new nodes, every other attribute gets 0. It returns the first new id.
func (c *Container) AppendNodes(k int, values map[string]int) int {
	first := c.nodes
	if k <= 0 {
		return first
	}
	for name := range values {
		if _, ok := c.attrs[name]; !ok {
			c.attrs[name] = make([]int, c.nodes)
		}
	}
	for name, vector := range c.attrs {
		fill := values[name]
		for i := 0; i < k; i++ {
			vector = append(vector, fill)
		}
		c.attrs[name] = vector
	}
	c.nodes += k
	return first
}

// ActiveCounts counts active nodes per configured group. Single-group runs
// ignore the "group" attribute and report every active node in g1. Two-group
// runs count group values 1 and 2; an active node with any other value is an
// error.
func (c *Container) ActiveCounts() (g1, g2 int, err error) {
	active, hasActive := c.attrs["active"]
	if c.control.NumGroups() == 1 {
		for v := 0; v < c.nodes; v++ {
			if !hasActive || active[v] == 1 {
				g1++
			}
		}
		return g1, 0, nil
	}
	group := c.attrs["group"]
	for v := 0; v < c.nodes; v++ {
		if hasActive && active[v] != 1 {
			continue
		}
		switch group[v] {
		case 1:
			g1++
		case 2:
			g2++
		default:
			return 0, 0, fmt.Errorf("%w: node %d has group %d", model.ErrTooManyGroups, v, group[v])
		}
	}
	return g1, g2, nil
}

func (c *Container) Scope() RunScope { return c.scope }

func (c *Container) SetScope(scope RunScope) { c.scope = scope }

// Params returns a copy of network i's parameter set.
func (c *Container) Params(i int) (model.NetworkParams, error) {
	ns, err := c.network(i)
	if err != nil {
		return model.NetworkParams{}, err
	}
	return ns.params.Clone(), nil
}

// ShiftFormationBase adds delta to the base formation coefficient of every
// network in the run.
func (c *Container) ShiftFormationBase(delta float64) {
	for _, ns := range c.networks {
		if len(ns.params.Coef) > 0 {
			ns.params.Coef[0] += delta
		}
	}
}

func (c *Container) AppendStats(i int, record model.StatsRecord) error {
	ns, err := c.network(i)
	if err != nil {
		return err
	}
	ns.stats = append(ns.stats, record)
	return nil
}

func (c *Container) StatsHistory(i int) ([]model.StatsRecord, error) {
	ns, err := c.network(i)
	if err != nil {
		return nil, err
	}
	return append([]model.StatsRecord(nil), ns.stats...), nil
}

func (c *Container) nodeAttrs() network.NodeAttrs {
	out := make(network.NodeAttrs, len(c.attrs))
	for name, values := range c.attrs {
		out[name] = append([]int(nil), values...)
	}
	return out
}

func (c *Container) network(i int) (*networkState, error) {
	if i < 0 || i >= len(c.networks) {
		return nil, fmt.Errorf("%w: %d", ErrNetworkIndex, i)
	}
	return c.networks[i], nil
}

// Edges returns the edges of network i's committed representation at step
// at, without refreshing it against the current attributes.
func (c *Container) Edges(i, at int) ([]network.Edge, error) {
	ns, err := c.network(i)
	if err != nil {
		return nil, err
	}
	return ns.rep.Edges(at), nil
}
