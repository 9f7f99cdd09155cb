package state

import (
	"fmt"

	"epinet/internal/model"
	"epinet/internal/network"
)

// GetNetwork returns network i as the representation the run is configured
// for, carrying the container's current node attributes.
func GetNetwork(c *Container, i int) (network.Representation, error) {
	ns, err := c.network(i)
	if err != nil {
		return nil, err
	}
	return Refresh(c, i, ns.rep)
}

// Refresh returns a copy of rep aligned with the container: node attributes
// are replaced, temporal networks get vertex activity synced at c.At(), and
// edge lists drop network attributes when duration is not tracked for i.
// rep itself is never modified.
func Refresh(c *Container, i int, rep network.Representation) (network.Representation, error) {
	if rep == nil {
		return nil, fmt.Errorf("network %d: nil representation", i)
	}
	if rep.Kind() != c.control.Representation {
		return nil, fmt.Errorf("%w: network %d holds %s, run uses %s", ErrRepresentationMismatch, i, rep.Kind(), c.control.Representation)
	}
	attrs := c.nodeAttrs()
	switch typed := rep.(type) {
	case *network.Dynamic:
		out := typed.WithNodeAttrs(attrs).(*network.Dynamic)
		if active, ok := attrs["active"]; ok {
			out.SyncVertices(active, c.at)
		}
		return out, nil
	default:
		var netAttrs network.NetworkAttrs
		if c.control.TracksDuration(i) {
			netAttrs = rep.NetworkAttrs()
		}
		n := max(rep.NumNodes(), c.nodes)
		return network.NewEdgeList(n, rep.Edges(c.at), attrs, netAttrs), nil
	}
}

// SetNetwork commits rep as network i's state. Edge lists keep only the edge
// set plus, when duration is tracked, time and lasttoggle; temporal networks
// are stored whole.
func SetNetwork(c *Container, i int, rep network.Representation) error {
	ns, err := c.network(i)
	if err != nil {
		return err
	}
	if rep == nil {
		return fmt.Errorf("network %d: nil representation", i)
	}
	if rep.Kind() != c.control.Representation {
		return fmt.Errorf("%w: network %d got %s, run uses %s", ErrRepresentationMismatch, i, rep.Kind(), c.control.Representation)
	}

	switch c.control.Representation {
	case model.RepresentationDynamic:
		dyn, ok := rep.(*network.Dynamic)
		if !ok {
			return fmt.Errorf("%w: network %d got %T", ErrRepresentationMismatch, i, rep)
		}
		ns.rep = dyn.Clone()
	default:
		var netAttrs network.NetworkAttrs
		if c.control.TracksDuration(i) {
			netAttrs = rep.NetworkAttrs()
		}
		ns.rep = network.NewEdgeList(rep.NumNodes(), rep.Edges(c.at), rep.NodeAttrs(), netAttrs)
	}
	return nil
}
