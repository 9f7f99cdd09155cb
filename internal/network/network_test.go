package network

import (
	"reflect"
	"testing"

	"epinet/internal/model"
)

func TestNewEdgeListNormalizesEdges(t *testing.T) {
	edges := []Edge{{Tail: 3, Head: 1}, {Tail: 1, Head: 3}, {Tail: 2, Head: 2}, {Tail: 0, Head: 4}}
	list := NewEdgeList(5, edges, nil, NetworkAttrs{})

	want := []Edge{{Tail: 0, Head: 4}, {Tail: 1, Head: 3}}
	if got := list.Edges(0); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected edges: got=%v want=%v", got, want)
	}
	if list.Kind() != model.RepresentationEdgeList {
		t.Fatalf("unexpected kind: %s", list.Kind())
	}
}

func TestEdgeListCopiesInputs(t *testing.T) {
	nodes := NodeAttrs{"active": {1, 1, 1}}
	attrs := NetworkAttrs{Time: 4, LastToggle: []Toggle{{Edge: Edge{Tail: 0, Head: 1}, At: 3}}}
	list := NewEdgeList(3, []Edge{{Tail: 0, Head: 1}}, nodes, attrs)

	nodes["active"][0] = 0
	attrs.LastToggle[0].At = 99
	if list.NodeAttrs()["active"][0] != 1 {
		t.Fatal("edge list shares node attributes with caller")
	}
	if list.NetworkAttrs().LastToggle[0].At != 3 {
		t.Fatal("edge list shares network attributes with caller")
	}
}

func TestEdgeListCollapseSkipsInactiveNodes(t *testing.T) {
	nodes := NodeAttrs{"active": {1, 1, 0, 1}}
	list := NewEdgeList(4, []Edge{{Tail: 0, Head: 1}, {Tail: 1, Head: 2}, {Tail: 1, Head: 3}}, nodes, NetworkAttrs{})

	g := list.Collapse(7)
	if g.Nodes().Len() != 3 {
		t.Fatalf("expected 3 active nodes, got %d", g.Nodes().Len())
	}
	if g.Edges().Len() != 2 {
		t.Fatalf("expected 2 edges between active nodes, got %d", g.Edges().Len())
	}
	if got := MeanDegree(g); got != 4.0/3.0 {
		t.Fatalf("unexpected mean degree: %f", got)
	}
}

func TestEdgeListWithNodeAttrsGrowsNodeCount(t *testing.T) {
	list := NewEdgeList(2, []Edge{{Tail: 0, Head: 1}}, NodeAttrs{"active": {1, 1}}, NetworkAttrs{Time: 2})
	grown := list.WithNodeAttrs(NodeAttrs{"active": {1, 1, 1, 1}})
	if grown.NumNodes() != 4 {
		t.Fatalf("expected 4 nodes, got %d", grown.NumNodes())
	}
	if grown.NetworkAttrs().Time != 2 {
		t.Fatal("expected network attributes to be kept")
	}
	if list.NumNodes() != 2 {
		t.Fatal("original edge list was mutated")
	}
}

func TestDynamicEdgeSpells(t *testing.T) {
	d := NewDynamic(4, nil)
	e := NewEdge(2, 1)
	d.ActivateEdge(e, 2)
	d.ActivateEdge(e, 3)
	d.DeactivateEdge(e, 5)
	d.ActivateEdge(e, 7)

	want := []Spell{{Onset: 2, Terminus: 5}, {Onset: 7, Terminus: Open}}
	if got := d.EdgeSpells(e); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected spells: got=%v want=%v", got, want)
	}
	for at, active := range map[int]bool{1: false, 2: true, 4: true, 5: false, 6: false, 7: true, 100: true} {
		if d.EdgeActive(e, at) != active {
			t.Fatalf("edge active at %d: got=%v want=%v", at, !active, active)
		}
	}
}

func TestDynamicDeactivateAtOnsetDropsSpell(t *testing.T) {
	d := NewDynamic(3, nil)
	e := NewEdge(0, 1)
	d.ActivateEdge(e, 4)
	d.DeactivateEdge(e, 4)
	if spells := d.EdgeSpells(e); len(spells) != 0 {
		t.Fatalf("expected empty spell list, got %v", spells)
	}
	if len(d.Edges(4)) != 0 {
		t.Fatal("expected no active edges")
	}
}

func TestDynamicCollapse(t *testing.T) {
	d := DynamicFromEdges(4, []Edge{{Tail: 0, Head: 1}, {Tail: 2, Head: 3}}, nil, 1)
	d.DeactivateVertex(3, 3)
	d.ActivateEdge(NewEdge(1, 2), 3)

	at1 := d.Collapse(1)
	if at1.Nodes().Len() != 4 || at1.Edges().Len() != 2 {
		t.Fatalf("unexpected snapshot at 1: nodes=%d edges=%d", at1.Nodes().Len(), at1.Edges().Len())
	}
	at3 := d.Collapse(3)
	if at3.Nodes().Len() != 3 {
		t.Fatalf("expected vertex 3 inactive at 3, nodes=%d", at3.Nodes().Len())
	}
	if at3.Edges().Len() != 2 {
		t.Fatalf("expected edges 0-1 and 1-2 at 3, got %d", at3.Edges().Len())
	}
	if d.EdgeActive(NewEdge(2, 3), 3) {
		t.Fatal("expected edge 2-3 closed with its vertex")
	}
}

func TestDynamicSyncVertices(t *testing.T) {
	d := NewDynamic(3, nil)
	d.SyncVertices([]int{1, 0, 1, 1}, 5)

	if d.NumNodes() != 4 {
		t.Fatalf("expected growth to 4 vertices, got %d", d.NumNodes())
	}
	if d.VertexActive(1, 5) {
		t.Fatal("expected vertex 1 inactive at 5")
	}
	if !d.VertexActive(1, 4) {
		t.Fatal("expected vertex 1 active before 5")
	}

	d.SyncVertices([]int{1, 1, 1, 1}, 8)
	if !d.VertexActive(1, 9) || d.VertexActive(1, 6) {
		t.Fatal("expected vertex 1 reactivated at 8 only")
	}
}

func TestDynamicCloneIsIndependent(t *testing.T) {
	d := DynamicFromEdges(3, []Edge{{Tail: 0, Head: 1}}, NodeAttrs{"active": {1, 1, 1}}, 1)
	clone := d.Clone()
	clone.DeactivateEdge(NewEdge(0, 1), 2)
	clone.ActivateEdge(NewEdge(1, 2), 2)

	if !d.EdgeActive(NewEdge(0, 1), 5) {
		t.Fatal("clone mutated original edge spells")
	}
	if d.EdgeActive(NewEdge(1, 2), 5) {
		t.Fatal("clone added edge to original")
	}
}
