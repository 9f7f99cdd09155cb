package dataextract

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"epinet/internal/network"
)

func TestReadEdgeCSV(t *testing.T) {
	in := strings.NewReader("tail,head\n3,1\n1,3\n\n0,2\n")
	edges, err := ReadEdgeCSV(in, 4)
	if err != nil {
		t.Fatalf("read edges: %v", err)
	}
	want := []network.Edge{{Tail: 1, Head: 3}, {Tail: 0, Head: 2}}
	if !reflect.DeepEqual(edges, want) {
		t.Fatalf("unexpected edges: got=%v want=%v", edges, want)
	}
}

func TestReadEdgeCSVWithoutHeader(t *testing.T) {
	edges, err := ReadEdgeCSV(strings.NewReader("0,1\n1,2\n"), 0)
	if err != nil {
		t.Fatalf("read edges: %v", err)
	}
	if len(edges) != 2 {
		t.Fatalf("expected 2 edges, got %v", edges)
	}
}

func TestReadEdgeCSVRejectsBadRows(t *testing.T) {
	tests := map[string]string{
		"self loop":    "1,1\n",
		"out of range": "0,4\n",
		"negative":     "-1,2\n",
		"bad id":       "0,1\nx,2\n",
		"one column":   "0,1\n2\n",
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ReadEdgeCSV(strings.NewReader(input), 4); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestReadAttributeCSV(t *testing.T) {
	in := strings.NewReader("Active, group\n1,1\n1,2\n\n0,2\n")
	attrs, nodes, err := ReadAttributeCSV(in)
	if err != nil {
		t.Fatalf("read attrs: %v", err)
	}
	if nodes != 3 {
		t.Fatalf("expected 3 nodes, got %d", nodes)
	}
	if !reflect.DeepEqual(attrs["active"], []int{1, 1, 0}) || !reflect.DeepEqual(attrs["group"], []int{1, 2, 2}) {
		t.Fatalf("unexpected attrs: %v", attrs)
	}
}

func TestReadAttributeCSVErrors(t *testing.T) {
	for name, input := range map[string]string{
		"empty":          "",
		"duplicate":      "group,group\n1,1\n",
		"unnamed column": "active,\n1,1\n",
		"non-integer":    "active\nyes\n",
		"ragged row":     "active,group\n1\n",
	} {
		t.Run(name, func(t *testing.T) {
			if _, _, err := ReadAttributeCSV(strings.NewReader(input)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadFiles(t *testing.T) {
	dir := t.TempDir()
	edgesPath := filepath.Join(dir, "edges.csv")
	attrsPath := filepath.Join(dir, "attrs.csv")
	if err := os.WriteFile(edgesPath, []byte("0,1\n"), 0o644); err != nil {
		t.Fatalf("write edges: %v", err)
	}
	if err := os.WriteFile(attrsPath, []byte("active\n1\n1\n"), 0o644); err != nil {
		t.Fatalf("write attrs: %v", err)
	}
	if edges, err := LoadEdgesFile(edgesPath, 2); err != nil || len(edges) != 1 {
		t.Fatalf("load edges: %v %v", edges, err)
	}
	if _, nodes, err := LoadAttributesFile(attrsPath); err != nil || nodes != 2 {
		t.Fatalf("load attrs: nodes=%d err=%v", nodes, err)
	}
	if _, err := LoadEdgesFile("", 2); err == nil {
		t.Fatal("expected missing path error")
	}
}
