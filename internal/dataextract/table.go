// Package dataextract reads the tabular inputs a run can start from: node
// attribute tables and edge lists taken from a prior network fit.
package dataextract

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"epinet/internal/network"
)

// ReadEdgeCSV reads tail,head rows. A header row is skipped when its first
// two cells are not integers. Self loops are rejected, duplicates dropped.
func ReadEdgeCSV(in io.Reader, numNodes int) ([]network.Edge, error) {
	reader := csv.NewReader(in)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	seen := make(map[network.Edge]struct{})
	edges := make([]network.Edge, 0, 256)
	rowIndex := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		rowIndex++
		if err != nil {
			return nil, fmt.Errorf("read edge csv row %d: %w", rowIndex, err)
		}
		if blankRecord(record) {
			continue
		}
		if len(record) < 2 {
			return nil, fmt.Errorf("edge csv row %d: want tail and head, got %d columns", rowIndex, len(record))
		}
		tail, errTail := strconv.Atoi(strings.TrimSpace(record[0]))
		head, errHead := strconv.Atoi(strings.TrimSpace(record[1]))
		if errTail != nil || errHead != nil {
			if rowIndex == 1 {
				continue
			}
			return nil, fmt.Errorf("edge csv row %d: non-integer node id", rowIndex)
		}
		if tail == head {
			return nil, fmt.Errorf("edge csv row %d: self loop on node %d", rowIndex, tail)
		}
		if tail < 0 || head < 0 || (numNodes > 0 && (tail >= numNodes || head >= numNodes)) {
			return nil, fmt.Errorf("edge csv row %d: node id out of range [0, %d)", rowIndex, numNodes)
		}
		e := network.NewEdge(tail, head)
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		edges = append(edges, e)
	}
	return edges, nil
}

// ReadAttributeCSV reads a node attribute table: a header of attribute
// names, then one row of integers per node in id order.
func ReadAttributeCSV(in io.Reader) (map[string][]int, int, error) {
	reader := csv.NewReader(in)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, 0, fmt.Errorf("attribute csv is empty")
	}
	if err != nil {
		return nil, 0, fmt.Errorf("read attribute csv header: %w", err)
	}
	names := make([]string, len(header))
	attrs := make(map[string][]int, len(header))
	for i, raw := range header {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			return nil, 0, fmt.Errorf("attribute csv column %d has no name", i+1)
		}
		if _, dup := attrs[name]; dup {
			return nil, 0, fmt.Errorf("duplicate attribute column: %s", name)
		}
		names[i] = name
		attrs[name] = nil
	}

	nodes := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("read attribute csv row %d: %w", nodes+1, err)
		}
		if blankRecord(record) {
			continue
		}
		for i, raw := range record {
			v, err := strconv.Atoi(strings.TrimSpace(raw))
			if err != nil {
				return nil, 0, fmt.Errorf("parse attribute row %d column %s: %w", nodes+1, names[i], err)
			}
			attrs[names[i]] = append(attrs[names[i]], v)
		}
		nodes++
	}
	return attrs, nodes, nil
}

func LoadEdgesFile(path string, numNodes int) ([]network.Edge, error) {
	f, err := openTable(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadEdgeCSV(f, numNodes)
}

func LoadAttributesFile(path string) (map[string][]int, int, error) {
	f, err := openTable(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()
	return ReadAttributeCSV(f)
}

func openTable(path string) (*os.File, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("table file path is required")
	}
	return os.Open(path)
}

func blankRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}
