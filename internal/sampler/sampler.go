// Package sampler defines the contract of the stochastic network
// simulation primitive the resimulation engine drives.
package sampler

import (
	"context"
	"errors"

	"epinet/internal/model"
	"epinet/internal/network"
)

var (
	ErrUnsupportedTerm       = errors.New("unsupported model term")
	ErrUnsupportedConstraint = errors.New("unsupported constraint")
	ErrCoefLength            = errors.New("coefficient length mismatch")
	ErrInvalidRequest        = errors.New("invalid simulation request")
)

// Formula splits a model into formation and persistence parts. An empty
// Persistence selects a cross-sectional draw.
type Formula struct {
	Formation   []string
	Persistence []string
}

func (f Formula) Durational() bool { return len(f.Persistence) > 0 }

func (f Formula) Len() int { return len(f.Formation) + len(f.Persistence) }

// Control tunes the sampler's proposal machinery.
type Control struct {
	// DiscordanceFraction nil leaves the sampler default in place.
	DiscordanceFraction *float64
	// Parallel is the number of workers the sampler may use; 0 disables
	// internal parallelism.
	Parallel int
}

// Request is one call of the primitive. Slice s (0-based) of the output is
// recorded at TimeStart + TimeOffset + s.
type Request struct {
	Formula     Formula
	Coef        []float64
	Basis       network.Representation
	Constraints []string
	TimeStart   int
	TimeOffset  int
	TimeSlices  int
	Control     Control
	Monitor     []string
	Output      model.Representation
}

// BasisTime is the step whose state the first slice evolves from.
func (r Request) BasisTime() int {
	return r.TimeStart + r.TimeOffset - 1
}

// LastSliceTime is the step at which the final output slice is recorded.
func (r Request) LastSliceTime() int {
	return r.TimeStart + r.TimeOffset + r.TimeSlices - 1
}

// Stats is a matrix of monitored statistics, one row per slice.
type Stats struct {
	Names []string
	Rows  [][]float64
}

// Dedup drops every column whose name repeats an earlier one.
func (s Stats) Dedup() Stats {
	seen := make(map[string]struct{}, len(s.Names))
	keep := make([]int, 0, len(s.Names))
	for i, name := range s.Names {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		keep = append(keep, i)
	}
	out := Stats{Names: make([]string, 0, len(keep)), Rows: make([][]float64, 0, len(s.Rows))}
	for _, i := range keep {
		out.Names = append(out.Names, s.Names[i])
	}
	for _, row := range s.Rows {
		next := make([]float64, 0, len(keep))
		for _, i := range keep {
			if i < len(row) {
				next = append(next, row[i])
			}
		}
		out.Rows = append(out.Rows, next)
	}
	return out
}

type Result struct {
	Network network.Representation
	// Stats is nil unless the request carried a monitor formula.
	Stats *Stats
	// Warnings are non-fatal notes from the proposal mechanics.
	Warnings []string
}

// Simulator advances a basis network by one or more time slices.
type Simulator interface {
	Name() string
	Simulate(ctx context.Context, req Request) (Result, error)
}
