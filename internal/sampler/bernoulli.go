package sampler

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"

	"epinet/internal/model"
	"epinet/internal/network"
)

// Bernoulli is a dyad-independent sampler. Cross-sectional draws toggle
// every eligible dyad independently from the formation model; durational
// draws form absent ties from the formation model and keep present ties
// from the persistence model. It is not safe for concurrent use.
type Bernoulli struct {
	rng *rand.Rand
}

func NewBernoulli(seed int64) *Bernoulli {
	return &Bernoulli{rng: rand.New(rand.NewSource(seed))}
}

func (b *Bernoulli) Name() string { return "bernoulli" }

type dyadTerm struct {
	name string
	stat func(e network.Edge) float64
}

type monitorTerm struct {
	name string
	stat func(edges map[network.Edge]struct{}) float64
}

func (b *Bernoulli) Simulate(ctx context.Context, req Request) (Result, error) {
	if err := validateRequest(req); err != nil {
		return Result{}, err
	}
	nodes := req.Basis.NodeAttrs()
	n := req.Basis.NumNodes()

	formation, err := compileDyadTerms(req.Formula.Formation, nodes)
	if err != nil {
		return Result{}, err
	}
	persistence, err := compileDyadTerms(req.Formula.Persistence, nodes)
	if err != nil {
		return Result{}, err
	}
	monitors, err := compileMonitorTerms(req.Monitor, n, nodes)
	if err != nil {
		return Result{}, err
	}
	coefFormation := req.Coef[:len(formation)]
	coefPersistence := req.Coef[len(formation):]

	basisEdges := req.Basis.Edges(req.BasisTime())
	current := make(map[network.Edge]struct{}, len(basisEdges))
	for _, e := range basisEdges {
		current[e] = struct{}{}
	}
	toggles := make(map[network.Edge]int)
	for _, toggle := range req.Basis.NetworkAttrs().LastToggle {
		toggles[toggle.Edge] = toggle.At
	}

	var dyn *network.Dynamic
	if req.Output == model.RepresentationDynamic {
		if basis, ok := req.Basis.(*network.Dynamic); ok {
			dyn = basis.Clone()
		} else {
			dyn = network.DynamicFromEdges(n, basisEdges, nodes, req.BasisTime())
		}
	}

	var stats *Stats
	if len(monitors) > 0 {
		stats = &Stats{Names: make([]string, 0, len(monitors))}
		for _, m := range monitors {
			stats.Names = append(stats.Names, m.name)
		}
	}

	saturated := false
	for s := 0; s < req.TimeSlices; s++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		at := req.TimeStart + req.TimeOffset + s
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				e := network.Edge{Tail: i, Head: j}
				_, present := current[e]
				if !network.Active(nodes, i) || !network.Active(nodes, j) {
					if present {
						delete(current, e)
						toggles[e] = at
						if dyn != nil {
							dyn.DeactivateEdge(e, at)
						}
					}
					continue
				}

				var p float64
				if present && req.Formula.Durational() {
					p = logistic(linearPredictor(persistence, coefPersistence, e))
				} else {
					p = logistic(linearPredictor(formation, coefFormation, e))
				}
				if p == 0 || p == 1 {
					saturated = true
				}
				next := b.rng.Float64() < p
				if next == present {
					continue
				}
				toggles[e] = at
				if next {
					current[e] = struct{}{}
					if dyn != nil {
						dyn.ActivateEdge(e, at)
					}
				} else {
					delete(current, e)
					if dyn != nil {
						dyn.DeactivateEdge(e, at)
					}
				}
			}
		}
		if stats != nil {
			row := make([]float64, 0, len(monitors))
			for _, m := range monitors {
				row = append(row, m.stat(current))
			}
			stats.Rows = append(stats.Rows, row)
		}
	}

	attrs := network.NetworkAttrs{Time: req.LastSliceTime()}
	for e, at := range toggles {
		attrs.LastToggle = append(attrs.LastToggle, network.Toggle{Edge: e, At: at})
	}

	result := Result{Stats: stats}
	if saturated {
		result.Warnings = append(result.Warnings, "dyad probabilities saturated at 0 or 1")
	}
	if dyn != nil {
		dyn.SetNetworkAttrs(attrs)
		result.Network = dyn
		return result, nil
	}
	edges := make([]network.Edge, 0, len(current))
	for e := range current {
		edges = append(edges, e)
	}
	result.Network = network.NewEdgeList(n, edges, nodes, attrs)
	return result, nil
}

func validateRequest(req Request) error {
	if req.Basis == nil {
		return fmt.Errorf("%w: basis network is required", ErrInvalidRequest)
	}
	if req.TimeSlices <= 0 {
		return fmt.Errorf("%w: time slices must be > 0", ErrInvalidRequest)
	}
	if len(req.Formula.Formation) == 0 {
		return fmt.Errorf("%w: formation formula is required", ErrInvalidRequest)
	}
	if len(req.Coef) != req.Formula.Len() {
		return fmt.Errorf("%w: got=%d want=%d", ErrCoefLength, len(req.Coef), req.Formula.Len())
	}
	if f := req.Control.DiscordanceFraction; f != nil && (*f < 0 || *f > 1) {
		return fmt.Errorf("%w: discordance fraction must be in [0, 1]", ErrInvalidRequest)
	}
	if req.Control.Parallel < 0 {
		return fmt.Errorf("%w: parallel must be >= 0", ErrInvalidRequest)
	}
	switch req.Output {
	case model.RepresentationEdgeList, model.RepresentationDynamic:
	default:
		return fmt.Errorf("%w: unknown output %q", ErrInvalidRequest, req.Output)
	}
	for _, constraint := range req.Constraints {
		if constraint != "" {
			return fmt.Errorf("%w: %s", ErrUnsupportedConstraint, constraint)
		}
	}
	return nil
}

func compileDyadTerms(names []string, nodes network.NodeAttrs) ([]dyadTerm, error) {
	terms := make([]dyadTerm, 0, len(names))
	for _, name := range names {
		switch {
		case name == "edges":
			terms = append(terms, dyadTerm{name: name, stat: func(network.Edge) float64 { return 1 }})
		case strings.HasPrefix(name, "nodematch."):
			values, err := attrVector(name, nodes)
			if err != nil {
				return nil, err
			}
			terms = append(terms, dyadTerm{name: name, stat: func(e network.Edge) float64 {
				if matches(values, e) {
					return 1
				}
				return 0
			}})
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedTerm, name)
		}
	}
	return terms, nil
}

func compileMonitorTerms(names []string, n int, nodes network.NodeAttrs) ([]monitorTerm, error) {
	activeCount := 0
	for v := 0; v < n; v++ {
		if network.Active(nodes, v) {
			activeCount++
		}
	}
	terms := make([]monitorTerm, 0, len(names))
	for _, name := range names {
		switch {
		case name == "edges":
			terms = append(terms, monitorTerm{name: name, stat: func(edges map[network.Edge]struct{}) float64 {
				return float64(len(edges))
			}})
		case name == "meandeg":
			terms = append(terms, monitorTerm{name: name, stat: func(edges map[network.Edge]struct{}) float64 {
				if activeCount == 0 {
					return 0
				}
				return 2 * float64(len(edges)) / float64(activeCount)
			}})
		case name == "concurrent":
			terms = append(terms, monitorTerm{name: name, stat: func(edges map[network.Edge]struct{}) float64 {
				degree := make(map[int]int, len(edges))
				for e := range edges {
					degree[e.Tail]++
					degree[e.Head]++
				}
				count := 0
				for _, d := range degree {
					if d >= 2 {
						count++
					}
				}
				return float64(count)
			}})
		case strings.HasPrefix(name, "nodematch."):
			values, err := attrVector(name, nodes)
			if err != nil {
				return nil, err
			}
			terms = append(terms, monitorTerm{name: name, stat: func(edges map[network.Edge]struct{}) float64 {
				count := 0
				for e := range edges {
					if matches(values, e) {
						count++
					}
				}
				return float64(count)
			}})
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedTerm, name)
		}
	}
	return terms, nil
}

func attrVector(term string, nodes network.NodeAttrs) ([]int, error) {
	attr := strings.TrimPrefix(term, "nodematch.")
	values, ok := nodes[attr]
	if !ok {
		return nil, fmt.Errorf("%w: %s references missing attribute %q", ErrUnsupportedTerm, term, attr)
	}
	return values, nil
}

func matches(values []int, e network.Edge) bool {
	return e.Head < len(values) && values[e.Tail] == values[e.Head]
}

func linearPredictor(terms []dyadTerm, coef []float64, e network.Edge) float64 {
	lp := 0.0
	for i, term := range terms {
		x := term.stat(e)
		if x == 0 {
			continue
		}
		lp += coef[i] * x
	}
	return lp
}

func logistic(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
