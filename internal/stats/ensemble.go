package stats

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"gonum.org/v1/gonum/stat"

	"epinet/internal/model"
)

const ensembleFile = "ensemble_summary.json"

// EnsembleRow summarizes one network at one step across replicates.
type EnsembleRow struct {
	At             int     `json:"at"`
	Network        int     `json:"network"`
	Replicates     int     `json:"replicates"`
	MeanEdges      float64 `json:"mean_edges"`
	StdEdges       float64 `json:"std_edges"`
	MeanDegree     float64 `json:"mean_degree"`
	StdDegree      float64 `json:"std_degree"`
	MeanActive     float64 `json:"mean_active"`
	MeanBaseCoef   float64 `json:"mean_base_coef"`
	MinEdges       float64 `json:"min_edges"`
	MaxEdges       float64 `json:"max_edges"`
	ResimulatedPct float64 `json:"resimulated_pct"`
}

type ensembleKey struct {
	at      int
	network int
}

type ensembleSamples struct {
	edges, degree, active, coef []float64
	resimulated                 int
}

// SummarizeEnsemble folds per-replicate diagnostics into one row per step
// and network, ordered by step then network. The standard deviation is
// zero when only one replicate reports a row.
func SummarizeEnsemble(replicates [][]model.StepDiagnostics) []EnsembleRow {
	samples := make(map[ensembleKey]*ensembleSamples)
	for _, diagnostics := range replicates {
		for _, d := range diagnostics {
			key := ensembleKey{at: d.At, network: d.Network}
			s, ok := samples[key]
			if !ok {
				s = &ensembleSamples{}
				samples[key] = s
			}
			s.edges = append(s.edges, float64(d.Edges))
			s.degree = append(s.degree, d.MeanDegree)
			s.active = append(s.active, float64(d.Active+d.ActiveG2))
			s.coef = append(s.coef, d.BaseCoef)
			if d.Resimulated {
				s.resimulated++
			}
		}
	}

	keys := make([]ensembleKey, 0, len(samples))
	for key := range samples {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].at != keys[j].at {
			return keys[i].at < keys[j].at
		}
		return keys[i].network < keys[j].network
	})

	rows := make([]EnsembleRow, 0, len(keys))
	for _, key := range keys {
		s := samples[key]
		n := len(s.edges)
		meanEdges, stdEdges := meanStd(s.edges)
		meanDegree, stdDegree := meanStd(s.degree)
		minEdges, maxEdges := math.Inf(1), math.Inf(-1)
		for _, v := range s.edges {
			minEdges = math.Min(minEdges, v)
			maxEdges = math.Max(maxEdges, v)
		}
		rows = append(rows, EnsembleRow{
			At:             key.at,
			Network:        key.network,
			Replicates:     n,
			MeanEdges:      meanEdges,
			StdEdges:       stdEdges,
			MeanDegree:     meanDegree,
			StdDegree:      stdDegree,
			MeanActive:     stat.Mean(s.active, nil),
			MeanBaseCoef:   stat.Mean(s.coef, nil),
			MinEdges:       minEdges,
			MaxEdges:       maxEdges,
			ResimulatedPct: 100 * float64(s.resimulated) / float64(n),
		})
	}
	return rows
}

func meanStd(values []float64) (float64, float64) {
	if len(values) < 2 {
		return stat.Mean(values, nil), 0
	}
	return stat.MeanStdDev(values, nil)
}

// WriteEnsembleSummary writes rows to ensemble_summary.json in dir.
func WriteEnsembleSummary(dir string, rows []EnsembleRow) error {
	if dir == "" {
		return fmt.Errorf("summary directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return writeJSON(filepath.Join(dir, ensembleFile), rows)
}
