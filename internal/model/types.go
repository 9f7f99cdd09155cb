package model

import (
	"errors"
	"fmt"
)

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// Representation selects how a run stores its networks between steps.
type Representation string

const (
	RepresentationEdgeList Representation = "edgelist"
	RepresentationDynamic  Representation = "dynamic"
)

// Control is the immutable per-run configuration read by every stage of a step.
type Control struct {
	ResimulateEachStep bool           `json:"resimulate_each_step"`
	Representation     Representation `json:"representation"`
	TrackDuration      []bool         `json:"track_duration,omitempty"`
	SaveStats          bool           `json:"save_stats"`
	CumulativeHorizon  int            `json:"cumulative_horizon"`
	ReuseBasis         bool           `json:"reuse_basis"`
	NumSteps           int            `json:"num_steps"`
	// Groups is the number of population groups, 1 or 2; 0 means 1.
	Groups int `json:"groups,omitempty"`
}

var (
	ErrInvalidControl = errors.New("invalid run control")
	ErrTooManyGroups  = errors.New("at most two population groups are supported")
)

// NumGroups is Groups with the zero value read as a single group.
func (c Control) NumGroups() int {
	if c.Groups == 0 {
		return 1
	}
	return c.Groups
}

func (c Control) Validate(numNetworks int) error {
	switch c.Representation {
	case RepresentationEdgeList:
		// The lightweight form only holds the latest cross-section, so it
		// cannot carry a whole run drawn up front.
		if !c.ResimulateEachStep {
			return fmt.Errorf("%w: edgelist representation requires resimulate_each_step", ErrInvalidControl)
		}
	case RepresentationDynamic:
	default:
		return fmt.Errorf("%w: unknown representation %q", ErrInvalidControl, c.Representation)
	}
	if c.NumSteps <= 0 {
		return fmt.Errorf("%w: num steps must be > 0", ErrInvalidControl)
	}
	if c.Groups < 0 {
		return fmt.Errorf("%w: groups must be >= 0", ErrInvalidControl)
	}
	if c.Groups > 2 {
		return fmt.Errorf("%w: got %d", ErrTooManyGroups, c.Groups)
	}
	if c.CumulativeHorizon < 0 {
		return fmt.Errorf("%w: cumulative horizon must be >= 0", ErrInvalidControl)
	}
	if len(c.TrackDuration) > numNetworks {
		return fmt.Errorf("%w: duration tracking set for %d networks, run has %d", ErrInvalidControl, len(c.TrackDuration), numNetworks)
	}
	return nil
}

// TracksDuration reports whether network i keeps time and lasttoggle attributes.
func (c Control) TracksDuration(i int) bool {
	return i >= 0 && i < len(c.TrackDuration) && c.TrackDuration[i]
}

// Formula is an ordered list of model terms, e.g. "edges" or "nodematch.group".
type Formula struct {
	Terms []string `json:"terms"`
}

func (f Formula) Len() int { return len(f.Terms) }

func (f Formula) Clone() Formula {
	return Formula{Terms: append([]string(nil), f.Terms...)}
}

// NetworkParams is the static configuration of one network plus its mutable
// formation coefficients. Coef[0] is the base density term.
type NetworkParams struct {
	Name               string      `json:"name"`
	Formation          Formula     `json:"formation"`
	Coef               Coefs       `json:"coef"`
	CrossSectionalCoef Coefs       `json:"cross_sectional_coef,omitempty"`
	Dissolution        Dissolution `json:"dissolution"`
	Constraints        []string    `json:"constraints,omitempty"`
	EdApprox           bool        `json:"edapprox"`
	Monitor            Formula     `json:"monitor"`
}

func (p NetworkParams) Clone() NetworkParams {
	out := p
	out.Formation = p.Formation.Clone()
	out.Coef = append([]float64(nil), p.Coef...)
	out.CrossSectionalCoef = append([]float64(nil), p.CrossSectionalCoef...)
	out.Dissolution = p.Dissolution.Clone()
	out.Constraints = append([]string(nil), p.Constraints...)
	out.Monitor = p.Monitor.Clone()
	return out
}

func (p NetworkParams) Validate() error {
	if p.Formation.Len() == 0 {
		return fmt.Errorf("network %q: formation formula is required", p.Name)
	}
	if len(p.Coef) != p.Formation.Len() {
		return fmt.Errorf("network %q: formation coef length mismatch: got=%d want=%d", p.Name, len(p.Coef), p.Formation.Len())
	}
	if len(p.CrossSectionalCoef) > 0 && len(p.CrossSectionalCoef) != p.Formation.Len() {
		return fmt.Errorf("network %q: cross-sectional coef length mismatch: got=%d want=%d", p.Name, len(p.CrossSectionalCoef), p.Formation.Len())
	}
	if p.Dissolution.Durational() && len(p.Dissolution.CoefAdj) != len(p.Dissolution.Terms) {
		return fmt.Errorf("network %q: dissolution coef length mismatch: got=%d want=%d", p.Name, len(p.Dissolution.CoefAdj), len(p.Dissolution.Terms))
	}
	return nil
}

// CumulativeEdge records a contiguous span of steps [Start, Stop] during
// which the edge was observed.
type CumulativeEdge struct {
	Tail  int `json:"tail"`
	Head  int `json:"head"`
	Start int `json:"start"`
	Stop  int `json:"stop"`
}

// StatsRecord holds statistics monitored by one simulation call, one row per slice.
type StatsRecord struct {
	At    int         `json:"at"`
	Names []string    `json:"names"`
	Rows  [][]float64 `json:"rows"`
}

type StepDiagnostics struct {
	At          int     `json:"at"`
	Network     int     `json:"network"`
	Active      int     `json:"active"`
	ActiveG2    int     `json:"active_g2,omitempty"`
	Edges       int     `json:"edges"`
	MeanDegree  float64 `json:"mean_degree"`
	BaseCoef    float64 `json:"base_coef"`
	Resimulated bool    `json:"resimulated"`
}

// RunRecord is the persisted summary of one replicate.
type RunRecord struct {
	VersionedRecord
	ID           string   `json:"id"`
	ParentRunID  string   `json:"parent_run_id"`
	Replicate    int      `json:"replicate"`
	Seed         int64    `json:"seed"`
	Steps        int      `json:"steps"`
	Networks     []string `json:"networks"`
	FinalEdges   []int    `json:"final_edges"`
	FinalActive  int      `json:"final_active"`
	FinalCoef    Coefs    `json:"final_coef"`
	CreatedAtUTC string   `json:"created_at_utc"`
}
