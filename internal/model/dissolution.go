package model

import (
	"fmt"
	"math"
)

// Dissolution describes tie persistence. Duration[0] is the expected
// lifetime of the base term; more durations refine it per term.
type Dissolution struct {
	Terms    []string  `json:"terms"`
	Duration []float64 `json:"duration"`
	Coef     Coefs     `json:"coef,omitempty"`
	CoefAdj  Coefs     `json:"coef_adj,omitempty"`
	ExitRate float64   `json:"exit_rate,omitempty"`
}

// Durational reports whether ties persist for more than one step.
func (d Dissolution) Durational() bool {
	return len(d.Duration) > 0 && d.Duration[0] > 1
}

func (d Dissolution) Clone() Dissolution {
	return Dissolution{
		Terms:    append([]string(nil), d.Terms...),
		Duration: append([]float64(nil), d.Duration...),
		Coef:     append([]float64(nil), d.Coef...),
		CoefAdj:  append([]float64(nil), d.CoefAdj...),
		ExitRate: d.ExitRate,
	}
}

// DissolutionCoefs converts expected tie durations into persistence
// coefficients. The adjusted set compensates for ties lost to node exits at
// exitRate per step, which would otherwise shorten realized durations.
func DissolutionCoefs(terms []string, durations []float64, exitRate float64) (Dissolution, error) {
	if len(terms) == 0 {
		return Dissolution{}, fmt.Errorf("dissolution terms are required")
	}
	if len(durations) != len(terms) {
		return Dissolution{}, fmt.Errorf("dissolution duration count mismatch: got=%d want=%d", len(durations), len(terms))
	}
	if exitRate < 0 || exitRate >= 1 {
		return Dissolution{}, fmt.Errorf("exit rate must be in [0, 1)")
	}
	out := Dissolution{
		Terms:    append([]string(nil), terms...),
		Duration: append([]float64(nil), durations...),
		Coef:     make([]float64, len(terms)),
		CoefAdj:  make([]float64, len(terms)),
		ExitRate: exitRate,
	}
	for i, duration := range durations {
		if duration < 1 {
			return Dissolution{}, fmt.Errorf("duration must be >= 1 at index %d", i)
		}
		if duration == 1 {
			out.Coef[i] = math.Inf(-1)
			out.CoefAdj[i] = math.Inf(-1)
			continue
		}
		persist := 1 - 1/duration
		adjusted := persist / ((1 - exitRate) * (1 - exitRate))
		if adjusted >= 1 {
			return Dissolution{}, fmt.Errorf("exit rate %.4f too high for duration %.2f", exitRate, duration)
		}
		out.Coef[i] = logit(persist)
		out.CoefAdj[i] = logit(adjusted)
	}
	// Terms beyond the first are offsets from the base term.
	for i := len(terms) - 1; i > 0; i-- {
		if math.IsInf(out.Coef[0], 0) || math.IsInf(out.Coef[i], 0) {
			continue
		}
		out.Coef[i] -= out.Coef[0]
		out.CoefAdj[i] -= out.CoefAdj[0]
	}
	return out, nil
}

func logit(p float64) float64 {
	return math.Log(p / (1 - p))
}
