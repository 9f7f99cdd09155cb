package model

import (
	"math"
	"testing"
)

func TestDissolutionCoefsSingleTerm(t *testing.T) {
	diss, err := DissolutionCoefs([]string{"edges"}, []float64{20}, 0)
	if err != nil {
		t.Fatalf("dissolution coefs: %v", err)
	}
	want := math.Log(19)
	if math.Abs(diss.Coef[0]-want) > 1e-12 {
		t.Fatalf("unexpected crude coef: got=%f want=%f", diss.Coef[0], want)
	}
	if diss.CoefAdj[0] != diss.Coef[0] {
		t.Fatalf("expected adjusted coef to equal crude coef without exits: %+v", diss)
	}
	if !diss.Durational() {
		t.Fatal("expected durational dissolution")
	}
}

func TestDissolutionCoefsExitRateRaisesPersistence(t *testing.T) {
	diss, err := DissolutionCoefs([]string{"edges"}, []float64{20}, 0.01)
	if err != nil {
		t.Fatalf("dissolution coefs: %v", err)
	}
	if diss.CoefAdj[0] <= diss.Coef[0] {
		t.Fatalf("expected adjusted coef above crude coef: %+v", diss)
	}
	persist := 1.0 / (1 + math.Exp(-diss.CoefAdj[0]))
	realized := persist * 0.99 * 0.99
	if math.Abs(realized-0.95) > 1e-9 {
		t.Fatalf("unexpected realized persistence: %f", realized)
	}
}

func TestDissolutionCoefsOffsetTerms(t *testing.T) {
	diss, err := DissolutionCoefs([]string{"edges", "nodematch.group"}, []float64{10, 40}, 0)
	if err != nil {
		t.Fatalf("dissolution coefs: %v", err)
	}
	if math.Abs(diss.Coef[0]+diss.Coef[1]-math.Log(39)) > 1e-12 {
		t.Fatalf("expected matched dyads to reach duration 40: %+v", diss.Coef)
	}
}

func TestDissolutionCoefsUnitDuration(t *testing.T) {
	diss, err := DissolutionCoefs([]string{"edges"}, []float64{1}, 0)
	if err != nil {
		t.Fatalf("dissolution coefs: %v", err)
	}
	if diss.Durational() {
		t.Fatal("duration 1 must select the cross-sectional path")
	}
	if !math.IsInf(diss.Coef[0], -1) {
		t.Fatalf("expected -Inf coef, got %f", diss.Coef[0])
	}
}

func TestDissolutionCoefsValidation(t *testing.T) {
	if _, err := DissolutionCoefs(nil, nil, 0); err == nil {
		t.Fatal("expected missing terms error")
	}
	if _, err := DissolutionCoefs([]string{"edges"}, []float64{10, 20}, 0); err == nil {
		t.Fatal("expected duration count error")
	}
	if _, err := DissolutionCoefs([]string{"edges"}, []float64{0.5}, 0); err == nil {
		t.Fatal("expected duration range error")
	}
	if _, err := DissolutionCoefs([]string{"edges"}, []float64{1000}, 0.2); err == nil {
		t.Fatal("expected exit rate too high error")
	}
}

func TestControlValidate(t *testing.T) {
	valid := Control{ResimulateEachStep: true, Representation: RepresentationEdgeList, NumSteps: 10}
	if err := valid.Validate(1); err != nil {
		t.Fatalf("validate: %v", err)
	}
	cases := []Control{
		{ResimulateEachStep: false, Representation: RepresentationEdgeList, NumSteps: 10},
		{ResimulateEachStep: true, Representation: "matrix", NumSteps: 10},
		{ResimulateEachStep: true, Representation: RepresentationDynamic, NumSteps: 0},
		{ResimulateEachStep: true, Representation: RepresentationDynamic, NumSteps: 5, CumulativeHorizon: -1},
		{ResimulateEachStep: true, Representation: RepresentationDynamic, NumSteps: 5, TrackDuration: []bool{true, true}},
	}
	for i, ctrl := range cases {
		if err := ctrl.Validate(1); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}

func TestNetworkParamsCloneIsDeep(t *testing.T) {
	params := NetworkParams{
		Formation: Formula{Terms: []string{"edges"}},
		Coef:      []float64{-4},
	}
	clone := params.Clone()
	clone.Coef[0] = 1
	clone.Formation.Terms[0] = "nodematch.group"
	if params.Coef[0] != -4 || params.Formation.Terms[0] != "edges" {
		t.Fatalf("clone shares state with original: %+v", params)
	}
}
