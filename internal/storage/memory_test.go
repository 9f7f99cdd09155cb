package storage

import (
	"context"
	"reflect"
	"testing"

	"epinet/internal/model"
)

func newMemoryStore(t *testing.T) *MemoryStore {
	t.Helper()
	store := NewMemoryStore()
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	return store
}

func TestMemoryStoreRequiresInit(t *testing.T) {
	store := NewMemoryStore()
	if err := store.SaveRun(context.Background(), model.RunRecord{ID: "r1"}); err == nil {
		t.Fatal("expected error before init")
	}
}

func TestMemoryStoreRunsAreListedInCreationOrder(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(t)
	runs := []model.RunRecord{
		Stamp(model.RunRecord{ID: "b", CreatedAtUTC: "2026-01-02T00:00:00Z", Networks: []string{"main"}}),
		Stamp(model.RunRecord{ID: "a", CreatedAtUTC: "2026-01-03T00:00:00Z"}),
		Stamp(model.RunRecord{ID: "c", CreatedAtUTC: "2026-01-02T00:00:00Z"}),
	}
	for _, run := range runs {
		if err := store.SaveRun(ctx, run); err != nil {
			t.Fatalf("save run: %v", err)
		}
	}
	listed, err := store.ListRuns(ctx)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	var ids []string
	for _, run := range listed {
		ids = append(ids, run.ID)
	}
	if !reflect.DeepEqual(ids, []string{"b", "c", "a"}) {
		t.Fatalf("unexpected order: %v", ids)
	}

	got, ok, err := store.GetRun(ctx, "b")
	if err != nil || !ok {
		t.Fatalf("get run: ok=%v err=%v", ok, err)
	}
	got.Networks[0] = "mutated"
	again, _, _ := store.GetRun(ctx, "b")
	if again.Networks[0] != "main" {
		t.Fatalf("expected defensive copy, got %v", again.Networks)
	}
	if _, ok, _ := store.GetRun(ctx, "missing"); ok {
		t.Fatal("expected missing run")
	}
}

func TestMemoryStoreStepDiagnosticsRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(t)
	input := []model.StepDiagnostics{
		{At: 1, Network: 0, Active: 100, Edges: 50, MeanDegree: 1, BaseCoef: -4.6},
		{At: 2, Network: 0, Active: 80, Edges: 41, MeanDegree: 1.025, BaseCoef: -4.38, Resimulated: true},
	}
	if err := store.SaveStepDiagnostics(ctx, "run-1", input); err != nil {
		t.Fatalf("save diagnostics: %v", err)
	}
	output, ok, err := store.GetStepDiagnostics(ctx, "run-1")
	if err != nil {
		t.Fatalf("get diagnostics: %v", err)
	}
	if !ok || !reflect.DeepEqual(output, input) {
		t.Fatalf("unexpected diagnostics: ok=%v %+v", ok, output)
	}
}

func TestMemoryStorePerNetworkRecords(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(t)
	edges := []model.CumulativeEdge{{Tail: 0, Head: 1, Start: 1, Stop: 4}}
	if err := store.SaveCumulative(ctx, "run-1", 1, edges); err != nil {
		t.Fatalf("save cumulative: %v", err)
	}
	if _, ok, _ := store.GetCumulative(ctx, "run-1", 0); ok {
		t.Fatal("expected no cumulative edgelist for network 0")
	}
	got, ok, err := store.GetCumulative(ctx, "run-1", 1)
	if err != nil || !ok || !reflect.DeepEqual(got, edges) {
		t.Fatalf("unexpected cumulative: ok=%v err=%v %+v", ok, err, got)
	}

	history := []model.StatsRecord{{At: 2, Names: []string{"edges"}, Rows: [][]float64{{3}, {4}}}}
	if err := store.SaveStatsHistory(ctx, "run-1", 0, history); err != nil {
		t.Fatalf("save stats: %v", err)
	}
	history[0].Rows[0][0] = 99
	stats, ok, err := store.GetStatsHistory(ctx, "run-1", 0)
	if err != nil || !ok {
		t.Fatalf("get stats: ok=%v err=%v", ok, err)
	}
	if stats[0].Rows[0][0] != 3 {
		t.Fatalf("expected stored stats to be a copy, got %v", stats[0].Rows)
	}
}

func TestMemoryStoreNetworkParams(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(t)
	params := []model.NetworkParams{{Name: "main", Formation: model.Formula{Terms: []string{"edges"}}, Coef: model.Coefs{-4}}}
	if err := store.SaveNetworkParams(ctx, "run-1", params); err != nil {
		t.Fatalf("save params: %v", err)
	}
	params[0].Coef[0] = 0
	got, ok, err := store.GetNetworkParams(ctx, "run-1")
	if err != nil || !ok {
		t.Fatalf("get params: ok=%v err=%v", ok, err)
	}
	if got[0].Coef[0] != -4 {
		t.Fatalf("expected stored params to be a copy, got %v", got[0].Coef)
	}
}
