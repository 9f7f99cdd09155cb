package platform

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"epinet/internal/model"
	"epinet/internal/sim"
	"epinet/internal/state"
	"epinet/internal/storage"
)

type testSupportModule struct {
	name       string
	startCalls int
	stopCalls  int
	startErr   error
	stopReason StopReason
}

func (m *testSupportModule) Name() string { return m.name }

func (m *testSupportModule) Start(context.Context) error {
	m.startCalls++
	return m.startErr
}

func (m *testSupportModule) Stop(context.Context) error {
	m.stopCalls++
	return nil
}

func (m *testSupportModule) StopWithReason(ctx context.Context, reason StopReason) error {
	m.stopReason = reason
	return m.Stop(ctx)
}

type recordingObserver struct {
	testSupportModule
	batches []BatchResult
	err     error
}

func (o *recordingObserver) BatchPersisted(_ context.Context, batch BatchResult) error {
	o.batches = append(o.batches, batch)
	return o.err
}

type namedModule struct{ name string }

func (m namedModule) Name() string { return m.name }

func (m namedModule) Step(context.Context, *state.Container, int) error { return nil }

// blockingModule holds its replicate until the run context ends.
type blockingModule struct{ started chan<- struct{} }

func (m blockingModule) Name() string { return "blocking" }

func (m blockingModule) Step(ctx context.Context, _ *state.Container, _ int) error {
	select {
	case m.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return ctx.Err()
}

func blockingSpec(started chan<- struct{}) sim.Spec {
	spec := testSpec()
	spec.Modules = []sim.ModuleFactory{func(int64) (sim.Module, error) {
		return blockingModule{started: started}, nil
	}}
	return spec
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func testSpec() sim.Spec {
	n := 12
	active := make([]int, n)
	for v := range active {
		active[v] = 1
	}
	return sim.Spec{
		Control: model.Control{
			ResimulateEachStep: true,
			Representation:     model.RepresentationEdgeList,
			NumSteps:           4,
			SaveStats:          true,
		},
		Networks: []model.NetworkParams{
			{Name: "main", Formation: model.Formula{Terms: []string{"edges"}}, Coef: model.Coefs{-1.5}},
			{Name: "casual", Formation: model.Formula{Terms: []string{"edges"}}, Coef: model.Coefs{-2}},
		},
		Attrs:      map[string][]int{"active": active},
		Sampler:    "bernoulli",
		Seed:       3,
		Replicates: 2,
		Workers:    2,
	}
}

func newTestPlatform(t *testing.T, store storage.Store, modules ...SupportModule) *Platform {
	t.Helper()
	p := New(Config{
		Store:          store,
		SupportModules: modules,
		Now:            func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
		NewID:          sequentialIDs(),
	})
	if err := p.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	return p
}

func TestInitRequiresStore(t *testing.T) {
	if err := New(Config{}).Init(context.Background()); err == nil {
		t.Fatal("expected missing store error")
	}
}

func TestSupportModuleLifecycle(t *testing.T) {
	first := &testSupportModule{name: "first"}
	second := &testSupportModule{name: "second"}
	p := newTestPlatform(t, storage.NewMemoryStore(), first, second)
	if got := p.ActiveSupportModules(); len(got) != 2 || got[0] != "first" {
		t.Fatalf("unexpected modules: %v", got)
	}
	if err := p.Init(context.Background()); err != nil {
		t.Fatalf("second init: %v", err)
	}
	if first.startCalls != 1 {
		t.Fatalf("expected init to be idempotent, start calls=%d", first.startCalls)
	}

	if err := p.StopWithReason(StopReasonShutdown); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if p.Started() || p.LastStopReason() != StopReasonShutdown {
		t.Fatalf("unexpected state after stop: started=%v reason=%s", p.Started(), p.LastStopReason())
	}
	if first.stopReason != StopReasonShutdown || second.stopCalls != 1 {
		t.Fatalf("expected modules stopped with reason: first=%+v second=%+v", first, second)
	}
	if err := p.StopWithReason("crash"); err == nil {
		t.Fatal("expected unsupported stop reason error")
	}
}

func TestInitRollsBackStartedModules(t *testing.T) {
	ok := &testSupportModule{name: "ok"}
	bad := &testSupportModule{name: "bad", startErr: errors.New("boom")}
	p := New(Config{Store: storage.NewMemoryStore(), SupportModules: []SupportModule{ok, bad}})
	if err := p.Init(context.Background()); err == nil {
		t.Fatal("expected start failure")
	}
	if p.Started() || ok.stopCalls != 1 {
		t.Fatalf("expected rollback: started=%v stops=%d", p.Started(), ok.stopCalls)
	}

	dup := New(Config{Store: storage.NewMemoryStore(), SupportModules: []SupportModule{&testSupportModule{name: "x"}, &testSupportModule{name: "x"}}})
	if err := dup.Init(context.Background()); err == nil {
		t.Fatal("expected duplicate module error")
	}
}

func TestRunBatchRequiresInit(t *testing.T) {
	p := New(Config{Store: storage.NewMemoryStore()})
	if _, err := p.RunBatch(context.Background(), BatchConfig{Spec: testSpec()}); err == nil {
		t.Fatal("expected not initialized error")
	}
}

func TestRunBatchPersistsReplicates(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	p := newTestPlatform(t, store)

	result, err := p.RunBatch(ctx, BatchConfig{Spec: testSpec()})
	if err != nil {
		t.Fatalf("run batch: %v", err)
	}
	if result.ID != "id-1" || len(result.Replicates) != 2 {
		t.Fatalf("unexpected batch: id=%s replicates=%d", result.ID, len(result.Replicates))
	}
	if result.Control.NumSteps != 4 || !result.Control.SaveStats || result.Control.Representation != model.RepresentationEdgeList {
		t.Fatalf("expected the run control in the batch result, got %+v", result.Control)
	}

	runs, err := store.ListRuns(ctx)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	for i, rec := range result.Replicates {
		run := rec.Run
		if run.ParentRunID != "id-1" || run.Replicate != i || run.Seed != 3+int64(i) {
			t.Fatalf("unexpected run %d: %+v", i, run)
		}
		if run.SchemaVersion != storage.CurrentSchemaVersion || run.CreatedAtUTC != "2026-03-01T12:00:00Z" {
			t.Fatalf("expected stamped run, got %+v", run)
		}
		if len(run.Networks) != 2 || run.Networks[1] != "casual" || run.FinalActive != 12 {
			t.Fatalf("unexpected run summary: %+v", run)
		}
		stored, ok, err := store.GetRun(ctx, run.ID)
		if err != nil || !ok {
			t.Fatalf("get run %s: ok=%v err=%v", run.ID, ok, err)
		}
		if stored.ParentRunID != "id-1" {
			t.Fatalf("unexpected stored run: %+v", stored)
		}

		diagnostics, ok, err := store.GetStepDiagnostics(ctx, run.ID)
		if err != nil || !ok {
			t.Fatalf("get diagnostics: ok=%v err=%v", ok, err)
		}
		if len(diagnostics) != 4*2 {
			t.Fatalf("expected one row per step and network, got %d", len(diagnostics))
		}
		last := diagnostics[len(diagnostics)-1]
		if last.At != 4 || run.FinalEdges[last.Network] != last.Edges {
			t.Fatalf("final edges do not match last diagnostics: %+v vs %v", last, run.FinalEdges)
		}
		for network := 0; network < 2; network++ {
			if _, ok, err := store.GetCumulative(ctx, run.ID, network); err != nil || !ok {
				t.Fatalf("get cumulative %d: ok=%v err=%v", network, ok, err)
			}
			if _, ok, err := store.GetStatsHistory(ctx, run.ID, network); err != nil || !ok {
				t.Fatalf("get stats %d: ok=%v err=%v", network, ok, err)
			}
		}
		params, ok, err := store.GetNetworkParams(ctx, run.ID)
		if err != nil || !ok || len(params) != 2 {
			t.Fatalf("get params: ok=%v err=%v %+v", ok, err, params)
		}
	}
}

func TestRunBatchInvalidSpecPersistsNothing(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	p := newTestPlatform(t, store)

	spec := testSpec()
	spec.Sampler = "missing"
	if _, err := p.RunBatch(ctx, BatchConfig{ID: "b", Spec: spec}); err == nil {
		t.Fatal("expected unknown sampler error")
	}
	runs, err := store.ListRuns(ctx)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("expected no persisted runs, got %d", len(runs))
	}
}

func TestRunBatchCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := newTestPlatform(t, storage.NewMemoryStore())
	if _, err := p.RunBatch(ctx, BatchConfig{Spec: testSpec()}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestStopBatchUnknown(t *testing.T) {
	p := newTestPlatform(t, storage.NewMemoryStore())
	if err := p.StopBatch("nope"); err == nil {
		t.Fatal("expected unknown batch error")
	}
}

func TestCollectRequiresState(t *testing.T) {
	if _, err := Collect(sim.RunResult{Replicate: 1}); err == nil {
		t.Fatal("expected missing state error")
	}
}

func TestRunBatchNotifiesObservers(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	observer := &recordingObserver{testSupportModule: testSupportModule{name: "observer"}}
	p := newTestPlatform(t, store, observer)

	spec := testSpec()
	spec.Modules = []sim.ModuleFactory{func(int64) (sim.Module, error) { return namedModule{name: "noop"}, nil }}
	result, err := p.RunBatch(ctx, BatchConfig{ID: "b", Spec: spec, Source: "run.yaml"})
	if err != nil {
		t.Fatalf("run batch: %v", err)
	}
	if len(observer.batches) != 1 {
		t.Fatalf("expected one notification, got %d", len(observer.batches))
	}
	got := observer.batches[0]
	if got.ID != "b" || got.Source != "run.yaml" || got.Sampler != "bernoulli" || got.Nodes != 12 {
		t.Fatalf("unexpected batch: %+v", got)
	}
	if len(got.Replicates) != len(result.Replicates) {
		t.Fatalf("expected every replicate in the notification, got %d", len(got.Replicates))
	}
	for _, rec := range got.Replicates {
		if len(rec.Modules) != 1 || rec.Modules[0] != "noop" {
			t.Fatalf("unexpected modules: %v", rec.Modules)
		}
	}

	observer.err = errors.New("disk full")
	if _, err := p.RunBatch(ctx, BatchConfig{ID: "c", Spec: testSpec()}); err == nil {
		t.Fatal("expected observer error")
	}
	runs, err := store.ListRuns(ctx)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 4 {
		t.Fatalf("expected runs stored before the observer failed, got %d", len(runs))
	}
}

func TestStopBatchCancelsRunningBatch(t *testing.T) {
	store := storage.NewMemoryStore()
	p := newTestPlatform(t, store)
	started := make(chan struct{}, 1)

	done := make(chan error, 1)
	go func() {
		_, err := p.RunBatch(context.Background(), BatchConfig{ID: "long", Spec: blockingSpec(started)})
		done <- err
	}()
	<-started

	if got := p.RunningBatches(); len(got) != 1 || got[0] != "long" {
		t.Fatalf("unexpected running batches: %v", got)
	}
	if err := p.StopBatch("long"); err != nil {
		t.Fatalf("stop batch: %v", err)
	}
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if got := p.RunningBatches(); len(got) != 0 {
		t.Fatalf("expected no running batches, got %v", got)
	}
	runs, err := store.ListRuns(context.Background())
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("expected nothing persisted, got %d runs", len(runs))
	}
}

func TestRunBatchStopsWhenCallerCancels(t *testing.T) {
	p := newTestPlatform(t, storage.NewMemoryStore())
	started := make(chan struct{}, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := p.RunBatch(ctx, BatchConfig{ID: "long", Spec: blockingSpec(started)})
		done <- err
	}()
	<-started
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("batch did not stop after cancel")
	}
}
