// Package platform owns the store lifecycle and turns finished replicates
// into persisted run records.
package platform

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"epinet/internal/logging"
	"epinet/internal/model"
	"epinet/internal/sim"
	"epinet/internal/storage"
)

type Config struct {
	Store          storage.Store
	SupportModules []SupportModule
	Logger         *slog.Logger
	// Now stamps run records; defaults to time.Now.
	Now func() time.Time
	// NewID names batches and runs; defaults to uuid.NewString.
	NewID func() string
}

// SupportModule is a long-lived service started with the platform and
// stopped in reverse order.
type SupportModule interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// BatchObserver is a support module told about every persisted batch. An
// observer error fails the batch after its runs are stored.
type BatchObserver interface {
	SupportModule
	BatchPersisted(ctx context.Context, batch BatchResult) error
}

type StopReason string

const (
	StopReasonNormal   StopReason = "normal"
	StopReasonShutdown StopReason = "shutdown"
)

type BatchConfig struct {
	// ID names the batch; generated when empty.
	ID   string
	Spec sim.Spec
	// Source is the run file the spec came from, if any.
	Source string
}

// ReplicateRecord is everything persisted for one replicate.
type ReplicateRecord struct {
	Run          model.RunRecord
	Modules      []string
	Diagnostics  []model.StepDiagnostics
	Params       []model.NetworkParams
	Cumulative   [][]model.CumulativeEdge
	StatsHistory [][]model.StatsRecord
}

type BatchResult struct {
	ID     string
	Source string
	// Control is the run control every replicate ran with.
	Control model.Control
	Sampler string
	// Nodes is the initial population size.
	Nodes      int
	Replicates []ReplicateRecord
}

type Platform struct {
	store  storage.Store
	logger *slog.Logger
	now    func() time.Time
	newID  func() string

	mu             sync.RWMutex
	supportModules []SupportModule
	started        bool
	lastStopReason StopReason
	batches        map[string]context.CancelFunc

	config Config
}

func New(cfg Config) *Platform {
	p := &Platform{
		store:          cfg.Store,
		logger:         logging.OrDiscard(cfg.Logger),
		now:            cfg.Now,
		newID:          cfg.NewID,
		batches:        make(map[string]context.CancelFunc),
		lastStopReason: StopReasonNormal,
		config:         cfg,
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.newID == nil {
		p.newID = uuid.NewString
	}
	return p
}

// Init initializes the store and starts support modules. A failing module
// stops the ones already started. Init on a started platform is a no-op.
func (p *Platform) Init(ctx context.Context) error {
	if p.store == nil {
		return fmt.Errorf("store is required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}
	if err := p.store.Init(ctx); err != nil {
		return err
	}

	started := make([]SupportModule, 0, len(p.config.SupportModules))
	seen := make(map[string]struct{}, len(p.config.SupportModules))
	for i, module := range p.config.SupportModules {
		var err error
		switch {
		case module == nil:
			err = fmt.Errorf("support module is nil at index %d", i)
		case module.Name() == "":
			err = fmt.Errorf("support module name is required at index %d", i)
		default:
			if _, dup := seen[module.Name()]; dup {
				err = fmt.Errorf("duplicate support module: %s", module.Name())
			} else if startErr := module.Start(ctx); startErr != nil {
				err = fmt.Errorf("start support module %s: %w", module.Name(), startErr)
			}
		}
		if err != nil {
			stopSupportModules(ctx, started, StopReasonShutdown)
			return err
		}
		seen[module.Name()] = struct{}{}
		started = append(started, module)
	}

	p.supportModules = started
	p.started = true
	p.logger.Debug("platform started", "support_modules", len(started))
	return nil
}

func (p *Platform) Started() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.started
}

func (p *Platform) LastStopReason() StopReason {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastStopReason
}

func (p *Platform) ActiveSupportModules() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.supportModules))
	for _, module := range p.supportModules {
		names = append(names, module.Name())
	}
	return names
}

func (p *Platform) Stop() {
	_ = p.StopWithReason(StopReasonNormal)
}

// StopWithReason cancels running batches and stops support modules.
func (p *Platform) StopWithReason(reason StopReason) error {
	if reason == "" {
		reason = StopReasonNormal
	}
	if !isValidStopReason(reason) {
		return fmt.Errorf("unsupported stop reason: %s", reason)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, cancel := range p.batches {
		cancel()
	}
	stopSupportModules(context.Background(), p.supportModules, reason)

	p.started = false
	p.lastStopReason = reason
	p.supportModules = nil
	p.batches = make(map[string]context.CancelFunc)
	return nil
}

// RunningBatches lists the ids of batches in flight.
func (p *Platform) RunningBatches() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, 0, len(p.batches))
	for id := range p.batches {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// StopBatch cancels a running batch. Its replicates fail with the context
// error and nothing is persisted.
func (p *Platform) StopBatch(id string) error {
	p.mu.RLock()
	cancel, ok := p.batches[id]
	p.mu.RUnlock()
	if !ok {
		return fmt.Errorf("batch not running: %s", id)
	}
	cancel()
	return nil
}

// RunBatch runs every replicate of cfg.Spec and persists each one as a run
// whose parent is the batch, then notifies batch observers. Nothing is
// persisted when any replicate fails. Cancelling ctx stops the batch through
// StopBatch.
func (p *Platform) RunBatch(ctx context.Context, cfg BatchConfig) (BatchResult, error) {
	if !p.Started() {
		return BatchResult{}, fmt.Errorf("platform is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return BatchResult{}, err
	}
	batchID := cfg.ID
	if batchID == "" {
		batchID = p.newID()
	}

	runner, err := sim.NewRunner(cfg.Spec, p.logger.With("batch", batchID))
	if err != nil {
		return BatchResult{}, err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()
	if err := p.registerBatch(batchID, cancel); err != nil {
		return BatchResult{}, err
	}
	defer p.unregisterBatch(batchID)
	stopOnCancel := context.AfterFunc(ctx, func() {
		if err := p.StopBatch(batchID); err == nil {
			p.logger.Info("batch stopped", "batch", batchID, "cause", context.Cause(ctx))
		}
	})
	defer stopOnCancel()

	runs, err := runner.RunReplicates(runCtx)
	if err != nil {
		return BatchResult{}, err
	}

	control := cfg.Spec.Control
	control.TrackDuration = append([]bool(nil), control.TrackDuration...)
	result := BatchResult{
		ID:         batchID,
		Source:     cfg.Source,
		Control:    control,
		Sampler:    cfg.Spec.Sampler,
		Nodes:      initialNodes(cfg.Spec.Attrs),
		Replicates: make([]ReplicateRecord, 0, len(runs)),
	}
	createdAt := p.now().UTC().Format(time.RFC3339Nano)
	for _, run := range runs {
		record, err := Collect(run)
		if err != nil {
			return BatchResult{}, err
		}
		record.Run.ID = p.newID()
		record.Run.ParentRunID = batchID
		record.Run.CreatedAtUTC = createdAt
		if err := p.persist(runCtx, record); err != nil {
			return BatchResult{}, err
		}
		result.Replicates = append(result.Replicates, record)
	}
	p.logger.Info("batch persisted", "batch", batchID, "replicates", len(result.Replicates))

	for _, observer := range p.batchObservers() {
		if err := observer.BatchPersisted(runCtx, result); err != nil {
			return BatchResult{}, fmt.Errorf("support module %s: %w", observer.Name(), err)
		}
	}
	return result, nil
}

// Collect extracts the persisted view of a finished replicate. The run id
// and timestamps are left for the caller.
func Collect(run sim.RunResult) (ReplicateRecord, error) {
	c := run.Container
	if c == nil {
		return ReplicateRecord{}, fmt.Errorf("replicate %d has no state", run.Replicate)
	}
	control := c.Control()
	n := c.NumNetworks()
	g1, g2, err := c.ActiveCounts()
	if err != nil {
		return ReplicateRecord{}, err
	}

	record := ReplicateRecord{
		Run: storage.Stamp(model.RunRecord{
			Replicate:   run.Replicate,
			Seed:        run.Seed,
			Steps:       control.NumSteps,
			Networks:    make([]string, 0, n),
			FinalEdges:  make([]int, n),
			FinalCoef:   make(model.Coefs, 0, n),
			FinalActive: g1 + g2,
		}),
		Modules:      append([]string(nil), run.Modules...),
		Diagnostics:  append([]model.StepDiagnostics(nil), run.Diagnostics...),
		Params:       make([]model.NetworkParams, 0, n),
		Cumulative:   make([][]model.CumulativeEdge, 0, n),
		StatsHistory: make([][]model.StatsRecord, 0, n),
	}
	for i := 0; i < n; i++ {
		params, err := c.Params(i)
		if err != nil {
			return ReplicateRecord{}, err
		}
		cumulative, err := c.Cumulative(i)
		if err != nil {
			return ReplicateRecord{}, err
		}
		history, err := c.StatsHistory(i)
		if err != nil {
			return ReplicateRecord{}, err
		}
		record.Run.Networks = append(record.Run.Networks, params.Name)
		if len(params.Coef) > 0 {
			record.Run.FinalCoef = append(record.Run.FinalCoef, params.Coef[0])
		}
		record.Params = append(record.Params, params)
		record.Cumulative = append(record.Cumulative, cumulative)
		record.StatsHistory = append(record.StatsHistory, history)
	}
	for _, d := range run.Diagnostics {
		if d.At == control.NumSteps && d.Network >= 0 && d.Network < n {
			record.Run.FinalEdges[d.Network] = d.Edges
		}
	}
	return record, nil
}

func (p *Platform) persist(ctx context.Context, record ReplicateRecord) error {
	runID := record.Run.ID
	if err := p.store.SaveRun(ctx, record.Run); err != nil {
		return fmt.Errorf("save run %s: %w", runID, err)
	}
	if err := p.store.SaveStepDiagnostics(ctx, runID, record.Diagnostics); err != nil {
		return fmt.Errorf("save diagnostics %s: %w", runID, err)
	}
	if err := p.store.SaveNetworkParams(ctx, runID, record.Params); err != nil {
		return fmt.Errorf("save params %s: %w", runID, err)
	}
	for i := range record.Params {
		if err := p.store.SaveCumulative(ctx, runID, i, record.Cumulative[i]); err != nil {
			return fmt.Errorf("save cumulative %s/%d: %w", runID, i, err)
		}
		if err := p.store.SaveStatsHistory(ctx, runID, i, record.StatsHistory[i]); err != nil {
			return fmt.Errorf("save stats %s/%d: %w", runID, i, err)
		}
	}
	return nil
}

func (p *Platform) batchObservers() []BatchObserver {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []BatchObserver
	for _, module := range p.supportModules {
		if observer, ok := module.(BatchObserver); ok {
			out = append(out, observer)
		}
	}
	return out
}

func initialNodes(attrs map[string][]int) int {
	for _, values := range attrs {
		return len(values)
	}
	return 0
}

func (p *Platform) registerBatch(id string, cancel context.CancelFunc) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.batches[id]; exists {
		return fmt.Errorf("batch already running: %s", id)
	}
	p.batches[id] = cancel
	return nil
}

func (p *Platform) unregisterBatch(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.batches, id)
}

type reasonAwareSupportModule interface {
	SupportModule
	StopWithReason(ctx context.Context, reason StopReason) error
}

func isValidStopReason(reason StopReason) bool {
	switch reason {
	case StopReasonNormal, StopReasonShutdown:
		return true
	default:
		return false
	}
}

func stopSupportModules(ctx context.Context, modules []SupportModule, reason StopReason) {
	for i := len(modules) - 1; i >= 0; i-- {
		if withReason, ok := modules[i].(reasonAwareSupportModule); ok {
			_ = withReason.StopWithReason(ctx, reason)
			continue
		}
		_ = modules[i].Stop(ctx)
	}
}
