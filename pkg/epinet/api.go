// Package epinet is the public entry point for running network
// resimulation batches and reading their results back.
package epinet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"epinet/internal/config"
	"epinet/internal/logging"
	"epinet/internal/model"
	"epinet/internal/platform"
	"epinet/internal/stats"
	"epinet/internal/storage"
)

const (
	defaultArtifactsDir = "runs"
	defaultExportsDir   = "exports"
	defaultDBPath       = "epinet.db"
	batchesDir          = "batches"
)

type Options struct {
	StoreKind    string
	DBPath       string
	ArtifactsDir string
	ExportsDir   string
	Logger       *slog.Logger
	// SupportModules start after the artifacts writer.
	SupportModules []SupportModule
}

type Client struct {
	store  storage.Store
	logger *slog.Logger

	mu             sync.Mutex
	platform       *platform.Platform
	artifacts      *artifactWriter
	supportModules []SupportModule

	artifactsDir string
	exportsDir   string
}

type RunRequest struct {
	Config *config.Config
	// ConfigPath is recorded in each run's config snapshot.
	ConfigPath string
	BatchID    string
}

type RunSummary struct {
	BatchID    string
	RunIDs     []string
	RunDirs    []string
	SummaryDir string
	Ensemble   []stats.EnsembleRow
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID          string
	BatchID        string
	CreatedAtUTC   string
	Replicate      int
	Seed           int64
	Steps          int
	Representation string
	FinalActive    int
	FinalEdges     []int
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

type DiagnosticsRequest struct {
	RunID  string
	Latest bool
	// Network filters rows to one 0-based network; nil keeps all.
	Network *int
	Limit   int
}

type CumulativeRequest struct {
	RunID   string
	Latest  bool
	Network int
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	artifactsDir := opts.ArtifactsDir
	if artifactsDir == "" {
		artifactsDir = defaultArtifactsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	logger := logging.OrDiscard(opts.Logger)
	return &Client{
		store:          store,
		logger:         logger,
		artifacts:      newArtifactWriter(artifactsDir, logger),
		supportModules: append([]SupportModule(nil), opts.SupportModules...),
		artifactsDir:   artifactsDir,
		exportsDir:     exportsDir,
	}, nil
}

func (c *Client) Close() error {
	return c.stop(platform.StopReasonNormal)
}

// Shutdown is Close for an interrupted process: running batches are
// cancelled and support modules see a shutdown stop reason.
func (c *Client) Shutdown() error {
	return c.stop(platform.StopReasonShutdown)
}

func (c *Client) stop(reason platform.StopReason) error {
	c.mu.Lock()
	p := c.platform
	c.platform = nil
	c.mu.Unlock()
	if p != nil {
		if err := p.StopWithReason(reason); err != nil {
			return err
		}
	}
	return storage.CloseIfSupported(c.store)
}

// StopBatch cancels a batch started by Run. Run then returns the
// cancellation error and nothing of the batch is persisted.
func (c *Client) StopBatch(batchID string) error {
	c.mu.Lock()
	p := c.platform
	c.mu.Unlock()
	if p == nil {
		return fmt.Errorf("batch not running: %s", batchID)
	}
	return p.StopBatch(batchID)
}

// RunningBatches lists the ids of batches currently inside Run.
func (c *Client) RunningBatches() []string {
	c.mu.Lock()
	p := c.platform
	c.mu.Unlock()
	if p == nil {
		return nil
	}
	return p.RunningBatches()
}

func (c *Client) Init(ctx context.Context) error {
	_, err := c.ensurePlatform(ctx)
	return err
}

// Run executes every replicate the config asks for and persists them. The
// artifacts writer then adds one directory per run plus an ensemble summary.
// Cancelling ctx stops the batch.
func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	if req.Config == nil {
		return RunSummary{}, errors.New("run config is required")
	}
	spec, err := req.Config.ToRunSpec()
	if err != nil {
		return RunSummary{}, err
	}
	p, err := c.ensurePlatform(ctx)
	if err != nil {
		return RunSummary{}, err
	}

	batch, err := p.RunBatch(ctx, platform.BatchConfig{ID: req.BatchID, Spec: spec, Source: req.ConfigPath})
	if err != nil {
		return RunSummary{}, err
	}
	written, ok := c.artifacts.take(batch.ID)
	if !ok {
		return RunSummary{}, fmt.Errorf("no artifacts written for batch %s", batch.ID)
	}

	summary := RunSummary{
		BatchID:    batch.ID,
		RunDirs:    written.runDirs,
		SummaryDir: written.summaryDir,
		Ensemble:   written.ensemble,
	}
	for _, rec := range batch.Replicates {
		summary.RunIDs = append(summary.RunIDs, rec.Run.ID)
	}
	return summary, nil
}

// Runs lists indexed runs, newest first.
func (c *Client) Runs(_ context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return nil, err
	}
	if len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}

	out := make([]RunItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, RunItem{
			RunID:          e.RunID,
			BatchID:        e.ParentRunID,
			CreatedAtUTC:   e.CreatedAtUTC,
			Replicate:      e.Replicate,
			Seed:           e.Seed,
			Steps:          e.Steps,
			Representation: e.Representation,
			FinalActive:    e.FinalActive,
			FinalEdges:     append([]int(nil), e.FinalEdges...),
		})
	}
	return out, nil
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}
	runID, err := c.resolveRunID(req.RunID, req.Latest, "export")
	if err != nil {
		return ExportSummary{}, err
	}

	exportedDir, err := stats.ExportRunArtifacts(c.artifactsDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

// Diagnostics reads a run's per-step diagnostics from the store, falling
// back to its artifacts when the store no longer holds the run.
func (c *Client) Diagnostics(ctx context.Context, req DiagnosticsRequest) ([]model.StepDiagnostics, error) {
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	runID, err := c.resolveRunID(req.RunID, req.Latest, "diagnostics")
	if err != nil {
		return nil, err
	}
	if _, err := c.ensurePlatform(ctx); err != nil {
		return nil, err
	}

	diagnostics, ok, err := c.store.GetStepDiagnostics(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		diagnostics, ok, err = stats.ReadStepDiagnostics(c.artifactsDir, runID)
		if err != nil {
			return nil, err
		}
	}
	if !ok {
		return nil, fmt.Errorf("diagnostics not found for run id: %s", runID)
	}

	out := make([]model.StepDiagnostics, 0, len(diagnostics))
	for _, d := range diagnostics {
		if req.Network != nil && d.Network != *req.Network {
			continue
		}
		out = append(out, d)
	}
	if req.Limit > 0 && len(out) > req.Limit {
		out = out[:req.Limit]
	}
	return out, nil
}

// Cumulative reads one network's cumulative edgelist, store first.
func (c *Client) Cumulative(ctx context.Context, req CumulativeRequest) ([]model.CumulativeEdge, error) {
	if req.Network < 0 {
		return nil, errors.New("network must be >= 0")
	}
	runID, err := c.resolveRunID(req.RunID, req.Latest, "cumulative")
	if err != nil {
		return nil, err
	}
	if _, err := c.ensurePlatform(ctx); err != nil {
		return nil, err
	}

	edges, ok, err := c.store.GetCumulative(ctx, runID, req.Network)
	if err != nil {
		return nil, err
	}
	if !ok {
		edges, ok, err = stats.ReadCumulative(c.artifactsDir, runID, req.Network)
		if err != nil {
			return nil, err
		}
	}
	if !ok {
		return nil, fmt.Errorf("cumulative edgelist not found for run id %s network %d", runID, req.Network)
	}
	return edges, nil
}

func (c *Client) resolveRunID(runID string, latest bool, op string) (string, error) {
	if runID != "" && latest {
		return "", errors.New("use either run id or latest")
	}
	if runID != "" {
		return runID, nil
	}
	if !latest {
		return "", fmt.Errorf("%s requires run id or latest", op)
	}
	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", errors.New("no runs available")
	}
	return entries[0].RunID, nil
}

func (c *Client) ensurePlatform(ctx context.Context) (*platform.Platform, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.platform != nil {
		return c.platform, nil
	}
	modules := make([]platform.SupportModule, 0, len(c.supportModules)+1)
	modules = append(modules, c.artifacts)
	for _, m := range c.supportModules {
		modules = append(modules, m)
	}
	p := platform.New(platform.Config{Store: c.store, SupportModules: modules, Logger: c.logger})
	if err := p.Init(ctx); err != nil {
		return nil, err
	}
	c.logger.Debug("client platform ready", "support_modules", p.ActiveSupportModules())
	c.platform = p
	return c.platform, nil
}
