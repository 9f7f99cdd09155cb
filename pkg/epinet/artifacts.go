package epinet

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"epinet/internal/model"
	"epinet/internal/platform"
	"epinet/internal/stats"
)

// SupportModule is a service started with the client's platform and stopped
// when the client closes. Modules stop in reverse registration order.
type SupportModule interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// StopReason is passed to support modules that also implement
// StopWithReason(ctx, StopReason) error.
type StopReason = platform.StopReason

const (
	StopNormal   = platform.StopReasonNormal
	StopShutdown = platform.StopReasonShutdown
)

// artifactWriter is the support module that turns persisted batches into run
// directories, run index entries and an ensemble summary.
type artifactWriter struct {
	dir    string
	logger *slog.Logger

	mu      sync.Mutex
	written map[string]batchArtifacts
}

type batchArtifacts struct {
	runDirs    []string
	summaryDir string
	ensemble   []stats.EnsembleRow
}

func newArtifactWriter(dir string, logger *slog.Logger) *artifactWriter {
	return &artifactWriter{dir: dir, logger: logger, written: make(map[string]batchArtifacts)}
}

func (w *artifactWriter) Name() string { return "artifacts" }

func (w *artifactWriter) Start(context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	if _, err := stats.ListRunIndex(w.dir); err != nil {
		return fmt.Errorf("run index in %s: %w", w.dir, err)
	}
	return nil
}

func (w *artifactWriter) Stop(ctx context.Context) error {
	return w.StopWithReason(ctx, platform.StopReasonNormal)
}

func (w *artifactWriter) StopWithReason(_ context.Context, reason platform.StopReason) error {
	w.mu.Lock()
	pending := len(w.written)
	w.written = make(map[string]batchArtifacts)
	w.mu.Unlock()
	w.logger.Debug("artifact writer stopped", "reason", reason, "unclaimed_batches", pending)
	return nil
}

func (w *artifactWriter) BatchPersisted(_ context.Context, batch platform.BatchResult) error {
	out := batchArtifacts{runDirs: make([]string, 0, len(batch.Replicates))}
	replicateDiagnostics := make([][]model.StepDiagnostics, 0, len(batch.Replicates))
	for _, rec := range batch.Replicates {
		runDir, err := w.writeRun(batch, rec)
		if err != nil {
			return err
		}
		out.runDirs = append(out.runDirs, filepath.Clean(runDir))
		replicateDiagnostics = append(replicateDiagnostics, rec.Diagnostics)
	}

	out.ensemble = stats.SummarizeEnsemble(replicateDiagnostics)
	out.summaryDir = filepath.Join(w.dir, batchesDir, batch.ID)
	if err := stats.WriteEnsembleSummary(out.summaryDir, out.ensemble); err != nil {
		return err
	}

	w.mu.Lock()
	w.written[batch.ID] = out
	w.mu.Unlock()
	w.logger.Debug("batch artifacts written", "batch", batch.ID, "runs", len(out.runDirs))
	return nil
}

// take hands over what BatchPersisted wrote for a batch.
func (w *artifactWriter) take(batchID string) (batchArtifacts, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	out, ok := w.written[batchID]
	delete(w.written, batchID)
	return out, ok
}

func (w *artifactWriter) writeRun(batch platform.BatchResult, rec platform.ReplicateRecord) (string, error) {
	networks := make([]stats.NetworkArtifacts, 0, len(rec.Params))
	for i, params := range rec.Params {
		networks = append(networks, stats.NetworkArtifacts{
			Name:         params.Name,
			Cumulative:   rec.Cumulative[i],
			StatsHistory: rec.StatsHistory[i],
		})
	}

	runDir, err := stats.WriteRunArtifacts(w.dir, stats.RunArtifacts{
		Config: stats.RunConfig{
			RunID:          rec.Run.ID,
			ParentRunID:    rec.Run.ParentRunID,
			Replicate:      rec.Run.Replicate,
			Seed:           rec.Run.Seed,
			Sampler:        batch.Sampler,
			Control:        batch.Control,
			Networks:       rec.Run.Networks,
			PopulationSize: batch.Nodes,
			Groups:         batch.Control.NumGroups(),
			Modules:        rec.Modules,
			ConfigPath:     batch.Source,
		},
		Diagnostics: rec.Diagnostics,
		Params:      rec.Params,
		Networks:    networks,
	})
	if err != nil {
		return "", err
	}

	if err := stats.AppendRunIndex(w.dir, stats.RunIndexEntry{
		RunID:          rec.Run.ID,
		ParentRunID:    rec.Run.ParentRunID,
		Replicate:      rec.Run.Replicate,
		Seed:           rec.Run.Seed,
		Steps:          rec.Run.Steps,
		Networks:       len(rec.Params),
		Representation: string(batch.Control.Representation),
		FinalActive:    rec.Run.FinalActive,
		FinalEdges:     rec.Run.FinalEdges,
		CreatedAtUTC:   rec.Run.CreatedAtUTC,
	}); err != nil {
		return "", err
	}
	return runDir, nil
}
