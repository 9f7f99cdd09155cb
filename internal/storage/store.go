package storage

import (
	"context"

	"epinet/internal/model"
)

// Store persists finished replicates. Per-network records are keyed by run
// id and 0-based network index.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	ListRuns(ctx context.Context) ([]model.RunRecord, error)
	SaveStepDiagnostics(ctx context.Context, runID string, diagnostics []model.StepDiagnostics) error
	GetStepDiagnostics(ctx context.Context, runID string) ([]model.StepDiagnostics, bool, error)
	SaveCumulative(ctx context.Context, runID string, network int, edges []model.CumulativeEdge) error
	GetCumulative(ctx context.Context, runID string, network int) ([]model.CumulativeEdge, bool, error)
	SaveStatsHistory(ctx context.Context, runID string, network int, history []model.StatsRecord) error
	GetStatsHistory(ctx context.Context, runID string, network int) ([]model.StatsRecord, bool, error)
	SaveNetworkParams(ctx context.Context, runID string, params []model.NetworkParams) error
	GetNetworkParams(ctx context.Context, runID string) ([]model.NetworkParams, bool, error)
}
