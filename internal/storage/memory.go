package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"epinet/internal/model"
)

var errNotInitialized = errors.New("store is not initialized")

type networkKey struct {
	runID   string
	network int
}

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	runs        map[string]model.RunRecord
	diagnostics map[string][]model.StepDiagnostics
	cumulative  map[networkKey][]model.CumulativeEdge
	stats       map[networkKey][]model.StatsRecord
	params      map[string][]model.NetworkParams
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.runs = make(map[string]model.RunRecord)
	s.diagnostics = make(map[string][]model.StepDiagnostics)
	s.cumulative = make(map[networkKey][]model.CumulativeEdge)
	s.stats = make(map[networkKey][]model.StatsRecord)
	s.params = make(map[string][]model.NetworkParams)
	return nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.runs[run.ID] = cloneRun(run)
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return model.RunRecord{}, false, nil
	}
	return cloneRun(run), true, nil
}

// ListRuns returns every run ordered by creation time, then id.
func (s *MemoryStore) ListRuns(_ context.Context) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, cloneRun(run))
	}
	sortRuns(out)
	return out, nil
}

func (s *MemoryStore) SaveStepDiagnostics(_ context.Context, runID string, diagnostics []model.StepDiagnostics) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.diagnostics[runID] = append([]model.StepDiagnostics(nil), diagnostics...)
	return nil
}

func (s *MemoryStore) GetStepDiagnostics(_ context.Context, runID string) ([]model.StepDiagnostics, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	diagnostics, ok := s.diagnostics[runID]
	if !ok {
		return nil, false, nil
	}
	return append([]model.StepDiagnostics(nil), diagnostics...), true, nil
}

func (s *MemoryStore) SaveCumulative(_ context.Context, runID string, network int, edges []model.CumulativeEdge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.cumulative[networkKey{runID, network}] = append([]model.CumulativeEdge(nil), edges...)
	return nil
}

func (s *MemoryStore) GetCumulative(_ context.Context, runID string, network int) ([]model.CumulativeEdge, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	edges, ok := s.cumulative[networkKey{runID, network}]
	if !ok {
		return nil, false, nil
	}
	return append([]model.CumulativeEdge(nil), edges...), true, nil
}

func (s *MemoryStore) SaveStatsHistory(_ context.Context, runID string, network int, history []model.StatsRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.stats[networkKey{runID, network}] = cloneStats(history)
	return nil
}

func (s *MemoryStore) GetStatsHistory(_ context.Context, runID string, network int) ([]model.StatsRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.stats[networkKey{runID, network}]
	if !ok {
		return nil, false, nil
	}
	return cloneStats(history), true, nil
}

func (s *MemoryStore) SaveNetworkParams(_ context.Context, runID string, params []model.NetworkParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.params[runID] = cloneParams(params)
	return nil
}

func (s *MemoryStore) GetNetworkParams(_ context.Context, runID string) ([]model.NetworkParams, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	params, ok := s.params[runID]
	if !ok {
		return nil, false, nil
	}
	return cloneParams(params), true, nil
}

func cloneRun(run model.RunRecord) model.RunRecord {
	run.Networks = append([]string(nil), run.Networks...)
	run.FinalEdges = append([]int(nil), run.FinalEdges...)
	run.FinalCoef = append([]float64(nil), run.FinalCoef...)
	return run
}

func cloneStats(history []model.StatsRecord) []model.StatsRecord {
	out := make([]model.StatsRecord, 0, len(history))
	for _, record := range history {
		rows := make([][]float64, 0, len(record.Rows))
		for _, row := range record.Rows {
			rows = append(rows, append([]float64(nil), row...))
		}
		out = append(out, model.StatsRecord{At: record.At, Names: append([]string(nil), record.Names...), Rows: rows})
	}
	return out
}

func cloneParams(params []model.NetworkParams) []model.NetworkParams {
	out := make([]model.NetworkParams, 0, len(params))
	for _, p := range params {
		out = append(out, p.Clone())
	}
	return out
}

func sortRuns(runs []model.RunRecord) {
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAtUTC != runs[j].CreatedAtUTC {
			return runs[i].CreatedAtUTC < runs[j].CreatedAtUTC
		}
		return runs[i].ID < runs[j].ID
	})
}
