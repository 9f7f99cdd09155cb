package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"epinet/internal/model"
)

const (
	runIndexFile       = "run_index.json"
	configFile         = "config.json"
	diagnosticsFile    = "step_diagnostics.json"
	statsHistoryFile   = "stats_history.json"
	paramsFile         = "network_params.json"
	cumulativeFilePref = "cumulative_edgelist"
)

// RunConfig is the snapshot of run settings written next to a run's results.
type RunConfig struct {
	RunID          string        `json:"run_id"`
	ParentRunID    string        `json:"parent_run_id,omitempty"`
	Replicate      int           `json:"replicate"`
	Seed           int64         `json:"seed"`
	Sampler        string        `json:"sampler"`
	Control        model.Control `json:"control"`
	Networks       []string      `json:"networks"`
	PopulationSize int           `json:"population_size"`
	Groups         int           `json:"groups"`
	Modules        []string      `json:"modules,omitempty"`
	ConfigPath     string        `json:"config_path,omitempty"`
}

// NetworkArtifacts holds the per-network history of one run.
type NetworkArtifacts struct {
	Name         string                 `json:"name"`
	Cumulative   []model.CumulativeEdge `json:"-"`
	StatsHistory []model.StatsRecord    `json:"stats_history"`
}

type RunArtifacts struct {
	Config      RunConfig               `json:"config"`
	Diagnostics []model.StepDiagnostics `json:"diagnostics"`
	Params      []model.NetworkParams   `json:"params"`
	Networks    []NetworkArtifacts      `json:"networks"`
}

type RunIndexEntry struct {
	RunID          string `json:"run_id"`
	ParentRunID    string `json:"parent_run_id,omitempty"`
	Replicate      int    `json:"replicate"`
	Seed           int64  `json:"seed"`
	Steps          int    `json:"steps"`
	Networks       int    `json:"networks"`
	Representation string `json:"representation"`
	FinalActive    int    `json:"final_active"`
	FinalEdges     []int  `json:"final_edges"`
	CreatedAtUTC   string `json:"created_at_utc"`
}

// WriteRunArtifacts writes one directory per run under baseDir and returns it.
func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Config.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Config.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, configFile), artifacts.Config); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, diagnosticsFile), artifacts.Diagnostics); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, paramsFile), artifacts.Params); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, statsHistoryFile), artifacts.Networks); err != nil {
		return "", err
	}
	for i, net := range artifacts.Networks {
		if err := WriteCumulativeCSV(filepath.Join(runDir, cumulativeFileName(i)), net.Cumulative); err != nil {
			return "", err
		}
	}

	return runDir, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns the index newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	path := filepath.Join(baseDir, runIndexFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Prefer later appended entries for equal timestamps.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

// ExportRunArtifacts copies a run directory into outDir.
func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	for _, file := range []string{configFile, diagnosticsFile, paramsFile, statsHistoryFile} {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return "", err
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, cumulativeFilePref) {
			continue
		}
		if err := copyFile(filepath.Join(src, name), filepath.Join(dst, name)); err != nil {
			return "", err
		}
	}

	return dst, nil
}

func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	var cfg RunConfig
	ok, err := readJSON(filepath.Join(baseDir, runID, configFile), &cfg)
	return cfg, ok, err
}

func ReadStepDiagnostics(baseDir, runID string) ([]model.StepDiagnostics, bool, error) {
	var diagnostics []model.StepDiagnostics
	ok, err := readJSON(filepath.Join(baseDir, runID, diagnosticsFile), &diagnostics)
	return diagnostics, ok, err
}

func ReadNetworkParams(baseDir, runID string) ([]model.NetworkParams, bool, error) {
	var params []model.NetworkParams
	ok, err := readJSON(filepath.Join(baseDir, runID, paramsFile), &params)
	return params, ok, err
}

// ReadCumulative reads the cumulative edgelist of 0-based network i.
func ReadCumulative(baseDir, runID string, i int) ([]model.CumulativeEdge, bool, error) {
	return ReadCumulativeCSV(filepath.Join(baseDir, runID, cumulativeFileName(i)))
}

// WriteCumulativeCSV writes edges as tail,head,start,stop rows.
func WriteCumulativeCSV(path string, edges []model.CumulativeEdge) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"tail", "head", "start", "stop"}); err != nil {
		return err
	}
	for _, e := range edges {
		if err := writer.Write([]string{
			strconv.Itoa(e.Tail),
			strconv.Itoa(e.Head),
			strconv.Itoa(e.Start),
			strconv.Itoa(e.Stop),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func ReadCumulativeCSV(path string) ([]model.CumulativeEdge, bool, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []model.CumulativeEdge{}, true, nil
		}
		return nil, false, err
	}
	if len(header) != 4 {
		return nil, false, fmt.Errorf("cumulative edgelist header must have 4 columns")
	}

	edges := make([]model.CumulativeEdge, 0, 128)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		var values [4]int
		for i := range values {
			v, err := strconv.Atoi(record[i])
			if err != nil {
				return nil, false, fmt.Errorf("cumulative edgelist row %d: %w", len(edges)+1, err)
			}
			values[i] = v
		}
		edges = append(edges, model.CumulativeEdge{Tail: values[0], Head: values[1], Start: values[2], Stop: values[3]})
	}
	return edges, true, nil
}

func cumulativeFileName(i int) string {
	return fmt.Sprintf("%s_%d.csv", cumulativeFilePref, i)
}

func readJSON(path string, out any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, err
	}
	return true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
