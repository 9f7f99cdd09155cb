// Package config loads run definitions from YAML files and the environment.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"epinet/internal/dataextract"
	"epinet/internal/demography"
	"epinet/internal/logging"
	"epinet/internal/model"
	"epinet/internal/network"
	"epinet/internal/sim"
	"epinet/internal/termid"
)

// Config is one run file: run control, population, demography and the
// networks to resimulate, plus where results go.
type Config struct {
	Seed       int64  `json:"seed" yaml:"seed"`
	Replicates int    `json:"replicates" yaml:"replicates"`
	Workers    int    `json:"workers" yaml:"workers"`
	Sampler    string `json:"sampler" yaml:"sampler"`

	// Store selects the persistence backend: "memory" or "sqlite".
	Store string `json:"store" yaml:"store"`
	// DBPath is the sqlite database file.
	DBPath string `json:"db_path" yaml:"db_path"`
	// ArtifactsDir receives one directory per run.
	ArtifactsDir string `json:"artifacts_dir" yaml:"artifacts_dir"`

	Logging    LoggingConfig    `json:"logging" yaml:"logging"`
	Control    ControlConfig    `json:"control" yaml:"control"`
	Population PopulationConfig `json:"population" yaml:"population"`
	Demography DemographyConfig `json:"demography" yaml:"demography"`
	Networks   []NetworkConfig  `json:"networks" yaml:"networks"`

	// baseDir resolves relative table paths; set by LoadFromFile.
	baseDir string
}

type LoggingConfig struct {
	// Level is one of trace, debug, info, warn or error.
	Level string `json:"level" yaml:"level"`
	// Format is "text" (default) or "json".
	Format string `json:"format" yaml:"format"`
}

type ControlConfig struct {
	ResimulateEachStep bool   `json:"resimulate_each_step" yaml:"resimulate_each_step"`
	Representation     string `json:"representation" yaml:"representation"`
	SaveStats          bool   `json:"save_stats" yaml:"save_stats"`
	CumulativeHorizon  int    `json:"cumulative_horizon" yaml:"cumulative_horizon"`
	ReuseBasis         bool   `json:"reuse_basis" yaml:"reuse_basis"`
	NumSteps           int    `json:"num_steps" yaml:"num_steps"`
}

type PopulationConfig struct {
	Size int `json:"size" yaml:"size"`
	// Groups is 1 or 2. Two-group runs alternate group 1 and 2 by node id
	// unless the attribute table supplies a group column.
	Groups int `json:"groups" yaml:"groups"`
	// AttributesCSV optionally seeds node attributes from a table with one
	// row per node. Its row count sets the population size.
	AttributesCSV string `json:"attributes_csv,omitempty" yaml:"attributes_csv,omitempty"`
}

type DemographyConfig struct {
	// Turnover is optional; without it the population is closed.
	Turnover *demography.TurnoverConfig `json:"turnover,omitempty" yaml:"turnover,omitempty"`
}

type NetworkConfig struct {
	Name               string            `json:"name" yaml:"name"`
	Formation          []string          `json:"formation" yaml:"formation"`
	Coef               []float64         `json:"coef" yaml:"coef"`
	CrossSectionalCoef []float64         `json:"cross_sectional_coef,omitempty" yaml:"cross_sectional_coef,omitempty"`
	Dissolution        DissolutionConfig `json:"dissolution" yaml:"dissolution"`
	Constraints        []string          `json:"constraints,omitempty" yaml:"constraints,omitempty"`
	EdApprox           bool              `json:"edapprox" yaml:"edapprox"`
	Monitor            []string          `json:"monitor,omitempty" yaml:"monitor,omitempty"`
	TrackDuration      bool              `json:"track_duration" yaml:"track_duration"`
	// InitialEdgesCSV holds the network's starting edges, e.g. from a prior fit.
	InitialEdgesCSV string `json:"initial_edges_csv,omitempty" yaml:"initial_edges_csv,omitempty"`
}

// DissolutionConfig gives expected tie durations in steps, one per term.
type DissolutionConfig struct {
	Terms    []string  `json:"terms" yaml:"terms"`
	Duration []float64 `json:"duration" yaml:"duration"`
}

// Default returns a config for a closed, single-network population.
func Default() *Config {
	return &Config{
		Seed:         1,
		Replicates:   1,
		Workers:      1,
		Sampler:      "bernoulli",
		Store:        "memory",
		DBPath:       "epinet.db",
		ArtifactsDir: "runs",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Control: ControlConfig{
			ResimulateEachStep: true,
			Representation:     string(model.RepresentationEdgeList),
			NumSteps:           52,
		},
		Population: PopulationConfig{
			Size:   500,
			Groups: 1,
		},
	}
}

// Load reads path when given, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		fileCfg, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// LoadFromFile parses a YAML run file over the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.baseDir = filepath.Dir(path)
	return cfg, nil
}

func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Replicates < 1 {
		return fmt.Errorf("replicates must be >= 1, got %d", c.Replicates)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", c.Workers)
	}
	if c.Sampler == "" {
		return fmt.Errorf("sampler is required")
	}
	switch c.Store {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("invalid store: %s (valid: memory, sqlite)", c.Store)
	}
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if c.Logging.Level != "" && !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid log format: %s (valid: text, json)", c.Logging.Format)
	}
	if c.Population.Size <= 0 && c.Population.AttributesCSV == "" {
		return fmt.Errorf("population size must be > 0, got %d", c.Population.Size)
	}
	if c.Population.Groups != 1 && c.Population.Groups != 2 {
		return fmt.Errorf("population groups must be 1 or 2, got %d", c.Population.Groups)
	}
	if c.Demography.Turnover != nil {
		if err := c.Demography.Turnover.Validate(); err != nil {
			return err
		}
	}
	if len(c.Networks) == 0 {
		return fmt.Errorf("at least one network is required")
	}
	seen := make(map[string]bool, len(c.Networks))
	for i, n := range c.Networks {
		if n.Name == "" {
			return fmt.Errorf("network %d: name is required", i+1)
		}
		if seen[n.Name] {
			return fmt.Errorf("duplicate network name: %s", n.Name)
		}
		seen[n.Name] = true
	}
	if err := c.control().Validate(len(c.Networks)); err != nil {
		return err
	}
	_, err := c.networkParams()
	return err
}

// ToRunSpec converts a validated config into a simulation spec.
func (c *Config) ToRunSpec() (sim.Spec, error) {
	if err := c.Validate(); err != nil {
		return sim.Spec{}, err
	}
	params, err := c.networkParams()
	if err != nil {
		return sim.Spec{}, err
	}

	attrs, err := c.initialAttrs()
	if err != nil {
		return sim.Spec{}, err
	}
	initial, err := c.initialEdges(len(attrs[demography.AttrActive]))
	if err != nil {
		return sim.Spec{}, err
	}

	spec := sim.Spec{
		Control:    c.control(),
		Networks:   params,
		Attrs:      attrs,
		Initial:    initial,
		Sampler:    c.Sampler,
		Seed:       c.Seed,
		Replicates: c.Replicates,
		Workers:    c.Workers,
	}
	if turnover := c.Demography.Turnover; turnover != nil {
		tc := *turnover
		spec.Modules = append(spec.Modules, func(seed int64) (sim.Module, error) {
			t, err := demography.NewTurnover(tc, seed)
			if err != nil {
				return nil, err
			}
			return t, nil
		})
	}
	return spec, nil
}

// NewLogger builds the logger the config asks for, writing to w.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	if c.Logging.Format == "json" {
		return logging.NewJSONLogger(c.Logging.Level, w)
	}
	return logging.NewLogger(c.Logging.Level, w)
}

func (c *Config) control() model.Control {
	track := make([]bool, len(c.Networks))
	for i, n := range c.Networks {
		track[i] = n.TrackDuration
	}
	return model.Control{
		ResimulateEachStep: c.Control.ResimulateEachStep,
		Representation:     model.Representation(c.Control.Representation),
		TrackDuration:      track,
		SaveStats:          c.Control.SaveStats,
		CumulativeHorizon:  c.Control.CumulativeHorizon,
		ReuseBasis:         c.Control.ReuseBasis,
		NumSteps:           c.Control.NumSteps,
		Groups:             c.Population.Groups,
	}
}

func (c *Config) networkParams() ([]model.NetworkParams, error) {
	exitRate := 0.0
	if c.Demography.Turnover != nil {
		exitRate = c.Demography.Turnover.DepartureRate
	}
	out := make([]model.NetworkParams, 0, len(c.Networks))
	for _, n := range c.Networks {
		p := model.NetworkParams{
			Name:               n.Name,
			Formation:          model.Formula{Terms: termid.NormalizeAll(n.Formation)},
			Coef:               append(model.Coefs(nil), n.Coef...),
			CrossSectionalCoef: append(model.Coefs(nil), n.CrossSectionalCoef...),
			Constraints:        append([]string(nil), n.Constraints...),
			EdApprox:           n.EdApprox,
			Monitor:            model.Formula{Terms: termid.NormalizeAll(n.Monitor)},
		}
		if len(n.Dissolution.Terms) > 0 {
			diss, err := model.DissolutionCoefs(termid.NormalizeAll(n.Dissolution.Terms), n.Dissolution.Duration, exitRate)
			if err != nil {
				return nil, fmt.Errorf("network %q: %w", n.Name, err)
			}
			p.Dissolution = diss
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (c *Config) initialAttrs() (map[string][]int, error) {
	n := c.Population.Size
	var table map[string][]int
	if c.Population.AttributesCSV != "" {
		loaded, rows, err := dataextract.LoadAttributesFile(c.resolve(c.Population.AttributesCSV))
		if err != nil {
			return nil, fmt.Errorf("population attributes: %w", err)
		}
		if rows == 0 {
			return nil, fmt.Errorf("population attributes: table has no rows")
		}
		if err := checkGroupColumn(loaded[demography.AttrGroup], c.Population.Groups); err != nil {
			return nil, fmt.Errorf("population attributes: %w", err)
		}
		table, n = loaded, rows
	}

	attrs := map[string][]int{
		demography.AttrActive:    make([]int, n),
		demography.AttrEntryTime: make([]int, n),
		demography.AttrExitTime:  make([]int, n),
	}
	var group []int
	if c.Population.Groups == 2 {
		group = make([]int, n)
		attrs[demography.AttrGroup] = group
	}
	for v := 0; v < n; v++ {
		attrs[demography.AttrActive][v] = 1
		attrs[demography.AttrEntryTime][v] = 1
		if group != nil {
			group[v] = 1 + v%2
		}
	}
	for name, values := range table {
		attrs[name] = values
	}
	return attrs, nil
}

// checkGroupColumn requires every group value in 1..groups.
func checkGroupColumn(values []int, groups int) error {
	for v, g := range values {
		if g < 1 || g > groups {
			return fmt.Errorf("node %d has group %d, run has %d group(s)", v, g, groups)
		}
	}
	return nil
}

// initialEdges loads starting edges per network. Networks without a table
// get nil; the result is nil when no network has one.
func (c *Config) initialEdges(numNodes int) ([][]network.Edge, error) {
	var out [][]network.Edge
	for i, n := range c.Networks {
		if n.InitialEdgesCSV == "" {
			continue
		}
		edges, err := dataextract.LoadEdgesFile(c.resolve(n.InitialEdgesCSV), numNodes)
		if err != nil {
			return nil, fmt.Errorf("network %q initial edges: %w", n.Name, err)
		}
		if out == nil {
			out = make([][]network.Edge, len(c.Networks))
		}
		out[i] = edges
	}
	return out, nil
}

func (c *Config) resolve(path string) string {
	if filepath.IsAbs(path) || c.baseDir == "" {
		return path
	}
	return filepath.Join(c.baseDir, path)
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("EPINET_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("EPINET_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("EPINET_STORE"); v != "" {
		cfg.Store = v
	}
	if v := os.Getenv("EPINET_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("EPINET_ARTIFACTS_DIR"); v != "" {
		cfg.ArtifactsDir = v
	}
	if v := os.Getenv("EPINET_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Workers = n
		}
	}
}
