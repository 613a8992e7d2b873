// Package config holds the fuzzer's full configuration surface: runtimes,
// thresholds, pool sizing, and harness settings, loadable from an optional
// YAML file and overridable by command-line flags.
package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Runtime describes one managed runtime under test.
type Runtime struct {
	Label             string   `yaml:"label"`
	ExecutablePath    string   `yaml:"executable"`
	Args              []string `yaml:"args"`
	WorkspaceTemplate string   `yaml:"workspace,omitempty"`
}

// Config is the complete configuration surface for a fuzz run.
type Config struct {
	Runtimes []Runtime `yaml:"runtimes"`

	CorpusDir     string `yaml:"corpus_dir"`
	RepositoryDir string `yaml:"repository_dir"`
	WorkspaceDir  string `yaml:"workspace_dir"`

	MaxIterations       int `yaml:"max_iterations"`
	StagnationThreshold int `yaml:"stagnation_threshold"`

	TimeoutSeconds int `yaml:"timeout_seconds"`

	PoolMaxSize            int `yaml:"pool_max_size"`
	PoolMinEnergyThreshold int `yaml:"pool_min_energy_threshold"`
	PoolEnergyBoost        int `yaml:"pool_energy_boost"`

	SelectorExplorationFactor float64 `yaml:"selector_exploration_factor"`
	SelectorDecayInterval     int     `yaml:"selector_decay_interval"`
	SelectorDecayFactor       float64 `yaml:"selector_decay_factor"`

	VerifierPeriod      int `yaml:"verifier_period"`
	VerifierMinPending  int `yaml:"verifier_min_pending"`
	VerifierTopN        int `yaml:"verifier_top_n"`
	VerifierConfirmRuns int `yaml:"verifier_confirm_runs"`

	GroupScoreExpression    string `yaml:"group_score_expression,omitempty"`
	StrategyScoreExpression string `yaml:"strategy_score_expression,omitempty"`

	MetricsAddr string `yaml:"metrics_addr,omitempty"`
}

// Default returns a Config populated with sensible defaults; callers then
// merge a file and flags on top.
func Default() Config {
	return Config{
		CorpusDir:                 "./corpus",
		RepositoryDir:             "./anomalies",
		WorkspaceDir:              "./workspace",
		MaxIterations:             0, // 0 = unbounded
		StagnationThreshold:       10000,
		TimeoutSeconds:            30,
		PoolMaxSize:               500,
		PoolMinEnergyThreshold:    2,
		PoolEnergyBoost:           5,
		SelectorExplorationFactor: 0.2,
		SelectorDecayInterval:     250,
		SelectorDecayFactor:       0.9,
		VerifierPeriod:            100,
		VerifierMinPending:        10,
		VerifierTopN:              3,
		VerifierConfirmRuns:       3,
	}
}

// Timeout returns TimeoutSeconds as a time.Duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Load reads a YAML file at path and merges it over Default(). An empty
// path returns Default() unchanged.
func Load(path string) (Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "config: read %s", path)
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, errors.Wrapf(err, "config: parse %s", path)
	}
	return c, nil
}

// Validate fails fast on configuration-class errors: fewer than two
// runtimes, a runtime missing its label, a duplicate runtime label, a
// runtime missing its executable path, a non-positive pool capacity, or a
// non-positive timeout.
func (c Config) Validate() error {
	if len(c.Runtimes) < 2 {
		return errors.Errorf("config: need at least two runtimes, got %d", len(c.Runtimes))
	}
	seen := map[string]bool{}
	for _, rt := range c.Runtimes {
		if rt.Label == "" {
			return errors.New("config: runtime missing a label")
		}
		if seen[rt.Label] {
			return errors.Errorf("config: duplicate runtime label %q", rt.Label)
		}
		seen[rt.Label] = true
		if rt.ExecutablePath == "" {
			return errors.Errorf("config: runtime %q missing an executable path", rt.Label)
		}
	}
	if c.PoolMaxSize <= 0 {
		return errors.New("config: pool_max_size must be positive")
	}
	if c.TimeoutSeconds <= 0 {
		return errors.New("config: timeout_seconds must be positive")
	}
	return nil
}
