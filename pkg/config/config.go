// Package config loads pipeline configuration from a YAML file. Every field
// has a working default so a missing file or empty document yields a usable
// configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full pipeline configuration document.
type Config struct {
	Explorer     ExplorerConfig     `yaml:"explorer"`
	Analyzer     AnalyzerConfig     `yaml:"analyzer"`
	Browser      BrowserConfig      `yaml:"browser"`
	Library      LibraryConfig      `yaml:"library"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
}

// ExplorerConfig bounds a live exploration run.
type ExplorerConfig struct {
	// MaxSteps is the hard cap on agent actions per exploration.
	MaxSteps int `yaml:"max_steps"`

	// Timeout bounds the wall-clock time of one exploration.
	Timeout time.Duration `yaml:"timeout"`

	// HistoryTokenBudget caps the observation history sent to the model,
	// measured in tokens. Oldest observations are trimmed first.
	HistoryTokenBudget int `yaml:"history_token_budget"`

	// Model names the LLM used for exploration decisions.
	Model string `yaml:"model"`
}

// AnalyzerConfig holds the classification thresholds. A trace is scriptable
// only when determinism and obstacle predictability strictly exceed their
// thresholds and decision complexity stays strictly below its own. Scores
// exactly on a threshold classify NOT_SCRIPTABLE.
type AnalyzerConfig struct {
	DeterminismThreshold    float64 `yaml:"determinism_threshold"`
	PredictabilityThreshold float64 `yaml:"predictability_threshold"`
	ComplexityThreshold     float64 `yaml:"complexity_threshold"`

	// ObstacleLikelihoodFloor is the minimum likelihood for an obstacle to
	// count as re-triggerable.
	ObstacleLikelihoodFloor float64 `yaml:"obstacle_likelihood_floor"`
}

// BrowserConfig configures the Playwright-backed browser capability.
type BrowserConfig struct {
	Headless       bool    `yaml:"headless"`
	ViewportWidth  int     `yaml:"viewport_width"`
	ViewportHeight int     `yaml:"viewport_height"`
	// ActionTimeoutMS is the per-action Playwright timeout in milliseconds.
	ActionTimeoutMS float64 `yaml:"action_timeout_ms"`
}

// LibraryConfig selects and configures the script library backend.
type LibraryConfig struct {
	// Backend is "file" or "sqlite".
	Backend string `yaml:"backend"`

	// Path is the store directory (file backend) or database file (sqlite).
	Path string `yaml:"path"`

	// MaxScriptAge treats stored scripts older than this as cache misses
	// without deleting them. Zero disables the staleness check.
	MaxScriptAge time.Duration `yaml:"max_script_age"`
}

// OrchestratorConfig bounds a full pipeline invocation.
type OrchestratorConfig struct {
	// InvocationTimeout caps one Execute call end to end, including any
	// fallback exploration. Zero means no overall timeout.
	InvocationTimeout time.Duration `yaml:"invocation_timeout"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Explorer: ExplorerConfig{
			MaxSteps:           50,
			Timeout:            5 * time.Minute,
			HistoryTokenBudget: 8000,
			Model:              "gpt-4o",
		},
		Analyzer: AnalyzerConfig{
			DeterminismThreshold:    0.7,
			PredictabilityThreshold: 0.7,
			ComplexityThreshold:     0.3,
			ObstacleLikelihoodFloor: 0.7,
		},
		Browser: BrowserConfig{
			Headless:        true,
			ViewportWidth:   1280,
			ViewportHeight:  720,
			ActionTimeoutMS: 30000,
		},
		Library: LibraryConfig{
			Backend: "file",
			Path:    "",
		},
		Orchestrator: OrchestratorConfig{
			InvocationTimeout: 15 * time.Minute,
		},
	}
}

// Load reads the YAML document at path, layered over the defaults. A missing
// file is not an error; the defaults are returned unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Explorer.MaxSteps <= 0 {
		return fmt.Errorf("explorer.max_steps must be positive")
	}
	for name, v := range map[string]float64{
		"analyzer.determinism_threshold":     c.Analyzer.DeterminismThreshold,
		"analyzer.predictability_threshold":  c.Analyzer.PredictabilityThreshold,
		"analyzer.complexity_threshold":      c.Analyzer.ComplexityThreshold,
		"analyzer.obstacle_likelihood_floor": c.Analyzer.ObstacleLikelihoodFloor,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be in [0, 1], got %v", name, v)
		}
	}
	switch c.Library.Backend {
	case "file", "sqlite":
	default:
		return fmt.Errorf("library.backend must be \"file\" or \"sqlite\", got %q", c.Library.Backend)
	}
	return nil
}
