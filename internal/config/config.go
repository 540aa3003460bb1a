// Package config handles layered YAML configuration with environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all testorch configuration.
type Config struct {
	Workspace Workspace              `yaml:"workspace"`
	Runner    Runner                 `yaml:"runner"`
	Scheduler Scheduler              `yaml:"scheduler"`
	VCS       VCS                    `yaml:"vcs"`
	Report    Report                 `yaml:"report"`
	Stages    map[string]StageConfig `yaml:"stages"`
	Display   Display                `yaml:"display"`
}

// Workspace locates packages and decides which dependencies are internal.
type Workspace struct {
	Root         string   `yaml:"root"`
	Manifest     string   `yaml:"manifest"`      // pnpm-workspace.yaml relative to Root
	Scope        string   `yaml:"scope"`         // e.g. "@rafters/"; empty = workspace: protocol only
	TestPatterns []string `yaml:"test_patterns"` // basename globs for test discovery
}

// Runner holds per-package test command settings.
type Runner struct {
	Command string        `yaml:"command"` // shell command run in the package directory
	Script  string        `yaml:"script"`  // package.json script that must exist
	Timeout time.Duration `yaml:"timeout"`
	// ForceTimeout makes Timeout bound every stage as well, replacing the
	// stage defaults. Set by TESTORCH_TIMEOUT and --timeout, never by YAML.
	ForceTimeout bool `yaml:"-"`
}

// Scheduler holds batching settings.
type Scheduler struct {
	Concurrency int    `yaml:"concurrency"`
	Batching    string `yaml:"batching"` // "chunk" | "wave"
}

// VCS holds change-detection settings.
type VCS struct {
	BaseRef string `yaml:"base_ref"`
}

// Report holds output artifact settings.
type Report struct {
	Path        string `yaml:"path"`
	SummaryPath string `yaml:"summary_path"` // Markdown summary; empty disables
	LogDir      string `yaml:"log_dir"`
}

// StageConfig overrides the built-in command or timeout of a stage kind.
type StageConfig struct {
	Command string        `yaml:"command"`
	Timeout time.Duration `yaml:"timeout"`
}

// Display holds output settings.
type Display struct {
	Plain bool `yaml:"plain"` // Force plain text even on a TTY
}

// Batching strategies.
const (
	BatchingChunk = "chunk"
	BatchingWave  = "wave"
)

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Workspace: Workspace{
			Root:     ".",
			Manifest: "pnpm-workspace.yaml",
			TestPatterns: []string{
				"*.test.ts", "*.test.tsx", "*.spec.ts", "*.spec.tsx",
				"*.test.js", "*.spec.js", "*.e2e.ts",
			},
		},
		Runner: Runner{
			Command: "pnpm run test",
			Script:  "test",
			Timeout: 5 * time.Minute,
		},
		Scheduler: Scheduler{
			Concurrency: 4,
			Batching:    BatchingChunk,
		},
		VCS: VCS{
			BaseRef: "origin/main",
		},
		Report: Report{
			Path:   "test-results/test-report.json",
			LogDir: ".testorch/logs",
		},
		Stages: map[string]StageConfig{},
	}
}

// LoadLayered loads config from multiple paths with increasing priority.
// Later paths override earlier ones. Missing files are skipped.
func LoadLayered(paths ...string) (*Config, error) {
	cfg := DefaultConfig()

	for _, path := range paths {
		if path == "" {
			continue
		}
		layer, err := loadLayer(path)
		if err != nil {
			return nil, err
		}
		if layer == nil {
			continue
		}
		cfg.merge(layer)
	}

	return &cfg, nil
}

// Validate checks that config values are usable.
func (c *Config) Validate() error {
	if c.Workspace.Root == "" {
		return errors.New("config: workspace.root cannot be empty")
	}
	if c.Workspace.Manifest == "" {
		return errors.New("config: workspace.manifest cannot be empty")
	}
	if c.Runner.Command == "" {
		return errors.New("config: runner.command cannot be empty")
	}
	if c.Runner.Timeout <= 0 {
		return fmt.Errorf("config: runner.timeout must be positive, got %v", c.Runner.Timeout)
	}
	if c.Scheduler.Concurrency < 1 {
		return fmt.Errorf("config: scheduler.concurrency must be at least 1, got %d", c.Scheduler.Concurrency)
	}
	switch c.Scheduler.Batching {
	case BatchingChunk, BatchingWave:
		// valid
	default:
		return fmt.Errorf("config: scheduler.batching must be %q or %q, got %q", BatchingChunk, BatchingWave, c.Scheduler.Batching)
	}
	if c.Report.Path == "" {
		return errors.New("config: report.path cannot be empty")
	}
	for name, s := range c.Stages {
		if s.Timeout < 0 {
			return fmt.Errorf("config: stages.%s.timeout must be non-negative, got %v", name, s.Timeout)
		}
	}
	return nil
}

// ApplyEnv applies environment variable overrides to the config.
// Supported variables: TEST_CONCURRENCY, TESTORCH_TIMEOUT, TESTORCH_BASE_REF,
// TESTORCH_REPORT_PATH.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("TEST_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("config: invalid TEST_CONCURRENCY %q: %w", v, err)
		}
		c.Scheduler.Concurrency = n
	}
	if v := os.Getenv("TESTORCH_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: invalid TESTORCH_TIMEOUT %q: %w", v, err)
		}
		c.Runner.Timeout = d
		c.Runner.ForceTimeout = true
	}
	if v := os.Getenv("TESTORCH_BASE_REF"); v != "" {
		c.VCS.BaseRef = v
	}
	if v := os.Getenv("TESTORCH_REPORT_PATH"); v != "" {
		c.Report.Path = v
	}
	return nil
}

// rawConfig mirrors Config but uses pointers to distinguish set vs unset fields.
type rawConfig struct {
	Workspace *rawWorkspace             `yaml:"workspace"`
	Runner    *rawRunner                `yaml:"runner"`
	Scheduler *rawScheduler             `yaml:"scheduler"`
	VCS       *rawVCS                   `yaml:"vcs"`
	Report    *rawReport                `yaml:"report"`
	Stages    map[string]rawStageConfig `yaml:"stages"`
	Display   *rawDisplay               `yaml:"display"`
}

type rawWorkspace struct {
	Root         *string  `yaml:"root"`
	Manifest     *string  `yaml:"manifest"`
	Scope        *string  `yaml:"scope"`
	TestPatterns []string `yaml:"test_patterns"`
}

type rawRunner struct {
	Command *string        `yaml:"command"`
	Script  *string        `yaml:"script"`
	Timeout *time.Duration `yaml:"timeout"`
}

type rawScheduler struct {
	Concurrency *int    `yaml:"concurrency"`
	Batching    *string `yaml:"batching"`
}

type rawVCS struct {
	BaseRef *string `yaml:"base_ref"`
}

type rawReport struct {
	Path        *string `yaml:"path"`
	SummaryPath *string `yaml:"summary_path"`
	LogDir      *string `yaml:"log_dir"`
}

type rawStageConfig struct {
	Command *string        `yaml:"command"`
	Timeout *time.Duration `yaml:"timeout"`
}

type rawDisplay struct {
	Plain *bool `yaml:"plain"`
}

// loadLayer reads a single config file into a rawConfig for selective merging.
// Returns nil if the file does not exist. Rejects unknown fields.
func loadLayer(path string) (*rawConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if len(data) == 0 {
		return nil, nil
	}

	var raw rawConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		// Comment-only YAML files produce EOF with no decoded content.
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	return &raw, nil
}

// merge applies non-nil fields from a rawConfig layer onto this Config.
func (c *Config) merge(layer *rawConfig) {
	if w := layer.Workspace; w != nil {
		if w.Root != nil {
			c.Workspace.Root = *w.Root
		}
		if w.Manifest != nil {
			c.Workspace.Manifest = *w.Manifest
		}
		if w.Scope != nil {
			c.Workspace.Scope = *w.Scope
		}
		if w.TestPatterns != nil {
			c.Workspace.TestPatterns = append([]string(nil), w.TestPatterns...)
		}
	}
	if r := layer.Runner; r != nil {
		if r.Command != nil {
			c.Runner.Command = *r.Command
		}
		if r.Script != nil {
			c.Runner.Script = *r.Script
		}
		if r.Timeout != nil {
			c.Runner.Timeout = *r.Timeout
		}
	}
	if s := layer.Scheduler; s != nil {
		if s.Concurrency != nil {
			c.Scheduler.Concurrency = *s.Concurrency
		}
		if s.Batching != nil {
			c.Scheduler.Batching = *s.Batching
		}
	}
	if v := layer.VCS; v != nil && v.BaseRef != nil {
		c.VCS.BaseRef = *v.BaseRef
	}
	if r := layer.Report; r != nil {
		if r.Path != nil {
			c.Report.Path = *r.Path
		}
		if r.SummaryPath != nil {
			c.Report.SummaryPath = *r.SummaryPath
		}
		if r.LogDir != nil {
			c.Report.LogDir = *r.LogDir
		}
	}
	if len(layer.Stages) > 0 && c.Stages == nil {
		c.Stages = make(map[string]StageConfig, len(layer.Stages))
	}
	for name, rs := range layer.Stages {
		s := c.Stages[name]
		if rs.Command != nil {
			s.Command = *rs.Command
		}
		if rs.Timeout != nil {
			s.Timeout = *rs.Timeout
		}
		c.Stages[name] = s
	}
	if d := layer.Display; d != nil && d.Plain != nil {
		c.Display.Plain = *d.Plain
	}
}
