package orchestrator

import (
	"fmt"
	"time"
)

// StageKind is a whole-repository test tier. The set is closed: a name that
// is not listed in stageTable is rejected rather than run.
type StageKind int

const (
	Unit        StageKind = iota // Unit tests, fastest tier.
	Integration                  // Integration tests.
	Component                    // Component (rendering) tests.
	E2E                          // End-to-end tests, slowest tier.
)

// StageDefinition describes one pipeline stage.
type StageDefinition struct {
	Kind    StageKind
	Command string        // Shell command run at the workspace root.
	Timeout time.Duration // Zero means the orchestrator default.
}

// Name returns the stage's kind name.
func (s StageDefinition) Name() string { return s.Kind.String() }

// StageOverride replaces parts of a built-in stage definition. Empty fields
// keep the built-in value.
type StageOverride struct {
	Command string
	Timeout time.Duration
}

// stageTable holds the built-in behavior of every kind, indexed by StageKind.
var stageTable = [...]struct {
	name    string
	command string
	timeout time.Duration
}{
	Unit:        {"unit", "pnpm run test:unit", 5 * time.Minute},
	Integration: {"integration", "pnpm run test:integration", 10 * time.Minute},
	Component:   {"component", "pnpm run test:component", 10 * time.Minute},
	E2E:         {"e2e", "pnpm run test:e2e", 20 * time.Minute},
}

func (k StageKind) valid() bool { return k >= 0 && int(k) < len(stageTable) }

func (k StageKind) String() string {
	if !k.valid() {
		return "unknown"
	}
	return stageTable[k].name
}

// ParseStageKind resolves a stage name.
func ParseStageKind(name string) (StageKind, error) {
	for k := range stageTable {
		if stageTable[k].name == name {
			return StageKind(k), nil
		}
	}
	return 0, fmt.Errorf("stages: unknown stage %q (must be unit, integration, component, or e2e)", name)
}

// DefaultStage returns the built-in definition for k.
func DefaultStage(k StageKind) StageDefinition {
	if !k.valid() {
		return StageDefinition{Kind: k}
	}
	return StageDefinition{Kind: k, Command: stageTable[k].command, Timeout: stageTable[k].timeout}
}

// ProgressiveStages returns every stage kind, fastest first.
func ProgressiveStages() []StageDefinition {
	stages := make([]StageDefinition, len(stageTable))
	for k := range stageTable {
		stages[k] = DefaultStage(StageKind(k))
	}
	return stages
}

// OverrideStages applies per-kind overrides keyed by stage name. Unknown names
// are an error.
func OverrideStages(stages []StageDefinition, overrides map[string]StageOverride) ([]StageDefinition, error) {
	byKind := make(map[StageKind]StageOverride, len(overrides))
	for name, ov := range overrides {
		k, err := ParseStageKind(name)
		if err != nil {
			return nil, err
		}
		byKind[k] = ov
	}

	out := make([]StageDefinition, len(stages))
	for i, s := range stages {
		if ov, ok := byKind[s.Kind]; ok {
			if ov.Command != "" {
				s.Command = ov.Command
			}
			if ov.Timeout > 0 {
				s.Timeout = ov.Timeout
			}
		}
		out[i] = s
	}
	return out, nil
}

// StageNames extracts stage names in order.
func StageNames(stages []StageDefinition) []string {
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = s.Name()
	}
	return names
}
