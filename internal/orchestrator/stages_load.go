package orchestrator

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// stageYAML is the YAML representation of a StageDefinition.
type stageYAML struct {
	Kind    string `yaml:"kind"`
	Command string `yaml:"command,omitempty"` // Empty keeps the built-in command
	Timeout string `yaml:"timeout,omitempty"` // Duration string (e.g. "5m")
}

// stagesFile is the top-level YAML structure for a stages file.
type stagesFile struct {
	Stages []stageYAML `yaml:"stages"`
}

// LoadStagesFile loads stage definitions from a YAML file.
func LoadStagesFile(path string) ([]StageDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("stages: reading %s: %w", path, err)
	}
	return ParseStagesYAML(data)
}

// ParseStagesYAML parses stage definitions from YAML bytes.
func ParseStagesYAML(data []byte) ([]StageDefinition, error) {
	var file stagesFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("stages: parsing YAML: %w", err)
	}

	if len(file.Stages) == 0 {
		return nil, errors.New("stages: no stages defined")
	}

	stages := make([]StageDefinition, len(file.Stages))
	for i, sy := range file.Stages {
		sd, err := convertStageYAML(sy)
		if err != nil {
			return nil, fmt.Errorf("stages[%d] %q: %w", i, sy.Kind, err)
		}
		stages[i] = sd
	}

	if err := ValidateStages(stages); err != nil {
		return nil, err
	}
	return stages, nil
}

// convertStageYAML fills a StageDefinition from the built-in table and the
// fields set in YAML.
func convertStageYAML(sy stageYAML) (StageDefinition, error) {
	if sy.Kind == "" {
		return StageDefinition{}, errors.New("kind is required")
	}
	k, err := ParseStageKind(sy.Kind)
	if err != nil {
		return StageDefinition{}, err
	}

	sd := DefaultStage(k)
	if sy.Command != "" {
		sd.Command = sy.Command
	}
	if sy.Timeout != "" {
		d, err := time.ParseDuration(sy.Timeout)
		if err != nil {
			return StageDefinition{}, fmt.Errorf("invalid timeout %q: %w", sy.Timeout, err)
		}
		if d <= 0 {
			return StageDefinition{}, fmt.Errorf("timeout must be positive, got %v", d)
		}
		sd.Timeout = d
	}
	return sd, nil
}

// ValidateStages checks stage definitions for consistency errors.
func ValidateStages(stages []StageDefinition) error {
	seen := make(map[StageKind]bool, len(stages))
	for _, s := range stages {
		if !s.Kind.valid() {
			return fmt.Errorf("stages: invalid kind %d", s.Kind)
		}
		if seen[s.Kind] {
			return fmt.Errorf("stages: duplicate stage %q", s.Name())
		}
		seen[s.Kind] = true
		if s.Command == "" {
			return fmt.Errorf("stages: %q must have a command", s.Name())
		}
	}
	return nil
}
