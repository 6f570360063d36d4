package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines one scripted engine session.
type Scenario struct {
	// Name uniquely identifies this scenario. Golden files are stored
	// under testdata/golden/{Name}.golden.
	Name string `yaml:"name"`

	// Description explains what this scenario demonstrates.
	Description string `yaml:"description"`

	// HistoryCapacity overrides the engine's ledger bound. Zero keeps
	// the default.
	HistoryCapacity int `yaml:"history_capacity,omitempty"`

	// BatchIDs is the fixed batch ID sequence handed to the engine.
	// Defaults to batch-0001..batch-0008.
	BatchIDs []string `yaml:"batch_ids,omitempty"`

	// Seed is the initial process table.
	Seed []ProcessSeed `yaml:"seed"`

	// Steps is the scripted session, executed in order.
	Steps []Step `yaml:"steps"`
}

// ProcessSeed is one seeded row of the process table.
type ProcessSeed struct {
	PID       int     `yaml:"pid"`
	Name      string  `yaml:"name"`
	Status    string  `yaml:"status"`
	CPU       float64 `yaml:"cpu"`
	Memory    float64 `yaml:"memory"`
	Stability float64 `yaml:"stability"`
}

// Step is one scripted engine operation. Exactly one of Run, Batch,
// Undo, Redo, or Clear must be set.
type Step struct {
	// Run executes a single command.
	Run *CommandSpec `yaml:"run,omitempty"`

	// Batch executes several commands as one atomic unit.
	Batch []CommandSpec `yaml:"batch,omitempty"`

	// Undo reverses the most recent operation.
	Undo bool `yaml:"undo,omitempty"`

	// Redo re-applies the most recently undone operation.
	Redo bool `yaml:"redo,omitempty"`

	// Clear discards engine state: "history" or "stacks".
	Clear string `yaml:"clear,omitempty"`

	// ExpectError names the engine error code this step must fail with
	// ("VALIDATION", "INELIGIBLE", "EXECUTION", "EMPTY_STACK",
	// "UNSUPPORTED_REVERSAL", "BATCH"). A step without ExpectError must
	// succeed.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// CommandSpec names a domain command: kill, restart, optimize, or scan.
// Scan takes no pid.
type CommandSpec struct {
	Op  string `yaml:"op"`
	PID int    `yaml:"pid,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file. Unknown fields
// are rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and each
// step names exactly one operation.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, seed := range s.Seed {
		if seed.PID < 1 {
			return fmt.Errorf("seed[%d]: pid must be >= 1", i)
		}
		if seed.Name == "" {
			return fmt.Errorf("seed[%d]: name is required", i)
		}
		switch seed.Status {
		case "running", "sleeping", "terminated":
		default:
			return fmt.Errorf("seed[%d]: unknown status %q", i, seed.Status)
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, step *Step) error {
	ops := 0
	if step.Run != nil {
		ops++
		if err := validateCommandSpec(index, step.Run); err != nil {
			return err
		}
	}
	if len(step.Batch) > 0 {
		ops++
		for _, spec := range step.Batch {
			spec := spec
			if err := validateCommandSpec(index, &spec); err != nil {
				return err
			}
		}
	}
	if step.Undo {
		ops++
	}
	if step.Redo {
		ops++
	}
	if step.Clear != "" {
		ops++
		if step.Clear != "history" && step.Clear != "stacks" {
			return fmt.Errorf("steps[%d]: clear must be \"history\" or \"stacks\", got %q", index, step.Clear)
		}
	}
	if ops != 1 {
		return fmt.Errorf("steps[%d]: exactly one of run, batch, undo, redo, clear is required", index)
	}
	return nil
}

func validateCommandSpec(index int, spec *CommandSpec) error {
	switch spec.Op {
	case "scan":
		return nil
	case "kill", "restart", "optimize":
		if spec.PID < 1 {
			return fmt.Errorf("steps[%d]: op %q requires a pid >= 1", index, spec.Op)
		}
		return nil
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", index, spec.Op)
	}
}
