package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines a persister scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// WaitMS is the debounce quantum. Zero uses persister.DefaultWait.
	WaitMS int `yaml:"wait_ms,omitempty"`

	// MaxWaitMS is the staleness ceiling. Zero uses persister.DefaultMaxWait.
	MaxWaitMS int `yaml:"max_wait_ms,omitempty"`

	// FailSaves lists 1-based save attempts that return an error.
	FailSaves []int `yaml:"fail_saves,omitempty"`

	// Steps run in order. at_ms must not decrease.
	Steps []Step `yaml:"steps"`

	// UntilMS is when the scenario ends. Timers due by then still fire.
	UntilMS int `yaml:"until_ms"`

	// Assertions validate the saves and the final handle.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one action on the timeline.
type Step struct {
	// AtMS is the offset from the scenario start.
	AtMS int `yaml:"at_ms"`

	// Op is one of "touch", "run", "shutdown".
	Op string `yaml:"op"`
}

// Step operations.
const (
	OpTouch    = "touch"
	OpRun      = "run"
	OpShutdown = "shutdown"
)

// Assertion validates the outcome of a scenario.
type Assertion struct {
	// Type specifies the assertion type:
	// - "save_count": total save attempts equal Count
	// - "failed_count": failed save attempts equal Count
	// - "save_times": save attempts happened exactly at TimesMS
	// - "max_concurrent": at most Count saves were ever in flight
	// - "final_handle": the cell ends on handle ID Handle
	Type string `yaml:"type"`

	// Count is used by save_count, failed_count and max_concurrent.
	Count int `yaml:"count,omitempty"`

	// TimesMS is used by save_times.
	TimesMS []int `yaml:"times_ms,omitempty"`

	// Handle is used by final_handle.
	Handle string `yaml:"handle,omitempty"`
}

// Assertion type constants.
const (
	AssertSaveCount     = "save_count"
	AssertFailedCount   = "failed_count"
	AssertSaveTimes     = "save_times"
	AssertMaxConcurrent = "max_concurrent"
	AssertFinalHandle   = "final_handle"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "step:" vs "steps:"
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

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.WaitMS < 0 || s.MaxWaitMS < 0 {
		return fmt.Errorf("wait_ms and max_wait_ms must be non-negative")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	last := 0
	for i, step := range s.Steps {
		switch step.Op {
		case OpTouch, OpRun, OpShutdown:
		case "":
			return fmt.Errorf("steps[%d]: op is required", i)
		default:
			return fmt.Errorf("steps[%d]: unknown op %q", i, step.Op)
		}
		if step.AtMS < last {
			return fmt.Errorf("steps[%d]: at_ms %d is before previous step at %d", i, step.AtMS, last)
		}
		last = step.AtMS
	}

	if s.UntilMS < last {
		return fmt.Errorf("until_ms %d is before the last step at %d", s.UntilMS, last)
	}

	for i, n := range s.FailSaves {
		if n < 1 {
			return fmt.Errorf("fail_saves[%d]: save numbers start at 1", i)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertSaveCount, AssertFailedCount, AssertMaxConcurrent:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertSaveTimes:
		if a.TimesMS == nil {
			return fmt.Errorf("assertions[%d]: times_ms is required for save_times", index)
		}
	case AssertFinalHandle:
		if a.Handle == "" {
			return fmt.Errorf("assertions[%d]: handle is required for final_handle", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
