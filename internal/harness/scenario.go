// Package harness runs scripted conversation scenarios against a real
// engine and store, for conformance tests that read as transcripts.
//
// Scenarios live in YAML files: a sequence of inbound messages with optional
// clock advances and per-step expectations. The resulting transcript can be
// compared against a golden file for exact regression coverage.
package harness

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario defines one scripted conversation.
type Scenario struct {
	// Name uniquely identifies this scenario; it doubles as the golden
	// file name.
	Name string `yaml:"name"`

	// Description explains what this scenario covers.
	Description string `yaml:"description,omitempty"`

	// Start is the base wall-clock time as RFC 3339. Defaults to
	// DefaultStart so transcripts are deterministic.
	Start string `yaml:"start,omitempty"`

	// TimeoutMinutes overrides the engine idle timeout. Defaults to the
	// engine default.
	TimeoutMinutes int `yaml:"timeout_minutes,omitempty"`

	// Steps is the message script, in order.
	Steps []Step `yaml:"steps"`
}

// Step is one inbound message plus its expectations.
type Step struct {
	// From is the sender's phone number.
	From string `yaml:"from"`

	// Send is the message text.
	Send string `yaml:"send"`

	// Advance moves the clock forward before sending, as a Go duration
	// string ("31m", "2h"). Used to exercise idle-timeout behavior.
	Advance string `yaml:"advance,omitempty"`

	// Expect validates the step's outcome. Optional; a step without
	// expectations just drives the machine.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect holds the assertions for one step.
type Expect struct {
	// Template is the expected response template name.
	Template string `yaml:"template"`

	// State is the expected current state after the step.
	State string `yaml:"state,omitempty"`

	// History is the expected history stack after the step, bottom first.
	History []string `yaml:"history,omitempty"`
}

// Load reads and validates a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}

	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}

	if sc.Name == "" {
		return nil, fmt.Errorf("scenario %s: name is required", path)
	}
	if len(sc.Steps) == 0 {
		return nil, fmt.Errorf("scenario %s: at least one step is required", path)
	}
	for i, step := range sc.Steps {
		if step.From == "" {
			return nil, fmt.Errorf("scenario %s: step %d: from is required", path, i)
		}
		if step.Advance != "" {
			if _, err := time.ParseDuration(step.Advance); err != nil {
				return nil, fmt.Errorf("scenario %s: step %d: bad advance: %w", path, i, err)
			}
		}
	}
	return &sc, nil
}
