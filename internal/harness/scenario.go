package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is a scripted sequence of ledger operations followed by
// assertions on the final state.
type Scenario struct {
	// Name uniquely identifies this scenario. Golden files are named after it.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// ActiveDelegates sets the round size. Zero selects 51.
	ActiveDelegates int `yaml:"active_delegates,omitempty"`

	// Steps run in order against one store.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one ledger operation. Which fields apply depends on Op.
type Step struct {
	Op string `yaml:"op"`

	// append
	Blocks    int `yaml:"blocks,omitempty"`
	Transfers int `yaml:"transfers,omitempty"`

	// delete_top
	Count int `yaml:"count,omitempty"`

	// delete_heights
	Heights []int64 `yaml:"heights,omitempty"`

	// search_blocks, search_transactions
	Criteria any      `yaml:"criteria,omitempty"`
	Sort     []string `yaml:"sort,omitempty"`
	Limit    int      `yaml:"limit,omitempty"`
	Offset   int      `yaml:"offset,omitempty"`

	// save_rounds
	Rounds int `yaml:"rounds,omitempty"`

	// ExpectError is the error code the step must fail with.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Step operations.
const (
	OpAppend             = "append"
	OpDeleteTop          = "delete_top"
	OpDeleteHeights      = "delete_heights"
	OpSearchBlocks       = "search_blocks"
	OpSearchTransactions = "search_transactions"
	OpSaveRounds         = "save_rounds"
)

// Assertion validates the final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Height is the expected tip height (tip_height).
	Height int64 `yaml:"height,omitempty"`

	// Count is the expected number of rows (block_count, transaction_count).
	Count int64 `yaml:"count,omitempty"`

	// Round is the expected latest round (latest_round).
	Round int64 `yaml:"round,omitempty"`
}

// Assertion type constants.
const (
	AssertTipHeight        = "tip_height"
	AssertBlockCount       = "block_count"
	AssertTransactionCount = "transaction_count"
	AssertLatestRound      = "latest_round"
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

// ParseScenario parses and validates a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
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
	if s.ActiveDelegates < 0 {
		return fmt.Errorf("active_delegates must be non-negative")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, s *Step) error {
	switch s.Op {
	case OpAppend:
		if s.Blocks <= 0 {
			return fmt.Errorf("steps[%d]: blocks must be positive for append", index)
		}
		if s.Transfers < 0 {
			return fmt.Errorf("steps[%d]: transfers must be non-negative", index)
		}
	case OpDeleteTop:
		// Negative counts are left to the store, which rejects them.
	case OpDeleteHeights:
		if len(s.Heights) == 0 {
			return fmt.Errorf("steps[%d]: heights list is required for delete_heights", index)
		}
	case OpSearchBlocks, OpSearchTransactions:
		if s.Limit < 0 || s.Offset < 0 {
			return fmt.Errorf("steps[%d]: limit and offset must be non-negative", index)
		}
	case OpSaveRounds:
		if s.Rounds <= 0 {
			return fmt.Errorf("steps[%d]: rounds must be positive for save_rounds", index)
		}
	case "":
		return fmt.Errorf("steps[%d]: op is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", index, s.Op)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertTipHeight, AssertLatestRound:
	case AssertBlockCount, AssertTransactionCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

// args renders the step's operands for the trace.
func (s Step) args() map[string]any {
	args := map[string]any{}
	put := func(key string, v int) {
		if v != 0 {
			args[key] = v
		}
	}
	put("blocks", s.Blocks)
	put("transfers", s.Transfers)
	put("limit", s.Limit)
	put("offset", s.Offset)
	put("rounds", s.Rounds)
	if s.Op == OpDeleteTop {
		args["count"] = s.Count
	}
	if len(s.Heights) > 0 {
		heights := make([]any, len(s.Heights))
		for i, h := range s.Heights {
			heights[i] = h
		}
		args["heights"] = heights
	}
	if s.Criteria != nil {
		args["criteria"] = s.Criteria
	}
	if len(s.Sort) > 0 {
		args["sort"] = s.Sort
	}
	if len(args) == 0 {
		return nil
	}
	return args
}
