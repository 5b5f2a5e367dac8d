// Package orchestration defines the closed set of outcomes an autonomous
// step can decide on.
package orchestration

import (
	"encoding/json"
	"fmt"

	"github.com/ascension-labs/govcore/internal/domain"
)

// Decision is one of UseTool, TaskComplete or Fail. The unexported method
// keeps the set closed to this package.
type Decision interface {
	isDecision()
}

// UseTool asks the caller to run a tool with the given arguments.
type UseTool struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// TaskComplete ends the step successfully.
type TaskComplete struct {
	Summary string `json:"summary"`
}

// Fail ends the step unsuccessfully.
type Fail struct {
	Reason string `json:"reason"`
}

func (UseTool) isDecision()      {}
func (TaskComplete) isDecision() {}
func (Fail) isDecision()         {}

// wireDecision is the structured shape a provider is asked to return.
type wireDecision struct {
	ActionType        string   `json:"action_type"`
	ToolCall          *UseTool `json:"tool_call,omitempty"`
	ResponseOrSummary string   `json:"response_or_summary,omitempty"`
}

// DecisionSchema is the JSON schema handed to the reasoning provider.
var DecisionSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "action_type": {"type": "string", "enum": ["USE_TOOL", "TASK_COMPLETE", "FAIL"]},
    "tool_call": {
      "type": "object",
      "properties": {"tool": {"type": "string"}, "arguments": {"type": "object"}},
      "required": ["tool"]
    },
    "response_or_summary": {"type": "string"}
  },
  "required": ["action_type"]
}`)

// ParseDecision decodes structured provider output into a Decision.
func ParseDecision(data []byte) (Decision, error) {
	var w wireDecision
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, domain.Validationf("decode decision: %v", err)
	}
	switch w.ActionType {
	case "USE_TOOL":
		if w.ToolCall == nil || w.ToolCall.Tool == "" {
			return nil, domain.Validationf("USE_TOOL decision without tool_call")
		}
		return *w.ToolCall, nil
	case "TASK_COMPLETE":
		return TaskComplete{Summary: w.ResponseOrSummary}, nil
	case "FAIL":
		return Fail{Reason: w.ResponseOrSummary}, nil
	default:
		return nil, domain.Validationf("unknown action_type %q", w.ActionType)
	}
}

// Describe renders a decision for logs.
func Describe(d Decision) string {
	switch v := d.(type) {
	case UseTool:
		return fmt.Sprintf("use tool %s", v.Tool)
	case TaskComplete:
		return "task complete"
	case Fail:
		return "fail: " + v.Reason
	default:
		return "unknown"
	}
}
