package types

import (
	"encoding/json"
	"time"
)

// ToolSchema defines a tool's interface for LLM function calling.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolResult represents the result of a tool execution.
type ToolResult struct {
	ToolCallID string          `json:"tool_call_id"`
	Name       string          `json:"name"`
	Result     json.RawMessage `json:"result"`
	Error      string          `json:"error,omitempty"`
	Duration   time.Duration   `json:"duration"`
}

// IsError returns true if the tool execution failed.
func (tr ToolResult) IsError() bool {
	return tr.Error != ""
}

// Content returns the text fed back to the model for this result.
func (tr ToolResult) Content() string {
	if tr.Error != "" {
		return "Error: " + tr.Error
	}
	return string(tr.Result)
}

// Invocation converts the result into a transcript record.
func (tr ToolResult) Invocation(arguments json.RawMessage) ToolInvocation {
	return ToolInvocation{
		CallID:    tr.ToolCallID,
		Tool:      tr.Name,
		Arguments: arguments,
		Result:    tr.Result,
		Error:     tr.Error,
		Duration:  tr.Duration,
	}
}
