// Package tools provides the tool registry that the agent loop dispatches
// model-requested tool calls through.
//
// Tools are grouped into catalogs by category: the build catalog mutates the
// entities index, the retrieval catalog reads the index and queries the
// compiled ontology. A session is handed exactly one catalog.
package tools

import (
	"context"
)

// ToolCategory classifies tools by the phase that may invoke them.
type ToolCategory string

const (
	// CategoryBuild covers the mutating catalog used while modeling sources.
	CategoryBuild ToolCategory = "/build"

	// CategoryRetrieval covers the read-only catalog used while answering.
	CategoryRetrieval ToolCategory = "/retrieval"
)

// Property describes a single parameter property for JSON schema.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Default     any    `json:"default,omitempty"`
	Enum        []any  `json:"enum,omitempty"`
	// Items describes array element schema (required for type="array")
	Items *PropertyItems `json:"items,omitempty"`
}

// PropertyItems describes the schema for array elements.
type PropertyItems struct {
	Type string `json:"type"`
	// Nested items for arrays of arrays (property/value pairs).
	Items *PropertyItems `json:"items,omitempty"`
}

// ToolSchema defines the JSON schema for tool arguments.
// This enables model tool calling with proper validation.
type ToolSchema struct {
	// Required lists parameters that must be provided.
	Required []string `json:"required"`

	// Properties describes each parameter.
	Properties map[string]Property `json:"properties"`
}

// ExecuteFunc is the signature for tool execution.
// Returns the result string and any error.
type ExecuteFunc func(ctx context.Context, args map[string]any) (string, error)

// Tool defines one catalog entry the model can invoke.
type Tool struct {
	// Name is the unique identifier for the tool.
	Name string

	// Description explains what the tool does.
	// Sent to the model as part of the tool definition.
	Description string

	// Category classifies the tool by phase.
	Category ToolCategory

	// Execute runs the tool with the given arguments.
	Execute ExecuteFunc

	// Schema defines the expected arguments.
	Schema ToolSchema
}

// Validate checks if the tool definition is valid.
func (t *Tool) Validate() error {
	if t.Name == "" {
		return ErrToolNameEmpty
	}
	if t.Execute == nil {
		return ErrToolExecuteNil
	}
	return nil
}

// ToolResult wraps the result of tool execution with metadata.
type ToolResult struct {
	// ToolName identifies which tool was executed.
	ToolName string

	// Result is the string output from the tool.
	Result string

	// Error is set if the tool failed.
	Error error

	// DurationMs is how long execution took.
	DurationMs int64
}

// IsSuccess returns true if the tool executed without error.
func (r *ToolResult) IsSuccess() bool {
	return r.Error == nil
}
