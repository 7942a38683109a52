package domain

import (
	"context"
	"encoding/json"
	"time"
)

// ProviderID identifies a source of invocable tools.
type ProviderID string

const (
	// ProviderLocal is the in-process browser provider. Its tools are not
	// dispatched through the router; the executor runs them itself against
	// the browser backend.
	ProviderLocal ProviderID = "local"
)

// ToolCategory groups tools by the infrastructure they depend on.
type ToolCategory string

const (
	CategoryBrowser ToolCategory = "browser"
	CategoryAgent   ToolCategory = "agent"
	CategoryCommand ToolCategory = "command"
	CategoryGeneral ToolCategory = "general"
)

// QualifiedSeparator joins a provider alias and a tool name into a
// qualified name, e.g. "comet:search".
const QualifiedSeparator = ":"

// ToolDescriptor describes one invocable tool in the merged catalog.
// Descriptors are built once per router initialization and are immutable
// afterward; re-initialization replaces the whole catalog.
type ToolDescriptor struct {
	Name          string          `json:"name"`
	QualifiedName string          `json:"qualified_name"`
	Provider      ProviderID      `json:"provider"`
	Category      ToolCategory    `json:"category"`
	Description   string          `json:"description,omitempty"`
	Schema        json.RawMessage `json:"schema,omitempty"`
	// Canonical marks the tool that satisfies a bare (unqualified) name
	// when several providers expose the same name.
	Canonical bool `json:"canonical"`
}

// ToolResult is the outcome of exactly one tool invocation.
type ToolResult struct {
	ToolName   string          `json:"tool_name"`
	Provider   ProviderID      `json:"provider"`
	Success    bool            `json:"success"`
	Data       json.RawMessage `json:"data,omitempty"`
	DurationMS int64           `json:"duration_ms"`
	Error      string          `json:"error,omitempty"`
}

// Elapsed reports the invocation duration.
func (r *ToolResult) Elapsed() time.Duration {
	return time.Duration(r.DurationMS) * time.Millisecond
}

// ToolInvoker resolves and dispatches tools from the merged catalog.
type ToolInvoker interface {
	FindTool(name string) (*ToolDescriptor, error)
	Invoke(ctx context.Context, name string, params map[string]any) (*ToolResult, error)
	Catalog() []ToolDescriptor
	IsServerAvailable(ctx context.Context, provider ProviderID) bool
}
