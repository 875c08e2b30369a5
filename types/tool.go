package types

import (
	"context"
	"encoding/json"
)

// ToolSchema defines a tool's interface for LLM function calling.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
	Version     string          `json:"version,omitempty"`
}

// ToolFunc is the JSON calling convention used by agent tool registries.
type ToolFunc func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)
