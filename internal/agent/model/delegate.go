package model

import (
	"context"

	"github.com/cloudwego/eino/schema"
)

// SearchTrace marks one retrieval performed while answering a query.
type SearchTrace struct {
	Tool string `json:"tool"`
	Note string `json:"note"`
}

// Result is the outcome of a completed agent run.
type Result struct {
	Text      string
	ToolsUsed []string
	Searches  []SearchTrace
}

// Delegate is the reasoning agent boundary: given a prompt it selects and
// invokes tools and produces the final answer. Kept as an interface so the
// agent can be swapped or faked in tests.
type Delegate interface {
	Run(ctx context.Context, prompt string) (*Result, error)

	// RunStream yields incremental assistant message deltas. Tool-call
	// chunks are filtered out by the caller; only text deltas are surfaced
	// to clients.
	RunStream(ctx context.Context, prompt string) (*schema.StreamReader[*schema.Message], error)
}
