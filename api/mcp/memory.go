package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/lokal/pkg/facts"
)

const defaultRecallLimit = 10

var (
	memoryRecallToolName    = "memory_recall"
	memoryRecallDescription = "Recall facts about the user from lokal's long-term memory. Given a query, returns the stored facts that share the most terms with it, plus the user's core identity facts. Use this before answering anything personal."

	memoryCountToolName    = "memory_count"
	memoryCountDescription = "Return the number of facts currently held in lokal's long-term memory."
)

// MemoryRecallInput represents the input arguments for the memory_recall tool.
type MemoryRecallInput struct {
	Query string `json:"query" jsonschema:"the text to find relevant facts for"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of facts to return (default: 10)"`
}

// MemoryRecallOutput is the structured output of a recall.
type MemoryRecallOutput struct {
	Query string       `json:"query"`
	Facts []facts.Fact `json:"facts"`
	Count int          `json:"count"`
}

// MemoryCountInput takes no arguments.
type MemoryCountInput struct{}

// MemoryCountOutput is the structured output of memory_count.
type MemoryCountOutput struct {
	Count int `json:"count"`
}

func (s *Server) handleMemoryRecall(ctx context.Context, _ *mcp.CallToolRequest, input MemoryRecallInput) (*mcp.CallToolResult, MemoryRecallOutput, error) {
	if input.Query == "" {
		return toolError("query is required"), MemoryRecallOutput{}, nil
	}

	limit := input.Limit
	if limit <= 0 {
		limit = defaultRecallLimit
	}

	s.config.Logger.Debug("MCP memory recall", "query", input.Query, "limit", limit)

	list, err := s.config.Retriever.RelevantFacts(ctx, input.Query, limit)
	if err != nil {
		s.config.Logger.Error("memory recall failed", "error", err)
		return toolError(fmt.Sprintf("Memory recall failed: %v", err)), MemoryRecallOutput{}, nil
	}
	if list == nil {
		list = []facts.Fact{}
	}

	output := MemoryRecallOutput{Query: input.Query, Facts: list, Count: len(list)}
	return textResult(output), output, nil
}

func (s *Server) handleMemoryCount(ctx context.Context, _ *mcp.CallToolRequest, _ MemoryCountInput) (*mcp.CallToolResult, MemoryCountOutput, error) {
	n, err := s.config.Store.Count(ctx)
	if err != nil {
		s.config.Logger.Error("memory count failed", "error", err)
		return toolError(fmt.Sprintf("Memory count failed: %v", err)), MemoryCountOutput{}, nil
	}

	output := MemoryCountOutput{Count: n}
	return textResult(output), output, nil
}

func textResult(v any) *mcp.CallToolResult {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return toolError(fmt.Sprintf("Failed to serialize results: %v", err))
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}
}

func toolError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
	}
}
