package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/quill/api/search"
)

var (
	searchToolName    = "search_articles"
	searchDescription = "Search indexed articles by meaning. Returns the most relevant articles for the query text with their title, URL, summary and, for long articles, the best matching sections. When nothing can be matched, the most recent articles are returned and flagged as fallback results."
)

// SearchInput represents the input arguments for the search tool.
type SearchInput struct {
	Query string `json:"query" jsonschema:"the search query text to find relevant articles"`
	TopK  int    `json:"top_k,omitempty" jsonschema:"number of articles to return (default: 5)"`
}

// handleSearch processes a search request.
func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, search.Output, error) {
	output, err := search.Search(ctx, s.config.Querier, input.Query, input.TopK, s.config.Logger)
	if err != nil {
		s.config.Logger.Error("MCP search failed", "query", input.Query, "error", err)
		return errorResult(fmt.Sprintf("Search failed: %v", err)), search.Output{}, nil
	}

	// Tools returning structured content also return the serialized JSON in
	// a TextContent block for clients that only read text.
	jsonBytes, err := json.Marshal(output)
	if err != nil {
		s.config.Logger.Error("failed to marshal search output", "error", err)
		return errorResult(fmt.Sprintf("Failed to serialize results: %v", err)), search.Output{}, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, *output, nil
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
	}
}
