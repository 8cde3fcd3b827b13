// Package mcp exposes snippet search to MCP clients over stdio. The tool
// delegates to the same search orchestrator as the HTTP API, so both
// surfaces return identical results.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/snipd/internal/search"
)

// Server is the MCP server wrapping the search orchestrator.
type Server struct {
	mcp      *mcp.Server
	searcher *search.Orchestrator
	logger   *zap.Logger
}

// Config configures the MCP server identity.
type Config struct {
	Name    string
	Version string
}

// NewServer creates the MCP server and registers its tools.
func NewServer(cfg Config, searcher *search.Orchestrator, logger *zap.Logger) (*Server, error) {
	if searcher == nil {
		return nil, fmt.Errorf("search orchestrator is required")
	}
	if cfg.Name == "" {
		cfg.Name = "snipd"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	s := &Server{
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		}, nil),
		searcher: searcher,
		logger:   logger,
	}
	s.registerTools()
	return s, nil
}

type searchSnippetsInput struct {
	Query    string `json:"query" jsonschema:"required,Natural language description of the code you are looking for"`
	Limit    int    `json:"limit,omitempty" jsonschema:"Maximum results to return, between 1 and 50 (default: 5)"`
	RepoName string `json:"repo_name,omitempty" jsonschema:"Restrict results to one repository (owner/repo)"`
	Language string `json:"language,omitempty" jsonschema:"Restrict results to one language (go, python, ...)"`
}

type searchSnippetsOutput struct {
	Query   string          `json:"query" jsonschema:"The query that was searched"`
	Results []search.Result `json:"results" jsonschema:"Matching snippets ordered by relevance"`
	Count   int             `json:"count" jsonschema:"Number of snippets returned"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_snippets",
		Description: "Semantic search over code snippets extracted from ingested repositories. Returns snippet title, description, code, path and origin repository.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args searchSnippetsInput) (*mcp.CallToolResult, searchSnippetsOutput, error) {
		resp, err := s.searcher.Search(ctx, search.Request{
			Query:    args.Query,
			Limit:    args.Limit,
			RepoName: args.RepoName,
			Language: args.Language,
		})
		if err != nil {
			return nil, searchSnippetsOutput{}, err
		}
		s.logger.Debug("mcp search served",
			zap.String("query", resp.Query),
			zap.Int("results", len(resp.Results)))
		return nil, searchSnippetsOutput{
			Query:   resp.Query,
			Results: resp.Results,
			Count:   len(resp.Results),
		}, nil
	})
}

// Run serves MCP over stdio until ctx ends.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("mcp server running on stdio")
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}
