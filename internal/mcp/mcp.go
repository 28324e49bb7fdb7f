// Package mcp exposes athlete recommendations, season lookup and results
// through the Model Context Protocol, mounted by the HTTP server at /mcp.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/kubikal7/ski-jumping-management/internal/model"
	"github.com/kubikal7/ski-jumping-management/internal/service/recommend"
)

// Recommender ranks athletes for an event. *recommend.Engine implements it.
type Recommender interface {
	Recommend(ctx context.Context, q recommend.Query) ([]recommend.Ranked, error)
}

// ResultReader lists results. *roster.Service implements it.
type ResultReader interface {
	Results(ctx context.Context, f model.ResultFilter, p model.Page) ([]model.Result, int, error)
}

// EventReader lists upcoming events. *catalog.Service implements it.
type EventReader interface {
	UpcomingEvents(ctx context.Context, f model.EventFilter, p model.Page) ([]model.Event, int, error)
}

// PartitionChecker reports whether a season partition exists. *storage.DB
// implements it.
type PartitionChecker interface {
	PartitionExists(ctx context.Context, table, seasonKey string) (bool, error)
}

// Deps wires the MCP server to the service layer.
type Deps struct {
	Recommender Recommender
	Profiles    recommend.Profiles
	Results     ResultReader
	Events      EventReader
	Partitions  PartitionChecker
	Logger      *slog.Logger
	Version     string
	// Now defaults to time.Now.
	Now func() time.Time
}

// Server wraps the mcp-go server with the skijump tools and resources.
type Server struct {
	mcpServer   *mcpserver.MCPServer
	recommender Recommender
	profiles    recommend.Profiles
	results     ResultReader
	events      EventReader
	partitions  PartitionChecker
	logger      *slog.Logger
	now         func() time.Time
}

// New creates and configures the MCP server.
func New(d Deps) *Server {
	s := &Server{
		recommender: d.Recommender,
		profiles:    d.Profiles,
		results:     d.Results,
		events:      d.Events,
		partitions:  d.Partitions,
		logger:      d.Logger,
		now:         d.Now,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"skijump",
		d.Version,
		mcpserver.WithResourceCapabilities(false, true),
		mcpserver.WithToolCapabilities(true),
	)
	s.registerResources()
	s.registerTools()
	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func jsonResult(v any) (*mcplib.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}, nil
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}

// serviceError turns a service failure into a tool error. Caller mistakes
// are echoed back; anything else is logged and reported without detail.
func (s *Server) serviceError(ctx context.Context, tool string, err error) *mcplib.CallToolResult {
	switch {
	case errors.Is(err, model.ErrInvalidRequest),
		errors.Is(err, model.ErrNotFound),
		errors.Is(err, model.ErrAccessDenied):
		return errorResult(err.Error())
	}
	s.logger.ErrorContext(ctx, "mcp: tool failed", "tool", tool, "error", err)
	return errorResult("internal error")
}
