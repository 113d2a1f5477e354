package mcp

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/dshills/faqgate/internal/index"
	"github.com/dshills/faqgate/internal/indexer"
	"github.com/dshills/faqgate/internal/pipeline"
	"github.com/dshills/faqgate/internal/status"
	"github.com/dshills/faqgate/internal/storage"
	"github.com/dshills/faqgate/pkg/types"
)

const (
	// ServerName is the MCP server name
	ServerName = "faqgate"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Deps are the application components the tools call into. Status and
// Storage are optional.
type Deps struct {
	Pipeline    *pipeline.Pipeline
	Suggestions *pipeline.Suggestions
	Syncer      *indexer.Syncer
	Store       *index.Store
	Status      *status.Cache
	Storage     storage.Storage
	Mode        string
	Logger      *zap.Logger
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp    *server.MCPServer
	deps   Deps
	logger *zap.Logger
}

// NewServer creates a new MCP server instance
func NewServer(deps Deps) (*Server, error) {
	if deps.Pipeline == nil || deps.Suggestions == nil || deps.Syncer == nil || deps.Store == nil {
		return nil, fmt.Errorf("%w: pipeline, suggestions, syncer and store are required", types.ErrValidation)
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	mcpServer := server.NewMCPServer(
		ServerName,
		ServerVersion,
		server.WithToolCapabilities(false),
	)

	s := &Server{
		mcp:    mcpServer,
		deps:   deps,
		logger: deps.Logger.With(zap.String("component", "mcp")),
	}
	s.registerTools()

	return s, nil
}

// Serve runs the MCP server on stdio until the client disconnects or ctx
// is cancelled. Closing shared components is left to the caller.
func (s *Server) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(zap.NewStdLog(s.logger))

	s.logger.Info("MCP server ready, listening on stdio")
	err := stdio.Listen(ctx, os.Stdin, os.Stdout)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Server) registerTools() {
	s.mcp.AddTool(askFAQTool(), s.handleAskFAQ)
	s.mcp.AddTool(searchFAQTool(), s.handleSearchFAQ)
	s.mcp.AddTool(syncFAQTool(), s.handleSyncFAQ)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
	s.mcp.AddTool(getFAQEntryTool(), s.handleGetFAQEntry)
	if s.deps.Storage != nil {
		s.mcp.AddTool(recordFeedbackTool(), s.handleRecordFeedback)
		s.mcp.AddTool(getStatsTool(), s.handleGetStats)
	}

	if s.deps.Status != nil {
		s.mcp.AddTool(addStatusUpdateTool(), s.handleAddStatusUpdate)
		s.mcp.AddTool(listStatusUpdatesTool(), s.handleListStatusUpdates)
	}
}
