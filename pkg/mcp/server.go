package mcp

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jllopis/agis/pkg/core"
	"github.com/jllopis/agis/pkg/errors"
)

// Control tool names exposed to MCP clients.
const (
	ToolSubmitRequest = "submit_request"
	ToolAnswerHuman   = "answer_human"
	ToolStatus        = "status"
	ToolDeliverable   = "deliverable"
	ToolReset         = "reset"
)

// Controller is the part of the orchestration loop the server drives.
type Controller interface {
	Submit(ctx context.Context, request string) error
	Answer(ctx context.Context, answer string) error
	Reset(ctx context.Context) error
	Snapshot() core.Snapshot
}

// Server exposes a Controller as MCP tools so other agents can hand work to
// the team and follow its progress.
type Server struct {
	mcpServer  *server.MCPServer
	controller Controller
	logger     *slog.Logger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the server logger.
func WithServerLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// NewServer creates a server and registers the control tools.
func NewServer(name, version string, c Controller, opts ...ServerOption) *Server {
	s := &Server{
		mcpServer:  server.NewMCPServer(name, version, server.WithToolCapabilities(false)),
		controller: c,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.mcpServer.AddTool(mcp.NewTool(ToolSubmitRequest,
		mcp.WithDescription("Submit a request to the team. Blocks until the run completes, needs a human answer or fails, and returns the run status. While a question is pending the text is taken as the answer."),
		mcp.WithString("request", mcp.Required(), mcp.Description("What the team should accomplish")),
	), s.handleSubmit)
	s.mcpServer.AddTool(mcp.NewTool(ToolAnswerHuman,
		mcp.WithDescription("Answer the pending question and resume the run."),
		mcp.WithString("answer", mcp.Required(), mcp.Description("Answer to the pending question")),
	), s.handleAnswer)
	s.mcpServer.AddTool(mcp.NewTool(ToolStatus,
		mcp.WithDescription("Return the current run status as JSON: phase, cycle, team, thinking roles, pending question and error log."),
	), s.handleStatus)
	s.mcpServer.AddTool(mcp.NewTool(ToolDeliverable,
		mcp.WithDescription("Return the approved deliverable of the last run."),
	), s.handleDeliverable)
	s.mcpServer.AddTool(mcp.NewTool(ToolReset,
		mcp.WithDescription("Clear history, knowledge, graph and team."),
	), s.handleReset)
	return s
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdio.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeHTTP starts a streamable HTTP transport on addr.
func (s *Server) ServeHTTP(addr string) error {
	return server.NewStreamableHTTPServer(s.mcpServer).Start(addr)
}

func (s *Server) handleSubmit(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("request")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.controller.Submit(ctx, text); err != nil {
		return s.failure(ctx, ToolSubmitRequest, err), nil
	}
	return s.status()
}

func (s *Server) handleAnswer(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	answer, err := req.RequireString("answer")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.controller.Answer(ctx, answer); err != nil {
		return s.failure(ctx, ToolAnswerHuman, err), nil
	}
	return s.status()
}

func (s *Server) handleStatus(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.status()
}

func (s *Server) handleDeliverable(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snap := s.controller.Snapshot()
	if snap.Deliverable == "" {
		return mcp.NewToolResultError("no deliverable available (status: " + string(snap.Status) + ")"), nil
	}
	return mcp.NewToolResultText(snap.Deliverable), nil
}

func (s *Server) handleReset(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.controller.Reset(ctx); err != nil {
		return s.failure(ctx, ToolReset, err), nil
	}
	return mcp.NewToolResultText("reset"), nil
}

func (s *Server) status() (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(s.controller.Snapshot(), "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}

// Controller failures are reported as tool errors so the client model can
// read them; they are not protocol errors.
func (s *Server) failure(ctx context.Context, tool string, err error) *mcp.CallToolResult {
	code := errors.CodeOf(err)
	s.logger.WarnContext(ctx, "mcp.tool.failed",
		slog.String("tool", tool),
		slog.String("code", string(code)),
		slog.String("error", err.Error()),
	)
	return mcp.NewToolResultError(err.Error())
}
