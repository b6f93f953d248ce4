// Package toolsurface implements C10: the fixed set of five named
// tool operations the broker exposes over the Model Context Protocol,
// each a thin adapter translating MCP call arguments into one
// internal/broker call and rendering its result as a text report.
package toolsurface

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/sandkasten/broker/internal/broker"
	"github.com/sandkasten/broker/internal/health"
)

// Server owns the MCP server and the single broker.Broker it adapts
// calls onto.
type Server struct {
	MCP     *server.MCPServer
	broker  *broker.Broker
	metrics *health.Metrics
}

// New builds a Server with all five tools registered. metrics may be
// nil, in which case per-call http_requests_total recording is
// skipped.
func New(b *broker.Broker, metrics *health.Metrics, name, version string) *Server {
	s := &Server{
		MCP:     server.NewMCPServer(name, version),
		broker:  b,
		metrics: metrics,
	}
	s.registerTools()
	return s
}

// instrument wraps a tool handler with http_requests_total/
// active_connections bookkeeping, keyed by tool name.
func (s *Server) instrument(tool string, handler server.ToolHandlerFunc) server.ToolHandlerFunc {
	if s.metrics == nil {
		return handler
	}
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		s.metrics.ActiveConnections.Inc()
		defer s.metrics.ActiveConnections.Dec()

		result, err := handler(ctx, req)

		status := "ok"
		if err != nil || (result != nil && result.IsError) {
			status = "error"
		}
		s.metrics.HTTPRequestsTotal.WithLabelValues(tool, status).Inc()
		return result, err
	}
}

// Serve runs the server over stdio, blocking until the transport
// closes or ServeStdio's own SIGTERM/SIGINT handling stops it. ctx is
// not consulted.
func (s *Server) Serve(ctx context.Context) error {
	return server.ServeStdio(s.MCP)
}

func (s *Server) registerTools() {
	s.MCP.AddTool(mcp.NewTool("execute_code",
		mcp.WithDescription("Run source code in an execution session, one-shot or reused across calls."),
		mcp.WithString("language", mcp.Required(), mcp.Description("Language registry id, e.g. python, javascript, go")),
		mcp.WithString("code", mcp.Required(), mcp.Description("Source code to run")),
		mcp.WithString("sessionId", mcp.Description("Reuse this session's workspace instead of a transient one")),
		mcp.WithNumber("timeoutMs", mcp.Description("Wall-clock timeout in milliseconds, within [1000, 300000]")),
		mcp.WithString("stdin", mcp.Description("Text piped to the process's standard input")),
	), s.instrument("execute_code", s.handleExecuteCode))

	s.MCP.AddTool(mcp.NewTool("create_vscode_session",
		mcp.WithDescription("Provision a web-IDE session bound to a language workspace."),
		mcp.WithString("language", mcp.Description("Language registry id for the workspace")),
		mcp.WithString("template", mcp.Description("One of basic, web, api, data-science, machine-learning")),
		mcp.WithString("memory", mcp.Description("One of 1g, 2g, 4g, 8g")),
	), s.instrument("create_vscode_session", s.handleCreateVSCodeSession))

	s.MCP.AddTool(mcp.NewTool("create_playwright_session",
		mcp.WithDescription("Provision a browser-automation session."),
		mcp.WithString("browser", mcp.Description("One of chromium, firefox, webkit")),
		mcp.WithBoolean("headless", mcp.Description("Run the browser without a visible window")),
		mcp.WithObject("viewport", mcp.Description("{width, height} in pixels")),
		mcp.WithString("memory", mcp.Description("One of 2g, 4g, 8g")),
	), s.instrument("create_playwright_session", s.handleCreatePlaywrightSession))

	s.MCP.AddTool(mcp.NewTool("manage_sessions",
		mcp.WithDescription("List, inspect, or destroy sessions owned by the calling client."),
		mcp.WithString("action", mcp.Required(), mcp.Description("One of list, get, destroy")),
		mcp.WithString("sessionId", mcp.Description("Required for get and destroy")),
	), s.instrument("manage_sessions", s.handleManageSessions))

	s.MCP.AddTool(mcp.NewTool("system_health",
		mcp.WithDescription("Report overall broker health, resource use, and session statistics."),
		mcp.WithBoolean("detailed", mcp.Description("Include per-component status detail")),
	), s.instrument("system_health", s.handleSystemHealth))
}

// clientIDFromContext derives an owner identity from the MCP
// connection. Callers with no active client session (e.g. tests
// driving handlers directly) fall back to "anonymous".
func clientIDFromContext(ctx context.Context) string {
	if cs := server.ClientSessionFromContext(ctx); cs != nil {
		if id := cs.SessionID(); id != "" {
			return id
		}
	}
	return "anonymous"
}
