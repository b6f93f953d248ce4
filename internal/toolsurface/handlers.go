package toolsurface

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/sandkasten/broker/internal/broker"
)

func (s *Server) handleExecuteCode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	language, err := req.RequireString("language")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	code, err := req.RequireString("code")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	report, err := s.broker.ExecuteCode(ctx, broker.ExecuteCodeRequest{
		Language:  language,
		Code:      code,
		SessionID: req.GetString("sessionId", ""),
		TimeoutMs: int(req.GetFloat("timeoutMs", 0)),
		Stdin:     req.GetString("stdin", ""),
		ClientID:  clientIDFromContext(ctx),
	})
	if err != nil {
		return mcp.NewToolResultError(renderBrokerError(err)), nil
	}
	return mcp.NewToolResultText(renderExecuteCodeReport(report)), nil
}

func (s *Server) handleCreateVSCodeSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.broker.CreateVSCodeSession(ctx,
		req.GetString("language", ""),
		req.GetString("template", ""),
		req.GetString("memory", ""),
		clientIDFromContext(ctx),
	)
	if err != nil {
		return mcp.NewToolResultError(renderBrokerError(err)), nil
	}
	return mcp.NewToolResultText(renderVSCodeSessionResult(res)), nil
}

func (s *Server) handleCreatePlaywrightSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	width, height := 0, 0
	if args := req.GetArguments(); args != nil {
		if vp, ok := args["viewport"].(map[string]any); ok {
			if w, ok := vp["width"].(float64); ok {
				width = int(w)
			}
			if h, ok := vp["height"].(float64); ok {
				height = int(h)
			}
		}
	}

	res, err := s.broker.CreatePlaywrightSession(ctx,
		req.GetString("browser", ""),
		req.GetBool("headless", false),
		width, height,
		req.GetString("memory", ""),
		clientIDFromContext(ctx),
	)
	if err != nil {
		return mcp.NewToolResultError(renderBrokerError(err)), nil
	}
	return mcp.NewToolResultText(renderPlaywrightSessionResult(res)), nil
}

func (s *Server) handleManageSessions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	action, err := req.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.broker.ManageSessions(ctx,
		broker.ManageSessionsAction(action),
		req.GetString("sessionId", ""),
		clientIDFromContext(ctx),
	)
	if err != nil {
		return mcp.NewToolResultError(renderBrokerError(err)), nil
	}
	return mcp.NewToolResultText(renderManageSessionsResult(result)), nil
}

func (s *Server) handleSystemHealth(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc, err := s.broker.SystemHealth(ctx, req.GetBool("detailed", false))
	if err != nil {
		return mcp.NewToolResultError(renderBrokerError(err)), nil
	}
	return mcp.NewToolResultText(renderSystemHealth(doc)), nil
}
