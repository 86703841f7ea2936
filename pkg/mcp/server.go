// Package mcp exposes promptctl status, configuration and log queries over
// the Model Context Protocol.
package mcp

import (
	_ "embed"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// SetupGuide is the markdown returned by the setup_promptctl prompt and
// rendered by `promptctl setup`.
//
//go:embed setup.md
var SetupGuide string

// NewServer creates an MCP server with the promptctl tools and prompt
// registered against svc.
func NewServer(version string, svc *Service) *server.MCPServer {
	if svc == nil {
		svc = &Service{}
	}
	s := server.NewMCPServer(
		"promptctl",
		version,
		server.WithToolCapabilities(true),
		server.WithPromptCapabilities(true),
	)

	s.AddTool(
		mcp.NewTool("promptctl",
			mcp.WithDescription("Inspect promptctl: handler status, configuration location, or usage help"),
			mcp.WithString("action",
				mcp.Description("One of: status, config, help"),
				mcp.Enum(ActionStatus, ActionConfig, ActionHelp),
				mcp.DefaultString(ActionStatus),
			),
		),
		svc.HandlePromptctl,
	)

	s.AddTool(
		mcp.NewTool("logs",
			mcp.WithDescription("Query recent promptctl log entries, newest first"),
			mcp.WithString("filter_type",
				mcp.Description("One of: all, hooks, errors, slow, recent"),
				mcp.DefaultString(FilterAll),
			),
			mcp.WithNumber("limit", mcp.Description("Maximum number of entries"), mcp.DefaultNumber(DefaultLimit)),
			mcp.WithNumber("days", mcp.Description("Number of days to search, today included"), mcp.DefaultNumber(1)),
		),
		svc.HandleLogs,
	)

	s.AddTool(
		mcp.NewTool("config_schema",
			mcp.WithDescription("Export the JSON Schema for promptctl.yaml"),
		),
		HandleConfigSchema,
	)

	s.AddPrompt(
		mcp.NewPrompt("setup_promptctl",
			mcp.WithPromptDescription("Guide for configuring promptctl handlers"),
		),
		HandleSetupPrompt,
	)

	return s
}
