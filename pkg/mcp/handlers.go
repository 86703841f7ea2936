package mcp

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/ormasoftchile/promptctl/pkg/logflow"
	"github.com/ormasoftchile/promptctl/pkg/logquery"
	"github.com/ormasoftchile/promptctl/pkg/schema"
)

// Actions of the promptctl tool.
const (
	ActionStatus = "status"
	ActionConfig = "config"
	ActionHelp   = "help"
)

// Filters of the logs tool.
const (
	FilterAll    = "all"
	FilterHooks  = "hooks"
	FilterErrors = "errors"
	FilterSlow   = "slow"
	FilterRecent = "recent"
)

// DefaultLimit caps the logs tool output when no limit is given.
const DefaultLimit = 20

const helpText = `PromptCtl - Hook-based automation for Claude Code

Available actions:
- status: Show current status
- config: Show config file location
- help: Show this help message

Configure handlers in promptctl.yaml to automate workflows.`

// Service answers tool calls. Zero fields fall back to configuration
// discovery, the configured log directory and time.Now.
type Service struct {
	ConfigPath string
	LogDir     string
	Logger     *zap.Logger
	Now        func() time.Time
}

func (s *Service) config() (*schema.Config, string, error) {
	if s.ConfigPath != "" {
		cfg, err := schema.LoadFile(s.ConfigPath)
		return cfg, s.ConfigPath, err
	}
	return schema.LoadDiscovered()
}

func (s *Service) logDir(cfg *schema.Config) string {
	if s.LogDir != "" {
		return s.LogDir
	}
	jsonl := logflow.DefaultConfig().JSONL
	if cfg != nil && cfg.Logging != nil {
		jsonl = cfg.Logging.JSONL
	}
	return logflow.NewJSONLStorage(jsonl).Dir()
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) logger() *zap.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return zap.NewNop()
}

// HandlePromptctl implements the promptctl tool.
func (s *Service) HandlePromptctl(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	action, _ := req.GetArguments()["action"].(string)
	if action == "" {
		action = ActionStatus
	}

	switch action {
	case ActionStatus:
		cfg, path, err := s.config()
		if err != nil {
			return errorResult(fmt.Sprintf("load %s: %s", path, err)), nil
		}
		enabled := 0
		for _, h := range cfg.Handlers {
			if h.IsEnabled() {
				enabled++
			}
		}
		return textResult(fmt.Sprintf("PromptCtl active with %d enabled handlers", enabled)), nil

	case ActionConfig:
		path := s.ConfigPath
		if path == "" {
			path = schema.Discover()
		}
		if path == "" {
			home, _ := os.UserHomeDir()
			return textResult(fmt.Sprintf("Configuration: %s (not found, using defaults)",
				filepath.Join(home, ".promptctl", schema.ConfigFileName))), nil
		}
		return textResult("Configuration: " + path), nil

	case ActionHelp:
		return textResult(helpText), nil

	default:
		return errorResult(fmt.Sprintf("Unknown action: %s. Use 'help' for available actions.", action)), nil
	}
}

// HandleLogs implements the logs tool.
func (s *Service) HandleLogs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	filterType, _ := args["filter_type"].(string)
	if filterType == "" {
		filterType = FilterAll
	}
	limit := intArg(args, "limit", DefaultLimit)
	days := intArg(args, "days", 1)

	f := logquery.Filter{Limit: limit}
	switch filterType {
	case FilterAll, FilterRecent:
	case FilterHooks:
		f.HooksOnly = true
	case FilterErrors:
		f.ErrorsOnly = true
	case FilterSlow:
		f.Slow = true
	default:
		return errorResult(fmt.Sprintf("unknown filter_type %q, use all, hooks, errors, slow or recent", filterType)), nil
	}

	cfg, _, err := s.config()
	if err != nil {
		s.logger().Warn("config unavailable, using default log dir", zap.Error(err))
		cfg = nil
	}
	dir := s.logDir(cfg)
	files, err := logquery.LogFiles(dir, days, s.now())
	if err != nil {
		return errorResult(err.Error()), nil
	}
	if len(files) == 0 {
		return textResult("No log files found in " + dir), nil
	}

	entries, err := logquery.ReadEntries(files, f, logquery.WithLogger(s.logger()))
	if err != nil {
		return errorResult(err.Error()), nil
	}
	if len(entries) == 0 {
		return textResult(fmt.Sprintf("No matching log entries found (filter: %s)", filterType)), nil
	}
	logquery.Sort(entries, true)

	formatter := logflow.NewFormatter(io.Discard, logflow.ConsoleConfig{Format: logflow.FormatSimple})
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(formatter.Format(e))
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "\n%d entries (filter: %s, days: %d)", len(entries), filterType, days)
	return textResult(b.String()), nil
}

// HandleConfigSchema implements the config_schema tool.
func HandleConfigSchema(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := schema.GenerateJSONSchema()
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(string(data)), nil
}

// HandleSetupPrompt implements the setup_promptctl prompt.
func HandleSetupPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	return mcp.NewGetPromptResult(
		"Set up promptctl",
		[]mcp.PromptMessage{
			mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(SetupGuide)),
		},
	), nil
}

func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		if v > 0 {
			return int(v)
		}
	case int:
		if v > 0 {
			return v
		}
	}
	return def
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(text)},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(msg)},
		IsError: true,
	}
}
