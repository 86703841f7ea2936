// Package main provides the promptctl binary: the hook dispatcher invoked by
// the host assistant plus the tooling around it.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ormasoftchile/promptctl/pkg/dispatch"
	pmcp "github.com/ormasoftchile/promptctl/pkg/mcp"
	"github.com/ormasoftchile/promptctl/pkg/schema"
	"github.com/ormasoftchile/promptctl/pkg/telemetry"
	"github.com/ormasoftchile/promptctl/pkg/tui"
)

// Version is set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

var (
	debug  bool
	logger = zap.NewNop()
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "promptctl",
	Short:         "Hook-driven automation for AI coding assistants",
	Long:          "promptctl receives assistant lifecycle hooks, runs the matching handlers from promptctl.yaml and records everything to structured logs.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := newLogger(debug)
		if err != nil {
			return fmt.Errorf("create logger: %w", err)
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

// newLogger builds the diagnostics logger. It writes console-encoded lines
// to stderr so stdout stays reserved for the hook response.
func newLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.DisableStacktrace = !debug
	return cfg.Build()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// --- dispatch ---

var dispatchConfig string

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Handle one hook event read from stdin",
	Long:  "Reads a hook event JSON object from stdin, runs every matching handler and writes the hook response to stdout.",
	Args:  cobra.NoArgs,
	RunE:  runDispatch,
}

func runDispatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	opts := []dispatch.Option{dispatch.WithLogger(logger)}
	if dispatchConfig != "" {
		cfg, err := schema.LoadFile(dispatchConfig)
		if err != nil {
			return err
		}
		opts = append(opts, dispatch.WithConfig(cfg))
	}

	tcfg := telemetry.LoadConfig()
	tcfg.Version = version
	metrics, err := telemetry.New(ctx, tcfg)
	if err != nil {
		logger.Warn("telemetry disabled", zap.Error(err))
		metrics = telemetry.Noop()
	}
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer scancel()
		if err := metrics.Close(sctx); err != nil {
			logger.Warn("flush metrics", zap.Error(err))
		}
	}()
	opts = append(opts, dispatch.WithMetrics(metrics))

	_, err = dispatch.New(opts...).Dispatch(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
	return err
}

// --- validate ---

var validateCmd = &cobra.Command{
	Use:   "validate [promptctl.yaml]",
	Short: "Validate a configuration file against the schema",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
	cfg, errs := schema.ValidateFile(args[0])

	var failures []*schema.ValidationError
	for _, e := range errs {
		if e.Severity == "warning" {
			fmt.Fprintf(errOut, "  ⚠ [%s] %s\n", e.Phase, e.Message)
			if e.Path != "" {
				fmt.Fprintf(errOut, "    at: %s\n", e.Path)
			}
			continue
		}
		failures = append(failures, e)
	}
	if len(failures) > 0 {
		fmt.Fprintf(errOut, "Validation failed: %d error(s)\n\n", len(failures))
		for i, e := range failures {
			fmt.Fprintf(errOut, "  %d. [%s] %s\n", i+1, e.Phase, e.Message)
			if e.Path != "" {
				fmt.Fprintf(errOut, "     at: %s\n", e.Path)
			}
		}
		return fmt.Errorf("validation failed with %d error(s)", len(failures))
	}

	enabled := 0
	for _, h := range cfg.OrderedHandlers() {
		if h.IsEnabled() {
			enabled++
		}
	}
	fmt.Fprintf(out, "✓ %s is valid (%d handlers, %d enabled)\n", args[0], len(cfg.Handlers), enabled)
	return nil
}

// --- schema ---

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON Schema of promptctl.yaml",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := schema.GenerateJSONSchema()
		if err != nil {
			return fmt.Errorf("generate schema: %w", err)
		}
		var raw json.RawMessage = data
		formatted, err := json.MarshalIndent(raw, "", "  ")
		if err != nil {
			formatted = data
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(formatted))
		return nil
	},
}

// --- setup ---

var setupRaw bool

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Show the setup guide",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if setupRaw {
			fmt.Fprint(cmd.OutOrStdout(), pmcp.SetupGuide)
			return
		}
		fmt.Fprint(cmd.OutOrStdout(), tui.RenderMarkdown(pmcp.SetupGuide, 100))
	},
}

// --- version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "promptctl %s (build: %s)\n", version, commit)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Print debug diagnostics to stderr")

	dispatchCmd.Flags().StringVar(&dispatchConfig, "config", "", "Configuration file (default: $PROMPTCTL_CONFIG, ./promptctl.yaml, ~/.promptctl/promptctl.yaml)")

	setupCmd.Flags().BoolVar(&setupRaw, "raw", false, "Print the guide as plain markdown")

	rootCmd.AddCommand(dispatchCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(installHooksCmd)
	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(versionCmd)
}
