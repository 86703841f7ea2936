package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ormasoftchile/promptctl/pkg/logflow"
	"github.com/ormasoftchile/promptctl/pkg/logquery"
	"github.com/ormasoftchile/promptctl/pkg/schema"
	"github.com/ormasoftchile/promptctl/pkg/tui"
)

var (
	logsDir        string
	logsDays       int
	logsSince      string
	logsUntil      string
	logsLevel      string
	logsHooks      bool
	logsErrors     bool
	logsSlow       bool
	logsSession    string
	logsHandler    string
	logsEventType  string
	logsLimit      int
	logsFormat     string
	logsNoColor    bool
	logsTail       int
	logsReverse    bool
	logsFollow     bool
	logsUI         bool
	logsShowData   bool
	logsShowInput  bool
	logsShowOutput bool
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Query or follow recorded hook activity",
	Long: `Reads the JSONL logs written by dispatch.

By default the last day of logs is printed oldest first; --reverse prints
newest first. --follow streams new entries as they are written, --ui opens
the interactive viewer.`,
	Args: cobra.NoArgs,
	RunE: runLogs,
}

func runLogs(cmd *cobra.Command, args []string) error {
	now := time.Now()
	f, err := buildFilter(now)
	if err != nil {
		return err
	}
	ccfg, err := consoleConfig(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	dir := logsDir
	if dir == "" {
		dir = configuredLogDir()
	}
	opts := []logquery.Option{logquery.WithLogger(logger)}

	if logsUI {
		ctx, cancel := signalContext()
		defer cancel()
		return tui.Run(ctx, dir, f, ccfg, opts...)
	}

	formatter := logflow.NewFormatter(cmd.OutOrStdout(), ccfg)
	out := cmd.OutOrStdout()

	if logsFollow {
		ctx, cancel := signalContext()
		defer cancel()
		if logsTail > 0 {
			if err := printHistory(cmd, dir, f, formatter, now, logsTail); err != nil {
				return err
			}
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Following %s (Ctrl+C to stop)\n", logquery.TodayFile(dir, now))
		return logquery.Follow(ctx, dir, f, func(e logflow.Entry) error {
			_, err := fmt.Fprintln(out, formatter.Format(e))
			return err
		}, opts...)
	}

	files, err := logquery.LogFiles(dir, logsDays, now)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no log files found in %s", dir)
	}
	return printHistory(cmd, dir, f, formatter, now, logsTail)
}

// printHistory prints the stored entries oldest first, or newest first with
// --reverse, keeping only the newest tail entries when tail is positive.
func printHistory(cmd *cobra.Command, dir string, f logquery.Filter, formatter *logflow.Formatter, now time.Time, tail int) error {
	files, err := logquery.LogFiles(dir, logsDays, now)
	if err != nil {
		return err
	}
	entries, err := logquery.ReadEntries(files, f, logquery.WithLogger(logger))
	if err != nil {
		return err
	}
	logquery.Sort(entries, false)
	if tail > 0 && len(entries) > tail {
		entries = entries[len(entries)-tail:]
	}
	if logsReverse {
		logquery.Sort(entries, true)
	}
	out := cmd.OutOrStdout()
	for _, e := range entries {
		fmt.Fprintln(out, formatter.Format(e))
	}
	if logsFormat != logflow.FormatJSON {
		fmt.Fprintf(cmd.ErrOrStderr(), "\n%d entries found\n", len(entries))
	}
	return nil
}

func buildFilter(now time.Time) (logquery.Filter, error) {
	f := logquery.Filter{
		HooksOnly:  logsHooks,
		ErrorsOnly: logsErrors,
		Slow:       logsSlow,
		Session:    logsSession,
		Handler:    logsHandler,
		EventType:  logsEventType,
		Limit:      logsLimit,
	}
	if logsLevel != "" {
		l, err := logflow.ParseLevel(logsLevel)
		if err != nil {
			return f, err
		}
		f.Level = l
	}
	var err error
	if f.Since, err = parseTime(logsSince, now); err != nil {
		return f, fmt.Errorf("--since: %w", err)
	}
	if f.Until, err = parseTime(logsUntil, now); err != nil {
		return f, fmt.Errorf("--until: %w", err)
	}
	return f, nil
}

// parseTime accepts RFC 3339, a local "2006-01-02 15:04:05" or "2006-01-02"
// timestamp, or a duration meaning that long before now.
func parseTime(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return now.Add(-d), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range []string{time.DateTime, time.DateOnly} {
		if t, err := time.ParseInLocation(layout, s, now.Location()); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as a time or duration", s)
}

func consoleConfig(w io.Writer) (logflow.ConsoleConfig, error) {
	switch logsFormat {
	case logflow.FormatRich, logflow.FormatSimple, logflow.FormatJSON:
	default:
		return logflow.ConsoleConfig{}, fmt.Errorf("unknown format %q, use rich, simple or json", logsFormat)
	}
	colors := !logsNoColor && os.Getenv("NO_COLOR") == ""
	if colors {
		if file, ok := w.(*os.File); !ok || termenv.NewOutput(file).ColorProfile() == termenv.Ascii {
			colors = false
		}
	}
	return logflow.ConsoleConfig{
		Enabled:    true,
		Format:     logsFormat,
		Colors:     colors,
		ShowData:   logsShowData,
		ShowInput:  logsShowInput,
		ShowOutput: logsShowOutput,
	}, nil
}

// configuredLogDir resolves the log directory from the discovered
// configuration, falling back to the default location.
func configuredLogDir() string {
	jsonl := logflow.DefaultConfig().JSONL
	cfg, path, err := schema.LoadDiscovered()
	if err != nil {
		logger.Warn("config unavailable, using default log dir", zap.String("path", path), zap.Error(err))
	} else if cfg.Logging != nil {
		jsonl = cfg.Logging.JSONL
	}
	return logflow.NewJSONLStorage(jsonl).Dir()
}

func init() {
	fl := logsCmd.Flags()
	fl.StringVar(&logsDir, "log-dir", "", "Directory holding the JSONL logs (default from config)")
	fl.IntVar(&logsDays, "days", 1, "Number of days to read, today included")
	fl.StringVar(&logsSince, "since", "", "Only entries at or after this time (RFC 3339, date, or duration such as 30m)")
	fl.StringVar(&logsUntil, "until", "", "Only entries at or before this time")
	fl.StringVar(&logsLevel, "level", "", "Only entries of this level")
	fl.BoolVar(&logsHooks, "hooks", false, "Only hook lifecycle entries")
	fl.BoolVar(&logsErrors, "errors", false, "Only errors")
	fl.BoolVar(&logsSlow, "slow", false, "Only operations that took a second or more")
	fl.StringVar(&logsSession, "session", "", "Only entries of this session")
	fl.StringVar(&logsHandler, "handler", "", "Only entries of this handler")
	fl.StringVar(&logsEventType, "event-type", "", "Only entries of this hook event")
	fl.IntVar(&logsLimit, "limit", 0, "Stop after this many matching entries (0 = no limit)")
	fl.StringVar(&logsFormat, "format", logflow.FormatRich, "Output format: rich, simple or json")
	fl.BoolVar(&logsNoColor, "no-color", false, "Disable colors")
	fl.IntVar(&logsTail, "tail", 0, "Show only the newest N entries")
	fl.BoolVarP(&logsReverse, "reverse", "r", false, "Print newest entries first")
	fl.BoolVarP(&logsFollow, "follow", "f", false, "Stream new entries as they are written")
	fl.BoolVar(&logsUI, "ui", false, "Open the interactive viewer")
	fl.BoolVar(&logsShowData, "show-data", false, "Include entry data")
	fl.BoolVar(&logsShowInput, "show-input", false, "Include hook input")
	fl.BoolVar(&logsShowOutput, "show-output", false, "Include hook output")
	logsCmd.MarkFlagsMutuallyExclusive("follow", "ui")
}
