package logflow

import (
	"errors"
	"fmt"
	"time"
)

// Console formats.
const (
	FormatRich   = "rich"
	FormatSimple = "simple"
	FormatJSON   = "json"
)

// Rotation modes.
const (
	RotateDaily = "daily"
	RotateSize  = "size"
)

// DefaultFlushInterval is how often the background goroutine drains the queue.
const DefaultFlushInterval = 100 * time.Millisecond

// Config configures a Pipeline. It is decoded from the `logging` block of
// promptctl.yaml on top of DefaultConfig.
type Config struct {
	Enabled       bool          `yaml:"enabled"                  json:"enabled"`
	Level         Level         `yaml:"level"                    json:"level"`
	BufferSize    int           `yaml:"buffer_size"              json:"buffer_size"`
	RateLimit     int           `yaml:"rate_limit"               json:"rate_limit"` // entries per second, 0 = unlimited
	FlushInterval string        `yaml:"flush_interval,omitempty" json:"flush_interval,omitempty"`
	Console       ConsoleConfig `yaml:"console"                  json:"console"`
	JSONL         JSONLConfig   `yaml:"jsonl"                    json:"jsonl"`
}

// ConsoleConfig configures the console sink.
type ConsoleConfig struct {
	Enabled    bool   `yaml:"enabled"               json:"enabled"`
	Format     string `yaml:"format"                json:"format" jsonschema:"enum=rich,enum=simple,enum=json"`
	Colors     bool   `yaml:"colors"                json:"colors"`
	ShowData   bool   `yaml:"show_data"             json:"show_data"`
	ShowInput  bool   `yaml:"show_input,omitempty"  json:"show_input,omitempty"`
	ShowOutput bool   `yaml:"show_output,omitempty" json:"show_output,omitempty"`
}

// JSONLConfig configures the JSONL file store.
type JSONLConfig struct {
	Enabled   bool   `yaml:"enabled"     json:"enabled"`
	Path      string `yaml:"path"        json:"path"` // {date} is replaced with YYYY-MM-DD, leading ~ with $HOME
	Rotation  string `yaml:"rotation"    json:"rotation" jsonschema:"enum=daily,enum=size"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`

	// MaxSizeBytes overrides MaxSizeMB when positive.
	MaxSizeBytes int64 `yaml:"-" json:"-"`
}

// DefaultLogPath is where entries are stored unless configured otherwise.
const DefaultLogPath = "~/.promptctl/logs/{date}.jsonl"

// DefaultConfig returns the pipeline defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:    true,
		Level:      LevelInfo,
		BufferSize: 10000,
		RateLimit:  1000,
		Console: ConsoleConfig{
			Enabled: true,
			Format:  FormatRich,
			Colors:  true,
		},
		JSONL: JSONLConfig{
			Enabled:   true,
			Path:      DefaultLogPath,
			Rotation:  RotateDaily,
			MaxSizeMB: 100,
		},
	}
}

// Validate checks value ranges and enumerations.
func (c Config) Validate() error {
	var errs []error
	if c.Level != "" && !c.Level.Valid() {
		errs = append(errs, fmt.Errorf("unknown level %q", c.Level))
	}
	if c.BufferSize < 0 {
		errs = append(errs, fmt.Errorf("buffer_size must be positive, got %d", c.BufferSize))
	}
	if c.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("rate_limit must not be negative, got %d", c.RateLimit))
	}
	if _, err := c.flushInterval(); err != nil {
		errs = append(errs, err)
	}
	switch c.Console.Format {
	case "", FormatRich, FormatSimple, FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("unknown console format %q", c.Console.Format))
	}
	switch c.JSONL.Rotation {
	case "", RotateDaily, RotateSize:
	default:
		errs = append(errs, fmt.Errorf("unknown rotation %q", c.JSONL.Rotation))
	}
	if c.JSONL.MaxSizeMB < 0 {
		errs = append(errs, fmt.Errorf("max_size_mb must not be negative, got %d", c.JSONL.MaxSizeMB))
	}
	return errors.Join(errs...)
}

func (c Config) flushInterval() (time.Duration, error) {
	if c.FlushInterval == "" {
		return DefaultFlushInterval, nil
	}
	d, err := time.ParseDuration(c.FlushInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid flush_interval %q: %w", c.FlushInterval, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("flush_interval must be positive, got %s", d)
	}
	return d, nil
}

func (c Config) minPriority() int {
	if c.Level == "" {
		return LevelInfo.Priority()
	}
	return c.Level.Priority()
}

func (c JSONLConfig) maxBytes() int64 {
	if c.MaxSizeBytes > 0 {
		return c.MaxSizeBytes
	}
	return int64(c.MaxSizeMB) * 1024 * 1024
}
