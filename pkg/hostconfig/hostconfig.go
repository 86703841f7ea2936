// Package hostconfig generates the hooks configuration that registers the
// dispatcher with the host for every known hook event.
package hostconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ormasoftchile/promptctl/pkg/event"
)

// Commands the host can run to reach the dispatcher.
const (
	DefaultCommand = "promptctl dispatch"
	PluginCommand  = `"${CLAUDE_PLUGIN_ROOT}"/bin/promptctl dispatch`
)

// MatchAll makes a registration apply to every tool.
const MatchAll = "*"

// Config is the hooks.json document.
type Config struct {
	Hooks map[string][]Registration `json:"hooks"`
}

// Registration binds a matcher to the commands run for it.
type Registration struct {
	Matcher string `json:"matcher"`
	Hooks   []Hook `json:"hooks"`
}

// Hook is one command the host runs.
type Hook struct {
	Type    string `json:"type"`
	Command string `json:"command"`
	Timeout int    `json:"timeout,omitempty"`
}

// Generate registers command for every known event with a match-all
// matcher.
func Generate(command string) Config {
	if command == "" {
		command = DefaultCommand
	}
	cfg := Config{Hooks: make(map[string][]Registration, len(event.KnownEvents()))}
	for _, name := range event.KnownEvents() {
		cfg.Hooks[name] = []Registration{{
			Matcher: MatchAll,
			Hooks:   []Hook{{Type: "command", Command: command}},
		}}
	}
	return cfg
}

// Marshal encodes cfg the way it is written to disk.
func (c Config) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Write stores cfg at path, replacing the file.
func Write(path string, cfg Config) error {
	data, err := cfg.Marshal()
	if err != nil {
		return fmt.Errorf("encode hooks config: %w", err)
	}
	return writeFile(path, data)
}

// Install sets the hooks key of the JSON settings file at path, keeping
// every other key. A missing file is created.
func Install(path string, cfg Config) error {
	settings := map[string]any{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return fmt.Errorf("read %s: %w", path, err)
	case len(data) > 0:
		if err := json.Unmarshal(data, &settings); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}
	settings["hooks"] = cfg.Hooks

	out, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	return writeFile(path, append(out, '\n'))
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
