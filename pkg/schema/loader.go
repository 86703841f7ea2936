package schema

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/ormasoftchile/promptctl/pkg/logflow"
)

// ConfigFileName is the file looked up in the working directory and in the
// per-user promptctl directory.
const ConfigFileName = "promptctl.yaml"

// ConfigEnvVar overrides configuration discovery.
const ConfigEnvVar = "PROMPTCTL_CONFIG"

// LoadFile reads and structurally decodes a promptctl.yaml.
func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load decodes a configuration from a reader. Unknown fields are rejected.
// An empty document yields an empty configuration.
func Load(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	defaults := logflow.DefaultConfig()
	cfg := &Config{Logging: &defaults}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true) // strict: reject unknown fields
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("structural decode: %w", err)
	}
	if cfg.Logging == nil {
		cfg.Logging = &defaults
	}
	if cfg.Version == "" {
		cfg.Version = CurrentVersion
	}

	order, err := handlerOrder(data)
	if err != nil {
		return nil, fmt.Errorf("structural decode: %w", err)
	}
	cfg.HandlerOrder = order
	for name, h := range cfg.Handlers {
		if h == nil {
			return nil, fmt.Errorf("structural decode: handler %q is empty", name)
		}
		h.Name = name
	}
	return cfg, nil
}

// handlerOrder walks the document node tree and returns the keys of the
// top-level "handlers" mapping in source order.
func handlerOrder(data []byte) ([]string, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, nil
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value != "handlers" {
			continue
		}
		handlers := root.Content[i+1]
		if handlers.Kind != yaml.MappingNode {
			return nil, nil
		}
		order := make([]string, 0, len(handlers.Content)/2)
		for j := 0; j+1 < len(handlers.Content); j += 2 {
			order = append(order, handlers.Content[j].Value)
		}
		return order, nil
	}
	return nil, nil
}

// Empty returns a configuration with no handlers and default logging.
func Empty() *Config {
	defaults := logflow.DefaultConfig()
	return &Config{Version: CurrentVersion, Logging: &defaults}
}

// Discover returns the configuration path to use: $PROMPTCTL_CONFIG, then
// ./promptctl.yaml, then ~/.promptctl/promptctl.yaml. It returns "" when
// none exists.
func Discover() string {
	if p := os.Getenv(ConfigEnvVar); p != "" {
		return p
	}
	candidates := []string{ConfigFileName}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".promptctl", ConfigFileName))
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c
		}
	}
	return ""
}

// LoadDiscovered loads the discovered configuration, or an empty one when no
// file exists. The returned path is "" in the latter case.
func LoadDiscovered() (*Config, string, error) {
	path := Discover()
	if path == "" {
		return Empty(), "", nil
	}
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}
