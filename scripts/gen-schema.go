//go:build ignore

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ormasoftchile/promptctl/pkg/hostconfig"
	"github.com/ormasoftchile/promptctl/pkg/schema"
)

// Regenerates the checked-in schema and the plugin hook registration.
func main() {
	data, err := schema.GenerateJSONSchema()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if err := os.MkdirAll("schemas", 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "mkdir: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile("schemas/promptctl-v1.json", append(data, '\n'), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("wrote schemas/promptctl-v1.json")

	hooks := filepath.Join("plugin", "hooks", "hooks.json")
	if err := hostconfig.Write(hooks, hostconfig.Generate(hostconfig.PluginCommand)); err != nil {
		fmt.Fprintf(os.Stderr, "write: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("wrote " + hooks)
}
