// Package main provides the promptctl-mcp binary, an MCP server exposing
// promptctl status, logs and schema to AI agents.
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	pmcp "github.com/ormasoftchile/promptctl/pkg/mcp"
)

var version = "dev"

func main() {
	s := pmcp.NewServer(version, &pmcp.Service{})
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
