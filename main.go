package main

import (
	"os"

	"slidedeck/internal/app"
)

func main() {
	// MCP-only mode: `slidedeck mcp` runs a stdio MCP server with no host
	if len(os.Args) > 1 && os.Args[1] == "mcp" {
		app.ServeMCP(os.Args[2:])
		return
	}

	app.RunHost(os.Args[1:])
}
