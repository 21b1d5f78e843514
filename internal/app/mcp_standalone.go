package app

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"slidedeck/internal/config"
)

const shutdownTimeout = 10 * time.Second

// ServeMCP runs the editor core as a standalone MCP server on stdin/stdout.
// There is no host; agents drive the deck entirely through tools.
func ServeMCP(args []string) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(args)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	a, err := New(ctx, cfg, Options{})
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	defer shutdown(a)
	if err := a.Startup(ctx); err != nil {
		log.Fatalf("Failed to start background jobs: %v", err)
	}

	log.Println("[MCP] Starting standalone stdio server...")
	if err := a.mcp.ServeStdio(); err != nil {
		log.Printf("MCP server error: %v", err)
	}
}

// RunHost runs the editor core behind the host bridge: events arrive as
// NDJSON on stdin and commands leave on stdout. With MCP_ADDR set, agents
// can drive the same deck over streamable HTTP.
func RunHost(args []string) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(args)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	a, err := New(ctx, cfg, Options{Host: true})
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	defer shutdown(a)
	if err := a.Startup(ctx); err != nil {
		log.Fatalf("Failed to start background jobs: %v", err)
	}

	if err := a.ServeHost(ctx, os.Stdin, os.Stdout); err != nil {
		log.Printf("[Bridge] %v", err)
	}
}

func shutdown(a *App) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	a.Shutdown(ctx)
}
