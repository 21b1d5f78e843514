package mcpserver

import (
	"context"
	"fmt"
	"log"

	json "github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"slidedeck/internal/domain"
	"slidedeck/internal/service"
	"slidedeck/internal/storage"
)

// RevisionSource exposes persisted deck revisions.
type RevisionSource interface {
	Record(ctx context.Context, d *domain.Deck, label string) error
	List(ctx context.Context, deckID string) ([]storage.Revision, error)
	Get(ctx context.Context, id string) (*storage.Revision, error)
}

// Server is the MCP server for the deck editor.
// It exposes tools, resources, and prompts so AI agents can build and edit decks.
type Server struct {
	mcp      *server.MCPServer
	emitter  EventEmitter
	approval *ApprovalQueue
	layout   *LayoutEngine

	decks     *service.DeckService
	exports   *service.ExportService
	repo      domain.DeckRepository
	revisions RevisionSource
}

// Deps holds all dependencies passed from the app layer to the MCP server.
// Exports, Repository and Revisions are optional; their tools are only
// registered when present.
type Deps struct {
	Emitter         EventEmitter
	Decks           *service.DeckService
	Exports         *service.ExportService
	Repository      domain.DeckRepository
	Revisions       RevisionSource
	RequireApproval bool
}

// New creates and configures a new MCP server with all tools and resources.
func New(deps Deps) *Server {
	emitter := deps.Emitter
	if emitter == nil {
		emitter = service.NopEmitter{}
	}
	s := &Server{
		emitter:   emitter,
		approval:  NewApprovalQueue(emitter, deps.RequireApproval),
		layout:    NewLayoutEngine(),
		decks:     deps.Decks,
		exports:   deps.Exports,
		repo:      deps.Repository,
		revisions: deps.Revisions,
	}

	s.mcp = server.NewMCPServer(
		"slidedeck-mcp",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
		server.WithPromptCapabilities(true),
	)

	s.registerDeckTools()
	s.registerSlideTools()
	s.registerBlockTools()
	if s.exports != nil {
		s.registerExportTools()
	}
	if s.repo != nil || s.revisions != nil {
		s.registerLibraryTools()
	}
	s.registerResources()
	s.registerPrompts()

	return s
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	log.Println("[MCP] Starting stdio server...")
	return server.ServeStdio(s.mcp)
}

// NewHTTPServer wraps the server in the streamable HTTP transport.
func (s *Server) NewHTTPServer() *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(s.mcp)
}

// Approve forwards a user approval to the approval queue.
func (s *Server) Approve(actionID string) bool {
	return s.approval.Approve(actionID)
}

// Reject forwards a user rejection to the approval queue.
func (s *Server) Reject(actionID string) bool {
	return s.approval.Reject(actionID)
}

// ── Helpers ────────────────────────────────────────────────

// textResult creates a simple text tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

// jsonResult serializes v to JSON and wraps it in a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return textResult(string(data)), nil
}

// requireString returns args[key] or an error naming the missing argument.
func requireString(req mcp.CallToolRequest, key string) (string, error) {
	v := req.GetString(key, "")
	if v == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return v, nil
}

// currentDeck returns the loaded deck or an error telling the agent to load one.
func (s *Server) currentDeck() (*domain.Deck, error) {
	d := s.decks.Current()
	if d == nil {
		return nil, fmt.Errorf("no deck loaded (use load_deck or add_slide first)")
	}
	return d, nil
}

// resolveSlideID returns the slideId argument or the selected slide.
func (s *Server) resolveSlideID(req mcp.CallToolRequest) (string, error) {
	if id := req.GetString("slideId", ""); id != "" {
		return id, nil
	}
	if id := s.decks.Selection().SlideID; id != "" {
		return id, nil
	}
	return "", fmt.Errorf("no slideId provided and no slide selected (use select_slide first)")
}

// locateBlock finds the slide holding blockID, preferring slideId when given.
func (s *Server) locateBlock(req mcp.CallToolRequest) (slideID, blockID string, err error) {
	blockID, err = requireString(req, "blockId")
	if err != nil {
		return "", "", err
	}
	if id := req.GetString("slideId", ""); id != "" {
		return id, blockID, nil
	}
	d, err := s.currentDeck()
	if err != nil {
		return "", "", err
	}
	for _, sl := range d.Slides {
		if sl.BlockIndex(blockID) >= 0 {
			return sl.ID, blockID, nil
		}
	}
	return "", "", fmt.Errorf("%w: %s", service.ErrBlockNotFound, blockID)
}
